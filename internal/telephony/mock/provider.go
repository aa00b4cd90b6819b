package mock

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/acme/contact-dialer/internal/domain"
)

// Behavior scripts how the provider treats calls to one number. The first
// terminal signal wins: a scripted disconnect is observed before any answer
// and is final for that leg.
type Behavior struct {
	Answer     bool
	Disconnect bool
	After      time.Duration
	Reason     string
}

// Provider simulates outbound call behaviour. Numbers without a script fall
// back to seeded randomness, mirroring a flaky carrier.
type Provider struct {
	mu          sync.Mutex
	identity    *domain.Credential
	numbers     map[string]Behavior
	failLogins  map[string]string
	rng         *rand.Rand
	successRate float64
	hangup      chan struct{}
	hangups     int
	registered  int
}

// NewProvider constructs a simulated provider with deterministic randomness.
func NewProvider() *Provider {
	return &Provider{
		numbers:     make(map[string]Behavior),
		failLogins:  make(map[string]string),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		successRate: 0.8,
		hangup:      make(chan struct{}),
	}
}

// Script pins the behaviour for calls to number. The agent leg of a bridge is
// looked up by the identity's username.
func (p *Provider) Script(number string, b Behavior) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.numbers[number] = b
}

// FailRegistration makes RegisterIdentity fail for the given username.
func (p *Provider) FailRegistration(username, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failLogins[username] = reason
}

func (p *Provider) RegisterIdentity(ctx context.Context, cred domain.Credential) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if reason, ok := p.failLogins[cred.Username]; ok {
		return fmt.Errorf("registration rejected: %s", reason)
	}
	p.identity = &cred
	p.registered++
	return nil
}

// Registrations returns how many times an identity was registered.
func (p *Provider) Registrations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.registered
}

// Hangups returns how many times HangupAll was invoked.
func (p *Provider) Hangups() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hangups
}

func (p *Provider) DialSingleLeg(ctx context.Context, number string, ringTimeout time.Duration) (domain.DialOutcome, error) {
	return p.dialLeg(ctx, number, ringTimeout)
}

func (p *Provider) DialAndBridge(ctx context.Context, agent string, peerNumber string, ringTimeout time.Duration) (domain.DialOutcome, error) {
	agentOut, err := p.dialLeg(ctx, agent, ringTimeout)
	if err != nil {
		return agentOut, err
	}
	if !agentOut.Answered {
		if agentOut.Detail == domain.DetailTimeout {
			agentOut.Detail = domain.DetailAgentNoAnswer
		}
		return agentOut, nil
	}

	peerOut, err := p.dialLeg(ctx, peerNumber, ringTimeout)
	if err != nil {
		return peerOut, err
	}
	if !peerOut.Answered {
		if peerOut.Detail == domain.DetailTimeout {
			peerOut.Detail = domain.DetailPeerNoAnswer
		}
		return peerOut, nil
	}

	return domain.DialOutcome{Answered: true, Detail: domain.DetailBridged}, nil
}

func (p *Provider) HangupAll(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hangups++
	close(p.hangup)
	p.hangup = make(chan struct{})
	return nil
}

func (p *Provider) dialLeg(ctx context.Context, number string, ringTimeout time.Duration) (domain.DialOutcome, error) {
	p.mu.Lock()
	behavior, scripted := p.numbers[number]
	hangup := p.hangup
	if !scripted {
		behavior = Behavior{
			Answer: p.rng.Float64() <= p.successRate,
			After:  time.Duration(1+p.rng.Intn(4)) * time.Second,
		}
	}
	p.mu.Unlock()

	wait := behavior.After
	terminal := behavior.Answer || behavior.Disconnect
	if !terminal || wait > ringTimeout {
		wait = ringTimeout
	}

	select {
	case <-ctx.Done():
		return domain.DialOutcome{Answered: false, Detail: domain.DetailAborted}, ctx.Err()
	case <-hangup:
		return domain.DialOutcome{Answered: false, Detail: domain.DetailAborted}, nil
	case <-time.After(wait):
	}

	switch {
	case behavior.Disconnect:
		return domain.DialOutcome{Answered: false, Detail: domain.DetailDisconnected, Reason: behavior.Reason}, nil
	case behavior.Answer && behavior.After <= ringTimeout:
		return domain.DialOutcome{Answered: true, Detail: domain.DetailAnswered}, nil
	default:
		return domain.DialOutcome{Answered: false, Detail: domain.DetailTimeout}, nil
	}
}
