package sip

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/emiago/diago"
	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"go.uber.org/zap"

	"github.com/acme/contact-dialer/internal/config"
	"github.com/acme/contact-dialer/internal/domain"
	"github.com/acme/contact-dialer/pkg/logger"
)

// Provider implements the telephony capability on top of diago/sipgo.
type Provider struct {
	dg  *diago.Diago
	ua  *sipgo.UserAgent
	cfg config.SIPConfig
	log *logger.Logger

	mu        sync.Mutex
	identity  *domain.Credential
	regCancel context.CancelFunc
	active    map[string]*diago.DialogClientSession
	nextLeg   uint64
}

// NewProvider boots the SIP user agent and transport. Failure here is fatal
// to the process; the engine has no function without telephony.
func NewProvider(cfg config.SIPConfig, log *logger.Logger) (*Provider, error) {
	ua, err := sipgo.NewUA()
	if err != nil {
		return nil, fmt.Errorf("sip: create user agent: %w", err)
	}

	transport := diago.Transport{
		Transport: cfg.Transport,
		BindHost:  cfg.BindHost,
		BindPort:  cfg.BindPort,
	}
	dg := diago.NewDiago(ua, diago.WithTransport(transport))

	return &Provider{
		dg:     dg,
		ua:     ua,
		cfg:    cfg,
		log:    log.Component("sip"),
		active: make(map[string]*diago.DialogClientSession),
	}, nil
}

// RegisterIdentity keeps a single registration alive, replacing it only when
// the credential changes.
func (p *Provider) RegisterIdentity(ctx context.Context, cred domain.Credential) error {
	p.mu.Lock()
	if p.identity != nil && *p.identity == cred {
		p.mu.Unlock()
		return nil
	}
	if p.regCancel != nil {
		p.regCancel()
		p.regCancel = nil
		p.identity = nil
	}
	p.mu.Unlock()

	recipient := sip.Uri{User: cred.Username, Host: p.cfg.Domain, Port: p.cfg.Port}
	regCtx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.dg.Register(regCtx, recipient, diago.RegisterOptions{
			Username: cred.Username,
			Password: cred.Password,
			Expiry:   p.cfg.RegisterExpiry,
		})
	}()

	// Register blocks while it maintains the binding; an early return within
	// the register timeout means the initial REGISTER was rejected.
	select {
	case err := <-errCh:
		cancel()
		if err == nil {
			err = errors.New("registration ended unexpectedly")
		}
		return fmt.Errorf("sip: register %s: %w", cred.Username, err)
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	case <-time.After(p.cfg.RegisterTimeout):
	}

	p.mu.Lock()
	p.identity = &cred
	p.regCancel = cancel
	p.mu.Unlock()

	p.log.Info("registered identity", zap.String("username", cred.Username))
	return nil
}

func (p *Provider) DialSingleLeg(ctx context.Context, number string, ringTimeout time.Duration) (domain.DialOutcome, error) {
	dialCtx, cancel := context.WithTimeout(ctx, ringTimeout)
	defer cancel()

	recipient := sip.Uri{User: number, Host: p.cfg.Domain, Port: p.cfg.Port}
	dialog, err := p.dg.Invite(dialCtx, recipient, diago.InviteOptions{})
	if err != nil {
		return p.classify(ctx, dialCtx, err, domain.DetailTimeout), nil
	}

	// The leg only probes reachability; hang up as soon as it is confirmed.
	defer dialog.Close()
	if err := dialog.Hangup(ctx); err != nil {
		p.log.Warn("hangup after answer", zap.String("number", number), zap.Error(err))
	}

	return domain.DialOutcome{Answered: true, Detail: domain.DetailAnswered}, nil
}

func (p *Provider) DialAndBridge(ctx context.Context, agent string, peerNumber string, ringTimeout time.Duration) (domain.DialOutcome, error) {
	bridge := diago.NewBridge()

	agentCtx, cancelAgent := context.WithTimeout(ctx, ringTimeout)
	defer cancelAgent()

	agentURI := sip.Uri{User: agent, Host: p.cfg.Domain, Port: p.cfg.Port}
	agentDialog, err := p.dg.InviteBridge(agentCtx, agentURI, &bridge, diago.InviteOptions{})
	if err != nil {
		return p.classify(ctx, agentCtx, err, domain.DetailAgentNoAnswer), nil
	}

	peerCtx, cancelPeer := context.WithTimeout(ctx, ringTimeout)
	defer cancelPeer()

	peerURI := sip.Uri{User: peerNumber, Host: p.cfg.Domain, Port: p.cfg.Port}
	peerDialog, err := p.dg.InviteBridge(peerCtx, peerURI, &bridge, diago.InviteOptions{})
	if err != nil {
		_ = agentDialog.Hangup(ctx)
		agentDialog.Close()
		return p.classify(ctx, peerCtx, err, domain.DetailPeerNoAnswer), nil
	}

	p.track(agentDialog)
	p.track(peerDialog)

	return domain.DialOutcome{Answered: true, Detail: domain.DetailBridged}, nil
}

func (p *Provider) HangupAll(ctx context.Context) error {
	p.mu.Lock()
	legs := make([]*diago.DialogClientSession, 0, len(p.active))
	for _, d := range p.active {
		legs = append(legs, d)
	}
	p.active = make(map[string]*diago.DialogClientSession)
	p.mu.Unlock()

	var errs []error
	for _, d := range legs {
		if err := d.Hangup(ctx); err != nil {
			errs = append(errs, err)
		}
		d.Close()
	}
	if len(errs) > 0 {
		return fmt.Errorf("sip: hangup all: %v", errs)
	}
	return nil
}

// Close releases the SIP stack.
func (p *Provider) Close() error {
	p.mu.Lock()
	if p.regCancel != nil {
		p.regCancel()
		p.regCancel = nil
	}
	p.mu.Unlock()

	_ = p.HangupAll(context.Background())
	return p.ua.Close()
}

// track keeps a bridged leg reachable for HangupAll and forgets it once the
// remote side ends the dialog.
func (p *Provider) track(dialog *diago.DialogClientSession) {
	p.mu.Lock()
	p.nextLeg++
	key := fmt.Sprintf("leg-%d", p.nextLeg)
	p.active[key] = dialog
	p.mu.Unlock()

	go func() {
		<-dialog.Context().Done()
		p.mu.Lock()
		delete(p.active, key)
		p.mu.Unlock()
	}()
}

// classify maps an invite failure to a dial outcome. A deadline on the dial
// context means nobody answered within the ring timeout; a cancelled parent
// context means the engine aborted the attempt.
func (p *Provider) classify(parent, dialCtx context.Context, err error, noAnswer domain.DialDetail) domain.DialOutcome {
	switch {
	case parent.Err() != nil:
		return domain.DialOutcome{Answered: false, Detail: domain.DetailAborted}
	case errors.Is(dialCtx.Err(), context.DeadlineExceeded):
		return domain.DialOutcome{Answered: false, Detail: noAnswer}
	default:
		return domain.DialOutcome{Answered: false, Detail: domain.DetailDisconnected, Reason: err.Error()}
	}
}
