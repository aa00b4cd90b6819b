package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/acme/contact-dialer/internal/domain"
	"github.com/acme/contact-dialer/internal/telephony"
	"github.com/acme/contact-dialer/pkg/logger"
)

// emitFunc publishes one progress update for the item being processed.
type emitFunc func(item *domain.ContactItem, phase domain.Phase, number string, answered *bool, detail domain.DialDetail, reason string)

// Sequencer walks one contact item through its call phases: ensure the
// registered identity, attempt the three-party bridge to the primary number,
// then fall back to single-leg dials of the emergency contacts in priority
// order.
type Sequencer struct {
	provider    telephony.Provider
	control     *ControlState
	emit        emitFunc
	log         *logger.Logger
	ringTimeout time.Duration
	retryGap    time.Duration
	poll        time.Duration

	// registration cache: re-register only when the credential changes
	lastCred *domain.Credential
}

// NewSequencer builds a sequencer bound to the shared control state.
func NewSequencer(provider telephony.Provider, control *ControlState, emit emitFunc, log *logger.Logger, ringTimeout, retryGap, poll time.Duration) *Sequencer {
	return &Sequencer{
		provider:    provider,
		control:     control,
		emit:        emit,
		log:         log.Component("sequencer"),
		ringTimeout: ringTimeout,
		retryGap:    retryGap,
		poll:        poll,
	}
}

type dialAttempt struct {
	calling domain.Phase
	result  domain.Phase
	number  string
	bridge  bool
}

// Run executes the dial sequence for one item. It returns false only when a
// stop request was observed before any phase began; in every other case the
// item counts as processed, including registration failures and mid-phase
// aborts.
func (s *Sequencer) Run(ctx context.Context, item *domain.ContactItem) bool {
	if err := s.control.AwaitRunnable(ctx, s.poll); err != nil {
		return false
	}

	if err := s.ensureIdentity(ctx, item.Credential); err != nil {
		answered := false
		s.log.Warn("identity registration failed",
			zap.String("username", item.Credential.Username), zap.Error(err))
		s.emit(item, domain.PhaseLogin, "-", &answered, domain.DetailError, err.Error())
		return true
	}

	attempts := make([]dialAttempt, 0, 3)
	attempts = append(attempts, dialAttempt{domain.PhaseCallingPrimary, domain.PhasePrimary, item.PrimaryNumber, true})
	if item.EC1Number != "" {
		attempts = append(attempts, dialAttempt{domain.PhaseCallingEC1, domain.PhaseEC1, item.EC1Number, false})
	}
	if item.EC2Number != "" {
		attempts = append(attempts, dialAttempt{domain.PhaseCallingEC2, domain.PhaseEC2, item.EC2Number, false})
	}

	for i, attempt := range attempts {
		if err := s.control.AwaitRunnable(ctx, s.poll); err != nil {
			return true
		}

		s.emit(item, attempt.calling, attempt.number, nil, domain.DetailRinging, "")

		outcome := s.dial(ctx, item, attempt)
		s.emit(item, attempt.result, attempt.number, &outcome.Answered, outcome.Detail, outcome.Reason)

		if outcome.Detail == domain.DetailAborted {
			return true
		}
		if outcome.Answered {
			// Primary bridged: the item is complete, the conversation is not
			// tracked further. An answered emergency contact ends the
			// sequence as handled.
			return true
		}

		if i < len(attempts)-1 {
			if !s.sleepGap(ctx) {
				return true
			}
		}
	}

	return true
}

func (s *Sequencer) dial(ctx context.Context, item *domain.ContactItem, attempt dialAttempt) domain.DialOutcome {
	var (
		outcome domain.DialOutcome
		err     error
	)
	if attempt.bridge {
		outcome, err = s.provider.DialAndBridge(ctx, item.Credential.Username, attempt.number, s.ringTimeout)
	} else {
		outcome, err = s.provider.DialSingleLeg(ctx, attempt.number, s.ringTimeout)
	}

	if ctx.Err() != nil {
		return domain.DialOutcome{Answered: false, Detail: domain.DetailAborted}
	}
	if err != nil {
		s.log.Warn("dial attempt failed",
			zap.String("phase", string(attempt.result)),
			zap.String("number", attempt.number),
			zap.Error(err))
		if outcome.Detail == "" {
			return domain.DialOutcome{Answered: false, Detail: domain.DetailError, Reason: err.Error()}
		}
	}
	return outcome
}

// ensureIdentity registers the item's credential unless it is already the
// active one. A hard invalidate happens on any registration failure.
func (s *Sequencer) ensureIdentity(ctx context.Context, cred domain.Credential) error {
	if s.lastCred != nil && *s.lastCred == cred {
		return nil
	}
	s.lastCred = nil
	if err := s.provider.RegisterIdentity(ctx, cred); err != nil {
		return err
	}
	s.lastCred = &cred
	return nil
}

// sleepGap waits the fixed retry gap between unsuccessful phases. It returns
// false when interrupted by cancellation.
func (s *Sequencer) sleepGap(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(s.retryGap):
		return true
	}
}
