package telephony

import (
	"context"
	"time"

	"github.com/acme/contact-dialer/internal/domain"
)

// Provider abstracts the telephony integration. Every operation is fallible
// and time-bounded; callers never assume success.
type Provider interface {
	// RegisterIdentity (re)registers the calling identity. Implementations
	// keep exactly one identity active at a time.
	RegisterIdentity(ctx context.Context, cred domain.Credential) error

	// DialSingleLeg places a one-leg call and waits up to ringTimeout for an
	// answer. An answered leg is hung up before returning; the outcome only
	// reports whether the party picked up.
	DialSingleLeg(ctx context.Context, number string, ringTimeout time.Duration) (domain.DialOutcome, error)

	// DialAndBridge dials the agent leg for the given identity, then the peer
	// leg, waiting up to ringTimeout for each, and connects both legs
	// bidirectionally. A bridged outcome leaves the call up.
	DialAndBridge(ctx context.Context, agent string, peerNumber string, ringTimeout time.Duration) (domain.DialOutcome, error)

	// HangupAll tears down every active leg immediately.
	HangupAll(ctx context.Context) error
}
