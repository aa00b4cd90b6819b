package broadcast

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/acme/contact-dialer/internal/config"
	apperrors "github.com/acme/contact-dialer/pkg/errors"
	"github.com/acme/contact-dialer/pkg/logger"
)

// receivePath is the endpoint display clients expose for pushed payloads.
const receivePath = "/receive-info"

// Registry tracks display-client addresses and best-effort pushes event
// payloads to each of them. A client is pruned lazily when a push to it
// fails; pruning is not authoritative.
type Registry struct {
	mu          sync.Mutex
	clients     map[string]struct{}
	defaultPort int
	timeout     time.Duration
	log         *logger.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg config.BroadcastConfig, log *logger.Logger) *Registry {
	return &Registry{
		clients:     make(map[string]struct{}),
		defaultPort: cfg.DefaultClientPort,
		timeout:     cfg.PushTimeout,
		log:         log.Component("broadcast"),
	}
}

// Register adds a client address to the broadcast set and returns the
// current set. Port falls back to the configured default.
func (r *Registry) Register(host string, port int) ([]string, error) {
	if host == "" {
		return nil, fmt.Errorf("%w: host is required", apperrors.ErrValidation)
	}
	if port <= 0 {
		port = r.defaultPort
	}

	base := fmt.Sprintf("http://%s:%d", host, port)
	r.mu.Lock()
	r.clients[base] = struct{}{}
	r.mu.Unlock()

	r.log.Info("client registered", zap.String("client", base))
	return r.List(), nil
}

// List returns the registered client addresses in stable order.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.clients))
	for base := range r.clients {
		out = append(out, base)
	}
	sort.Strings(out)
	return out
}

// Broadcast pushes the payload to every registered client. Delivery failures
// silently prune the address without retrying; they are never surfaced to
// the operator as errors.
func (r *Registry) Broadcast(payload any) {
	for _, base := range r.List() {
		agent := fiber.Post(base + receivePath)
		agent.Timeout(r.timeout)
		agent.JSON(payload)

		if _, _, errs := agent.Bytes(); len(errs) > 0 {
			r.prune(base, errs[0])
		}
	}
}

func (r *Registry) prune(base string, err error) {
	r.mu.Lock()
	delete(r.clients, base)
	r.mu.Unlock()
	r.log.Debug("client pruned after failed push", zap.String("client", base), zap.Error(err))
}
