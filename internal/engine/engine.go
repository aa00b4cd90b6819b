package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/contact-dialer/internal/config"
	"github.com/acme/contact-dialer/internal/domain"
	"github.com/acme/contact-dialer/internal/telephony"
	apperrors "github.com/acme/contact-dialer/pkg/errors"
	"github.com/acme/contact-dialer/pkg/logger"
)

// ClientBroadcaster best-effort pushes an event payload to display clients.
// Engine correctness never depends on any subscriber's liveness.
type ClientBroadcaster interface {
	Broadcast(payload any)
}

// EventMirror forwards retained events to an external stream.
type EventMirror interface {
	Publish(ctx context.Context, ev Event) error
}

// Engine owns the work queue, control state, event bus and the single worker
// loop that drives the dial sequencer.
type Engine struct {
	queue     *WorkQueue
	control   *ControlState
	bus       *EventBus
	provider  telephony.Provider
	sequencer *Sequencer
	log       *logger.Logger
	poll      time.Duration

	broadcaster ClientBroadcaster
	mirror      EventMirror

	mu           sync.Mutex
	cancelActive context.CancelFunc
}

// New wires the engine. broadcaster and mirror may be nil.
func New(cfg *config.Config, provider telephony.Provider, broadcaster ClientBroadcaster, mirror EventMirror, log *logger.Logger) *Engine {
	e := &Engine{
		queue:       NewWorkQueue(),
		control:     NewControlState(),
		bus:         NewEventBus(cfg.Events.BufferCapacity),
		provider:    provider,
		log:         log.Component("engine"),
		poll:        cfg.Dialer.PollInterval,
		broadcaster: broadcaster,
		mirror:      mirror,
	}
	e.sequencer = NewSequencer(provider, e.control, e.emitProgress, log,
		cfg.Dialer.RingTimeout, cfg.Dialer.RetryGap, cfg.Dialer.PollInterval)
	return e
}

// SubmitResult reports the outcome of a dataset submission.
type SubmitResult struct {
	Enqueued  int `json:"enqueued"`
	QueueSize int `json:"queue_size"`
}

// Submit validates and enqueues a batch of contact items under one calling
// identity, then publishes a dataset event for display clients.
func (e *Engine) Submit(cred domain.Credential, items []domain.ContactItem) (SubmitResult, error) {
	if !cred.Valid() {
		return SubmitResult{}, fmt.Errorf("%w: credential username and password are required", apperrors.ErrValidation)
	}
	if len(items) == 0 {
		return SubmitResult{}, fmt.Errorf("%w: items must be a non-empty list", apperrors.ErrValidation)
	}

	now := time.Now().UTC()
	snapshots := make([]domain.ContactSnapshot, 0, len(items))
	for i := range items {
		item := items[i]
		item.ID = uuid.New()
		item.Credential = cred
		item.EnqueuedAt = now
		e.queue.Enqueue(&item)
		snapshots = append(snapshots, item.Snapshot())
	}
	e.control.AddQueued(len(items))

	e.publish(EventDataset, domain.DatasetUpdate{
		Identity: cred.Username,
		Items:    snapshots,
		Count:    len(items),
	}, true)

	e.log.Info("dataset enqueued",
		zap.Int("items", len(items)),
		zap.String("identity", cred.Username))

	return SubmitResult{Enqueued: len(items), QueueSize: e.queue.Depth()}, nil
}

// Control applies one operator action: call, pause, start (resume) or stop.
// Inapplicable actions report applied=false without corrupting state; an
// unknown action is a validation error.
func (e *Engine) Control(ctx context.Context, action string) (ActionResult, error) {
	var res ActionResult
	switch action {
	case "call":
		res = e.control.StartCalling()
	case "pause":
		res = e.control.Pause()
	case "start":
		res = e.control.Resume()
	case "stop":
		res = e.stop(ctx)
	default:
		return ActionResult{}, fmt.Errorf("%w: unknown action %q", apperrors.ErrValidation, action)
	}

	// Action events are retained for polling consumers but never pushed to
	// display clients.
	e.publish(EventAction, domain.ActionUpdate{
		Action:  action,
		Applied: res.Applied,
		Message: res.Message,
	}, false)

	e.log.Info("control action", zap.String("action", action), zap.Bool("applied", res.Applied))
	return res, nil
}

// stop flips the mode, interrupts the in-flight item, hangs up every active
// telephony leg and drains the queue.
func (e *Engine) stop(ctx context.Context) ActionResult {
	res := e.control.Stop()

	e.mu.Lock()
	if e.cancelActive != nil {
		e.cancelActive()
	}
	e.mu.Unlock()

	if err := e.provider.HangupAll(ctx); err != nil {
		e.log.Warn("hangup all", zap.Error(err))
	}

	drained := e.queue.DrainAll()
	res.Message = fmt.Sprintf("calling stopped (%d queued items discarded)", drained)
	return res
}

// Status returns the control state snapshot plus the live queue depth.
func (e *Engine) Status() StatusSnapshot {
	return e.control.Snapshot(e.queue.Depth())
}

// Events returns retained events newer than since and the caller's next
// bookmark.
func (e *Engine) Events(since uint64) ([]Event, uint64) {
	return e.bus.Query(since)
}

// Run is the worker loop: one dedicated goroutine, one item in flight at a
// time. Serialization is deliberate: one calling identity cannot sustain
// concurrent legs.
func (e *Engine) Run(ctx context.Context) error {
	tracer := otel.Tracer("dialer.worker")
	e.log.Info("worker loop started")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// While stopped, leave anything newly submitted in the queue for the
		// next "call" action instead of consuming and skipping it.
		if e.control.Mode() == ModeStopped {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.poll):
			}
			continue
		}

		item, ok := e.queue.Dequeue(ctx, e.poll)
		if !ok {
			return ctx.Err()
		}

		itemCtx, cancel := context.WithCancel(ctx)
		e.mu.Lock()
		e.cancelActive = cancel
		e.mu.Unlock()

		e.control.BeginItem(item.Snapshot(), item.Credential.Username)

		sctx, span := tracer.Start(itemCtx, "dialer.item", trace.WithAttributes(
			attribute.String("item.id", item.ID.String()),
			attribute.String("item.phone", item.PrimaryNumber),
		))
		processed := e.sequencer.Run(sctx, item)
		span.End()

		e.mu.Lock()
		e.cancelActive = nil
		e.mu.Unlock()
		cancel()

		e.control.EndItem(processed)
	}
}

func (e *Engine) emitProgress(item *domain.ContactItem, phase domain.Phase, number string, answered *bool, detail domain.DialDetail, reason string) {
	e.publish(EventProgress, domain.ProgressUpdate{
		Contact:  item.Snapshot(),
		Identity: item.Credential.Username,
		Phase:    phase,
		Number:   number,
		Answered: answered,
		Detail:   detail,
		Reason:   reason,
	}, true)
}

func (e *Engine) publish(kind EventKind, payload any, broadcast bool) Event {
	ev := e.bus.Publish(kind, payload)

	if e.mirror != nil {
		go func() {
			if err := e.mirror.Publish(context.Background(), ev); err != nil {
				e.log.Warn("event mirror publish", zap.Error(err))
			}
		}()
	}
	if broadcast && e.broadcaster != nil {
		go e.broadcaster.Broadcast(ev.Payload)
	}
	return ev
}
