package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/acme/contact-dialer/internal/domain"
)

// Mode is the tagged control state of the engine. A single mode keeps the
// running/paused/stopped flags from drifting into invalid combinations.
type Mode int

const (
	ModeIdle Mode = iota
	ModeRunning
	ModePaused
	ModeStopped
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeRunning:
		return "running"
	case ModePaused:
		return "paused"
	case ModeStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrStopped is returned by wait loops when a stop request is observed.
var ErrStopped = errors.New("engine stopped")

// ActionResult reports whether an operator action was applicable and a
// human-readable message for the action event.
type ActionResult struct {
	Applied bool   `json:"applied"`
	Message string `json:"message"`
}

// StatusSnapshot is the point-in-time control state exposed to operators.
// The legacy boolean flags are derived from the mode for display clients.
type StatusSnapshot struct {
	Mode           string                  `json:"mode"`
	Running        bool                    `json:"running"`
	Paused         bool                    `json:"paused"`
	Stopped        bool                    `json:"stopped"`
	InProgress     *domain.ContactSnapshot `json:"in_progress"`
	Processed      uint64                  `json:"processed"`
	Queued         uint64                  `json:"queued"`
	QueueSize      int                     `json:"queue_size"`
	ActiveIdentity string                  `json:"active_identity,omitempty"`
}

// ControlState guards the process-wide run mode and progress counters behind
// a single mutex. One instance lives for the process lifetime.
type ControlState struct {
	mu             sync.Mutex
	mode           Mode
	processed      uint64
	queued         uint64
	inProgress     *domain.ContactSnapshot
	activeIdentity string
}

// NewControlState starts in the idle mode.
func NewControlState() *ControlState {
	return &ControlState{mode: ModeIdle}
}

// StartCalling handles the "call" action: permitted from any mode.
func (c *ControlState) StartCalling() ActionResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = ModeRunning
	return ActionResult{Applied: true, Message: "calling started"}
}

// Pause gates the start of new phases. Applicable only while running.
func (c *ControlState) Pause() ActionResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeRunning {
		return ActionResult{Applied: false, Message: "not running"}
	}
	c.mode = ModePaused
	return ActionResult{Applied: true, Message: "calling paused"}
}

// Resume handles the "start" action: applicable only while paused.
func (c *ControlState) Resume() ActionResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModePaused {
		return ActionResult{Applied: false, Message: "not paused"}
	}
	c.mode = ModeRunning
	return ActionResult{Applied: true, Message: "calling resumed"}
}

// Stop is permitted from any mode and is terminal until the next "call".
func (c *ControlState) Stop() ActionResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = ModeStopped
	return ActionResult{Applied: true, Message: "calling stopped"}
}

// Mode returns the current mode.
func (c *ControlState) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// AwaitRunnable blocks while the engine is paused or idle, polling with the
// given interval so a stop request is observed within one interval. It
// returns ErrStopped once the mode is stopped and the context error once the
// context ends.
func (c *ControlState) AwaitRunnable(ctx context.Context, poll time.Duration) error {
	for {
		switch c.Mode() {
		case ModeRunning:
			return nil
		case ModeStopped:
			return ErrStopped
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
}

// AddQueued bumps the cumulative enqueued counter.
func (c *ControlState) AddQueued(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queued += uint64(n)
}

// BeginItem records the item the worker is holding. Set only while exactly
// one dequeued item is in flight.
func (c *ControlState) BeginItem(snap domain.ContactSnapshot, identity string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inProgress = &snap
	c.activeIdentity = identity
}

// EndItem clears the in-flight item, counting it as processed when the
// sequencer ran it to completion or abort.
func (c *ControlState) EndItem(processed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inProgress = nil
	if processed {
		c.processed++
	}
}

// Processed returns the processed-item counter.
func (c *ControlState) Processed() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processed
}

// Snapshot captures the control state together with the live queue depth.
func (c *ControlState) Snapshot(queueDepth int) StatusSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return StatusSnapshot{
		Mode:           c.mode.String(),
		Running:        c.mode == ModeRunning || c.mode == ModePaused,
		Paused:         c.mode == ModePaused,
		Stopped:        c.mode == ModeStopped,
		InProgress:     c.inProgress,
		Processed:      c.processed,
		Queued:         c.queued,
		QueueSize:      queueDepth,
		ActiveIdentity: c.activeIdentity,
	}
}
