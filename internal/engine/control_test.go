package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/acme/contact-dialer/internal/domain"
)

func TestControlActionMatrix(t *testing.T) {
	cases := []struct {
		name    string
		setup   func(c *ControlState)
		act     func(c *ControlState) ActionResult
		applied bool
		mode    Mode
	}{
		{
			name:    "call from idle",
			setup:   func(c *ControlState) {},
			act:     func(c *ControlState) ActionResult { return c.StartCalling() },
			applied: true,
			mode:    ModeRunning,
		},
		{
			name:    "call while already running",
			setup:   func(c *ControlState) { c.StartCalling() },
			act:     func(c *ControlState) ActionResult { return c.StartCalling() },
			applied: true,
			mode:    ModeRunning,
		},
		{
			name:    "pause while running",
			setup:   func(c *ControlState) { c.StartCalling() },
			act:     func(c *ControlState) ActionResult { return c.Pause() },
			applied: true,
			mode:    ModePaused,
		},
		{
			name:    "pause while idle is not applicable",
			setup:   func(c *ControlState) {},
			act:     func(c *ControlState) ActionResult { return c.Pause() },
			applied: false,
			mode:    ModeIdle,
		},
		{
			name:    "resume while paused",
			setup:   func(c *ControlState) { c.StartCalling(); c.Pause() },
			act:     func(c *ControlState) ActionResult { return c.Resume() },
			applied: true,
			mode:    ModeRunning,
		},
		{
			name:    "resume while running is not applicable",
			setup:   func(c *ControlState) { c.StartCalling() },
			act:     func(c *ControlState) ActionResult { return c.Resume() },
			applied: false,
			mode:    ModeRunning,
		},
		{
			name:    "stop from running",
			setup:   func(c *ControlState) { c.StartCalling() },
			act:     func(c *ControlState) ActionResult { return c.Stop() },
			applied: true,
			mode:    ModeStopped,
		},
		{
			name:    "stop from idle",
			setup:   func(c *ControlState) {},
			act:     func(c *ControlState) ActionResult { return c.Stop() },
			applied: true,
			mode:    ModeStopped,
		},
		{
			name:    "call after stop restarts",
			setup:   func(c *ControlState) { c.Stop() },
			act:     func(c *ControlState) ActionResult { return c.StartCalling() },
			applied: true,
			mode:    ModeRunning,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewControlState()
			tc.setup(c)
			res := tc.act(c)
			if res.Applied != tc.applied {
				t.Fatalf("expected applied=%v, got %v (%s)", tc.applied, res.Applied, res.Message)
			}
			if c.Mode() != tc.mode {
				t.Fatalf("expected mode %v, got %v", tc.mode, c.Mode())
			}
		})
	}
}

func TestAwaitRunnableBlocksWhilePaused(t *testing.T) {
	c := NewControlState()
	c.StartCalling()
	c.Pause()

	done := make(chan error, 1)
	go func() {
		done <- c.AwaitRunnable(context.Background(), time.Millisecond)
	}()

	select {
	case err := <-done:
		t.Fatalf("expected wait to block while paused, got %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	c.Resume()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error after resume: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("wait did not unblock after resume")
	}
}

func TestAwaitRunnableObservesStop(t *testing.T) {
	c := NewControlState()
	c.StartCalling()
	c.Pause()

	done := make(chan error, 1)
	go func() {
		done <- c.AwaitRunnable(context.Background(), time.Millisecond)
	}()

	c.Stop()
	select {
	case err := <-done:
		if !errors.Is(err, ErrStopped) {
			t.Fatalf("expected ErrStopped, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("wait did not observe stop")
	}
}

func TestControlSnapshotDerivedFlags(t *testing.T) {
	c := NewControlState()

	snap := c.Snapshot(0)
	if snap.Running || snap.Paused || snap.Stopped {
		t.Fatalf("idle snapshot should clear all flags: %+v", snap)
	}

	c.StartCalling()
	c.AddQueued(3)
	c.BeginItem(domain.ContactSnapshot{Name: "alice"}, "agent1")

	snap = c.Snapshot(2)
	if !snap.Running || snap.Paused || snap.Stopped {
		t.Fatalf("running snapshot flags wrong: %+v", snap)
	}
	if snap.InProgress == nil || snap.InProgress.Name != "alice" {
		t.Fatalf("expected in-progress item, got %+v", snap.InProgress)
	}
	if snap.Queued != 3 || snap.QueueSize != 2 {
		t.Fatalf("expected queued=3 queue_size=2, got %+v", snap)
	}
	if snap.ActiveIdentity != "agent1" {
		t.Fatalf("expected active identity agent1, got %q", snap.ActiveIdentity)
	}

	c.EndItem(true)
	snap = c.Snapshot(2)
	if snap.InProgress != nil {
		t.Fatal("expected in-progress cleared after EndItem")
	}
	if snap.Processed != 1 {
		t.Fatalf("expected processed=1, got %d", snap.Processed)
	}

	c.Pause()
	snap = c.Snapshot(0)
	if !snap.Running || !snap.Paused {
		t.Fatalf("paused snapshot should keep running=true: %+v", snap)
	}

	c.Stop()
	snap = c.Snapshot(0)
	if snap.Running || !snap.Stopped {
		t.Fatalf("stopped snapshot flags wrong: %+v", snap)
	}
}

func TestEndItemSkippedDoesNotCount(t *testing.T) {
	c := NewControlState()
	c.BeginItem(domain.ContactSnapshot{}, "agent1")
	c.EndItem(false)
	if got := c.Processed(); got != 0 {
		t.Fatalf("skipped item must not count as processed, got %d", got)
	}
}
