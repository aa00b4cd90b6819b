package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/acme/contact-dialer/internal/config"
	"github.com/acme/contact-dialer/internal/domain"
	"github.com/acme/contact-dialer/internal/telephony/mock"
	apperrors "github.com/acme/contact-dialer/pkg/errors"
	"github.com/acme/contact-dialer/pkg/logger"
)

type capturingBroadcaster struct {
	mu       sync.Mutex
	payloads []any
}

func (b *capturingBroadcaster) Broadcast(payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payloads = append(b.payloads, payload)
}

func (b *capturingBroadcaster) all() []any {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]any, len(b.payloads))
	copy(out, b.payloads)
	return out
}

type capturingMirror struct {
	mu     sync.Mutex
	events []Event
}

func (m *capturingMirror) Publish(ctx context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *capturingMirror) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func testConfig(ringTimeout time.Duration) *config.Config {
	return &config.Config{
		Dialer: config.DialerConfig{
			RingTimeout:  ringTimeout,
			RetryGap:     5 * time.Millisecond,
			PollInterval: 2 * time.Millisecond,
		},
		Events: config.EventsConfig{BufferCapacity: 128},
	}
}

func testCredential() domain.Credential {
	return domain.Credential{Username: "agent1", Password: "secret"}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSubmitRejectsInvalidInput(t *testing.T) {
	e := New(testConfig(20*time.Millisecond), mock.NewProvider(), nil, nil, logger.NewNop())

	_, err := e.Submit(domain.Credential{Username: "agent1"}, []domain.ContactItem{{PrimaryNumber: "0811"}})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error for incomplete credential, got %v", err)
	}

	_, err = e.Submit(testCredential(), nil)
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error for empty items, got %v", err)
	}

	if depth := e.Status().QueueSize; depth != 0 {
		t.Fatalf("rejected submissions must not enqueue, queue depth = %d", depth)
	}
}

func TestSubmitEnqueuesAndPublishesDatasetEvent(t *testing.T) {
	broadcaster := &capturingBroadcaster{}
	e := New(testConfig(20*time.Millisecond), mock.NewProvider(), broadcaster, nil, logger.NewNop())

	res, err := e.Submit(testCredential(), []domain.ContactItem{
		{Name: "alice", PrimaryNumber: "0811"},
		{Name: "bob", PrimaryNumber: "0822"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Enqueued != 2 || res.QueueSize != 2 {
		t.Fatalf("unexpected submit result %+v", res)
	}

	events, last := e.Events(0)
	if len(events) != 1 || events[0].Kind != EventDataset {
		t.Fatalf("expected a single dataset event, got %+v", events)
	}
	if last != events[0].SequenceID {
		t.Fatalf("bookmark %d does not match last event %d", last, events[0].SequenceID)
	}
	payload, ok := events[0].Payload.(domain.DatasetUpdate)
	if !ok {
		t.Fatalf("unexpected dataset payload type %T", events[0].Payload)
	}
	if payload.Count != 2 || payload.Identity != "agent1" {
		t.Fatalf("unexpected dataset payload %+v", payload)
	}

	waitFor(t, "dataset broadcast", func() bool { return len(broadcaster.all()) == 1 })
}

func TestWorkerProcessesAnsweredPrimary(t *testing.T) {
	provider := mock.NewProvider()
	provider.Script("agent1", mock.Behavior{Answer: true})
	provider.Script("0811", mock.Behavior{Answer: true})

	broadcaster := &capturingBroadcaster{}
	mirror := &capturingMirror{}
	e := New(testConfig(60*time.Millisecond), provider, broadcaster, mirror, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	if _, err := e.Control(ctx, "call"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Submit(testCredential(), []domain.ContactItem{{Name: "alice", PrimaryNumber: "0811", EC1Number: "0833"}}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "item processed", func() bool { return e.Status().Processed == 1 })

	status := e.Status()
	if status.Mode != ModeRunning.String() || status.InProgress != nil || status.QueueSize != 0 {
		t.Fatalf("unexpected status after processing: %+v", status)
	}

	events, _ := e.Events(0)
	var progress []domain.ProgressUpdate
	for _, ev := range events {
		if ev.Kind == EventProgress {
			progress = append(progress, ev.Payload.(domain.ProgressUpdate))
		}
	}
	if len(progress) != 2 {
		t.Fatalf("expected pre-call and result updates, got %+v", progress)
	}
	if progress[0].Phase != domain.PhaseCallingPrimary || progress[0].Answered != nil {
		t.Fatalf("unexpected pre-call update %+v", progress[0])
	}
	if progress[1].Phase != domain.PhasePrimary || progress[1].Answered == nil || !*progress[1].Answered || progress[1].Detail != domain.DetailBridged {
		t.Fatalf("unexpected result update %+v", progress[1])
	}

	// Every retained event reaches the mirror, including the action event.
	waitFor(t, "mirrored events", func() bool { return mirror.count() == len(events) })
}

func TestActionEventsAreRetainedButNotBroadcast(t *testing.T) {
	broadcaster := &capturingBroadcaster{}
	e := New(testConfig(20*time.Millisecond), mock.NewProvider(), broadcaster, nil, logger.NewNop())

	if _, err := e.Control(context.Background(), "pause"); err != nil {
		t.Fatal(err)
	}

	events, _ := e.Events(0)
	if len(events) != 1 || events[0].Kind != EventAction {
		t.Fatalf("expected a retained action event, got %+v", events)
	}

	time.Sleep(20 * time.Millisecond)
	if got := broadcaster.all(); len(got) != 0 {
		t.Fatalf("action events must not be pushed to clients, got %+v", got)
	}
}

func TestControlRejectsUnknownAction(t *testing.T) {
	e := New(testConfig(20*time.Millisecond), mock.NewProvider(), nil, nil, logger.NewNop())
	if _, err := e.Control(context.Background(), "reboot"); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error for unknown action, got %v", err)
	}
}

func TestStopAbortsInFlightAndDrainsQueue(t *testing.T) {
	provider := mock.NewProvider()
	provider.Script("agent1", mock.Behavior{Answer: true})
	provider.Script("0899", mock.Behavior{}) // rings until stopped

	e := New(testConfig(10*time.Second), provider, nil, nil, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	if _, err := e.Control(ctx, "call"); err != nil {
		t.Fatal(err)
	}
	_, err := e.Submit(testCredential(), []domain.ContactItem{
		{Name: "alice", PrimaryNumber: "0899"},
		{Name: "bob", PrimaryNumber: "0899"},
		{Name: "carol", PrimaryNumber: "0899"},
	})
	if err != nil {
		t.Fatal(err)
	}

	waitFor(t, "first item in flight", func() bool { return e.Status().InProgress != nil })

	res, err := e.Control(ctx, "stop")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Applied {
		t.Fatalf("stop must apply, got %+v", res)
	}

	waitFor(t, "abort of the in-flight item", func() bool {
		s := e.Status()
		return s.InProgress == nil && s.Processed == 1
	})

	status := e.Status()
	if status.Mode != ModeStopped.String() || status.QueueSize != 0 {
		t.Fatalf("expected stopped engine with drained queue, got %+v", status)
	}
	if provider.Hangups() == 0 {
		t.Fatal("stop must hang up active telephony legs")
	}

	events, _ := e.Events(0)
	var aborted bool
	for _, ev := range events {
		if ev.Kind != EventProgress {
			continue
		}
		if p := ev.Payload.(domain.ProgressUpdate); p.Detail == domain.DetailAborted {
			aborted = true
		}
	}
	if !aborted {
		t.Fatalf("expected an aborted progress event, got %+v", events)
	}
}

func TestSubmissionsWhileStoppedSurviveUntilNextCall(t *testing.T) {
	provider := mock.NewProvider()
	provider.Script("agent1", mock.Behavior{Answer: true})
	provider.Script("0811", mock.Behavior{Answer: true})

	e := New(testConfig(60*time.Millisecond), provider, nil, nil, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	if _, err := e.Control(ctx, "stop"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Submit(testCredential(), []domain.ContactItem{{Name: "alice", PrimaryNumber: "0811"}}); err != nil {
		t.Fatal(err)
	}

	time.Sleep(30 * time.Millisecond)
	if s := e.Status(); s.QueueSize != 1 || s.Processed != 0 {
		t.Fatalf("stopped worker must not consume submissions, got %+v", s)
	}

	if _, err := e.Control(ctx, "call"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "processing after restart", func() bool { return e.Status().Processed == 1 })
}
