package relay

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/businessweb01/dbmiddleware/internal/source"
)

// fakeEventSource scripts a sequence of Subscribe outcomes: a negative entry
// fails the subscribe, a positive one returns a live channel the test can
// drive and drop.
type fakeEventSource struct {
	mu         sync.Mutex
	subscribes int
	failures   int
	current    chan source.Event
}

func (f *fakeEventSource) Subscribe(ctx context.Context) (<-chan source.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.subscribes++
	if f.failures > 0 {
		f.failures--
		return nil, fmt.Errorf("connection refused")
	}

	f.current = make(chan source.Event, 8)
	return f.current, nil
}

func (f *fakeEventSource) Ping(ctx context.Context) error { return nil }

func (f *fakeEventSource) drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current != nil {
		close(f.current)
		f.current = nil
	}
}

func (f *fakeEventSource) send(event source.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current <- event
}

func (f *fakeEventSource) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes
}

func newTestSupervisor(t *testing.T, events EventSource) *Supervisor {
	t.Helper()

	s, err := NewSupervisor(events, nil)
	if err != nil {
		t.Fatalf("NewSupervisor() error = %v", err)
	}
	s.sleep = func(ctx context.Context, d time.Duration) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSupervisorReconnectsAndRescans(t *testing.T) {
	t.Parallel()

	events := &fakeEventSource{}
	supervisor := newTestSupervisor(t, events)

	var mu sync.Mutex
	scans := 0

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- supervisor.Run(ctx, func(ctx context.Context) error {
			mu.Lock()
			scans++
			mu.Unlock()
			return nil
		}, nil)
	}()

	waitFor(t, "first connect", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return scans == 1
	})

	// Connectivity flip: the live stream drops, the supervisor reconnects
	// and re-runs the catch-up scan.
	events.drop()
	waitFor(t, "reconnect scan", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return scans == 2
	})

	events.drop()
	waitFor(t, "second reconnect scan", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return scans == 3
	})

	if got := supervisor.State(); got != StateConnected {
		t.Fatalf("State() = %v, want connected", got)
	}
	if got := events.subscribeCount(); got != 3 {
		t.Fatalf("subscribes = %d, want 3", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestSupervisorSurvivesSubscribeFailures(t *testing.T) {
	t.Parallel()

	events := &fakeEventSource{failures: 3}
	supervisor := newTestSupervisor(t, events)

	connected := make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = supervisor.Run(ctx, func(ctx context.Context) error {
			connected <- struct{}{}
			return nil
		}, nil)
	}()

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor never connected through failures")
	}

	if got := events.subscribeCount(); got != 4 {
		t.Fatalf("subscribes = %d, want 4 (3 failures + 1 success)", got)
	}
	if got := supervisor.State(); got != StateConnected {
		t.Fatalf("State() = %v, want connected", got)
	}
}

func TestSupervisorDeliversEventsToHandler(t *testing.T) {
	t.Parallel()

	events := &fakeEventSource{}
	supervisor := newTestSupervisor(t, events)

	got := make(chan source.Event, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connected := make(chan struct{}, 4)
	go func() {
		_ = supervisor.Run(ctx,
			func(ctx context.Context) error {
				connected <- struct{}{}
				return nil
			},
			func(ctx context.Context, event source.Event) {
				got <- event
			},
		)
	}()

	<-connected
	events.send(source.Event{ID: "B1", Op: "set"})

	select {
	case event := <-got:
		if event.ID != "B1" {
			t.Fatalf("event.ID = %q, want B1", event.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler never saw the event")
	}
}

func TestSupervisorBackoffDoublesAndCaps(t *testing.T) {
	t.Parallel()

	events := &fakeEventSource{}
	supervisor := newTestSupervisor(t, events)

	want := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second,
	}
	for i, wantDelay := range want {
		if got := supervisor.nextBackoff(); got != wantDelay {
			t.Fatalf("backoff %d = %v, want %v", i, got, wantDelay)
		}
	}
}

func TestSupervisorFailureCounterResetsAtCeiling(t *testing.T) {
	t.Parallel()

	events := &fakeEventSource{}
	supervisor := newTestSupervisor(t, events)

	for i := 0; i < maxConsecutiveFailures; i++ {
		supervisor.nextBackoff()
	}

	// Past the ceiling the counter wraps; supervision never gives up and
	// backoff restarts from the base.
	if got := supervisor.nextBackoff(); got != baseReconnectDelay {
		t.Fatalf("backoff after ceiling = %v, want %v", got, baseReconnectDelay)
	}
}

func TestConnectionStateString(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		state ConnectionState
		want  string
	}{
		{StateConnecting, "connecting"},
		{StateConnected, "connected"},
		{StateDisconnected, "disconnected"},
		{StateError, "error"},
		{ConnectionState(99), "unknown"},
	}

	for _, tc := range testCases {
		if got := tc.state.String(); got != tc.want {
			t.Fatalf("String() = %q, want %q", got, tc.want)
		}
	}
}
