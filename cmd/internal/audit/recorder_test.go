package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type memStore struct {
	mu     sync.Mutex
	events []Event
	gate   chan struct{}
	err    error
	closed bool
}

func (m *memStore) Insert(ctx context.Context, ev Event) error {
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *memStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *memStore) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *memStore) snapshot() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecorder_DrainsOnClose(t *testing.T) {
	t.Parallel()

	st := &memStore{}
	r := NewRecorder(discardLogger(), st, 16)

	kinds := []string{KindPresenceJoin, KindKeyExchangeDelivered, KindPresenceLeave}
	for _, k := range kinds {
		if !r.Record(Event{Kind: k, Username: "alice"}) {
			t.Fatalf("Record(%s) rejected", k)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got := st.snapshot()
	if len(got) != len(kinds) {
		t.Fatalf("events=%d want=%d", len(got), len(kinds))
	}
	for i, k := range kinds {
		if got[i].Kind != k {
			t.Fatalf("events[%d].Kind=%q want=%q", i, got[i].Kind, k)
		}
		if got[i].At.IsZero() {
			t.Fatalf("events[%d].At not stamped", i)
		}
	}
	if !st.closed {
		t.Fatalf("store not closed")
	}
	if r.Record(Event{Kind: KindPresenceJoin}) {
		t.Fatalf("Record after Close accepted")
	}
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	t.Parallel()

	st := &memStore{gate: make(chan struct{})}
	r := NewRecorder(discardLogger(), st, 1)

	// The worker takes one event and blocks on the gate; one more fills the queue.
	accepted := 0
	for i := 0; i < 10; i++ {
		if r.Record(Event{Kind: KindPresenceJoin}) {
			accepted++
		}
	}
	if accepted > 2 {
		t.Fatalf("accepted=%d want<=2", accepted)
	}
	if r.Dropped() == 0 {
		t.Fatalf("expected drops")
	}

	close(st.gate)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := len(st.snapshot()); got != accepted {
		t.Fatalf("stored=%d want=%d", got, accepted)
	}
}

func TestRecorder_CountsStoreFailures(t *testing.T) {
	t.Parallel()

	st := &memStore{err: errors.New("boom")}
	r := NewRecorder(discardLogger(), st, 4)
	r.Record(Event{Kind: KindKeyExchangeFailed})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if r.Failed() != 1 {
		t.Fatalf("failed=%d want=1", r.Failed())
	}
}

func TestRecorder_CloseTimeoutStillClosesStore(t *testing.T) {
	t.Parallel()

	st := &memStore{gate: make(chan struct{})}
	r := NewRecorder(discardLogger(), st, 4)
	r.Record(Event{Kind: KindPresenceJoin})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := r.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Close err=%v want=%v", err, context.DeadlineExceeded)
	}
	if !st.isClosed() {
		t.Fatalf("store left open after drain timeout")
	}

	// A second Close honours its own deadline instead of waiting on the worker.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	start := time.Now()
	if err := r.Close(ctx2); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second Close err=%v want=%v", err, context.DeadlineExceeded)
	}
	if d := time.Since(start); d > 2*time.Second {
		t.Fatalf("second Close blocked for %v", d)
	}

	close(st.gate)
	ctx3, cancel3 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel3()
	if err := r.Close(ctx3); err != nil {
		t.Fatalf("third Close: %v", err)
	}
}

func TestRecorder_NilIsSafe(t *testing.T) {
	t.Parallel()

	var r *Recorder
	if r.Record(Event{Kind: KindPresenceJoin}) {
		t.Fatalf("nil recorder accepted event")
	}
}
