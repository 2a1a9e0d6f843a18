package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultQueueSize   = 1024
	defaultInsertAfter = 5 * time.Second
)

// Recorder queues events and writes them to a Store from a single worker.
// Record never blocks; when the queue is full the event is dropped and counted.
type Recorder struct {
	log   *slog.Logger
	store Store

	queue   chan Event
	timeout time.Duration

	dropped atomic.Uint64
	failed  atomic.Uint64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	storeOnce sync.Once
	storeErr  error
}

// NewRecorder starts the worker. A nil store means NopStore.
func NewRecorder(log *slog.Logger, store Store, queueSize int) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	if store == nil {
		store = NopStore{}
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	r := &Recorder{
		log:     log,
		store:   store,
		queue:   make(chan Event, queueSize),
		timeout: defaultInsertAfter,
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues ev and reports whether it was accepted.
func (r *Recorder) Record(ev Event) bool {
	if r == nil {
		return false
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.dropped.Add(1)
		return false
	}
	select {
	case r.queue <- ev:
		return true
	default:
		r.dropped.Add(1)
		return false
	}
}

// Dropped returns the number of events rejected by Record.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Failed returns the number of events the store rejected.
func (r *Recorder) Failed() uint64 { return r.failed.Load() }

// Close stops accepting events, drains the queue and closes the store.
// ctx bounds the drain. If it expires first the store is closed anyway and
// inserts still in flight fail. Close may be called again; each call waits
// for the drain under its own ctx.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return r.closeStore()
	case <-ctx.Done():
		_ = r.closeStore()
		return ctx.Err()
	}
}

func (r *Recorder) closeStore() error {
	r.storeOnce.Do(func() { r.storeErr = r.store.Close() })
	return r.storeErr
}

func (r *Recorder) run() {
	defer close(r.done)

	for ev := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		err := r.store.Insert(ctx, ev)
		cancel()

		if err != nil {
			r.failed.Add(1)
			r.log.Warn("audit.insert.fail", "kind", ev.Kind, "err", err)
		}
	}
}
