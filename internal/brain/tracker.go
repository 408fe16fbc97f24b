package brain

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// AccessRecorder is the store capability the tracker needs.
type AccessRecorder interface {
	IncrementAccess(ctx context.Context, id string) error
}

// AccessError reports a failed access-count update.
type AccessError struct {
	MemoryID string
	Err      error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("track access for memory %s: %v", e.MemoryID, e.Err)
}

func (e *AccessError) Unwrap() error { return e.Err }

// AccessTracker records memory reads on a background worker. Track never
// blocks: when the queue is full the id is dropped and counted.
type AccessTracker struct {
	store   AccessRecorder
	logger  *zap.Logger
	timeout time.Duration

	queue   chan string
	errs    chan error
	done    chan struct{}
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// NewAccessTracker starts a tracker with a queue of queueSize ids.
func NewAccessTracker(store AccessRecorder, logger *zap.Logger, queueSize int) *AccessTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	t := &AccessTracker{
		store:   store,
		logger:  logger,
		timeout: 5 * time.Second,
		queue:   make(chan string, queueSize),
		errs:    make(chan error, 16),
		done:    make(chan struct{}),
	}
	go t.run()
	return t
}

// Track enqueues an access for id. It reports whether the id was queued.
func (t *AccessTracker) Track(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		t.dropped.Add(1)
		return false
	}
	select {
	case t.queue <- id:
		return true
	default:
		t.dropped.Add(1)
		return false
	}
}

// Errors returns failed updates. The channel is closed after Close drains the
// queue. Errors that arrive while the channel is full are logged and discarded.
func (t *AccessTracker) Errors() <-chan error {
	return t.errs
}

// Dropped returns the number of ids discarded because the queue was full or
// the tracker was closed.
func (t *AccessTracker) Dropped() int64 {
	return t.dropped.Load()
}

// Close stops accepting ids, drains the queue and waits for the worker.
func (t *AccessTracker) Close() {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.queue)
	}
	t.mu.Unlock()
	<-t.done
}

func (t *AccessTracker) run() {
	defer close(t.done)
	defer close(t.errs)

	for id := range t.queue {
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		err := t.store.IncrementAccess(ctx, id)
		cancel()
		if err == nil {
			continue
		}

		accessErr := &AccessError{MemoryID: id, Err: err}
		select {
		case t.errs <- accessErr:
		default:
			t.logger.Warn("access tracking failed", zap.String("memory_id", id), zap.Error(err))
		}
	}
}
