package brain

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingRecorder holds every update until release is closed.
type blockingRecorder struct {
	release chan struct{}
	mu      sync.Mutex
	ids     []string
}

func (b *blockingRecorder) IncrementAccess(ctx context.Context, id string) error {
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ids = append(b.ids, id)
	return nil
}

func TestAccessTracker_RecordsAndCloses(t *testing.T) {
	store := &fakeStore{}
	tracker := NewAccessTracker(store, nil, 4)

	assert.True(t, tracker.Track("a"))
	assert.True(t, tracker.Track("b"))
	tracker.Close()

	assert.Equal(t, []string{"a", "b"}, store.accessedIDs())
	assert.Equal(t, int64(0), tracker.Dropped())

	assert.False(t, tracker.Track("late"))
	assert.Equal(t, int64(1), tracker.Dropped())

	// Close is idempotent.
	tracker.Close()
}

func TestAccessTracker_DropsWhenFull(t *testing.T) {
	rec := &blockingRecorder{release: make(chan struct{})}
	tracker := NewAccessTracker(rec, nil, 1)

	queued := 0
	for i := 0; i < 10; i++ {
		if tracker.Track("id") {
			queued++
		}
	}
	// The worker may hold one id while one more sits in the queue.
	assert.LessOrEqual(t, queued, 2)
	assert.Equal(t, int64(10-queued), tracker.Dropped())

	close(rec.release)
	tracker.Close()
	assert.Len(t, rec.ids, queued)
}

func TestAccessTracker_ReportsErrors(t *testing.T) {
	store := &fakeStore{accessErr: errBoom}
	tracker := NewAccessTracker(store, nil, 4)

	require.True(t, tracker.Track("x"))
	tracker.Close()

	var got []error
	for err := range tracker.Errors() {
		got = append(got, err)
	}
	require.Len(t, got, 1)
	assert.ErrorIs(t, got[0], errBoom)

	var accessErr *AccessError
	require.True(t, errors.As(got[0], &accessErr))
	assert.Equal(t, "x", accessErr.MemoryID)
}
