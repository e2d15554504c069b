package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherTrySendSucceedsWithinCapacity(t *testing.T) {
	w, recv := NewWatcher[int](1)

	ok := w.TrySend(42)
	require.True(t, ok)

	assert.Equal(t, 42, <-recv)
}

func TestWatcherTrySendFailsWhenFull(t *testing.T) {
	w, _ := NewWatcher[int](1)

	require.True(t, w.TrySend(1))
	assert.False(t, w.TrySend(2), "second send into a full buffer-1 queue should be dropped, not block")
}

func TestWatcherTrySendFailsAfterReceiverClosed(t *testing.T) {
	w, recv := NewWatcher[int](1)
	// the receive end is receive-only and cannot be closed by its holder,
	// so a closed queue is simulated by building a watcher over a channel
	// that is already closed.
	ch := make(chan int)
	close(ch)
	w2 := &Watcher[int]{id: w.ID(), ch: ch}

	assert.False(t, w2.TrySend(1))
	_ = recv
}

func TestWatcherIDStable(t *testing.T) {
	w, _ := NewWatcher[int](1)
	id1 := w.ID()
	id2 := w.ID()
	assert.Equal(t, id1, id2)
}
