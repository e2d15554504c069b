package aggregator

import "github.com/google/uuid"

// Watcher is a single subscriber's outbound queue. TrySend is strictly
// non-blocking: a full or closed queue reports failure and the caller is
// expected to drop the watcher, which is the aggregator's sole mechanism
// of backpressure toward clients (see subscriptions.go and retention.go).
type Watcher[T any] struct {
	id uuid.UUID
	ch chan T
}

// NewWatcher creates a watcher with the given outbound buffer size,
// returning the watcher (kept by the aggregator) and the receive end
// (kept by whatever is serving the subscriber, e.g. an RPC stream).
func NewWatcher[T any](buffer int) (*Watcher[T], <-chan T) {
	ch := make(chan T, buffer)
	return &Watcher[T]{id: uuid.New(), ch: ch}, ch
}

// ID returns a correlation id for logging; it has no protocol meaning.
func (w *Watcher[T]) ID() uuid.UUID {
	return w.id
}

// TrySend attempts one non-blocking send. It reports false if the queue
// is full or the receive end has been dropped.
func (w *Watcher[T]) TrySend(v T) (ok bool) {
	defer func() {
		// The holder of the receive-only end cannot close the channel, but
		// a watcher built over an already-closed channel would panic on
		// send rather than block, so we treat that the same as a full
		// queue: drop the watcher.
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case w.ch <- v:
		return true
	default:
		return false
	}
}
