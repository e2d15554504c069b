package aggregator

import "sync/atomic"

// FlushSignal is a level-triggered, edge-coalesced wake primitive:
// producers call Trigger when their outbound event buffer approaches
// capacity, and the aggregator drains state (without publishing) the
// next time it observes the wake. An atomic compare-and-swap guards the
// false→true transition, and a size-1 channel is the wake itself.
// Multiple concurrent triggers collapse into a single wake.
type FlushSignal struct {
	triggered atomic.Bool
	wake      chan struct{}
}

// NewFlushSignal constructs an un-triggered signal.
func NewFlushSignal() *FlushSignal {
	return &FlushSignal{wake: make(chan struct{}, 1)}
}

// Trigger requests an early drain. It is safe to call from any number of
// producer goroutines concurrently.
func (f *FlushSignal) Trigger() {
	if f.triggered.CompareAndSwap(false, true) {
		select {
		case f.wake <- struct{}{}:
		default:
			// already a pending wake; nothing more to do.
		}
	}
}

// C returns the channel the aggregator selects on to observe a trigger.
func (f *FlushSignal) C() <-chan struct{} {
	return f.wake
}

// clear rearms the signal immediately after the aggregator observes a
// wake, so a subsequent Trigger is not lost.
func (f *FlushSignal) clear() {
	f.triggered.Store(false)
}
