package aggregator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFlushSignalTriggerWakes(t *testing.T) {
	f := NewFlushSignal()

	f.Trigger()

	select {
	case <-f.C():
	case <-time.After(time.Second):
		t.Fatal("Trigger did not wake the signal")
	}
}

func TestFlushSignalCoalescesTriggers(t *testing.T) {
	f := NewFlushSignal()

	f.Trigger()
	f.Trigger()
	f.Trigger()

	select {
	case <-f.C():
	case <-time.After(time.Second):
		t.Fatal("expected a wake")
	}

	// a second wake must not be pending: three triggers collapsed to one.
	select {
	case <-f.C():
		t.Fatal("unexpected second wake from coalesced triggers")
	default:
	}
}

func TestFlushSignalRearmsAfterClear(t *testing.T) {
	f := NewFlushSignal()

	f.Trigger()
	<-f.C()
	f.clear()

	f.Trigger()
	select {
	case <-f.C():
	case <-time.After(time.Second):
		t.Fatal("signal did not rearm after clear")
	}
}

func TestFlushSignalTriggerBeforeClearIsNoop(t *testing.T) {
	f := NewFlushSignal()
	f.Trigger()
	<-f.C()

	// triggered is still true until clear() runs; a second Trigger before
	// clear must not queue a spurious extra wake.
	f.Trigger()
	select {
	case <-f.C():
		t.Fatal("Trigger before clear should not requeue a wake")
	default:
	}
	assert.True(t, true)
}
