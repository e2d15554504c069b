package events

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/taskpulse/pkg/aggregator"
	"github.com/stretchr/testify/assert"
)

func TestRecorderRunEmitsEventsUntilCanceled(t *testing.T) {
	out := make(chan aggregator.Event, 256)
	rec := NewRecorder(out, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := rec.Run(ctx, time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotEmpty(t, out, "Run should have produced at least the initial metadata/resource events")
}

func TestRecorderEmitDoesNotBlockOnFullChannel(t *testing.T) {
	out := make(chan aggregator.Event) // unbuffered, no reader
	rec := NewRecorder(out, 1)

	done := make(chan struct{})
	go func() {
		rec.emit(aggregator.SpawnEvent{ID: 1})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked on a full/unread channel instead of dropping")
	}
}

func TestRecorderEmitTriggersFlushAtHighWaterMark(t *testing.T) {
	out := make(chan aggregator.Event, 4)
	rec := NewRecorder(out, 1)
	flush := aggregator.NewFlushSignal()
	rec.SetFlushSignal(flush, 0.5)

	rec.emit(aggregator.SpawnEvent{ID: 1})
	select {
	case <-flush.C():
		t.Fatal("flush should not trigger below the high-water mark")
	default:
	}

	rec.emit(aggregator.SpawnEvent{ID: 2})
	select {
	case <-flush.C():
	case <-time.After(time.Second):
		t.Fatal("flush should trigger once occupancy crosses the high-water mark")
	}
}
