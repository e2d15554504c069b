package events

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/cuemby/taskpulse/pkg/aggregator"
)

// Recorder is a synthetic workload generator: it fabricates a plausible
// stream of task/resource lifecycle events and feeds them to an
// aggregator, standing in for the instrumented async runtime a real
// deployment would attach to. It exists purely for local demos and the
// `--simulate` flag; production wiring replaces it with a real event
// source.
//
// It runs in its own goroutine with a ticker-driven, non-blocking-send
// loop, the same shape watcher.go's Watcher uses for fan-out — here
// turned into a single producer instead of a many-subscriber broadcast.
type Recorder struct {
	out           chan<- aggregator.Event
	rng           *rand.Rand
	nextID        uint64
	rate          int64 // time.Duration, accessed atomically; live-reloadable via SetRate
	flush         *aggregator.FlushSignal
	highWaterFrac float64
	taskMeta      *aggregator.Metadata
	resMeta       *aggregator.Metadata
	opMeta        *aggregator.Metadata
}

// NewRecorder constructs a Recorder that writes synthetic events to out.
// seed controls the fabricated workload's reproducibility; pass
// time.Now().UnixNano() for a fresh sequence each run.
func NewRecorder(out chan<- aggregator.Event, seed int64) *Recorder {
	return &Recorder{
		out:           out,
		rng:           rand.New(rand.NewSource(seed)),
		highWaterFrac: 0.8,
		taskMeta:      &aggregator.Metadata{Name: "demo_task", Target: "taskpulse::demo", Level: "trace"},
		resMeta:       &aggregator.Metadata{Name: "demo_semaphore", Target: "taskpulse::demo", Level: "trace"},
		opMeta:        &aggregator.Metadata{Name: "poll", Target: "taskpulse::demo", Level: "trace"},
	}
}

// SetFlushSignal arms the recorder to call Trigger on flush once the
// outbound channel's occupancy crosses frac of its capacity, mirroring
// the high-water-mark behavior a real instrumented producer is expected
// to follow rather than waiting for the aggregator's own publish tick.
func (r *Recorder) SetFlushSignal(flush *aggregator.FlushSignal, frac float64) {
	r.flush = flush
	r.highWaterFrac = frac
}

// SetRate changes the tick interval Run polls at, taking effect within
// one tick. It is safe to call from another goroutine, e.g. a config
// file watcher reacting to an fsnotify event.
func (r *Recorder) SetRate(rate time.Duration) {
	atomic.StoreInt64(&r.rate, int64(rate))
}

// Run fabricates events at roughly the given initial rate until ctx is
// canceled. It registers its metadata once, then spawns, polls, and
// eventually closes a rotating set of tasks and one shared resource. The
// rate can be changed live via SetRate.
func (r *Recorder) Run(ctx context.Context, rate time.Duration) error {
	atomic.StoreInt64(&r.rate, int64(rate))
	r.emit(aggregator.MetadataEvent{Metadata: r.taskMeta})
	r.emit(aggregator.MetadataEvent{Metadata: r.resMeta})
	r.emit(aggregator.MetadataEvent{Metadata: r.opMeta})

	resourceID := r.id()
	r.emit(aggregator.ResourceEvent{
		ID: resourceID, Metadata: r.resMeta, Kind: "Sync", ConcreteType: "Semaphore", At: time.Now(),
	})
	r.emit(aggregator.ResourceOpEvent{
		Metadata: r.opMeta, At: time.Now(), ResourceID: resourceID, OpName: "new",
		OpType: aggregator.StateUpdateOp{Updates: []aggregator.AttributeUpdate{
			{Name: "permits", Value: aggregator.NumericUpdate{Val: 10, Op: aggregator.AttrOpAdd, Unit: "permits"}},
		}},
	})

	ticker := time.NewTicker(rate)
	defer ticker.Stop()

	live := make([]uint64, 0, 8)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if current := time.Duration(atomic.LoadInt64(&r.rate)); current != rate && current > 0 {
				rate = current
				ticker.Reset(rate)
			}
			if len(live) < 8 && r.rng.Intn(3) != 0 {
				live = append(live, r.spawnTask())
				continue
			}
			if len(live) == 0 {
				continue
			}
			i := r.rng.Intn(len(live))
			id := live[i]
			r.pollTask(id, resourceID)
			if r.rng.Intn(4) == 0 {
				r.emit(aggregator.CloseEvent{ID: id, At: time.Now()})
				live[i] = live[len(live)-1]
				live = live[:len(live)-1]
			}
		}
	}
}

func (r *Recorder) spawnTask() uint64 {
	id := r.id()
	at := time.Now()
	r.emit(aggregator.SpawnEvent{
		ID: id, Metadata: r.taskMeta, At: at,
		Fields: []aggregator.Field{{Name: "kind", Value: fmt.Sprintf("worker-%d", id%4)}},
	})
	return id
}

func (r *Recorder) pollTask(taskID, resourceID uint64) {
	at := time.Now()
	r.emit(aggregator.EnterEvent{ID: taskID, At: at})
	r.emit(aggregator.WakerEvent{ID: taskID, Op: aggregator.WakeOpClone, At: at})

	work := time.Duration(r.rng.Intn(5000)) * time.Microsecond
	r.emit(aggregator.ResourceOpEvent{
		Metadata: r.opMeta, At: at, ResourceID: resourceID, OpName: "poll",
		OpType: aggregator.PollOp{AsyncOpID: taskID, TaskID: taskID, Readiness: aggregator.ReadinessReady},
	})
	r.emit(aggregator.WakerEvent{ID: taskID, Op: aggregator.WakeOpWake, At: at.Add(work)})
	r.emit(aggregator.ExitEvent{ID: taskID, At: at.Add(work)})
}

func (r *Recorder) emit(ev aggregator.Event) {
	select {
	case r.out <- ev:
		if r.flush != nil && cap(r.out) > 0 && float64(len(r.out))/float64(cap(r.out)) >= r.highWaterFrac {
			r.flush.Trigger()
		}
	default:
		// the aggregator's inbound buffer is full; dropping a synthetic
		// event here only thins a demo workload, never real production
		// data, so there is nothing further to do.
	}
}

func (r *Recorder) id() uint64 {
	return atomic.AddUint64(&r.nextID, 1)
}
