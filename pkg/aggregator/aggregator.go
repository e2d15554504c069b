package aggregator

import (
	"context"
	"time"

	"github.com/cuemby/taskpulse/pkg/log"
	"github.com/cuemby/taskpulse/pkg/metrics"
)

// Config tunes the aggregator's periodic behavior.
type Config struct {
	// PublishInterval is how often a publish cycle runs. A flush drains
	// events early but neither publishes nor resets this interval.
	PublishInterval time.Duration
	// Retention is the longest a closed entity's stats survive before
	// eviction, whether or not any watcher is connected.
	Retention time.Duration
}

// DefaultConfig publishes once a second and retains closed entities for
// six seconds.
func DefaultConfig() Config {
	return Config{
		PublishInterval: time.Second,
		Retention:       6 * time.Second,
	}
}

// Aggregator is the single-writer state machine described in the package
// docs. It must be driven by exactly one goroutine (Run); every other
// goroutine interacts with it only through the events/rpcs channels and
// the watchers it hands back.
type Aggregator struct {
	events <-chan Event
	rpcs   <-chan SubscriptionRequest
	flush  *FlushSignal

	cfg       Config
	retention time.Duration

	tasks         *Table[Task]
	taskStats     *Table[TaskStats]
	resources     *Table[Resource]
	resourceStats *Table[ResourceStats]
	asyncOps      *Table[AsyncOp]
	asyncOpStats  *Table[AsyncOpStats]
	resourceOps   *Table[ResourceOp]

	allMetadata []*Metadata
	newMetadata []*Metadata

	subs *subscriptionManager
}

// New constructs an Aggregator reading events from events and servicing
// subscription requests from rpcs. Both channels are owned by the
// caller; Run returns (with ErrEventsClosed or ErrRPCsClosed) once either
// is closed.
func New(events <-chan Event, rpcs <-chan SubscriptionRequest, cfg Config) *Aggregator {
	return &Aggregator{
		events:        events,
		rpcs:          rpcs,
		flush:         NewFlushSignal(),
		cfg:           cfg,
		retention:     cfg.Retention,
		tasks:         NewTable[Task](),
		taskStats:     NewTable[TaskStats](),
		resources:     NewTable[Resource](),
		resourceStats: NewTable[ResourceStats](),
		asyncOps:      NewTable[AsyncOp](),
		asyncOpStats:  NewTable[AsyncOpStats](),
		resourceOps:   NewTable[ResourceOp](),
		subs:          newSubscriptionManager(),
	}
}

// Flush returns the signal producers use to request an early, out-of-
// band drain (e.g. because their event buffer is nearly full). Calling
// Trigger on it does not itself cause a publish — see Run.
func (a *Aggregator) Flush() *FlushSignal {
	return a.flush
}

// Run drives the aggregator until ctx is canceled or either input
// channel closes. It implements the single select loop described in the
// package docs: a publish tick, a flush wake, and subscription arrival
// are the three wake sources; after each wake, every already-buffered
// event is drained without suspending, so the loop never waits on the
// event channel itself.
func (a *Aggregator) Run(ctx context.Context) error {
	logger := log.WithComponent("aggregator")
	logger.Info().Dur("publish_interval", a.cfg.PublishInterval).Dur("retention", a.retention).Msg("aggregator: run loop starting")
	ticker := time.NewTicker(a.cfg.PublishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("aggregator: run loop stopping, context canceled")
			return ctx.Err()

		case req, ok := <-a.rpcs:
			if !ok {
				logger.Info().Msg("aggregator: run loop stopping, subscription channel closed")
				return ErrRPCsClosed
			}
			a.subs.handle(req, a)
			if err := a.drainBuffered(); err != nil {
				return err
			}

		case <-a.flush.C():
			a.flush.clear()
			if err := a.drainBuffered(); err != nil {
				return err
			}

		case <-ticker.C:
			if err := a.drainBuffered(); err != nil {
				return err
			}
			a.publish()
		}

		// Retention runs at the end of every loop iteration, regardless of
		// which wake source fired: a row that becomes evictable right
		// after a flush-triggered drain or a new subscription must not
		// wait for the next publish tick.
		a.retentionSweep(time.Now())
		a.sampleMetrics()
	}
}

// logFatal records a producer-contract violation both as a metric and as
// an error-level log line scoped to the offending resource, before Run
// returns it to the caller.
func (a *Aggregator) logFatal(fatal *FatalError) {
	metrics.FatalErrorsTotal.Inc()
	log.WithResourceID(fatal.ResourceID).Error().Err(fatal).
		Str("attribute", fatal.AttributeName).Msg("aggregator: aborting on fatal error")
}

// drainOne reduces a single already-received event, recording its kind
// in the event-processed counter.
func (a *Aggregator) drainOne(ev Event) *FatalError {
	metrics.EventQueueDepth.Set(float64(len(a.events)))
	metrics.EventsProcessedTotal.WithLabelValues(eventKind(ev)).Inc()
	return a.reduce(ev)
}

// drainBuffered opportunistically reduces every event currently sitting
// in the channel buffer without blocking, so a flush or publish tick
// always observes the freshest possible state. It stops the instant the
// channel would block, rather than waiting for more events to arrive.
func (a *Aggregator) drainBuffered() error {
	for {
		select {
		case ev, ok := <-a.events:
			if !ok {
				return ErrEventsClosed
			}
			if fatal := a.drainOne(ev); fatal != nil {
				a.logFatal(fatal)
				return fatal
			}
		default:
			return nil
		}
	}
}

// publish renders and sends one update cycle to every subscriber. The
// very first update any given instrument watcher receives is a full
// snapshot (sent synchronously when it subscribes, see
// subscriptions.go); every tick after that sends only rows that changed
// since the previous publish — Snapshot's updatedOnly=true path, which
// also clears the dirty bits it reads.
func (a *Aggregator) publish() {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.PublishDuration)

	update := a.deltaSnapshot()
	a.subs.publishInstruments(update)

	a.taskStats.IterAll(func(id uint64, s *TaskStats) {
		if !a.subs.hasTaskDetailWatchers(id) {
			return
		}
		a.subs.publishTaskDetail(id, &TaskDetails{TaskID: id, Stats: renderTaskStats(id, s)})
	})
}

// deltaSnapshot renders every table's dirty delta plus any metadata
// registered since the previous publish.
func (a *Aggregator) deltaSnapshot() *InstrumentUpdate {
	newMeta := make([]*WireMetadata, 0, len(a.newMetadata))
	for _, m := range a.newMetadata {
		newMeta = append(newMeta, renderMetadata(m))
	}
	a.newMetadata = a.newMetadata[:0]

	return &InstrumentUpdate{
		NewMetadata:   newMeta,
		Tasks:         Snapshot(a.tasks, true, renderTask),
		TaskStats:     Snapshot(a.taskStats, true, renderTaskStats),
		Resources:     Snapshot(a.resources, true, renderResource),
		ResourceStats: Snapshot(a.resourceStats, true, renderResourceStats),
		AsyncOps:      Snapshot(a.asyncOps, true, renderAsyncOp),
		AsyncOpStats:  Snapshot(a.asyncOpStats, true, renderAsyncOpStats),
		ResourceOps:   Snapshot(a.resourceOps, true, renderResourceOp),
	}
}

// fullSnapshot renders every row of every table, regardless of dirty
// state, for a newly-arrived subscriber's baseline update.
func (a *Aggregator) fullSnapshot() *InstrumentUpdate {
	all := make([]*WireMetadata, 0, len(a.allMetadata))
	for _, m := range a.allMetadata {
		all = append(all, renderMetadata(m))
	}

	return &InstrumentUpdate{
		NewMetadata:   all,
		Tasks:         Snapshot(a.tasks, false, renderTask),
		TaskStats:     Snapshot(a.taskStats, false, renderTaskStats),
		Resources:     Snapshot(a.resources, false, renderResource),
		ResourceStats: Snapshot(a.resourceStats, false, renderResourceStats),
		AsyncOps:      Snapshot(a.asyncOps, false, renderAsyncOp),
		AsyncOpStats:  Snapshot(a.asyncOpStats, false, renderAsyncOpStats),
		ResourceOps:   Snapshot(a.resourceOps, false, renderResourceOp),
	}
}

func renderTask(id uint64, t *Task) WireTask {
	return WireTask{ID: t.ID, Metadata: renderMetadata(t.Metadata), Fields: t.Fields}
}

func renderResource(id uint64, r *Resource) WireResource {
	return WireResource{ID: r.ID, Metadata: renderMetadata(r.Metadata), ConcreteType: r.ConcreteType, Kind: r.Kind}
}

func renderAsyncOp(id uint64, o *AsyncOp) WireAsyncOp {
	return WireAsyncOp{ID: o.ID, Metadata: renderMetadata(o.Metadata), Source: o.Source}
}

// sampleMetrics records the current size of every entity table and
// watcher set. It runs once per loop iteration rather than on every mutation,
// which is cheap enough at the aggregator's expected scale and keeps
// metrics.go decoupled from the reducer's hot path.
func (a *Aggregator) sampleMetrics() {
	metrics.EntitiesTotal.WithLabelValues("tasks").Set(float64(a.tasks.Len()))
	metrics.EntitiesTotal.WithLabelValues("task_stats").Set(float64(a.taskStats.Len()))
	metrics.EntitiesTotal.WithLabelValues("resources").Set(float64(a.resources.Len()))
	metrics.EntitiesTotal.WithLabelValues("resource_stats").Set(float64(a.resourceStats.Len()))
	metrics.EntitiesTotal.WithLabelValues("async_ops").Set(float64(a.asyncOps.Len()))
	metrics.EntitiesTotal.WithLabelValues("async_op_stats").Set(float64(a.asyncOpStats.Len()))
	metrics.EntitiesTotal.WithLabelValues("resource_ops").Set(float64(a.resourceOps.Len()))
	metrics.WatchersActive.Set(float64(len(a.subs.instruments)))

	detailWatchers := 0
	for _, ws := range a.subs.taskDetails {
		detailWatchers += len(ws)
	}
	metrics.DetailsWatchersActive.Set(float64(detailWatchers))
}

// eventKind names an Event's concrete type for the events-processed
// counter's label, without reflection.
func eventKind(ev Event) string {
	switch ev.(type) {
	case MetadataEvent:
		return "Metadata"
	case SpawnEvent:
		return "Spawn"
	case EnterEvent:
		return "Enter"
	case ExitEvent:
		return "Exit"
	case CloseEvent:
		return "Close"
	case WakerEvent:
		return "Waker"
	case ResourceEvent:
		return "Resource"
	case ResourceOpEvent:
		return "ResourceOp"
	case AsyncResourceOpEvent:
		return "AsyncResourceOp"
	default:
		return "unknown"
	}
}
