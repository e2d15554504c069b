package aggregator

import (
	"github.com/cuemby/taskpulse/pkg/log"
	"github.com/cuemby/taskpulse/pkg/metrics"
)

// SubscriptionRequest is the sum type of RPC-layer requests the
// aggregator services inline in its main loop. Implementations are
// SubscribeInstrument and SubscribeTaskDetail.
type SubscriptionRequest interface {
	isSubscriptionRequest()
}

// SubscribeInstrument registers a watcher for the all-instruments
// stream. The aggregator immediately sends it a full snapshot, then
// every subsequent publish sends only the delta.
type SubscribeInstrument struct {
	Watcher *Watcher[*InstrumentUpdate]
}

func (SubscribeInstrument) isSubscriptionRequest() {}

// SubscribeTaskDetail requests the detail stream for a single task.
// Reply receives the receive end of a fresh watcher on success, or is
// closed without a value if TaskID names no known task.
type SubscribeTaskDetail struct {
	TaskID uint64
	Buffer int
	Reply  chan<- (<-chan *TaskDetails)
}

func (SubscribeTaskDetail) isSubscriptionRequest() {}

// subscriptionManager owns the live watcher sets the aggregator
// publishes to. It is embedded in Aggregator rather than exported
// standalone, since its lifetime and locking-free access are tied
// entirely to the aggregator's single loop (see DESIGN.md).
type subscriptionManager struct {
	instruments []*Watcher[*InstrumentUpdate]
	taskDetails map[uint64][]*Watcher[*TaskDetails]
}

func newSubscriptionManager() *subscriptionManager {
	return &subscriptionManager{
		taskDetails: make(map[uint64][]*Watcher[*TaskDetails]),
	}
}

// handle services one subscription request synchronously. For
// SubscribeInstrument it hands back the current full snapshot inline so
// every new subscriber's first message is always complete. In both
// cases, a watcher is only registered for future publishes if its
// initial send actually succeeds — a watcher that is already full or
// whose receive end is already gone is dead on arrival and dropped
// rather than kept around to be pruned later.
func (sm *subscriptionManager) handle(req SubscriptionRequest, a *Aggregator) {
	switch r := req.(type) {
	case SubscribeInstrument:
		if r.Watcher.TrySend(a.fullSnapshot()) {
			sm.instruments = append(sm.instruments, r.Watcher)
		}

	case SubscribeTaskDetail:
		if !a.taskStats.Has(r.TaskID) {
			close(r.Reply)
			return
		}
		w, recv := NewWatcher[*TaskDetails](r.Buffer)
		sent := false
		if stats, ok := a.taskStats.Get(r.TaskID); ok {
			sent = w.TrySend(&TaskDetails{TaskID: r.TaskID, Stats: renderTaskStats(r.TaskID, stats)})
		}
		select {
		case r.Reply <- recv:
		default:
			// the requester is not ready to take its stream; drop it
			// rather than block the loop.
			return
		}
		if sent {
			sm.taskDetails[r.TaskID] = append(sm.taskDetails[r.TaskID], w)
		}
	}
}

// publishInstruments sends update to every live instrument watcher,
// dropping any whose queue is full or closed — the sole backpressure
// mechanism toward slow subscribers.
func (sm *subscriptionManager) publishInstruments(update *InstrumentUpdate) {
	live := sm.instruments[:0]
	for _, w := range sm.instruments {
		if w.TrySend(update) {
			live = append(live, w)
			continue
		}
		metrics.WatcherDropsTotal.WithLabelValues("instruments").Inc()
		log.WithWatcherID(w.ID().String()).Warn().Msg("aggregator: dropping instrument watcher, queue full or closed")
	}
	sm.instruments = live
}

// publishTaskDetail sends the task's current details to every watcher of
// a single task's detail stream, pruning dropped watchers the same way.
func (sm *subscriptionManager) publishTaskDetail(taskID uint64, detail *TaskDetails) {
	watchers, ok := sm.taskDetails[taskID]
	if !ok {
		return
	}
	live := watchers[:0]
	for _, w := range watchers {
		if w.TrySend(detail) {
			live = append(live, w)
			continue
		}
		metrics.WatcherDropsTotal.WithLabelValues("task_detail").Inc()
		log.WithWatcherID(w.ID().String()).Warn().Uint64("task_id", taskID).
			Msg("aggregator: dropping task detail watcher, queue full or closed")
	}
	if len(live) == 0 {
		delete(sm.taskDetails, taskID)
	} else {
		sm.taskDetails[taskID] = live
	}
}

// forgetTask drops every detail watcher for a task retention has just
// evicted; a closed task's subscribers have already seen its final
// state and the channel is simply left to be garbage collected once the
// receiver drains it.
func (sm *subscriptionManager) forgetTask(taskID uint64) {
	delete(sm.taskDetails, taskID)
}

// hasTaskDetailWatchers reports whether taskID currently has at least
// one live detail subscriber; publish uses this to skip rendering a
// detail update for tasks nobody is watching.
func (sm *subscriptionManager) hasTaskDetailWatchers(taskID uint64) bool {
	return len(sm.taskDetails[taskID]) > 0
}
