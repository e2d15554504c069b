package aggregator

import (
	"time"

	"github.com/cuemby/taskpulse/pkg/metrics"
)

// retentionSweep runs the two-phase eviction pass once per aggregator
// loop iteration: first statistics rows are pruned, then identity rows
// whose statistics are already gone are dropped. Running every iteration
// rather than on a separate timer keeps eviction latency bounded by the
// publish interval without needing a second ticker.
func (a *Aggregator) retentionSweep(now time.Time) {
	hasInstrumentWatchers := len(a.subs.instruments) > 0

	evicted := pruneStats(a.taskStats, a.retention, now, hasInstrumentWatchers)
	for _, id := range evicted {
		a.subs.forgetTask(id)
	}
	metrics.EvictionsTotal.WithLabelValues("task_stats").Add(float64(len(evicted)))
	metrics.EvictionsTotal.WithLabelValues("resource_stats").Add(float64(len(pruneStats(a.resourceStats, a.retention, now, hasInstrumentWatchers))))
	metrics.EvictionsTotal.WithLabelValues("async_op_stats").Add(float64(len(pruneStats(a.asyncOpStats, a.retention, now, hasInstrumentWatchers))))

	metrics.EvictionsTotal.WithLabelValues("tasks").Add(float64(dropOrphanIdentities(a.tasks, a.taskStats)))
	metrics.EvictionsTotal.WithLabelValues("resources").Add(float64(dropOrphanIdentities(a.resources, a.resourceStats)))
	metrics.EvictionsTotal.WithLabelValues("async_ops").Add(float64(dropOrphanIdentities(a.asyncOps, a.asyncOpStats)))

	var resourceOpsEvicted int
	for _, id := range a.resourceOps.IDs() {
		if stats, ok := a.resourceOps.Get(id); ok {
			if _, resourceLive := a.resources.Get(stats.ResourceID); !resourceLive {
				a.resourceOps.Delete(id)
				resourceOpsEvicted++
			}
		}
	}
	metrics.EvictionsTotal.WithLabelValues("resource_ops").Add(float64(resourceOpsEvicted))
}

// closedStats is satisfied by every *Stats row type; it is the minimal
// surface retention needs regardless of which table it is sweeping.
type closedStats interface {
	closedAt() time.Time
}

func (s TaskStats) closedAt() time.Time     { return s.ClosedAt }
func (s ResourceStats) closedAt() time.Time { return s.ClosedAt }
func (s AsyncOpStats) closedAt() time.Time  { return s.ClosedAt }

// pruneStats deletes every closed row in table for which either: there
// are live instrument watchers and the row is clean (its terminal state
// has already been delivered to every subscriber), or the row has simply
// been closed longer than retention allows. The second condition is
// unconditional: it fires regardless of whether the row is watched, so
// a live subscriber can never pin a row in memory forever — it only
// delays eviction until delivery or until the timeout, whichever comes
// first.
func pruneStats[T closedStats](table *Table[T], retention time.Duration, now time.Time, hasWatchers bool) []uint64 {
	var toDelete []uint64
	table.IterAll(func(id uint64, v *T) {
		closedAt := (*v).closedAt()
		if closedAt.IsZero() {
			return
		}
		clean := !table.IsDirty(id)
		timedOut := now.Sub(closedAt) > retention
		if (hasWatchers && clean) || timedOut {
			toDelete = append(toDelete, id)
		}
	})
	for _, id := range toDelete {
		table.Delete(id)
	}
	return toDelete
}

// dropOrphanIdentities deletes every row of ids whose paired stats row
// has already been pruned — the second eviction phase. Identity rows
// never survive independently of their stats: a task without a stats row
// is not observable and should not be retained.
func dropOrphanIdentities[I any, S any](ids *Table[I], stats *Table[S]) int {
	var toDelete []uint64
	ids.IterAll(func(id uint64, _ *I) {
		if !stats.Has(id) {
			toDelete = append(toDelete, id)
		}
	})
	for _, id := range toDelete {
		ids.Delete(id)
	}
	return len(toDelete)
}
