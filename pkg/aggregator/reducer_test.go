package aggregator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAggregator() *Aggregator {
	events := make(chan Event, 16)
	rpcs := make(chan SubscriptionRequest, 16)
	return New(events, rpcs, DefaultConfig())
}

func TestReduceSpawnCreatesTaskAndStats(t *testing.T) {
	a := newTestAggregator()
	meta := &Metadata{Name: "my_task"}
	at := time.Now()

	fatal := a.reduce(SpawnEvent{ID: 1, Metadata: meta, At: at, Fields: []Field{{Name: "x", Value: "1"}}})
	require.Nil(t, fatal)

	task, ok := a.tasks.Get(1)
	require.True(t, ok)
	assert.Equal(t, meta, task.Metadata)

	stats, ok := a.taskStats.Get(1)
	require.True(t, ok)
	assert.Equal(t, at, stats.CreatedAt)
	assert.NotNil(t, stats.PollTimesHistogram)
}

func TestReduceEnterExitRecordsBusyTimeAndHistogram(t *testing.T) {
	a := newTestAggregator()
	meta := &Metadata{Name: "t"}
	start := time.Now()
	require.Nil(t, a.reduce(SpawnEvent{ID: 1, Metadata: meta, At: start}))

	require.Nil(t, a.reduce(EnterEvent{ID: 1, At: start}))
	end := start.Add(50 * time.Millisecond)
	require.Nil(t, a.reduce(ExitEvent{ID: 1, At: end}))

	stats, ok := a.taskStats.Get(1)
	require.True(t, ok)
	assert.Equal(t, uint64(1), stats.Poll.Polls)
	assert.Equal(t, int64(0), stats.Poll.CurrentPolls)
	assert.Equal(t, 50*time.Millisecond, stats.Poll.BusyTime)
	assert.Equal(t, start, stats.Poll.FirstPoll)
	assert.Equal(t, int64(1), stats.PollTimesHistogram.TotalCount())
}

func TestReduceNestedEnterExitOnlyCountsOutermost(t *testing.T) {
	a := newTestAggregator()
	meta := &Metadata{Name: "t"}
	start := time.Now()
	require.Nil(t, a.reduce(SpawnEvent{ID: 1, Metadata: meta, At: start}))

	require.Nil(t, a.reduce(EnterEvent{ID: 1, At: start}))
	require.Nil(t, a.reduce(EnterEvent{ID: 1, At: start.Add(time.Millisecond)}))

	stats, _ := a.taskStats.Get(1)
	assert.Equal(t, int64(2), stats.Poll.CurrentPolls)
	assert.Equal(t, uint64(1), stats.Poll.Polls, "re-entrant Enter must not count as a second outer poll")

	require.Nil(t, a.reduce(ExitEvent{ID: 1, At: start.Add(2 * time.Millisecond)}))
	stats, _ = a.taskStats.Get(1)
	assert.Equal(t, int64(1), stats.Poll.CurrentPolls)
	assert.Equal(t, time.Duration(0), stats.Poll.BusyTime, "busy time only accrues when current_polls returns to zero")

	require.Nil(t, a.reduce(ExitEvent{ID: 1, At: start.Add(10 * time.Millisecond)}))
	stats, _ = a.taskStats.Get(1)
	assert.Equal(t, int64(0), stats.Poll.CurrentPolls)
	assert.Equal(t, 10*time.Millisecond, stats.Poll.BusyTime)
}

func TestReduceCloseSetsClosedAtOnWhicheverTableHasID(t *testing.T) {
	a := newTestAggregator()
	at := time.Now()
	require.Nil(t, a.reduce(SpawnEvent{ID: 1, Metadata: &Metadata{}, At: at}))
	require.Nil(t, a.reduce(ResourceEvent{ID: 2, Metadata: &Metadata{}, At: at}))

	closeAt := at.Add(time.Second)
	require.Nil(t, a.reduce(CloseEvent{ID: 1, At: closeAt}))
	require.Nil(t, a.reduce(CloseEvent{ID: 2, At: closeAt}))

	taskStats, _ := a.taskStats.Get(1)
	assert.Equal(t, closeAt, taskStats.ClosedAt)

	resourceStats, _ := a.resourceStats.Get(2)
	assert.Equal(t, closeAt, resourceStats.ClosedAt)
}

func TestReduceWakerSemantics(t *testing.T) {
	a := newTestAggregator()
	at := time.Now()
	require.Nil(t, a.reduce(SpawnEvent{ID: 1, Metadata: &Metadata{}, At: at}))

	require.Nil(t, a.reduce(WakerEvent{ID: 1, Op: WakeOpClone, At: at}))
	stats, _ := a.taskStats.Get(1)
	assert.Equal(t, uint64(1), stats.WakerClones)

	require.Nil(t, a.reduce(WakerEvent{ID: 1, Op: WakeOpWake, At: at}))
	stats, _ = a.taskStats.Get(1)
	assert.Equal(t, uint64(1), stats.Wakes)
	assert.Equal(t, uint64(1), stats.WakerDrops, "Wake consumes the waker by value, counting as a drop too")

	require.Nil(t, a.reduce(WakerEvent{ID: 1, Op: WakeOpWakeByRef, At: at}))
	stats, _ = a.taskStats.Get(1)
	assert.Equal(t, uint64(2), stats.Wakes)
	assert.Equal(t, uint64(1), stats.WakerDrops, "WakeByRef does not consume the waker")

	require.Nil(t, a.reduce(WakerEvent{ID: 1, Op: WakeOpDrop, At: at}))
	stats, _ = a.taskStats.Get(1)
	assert.Equal(t, uint64(2), stats.WakerDrops)
}

func TestReduceWakerForUnknownTaskIsIgnored(t *testing.T) {
	a := newTestAggregator()
	fatal := a.reduce(WakerEvent{ID: 999, Op: WakeOpWake, At: time.Now()})
	assert.Nil(t, fatal)
	assert.False(t, a.taskStats.Has(999))
}

func TestReduceResourceOpFreshAttributeIgnoresOp(t *testing.T) {
	a := newTestAggregator()
	at := time.Now()
	require.Nil(t, a.reduce(ResourceEvent{ID: 1, Metadata: &Metadata{}, At: at}))

	meta := &Metadata{Name: "poll_op"}
	fatal := a.reduce(ResourceOpEvent{
		Metadata:   meta,
		At:         at,
		ResourceID: 1,
		OpName:     "set_waker",
		OpType: StateUpdateOp{Updates: []AttributeUpdate{
			{Name: "capacity", Value: NumericUpdate{Val: 3, Op: AttrOpAdd, Unit: "permits"}},
		}},
	})
	require.Nil(t, fatal)

	stats, _ := a.resourceStats.Get(1)
	val, ok := stats.Attributes["capacity"].(NumericAttr)
	require.True(t, ok)
	assert.Equal(t, uint64(3), val.Val, "a fresh attribute takes the update's raw value regardless of op")
}

func TestReduceResourceOpAddSubOvr(t *testing.T) {
	a := newTestAggregator()
	at := time.Now()
	require.Nil(t, a.reduce(ResourceEvent{ID: 1, Metadata: &Metadata{}, At: at}))
	require.Nil(t, a.reduce(ResourceOpEvent{
		Metadata: &Metadata{Name: "init"}, At: at, ResourceID: 1, OpName: "init",
		OpType: StateUpdateOp{Updates: []AttributeUpdate{
			{Name: "permits", Value: NumericUpdate{Val: 10, Op: AttrOpAdd, Unit: "count"}},
		}},
	}))

	require.Nil(t, a.reduce(ResourceOpEvent{
		Metadata: &Metadata{Name: "acquire"}, At: at, ResourceID: 1, OpName: "acquire",
		OpType: StateUpdateOp{Updates: []AttributeUpdate{
			{Name: "permits", Value: NumericUpdate{Val: 3, Op: AttrOpSub, Unit: "count"}},
		}},
	}))
	stats, _ := a.resourceStats.Get(1)
	assert.Equal(t, uint64(7), stats.Attributes["permits"].(NumericAttr).Val)

	require.Nil(t, a.reduce(ResourceOpEvent{
		Metadata: &Metadata{Name: "reset"}, At: at, ResourceID: 1, OpName: "reset",
		OpType: StateUpdateOp{Updates: []AttributeUpdate{
			{Name: "permits", Value: NumericUpdate{Val: 0, Op: AttrOpOvr, Unit: "count"}},
		}},
	}))
	stats, _ = a.resourceStats.Get(1)
	assert.Equal(t, uint64(0), stats.Attributes["permits"].(NumericAttr).Val)
}

func TestReduceResourceOpTypeMismatchIsFatal(t *testing.T) {
	a := newTestAggregator()
	at := time.Now()
	require.Nil(t, a.reduce(ResourceEvent{ID: 1, Metadata: &Metadata{}, At: at}))
	require.Nil(t, a.reduce(ResourceOpEvent{
		Metadata: &Metadata{Name: "init"}, At: at, ResourceID: 1, OpName: "init",
		OpType: StateUpdateOp{Updates: []AttributeUpdate{
			{Name: "label", Value: TextUpdate{Value: "ready"}},
		}},
	}))

	fatal := a.reduce(ResourceOpEvent{
		Metadata: &Metadata{Name: "corrupt"}, At: at, ResourceID: 1, OpName: "corrupt",
		OpType: StateUpdateOp{Updates: []AttributeUpdate{
			{Name: "label", Value: NumericUpdate{Val: 1, Op: AttrOpAdd}},
		}},
	})
	require.NotNil(t, fatal)
	assert.Equal(t, uint64(1), fatal.ResourceID)
	assert.Equal(t, "label", fatal.AttributeName)
}

func TestReduceResourceOpPollLateBinding(t *testing.T) {
	a := newTestAggregator()
	at := time.Now()
	meta := &Metadata{Name: "poll"}

	fatal := a.reduce(ResourceOpEvent{
		Metadata: meta, At: at, ResourceID: 1, OpName: "poll",
		OpType: PollOp{AsyncOpID: 42, TaskID: 7, Readiness: ReadinessPending},
	})
	require.Nil(t, fatal)

	stats, ok := a.asyncOpStats.Get(42)
	require.True(t, ok, "PollOp must create the async-op-stats row if it doesn't exist yet")
	assert.Equal(t, uint64(1), stats.Poll.Polls)
	require.NotNil(t, stats.TaskID)
	assert.Equal(t, uint64(7), *stats.TaskID)
	require.NotNil(t, stats.ResourceID)
	assert.Equal(t, uint64(1), *stats.ResourceID)
	assert.Equal(t, at, stats.Poll.FirstPoll)

	// a second Poll must not overwrite the already-bound task/resource ids.
	fatal = a.reduce(ResourceOpEvent{
		Metadata: meta, At: at.Add(time.Second), ResourceID: 99,
		OpType: PollOp{AsyncOpID: 42, TaskID: 123, Readiness: ReadinessReady},
	})
	require.Nil(t, fatal)
	stats, _ = a.asyncOpStats.Get(42)
	assert.Equal(t, uint64(7), *stats.TaskID)
	assert.Equal(t, uint64(1), *stats.ResourceID)
	assert.Equal(t, uint64(2), stats.Poll.Polls)
}

func TestReduceResourceOpRecordsRowKeyedByMetadataAddress(t *testing.T) {
	a := newTestAggregator()
	at := time.Now()
	require.Nil(t, a.reduce(ResourceEvent{ID: 1, Metadata: &Metadata{}, At: at}))

	meta := &Metadata{Name: "call_site"}
	require.Nil(t, a.reduce(ResourceOpEvent{
		Metadata: meta, At: at, ResourceID: 1, OpName: "op",
		OpType: StateUpdateOp{},
	}))
	assert.Equal(t, 1, a.resourceOps.Len())

	// a second invocation at the same call site (same *Metadata) collapses
	// into the same row rather than accumulating.
	require.Nil(t, a.reduce(ResourceOpEvent{
		Metadata: meta, At: at.Add(time.Second), ResourceID: 1, OpName: "op",
		OpType: StateUpdateOp{},
	}))
	assert.Equal(t, 1, a.resourceOps.Len())
}

func TestReduceAsyncResourceOpCreatesAsyncOp(t *testing.T) {
	a := newTestAggregator()
	at := time.Now()
	meta := &Metadata{Name: "sleep"}
	require.Nil(t, a.reduce(AsyncResourceOpEvent{ID: 5, Source: "tokio::time::sleep", Metadata: meta, At: at}))

	op, ok := a.asyncOps.Get(5)
	require.True(t, ok)
	assert.Equal(t, "tokio::time::sleep", op.Source)

	stats, ok := a.asyncOpStats.Get(5)
	require.True(t, ok)
	assert.Equal(t, at, stats.CreatedAt)
}

func TestReduceMetadataEventAppendsToBothLists(t *testing.T) {
	a := newTestAggregator()
	meta := &Metadata{Name: "m"}
	require.Nil(t, a.reduce(MetadataEvent{Metadata: meta}))

	assert.Contains(t, a.allMetadata, meta)
	assert.Contains(t, a.newMetadata, meta)
}
