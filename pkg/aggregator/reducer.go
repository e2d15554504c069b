package aggregator

import (
	"time"
	"unsafe"
)

// reduce applies a single event to the aggregator's entity tables, the
// one pure state-transition function the rest of the package drives.
//
// reduce returns a non-nil *FatalError only for a producer-contract
// violation; every other malformed-input case (Exit without a matching
// Enter, a waker event for a task that no longer exists, ...) is
// tolerated silently.
func (a *Aggregator) reduce(ev Event) *FatalError {
	switch e := ev.(type) {
	case MetadataEvent:
		a.allMetadata = append(a.allMetadata, e.Metadata)
		a.newMetadata = append(a.newMetadata, e.Metadata)

	case SpawnEvent:
		a.tasks.Insert(e.ID, Task{ID: e.ID, Metadata: e.Metadata, Fields: e.Fields})
		stats := NewTaskStats()
		stats.CreatedAt = e.At
		a.taskStats.Insert(e.ID, stats)

	case EnterEvent:
		reduceTaskEnter(a.taskStats, e.ID, e.At)
		reduceAsyncOpEnter(a.asyncOpStats, e.ID, e.At)

	case ExitEvent:
		reduceTaskExit(a.taskStats, e.ID, e.At)
		reduceAsyncOpExit(a.asyncOpStats, e.ID, e.At)

	case CloseEvent:
		if h, ok := a.taskStats.Update(e.ID); ok {
			h.Value().ClosedAt = e.At
			h.Release()
		}
		if h, ok := a.resourceStats.Update(e.ID); ok {
			h.Value().ClosedAt = e.At
			h.Release()
		}
		if h, ok := a.asyncOpStats.Update(e.ID); ok {
			h.Value().ClosedAt = e.At
			h.Release()
		}

	case WakerEvent:
		reduceWaker(a.taskStats, e)

	case ResourceEvent:
		a.resources.Insert(e.ID, Resource{ID: e.ID, Metadata: e.Metadata, Kind: e.Kind, ConcreteType: e.ConcreteType})
		stats := NewResourceStats()
		stats.CreatedAt = e.At
		a.resourceStats.Insert(e.ID, stats)

	case ResourceOpEvent:
		if fatal := a.reduceResourceOp(e); fatal != nil {
			return fatal
		}

	case AsyncResourceOpEvent:
		a.asyncOps.Insert(e.ID, AsyncOp{ID: e.ID, Metadata: e.Metadata, Source: e.Source})
		stats := NewAsyncOpStats()
		stats.CreatedAt = e.At
		a.asyncOpStats.Insert(e.ID, stats)
	}
	return nil
}

// reduceTaskEnter and reduceAsyncOpEnter apply Enter semantics to
// whichever stats table has id: current_polls increments
// unconditionally; the outermost transition (0->1) starts a new poll
// interval and counts it. They are duplicated rather than shared behind
// a generic helper because Go generic constraints can't express "has a
// *PollStats field" across distinct struct types without per-type
// pointer-receiver methods, which would cost more than the duplication.
func reduceTaskEnter(table *Table[TaskStats], id uint64, at time.Time) {
	h, ok := table.Update(id)
	if !ok {
		return
	}
	defer h.Release()
	enterPoll(&h.Value().Poll, at)
}

func reduceAsyncOpEnter(table *Table[AsyncOpStats], id uint64, at time.Time) {
	h, ok := table.Update(id)
	if !ok {
		return
	}
	defer h.Release()
	enterPoll(&h.Value().Poll, at)
}

func enterPoll(p *PollStats, at time.Time) {
	if p.CurrentPolls == 0 {
		p.LastPollStarted = at
		if p.FirstPoll.IsZero() {
			p.FirstPoll = at
		}
		p.Polls++
	}
	p.CurrentPolls++
}

// reduceTaskExit applies Exit semantics to a task's stats, additionally
// recording the outermost poll's duration into its histogram.
func reduceTaskExit(table *Table[TaskStats], id uint64, at time.Time) {
	h, ok := table.Update(id)
	if !ok {
		return
	}
	defer h.Release()
	stats := h.Value()
	stats.Poll.CurrentPolls--
	if stats.Poll.CurrentPolls != 0 {
		return
	}
	if stats.Poll.LastPollStarted.IsZero() {
		// malformed Enter/Exit sequence: leave fields untouched.
		return
	}
	elapsed := saturatingSub(at, stats.Poll.LastPollStarted)
	stats.Poll.LastPollEnded = at
	stats.Poll.BusyTime += elapsed
	stats.PollTimesHistogram.Record(clampNanos(elapsed))
}

// reduceAsyncOpExit is the async-op analogue of reduceTaskExit, without a
// histogram; only tasks carry a poll-time histogram.
func reduceAsyncOpExit(table *Table[AsyncOpStats], id uint64, at time.Time) {
	h, ok := table.Update(id)
	if !ok {
		return
	}
	defer h.Release()
	stats := h.Value()
	stats.Poll.CurrentPolls--
	if stats.Poll.CurrentPolls != 0 {
		return
	}
	if stats.Poll.LastPollStarted.IsZero() {
		return
	}
	elapsed := saturatingSub(at, stats.Poll.LastPollStarted)
	stats.Poll.LastPollEnded = at
	stats.Poll.BusyTime += elapsed
}

// reduceWaker applies waker-lifecycle accounting. Wakers may outlive their
// task; such events are discarded rather than resurrecting a closed row.
func reduceWaker(table *Table[TaskStats], e WakerEvent) {
	h, ok := table.Update(e.ID)
	if !ok {
		return
	}
	defer h.Release()
	stats := h.Value()
	switch e.Op {
	case WakeOpWake:
		stats.Wakes++
		stats.LastWake = e.At
		// Waking by value consumes the waker without invoking drop, so we
		// count a drop explicitly to keep clones-drops equal to the live
		// waker count.
		stats.WakerDrops++
	case WakeOpWakeByRef:
		stats.Wakes++
		stats.LastWake = e.At
	case WakeOpClone:
		stats.WakerClones++
	case WakeOpDrop:
		stats.WakerDrops++
	}
}

// reduceResourceOp applies a ResourceOp event: either a batch of attribute
// updates against the resource's stats, or an observed poll of an async
// op. In both cases a resource-op row is recorded, keyed by the address
// of its metadata descriptor — repeat invocations at one call site
// collapse into one row, a known call-site-keying limitation.
func (a *Aggregator) reduceResourceOp(e ResourceOpEvent) *FatalError {
	switch op := e.OpType.(type) {
	case StateUpdateOp:
		if h, ok := a.resourceStats.Update(e.ResourceID); ok {
			defer h.Release()
			stats := h.Value()
			for _, upd := range op.Updates {
				existing, has := stats.Attributes[upd.Name]
				if !has {
					stats.Attributes[upd.Name] = newAttrFromUpdate(upd.Value)
					continue
				}
				updated, err := applyAttrUpdate(existing, upd.Value)
				if err != nil {
					return newAttrTypeMismatchError(e.ResourceID, upd.Name, existing, attrValueOfUpdate(upd.Value))
				}
				stats.Attributes[upd.Name] = updated
			}
		}

	case PollOp:
		h := a.asyncOpStats.UpdateOrDefault(op.AsyncOpID, NewAsyncOpStats)
		defer h.Release()
		stats := h.Value()
		stats.Poll.Polls++
		stats.LatestPollOp = e.Metadata
		if stats.TaskID == nil {
			taskID := op.TaskID
			stats.TaskID = &taskID
		}
		if stats.ResourceID == nil {
			resourceID := e.ResourceID
			stats.ResourceID = &resourceID
		}
		if op.Readiness == ReadinessPending && stats.Poll.FirstPoll.IsZero() {
			stats.Poll.FirstPoll = e.At
		}
	}

	id := metadataAddr(e.Metadata)
	a.resourceOps.Insert(id, ResourceOp{
		ID:         id,
		Metadata:   e.Metadata,
		ResourceID: e.ResourceID,
		OpName:     e.OpName,
		OpType:     e.OpType,
	})
	return nil
}

// saturatingSub returns a-b clamped to zero, guarding against an Exit
// timestamp that (due to producer clock skew) precedes its Enter.
func saturatingSub(a, b time.Time) time.Duration {
	if a.Before(b) {
		return 0
	}
	return a.Sub(b)
}

// clampNanos converts a duration to the unsigned nanosecond count the
// histogram records, clamping away the impossible negative case.
func clampNanos(d time.Duration) uint64 {
	if d < 0 {
		return 0
	}
	return uint64(d.Nanoseconds())
}

// metadataAddr reinterprets the address of a Metadata descriptor as a
// stable per-call-site id.
func metadataAddr(m *Metadata) uint64 {
	return uint64(uintptr(unsafe.Pointer(m)))
}

func newAttrFromUpdate(u AttrUpdateValue) AttrValue {
	switch v := u.(type) {
	case TextUpdate:
		return TextAttr(v.Value)
	case NumericUpdate:
		return NumericAttr{Val: v.Val, Unit: v.Unit}
	default:
		return nil
	}
}

func attrValueOfUpdate(u AttrUpdateValue) AttrValue {
	return newAttrFromUpdate(u)
}

// applyAttrUpdate applies upd to existing in place, returning an error if
// the update's kind doesn't match the attribute's established kind:
// a numeric attribute stays numeric, a text attribute stays text.
func applyAttrUpdate(existing AttrValue, upd AttrUpdateValue) (AttrValue, error) {
	switch cur := existing.(type) {
	case TextAttr:
		tv, ok := upd.(TextUpdate)
		if !ok {
			return nil, errAttrKindMismatch
		}
		return TextAttr(tv.Value), nil
	case NumericAttr:
		nv, ok := upd.(NumericUpdate)
		if !ok {
			return nil, errAttrKindMismatch
		}
		val := cur.Val
		switch nv.Op {
		case AttrOpAdd:
			val += nv.Val
		case AttrOpSub:
			val -= nv.Val
		case AttrOpOvr:
			val = nv.Val
		}
		return NumericAttr{Val: val, Unit: nv.Unit}, nil
	default:
		return newAttrFromUpdate(upd), nil
	}
}
