package aggregator

import "time"

// The Wire* types below are the external-facing shapes rendered by
// Snapshot for delivery to subscribers. They deliberately mirror the
// internal model rather than reusing it directly: the wire schema is a
// stable external contract the core renders into, not the in-memory
// representation it computes over. A real deployment would generate
// these from a schema definition (e.g. protobuf); they are kept as plain
// Go structs here rather than fabricating generated code for a schema
// with no fixed external definition yet.

// WireMetadata is the wire rendering of a Metadata descriptor.
type WireMetadata struct {
	ID     MetadataID
	Name   string
	Target string
	Fields []string
	Level  string
}

func renderMetadata(m *Metadata) *WireMetadata {
	if m == nil {
		return nil
	}
	return &WireMetadata{ID: m.ID, Name: m.Name, Target: m.Target, Fields: m.Fields, Level: m.Level}
}

// WireTask is the wire rendering of a Task's identity fields.
type WireTask struct {
	ID       uint64
	Metadata *WireMetadata
	Fields   []Field
}

// WirePollStats is the wire rendering of PollStats.
type WirePollStats struct {
	CurrentPolls    int64
	Polls           uint64
	FirstPoll       time.Time
	LastPollStarted time.Time
	LastPollEnded   time.Time
	BusyTime        time.Duration
}

func renderPollStats(p PollStats) WirePollStats {
	return WirePollStats{
		CurrentPolls:    p.CurrentPolls,
		Polls:           p.Polls,
		FirstPoll:       p.FirstPoll,
		LastPollStarted: p.LastPollStarted,
		LastPollEnded:   p.LastPollEnded,
		BusyTime:        p.BusyTime,
	}
}

// WireTaskStats is the wire rendering of a TaskStats row. The histogram
// is carried pre-serialized so a subscriber can reconstruct percentiles
// without linking the histogram library itself.
type WireTaskStats struct {
	CreatedAt          time.Time
	ClosedAt           time.Time
	Wakes              uint64
	WakerClones        uint64
	WakerDrops         uint64
	LastWake           time.Time
	Poll               WirePollStats
	PollTimesHistogram []byte
}

func renderTaskStats(id uint64, s *TaskStats) WireTaskStats {
	hist, _ := s.PollTimesHistogram.Serialize()
	return WireTaskStats{
		CreatedAt:          s.CreatedAt,
		ClosedAt:           s.ClosedAt,
		Wakes:              s.Wakes,
		WakerClones:        s.WakerClones,
		WakerDrops:         s.WakerDrops,
		LastWake:           s.LastWake,
		Poll:               renderPollStats(s.Poll),
		PollTimesHistogram: hist,
	}
}

// WireResource is the wire rendering of a Resource's identity fields.
type WireResource struct {
	ID           uint64
	Metadata     *WireMetadata
	ConcreteType string
	Kind         string
}

// WireAttrValue is the wire rendering of an AttrValue; exactly one of
// Text or Numeric is set (Numeric via NumericSet), matching the
// option-of-union shape a generated schema would use.
type WireAttrValue struct {
	Text       *string
	NumericSet bool
	Numeric    uint64
	Unit       string
}

func renderAttrValue(v AttrValue) WireAttrValue {
	switch a := v.(type) {
	case TextAttr:
		s := string(a)
		return WireAttrValue{Text: &s}
	case NumericAttr:
		return WireAttrValue{NumericSet: true, Numeric: a.Val, Unit: a.Unit}
	default:
		return WireAttrValue{}
	}
}

// WireResourceStats is the wire rendering of a ResourceStats row.
type WireResourceStats struct {
	CreatedAt  time.Time
	ClosedAt   time.Time
	Attributes map[string]WireAttrValue
}

func renderResourceStats(id uint64, s *ResourceStats) WireResourceStats {
	attrs := make(map[string]WireAttrValue, len(s.Attributes))
	for name, v := range s.Attributes {
		attrs[name] = renderAttrValue(v)
	}
	return WireResourceStats{CreatedAt: s.CreatedAt, ClosedAt: s.ClosedAt, Attributes: attrs}
}

// WireAsyncOp is the wire rendering of an AsyncOp's identity fields.
type WireAsyncOp struct {
	ID       uint64
	Metadata *WireMetadata
	Source   string
}

// WireAsyncOpStats is the wire rendering of an AsyncOpStats row.
type WireAsyncOpStats struct {
	CreatedAt    time.Time
	ClosedAt     time.Time
	Poll         WirePollStats
	LatestPollOp *WireMetadata
	ResourceID   *uint64
	TaskID       *uint64
}

func renderAsyncOpStats(id uint64, s *AsyncOpStats) WireAsyncOpStats {
	return WireAsyncOpStats{
		CreatedAt:    s.CreatedAt,
		ClosedAt:     s.ClosedAt,
		Poll:         renderPollStats(s.Poll),
		LatestPollOp: renderMetadata(s.LatestPollOp),
		ResourceID:   s.ResourceID,
		TaskID:       s.TaskID,
	}
}

// WireResourceOp is the wire rendering of a ResourceOp row.
type WireResourceOp struct {
	ID         uint64
	Metadata   *WireMetadata
	ResourceID uint64
	OpName     string
	OpType     OpType
}

func renderResourceOp(id uint64, r *ResourceOp) WireResourceOp {
	return WireResourceOp{
		ID:         id,
		Metadata:   renderMetadata(r.Metadata),
		ResourceID: r.ResourceID,
		OpName:     r.OpName,
		OpType:     r.OpType,
	}
}

// InstrumentUpdate is one periodic publish to every
// subscriber of the "all instruments" stream: the dirty delta for every
// entity table since the previous publish, plus any newly registered
// metadata. The first publish a subscriber receives is always a full
// snapshot (updatedOnly=false); every publish after is a delta — see
// aggregator.go's publish.
type InstrumentUpdate struct {
	NewMetadata   []*WireMetadata
	Tasks         map[uint64]WireTask
	TaskStats     map[uint64]WireTaskStats
	Resources     map[uint64]WireResource
	ResourceStats map[uint64]WireResourceStats
	AsyncOps      map[uint64]WireAsyncOp
	AsyncOpStats  map[uint64]WireAsyncOpStats
	ResourceOps   map[uint64]WireResourceOp
}

// TaskDetails is the message stream sent to a subscriber of a single
// task's full detail view: an initial full TaskStats, then the task's
// current TaskStats again on every publish tick, whether or not the row
// changed, until the task's row is evicted.
type TaskDetails struct {
	TaskID uint64
	Stats  WireTaskStats
}
