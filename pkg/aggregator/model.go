package aggregator

import "time"

// MetadataID is an identifier carried by a Metadata descriptor and copied
// onto the wire by renderMetadata. The aggregator does not assign it: a
// descriptor keeps whatever ID it arrives with (zero if unset), and
// entities refer to their descriptor by pointer.
type MetadataID uint64

// Metadata is an immutable descriptor of a trace point's schema: its name,
// target module, declared fields, and verbosity level. Metadata is
// registered once and referenced by every entity whose Spawn/Resource/
// AsyncResourceOp/ResourceOp event named it.
type Metadata struct {
	ID     MetadataID
	Name   string
	Target string
	Fields []string
	Level  string
}

// Field is a single structured field captured at Spawn time.
type Field struct {
	Name  string
	Value string
}

// PollStats tracks re-entrant poll accounting shared by tasks and async
// operations. current_polls counts nested Enter/Exit pairs; Polls counts
// only outermost entries; BusyTime accumulates only outermost durations.
type PollStats struct {
	CurrentPolls    int64
	Polls           uint64
	FirstPoll       time.Time
	LastPollStarted time.Time
	LastPollEnded   time.Time
	BusyTime        time.Duration
}

// Task is the immutable identity of a spawned span: never mutated after
// Spawn, dropped only by retention once its stats row is gone.
type Task struct {
	ID       uint64
	Metadata *Metadata
	Fields   []Field
}

// TaskStats is the mutable statistics row paired with a Task.
type TaskStats struct {
	CreatedAt time.Time
	ClosedAt  time.Time

	Wakes       uint64
	WakerClones uint64
	WakerDrops  uint64
	LastWake    time.Time

	PollTimesHistogram *Histogram
	Poll               PollStats
}

// NewTaskStats builds a TaskStats row with a fresh 2-significant-figure
// poll duration histogram, as if default-constructed.
func NewTaskStats() TaskStats {
	return TaskStats{
		PollTimesHistogram: NewHistogram(),
	}
}

// Resource is the immutable identity of a tracked resource.
type Resource struct {
	ID           uint64
	Metadata     *Metadata
	ConcreteType string
	Kind         string
}

// AttrValue is the value half of a resource attribute: either free text or
// a typed numeric measurement with a unit. Implementations are TextAttr
// and NumericAttr; a nil AttrValue means "no value recorded yet".
type AttrValue interface {
	isAttrValue()
}

// TextAttr is a free-text attribute value.
type TextAttr string

func (TextAttr) isAttrValue() {}

// NumericAttr is a numeric attribute value carrying a unit label.
type NumericAttr struct {
	Val  uint64
	Unit string
}

func (NumericAttr) isAttrValue() {}

// ResourceStats is the mutable statistics row paired with a Resource.
type ResourceStats struct {
	CreatedAt  time.Time
	ClosedAt   time.Time
	Attributes map[string]AttrValue
}

// NewResourceStats builds an empty ResourceStats row.
func NewResourceStats() ResourceStats {
	return ResourceStats{Attributes: make(map[string]AttrValue)}
}

// AsyncOp is the immutable identity of a tracked async operation.
type AsyncOp struct {
	ID       uint64
	Metadata *Metadata
	Source   string
}

// AsyncOpStats is the mutable statistics row paired with an AsyncOp. Rows
// may be late-bound: a Poll resource-op can observe stats for an id before
// that id's own creation event has been reduced.
type AsyncOpStats struct {
	CreatedAt    time.Time
	ClosedAt     time.Time
	Poll         PollStats
	LatestPollOp *Metadata

	// ResourceID and TaskID are set only once, on first observation.
	ResourceID *uint64
	TaskID     *uint64
}

// NewAsyncOpStats builds a zero-valued AsyncOpStats row.
func NewAsyncOpStats() AsyncOpStats {
	return AsyncOpStats{}
}

// Readiness is the poll outcome recorded by a Poll resource-op.
type Readiness int

const (
	ReadinessPending Readiness = iota
	ReadinessReady
)

// AttrUpdateOp is the arithmetic applied by a numeric attribute update.
type AttrUpdateOp int

const (
	AttrOpAdd AttrUpdateOp = iota
	AttrOpSub
	AttrOpOvr
)

// AttrUpdateValue is the value carried by a single attribute update
// instruction: either an overwrite-with-text or a typed numeric op.
// Implementations are TextUpdate and NumericUpdate.
type AttrUpdateValue interface {
	isAttrUpdateValue()
}

// TextUpdate replaces an attribute with a text value.
type TextUpdate struct {
	Value string
}

func (TextUpdate) isAttrUpdateValue() {}

// NumericUpdate applies an arithmetic operation to a numeric attribute.
type NumericUpdate struct {
	Val  uint64
	Op   AttrUpdateOp
	Unit string
}

func (NumericUpdate) isAttrUpdateValue() {}

// AttributeUpdate names the attribute an update instruction targets.
type AttributeUpdate struct {
	Name  string
	Value AttrUpdateValue
}

// OpType discriminates the two shapes a ResourceOp can take.
// Implementations are StateUpdateOp and PollOp.
type OpType interface {
	isOpType()
}

// StateUpdateOp carries a batch of attribute mutations for a resource.
type StateUpdateOp struct {
	Updates []AttributeUpdate
}

func (StateUpdateOp) isOpType() {}

// PollOp records a single poll of an async operation as observed through
// a resource-op invocation (e.g. a future's poll method).
type PollOp struct {
	AsyncOpID uint64
	TaskID    uint64
	Readiness Readiness
}

func (PollOp) isOpType() {}

// ResourceOp records one operation invocation on a resource. Its ID is
// derived from the address of Metadata, per the known call-site-keying
// limitation documented in SPEC_FULL.md: repeat invocations at the same call
// site collapse into a single, latest-wins row.
type ResourceOp struct {
	ID         uint64
	Metadata   *Metadata
	ResourceID uint64
	OpName     string
	OpType     OpType
}
