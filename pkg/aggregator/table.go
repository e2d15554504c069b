package aggregator

// entry pairs a stored value with the dirty bit tracking whether it has
// changed since the last successful publish.
type entry[T any] struct {
	value T
	dirty bool
}

// Table is a keyed collection with per-row dirty tracking: the basis of
// incremental publishing. It is not safe for concurrent use by design —
// the aggregator is single-threaded (see package docs) and no internal
// locking is needed or provided.
type Table[T any] struct {
	rows map[uint64]*entry[T]
}

// NewTable constructs an empty Table.
func NewTable[T any]() *Table[T] {
	return &Table[T]{rows: make(map[uint64]*entry[T])}
}

// Insert stores value under id, marking it dirty. Producers should not
// reuse live ids; an overwrite silently preserves forward progress
// rather than erroring.
func (t *Table[T]) Insert(id uint64, value T) {
	t.rows[id] = &entry[T]{value: value, dirty: true}
}

// Get returns a read-only view of id's row. It never marks the row dirty;
// callers must not mutate through the returned pointer.
func (t *Table[T]) Get(id uint64) (*T, bool) {
	e, ok := t.rows[id]
	if !ok {
		return nil, false
	}
	return &e.value, true
}

// Has reports whether id has a row, independent of its dirty state.
func (t *Table[T]) Has(id uint64) bool {
	_, ok := t.rows[id]
	return ok
}

// IsDirty reports whether id's row has changed since the last Snapshot
// drained it. A missing id reports clean (false).
func (t *Table[T]) IsDirty(id uint64) bool {
	e, ok := t.rows[id]
	return ok && e.dirty
}

// Handle grants mutable access to a single row. Release marks the row
// dirty; callers are expected to `defer h.Release()` immediately after a
// successful Update/UpdateOrDefault.
type Handle[T any] struct {
	e *entry[T]
}

// Value returns the mutable row.
func (h *Handle[T]) Value() *T {
	return &h.e.value
}

// Release marks the row dirty. No mutation path should bypass it.
func (h *Handle[T]) Release() {
	h.e.dirty = true
}

// Update returns a mutating handle for id, or ok=false if absent.
func (t *Table[T]) Update(id uint64) (handle *Handle[T], ok bool) {
	e, ok := t.rows[id]
	if !ok {
		return nil, false
	}
	return &Handle[T]{e: e}, true
}

// UpdateOrDefault returns a mutating handle for id, inserting a
// factory-constructed default row first if one isn't already present.
// Stats tables use this to tolerate late-bound observation (e.g. a Poll
// resource-op arriving before its async op's own creation event).
func (t *Table[T]) UpdateOrDefault(id uint64, factory func() T) *Handle[T] {
	e, ok := t.rows[id]
	if !ok {
		e = &entry[T]{value: factory(), dirty: true}
		t.rows[id] = e
	}
	return &Handle[T]{e: e}
}

// Delete removes id's row unconditionally.
func (t *Table[T]) Delete(id uint64) {
	delete(t.rows, id)
}

// Len returns the number of rows currently stored.
func (t *Table[T]) Len() int {
	return len(t.rows)
}

// DrainDirty invokes fn for every row whose dirty bit is set, clearing the
// bit as it goes.
func (t *Table[T]) DrainDirty(fn func(id uint64, v *T)) {
	for id, e := range t.rows {
		if !e.dirty {
			continue
		}
		e.dirty = false
		fn(id, &e.value)
	}
}

// IterAll invokes fn for every row, dirty or not, without touching dirty
// bits.
func (t *Table[T]) IterAll(fn func(id uint64, v *T)) {
	for id, e := range t.rows {
		fn(id, &e.value)
	}
}

// IDs returns every id currently stored, dirty or not.
func (t *Table[T]) IDs() []uint64 {
	ids := make([]uint64, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	return ids
}

// Snapshot renders either the dirty delta (updatedOnly=true, which also
// clears dirty bits) or the full set of rows (updatedOnly=false) through
// render, producing the wire-form map a subscriber is sent. It is a
// package-level function rather than a method because Go methods cannot
// introduce a type parameter distinct from their receiver's.
func Snapshot[T, W any](t *Table[T], updatedOnly bool, render func(id uint64, v *T) W) map[uint64]W {
	out := make(map[uint64]W)
	if updatedOnly {
		t.DrainDirty(func(id uint64, v *T) { out[id] = render(id, v) })
	} else {
		t.IterAll(func(id uint64, v *T) { out[id] = render(id, v) })
	}
	return out
}
