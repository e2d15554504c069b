package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableInsertAndGet(t *testing.T) {
	tbl := NewTable[string]()
	tbl.Insert(1, "alpha")

	v, ok := tbl.Get(1)
	require.True(t, ok)
	assert.Equal(t, "alpha", *v)

	_, ok = tbl.Get(2)
	assert.False(t, ok)
}

func TestTableInsertMarksDirty(t *testing.T) {
	tbl := NewTable[int]()
	tbl.Insert(1, 42)

	seen := map[uint64]int{}
	tbl.DrainDirty(func(id uint64, v *int) { seen[id] = *v })
	assert.Equal(t, map[uint64]int{1: 42}, seen)

	// a second drain with no intervening mutation sees nothing.
	seen = map[uint64]int{}
	tbl.DrainDirty(func(id uint64, v *int) { seen[id] = *v })
	assert.Empty(t, seen)
}

func TestTableUpdateReleaseMarksDirty(t *testing.T) {
	tbl := NewTable[int]()
	tbl.Insert(1, 1)
	tbl.DrainDirty(func(uint64, *int) {}) // clear the initial insert's dirty bit

	h, ok := tbl.Update(1)
	require.True(t, ok)
	*h.Value() = 99
	h.Release()

	seen := map[uint64]int{}
	tbl.DrainDirty(func(id uint64, v *int) { seen[id] = *v })
	assert.Equal(t, map[uint64]int{1: 99}, seen)
}

func TestTableUpdateMissing(t *testing.T) {
	tbl := NewTable[int]()
	_, ok := tbl.Update(1)
	assert.False(t, ok)
}

func TestTableUpdateOrDefault(t *testing.T) {
	tbl := NewTable[int]()
	h := tbl.UpdateOrDefault(1, func() int { return 7 })
	assert.Equal(t, 7, *h.Value())
	h.Release()

	// a second call against the same id reuses the existing row rather
	// than invoking the factory again.
	h2 := tbl.UpdateOrDefault(1, func() int { return 999 })
	assert.Equal(t, 7, *h2.Value())
}

func TestTableDeleteAndLen(t *testing.T) {
	tbl := NewTable[int]()
	tbl.Insert(1, 1)
	tbl.Insert(2, 2)
	assert.Equal(t, 2, tbl.Len())

	tbl.Delete(1)
	assert.Equal(t, 1, tbl.Len())
	assert.False(t, tbl.Has(1))
	assert.True(t, tbl.Has(2))
}

func TestTableIDs(t *testing.T) {
	tbl := NewTable[int]()
	tbl.Insert(1, 1)
	tbl.Insert(2, 2)
	ids := tbl.IDs()
	assert.ElementsMatch(t, []uint64{1, 2}, ids)
}

func TestSnapshotUpdatedOnly(t *testing.T) {
	tbl := NewTable[int]()
	tbl.Insert(1, 10)
	tbl.Insert(2, 20)

	out := Snapshot(tbl, true, func(id uint64, v *int) int { return *v * 2 })
	assert.Equal(t, map[uint64]int{1: 20, 2: 40}, out)

	// dirty bits were cleared by the snapshot.
	out2 := Snapshot(tbl, true, func(id uint64, v *int) int { return *v })
	assert.Empty(t, out2)
}

func TestSnapshotFull(t *testing.T) {
	tbl := NewTable[int]()
	tbl.Insert(1, 10)
	tbl.DrainDirty(func(uint64, *int) {})

	out := Snapshot(tbl, false, func(id uint64, v *int) int { return *v })
	assert.Equal(t, map[uint64]int{1: 10}, out)
}
