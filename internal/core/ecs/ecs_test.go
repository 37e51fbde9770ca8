package ecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type position struct{ X, Y float32 }
type mesh struct{ Handle int }

func TestEntityPool_ZeroIDNeverAlive(t *testing.T) {
	p := NewEntityPool()
	id := p.Create()
	assert.False(t, id.IsZero())
	assert.True(t, p.Alive(id))
	assert.False(t, p.Alive(0))
}

func TestEntityPool_StaleReferenceAfterReuse(t *testing.T) {
	p := NewEntityPool()
	a := p.Create()
	p.Destroy(a)
	b := p.Create()

	assert.Equal(t, a.Index(), b.Index(), "index is recycled")
	assert.NotEqual(t, a.Generation(), b.Generation())
	assert.False(t, p.Alive(a))
	assert.True(t, p.Alive(b))
	assert.Equal(t, 1, p.Count())

	p.Destroy(a) // stale, no effect
	assert.True(t, p.Alive(b))
}

func TestStore_ReleaseCallback(t *testing.T) {
	s := NewStore[mesh]()
	var released []int
	s.OnRelease(func(_ EntityID, m *mesh) { released = append(released, m.Handle) })

	s.Set(1, &mesh{Handle: 10})
	s.Set(1, &mesh{Handle: 11}) // replacing releases the old component
	s.Remove(1)
	s.Remove(1)

	assert.Equal(t, []int{10, 11}, released)
}

func TestWorld_FlushDestroyQueue(t *testing.T) {
	w := NewWorld()
	positions := AddStore[position](w)
	meshes := AddStore[mesh](w)

	var released int
	meshes.OnRelease(func(EntityID, *mesh) { released++ })

	a := w.CreateEntity()
	b := w.CreateEntity()
	positions.Set(a, &position{X: 1})
	meshes.Set(a, &mesh{Handle: 1})
	positions.Set(b, &position{X: 2})

	w.MarkForDestruction(a)
	w.MarkForDestruction(a)
	require.Equal(t, 2, w.Pending())

	assert.Equal(t, 1, w.FlushDestroyQueue())
	assert.False(t, w.Alive(a))
	assert.True(t, w.Alive(b))
	assert.False(t, positions.Has(a))
	assert.Equal(t, 1, released)
	assert.Equal(t, 0, w.Pending())
	assert.Equal(t, 2, w.Stores())
}

func TestEach2AndSorted2(t *testing.T) {
	w := NewWorld()
	positions := AddStore[position](w)
	meshes := AddStore[mesh](w)

	var ids []EntityID
	for i := 0; i < 4; i++ {
		id := w.CreateEntity()
		ids = append(ids, id)
		positions.Set(id, &position{X: float32(i)})
		if i%2 == 0 {
			meshes.Set(id, &mesh{Handle: i})
		}
	}

	count := 0
	Each2(positions, meshes, func(EntityID, *position, *mesh) { count++ })
	assert.Equal(t, 2, count)

	var order []EntityID
	Sorted2(positions, meshes, func(id EntityID, _ *position, _ *mesh) { order = append(order, id) })
	assert.Equal(t, []EntityID{ids[0], ids[2]}, order)
}
