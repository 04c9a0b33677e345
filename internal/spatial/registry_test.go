package spatial

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/botsim/internal/model"
)

func TestRegistry_GetOrCreate_Idempotent(t *testing.T) {
	reg := NewRegistry(Options{CellSize: 32, Shards: 2})

	a := reg.GetOrCreate(testMap)
	b := reg.GetOrCreate(testMap)
	assert.Same(t, a, b)
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, 32.0, a.CellSize())

	got, ok := reg.Get(testMap)
	require.True(t, ok)
	assert.Same(t, a, got)
}

func TestRegistry_Get_Missing(t *testing.T) {
	reg := NewRegistry(Options{})

	_, ok := reg.Get(42)
	assert.False(t, ok)
	assert.Empty(t, reg.QueryNearby(42, model.KindCreature, model.Position{}, 100),
		"query against a map without an index is empty, not an error")
}

func TestRegistry_Destroy(t *testing.T) {
	reg := NewRegistry(Options{CellSize: 32})
	idx := reg.GetOrCreate(testMap)
	publish(t, idx, creatureAt(1, 0, 0, 0))

	require.Len(t, reg.QueryNearby(testMap, model.KindCreature, model.Position{}, 10), 1)

	assert.True(t, reg.Destroy(testMap))
	assert.False(t, reg.Destroy(testMap))
	assert.True(t, idx.Closed())

	_, ok := reg.Get(testMap)
	assert.False(t, ok)
	assert.Empty(t, reg.QueryNearby(testMap, model.KindCreature, model.Position{}, 10))

	// Reloading the map yields a fresh, empty index.
	fresh := reg.GetOrCreate(testMap)
	assert.NotSame(t, idx, fresh)
	assert.Equal(t, 0, fresh.Len())
}

func TestRegistry_MapIDs(t *testing.T) {
	reg := NewRegistry(Options{})
	reg.GetOrCreate(30)
	reg.GetOrCreate(10)
	reg.GetOrCreate(20)

	assert.Equal(t, []uint32{10, 20, 30}, reg.MapIDs())

	reg.Close()
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_ConcurrentGetDuringLifecycle(t *testing.T) {
	reg := NewRegistry(Options{CellSize: 32})

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if idx, ok := reg.Get(testMap); ok {
					_ = idx.QueryNearby(model.KindCreature, model.Position{}, 50)
				}
				_ = reg.QueryNearby(testMap+1, model.KindPlayer, model.Position{}, 50)
			}
		}()
	}

	for i := range 50 {
		idx := reg.GetOrCreate(testMap)
		publish(t, idx, creatureAt(uint64(i+1), 0, 0, 0))
		if i%3 == 0 {
			reg.Destroy(testMap)
		}
	}
	close(stop)
	wg.Wait()
}
