package spatial

import (
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/botsim/internal/model"
)

const testMap = 1

func creatureAt(counter uint64, x, y, z float64) model.Snapshot {
	return model.NewCreatureSnapshot(
		model.MakeEntityID(model.KindCreature, counter), testMap,
		model.NewPosition(x, y, z),
		model.UnitState{Health: 100, MaxHealth: 100, Alive: true, Faction: 14},
		model.CreatureInfo{Entry: 1},
	)
}

func publish(t testing.TB, idx *Index, snaps ...model.Snapshot) uint64 {
	t.Helper()
	require.NoError(t, idx.BeginWritePass())
	for _, s := range snaps {
		require.NoError(t, idx.Insert(s))
	}
	gen, err := idx.PublishSwap()
	require.NoError(t, err)
	return gen
}

func ids(snaps []model.Snapshot) []model.EntityID {
	out := make([]model.EntityID, len(snaps))
	for i := range snaps {
		out[i] = snaps[i].ID
	}
	return out
}

func TestIndex_QueryNearby_InsideAndOutsideRadius(t *testing.T) {
	idx := NewIndex(testMap, 32, 4)
	c := creatureAt(1, 100, 100, 0)
	publish(t, idx, c)

	got := idx.QueryNearby(model.KindCreature, model.NewPosition(105, 100, 0), 30)
	require.Len(t, got, 1)
	assert.Equal(t, c.ID, got[0].ID)

	got = idx.QueryNearby(model.KindCreature, model.NewPosition(500, 500, 0), 30)
	assert.Empty(t, got)
}

func TestIndex_QueryNearby_KindFilter(t *testing.T) {
	idx := NewIndex(testMap, 32, 4)
	chest := model.NewGameObjectSnapshot(model.MakeEntityID(model.KindGameObject, 1), testMap,
		model.NewPosition(10, 10, 0), model.GameObjectInfo{Type: model.GOChest, Spawned: true})
	publish(t, idx, creatureAt(1, 10, 10, 0), chest)

	creatures := idx.QueryNearby(model.KindCreature, model.NewPosition(10, 10, 0), 5)
	require.Len(t, creatures, 1)
	assert.Equal(t, model.KindCreature, creatures[0].Kind)

	objects := idx.QueryNearby(model.KindGameObject, model.NewPosition(10, 10, 0), 5)
	require.Len(t, objects, 1)
	assert.Equal(t, chest.ID, objects[0].ID)

	both := idx.Query(model.KindAny, Circle{Center: model.NewPosition(10, 10, 0), Radius: 5})
	assert.Len(t, both, 2)
}

func TestIndex_QueryNearby_InvalidRadius(t *testing.T) {
	idx := NewIndex(testMap, 32, 4)
	publish(t, idx, creatureAt(1, 0, 0, 0))

	origin := model.NewPosition(0, 0, 0)
	assert.Empty(t, idx.QueryNearby(model.KindCreature, origin, 0))
	assert.Empty(t, idx.QueryNearby(model.KindCreature, origin, -5))
	assert.Empty(t, idx.QueryNearby(model.KindCreature, origin, math.NaN()))
}

func TestIndex_QueryBeforeFirstPublish(t *testing.T) {
	idx := NewIndex(testMap, 32, 4)
	assert.Empty(t, idx.QueryNearby(model.KindCreature, model.Position{}, 100))
	assert.Equal(t, uint64(0), idx.Generation())
	assert.Equal(t, 0, idx.Len())
}

func TestIndex_SphereIgnoresFarZ_CircleDoesNot(t *testing.T) {
	idx := NewIndex(testMap, 32, 4)
	publish(t, idx, creatureAt(1, 0, 0, 100))

	origin := model.NewPosition(0, 0, 0)
	assert.Empty(t, idx.QueryNearby(model.KindCreature, origin, 50))
	assert.Len(t, idx.Query(model.KindAny, Circle{Center: origin, Radius: 50}), 1)
	assert.Len(t, idx.Query(model.KindAny, Box{MinX: -1, MinY: -1, MaxX: 1, MaxY: 1}), 1)
	assert.Empty(t, idx.Query(model.KindAny, Box{MinX: -1, MinY: -1, MaxX: 1, MaxY: 1, MinZ: -10, MaxZ: 10}))
}

func TestIndex_NoFalseNegatives(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	idx := NewIndex(testMap, 25, 4)

	snaps := make([]model.Snapshot, 0, 2000)
	for i := range 2000 {
		snaps = append(snaps, creatureAt(uint64(i+1),
			rng.Float64()*1000-500, rng.Float64()*1000-500, rng.Float64()*20-10))
	}
	publish(t, idx, snaps...)

	for range 200 {
		origin := model.NewPosition(rng.Float64()*1000-500, rng.Float64()*1000-500, 0)
		radius := 1 + rng.Float64()*120

		want := make(map[model.EntityID]struct{})
		for _, s := range snaps {
			if origin.DistanceSquared(s.Pos) <= radius*radius {
				want[s.ID] = struct{}{}
			}
		}

		got := idx.QueryNearby(model.KindCreature, origin, radius)
		gotSet := make(map[model.EntityID]struct{}, len(got))
		for _, s := range got {
			_, dup := gotSet[s.ID]
			require.False(t, dup, "snapshot %s returned twice", s.ID)
			gotSet[s.ID] = struct{}{}
		}
		require.Equal(t, want, gotSet, "origin %+v radius %.2f", origin, radius)
	}
}

func TestIndex_CellBoundary_NoDuplicates(t *testing.T) {
	idx := NewIndex(testMap, 64, 4)
	// Exactly on cell corners and edges, including negative cells.
	publish(t, idx,
		creatureAt(1, 64, 64, 0),
		creatureAt(2, 0, 0, 0),
		creatureAt(3, -64, 0, 0),
		creatureAt(4, 63.999, 64, 0),
	)

	got := idx.QueryNearby(model.KindCreature, model.NewPosition(0, 0, 0), 200)
	assert.ElementsMatch(t, []model.EntityID{
		model.MakeEntityID(model.KindCreature, 1),
		model.MakeEntityID(model.KindCreature, 2),
		model.MakeEntityID(model.KindCreature, 3),
		model.MakeEntityID(model.KindCreature, 4),
	}, ids(got))
}

func TestIndex_HugeRadiusScansOccupiedCells(t *testing.T) {
	idx := NewIndex(testMap, 8, 4)
	publish(t, idx, creatureAt(1, -1e6, 3e5, 0), creatureAt(2, 1e6, -3e5, 0))

	got := idx.QueryNearby(model.KindCreature, model.Position{}, 1e7)
	assert.Len(t, got, 2)
}

func TestIndex_RadiusBeyondCellRange(t *testing.T) {
	idx := NewIndex(testMap, 8, 4)
	publish(t, idx, creatureAt(1, 0, 0, 0), creatureAt(2, 5e9, -5e9, 0))

	for _, radius := range []float64{1e11, 1e12, math.MaxFloat64} {
		done := make(chan []model.Snapshot, 1)
		go func() { done <- idx.QueryNearby(model.KindCreature, model.Position{}, radius) }()
		select {
		case got := <-done:
			assert.Len(t, got, 2, "radius %g", radius)
		case <-time.After(3 * time.Second):
			t.Fatalf("query with radius %g did not return", radius)
		}
	}

	// The query released its pin: the next write pass does not wait.
	require.NoError(t, idx.BeginWritePass())
}

func TestIndex_DoubleBuffering(t *testing.T) {
	idx := NewIndex(testMap, 32, 4)
	publish(t, idx, creatureAt(1, 0, 0, 0))

	// Write pass in progress: readers still see generation 1.
	require.NoError(t, idx.BeginWritePass())
	require.NoError(t, idx.Insert(creatureAt(2, 0, 0, 0)))
	require.NoError(t, idx.Insert(creatureAt(3, 0, 0, 0)))

	got := idx.QueryNearby(model.KindCreature, model.Position{}, 10)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(1), got[0].Generation)

	gen, err := idx.PublishSwap()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), gen)

	got = idx.QueryNearby(model.KindCreature, model.Position{}, 10)
	assert.ElementsMatch(t, []model.EntityID{
		model.MakeEntityID(model.KindCreature, 2),
		model.MakeEntityID(model.KindCreature, 3),
	}, ids(got))
	for _, s := range got {
		assert.Equal(t, uint64(2), s.Generation)
	}
	assert.Equal(t, 2, idx.Len())
}

func TestIndex_Lookup(t *testing.T) {
	idx := NewIndex(testMap, 32, 4)
	c := creatureAt(9, 40, -40, 0)
	publish(t, idx, c)

	got, ok := idx.Lookup(c.ID)
	require.True(t, ok)
	assert.Equal(t, c.Pos, got.Pos)

	_, ok = idx.Lookup(model.MakeEntityID(model.KindCreature, 10))
	assert.False(t, ok)
}

func TestIndex_WriteProtocolErrors(t *testing.T) {
	idx := NewIndex(testMap, 32, 4)

	assert.ErrorIs(t, idx.Insert(creatureAt(1, 0, 0, 0)), ErrNoWritePass)
	_, err := idx.PublishSwap()
	assert.ErrorIs(t, err, ErrNoWritePass)

	require.NoError(t, idx.BeginWritePass())
	assert.ErrorIs(t, idx.BeginWritePass(), ErrWriteInProgress)

	require.NoError(t, idx.Insert(creatureAt(1, 0, 0, 0)))
	assert.Error(t, idx.Insert(creatureAt(1, 50, 50, 0)), "same entity twice in one generation")

	wrongMap := creatureAt(2, 0, 0, 0)
	wrongMap.MapID = 99
	assert.Error(t, idx.Insert(wrongMap))

	assert.Error(t, idx.Insert(creatureAt(3, math.Inf(1), 0, 0)))
	assert.Error(t, idx.Insert(model.Snapshot{MapID: testMap}))
}

func TestIndex_InsertBatch_Sharded(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	idx := NewIndex(testMap, 16, 8)

	snaps := make([]model.Snapshot, 0, 5000)
	for i := range 5000 {
		snaps = append(snaps, creatureAt(uint64(i+1), rng.Float64()*2000, rng.Float64()*2000, 0))
	}

	require.NoError(t, idx.BeginWritePass())
	require.NoError(t, idx.InsertBatch(snaps, 4))
	gen, err := idx.PublishSwap()
	require.NoError(t, err)

	assert.Equal(t, len(snaps), idx.Len())
	all := idx.Query(model.KindAny, Box{MinX: -1, MinY: -1, MaxX: 2001, MaxY: 2001})
	assert.Len(t, all, len(snaps))
	for _, s := range all {
		require.Equal(t, gen, s.Generation)
	}
}

func TestIndex_InsertBatch_RejectsDuplicates(t *testing.T) {
	idx := NewIndex(testMap, 16, 2)
	snaps := make([]model.Snapshot, 0, 10)
	for i := range 9 {
		snaps = append(snaps, creatureAt(uint64(i+1), float64(i*20), 0, 0))
	}
	snaps = append(snaps, creatureAt(1, 500, 500, 0))

	require.NoError(t, idx.BeginWritePass())
	assert.Error(t, idx.InsertBatch(snaps, 2))
}

func TestIndex_ForEach_EarlyStopAndRestart(t *testing.T) {
	idx := NewIndex(testMap, 32, 4)
	snaps := make([]model.Snapshot, 0, 10)
	for i := range 10 {
		snaps = append(snaps, creatureAt(uint64(i+1), float64(i), 0, 0))
	}
	publish(t, idx, snaps...)

	shape := Circle{Center: model.Position{}, Radius: 100}
	count := 0
	idx.ForEach(model.KindAny, shape, func(*model.Snapshot) bool {
		count++
		return count < 5
	})
	assert.Equal(t, 5, count)

	count = 0
	idx.ForEach(model.KindAny, shape, func(*model.Snapshot) bool {
		count++
		return true
	})
	assert.Equal(t, 10, count, "a second walk restarts from the beginning")
}

func TestIndex_Close(t *testing.T) {
	idx := NewIndex(testMap, 32, 4)
	publish(t, idx, creatureAt(1, 0, 0, 0))

	idx.Close()
	idx.Close()

	assert.True(t, idx.Closed())
	assert.Empty(t, idx.QueryNearby(model.KindCreature, model.Position{}, 10))
	_, ok := idx.Lookup(model.MakeEntityID(model.KindCreature, 1))
	assert.False(t, ok)
	assert.ErrorIs(t, idx.BeginWritePass(), ErrIndexClosed)
}

// expectedCount varies the population per generation so that a query mixing
// two buffers would see a wrong count or mixed generation markers.
func expectedCount(gen uint64) int {
	return 20 + int(gen%5)*7
}

func TestIndex_SnapshotIsolation_ConcurrentSwap(t *testing.T) {
	idx := NewIndex(testMap, 16, 4)
	origin := model.Position{}

	fill := func(gen uint64) {
		require.NoError(t, idx.BeginWritePass())
		n := expectedCount(gen)
		batch := make([]model.Snapshot, 0, n)
		for i := range n {
			angle := float64(i) * 2 * math.Pi / float64(n)
			batch = append(batch, creatureAt(uint64(i+1), 40*math.Cos(angle), 40*math.Sin(angle), 0))
		}
		require.NoError(t, idx.InsertBatch(batch, 2))
		published, err := idx.PublishSwap()
		require.NoError(t, err)
		require.Equal(t, gen, published)
	}
	fill(1)

	const readers = 1000
	var wg sync.WaitGroup
	var done atomic.Bool
	var torn, observed atomic.Int64
	start := make(chan struct{})
	for range readers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for {
				got := idx.QueryNearby(model.KindCreature, origin, 50)
				observed.Add(1)
				if len(got) == 0 {
					torn.Add(1)
				} else {
					gen := got[0].Generation
					if len(got) != expectedCount(gen) {
						torn.Add(1)
					}
					for i := range got {
						if got[i].Generation != gen {
							torn.Add(1)
							break
						}
					}
				}
				if done.Load() {
					return
				}
			}
		}()
	}

	close(start)
	for gen := uint64(2); gen <= 60; gen++ {
		fill(gen)
	}
	done.Store(true)
	wg.Wait()

	assert.Zero(t, torn.Load(), "queries observed a partial or mixed buffer")
	assert.GreaterOrEqual(t, observed.Load(), int64(readers))
}

func TestIndex_CorruptedEntryPanics(t *testing.T) {
	idx := NewIndex(testMap, 32, 1)
	publish(t, idx, creatureAt(1, 0, 0, 0))

	// Simulate a write that bypassed the pass protocol.
	g := idx.read.Load()
	for _, c := range g.shards[0].cells {
		c.entries[0].Generation = 42
	}

	assert.Panics(t, func() {
		idx.QueryNearby(model.KindCreature, model.Position{}, 10)
	})
}
