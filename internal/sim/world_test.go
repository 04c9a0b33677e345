package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/botsim/internal/model"
)

const testMap = 3

func unit(faction uint32) model.UnitState {
	return model.UnitState{
		Health:    100,
		MaxHealth: 100,
		Power:     100,
		MaxPower:  100,
		PowerType: model.PowerMana,
		Level:     10,
		Faction:   faction,
		Alive:     true,
		MoveSpeed: 7,
	}
}

func newWorld(t testing.TB) *World {
	t.Helper()
	w := NewWorld()
	w.AddMap(testMap)
	return w
}

func spawnPlayer(t testing.TB, w *World, x, y float64) model.EntityID {
	t.Helper()
	id, err := w.SpawnPlayer(testMap, model.NewPosition(x, y, 0), unit(1), model.PlayerInfo{IsBot: true})
	require.NoError(t, err)
	return id
}

func spawnMob(t testing.TB, w *World, x, y float64) model.EntityID {
	t.Helper()
	id, err := w.SpawnCreature(testMap, model.NewPosition(x, y, 0), unit(2), model.CreatureInfo{Entry: 100})
	require.NoError(t, err)
	return id
}

func spawnObject(t testing.TB, w *World, x, y float64, typ model.GameObjectType) model.EntityID {
	t.Helper()
	id, err := w.SpawnGameObject(testMap, model.NewPosition(x, y, 0), model.GameObjectInfo{
		Entry:    500,
		Type:     typ,
		State:    model.GOStateReady,
		Spawned:  true,
		Lootable: typ == model.GOChest,
	})
	require.NoError(t, err)
	return id
}

func TestWorld_SpawnAndLookup(t *testing.T) {
	w := newWorld(t)
	p := spawnPlayer(t, w, 1, 2)
	m := spawnMob(t, w, 3, 4)

	assert.Equal(t, model.KindPlayer, p.Kind())
	assert.Equal(t, model.KindCreature, m.Kind())
	assert.NotEqual(t, p, m)
	assert.Equal(t, 2, w.Len())
	assert.Equal(t, 2, w.MapLen(testMap))

	snap, ok := w.Lookup(p)
	require.True(t, ok)
	assert.Equal(t, model.KindPlayer, snap.Kind)
	assert.Equal(t, 1.0, snap.Pos.X)
	info, ok := snap.AsPlayer()
	require.True(t, ok)
	assert.True(t, info.IsBot)

	// Lookup reflects live mutation immediately.
	e, ok := w.Entity(p)
	require.True(t, ok)
	e.Unit.Health = 40
	snap, _ = w.Lookup(p)
	u, _ := snap.Unit()
	assert.Equal(t, int64(40), u.Health)
	assert.Equal(t, model.NewPosition(1, 2, 0), e.SpawnPos)
}

func TestWorld_SpawnErrors(t *testing.T) {
	w := newWorld(t)

	_, err := w.SpawnPlayer(99, model.NewPosition(0, 0, 0), unit(1), model.PlayerInfo{})
	assert.Error(t, err, "map not loaded")

	_, err = w.SpawnPlayer(testMap, model.NewPosition(math.NaN(), 0, 0), unit(1), model.PlayerInfo{})
	assert.Error(t, err, "non-finite position")

	_, err = w.Spawn(Entity{MapID: testMap})
	assert.Error(t, err, "invalid kind")

	id := spawnPlayer(t, w, 0, 0)
	_, err = w.Spawn(Entity{ID: id, Kind: model.KindPlayer, MapID: testMap})
	assert.Error(t, err, "duplicate id")

	_, err = w.Spawn(Entity{ID: model.MakeEntityID(model.KindCreature, 77), Kind: model.KindPlayer, MapID: testMap})
	assert.Error(t, err, "id kind mismatch")
}

func TestWorld_DespawnAndCapture(t *testing.T) {
	w := newWorld(t)
	w.AddMap(testMap + 1)
	a := spawnPlayer(t, w, 0, 0)
	b := spawnMob(t, w, 5, 5)
	_, err := w.SpawnCreature(testMap+1, model.NewPosition(0, 0, 0), unit(2), model.CreatureInfo{})
	require.NoError(t, err)

	snaps := w.CaptureMap(testMap, nil)
	assert.Len(t, snaps, 2)
	for _, s := range snaps {
		assert.Equal(t, uint32(testMap), s.MapID)
	}

	assert.True(t, w.Despawn(b))
	assert.False(t, w.Despawn(b))
	_, ok := w.Lookup(b)
	assert.False(t, ok)

	snaps = w.CaptureMap(testMap, snaps[:0])
	require.Len(t, snaps, 1)
	assert.Equal(t, a, snaps[0].ID)
}

func TestWorld_RemoveMap(t *testing.T) {
	w := newWorld(t)
	w.AddMap(testMap + 1)
	a := spawnPlayer(t, w, 0, 0)
	b := spawnMob(t, w, 1, 1)

	assert.Equal(t, []uint32{testMap, testMap + 1}, w.Maps())
	removed := w.RemoveMap(testMap)
	assert.ElementsMatch(t, []model.EntityID{a, b}, removed)
	assert.False(t, w.HasMap(testMap))
	assert.Zero(t, w.Len())
	assert.Nil(t, w.RemoveMap(testMap))
}

func TestWorld_Move(t *testing.T) {
	w := newWorld(t)
	id := spawnPlayer(t, w, 1, 1)

	require.NoError(t, w.Move(id, model.NewPosition(5, 6, 7)))
	s, ok := w.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, model.NewPosition(5, 6, 7), s.Pos)

	assert.Error(t, w.Move(id, model.NewPosition(math.Inf(1), 0, 0)))
	s, _ = w.Lookup(id)
	assert.Equal(t, 5.0, s.Pos.X, "rejected move leaves the entity in place")

	err := w.Move(model.MakeEntityID(model.KindPlayer, 999), model.Position{})
	assert.ErrorIs(t, err, ErrNoEntity)
}
