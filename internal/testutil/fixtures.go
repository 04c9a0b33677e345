package testutil

import (
	"testing"

	"github.com/udisondev/botsim/internal/model"
	"github.com/udisondev/botsim/internal/spatial"
)

// Factions used by fixtures: bots are friendly to each other and hostile to creatures.
const (
	BotFaction      uint32 = 1
	CreatureFaction uint32 = 99
)

// Unit returns a healthy mana user of faction.
func Unit(faction uint32) model.UnitState {
	return model.UnitState{
		Health:    100,
		MaxHealth: 100,
		Power:     100,
		MaxPower:  100,
		PowerType: model.PowerMana,
		Faction:   faction,
		Alive:     true,
		MoveSpeed: 7,
	}
}

// Player returns a bot player snapshot with counter n.
func Player(mapID uint32, n uint64, x, y float64, faction uint32) model.Snapshot {
	return model.NewPlayerSnapshot(model.MakeEntityID(model.KindPlayer, n), mapID, model.NewPosition(x, y, 0),
		Unit(faction), model.PlayerInfo{IsBot: true})
}

// Creature returns a hostile creature snapshot with counter n.
func Creature(mapID uint32, n uint64, x, y float64, alive bool) model.Snapshot {
	u := Unit(CreatureFaction)
	u.Health, u.MaxHealth, u.Power, u.MaxPower = 50, 50, 0, 0
	u.Alive = alive
	u.MoveSpeed = 5
	return model.NewCreatureSnapshot(model.MakeEntityID(model.KindCreature, n), mapID, model.NewPosition(x, y, 0),
		u, model.CreatureInfo{Entry: 1})
}

// Chest returns a spawned lootable chest snapshot with counter n.
func Chest(mapID uint32, n uint64, x, y float64) model.Snapshot {
	return model.NewGameObjectSnapshot(model.MakeEntityID(model.KindGameObject, n), mapID, model.NewPosition(x, y, 0),
		model.GameObjectInfo{Type: model.GOChest, Spawned: true, Lootable: true})
}

// PublishedIndex builds an index for mapID holding snaps as its published generation.
func PublishedIndex(t testing.TB, mapID uint32, snaps ...model.Snapshot) *spatial.Index {
	t.Helper()

	idx := spatial.NewIndex(mapID, 16, 2)
	if err := idx.BeginWritePass(); err != nil {
		t.Fatalf("begin write pass: %v", err)
	}
	if err := idx.InsertBatch(snaps, 1); err != nil {
		t.Fatalf("insert batch: %v", err)
	}
	if _, err := idx.PublishSwap(); err != nil {
		t.Fatalf("publish swap: %v", err)
	}
	t.Cleanup(idx.Close)
	return idx
}

// LiveMap is a map-backed live world keyed by stable entity ID.
type LiveMap map[model.EntityID]model.Snapshot

// NewLiveMap indexes snaps by ID.
func NewLiveMap(snaps ...model.Snapshot) LiveMap {
	m := make(LiveMap, len(snaps))
	for _, s := range snaps {
		m[s.ID] = s
	}
	return m
}

// Lookup returns the snapshot stored for id.
func (m LiveMap) Lookup(id model.EntityID) (model.Snapshot, bool) {
	s, ok := m[id]
	return s, ok
}

// Put stores or replaces s.
func (m LiveMap) Put(s model.Snapshot) {
	m[s.ID] = s
}
