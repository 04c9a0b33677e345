package sim

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/udisondev/botsim/internal/model"
)

// ErrNoEntity is returned for operations on an ID that is not live.
var ErrNoEntity = errors.New("no such entity")

// Entity is the live, mutable state of one world object. Only the
// authoritative goroutine may read or write it; everyone else sees
// snapshots.
type Entity struct {
	ID    model.EntityID
	Kind  model.EntityKind
	MapID uint32
	Pos   model.Position

	Unit          model.UnitState
	Creature      model.CreatureInfo
	Player        model.PlayerInfo
	GameObject    model.GameObjectInfo
	AreaTrigger   model.AreaTriggerInfo
	DynamicObject model.DynamicObjectInfo

	SpawnPos   model.Position
	LastCombat time.Time
	DiedAt     time.Time
}

// Snapshot copies the entity into an immutable snapshot.
func (e *Entity) Snapshot() model.Snapshot {
	switch e.Kind {
	case model.KindCreature:
		return model.NewCreatureSnapshot(e.ID, e.MapID, e.Pos, e.Unit, e.Creature)
	case model.KindPlayer:
		return model.NewPlayerSnapshot(e.ID, e.MapID, e.Pos, e.Unit, e.Player)
	case model.KindGameObject:
		return model.NewGameObjectSnapshot(e.ID, e.MapID, e.Pos, e.GameObject)
	case model.KindAreaTrigger:
		return model.NewAreaTriggerSnapshot(e.ID, e.MapID, e.Pos, e.AreaTrigger)
	case model.KindDynamicObject:
		return model.NewDynamicObjectSnapshot(e.ID, e.MapID, e.Pos, e.DynamicObject)
	default:
		panic(fmt.Sprintf("entity %s has invalid kind %d", e.ID, e.Kind))
	}
}

// IsUnit reports whether the entity is a creature or player.
func (e *Entity) IsUnit() bool {
	return e.Kind == model.KindCreature || e.Kind == model.KindPlayer
}

// World is the live entity store, grouped by map. Owned by the
// authoritative goroutine: no method is safe for concurrent use.
type World struct {
	ids  *model.IDGenerator
	maps map[uint32]map[model.EntityID]*Entity
	all  map[model.EntityID]*Entity
}

// NewWorld creates an empty world.
func NewWorld() *World {
	return &World{
		ids:  model.NewIDGenerator(),
		maps: make(map[uint32]map[model.EntityID]*Entity),
		all:  make(map[model.EntityID]*Entity),
	}
}

// AddMap makes mapID available for spawns. Idempotent.
func (w *World) AddMap(mapID uint32) {
	if _, ok := w.maps[mapID]; !ok {
		w.maps[mapID] = make(map[model.EntityID]*Entity)
	}
}

// RemoveMap despawns everything on mapID and forgets the map.
// Returns the IDs that were despawned.
func (w *World) RemoveMap(mapID uint32) []model.EntityID {
	ents, ok := w.maps[mapID]
	if !ok {
		return nil
	}
	ids := slices.Collect(maps.Keys(ents))
	for _, id := range ids {
		delete(w.all, id)
	}
	delete(w.maps, mapID)
	return ids
}

// HasMap reports whether mapID is loaded.
func (w *World) HasMap(mapID uint32) bool {
	_, ok := w.maps[mapID]
	return ok
}

// Maps returns loaded map IDs in ascending order.
func (w *World) Maps() []uint32 {
	ids := slices.Collect(maps.Keys(w.maps))
	slices.Sort(ids)
	return ids
}

// Spawn adds e to the world. A zero ID is assigned from the generator.
func (w *World) Spawn(e Entity) (model.EntityID, error) {
	if !e.Kind.Valid() {
		return model.NoEntity, fmt.Errorf("spawning entity: invalid kind %d", e.Kind)
	}
	ents, ok := w.maps[e.MapID]
	if !ok {
		return model.NoEntity, fmt.Errorf("spawning %s: map %d not loaded", e.Kind, e.MapID)
	}
	if !e.Pos.IsFinite() {
		return model.NoEntity, fmt.Errorf("spawning %s: non-finite position", e.Kind)
	}
	if e.ID.IsZero() {
		e.ID = w.ids.Next(e.Kind)
	} else if e.ID.Kind() != e.Kind {
		return model.NoEntity, fmt.Errorf("spawning %s: id %s has kind %s", e.Kind, e.ID, e.ID.Kind())
	}
	if _, dup := w.all[e.ID]; dup {
		return model.NoEntity, fmt.Errorf("spawning %s: id %s already in use", e.Kind, e.ID)
	}
	if e.SpawnPos == (model.Position{}) {
		e.SpawnPos = e.Pos
	}
	ent := &e
	ents[ent.ID] = ent
	w.all[ent.ID] = ent
	return ent.ID, nil
}

// SpawnCreature spawns a creature.
func (w *World) SpawnCreature(mapID uint32, pos model.Position, unit model.UnitState, info model.CreatureInfo) (model.EntityID, error) {
	return w.Spawn(Entity{Kind: model.KindCreature, MapID: mapID, Pos: pos, Unit: unit, Creature: info})
}

// SpawnPlayer spawns a player.
func (w *World) SpawnPlayer(mapID uint32, pos model.Position, unit model.UnitState, info model.PlayerInfo) (model.EntityID, error) {
	return w.Spawn(Entity{Kind: model.KindPlayer, MapID: mapID, Pos: pos, Unit: unit, Player: info})
}

// SpawnGameObject spawns a game object.
func (w *World) SpawnGameObject(mapID uint32, pos model.Position, info model.GameObjectInfo) (model.EntityID, error) {
	return w.Spawn(Entity{Kind: model.KindGameObject, MapID: mapID, Pos: pos, GameObject: info})
}

// Despawn removes id. Reports whether it existed.
func (w *World) Despawn(id model.EntityID) bool {
	e, ok := w.all[id]
	if !ok {
		return false
	}
	delete(w.all, id)
	delete(w.maps[e.MapID], id)
	return true
}

// Move relocates id within its map.
func (w *World) Move(id model.EntityID, pos model.Position) error {
	e, ok := w.all[id]
	if !ok {
		return fmt.Errorf("move %s: %w", id, ErrNoEntity)
	}
	if !pos.IsFinite() {
		return fmt.Errorf("move %s: non-finite position %+v", id, pos)
	}
	e.Pos = pos
	return nil
}

// Entity returns the live entity for mutation.
func (w *World) Entity(id model.EntityID) (*Entity, bool) {
	e, ok := w.all[id]
	return e, ok
}

// Lookup returns a current value view of id, read straight from live state.
func (w *World) Lookup(id model.EntityID) (model.Snapshot, bool) {
	e, ok := w.all[id]
	if !ok {
		return model.Snapshot{}, false
	}
	return e.Snapshot(), true
}

// CaptureMap appends a snapshot of every entity on mapID to dst.
func (w *World) CaptureMap(mapID uint32, dst []model.Snapshot) []model.Snapshot {
	for _, e := range w.maps[mapID] {
		dst = append(dst, e.Snapshot())
	}
	return dst
}

// Each calls fn for every entity. fn must not spawn or despawn.
func (w *World) Each(fn func(*Entity)) {
	for _, e := range w.all {
		fn(e)
	}
}

// Len returns number of live entities.
func (w *World) Len() int {
	return len(w.all)
}

// MapLen returns number of live entities on mapID.
func (w *World) MapLen(mapID uint32) int {
	return len(w.maps[mapID])
}
