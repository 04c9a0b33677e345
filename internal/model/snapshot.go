package model

import "time"

// PowerType is the resource a unit spends on actions.
type PowerType uint8

const (
	PowerMana PowerType = iota
	PowerRage
	PowerEnergy
	PowerFocus
)

func (p PowerType) String() string {
	switch p {
	case PowerMana:
		return "mana"
	case PowerRage:
		return "rage"
	case PowerEnergy:
		return "energy"
	case PowerFocus:
		return "focus"
	default:
		return "unknown"
	}
}

// GameObjectType mirrors the gameobject type enum of the rules engine.
type GameObjectType uint8

const (
	GODoor GameObjectType = iota
	GOButton
	GOChest
	GOQuestGiver
	GOTrap
	GOGatheringNode
)

// GameObjectState is the activation state of a game object.
type GameObjectState uint8

const (
	GOStateReady GameObjectState = iota
	GOStateActive
	GOStateDepleted
)

// UnitState holds the fields shared by creatures and players.
type UnitState struct {
	Health      int64
	MaxHealth   int64
	Power       int64
	MaxPower    int64
	PowerType   PowerType
	Level       uint8
	Faction     uint32
	Alive       bool
	InCombat    bool
	Casting     bool
	Controlled  bool // stunned, feared, charmed: cannot act
	TargetID    EntityID
	MoveSpeed   float64 // units per second
	CombatReach float64
}

// HealthPct returns health as 0..100.
func (u UnitState) HealthPct() float64 {
	if u.MaxHealth <= 0 {
		return 0
	}
	return float64(u.Health) * 100 / float64(u.MaxHealth)
}

// CreatureInfo is the creature-specific payload.
type CreatureInfo struct {
	Entry      uint32
	FlagsExtra uint32 // creature-flags-extra
	NPCFlags   uint32
	Elite      bool
	OwnerID    EntityID // summoner / pet owner, NoEntity when wild
}

// PlayerInfo is the player-specific payload.
type PlayerInfo struct {
	Class   uint8
	Race    uint8
	GuildID uint32
	GroupID uint32
	IsBot   bool
}

// GameObjectInfo is the gameobject-specific payload.
type GameObjectInfo struct {
	Entry    uint32
	Type     GameObjectType
	State    GameObjectState
	Spawned  bool
	Lootable bool
	OwnerID  EntityID
}

// AreaTriggerInfo is the area-trigger payload.
type AreaTriggerInfo struct {
	SpellID   uint32
	CasterID  EntityID
	Radius    float64
	Remaining time.Duration
}

// DynamicObjectInfo is the dynamic-object payload.
type DynamicObjectInfo struct {
	SpellID   uint32
	CasterID  EntityID
	Radius    float64
	Remaining time.Duration
}

// Snapshot is an immutable by-value copy of one live entity, taken on the
// authoritative thread and published through the spatial index.
//
// Snapshot is a tagged variant: Kind is fixed by the constructor and decides
// which payload is meaningful. It holds no pointers, so a published snapshot
// may be read from any goroutine without synchronization.
type Snapshot struct {
	ID         EntityID
	Kind       EntityKind
	MapID      uint32
	Pos        Position
	Generation uint64 // index generation that published this copy

	unit          UnitState
	creature      CreatureInfo
	player        PlayerInfo
	gameObject    GameObjectInfo
	areaTrigger   AreaTriggerInfo
	dynamicObject DynamicObjectInfo
}

// NewCreatureSnapshot captures a creature.
func NewCreatureSnapshot(id EntityID, mapID uint32, pos Position, unit UnitState, info CreatureInfo) Snapshot {
	return Snapshot{ID: id, Kind: KindCreature, MapID: mapID, Pos: pos, unit: unit, creature: info}
}

// NewPlayerSnapshot captures a player (bot or human).
func NewPlayerSnapshot(id EntityID, mapID uint32, pos Position, unit UnitState, info PlayerInfo) Snapshot {
	return Snapshot{ID: id, Kind: KindPlayer, MapID: mapID, Pos: pos, unit: unit, player: info}
}

// NewGameObjectSnapshot captures a game object.
func NewGameObjectSnapshot(id EntityID, mapID uint32, pos Position, info GameObjectInfo) Snapshot {
	return Snapshot{ID: id, Kind: KindGameObject, MapID: mapID, Pos: pos, gameObject: info}
}

// NewAreaTriggerSnapshot captures an area trigger.
func NewAreaTriggerSnapshot(id EntityID, mapID uint32, pos Position, info AreaTriggerInfo) Snapshot {
	return Snapshot{ID: id, Kind: KindAreaTrigger, MapID: mapID, Pos: pos, areaTrigger: info}
}

// NewDynamicObjectSnapshot captures a dynamic object.
func NewDynamicObjectSnapshot(id EntityID, mapID uint32, pos Position, info DynamicObjectInfo) Snapshot {
	return Snapshot{ID: id, Kind: KindDynamicObject, MapID: mapID, Pos: pos, dynamicObject: info}
}

// IsUnit reports whether the snapshot is a creature or player.
func (s *Snapshot) IsUnit() bool {
	return s.Kind == KindCreature || s.Kind == KindPlayer
}

// Unit returns the unit payload for creatures and players.
func (s *Snapshot) Unit() (UnitState, bool) {
	if !s.IsUnit() {
		return UnitState{}, false
	}
	return s.unit, true
}

// AsCreature returns the creature payload.
func (s *Snapshot) AsCreature() (CreatureInfo, bool) {
	return s.creature, s.Kind == KindCreature
}

// AsPlayer returns the player payload.
func (s *Snapshot) AsPlayer() (PlayerInfo, bool) {
	return s.player, s.Kind == KindPlayer
}

// AsGameObject returns the gameobject payload.
func (s *Snapshot) AsGameObject() (GameObjectInfo, bool) {
	return s.gameObject, s.Kind == KindGameObject
}

// AsAreaTrigger returns the area-trigger payload.
func (s *Snapshot) AsAreaTrigger() (AreaTriggerInfo, bool) {
	return s.areaTrigger, s.Kind == KindAreaTrigger
}

// AsDynamicObject returns the dynamic-object payload.
func (s *Snapshot) AsDynamicObject() (DynamicObjectInfo, bool) {
	return s.dynamicObject, s.Kind == KindDynamicObject
}

// IsAlive reports liveness: units by their alive flag, game objects by
// spawn state, area effects while they have time remaining.
func (s *Snapshot) IsAlive() bool {
	switch s.Kind {
	case KindCreature, KindPlayer:
		return s.unit.Alive
	case KindGameObject:
		return s.gameObject.Spawned
	case KindAreaTrigger:
		return s.areaTrigger.Remaining > 0
	case KindDynamicObject:
		return s.dynamicObject.Remaining > 0
	default:
		return false
	}
}

// IsHostileTo reports whether two units belong to different non-zero factions.
func (s *Snapshot) IsHostileTo(other *Snapshot) bool {
	if !s.IsUnit() || !other.IsUnit() {
		return false
	}
	return s.unit.Faction != 0 && other.unit.Faction != 0 && s.unit.Faction != other.unit.Faction
}

// WithPosition returns a copy at pos.
func (s Snapshot) WithPosition(pos Position) Snapshot {
	s.Pos = pos
	return s
}

// WithUnit returns a copy with the unit payload replaced. No-op for non-units.
func (s Snapshot) WithUnit(u UnitState) Snapshot {
	if s.IsUnit() {
		s.unit = u
	}
	return s
}

// WithGameObject returns a copy with the gameobject payload replaced. No-op for other kinds.
func (s Snapshot) WithGameObject(info GameObjectInfo) Snapshot {
	if s.Kind == KindGameObject {
		s.gameObject = info
	}
	return s
}
