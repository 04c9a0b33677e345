package model

import (
	"fmt"
	"sync/atomic"
)

// EntityKind is the variant tag of a world entity, fixed at spawn time.
type EntityKind uint8

const (
	KindInvalid EntityKind = iota
	KindCreature
	KindPlayer
	KindGameObject
	KindAreaTrigger
	KindDynamicObject

	kindCount
)

// String returns human-readable kind name.
func (k EntityKind) String() string {
	switch k {
	case KindCreature:
		return "creature"
	case KindPlayer:
		return "player"
	case KindGameObject:
		return "gameobject"
	case KindAreaTrigger:
		return "areatrigger"
	case KindDynamicObject:
		return "dynamicobject"
	default:
		return "invalid"
	}
}

// Valid reports whether k names a real entity kind.
func (k EntityKind) Valid() bool {
	return k > KindInvalid && k < kindCount
}

// KindMask selects one or more entity kinds in a query.
type KindMask uint8

// KindAny matches every entity kind.
const KindAny KindMask = 1<<kindCount - 2

// MaskOf builds a mask from kinds.
func MaskOf(kinds ...EntityKind) KindMask {
	var m KindMask
	for _, k := range kinds {
		m |= k.Mask()
	}
	return m
}

// Mask returns single-kind mask.
func (k EntityKind) Mask() KindMask {
	if !k.Valid() {
		return 0
	}
	return 1 << k
}

// Has reports whether kind k is selected.
func (m KindMask) Has(k EntityKind) bool {
	return m&k.Mask() != 0
}

// EntityID is a stable opaque entity identifier. Never a memory reference.
//
// Layout: top byte = EntityKind, low 56 bits = per-kind counter.
//
//	0x01xxxxxxxxxxxxxx: creatures
//	0x02xxxxxxxxxxxxxx: players
//	0x03xxxxxxxxxxxxxx: game objects
//	0x04xxxxxxxxxxxxxx: area triggers
//	0x05xxxxxxxxxxxxxx: dynamic objects
//
// 0 is reserved as "no entity".
type EntityID uint64

const (
	kindShift   = 56
	counterMask = 1<<kindShift - 1
)

// NoEntity is the zero ID.
const NoEntity EntityID = 0

// MakeEntityID composes an ID from kind and counter.
func MakeEntityID(kind EntityKind, counter uint64) EntityID {
	return EntityID(uint64(kind)<<kindShift | counter&counterMask)
}

// Kind extracts the kind encoded in the ID.
func (id EntityID) Kind() EntityKind {
	return EntityKind(id >> kindShift)
}

// Counter returns the per-kind part of the ID.
func (id EntityID) Counter() uint64 {
	return uint64(id) & counterMask
}

// IsZero reports whether id is NoEntity.
func (id EntityID) IsZero() bool {
	return id == NoEntity
}

func (id EntityID) String() string {
	return fmt.Sprintf("%s:%d", id.Kind(), id.Counter())
}

// IDGenerator issues unique entity IDs for all kinds.
// Thread-safe via atomic increment.
type IDGenerator struct {
	next [kindCount]atomic.Uint64
}

// NewIDGenerator creates a new ID generator.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// Next returns the next unique ID of the given kind.
func (g *IDGenerator) Next(kind EntityKind) EntityID {
	if !kind.Valid() {
		panic(fmt.Sprintf("model: IDGenerator.Next with invalid kind %d", kind))
	}
	return MakeEntityID(kind, g.next[kind].Add(1))
}
