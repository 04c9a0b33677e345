package model

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pointerFree walks t and reports the first field path holding a reference type.
func pointerFree(t reflect.Type, path string) (string, bool) {
	switch t.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func,
		reflect.Interface, reflect.String, reflect.UnsafePointer:
		return path, false
	case reflect.Struct:
		for i := range t.NumField() {
			f := t.Field(i)
			if p, ok := pointerFree(f.Type, path+"."+f.Name); !ok {
				return p, false
			}
		}
	case reflect.Array:
		return pointerFree(t.Elem(), path+"[]")
	}
	return "", true
}

func TestSnapshot_HoldsNoReferences(t *testing.T) {
	path, ok := pointerFree(reflect.TypeOf(Snapshot{}), "Snapshot")
	assert.True(t, ok, "snapshot must be plain data, found reference at %s", path)
}

func TestSnapshot_VariantAccessors(t *testing.T) {
	gen := NewIDGenerator()
	pos := NewPosition(1, 2, 3)

	creature := NewCreatureSnapshot(gen.Next(KindCreature), 1, pos,
		UnitState{Health: 50, MaxHealth: 100, Alive: true, Faction: 14},
		CreatureInfo{Entry: 299, FlagsExtra: 0x40})

	info, ok := creature.AsCreature()
	require.True(t, ok)
	assert.Equal(t, uint32(299), info.Entry)
	assert.Equal(t, uint32(0x40), info.FlagsExtra)

	_, ok = creature.AsPlayer()
	assert.False(t, ok)
	_, ok = creature.AsGameObject()
	assert.False(t, ok)

	unit, ok := creature.Unit()
	require.True(t, ok)
	assert.InDelta(t, 50.0, unit.HealthPct(), 0.001)
	assert.True(t, creature.IsAlive())

	chest := NewGameObjectSnapshot(gen.Next(KindGameObject), 1, pos,
		GameObjectInfo{Type: GOChest, Spawned: true, Lootable: true})
	_, ok = chest.Unit()
	assert.False(t, ok, "game objects have no unit payload")
	goInfo, ok := chest.AsGameObject()
	require.True(t, ok)
	assert.Equal(t, GOChest, goInfo.Type)
	assert.True(t, chest.IsAlive())
}

func TestSnapshot_IsAlive_AreaEffects(t *testing.T) {
	at := NewAreaTriggerSnapshot(MakeEntityID(KindAreaTrigger, 1), 0, Position{},
		AreaTriggerInfo{SpellID: 10, Remaining: time.Second})
	assert.True(t, at.IsAlive())

	expired := NewDynamicObjectSnapshot(MakeEntityID(KindDynamicObject, 1), 0, Position{},
		DynamicObjectInfo{SpellID: 10})
	assert.False(t, expired.IsAlive())
}

func TestSnapshot_IsHostileTo(t *testing.T) {
	a := NewPlayerSnapshot(MakeEntityID(KindPlayer, 1), 0, Position{}, UnitState{Faction: 1, Alive: true}, PlayerInfo{})
	b := NewCreatureSnapshot(MakeEntityID(KindCreature, 1), 0, Position{}, UnitState{Faction: 2, Alive: true}, CreatureInfo{})
	c := NewCreatureSnapshot(MakeEntityID(KindCreature, 2), 0, Position{}, UnitState{Faction: 1, Alive: true}, CreatureInfo{})
	obj := NewGameObjectSnapshot(MakeEntityID(KindGameObject, 1), 0, Position{}, GameObjectInfo{})

	assert.True(t, a.IsHostileTo(&b))
	assert.False(t, a.IsHostileTo(&c))
	assert.False(t, a.IsHostileTo(&obj))
}

func TestSnapshot_WithUnit_IgnoresNonUnits(t *testing.T) {
	obj := NewGameObjectSnapshot(MakeEntityID(KindGameObject, 1), 0, Position{}, GameObjectInfo{Spawned: true})
	obj = obj.WithUnit(UnitState{Health: 10})
	_, ok := obj.Unit()
	assert.False(t, ok)
}
