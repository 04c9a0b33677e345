package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/botsim/internal/action"
)

func TestAggroBrain_CastsInSpellRange(t *testing.T) {
	me := player(1, 0, 0, 1)
	mob := creature(1, 20, 0, true)
	brain := NewAggroBrain(DefaultAggroConfig())

	reqs := brain.Decide(viewOf(t, me, mob), me)

	require.Len(t, reqs, 1)
	assert.Equal(t, action.KindCast, reqs[0].Kind)
	assert.Equal(t, mob.ID, reqs[0].Target.ID)
	assert.Equal(t, uint32(testMap), reqs[0].MapID)
}

func TestAggroBrain_MeleeWithoutSpell(t *testing.T) {
	me := player(1, 0, 0, 1)
	mob := creature(1, 3, 0, true)
	cfg := DefaultAggroConfig()
	cfg.SpellID = 0

	reqs := NewAggroBrain(cfg).Decide(viewOf(t, me, mob), me)

	require.Len(t, reqs, 1)
	assert.Equal(t, action.KindAttack, reqs[0].Kind)
}

func TestAggroBrain_ClosesDistance(t *testing.T) {
	me := player(1, 0, 0, 1)
	mob := creature(1, 50, 0, true)

	reqs := NewAggroBrain(DefaultAggroConfig()).Decide(viewOf(t, me, mob), me)

	require.Len(t, reqs, 1)
	assert.Equal(t, action.KindMove, reqs[0].Kind)
	assert.InDelta(t, 10.0, reqs[0].Target.Point.X, 1e-9, "one step toward the target")
}

func TestAggroBrain_IgnoresFriendsAndCorpsesInFight(t *testing.T) {
	me := player(1, 0, 0, 1)
	friend := player(2, 5, 0, 1)
	corpse := creature(1, 4, 0, false)

	reqs := NewAggroBrain(DefaultAggroConfig()).Decide(viewOf(t, me, friend, corpse), me)

	require.Len(t, reqs, 1, "nothing hostile, so it loots the corpse")
	assert.Equal(t, action.KindLoot, reqs[0].Kind)
	assert.Equal(t, corpse.ID, reqs[0].Target.ID)
}

func TestAggroBrain_WalksToChest(t *testing.T) {
	me := player(1, 0, 0, 1)
	box := chest(1, 15, 0)

	reqs := NewAggroBrain(DefaultAggroConfig()).Decide(viewOf(t, me, box), me)

	require.Len(t, reqs, 1)
	assert.Equal(t, action.KindMove, reqs[0].Kind)
}

func TestAggroBrain_DeadBotDoesNothing(t *testing.T) {
	me := player(1, 0, 0, 1)
	u, _ := me.Unit()
	u.Alive = false
	me = me.WithUnit(u)

	assert.Empty(t, NewAggroBrain(DefaultAggroConfig()).Decide(viewOf(t, me, creature(1, 3, 0, true)), me))
}

func TestView_Empty(t *testing.T) {
	v := NewView(testMap, nil)
	assert.Empty(t, v.Nearby(0, player(1, 0, 0, 1).Pos, 10))
	_, ok := v.Lookup(player(1, 0, 0, 1).ID)
	assert.False(t, ok)
	assert.Zero(t, v.Generation())
}
