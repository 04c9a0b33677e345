package bot

import (
	"github.com/udisondev/botsim/internal/action"
	"github.com/udisondev/botsim/internal/model"
	"github.com/udisondev/botsim/internal/spatial"
)

// AggroConfig tunes AggroBrain.
type AggroConfig struct {
	SightRadius float64 // hostiles farther than this are ignored
	SpellID     uint32  // 0 disables casting
	SpellRange  float64
	MeleeRange  float64
	LootRadius  float64
	MoveStep    float64 // distance covered by one move request
}

// DefaultAggroConfig returns a melee-and-bolt setup.
func DefaultAggroConfig() AggroConfig {
	return AggroConfig{
		SightRadius: 60,
		SpellID:     1,
		SpellRange:  30,
		MeleeRange:  5,
		LootRadius:  20,
		MoveStep:    10,
	}
}

var (
	unitMask = model.MaskOf(model.KindCreature, model.KindPlayer)
	lootMask = model.MaskOf(model.KindCreature, model.KindGameObject)
)

// AggroBrain attacks the nearest living hostile unit: casts when in spell
// range, swings when in melee range, closes in otherwise. Out of combat it
// loots nearby corpses and chests.
type AggroBrain struct {
	cfg AggroConfig
	buf []model.Snapshot
}

// NewAggroBrain creates a brain. One per worker: it reuses a scratch buffer.
func NewAggroBrain(cfg AggroConfig) *AggroBrain {
	return &AggroBrain{cfg: cfg, buf: make([]model.Snapshot, 0, 32)}
}

// AggroFactory returns a factory building one AggroBrain per worker.
func AggroFactory(cfg AggroConfig) BrainFactory {
	return func(int) (Brain, error) {
		return NewAggroBrain(cfg), nil
	}
}

// Decide implements Brain.
func (b *AggroBrain) Decide(view View, self model.Snapshot) []action.Request {
	u, ok := self.Unit()
	if !ok || !u.Alive || u.Controlled {
		return nil
	}

	if target, dist, found := b.nearest(view, unitMask, self.Pos, b.cfg.SightRadius, func(s *model.Snapshot) bool {
		return s.ID != self.ID && s.IsAlive() && self.IsHostileTo(s)
	}); found {
		switch {
		case b.cfg.SpellID != 0 && dist <= b.cfg.SpellRange && !u.Casting:
			return []action.Request{action.Cast(self.ID, view.MapID(), b.cfg.SpellID, action.TargetEntity(target.ID))}
		case dist <= b.cfg.MeleeRange:
			return []action.Request{action.Attack(self.ID, view.MapID(), target.ID)}
		default:
			return []action.Request{action.Move(self.ID, view.MapID(), self.Pos.Towards(target.Pos, b.cfg.MoveStep))}
		}
	}

	if u.InCombat {
		return nil
	}
	loot, dist, found := b.nearest(view, lootMask, self.Pos, b.cfg.LootRadius, lootable)
	if !found {
		return nil
	}
	if dist <= b.cfg.MeleeRange {
		return []action.Request{action.Loot(self.ID, view.MapID(), loot.ID)}
	}
	return []action.Request{action.Move(self.ID, view.MapID(), self.Pos.Towards(loot.Pos, b.cfg.MoveStep))}
}

func lootable(s *model.Snapshot) bool {
	if info, ok := s.AsGameObject(); ok {
		return info.Spawned && info.Lootable
	}
	if _, ok := s.AsCreature(); ok {
		return !s.IsAlive()
	}
	return false
}

func (b *AggroBrain) nearest(view View, mask model.KindMask, origin model.Position, radius float64, accept func(*model.Snapshot) bool) (model.Snapshot, float64, bool) {
	b.buf = view.Query(b.buf[:0], mask, spatial.Sphere{Center: origin, Radius: radius})

	var best model.Snapshot
	bestSq := -1.0
	for i := range b.buf {
		s := &b.buf[i]
		if !accept(s) {
			continue
		}
		d := origin.DistanceSquared(s.Pos)
		if bestSq < 0 || d < bestSq {
			best, bestSq = *s, d
		}
	}
	if bestSq < 0 {
		return model.Snapshot{}, 0, false
	}
	return best, origin.Distance(best.Pos), true
}
