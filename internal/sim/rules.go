package sim

import (
	"fmt"
	"time"

	"github.com/udisondev/botsim/internal/action"
	"github.com/udisondev/botsim/internal/model"
)

// RulesConfig tunes BasicRules.
type RulesConfig struct {
	MeleeRange    float64
	InteractRange float64
	MoveReach     float64 // furthest destination a move may name
	MaxMoveStep   float64 // distance actually covered per applied move
	MeleeDamage   int64
	PowerRegen    int64 // per second, alive units
	CombatTimeout time.Duration
	CorpseDecay   time.Duration
	GroundRadius  float64 // radius of dynamic objects left by ground-targeted casts
	GroundTime    time.Duration
}

// DefaultRulesConfig returns the reference tuning.
func DefaultRulesConfig() RulesConfig {
	return RulesConfig{
		MeleeRange:    5,
		InteractRange: 5,
		MoveReach:     100,
		MaxMoveStep:   15,
		MeleeDamage:   8,
		PowerRegen:    5,
		CombatTimeout: 5 * time.Second,
		CorpseDecay:   30 * time.Second,
		GroundRadius:  8,
		GroundTime:    5 * time.Second,
	}
}

// DefaultSpells is a small catalog: a bolt, a self heal and a ground effect.
func DefaultSpells() []action.Spell {
	return []action.Spell{
		{ID: 1, Name: "frost bolt", Range: 30, Cost: 15, PowerType: model.PowerMana, Cooldown: 2 * time.Second, TriggersGCD: true, RequiresLOS: true, Amount: 20},
		{ID: 2, Name: "renew", Cost: 20, PowerType: model.PowerMana, Cooldown: 10 * time.Second, TriggersGCD: true, SelfCast: true, Amount: -30},
		{ID: 3, Name: "blizzard", Range: 35, Cost: 40, PowerType: model.PowerMana, Cooldown: 8 * time.Second, TriggersGCD: true, RequiresLOS: true, Amount: 6},
	}
}

// BasicRules is the reference rules engine: a spell catalog, reach limits
// and the mutations themselves. Runs on the authoritative goroutine only.
type BasicRules struct {
	world  *World
	cfg    RulesConfig
	spells map[uint32]action.Spell
	now    time.Time
}

// NewBasicRules creates a rules engine acting on world.
func NewBasicRules(world *World, cfg RulesConfig, spells ...action.Spell) *BasicRules {
	r := &BasicRules{
		world:  world,
		cfg:    cfg,
		spells: make(map[uint32]action.Spell, len(spells)),
		now:    time.Now(),
	}
	for _, s := range spells {
		r.spells[s.ID] = s
	}
	return r
}

// Spell implements action.Rules.
func (r *BasicRules) Spell(id uint32) (action.Spell, bool) {
	s, ok := r.spells[id]
	return s, ok
}

// Reach implements action.Rules.
func (r *BasicRules) Reach(kind action.Kind) float64 {
	switch kind {
	case action.KindAttack:
		return r.cfg.MeleeRange
	case action.KindInteract, action.KindLoot:
		return r.cfg.InteractRange
	case action.KindMove:
		return r.cfg.MoveReach
	default:
		return 0
	}
}

// Check implements action.Rules.
func (r *BasicRules) Check(req action.Request, requester, target *model.Snapshot) (action.Result, string) {
	if target == nil {
		return action.Success, ""
	}
	switch req.Kind {
	case action.KindAttack:
		if !target.IsUnit() {
			return action.InvalidRequest, fmt.Sprintf("cannot attack a %s", target.Kind)
		}
		if !requester.IsHostileTo(target) {
			return action.InvalidRequest, "target is not hostile"
		}
	case action.KindCast:
		spell := r.spells[req.SpellID]
		if target.ID == requester.ID || !target.IsUnit() {
			break
		}
		if spell.Amount > 0 && !requester.IsHostileTo(target) {
			return action.InvalidRequest, "harmful spell on a friendly target"
		}
		if spell.Amount < 0 && requester.IsHostileTo(target) {
			return action.InvalidRequest, "helpful spell on a hostile target"
		}
	case action.KindInteract:
		info, ok := target.AsGameObject()
		if !ok {
			return action.InvalidRequest, fmt.Sprintf("cannot interact with a %s", target.Kind)
		}
		if info.State == model.GOStateDepleted {
			return action.InvalidRequest, "object is depleted"
		}
	case action.KindLoot:
		if info, ok := target.AsGameObject(); ok {
			if !info.Lootable {
				return action.InvalidRequest, "object has no loot"
			}
			break
		}
		if target.Kind != model.KindCreature {
			return action.InvalidRequest, fmt.Sprintf("cannot loot a %s", target.Kind)
		}
		if target.IsAlive() {
			return action.InvalidRequest, "cannot loot a living creature"
		}
	}
	return action.Success, ""
}

// Apply implements action.Rules.
func (r *BasicRules) Apply(req action.Request, spell action.Spell) error {
	self, ok := r.world.Entity(req.Requester)
	if !ok {
		return fmt.Errorf("requester %s vanished", req.Requester)
	}

	switch req.Kind {
	case action.KindMove:
		return r.world.Move(self.ID, self.Pos.Towards(req.Target.Point, r.cfg.MaxMoveStep))

	case action.KindAttack:
		target, err := r.target(req)
		if err != nil {
			return err
		}
		self.Unit.TargetID = target.ID
		r.damage(self, target, r.cfg.MeleeDamage)
		return nil

	case action.KindCast:
		return r.cast(self, req, spell)

	case action.KindInteract:
		target, err := r.target(req)
		if err != nil {
			return err
		}
		switch target.GameObject.Type {
		case model.GODoor, model.GOButton:
			if target.GameObject.State == model.GOStateActive {
				target.GameObject.State = model.GOStateReady
			} else {
				target.GameObject.State = model.GOStateActive
			}
		case model.GOGatheringNode:
			target.GameObject.State = model.GOStateDepleted
			target.GameObject.Lootable = true
		default:
			target.GameObject.State = model.GOStateActive
		}
		return nil

	case action.KindLoot:
		target, err := r.target(req)
		if err != nil {
			return err
		}
		if target.Kind == model.KindCreature {
			r.world.Despawn(target.ID)
			return nil
		}
		target.GameObject.Lootable = false
		target.GameObject.State = model.GOStateDepleted
		return nil
	}
	return fmt.Errorf("unsupported action %s", req.Kind)
}

func (r *BasicRules) target(req action.Request) (*Entity, error) {
	t, ok := r.world.Entity(req.Target.ID)
	if !ok {
		return nil, fmt.Errorf("target %s vanished: %w", req.Target.ID, ErrNoEntity)
	}
	return t, nil
}

// cast resolves everything that can fail before spending power, so a cast
// that errors leaves the world untouched.
func (r *BasicRules) cast(self *Entity, req action.Request, spell action.Spell) error {
	var target *Entity
	switch {
	case spell.SelfCast:
		target = self
	case req.Target.HasPoint:
		if !req.Target.Point.IsFinite() {
			return fmt.Errorf("ground target %v is not finite", req.Target.Point)
		}
		if !r.world.HasMap(self.MapID) {
			return fmt.Errorf("caster map %d not loaded", self.MapID)
		}
	default:
		t, err := r.target(req)
		if err != nil {
			return err
		}
		target = t
	}

	if spell.Cost > 0 && !req.Skip.Resource {
		self.Unit.Power = max(self.Unit.Power-spell.Cost, 0)
	}

	if req.Target.HasPoint && !spell.SelfCast {
		_, err := r.world.Spawn(Entity{
			Kind:  model.KindDynamicObject,
			MapID: self.MapID,
			Pos:   req.Target.Point,
			DynamicObject: model.DynamicObjectInfo{
				SpellID:   spell.ID,
				CasterID:  self.ID,
				Radius:    r.cfg.GroundRadius,
				Remaining: r.cfg.GroundTime,
			},
		})
		return err
	}
	if target == self {
		r.damage(self, self, spell.Amount)
		return nil
	}
	if target.IsUnit() {
		self.Unit.TargetID = target.ID
		r.damage(self, target, spell.Amount)
	}
	return nil
}

// damage applies amount to target; negative amounts heal. Killing blows and
// hostile hits put both sides in combat.
func (r *BasicRules) damage(src, target *Entity, amount int64) {
	if !target.IsUnit() || amount == 0 {
		return
	}
	if amount < 0 {
		if target.Unit.Alive {
			target.Unit.Health = min(target.Unit.Health-amount, target.Unit.MaxHealth)
		} else if target.Kind == model.KindPlayer {
			target.Unit.Alive = true
			target.Unit.Health = min(-amount, target.Unit.MaxHealth)
			target.DiedAt = time.Time{}
		}
		return
	}

	src.Unit.InCombat = true
	src.LastCombat = r.now
	target.Unit.InCombat = true
	target.LastCombat = r.now
	if target.Unit.TargetID.IsZero() {
		target.Unit.TargetID = src.ID
	}

	target.Unit.Health -= amount
	if target.Unit.Health <= 0 {
		target.Unit.Health = 0
		target.Unit.Alive = false
		target.Unit.InCombat = false
		target.Unit.Casting = false
		target.Unit.TargetID = model.NoEntity
		target.DiedAt = r.now
	}
}

// BeginTick sets the clock stamped on combat and deaths applied this tick.
func (r *BasicRules) BeginTick(now time.Time) {
	r.now = now
}

// Update runs the per-tick rule updates: power regeneration, combat drop,
// expiry of area effects and corpse decay.
func (r *BasicRules) Update(now time.Time, dt time.Duration) {
	r.now = now
	var expired []model.EntityID

	r.world.Each(func(e *Entity) {
		switch e.Kind {
		case model.KindCreature, model.KindPlayer:
			u := &e.Unit
			if !u.Alive {
				if e.Kind == model.KindCreature && !e.DiedAt.IsZero() && now.Sub(e.DiedAt) >= r.cfg.CorpseDecay {
					expired = append(expired, e.ID)
				}
				return
			}
			if u.MaxPower > 0 && r.cfg.PowerRegen > 0 && dt > 0 {
				gain := int64(float64(r.cfg.PowerRegen) * dt.Seconds())
				u.Power = min(u.Power+max(gain, 1), u.MaxPower)
			}
			if u.InCombat && now.Sub(e.LastCombat) >= r.cfg.CombatTimeout {
				u.InCombat = false
				u.TargetID = model.NoEntity
			}
		case model.KindAreaTrigger:
			e.AreaTrigger.Remaining -= dt
			if e.AreaTrigger.Remaining <= 0 {
				expired = append(expired, e.ID)
			}
		case model.KindDynamicObject:
			e.DynamicObject.Remaining -= dt
			if e.DynamicObject.Remaining <= 0 {
				expired = append(expired, e.ID)
			}
		}
	})

	for _, id := range expired {
		r.world.Despawn(id)
	}
}
