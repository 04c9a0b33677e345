package action

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/udisondev/botsim/internal/model"
)

// DefaultGlobalCooldown is the global cooldown triggered by most casts.
const DefaultGlobalCooldown = 1500 * time.Millisecond

// Spell is what the validator needs to know about a spell.
type Spell struct {
	ID          uint32
	Name        string
	Range       float64
	Cost        int64
	PowerType   model.PowerType
	Cooldown    time.Duration
	TriggersGCD bool
	RequiresLOS bool
	SelfCast    bool  // always targets the caster
	AllowDead   bool  // may target dead units (resurrection)
	Amount      int64 // effect magnitude, interpreted by the rules engine
}

// LiveWorld reads current live state by stable ID. Implementations are only
// ever called from the authoritative thread.
type LiveWorld interface {
	Lookup(id model.EntityID) (model.Snapshot, bool)
}

// Rules is the game rules engine the validator defers to.
type Rules interface {
	// Spell resolves a spell by ID.
	Spell(id uint32) (Spell, bool)
	// Reach is the maximum distance for non-cast kinds. Zero or less means unlimited.
	Reach(kind Kind) float64
	// Check performs kind-specific legality checks after the generic ones.
	// target is nil when the request targets a point or the target was not resolved.
	Check(req Request, requester *model.Snapshot, target *model.Snapshot) (Result, string)
	// Apply performs the mutation of a validated request. req.Skip holds the
	// request flags merged with ValidatorConfig.DefaultSkip.
	Apply(req Request, spell Spell) error
}

// LineOfSight answers visibility between two points on a map.
type LineOfSight interface {
	CanSeeTarget(mapID uint32, from, to model.Position) bool
}

// ValidatorConfig holds validator tunables.
type ValidatorConfig struct {
	GlobalCooldown time.Duration
	// DefaultSkip is merged into every request's flags. All false performs every check.
	DefaultSkip SkipChecks
}

// Validator decides whether a request is currently legal against live state
// and applies it. Not safe for concurrent use: it runs on the authoritative
// thread only, which is the sole mutator of the live world.
type Validator struct {
	rules     Rules
	los       LineOfSight
	cooldowns *CooldownBook
	cfg       ValidatorConfig

	tick uint64
	now  time.Time

	// exclusive targets applied this tick: target → winning requester
	claims map[model.EntityID]model.EntityID
}

// NewValidator creates a validator. los may be nil, which treats every pair
// of points as visible.
func NewValidator(rules Rules, los LineOfSight, cfg ValidatorConfig) *Validator {
	if cfg.GlobalCooldown < 0 {
		cfg.GlobalCooldown = 0
	}
	return &Validator{
		rules:     rules,
		los:       los,
		cooldowns: NewCooldownBook(),
		cfg:       cfg,
		now:       time.Now(),
		claims:    make(map[model.EntityID]model.EntityID),
	}
}

// BeginTick sets the validation clock and clears per-tick contention claims.
func (v *Validator) BeginTick(tick uint64, now time.Time) {
	v.tick = tick
	v.now = now
	clear(v.claims)
}

// Now returns the validation clock.
func (v *Validator) Now() time.Time {
	return v.now
}

// Cooldowns exposes the cooldown book (pruning, despawn cleanup).
func (v *Validator) Cooldowns() *CooldownBook {
	return v.cooldowns
}

type resolved struct {
	requester model.Snapshot
	target    model.Snapshot
	hasTarget bool
	spell     Spell
}

func (r *resolved) targetRef() *model.Snapshot {
	if !r.hasTarget {
		return nil
	}
	return &r.target
}

// Validate runs every non-bypassed check against live state without mutating
// anything. Checks run in order: requester existence, requester state, target
// existence and aliveness, range, resource, cooldown, global cooldown, line
// of sight (casts), then the rules engine's kind-specific checks. The first
// failure decides the result.
//
// A passing request is reported as Success in StateValidating with the
// cooldown expiries it would start.
func (v *Validator) Validate(req Request, live LiveWorld) Outcome {
	out, _ := v.validate(req, live)
	return out
}

func (v *Validator) validate(req Request, live LiveWorld) (Outcome, resolved) {
	var r resolved
	if err := req.wellFormed(); err != nil {
		return reject(req, v.tick, InvalidRequest, err.Error()), r
	}
	skip := req.Skip.Merge(v.cfg.DefaultSkip)

	if req.Kind == KindCast {
		spell, ok := v.rules.Spell(req.SpellID)
		if !ok {
			return reject(req, v.tick, InvalidRequest, fmt.Sprintf("unknown spell %d", req.SpellID)), r
		}
		r.spell = spell
	}

	// Requester existence is never bypassed: nothing can act on its behalf.
	requester, ok := live.Lookup(req.Requester)
	if !ok || requester.MapID != req.MapID {
		return reject(req, v.tick, RequesterMissing, fmt.Sprintf("requester %s not on map %d", req.Requester, req.MapID)), r
	}
	r.requester = requester
	unit, isUnit := requester.Unit()
	if !isUnit {
		return reject(req, v.tick, InvalidRequest, fmt.Sprintf("requester %s is a %s", req.Requester, requester.Kind)), r
	}

	if !skip.State {
		switch {
		case !unit.Alive:
			return reject(req, v.tick, CasterInvalidState, "requester is dead"), r
		case unit.Controlled:
			return reject(req, v.tick, CasterInvalidState, "requester is crowd-controlled"), r
		case unit.Casting && req.Kind == KindCast:
			return reject(req, v.tick, CasterInvalidState, "requester is already casting"), r
		}
	}

	if tid, ok := targetOf(req, r.spell); ok {
		if target, found := live.Lookup(tid); found && target.MapID == req.MapID {
			r.target = target
			r.hasTarget = true
		}
		if !skip.Target {
			if !r.hasTarget {
				return reject(req, v.tick, TargetMissing, fmt.Sprintf("target %s not found", tid)), r
			}
			if !targetAlive(req.Kind, r.spell, &r.target) {
				return reject(req, v.tick, TargetDead, fmt.Sprintf("target %s is dead", tid)), r
			}
		}
	}

	if !skip.Range {
		if ok, dist, limit := v.inRange(req, &r, unit); !ok {
			return reject(req, v.tick, OutOfRange, fmt.Sprintf("distance %.1f exceeds %.1f", dist, limit)), r
		}
	}

	if req.Kind == KindCast {
		spell := r.spell
		if !skip.Resource && spell.Cost > 0 {
			if unit.PowerType != spell.PowerType || unit.Power < spell.Cost {
				return reject(req, v.tick, InsufficientResource,
					fmt.Sprintf("need %d %s, have %d %s", spell.Cost, spell.PowerType, unit.Power, unit.PowerType)), r
			}
		}
		if !skip.Cooldown {
			if ready, end := v.cooldowns.SpellReady(req.Requester, spell.ID, v.now); !ready {
				return reject(req, v.tick, OnCooldown, fmt.Sprintf("spell %d ready in %s", spell.ID, end.Sub(v.now))), r
			}
		}
		if !skip.GCD && spell.TriggersGCD {
			if ready, end := v.cooldowns.GCDReady(req.Requester, v.now); !ready {
				return reject(req, v.tick, OnGlobalCooldown, fmt.Sprintf("global cooldown ends in %s", end.Sub(v.now))), r
			}
		}
		if !skip.LOS && spell.RequiresLOS && v.los != nil {
			if to, ok := v.aimPoint(req, &r); ok && !v.los.CanSeeTarget(req.MapID, requester.Pos, to) {
				return reject(req, v.tick, NoLineOfSight, "target not in line of sight"), r
			}
		}
	}

	if res, reason := v.rules.Check(req, &r.requester, r.targetRef()); res != Success {
		return reject(req, v.tick, res, reason), r
	}

	out := Outcome{Request: req, Result: Success, State: StateValidating, Tick: v.tick}
	if req.Kind == KindCast {
		if r.spell.Cooldown > 0 {
			out.CooldownEnd = v.now.Add(r.spell.Cooldown)
		}
		if r.spell.TriggersGCD && v.cfg.GlobalCooldown > 0 {
			out.GCDEnd = v.now.Add(v.cfg.GlobalCooldown)
		}
	}
	return out, r
}

// Process validates req and, when legal, applies it through the rules engine
// and starts its cooldowns. Interact and loot targets are exclusive per tick:
// the first request to reach them in drain order wins, later requests from
// other requesters are rejected as Contended.
func (v *Validator) Process(req Request, live LiveWorld) Outcome {
	out, r := v.validate(req, live)
	if !out.OK() {
		v.logReject(out)
		return out
	}

	exclusive := (req.Kind == KindInteract || req.Kind == KindLoot) && r.hasTarget
	if exclusive {
		if winner, taken := v.claims[r.target.ID]; taken && winner != req.Requester {
			out = reject(req, v.tick, Contended, fmt.Sprintf("target %s claimed by %s", r.target.ID, winner))
			v.logReject(out)
			return out
		}
	}

	// Rules see the effective bypass set, configured defaults included.
	applied := req.WithSkip(req.Skip.Merge(v.cfg.DefaultSkip))
	if err := v.rules.Apply(applied, r.spell); err != nil {
		out = reject(req, v.tick, ApplyFailed, err.Error())
		v.logReject(out)
		return out
	}

	if exclusive {
		v.claims[r.target.ID] = req.Requester
	}
	if req.Kind == KindCast {
		out.CooldownEnd = v.cooldowns.StartSpell(req.Requester, r.spell.ID, v.now, r.spell.Cooldown)
		if r.spell.TriggersGCD {
			out.GCDEnd = v.cooldowns.StartGCD(req.Requester, v.now, v.cfg.GlobalCooldown)
		}
	}
	out.State = StateApplied
	return out
}

func (v *Validator) logReject(out Outcome) {
	slog.Debug("action rejected",
		"requester", out.Request.Requester,
		"action", out.Request.Kind,
		"result", out.Result,
		"reason", out.Reason,
		"tick", out.Tick)
}

// targetOf returns the entity a request acts on, if any.
func targetOf(req Request, spell Spell) (model.EntityID, bool) {
	switch req.Kind {
	case KindMove:
		return model.NoEntity, false
	case KindCast:
		if spell.SelfCast {
			return req.Requester, true
		}
		if req.Target.IsEntity() {
			return req.Target.ID, true
		}
		return model.NoEntity, false
	default:
		return req.Target.ID, true
	}
}

func targetAlive(kind Kind, spell Spell, target *model.Snapshot) bool {
	switch kind {
	case KindCast:
		if spell.AllowDead && target.IsUnit() {
			return true
		}
		return target.IsAlive()
	case KindLoot:
		// corpses are lootable; objects must still be spawned
		if target.IsUnit() {
			return true
		}
		return target.IsAlive()
	default:
		return target.IsAlive()
	}
}

// inRange checks the distance limit of req. Unresolved targets are not
// range checked.
func (v *Validator) inRange(req Request, r *resolved, unit model.UnitState) (ok bool, dist, limit float64) {
	from := r.requester.Pos
	var to model.Position
	switch {
	case req.Kind == KindMove:
		to = req.Target.Point
		limit = v.rules.Reach(KindMove)
	case req.Kind == KindCast && r.spell.SelfCast:
		return true, 0, 0
	case req.Kind == KindCast && req.Target.HasPoint:
		to = req.Target.Point
		limit = r.spell.Range
	case !r.hasTarget:
		return true, 0, 0
	default:
		to = r.target.Pos
		if req.Kind == KindCast {
			limit = r.spell.Range
		} else {
			limit = v.rules.Reach(req.Kind)
		}
		if limit > 0 {
			limit += unit.CombatReach
			if tu, ok := r.target.Unit(); ok {
				limit += tu.CombatReach
			}
		}
	}
	if limit <= 0 {
		return true, 0, limit
	}
	distSq := from.DistanceSquared(to)
	if distSq <= limit*limit {
		return true, 0, limit
	}
	return false, from.Distance(to), limit
}

func (v *Validator) aimPoint(req Request, r *resolved) (model.Position, bool) {
	switch {
	case req.Target.HasPoint:
		return req.Target.Point, true
	case r.hasTarget && r.target.ID != r.requester.ID:
		return r.target.Pos, true
	default:
		return model.Position{}, false
	}
}
