package action

import (
	"fmt"
	"time"

	"github.com/udisondev/botsim/internal/model"
)

// Kind is the kind of mutation a request asks for.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindCast
	KindMove
	KindInteract
	KindAttack
	KindLoot
)

func (k Kind) String() string {
	switch k {
	case KindCast:
		return "cast"
	case KindMove:
		return "move"
	case KindInteract:
		return "interact"
	case KindAttack:
		return "attack"
	case KindLoot:
		return "loot"
	default:
		return "invalid"
	}
}

// ParseKind resolves a kind by name (as produced by String).
func ParseKind(s string) (Kind, bool) {
	for k := KindCast; k <= KindLoot; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return KindInvalid, false
}

// Target references an entity by stable ID or a world point. Never a live object.
type Target struct {
	ID       model.EntityID
	Point    model.Position
	HasPoint bool
}

// TargetEntity targets an entity.
func TargetEntity(id model.EntityID) Target {
	return Target{ID: id}
}

// TargetPoint targets a world point.
func TargetPoint(p model.Position) Target {
	return Target{Point: p, HasPoint: true}
}

// IsEntity reports whether the target references an entity.
func (t Target) IsEntity() bool {
	return !t.HasPoint && !t.ID.IsZero()
}

func (t Target) String() string {
	if t.HasPoint {
		return fmt.Sprintf("point(%.1f,%.1f,%.1f)", t.Point.X, t.Point.Y, t.Point.Z)
	}
	return t.ID.String()
}

// SkipChecks lists validation bypasses. The zero value performs every check.
type SkipChecks struct {
	GCD      bool `yaml:"skip_gcd_check"`
	Resource bool `yaml:"skip_resource_check"`
	Range    bool `yaml:"skip_range_check"`
	Target   bool `yaml:"skip_target_check"`
	State    bool `yaml:"skip_state_check"`
	LOS      bool `yaml:"skip_los_check"`
	Cooldown bool `yaml:"skip_cooldown_check"`
}

// Merge returns the union of both flag sets.
func (s SkipChecks) Merge(o SkipChecks) SkipChecks {
	return SkipChecks{
		GCD:      s.GCD || o.GCD,
		Resource: s.Resource || o.Resource,
		Range:    s.Range || o.Range,
		Target:   s.Target || o.Target,
		State:    s.State || o.State,
		LOS:      s.LOS || o.LOS,
		Cooldown: s.Cooldown || o.Cooldown,
	}
}

// Any reports whether at least one check is bypassed.
func (s SkipChecks) Any() bool {
	return s != SkipChecks{}
}

// Request describes a mutation a worker wants the authoritative thread to perform.
// It is a plain value: copying it is safe and nothing in it points at live state.
type Request struct {
	Requester model.EntityID
	MapID     uint32
	Kind      Kind
	Target    Target
	SpellID   uint32 // casts
	Param     uint32 // interaction or loot parameter (item slot, gossip option)

	SubmittedAt time.Time
	Skip        SkipChecks

	// Seq is assigned by Queue.Enqueue; strictly increasing in enqueue order.
	Seq uint64
}

// Cast builds a spell cast request.
func Cast(requester model.EntityID, mapID, spellID uint32, target Target) Request {
	return Request{Requester: requester, MapID: mapID, Kind: KindCast, SpellID: spellID, Target: target}
}

// Move builds a movement request toward dst.
func Move(requester model.EntityID, mapID uint32, dst model.Position) Request {
	return Request{Requester: requester, MapID: mapID, Kind: KindMove, Target: TargetPoint(dst)}
}

// Attack builds a melee attack request.
func Attack(requester model.EntityID, mapID uint32, target model.EntityID) Request {
	return Request{Requester: requester, MapID: mapID, Kind: KindAttack, Target: TargetEntity(target)}
}

// Interact builds a game-object interaction request.
func Interact(requester model.EntityID, mapID uint32, target model.EntityID) Request {
	return Request{Requester: requester, MapID: mapID, Kind: KindInteract, Target: TargetEntity(target)}
}

// Loot builds a loot request against a corpse or lootable object.
func Loot(requester model.EntityID, mapID uint32, target model.EntityID) Request {
	return Request{Requester: requester, MapID: mapID, Kind: KindLoot, Target: TargetEntity(target)}
}

// WithSkip returns a copy with the given bypasses.
func (r Request) WithSkip(s SkipChecks) Request {
	r.Skip = s
	return r
}

// wellFormed checks the structural shape of r, independent of world state.
func (r Request) wellFormed() error {
	if r.Requester.IsZero() {
		return fmt.Errorf("no requester")
	}
	switch r.Kind {
	case KindCast:
		if r.SpellID == 0 {
			return fmt.Errorf("cast without spell")
		}
	case KindMove:
		if !r.Target.HasPoint {
			return fmt.Errorf("move without destination")
		}
		if !r.Target.Point.IsFinite() {
			return fmt.Errorf("move to non-finite destination")
		}
	case KindInteract, KindAttack, KindLoot:
		if !r.Target.IsEntity() {
			return fmt.Errorf("%s without target entity", r.Kind)
		}
	default:
		return fmt.Errorf("unknown action kind %d", r.Kind)
	}
	return nil
}
