package action

import (
	"time"

	"github.com/udisondev/botsim/internal/model"
)

type cooldownKey struct {
	entity model.EntityID
	spell  uint32
}

// CooldownBook tracks spell cooldowns and the global cooldown per entity.
// Authoritative thread only, so plain maps.
type CooldownBook struct {
	spells map[cooldownKey]time.Time
	gcd    map[model.EntityID]time.Time
}

// NewCooldownBook creates an empty book.
func NewCooldownBook() *CooldownBook {
	return &CooldownBook{
		spells: make(map[cooldownKey]time.Time),
		gcd:    make(map[model.EntityID]time.Time),
	}
}

// SpellReady reports whether spell is off cooldown for id at now.
// When not ready, also returns the expiry.
func (b *CooldownBook) SpellReady(id model.EntityID, spell uint32, now time.Time) (bool, time.Time) {
	end, ok := b.spells[cooldownKey{id, spell}]
	if !ok || !now.Before(end) {
		return true, time.Time{}
	}
	return false, end
}

// GCDReady reports whether the global cooldown of id has expired at now.
func (b *CooldownBook) GCDReady(id model.EntityID, now time.Time) (bool, time.Time) {
	end, ok := b.gcd[id]
	if !ok || !now.Before(end) {
		return true, time.Time{}
	}
	return false, end
}

// StartSpell puts spell on cooldown for d and returns the expiry.
// Zero duration clears any recorded cooldown.
func (b *CooldownBook) StartSpell(id model.EntityID, spell uint32, now time.Time, d time.Duration) time.Time {
	key := cooldownKey{id, spell}
	if d <= 0 {
		delete(b.spells, key)
		return time.Time{}
	}
	end := now.Add(d)
	b.spells[key] = end
	return end
}

// StartGCD starts the global cooldown of id and returns its expiry.
func (b *CooldownBook) StartGCD(id model.EntityID, now time.Time, d time.Duration) time.Time {
	if d <= 0 {
		delete(b.gcd, id)
		return time.Time{}
	}
	end := now.Add(d)
	b.gcd[id] = end
	return end
}

// Forget drops every cooldown of id (despawn).
func (b *CooldownBook) Forget(id model.EntityID) {
	delete(b.gcd, id)
	for k := range b.spells {
		if k.entity == id {
			delete(b.spells, k)
		}
	}
}

// Prune drops expired entries and returns how many were removed.
func (b *CooldownBook) Prune(now time.Time) int {
	n := 0
	for k, end := range b.spells {
		if !now.Before(end) {
			delete(b.spells, k)
			n++
		}
	}
	for id, end := range b.gcd {
		if !now.Before(end) {
			delete(b.gcd, id)
			n++
		}
	}
	return n
}

// Len returns number of tracked entries.
func (b *CooldownBook) Len() int {
	return len(b.spells) + len(b.gcd)
}
