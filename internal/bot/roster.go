package bot

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/udisondev/botsim/internal/model"
)

// Roster is the set of bots driven by the decision loop, grouped by map.
// Reads are lock-free snapshots; Register and Unregister copy on write.
type Roster struct {
	mu    sync.Mutex
	where map[model.EntityID]uint32
	byMap atomic.Pointer[map[uint32][]model.EntityID]
}

// NewRoster creates an empty roster.
func NewRoster() *Roster {
	r := &Roster{where: make(map[model.EntityID]uint32)}
	empty := make(map[uint32][]model.EntityID)
	r.byMap.Store(&empty)
	return r
}

// Register adds id on mapID, moving it if it was on another map.
func (r *Roster) Register(mapID uint32, id model.EntityID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, known := r.where[id]
	if known && prev == mapID {
		return
	}
	next := maps.Clone(*r.byMap.Load())
	if known {
		next[prev] = without(next[prev], id)
		if len(next[prev]) == 0 {
			delete(next, prev)
		}
	}
	next[mapID] = append(slices.Clone(next[mapID]), id)
	r.where[id] = mapID
	r.byMap.Store(&next)
}

// Unregister removes id. Reports whether it was registered.
func (r *Roster) Unregister(id model.EntityID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	mapID, ok := r.where[id]
	if !ok {
		return false
	}
	delete(r.where, id)
	next := maps.Clone(*r.byMap.Load())
	next[mapID] = without(next[mapID], id)
	if len(next[mapID]) == 0 {
		delete(next, mapID)
	}
	r.byMap.Store(&next)
	return true
}

// UnregisterMap drops every bot on mapID and returns how many were removed.
func (r *Roster) UnregisterMap(mapID uint32) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := (*r.byMap.Load())[mapID]
	if len(ids) == 0 {
		return 0
	}
	for _, id := range ids {
		delete(r.where, id)
	}
	next := maps.Clone(*r.byMap.Load())
	delete(next, mapID)
	r.byMap.Store(&next)
	return len(ids)
}

// Snapshot returns the current map → bots table. Callers must not modify it.
func (r *Roster) Snapshot() map[uint32][]model.EntityID {
	return *r.byMap.Load()
}

// Len returns number of registered bots.
func (r *Roster) Len() int {
	n := 0
	for _, ids := range *r.byMap.Load() {
		n += len(ids)
	}
	return n
}

func without(ids []model.EntityID, id model.EntityID) []model.EntityID {
	out := make([]model.EntityID, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
