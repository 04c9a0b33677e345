package spatial

import (
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/udisondev/botsim/internal/model"
)

// Options configures indexes created by a Registry.
type Options struct {
	CellSize float64
	Shards   int
}

// Registry maps map IDs to their Index. Index lifetime is tied to map
// lifetime: GetOrCreate on load (or first write pass), Destroy on unload.
//
// Lookups are lock-free: the table is copy-on-write behind an atomic pointer.
// The mutex only serializes the rare insert/remove.
type Registry struct {
	opts Options

	mu      sync.Mutex
	indexes atomic.Pointer[map[uint32]*Index]
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	if opts.CellSize < MinCellSize {
		opts.CellSize = DefaultCellSize
	}
	if opts.Shards < 1 {
		opts.Shards = DefaultShards
	}
	r := &Registry{opts: opts}
	empty := make(map[uint32]*Index)
	r.indexes.Store(&empty)
	return r
}

// Get returns the index for mapID. Worker-safe. Returns false for unknown
// maps and for maps being torn down.
func (r *Registry) Get(mapID uint32) (*Index, bool) {
	idx, ok := (*r.indexes.Load())[mapID]
	if !ok || idx.Closed() {
		return nil, false
	}
	return idx, true
}

// GetOrCreate returns the index for mapID, creating it on first use.
// Idempotent. Authoritative thread only: workers use Get.
func (r *Registry) GetOrCreate(mapID uint32) *Index {
	if idx, ok := r.Get(mapID); ok {
		return idx
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := *r.indexes.Load()
	if idx, ok := current[mapID]; ok && !idx.Closed() {
		return idx
	}

	idx := NewIndex(mapID, r.opts.CellSize, r.opts.Shards)
	next := maps.Clone(current)
	next[mapID] = idx
	r.indexes.Store(&next)

	slog.Debug("spatial index created", "map", mapID, "cellSize", r.opts.CellSize, "shards", r.opts.Shards)
	return idx
}

// Destroy unpublishes and releases the index for mapID.
// Returns false if the map had no index.
func (r *Registry) Destroy(mapID uint32) bool {
	r.mu.Lock()
	current := *r.indexes.Load()
	idx, ok := current[mapID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	next := maps.Clone(current)
	delete(next, mapID)
	r.indexes.Store(&next)
	r.mu.Unlock()

	// Unpublished first, so new Get calls fail while pinned readers finish.
	idx.Close()
	slog.Debug("spatial index destroyed", "map", mapID)
	return true
}

// QueryNearby queries the index of mapID. A map without an index yields an
// empty result.
func (r *Registry) QueryNearby(mapID uint32, kind model.EntityKind, origin model.Position, radius float64) []model.Snapshot {
	idx, ok := r.Get(mapID)
	if !ok {
		return nil
	}
	return idx.QueryNearby(kind, origin, radius)
}

// MapIDs returns the IDs of all live indexes in ascending order.
func (r *Registry) MapIDs() []uint32 {
	ids := slices.Collect(maps.Keys(*r.indexes.Load()))
	slices.Sort(ids)
	return ids
}

// Len returns number of registered indexes.
func (r *Registry) Len() int {
	return len(*r.indexes.Load())
}

// Close destroys every index.
func (r *Registry) Close() {
	for _, id := range r.MapIDs() {
		r.Destroy(id)
	}
}
