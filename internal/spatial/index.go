package spatial

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/botsim/internal/model"
)

// DefaultShards is the number of disjoint cell partitions per buffer.
const DefaultShards = 8

var (
	// ErrIndexClosed is returned by write operations after Close.
	ErrIndexClosed = errors.New("spatial index closed")
	// ErrNoWritePass is returned when Insert or PublishSwap run outside a write pass.
	ErrNoWritePass = errors.New("no write pass in progress")
	// ErrWriteInProgress is returned by BeginWritePass when the previous pass was not published.
	ErrWriteInProgress = errors.New("write pass already in progress")
)

// Index is a double-buffered spatial index of world snapshots for one map.
//
// Workers only ever query the published read buffer. The authoritative thread
// owns the write buffer: BeginWritePass → Insert/InsertBatch → PublishSwap,
// once per tick. Queries pin the buffer they started on, so a swap never
// tears a query in half, and the writer waits for stragglers before reusing
// the old read buffer.
type Index struct {
	mapID    uint32
	cellSize float64

	read  atomic.Pointer[grid]
	write *grid // authoritative thread only

	generation atomic.Uint64
	closed     atomic.Bool
	writing    bool // authoritative thread only

	// scratch for InsertBatch, authoritative thread only
	buckets [][]model.Snapshot
	seen    map[model.EntityID]struct{}
}

// NewIndex creates an index with an empty published buffer (generation 0).
func NewIndex(mapID uint32, cellSize float64, shards int) *Index {
	if cellSize < MinCellSize {
		cellSize = DefaultCellSize
	}
	if shards < 1 {
		shards = DefaultShards
	}
	idx := &Index{
		mapID:    mapID,
		cellSize: cellSize,
		write:    newGrid(cellSize, shards),
		buckets:  make([][]model.Snapshot, shards),
		seen:     make(map[model.EntityID]struct{}, 256),
	}
	idx.read.Store(newGrid(cellSize, shards))
	return idx
}

// MapID returns the map this index covers.
func (idx *Index) MapID() uint32 {
	return idx.mapID
}

// CellSize returns the grid cell edge length.
func (idx *Index) CellSize() float64 {
	return idx.cellSize
}

// Generation returns the generation of the currently published buffer.
func (idx *Index) Generation() uint64 {
	return idx.generation.Load()
}

// Closed reports whether the index has been released.
func (idx *Index) Closed() bool {
	return idx.closed.Load()
}

// acquire pins the published buffer. The re-check after incrementing makes
// sure the writer cannot have observed zero readers on a buffer we then read.
func (idx *Index) acquire() *grid {
	for {
		g := idx.read.Load()
		if g == nil {
			return nil
		}
		g.readers.Add(1)
		if idx.read.Load() == g {
			return g
		}
		g.readers.Add(-1)
	}
}

func release(g *grid) {
	g.readers.Add(-1)
}

// QueryNearby returns copies of snapshots of the given kind within radius of
// origin (3D distance), read from the published buffer.
// A non-positive or NaN radius yields an empty result.
func (idx *Index) QueryNearby(kind model.EntityKind, origin model.Position, radius float64) []model.Snapshot {
	if !(radius > 0) {
		return nil
	}
	return idx.Query(kind.Mask(), Sphere{Center: origin, Radius: radius})
}

// Query returns copies of snapshots matching mask inside shape.
func (idx *Index) Query(mask model.KindMask, shape Shape) []model.Snapshot {
	return idx.QueryInto(nil, mask, shape)
}

// QueryInto appends matches to dst and returns it. Lets hot loops reuse a buffer.
func (idx *Index) QueryInto(dst []model.Snapshot, mask model.KindMask, shape Shape) []model.Snapshot {
	idx.ForEach(mask, shape, func(s *model.Snapshot) bool {
		dst = append(dst, *s)
		return true
	})
	return dst
}

// ForEach calls fn for every match while the buffer stays pinned.
// fn must not retain the pointer past its return and must not block.
// Iteration stops when fn returns false. Calling ForEach again restarts the
// walk against whichever buffer is published at that moment.
func (idx *Index) ForEach(mask model.KindMask, shape Shape, fn func(*model.Snapshot) bool) {
	if mask == 0 || !validShape(shape) || idx.closed.Load() {
		return
	}
	g := idx.acquire()
	if g == nil {
		return
	}
	defer release(g)
	g.visit(mask, shape, fn)
}

// Lookup returns the published snapshot of id.
func (idx *Index) Lookup(id model.EntityID) (model.Snapshot, bool) {
	if idx.closed.Load() {
		return model.Snapshot{}, false
	}
	g := idx.acquire()
	if g == nil {
		return model.Snapshot{}, false
	}
	defer release(g)
	return g.lookup(id)
}

// Len returns number of snapshots in the published buffer.
func (idx *Index) Len() int {
	g := idx.acquire()
	if g == nil {
		return 0
	}
	defer release(g)
	return g.count
}

// BeginWritePass clears the write buffer for a new generation.
// Authoritative thread only. Waits for any query still pinned on the buffer
// from before the previous swap.
func (idx *Index) BeginWritePass() error {
	if idx.closed.Load() {
		return ErrIndexClosed
	}
	if idx.writing {
		return ErrWriteInProgress
	}
	idx.write.waitIdle()
	idx.write.reset(idx.generation.Load() + 1)
	idx.writing = true
	return nil
}

// Insert places s into the write buffer. Single-threaded write path.
func (idx *Index) Insert(s model.Snapshot) error {
	if err := idx.checkInsert(s); err != nil {
		return err
	}
	if idx.write.contains(s.ID) {
		return fmt.Errorf("inserting %s: duplicate entity in generation %d", s.ID, idx.write.generation)
	}
	s.Generation = idx.write.generation
	key := idx.write.keyFor(s.Pos)
	idx.write.insertInto(&idx.write.shards[idx.write.shardOf(key)], key, s)
	return nil
}

// InsertBatch places snaps into the write buffer using up to workers
// goroutines. Snapshots are bucketed by owning shard first, so each goroutine
// writes a disjoint set of cells.
func (idx *Index) InsertBatch(snaps []model.Snapshot, workers int) error {
	if idx.closed.Load() {
		return ErrIndexClosed
	}
	if !idx.writing {
		return ErrNoWritePass
	}
	if workers <= 1 || len(snaps) < 2*len(idx.buckets) {
		for i := range snaps {
			if err := idx.Insert(snaps[i]); err != nil {
				return err
			}
		}
		return nil
	}

	w := idx.write
	for i := range idx.buckets {
		idx.buckets[i] = idx.buckets[i][:0]
	}
	clear(idx.seen)
	for i := range snaps {
		s := snaps[i]
		if err := idx.checkInsert(s); err != nil {
			return err
		}
		if _, dup := idx.seen[s.ID]; dup || w.contains(s.ID) {
			return fmt.Errorf("inserting %s: duplicate entity in generation %d", s.ID, w.generation)
		}
		idx.seen[s.ID] = struct{}{}
		s.Generation = w.generation
		shard := w.shardOf(w.keyFor(s.Pos))
		idx.buckets[shard] = append(idx.buckets[shard], s)
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for shard := range idx.buckets {
		bucket := idx.buckets[shard]
		if len(bucket) == 0 {
			continue
		}
		sh := &w.shards[shard]
		g.Go(func() error {
			for _, s := range bucket {
				w.insertInto(sh, w.keyFor(s.Pos), s)
			}
			return nil
		})
	}
	return g.Wait()
}

func (idx *Index) checkInsert(s model.Snapshot) error {
	if idx.closed.Load() {
		return ErrIndexClosed
	}
	if !idx.writing {
		return ErrNoWritePass
	}
	if !s.Kind.Valid() || s.ID.IsZero() {
		return fmt.Errorf("inserting snapshot %s: invalid kind %s", s.ID, s.Kind)
	}
	if s.MapID != idx.mapID {
		return fmt.Errorf("inserting %s: snapshot map %d does not match index map %d", s.ID, s.MapID, idx.mapID)
	}
	if !s.Pos.IsFinite() {
		return fmt.Errorf("inserting %s: non-finite position", s.ID)
	}
	return nil
}

// PublishSwap atomically publishes the write buffer and takes the previous
// read buffer as the next write buffer. Returns the published generation.
func (idx *Index) PublishSwap() (uint64, error) {
	if idx.closed.Load() {
		return 0, ErrIndexClosed
	}
	if !idx.writing {
		return 0, ErrNoWritePass
	}
	next := idx.write
	next.seal()
	prev := idx.read.Swap(next)
	idx.write = prev
	idx.writing = false
	idx.generation.Store(next.generation)
	return next.generation, nil
}

// Close releases both buffers. Queries afterwards return empty results.
// Authoritative thread only.
func (idx *Index) Close() {
	if idx.closed.Swap(true) {
		return
	}
	published := idx.read.Swap(nil)
	if published != nil {
		published.waitIdle()
		published.release()
	}
	idx.write.waitIdle()
	idx.write.release()
	idx.writing = false

	slog.Debug("spatial index closed", "map", idx.mapID, "generation", idx.generation.Load())
}
