package spatial

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/udisondev/botsim/internal/model"
)

// slot locates a snapshot inside a shard.
type slot struct {
	cell *Cell
	idx  int
}

// gridShard owns a disjoint subset of cells. During a sharded write pass each
// shard is filled by exactly one goroutine.
type gridShard struct {
	cells map[CellKey]*Cell
	byID  map[model.EntityID]slot
}

// grid is one of the two buffers of an Index.
type grid struct {
	cellSize   float64
	invCell    float64
	shards     []gridShard
	generation uint64
	count      int // entries, fixed at publish
	cellCount  int // non-empty cells, fixed at publish

	// readers counts queries pinned to this buffer.
	readers atomic.Int64
}

func newGrid(cellSize float64, shards int) *grid {
	g := &grid{
		cellSize: cellSize,
		invCell:  1 / cellSize,
		shards:   make([]gridShard, shards),
	}
	for i := range g.shards {
		g.shards[i] = gridShard{
			cells: make(map[CellKey]*Cell, 64),
			byID:  make(map[model.EntityID]slot, 256),
		}
	}
	return g
}

// shardOf maps a cell to its owning shard.
func (g *grid) shardOf(key CellKey) int {
	h := uint32(key.X)*73856093 ^ uint32(key.Y)*19349663
	return int(h % uint32(len(g.shards)))
}

func (g *grid) keyFor(p model.Position) CellKey {
	return CellKey{X: cellCoord(p.X * g.invCell), Y: cellCoord(p.Y * g.invCell)}
}

// reset prepares the buffer for a new generation. Cells that stayed empty for a
// whole generation are dropped so the map does not grow with every cell ever visited.
func (g *grid) reset(generation uint64) {
	for i := range g.shards {
		sh := &g.shards[i]
		for key, c := range sh.cells {
			if c.Len() == 0 {
				delete(sh.cells, key)
				continue
			}
			c.reset()
		}
		clear(sh.byID)
	}
	g.generation = generation
	g.count = 0
	g.cellCount = 0
}

// release drops all storage. Used when the owning index closes.
func (g *grid) release() {
	for i := range g.shards {
		g.shards[i].cells = nil
		g.shards[i].byID = nil
	}
	g.count = 0
	g.cellCount = 0
}

// insertInto places s into shard sh. Caller owns sh for the duration of the pass.
func (g *grid) insertInto(sh *gridShard, key CellKey, s model.Snapshot) {
	c, ok := sh.cells[key]
	if !ok {
		c = newCell(key)
		sh.cells[key] = c
	}
	idx := c.insert(s)
	sh.byID[s.ID] = slot{cell: c, idx: idx}
}

func (g *grid) contains(id model.EntityID) bool {
	for i := range g.shards {
		if _, ok := g.shards[i].byID[id]; ok {
			return true
		}
	}
	return false
}

// seal fixes counters once the pass is complete.
func (g *grid) seal() {
	count, cells := 0, 0
	for i := range g.shards {
		count += len(g.shards[i].byID)
		for _, c := range g.shards[i].cells {
			if c.Len() > 0 {
				cells++
			}
		}
	}
	g.count = count
	g.cellCount = cells
}

func (g *grid) lookup(id model.EntityID) (model.Snapshot, bool) {
	for i := range g.shards {
		if sl, ok := g.shards[i].byID[id]; ok {
			s := sl.cell.entries[sl.idx]
			if s.Generation != g.generation {
				corrupted(sl.cell.key, &s, g.generation)
			}
			return s, true
		}
	}
	return model.Snapshot{}, false
}

// visit walks every cell whose box intersects the shape bounds. When the range
// covers more cells than are occupied it walks occupied cells instead.
func (g *grid) visit(mask model.KindMask, shape Shape, fn func(*model.Snapshot) bool) {
	minX, minY, maxX, maxY := shape.Bounds()
	lo := g.keyFor(model.Position{X: minX, Y: minY})
	hi := g.keyFor(model.Position{X: maxX, Y: maxY})

	// Each axis spans at most 2^32 cells, so the product is only taken once
	// both factors are known to be no larger than the occupied count.
	spanX := int64(hi.X) - int64(lo.X) + 1
	spanY := int64(hi.Y) - int64(lo.Y) + 1
	occupied := int64(g.cellCount)
	if spanX > occupied || spanY > occupied || spanX*spanY > occupied {
		for i := range g.shards {
			for key, c := range g.shards[i].cells {
				if key.X < lo.X || key.X > hi.X || key.Y < lo.Y || key.Y > hi.Y {
					continue
				}
				if !c.forEach(g.generation, mask, shape, fn) {
					return
				}
			}
		}
		return
	}

	for x := int64(lo.X); x <= int64(hi.X); x++ {
		for y := int64(lo.Y); y <= int64(hi.Y); y++ {
			key := CellKey{X: int32(x), Y: int32(y)}
			c, ok := g.shards[g.shardOf(key)].cells[key]
			if !ok {
				continue
			}
			if !c.forEach(g.generation, mask, shape, fn) {
				return
			}
		}
	}
}

// waitIdle blocks until no reader is pinned to the buffer. Only the
// authoritative thread calls this; readers hold pins for one query.
func (g *grid) waitIdle() {
	for spins := 0; g.readers.Load() != 0; spins++ {
		if spins < 64 {
			runtime.Gosched()
			continue
		}
		time.Sleep(10 * time.Microsecond)
	}
}

// corrupted aborts on an entry that does not belong to its buffer's generation.
// Continuing would hand workers a torn view of the world.
func corrupted(key CellKey, s *model.Snapshot, want uint64) {
	panic(fmt.Sprintf("spatial: corrupted index: cell (%d,%d) holds %s from generation %d, buffer generation %d",
		key.X, key.Y, s.ID, s.Generation, want))
}
