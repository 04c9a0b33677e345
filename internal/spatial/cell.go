package spatial

import (
	"math"

	"github.com/udisondev/botsim/internal/model"
)

// Cell size bounds. Cell size should sit around typical interaction range:
// smaller cells raise per-query cell visits, larger cells weaken filtering.
const (
	DefaultCellSize = 64.0
	MinCellSize     = 1.0
)

// CellKey is a discretized XY coordinate: floor(position / cellSize) per axis.
type CellKey struct {
	X int32
	Y int32
}

// CellKeyFor converts a world coordinate to its cell key.
// Coordinates beyond the int32 cell range are clamped to the edge cells.
func CellKeyFor(x, y, cellSize float64) CellKey {
	return CellKey{X: cellCoord(x / cellSize), Y: cellCoord(y / cellSize)}
}

func cellCoord(v float64) int32 {
	f := math.Floor(v)
	switch {
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	}
	return int32(f)
}

// Cell is one bucket of snapshots for a single grid generation.
// A cell belongs to exactly one grid buffer and is only written during that
// buffer's write pass.
type Cell struct {
	key     CellKey
	entries []model.Snapshot
}

func newCell(key CellKey) *Cell {
	return &Cell{
		key:     key,
		entries: make([]model.Snapshot, 0, 8),
	}
}

// Key returns the cell coordinate.
func (c *Cell) Key() CellKey {
	return c.key
}

// Len returns number of snapshots in the cell.
func (c *Cell) Len() int {
	return len(c.entries)
}

func (c *Cell) insert(s model.Snapshot) int {
	c.entries = append(c.entries, s)
	return len(c.entries) - 1
}

// reset empties the cell but keeps its backing array for the next pass.
func (c *Cell) reset() {
	clear(c.entries)
	c.entries = c.entries[:0]
}

// forEach calls fn for entries matching mask and shape. Stops when fn returns false.
// gen is the owning grid's generation; a mismatching entry means the buffer
// was written outside its pass.
func (c *Cell) forEach(gen uint64, mask model.KindMask, shape Shape, fn func(*model.Snapshot) bool) bool {
	for i := range c.entries {
		s := &c.entries[i]
		if s.Generation != gen {
			corrupted(c.key, s, gen)
		}
		if !mask.Has(s.Kind) || !shape.Contains(s.Pos) {
			continue
		}
		if !fn(s) {
			return false
		}
	}
	return true
}
