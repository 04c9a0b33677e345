package geo

import (
	"maps"
	"math"
	"sync"
	"sync/atomic"

	"github.com/udisondev/botsim/internal/model"
)

const (
	// DefaultResolution is the edge length of one obstacle column.
	DefaultResolution = 2.0
	// DefaultEyeHeight lifts both ends of a sight line above the ground.
	DefaultEyeHeight = 2.0
	// MaxSeeOverHeight is how far a column may rise above the sight line
	// before it blocks.
	MaxSeeOverHeight = 0.5
	// MaxTraceCells bounds a sight line. Longer lines are reported as not
	// visible without being walked.
	MaxTraceCells = 1024
)

type column struct{ x, y int32 }

type layer map[column]float64 // column → wall top height

// ObstacleMap holds static blocking columns per map and answers line of
// sight. Reads are lock-free and safe from any goroutine; Block, BlockRect
// and Clear copy the affected layer and are meant for map load.
type ObstacleMap struct {
	resolution float64
	eyeHeight  float64

	mu     sync.Mutex
	layers atomic.Pointer[map[uint32]layer]
}

// NewObstacleMap creates an empty obstacle map.
func NewObstacleMap(resolution, eyeHeight float64) *ObstacleMap {
	if !(resolution > 0) {
		resolution = DefaultResolution
	}
	if eyeHeight < 0 {
		eyeHeight = DefaultEyeHeight
	}
	m := &ObstacleMap{resolution: resolution, eyeHeight: eyeHeight}
	empty := make(map[uint32]layer)
	m.layers.Store(&empty)
	return m
}

func (m *ObstacleMap) cell(v float64) int32 {
	c := math.Floor(v / m.resolution)
	switch {
	case c > math.MaxInt32:
		return math.MaxInt32
	case c < math.MinInt32:
		return math.MinInt32
	default:
		return int32(c)
	}
}

// Block raises the column containing (x, y) on mapID to top.
func (m *ObstacleMap) Block(mapID uint32, x, y, top float64) {
	m.update(mapID, func(l layer) {
		l[column{m.cell(x), m.cell(y)}] = top
	})
}

// BlockRect raises every column inside the rectangle to top.
func (m *ObstacleMap) BlockRect(mapID uint32, minX, minY, maxX, maxY, top float64) {
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	if minY > maxY {
		minY, maxY = maxY, minY
	}
	m.update(mapID, func(l layer) {
		for cx := m.cell(minX); cx <= m.cell(maxX); cx++ {
			for cy := m.cell(minY); cy <= m.cell(maxY); cy++ {
				l[column{cx, cy}] = top
			}
		}
	})
}

// Clear drops every obstacle of mapID.
func (m *ObstacleMap) Clear(mapID uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := maps.Clone(*m.layers.Load())
	delete(next, mapID)
	m.layers.Store(&next)
}

// Columns returns number of blocking columns on mapID.
func (m *ObstacleMap) Columns(mapID uint32) int {
	return len((*m.layers.Load())[mapID])
}

func (m *ObstacleMap) update(mapID uint32, fn func(layer)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current := *m.layers.Load()
	l := maps.Clone(current[mapID])
	if l == nil {
		l = make(layer)
	}
	fn(l)
	next := maps.Clone(current)
	next[mapID] = l
	m.layers.Store(&next)
}

// CanSeeTarget traces the sight line between two eye points and reports
// whether no column along it rises above the line by more than
// MaxSeeOverHeight. Maps without obstacles are fully visible; on other maps
// non-finite points and lines longer than MaxTraceCells are not.
func (m *ObstacleMap) CanSeeTarget(mapID uint32, from, to model.Position) bool {
	l := (*m.layers.Load())[mapID]
	if len(l) == 0 {
		return true
	}
	if !from.IsFinite() || !to.IsFinite() {
		return false
	}

	start := Point3D{m.cell(from.X), m.cell(from.Y), m.cell(from.Z + m.eyeHeight)}
	end := Point3D{m.cell(to.X), m.cell(to.Y), m.cell(to.Z + m.eyeHeight)}
	if start.X == end.X && start.Y == end.Y {
		return true
	}

	it := NewLineIterator3D(start, end)
	if it.Steps() > MaxTraceCells {
		return false
	}
	it.Next() // own column
	for it.Next() {
		p := it.Point()
		if p.X == end.X && p.Y == end.Y {
			break
		}
		top, ok := l[column{p.X, p.Y}]
		if !ok {
			continue
		}
		lineZ := (float64(p.Z) + 1) * m.resolution
		if top > lineZ+MaxSeeOverHeight {
			return false
		}
	}
	return true
}
