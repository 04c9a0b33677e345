package spatial

import (
	"math"

	"github.com/udisondev/botsim/internal/model"
)

// Shape is a query region. Bounds gives the XY rectangle used to pick cells,
// Contains is the exact filter applied to every candidate.
type Shape interface {
	Bounds() (minX, minY, maxX, maxY float64)
	Contains(p model.Position) bool
}

// Sphere matches points within Radius of Center in 3D.
type Sphere struct {
	Center model.Position
	Radius float64
}

func (s Sphere) Bounds() (minX, minY, maxX, maxY float64) {
	return s.Center.X - s.Radius, s.Center.Y - s.Radius, s.Center.X + s.Radius, s.Center.Y + s.Radius
}

func (s Sphere) Contains(p model.Position) bool {
	return s.Center.DistanceSquared(p) <= s.Radius*s.Radius
}

// Circle matches points within Radius of Center on the XY plane, any Z.
type Circle struct {
	Center model.Position
	Radius float64
}

func (c Circle) Bounds() (minX, minY, maxX, maxY float64) {
	return c.Center.X - c.Radius, c.Center.Y - c.Radius, c.Center.X + c.Radius, c.Center.Y + c.Radius
}

func (c Circle) Contains(p model.Position) bool {
	return c.Center.Distance2DSquared(p) <= c.Radius*c.Radius
}

// Box matches points inside an axis-aligned rectangle. When MinZ == MaxZ == 0
// the Z axis is not constrained.
type Box struct {
	MinX, MinY, MaxX, MaxY float64
	MinZ, MaxZ             float64
}

func (b Box) Bounds() (minX, minY, maxX, maxY float64) {
	return b.MinX, b.MinY, b.MaxX, b.MaxY
}

func (b Box) Contains(p model.Position) bool {
	if p.X < b.MinX || p.X > b.MaxX || p.Y < b.MinY || p.Y > b.MaxY {
		return false
	}
	if b.MinZ == 0 && b.MaxZ == 0 {
		return true
	}
	return p.Z >= b.MinZ && p.Z <= b.MaxZ
}

// validShape rejects degenerate regions: non-positive or NaN radius, inverted boxes.
func validShape(s Shape) bool {
	switch v := s.(type) {
	case Sphere:
		return v.Radius > 0 && v.Center.IsFinite() && !math.IsInf(v.Radius, 0)
	case Circle:
		return v.Radius > 0 && v.Center.IsFinite() && !math.IsInf(v.Radius, 0)
	case nil:
		return false
	}
	minX, minY, maxX, maxY := s.Bounds()
	return minX <= maxX && minY <= maxY
}
