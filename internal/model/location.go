package model

import "math"

// Position is a point in a map plus facing.
// Value type, copied freely between threads.
type Position struct {
	X float64
	Y float64
	Z float64
	O float32 // orientation, radians
}

// NewPosition creates a Position with zero orientation.
func NewPosition(x, y, z float64) Position {
	return Position{X: x, Y: y, Z: z}
}

// WithOrientation returns a copy of p facing o.
func (p Position) WithOrientation(o float32) Position {
	p.O = o
	return p
}

// WithCoordinates returns a copy of p moved to (x, y, z), keeping orientation.
func (p Position) WithCoordinates(x, y, z float64) Position {
	p.X = x
	p.Y = y
	p.Z = z
	return p
}

// DistanceSquared returns squared 3D distance (no sqrt on the hot path).
func (p Position) DistanceSquared(other Position) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	dz := p.Z - other.Z
	return dx*dx + dy*dy + dz*dz
}

// Distance2DSquared returns squared distance on the XY plane.
func (p Position) Distance2DSquared(other Position) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return dx*dx + dy*dy
}

// Distance returns 3D distance.
func (p Position) Distance(other Position) float64 {
	return math.Sqrt(p.DistanceSquared(other))
}

// IsFinite reports whether all coordinates are finite numbers.
func (p Position) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) &&
		!math.IsNaN(p.Y) && !math.IsInf(p.Y, 0) &&
		!math.IsNaN(p.Z) && !math.IsInf(p.Z, 0)
}

// Towards returns the point at most step units from p along the line to dst.
// Returns dst when it is closer than step.
func (p Position) Towards(dst Position, step float64) Position {
	d := p.Distance(dst)
	if d <= step || d == 0 {
		return dst.WithOrientation(p.facing(dst))
	}
	k := step / d
	return Position{
		X: p.X + (dst.X-p.X)*k,
		Y: p.Y + (dst.Y-p.Y)*k,
		Z: p.Z + (dst.Z-p.Z)*k,
		O: p.facing(dst),
	}
}

func (p Position) facing(dst Position) float32 {
	if dst.X == p.X && dst.Y == p.Y {
		return p.O
	}
	return float32(math.Atan2(dst.Y-p.Y, dst.X-p.X))
}
