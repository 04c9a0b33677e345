package geo

// Point3D is an integer cell coordinate.
type Point3D struct {
	X, Y, Z int32
}

// LineIterator3D walks the cells of a 3D Bresenham line, start and end included.
// Deltas and error terms are 64-bit so lines between opposite int32 extremes
// do not wrap.
type LineIterator3D struct {
	cur    [3]int32
	target [3]int32
	delta  [3]int64
	step   [3]int32
	err    [3]int64
	major  int
	begun  bool
}

// NewLineIterator3D creates an iterator from start to end.
func NewLineIterator3D(start, end Point3D) *LineIterator3D {
	it := &LineIterator3D{
		cur:    [3]int32{start.X, start.Y, start.Z},
		target: [3]int32{end.X, end.Y, end.Z},
	}
	for axis := range 3 {
		d := int64(it.target[axis]) - int64(it.cur[axis])
		it.step[axis] = 1
		if d < 0 {
			d = -d
			it.step[axis] = -1
		}
		it.delta[axis] = d
		if d > it.delta[it.major] {
			it.major = axis
		}
	}
	for axis := range 3 {
		it.err[axis] = it.delta[it.major] / 2
	}
	return it
}

// Steps returns how many cells follow the start cell.
func (it *LineIterator3D) Steps() int64 {
	return it.delta[it.major]
}

// Next advances to the next cell. The first call yields the start cell.
// Returns false once the end cell has been yielded.
func (it *LineIterator3D) Next() bool {
	if !it.begun {
		it.begun = true
		return true
	}
	if it.cur == it.target {
		return false
	}

	m := it.major
	it.cur[m] += it.step[m]
	for axis := range 3 {
		if axis == m {
			continue
		}
		it.err[axis] += it.delta[axis]
		if it.err[axis] >= it.delta[m] {
			it.cur[axis] += it.step[axis]
			it.err[axis] -= it.delta[m]
		}
	}
	return true
}

// Point returns the current cell.
func (it *LineIterator3D) Point() Point3D {
	return Point3D{X: it.cur[0], Y: it.cur[1], Z: it.cur[2]}
}
