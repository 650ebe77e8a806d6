package chunk

import (
	"fmt"
)

// Spatial constants for the block grid.
// A chunk is a Size×Size column footprint, Height blocks tall.
const (
	Size   = 16
	Height = 64
)

// Key identifies a chunk by its column coordinates.
// It is a pure value type: equality and map hashing are structural.
type Key struct {
	X int
	Z int
}

func (k Key) String() string { return fmt.Sprintf("(%d,%d)", k.X, k.Z) }

// Vec3i is an integer world-space position.
type Vec3i struct {
	X, Y, Z int
}

// Add returns v translated by d.
func (v Vec3i) Add(d Vec3i) Vec3i { return Vec3i{v.X + d.X, v.Y + d.Y, v.Z + d.Z} }

// KeyAt maps a world-space position to the chunk containing it.
// Uses floor division so negative coordinates land in the right chunk
// (e.g. x=-1 belongs to chunk -1, not chunk 0).
func KeyAt(p Vec3i) Key {
	return Key{X: floorDiv(p.X, Size), Z: floorDiv(p.Z, Size)}
}

// Local maps a world-space position to chunk-local coordinates.
func Local(p Vec3i) (x, y, z int) {
	return mod(p.X, Size), p.Y, mod(p.Z, Size)
}

// InBounds reports whether the vertical coordinate is inside the chunk volume.
// X/Z are unbounded: the world extends horizontally without limit.
func InBounds(p Vec3i) bool { return p.Y >= 0 && p.Y < Height }

// faces are the six axis-aligned unit offsets, in a fixed order so that
// derived request expansion is deterministic.
var faces = [6]Vec3i{
	{X: 1}, {X: -1},
	{Y: 1}, {Y: -1},
	{Z: 1}, {Z: -1},
}

// FaceNeighbors returns the positions adjacent to p across each face,
// skipping positions outside the vertical bounds. At most 6 results.
func FaceNeighbors(p Vec3i) []Vec3i {
	out := make([]Vec3i, 0, 6)
	for _, f := range faces {
		n := p.Add(f)
		if InBounds(n) {
			out = append(out, n)
		}
	}
	return out
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// mod returns the non-negative remainder of a/b.
func mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
