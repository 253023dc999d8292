package scene

import (
	"fmt"
	"math"

	"github.com/born-ml/invrender/internal/autodiff"
	"github.com/born-ml/invrender/internal/geom"
)

const (
	traceMaxSteps = 256
	traceEpsilon  = 1e-4
)

// SignedDistanceGrid is a shape described by signed distances sampled on a
// regular grid of vertices spanning an axis-aligned box. Every vertex value
// is a tape leaf.
//
// Vertex (i, j, k) is stored at index i + nx·(j + ny·k), which is also the
// order of DiffVariables.
type SignedDistanceGrid struct {
	nx, ny, nz int
	min, max   geom.Vec3
	cell       geom.Vec3
	values     []autodiff.Scalar
}

// NewSignedDistanceGrid samples f at every vertex of an nx × ny × nz grid
// spanning [min, max] and registers the samples as leaves on tape.
// Each axis needs at least two vertices.
func NewSignedDistanceGrid(tape *autodiff.Tape, nx, ny, nz int, min, max geom.Vec3, f func(geom.Vec3) float64) (*SignedDistanceGrid, error) {
	if nx < 2 || ny < 2 || nz < 2 {
		return nil, fmt.Errorf("scene: grid resolution %dx%dx%d, need at least 2 per axis", nx, ny, nz)
	}
	if max.X <= min.X || max.Y <= min.Y || max.Z <= min.Z {
		return nil, fmt.Errorf("scene: empty grid bounds %v - %v", min, max)
	}
	g := &SignedDistanceGrid{nx: nx, ny: ny, nz: nz, min: min, max: max}
	g.cell = geom.Vec3{
		X: (max.X - min.X) / float64(nx-1),
		Y: (max.Y - min.Y) / float64(ny-1),
		Z: (max.Z - min.Z) / float64(nz-1),
	}
	g.values = make([]autodiff.Scalar, nx*ny*nz)
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				g.values[g.index(i, j, k)] = tape.Var(f(g.Vertex(i, j, k)))
			}
		}
	}
	return g, nil
}

// SphereDistance returns the signed distance function of a sphere.
func SphereDistance(center geom.Vec3, radius float64) func(geom.Vec3) float64 {
	return func(p geom.Vec3) float64 {
		return p.Sub(center).Length() - radius
	}
}

// NewSphereGrid samples a sphere on an n³ grid.
func NewSphereGrid(tape *autodiff.Tape, n int, min, max, center geom.Vec3, radius float64) (*SignedDistanceGrid, error) {
	return NewSignedDistanceGrid(tape, n, n, n, min, max, SphereDistance(center, radius))
}

// Resample returns a new grid of the given resolution over the same bounds,
// initialised by interpolating g. The new values are fresh leaves on tape,
// so any energy bound to g must be rebound.
func (g *SignedDistanceGrid) Resample(tape *autodiff.Tape, nx, ny, nz int) (*SignedDistanceGrid, error) {
	return NewSignedDistanceGrid(tape, nx, ny, nz, g.min, g.max, g.Distance)
}

// Resolution returns the number of vertices per axis.
func (g *SignedDistanceGrid) Resolution() (nx, ny, nz int) {
	return g.nx, g.ny, g.nz
}

// Bounds returns the box spanned by the grid.
func (g *SignedDistanceGrid) Bounds() (min, max geom.Vec3) {
	return g.min, g.max
}

// CellSize returns the vertex spacing per axis.
func (g *SignedDistanceGrid) CellSize() geom.Vec3 {
	return g.cell
}

func (g *SignedDistanceGrid) index(i, j, k int) int {
	return i + g.nx*(j+g.ny*k)
}

// Vertex returns the world position of vertex (i, j, k).
func (g *SignedDistanceGrid) Vertex(i, j, k int) geom.Vec3 {
	return geom.Vec3{
		X: g.min.X + float64(i)*g.cell.X,
		Y: g.min.Y + float64(j)*g.cell.Y,
		Z: g.min.Z + float64(k)*g.cell.Z,
	}
}

// Value returns the leaf stored at vertex (i, j, k).
func (g *SignedDistanceGrid) Value(i, j, k int) autodiff.Scalar {
	return g.values[g.index(i, j, k)]
}

// locate returns the base vertex of the cell containing p and the local
// coordinates in it. Points outside the box are clamped onto it.
func (g *SignedDistanceGrid) locate(p geom.Vec3) (base [3]int, frac [3]float64) {
	n := [3]int{g.nx, g.ny, g.nz}
	lo, cell, pa := g.min.Array(), g.cell.Array(), p.Array()
	for a := range 3 {
		x := (pa[a] - lo[a]) / cell[a]
		i := int(math.Floor(x))
		i = min(max(i, 0), n[a]-2)
		base[a] = i
		frac[a] = min(max(x-float64(i), 0), 1)
	}
	return base, frac
}

// corners returns the eight vertex values of the cell at base, ordered by
// (dx, dy, dz) bits with dx the lowest.
func (g *SignedDistanceGrid) corners(base [3]int) []autodiff.Scalar {
	c := make([]autodiff.Scalar, 8)
	for b := range 8 {
		c[b] = g.Value(base[0]+b&1, base[1]+(b>>1)&1, base[2]+(b>>2)&1)
	}
	return c
}

func lerpWeight(bit int, t float64) float64 {
	if bit == 1 {
		return t
	}
	return 1 - t
}

// Distance returns the trilinearly interpolated distance at p without
// recording anything on the tape.
func (g *SignedDistanceGrid) Distance(p geom.Vec3) float64 {
	base, t := g.locate(p)
	c := g.corners(base)
	d := 0.0
	for b := range 8 {
		w := lerpWeight(b&1, t[0]) * lerpWeight((b>>1)&1, t[1]) * lerpWeight((b>>2)&1, t[2])
		d += w * c[b].Float()
	}
	return d
}

// Gradient returns the spatial gradient of the interpolated field at p. Each
// component is a weighted sum of the cell's eight leaves, so shading normals
// derived from it carry derivatives back to the grid.
func (g *SignedDistanceGrid) Gradient(p geom.Vec3) geom.DVec3 {
	base, t := g.locate(p)
	c := g.corners(base)
	var w [3][]float64
	for a := range 3 {
		w[a] = make([]float64, 8)
	}
	for b := range 8 {
		bx, by, bz := b&1, (b>>1)&1, (b>>2)&1
		sx, sy, sz := float64(2*bx-1), float64(2*by-1), float64(2*bz-1)
		w[0][b] = sx / g.cell.X * lerpWeight(by, t[1]) * lerpWeight(bz, t[2])
		w[1][b] = sy / g.cell.Y * lerpWeight(bx, t[0]) * lerpWeight(bz, t[2])
		w[2][b] = sz / g.cell.Z * lerpWeight(bx, t[0]) * lerpWeight(by, t[1])
	}
	return geom.DVec3{
		X: autodiff.Dot(w[0], c),
		Y: autodiff.Dot(w[1], c),
		Z: autodiff.Dot(w[2], c),
	}
}

// VertexGradient returns the central-difference gradient at an interior
// vertex. The boolean is false on the boundary.
func (g *SignedDistanceGrid) VertexGradient(i, j, k int) (geom.DVec3, bool) {
	if i < 1 || j < 1 || k < 1 || i >= g.nx-1 || j >= g.ny-1 || k >= g.nz-1 {
		return geom.DVec3{}, false
	}
	diff := func(a, b autodiff.Scalar, h float64) autodiff.Scalar {
		return autodiff.Dot([]float64{1 / (2 * h), -1 / (2 * h)}, []autodiff.Scalar{a, b})
	}
	return geom.DVec3{
		X: diff(g.Value(i+1, j, k), g.Value(i-1, j, k), g.cell.X),
		Y: diff(g.Value(i, j+1, k), g.Value(i, j-1, k), g.cell.Y),
		Z: diff(g.Value(i, j, k+1), g.Value(i, j, k-1), g.cell.Z),
	}, true
}

// Intersect implements Shape by sphere tracing the interpolated field inside
// the grid box.
func (g *SignedDistanceGrid) Intersect(r geom.Ray) (Interaction, bool) {
	t0, t1, ok := g.clip(r)
	if !ok {
		return Interaction{}, false
	}
	t := max(t0, 0)
	for range traceMaxSteps {
		if t > t1 {
			return Interaction{}, false
		}
		p := r.At(t)
		d := g.Distance(p)
		if d < traceEpsilon {
			return Interaction{T: t, Point: p, Normal: g.Gradient(p).Normalize()}, true
		}
		t += d
	}
	return Interaction{}, false
}

// clip intersects r with the grid box using the slab method.
func (g *SignedDistanceGrid) clip(r geom.Ray) (float64, float64, bool) {
	t0, t1 := math.Inf(-1), math.Inf(1)
	o, d := r.Origin.Array(), r.Dir.Array()
	lo, hi := g.min.Array(), g.max.Array()
	for a := range 3 {
		if d[a] == 0 {
			if o[a] < lo[a] || o[a] > hi[a] {
				return 0, 0, false
			}
			continue
		}
		inv := 1 / d[a]
		near, far := (lo[a]-o[a])*inv, (hi[a]-o[a])*inv
		if near > far {
			near, far = far, near
		}
		t0, t1 = max(t0, near), min(t1, far)
	}
	return t0, t1, t1 >= max(t0, 0)
}

// DiffVariables returns pointers to every vertex leaf in storage order.
func (g *SignedDistanceGrid) DiffVariables() []*autodiff.Scalar {
	out := make([]*autodiff.Scalar, len(g.values))
	for i := range g.values {
		out[i] = &g.values[i]
	}
	return out
}

// UpdateDiffVariables implements Differentiable.
func (g *SignedDistanceGrid) UpdateDiffVariables(deltas []float64) {
	addDeltas(g.DiffVariables(), deltas)
}

func (g *SignedDistanceGrid) String() string {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range g.values {
		lo, hi = min(lo, v.Float()), max(hi, v.Float())
	}
	return fmt.Sprintf("SignedDistanceGrid{res: %dx%dx%d, bounds: %v - %v, range: [%g, %g]}",
		g.nx, g.ny, g.nz, g.min, g.max, lo, hi)
}
