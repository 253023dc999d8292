package scene

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/invrender/internal/autodiff"
	"github.com/born-ml/invrender/internal/geom"
)

func newTestGrid(t *testing.T, tape *autodiff.Tape, n int) *SignedDistanceGrid {
	t.Helper()
	g, err := NewSphereGrid(tape, n, geom.V(-2, -2, -2), geom.V(2, 2, 2), geom.V(0, 0, 0), 1)
	require.NoError(t, err)
	return g
}

func TestGrid_Validation(t *testing.T) {
	tape := autodiff.NewTape()
	_, err := NewSignedDistanceGrid(tape, 1, 4, 4, geom.V(0, 0, 0), geom.V(1, 1, 1), SphereDistance(geom.Vec3{}, 1))
	assert.Error(t, err)
	_, err = NewSignedDistanceGrid(tape, 4, 4, 4, geom.V(0, 0, 0), geom.V(1, 0, 1), SphereDistance(geom.Vec3{}, 1))
	assert.Error(t, err)
	assert.Equal(t, 0, tape.Size())
}

func TestGrid_LayoutAndDistance(t *testing.T) {
	tape := autodiff.NewTape()
	g := newTestGrid(t, tape, 9)

	nx, ny, nz := g.Resolution()
	assert.Equal(t, [3]int{9, 9, 9}, [3]int{nx, ny, nz})
	assert.Equal(t, 9*9*9, tape.Size())
	assert.Equal(t, geom.V(0.5, 0.5, 0.5), g.CellSize())

	vars := g.DiffVariables()
	require.Len(t, vars, 9*9*9)
	assert.Equal(t, g.Value(3, 0, 0).Index(), vars[3].Index())
	assert.Equal(t, g.Value(0, 2, 1).Index(), vars[0+9*(2+9*1)].Index())

	// Exact at vertices, interpolated in between.
	assert.InDelta(t, -1, g.Distance(geom.V(0, 0, 0)), 1e-12)
	assert.InDelta(t, 1, g.Distance(geom.V(2, 0, 0)), 1e-12)
	assert.InDelta(t, 0.25, g.Distance(geom.V(1.25, 0, 0)), 1e-12)

	// Outside the box the point is clamped.
	assert.InDelta(t, g.Distance(geom.V(2, 0, 0)), g.Distance(geom.V(5, 0, 0)), 1e-12)
}

func TestGrid_GradientPointsOutward(t *testing.T) {
	tape := autodiff.NewTape()
	g := newTestGrid(t, tape, 17)

	for _, p := range []geom.Vec3{geom.V(1, 0.1, 0), geom.V(-0.2, 1, 0.1), geom.V(0.1, 0.1, -1)} {
		n := g.Gradient(p).Normalize().Float()
		assert.Greater(t, n.Dot(p.Normalize()), 0.95, "normal at %v = %v", p, n)
	}
}

func TestGrid_GradientDerivativeMatchesNumerical(t *testing.T) {
	tape := autodiff.NewTape()
	g := newTestGrid(t, tape, 5)
	p := geom.V(0.8, 0.3, -0.4)
	base, _ := g.locate(p)
	leaf := &g.values[g.index(base[0]+1, base[1], base[2])]

	component := func() float64 { return g.Gradient(p).Normalize().X.Float() }

	n := g.Gradient(p).Normalize().X
	var d autodiff.Derivatives
	analytic := d.Dwrt(n, *leaf)

	const eps = 1e-6
	v := leaf.Float()
	leaf.SetFloat(v + eps)
	plus := component()
	leaf.SetFloat(v - eps)
	minus := component()
	leaf.SetFloat(v)

	assert.InDelta(t, (plus-minus)/(2*eps), analytic, 1e-5)
	assert.NotZero(t, analytic)
}

func TestGrid_VertexGradient(t *testing.T) {
	tape := autodiff.NewTape()
	g := newTestGrid(t, tape, 9)

	_, ok := g.VertexGradient(0, 4, 4)
	assert.False(t, ok)

	grad, ok := g.VertexGradient(6, 4, 4) // vertex (1, 0, 0)
	require.True(t, ok)
	assert.InDelta(t, 1, grad.X.Float(), 1e-12)
	assert.InDelta(t, 0, grad.Y.Float(), 1e-12)

	var d autodiff.Derivatives
	assert.Equal(t, 1.0, d.Dwrt(grad.X, g.Value(7, 4, 4))) // 1/(2h), h = 0.5
	assert.Equal(t, -1.0, d.Dwrt(grad.X, g.Value(5, 4, 4)))
}

func TestGrid_Intersect(t *testing.T) {
	tape := autodiff.NewTape()
	g := newTestGrid(t, tape, 17)

	hit, ok := g.Intersect(geom.Ray{Origin: geom.V(0, 0, 5), Dir: geom.V(0, 0, -1)})
	require.True(t, ok)
	assert.InDelta(t, 4, hit.T, 0.05)
	assert.Greater(t, hit.Normal.Float().Z, 0.95)

	_, ok = g.Intersect(geom.Ray{Origin: geom.V(0, 0, 5), Dir: geom.V(0, 0, 1)})
	assert.False(t, ok, "pointing away from the box")

	_, ok = g.Intersect(geom.Ray{Origin: geom.V(1.8, 1.8, 5), Dir: geom.V(0, 0, -1)})
	assert.False(t, ok, "passes the corner of the box outside the sphere")
}

func TestGrid_Resample(t *testing.T) {
	tape := autodiff.NewTape()
	g := newTestGrid(t, tape, 9)

	fine, err := g.Resample(tape, 17, 17, 17)
	require.NoError(t, err)
	assert.Len(t, fine.DiffVariables(), 17*17*17)
	assert.InDelta(t, g.Distance(geom.V(0.75, 0.25, 0)), fine.Distance(geom.V(0.75, 0.25, 0)), 1e-9)
}

func TestUpdateDiffVariables(t *testing.T) {
	tape := autodiff.NewTape()
	g := newTestGrid(t, tape, 3)
	before := g.Value(1, 1, 1).Float()

	deltas := make([]float64, 27)
	deltas[13] = 0.5
	g.UpdateDiffVariables(deltas)
	assert.Equal(t, before+0.5, g.Value(1, 1, 1).Float())

	assert.PanicsWithError(t, "scene: delta vector length mismatch: 27 variables, 2 deltas", func() {
		g.UpdateDiffVariables([]float64{1, 2})
	})
}

func TestSphere(t *testing.T) {
	tape := autodiff.NewTape()
	s := NewSphere(tape, geom.V(0, 0, 0), 1)

	hit, ok := s.Intersect(geom.Ray{Origin: geom.V(0, 0, 5), Dir: geom.V(0, 0, -1)})
	require.True(t, ok)
	assert.InDelta(t, 4, hit.T, 1e-12)
	assert.Equal(t, geom.V(0, 0, 1), hit.Normal.Float())

	// n.z = (p.z - c.z) / r
	var d autodiff.Derivatives
	vars := s.DiffVariables()
	assert.Equal(t, -1.0, d.Dwrt(hit.Normal.Z, *vars[2]))
	assert.Equal(t, -1.0, d.Dwrt(hit.Normal.Z, *vars[3]))

	inside, ok := s.Intersect(geom.Ray{Origin: geom.V(0, 0, 0), Dir: geom.V(1, 0, 0)})
	require.True(t, ok)
	assert.InDelta(t, 1, inside.T, 1e-12)

	_, ok = s.Intersect(geom.Ray{Origin: geom.V(0, 3, 5), Dir: geom.V(0, 0, -1)})
	assert.False(t, ok)

	s.UpdateDiffVariables([]float64{0, 0, 0, 1})
	assert.Contains(t, s.String(), "radius: 2")
}

func TestScene(t *testing.T) {
	tape := autodiff.NewTape()
	sc := New()
	near := NewSphere(tape, geom.V(0, 0, 1), 0.5)
	far := NewSphere(tape, geom.V(0, 0, -1), 0.5)
	sc.AddShape(far)
	sc.AddShape(near)

	hit, ok := sc.Intersect(geom.Ray{Origin: geom.V(0, 0, 5), Dir: geom.V(0, 0, -1)})
	require.True(t, ok)
	assert.InDelta(t, 3.5, hit.T, 1e-12)

	assert.Nil(t, sc.Ambient())
	amb := NewAmbientLight(tape, 0.2, 0.4, 0.6)
	sc.AddLight(NewDirectionalLight(geom.V(0, 0, -1), 1, 1, 1))
	sc.AddLight(amb)
	assert.Same(t, amb, sc.Ambient())
	assert.Len(t, sc.Lights(), 2)

	sc.ClearShapes()
	assert.Empty(t, sc.Shapes())
	_, ok = sc.Intersect(geom.Ray{Origin: geom.V(0, 0, 5), Dir: geom.V(0, 0, -1)})
	assert.False(t, ok)
}

func TestLights(t *testing.T) {
	tape := autodiff.NewTape()
	amb := NewAmbientLight(tape, 0.2, 0.4, 0.6)
	amb.UpdateDiffVariables([]float64{0.1, 0, -0.1})
	c := amb.Color().Float()
	assert.InDelta(t, 0.3, c[0], 1e-12)
	assert.InDelta(t, 0.5, c[2], 1e-12)

	dl := NewDirectionalLight(geom.V(0, 0, -2), 0.5, 1, 2)
	facing := dl.Irradiance(geom.ConstVec(geom.V(0, 0, 1))).Float()
	assert.Equal(t, [3]float64{0.5, 1, 2}, facing)

	tilted := geom.ConstVec(geom.V(0, math.Sqrt(0.5), math.Sqrt(0.5)))
	assert.InDelta(t, math.Sqrt(0.5), dl.Irradiance(tilted).Float()[1], 1e-12)

	away := dl.Irradiance(geom.ConstVec(geom.V(0, 0, -1))).Float()
	assert.Equal(t, [3]float64{0, 0, 0}, away)
	assert.Empty(t, dl.DiffVariables())
}
