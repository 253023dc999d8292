package energy

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/invrender/internal/autodiff"
	"github.com/born-ml/invrender/internal/camera"
	"github.com/born-ml/invrender/internal/film"
	"github.com/born-ml/invrender/internal/geom"
	"github.com/born-ml/invrender/internal/render"
	"github.com/born-ml/invrender/internal/scene"
)

const (
	testW = 8
	testH = 8
)

func TestGradientNorm(t *testing.T) {
	assert.Equal(t, 0.0, GradientNorm(nil))
	assert.Equal(t, 5.0, GradientNorm([]float64{3, 4}))
	assert.Equal(t, 25.0, GradientNorm2([]float64{3, -4}))
}

func TestAnalytic_SphereGradient(t *testing.T) {
	tape := autodiff.NewTape()
	f := NewAnalytic(tape, "sphere", []float64{1, -2, 3}, Sphere)
	require.Equal(t, 3, f.InputDim())

	tape.Push()
	out := f.Evaluate(false)
	assert.Equal(t, 14.0, out.Float())
	assert.Equal(t, []float64{2, -4, 6}, f.ComputeGradient(out))
	tape.Pop()

	assert.Equal(t, "sphere(1, -2, 3)", f.String())
}

func TestAnalytic_Matyas(t *testing.T) {
	tape := autodiff.NewTape()
	f := NewAnalytic(tape, "matyas", []float64{1, 2}, Matyas)

	out := f.Evaluate(false)
	assert.InDelta(t, 0.26*5-0.48*2, out.Float(), 1e-12)
	g := f.ComputeGradient(out)
	assert.InDelta(t, 0.52*1-0.48*2, g[0], 1e-12)
	assert.InDelta(t, 0.52*2-0.48*1, g[1], 1e-12)
}

func TestAnalytic_StatusOrdering(t *testing.T) {
	tape := autodiff.NewTape()
	f := NewAnalytic(tape, "sphere", []float64{1, 2, 3}, Sphere)

	status := f.Status()
	deltas := []float64{0.5, -1, 0}
	f.UpdateStatus(deltas)
	for i := range status {
		status[i] += deltas[i]
	}
	assert.Equal(t, status, f.Status())

	f.SetStatus([]float64{7, 8, 9})
	assert.Equal(t, []float64{7, 8, 9}, f.Status())

	assert.Panics(t, func() { f.UpdateStatus([]float64{1}) })
	assert.Panics(t, func() { f.SetStatus(nil) })
}

// fixture is a small reconstruction problem: an SDF sphere of radius 0.8
// must match renders of an analytic sphere of radius 1.
type fixture struct {
	tape    *autodiff.Tape
	sc      *scene.Scene
	grid    *scene.SignedDistanceGrid
	light   *scene.AmbientLight
	cameras []camera.Camera
	targets [][]float64
	r       render.Renderer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tape := autodiff.NewTape()
	r := render.NewSimpleRenderer(render.DirectIntegrator{}, 1)
	sun := scene.NewDirectionalLight(geom.V(-0.3, -0.3, -1), 1, 1, 1)

	cams := []camera.Camera{
		camera.NewPinhole(geom.V(0, 0, 4), geom.V(0, 0, 0), geom.V(0, 1, 0), 50, testW, testH),
		camera.NewPinhole(geom.V(4, 0, 0), geom.V(0, 0, 0), geom.V(0, 1, 0), 50, testW, testH),
	}

	// Targets are rendered inside a checkpoint so they leave no nodes behind.
	targetScene := scene.New()
	tape.Push()
	targetScene.AddShape(scene.NewSphere(tape, geom.V(0, 0, 0), 1))
	targetScene.AddLight(sun)
	targetScene.AddLight(scene.NewAmbientLight(tape, 0.9, 0.6, 0.3))
	targets := make([][]float64, len(cams))
	for k, cam := range cams {
		f := film.NewBoxFilm(testW, testH)
		r.RenderImage(f, targetScene, cam)
		targets[k] = f.Raw()
	}
	tape.Pop()
	require.Equal(t, 0, tape.Size())

	grid, err := scene.NewSphereGrid(tape, 6, geom.V(-1.5, -1.5, -1.5), geom.V(1.5, 1.5, 1.5), geom.V(0, 0, 0), 0.8)
	require.NoError(t, err)
	light := scene.NewAmbientLight(tape, 0.5, 0.5, 0.5)
	sc := scene.New()
	sc.AddShape(grid)
	sc.AddLight(sun)
	sc.AddLight(light)

	return &fixture{tape: tape, sc: sc, grid: grid, light: light, cameras: cams, targets: targets, r: r}
}

func (fx *fixture) config(lambda float64) ReconstructionConfig {
	return ReconstructionConfig{
		Scene:   fx.sc,
		Grid:    fx.grid,
		Light:   fx.light,
		Targets: fx.targets,
		Cameras: fx.cameras,
		Render:  fx.r,
		Lambda:  lambda,
		Width:   testW,
		Height:  testH,
	}
}

func TestReconstruction_Validation(t *testing.T) {
	fx := newFixture(t)

	cfg := fx.config(0.1)
	cfg.Grid = nil
	_, err := NewReconstructionEnergy(cfg)
	assert.ErrorIs(t, err, ErrMissingComponent)

	cfg = fx.config(0.1)
	cfg.Targets = nil
	_, err = NewReconstructionEnergy(cfg)
	assert.ErrorIs(t, err, ErrNoTargets)

	cfg = fx.config(0.1)
	cfg.Cameras = cfg.Cameras[:1]
	_, err = NewReconstructionEnergy(cfg)
	assert.ErrorIs(t, err, ErrViewCameraMismatch)

	cfg = fx.config(0.1)
	cfg.Width = 4
	_, err = NewReconstructionEnergy(cfg)
	assert.ErrorIs(t, err, ErrTargetSize)
}

func TestReconstruction_EnergyDecomposition(t *testing.T) {
	for _, lambda := range []float64{0, 0.1, 1} {
		fx := newFixture(t)
		e, err := NewReconstructionEnergy(fx.config(lambda))
		require.NoError(t, err)

		fx.tape.Push()
		out := e.Evaluate(false)
		fx.tape.Pop()

		assert.Greater(t, e.ImageTerm(), 0.0)
		assert.Greater(t, e.NormalTerm(), 0.0)
		assert.InDelta(t, e.ImageTerm()+lambda*e.NormalTerm(), out.Float(), 1e-9, "lambda=%v", lambda)
		assert.Equal(t, 1, e.Evaluations())
	}
}

func TestReconstruction_TapeBalanced(t *testing.T) {
	fx := newFixture(t)
	e, err := NewReconstructionEnergy(fx.config(0.1))
	require.NoError(t, err)

	size := fx.tape.Size()
	for range 2 {
		fx.tape.Push()
		out := e.Evaluate(false)
		e.ComputeGradient(out)
		assert.Greater(t, fx.tape.Size(), size)
		fx.tape.Pop()
		assert.Equal(t, size, fx.tape.Size())
	}
	assert.Equal(t, 2, e.Evaluations())
}

func TestReconstruction_StatusOrdering(t *testing.T) {
	fx := newFixture(t)
	e, err := NewReconstructionEnergy(fx.config(0.1))
	require.NoError(t, err)

	require.Equal(t, 6*6*6+3, e.InputDim())
	status := e.Status()
	require.Len(t, status, e.InputDim())
	assert.Equal(t, fx.grid.Value(0, 0, 0).Float(), status[0])
	assert.Equal(t, 0.5, status[len(status)-1])

	deltas := make([]float64, e.InputDim())
	for i := range deltas {
		deltas[i] = math.Sin(float64(i)) * 0.01
	}
	e.UpdateStatus(deltas)
	for i := range status {
		status[i] += deltas[i]
	}
	assert.Equal(t, status, e.Status())
	assert.Equal(t, status[len(status)-3], fx.light.Color().Float()[0])

	e.SetStatus(make([]float64, e.InputDim()))
	assert.Equal(t, 0.0, fx.grid.Value(2, 3, 4).Float())

	assert.PanicsWithError(t, "energy: parameter vector length mismatch: got 1, want 219", func() {
		e.UpdateStatus([]float64{1})
	})
}

func TestReconstruction_GradientMatchesNumerical(t *testing.T) {
	fx := newFixture(t)
	e, err := NewReconstructionEnergy(fx.config(0.1))
	require.NoError(t, err)

	eval := func() float64 {
		fx.tape.Push()
		defer fx.tape.Pop()
		return e.Evaluate(false).Float()
	}

	fx.tape.Push()
	out := e.Evaluate(false)
	grad := e.ComputeGradient(out)
	fx.tape.Pop()
	require.Len(t, grad, e.InputDim())

	// The image is linear in each light channel, so the energy is quadratic
	// along those axes and central differences agree up to rounding.
	light := e.InputDim() - 3
	for idx := light; idx < e.InputDim(); idx++ {
		const h = 1e-5
		status := e.Status()
		status[idx] += h
		e.SetStatus(status)
		plus := eval()
		status[idx] -= 2 * h
		e.SetStatus(status)
		minus := eval()
		status[idx] += h
		e.SetStatus(status)

		assert.InDelta(t, (plus-minus)/(2*h), grad[idx], 1e-4, "param %d", idx)
	}
	assert.NotZero(t, GradientNorm(grad[:light]))
}

func TestReconstruction_NormalTermZeroForPlane(t *testing.T) {
	fx := newFixture(t)
	plane, err := scene.NewSignedDistanceGrid(fx.tape, 5, 5, 5, geom.V(-1, -1, -1), geom.V(1, 1, 1),
		func(p geom.Vec3) float64 { return 0.3*p.X - 0.5*p.Y + p.Z })
	require.NoError(t, err)

	cfg := fx.config(1)
	e, err := NewReconstructionEnergy(cfg)
	require.NoError(t, err)
	e.SetGrid(plane)

	assert.Same(t, plane, e.Grid())
	assert.Equal(t, 5*5*5+3, e.InputDim())
	assert.Same(t, plane, fx.sc.Shapes()[0])

	fx.tape.Push()
	e.Evaluate(false)
	fx.tape.Pop()
	assert.InDelta(t, 0, e.NormalTerm(), 1e-20)
}

func TestReconstruction_OutputImages(t *testing.T) {
	fx := newFixture(t)
	cfg := fx.config(0.1)
	cfg.OutputDir = t.TempDir()
	e, err := NewReconstructionEnergy(cfg)
	require.NoError(t, err)

	fx.tape.Push()
	withOutput := e.Evaluate(true).Float()
	fx.tape.Pop()
	fx.tape.Push()
	without := e.Evaluate(false).Float()
	fx.tape.Pop()

	assert.Equal(t, withOutput, without)
	for _, name := range []string{"iter_0_view_0.ppm", "iter_0_view_1.ppm", "iter_0_view_1_difference.ppm"} {
		_, err := os.Stat(filepath.Join(cfg.OutputDir, name))
		assert.NoError(t, err, name)
	}
	_, err = os.Stat(filepath.Join(cfg.OutputDir, "iter_1_view_0.ppm"))
	assert.True(t, os.IsNotExist(err))
	assert.Contains(t, e.String(), "views: 2")
}

func (fx *fixture) shapeFit(t *testing.T, radius float64) (*ShapeFit, *scene.Sphere) {
	t.Helper()
	sphere := scene.NewSphere(fx.tape, geom.V(0, 0, 0), radius)
	amb := scene.NewAmbientLight(fx.tape, 0.9, 0.6, 0.3)
	sc := scene.New()
	sc.AddShape(sphere)
	sc.AddLight(fx.sc.Lights()[0])
	sc.AddLight(amb)

	fit, err := NewShapeFit(ShapeFitConfig{
		Scene:   sc,
		Objects: []scene.Differentiable{sphere, amb},
		Targets: fx.targets,
		Cameras: fx.cameras,
		Render:  fx.r,
		Width:   testW,
		Height:  testH,
	})
	require.NoError(t, err)
	return fit, sphere
}

func TestShapeFit_ExactMatch(t *testing.T) {
	fx := newFixture(t)
	fit, _ := fx.shapeFit(t, 1)
	require.Equal(t, 7, fit.InputDim())

	fx.tape.Push()
	out := fit.Evaluate(false)
	grad := fit.ComputeGradient(out)
	fx.tape.Pop()

	assert.Equal(t, 0.0, out.Float())
	assert.Equal(t, 0.0, GradientNorm(grad))
	assert.Equal(t, []float64{0, 0, 0, 1, 0.9, 0.6, 0.3}, fit.Status())
}

func TestShapeFit_Gradient(t *testing.T) {
	fx := newFixture(t)
	fit, sphere := fx.shapeFit(t, 0.8)

	eval := func() float64 {
		fx.tape.Push()
		defer fx.tape.Pop()
		return fit.Evaluate(false).Float()
	}

	fx.tape.Push()
	out := fit.Evaluate(false)
	grad := fit.ComputeGradient(out)
	fx.tape.Pop()
	assert.Greater(t, out.Float(), 0.0)

	const h = 1e-5
	status := fit.Status()
	status[4] += h
	fit.SetStatus(status)
	plus := eval()
	status[4] -= 2 * h
	fit.SetStatus(status)
	minus := eval()
	assert.InDelta(t, (plus-minus)/(2*h), grad[4], 1e-4)

	fit.UpdateStatus([]float64{0, 0, 0, 0.1, 0, 0, 0})
	assert.Contains(t, sphere.String(), "radius: 0.9")
	assert.Contains(t, fit.String(), "params: 7")
}

func TestShapeFit_Validation(t *testing.T) {
	fx := newFixture(t)
	_, err := NewShapeFit(ShapeFitConfig{Scene: fx.sc, Render: fx.r, Targets: fx.targets, Cameras: fx.cameras, Width: testW, Height: testH})
	assert.ErrorIs(t, err, ErrMissingComponent)

	_, err = NewShapeFit(ShapeFitConfig{
		Scene: fx.sc, Render: fx.r, Objects: []scene.Differentiable{fx.light},
		Targets: fx.targets, Cameras: fx.cameras[:1], Width: testW, Height: testH,
	})
	assert.ErrorIs(t, err, ErrViewCameraMismatch)
}
