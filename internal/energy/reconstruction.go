package energy

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/born-ml/invrender/internal/autodiff"
	"github.com/born-ml/invrender/internal/camera"
	"github.com/born-ml/invrender/internal/film"
	"github.com/born-ml/invrender/internal/logging"
	"github.com/born-ml/invrender/internal/render"
	"github.com/born-ml/invrender/internal/scene"
	"github.com/born-ml/invrender/internal/tonemap"
)

// Construction errors.
var (
	ErrMissingComponent   = errors.New("energy: missing scene component or renderer")
	ErrNoTargets          = errors.New("energy: no target views")
	ErrViewCameraMismatch = errors.New("energy: target views and cameras differ in number")
	ErrTargetSize         = errors.New("energy: target view size does not match resolution")
)

// ReconstructionConfig binds a ReconstructionEnergy to its scene and targets.
type ReconstructionConfig struct {
	Scene *scene.Scene
	// Grid must be a shape of Scene; its vertex values are tunable.
	Grid *scene.SignedDistanceGrid
	// Light must be a light of Scene; its colour is tunable.
	Light *scene.AmbientLight
	// Targets are raw RGB views (film.BoxFilm.Raw layout), one per camera.
	Targets [][]float64
	Cameras []camera.Camera
	Render  render.Renderer
	Lambda  float64 // weight of the normal term
	Width   int
	Height  int

	// OutputDir receives per-view renders when Evaluate is asked for output.
	// Empty disables image output.
	OutputDir  string
	Format     string // image extension, default ".ppm"
	Tonemapper *tonemap.ClampTonemapper
}

// ReconstructionEnergy measures how far renders of an SDF grid scene are from
// a set of target views, plus a smoothness penalty on the grid:
//
//	E = Σ_views Σ_pixels (render - target)² + λ · Σ_adjacent |∇v(p) - ∇v(q)|²
//
// The parameter vector is every grid vertex (grid storage order) followed by
// the ambient light's R, G and B channels.
type ReconstructionEnergy struct {
	cfg ReconstructionConfig

	diffVariables Params
	derivatives   autodiff.Derivatives

	evaluations int
	imageTerm   float64
	normalTerm  float64
}

// NewReconstructionEnergy validates cfg and binds the differentiable variables.
func NewReconstructionEnergy(cfg ReconstructionConfig) (*ReconstructionEnergy, error) {
	if cfg.Scene == nil || cfg.Grid == nil || cfg.Light == nil || cfg.Render == nil {
		return nil, ErrMissingComponent
	}
	if err := validateViews(cfg.Targets, cfg.Cameras, cfg.Width, cfg.Height); err != nil {
		return nil, err
	}
	if cfg.OutputDir != "" && cfg.Tonemapper == nil {
		cfg.Tonemapper = tonemap.NewClampTonemapper(false)
	}
	if cfg.Format == "" {
		cfg.Format = ".ppm"
	}
	e := &ReconstructionEnergy{cfg: cfg}
	e.RebindVars()
	return e, nil
}

// RebindVars rebuilds the parameter list from the grid and the light. Call it
// whenever their leaves are replaced.
func (e *ReconstructionEnergy) RebindVars() {
	vars := e.cfg.Grid.DiffVariables()
	vars = append(vars, e.cfg.Light.DiffVariables()...)
	e.diffVariables = vars
	e.derivatives.Clear()
}

// SetGrid swaps in a new grid, for example after Resample, replacing it in
// the scene and rebinding the parameters.
func (e *ReconstructionEnergy) SetGrid(g *scene.SignedDistanceGrid) {
	shapes := e.cfg.Scene.Shapes()
	for i, sh := range shapes {
		if sh == scene.Shape(e.cfg.Grid) {
			shapes[i] = g
		}
	}
	e.cfg.Grid = g
	e.RebindVars()
}

// Grid returns the bound grid.
func (e *ReconstructionEnergy) Grid() *scene.SignedDistanceGrid { return e.cfg.Grid }

// ImageTerm returns the image term of the last evaluation.
func (e *ReconstructionEnergy) ImageTerm() float64 { return e.imageTerm }

// NormalTerm returns the unweighted normal term of the last evaluation.
func (e *ReconstructionEnergy) NormalTerm() float64 { return e.normalTerm }

// Lambda returns the normal term weight.
func (e *ReconstructionEnergy) Lambda() float64 { return e.cfg.Lambda }

// Evaluations returns how many times Evaluate has run.
func (e *ReconstructionEnergy) Evaluations() int { return e.evaluations }

// InputDim implements Function.
func (e *ReconstructionEnergy) InputDim() int { return len(e.diffVariables) }

// Evaluate implements Function.
func (e *ReconstructionEnergy) Evaluate(output bool) autodiff.Scalar {
	image := renderTerm(e.cfg.Scene, e.cfg.Render, e.cfg.Cameras, e.cfg.Targets, e.cfg.Width, e.cfg.Height,
		func(k int, f *film.BoxFilm) {
			if output {
				e.writeView(k, f, e.cfg.Targets[k])
			}
		})
	normal := e.smoothnessTerm()

	e.imageTerm = image.Float()
	e.normalTerm = normal.Float()
	e.evaluations++

	return autodiff.Add(image, autodiff.Scale(normal, e.cfg.Lambda))
}

// renderTerm renders every view and returns Σ_views Σ_pixels (render - target)².
// visit, if non-nil, sees each finished film.
func renderTerm(sc *scene.Scene, r render.Renderer, cams []camera.Camera, targets [][]float64, w, h int,
	visit func(k int, f *film.BoxFilm)) autodiff.Scalar {
	views := make([]autodiff.Scalar, len(targets))
	for k, target := range targets {
		f := film.NewBoxFilm(w, h)
		r.RenderImage(f, sc, cams[k])
		views[k] = f.SquaredDistance(target)
		logging.Logger().Debug("view term", "view", k, "value", views[k].Float())
		if visit != nil {
			visit(k, f)
		}
	}
	return autodiff.Sum(views...)
}

func validateViews(targets [][]float64, cams []camera.Camera, w, h int) error {
	if len(targets) == 0 {
		return ErrNoTargets
	}
	if len(targets) != len(cams) {
		return fmt.Errorf("%w: %d views, %d cameras", ErrViewCameraMismatch, len(targets), len(cams))
	}
	want := 3 * w * h
	for i, t := range targets {
		if len(t) != want || want == 0 {
			return fmt.Errorf("%w: view %d has %d values, want %d", ErrTargetSize, i, len(t), want)
		}
	}
	return nil
}

// smoothnessTerm sums |∇v(p) - ∇v(q)|² over pairs of axis-adjacent interior
// vertices, with ∇v from central differences.
func (e *ReconstructionEnergy) smoothnessTerm() autodiff.Scalar {
	g := e.cfg.Grid
	nx, ny, nz := g.Resolution()
	var terms []autodiff.Scalar
	for k := 1; k < nz-1; k++ {
		for j := 1; j < ny-1; j++ {
			for i := 1; i < nx-1; i++ {
				gp, _ := g.VertexGradient(i, j, k)
				for _, nb := range [3][3]int{{i + 1, j, k}, {i, j + 1, k}, {i, j, k + 1}} {
					gq, ok := g.VertexGradient(nb[0], nb[1], nb[2])
					if !ok {
						continue
					}
					terms = append(terms, gp.Sub(gq).SquaredLength())
				}
			}
		}
	}
	return autodiff.Sum(terms...)
}

func (e *ReconstructionEnergy) writeView(k int, f *film.BoxFilm, target []float64) {
	if e.cfg.OutputDir == "" {
		return
	}
	log := logging.Logger()
	base := filepath.Join(e.cfg.OutputDir, fmt.Sprintf("iter_%d_view_%d", e.evaluations, k))
	if err := e.cfg.Tonemapper.Process(base+e.cfg.Format, f); err != nil {
		log.Warn("write render", "view", k, "err", err)
	}
	diff := tonemap.RawImage{W: f.Width(), H: f.Height(), Data: f.Difference(target)}
	if err := e.cfg.Tonemapper.Process(base+"_difference"+e.cfg.Format, diff); err != nil {
		log.Warn("write difference", "view", k, "err", err)
	}
}

// ComputeGradient implements Function.
func (e *ReconstructionEnergy) ComputeGradient(out autodiff.Scalar) []float64 {
	return e.diffVariables.Gradient(&e.derivatives, out)
}

// Status implements Function.
func (e *ReconstructionEnergy) Status() []float64 { return e.diffVariables.Status() }

// UpdateStatus implements Function.
func (e *ReconstructionEnergy) UpdateStatus(deltas []float64) { e.diffVariables.UpdateStatus(deltas) }

// SetStatus implements Function.
func (e *ReconstructionEnergy) SetStatus(status []float64) { e.diffVariables.SetStatus(status) }

func (e *ReconstructionEnergy) String() string {
	return fmt.Sprintf("ReconstructionEnergy{views: %d, size: %dx%d, lambda: %g, params: %d, evaluations: %d, image: %g, normal: %g, grid: %v, light: %v}",
		len(e.cfg.Targets), e.cfg.Width, e.cfg.Height, e.cfg.Lambda, len(e.diffVariables),
		e.evaluations, e.imageTerm, e.normalTerm, e.cfg.Grid, e.cfg.Light)
}
