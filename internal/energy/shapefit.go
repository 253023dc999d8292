package energy

import (
	"fmt"

	"github.com/born-ml/invrender/internal/autodiff"
	"github.com/born-ml/invrender/internal/camera"
	"github.com/born-ml/invrender/internal/render"
	"github.com/born-ml/invrender/internal/scene"
)

// ShapeFitConfig binds a ShapeFit energy.
type ShapeFitConfig struct {
	Scene *scene.Scene
	// Objects supply the tunable parameters, in order. They are normally
	// shapes or lights of Scene.
	Objects []scene.Differentiable
	Targets [][]float64
	Cameras []camera.Camera
	Render  render.Renderer
	Width   int
	Height  int
}

// ShapeFit is the image term alone, over the parameters of arbitrary scene
// objects. Fitting an analytic sphere's centre and radius to target views is
// the typical use.
type ShapeFit struct {
	cfg         ShapeFitConfig
	vars        Params
	derivatives autodiff.Derivatives
}

// NewShapeFit validates cfg and binds the objects' parameters.
func NewShapeFit(cfg ShapeFitConfig) (*ShapeFit, error) {
	if cfg.Scene == nil || cfg.Render == nil || len(cfg.Objects) == 0 {
		return nil, ErrMissingComponent
	}
	if err := validateViews(cfg.Targets, cfg.Cameras, cfg.Width, cfg.Height); err != nil {
		return nil, err
	}
	s := &ShapeFit{cfg: cfg}
	for _, o := range cfg.Objects {
		s.vars = append(s.vars, o.DiffVariables()...)
	}
	return s, nil
}

// InputDim implements Function.
func (s *ShapeFit) InputDim() int { return len(s.vars) }

// Evaluate implements Function. The output flag is ignored.
func (s *ShapeFit) Evaluate(bool) autodiff.Scalar {
	return renderTerm(s.cfg.Scene, s.cfg.Render, s.cfg.Cameras, s.cfg.Targets, s.cfg.Width, s.cfg.Height, nil)
}

// ComputeGradient implements Function.
func (s *ShapeFit) ComputeGradient(out autodiff.Scalar) []float64 {
	return s.vars.Gradient(&s.derivatives, out)
}

// Status implements Function.
func (s *ShapeFit) Status() []float64 { return s.vars.Status() }

// UpdateStatus implements Function.
func (s *ShapeFit) UpdateStatus(deltas []float64) { s.vars.UpdateStatus(deltas) }

// SetStatus implements Function.
func (s *ShapeFit) SetStatus(status []float64) { s.vars.SetStatus(status) }

func (s *ShapeFit) String() string {
	return fmt.Sprintf("ShapeFit{views: %d, params: %d, objects: %v}", len(s.cfg.Targets), len(s.vars), s.cfg.Objects)
}
