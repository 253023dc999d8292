// Package scene holds the shapes and lights a renderer draws, together with
// the differentiable parameters they expose to the optimiser.
package scene

import (
	"errors"
	"fmt"
	"math"

	"github.com/born-ml/invrender/internal/autodiff"
	"github.com/born-ml/invrender/internal/geom"
)

// ErrDimensionMismatch is raised when a delta vector does not match the
// number of differentiable variables of an object.
var ErrDimensionMismatch = errors.New("scene: delta vector length mismatch")

// Differentiable is implemented by scene objects whose parameters can be tuned.
type Differentiable interface {
	// DiffVariables returns pointers to the object's leaf parameters in a
	// fixed order.
	DiffVariables() []*autodiff.Scalar
	// UpdateDiffVariables adds deltas[i] to parameter i.
	UpdateDiffVariables(deltas []float64)
}

// Interaction describes a ray-surface hit.
type Interaction struct {
	T      float64
	Point  geom.Vec3
	Normal geom.DVec3 // unit length, differentiable w.r.t. shape parameters
}

// Shape is anything a ray can hit.
type Shape interface {
	Differentiable
	Intersect(r geom.Ray) (Interaction, bool)
	String() string
}

// Light is a light source.
type Light interface {
	Differentiable
	String() string
}

// Scene is an ordered collection of shapes and lights.
type Scene struct {
	shapes []Shape
	lights []Light
}

// New creates an empty scene.
func New() *Scene {
	return &Scene{}
}

// AddShape appends a shape.
func (s *Scene) AddShape(sh Shape) {
	s.shapes = append(s.shapes, sh)
}

// AddLight appends a light.
func (s *Scene) AddLight(l Light) {
	s.lights = append(s.lights, l)
}

// ClearShapes removes every shape.
func (s *Scene) ClearShapes() {
	s.shapes = nil
}

// Shapes returns the shapes in insertion order.
func (s *Scene) Shapes() []Shape {
	return s.shapes
}

// Lights returns the lights in insertion order.
func (s *Scene) Lights() []Light {
	return s.lights
}

// Ambient returns the first ambient light, or nil.
func (s *Scene) Ambient() *AmbientLight {
	for _, l := range s.lights {
		if a, ok := l.(*AmbientLight); ok {
			return a
		}
	}
	return nil
}

// Intersect returns the closest hit along r.
func (s *Scene) Intersect(r geom.Ray) (Interaction, bool) {
	best := Interaction{T: math.Inf(1)}
	found := false
	for _, sh := range s.shapes {
		hit, ok := sh.Intersect(r)
		if ok && hit.T < best.T {
			best, found = hit, true
		}
	}
	return best, found
}

func addDeltas(vars []*autodiff.Scalar, deltas []float64) {
	if len(vars) != len(deltas) {
		panic(fmt.Errorf("%w: %d variables, %d deltas", ErrDimensionMismatch, len(vars), len(deltas)))
	}
	for i, v := range vars {
		v.SetFloat(v.Float() + deltas[i])
	}
}
