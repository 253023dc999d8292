package scene

import (
	"fmt"
	"math"

	"github.com/born-ml/invrender/internal/autodiff"
	"github.com/born-ml/invrender/internal/geom"
)

const hitEpsilon = 1e-6

// Sphere is an analytic sphere with differentiable centre and radius.
type Sphere struct {
	center geom.DVec3
	radius autodiff.Scalar
}

// NewSphere registers the centre and radius as leaves on tape.
func NewSphere(tape *autodiff.Tape, center geom.Vec3, radius float64) *Sphere {
	return &Sphere{
		center: geom.DVec3{X: tape.Var(center.X), Y: tape.Var(center.Y), Z: tape.Var(center.Z)},
		radius: tape.Var(radius),
	}
}

// Intersect implements Shape.
func (s *Sphere) Intersect(r geom.Ray) (Interaction, bool) {
	c := s.center.Float()
	rad := s.radius.Float()
	oc := r.Origin.Sub(c)
	a := r.Dir.Dot(r.Dir)
	b := 2 * oc.Dot(r.Dir)
	k := oc.Dot(oc) - rad*rad
	disc := b*b - 4*a*k
	if disc < 0 {
		return Interaction{}, false
	}
	sq := math.Sqrt(disc)
	t := (-b - sq) / (2 * a)
	if t < hitEpsilon {
		t = (-b + sq) / (2 * a)
		if t < hitEpsilon {
			return Interaction{}, false
		}
	}
	p := r.At(t)
	inv := autodiff.Div(autodiff.Const(1), s.radius)
	n := geom.ConstVec(p).Sub(s.center).Scale(inv)
	return Interaction{T: t, Point: p, Normal: n}, true
}

// DiffVariables returns centre x, y, z and the radius.
func (s *Sphere) DiffVariables() []*autodiff.Scalar {
	return []*autodiff.Scalar{&s.center.X, &s.center.Y, &s.center.Z, &s.radius}
}

// UpdateDiffVariables implements Differentiable.
func (s *Sphere) UpdateDiffVariables(deltas []float64) {
	addDeltas(s.DiffVariables(), deltas)
}

func (s *Sphere) String() string {
	return fmt.Sprintf("Sphere{center: %v, radius: %g}", s.center.Float(), s.radius.Float())
}
