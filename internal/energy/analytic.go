package energy

import (
	"fmt"
	"strings"

	"github.com/born-ml/invrender/internal/autodiff"
)

// Analytic is a Function given by a closed-form expression of its
// parameters, useful for testing optimisers without a renderer.
type Analytic struct {
	name   string
	params []autodiff.Scalar
	vars   Params
	f      func(x []autodiff.Scalar) autodiff.Scalar
	deriv  autodiff.Derivatives
}

// NewAnalytic registers one leaf per initial value on tape and binds f.
// The leaves are created immediately, so call it before any checkpoint the
// optimiser will pop.
func NewAnalytic(tape *autodiff.Tape, name string, init []float64, f func(x []autodiff.Scalar) autodiff.Scalar) *Analytic {
	a := &Analytic{name: name, f: f, params: make([]autodiff.Scalar, len(init))}
	for i, v := range init {
		a.params[i] = tape.Var(v)
	}
	a.vars = make(Params, len(a.params))
	for i := range a.params {
		a.vars[i] = &a.params[i]
	}
	return a
}

// Sphere returns Σ xᵢ², minimised at the origin.
func Sphere(x []autodiff.Scalar) autodiff.Scalar {
	terms := make([]autodiff.Scalar, len(x))
	for i, v := range x {
		terms[i] = autodiff.Square(v)
	}
	return autodiff.Sum(terms...)
}

// Matyas returns 0.26(x² + y²) - 0.48xy, minimised at the origin.
func Matyas(x []autodiff.Scalar) autodiff.Scalar {
	sq := autodiff.Add(autodiff.Square(x[0]), autodiff.Square(x[1]))
	return autodiff.Sub(autodiff.Scale(sq, 0.26), autodiff.Scale(autodiff.Mul(x[0], x[1]), 0.48))
}

// InputDim implements Function.
func (a *Analytic) InputDim() int { return len(a.params) }

// Evaluate implements Function. The output flag is ignored.
func (a *Analytic) Evaluate(bool) autodiff.Scalar {
	return a.f(a.params)
}

// ComputeGradient implements Function.
func (a *Analytic) ComputeGradient(out autodiff.Scalar) []float64 {
	return a.vars.Gradient(&a.deriv, out)
}

// Status implements Function.
func (a *Analytic) Status() []float64 { return a.vars.Status() }

// UpdateStatus implements Function.
func (a *Analytic) UpdateStatus(deltas []float64) { a.vars.UpdateStatus(deltas) }

// SetStatus implements Function.
func (a *Analytic) SetStatus(status []float64) { a.vars.SetStatus(status) }

func (a *Analytic) String() string {
	parts := make([]string, len(a.params))
	for i, p := range a.params {
		parts[i] = fmt.Sprintf("%g", p.Float())
	}
	return fmt.Sprintf("%s(%s)", a.name, strings.Join(parts, ", "))
}
