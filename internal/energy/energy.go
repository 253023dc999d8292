// Package energy defines scalar cost functions over tunable scene parameters.
//
// A Function evaluates to a differentiable scalar and reports its gradient
// with respect to an ordered parameter vector. The order is fixed by the
// Function and shared by Status, ComputeGradient, UpdateStatus and SetStatus;
// it is the contract between an energy and the optimiser driving it.
package energy

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/invrender/internal/autodiff"
)

// ErrDimensionMismatch is raised (via panic) when a vector passed to
// UpdateStatus or SetStatus does not have InputDim entries.
var ErrDimensionMismatch = errors.New("energy: parameter vector length mismatch")

// Function is a scalar energy over a vector of tunable parameters.
type Function interface {
	// InputDim returns the number of tunable parameters.
	InputDim() int
	// Evaluate computes the energy from the current parameters. output
	// requests diagnostic side effects such as debug images; it never
	// changes the returned value.
	Evaluate(output bool) autodiff.Scalar
	// ComputeGradient returns ∂out/∂pᵢ for every parameter, in order.
	ComputeGradient(out autodiff.Scalar) []float64
	// Status returns the current parameter values.
	Status() []float64
	// UpdateStatus adds deltas[i] to parameter i.
	UpdateStatus(deltas []float64)
	// SetStatus overwrites every parameter.
	SetStatus(status []float64)
	// String describes the function state for diagnostics.
	String() string
}

// GradientNorm2 returns the squared Euclidean norm of g.
func GradientNorm2(g []float64) float64 {
	return floats.Dot(g, g)
}

// GradientNorm returns the Euclidean norm of g.
func GradientNorm(g []float64) float64 {
	if len(g) == 0 {
		return 0
	}
	return floats.Norm(g, 2)
}

// Params is an ordered list of leaf parameters. It implements the status
// half of Function for any energy that owns its leaves.
type Params []*autodiff.Scalar

// Status returns the parameter values.
func (p Params) Status() []float64 {
	out := make([]float64, len(p))
	for i, v := range p {
		out[i] = v.Float()
	}
	return out
}

// UpdateStatus adds deltas[i] to parameter i.
func (p Params) UpdateStatus(deltas []float64) {
	p.checkLen(len(deltas))
	for i, v := range p {
		v.SetFloat(v.Float() + deltas[i])
	}
}

// SetStatus overwrites parameter i with status[i].
func (p Params) SetStatus(status []float64) {
	p.checkLen(len(status))
	for i, v := range p {
		v.SetFloat(status[i])
	}
}

// Gradient reads one adjoint per parameter from a single reverse pass.
func (p Params) Gradient(d *autodiff.Derivatives, out autodiff.Scalar) []float64 {
	d.Compute(out)
	g := make([]float64, len(p))
	for i, v := range p {
		g[i] = d.Dwrt(out, *v)
	}
	return g
}

func (p Params) checkLen(n int) {
	if n != len(p) {
		panic(fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, n, len(p)))
	}
}
