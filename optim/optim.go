// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package optim

import (
	"github.com/born-ml/invrender/autodiff"
	"github.com/born-ml/invrender/internal/energy"
	"github.com/born-ml/invrender/internal/optim"
)

// Function is a scalar energy over an ordered parameter vector.
type Function = energy.Function

// Optimizer turns a gradient into a parameter step.
type Optimizer = optim.Optimizer

// SGD (Stochastic Gradient Descent)

// SGD is gradient descent with optional momentum.
type SGD = optim.SGD

// SGDConfig contains configuration for SGD.
type SGDConfig = optim.SGDConfig

// NewSGD creates a new SGD optimizer.
//
// Example:
//
//	opt := optim.NewSGD(optim.SGDConfig{LR: 1e-3, Momentum: 0.9})
func NewSGD(config SGDConfig) *SGD {
	return optim.NewSGD(config)
}

// Adam (Adaptive Moment Estimation)

// Adam is the Adam optimizer.
type Adam = optim.Adam

// AdamConfig contains configuration for Adam.
type AdamConfig = optim.AdamConfig

// NewAdam creates a new Adam optimizer.
//
// Example:
//
//	opt := optim.NewAdam(optim.AdamConfig{LR: 0.01})
func NewAdam(config AdamConfig) *Adam {
	return optim.NewAdam(config)
}

// Driver

// Driver runs gradient descent on a Function.
type Driver = optim.Driver

// Config holds the driver's hyperparameters.
type Config = optim.Config

// State is the driver's phase.
type State = optim.State

// Result describes a finished or interrupted run.
type Result = optim.Result

// Iteration reports one completed iteration.
type Iteration = optim.Iteration

// Driver states.
const (
	Evaluating            = optim.Evaluating
	Differentiating       = optim.Differentiating
	Stepping              = optim.Stepping
	Converged             = optim.Converged
	IterationLimitReached = optim.IterationLimitReached
)

// ErrInvalidConfig is returned for unusable hyperparameters.
var ErrInvalidConfig = optim.ErrInvalidConfig

// NewDriver creates a driver for fn recorded on tape.
func NewDriver(tape *autodiff.Tape, fn Function, cfg Config) (*Driver, error) {
	return optim.NewDriver(tape, fn, cfg)
}

// Analytic test functions

// NewAnalytic wraps a closed-form expression as a Function.
func NewAnalytic(tape *autodiff.Tape, name string, init []float64, f func(x []autodiff.Scalar) autodiff.Scalar) Function {
	return energy.NewAnalytic(tape, name, init, f)
}

// Sphere returns Σ xᵢ².
func Sphere(x []autodiff.Scalar) autodiff.Scalar { return energy.Sphere(x) }

// Matyas returns 0.26(x² + y²) - 0.48xy.
func Matyas(x []autodiff.Scalar) autodiff.Scalar { return energy.Matyas(x) }
