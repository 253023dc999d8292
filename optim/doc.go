// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim minimises scalar energies by gradient descent.
//
// # Overview
//
// This package contains:
//   - Function: an energy over an ordered parameter vector
//   - SGD: gradient descent with optional momentum
//   - Adam: Adaptive Moment Estimation with bias correction
//   - Driver: the evaluate, differentiate, step loop with stopping rules
//
// # Basic Usage
//
//	tape := autodiff.NewTape()
//	fn := optim.NewAnalytic(tape, "sphere", []float64{6, 6, 6}, optim.Sphere)
//
//	drv, err := optim.NewDriver(tape, fn, optim.Config{LearningRate: 0.1})
//	if err != nil {
//	    return err
//	}
//	res, err := drv.Run(ctx)
//
// # Iteration Pattern
//
// Each iteration runs inside a tape checkpoint:
//
//	tape.Push()
//	e := fn.Evaluate(false)
//	grad := fn.ComputeGradient(e)
//	fn.UpdateStatus(opt.Step(grad))
//	tape.Pop()
//
// The run stops when the gradient norm or the energy falls to its
// tolerance (Converged) or after MaxIterations (IterationLimitReached).
// Reaching the limit is a result, not an error.
package optim
