// Package optim drives a scalar energy towards a minimum by gradient descent.
//
// This package provides:
//   - Optimizer: turns a gradient into a parameter step
//   - SGD: plain gradient descent with optional momentum
//   - Adam: adaptive moment estimation
//   - Driver: the iteration loop that evaluates, differentiates and steps
//     an energy.Function while keeping the tape bounded
//
// Example usage:
//
//	drv, err := optim.NewDriver(tape, fn, optim.Config{LearningRate: 1e-3})
//	if err != nil {
//	    return err
//	}
//	res, err := drv.Run(ctx)
//	if res.State == optim.IterationLimitReached {
//	    // retry with other hyperparameters
//	}
package optim

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned when a Config holds a negative or otherwise
// unusable value.
var ErrInvalidConfig = errors.New("optim: invalid config")

// Optimizer turns a gradient into the step to apply to the parameters.
//
// Implementations may keep per-parameter state between calls. When the
// gradient length changes (for example after the parameter set is
// resampled) that state is reset.
type Optimizer interface {
	// Step returns the deltas to add to the parameters, one per gradient entry.
	Step(grad []float64) []float64

	// GetLR returns the current learning rate.
	GetLR() float64

	// StateDict exports the optimizer's running state by name.
	StateDict() map[string][]float64

	// LoadStateDict restores state exported by StateDict.
	LoadStateDict(state map[string][]float64) error
}

func checkStateLen(name string, got []float64, want int) error {
	if len(got) != want {
		return fmt.Errorf("%w: %s has %d entries, want %d", ErrInvalidConfig, name, len(got), want)
	}
	return nil
}
