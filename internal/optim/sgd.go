package optim

import (
	"gonum.org/v1/gonum/floats"
)

// SGD implements gradient descent with optional momentum.
//
// Update rule without momentum:
//
//	delta = -lr * gradient
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	delta = -lr * velocity
type SGD struct {
	lr       float64
	momentum float64
	velocity []float64
}

// SGDConfig holds configuration for SGD.
type SGDConfig struct {
	LR       float64 // Learning rate (default: 1e-3)
	Momentum float64 // Momentum factor (default: 0, range: [0, 1))
}

// NewSGD creates a new SGD optimizer.
func NewSGD(config SGDConfig) *SGD {
	if config.LR == 0 {
		config.LR = DefaultLearningRate
	}
	return &SGD{lr: config.LR, momentum: config.Momentum}
}

// Step implements Optimizer.
func (s *SGD) Step(grad []float64) []float64 {
	delta := make([]float64, len(grad))
	if s.momentum == 0 {
		floats.ScaleTo(delta, -s.lr, grad)
		return delta
	}

	if len(s.velocity) != len(grad) {
		s.velocity = make([]float64, len(grad))
	}
	// velocity = momentum * velocity + grad
	floats.Scale(s.momentum, s.velocity)
	floats.Add(s.velocity, grad)
	floats.ScaleTo(delta, -s.lr, s.velocity)
	return delta
}

// GetLR returns the current learning rate.
func (s *SGD) GetLR() float64 {
	return s.lr
}

// SetLR updates the learning rate.
func (s *SGD) SetLR(lr float64) {
	s.lr = lr
}

// StateDict implements Optimizer. Without momentum, or before the first
// step, it is empty.
func (s *SGD) StateDict() map[string][]float64 {
	state := make(map[string][]float64)
	if s.momentum == 0 || s.velocity == nil {
		return state
	}
	state["velocity"] = append([]float64(nil), s.velocity...)
	return state
}

// LoadStateDict implements Optimizer. A missing velocity leaves the
// optimizer to start from rest.
func (s *SGD) LoadStateDict(state map[string][]float64) error {
	if s.momentum == 0 {
		return nil
	}
	v, ok := state["velocity"]
	if !ok {
		s.velocity = nil
		return nil
	}
	s.velocity = append([]float64(nil), v...)
	return nil
}
