package optim

import (
	"math"
)

// Adam implements the Adam (Adaptive Moment Estimation) optimizer.
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * gradient
//	v_t = beta2 * v_{t-1} + (1-beta2) * gradient²
//	m_hat = m_t / (1 - beta1^t)
//	v_hat = v_t / (1 - beta2^t)
//	delta = -lr * m_hat / (sqrt(v_hat) + eps)
//
// The step size is roughly lr in every coordinate regardless of the
// gradient's scale, which suits SDF grids where image-term gradients are
// concentrated on silhouette vertices.
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
type Adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64
	t     int       // Timestep for bias correction
	m     []float64 // First moment estimates
	v     []float64 // Second moment estimates
}

// AdamConfig holds configuration for Adam.
type AdamConfig struct {
	LR    float64    // Learning rate (default: 1e-3)
	Betas [2]float64 // Running average coefficients (default: [0.9, 0.999])
	Eps   float64    // Term for numerical stability (default: 1e-8)
}

// NewAdam creates a new Adam optimizer, filling zero fields with defaults.
func NewAdam(config AdamConfig) *Adam {
	if config.LR == 0 {
		config.LR = DefaultLearningRate
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}
	return &Adam{
		lr:    config.LR,
		beta1: config.Betas[0],
		beta2: config.Betas[1],
		eps:   config.Eps,
	}
}

// Step implements Optimizer.
func (a *Adam) Step(grad []float64) []float64 {
	if len(a.m) != len(grad) {
		a.m = make([]float64, len(grad))
		a.v = make([]float64, len(grad))
		a.t = 0
	}
	a.t++

	biasCorrection1 := 1 - math.Pow(a.beta1, float64(a.t))
	biasCorrection2 := 1 - math.Pow(a.beta2, float64(a.t))

	delta := make([]float64, len(grad))
	for i, g := range grad {
		a.m[i] = a.beta1*a.m[i] + (1-a.beta1)*g
		a.v[i] = a.beta2*a.v[i] + (1-a.beta2)*g*g

		mHat := a.m[i] / biasCorrection1
		vHat := a.v[i] / biasCorrection2
		delta[i] = -a.lr * mHat / (math.Sqrt(vHat) + a.eps)
	}
	return delta
}

// GetLR returns the current learning rate.
func (a *Adam) GetLR() float64 {
	return a.lr
}

// SetLR updates the learning rate.
func (a *Adam) SetLR(lr float64) {
	a.lr = lr
}

// GetTimestep returns the number of steps taken since the last reset.
func (a *Adam) GetTimestep() int {
	return a.t
}

// StateDict implements Optimizer.
//
// State keys: "m", "v" and "t" (the timestep as a single entry).
func (a *Adam) StateDict() map[string][]float64 {
	state := make(map[string][]float64)
	if a.t == 0 {
		return state
	}
	state["m"] = append([]float64(nil), a.m...)
	state["v"] = append([]float64(nil), a.v...)
	state["t"] = []float64{float64(a.t)}
	return state
}

// LoadStateDict implements Optimizer.
func (a *Adam) LoadStateDict(state map[string][]float64) error {
	m, ok := state["m"]
	if !ok {
		a.m, a.v, a.t = nil, nil, 0
		return nil
	}
	if err := checkStateLen("v", state["v"], len(m)); err != nil {
		return err
	}
	if err := checkStateLen("t", state["t"], 1); err != nil {
		return err
	}
	a.m = append([]float64(nil), m...)
	a.v = append([]float64(nil), state["v"]...)
	a.t = int(state["t"][0])
	return nil
}
