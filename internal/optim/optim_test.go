package optim_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/invrender/internal/optim"
)

func TestSGD_SimpleUpdate(t *testing.T) {
	sgd := optim.NewSGD(optim.SGDConfig{LR: 0.1})

	delta := sgd.Step([]float64{1, -2, 0})
	assert.InDeltaSlice(t, []float64{-0.1, 0.2, 0}, delta, 1e-15)
	assert.Empty(t, sgd.StateDict())
}

func TestSGD_Defaults(t *testing.T) {
	sgd := optim.NewSGD(optim.SGDConfig{})
	assert.Equal(t, optim.DefaultLearningRate, sgd.GetLR())

	sgd.SetLR(0.5)
	assert.Equal(t, 0.5, sgd.GetLR())
}

func TestSGD_WithMomentum(t *testing.T) {
	sgd := optim.NewSGD(optim.SGDConfig{LR: 0.1, Momentum: 0.9})

	// v = 1, delta = -0.1
	assert.InDeltaSlice(t, []float64{-0.1}, sgd.Step([]float64{1}), 1e-12)
	// v = 0.9 + 1 = 1.9, delta = -0.19
	assert.InDeltaSlice(t, []float64{-0.19}, sgd.Step([]float64{1}), 1e-12)

	state := sgd.StateDict()
	require.Contains(t, state, "velocity")
	assert.InDeltaSlice(t, []float64{1.9}, state["velocity"], 1e-12)

	// A restored optimizer continues from the same velocity.
	restored := optim.NewSGD(optim.SGDConfig{LR: 0.1, Momentum: 0.9})
	require.NoError(t, restored.LoadStateDict(state))
	assert.Equal(t, sgd.Step([]float64{0.5}), restored.Step([]float64{0.5}))
}

func TestSGD_MomentumResetsOnResize(t *testing.T) {
	sgd := optim.NewSGD(optim.SGDConfig{LR: 1, Momentum: 0.5})
	sgd.Step([]float64{1, 1})

	delta := sgd.Step([]float64{2, 2, 2})
	assert.Equal(t, []float64{-2, -2, -2}, delta)
}

func TestAdam_FirstStep(t *testing.T) {
	adam := optim.NewAdam(optim.AdamConfig{LR: 0.01})

	// After bias correction m_hat = g and v_hat = g², so each coordinate moves
	// by lr against the sign of its gradient.
	delta := adam.Step([]float64{4, -0.5})
	assert.InDeltaSlice(t, []float64{-0.01, 0.01}, delta, 1e-8)
	assert.Equal(t, 1, adam.GetTimestep())
}

func TestAdam_StateDict(t *testing.T) {
	adam := optim.NewAdam(optim.AdamConfig{LR: 0.01})
	assert.Empty(t, adam.StateDict())

	adam.Step([]float64{1, 2})
	adam.Step([]float64{0.5, -1})
	state := adam.StateDict()
	assert.Equal(t, []float64{2}, state["t"])

	restored := optim.NewAdam(optim.AdamConfig{LR: 0.01})
	require.NoError(t, restored.LoadStateDict(state))
	assert.Equal(t, 2, restored.GetTimestep())
	assert.Equal(t, adam.Step([]float64{1, 1}), restored.Step([]float64{1, 1}))

	bad := map[string][]float64{"m": {1, 2}, "v": {1}, "t": {1}}
	assert.ErrorIs(t, restored.LoadStateDict(bad), optim.ErrInvalidConfig)
}

func TestAdam_ResetsOnResize(t *testing.T) {
	adam := optim.NewAdam(optim.AdamConfig{LR: 0.1})
	adam.Step([]float64{1})
	adam.Step([]float64{1})

	delta := adam.Step([]float64{3, -3})
	assert.Equal(t, 1, adam.GetTimestep())
	for _, d := range delta {
		assert.InDelta(t, 0.1, math.Abs(d), 1e-7)
	}
}
