package optim_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/invrender/internal/autodiff"
	"github.com/born-ml/invrender/internal/energy"
	"github.com/born-ml/invrender/internal/optim"
)

func newSphere(t *testing.T) (*autodiff.Tape, *energy.Analytic) {
	t.Helper()
	tape := autodiff.NewTape()
	return tape, energy.NewAnalytic(tape, "sphere", []float64{1, 2, 3}, energy.Sphere)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "Evaluating", optim.Evaluating.String())
	assert.Equal(t, "IterationLimitReached", optim.IterationLimitReached.String())
	assert.Equal(t, "State(42)", optim.State(42).String())
	assert.True(t, optim.Converged.Terminal())
	assert.False(t, optim.Stepping.Terminal())
}

func TestNewDriver_Validation(t *testing.T) {
	tape, fn := newSphere(t)

	_, err := optim.NewDriver(nil, fn, optim.Config{})
	assert.ErrorIs(t, err, optim.ErrInvalidConfig)
	_, err = optim.NewDriver(tape, fn, optim.Config{LearningRate: -1})
	assert.ErrorIs(t, err, optim.ErrInvalidConfig)
	_, err = optim.NewDriver(tape, fn, optim.Config{Momentum: 1})
	assert.ErrorIs(t, err, optim.ErrInvalidConfig)
	_, err = optim.NewDriver(tape, fn, optim.Config{MaxIterations: -3})
	assert.ErrorIs(t, err, optim.ErrInvalidConfig)

	drv, err := optim.NewDriver(tape, fn, optim.Config{})
	require.NoError(t, err)
	cfg := drv.Config()
	assert.Equal(t, optim.DefaultLearningRate, cfg.LearningRate)
	assert.Equal(t, optim.DefaultGradTolerance, cfg.GradTolerance)
	assert.Equal(t, optim.DefaultEnergyTolerance, cfg.EnergyTolerance)
	assert.Equal(t, optim.DefaultMaxIterations, cfg.MaxIterations)
	assert.Equal(t, optim.DefaultLearningRate, cfg.Optimizer.GetLR())
}

func TestDriver_ConvexConverges(t *testing.T) {
	tape, fn := newSphere(t)
	size := tape.Size()

	// x <- x - 0.1·2x = 0.8x, so E_i = 14·0.64^i first drops to 0.01 or
	// below at i = 17.
	drv, err := optim.NewDriver(tape, fn, optim.Config{LearningRate: 0.1})
	require.NoError(t, err)

	res, err := drv.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, optim.Converged, res.State)
	assert.True(t, res.Converged())
	assert.Equal(t, 18, res.Iterations)
	assert.LessOrEqual(t, res.Energy, optim.DefaultEnergyTolerance)
	assert.Equal(t, optim.Converged, drv.State())
	assert.Equal(t, size, tape.Size())

	// Status reflects the step taken after the last evaluation.
	want := []float64{1, 2, 3}
	for i := range want {
		for range 18 {
			want[i] *= 0.8
		}
	}
	assert.InDeltaSlice(t, want, res.Status, 1e-12)
}

func TestDriver_GradientToleranceConverges(t *testing.T) {
	tape := autodiff.NewTape()
	// A constant offset keeps the energy above its tolerance, so only the
	// gradient can stop the run.
	fn := energy.NewAnalytic(tape, "offset", []float64{0.5}, func(x []autodiff.Scalar) autodiff.Scalar {
		return autodiff.AddConst(autodiff.Square(x[0]), 10)
	})

	drv, err := optim.NewDriver(tape, fn, optim.Config{LearningRate: 0.5, GradTolerance: 1e-6})
	require.NoError(t, err)

	res, err := drv.Run(t.Context())
	require.NoError(t, err)
	// x <- x - 0.5·2x = 0, so the second evaluation sees a zero gradient.
	assert.Equal(t, optim.Converged, res.State)
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, 0.0, res.GradNorm)
	assert.Equal(t, 10.0, res.Energy)
}

func TestDriver_IterationLimit(t *testing.T) {
	tape, fn := newSphere(t)
	size := tape.Size()

	var reports []optim.Iteration
	drv, err := optim.NewDriver(tape, fn, optim.Config{
		LearningRate:  1e-6,
		MaxIterations: 5,
		OnIteration:   func(it optim.Iteration) { reports = append(reports, it) },
	})
	require.NoError(t, err)

	res, err := drv.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, optim.IterationLimitReached, res.State)
	assert.False(t, res.Converged())
	assert.Equal(t, 5, res.Iterations)

	require.Len(t, reports, 5)
	for i, it := range reports {
		assert.Equal(t, i, it.Index)
		assert.Greater(t, it.TapeSize, size)
		assert.Equal(t, size, it.TapeAfter)
		if i > 0 {
			assert.Less(t, it.Energy, reports[i-1].Energy)
		}
	}
	assert.InDelta(t, 14, reports[0].Energy, 1e-12)
	assert.Equal(t, size, tape.Size())
}

func TestDriver_NeverExceedsCap(t *testing.T) {
	for _, maxIter := range []int{1, 2, 7} {
		tape, fn := newSphere(t)
		drv, err := optim.NewDriver(tape, fn, optim.Config{LearningRate: 1e-4, MaxIterations: maxIter})
		require.NoError(t, err)

		res, err := drv.Run(t.Context())
		require.NoError(t, err)
		assert.LessOrEqual(t, res.Iterations, maxIter)
		assert.True(t, res.State.Terminal())
	}
}

func TestDriver_Adam(t *testing.T) {
	tape, fn := newSphere(t)
	drv, err := optim.NewDriver(tape, fn, optim.Config{
		Optimizer:     optim.NewAdam(optim.AdamConfig{LR: 0.05}),
		MaxIterations: 200,
	})
	require.NoError(t, err)

	res, err := drv.Run(t.Context())
	require.NoError(t, err)
	assert.True(t, res.State.Terminal())
	assert.Less(t, energy.GradientNorm(res.Status), energy.GradientNorm([]float64{1, 2, 3})/2)
}

func TestDriver_Cancellation(t *testing.T) {
	tape, fn := newSphere(t)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	drv, err := optim.NewDriver(tape, fn, optim.Config{
		LearningRate: 1e-6,
		OnIteration: func(it optim.Iteration) {
			if it.Index == 2 {
				cancel()
			}
		},
	})
	require.NoError(t, err)

	res, err := drv.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, res.Iterations)
	assert.False(t, res.State.Terminal())
	assert.Len(t, res.Status, 3)
	assert.Equal(t, 3, tape.Size())
}

func TestDriver_CancelledBeforeStart(t *testing.T) {
	tape, fn := newSphere(t)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	drv, err := optim.NewDriver(tape, fn, optim.Config{})
	require.NoError(t, err)
	res, err := drv.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.Iterations)
	assert.Equal(t, []float64{1, 2, 3}, res.Status)
}

type outputRecorder struct {
	*energy.Analytic
	outputs []bool
}

func (o *outputRecorder) Evaluate(output bool) autodiff.Scalar {
	o.outputs = append(o.outputs, output)
	return o.Analytic.Evaluate(output)
}

func TestDriver_OutputEvery(t *testing.T) {
	tape, fn := newSphere(t)
	rec := &outputRecorder{Analytic: fn}

	drv, err := optim.NewDriver(tape, rec, optim.Config{LearningRate: 1e-6, MaxIterations: 5, OutputEvery: 2})
	require.NoError(t, err)
	_, err = drv.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true, false, true}, rec.outputs)
}
