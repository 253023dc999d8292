package optim

import (
	"context"
	"fmt"
	"time"

	"github.com/born-ml/invrender/internal/autodiff"
	"github.com/born-ml/invrender/internal/energy"
	"github.com/born-ml/invrender/internal/logging"
)

// Default stopping thresholds and step size.
const (
	DefaultLearningRate    = 1e-3
	DefaultGradTolerance   = 1e-3
	DefaultEnergyTolerance = 1e-2
	DefaultMaxIterations   = 400
)

// State is the phase the driver is in.
type State int

// Driver states. Converged and IterationLimitReached are terminal.
const (
	Evaluating State = iota
	Differentiating
	Stepping
	Converged
	IterationLimitReached
)

func (s State) String() string {
	switch s {
	case Evaluating:
		return "Evaluating"
	case Differentiating:
		return "Differentiating"
	case Stepping:
		return "Stepping"
	case Converged:
		return "Converged"
	case IterationLimitReached:
		return "IterationLimitReached"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == Converged || s == IterationLimitReached
}

// Config holds the driver's hyperparameters. Zero fields take the defaults.
type Config struct {
	LearningRate    float64 // default: DefaultLearningRate
	Momentum        float64 // used by the default SGD optimizer
	GradTolerance   float64 // converged when the gradient norm is at or below this
	EnergyTolerance float64 // converged when the energy is at or below this
	MaxIterations   int     // gives up after this many iterations

	// OutputEvery asks the energy for diagnostic output every n iterations,
	// starting with the first. Zero disables output.
	OutputEvery int

	// Optimizer computes the step. Default: SGD with LearningRate and Momentum,
	// so that delta = -LearningRate * gradient when Momentum is zero.
	Optimizer Optimizer

	// OnIteration, if set, is called after every completed iteration.
	OnIteration func(Iteration)
}

func (c *Config) setDefaults() {
	if c.LearningRate == 0 {
		c.LearningRate = DefaultLearningRate
	}
	if c.GradTolerance == 0 {
		c.GradTolerance = DefaultGradTolerance
	}
	if c.EnergyTolerance == 0 {
		c.EnergyTolerance = DefaultEnergyTolerance
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.Optimizer == nil {
		c.Optimizer = NewSGD(SGDConfig{LR: c.LearningRate, Momentum: c.Momentum})
	}
}

func (c *Config) validate() error {
	switch {
	case c.LearningRate < 0:
		return fmt.Errorf("%w: learning rate %g", ErrInvalidConfig, c.LearningRate)
	case c.Momentum < 0 || c.Momentum >= 1:
		return fmt.Errorf("%w: momentum %g outside [0, 1)", ErrInvalidConfig, c.Momentum)
	case c.GradTolerance < 0 || c.EnergyTolerance < 0:
		return fmt.Errorf("%w: negative tolerance", ErrInvalidConfig)
	case c.MaxIterations < 0:
		return fmt.Errorf("%w: max iterations %d", ErrInvalidConfig, c.MaxIterations)
	case c.OutputEvery < 0:
		return fmt.Errorf("%w: output every %d", ErrInvalidConfig, c.OutputEvery)
	}
	return nil
}

// Iteration reports one completed iteration.
type Iteration struct {
	Index     int     // zero-based
	Energy    float64 // energy before the step
	GradNorm  float64 // gradient norm before the step
	TapeSize  int     // tape size just before the checkpoint was popped
	TapeAfter int     // tape size after the pop
	Elapsed   time.Duration
}

// Result describes a finished or interrupted run.
type Result struct {
	State      State
	Iterations int
	Energy     float64   // energy of the last evaluation
	GradNorm   float64   // gradient norm of the last evaluation
	Status     []float64 // parameters after the last step
}

// Converged reports whether the run met a tolerance.
func (r Result) Converged() bool {
	return r.State == Converged
}

// Driver runs gradient descent on an energy.Function.
//
// Every iteration runs inside a tape checkpoint, so the tape returns to its
// starting size between iterations. The parameter leaves must have been
// created on the same tape before Run.
type Driver struct {
	tape  *autodiff.Tape
	fn    energy.Function
	cfg   Config
	state State
}

// NewDriver creates a driver for fn whose computations are recorded on tape.
func NewDriver(tape *autodiff.Tape, fn energy.Function, cfg Config) (*Driver, error) {
	if tape == nil || fn == nil {
		return nil, fmt.Errorf("%w: nil tape or function", ErrInvalidConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return &Driver{tape: tape, fn: fn, cfg: cfg}, nil
}

// State returns the current phase.
func (d *Driver) State() State { return d.state }

// Config returns the effective configuration, defaults applied.
func (d *Driver) Config() Config { return d.cfg }

// Run iterates until a tolerance is met or MaxIterations is reached. Hitting
// the iteration cap is reported through Result.State, not as an error.
//
// ctx is checked between iterations only; on cancellation Run returns the
// progress so far together with ctx.Err().
func (d *Driver) Run(ctx context.Context) (Result, error) {
	log := logging.Logger()
	res := Result{State: Evaluating}

	for !res.State.Terminal() {
		if err := ctx.Err(); err != nil {
			res.Status = d.fn.Status()
			return res, err
		}

		it := d.iterate(res.Iterations)
		res.Iterations++
		res.Energy, res.GradNorm = it.Energy, it.GradNorm

		log.Info("iteration",
			"index", it.Index,
			"energy", it.Energy,
			"grad_norm", it.GradNorm,
			"elapsed", it.Elapsed)
		log.Debug("tape", "before_pop", it.TapeSize, "after_pop", it.TapeAfter)
		if d.cfg.OnIteration != nil {
			d.cfg.OnIteration(it)
		}

		switch {
		case it.GradNorm <= d.cfg.GradTolerance || it.Energy <= d.cfg.EnergyTolerance:
			res.State = Converged
		case res.Iterations >= d.cfg.MaxIterations:
			res.State = IterationLimitReached
		default:
			res.State = Evaluating
		}
		d.state = res.State
	}

	res.Status = d.fn.Status()
	log.Info("optimization finished",
		"state", res.State,
		"iterations", res.Iterations,
		"energy", res.Energy,
		"grad_norm", res.GradNorm)
	return res, nil
}

// iterate performs one evaluate-differentiate-step cycle inside a checkpoint.
func (d *Driver) iterate(index int) (it Iteration) {
	start := time.Now()
	it.Index = index

	d.tape.Push()
	defer func() {
		it.TapeSize = d.tape.Size()
		d.tape.Pop()
		it.TapeAfter = d.tape.Size()
		it.Elapsed = time.Since(start)
	}()

	d.state = Evaluating
	output := d.cfg.OutputEvery > 0 && index%d.cfg.OutputEvery == 0
	e := d.fn.Evaluate(output)
	it.Energy = e.Float()

	d.state = Differentiating
	grad := d.fn.ComputeGradient(e)
	it.GradNorm = energy.GradientNorm(grad)

	d.state = Stepping
	d.fn.UpdateStatus(d.cfg.Optimizer.Step(grad))
	return it
}
