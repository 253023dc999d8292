// Package pipeline wires a config.Config into a complete run: target
// rendering, coarse-to-fine optimisation, snapshots and final images.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/born-ml/invrender/internal/autodiff"
	"github.com/born-ml/invrender/internal/camera"
	"github.com/born-ml/invrender/internal/config"
	"github.com/born-ml/invrender/internal/energy"
	"github.com/born-ml/invrender/internal/film"
	"github.com/born-ml/invrender/internal/geom"
	"github.com/born-ml/invrender/internal/logging"
	"github.com/born-ml/invrender/internal/optim"
	"github.com/born-ml/invrender/internal/render"
	"github.com/born-ml/invrender/internal/scene"
	"github.com/born-ml/invrender/internal/snapshot"
	"github.com/born-ml/invrender/internal/tonemap"
)

// ErrResumeMismatch is returned when a snapshot does not fit the configured grid levels.
var ErrResumeMismatch = errors.New("pipeline: snapshot does not match configuration")

// Level reports the optimisation of one grid resolution.
type Level struct {
	Resolution int
	Result     optim.Result
}

// Report summarises a run.
type Report struct {
	Levels      []Level
	ImageTerm   float64 // of the last evaluation
	NormalTerm  float64
	Ambient     [3]float64
	Evaluations int
	Outputs     []string // images written outside the per-iteration output
}

// Final returns the result of the last level run.
func (r *Report) Final() optim.Result {
	if len(r.Levels) == 0 {
		return optim.Result{}
	}
	return r.Levels[len(r.Levels)-1].Result
}

// Run executes cfg. Cancelling ctx stops the current level between
// iterations; a snapshot of the progress is still written when configured.
func Run(ctx context.Context, cfg *config.Config) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Mode {
	case config.ModeFunction:
		return runFunction(ctx, cfg)
	case config.ModeSphere:
		return runSphere(ctx, cfg)
	}
	return runReconstruction(ctx, cfg)
}

func newOptimizer(c config.OptimizerCfg) optim.Optimizer {
	if c.Kind == config.OptimizerAdam {
		return optim.NewAdam(optim.AdamConfig{LR: c.LearningRate})
	}
	return optim.NewSGD(optim.SGDConfig{LR: c.LearningRate, Momentum: c.Momentum})
}

func driverConfig(c config.OptimizerCfg, opt optim.Optimizer) optim.Config {
	return optim.Config{
		LearningRate:    c.LearningRate,
		Momentum:        c.Momentum,
		GradTolerance:   c.GradTolerance,
		EnergyTolerance: c.EnergyTolerance,
		MaxIterations:   c.MaxIterations,
		Optimizer:       opt,
	}
}

func runFunction(ctx context.Context, cfg *config.Config) (*Report, error) {
	f := energy.Sphere
	if cfg.Function.Name == "matyas" {
		f = energy.Matyas
	}
	tape := autodiff.NewTape()
	fn := energy.NewAnalytic(tape, cfg.Function.Name, cfg.Function.Init, f)

	drv, err := optim.NewDriver(tape, fn, driverConfig(cfg.Optimizer, newOptimizer(cfg.Optimizer)))
	if err != nil {
		return nil, err
	}
	res, err := drv.Run(ctx)
	logging.Logger().Info("function minimised", "function", fn.String(), "state", res.State)
	return &Report{Levels: []Level{{Result: res}}, Evaluations: res.Iterations}, err
}

// setup is everything a reconstruction run shares across levels.
type setup struct {
	cfg     *config.Config
	tape    *autodiff.Tape
	cameras []camera.Camera
	lights  []*scene.DirectionalLight
	render  render.Renderer
	tm      *tonemap.ClampTonemapper
	report  *Report
}

func newSetup(cfg *config.Config) (*setup, error) {
	s := &setup{
		cfg:    cfg,
		tape:   autodiff.NewTape(),
		render: render.NewSimpleRenderer(render.DirectIntegrator{}, cfg.SamplesPerAxis),
		tm:     tonemap.NewClampTonemapper(cfg.SRGB),
		report: &Report{},
	}
	for _, c := range cfg.Cameras {
		s.cameras = append(s.cameras, camera.NewPinhole(config.Vec(c.Eye), config.Vec(c.At), config.Vec(c.Up),
			cfg.FovDeg, cfg.Width, cfg.Height))
	}
	for _, l := range cfg.Lights {
		rgb, err := config.ParseColor(l.Color)
		if err != nil {
			return nil, err
		}
		s.lights = append(s.lights, scene.NewDirectionalLight(config.Vec(l.Direction),
			rgb[0]*l.Intensity, rgb[1]*l.Intensity, rgb[2]*l.Intensity))
	}
	return s, nil
}

func (s *setup) newScene() *scene.Scene {
	sc := scene.New()
	for _, l := range s.lights {
		sc.AddLight(l)
	}
	return sc
}

// renderViews renders every camera inside a checkpoint and returns the raw
// buffers, writing each one to disk when prefix is non-empty.
func (s *setup) renderViews(sc *scene.Scene, prefix string) [][]float64 {
	s.tape.Push()
	defer s.tape.Pop()

	views := make([][]float64, len(s.cameras))
	for k, cam := range s.cameras {
		f := film.NewBoxFilm(s.cfg.Width, s.cfg.Height)
		s.render.RenderImage(f, sc, cam)
		views[k] = f.Raw()
		if prefix == "" || s.cfg.OutputDir == "" {
			continue
		}
		path := filepath.Join(s.cfg.OutputDir, fmt.Sprintf("%s_view_%d%s", prefix, k, s.cfg.Format))
		if err := s.tm.Process(path, f); err != nil {
			logging.Logger().Warn("write image", "path", path, "err", err)
			continue
		}
		s.report.Outputs = append(s.report.Outputs, path)
	}
	return views
}

// targets renders the ground-truth sphere. Its parameters are created inside
// the checkpoint, so nothing of the target scene stays on the tape.
func (s *setup) targets() ([][]float64, error) {
	amb, err := config.ParseColor(s.cfg.Target.Ambient)
	if err != nil {
		return nil, err
	}
	s.tape.Push()
	defer s.tape.Pop()

	sc := s.newScene()
	sc.AddShape(scene.NewSphere(s.tape, config.Vec(s.cfg.Target.Center), s.cfg.Target.Radius))
	sc.AddLight(scene.NewAmbientLight(s.tape, amb[0], amb[1], amb[2]))
	return s.renderViews(sc, "target"), nil
}

func runReconstruction(ctx context.Context, cfg *config.Config) (*Report, error) {
	log := logging.Logger()
	s, err := newSetup(cfg)
	if err != nil {
		return nil, err
	}
	targets, err := s.targets()
	if err != nil {
		return nil, err
	}

	var snap *snapshot.Snapshot
	if cfg.Resume != "" {
		if snap, err = snapshot.Read(cfg.Resume); err != nil {
			return nil, err
		}
	}
	startLevel := 0
	if snap != nil {
		startLevel = snap.Level
	}
	grid, err := s.initialGrid(startLevel, snap)
	if err != nil {
		return nil, err
	}

	amb, err := config.ParseColor(cfg.Ambient)
	if err != nil {
		return nil, err
	}
	light := scene.NewAmbientLight(s.tape, amb[0], amb[1], amb[2])
	sc := s.newScene()
	sc.AddShape(grid)
	sc.AddLight(light)

	e, err := energy.NewReconstructionEnergy(energy.ReconstructionConfig{
		Scene:      sc,
		Grid:       grid,
		Light:      light,
		Targets:    targets,
		Cameras:    s.cameras,
		Render:     s.render,
		Lambda:     cfg.Lambda,
		Width:      cfg.Width,
		Height:     cfg.Height,
		OutputDir:  cfg.OutputDir,
		Format:     cfg.Format,
		Tonemapper: s.tm,
	})
	if err != nil {
		return nil, err
	}

	opt := newOptimizer(cfg.Optimizer)
	if snap != nil {
		status, err := snap.Vector("status", e.InputDim())
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrResumeMismatch, err)
		}
		e.SetStatus(status)
		if err := opt.LoadStateDict(snap.OptimizerState()); err != nil {
			return nil, err
		}
		log.Info("resumed", "snapshot", cfg.Resume, "level", startLevel, "energy", snap.Energy)
	}

	for level := startLevel; level < len(cfg.Grid.Levels); level++ {
		n := cfg.Grid.Levels[level]
		if level > startLevel {
			fine, err := e.Grid().Resample(s.tape, n, n, n)
			if err != nil {
				return s.report, err
			}
			e.SetGrid(fine)
			opt = newOptimizer(cfg.Optimizer)
		}
		log.Info("level start", "level", level, "resolution", n, "params", e.InputDim())

		dcfg := driverConfig(cfg.Optimizer, opt)
		if cfg.OutputDir != "" {
			dcfg.OutputEvery = cfg.OutputEvery
		}
		drv, err := optim.NewDriver(s.tape, e, dcfg)
		if err != nil {
			return s.report, err
		}
		res, runErr := drv.Run(ctx)
		s.report.Levels = append(s.report.Levels, Level{Resolution: n, Result: res})

		if err := s.writeSnapshot(level, res, e, opt); err != nil {
			return s.report, err
		}
		if runErr != nil {
			s.fill(e, light)
			return s.report, runErr
		}
	}

	s.renderViews(sc, "final")
	s.fill(e, light)
	log.Info("reconstruction finished",
		"levels", len(s.report.Levels),
		"energy", s.report.Final().Energy,
		"image_term", s.report.ImageTerm,
		"normal_term", s.report.NormalTerm,
		"evaluations", s.report.Evaluations)
	return s.report, nil
}

// runSphere fits an analytic sphere and the ambient light to the targets.
func runSphere(ctx context.Context, cfg *config.Config) (*Report, error) {
	s, err := newSetup(cfg)
	if err != nil {
		return nil, err
	}
	targets, err := s.targets()
	if err != nil {
		return nil, err
	}
	amb, err := config.ParseColor(cfg.Ambient)
	if err != nil {
		return nil, err
	}
	sphere := scene.NewSphere(s.tape, config.Vec(cfg.Sphere.Center), cfg.Sphere.Radius)
	light := scene.NewAmbientLight(s.tape, amb[0], amb[1], amb[2])
	sc := s.newScene()
	sc.AddShape(sphere)
	sc.AddLight(light)

	fit, err := energy.NewShapeFit(energy.ShapeFitConfig{
		Scene:   sc,
		Objects: []scene.Differentiable{sphere, light},
		Targets: targets,
		Cameras: s.cameras,
		Render:  s.render,
		Width:   cfg.Width,
		Height:  cfg.Height,
	})
	if err != nil {
		return nil, err
	}
	drv, err := optim.NewDriver(s.tape, fit, driverConfig(cfg.Optimizer, newOptimizer(cfg.Optimizer)))
	if err != nil {
		return nil, err
	}
	res, runErr := drv.Run(ctx)
	s.report.Levels = append(s.report.Levels, Level{Result: res})
	s.report.ImageTerm = res.Energy
	s.report.Evaluations = res.Iterations
	s.report.Ambient = light.Color().Float()
	if runErr != nil {
		return s.report, runErr
	}

	s.renderViews(sc, "final")
	logging.Logger().Info("sphere fit finished", "sphere", sphere.String(), "state", res.State, "energy", res.Energy)
	return s.report, nil
}

func (s *setup) fill(e *energy.ReconstructionEnergy, light *scene.AmbientLight) {
	s.report.ImageTerm = e.ImageTerm()
	s.report.NormalTerm = e.NormalTerm()
	s.report.Evaluations = e.Evaluations()
	s.report.Ambient = light.Color().Float()
}

// initialGrid builds the grid for level. A resumed run gets a zero grid of
// the snapshot's resolution whose values are set from the snapshot later.
func (s *setup) initialGrid(level int, snap *snapshot.Snapshot) (*scene.SignedDistanceGrid, error) {
	g := s.cfg.Grid
	lo, hi := config.Vec(g.Min), config.Vec(g.Max)
	if snap == nil {
		n := g.Levels[level]
		return scene.NewSphereGrid(s.tape, n, lo, hi, geom.Vec3{}, g.InitRadius)
	}

	if level < 0 || level >= len(g.Levels) || snap.Grid == nil {
		return nil, fmt.Errorf("%w: level %d of %d", ErrResumeMismatch, level, len(g.Levels))
	}
	n := g.Levels[level]
	if snap.Grid.Resolution != [3]int{n, n, n} || snap.Grid.Min != g.Min || snap.Grid.Max != g.Max {
		return nil, fmt.Errorf("%w: grid %v over %v - %v, want %d³ over %v - %v",
			ErrResumeMismatch, snap.Grid.Resolution, snap.Grid.Min, snap.Grid.Max, n, g.Min, g.Max)
	}
	return scene.NewSignedDistanceGrid(s.tape, n, n, n, lo, hi, func(geom.Vec3) float64 { return 0 })
}

func (s *setup) writeSnapshot(level int, res optim.Result, e *energy.ReconstructionEnergy, opt optim.Optimizer) error {
	if s.cfg.Snapshot == "" {
		return nil
	}
	nx, ny, nz := e.Grid().Resolution()
	lo, hi := e.Grid().Bounds()
	snap := &snapshot.Snapshot{
		Header: snapshot.Header{
			Level:     level,
			Iteration: res.Iterations,
			Energy:    res.Energy,
			GradNorm:  res.GradNorm,
			Grid: &snapshot.GridMeta{
				Resolution: [3]int{nx, ny, nz},
				Min:        lo.Array(),
				Max:        hi.Array(),
			},
			Metadata: map[string]string{"state": res.State.String()},
		},
		Vectors: map[string][]float64{"status": e.Status()},
	}
	snap.SetOptimizerState(opt.StateDict())
	if err := snapshot.Write(s.cfg.Snapshot, snap); err != nil {
		return err
	}
	logging.Logger().Info("snapshot written", "path", s.cfg.Snapshot, "level", level)
	return nil
}
