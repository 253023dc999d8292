// Package config loads the JSON description of a reconstruction run.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/born-ml/invrender/internal/geom"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Run modes.
const (
	ModeReconstruction = "reconstruction"
	ModeFunction       = "function"
	ModeSphere         = "sphere"
)

// Optimizer kinds.
const (
	OptimizerSGD  = "sgd"
	OptimizerAdam = "adam"
)

// Config describes one run.
type Config struct {
	Mode string `json:"mode,omitempty"`

	Width          int          `json:"width"`
	Height         int          `json:"height"`
	SamplesPerAxis int          `json:"samplesPerAxis,omitempty"`
	FovDeg         float64      `json:"fovDeg,omitempty"`
	Cameras        []CameraCfg  `json:"cameras"`
	Lights         []LightCfg   `json:"lights"`
	Target         TargetCfg    `json:"target"`
	Grid           GridCfg      `json:"grid"`
	Ambient        string       `json:"ambient"` // initial guess, hex colour
	Lambda         float64      `json:"lambda"`
	Optimizer      OptimizerCfg `json:"optimizer"`
	Function       FunctionCfg  `json:"function,omitempty"`
	Sphere         SphereCfg    `json:"sphere,omitempty"`

	OutputDir   string `json:"outputDir,omitempty"`
	Format      string `json:"format,omitempty"` // ".ppm", ".png" or ".bmp"
	SRGB        bool   `json:"srgb,omitempty"`
	OutputEvery int    `json:"outputEvery,omitempty"`
	Snapshot    string `json:"snapshot,omitempty"` // written after every level
	Resume      string `json:"resume,omitempty"`   // snapshot to start from
}

// CameraCfg places a pinhole camera.
type CameraCfg struct {
	Eye [3]float64 `json:"eye"`
	At  [3]float64 `json:"at"`
	Up  [3]float64 `json:"up"`
}

// LightCfg is a directional light. Direction is the way the light travels.
type LightCfg struct {
	Direction [3]float64 `json:"direction"`
	Color     string     `json:"color"`
	Intensity float64    `json:"intensity"`
}

// TargetCfg is the ground-truth scene the target views are rendered from.
type TargetCfg struct {
	Center  [3]float64 `json:"center"`
	Radius  float64    `json:"radius"`
	Ambient string     `json:"ambient"`
}

// GridCfg describes the reconstructed SDF grid. Levels lists the vertex
// resolution per axis for each coarse-to-fine stage.
type GridCfg struct {
	Levels     []int      `json:"levels"`
	Min        [3]float64 `json:"min"`
	Max        [3]float64 `json:"max"`
	InitRadius float64    `json:"initRadius"`
}

// OptimizerCfg selects and tunes the optimiser. MaxIterations applies per level.
type OptimizerCfg struct {
	Kind            string  `json:"kind"`
	LearningRate    float64 `json:"learningRate"`
	Momentum        float64 `json:"momentum,omitempty"`
	GradTolerance   float64 `json:"gradTolerance"`
	EnergyTolerance float64 `json:"energyTolerance"`
	MaxIterations   int     `json:"maxIterations"`
}

// FunctionCfg selects an analytic test function for ModeFunction.
type FunctionCfg struct {
	Name string    `json:"name"`
	Init []float64 `json:"init"`
}

// SphereCfg is the initial guess for ModeSphere, which fits an analytic
// sphere and the ambient light instead of an SDF grid.
type SphereCfg struct {
	Center [3]float64 `json:"center"`
	Radius float64    `json:"radius"`
}

// Default returns a small two-view reconstruction of a unit sphere.
func Default() *Config {
	return &Config{
		Mode:           ModeReconstruction,
		Width:          64,
		Height:         64,
		SamplesPerAxis: 1,
		FovDeg:         45,
		Cameras: []CameraCfg{
			{Eye: [3]float64{0, 0, 5}, Up: [3]float64{0, 1, 0}},
			{Eye: [3]float64{5, 0, 0}, Up: [3]float64{0, 1, 0}},
		},
		Lights: []LightCfg{
			{Direction: [3]float64{-0.3, -0.5, -1}, Color: "#ffffff", Intensity: 1},
			{Direction: [3]float64{-1, -0.2, 0.3}, Color: "#ffffff", Intensity: 0.6},
		},
		Target: TargetCfg{Radius: 1, Ambient: "#e6b380"},
		Grid: GridCfg{
			Levels:     []int{8},
			Min:        [3]float64{-1.5, -1.5, -1.5},
			Max:        [3]float64{1.5, 1.5, 1.5},
			InitRadius: 0.7,
		},
		Ambient: "#bbbbbb",
		Lambda:  0.1,
		Optimizer: OptimizerCfg{
			Kind:            OptimizerSGD,
			LearningRate:    1e-3,
			GradTolerance:   1e-3,
			EnergyTolerance: 1e-2,
			MaxIterations:   400,
		},
		Function:  FunctionCfg{Name: "sphere", Init: []float64{6, 6, 6}},
		Sphere:    SphereCfg{Center: [3]float64{0.3, -0.2, 0}, Radius: 0.7},
		OutputDir: "out",
		Format:    ".ppm",
	}
}

// Load reads a JSON config from path. Fields the file omits keep their
// Default values; unknown fields are rejected.
func Load(path string) (*Config, error) {
	//nolint:gosec // G304: config path comes from the command line
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if !slices.Contains([]string{ModeReconstruction, ModeFunction, ModeSphere}, c.Mode) {
		return invalid("mode %q", c.Mode)
	}
	if err := c.Optimizer.validate(); err != nil {
		return err
	}
	if c.Mode == ModeFunction {
		return c.Function.validate()
	}

	if c.Width <= 0 || c.Height <= 0 {
		return invalid("resolution %dx%d", c.Width, c.Height)
	}
	if c.SamplesPerAxis < 0 || c.OutputEvery < 0 {
		return invalid("negative samplesPerAxis or outputEvery")
	}
	if c.FovDeg <= 0 || c.FovDeg >= 180 {
		return invalid("fovDeg %g outside (0, 180)", c.FovDeg)
	}
	if len(c.Cameras) == 0 {
		return invalid("no cameras")
	}
	for i, cam := range c.Cameras {
		if cam.Eye == cam.At {
			return invalid("camera %d: eye equals at", i)
		}
		view := geom.FromArray(cam.Eye).Sub(geom.FromArray(cam.At))
		if geom.FromArray(cam.Up).Cross(view).Length() == 0 {
			return invalid("camera %d: up vector zero or parallel to the view direction", i)
		}
	}
	if len(c.Lights) == 0 {
		return invalid("no lights")
	}
	for i, l := range c.Lights {
		if geom.FromArray(l.Direction).Length() == 0 {
			return invalid("light %d: zero direction", i)
		}
		if _, err := ParseColor(l.Color); err != nil {
			return invalid("light %d: %v", i, err)
		}
		if l.Intensity < 0 {
			return invalid("light %d: negative intensity", i)
		}
	}
	if c.Target.Radius <= 0 {
		return invalid("target radius %g", c.Target.Radius)
	}
	if _, err := ParseColor(c.Target.Ambient); err != nil {
		return invalid("target ambient: %v", err)
	}
	if _, err := ParseColor(c.Ambient); err != nil {
		return invalid("ambient: %v", err)
	}
	if c.Mode == ModeSphere {
		if c.Sphere.Radius <= 0 {
			return invalid("sphere radius %g", c.Sphere.Radius)
		}
	} else if err := c.Grid.validate(); err != nil {
		return err
	}
	if c.Lambda < 0 {
		return invalid("lambda %g", c.Lambda)
	}
	if !slices.Contains([]string{".ppm", ".png", ".bmp"}, c.Format) {
		return invalid("format %q", c.Format)
	}
	return nil
}

func (g GridCfg) validate() error {
	if len(g.Levels) == 0 {
		return invalid("grid: no levels")
	}
	for _, n := range g.Levels {
		if n < 2 {
			return invalid("grid: level resolution %d below 2", n)
		}
	}
	for a := range 3 {
		if g.Min[a] >= g.Max[a] {
			return invalid("grid: empty bounds on axis %d", a)
		}
	}
	if g.InitRadius <= 0 {
		return invalid("grid: initRadius %g", g.InitRadius)
	}
	return nil
}

func (o OptimizerCfg) validate() error {
	switch {
	case o.Kind != OptimizerSGD && o.Kind != OptimizerAdam:
		return invalid("optimizer kind %q", o.Kind)
	case o.LearningRate <= 0:
		return invalid("learning rate %g", o.LearningRate)
	case o.Momentum < 0 || o.Momentum >= 1:
		return invalid("momentum %g outside [0, 1)", o.Momentum)
	case o.GradTolerance < 0 || o.EnergyTolerance < 0:
		return invalid("negative tolerance")
	case o.MaxIterations <= 0:
		return invalid("maxIterations %d", o.MaxIterations)
	}
	return nil
}

func (f FunctionCfg) validate() error {
	switch f.Name {
	case "sphere":
		if len(f.Init) == 0 {
			return invalid("function: empty init")
		}
	case "matyas":
		if len(f.Init) != 2 {
			return invalid("function: matyas takes 2 parameters, got %d", len(f.Init))
		}
	default:
		return invalid("function %q", f.Name)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...)
}

// ParseColor parses a "#rrggbb" colour into linear RGB.
func ParseColor(hex string) ([3]float64, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return [3]float64{}, err
	}
	r, g, b := c.LinearRgb()
	return [3]float64{r, g, b}, nil
}

// Vec converts a JSON triple to a vector.
func Vec(a [3]float64) geom.Vec3 {
	return geom.FromArray(a)
}
