package scene

import (
	"fmt"

	"github.com/born-ml/invrender/internal/autodiff"
	"github.com/born-ml/invrender/internal/film"
	"github.com/born-ml/invrender/internal/geom"
)

// AmbientLight scales the radiance of every shaded point by a colour. The
// colour channels are tape leaves so the optimiser can tune them.
type AmbientLight struct {
	color film.Spectrum
}

// NewAmbientLight creates an ambient light with tunable RGB channels
// registered on tape.
func NewAmbientLight(tape *autodiff.Tape, r, g, b float64) *AmbientLight {
	return &AmbientLight{color: film.Spectrum{tape.Var(r), tape.Var(g), tape.Var(b)}}
}

// Color returns the current colour.
func (l *AmbientLight) Color() film.Spectrum {
	return l.color
}

// DiffVariables returns the R, G and B leaves.
func (l *AmbientLight) DiffVariables() []*autodiff.Scalar {
	return []*autodiff.Scalar{&l.color[0], &l.color[1], &l.color[2]}
}

// UpdateDiffVariables implements Differentiable.
func (l *AmbientLight) UpdateDiffVariables(deltas []float64) {
	addDeltas(l.DiffVariables(), deltas)
}

func (l *AmbientLight) String() string {
	c := l.color.Float()
	return fmt.Sprintf("AmbientLight{color: (%g, %g, %g)}", c[0], c[1], c[2])
}

// DirectionalLight is a light at infinity shining along a fixed direction.
type DirectionalLight struct {
	dir       geom.Vec3 // direction the light travels
	intensity [3]float64
}

// NewDirectionalLight creates a light travelling along dir.
func NewDirectionalLight(dir geom.Vec3, r, g, b float64) *DirectionalLight {
	return &DirectionalLight{dir: dir.Normalize(), intensity: [3]float64{r, g, b}}
}

// Irradiance returns the light arriving at a surface with normal n, zero when
// the surface faces away.
func (l *DirectionalLight) Irradiance(n geom.DVec3) film.Spectrum {
	cos := autodiff.Max(n.DotConst(l.dir.Neg()), autodiff.Const(0))
	return film.Spectrum{
		autodiff.Scale(cos, l.intensity[0]),
		autodiff.Scale(cos, l.intensity[1]),
		autodiff.Scale(cos, l.intensity[2]),
	}
}

// DiffVariables implements Differentiable; directional lights are fixed.
func (l *DirectionalLight) DiffVariables() []*autodiff.Scalar { return nil }

// UpdateDiffVariables implements Differentiable.
func (l *DirectionalLight) UpdateDiffVariables(deltas []float64) {
	addDeltas(nil, deltas)
}

func (l *DirectionalLight) String() string {
	return fmt.Sprintf("DirectionalLight{dir: %v, intensity: %v}", l.dir, l.intensity)
}
