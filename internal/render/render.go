// Package render turns a scene seen through a camera into a film of
// differentiable pixel values.
//
// Rendering records every pixel value on the tape owned by the scene
// parameters, in strict creation order, so the renderer must not be run
// concurrently with itself or with anything else writing to that tape.
package render

import (
	"github.com/born-ml/invrender/internal/camera"
	"github.com/born-ml/invrender/internal/film"
	"github.com/born-ml/invrender/internal/geom"
	"github.com/born-ml/invrender/internal/scene"
)

// Renderer fills a film with an image of a scene.
type Renderer interface {
	RenderImage(f film.Film, sc *scene.Scene, cam camera.Camera)
}

// Integrator computes the radiance arriving along a camera ray.
type Integrator interface {
	Li(r geom.Ray, sc *scene.Scene) film.Spectrum
}

// SimpleRenderer shoots SamplesPerAxis² stratified rays through every pixel.
type SimpleRenderer struct {
	Integrator     Integrator
	SamplesPerAxis int // default: 1 (pixel centre)
}

// NewSimpleRenderer creates a renderer using integrator with n×n samples per pixel.
func NewSimpleRenderer(integrator Integrator, n int) *SimpleRenderer {
	if n <= 0 {
		n = 1
	}
	return &SimpleRenderer{Integrator: integrator, SamplesPerAxis: n}
}

// RenderImage implements Renderer. Pixels are visited row by row and
// sub-samples in a fixed order, which keeps renders reproducible.
func (r *SimpleRenderer) RenderImage(f film.Film, sc *scene.Scene, cam camera.Camera) {
	n := max(r.SamplesPerAxis, 1)
	step := 1 / float64(n)
	for j := 0; j < f.Height(); j++ {
		for i := 0; i < f.Width(); i++ {
			for a := range n {
				for b := range n {
					sx := (float64(a) + 0.5) * step
					sy := (float64(b) + 0.5) * step
					ray := cam.GenerateRay(i, j, sx, sy)
					f.AddSample(r.Integrator.Li(ray, sc), i, j, sx, sy)
				}
			}
		}
	}
}

// DirectIntegrator shades the first hit with direct illumination from the
// scene's directional lights, tinted by the ambient light colour when the
// scene has one. Rays that miss return black.
type DirectIntegrator struct{}

// Li implements Integrator.
func (DirectIntegrator) Li(r geom.Ray, sc *scene.Scene) film.Spectrum {
	hit, ok := sc.Intersect(r)
	if !ok {
		return film.Gray(0)
	}
	l := film.Gray(0)
	for _, light := range sc.Lights() {
		if dl, ok := light.(*scene.DirectionalLight); ok {
			l = l.Add(dl.Irradiance(hit.Normal))
		}
	}
	if amb := sc.Ambient(); amb != nil {
		l = l.Mul(amb.Color())
	}
	return l
}
