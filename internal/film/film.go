// Package film accumulates differentiable radiance samples into an image.
package film

import (
	"fmt"

	"github.com/born-ml/invrender/internal/autodiff"
)

// Film is the image sink a renderer writes into.
type Film interface {
	// AddSample records s for pixel (i, j) at sub-pixel offset (sx, sy).
	// It returns false when the offset lies outside [0,1]².
	AddSample(s Spectrum, i, j int, sx, sy float64) bool
	// At returns the reconstructed value of pixel (i, j).
	At(i, j int) Spectrum
	Width() int
	Height() int
}

// BoxFilm reconstructs each pixel as the mean of the samples that landed in
// it. Samples are summed as they arrive and averaged by At, so each pixel
// contributes one division node regardless of sample count.
type BoxFilm struct {
	width, height int
	raster        []Spectrum
	samples       []int
}

// NewBoxFilm creates a black film of width × height pixels.
func NewBoxFilm(width, height int) *BoxFilm {
	raster := make([]Spectrum, width*height)
	for i := range raster {
		raster[i] = Gray(0)
	}
	return &BoxFilm{
		width:   width,
		height:  height,
		raster:  raster,
		samples: make([]int, width*height),
	}
}

// AddSample implements Film.
func (f *BoxFilm) AddSample(s Spectrum, i, j int, sx, sy float64) bool {
	if sx < 0 || sx > 1 || sy < 0 || sy > 1 {
		return false
	}
	k := f.index(i, j)
	if f.samples[k] == 0 {
		f.raster[k] = s
	} else {
		f.raster[k] = f.raster[k].Add(s)
	}
	f.samples[k]++
	return true
}

// At implements Film. Pixels without samples are black.
func (f *BoxFilm) At(i, j int) Spectrum {
	k := f.index(i, j)
	n := f.samples[k]
	if n <= 1 {
		return f.raster[k]
	}
	return f.raster[k].Scale(autodiff.Const(1 / float64(n)))
}

// Width implements Film.
func (f *BoxFilm) Width() int { return f.width }

// Height implements Film.
func (f *BoxFilm) Height() int { return f.height }

func (f *BoxFilm) index(i, j int) int {
	if i < 0 || i >= f.width || j < 0 || j >= f.height {
		panic(fmt.Sprintf("film: pixel (%d, %d) outside %dx%d", i, j, f.width, f.height))
	}
	return j*f.width + i
}

// Pixels returns every reconstructed pixel in row-major order.
func (f *BoxFilm) Pixels() []Spectrum {
	out := make([]Spectrum, 0, len(f.raster))
	for j := 0; j < f.height; j++ {
		for i := 0; i < f.width; i++ {
			out = append(out, f.At(i, j))
		}
	}
	return out
}

// Raw exports the reconstructed image as row-major RGB floats,
// len = width·height·3.
func (f *BoxFilm) Raw() []float64 {
	out := make([]float64, 0, 3*len(f.raster))
	for _, px := range f.Pixels() {
		c := px.Float()
		out = append(out, c[0], c[1], c[2])
	}
	return out
}

// SquaredNorm returns Σ pixel² over every channel as one differentiable scalar.
func (f *BoxFilm) SquaredNorm() autodiff.Scalar {
	return f.SquaredDistance(nil)
}

// SquaredDistance returns Σ (pixel - target)² over every channel. target is
// laid out like Raw; nil compares against black.
func (f *BoxFilm) SquaredDistance(target []float64) autodiff.Scalar {
	if target != nil && len(target) != 3*len(f.raster) {
		panic(fmt.Sprintf("film: target has %d values, want %d", len(target), 3*len(f.raster)))
	}
	terms := make([]autodiff.Scalar, 0, 3*len(f.raster))
	for k, px := range f.Pixels() {
		for c := range 3 {
			d := px[c]
			if target != nil {
				d = autodiff.AddConst(d, -target[3*k+c])
			}
			terms = append(terms, autodiff.Square(d))
		}
	}
	return autodiff.Sum(terms...)
}

// Difference returns |pixel - target| per channel, laid out like Raw. It is
// a diagnostics helper and records nothing.
func (f *BoxFilm) Difference(target []float64) []float64 {
	raw := f.Raw()
	for k := range raw {
		d := raw[k] - target[k]
		if d < 0 {
			d = -d
		}
		raw[k] = d
	}
	return raw
}
