// Package tonemap writes rendered images to disk for inspection. It sits
// outside the optimisation data path: nothing it does feeds back into an
// energy.
package tonemap

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/bmp"

	"github.com/born-ml/invrender/internal/parallel"
)

// ErrUnsupportedFormat is returned for output paths with an unknown extension.
var ErrUnsupportedFormat = errors.New("tonemap: unsupported image format")

// Image is a linear RGB raster laid out row-major, bottom row first, three
// floats per pixel.
type Image interface {
	Width() int
	Height() int
	Raw() []float64
}

// RawImage adapts a plain buffer to Image.
type RawImage struct {
	W, H int
	Data []float64
}

func (r RawImage) Width() int     { return r.W }
func (r RawImage) Height() int    { return r.H }
func (r RawImage) Raw() []float64 { return r.Data }

// ClampTonemapper clamps radiance to [0, 1] and quantises it to 8 bits.
type ClampTonemapper struct {
	// SRGB applies the sRGB transfer curve before quantising.
	SRGB     bool
	Parallel parallel.Config
}

// NewClampTonemapper returns a tonemapper using the default parallel config.
func NewClampTonemapper(srgb bool) *ClampTonemapper {
	return &ClampTonemapper{SRGB: srgb, Parallel: parallel.DefaultConfig()}
}

// Convert maps img to an 8-bit image with the top row first.
func (t *ClampTonemapper) Convert(img Image) (*image.RGBA, error) {
	w, h := img.Width(), img.Height()
	raw := img.Raw()
	if len(raw) != 3*w*h {
		return nil, fmt.Errorf("tonemap: %d values for a %dx%d image", len(raw), w, h)
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	parallel.ForPixels(w, h, func(i, j int) {
		k := 3 * (j*w + i)
		c := colorful.Color{R: raw[k], G: raw[k+1], B: raw[k+2]}
		if t.SRGB {
			c = colorful.LinearRgb(c.R, c.G, c.B)
		}
		r, g, b := c.Clamped().RGB255()
		out.SetRGBA(i, h-1-j, color.RGBA{R: r, G: g, B: b, A: 255})
	}, t.Parallel)
	return out, nil
}

// Process writes img to path. The format follows the extension: .ppm, .png
// or .bmp. Missing parent directories are created.
func (t *ClampTonemapper) Process(path string, img Image) error {
	ext := strings.ToLower(filepath.Ext(path))
	var encode func(io.Writer, *image.RGBA) error
	switch ext {
	case ".ppm":
		encode = encodePPM
	case ".png":
		encode = func(w io.Writer, m *image.RGBA) error { return png.Encode(w, m) }
	case ".bmp":
		encode = func(w io.Writer, m *image.RGBA) error { return bmp.Encode(w, m) }
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	rgba, err := t.Convert(img)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("tonemap: create output dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("tonemap: %w", err)
	}
	bw := bufio.NewWriter(f)
	if err := encode(bw, rgba); err != nil {
		_ = f.Close()
		return fmt.Errorf("tonemap: encode %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("tonemap: write %s: %w", path, err)
	}
	return f.Close()
}

// encodePPM writes a binary (P6) portable pixmap.
func encodePPM(w io.Writer, m *image.RGBA) error {
	b := m.Bounds()
	if _, err := fmt.Fprintf(w, "P6\n%d %d\n255\n", b.Dx(), b.Dy()); err != nil {
		return err
	}
	row := make([]byte, 3*b.Dx())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := m.RGBAAt(x, y)
			k := 3 * (x - b.Min.X)
			row[k], row[k+1], row[k+2] = c.R, c.G, c.B
		}
		if _, err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}
