// Package camera generates primary rays for raster pixels.
package camera

import (
	"math"

	"github.com/born-ml/invrender/internal/geom"
)

// Camera maps a raster pixel and a sub-pixel offset to a ray.
// Implementations must be deterministic for fixed construction parameters.
type Camera interface {
	// GenerateRay returns the ray through pixel (i, j) at sub-pixel offset
	// (sx, sy) ∈ [0,1]². Pixel (0, 0) is the bottom-left corner.
	GenerateRay(i, j int, sx, sy float64) geom.Ray
	// Resolution returns the raster size the camera was built for.
	Resolution() (width, height int)
}

// Pinhole is a perspective camera with an infinitely small aperture.
type Pinhole struct {
	eye     geom.Vec3
	u, v, w geom.Vec3 // camera frame, w points backwards

	left, right, bottom, top float64
	width, height            int
}

// NewPinhole builds a camera at eye looking at at, with the given up vector,
// vertical field of view in degrees and raster size.
func NewPinhole(eye, at, up geom.Vec3, fovDeg float64, width, height int) *Pinhole {
	top := math.Tan(fovDeg * math.Pi / 360)
	right := float64(width) / float64(height) * top

	w := eye.Sub(at).Normalize()
	u := up.Cross(w).Normalize()
	v := w.Cross(u)

	return &Pinhole{
		eye:    eye,
		u:      u,
		v:      v,
		w:      w,
		left:   -right,
		right:  right,
		bottom: -top,
		top:    top,
		width:  width,
		height: height,
	}
}

// GenerateRay implements Camera.
func (c *Pinhole) GenerateRay(i, j int, sx, sy float64) geom.Ray {
	x := c.left + (c.right-c.left)*(float64(i)+sx)/float64(c.width)
	y := c.bottom + (c.top-c.bottom)*(float64(j)+sy)/float64(c.height)
	dir := c.u.Mul(x).Add(c.v.Mul(y)).Sub(c.w)
	return geom.Ray{Origin: c.eye, Dir: dir.Normalize()}
}

// Resolution implements Camera.
func (c *Pinhole) Resolution() (int, int) {
	return c.width, c.height
}

// Eye returns the camera position.
func (c *Pinhole) Eye() geom.Vec3 {
	return c.eye
}
