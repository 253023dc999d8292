// Package geom provides the small vector types shared by the renderer.
//
// Vec3 is plain float64 geometry (rays, camera frames, hit points). DVec3 is
// its differentiable counterpart, used wherever a quantity depends on scene
// parameters (shading normals, light colours).
package geom

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/born-ml/invrender/internal/autodiff"
)

// Vec3 is a 3-component float64 vector. Its arithmetic is gonum's r3.
type Vec3 r3.Vec

// V returns Vec3{x, y, z}.
func V(x, y, z float64) Vec3 { return Vec3{x, y, z} }

func (a Vec3) vec() r3.Vec { return r3.Vec(a) }

// Vector functions
func (a Vec3) Add(b Vec3) Vec3 { return Vec3(r3.Add(a.vec(), b.vec())) }
func (a Vec3) Sub(b Vec3) Vec3 { return Vec3(r3.Sub(a.vec(), b.vec())) }
func (a Vec3) Mul(s float64) Vec3 { return Vec3(r3.Scale(s, a.vec())) }
func (a Vec3) Neg() Vec3 { return a.Mul(-1) }
func (a Vec3) Dot(b Vec3) float64 { return r3.Dot(a.vec(), b.vec()) }
func (a Vec3) Cross(b Vec3) Vec3 { return Vec3(r3.Cross(a.vec(), b.vec())) }
func (a Vec3) Length() float64 { return r3.Norm(a.vec()) }
func (a Vec3) Array() [3]float64 { return [3]float64{a.X, a.Y, a.Z} }
func (a Vec3) String() string { return fmt.Sprintf("(%g, %g, %g)", a.X, a.Y, a.Z) }

// FromArray converts [x, y, z] to a Vec3.
func FromArray(a [3]float64) Vec3 { return Vec3{a[0], a[1], a[2]} }

// Normalize returns a unit vector. The zero vector is returned unchanged
// where r3.Unit would give NaNs.
func (a Vec3) Normalize() Vec3 {
	if a == (Vec3{}) {
		return a
	}
	return Vec3(r3.Unit(a.vec()))
}

// Ray is a half-line Origin + t·Dir, t ≥ 0.
type Ray struct {
	Origin Vec3
	Dir    Vec3
}

// At returns the point at parameter t.
func (r Ray) At(t float64) Vec3 {
	return r.Origin.Add(r.Dir.Mul(t))
}

// DVec3 is a differentiable 3-vector.
type DVec3 struct {
	X, Y, Z autodiff.Scalar
}

// ConstVec lifts a Vec3 into a DVec3 of constants.
func ConstVec(v Vec3) DVec3 {
	return DVec3{autodiff.Const(v.X), autodiff.Const(v.Y), autodiff.Const(v.Z)}
}

// Float drops the graph and returns the numeric vector.
func (a DVec3) Float() Vec3 {
	return Vec3{a.X.Float(), a.Y.Float(), a.Z.Float()}
}

func (a DVec3) Add(b DVec3) DVec3 {
	return DVec3{autodiff.Add(a.X, b.X), autodiff.Add(a.Y, b.Y), autodiff.Add(a.Z, b.Z)}
}

func (a DVec3) Sub(b DVec3) DVec3 {
	return DVec3{autodiff.Sub(a.X, b.X), autodiff.Sub(a.Y, b.Y), autodiff.Sub(a.Z, b.Z)}
}

// Scale multiplies every component by s.
func (a DVec3) Scale(s autodiff.Scalar) DVec3 {
	return DVec3{autodiff.Mul(a.X, s), autodiff.Mul(a.Y, s), autodiff.Mul(a.Z, s)}
}

// DotConst returns a·b for a constant b as one node.
func (a DVec3) DotConst(b Vec3) autodiff.Scalar {
	return autodiff.Dot([]float64{b.X, b.Y, b.Z}, []autodiff.Scalar{a.X, a.Y, a.Z})
}

// SquaredLength returns a·a.
func (a DVec3) SquaredLength() autodiff.Scalar {
	return autodiff.Sum(autodiff.Square(a.X), autodiff.Square(a.Y), autodiff.Square(a.Z))
}

// Normalize returns a / |a|. The zero vector is returned unchanged.
func (a DVec3) Normalize() DVec3 {
	l := autodiff.Sqrt(a.SquaredLength())
	if l.Float() == 0 {
		return a
	}
	inv := autodiff.Div(autodiff.Const(1), l)
	return a.Scale(inv)
}
