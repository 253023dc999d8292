package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/born-ml/invrender/internal/autodiff"
)

func TestVec3(t *testing.T) {
	a, b := V(1, 0, 0), V(0, 1, 0)
	assert.Equal(t, V(0, 0, 1), a.Cross(b))
	assert.Equal(t, 0.0, a.Dot(b))
	assert.Equal(t, 5.0, V(3, 4, 0).Length())
	assert.Equal(t, V(-1, 2, -3), V(1, -2, 3).Neg())
	assert.Equal(t, V(0.5, 1, 1.5), V(1, 2, 3).Sub(V(0.5, 1, 1.5)))
	n := V(3, 4, 0).Normalize()
	assert.InDelta(t, 0.6, n.X, 1e-15)
	assert.InDelta(t, 0.8, n.Y, 1e-15)
	assert.Equal(t, Vec3{}, Vec3{}.Normalize())
	assert.Equal(t, V(1, 2, 3), FromArray(V(1, 2, 3).Array()))
	assert.Equal(t, "(1, -2, 0.5)", V(1, -2, 0.5).String())
}

func TestRay_At(t *testing.T) {
	r := Ray{Origin: V(1, 1, 1), Dir: V(0, 0, -1)}
	assert.Equal(t, V(1, 1, -1), r.At(2))
}

func TestDVec3_NormalizeGradient(t *testing.T) {
	tape := autodiff.NewTape()
	v := DVec3{tape.Var(3), tape.Var(4), tape.Var(0)}

	n := v.Normalize()
	assert.InDelta(t, 0.6, n.X.Float(), 1e-15)
	assert.InDelta(t, 0.8, n.Y.Float(), 1e-15)

	// ∂(x/|v|)/∂x = (y² + z²)/|v|³ and ∂(x/|v|)/∂y = -xy/|v|³.
	var d autodiff.Derivatives
	assert.InDelta(t, 16.0/125, d.Dwrt(n.X, v.X), 1e-12)
	assert.InDelta(t, -12.0/125, d.Dwrt(n.X, v.Y), 1e-12)
}

func TestDVec3_DotConst(t *testing.T) {
	tape := autodiff.NewTape()
	v := DVec3{tape.Var(1), tape.Var(2), tape.Var(3)}
	size := tape.Size()

	dot := v.DotConst(V(2, 0, -1))
	assert.Equal(t, -1.0, dot.Float())
	assert.Equal(t, size+1, tape.Size())

	var d autodiff.Derivatives
	assert.Equal(t, 2.0, d.Dwrt(dot, v.X))
	assert.Equal(t, -1.0, d.Dwrt(dot, v.Z))

	c := ConstVec(V(1, 1, 1))
	assert.True(t, c.SquaredLength().IsConst())
	assert.Equal(t, V(1, 2, 3), v.Float())
}
