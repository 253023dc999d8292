// Package autodiff implements scalar reverse-mode automatic differentiation.
//
// Architecture:
//   - Tape: append-only record of operations with a checkpoint stack
//   - Scalar: value type pairing a float64 with the tape node that produced it
//   - Free functions (Add, Mul, Sqrt, ...): compute the value and record the
//     local partial derivatives in one step
//   - Derivatives: one cached reverse pass answers every Dwrt query for an output
//
// Usage:
//
//	tape := autodiff.NewTape()
//	a, b := tape.Var(2), tape.Var(3)
//	f := autodiff.Add(autodiff.Mul(a, a), autodiff.Mul(a, b)) // a² + ab
//
//	var d autodiff.Derivatives
//	d.Dwrt(f, a) // 2a + b = 7
//	d.Dwrt(f, b) // a = 2
package autodiff

import (
	"fmt"
	"math"
)

const noNode = -1

// Scalar is a differentiable float64.
//
// Scalars are immutable values: every operation yields a new Scalar backed by
// a new tape node. Constants carry no node and no tape. Copying a Scalar is
// cheap and never copies graph state.
type Scalar struct {
	v    float64
	idx  int32
	tape *Tape
}

// Const returns a constant that does not participate in differentiation.
func Const(v float64) Scalar {
	return Scalar{v: v, idx: noNode}
}

// Float returns the numeric value.
func (s Scalar) Float() float64 {
	return s.v
}

// Index returns the tape node index, or -1 for constants.
func (s Scalar) Index() int {
	return int(s.idx)
}

// IsConst reports whether s has no tape node.
func (s Scalar) IsConst() bool {
	return s.idx == noNode
}

// Tape returns the tape s was recorded on, nil for constants.
func (s Scalar) Tape() *Tape {
	return s.tape
}

// SetFloat overwrites the value without touching the graph. It is meant for
// seeding and updating leaf parameters between iterations.
func (s *Scalar) SetFloat(v float64) {
	s.v = v
}

// String formats the value.
func (s Scalar) String() string {
	return fmt.Sprintf("%g", s.v)
}

// common returns the tape shared by a and b.
func common(a, b Scalar) *Tape {
	switch {
	case a.tape == nil:
		return b.tape
	case b.tape == nil || a.tape == b.tape:
		return a.tape
	}
	panic(ErrTapeMismatch)
}

func unary(kind OpKind, a Scalar, v, da float64) Scalar {
	if a.tape == nil {
		return Const(v)
	}
	return Scalar{v: v, idx: a.tape.record1(kind, a.idx, da), tape: a.tape}
}

func binary(kind OpKind, a, b Scalar, v, da, db float64) Scalar {
	t := common(a, b)
	switch {
	case t == nil:
		return Const(v)
	case a.tape == nil:
		return Scalar{v: v, idx: t.record1(kind, b.idx, db), tape: t}
	case b.tape == nil:
		return Scalar{v: v, idx: t.record1(kind, a.idx, da), tape: t}
	}
	return Scalar{v: v, idx: t.record2(kind, a.idx, da, b.idx, db), tape: t}
}

// Add returns a + b.
func Add(a, b Scalar) Scalar {
	return binary(OpAdd, a, b, a.v+b.v, 1, 1)
}

// Sub returns a - b.
func Sub(a, b Scalar) Scalar {
	return binary(OpSub, a, b, a.v-b.v, 1, -1)
}

// Mul returns a * b.
func Mul(a, b Scalar) Scalar {
	return binary(OpMul, a, b, a.v*b.v, b.v, a.v)
}

// Div returns a / b.
func Div(a, b Scalar) Scalar {
	return binary(OpDiv, a, b, a.v/b.v, 1/b.v, -a.v/(b.v*b.v))
}

// Neg returns -a.
func Neg(a Scalar) Scalar {
	return unary(OpNeg, a, -a.v, -1)
}

// AddConst returns a + c.
func AddConst(a Scalar, c float64) Scalar {
	return unary(OpAdd, a, a.v+c, 1)
}

// Scale returns c * a.
func Scale(a Scalar, c float64) Scalar {
	return unary(OpScale, a, c*a.v, c)
}

// Square returns a².
func Square(a Scalar) Scalar {
	return unary(OpMul, a, a.v*a.v, 2*a.v)
}

// Sqrt returns √a. The partial at 0 is taken as 0 so that a zero-length
// vector does not poison the reverse pass with infinities.
func Sqrt(a Scalar) Scalar {
	v := math.Sqrt(a.v)
	d := 0.0
	if v > 0 {
		d = 0.5 / v
	}
	return unary(OpSqrt, a, v, d)
}

// Exp returns eᵃ.
func Exp(a Scalar) Scalar {
	v := math.Exp(a.v)
	return unary(OpExp, a, v, v)
}

// Log returns ln a.
func Log(a Scalar) Scalar {
	return unary(OpLog, a, math.Log(a.v), 1/a.v)
}

// Abs returns |a|, with subgradient 0 at 0.
func Abs(a Scalar) Scalar {
	d := 0.0
	switch {
	case a.v > 0:
		d = 1
	case a.v < 0:
		d = -1
	}
	return unary(OpAbs, a, math.Abs(a.v), d)
}

// Pow returns aᵖ for a constant exponent p.
func Pow(a Scalar, p float64) Scalar {
	return unary(OpPow, a, math.Pow(a.v, p), p*math.Pow(a.v, p-1))
}

// Min returns the smaller of a and b; the gradient flows to the selected one.
func Min(a, b Scalar) Scalar {
	if a.v <= b.v {
		return binary(OpMin, a, b, a.v, 1, 0)
	}
	return binary(OpMin, a, b, b.v, 0, 1)
}

// Max returns the larger of a and b; the gradient flows to the selected one.
func Max(a, b Scalar) Scalar {
	if a.v >= b.v {
		return binary(OpMax, a, b, a.v, 1, 0)
	}
	return binary(OpMax, a, b, b.v, 0, 1)
}

// Clamp limits a to [lo, hi]. Outside the interval the result is constant.
func Clamp(a Scalar, lo, hi float64) Scalar {
	switch {
	case a.v < lo:
		return unary(OpClamp, a, lo, 0)
	case a.v > hi:
		return unary(OpClamp, a, hi, 0)
	}
	return unary(OpClamp, a, a.v, 1)
}

// Sum returns the sum of xs as a single node.
func Sum(xs ...Scalar) Scalar {
	return Dot(nil, xs)
}

// Dot returns Σ w[i]·xs[i] as a single node. A nil w means all weights are 1.
func Dot(w []float64, xs []Scalar) Scalar {
	if w != nil && len(w) != len(xs) {
		panic(fmt.Errorf("%w: %d weights, %d values", ErrPartialsMismatch, len(w), len(xs)))
	}
	var (
		t    *Tape
		v    float64
		ops  []int
		part []float64
	)
	kind := OpSum
	if w != nil {
		kind = OpDot
	}
	for i, x := range xs {
		wi := 1.0
		if w != nil {
			wi = w[i]
		}
		v += wi * x.v
		if x.tape == nil {
			continue
		}
		if t == nil {
			t = x.tape
			ops = make([]int, 0, len(xs)-i)
			part = make([]float64, 0, len(xs)-i)
		} else if t != x.tape {
			panic(ErrTapeMismatch)
		}
		ops = append(ops, int(x.idx))
		part = append(part, wi)
	}
	if t == nil {
		return Const(v)
	}
	return Scalar{v: v, idx: int32(t.Record(kind, ops, part)), tape: t}
}
