// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides scalar reverse-mode automatic differentiation.
//
// Every operation on a Scalar appends a node to its Tape. Push and Pop
// bracket temporary work so the tape can be reused across iterations.
//
// Example:
//
//	tape := autodiff.NewTape()
//	x := tape.Var(3)
//	y := tape.Var(-1)
//
//	tape.Push()
//	f := autodiff.Add(autodiff.Mul(x, x), autodiff.Mul(x, y)) // x² + xy
//	var d autodiff.Derivatives
//	dx := d.Dwrt(f, x) // 2x + y = 5
//	dy := d.Dwrt(f, y) // x = 3
//	tape.Pop()
package autodiff

import (
	"github.com/born-ml/invrender/internal/autodiff"
)

// Tape records operations in creation order.
type Tape = autodiff.Tape

// Scalar is a value that may be a node on a tape.
type Scalar = autodiff.Scalar

// Derivatives computes and caches adjoints for one output at a time.
type Derivatives = autodiff.Derivatives

// OpKind identifies the operation that produced a node.
type OpKind = autodiff.OpKind

// Node is a recorded operation.
type Node = autodiff.Node

// Errors raised by the tape.
var (
	ErrEmptyCheckpointStack = autodiff.ErrEmptyCheckpointStack
	ErrIndexOutOfRange      = autodiff.ErrIndexOutOfRange
	ErrOperandOrder         = autodiff.ErrOperandOrder
	ErrPartialsMismatch     = autodiff.ErrPartialsMismatch
	ErrTapeMismatch         = autodiff.ErrTapeMismatch
	ErrTruncateRange        = autodiff.ErrTruncateRange
	ErrLeafInRange          = autodiff.ErrLeafInRange
)

// NewTape creates an empty tape.
func NewTape() *Tape {
	return autodiff.NewTape()
}

// Const returns a constant that records nothing.
func Const(v float64) Scalar {
	return autodiff.Const(v)
}

// Arithmetic

// Add returns a + b.
func Add(a, b Scalar) Scalar { return autodiff.Add(a, b) }

// Sub returns a - b.
func Sub(a, b Scalar) Scalar { return autodiff.Sub(a, b) }

// Mul returns a * b.
func Mul(a, b Scalar) Scalar { return autodiff.Mul(a, b) }

// Div returns a / b.
func Div(a, b Scalar) Scalar { return autodiff.Div(a, b) }

// Neg returns -a.
func Neg(a Scalar) Scalar { return autodiff.Neg(a) }

// AddConst returns a + c.
func AddConst(a Scalar, c float64) Scalar { return autodiff.AddConst(a, c) }

// Scale returns c * a.
func Scale(a Scalar, c float64) Scalar { return autodiff.Scale(a, c) }

// Square returns a².
func Square(a Scalar) Scalar { return autodiff.Square(a) }

// Elementary functions

// Sqrt returns √a.
func Sqrt(a Scalar) Scalar { return autodiff.Sqrt(a) }

// Exp returns eᵃ.
func Exp(a Scalar) Scalar { return autodiff.Exp(a) }

// Log returns ln a.
func Log(a Scalar) Scalar { return autodiff.Log(a) }

// Abs returns |a|.
func Abs(a Scalar) Scalar { return autodiff.Abs(a) }

// Pow returns aᵖ.
func Pow(a Scalar, p float64) Scalar { return autodiff.Pow(a, p) }

// Min returns the smaller of a and b.
func Min(a, b Scalar) Scalar { return autodiff.Min(a, b) }

// Max returns the larger of a and b.
func Max(a, b Scalar) Scalar { return autodiff.Max(a, b) }

// Clamp limits a to [lo, hi].
func Clamp(a Scalar, lo, hi float64) Scalar { return autodiff.Clamp(a, lo, hi) }

// Reductions

// Sum returns Σ xs as a single node.
func Sum(xs ...Scalar) Scalar { return autodiff.Sum(xs...) }

// Dot returns Σ w[i]·xs[i] as a single node. A nil w means all ones.
func Dot(w []float64, xs []Scalar) Scalar { return autodiff.Dot(w, xs) }
