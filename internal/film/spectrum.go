package film

import "github.com/born-ml/invrender/internal/autodiff"

// Spectrum is a differentiable RGB triple.
type Spectrum [3]autodiff.Scalar

// Gray returns a constant spectrum with all channels set to v.
func Gray(v float64) Spectrum {
	c := autodiff.Const(v)
	return Spectrum{c, c, c}
}

// RGB returns a constant spectrum.
func RGB(r, g, b float64) Spectrum {
	return Spectrum{autodiff.Const(r), autodiff.Const(g), autodiff.Const(b)}
}

// Add returns the channel-wise sum.
func (s Spectrum) Add(o Spectrum) Spectrum {
	return Spectrum{autodiff.Add(s[0], o[0]), autodiff.Add(s[1], o[1]), autodiff.Add(s[2], o[2])}
}

// Mul returns the channel-wise product.
func (s Spectrum) Mul(o Spectrum) Spectrum {
	return Spectrum{autodiff.Mul(s[0], o[0]), autodiff.Mul(s[1], o[1]), autodiff.Mul(s[2], o[2])}
}

// Scale multiplies every channel by a differentiable factor.
func (s Spectrum) Scale(f autodiff.Scalar) Spectrum {
	return Spectrum{autodiff.Mul(s[0], f), autodiff.Mul(s[1], f), autodiff.Mul(s[2], f)}
}

// Float returns the channel values.
func (s Spectrum) Float() [3]float64 {
	return [3]float64{s[0].Float(), s[1].Float(), s[2].Float()}
}

// IsBlack reports whether every channel is zero.
func (s Spectrum) IsBlack() bool {
	return s[0].Float() == 0 && s[1].Float() == 0 && s[2].Float() == 0
}
