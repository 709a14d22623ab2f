// Package biquad implements a single second-order IIR filter section
// (a "biquad") in Direct Form II Transposed.
package biquad

import "math"

// Biquad is one second-order section. Coefficients are stored already
// normalized by a0, so evaluation needs only four multiplies of state plus
// the two feedforward taps. State is mutable only through Eval and Reset.
type Biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
	q          float64 // design Q; 0 for sections where Q carries no meaning

	s1, s2 float64 // delay-line state, w[n-1] and w[n-2]
}

// New constructs a Biquad from raw (non-normalized) coefficients, dividing
// through by a0. a0 must be > 0.
func New(a0, a1, a2, b0, b1, b2 float64) Biquad {
	if a0 <= 0 {
		panic("biquad: a0 must be positive")
	}
	return Biquad{
		b0: b0 / a0,
		b1: b1 / a0,
		b2: b2 / a0,
		a1: a1 / a0,
		a2: a2 / a0,
	}
}

// LowPass builds an RBJ low-pass section for angular frequency w0
// (radians/sample, 0 < w0 < pi) and quality factor Q.
func LowPass(w0, q float64) Biquad {
	alpha := math.Sin(w0) / (2 * q)
	cw := math.Cos(w0)

	a0 := 1 + alpha
	a1 := -2 * cw
	a2 := 1 - alpha

	b1 := 1 - cw
	b0 := b1 / 2
	b2 := b0

	bq := New(a0, a1, a2, b0, b1, b2)
	bq.q = q
	return bq
}

// HighPass builds an RBJ high-pass section.
func HighPass(w0, q float64) Biquad {
	alpha := math.Sin(w0) / (2 * q)
	cw := math.Cos(w0)

	a0 := 1 + alpha
	a1 := -2 * cw
	a2 := 1 - alpha

	b1 := -(1 + cw)
	b0 := -b1 / 2
	b2 := b0

	bq := New(a0, a1, a2, b0, b1, b2)
	bq.q = q
	return bq
}

// bandpassAlpha computes the constant-skirt-gain alpha shared by the
// band-pass and notch designs, parameterized by bandwidth in octaves.
func bandpassAlpha(w0, bw float64) float64 {
	sw := math.Sin(w0)
	return sw * math.Sinh(math.Ln2*bw*w0/(2*sw))
}

// BandPass builds a constant-skirt-gain band-pass section. Q carries no
// meaning for this design and is stored as 0.
func BandPass(w0, bw float64) Biquad {
	alpha := bandpassAlpha(w0, bw)
	cw := math.Cos(w0)

	a0 := 1 + alpha
	a1 := -2 * cw
	a2 := 1 - alpha

	b0 := alpha
	b1 := 0.0
	b2 := -alpha

	return New(a0, a1, a2, b0, b1, b2)
}

// Notch builds a notch section. Q carries no meaning and is stored as 0.
func Notch(w0, bw float64) Biquad {
	alpha := bandpassAlpha(w0, bw)
	cw := math.Cos(w0)

	a0 := 1 + alpha
	a1 := -2 * cw
	a2 := 1 - alpha

	b0 := 1.0
	b1 := -2 * cw
	b2 := 1.0

	return New(a0, a1, a2, b0, b1, b2)
}

// Q returns the design Q used to build this section (0 for band-pass/notch).
func (b *Biquad) Q() float64 { return b.q }

// Eval filters one sample using Direct Form II Transposed:
//
//	v = x - a1*s1 - a2*s2
//	y = b0*v + b1*s1 + b2*s2
//	s2 <- s1; s1 <- v
func (b *Biquad) Eval(x float64) float64 {
	v := x - b.a1*b.s1 - b.a2*b.s2
	y := b.b0*v + b.b1*b.s1 + b.b2*b.s2
	b.s2 = b.s1
	b.s1 = v
	return y
}

// ProcessBlock filters in, appending one output per input sample to out.
func (b *Biquad) ProcessBlock(in []float64, out []float64) []float64 {
	for _, x := range in {
		out = append(out, b.Eval(x))
	}
	return out
}

// Reset clears both state words to zero.
func (b *Biquad) Reset() {
	b.s1 = 0
	b.s2 = 0
}

// Coeffs returns the normalized (a0=1 implicit) six-tuple
// (a0, a1, a2, b0, b1, b2) in the convention used by Cascade/Pipeline
// coefficient inspection: a0 is always reported as 1.
func (b *Biquad) Coeffs() [6]float64 {
	return [6]float64{1, b.a1, b.a2, b.b0, b.b1, b.b2}
}

// ScaleB multiplies the feedforward coefficients by gain. Used only by
// Cascade's global-gain normalization, which folds a scalar into the first
// section's b-row.
func (b *Biquad) ScaleB(gain float64) {
	b.b0 *= gain
	b.b1 *= gain
	b.b2 *= gain
}
