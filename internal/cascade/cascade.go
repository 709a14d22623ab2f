// Package cascade assembles biquad sections into cascades realizing
// arbitrary even-order low-pass/high-pass filters and single-section
// band-pass/notch filters, with global-gain normalization.
package cascade

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/nfpgo/nfp/internal/biquad"
)

// normEpsilon guards the normalization denominator against division by
// (near) zero.
const normEpsilon = 1e-8

// normMode selects which point on the unit circle the cascade's gain is
// normalized at.
type normMode int

const (
	normDC normMode = iota // z = 1, used for low-pass and notch
	normFS                 // z = -1, used for high-pass
	normFC                 // z = e^{j w0}, used for band-pass
)

// Cascade is an ordered sequence of biquads realizing one filter of
// arbitrary even order (or a single section for band-pass/notch).
type Cascade struct {
	w0 float64 // radians/sample, 0 < w0 < pi
	q  float64 // nominal Q (0 for band-pass/notch, where Q carries no meaning)

	sections []biquad.Biquad
}

// W0 returns the cascade's natural frequency in radians/sample.
func (c *Cascade) W0() float64 { return c.w0 }

// Q returns the cascade's nominal Q.
func (c *Cascade) Q() float64 { return c.q }

// Order returns the cascade's order (2 * number of sections).
func (c *Cascade) Order() int { return 2 * len(c.sections) }

// NumSections returns the number of biquad sections in the cascade.
func (c *Cascade) NumSections() int { return len(c.sections) }

// butterworthQs returns the n/2 pole-pair Q values for an order-n
// Butterworth filter, Q_k = 1 / (2*cos((2k+1)*pi/(2n))).
func butterworthQs(order int) []float64 {
	n := order / 2
	qs := make([]float64, n)
	for k := 0; k < n; k++ {
		qs[k] = 1 / (2 * math.Cos(float64(2*k+1)*math.Pi/float64(2*order)))
	}
	return qs
}

func validateOrder(order int) error {
	if order < 2 || order > 254 || order%2 != 0 {
		return fmt.Errorf("cascade: order must be even and in [2, 254], got %d", order)
	}
	return nil
}

// NewLowPass builds an order-n Butterworth low-pass cascade at w0 with the
// given design Q (used only when order == 2; higher orders derive their own
// per-section Qs from the Butterworth angle formula). The result is
// normalized so |H(1)| == 1.
func NewLowPass(w0, q float64, order int) (*Cascade, error) {
	if err := validateOrder(order); err != nil {
		return nil, err
	}
	c := &Cascade{w0: w0, q: q}
	if order == 2 {
		c.sections = []biquad.Biquad{biquad.LowPass(w0, q)}
	} else {
		for _, qk := range butterworthQs(order) {
			c.sections = append(c.sections, biquad.LowPass(w0, qk))
		}
		sortDescendingQ(c.sections)
	}
	c.normalize(normDC)
	return c, nil
}

// NewHighPass builds an order-n Butterworth high-pass cascade at w0,
// normalized so |H(-1)| == 1 (the Nyquist point).
func NewHighPass(w0, q float64, order int) (*Cascade, error) {
	if err := validateOrder(order); err != nil {
		return nil, err
	}
	c := &Cascade{w0: w0, q: q}
	if order == 2 {
		c.sections = []biquad.Biquad{biquad.HighPass(w0, q)}
	} else {
		for _, qk := range butterworthQs(order) {
			c.sections = append(c.sections, biquad.HighPass(w0, qk))
		}
		sortDescendingQ(c.sections)
	}
	c.normalize(normFS)
	return c, nil
}

// NewBandPass builds a single-section constant-skirt-gain band-pass filter
// at w0 with the given bandwidth in octaves. Normalized so |H(e^{j w0})| == 1.
func NewBandPass(w0, bw float64) *Cascade {
	c := &Cascade{w0: w0, q: 0, sections: []biquad.Biquad{biquad.BandPass(w0, bw)}}
	c.normalize(normFC)
	return c
}

// NewNotch builds a single-section notch filter at w0 with the given
// bandwidth in octaves. Normalized so |H(1)| == 1.
func NewNotch(w0, bw float64) *Cascade {
	c := &Cascade{w0: w0, q: 0, sections: []biquad.Biquad{biquad.Notch(w0, bw)}}
	c.normalize(normDC)
	return c
}

// sortDescendingQ orders sections by descending design Q, placing the most
// resonant section first so later sections attenuate its peaking.
func sortDescendingQ(sections []biquad.Biquad) {
	// Small n (<=127 sections); insertion sort keeps this dependency-free
	// and stable, matching the single std::sort call in the original.
	for i := 1; i < len(sections); i++ {
		for j := i; j > 0 && sections[j].Q() > sections[j-1].Q(); j-- {
			sections[j], sections[j-1] = sections[j-1], sections[j]
		}
	}
}

// sectionGain returns the magnitude of section s's transfer function at the
// chosen normalization point, using that section's own (a0=1,a1,a2,b0,b1,b2).
func sectionGain(s biquad.Biquad, w0 float64, mode normMode) float64 {
	coeffs := s.Coeffs() // a0, a1, a2, b0, b1, b2
	a0, a1, a2 := coeffs[0], coeffs[1], coeffs[2]
	b0, b1, b2 := coeffs[3], coeffs[4], coeffs[5]

	switch mode {
	case normDC:
		num := b0 + b1 + b2
		den := a0 + a1 + a2
		return num / (den + normEpsilon)
	case normFS:
		num := b0 - b1 + b2
		den := a0 - a1 + a2
		return num / (den + normEpsilon)
	default: // normFC
		ejw := cmplx.Exp(complex(0, -w0))
		ej2w := cmplx.Exp(complex(0, -2*w0))
		num := complex(b0, 0) + complex(b1, 0)*ejw + complex(b2, 0)*ej2w
		den := complex(a0, 0) + complex(a1, 0)*ejw + complex(a2, 0)*ej2w
		return cmplx.Abs(num / (den + complex(normEpsilon, 0)))
	}
}

// normalize computes the cascade's compensating gain as the reciprocal of
// the product of each section's magnitude at the reference point, and folds
// it into the first section's b-row.
func (c *Cascade) normalize(mode normMode) {
	globalGain := 1.0
	for _, s := range c.sections {
		g := sectionGain(s, c.w0, mode)
		globalGain *= 1 / g
	}
	c.sections[0].ScaleB(globalGain)
}

// Eval threads x through the sections in stored order.
func (c *Cascade) Eval(x float64) float64 {
	for i := range c.sections {
		x = c.sections[i].Eval(x)
	}
	return x
}

// ProcessBlock filters in through every section, appending to out.
func (c *Cascade) ProcessBlock(in []float64, out []float64) []float64 {
	for _, x := range in {
		out = append(out, c.Eval(x))
	}
	return out
}

// Reset clears the delay-line state of every section.
func (c *Cascade) Reset() {
	for i := range c.sections {
		c.sections[i].Reset()
	}
}

// Clone returns a deep copy of the cascade with fresh, zeroed filter state.
// Used to give each connection's pipeline its own independent cascade
// instance without re-deriving coefficients.
func (c *Cascade) Clone() *Cascade {
	nc := &Cascade{w0: c.w0, q: c.q, sections: make([]biquad.Biquad, len(c.sections))}
	copy(nc.sections, c.sections)
	nc.Reset()
	return nc
}

// Coeffs returns the 6-tuple of each section concatenated in order.
// The first section's b-row reflects the folded normalization; every other
// value is as originally designed.
func (c *Cascade) Coeffs() []float64 {
	out := make([]float64, 0, 6*len(c.sections))
	for i := range c.sections {
		cs := c.sections[i].Coeffs()
		out = append(out, cs[:]...)
	}
	return out
}
