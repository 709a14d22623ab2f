// Package pipeline composes gain and filter-cascade elements into a single
// serial signal path evaluated one sample, or one block, at a time.
package pipeline

import "github.com/nfpgo/nfp/internal/cascade"

// kind tags which variant an element holds.
type kind int

const (
	kindGain kind = iota
	kindFilter
)

// element is a tagged variant: either a scalar gain or an owned filter
// cascade. Using a sum type instead of an interface with virtual dispatch
// avoids a heap allocation and an indirect call per element per sample.
type element struct {
	kind    kind
	gain    float64
	cascade *cascade.Cascade
}

func (e *element) eval(x float64) float64 {
	switch e.kind {
	case kindGain:
		return e.gain * x
	default:
		return e.cascade.Eval(x)
	}
}

func (e *element) reset() {
	if e.kind == kindFilter {
		e.cascade.Reset()
	}
}

// coeffs returns this element's 6-tuple: (1,0,0,k,0,0) for a gain k, or the
// cascade's concatenated coefficients for a filter.
func (e *element) coeffs() []float64 {
	if e.kind == kindGain {
		return []float64{1, 0, 0, e.gain, 0, 0}
	}
	return e.cascade.Coeffs()
}

// Pipeline is an ordered, append-only list of elements, each owned
// exclusively by the pipeline. Evaluating a sample threads it through every
// element left to right.
type Pipeline struct {
	elements []element
}

// New returns an empty pipeline.
func New() *Pipeline {
	return &Pipeline{}
}

// AddGain appends a gain element.
func (p *Pipeline) AddGain(k float64) {
	p.elements = append(p.elements, element{kind: kindGain, gain: k})
}

// AddFilter appends a filter element that exclusively owns c.
func (p *Pipeline) AddFilter(c *cascade.Cascade) {
	p.elements = append(p.elements, element{kind: kindFilter, cascade: c})
}

// Process threads x through every element in order.
func (p *Pipeline) Process(x float64) float64 {
	for i := range p.elements {
		x = p.elements[i].eval(x)
	}
	return x
}

// ProcessBlock appends one output per input sample to out, in order.
func (p *Pipeline) ProcessBlock(in []float64, out []float64) []float64 {
	for _, x := range in {
		out = append(out, p.Process(x))
	}
	return out
}

// Reset clears the state of every filter element (gains have no state).
func (p *Pipeline) Reset() {
	for i := range p.elements {
		p.elements[i].reset()
	}
}

// Len returns the number of elements in the pipeline.
func (p *Pipeline) Len() int { return len(p.elements) }

// Coeffs concatenates each element's 6-tuple in pipeline order. Used only
// for coefficient-dump inspection.
func (p *Pipeline) Coeffs() []float64 {
	out := make([]float64, 0, 6*len(p.elements))
	for i := range p.elements {
		out = append(out, p.elements[i].coeffs()...)
	}
	return out
}

// Clone returns a fresh pipeline with the same structure (gains and filter
// designs) but entirely new, zeroed filter state. Used to give each new
// connection its own private pipeline instance.
func (p *Pipeline) Clone() *Pipeline {
	np := &Pipeline{elements: make([]element, len(p.elements))}
	copy(np.elements, p.elements)
	for i := range np.elements {
		if np.elements[i].kind == kindFilter {
			np.elements[i].cascade = p.elements[i].cascade.Clone()
		}
	}
	return np
}
