// Package config parses and validates the YAML descriptor that drives a
// server instance: the UDP connection parameters and the signal pipeline.
//
// The schema mirrors the original udp-params/pipeline structure
// (original_source/src/ConfigsParse.cpp) field for field, ported from JSON
// to YAML.
package config

import (
	"fmt"
	"math"
	"net"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nfpgo/nfp/internal/cascade"
	"github.com/nfpgo/nfp/internal/engine"
	"github.com/nfpgo/nfp/internal/pipeline"
)

const pi = math.Pi

// defaultQ is applied to low-pass/high-pass elements that omit Q.
const defaultQ = 0.707

// ElementType enumerates the valid pipeline element kinds.
type ElementType string

const (
	LowPass  ElementType = "low-pass"
	HighPass ElementType = "high-pass"
	BandPass ElementType = "band-pass"
	Notch    ElementType = "notch"
	Gain     ElementType = "gain"
)

func validElementType(t ElementType) bool {
	switch t {
	case LowPass, HighPass, BandPass, Notch, Gain:
		return true
	default:
		return false
	}
}

// rawElement is the literal YAML shape of one pipeline entry. Pointer
// fields distinguish "absent" from "present with zero value", matching
// the original's j.contains(...) checks.
type rawElement struct {
	Type     string   `yaml:"type"`
	Gain     *float64 `yaml:"gain"`
	CutFreq  *float64 `yaml:"cut-freq"`
	Order    *int     `yaml:"order"`
	Q        *float64 `yaml:"Q"`
	Bw       *float64 `yaml:"BW"`
}

type rawConnInfo struct {
	ServerPort        *int     `yaml:"server-port"`
	SampFreq          *float64 `yaml:"samp-freq"`
	ClientAddrV4      *string  `yaml:"client-addrv4"`
	ConcealmentPolicy *string  `yaml:"concealment-policy"`
}

type rawDoc struct {
	UDPParms rawConnInfo  `yaml:"udp-params"`
	Pipeline []rawElement `yaml:"pipeline"`
}

// ConnInfo is the validated connection section of a descriptor.
type ConnInfo struct {
	ServerPort   uint16
	SampFreq     float64
	ClientAddrV4 net.IP
	Policy       engine.Concealment
}

// ElementInfo is one validated pipeline element, still in descriptor form
// (not yet built into a cascade — BuildPipeline does that, since it needs
// the sampling frequency to convert Hz to radians/sample).
type ElementInfo struct {
	Type    ElementType
	Gain    float64
	CutFreq float64
	Order   int
	Q       float64
	Bw      float64
}

// Descriptor is a fully parsed and validated server configuration.
type Descriptor struct {
	Conn     ConnInfo
	Elements []ElementInfo
}

// Load reads and validates the YAML descriptor at path.
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var doc rawDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML file (%s): %w", path, err)
	}

	conn, err := parseConnInfo(doc.UDPParms)
	if err != nil {
		return nil, fmt.Errorf("udp-params: %w", err)
	}

	elements := make([]ElementInfo, 0, len(doc.Pipeline))
	for i, re := range doc.Pipeline {
		el, err := parseElement(re)
		if err != nil {
			return nil, fmt.Errorf("element[%d]: %w", i, err)
		}
		elements = append(elements, el)
	}

	return &Descriptor{Conn: conn, Elements: elements}, nil
}

func parseConnInfo(r rawConnInfo) (ConnInfo, error) {
	var c ConnInfo

	if r.ServerPort == nil {
		return c, fmt.Errorf("server must have a non-zero integer port")
	}
	if *r.ServerPort < 0 || *r.ServerPort > 65535 {
		return c, fmt.Errorf("server-port out of range: %d", *r.ServerPort)
	}
	c.ServerPort = uint16(*r.ServerPort)

	if r.SampFreq == nil {
		return c, fmt.Errorf("server must have a sampling frequency number")
	}
	if *r.SampFreq <= 0.0 {
		return c, fmt.Errorf("sampling frequency must be a non-zero positive number")
	}
	c.SampFreq = *r.SampFreq

	if r.ClientAddrV4 == nil {
		return c, fmt.Errorf("server must have a string client IPv4 address")
	}
	ip := net.ParseIP(*r.ClientAddrV4).To4()
	if ip == nil {
		return c, fmt.Errorf("client-addrv4 is not a valid IPv4 address: %q", *r.ClientAddrV4)
	}
	c.ClientAddrV4 = ip

	if r.ConcealmentPolicy == nil {
		return c, fmt.Errorf("server must have a string concealment policy")
	}
	policy, ok := engine.ParseConcealment(*r.ConcealmentPolicy)
	if !ok {
		return c, fmt.Errorf("%q is not a valid concealment policy", *r.ConcealmentPolicy)
	}
	c.Policy = policy

	return c, nil
}

func parseElement(r rawElement) (ElementInfo, error) {
	e := ElementInfo{Q: defaultQ}

	t := ElementType(lowerASCII(r.Type))
	if !validElementType(t) {
		return e, fmt.Errorf("%q is not a valid element type", r.Type)
	}
	e.Type = t

	if r.Gain != nil {
		e.Gain = *r.Gain
	}
	if r.CutFreq != nil {
		if *r.CutFreq <= 0.0 {
			return e, fmt.Errorf("cutoff frequency must be a non-zero positive number")
		}
		e.CutFreq = *r.CutFreq
	}
	if r.Order != nil {
		if *r.Order < 2 || *r.Order > 254 || *r.Order%2 != 0 {
			return e, fmt.Errorf("order must be a non-zero even integer < 255")
		}
		e.Order = *r.Order
	}
	if r.Q != nil {
		if *r.Q <= 0 {
			return e, fmt.Errorf("Q must be a non-zero number")
		}
		e.Q = *r.Q
	}
	if r.Bw != nil {
		if *r.Bw <= 0 {
			return e, fmt.Errorf("BW must be a non-zero number")
		}
		e.Bw = *r.Bw
	}

	switch t {
	case LowPass, HighPass:
		if r.Order == nil {
			return e, fmt.Errorf("filter %s must have an order", t)
		}
		if r.CutFreq == nil {
			return e, fmt.Errorf("filter %s must have a cutoff frequency", t)
		}
	case BandPass, Notch:
		if r.Bw == nil {
			return e, fmt.Errorf("filter %s must have a BW", t)
		}
		if r.CutFreq == nil {
			return e, fmt.Errorf("filter %s must have a cutoff frequency", t)
		}
	case Gain:
		if r.Gain == nil {
			return e, fmt.Errorf("element %s must have a gain", t)
		}
	}

	return e, nil
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func toRad(fs, fc float64) float64 {
	return 2 * pi * (fc / fs)
}

// BuildPipeline constructs a fresh Pipeline from a descriptor's elements,
// converting each cutoff frequency from Hz to radians/sample using fs.
// Each call returns an independently-stated Pipeline, suitable as an
// engine.PipelineFactory closure body.
func BuildPipeline(elements []ElementInfo, fs float64) (*pipeline.Pipeline, error) {
	p := pipeline.New()

	for i, el := range elements {
		switch el.Type {
		case Gain:
			p.AddGain(el.Gain)
		case LowPass:
			c, err := cascade.NewLowPass(toRad(fs, el.CutFreq), el.Q, el.Order)
			if err != nil {
				return nil, fmt.Errorf("element[%d] low-pass: %w", i, err)
			}
			p.AddFilter(c)
		case HighPass:
			c, err := cascade.NewHighPass(toRad(fs, el.CutFreq), el.Q, el.Order)
			if err != nil {
				return nil, fmt.Errorf("element[%d] high-pass: %w", i, err)
			}
			p.AddFilter(c)
		case BandPass:
			p.AddFilter(cascade.NewBandPass(toRad(fs, el.CutFreq), el.Bw))
		case Notch:
			p.AddFilter(cascade.NewNotch(toRad(fs, el.CutFreq), el.Bw))
		}
	}

	return p, nil
}
