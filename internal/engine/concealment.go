package engine

// Concealment selects the loss-concealment strategy applied when the head
// of a connection's reorder window is missing at consume time.
type Concealment int

const (
	// RepeatLastGood replays the most recently consumed good input block.
	RepeatLastGood Concealment = iota
	// FadeLastGood replays a fixed 0.8x-scaled copy of the last good block.
	FadeLastGood
	// AllZero substitutes a block of 128 zeros.
	AllZero
)

// String renders the concealment policy using the config/wire vocabulary.
func (c Concealment) String() string {
	switch c {
	case RepeatLastGood:
		return "REPEAT_LAST_GOOD"
	case FadeLastGood:
		return "FADE_LAST_GOOD"
	case AllZero:
		return "ALL_ZERO"
	default:
		return "UNKNOWN"
	}
}

// ParseConcealment converts the wire/config vocabulary into a Concealment.
func ParseConcealment(s string) (Concealment, bool) {
	switch s {
	case "REPEAT_LAST_GOOD":
		return RepeatLastGood, true
	case "FADE_LAST_GOOD":
		return FadeLastGood, true
	case "ALL_ZERO":
		return AllZero, true
	default:
		return 0, false
	}
}

const fadeFactor = 0.8

// conceal produces a substitute input block for a missing head slot,
// applying the fade-decay bookkeeping FadeLastGood requires. silence
// concealment is bulletproof to an absent last_good: both policies that
// read it default to the zero value of a fresh sampleBlock.
func (cs *connState) conceal(policy Concealment) sampleBlock {
	switch policy {
	case RepeatLastGood:
		return cs.lastGood
	case FadeLastGood:
		out := cs.fadedLastGood
		cs.recomputeFade()
		return out
	default: // AllZero
		return sampleBlock{}
	}
}

// recomputeFade recomputes faded_last_good = 0.8 * last_good, always from
// the last_good baseline rather than from the current faded vector itself,
// so consecutive losses see the same fade level rather than compounding.
func (cs *connState) recomputeFade() {
	for i, v := range cs.lastGood {
		cs.fadedLastGood[i] = float32(fadeFactor) * v
	}
}
