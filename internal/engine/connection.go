package engine

import (
	"time"

	"github.com/nfpgo/nfp/internal/pipeline"
	"github.com/nfpgo/nfp/internal/wire"
)

// sampleBlock is a fixed-size 128-sample block, matching wire.BlockSize.
// Using an array rather than a slice gives ConnectionState's last_good and
// faded_last_good value semantics: assignment copies, never aliases.
type sampleBlock [wire.BlockSize]float32

// connState is the per-source reorder and filter state. The presence
// bitmap is a uint32: bit i set iff slot i holds an unconsumed datagram.
// Invariant: bit i set implies buffer[i].Seq % W == i.
type connState struct {
	buffer  []wire.Inbound // reorder window, length == engine's W
	present uint32         // presence bitmap over buffer

	expectedSeq uint64
	initialized bool

	lastGood      sampleBlock
	fadedLastGood sampleBlock
	lastPort      uint16

	lastArrive time.Time
	deadline   time.Time

	pipeline *pipeline.Pipeline
}

func newConnState(window int, p *pipeline.Pipeline) *connState {
	return &connState{
		buffer:   make([]wire.Inbound, window),
		pipeline: p,
	}
}

// popcount32 returns the number of set bits, used for the readiness check.
func popcount32(x uint32) int {
	n := 0
	for x != 0 {
		x &= x - 1
		n++
	}
	return n
}

// key derives the 64-bit connection key: (IPv4 as u32) << 16 | src port.
// Two sources differing only in port are distinct connections.
func key(addr [4]byte, port uint16) uint64 {
	ip := uint64(addr[0])<<24 | uint64(addr[1])<<16 | uint64(addr[2])<<8 | uint64(addr[3])
	return ip<<16 | uint64(port)
}
