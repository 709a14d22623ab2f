package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfpgo/nfp/internal/pipeline"
	"github.com/nfpgo/nfp/internal/wire"
	"github.com/nfpgo/nfp/internal/workerpool"
)

// recordingSender captures every Send call for assertions. It is safe for
// concurrent use since HandlePacket may run on a worker-pool goroutine.
type recordingSender struct {
	mu    sync.Mutex
	sends []sentBlock
}

type sentBlock struct {
	samples []float32
	port    uint16
}

func (r *recordingSender) Send(samples []float32, port uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]float32, len(samples))
	copy(cp, samples)
	r.sends = append(r.sends, sentBlock{samples: cp, port: port})
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sends)
}

func (r *recordingSender) at(i int) sentBlock {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sends[i]
}

func passthroughFactory() *pipeline.Pipeline {
	p := pipeline.New()
	p.AddGain(1.0)
	return p
}

func constBlock(v float32) [wire.BlockSize]float32 {
	var out [wire.BlockSize]float32
	for i := range out {
		out[i] = v
	}
	return out
}

func newTestEngine(policy Concealment, window int) (*Engine, *recordingSender) {
	pool := workerpool.New(1, 64)
	eng := New(pool, passthroughFactory, policy, WithWindow(window))
	sender := &recordingSender{}
	eng.SetSender(sender)
	return eng, sender
}

func primeConnection(t *testing.T, eng *Engine, srcAddr [4]byte, srcPort uint16, window int) {
	t.Helper()
	// Feed readinessThreshold in-order packets with distinct values so the
	// connection flips from priming to live; expected_seq ends at
	// readinessThreshold.
	for seq := uint64(0); seq < uint64(readinessThreshold); seq++ {
		samples := constBlock(float32(seq + 1))
		eng.HandlePacket(wire.Inbound{Seq: seq, OutPort: 4000, Samples: samples}, srcAddr, srcPort)
	}
}

func TestCleanInOrderStreamPassesThrough(t *testing.T) {
	eng, sender := newTestEngine(RepeatLastGood, DefaultWindow)
	addr := [4]byte{10, 0, 0, 1}

	primeConnection(t, eng, addr, 5000, DefaultWindow)
	require.Equal(t, readinessThreshold, sender.count())

	seq := uint64(readinessThreshold)
	samples := constBlock(42)
	eng.HandlePacket(wire.Inbound{Seq: seq, OutPort: 4000, Samples: samples}, addr, 5000)

	last := sender.at(sender.count() - 1)
	assert.Equal(t, uint16(4000), last.port)
	assert.Equal(t, float32(42), last.samples[0])
}

func TestSingleGapAppliesRepeatLastGoodConcealment(t *testing.T) {
	eng, sender := newTestEngine(RepeatLastGood, DefaultWindow)
	addr := [4]byte{10, 0, 0, 2}

	primeConnection(t, eng, addr, 5001, DefaultWindow)
	lastGoodOutput := sender.at(sender.count() - 1).samples[0]

	nextSeq := uint64(readinessThreshold)
	// Skip nextSeq, deliver nextSeq+1 instead: the engine must conceal at
	// consume time for the missing head slot.
	eng.HandlePacket(wire.Inbound{Seq: nextSeq + 1, OutPort: 4000, Samples: constBlock(99)}, addr, 5001)

	concealed := sender.at(sender.count() - 1)
	assert.Equal(t, lastGoodOutput, concealed.samples[0])
}

func TestReorderWithinWindowConsumedInSeqOrder(t *testing.T) {
	eng, sender := newTestEngine(RepeatLastGood, DefaultWindow)
	addr := [4]byte{10, 0, 0, 3}

	primeConnection(t, eng, addr, 5002, DefaultWindow)
	lastGoodOutput := sender.at(sender.count() - 1).samples[0]

	expected := uint64(readinessThreshold) // 5 — current expected_seq after priming

	// Arrives two ahead of expected_seq: buffered at its own slot, but the
	// head slot (expected_seq) is still absent, so this call conceals.
	// expected_seq advances to 6 regardless.
	eng.HandlePacket(wire.Inbound{Seq: expected + 2, OutPort: 4000, Samples: constBlock(7)}, addr, 5002)
	assert.Equal(t, lastGoodOutput, sender.at(sender.count()-1).samples[0])

	// Arrives exactly at the new head (6): real data flows immediately.
	eng.HandlePacket(wire.Inbound{Seq: expected + 1, OutPort: 4000, Samples: constBlock(6)}, addr, 5002)
	assert.Equal(t, float32(6), sender.at(sender.count()-1).samples[0])

	// A third arrival finds expected_seq at 7, the slot buffered two
	// steps ago: the data from that out-of-order packet is delivered
	// intact, proving the window reordered it rather than dropping it.
	eng.HandlePacket(wire.Inbound{Seq: expected + 3, OutPort: 4000, Samples: constBlock(8)}, addr, 5002)
	assert.Equal(t, float32(7), sender.at(sender.count()-1).samples[0])
}

func TestFarFutureJumpResetsConnection(t *testing.T) {
	eng, sender := newTestEngine(RepeatLastGood, 32)
	addr := [4]byte{10, 0, 0, 4}

	primeConnection(t, eng, addr, 5003, 32)

	far := uint64(readinessThreshold) + 2*32 + 100
	eng.HandlePacket(wire.Inbound{Seq: far, OutPort: 4000, Samples: constBlock(77)}, addr, 5003)

	eng.mu.Lock()
	cs := eng.conns[key(addr, 5003)]
	gotExpected := cs.expectedSeq
	eng.mu.Unlock()

	assert.Equal(t, far+1, gotExpected)
	_ = sender
}

func TestAllZeroConcealment(t *testing.T) {
	eng, sender := newTestEngine(AllZero, DefaultWindow)
	addr := [4]byte{10, 0, 0, 5}

	primeConnection(t, eng, addr, 5004, DefaultWindow)

	next := uint64(readinessThreshold)
	eng.HandlePacket(wire.Inbound{Seq: next + 1, OutPort: 4000, Samples: constBlock(55)}, addr, 5004)

	concealed := sender.at(sender.count() - 1)
	for _, v := range concealed.samples {
		assert.Equal(t, float32(0), v)
	}
}

func TestReaperRemovesExpiredConnections(t *testing.T) {
	eng, _ := newTestEngine(RepeatLastGood, DefaultWindow)
	eng.defaultTimeout = 10 * time.Millisecond
	addr := [4]byte{10, 0, 0, 6}

	eng.HandlePacket(wire.Inbound{Seq: 0, OutPort: 4000, Samples: constBlock(1)}, addr, 5005)
	assert.Equal(t, 1, eng.ConnCount())

	time.Sleep(20 * time.Millisecond)
	eng.reapOnceNow()

	assert.Equal(t, 0, eng.ConnCount())
}

func TestDistinctPortsAreDistinctConnections(t *testing.T) {
	eng, sender := newTestEngine(RepeatLastGood, DefaultWindow)
	addr := [4]byte{10, 0, 0, 7}

	eng.HandlePacket(wire.Inbound{Seq: 0, OutPort: 1111, Samples: constBlock(1)}, addr, 6000)
	eng.HandlePacket(wire.Inbound{Seq: 0, OutPort: 2222, Samples: constBlock(1)}, addr, 7000)

	assert.Equal(t, 2, eng.ConnCount())
	assert.Equal(t, 2, sender.count())
}
