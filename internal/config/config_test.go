package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfpgo/nfp/internal/engine"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadValidDescriptor(t *testing.T) {
	path := writeTempConfig(t, `
udp-params:
  server-port: 9000
  samp-freq: 8000
  client-addrv4: 127.0.0.1
  concealment-policy: FADE_LAST_GOOD
pipeline:
  - type: gain
    gain: 1.5
  - type: low-pass
    cut-freq: 1000
    order: 4
  - type: band-pass
    cut-freq: 500
    BW: 1.0
  - type: notch
    cut-freq: 60
    BW: 0.5
`)

	desc, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, uint16(9000), desc.Conn.ServerPort)
	assert.Equal(t, 8000.0, desc.Conn.SampFreq)
	assert.Equal(t, "127.0.0.1", desc.Conn.ClientAddrV4.String())
	assert.Equal(t, engine.FadeLastGood, desc.Conn.Policy)
	require.Len(t, desc.Elements, 4)
	assert.Equal(t, Gain, desc.Elements[0].Type)
	assert.Equal(t, LowPass, desc.Elements[1].Type)
}

func TestLoadMissingServerPort(t *testing.T) {
	path := writeTempConfig(t, `
udp-params:
  samp-freq: 8000
  client-addrv4: 127.0.0.1
  concealment-policy: ALL_ZERO
pipeline: []
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadInvalidConcealmentPolicy(t *testing.T) {
	path := writeTempConfig(t, `
udp-params:
  server-port: 9000
  samp-freq: 8000
  client-addrv4: 127.0.0.1
  concealment-policy: BOGUS
pipeline: []
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadLowPassMissingOrderRejected(t *testing.T) {
	path := writeTempConfig(t, `
udp-params:
  server-port: 9000
  samp-freq: 8000
  client-addrv4: 127.0.0.1
  concealment-policy: ALL_ZERO
pipeline:
  - type: low-pass
    cut-freq: 1000
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadGainMissingGainRejected(t *testing.T) {
	path := writeTempConfig(t, `
udp-params:
  server-port: 9000
  samp-freq: 8000
  client-addrv4: 127.0.0.1
  concealment-policy: ALL_ZERO
pipeline:
  - type: gain
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadUnknownElementTypeRejected(t *testing.T) {
	path := writeTempConfig(t, `
udp-params:
  server-port: 9000
  samp-freq: 8000
  client-addrv4: 127.0.0.1
  concealment-policy: ALL_ZERO
pipeline:
  - type: all-pass
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestBuildPipelineProducesExpectedElementCount(t *testing.T) {
	path := writeTempConfig(t, `
udp-params:
  server-port: 9000
  samp-freq: 8000
  client-addrv4: 127.0.0.1
  concealment-policy: REPEAT_LAST_GOOD
pipeline:
  - type: gain
    gain: 2.0
  - type: high-pass
    cut-freq: 300
    order: 2
    Q: 0.707
`)
	desc, err := Load(path)
	require.NoError(t, err)

	p, err := BuildPipeline(desc.Elements, desc.Conn.SampFreq)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Len())
}

func TestLoadOmittedQDefaultsAndBuilds(t *testing.T) {
	path := writeTempConfig(t, `
udp-params:
  server-port: 9000
  samp-freq: 8000
  client-addrv4: 127.0.0.1
  concealment-policy: REPEAT_LAST_GOOD
pipeline:
  - type: low-pass
    cut-freq: 300
    order: 2
`)
	desc, err := Load(path)
	require.NoError(t, err)
	require.Len(t, desc.Elements, 1)
	assert.Equal(t, defaultQ, desc.Elements[0].Q)

	p, err := BuildPipeline(desc.Elements, desc.Conn.SampFreq)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Len())
}
