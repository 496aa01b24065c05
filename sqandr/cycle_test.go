package sqandr

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/icza/gog"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Verbose = false
	return cfg
}

func newTestModem(t *testing.T, cfg Config, radio RadioFrontEnd, in HostReader, out HostWriter) *Modem {
	t.Helper()
	return gog.Must(NewModem(cfg, radio, in, out))
}

func TestModemLoopback(t *testing.T) {
	for _, invert := range []bool{false, true} {
		t.Run(gog.If(invert, "inverted", "normal"), func(t *testing.T) {
			cfg := testConfig()
			radio := NewLoopback(cfg.RXBufferSamples, cfg.TXBufferSamples, 0, invert)
			var out bytes.Buffer
			m := newTestModem(t, cfg, radio, NewHexLineReader(strings.NewReader("*6699aa\ne\n"), false), NewHexWriter(&out))

			require.NoError(t, m.Run(context.Background()))
			assert.Equal(t, "+6699aa6699aa6699aa\n", out.String())
			assert.Equal(t, 2, m.Cycles())
			assert.True(t, radio.shut, "radio not shut down")

			mt := m.Metrics()
			assert.Equal(t, 1.0, testutil.ToFloat64(mt.txBuffers))
			assert.Equal(t, 3.0, testutil.ToFloat64(mt.txBytes))
			assert.Equal(t, 9.0, testutil.ToFloat64(mt.bytesDecoded))
			assert.Equal(t, 1.0, testutil.ToFloat64(mt.preambles))
			polarity := gog.If(invert, Inverted, Normal)
			assert.Equal(t, 9.0, testutil.ToFloat64(mt.headers.WithLabelValues(polarity.String())))
		})
	}
}

func TestModemCycleDuration(t *testing.T) {
	cfg := testConfig()
	radio := NewLoopback(cfg.RXBufferSamples, cfg.TXBufferSamples, 0, false)
	m := newTestModem(t, cfg, radio, NewHexLineReader(strings.NewReader("*6699aa\ne\n"), false), NewHexWriter(&bytes.Buffer{}))
	require.NoError(t, m.Run(context.Background()))

	families, err := m.Metrics().Registry().Gather()
	require.NoError(t, err)
	var count uint64
	for _, f := range families {
		if f.GetName() == "sqandr_cycle_duration_seconds" {
			count = f.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	// the shutdown cycle is timed too
	assert.Equal(t, uint64(m.Cycles()), count)
	assert.Equal(t, float64(count), testutil.ToFloat64(m.Metrics().cycles))
}

func TestModemConfiguresRadio(t *testing.T) {
	cfg := testConfig()
	cfg.TX.LOMHz = 915
	radio := NewLoopback(100, 100, 0, false)
	newTestModem(t, cfg, radio, ListenOnly{}, NewHexWriter(&bytes.Buffer{}))
	assert.Equal(t, MHz(900), radio.configs[RX].LOHz)
	assert.Equal(t, MHz(915), radio.configs[TX].LOHz)
	assert.Equal(t, DefaultTXPort, radio.configs[TX].Port)
}

func TestModemRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.SamplesPerBit = 3
	_, err := NewModem(cfg, NewLoopback(10, 10, 0, false), ListenOnly{}, NewHexWriter(&bytes.Buffer{}))
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestModemRequirePreamble(t *testing.T) {
	cfg := testConfig()
	cfg.RequirePreamble = true
	radio := NewLoopback(cfg.RXBufferSamples, cfg.TXBufferSamples, 0, false)
	var out bytes.Buffer
	in := NewHexLineReader(strings.NewReader("aabb\n6699cc\n\ne\n"), false)
	m := newTestModem(t, cfg, radio, in, NewHexWriter(&out))

	require.NoError(t, m.Run(context.Background()))
	assert.Equal(t, "+6699cc6699cc6699cc\n", out.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Metrics().cyclesGated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Metrics().cyclesEmitted))
}

func TestModemOversizedJob(t *testing.T) {
	cfg := testConfig()
	radio := NewLoopback(cfg.RXBufferSamples, cfg.TXBufferSamples, 0, false)
	var out bytes.Buffer
	big := strings.Repeat("ab", cfg.InputQuota()+1)
	in := NewHexLineReader(strings.NewReader(big+"\n01\ne\n"), false)
	m := newTestModem(t, cfg, radio, in, NewHexWriter(&out))

	require.NoError(t, m.Run(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Metrics().txRejected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Metrics().txBuffers))
	assert.Equal(t, "+010101\n", out.String())
}

func TestModemHeartbeat(t *testing.T) {
	cfg := testConfig()
	cfg.ListenOnly = true
	cfg.HeartbeatInterval = 3
	radio := NewLoopback(cfg.RXBufferSamples, cfg.TXBufferSamples, 0, false)
	radio.StopAfter(7)
	var out bytes.Buffer
	m := newTestModem(t, cfg, radio, nil, NewBinaryWriter(&out, cfg.HeartbeatInterval))

	err := m.Run(context.Background())
	assert.ErrorIs(t, err, errExhausted)
	assert.Equal(t, append(append([]byte{}, Heartbeat...), Heartbeat...), out.Bytes())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Metrics().heartbeats))
	assert.True(t, radio.shut)
}

func TestModemHostEOF(t *testing.T) {
	cfg := testConfig()
	radio := NewLoopback(cfg.RXBufferSamples, cfg.TXBufferSamples, 0, false)
	m := newTestModem(t, cfg, radio, NewHexLineReader(strings.NewReader(""), false), NewHexWriter(&bytes.Buffer{}))
	require.NoError(t, m.Run(context.Background()))
	assert.Equal(t, 1, m.Cycles())
}

func TestModemContextCancelled(t *testing.T) {
	cfg := testConfig()
	radio := NewLoopback(cfg.RXBufferSamples, cfg.TXBufferSamples, 0, false)
	m := newTestModem(t, cfg, radio, ListenOnly{}, NewHexWriter(&bytes.Buffer{}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, m.Run(ctx))
	assert.Equal(t, 0, m.Cycles())
	assert.True(t, radio.shut)
}

type recordingLine struct {
	values []int
	closed bool
}

func (l *recordingLine) SetValue(v int) error {
	l.values = append(l.values, v)
	return nil
}

func (l *recordingLine) Close() error {
	l.closed = true
	return nil
}

func TestModemPAEnable(t *testing.T) {
	cfg := testConfig()
	radio := NewLoopback(cfg.RXBufferSamples, cfg.TXBufferSamples, 0, false)
	m := newTestModem(t, cfg, radio, NewHexLineReader(strings.NewReader("01\n\ne\n"), false), NewHexWriter(&bytes.Buffer{}))
	line := &recordingLine{}
	m.SetPAEnable(line)
	require.NoError(t, m.Run(context.Background()))
	assert.Equal(t, []int{1, 0}, line.values)
}

type failingRadio struct {
	*Loopback
}

func (failingRadio) SubmitTransmitBuffer() error {
	return errors.New("tx underflow")
}

func TestModemTransmitFailure(t *testing.T) {
	cfg := testConfig()
	radio := failingRadio{NewLoopback(cfg.RXBufferSamples, cfg.TXBufferSamples, 0, false)}
	m := newTestModem(t, cfg, radio, NewHexLineReader(strings.NewReader("01\n"), false), NewHexWriter(&bytes.Buffer{}))
	err := m.Run(context.Background())
	assert.ErrorContains(t, err, "tx underflow")
	assert.True(t, radio.shut)
}

func TestModemDiagnostic(t *testing.T) {
	cfg := testConfig()
	radio := NewLoopback(cfg.RXBufferSamples, cfg.TXBufferSamples, 0, false)
	d := NewDiagnosticSource()
	var out bytes.Buffer
	m := newTestModem(t, cfg, radio, d, NewHexWriter(&out))

	require.NoError(t, m.Run(context.Background()))
	assert.True(t, d.Passed())
	assert.Equal(t, len(TestPattern), d.Best())
	assert.Equal(t, DefaultDiagnosticSendCycle+2, m.Cycles())
}
