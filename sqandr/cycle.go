package sqandr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"
)

// Modem runs the receive/transmit cycle: decode one receive buffer, report
// the result to the host, then transmit at most one job from the host.
type Modem struct {
	radio    RadioFrontEnd
	decoder  *Decoder
	encoder  *Encoder
	in       HostReader
	out      HostWriter
	paEnable Line
	metrics  *Metrics

	requirePreamble bool
	verbose         bool
	cycles          int
}

// NewModem configures radio from cfg and returns a modem ready to Run. The
// modem owns radio from here on and shuts it down when Run returns.
func NewModem(cfg Config, radio RadioFrontEnd, in HostReader, out HostWriter) (*Modem, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := radio.Configure(RX, cfg.RX.StreamConfig()); err != nil {
		return nil, fmt.Errorf("configure RX: %w", err)
	}
	if err := radio.Configure(TX, cfg.TX.StreamConfig()); err != nil {
		return nil, fmt.Errorf("configure TX: %w", err)
	}
	if cfg.ListenOnly {
		in = ListenOnly{}
	}
	return &Modem{
		radio:           radio,
		decoder:         NewDecoder(SqANPreamble, cfg.CycleCapacity),
		encoder:         cfg.Encoder(),
		in:              in,
		out:             out,
		metrics:         NewMetrics(),
		requirePreamble: cfg.RequirePreamble,
		verbose:         cfg.Verbose,
	}, nil
}

// SetPAEnable sets a line that is asserted while a transmit buffer is pushed.
func (m *Modem) SetPAEnable(l Line) {
	m.paEnable = l
}

func (m *Modem) Metrics() *Metrics {
	return m.metrics
}

// Cycles returns the number of receive buffers processed.
func (m *Modem) Cycles() int {
	return m.cycles
}

// Run calls Step until ctx is done or Step reports a shutdown or an error.
// The radio is shut down before Run returns.
func (m *Modem) Run(ctx context.Context) (err error) {
	defer func() {
		serr := m.radio.Shutdown()
		if serr != nil {
			log.Printf("[ERROR] Radio shutdown: %v", serr)
		}
		err = errors.Join(err, serr)
	}()
	for {
		select {
		case <-ctx.Done():
			log.Print("[INFO] Shutting down")
			return nil
		default:
		}
		done, err := m.Step()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// Step runs a single cycle. It returns true when the host asked to stop.
func (m *Modem) Step() (bool, error) {
	start := time.Now()
	samples, err := m.radio.AcquireReceiveBuffer()
	if err != nil {
		return false, fmt.Errorf("receive: %w", err)
	}
	m.cycles++
	defer func() {
		m.metrics.cycleDuration.Observe(time.Since(start).Seconds())
	}()
	r := m.decoder.DecodeBuffer(samples)
	m.metrics.observeCycle(r)
	if o, ok := m.in.(CycleObserver); ok {
		o.Observe(r)
	}
	if r.Stats.Decoded > 0 || r.Stats.Headers() > 0 {
		log.Printf("[DEBUG] Cycle %d: %d samples, amplitude %s, %d normal and %d inverted headers, %d bytes, %d dropped, preamble %v",
			m.cycles, r.Stats.Samples, r.Stats.Amplitude, r.Stats.NormalHeaders, r.Stats.InvertedHeaders,
			r.Stats.Decoded, r.Stats.Dropped, r.PreambleFound)
	}
	if r.Stats.Dropped > 0 {
		log.Printf("[INFO] Cycle output full, dropped %d bytes", r.Stats.Dropped)
	}
	if err := m.report(r); err != nil {
		return false, err
	}

	job, err := m.in.ReadJob()
	switch {
	case errors.Is(err, ErrShutdownRequested):
		log.Print("[INFO] Exit requested by host")
		return true, nil
	case errors.Is(err, io.EOF):
		log.Print("[INFO] Host input closed")
		return true, nil
	case err != nil:
		return false, fmt.Errorf("read host input: %w", err)
	}
	sent := false
	if len(job.Payload) > 0 {
		err = m.transmit(job)
		switch {
		case errors.Is(err, ErrBufferOverrun):
			m.metrics.txRejected.Inc()
			log.Printf("[ERROR] Dropping transmit job: %v", err)
		case err != nil:
			return false, err
		default:
			sent = true
		}
	}

	if m.verbose && (sent || len(r.Bytes) > 0) {
		log.Printf("[INFO] Cycle time %v", time.Since(start))
	}
	return false, nil
}

func (m *Modem) report(r CycleResult) error {
	if len(r.Bytes) > 0 && (!m.requirePreamble || r.PreambleFound) {
		m.metrics.cyclesEmitted.Inc()
		return m.out.Emit(r.Bytes)
	}
	if len(r.Bytes) > 0 {
		m.metrics.cyclesGated.Inc()
		log.Printf("[DEBUG] Withholding %d bytes, no preamble", len(r.Bytes))
	}
	hb, err := m.out.Idle()
	if hb {
		m.metrics.heartbeats.Inc()
	}
	return err
}

func (m *Modem) transmit(job TransmitJob) error {
	n, err := m.encoder.Encode(job, m.radio.TransmitBuffer())
	if err != nil {
		return err
	}
	log.Printf("[DEBUG] Transmitting %d bytes in %d symbols, diagnostic %v", len(job.Payload), n, job.Diagnostic)
	m.setPAEnable(true)
	err = m.radio.SubmitTransmitBuffer()
	m.setPAEnable(false)
	if err != nil {
		return fmt.Errorf("transmit: %w", err)
	}
	m.metrics.txBuffers.Inc()
	m.metrics.txBytes.Add(float64(len(job.Payload)))
	return nil
}

func (m *Modem) setPAEnable(set bool) {
	if m.paEnable == nil {
		return
	}
	v := 0
	if set {
		v = 1
	}
	err := m.paEnable.SetValue(v)
	if err != nil {
		log.Printf("[DEBUG] PA enable %v: %v", set, err)
	}
}
