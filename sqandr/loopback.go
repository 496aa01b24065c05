package sqandr

import (
	"log"
	"math/rand/v2"
)

// Loopback is an in-memory front end. Every submitted transmit buffer comes
// back, in order, as a receive buffer. When nothing has been transmitted,
// receive buffers are filled with noise.
type Loopback struct {
	rx      []Sample
	tx      []Sample
	queue   [][]Sample
	noise   int16
	invert  bool
	rnd     *rand.Rand
	limit   int // receive buffers left before reporting io errors, <0 for none
	shut    bool
	configs map[Direction]StreamConfig
}

// NewLoopback creates a loopback front end. noise is the peak amplitude of the
// idle noise; invert negates every looped back sample to exercise the inverted
// sync header.
func NewLoopback(rxCapacity, txCapacity int, noise int16, invert bool) *Loopback {
	return &Loopback{
		rx:      make([]Sample, rxCapacity),
		tx:      make([]Sample, txCapacity),
		noise:   noise,
		invert:  invert,
		rnd:     rand.New(rand.NewPCG(1, 2)),
		limit:   -1,
		configs: make(map[Direction]StreamConfig),
	}
}

// Inject queues samples to be returned by AcquireReceiveBuffer. Each call is
// split into receive-buffer sized chunks.
func (l *Loopback) Inject(samples []Sample) {
	for len(samples) > 0 {
		n := min(len(samples), len(l.rx))
		chunk := make([]Sample, n)
		copy(chunk, samples[:n])
		l.queue = append(l.queue, chunk)
		samples = samples[n:]
	}
}

// StopAfter makes the front end fail after n more receive buffers.
func (l *Loopback) StopAfter(n int) {
	l.limit = n
}

func (l *Loopback) Configure(d Direction, cfg StreamConfig) error {
	log.Printf("[DEBUG] loopback %s: %s", d, cfg)
	l.configs[d] = cfg
	return nil
}

func (l *Loopback) AcquireReceiveBuffer() ([]Sample, error) {
	if l.shut {
		return nil, errClosed
	}
	if l.limit == 0 {
		return nil, errExhausted
	}
	if l.limit > 0 {
		l.limit--
	}
	buf := l.rx[:0]
	if len(l.queue) > 0 {
		buf = append(buf, l.queue[0]...)
		l.queue = l.queue[1:]
	}
	for len(buf) < cap(l.rx) {
		buf = append(buf, l.noiseSample())
	}
	return buf, nil
}

func (l *Loopback) noiseSample() Sample {
	if l.noise <= 0 {
		return Sample{}
	}
	n := int32(l.noise)
	return Sample{
		I: int16(l.rnd.Int32N(2*n+1) - n),
		Q: int16(l.rnd.Int32N(2*n+1) - n),
	}
}

func (l *Loopback) TransmitBuffer() []Sample {
	return l.tx
}

func (l *Loopback) SubmitTransmitBuffer() error {
	if l.shut {
		return errClosed
	}
	out := make([]Sample, len(l.tx))
	for i, s := range l.tx {
		if l.invert {
			s = Sample{-s.I, -s.Q}
		}
		// the receive side sees 12 bit samples
		out[i] = Sample{s.I >> amplitudeShift, s.Q >> amplitudeShift}
	}
	l.Inject(out)
	return nil
}

func (l *Loopback) Shutdown() error {
	log.Print("[DEBUG] loopback Shutdown()")
	l.shut = true
	l.queue = nil
	return nil
}
