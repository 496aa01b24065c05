package sqandr

import (
	"errors"
	"fmt"
)

const (
	DefaultRepetitions  = 3
	DefaultGuardSymbols = 19
	symbolsPerByte      = HeaderBits + bitsPerByte
)

// ErrBufferOverrun is returned when a job does not fit in one transmit buffer.
var ErrBufferOverrun = errors.New("transmit job larger than transmit buffer")

// TransmitJob is a batch of outbound bytes destined for one transmit buffer.
type TransmitJob struct {
	Payload    []byte
	Diagnostic bool
}

// Encoder serializes transmit jobs into I/Q symbols. Each byte is sent as the
// sync header followed by the byte, and the whole sequence is repeated
// Repetitions times; receivers see each byte Repetitions times.
type Encoder struct {
	Repetitions  int
	GuardSymbols int
	Header       uint16
}

func NewEncoder() *Encoder {
	return &Encoder{
		Repetitions:  DefaultRepetitions,
		GuardSymbols: DefaultGuardSymbols,
		Header:       NormalHeader,
	}
}

// SymbolCount returns how many samples n payload bytes encode to, excluding
// the idle padding.
func (e *Encoder) SymbolCount(n int) int {
	return e.GuardSymbols + e.Repetitions*n*symbolsPerByte
}

// MaxPayload returns the largest job size that fits in capacity samples.
func (e *Encoder) MaxPayload(capacity int) int {
	free := capacity - e.GuardSymbols
	if free <= 0 || e.Repetitions <= 0 {
		return 0
	}
	return free / (e.Repetitions * symbolsPerByte)
}

// Fits reports whether n payload bytes fit in capacity samples.
func (e *Encoder) Fits(n, capacity int) bool {
	return e.SymbolCount(n) <= capacity
}

// Encode writes job into buf and fills the remainder with idle padding. It
// returns the number of samples that carry the guard and the payload. If the
// job does not fit, buf is left untouched and ErrBufferOverrun is returned.
func (e *Encoder) Encode(job TransmitJob, buf []Sample) (int, error) {
	need := e.SymbolCount(len(job.Payload))
	if need > len(buf) {
		return 0, fmt.Errorf("%d bytes need %d samples, buffer holds %d: %w",
			len(job.Payload), need, len(buf), ErrBufferOverrun)
	}
	n := 0
	for range e.GuardSymbols {
		buf[n] = guardSample
		n++
	}
	for range e.Repetitions {
		for _, b := range job.Payload {
			for i := HeaderBits - 1; i >= 0; i-- {
				buf[n] = EncodeBit(Bit(e.Header >> i & 1))
				n++
			}
			for i := bitsPerByte - 1; i >= 0; i-- {
				buf[n] = EncodeBit(Bit(b >> i & 1))
				n++
			}
		}
	}
	for i := n; i < len(buf); i++ {
		buf[i] = idleSample
	}
	return n, nil
}
