package sqandr

// Transmit levels. I and Q always carry the same value; only the sign of the
// amplitude carries information.
const (
	signalHigh = int16(20000)
	signalLow  = int16(-20000)
	guardLevel = int16(25000)
	idleLevel  = int16(-25000)
)

// AD9361 samples are 12 bits wide in a 16 bit slot
const amplitudeShift = 4

// Sample is one I/Q slot of a hardware buffer.
type Sample struct {
	I int16
	Q int16
}

// Amplitude is the scalar used for differential bit decisions.
type Amplitude int32

// Bit is a recovered or transmitted binary digit, 0 or 1.
type Bit uint8

// Polarity is the signal polarity detected from the sync header.
type Polarity uint8

const (
	Normal Polarity = iota
	Inverted
)

func (p Polarity) String() string {
	switch p {
	case Normal:
		return "normal"
	case Inverted:
		return "inverted"
	}
	return "unknown"
}

var (
	guardSample = Sample{guardLevel, guardLevel}
	idleSample  = Sample{idleLevel, idleLevel}
)

// AmplitudeOf returns the I component scaled to the full bus width.
func AmplitudeOf(s Sample) Amplitude {
	return Amplitude(s.I) << amplitudeShift
}

// Reference returns the value the next sample is compared against. Halving the
// previous amplitude lets runs of identical symbols still register a delta.
func Reference(a Amplitude) Amplitude {
	return a / 2
}

// DecideBit recovers one bit by comparing a to the reference carried over from
// the previous sample.
func DecideBit(a, ref Amplitude, p Polarity) Bit {
	if p == Inverted {
		if a <= ref {
			return 1
		}
		return 0
	}
	if a >= ref {
		return 1
	}
	return 0
}

// EncodeBit returns the transmit sample for one bit.
func EncodeBit(b Bit) Sample {
	if b != 0 {
		return Sample{signalHigh, signalHigh}
	}
	return Sample{signalLow, signalLow}
}
