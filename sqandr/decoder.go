package sqandr

const (
	HeaderBits = 12
	HeaderMask = uint16(0x0FFF)
	// NormalHeader precedes every transmitted byte.
	NormalHeader = uint16(0b1011_0101_0011)
	// InvertedHeader is NormalHeader as seen through an inverted signal path.
	InvertedHeader = uint16(0b0100_1010_1100)
	bitsPerByte    = 8
)

// DefaultCycleCapacity is the number of bytes a single receive cycle reports.
const DefaultCycleCapacity = 512

type DecoderMode uint8

const (
	SearchingHeader DecoderMode = iota
	CollectingByte
)

func (m DecoderMode) String() string {
	switch m {
	case SearchingHeader:
		return "searching header"
	case CollectingByte:
		return "collecting byte"
	}
	return "unknown"
}

// DecoderState is the decoder state that lives for the whole run. It is a value
// type; Step never mutates its receiver.
type DecoderState struct {
	Mode     DecoderMode
	Polarity Polarity
	Header   uint16    // last HeaderBits bits, while searching
	Acc      byte      // payload bits, while collecting
	BitCount int       // payload bits collected so far
	Ref      Amplitude // reference for the next bit decision
}

// Step consumes one amplitude. It returns the next state and, when this sample
// completed a byte, the byte and true.
func (s DecoderState) Step(a Amplitude) (DecoderState, byte, bool) {
	next := s
	next.Ref = Reference(a)
	switch s.Mode {
	case SearchingHeader:
		next.Header = (s.Header<<1 | uint16(DecideBit(a, s.Ref, Normal))) & HeaderMask
		switch next.Header {
		case NormalHeader:
			next.startByte(Normal)
		case InvertedHeader:
			next.startByte(Inverted)
		}
	case CollectingByte:
		next.Acc = s.Acc<<1 | byte(DecideBit(a, s.Ref, s.Polarity))
		next.BitCount++
		if next.BitCount >= bitsPerByte {
			// resync on a fresh header before every byte
			next.Mode = SearchingHeader
			return next, next.Acc, true
		}
	}
	return next, 0, false
}

func (s *DecoderState) startByte(p Polarity) {
	s.Mode = CollectingByte
	s.Polarity = p
	s.Header = 0
	s.Acc = 0
	s.BitCount = 0
}

// RunState holds everything that persists across receive cycles.
type RunState struct {
	Decoder DecoderState
}

func NewRunState() *RunState {
	return &RunState{}
}

// CycleState holds everything scoped to a single receive buffer pass. A new
// one is built for every cycle, so a preamble split across two buffers is
// never recognized.
type CycleState struct {
	Preamble *PreambleMatcher
	Output   *Bounded[byte]
	Stats    CycleStats
}

func NewCycleState(preamble []byte, capacity int) *CycleState {
	return &CycleState{
		Preamble: NewPreambleMatcher(preamble),
		Output:   NewBounded[byte](capacity),
	}
}

func (c *CycleState) accept(b byte) {
	c.Preamble.Feed(b)
	c.Stats.Decoded++
	if !c.Output.Push(b) {
		c.Stats.Dropped++
	}
}

// CycleResult is what one receive buffer decoded to.
type CycleResult struct {
	Bytes         []byte
	PreambleFound bool
	Stats         CycleStats
}

// Decoder recovers bytes from receive buffers, one cycle at a time. Buffers
// must be decoded in arrival order.
type Decoder struct {
	run      *RunState
	preamble []byte
	capacity int
}

func NewDecoder(preamble []byte, capacity int) *Decoder {
	if capacity <= 0 {
		capacity = DefaultCycleCapacity
	}
	return &Decoder{
		run:      NewRunState(),
		preamble: preamble,
		capacity: capacity,
	}
}

// State returns a copy of the run-scoped decoder state.
func (d *Decoder) State() DecoderState {
	return d.run.Decoder
}

func (d *Decoder) DecodeBuffer(samples []Sample) CycleResult {
	c := NewCycleState(d.preamble, d.capacity)
	s := d.run.Decoder
	for _, smp := range samples {
		a := AmplitudeOf(smp)
		c.Stats.Amplitude.Add(a)
		next, b, ok := s.Step(a)
		if s.Mode == SearchingHeader && next.Mode == CollectingByte {
			if next.Polarity == Inverted {
				c.Stats.InvertedHeaders++
			} else {
				c.Stats.NormalHeaders++
			}
		}
		if ok {
			c.accept(b)
		}
		s = next
	}
	d.run.Decoder = s
	c.Stats.Samples = len(samples)
	return CycleResult{
		Bytes:         c.Output.Items(),
		PreambleFound: c.Preamble.Found(),
		Stats:         c.Stats,
	}
}
