package sqandr

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rxSample is what a receive buffer holds for a transmitted bit.
func rxSample(b Bit, p Polarity) Sample {
	s := EncodeBit(b)
	if p == Inverted {
		s = Sample{-s.I, -s.Q}
	}
	return Sample{s.I >> amplitudeShift, s.Q >> amplitudeShift}
}

func rxBits(p Polarity, v uint16, n int) []Sample {
	var out []Sample
	for i := n - 1; i >= 0; i-- {
		out = append(out, rxSample(Bit(v>>i&1), p))
	}
	return out
}

// rxFrame returns the receive samples for header+byte for each of bs.
func rxFrame(p Polarity, bs ...byte) []Sample {
	var out []Sample
	for _, b := range bs {
		out = append(out, rxBits(p, NormalHeader, HeaderBits)...)
		out = append(out, rxBits(p, uint16(b), bitsPerByte)...)
	}
	return out
}

func TestDecoderState_Step(t *testing.T) {
	for _, p := range []Polarity{Normal, Inverted} {
		t.Run(p.String(), func(t *testing.T) {
			var s DecoderState
			header := rxBits(p, NormalHeader, HeaderBits)
			for i, smp := range header {
				var ok bool
				s, _, ok = s.Step(AmplitudeOf(smp))
				require.False(t, ok, "byte completed during header")
				if i < len(header)-1 {
					require.Equal(t, SearchingHeader, s.Mode, "header detected early at bit %d", i)
				}
			}
			assert.Equal(t, CollectingByte, s.Mode)
			assert.Equal(t, p, s.Polarity)
			assert.Equal(t, uint16(0), s.Header)

			var got []byte
			for _, smp := range rxBits(p, 0xA5, bitsPerByte) {
				var b byte
				var ok bool
				s, b, ok = s.Step(AmplitudeOf(smp))
				if ok {
					got = append(got, b)
				}
			}
			assert.Equal(t, []byte{0xA5}, got)
			assert.Equal(t, SearchingHeader, s.Mode)
		})
	}
}

func TestDecoderState_StepIsPure(t *testing.T) {
	s := DecoderState{Mode: CollectingByte, Acc: 0x3, BitCount: 2, Ref: 100}
	before := s
	next, _, _ := s.Step(20000)
	if !reflect.DeepEqual(s, before) {
		t.Errorf("Step() mutated its receiver: %+v, want %+v", s, before)
	}
	if next.BitCount != 3 || next.Acc != 0x7 || next.Ref != 10000 {
		t.Errorf("Step() = %+v, want BitCount 3, Acc 0x7, Ref 10000", next)
	}
}

func TestDecoder_DecodeBuffer(t *testing.T) {
	tests := []struct {
		name     string
		samples  []Sample
		want     []byte
		preamble bool
		normal   int
		inverted int
	}{
		{"normal", rxFrame(Normal, 0x66, 0x99, 0x01), []byte{0x66, 0x99, 0x01}, true, 3, 0},
		{"inverted", rxFrame(Inverted, 0x66, 0x99, 0xfe), []byte{0x66, 0x99, 0xfe}, true, 0, 3},
		{"no preamble", rxFrame(Normal, 0x12, 0x34), []byte{0x12, 0x34}, false, 2, 0},
		{"silence", make([]Sample, 100), nil, false, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder(SqANPreamble, 0)
			r := d.DecodeBuffer(tt.samples)
			assert.Equal(t, tt.want, nilIfEmpty(r.Bytes))
			assert.Equal(t, tt.preamble, r.PreambleFound)
			assert.Equal(t, tt.normal, r.Stats.NormalHeaders)
			assert.Equal(t, tt.inverted, r.Stats.InvertedHeaders)
			assert.Equal(t, len(tt.samples), r.Stats.Samples)
		})
	}
}

func nilIfEmpty(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

func TestDecoderContinuityAcrossBuffers(t *testing.T) {
	frame := rxFrame(Normal, 0xC3)
	split := HeaderBits + 4
	d := NewDecoder(SqANPreamble, 0)

	r1 := d.DecodeBuffer(frame[:split])
	assert.Empty(t, r1.Bytes)
	assert.Equal(t, CollectingByte, d.State().Mode)
	assert.Equal(t, 4, d.State().BitCount)

	r2 := d.DecodeBuffer(frame[split:])
	assert.Equal(t, []byte{0xC3}, r2.Bytes)
	assert.Equal(t, SearchingHeader, d.State().Mode)
}

func TestDecoderOutputOverflow(t *testing.T) {
	d := NewDecoder(SqANPreamble, 2)
	r := d.DecodeBuffer(rxFrame(Normal, 1, 2, 3))
	assert.Equal(t, []byte{1, 2}, r.Bytes)
	assert.Equal(t, 3, r.Stats.Decoded)
	assert.Equal(t, 1, r.Stats.Dropped)

	// the next cycle starts with an empty output
	r = d.DecodeBuffer(rxFrame(Normal, 4))
	assert.Equal(t, []byte{4}, r.Bytes)
	assert.Equal(t, 0, r.Stats.Dropped)
}

func TestDecoderPreambleFedWhenFull(t *testing.T) {
	d := NewDecoder(SqANPreamble, 1)
	r := d.DecodeBuffer(rxFrame(Normal, 0x00, 0x66, 0x99))
	assert.Equal(t, []byte{0x00}, r.Bytes)
	assert.True(t, r.PreambleFound)
}

func TestDecoderAmplitudeSpan(t *testing.T) {
	d := NewDecoder(SqANPreamble, 0)
	r := d.DecodeBuffer([]Sample{{10, 0}, {-20, 0}, {5, 0}})
	assert.Equal(t, Amplitude(-320), r.Stats.Amplitude.Min)
	assert.Equal(t, Amplitude(160), r.Stats.Amplitude.Max)
	assert.Equal(t, "[-320, 160]", r.Stats.Amplitude.String())
}
