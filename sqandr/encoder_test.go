package sqandr

import (
	"bytes"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncoder_Sizing(t *testing.T) {
	e := NewEncoder()
	tests := []struct {
		name     string
		capacity int
		n        int
		symbols  int
		max      int
		fits     bool
	}{
		{"default buffer, one byte", DefaultTXBufferSamples, 1, 79, 221, true},
		{"default buffer, max", DefaultTXBufferSamples, 221, 13279, 221, true},
		{"default buffer, one over", DefaultTXBufferSamples, 222, 13339, 221, false},
		{"guard only", 19, 0, 19, 0, true},
		{"smaller than guard", 10, 0, 19, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.SymbolCount(tt.n); got != tt.symbols {
				t.Errorf("SymbolCount(%d) = %d, want %d", tt.n, got, tt.symbols)
			}
			if got := e.MaxPayload(tt.capacity); got != tt.max {
				t.Errorf("MaxPayload(%d) = %d, want %d", tt.capacity, got, tt.max)
			}
			if got := e.Fits(tt.n, tt.capacity); got != tt.fits {
				t.Errorf("Fits(%d, %d) = %v, want %v", tt.n, tt.capacity, got, tt.fits)
			}
		})
	}
}

func TestEncoder_Layout(t *testing.T) {
	e := NewEncoder()
	buf := make([]Sample, 200)
	n, err := e.Encode(TransmitJob{Payload: []byte{0x81}}, buf)
	require.NoError(t, err)
	require.Equal(t, 19+3*20, n)

	for i := range 19 {
		assert.Equal(t, guardSample, buf[i], "guard sample %d", i)
	}
	var want []Sample
	for range 3 {
		for i := HeaderBits - 1; i >= 0; i-- {
			want = append(want, EncodeBit(Bit(NormalHeader>>i&1)))
		}
		for _, b := range []Bit{1, 0, 0, 0, 0, 0, 0, 1} {
			want = append(want, EncodeBit(b))
		}
	}
	assert.Equal(t, want, buf[19:n])
	for i := n; i < len(buf); i++ {
		assert.Equal(t, idleSample, buf[i], "idle sample %d", i)
	}
}

func TestEncoder_EmptyJob(t *testing.T) {
	e := NewEncoder()
	buf := make([]Sample, 40)
	n, err := e.Encode(TransmitJob{}, buf)
	require.NoError(t, err)
	assert.Equal(t, 19, n)
	assert.Equal(t, idleSample, buf[39])
}

func TestEncoder_Overrun(t *testing.T) {
	e := NewEncoder()
	buf := make([]Sample, 100)
	for i := range buf {
		buf[i] = Sample{7, 7}
	}
	before := slices.Clone(buf)
	_, err := e.Encode(TransmitJob{Payload: []byte{1, 2}}, buf)
	if !errors.Is(err, ErrBufferOverrun) {
		t.Fatalf("Encode() error = %v, want ErrBufferOverrun", err)
	}
	if !slices.Equal(buf, before) {
		t.Error("Encode() wrote to the buffer before rejecting the job")
	}
}

// loopSamples is what a receiver sees for a transmit buffer.
func loopSamples(tx []Sample, p Polarity) []Sample {
	rx := make([]Sample, len(tx))
	for i, s := range tx {
		if p == Inverted {
			s = Sample{-s.I, -s.Q}
		}
		rx[i] = Sample{s.I >> amplitudeShift, s.Q >> amplitudeShift}
	}
	return rx
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e := NewEncoder()
		p := rapid.SampledFrom([]Polarity{Normal, Inverted}).Draw(t, "polarity")
		payload := rapid.SliceOfN(rapid.Byte(), 1, e.MaxPayload(DefaultTXBufferSamples)).Draw(t, "payload")

		buf := make([]Sample, DefaultTXBufferSamples)
		_, err := e.Encode(TransmitJob{Payload: payload}, buf)
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		d := NewDecoder(SqANPreamble, 3*len(payload))
		r := d.DecodeBuffer(loopSamples(buf, p))

		want := bytes.Repeat(payload, 3)
		if !bytes.Equal(r.Bytes, want) {
			t.Fatalf("decoded % x, want % x", r.Bytes, want)
		}
		if r.Stats.Dropped != 0 {
			t.Fatalf("dropped %d bytes", r.Stats.Dropped)
		}
		if p == Inverted && r.Stats.InvertedHeaders != 3*len(payload) {
			t.Fatalf("inverted headers = %d, want %d", r.Stats.InvertedHeaders, 3*len(payload))
		}
	})
}
