package sqandr

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned by front ends for operations they can't perform.
var ErrUnsupported = errors.New("unsupported")

var (
	errClosed    = errors.New("front end is shut down")
	errExhausted = errors.New("no more receive buffers")
)

type Direction int

const (
	RX Direction = iota
	TX
)

func (d Direction) String() string {
	if d == TX {
		return "TX"
	}
	return "RX"
}

// StreamConfig holds the analog settings of one stream direction.
type StreamConfig struct {
	LOHz         int64
	BandwidthHz  int64
	SampleRateHz int64
	Port         string
	// GainDB is the hardware gain, negative for TX attenuation.
	GainDB float64
}

func (c StreamConfig) String() string {
	return fmt.Sprintf("LO %d Hz, bandwidth %d Hz, sample rate %d S/s, port %s, gain %.1f dB",
		c.LOHz, c.BandwidthHz, c.SampleRateHz, c.Port, c.GainDB)
}

// MHz converts a value in MHz to Hz, rounding to the nearest Hz.
func MHz(x float64) int64 {
	return int64(x*1000000.0 + .5)
}

// RadioFrontEnd is the hardware side of the modem. Buffer capacities are fixed
// when the front end is created.
type RadioFrontEnd interface {
	Configure(d Direction, cfg StreamConfig) error
	// AcquireReceiveBuffer blocks until a full receive buffer is available. The
	// returned slice is only valid until the next call.
	AcquireReceiveBuffer() ([]Sample, error)
	// TransmitBuffer returns the buffer the next SubmitTransmitBuffer sends.
	TransmitBuffer() []Sample
	// SubmitTransmitBuffer blocks until the front end accepts the buffer.
	SubmitTransmitBuffer() error
	Shutdown() error
}

// Line is an output line such as a PA enable GPIO.
type Line interface {
	SetValue(value int) error
	Close() error
}
