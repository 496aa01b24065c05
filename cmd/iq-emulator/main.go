// Command iq-emulator stands in for the radio. It listens on a unix socket,
// takes the transmit buffers a modem writes and plays them back as receive
// buffers, filling the gaps with noise.
package main

import (
	"encoding/binary"
	"errors"
	"flag"
	"io"
	"log"
	"math"
	"math/rand/v2"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/logutils"
)

const (
	bytesPerSample = 4
	// the receive side sees 12 bit samples
	rxShift = 4
)

var (
	socketArg   *string  = flag.String("socket", "/tmp/sqandr-iq.sock", "Unix socket to listen on")
	rxBufferArg *int     = flag.Int("rxbuffer", 19*1400, "Samples per receive buffer")
	rateArg     *float64 = flag.Float64("rate", 4, "Sample rate in MS/s, paces the receive buffers")
	noiseArg    *int     = flag.Int("noise", 40, "Peak amplitude of the idle noise, in receive units")
	invertArg   *bool    = flag.Bool("invert", false, "Invert the played back signal")
	bufSizeArg  *int     = flag.Int("bufsize", 1, "Seconds of transmitted samples to hold")
	isDebugArg  *bool    = flag.Bool("debug", false, "Emit debug log messages")
)

func main() {
	flag.Parse()
	minLogLevel := "INFO"
	if *isDebugArg {
		minLogLevel = "DEBUG"
	}
	log.SetOutput(&logutils.LevelFilter{
		Levels:   []logutils.LogLevel{"DEBUG", "INFO", "ERROR"},
		MinLevel: logutils.LogLevel(minLogLevel),
		Writer:   os.Stderr,
	})

	os.Remove(*socketArg)
	l, err := net.Listen("unix", *socketArg)
	if err != nil {
		log.Fatalf("Listen: %v", err)
	}
	log.Printf("[INFO] Listening on %s", *socketArg)

	// Cleanup the socket
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		l.Close()
		os.Remove(*socketArg)
		os.Exit(1)
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			log.Fatalf("Accept: %v", err)
		}
		log.Print("[INFO] Modem connected")
		serve(conn)
		log.Print("[INFO] Modem disconnected")
	}
}

func serve(conn net.Conn) {
	samplesPerSecond := int(*rateArg * 1e6)
	r := NewRepeater(*bufSizeArg*samplesPerSecond, int16(*noiseArg), *invertArg)

	done := make(chan struct{})
	defer func() {
		conn.Close()
		<-done
		close(r.TXSamples())
	}()
	go func() {
		defer close(done)
		buf := make([]byte, 64*1024)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				b := make([]byte, n)
				copy(b, buf[:n])
				r.TXSamples() <- b
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					log.Printf("[ERROR] Read: %v", err)
				}
				return
			}
		}
	}()

	period := time.Duration(float64(*rxBufferArg) / float64(samplesPerSecond) * float64(time.Second))
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			_, err := conn.Write(r.Next(*rxBufferArg))
			if err != nil {
				log.Printf("[ERROR] Write: %v", err)
				return
			}
		}
	}
}

type sample [bytesPerSample]byte

// Repeater plays transmitted samples back in order.
type Repeater struct {
	source  chan []byte // raw transmitted I/Q
	samples chan sample // scaled samples waiting to be played back
	noise   int16
	invert  bool
	partial []byte
}

// Create a new Repeater that holds up to bufSize samples
func NewRepeater(bufSize int, noise int16, invert bool) *Repeater {
	r := &Repeater{
		source:  make(chan []byte),
		samples: make(chan sample, bufSize),
		noise:   noise,
		invert:  invert,
	}
	go r.handle()
	return r
}

func (r *Repeater) handle() {
	for b := range r.source {
		b = append(r.partial, b...)
		dropped := 0
		for len(b) >= bytesPerSample {
			select {
			case r.samples <- r.scale(b[:bytesPerSample]):
			default:
				dropped++
			}
			b = b[bytesPerSample:]
		}
		if dropped > 0 {
			log.Printf("[ERROR] Playback buffer full, dropped %d samples", dropped)
		}
		r.partial = append([]byte{}, b...)
	}
}

func (r *Repeater) scale(b []byte) sample {
	i := int16(binary.LittleEndian.Uint16(b[0:2]))
	q := int16(binary.LittleEndian.Uint16(b[2:4]))
	if r.invert {
		i, q = negate(i), negate(q)
	}
	var s sample
	binary.LittleEndian.PutUint16(s[0:2], uint16(i>>rxShift))
	binary.LittleEndian.PutUint16(s[2:4], uint16(q>>rxShift))
	return s
}

// negate saturates, since -math.MinInt16 does not fit in an int16
func negate(v int16) int16 {
	if v == math.MinInt16 {
		return math.MaxInt16
	}
	return -v
}

// the channel used to supply transmitted bytes
func (r *Repeater) TXSamples() chan []byte {
	return r.source
}

// Next returns n samples, filling with noise if we don't have enough
func (r *Repeater) Next(n int) []byte {
	ret := make([]byte, 0, n*bytesPerSample)
	var txSamples, noiseSamples int
	for range n {
		select {
		case s := <-r.samples:
			ret = append(ret, s[:]...)
			txSamples++
		default:
			s := r.noiseSample()
			ret = append(ret, s[:]...)
			noiseSamples++
		}
	}
	if txSamples > 0 {
		log.Printf("[DEBUG] Returning %d TX samples, %d noise samples", txSamples, noiseSamples)
	}
	return ret
}

func (r *Repeater) noiseSample() sample {
	var s sample
	if r.noise <= 0 {
		return s
	}
	n := int32(r.noise)
	binary.LittleEndian.PutUint16(s[0:2], uint16(int16(rand.Int32N(2*n+1)-n)))
	binary.LittleEndian.PutUint16(s[2:4], uint16(int16(rand.Int32N(2*n+1)-n)))
	return s
}
