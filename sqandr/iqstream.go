package sqandr

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"

	"go.bug.st/serial"
)

const bytesPerSample = 4

// IQStream is a front end that exchanges interleaved little endian int16 I/Q
// samples over a byte stream, e.g. with an IIO streaming bridge or the
// iq-emulator.
type IQStream struct {
	conn    io.ReadWriteCloser
	rx      []Sample
	tx      []Sample
	rxRaw   []byte
	txRaw   []byte
	configs map[Direction]StreamConfig
}

func NewIQStream(conn io.ReadWriteCloser, rxCapacity, txCapacity int) *IQStream {
	return &IQStream{
		conn:    conn,
		rx:      make([]Sample, rxCapacity),
		tx:      make([]Sample, txCapacity),
		rxRaw:   make([]byte, rxCapacity*bytesPerSample),
		txRaw:   make([]byte, txCapacity*bytesPerSample),
		configs: make(map[Direction]StreamConfig),
	}
}

// OpenIQStream connects to addr. A unix socket path is dialed, any other
// existing path is opened as a serial port at baudRate, and host:port is
// dialed over TCP.
func OpenIQStream(addr string, baudRate int, rxCapacity, txCapacity int) (*IQStream, error) {
	var conn io.ReadWriteCloser
	fi, err := os.Stat(addr)
	switch {
	case err == nil && fi.Mode()&os.ModeSocket == os.ModeSocket:
		log.Printf("[DEBUG] Opening I/Q socket %s", addr)
		conn, err = net.Dial("unix", addr)
		if err != nil {
			return nil, fmt.Errorf("I/Q socket open: %w", err)
		}
	case err == nil:
		log.Printf("[DEBUG] Opening I/Q serial port %s at %d baud", addr, baudRate)
		mode := &serial.Mode{
			BaudRate: baudRate,
		}
		conn, err = serial.Open(addr, mode)
		if err != nil {
			return nil, fmt.Errorf("I/Q serial open: %w", err)
		}
	case strings.Contains(addr, ":"):
		log.Printf("[DEBUG] Opening I/Q TCP stream %s", addr)
		conn, err = net.Dial("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("I/Q tcp open: %w", err)
		}
	default:
		return nil, fmt.Errorf("I/Q stream stat: %w", err)
	}
	return NewIQStream(conn, rxCapacity, txCapacity), nil
}

// Configure records the stream settings. The far end of the stream owns the
// hardware, so they are only logged.
func (s *IQStream) Configure(d Direction, cfg StreamConfig) error {
	log.Printf("[INFO] %s stream: %s", d, cfg)
	s.configs[d] = cfg
	return nil
}

func (s *IQStream) AcquireReceiveBuffer() ([]Sample, error) {
	_, err := io.ReadFull(s.conn, s.rxRaw)
	if err != nil {
		return nil, fmt.Errorf("refill receive buffer: %w", err)
	}
	for i := range s.rx {
		b := s.rxRaw[i*bytesPerSample:]
		s.rx[i] = Sample{
			I: int16(binary.LittleEndian.Uint16(b[0:2])),
			Q: int16(binary.LittleEndian.Uint16(b[2:4])),
		}
	}
	return s.rx, nil
}

func (s *IQStream) TransmitBuffer() []Sample {
	return s.tx
}

func (s *IQStream) SubmitTransmitBuffer() error {
	for i, smp := range s.tx {
		b := s.txRaw[i*bytesPerSample:]
		binary.LittleEndian.PutUint16(b[0:2], uint16(smp.I))
		binary.LittleEndian.PutUint16(b[2:4], uint16(smp.Q))
	}
	_, err := s.conn.Write(s.txRaw)
	if err != nil {
		return fmt.Errorf("push transmit buffer: %w", err)
	}
	return nil
}

func (s *IQStream) Shutdown() error {
	log.Print("[DEBUG] I/Q stream Shutdown()")
	err := s.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
