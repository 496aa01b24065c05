package sqandr

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
)

// ErrShutdownRequested is returned by a HostReader when the host asks the
// modem to exit.
var ErrShutdownRequested = errors.New("host requested shutdown")

const (
	DefaultBinaryQuota       = 2048
	DefaultHeartbeatInterval = 100

	diagnosticMarker = '*'
	exitCommand      = "e"
)

// Heartbeat is written in binary mode when nothing has been received for a
// while, so the host can tell an idle modem from a dead one.
var Heartbeat = []byte{0x01, 0x02, 0x03, 0x04}

// HostReader produces at most one transmit job per cycle. An empty job means
// there is nothing to send.
type HostReader interface {
	ReadJob() (TransmitJob, error)
}

// HostWriter reports decoded bytes to the host.
type HostWriter interface {
	// Emit reports the bytes decoded in one cycle.
	Emit(b []byte) error
	// Idle is called for every cycle with nothing to report. It returns true
	// if a heartbeat was written.
	Idle() (bool, error)
}

// CycleObserver is implemented by readers that want to see every decoded cycle.
type CycleObserver interface {
	Observe(r CycleResult)
}

// ParseHexLine converts one line of host input into a transmit job. A leading
// '*' marks a diagnostic payload. Malformed lines yield an empty job.
func ParseHexLine(line string) (TransmitJob, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == exitCommand {
		return TransmitJob{}, ErrShutdownRequested
	}
	var job TransmitJob
	if len(line) > 0 && line[0] == diagnosticMarker {
		job.Diagnostic = true
		line = line[1:]
	}
	if len(line) == 0 {
		return TransmitJob{}, nil
	}
	if len(line)%2 != 0 {
		log.Printf("[DEBUG] Ignoring input with partial hex pair: %q", line)
		return TransmitJob{}, nil
	}
	payload, err := hex.DecodeString(line)
	if err != nil {
		log.Printf("[DEBUG] Ignoring malformed input: %v", err)
		return TransmitJob{}, nil
	}
	job.Payload = payload
	return job, nil
}

// HexLineReader reads one line of hex text per cycle. With a non-blocking
// source it returns an empty job when no complete line is pending.
type HexLineReader struct {
	in          io.Reader
	nonBlocking bool
	buf         []byte
	pending     []byte
	eof         bool
}

func NewHexLineReader(in io.Reader, nonBlocking bool) *HexLineReader {
	return &HexLineReader{
		in:          in,
		nonBlocking: nonBlocking,
		buf:         make([]byte, 1024),
	}
}

func (r *HexLineReader) ReadJob() (TransmitJob, error) {
	line, ok, err := r.nextLine()
	if err != nil {
		return TransmitJob{}, err
	}
	if !ok {
		return TransmitJob{}, nil
	}
	return ParseHexLine(line)
}

func (r *HexLineReader) nextLine() (string, bool, error) {
	for {
		if i := bytes.IndexByte(r.pending, '\n'); i >= 0 {
			line := string(r.pending[:i])
			r.pending = append(r.pending[:0], r.pending[i+1:]...)
			return line, true, nil
		}
		if r.eof {
			if len(r.pending) == 0 {
				return "", false, io.EOF
			}
			// last line without a newline
			line := string(r.pending)
			r.pending = r.pending[:0]
			return line, true, nil
		}
		n, err := r.in.Read(r.buf)
		r.pending = append(r.pending, r.buf[:n]...)
		if err == io.EOF {
			r.eof = true
			continue
		}
		if err != nil {
			return "", false, err
		}
		if n == 0 && r.nonBlocking {
			return "", false, nil
		}
	}
}

// BinaryReader reads raw bytes, at most quota per cycle.
type BinaryReader struct {
	in  io.Reader
	buf []byte
}

func NewBinaryReader(in io.Reader, quota int) *BinaryReader {
	if quota <= 0 {
		quota = DefaultBinaryQuota
	}
	return &BinaryReader{in: in, buf: make([]byte, quota)}
}

func (r *BinaryReader) ReadJob() (TransmitJob, error) {
	n, err := r.in.Read(r.buf)
	if n > 0 {
		payload := make([]byte, n)
		copy(payload, r.buf[:n])
		return TransmitJob{Payload: payload}, nil
	}
	if err != nil {
		return TransmitJob{}, err
	}
	return TransmitJob{}, nil
}

// ListenOnly never has anything to transmit.
type ListenOnly struct{}

func (ListenOnly) ReadJob() (TransmitJob, error) { return TransmitJob{}, nil }

// HexWriter reports each cycle as '+' followed by lowercase hex and a newline.
type HexWriter struct {
	w io.Writer
}

func NewHexWriter(w io.Writer) *HexWriter {
	return &HexWriter{w: w}
}

func (h *HexWriter) Emit(b []byte) error {
	line := make([]byte, 0, 2*len(b)+2)
	line = append(line, '+')
	line = hex.AppendEncode(line, b)
	line = append(line, '\n')
	_, err := h.w.Write(line)
	if err != nil {
		return fmt.Errorf("write hex output: %w", err)
	}
	return nil
}

func (h *HexWriter) Idle() (bool, error) { return false, nil }

// BinaryWriter reports raw bytes. After interval consecutive idle cycles it
// writes one Heartbeat and starts counting again.
type BinaryWriter struct {
	w        io.Writer
	interval int
	idle     int
}

func NewBinaryWriter(w io.Writer, interval int) *BinaryWriter {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &BinaryWriter{w: w, interval: interval}
}

func (b *BinaryWriter) Emit(p []byte) error {
	b.idle = 0
	_, err := b.w.Write(p)
	if err != nil {
		return fmt.Errorf("write binary output: %w", err)
	}
	return nil
}

func (b *BinaryWriter) Idle() (bool, error) {
	b.idle++
	if b.idle < b.interval {
		return false, nil
	}
	b.idle = 0
	_, err := b.w.Write(Heartbeat)
	if err != nil {
		return false, fmt.Errorf("write heartbeat: %w", err)
	}
	return true, nil
}
