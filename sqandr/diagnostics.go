package sqandr

import (
	"log"
)

const (
	DefaultDiagnosticSendCycle = 3
	DefaultDiagnosticBudget    = 16
)

// TestPattern is the diagnostic payload: the SqAN preamble followed by three
// runs of 0x00, 0x11 ... 0xff.
var TestPattern = func() []byte {
	p := append([]byte{}, SqANPreamble...)
	for range 3 {
		for i := range 16 {
			p = append(p, byte(i<<4|i))
		}
	}
	return p
}()

// LongestMatch returns the length of the longest run of received that matches
// pattern from its start, and the offset in received where that run begins.
// A mismatch restarts the comparison at the next byte.
func LongestMatch(received, pattern []byte) (length, offset int) {
	idx := 0
	for i, b := range received {
		if idx == len(pattern) {
			break
		}
		if b == pattern[idx] {
			idx++
			if idx > length {
				length = idx
				offset = i + 1 - idx
			}
		} else {
			idx = 0
		}
	}
	return length, offset
}

// DiagnosticSource is a HostReader that transmits Pattern once, on cycle
// SendCycle, then scores every later cycle against it. It asks for shutdown
// once the pattern comes back intact or after Budget cycles.
type DiagnosticSource struct {
	Pattern   []byte
	SendCycle int
	Budget    int

	cycle int
	sent  bool
	best  int
	done  bool
}

func NewDiagnosticSource() *DiagnosticSource {
	return &DiagnosticSource{
		Pattern:   TestPattern,
		SendCycle: DefaultDiagnosticSendCycle,
		Budget:    DefaultDiagnosticBudget,
	}
}

func (d *DiagnosticSource) ReadJob() (TransmitJob, error) {
	if d.done || d.cycle >= d.Budget {
		return TransmitJob{}, ErrShutdownRequested
	}
	defer func() { d.cycle++ }()
	if d.cycle == d.SendCycle {
		log.Printf("[INFO] Diagnostic test is sending %d byte test message", len(d.Pattern))
		d.sent = true
		return TransmitJob{Payload: d.Pattern, Diagnostic: true}, nil
	}
	if d.sent {
		log.Print("[DEBUG] Diagnostic test is listening for last transmission")
	} else {
		log.Print("[DEBUG] Diagnostic test is just listening for noise on the line")
	}
	return TransmitJob{}, nil
}

// Observe scores a decoded cycle against the pattern.
func (d *DiagnosticSource) Observe(r CycleResult) {
	if !d.sent {
		return
	}
	longest, offset := LongestMatch(r.Bytes, d.Pattern)
	d.best = max(d.best, longest)
	log.Printf("[INFO] Longest contiguous match to sequence was %d out of %d bytes (best match so far is %d), crc %04x want %04x",
		longest, len(d.Pattern), d.best, CRC(r.Bytes[offset:offset+longest]), CRC(d.Pattern))
	if longest == len(d.Pattern) {
		log.Print("[INFO] Data received with complete fidelity; shutting down")
		d.done = true
	}
}

// Best returns the longest match seen so far.
func (d *DiagnosticSource) Best() int { return d.best }

// Passed reports whether the pattern was received intact.
func (d *DiagnosticSource) Passed() bool { return d.done }
