package sqandr

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/creack/pty"
	"go.bug.st/serial"
)

const defaultHostBaud = 115200

// HostConn is the byte stream to the host application.
type HostConn struct {
	In  io.Reader
	Out io.Writer
	// Name is a path the host can open, if there is one.
	Name    string
	closers []io.Closer
}

// OpenHost opens a host endpoint:
//
//	"" or "stdio"              standard input and output
//	"pty"                      a new pseudo terminal; the host opens Name
//	"serial:/dev/ttyGS0[@baud]" a serial port, e.g. a USB gadget
func OpenHost(endpoint string) (*HostConn, error) {
	switch {
	case endpoint == "" || endpoint == "stdio":
		return &HostConn{In: os.Stdin, Out: os.Stdout, Name: "stdio"}, nil
	case endpoint == "pty":
		ptmx, tty, err := pty.Open()
		if err != nil {
			return nil, fmt.Errorf("open host pty: %w", err)
		}
		log.Printf("[INFO] Host pty is %s", tty.Name())
		return &HostConn{In: ptmx, Out: ptmx, Name: tty.Name(), closers: []io.Closer{ptmx, tty}}, nil
	case strings.HasPrefix(endpoint, "serial:"):
		path, baud, err := parseSerialEndpoint(strings.TrimPrefix(endpoint, "serial:"))
		if err != nil {
			return nil, err
		}
		port, err := serial.Open(path, &serial.Mode{BaudRate: baud})
		if err != nil {
			return nil, fmt.Errorf("open host serial port %s: %w", path, err)
		}
		log.Printf("[INFO] Host serial port %s at %d baud", path, baud)
		return &HostConn{In: port, Out: port, Name: path, closers: []io.Closer{port}}, nil
	}
	return nil, fmt.Errorf("unknown host endpoint %q", endpoint)
}

func parseSerialEndpoint(s string) (string, int, error) {
	path, baudStr, ok := strings.Cut(s, "@")
	if path == "" {
		return "", 0, fmt.Errorf("serial host endpoint needs a device path")
	}
	if !ok {
		return path, defaultHostBaud, nil
	}
	baud, err := strconv.Atoi(baudStr)
	if err != nil || baud <= 0 {
		return "", 0, fmt.Errorf("bad baud rate %q", baudStr)
	}
	return path, baud, nil
}

func (h *HostConn) Close() error {
	var errs []error
	for _, c := range h.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// NonBlocking returns a reader whose Read returns 0, nil instead of waiting
// when no data is available. Files are switched to non-blocking mode where the
// platform allows it; anything else is drained by a goroutine.
func NonBlocking(r io.Reader) io.Reader {
	if f, ok := r.(*os.File); ok {
		nb, err := nonBlockingFile(f)
		if err == nil {
			return nb
		}
		log.Printf("[DEBUG] Falling back to polled reads on %s: %v", f.Name(), err)
	}
	return newPumpReader(r)
}

// pumpReader moves blocking reads to a goroutine.
type pumpReader struct {
	chunks  chan []byte
	pending []byte
	mu      sync.Mutex
	err     error
}

func newPumpReader(r io.Reader) *pumpReader {
	p := &pumpReader{chunks: make(chan []byte, 16)}
	go p.pump(r)
	return p
}

func (p *pumpReader) pump(r io.Reader) {
	defer close(p.chunks)
	for {
		buf := make([]byte, 4096)
		n, err := r.Read(buf)
		if n > 0 {
			p.chunks <- buf[:n]
		}
		if err != nil {
			p.mu.Lock()
			p.err = err
			p.mu.Unlock()
			return
		}
	}
}

func (p *pumpReader) Read(b []byte) (int, error) {
	if len(p.pending) == 0 {
		select {
		case c, ok := <-p.chunks:
			if !ok {
				p.mu.Lock()
				defer p.mu.Unlock()
				return 0, p.err
			}
			p.pending = c
		default:
			return 0, nil
		}
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}
