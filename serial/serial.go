// Package serial reads terminal lines from a UART into a fixed buffer and
// writes text back with newlines translated for a terminal.
package serial

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"runtime"
)

const (
	// BufferSize is the capacity of the receive buffer. Characters past it
	// are counted but not kept.
	BufferSize = 40

	// DefaultBaudRate of the console UART, 8N1.
	DefaultBaudRate = 57600
)

// UART is the byte-level link a Port runs on. machine.UART satisfies it.
type UART interface {
	io.ByteReader
	io.Writer
}

// Config holds the optional settings of a Port.
type Config struct {
	Logger *slog.Logger

	// Transient reports whether a read error only means "no data yet".
	// Nil treats every error except io.EOF as transient, which is how
	// machine.UART reports an empty receive buffer.
	Transient func(error) bool
}

// Port is a line-oriented view of a UART.
type Port struct {
	uart      UART
	transient func(error) bool
	logger    *slog.Logger

	buf    [BufferSize]byte
	skipLF bool
	out    []byte
}

// New returns a Port reading and writing through uart.
func New(uart UART, cfg Config) *Port {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
			Level: slog.Level(127),
		}))
	}
	transient := cfg.Transient
	if transient == nil {
		transient = func(err error) bool { return !errors.Is(err, io.EOF) }
	}
	return &Port{
		uart:      uart,
		transient: transient,
		logger:    logger,
		out:       make([]byte, 0, 2*BufferSize),
	}
}

type readWriter struct {
	*bufio.Reader
	io.Writer
}

// NewReadWriter wraps a plain stream, such as a host serial device, in a
// Port. Reads are buffered.
func NewReadWriter(rw io.ReadWriter, cfg Config) *Port {
	return New(readWriter{Reader: bufio.NewReader(rw), Writer: rw}, cfg)
}

// ReadLine blocks until CR or LF and returns the line without its
// terminator. A CR LF pair ends one line. n is the number of characters
// received; when it exceeds BufferSize only the first BufferSize are
// returned. The returned slice is only valid until the next call.
//
// A partial line cut short by io.EOF is returned without error; the next
// call reports io.EOF.
func (p *Port) ReadLine() (line []byte, n int, err error) {
	for {
		c, err := p.uart.ReadByte()
		if err != nil {
			if p.transient(err) {
				runtime.Gosched()
				continue
			}
			if errors.Is(err, io.EOF) && n > 0 {
				return p.kept(n), n, nil
			}
			return nil, 0, err
		}

		if p.skipLF {
			p.skipLF = false
			if c == '\n' {
				continue
			}
		}
		if c == '\r' || c == '\n' {
			p.skipLF = c == '\r'
			if n > BufferSize {
				p.logger.Warn("serial:overflow", slog.Int("received", n), slog.Int("kept", BufferSize))
			}
			return p.kept(n), n, nil
		}
		if n < BufferSize {
			p.buf[n] = c
		}
		n++
	}
}

func (p *Port) kept(n int) []byte {
	return p.buf[:min(n, BufferSize)]
}

// Write sends b, sending "\r\n" for every "\n". It reports len(b) on success.
func (p *Port) Write(b []byte) (int, error) {
	p.out = p.out[:0]
	for _, c := range b {
		if c == '\n' {
			p.out = append(p.out, '\r')
		}
		p.out = append(p.out, c)
	}
	if _, err := p.uart.Write(p.out); err != nil {
		return 0, err
	}
	return len(b), nil
}
