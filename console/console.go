// Package console turns received text lines into display actions: it
// classifies each line, lays normal text out on the LCD, echoes it back over
// the transport and shows an error for lines that cannot fit.
//
// Example usage:
//
//	c := console.New(dev, port, console.Config{Logger: logger})
//	if err := c.Run(ctx); err != nil {
//	    logger.Error("console:stopped", slog.Any("reason", err))
//	}
package console

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/harveysanders/lcdecho/lcd"
)

const (
	// MaxLineLength is the most characters both rows can show.
	MaxLineLength = lcd.Rows * lcd.Columns

	// ClearScreen is the only in-band command: Ctrl-C.
	ClearScreen = 0x03

	// Prompt is written before every read.
	Prompt = "Enter a string or command: "

	// DefaultLoopDelay is the pause between handled lines.
	DefaultLoopDelay = 500 * time.Millisecond
)

var (
	echoPrefix = []byte("Your str is: ")
	echoSuffix = []byte(" \n")

	errorTop    = []byte("Error:")
	errorBottom = []byte("Line Too Long")
)

// Status is the classification of one received line.
type Status uint8

const (
	StatusNormal Status = iota
	StatusClear
	StatusTooLong
)

func (s Status) String() string {
	switch s {
	case StatusNormal:
		return "normal"
	case StatusClear:
		return "clear"
	case StatusTooLong:
		return "too-long"
	default:
		return "unknown"
	}
}

// Display is the layout surface the console writes to. *lcd.Device
// implements it.
type Display interface {
	WriteLine(text []byte, row lcd.Row) lcd.Row
	ClearRow(row lcd.Row) lcd.Row
}

// Transport reads lines from and writes text to the remote user.
//
// ReadLine blocks until a line terminator arrives. It returns the line
// without its terminator and the number of characters received, which is
// larger than len(line) when the line overflowed the receive buffer.
type Transport interface {
	ReadLine() (line []byte, n int, err error)
	io.Writer
}

// Config holds the optional settings of a Console.
type Config struct {
	// Logger for console events. Defaults to a logger that drops everything.
	Logger *slog.Logger
	// LoopDelay is the pause Run takes after each line.
	// Zero means DefaultLoopDelay; negative means no pause.
	LoopDelay time.Duration
}

// Console owns the row pointer of one display session.
type Console struct {
	display   Display
	transport Transport
	logger    *slog.Logger
	loopDelay time.Duration

	row  lcd.Row
	echo []byte
}

// New returns a Console writing to display and talking over transport.
// The first line goes to row 0.
func New(display Display, transport Transport, cfg Config) *Console {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
			Level: slog.Level(127),
		}))
	}
	delay := cfg.LoopDelay
	if delay == 0 {
		delay = DefaultLoopDelay
	}
	return &Console{
		display:   display,
		transport: transport,
		logger:    logger,
		loopDelay: delay,
		// Preallocated so echoing does not grow the heap on every line.
		echo: make([]byte, 0, len(echoPrefix)+MaxLineLength+len(echoSuffix)),
	}
}

// Row returns the row the next line will be written to.
func (c *Console) Row() lcd.Row { return c.row }

// Classify reports what a received line asks for. It has no side effects.
func Classify(text []byte) Status {
	if len(text) == 1 && text[0] == ClearScreen {
		return StatusClear
	}
	if len(text) > MaxLineLength {
		return StatusTooLong
	}
	return StatusNormal
}

// classify is Classify plus the clear action a Ctrl-C line requests.
func (c *Console) classify(text []byte) Status {
	status := Classify(text)
	if status == StatusClear {
		c.row = c.ClearScreen()
	}
	return status
}

// ClearScreen blanks both rows and returns the row the cursor was last
// addressed to, which is row 1.
func (c *Console) ClearScreen() lcd.Row {
	c.display.ClearRow(lcd.Row0)
	return c.display.ClearRow(lcd.Row1)
}

// OutputLine handles one received line of n characters.
//
//   - n == 0 (bare newline): nothing is erased; the next line goes to the
//     other row.
//   - normal text: the current row is cleared, the text written (wrapping
//     onto the other row past 16 characters) and echoed over the transport.
//   - Ctrl-C: both rows are cleared.
//   - more than 32 characters: a two-row error is shown and the text is
//     dropped.
//
// Only the echo can fail.
func (c *Console) OutputLine(text []byte, n int) error {
	if n == 0 {
		c.row = c.display.WriteLine(nil, c.row)
		c.logger.Debug("console:advance", slog.String("row", c.row.String()))
		return nil
	}
	status := c.classify(text)
	if n > len(text) {
		// Receive buffer overflowed; what we hold is only a prefix.
		status = StatusTooLong
	}

	switch status {
	case StatusNormal:
		c.row = c.display.ClearRow(c.row)
		c.row = c.display.WriteLine(text, c.row)
		c.logger.Debug("console:line", slog.Int("len", n), slog.String("next", c.row.String()))
		return c.writeEcho(text)
	case StatusTooLong:
		c.logger.Info("console:too-long", slog.Int("len", n))
		c.PrintError()
	case StatusClear:
		c.logger.Info("console:clear")
	}
	return nil
}

// PrintError shows "Error:" on row 0 and "Line Too Long" on row 1.
// The row pointer ends on row 0.
func (c *Console) PrintError() {
	c.row = lcd.Row0
	c.row = c.display.ClearRow(c.row)
	c.display.WriteLine(errorTop, c.row)

	c.row = lcd.Row1
	c.row = c.display.ClearRow(c.row)
	c.row = c.display.WriteLine(errorBottom, c.row)
}

func (c *Console) writeEcho(text []byte) error {
	c.echo = c.echo[:0]
	c.echo = append(c.echo, echoPrefix...)
	c.echo = append(c.echo, text...)
	c.echo = append(c.echo, echoSuffix...)
	if _, err := c.transport.Write(c.echo); err != nil {
		return errors.New("console: echo: " + err.Error())
	}
	return nil
}

// Run prompts, reads and handles lines until ctx is done or the transport
// reaches io.EOF, which ends Run without error.
func (c *Console) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := io.WriteString(c.transport, Prompt); err != nil {
			return errors.New("console: prompt: " + err.Error())
		}
		line, n, err := c.transport.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.logger.Info("console:eof")
				return nil
			}
			return errors.New("console: read line: " + err.Error())
		}
		if err := c.OutputLine(line, n); err != nil {
			return err
		}
		if c.loopDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.loopDelay):
			}
		}
	}
}
