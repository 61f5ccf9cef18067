// Package lcd drives a 16x2 HD44780 compatible character display over a
// 4-bit parallel bus.
//
// The package is layered the same way the controller is wired:
//
//	Bus        raw nibbles + enable strobe (GPIOBus, BackpackBus)
//	Device     instruction/data bytes, power-on initialization
//	WriteLine  text layout across the two rows
//
// Example usage:
//
//	bus := lcd.NewGPIOBus(rs, e, [4]lcd.Pin{d4, d5, d6, d7}, lcd.SleepDelayer{})
//	dev := lcd.New(bus, lcd.Config{Logger: logger})
//	dev.Configure()
//	row := dev.WriteLine([]byte("hello"), lcd.Row0)
package lcd

import (
	"io"
	"log/slog"
	"time"
)

// Display geometry. Only 2x16 panels are supported.
const (
	Columns = 16
	Rows    = 2

	row0Base = 0x00
	row1Base = 0x40 // DDRAM address of the second line in two-line mode
)

// Instruction set (HD44780 / KS0066U table 7).
const (
	cmdClear          = 0b0000_0001 // replace all chars with space, cursor home
	cmdEntryMode      = 0b0000_0110 // increment, no shift: left -> right
	cmdDisplayOff     = 0b0000_1000
	cmdDisplayOn      = 0b0000_1100 // display on, cursor off, blink off
	cmdReset          = 0b0011_0000 // 8-bit function set, sent as a single nibble
	cmdFourBitEnable  = 0b0010_0000 // 4-bit function set, sent as a single nibble
	cmdFunctionSet    = 0b0010_1000 // 4-bit, 2 lines, 5x8 font
	cmdSetDDRAMAddr   = 0b1000_0000
	displayOnBlinkBit = 0b0000_0001
)

// Timing. Each value is above the datasheet minimum noted next to it.
const (
	EnablePulse       = time.Microsecond       // > 230ns
	PowerOnDelay      = 100 * time.Millisecond // >= 30ms for VDD to settle
	ResetDelay        = 10 * time.Millisecond  // >= 10ms after the reset nibble
	InstructionSettle = 80 * time.Microsecond  // > 39us
	ClearSettle       = 2 * time.Millisecond   // > 1.53ms
	CharSettle        = 80 * time.Microsecond  // > 43us
)

// Config holds the optional collaborators of a Device.
type Config struct {
	// Delay waits between bus operations. Defaults to SleepDelayer.
	Delay Delayer
	// Logger for driver events. Defaults to a logger that drops everything.
	Logger *slog.Logger
	// Blink enables the blinking block cursor when the display is turned on.
	Blink bool
}

// Device is an HD44780 controller in 4-bit mode.
// A Device is not safe for concurrent use; one goroutine owns it.
type Device struct {
	bus        Bus
	delay      Delayer
	logger     *slog.Logger
	blink      bool
	configured bool
}

// New returns a Device talking over bus. Configure must run before any
// other method.
func New(bus Bus, cfg Config) *Device {
	delay := cfg.Delay
	if delay == nil {
		delay = SleepDelayer{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
			Level: slog.Level(127),
		}))
	}
	return &Device{
		bus:    bus,
		delay:  delay,
		logger: logger,
		blink:  cfg.Blink,
	}
}

// Configure resets the controller from its power-on 8-bit mode into 4-bit,
// two-line, 5x8 mode, clears it and turns it on.
// It runs once; later calls do nothing.
func (d *Device) Configure() {
	if d.configured {
		d.logger.Warn("lcd:configure-skipped", slog.String("reason", "already configured"))
		return
	}
	start := time.Now()

	d.delay.Delay(PowerOnDelay)

	// RS and E must be low before the first strobe.
	d.bus.SetEnable(false)
	d.bus.SetRegisterSelect(false)

	d.bus.SendNibble(cmdReset)
	d.delay.Delay(ResetDelay)

	// Last single-nibble command. From here on every instruction is a byte
	// split into two nibbles.
	d.bus.SendNibble(cmdFourBitEnable)
	d.delay.Delay(InstructionSettle)

	d.instruction(cmdFunctionSet, InstructionSettle)
	d.instruction(cmdDisplayOff, InstructionSettle)
	d.instruction(cmdClear, ClearSettle)
	d.instruction(cmdEntryMode, InstructionSettle)
	on := byte(cmdDisplayOn)
	if d.blink {
		on |= displayOnBlinkBit
	}
	d.instruction(on, InstructionSettle)

	d.configured = true
	d.logger.Info("lcd:configured", slog.Duration("duration", time.Since(start)))
}

// Configured reports whether Configure has completed.
func (d *Device) Configured() bool { return d.configured }

// WriteInstruction sends b to the instruction register, high nibble first.
// It does not wait for the controller to execute it.
func (d *Device) WriteInstruction(b byte) {
	d.bus.SetEnable(false)
	d.bus.SetRegisterSelect(false)
	d.bus.SendNibble(b)
	d.bus.SendNibble(b << 4)
}

// WriteChar sends c to the data register and waits for the controller to
// store it.
func (d *Device) WriteChar(c byte) {
	d.bus.SetRegisterSelect(true)
	d.bus.SetEnable(false)
	d.bus.SendNibble(c)
	d.bus.SendNibble(c << 4)
	d.delay.Delay(CharSettle)
}

func (d *Device) instruction(b byte, settle time.Duration) {
	d.WriteInstruction(b)
	d.delay.Delay(settle)
}
