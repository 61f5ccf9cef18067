// Package lcdtest provides an emulated HD44780 controller for testing code
// built on package lcd without hardware.
//
// The Controller watches fake pins (or a fake PCF8574 backpack), latches
// D4-D7 on every falling edge of E, reassembles nibble pairs into bytes the
// way the real controller does, executes them against an in-memory DDRAM and
// records any write that arrives before the previous one had time to finish.
// Time is virtual: Clock implements lcd.Delayer and only moves when the code
// under test waits.
package lcdtest

import (
	"fmt"
	"time"

	"github.com/harveysanders/lcdecho/lcd"
)

// Datasheet execution times the emulator enforces.
const (
	MinPowerOn     = 30 * time.Millisecond
	MinReset       = 10 * time.Millisecond
	MinInstruction = 39 * time.Microsecond
	MinClear       = 1530 * time.Microsecond
	MinCharWrite   = 43 * time.Microsecond
	MinEnablePulse = 230 * time.Nanosecond
)

const (
	ddramSize = 0x80
	row1Base  = 0x40
)

const emptyCell byte = ' '

// Clock is a virtual clock. It satisfies lcd.Delayer.
type Clock struct {
	now    time.Duration
	delays []time.Duration
}

// Delay advances the clock by d.
func (c *Clock) Delay(d time.Duration) {
	c.now += d
	c.delays = append(c.delays, d)
}

// Now returns the time elapsed since the clock was created.
func (c *Clock) Now() time.Duration { return c.now }

// Delays returns every wait requested so far, in order.
func (c *Clock) Delays() []time.Duration { return c.delays }

// Pin is a fake output pin. It records its level and notifies the
// controller it is attached to.
type Pin struct {
	Name     string
	level    bool
	sets     int
	onChange func(was, is bool)
}

// NewPin returns a detached pin.
func NewPin(name string) *Pin { return &Pin{Name: name} }

func (p *Pin) Set(high bool) {
	old := p.level
	p.level = high
	p.sets++
	if p.onChange != nil {
		p.onChange(old, high)
	}
}

// High reports the current level.
func (p *Pin) High() bool { return p.level }

// Sets returns how many times Set was called.
func (p *Pin) Sets() int { return p.sets }

// Op is one byte the controller executed.
type Op struct {
	Data  bool // false: instruction register, true: data register
	Value byte
	At    time.Duration
}

func (o Op) String() string {
	if o.Data {
		return fmt.Sprintf("data(%q)", o.Value)
	}
	return fmt.Sprintf("instr(0x%02x)", o.Value)
}

// Controller emulates an HD44780 wired in 4-bit mode.
type Controller struct {
	RS *Pin
	E  *Pin
	D  [4]*Pin // D4..D7

	clock *Clock

	fourBit     bool
	havePending bool
	pendingHigh byte
	pendingRS   bool
	eRaisedAt   time.Duration

	ddram     [ddramSize]byte
	addr      byte
	displayOn bool
	twoLine   bool
	busyUntil time.Duration

	ops        []Op
	violations []string
}

// NewController returns a controller in its power-on state (8-bit mode,
// blank DDRAM) driven by clock.
func NewController(clock *Clock) *Controller {
	c := &Controller{
		RS:        NewPin("RS"),
		E:         NewPin("E"),
		clock:     clock,
		busyUntil: MinPowerOn,
	}
	for i := range c.D {
		c.D[i] = NewPin(fmt.Sprintf("D%d", i+4))
	}
	for i := range c.ddram {
		c.ddram[i] = emptyCell
	}
	c.E.onChange = func(was, is bool) {
		switch {
		case !was && is:
			c.eRaisedAt = c.clock.Now()
		case was && !is:
			c.latch()
		}
	}
	return c
}

// Bus returns an lcd.GPIOBus over the controller's pins and clock.
func (c *Controller) Bus() *lcd.GPIOBus {
	return lcd.NewGPIOBus(c.RS, c.E, [4]lcd.Pin{c.D[0], c.D[1], c.D[2], c.D[3]}, c.clock)
}

// Device returns an unconfigured lcd.Device over Bus, waiting on the
// controller's clock.
func (c *Controller) Device() *lcd.Device {
	return lcd.New(c.Bus(), lcd.Config{Delay: c.clock})
}

func (c *Controller) latch() {
	now := c.clock.Now()
	if now-c.eRaisedAt < MinEnablePulse {
		c.violate("enable pulse %v shorter than %v", now-c.eRaisedAt, MinEnablePulse)
	}
	var nibble byte
	for i, p := range c.D {
		if p.level {
			nibble |= 1 << i
		}
	}
	rs := c.RS.level

	if !c.fourBit {
		// 8-bit mode: D0-D3 are not wired and read as zero.
		c.checkReady(now)
		c.execute(rs, nibble<<4, now)
		return
	}
	if !c.havePending {
		c.checkReady(now)
		c.havePending = true
		c.pendingHigh = nibble
		c.pendingRS = rs
		return
	}
	c.havePending = false
	if rs != c.pendingRS {
		c.violate("register select changed between nibbles of one byte")
	}
	c.execute(rs, c.pendingHigh<<4|nibble, now)
}

func (c *Controller) checkReady(now time.Duration) {
	if now < c.busyUntil {
		c.violate("write at %v while busy until %v", now, c.busyUntil)
	}
}

func (c *Controller) execute(data bool, b byte, now time.Duration) {
	c.ops = append(c.ops, Op{Data: data, Value: b, At: now})
	if data {
		c.ddram[c.addr] = b
		c.addr = (c.addr + 1) % ddramSize
		c.busyUntil = now + MinCharWrite
		return
	}
	exec := MinInstruction
	switch {
	case b&0x80 != 0: // set DDRAM address
		c.addr = b & 0x7F
	case b&0xE0 == 0x20: // function set
		if b&0x10 != 0 {
			c.fourBit = false
			exec = MinReset
		} else {
			c.fourBit = true
			c.twoLine = b&0x08 != 0
		}
	case b&0xF8 == 0x08: // display control
		c.displayOn = b&0x04 != 0
	case b&0xFC == 0x04: // entry mode
	case b&0xFE == 0x02: // return home
		c.addr = 0
		exec = MinClear
	case b == 0x01: // clear
		for i := range c.ddram {
			c.ddram[i] = emptyCell
		}
		c.addr = 0
		exec = MinClear
	}
	c.busyUntil = now + exec
}

func (c *Controller) violate(format string, args ...any) {
	c.violations = append(c.violations, fmt.Sprintf(format, args...))
}

// Row returns the 16 visible characters of row r (0 or 1).
func (c *Controller) Row(r int) string {
	base := 0
	if r == 1 {
		base = row1Base
	}
	return string(c.ddram[base : base+lcd.Columns])
}

// Ops returns every executed byte since the last Reset.
func (c *Controller) Ops() []Op { return c.ops }

// Instructions returns the executed instruction bytes since the last Reset.
func (c *Controller) Instructions() []byte {
	var out []byte
	for _, op := range c.ops {
		if !op.Data {
			out = append(out, op.Value)
		}
	}
	return out
}

// Text returns the executed data bytes since the last Reset.
func (c *Controller) Text() string {
	var out []byte
	for _, op := range c.ops {
		if op.Data {
			out = append(out, op.Value)
		}
	}
	return string(out)
}

// Violations returns every protocol or timing violation seen.
func (c *Controller) Violations() []string { return c.violations }

// FourBit reports whether the controller has left its power-on 8-bit mode.
func (c *Controller) FourBit() bool { return c.fourBit }

// DisplayOn reports the display-on bit of the last display control.
func (c *Controller) DisplayOn() bool { return c.displayOn }

// TwoLine reports the line count bit of the last 4-bit function set.
func (c *Controller) TwoLine() bool { return c.twoLine }

// Address returns the DDRAM address counter.
func (c *Controller) Address() byte { return c.addr }

// Reset forgets recorded ops. Display and mode state are kept.
func (c *Controller) Reset() { c.ops = nil }
