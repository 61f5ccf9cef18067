package lcd

import (
	"tinygo.org/x/drivers"
)

// PCF8574 "I2C backpack" port bits. D4-D7 sit on P4-P7 so a nibble in the
// high half of a byte maps straight onto the port.
const (
	backpackRS        = 1 << 0
	backpackRW        = 1 << 1
	backpackEnable    = 1 << 2
	backpackBacklight = 1 << 3
	backpackData      = 0xF0

	// DefaultBackpackAddress is the factory address of most PCF8574 boards.
	// PCF8574A boards answer on 0x3F.
	DefaultBackpackAddress = 0x27
)

// BackpackBus drives the controller through a PCF8574 I2C port expander.
// Every line change is one single-byte I2C write of the whole port, so the
// bus keeps a shadow copy of the port and only ever changes the bits it was
// asked to change.
type BackpackBus struct {
	i2c   drivers.I2C
	addr  uint16
	port  byte
	delay Delayer
	buf   [1]byte
	err   error
}

// NewBackpackBus returns a bus on the expander at addr with the backlight on.
func NewBackpackBus(i2c drivers.I2C, addr uint16, delay Delayer) *BackpackBus {
	if delay == nil {
		delay = SleepDelayer{}
	}
	if addr == 0 {
		addr = DefaultBackpackAddress
	}
	return &BackpackBus{
		i2c:   i2c,
		addr:  addr,
		port:  backpackBacklight, // RW low: write only
		delay: delay,
	}
}

// SendNibble replaces P4-P7 with the high nibble of v and strobes E.
func (b *BackpackBus) SendNibble(v byte) {
	b.port = b.port&^backpackData | v&backpackData
	b.write()
	b.SetEnable(true)
	b.delay.Delay(EnablePulse)
	b.SetEnable(false)
	b.delay.Delay(EnablePulse)
}

func (b *BackpackBus) SetRegisterSelect(data bool) { b.set(backpackRS, data) }

func (b *BackpackBus) SetEnable(high bool) { b.set(backpackEnable, high) }

// SetBacklight switches the backlight transistor on P3.
func (b *BackpackBus) SetBacklight(on bool) { b.set(backpackBacklight, on) }

// Err returns the first I2C error seen since the bus was created.
// Writes keep going after an error; the protocol has no way to report one.
func (b *BackpackBus) Err() error { return b.err }

func (b *BackpackBus) set(mask byte, on bool) {
	if on {
		b.port |= mask
	} else {
		b.port &^= mask
	}
	b.write()
}

func (b *BackpackBus) write() {
	b.buf[0] = b.port &^ backpackRW
	if err := b.i2c.Tx(b.addr, b.buf[:], nil); err != nil && b.err == nil {
		b.err = err
	}
}
