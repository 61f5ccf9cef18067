package lcd

import "time"

// Pin is a single digital output. machine.Pin satisfies it.
type Pin interface {
	Set(high bool)
}

// Bus carries nibbles and the two control lines to the controller.
//
// SendNibble is the only way data lines are driven. v holds the nibble in
// its high four bits; the low bits are ignored.
type Bus interface {
	SendNibble(v byte)
	SetRegisterSelect(data bool)
	SetEnable(high bool)
}

// Delayer blocks for at least d.
type Delayer interface {
	Delay(d time.Duration)
}

// SleepDelayer waits with time.Sleep.
type SleepDelayer struct{}

func (SleepDelayer) Delay(d time.Duration) { time.Sleep(d) }

// SpinDelayer busy-waits on the monotonic clock. Use it where the scheduler
// tick is coarser than the microsecond waits the controller needs.
type SpinDelayer struct{}

func (SpinDelayer) Delay(d time.Duration) {
	start := time.Now()
	for time.Since(start) < d {
	}
}

// GPIOBus drives the controller through six directly wired pins:
// RS, E and D4-D7. RW is expected to be tied to ground.
type GPIOBus struct {
	rs    Pin
	e     Pin
	data  [4]Pin // D4, D5, D6, D7
	delay Delayer
}

// NewGPIOBus returns a bus over the given pins. data is ordered D4..D7.
func NewGPIOBus(rs, e Pin, data [4]Pin, delay Delayer) *GPIOBus {
	if delay == nil {
		delay = SleepDelayer{}
	}
	return &GPIOBus{rs: rs, e: e, data: data, delay: delay}
}

// SendNibble puts the high nibble of v on D4-D7 and strobes E.
// Pins other than D4-D7 keep their state.
func (b *GPIOBus) SendNibble(v byte) {
	for i, p := range b.data {
		p.Set(v&(0x10<<i) != 0)
	}
	b.strobe()
}

func (b *GPIOBus) SetRegisterSelect(data bool) { b.rs.Set(data) }

func (b *GPIOBus) SetEnable(high bool) { b.e.Set(high) }

// Pins returns every line owned by the bus, for collision checks.
func (b *GPIOBus) Pins() []Pin {
	return []Pin{b.rs, b.e, b.data[0], b.data[1], b.data[2], b.data[3]}
}

// strobe latches the data lines on the falling edge of E.
func (b *GPIOBus) strobe() {
	b.e.Set(true)
	b.delay.Delay(EnablePulse)
	b.e.Set(false)
	b.delay.Delay(EnablePulse)
}
