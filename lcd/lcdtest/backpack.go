package lcdtest

import (
	"errors"

	"github.com/harveysanders/lcdecho/lcd"
)

// ErrNoDevice is returned for transfers to an address nothing answers on.
var ErrNoDevice = errors.New("lcdtest: no device at address")

// Backpack emulates a PCF8574 expander wired to a Controller with the common
// backpack layout: P0=RS, P1=RW, P2=E, P3=backlight, P4-P7=D4-D7.
// It implements the tinygo.org/x/drivers I2C interface.
type Backpack struct {
	Addr uint16
	ctrl *Controller

	writes    []byte
	backlight bool
	rw        bool
	fail      error
}

// NewBackpack attaches a backpack at addr to ctrl.
func NewBackpack(ctrl *Controller, addr uint16) *Backpack {
	return &Backpack{Addr: addr, ctrl: ctrl}
}

// Bus returns an lcd.BackpackBus talking to this backpack.
func (b *Backpack) Bus() *lcd.BackpackBus {
	return lcd.NewBackpackBus(b, b.Addr, b.ctrl.clock)
}

// Fail makes every following transfer return err. Pass nil to recover.
func (b *Backpack) Fail(err error) { b.fail = err }

func (b *Backpack) Tx(addr uint16, w, r []byte) error {
	if addr != b.Addr {
		return ErrNoDevice
	}
	if b.fail != nil {
		return b.fail
	}
	for _, port := range w {
		b.writes = append(b.writes, port)
		b.apply(port)
	}
	for i := range r {
		r[i] = 0xFF
	}
	return nil
}

func (b *Backpack) ReadRegister(addr uint8, r uint8, buf []byte) error {
	return b.Tx(uint16(addr), []byte{r}, buf)
}

func (b *Backpack) WriteRegister(addr uint8, r uint8, buf []byte) error {
	return b.Tx(uint16(addr), append([]byte{r}, buf...), nil)
}

// apply drives the controller pins from one port byte. Data and RS settle
// before E so a falling edge latches the byte it arrived with.
func (b *Backpack) apply(port byte) {
	b.rw = port&0x02 != 0
	b.backlight = port&0x08 != 0
	setIfChanged(b.ctrl.RS, port&0x01 != 0)
	for i, p := range b.ctrl.D {
		setIfChanged(p, port&(0x10<<i) != 0)
	}
	setIfChanged(b.ctrl.E, port&0x04 != 0)
}

func setIfChanged(p *Pin, high bool) {
	if p.level != high {
		p.Set(high)
	}
}

// Writes returns every port byte received.
func (b *Backpack) Writes() []byte { return b.writes }

// Backlight reports the backlight bit of the last port write.
func (b *Backpack) Backlight() bool { return b.backlight }

// ReadMode reports whether RW was high in the last port write.
func (b *Backpack) ReadMode() bool { return b.rw }
