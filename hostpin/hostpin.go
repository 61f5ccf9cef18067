// Package hostpin drives LCD and status lines from Linux GPIO through
// periph.io, for boards such as the Raspberry Pi.
package hostpin

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Init loads the periph host drivers. Call it once before ByName.
func Init() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("hostpin: init host drivers: %w", err)
	}
	return nil
}

// Pin adapts a periph output to lcd.Pin. Set cannot return an error, so
// the first failure is kept for Err.
type Pin struct {
	out gpio.PinOut
	err error
}

// New wraps out.
func New(out gpio.PinOut) *Pin {
	return &Pin{out: out}
}

var (
	mu     sync.Mutex
	opened = map[gpio.PinIO]*Pin{}
)

// ByName looks up a registered GPIO such as "GPIO17" and drives it low.
// Aliases resolve to the real line, and every name for one line returns
// the same *Pin.
func ByName(name string) (*Pin, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("hostpin: no GPIO named %q", name)
	}
	if r, ok := p.(gpio.RealPin); ok {
		p = r.Real()
	}

	mu.Lock()
	defer mu.Unlock()
	if pin, ok := opened[p]; ok {
		return pin, nil
	}
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("hostpin: %s as output: %w", name, err)
	}
	pin := New(p)
	opened[p] = pin
	return pin, nil
}

func (p *Pin) Set(high bool) {
	if err := p.out.Out(gpio.Level(high)); err != nil && p.err == nil {
		p.err = fmt.Errorf("hostpin: set %s: %w", p.out.Name(), err)
	}
}

// Name returns the name of the underlying line, looking through aliases.
func (p *Pin) Name() string {
	if r, ok := p.out.(gpio.RealPin); ok {
		return r.Real().Name()
	}
	return p.out.Name()
}

// Err returns the first error seen by Set.
func (p *Pin) Err() error { return p.err }

// Bus holds the six LCD lines by name.
type Bus struct {
	RS, E *Pin
	Data  [4]*Pin
}

// OpenBus looks up the RS, E and D4-D7 lines.
func OpenBus(rs, e string, data [4]string) (*Bus, error) {
	var b Bus
	var err error
	if b.RS, err = ByName(rs); err != nil {
		return nil, err
	}
	if b.E, err = ByName(e); err != nil {
		return nil, err
	}
	for i, name := range data {
		if b.Data[i], err = ByName(name); err != nil {
			return nil, err
		}
	}
	return &b, nil
}

// Err returns the first error any line has seen.
func (b *Bus) Err() error {
	for _, p := range []*Pin{b.RS, b.E, b.Data[0], b.Data[1], b.Data[2], b.Data[3]} {
		if err := p.Err(); err != nil {
			return err
		}
	}
	return nil
}
