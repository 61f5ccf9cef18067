// Package heartbeat blinks a status LED so a running board can be told
// apart from a hung one.
package heartbeat

import (
	"context"
	"errors"
	"time"

	"github.com/harveysanders/lcdecho/lcd"
)

// DefaultPeriod between toggles.
const DefaultPeriod = 500 * time.Millisecond

// ErrSharedPin is returned when the heartbeat pin is also an LCD bus line.
var ErrSharedPin = errors.New("heartbeat: pin is used by the LCD bus")

type Blinker struct {
	pin    lcd.Pin
	period time.Duration
	on     bool
}

// New returns a Blinker toggling pin every period (DefaultPeriod when zero).
// The pin must not be one of reserved, the lines some other goroutine drives.
// Pins with a Name method are matched by name, so two handles on one GPIO
// count as the same pin.
func New(pin lcd.Pin, period time.Duration, reserved []lcd.Pin) (*Blinker, error) {
	for _, r := range reserved {
		if samePin(r, pin) {
			return nil, ErrSharedPin
		}
	}
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Blinker{pin: pin, period: period}, nil
}

type namedPin interface {
	Name() string
}

func samePin(a, b lcd.Pin) bool {
	if a == b {
		return true
	}
	an, ok := a.(namedPin)
	if !ok {
		return false
	}
	bn, ok := b.(namedPin)
	return ok && an.Name() != "" && an.Name() == bn.Name()
}

// Toggle flips the LED once.
func (b *Blinker) Toggle() {
	b.on = !b.on
	b.pin.Set(b.on)
}

// On reports the level last written.
func (b *Blinker) On() bool { return b.on }

// Run toggles the LED until ctx is done, then leaves it off.
func (b *Blinker) Run(ctx context.Context) {
	ticker := time.NewTicker(b.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			b.on = false
			b.pin.Set(false)
			return
		case <-ticker.C:
			b.Toggle()
		}
	}
}
