package hostpin

import (
	"errors"
	"strings"
	"testing"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/harveysanders/lcdecho/heartbeat"
	"github.com/harveysanders/lcdecho/lcd"
	"github.com/harveysanders/lcdecho/lcd/lcdtest"
)

// Registered pin numbers must be unique across the test binary.
var nextNum = 900

func register(t *testing.T, names ...string) []*gpiotest.Pin {
	t.Helper()
	var pins []*gpiotest.Pin
	for _, name := range names {
		nextNum++
		p := &gpiotest.Pin{N: name, Num: nextNum, L: gpio.High}
		if err := gpioreg.Register(p); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
		pins = append(pins, p)
	}
	return pins
}

func TestByName(t *testing.T) {
	pins := register(t, "HOSTPIN_BYNAME")

	p, err := ByName("HOSTPIN_BYNAME")
	if err != nil {
		t.Fatalf("ByName failed: %v", err)
	}
	if pins[0].L != gpio.Low {
		t.Error("expected pin driven low on open")
	}

	p.Set(true)
	if pins[0].L != gpio.High {
		t.Error("expected pin high after Set(true)")
	}
	p.Set(false)
	if pins[0].L != gpio.Low {
		t.Error("expected pin low after Set(false)")
	}
	if p.Name() != "HOSTPIN_BYNAME" {
		t.Errorf("expected name HOSTPIN_BYNAME, got %s", p.Name())
	}
}

func TestByNameUnknown(t *testing.T) {
	if _, err := ByName("HOSTPIN_MISSING"); err == nil {
		t.Fatal("expected error for unknown pin")
	}
}

type failingPin struct {
	*gpiotest.Pin
	err error
}

func (f *failingPin) Out(gpio.Level) error { return f.err }

func TestSetKeepsFirstError(t *testing.T) {
	first := errors.New("first")
	f := &failingPin{Pin: &gpiotest.Pin{N: "HOSTPIN_FAIL"}, err: first}
	p := New(f)

	p.Set(true)
	f.err = errors.New("second")
	p.Set(false)

	if !errors.Is(p.Err(), first) {
		t.Errorf("expected first error, got %v", p.Err())
	}
	if !strings.Contains(p.Err().Error(), "HOSTPIN_FAIL") {
		t.Errorf("expected pin name in error, got %v", p.Err())
	}
}

// Drives the emulated controller from periph pins by mirroring every level
// change, so the whole lcd stack runs over the adapter.
func TestBusDrivesDisplay(t *testing.T) {
	names := []string{"HOSTPIN_RS", "HOSTPIN_E", "HOSTPIN_D4", "HOSTPIN_D5", "HOSTPIN_D6", "HOSTPIN_D7"}
	register(t, names...)

	bus, err := OpenBus(names[0], names[1], [4]string{names[2], names[3], names[4], names[5]})
	if err != nil {
		t.Fatalf("OpenBus failed: %v", err)
	}

	clock := &lcdtest.Clock{}
	ctrl := lcdtest.NewController(clock)
	mirror := func(p *Pin, to *lcdtest.Pin) lcd.Pin { return tee{p, to} }
	gpioBus := lcd.NewGPIOBus(
		mirror(bus.RS, ctrl.RS),
		mirror(bus.E, ctrl.E),
		[4]lcd.Pin{
			mirror(bus.Data[0], ctrl.D[0]),
			mirror(bus.Data[1], ctrl.D[1]),
			mirror(bus.Data[2], ctrl.D[2]),
			mirror(bus.Data[3], ctrl.D[3]),
		},
		clock,
	)
	dev := lcd.New(gpioBus, lcd.Config{Delay: clock})
	dev.Configure()
	dev.WriteLine([]byte("periph"), lcd.Row0)

	if err := bus.Err(); err != nil {
		t.Fatalf("unexpected bus error: %v", err)
	}
	if got := strings.TrimRight(ctrl.Row(0), " "); got != "periph" {
		t.Errorf("expected %q, got %q", "periph", got)
	}
	if v := ctrl.Violations(); len(v) != 0 {
		t.Errorf("expected no violations, got %v", v)
	}
}

type tee struct {
	a lcd.Pin
	b lcd.Pin
}

func (t tee) Set(high bool) {
	t.a.Set(high)
	t.b.Set(high)
}

func TestByNameSharesHandle(t *testing.T) {
	register(t, "HOSTPIN_SHARED")
	if err := gpioreg.RegisterAlias("HOSTPIN_SHARED_ALIAS", "HOSTPIN_SHARED"); err != nil {
		t.Fatalf("register alias: %v", err)
	}

	a, err := ByName("HOSTPIN_SHARED")
	if err != nil {
		t.Fatal(err)
	}
	b, err := ByName("HOSTPIN_SHARED_ALIAS")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("expected alias to return the same pin")
	}
	if b.Name() != "HOSTPIN_SHARED" {
		t.Errorf("expected real name HOSTPIN_SHARED, got %s", b.Name())
	}
}

func TestHeartbeatRejectsLCDLine(t *testing.T) {
	line := &gpiotest.Pin{N: "GPIO24", Num: 24}
	enable := New(line)
	led := New(line)
	rs := New(&gpiotest.Pin{N: "GPIO25", Num: 25})

	_, err := heartbeat.New(led, 0, []lcd.Pin{rs, enable})
	if !errors.Is(err, heartbeat.ErrSharedPin) {
		t.Fatalf("expected ErrSharedPin for a second handle on GPIO24, got %v", err)
	}
}

func TestHeartbeatRejectsAliasOfLCDLine(t *testing.T) {
	register(t, "HOSTPIN_HB_E")
	if err := gpioreg.RegisterAlias("HOSTPIN_LED", "HOSTPIN_HB_E"); err != nil {
		t.Fatalf("register alias: %v", err)
	}
	enable, err := ByName("HOSTPIN_HB_E")
	if err != nil {
		t.Fatal(err)
	}
	led, err := ByName("HOSTPIN_LED")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := heartbeat.New(led, 0, []lcd.Pin{enable}); !errors.Is(err, heartbeat.ErrSharedPin) {
		t.Fatalf("expected ErrSharedPin, got %v", err)
	}
}
