package lcd_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/harveysanders/lcdecho/lcd"
	"github.com/harveysanders/lcdecho/lcd/lcdtest"
)

func newTestDevice(t *testing.T) (*lcd.Device, *lcdtest.Controller, *lcdtest.Clock) {
	t.Helper()
	clock := &lcdtest.Clock{}
	ctrl := lcdtest.NewController(clock)
	dev := ctrl.Device()
	dev.Configure()
	if v := ctrl.Violations(); len(v) != 0 {
		t.Fatalf("Configure produced violations: %v", v)
	}
	ctrl.Reset()
	return dev, ctrl, clock
}

func TestConfigureSequence(t *testing.T) {
	clock := &lcdtest.Clock{}
	ctrl := lcdtest.NewController(clock)
	dev := ctrl.Device()

	if dev.Configured() {
		t.Fatal("expected device to start unconfigured")
	}
	dev.Configure()

	expected := []byte{0x30, 0x20, 0x28, 0x08, 0x01, 0x06, 0x0C}
	if got := ctrl.Instructions(); !bytes.Equal(got, expected) {
		t.Fatalf("instructions: expected % x, got % x", expected, got)
	}
	if v := ctrl.Violations(); len(v) != 0 {
		t.Errorf("expected no violations, got %v", v)
	}
	if !ctrl.FourBit() {
		t.Error("expected controller in 4-bit mode")
	}
	if !ctrl.TwoLine() {
		t.Error("expected two-line mode")
	}
	if !ctrl.DisplayOn() {
		t.Error("expected display on")
	}
	if !dev.Configured() {
		t.Error("expected Configured to report true")
	}
	if first := ctrl.Ops()[0].At; first < lcdtest.MinPowerOn {
		t.Errorf("first write at %v, expected after %v", first, lcdtest.MinPowerOn)
	}
	if d := clock.Delays()[0]; d != lcd.PowerOnDelay {
		t.Errorf("first delay: expected %v, got %v", lcd.PowerOnDelay, d)
	}
}

func TestConfigureRunsOnce(t *testing.T) {
	dev, ctrl, _ := newTestDevice(t)

	dev.Configure()

	if n := len(ctrl.Ops()); n != 0 {
		t.Errorf("expected second Configure to send nothing, got %d ops", n)
	}
}

func TestConfigureBlink(t *testing.T) {
	clock := &lcdtest.Clock{}
	ctrl := lcdtest.NewController(clock)
	dev := lcd.New(ctrl.Bus(), lcd.Config{Delay: clock, Blink: true})
	dev.Configure()

	instr := ctrl.Instructions()
	if last := instr[len(instr)-1]; last != 0x0D {
		t.Errorf("display on: expected 0x0d, got 0x%02x", last)
	}
}

// Skipping the reset wait must show up as a timing violation.
func TestControllerFlagsShortDelay(t *testing.T) {
	clock := &lcdtest.Clock{}
	ctrl := lcdtest.NewController(clock)
	bus := ctrl.Bus()

	clock.Delay(lcd.PowerOnDelay)
	bus.SendNibble(0x30)
	bus.SendNibble(0x20)

	if len(ctrl.Violations()) == 0 {
		t.Fatal("expected a violation for a write during reset")
	}
}

func TestWriteCharLeavesIdleLines(t *testing.T) {
	dev, ctrl, clock := newTestDevice(t)

	before := clock.Now()
	dev.WriteChar('A')

	if ctrl.E.High() {
		t.Error("expected E low after WriteChar")
	}
	if !ctrl.RS.High() {
		t.Error("expected RS high after WriteChar")
	}
	if waited := clock.Now() - before; waited <= lcdtest.MinCharWrite {
		t.Errorf("WriteChar waited %v, expected more than %v", waited, lcdtest.MinCharWrite)
	}

	dev.WriteInstruction(0x80)
	if ctrl.E.High() || ctrl.RS.High() {
		t.Error("expected E and RS low after WriteInstruction")
	}
	ops := ctrl.Ops()
	if len(ops) != 2 || !ops[0].Data || ops[0].Value != 'A' || ops[1].Data || ops[1].Value != 0x80 {
		t.Errorf("unexpected ops %v", ops)
	}
}

func TestSendNibbleTouchesOnlyBusLines(t *testing.T) {
	clock := &lcdtest.Clock{}
	ctrl := lcdtest.NewController(clock)
	bus := ctrl.Bus()

	bus.SetRegisterSelect(true)
	rsSets := ctrl.RS.Sets()
	bus.SendNibble(0xA5)

	if ctrl.RS.Sets() != rsSets {
		t.Error("SendNibble changed RS")
	}
	levels := []bool{false, true, false, true} // 0xA = 1010, D4 first
	for i, p := range ctrl.D {
		if p.High() != levels[i] {
			t.Errorf("%s: expected %v, got %v", p.Name, levels[i], p.High())
		}
	}
	if ctrl.E.Sets() != 2 || ctrl.E.High() {
		t.Errorf("expected one strobe ending low, got %d sets, high=%v", ctrl.E.Sets(), ctrl.E.High())
	}
}

func TestWriteLineNoWrap(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"one", "a"},
		{"short", "this is fun"},
		{"full row", "0123456789abcdef"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, ctrl, _ := newTestDevice(t)

			next := dev.WriteLine([]byte(tt.text), lcd.Row0)

			if next != lcd.Row1 {
				t.Errorf("next row: expected %v, got %v", lcd.Row1, next)
			}
			if instr := ctrl.Instructions(); !bytes.Equal(instr, []byte{0x80}) {
				t.Errorf("instructions: expected [80], got % x", instr)
			}
			if got := ctrl.Text(); got != tt.text {
				t.Errorf("data: expected %q, got %q", tt.text, got)
			}
			if got := strings.TrimRight(ctrl.Row(0), " "); got != tt.text {
				t.Errorf("row 0: expected %q, got %q", tt.text, got)
			}
		})
	}
}

func TestWriteLineWrapsOnce(t *testing.T) {
	for _, n := range []int{17, 24, 32} {
		dev, ctrl, _ := newTestDevice(t)
		text := strings.Repeat("x", 16) + strings.Repeat("y", n-16)

		next := dev.WriteLine([]byte(text), lcd.Row0)

		// Wrapped to row 1, then the trailing flip returns to row 0.
		if next != lcd.Row0 {
			t.Errorf("len %d: next row: expected %v, got %v", n, lcd.Row0, next)
		}
		if instr := ctrl.Instructions(); !bytes.Equal(instr, []byte{0x80, 0xC0}) {
			t.Errorf("len %d: instructions: expected [80 c0], got % x", n, instr)
		}
		ops := ctrl.Ops()
		for i := 1; i <= 16; i++ {
			if !ops[i].Data {
				t.Fatalf("len %d: op %d: expected data, got %v", n, i, ops[i])
			}
		}
		if ops[17].Data || ops[17].Value != 0xC0 {
			t.Errorf("len %d: expected wrap after 16 chars, got %v", n, ops[17])
		}
		if got := ctrl.Row(0); got != strings.Repeat("x", 16) {
			t.Errorf("len %d: row 0: got %q", n, got)
		}
		if got := strings.TrimRight(ctrl.Row(1), " "); got != strings.Repeat("y", n-16) {
			t.Errorf("len %d: row 1: got %q", n, got)
		}
	}
}

func TestWriteLineFromRow1(t *testing.T) {
	dev, ctrl, _ := newTestDevice(t)

	next := dev.WriteLine([]byte("0123456789abcdefXY"), lcd.Row1)

	if next != lcd.Row1 {
		t.Errorf("next row: expected %v, got %v", lcd.Row1, next)
	}
	if instr := ctrl.Instructions(); !bytes.Equal(instr, []byte{0xC0, 0x80}) {
		t.Errorf("instructions: expected [c0 80], got % x", instr)
	}
	if got := ctrl.Row(1); got != "0123456789abcdef" {
		t.Errorf("row 1: got %q", got)
	}
	if got := strings.TrimRight(ctrl.Row(0), " "); got != "XY" {
		t.Errorf("row 0: got %q", got)
	}
}

// Without a length check WriteLine keeps wrapping and overwrites row 0.
func TestWriteLineUnbounded(t *testing.T) {
	dev, ctrl, _ := newTestDevice(t)
	text := strings.Repeat("a", 16) + strings.Repeat("b", 16) + "cccc"

	next := dev.WriteLine([]byte(text), lcd.Row0)

	if next != lcd.Row1 {
		t.Errorf("next row: expected %v, got %v", lcd.Row1, next)
	}
	if instr := ctrl.Instructions(); !bytes.Equal(instr, []byte{0x80, 0xC0, 0x80}) {
		t.Errorf("instructions: expected [80 c0 80], got % x", instr)
	}
	if got := ctrl.Row(0); got != "cccc"+strings.Repeat("a", 12) {
		t.Errorf("row 0: got %q", got)
	}
}

func TestClearRow(t *testing.T) {
	for _, row := range []lcd.Row{lcd.Row0, lcd.Row1} {
		dev, ctrl, _ := newTestDevice(t)
		dev.WriteLine([]byte("0123456789abcdef0123456789abcdef"), lcd.Row0)

		got := dev.ClearRow(row)

		if got != row {
			t.Errorf("ClearRow(%v): expected %v, got %v", row, row, got)
		}
		if text := ctrl.Row(int(row)); text != strings.Repeat(" ", 16) {
			t.Errorf("ClearRow(%v): row not blank: %q", row, text)
		}
		if text := ctrl.Row(int(row.Flip())); strings.TrimSpace(text) == "" {
			t.Errorf("ClearRow(%v): other row was blanked", row)
		}
	}
}

func TestWriteAt(t *testing.T) {
	dev, ctrl, _ := newTestDevice(t)

	dev.WriteAt(lcd.Row0, 0, []byte("W"))
	dev.WriteAt(lcd.Row1, 14, []byte("JKL"))
	dev.WriteAt(lcd.Row1, 16, []byte("ignored"))

	if got := ctrl.Row(0); got[0] != 'W' {
		t.Errorf("row 0: got %q", got)
	}
	if got := ctrl.Row(1); got[14:] != "JK" {
		t.Errorf("row 1: got %q", got)
	}
	if instr := ctrl.Instructions(); !bytes.Equal(instr, []byte{0x80, 0xCE}) {
		t.Errorf("instructions: expected [80 ce], got % x", instr)
	}
}

func TestRowFlip(t *testing.T) {
	if lcd.Row0.Flip() != lcd.Row1 || lcd.Row1.Flip() != lcd.Row0 {
		t.Error("Flip does not alternate rows")
	}
	if lcd.Row0.String() != "row0" || lcd.Row1.String() != "row1" {
		t.Errorf("unexpected names %s %s", lcd.Row0, lcd.Row1)
	}
}

func TestBackpackBus(t *testing.T) {
	clock := &lcdtest.Clock{}
	ctrl := lcdtest.NewController(clock)
	bp := lcdtest.NewBackpack(ctrl, lcd.DefaultBackpackAddress)
	bus := bp.Bus()
	dev := lcd.New(bus, lcd.Config{Delay: clock})

	dev.Configure()
	dev.WriteLine([]byte("over i2c"), lcd.Row1)

	if v := ctrl.Violations(); len(v) != 0 {
		t.Fatalf("expected no violations, got %v", v)
	}
	if got := strings.TrimRight(ctrl.Row(1), " "); got != "over i2c" {
		t.Errorf("row 1: expected %q, got %q", "over i2c", got)
	}
	if !bp.Backlight() {
		t.Error("expected backlight on")
	}
	if bp.ReadMode() {
		t.Error("expected RW low")
	}
	if err := bus.Err(); err != nil {
		t.Errorf("unexpected bus error: %v", err)
	}

	bus.SetBacklight(false)
	if bp.Backlight() {
		t.Error("expected backlight off")
	}
}

func TestBackpackBusKeepsRegisterSelect(t *testing.T) {
	clock := &lcdtest.Clock{}
	ctrl := lcdtest.NewController(clock)
	bp := lcdtest.NewBackpack(ctrl, 0x3F)
	bus := bp.Bus()

	bus.SetRegisterSelect(true)
	bus.SendNibble(0x50)

	for i, w := range bp.Writes()[1:] {
		if w&0x01 == 0 {
			t.Errorf("write %d (0x%02x): RS dropped", i+1, w)
		}
		if w&0xF0 != 0x50 {
			t.Errorf("write %d (0x%02x): expected data 0x5_", i+1, w)
		}
	}
}

func TestBackpackBusRecordsFirstError(t *testing.T) {
	clock := &lcdtest.Clock{}
	ctrl := lcdtest.NewController(clock)
	bp := lcdtest.NewBackpack(ctrl, lcd.DefaultBackpackAddress)
	bus := bp.Bus()

	first := errors.New("nack")
	bp.Fail(first)
	bus.SendNibble(0x30)
	bp.Fail(errors.New("later"))
	bus.SendNibble(0x30)

	if !errors.Is(bus.Err(), first) {
		t.Errorf("expected first error %v, got %v", first, bus.Err())
	}
}

func TestBackpackBusWrongAddress(t *testing.T) {
	clock := &lcdtest.Clock{}
	ctrl := lcdtest.NewController(clock)
	bp := lcdtest.NewBackpack(ctrl, 0x3F)
	bus := lcd.NewBackpackBus(bp, 0, clock)

	bus.SendNibble(0x30)

	if !errors.Is(bus.Err(), lcdtest.ErrNoDevice) {
		t.Errorf("expected ErrNoDevice for default address, got %v", bus.Err())
	}
}

func TestSpinDelayer(t *testing.T) {
	const d = 200 * time.Microsecond
	start := time.Now()
	lcd.SpinDelayer{}.Delay(d)
	if elapsed := time.Since(start); elapsed < d {
		t.Errorf("SpinDelayer returned after %v, expected at least %v", elapsed, d)
	}
}
