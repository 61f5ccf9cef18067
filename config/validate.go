package config

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Validate checks configuration correctness. It does not mutate cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: empty", ErrInvalid)
	}

	// ------------------------------------------------------------
	// LCD BUS: six distinct lines
	// ------------------------------------------------------------

	if cfg.LCD.RS == "" || cfg.LCD.Enable == "" {
		return fmt.Errorf("%w: lcd: rs and enable are required", ErrInvalid)
	}
	if len(cfg.LCD.Data) != 4 {
		return fmt.Errorf("%w: lcd: data needs 4 pins (D4-D7), got %d", ErrInvalid, len(cfg.LCD.Data))
	}

	owner := map[string]string{}
	claim := func(pin, role string) error {
		if pin == "" {
			return fmt.Errorf("%w: %s: pin name is empty", ErrInvalid, role)
		}
		if prev, taken := owner[pin]; taken {
			return fmt.Errorf("%w: pin %s used as both %s and %s", ErrInvalid, pin, prev, role)
		}
		owner[pin] = role
		return nil
	}
	if err := claim(cfg.LCD.RS, "lcd.rs"); err != nil {
		return err
	}
	if err := claim(cfg.LCD.Enable, "lcd.enable"); err != nil {
		return err
	}
	for i, pin := range cfg.LCD.Data {
		if err := claim(pin, fmt.Sprintf("lcd.data[%d]", i)); err != nil {
			return err
		}
	}

	// ------------------------------------------------------------
	// HEARTBEAT: opt-in, never on an LCD line
	// ------------------------------------------------------------

	if cfg.Heartbeat.Pin != "" {
		if err := claim(cfg.Heartbeat.Pin, "heartbeat.pin"); err != nil {
			return err
		}
		if cfg.Heartbeat.PeriodMs < 0 {
			return fmt.Errorf("%w: heartbeat: period_ms must not be negative", ErrInvalid)
		}
	}

	// ------------------------------------------------------------
	// SERIAL
	// ------------------------------------------------------------

	if cfg.Serial.Device == "" {
		return fmt.Errorf("%w: serial: device is required", ErrInvalid)
	}
	if cfg.Serial.BaudRate <= 0 {
		return fmt.Errorf("%w: serial: baud_rate must be positive", ErrInvalid)
	}
	if cfg.Serial.TimeoutMs < 0 {
		return fmt.Errorf("%w: serial: timeout_ms must not be negative", ErrInvalid)
	}

	// ------------------------------------------------------------
	// LOG
	// ------------------------------------------------------------

	if _, err := cfg.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("%w: log: level %q", ErrInvalid, l.Level)
	}
	return lvl, nil
}
