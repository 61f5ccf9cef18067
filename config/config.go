// Package config loads the YAML settings of the Linux build.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LCD       LCDConfig       `yaml:"lcd"`
	Serial    SerialConfig    `yaml:"serial"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Log       LogConfig       `yaml:"log"`
}

// ---- LCD ----

type LCDConfig struct {
	RS     string   `yaml:"rs"`
	Enable string   `yaml:"enable"`
	Data   []string `yaml:"data"` // D4..D7, in that order

	// Blink turns on the blinking block cursor.
	Blink bool `yaml:"blink"`
	// SpinDelay busy-waits short delays instead of sleeping.
	SpinDelay bool `yaml:"spin_delay"`
}

// ---- SERIAL ----

type SerialConfig struct {
	Device    string `yaml:"device"`
	BaudRate  int    `yaml:"baud_rate"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- HEARTBEAT (optional) ----

type HeartbeatConfig struct {
	Pin      string `yaml:"pin"`
	PeriodMs int    `yaml:"period_ms"`
}

// ---- LOG ----

type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Load reads, decodes and normalizes the file at path. Unknown keys are
// rejected. Call Validate on the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes YAML and fills defaults.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	Normalize(&cfg)
	return &cfg, nil
}
