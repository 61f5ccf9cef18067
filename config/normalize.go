package config

const (
	DefaultBaudRate        = 57600
	DefaultSerialTimeoutMs = 100
	DefaultPeriodMs        = 500
	DefaultLogLevel        = "info"
)

// Normalize fills unset fields with their defaults.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.Serial.BaudRate == 0 {
		cfg.Serial.BaudRate = DefaultBaudRate
	}
	if cfg.Serial.TimeoutMs == 0 {
		cfg.Serial.TimeoutMs = DefaultSerialTimeoutMs
	}
	if cfg.Heartbeat.Pin != "" && cfg.Heartbeat.PeriodMs == 0 {
		cfg.Heartbeat.PeriodMs = DefaultPeriodMs
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
}
