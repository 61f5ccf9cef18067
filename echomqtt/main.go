//go:build tinygo

// Echo firmware for a Raspberry Pi Pico W: lines published to
// <prefix>/in on an MQTT broker are shown on a 16x2 LCD behind a PCF8574
// I2C backpack and echoed to <prefix>/out.
//
// Wi-Fi credentials and the broker come from linker flags, see package wifi
// and the broker variable below.
package main

import (
	"context"
	"errors"
	"log/slog"
	"machine"
	"time"

	"github.com/harveysanders/lcdecho/console"
	"github.com/harveysanders/lcdecho/heartbeat"
	"github.com/harveysanders/lcdecho/lcd"
	"github.com/harveysanders/lcdecho/mqtt"
	"github.com/harveysanders/lcdecho/wifi"
)

// Set with -ldflags "-X main.broker=host:port -X main.prefix=...".
var (
	broker = "10.0.0.9:1883"
	prefix = "lcdecho"
)

func main() {
	logger := slog.New(slog.NewTextHandler(machine.Serial, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	led := machine.GP21
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	blinker, err := heartbeat.New(led, heartbeat.DefaultPeriod, nil)
	if err != nil {
		printErrForever(logger, "heartbeat", slog.Any("reason", err))
	}
	go blinker.Run(context.Background())

	// Setup LCD display over I2C
	err = machine.I2C0.Configure(machine.I2CConfig{
		SDA: machine.GP4,
		SCL: machine.GP5,
	})
	if err != nil {
		printErrForever(logger, "configure I2C", slog.Any("reason", err))
	}
	dev, err := configureLCD(machine.I2C0, logger)
	if err != nil {
		printErrForever(logger, "configure LCD", slog.Any("reason", err))
	}
	status(dev, "Joining Wi-Fi", wifi.SSID())

	stack, err := wifi.Join(wifi.Config{Hostname: "lcdecho", Logger: logger})
	if err != nil {
		printErrForever(logger, "join Wi-Fi", slog.Any("reason", err))
	}

	// The console keeps its row across reconnects.
	transport := mqtt.New(mqtt.Config{
		ID:     "lcdecho",
		Prefix: prefix,
		Logger: logger,
	})
	c := console.New(dev, transport, console.Config{Logger: logger})
	for {
		status(dev, "Connecting...", broker)
		conn, err := stack.Dial(broker, 2030) // MTU - ethhdr - iphdr - tcphdr
		if err != nil {
			logger.Error("socket:dial-failed", slog.Any("reason", err))
			status(dev, "Dial failed", broker)
			time.Sleep(2 * time.Second)
			continue
		}
		if err := transport.Connect(context.Background(), conn); err != nil {
			logger.Error("mqtt:connect-failed", slog.Any("reason", err))
			status(dev, "Connect failed", "Retrying...")
			wifi.Close(conn)
			continue
		}
		status(dev, "MQTT connected", transport.TopicIn())
		err = c.Run(context.Background())
		logger.Error("console:stopped", slog.Any("reason", err))
		wifi.Close(conn)
	}
}

// status shows a two-line message; text past 16 characters is cut.
func status(dev *lcd.Device, top, bottom string) {
	dev.ClearRow(lcd.Row0)
	dev.WriteAt(lcd.Row0, 0, []byte(top))
	dev.ClearRow(lcd.Row1)
	dev.WriteAt(lcd.Row1, 0, []byte(bottom))
}

// configureLCD takes a preconfigured I2C peripheral and initializes the
// LCD on the first common backpack address (0x27, 0x3F) that answers.
func configureLCD(i2c *machine.I2C, logger *slog.Logger) (*lcd.Device, error) {
	for _, addr := range []uint16{0x27, 0x3F} {
		bus := lcd.NewBackpackBus(i2c, addr, lcd.SpinDelayer{})
		bus.SetBacklight(true)
		if bus.Err() != nil {
			continue
		}
		dev := lcd.New(bus, lcd.Config{Delay: lcd.SpinDelayer{}, Logger: logger})
		dev.Configure()
		if err := bus.Err(); err != nil {
			return nil, err
		}
		logger.Info("lcd:found", slog.Uint64("addr", uint64(addr)))
		return dev, nil
	}
	return nil, errors.New("LCD not found on addresses: 0x27, 0x3f")
}

// printErrForever prints an error to serial @ 1hz. It blocks forever.
func printErrForever(logger *slog.Logger, msg string, args ...any) {
	for {
		logger.Error(msg, args...)
		time.Sleep(time.Second)
	}
}
