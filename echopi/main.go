// Echo console for a Linux board such as the Raspberry Pi: the LCD is wired
// to GPIO, the terminal hangs off a serial device. Everything is set in a
// YAML file, see config/example.yaml.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	goserial "github.com/goburrow/serial"

	"github.com/harveysanders/lcdecho/config"
	"github.com/harveysanders/lcdecho/console"
	"github.com/harveysanders/lcdecho/heartbeat"
	"github.com/harveysanders/lcdecho/hostpin"
	"github.com/harveysanders/lcdecho/lcd"
	"github.com/harveysanders/lcdecho/serial"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: echopi <config.yaml>")
	}

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(os.Args[1])
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("config validation failed: %v", err)
	}
	level, _ := cfg.Log.SlogLevel()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --------------------
	// LCD on GPIO
	// --------------------

	if err := hostpin.Init(); err != nil {
		log.Fatal(err)
	}
	pins, err := hostpin.OpenBus(cfg.LCD.RS, cfg.LCD.Enable,
		[4]string{cfg.LCD.Data[0], cfg.LCD.Data[1], cfg.LCD.Data[2], cfg.LCD.Data[3]})
	if err != nil {
		log.Fatal(err)
	}
	var delay lcd.Delayer = lcd.SleepDelayer{}
	if cfg.LCD.SpinDelay {
		delay = lcd.SpinDelayer{}
	}
	bus := lcd.NewGPIOBus(pins.RS, pins.E,
		[4]lcd.Pin{pins.Data[0], pins.Data[1], pins.Data[2], pins.Data[3]}, delay)
	dev := lcd.New(bus, lcd.Config{Delay: delay, Logger: logger, Blink: cfg.LCD.Blink})
	dev.Configure()
	if err := pins.Err(); err != nil {
		log.Fatalf("lcd init failed: %v", err)
	}

	// --------------------
	// Heartbeat (optional)
	// --------------------

	if cfg.Heartbeat.Pin != "" {
		led, err := hostpin.ByName(cfg.Heartbeat.Pin)
		if err != nil {
			log.Fatal(err)
		}
		blinker, err := heartbeat.New(led, time.Duration(cfg.Heartbeat.PeriodMs)*time.Millisecond, bus.Pins())
		if err != nil {
			log.Fatal(err)
		}
		go blinker.Run(ctx)
	}

	// --------------------
	// Serial terminal
	// --------------------

	sp, err := goserial.Open(&goserial.Config{
		Address:  cfg.Serial.Device,
		BaudRate: cfg.Serial.BaudRate,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  time.Duration(cfg.Serial.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		log.Fatalf("open %s: %v", cfg.Serial.Device, err)
	}
	go func() {
		// Closing the device unblocks the pending read.
		<-ctx.Done()
		sp.Close()
	}()
	port := serial.NewReadWriter(sp, serial.Config{
		Logger:    logger,
		Transient: func(err error) bool { return errors.Is(err, goserial.ErrTimeout) },
	})

	logger.Info("echopi:ready", slog.String("serial", cfg.Serial.Device), slog.Int("baud", cfg.Serial.BaudRate))
	c := console.New(dev, port, console.Config{Logger: logger})
	err = c.Run(ctx)
	if ctx.Err() != nil {
		logger.Info("echopi:stopped")
		return
	}
	if err != nil {
		log.Fatalf("console failed: %v", err)
	}
}
