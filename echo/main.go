//go:build tinygo

// Echo firmware for a Raspberry Pi Pico: reads lines from a terminal on
// UART0, shows them on a 16x2 HD44780 LCD wired in 4-bit mode and echoes
// them back. Logs go to the USB serial port.
//
// Wiring: RS=GP10, E=GP11, D4-D7=GP12-GP15, RW to ground.
// Terminal: UART0 TX=GP0, RX=GP1, 57600 8N1. Heartbeat LED on GP21.
package main

import (
	"context"
	"log/slog"
	"machine"
	"time"

	"github.com/harveysanders/lcdecho/console"
	"github.com/harveysanders/lcdecho/heartbeat"
	"github.com/harveysanders/lcdecho/lcd"
	"github.com/harveysanders/lcdecho/serial"
)

func main() {
	logger := slog.New(slog.NewTextHandler(machine.Serial, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	rs, e := machine.GP10, machine.GP11
	data := [4]machine.Pin{machine.GP12, machine.GP13, machine.GP14, machine.GP15}
	for _, p := range append([]machine.Pin{rs, e}, data[:]...) {
		p.Configure(machine.PinConfig{Mode: machine.PinOutput})
		p.Low()
	}
	bus := lcd.NewGPIOBus(rs, e, [4]lcd.Pin{data[0], data[1], data[2], data[3]}, lcd.SpinDelayer{})

	led := machine.GP21
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	blinker, err := heartbeat.New(led, heartbeat.DefaultPeriod, bus.Pins())
	if err != nil {
		printErrForever(logger, "heartbeat", slog.Any("reason", err))
	}
	go blinker.Run(context.Background())

	dev := lcd.New(bus, lcd.Config{Delay: lcd.SpinDelayer{}, Logger: logger})
	dev.Configure()

	uart := machine.UART0
	err = uart.Configure(machine.UARTConfig{
		BaudRate: serial.DefaultBaudRate,
		TX:       machine.UART0_TX_PIN,
		RX:       machine.UART0_RX_PIN,
	})
	if err != nil {
		printErrForever(logger, "configure UART", slog.Any("reason", err))
	}
	port := serial.New(uart, serial.Config{Logger: logger})

	c := console.New(dev, port, console.Config{Logger: logger})
	for {
		// A UART never reaches EOF; Run only returns on a write failure.
		if err := c.Run(context.Background()); err != nil {
			logger.Error("console:stopped", slog.Any("reason", err))
		}
		time.Sleep(time.Second)
	}
}

// printErrForever prints an error to serial @ 1hz. It blocks forever.
func printErrForever(logger *slog.Logger, msg string, args ...any) {
	for {
		logger.Error(msg, args...)
		time.Sleep(time.Second)
	}
}
