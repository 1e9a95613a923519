// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package serialbus opens a serial port as a tmc2209.Channel.
//
// The TMC2209 PDN_UART pin is a single wire shared by TX and RX, usually
// joined with a 1kΩ resistor, so every request is read back before the reply.
package serialbus

import (
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"

	"github.com/GermanBionicSystems/stepper/tmc2209"
)

// Config holds serial port configuration.
type Config struct {
	// Device path, e.g. "/dev/serial0".
	Device string
	// Baud rate. The chip detects it automatically from 9600 to 500k.
	Baud int
	// ReadTimeout bounds a single read. Zero blocks.
	ReadTimeout time.Duration
}

// DefaultConfig returns a configuration for device at 115200 baud.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 50 * time.Millisecond,
	}
}

// port is what Port needs from the underlying serial port.
type port interface {
	io.ReadWriteCloser
	Flush() error
}

// Port is an open serial port. It implements tmc2209.Channel.
type Port struct {
	p    port
	name string
	baud int
}

// Open opens the serial port described by cfg.
func Open(cfg *Config) (*Port, error) {
	if cfg == nil || cfg.Device == "" {
		return nil, &tmc2209.ConfigError{Field: "serial device"}
	}
	p, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("serialbus: failed to open %s: %w", cfg.Device, err)
	}
	return &Port{p: p, name: cfg.Device, baud: cfg.Baud}, nil
}

func (p *Port) String() string {
	return fmt.Sprintf("serialbus(%s@%d)", p.name, p.baud)
}

// Read implements io.Reader.
func (p *Port) Read(b []byte) (int, error) {
	return p.p.Read(b)
}

// Write implements io.Writer.
func (p *Port) Write(b []byte) (int, error) {
	return p.p.Write(b)
}

// Clear implements tmc2209.Channel.
//
// The kernel only offers flushing both directions at once, which is what
// both buffers get.
func (p *Port) Clear(tmc2209.Buffer) error {
	return p.p.Flush()
}

// Close closes the port.
func (p *Port) Close() error {
	return p.p.Close()
}

// SettleDelay returns the bus turnaround delay for this port's baud rate.
func (p *Port) SettleDelay() time.Duration {
	return tmc2209.SettleDelay(p.baud)
}

var _ tmc2209.Channel = &Port{}
