// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package tmc2209_test

import (
	"errors"
	"testing"
	"time"

	"github.com/GermanBionicSystems/stepper/logger"
	"github.com/GermanBionicSystems/stepper/tmc2209"
	"github.com/GermanBionicSystems/stepper/tmc2209/tmc2209test"
)

// fastOpts keeps the tests from sleeping.
func fastOpts(attempts int) *tmc2209.BusOpts {
	return &tmc2209.BusOpts{
		Attempts:    attempts,
		SettleDelay: time.Nanosecond,
		RetryDelay:  -1,
		Logger:      logger.Nop(),
	}
}

func isErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("got error %v, want %v", err, want)
	}
}

func TestTransportSendAndReceive(t *testing.T) {
	chip := tmc2209test.NewChip()
	tr := tmc2209.NewTransport(chip, fastOpts(3))

	p, err := tr.SendAndReceive(tmc2209.EncodeRead(0, tmc2209.CHOPCONF))
	if err != nil {
		t.Fatal(err)
	}
	if p != [4]byte{0x10, 0x00, 0x00, 0x53} {
		t.Fatalf("payload % x", p)
	}
	if chip.Clears[tmc2209.Input] != 1 || chip.Clears[tmc2209.Output] != 1 {
		t.Fatalf("clears %v", chip.Clears)
	}
	if n := chip.Pending(); n != 0 {
		t.Fatalf("%d bytes left unread", n)
	}
}

func TestTransportSend(t *testing.T) {
	chip := tmc2209test.NewChip()
	tr := tmc2209.NewTransport(chip, fastOpts(3))

	if err := tr.Send(tmc2209.EncodeWrite(0, tmc2209.GCONF, 0x1c1)); err != nil {
		t.Fatal(err)
	}
	if v := chip.Register(0, tmc2209.GCONF); v != 0x1c1 {
		t.Fatalf("GCONF=%#x", v)
	}
	if v := chip.Register(0, tmc2209.IFCNT); v != 1 {
		t.Fatalf("IFCNT=%d", v)
	}
}

func TestTransportRetriesCorruptReply(t *testing.T) {
	chip := tmc2209test.NewChip()
	chip.CorruptReplies = 2
	tr := tmc2209.NewTransport(chip, fastOpts(3))

	p, err := tr.SendAndReceive(tmc2209.EncodeRead(0, tmc2209.GCONF))
	if err != nil {
		t.Fatal(err)
	}
	if p != [4]byte{0, 0, 0, 0x41} {
		t.Fatalf("payload % x", p)
	}
	if len(chip.Ops) != 3 {
		t.Fatalf("%d attempts, want 3", len(chip.Ops))
	}
}

func TestTransportRetriesWriteError(t *testing.T) {
	chip := tmc2209test.NewChip()
	chip.FailWrites = 2
	tr := tmc2209.NewTransport(chip, fastOpts(3))

	if err := tr.Send(tmc2209.EncodeWrite(0, tmc2209.TPOWERDOWN, 20)); err != nil {
		t.Fatal(err)
	}
	if v := chip.Register(0, tmc2209.TPOWERDOWN); v != 20 {
		t.Fatalf("TPOWERDOWN=%d", v)
	}
}

func TestTransportExhausted(t *testing.T) {
	chip := tmc2209test.NewChip()
	chip.Silent = true
	tr := tmc2209.NewTransport(chip, fastOpts(4))

	_, err := tr.SendAndReceive(tmc2209.EncodeRead(0, tmc2209.GCONF))
	isErr(t, err, tmc2209.ErrTransport)
	isErr(t, err, tmc2209.ErrFrameLength)
	if len(chip.Ops) != 4 {
		t.Fatalf("%d attempts, want 4", len(chip.Ops))
	}
}

func TestTransportUnknownNode(t *testing.T) {
	chip := tmc2209test.NewChip(0)
	tr := tmc2209.NewTransport(chip, fastOpts(2))

	_, err := tr.SendAndReceive(tmc2209.EncodeRead(3, tmc2209.GCONF))
	isErr(t, err, tmc2209.ErrTransport)
}

func TestTransportShortWriteIsNotRetried(t *testing.T) {
	chip := tmc2209test.NewChip()
	chip.ShortWrites = true
	tr := tmc2209.NewTransport(chip, fastOpts(5))

	err := tr.Send(tmc2209.EncodeWrite(0, tmc2209.GCONF, 0))
	isErr(t, err, tmc2209.ErrFrameLength)
	if errors.Is(err, tmc2209.ErrTransport) {
		t.Fatalf("short write was retried: %v", err)
	}
	if len(chip.Ops) != 1 {
		t.Fatalf("%d attempts, want 1", len(chip.Ops))
	}
}

func TestTransportRetryDelay(t *testing.T) {
	chip := tmc2209test.NewChip()
	chip.Silent = true
	opts := fastOpts(3)
	opts.RetryDelay = 5 * time.Millisecond
	opts.MaxRetryDelay = 5 * time.Millisecond
	tr := tmc2209.NewTransport(chip, opts)

	start := time.Now()
	_, err := tr.SendAndReceive(tmc2209.EncodeRead(0, tmc2209.GCONF))
	isErr(t, err, tmc2209.ErrTransport)
	if d := time.Since(start); d < 10*time.Millisecond {
		t.Fatalf("3 attempts took %s, want 2 pauses of 5ms", d)
	}
}

func TestSettleDelay(t *testing.T) {
	if d := tmc2209.SettleDelay(115200).Round(10 * time.Microsecond); d != 4340*time.Microsecond {
		t.Fatal(d)
	}
	if d := tmc2209.SettleDelay(0); d != tmc2209.DefaultBusOpts.SettleDelay {
		t.Fatal(d)
	}
}
