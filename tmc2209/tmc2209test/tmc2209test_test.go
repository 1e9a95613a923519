// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package tmc2209test

import (
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/GermanBionicSystems/stepper/tmc2209"
)

func readAll(t *testing.T, c *Chip) []byte {
	t.Helper()
	b, err := io.ReadAll(c)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestChipEchoAndReply(t *testing.T) {
	c := NewChip()
	req := tmc2209.EncodeRead(0, tmc2209.CHOPCONF)
	if _, err := c.Write(req); err != nil {
		t.Fatal(err)
	}
	want := append([]byte(req), tmc2209.EncodeReply(tmc2209.CHOPCONF, Resets[tmc2209.CHOPCONF])...)
	if diff := cmp.Diff(want, readAll(t, c)); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestChipWriteCountsIFCNT(t *testing.T) {
	c := NewChip()
	c.SetRegister(0, tmc2209.IFCNT, 255)
	if _, err := c.Write(tmc2209.EncodeWrite(0, tmc2209.GCONF, 0x1c0)); err != nil {
		t.Fatal(err)
	}
	if v := c.Register(0, tmc2209.GCONF); v != 0x1c0 {
		t.Fatalf("%#x", v)
	}
	if v := c.Register(0, tmc2209.IFCNT); v != 0 {
		t.Fatalf("ifcnt %d", v)
	}
	if diff := cmp.Diff([]uint32{0x1c0}, c.Writes(0, tmc2209.GCONF)); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	// Writes are only echoed.
	if b := readAll(t, c); len(b) != tmc2209.WriteRequestLen {
		t.Fatalf("% x", b)
	}
}

func TestChipIgnoresBadFrames(t *testing.T) {
	c := NewChip(1)
	bad := tmc2209.EncodeWrite(1, tmc2209.GCONF, 0x1c0)
	bad[len(bad)-1] ^= 0xff
	for _, d := range [][]byte{bad, tmc2209.EncodeRead(0, tmc2209.GCONF), {0x55, 0x01}} {
		if _, err := c.Write(d); err != nil {
			t.Fatal(err)
		}
	}
	if len(c.Ops) != 0 {
		t.Fatal(c.Ops)
	}
	if c.Register(1, tmc2209.GCONF) != Resets[tmc2209.GCONF] {
		t.Fatal("register changed")
	}
}

func TestChipGStatWriteOneToClear(t *testing.T) {
	c := NewChip()
	c.SetRegister(0, tmc2209.GSTAT, 0x7)
	if _, err := c.Write(tmc2209.EncodeWrite(0, tmc2209.GSTAT, 0x5)); err != nil {
		t.Fatal(err)
	}
	if v := c.Register(0, tmc2209.GSTAT); v != 0x2 {
		t.Fatalf("%#x", v)
	}
}

func TestChipFaults(t *testing.T) {
	c := NewChip()
	c.FailWrites = 1
	if _, err := c.Write(tmc2209.EncodeRead(0, tmc2209.GCONF)); !errors.Is(err, ErrInjected) {
		t.Fatal(err)
	}
	c.CorruptReplies = 1
	if _, err := c.Write(tmc2209.EncodeRead(0, tmc2209.GCONF)); err != nil {
		t.Fatal(err)
	}
	b := readAll(t, c)
	if _, err := tmc2209.DecodeReply(tmc2209.GCONF, b); !errors.Is(err, tmc2209.ErrBadReply) {
		t.Fatal(err)
	}
	if err := c.Clear(tmc2209.Input); err != nil {
		t.Fatal(err)
	}
	if c.Clears[tmc2209.Input] != 1 || c.Pending() != 0 {
		t.Fatal(c.Clears)
	}
	c.Reset()
	if len(c.Ops) != 0 || len(c.Clears) != 0 {
		t.Fatal("not reset")
	}
}

func TestIOString(t *testing.T) {
	if s := (IO{Node: 1, Reg: tmc2209.GCONF, Write: true, Value: 0x41}).String(); s != "node 1 write GCONF=0x41" {
		t.Fatal(s)
	}
}
