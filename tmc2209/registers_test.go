// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package tmc2209

import (
	"errors"
	"math/bits"
	"math/rand"
	"testing"
)

func TestFieldsDoNotOverlap(t *testing.T) {
	for reg, info := range registers {
		var seen uint32
		for _, f := range Fields(reg) {
			if f.Mask == 0 {
				t.Errorf("%s has an empty mask", f)
			}
			if seen&f.Mask != 0 {
				t.Errorf("%s overlaps another field of %s", f, reg)
			}
			seen |= f.Mask
		}
		if w := bits.Len32(seen); w > int(info.width) && info.width != 32 {
			t.Errorf("%s fields use %d bits, register is %d wide", reg, w, info.width)
		}
	}
}

func TestFieldsBelongToKnownRegisters(t *testing.T) {
	for _, f := range allFields {
		if _, ok := registers[f.Reg]; !ok {
			t.Errorf("%s on unknown register", f)
		}
	}
}

func TestRegisterAccess(t *testing.T) {
	if !GCONF.Readable() || !GCONF.Writable() {
		t.Error("GCONF is read/write")
	}
	if IHOLDIRUN.Readable() || !IHOLDIRUN.Writable() {
		t.Error("IHOLD_IRUN is write only")
	}
	if !IFCNT.Readable() || IFCNT.Writable() {
		t.Error("IFCNT is read only")
	}
	if Register(0x7f).Readable() || Register(0x7f).Writable() {
		t.Error("unknown register is accessible")
	}
	if s := Register(0x7f).String(); s != "REG(0x7f)" {
		t.Error(s)
	}
}

func TestFieldWith(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for range 100 {
		v := rng.Uint32()
		x := rng.Uint32()
		for _, f := range Fields(CHOPCONF) {
			got := f.With(v, x)
			if got&^f.Mask != v&^f.Mask {
				t.Fatalf("%s.With(%#x, %#x) changed other bits: %#x", f, v, x, got)
			}
			if f.Get(got) != x&f.Get(f.Mask) {
				t.Fatalf("%s.With(%#x, %#x) = %#x", f, v, x, got)
			}
		}
	}
}

func TestFieldSetClear(t *testing.T) {
	v := GConfShaft.Set(0x41)
	if v != 0x49 || !GConfShaft.IsSet(v) {
		t.Fatalf("%#x", v)
	}
	if v = GConfShaft.Clear(v); v != 0x41 || GConfShaft.IsSet(v) {
		t.Fatalf("%#x", v)
	}
}

func TestMicrostepResolutionEncoding(t *testing.T) {
	tests := []struct {
		m    MicrostepResolution
		mres uint32
	}{
		{Microsteps256, 0},
		{Microsteps128, 1},
		{Microsteps64, 2},
		{Microsteps32, 3},
		{Microsteps16, 4},
		{Microsteps8, 5},
		{Microsteps4, 6},
		{Microsteps2, 7},
		{FullStep, 8},
	}
	for _, test := range tests {
		v, err := test.m.mres()
		if err != nil || v != test.mres {
			t.Errorf("%d.mres() = %d, %v; want %d", test.m, v, err, test.mres)
		}
		if m := microstepsFromMRES(test.mres); m != test.m {
			t.Errorf("microstepsFromMRES(%d) = %d; want %d", test.mres, m, test.m)
		}
	}
	for _, bad := range []MicrostepResolution{0, 3, 12, 512} {
		if _, err := bad.mres(); !errors.Is(err, ErrInvalidSetting) {
			t.Errorf("%d.mres() = %v", bad, err)
		}
	}
	for v := uint32(9); v < 16; v++ {
		if m := microstepsFromMRES(v); m != FullStep {
			t.Errorf("microstepsFromMRES(%d) = %d", v, m)
		}
	}
}

func TestMRESPreservesChopConf(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for range 50 {
		before := rng.Uint32()
		v, _ := Microsteps16.mres()
		after := ChopConfMRES.With(before, v)
		if after&^ChopConfMRES.Mask != before&^ChopConfMRES.Mask {
			t.Fatalf("%#08x -> %#08x changed bits outside MRES", before, after)
		}
		if got := microstepsFromMRES(ChopConfMRES.Get(after)); got != Microsteps16 {
			t.Fatalf("got %d", got)
		}
	}
}

func TestIFCNTAdvanced(t *testing.T) {
	tests := []struct {
		before, after uint8
		want          bool
	}{
		{0, 1, true},
		{5, 5, false},
		{10, 9, false},
		{255, 0, true},
		{254, 1, true},
		{0, 0x7f, true},
		{0, 0x80, false},
	}
	for _, test := range tests {
		if got := ifcntAdvanced(test.before, test.after); got != test.want {
			t.Errorf("ifcntAdvanced(%d, %d) = %t", test.before, test.after, got)
		}
	}
}

func TestOptionStrings(t *testing.T) {
	if s := SpreadCycle.String(); s != "GCONF.en_spreadcycle" {
		t.Error(s)
	}
	if s := GConfOption(99).String(); s != "GConfOption(99)" {
		t.Error(s)
	}
	if s := VSense.String(); s != "CHOPCONF.vsense" {
		t.Error(s)
	}
}
