// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package tmc2209

import (
	"testing"

	"periph.io/x/conn/v3/physic"
)

func TestCurrentScale(t *testing.T) {
	tests := []struct {
		run         physic.ElectricCurrent
		rsense      physic.ElectricResistance
		vsense      bool
		ratio       float64
		irun, ihold uint8
	}{
		{300 * physic.MilliAmpere, 110 * physic.MilliOhm, false, 0.5, 4, 2},
		{300 * physic.MilliAmpere, 110 * physic.MilliOhm, true, 0.5, 9, 4},
		{300 * physic.MilliAmpere, 110 * physic.MilliOhm, false, 1, 4, 4},
		{300 * physic.MilliAmpere, 110 * physic.MilliOhm, false, 0, 4, 0},
		{0, 110 * physic.MilliOhm, false, 0.5, 0, 0},
		{10 * physic.Ampere, 110 * physic.MilliOhm, false, 0.5, 31, 16},
	}
	for _, test := range tests {
		irun, ihold := CurrentScale(test.run, test.rsense, test.vsense, test.ratio)
		if irun != test.irun || ihold != test.ihold {
			t.Errorf("CurrentScale(%s, %s, %t, %g) = %d, %d; want %d, %d",
				test.run, test.rsense, test.vsense, test.ratio, irun, ihold, test.irun, test.ihold)
		}
	}
}
