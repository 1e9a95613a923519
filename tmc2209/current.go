// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package tmc2209

import (
	"context"
	"fmt"
	"math"

	"periph.io/x/conn/v3/physic"
)

// Full scale sense voltages selected by CHOPCONF.VSENSE.
const (
	vfsLowSensitivity  = 0.325
	vfsHighSensitivity = 0.180
)

// rsenseTrace is the resistance of the internal switches and traces in
// series with the sense resistor, in ohms.
const rsenseTrace = 0.02

// maxCurrentScale is the largest IRUN/IHOLD value.
const maxCurrentScale = 31

// DefaultHoldRatio derates the hold current to half of the run current.
const DefaultHoldRatio = 0.5

// CurrentScale converts a run current into the IRUN and IHOLD register
// values for the given sense resistor and VSENSE setting. IRUN is clamped to
// 0..31 and IHOLD is holdRatio times the clamped IRUN; both are rounded.
func CurrentScale(run physic.ElectricCurrent, rsense physic.ElectricResistance, vsense bool, holdRatio float64) (irun, ihold uint8) {
	vfs := vfsLowSensitivity
	if vsense {
		vfs = vfsHighSensitivity
	}
	mA := float64(run) / float64(physic.MilliAmpere)
	ohms := float64(rsense) / float64(physic.Ohm)
	cs := 32*math.Sqrt2*mA/1000*(ohms+rsenseTrace)/vfs - 1
	cs = math.Max(0, math.Min(maxCurrentScale, cs))
	holdRatio = math.Max(0, math.Min(1, holdRatio))
	return uint8(math.Round(cs)), uint8(math.Round(holdRatio * cs))
}

// SetCurrent sets the motor run current, with the hold current at
// DefaultHoldRatio of it.
//
// Example:
//
//	err := dev.SetCurrent(ctx, 300*physic.MilliAmpere)
func (d *Dev) SetCurrent(ctx context.Context, run physic.ElectricCurrent) error {
	return d.SetCurrentHold(ctx, run, DefaultHoldRatio)
}

// SetCurrentHold sets the motor run current and the hold current as a
// fraction of it. The VSENSE bit is read first to pick the full scale
// voltage.
func (d *Dev) SetCurrentHold(ctx context.Context, run physic.ElectricCurrent, holdRatio float64) error {
	if run < 0 || holdRatio < 0 || holdRatio > 1 {
		return fmt.Errorf("%w: current %s hold ratio %g", ErrInvalidSetting, run, holdRatio)
	}
	return d.do(ctx, func(tx *Tx) error {
		chop, err := tx.Read(CHOPCONF)
		if err != nil {
			return err
		}
		irun, ihold := CurrentScale(run, d.rsense, ChopConfVSense.IsSet(chop), holdRatio)
		v := IHoldIRunIHold.With(0, uint32(ihold))
		v = IHoldIRunIRun.With(v, uint32(irun))
		v = IHoldIRunIHoldDelay.With(v, uint32(d.holdDelay))
		d.log.Info("setting motor current", "run", run, "irun", irun, "ihold", ihold)
		return tx.WriteVerified(IHOLDIRUN, v)
	})
}
