// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package tmc2209

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/stepper/logger"
)

// MaxNode is the highest UART node address selectable with MS1/MS2.
const MaxNode uint8 = 3

// Opts holds the configuration of one driver.
type Opts struct {
	// Node is the UART node address, 0 to 3.
	Node uint8
	// Step receives one pulse per microstep. Required.
	Step gpio.PinOut
	// Dir is accepted for wiring symmetry but never driven: direction is the
	// GCONF shaft bit.
	Dir gpio.PinOut
	// Enable is the active low ENN line. Required.
	Enable gpio.PinOut
	// SenseResistor is the value of the external sense resistors.
	SenseResistor physic.ElectricResistance
	// PulseWidth is how long STEP is held high per step.
	PulseWidth time.Duration
	// HoldDelay is the IHOLDDELAY field written with the motor current, 1 to
	// 15. Zero selects DefaultOpts.HoldDelay, so the instant power down of
	// IHOLDDELAY=0 cannot be requested.
	HoldDelay uint8
	Logger    logger.Logger
}

// DefaultOpts fits the common TMC2209 breakout boards.
var DefaultOpts = Opts{
	SenseResistor: 110 * physic.MilliOhm,
	PulseWidth:    10 * time.Microsecond,
	HoldDelay:     10,
}

// Dev is a handle to one TMC2209 on a Bus.
type Dev struct {
	bus       *Bus
	node      uint8
	name      string
	owner     owner
	step      gpio.PinOut
	dir       gpio.PinOut
	enable    gpio.PinOut
	rsense    physic.ElectricResistance
	pulse     time.Duration
	holdDelay uint8
	log       logger.Logger
	halted    atomic.Bool

	mu             sync.Mutex
	stepsRemaining int32
	position       int32
	direction      Direction
}

// New returns a driver for the chip at opts.Node on bus.
//
// It claims the node address and the STEP and ENABLE lines on the bus, drives
// STEP low and leaves the motor disabled. Zero valued options take their
// value from DefaultOpts.
func New(bus *Bus, opts *Opts) (*Dev, error) {
	if bus == nil {
		return nil, &ConfigError{Field: "bus"}
	}
	if opts == nil {
		return nil, &ConfigError{Field: "opts"}
	}
	if opts.Step == nil {
		return nil, &ConfigError{Field: "step pin"}
	}
	if opts.Enable == nil {
		return nil, &ConfigError{Field: "enable pin"}
	}
	if opts.Node > MaxNode {
		return nil, fmt.Errorf("%w: node %d", ErrInvalidSetting, opts.Node)
	}
	d := &Dev{
		bus:       bus,
		node:      opts.Node,
		name:      fmt.Sprintf("TMC2209{node=%d}", opts.Node),
		step:      opts.Step,
		dir:       opts.Dir,
		enable:    opts.Enable,
		rsense:    opts.SenseResistor,
		pulse:     opts.PulseWidth,
		holdDelay: opts.HoldDelay,
		log:       opts.Logger,
	}
	if d.rsense <= 0 {
		d.rsense = DefaultOpts.SenseResistor
	}
	if d.pulse <= 0 {
		d.pulse = DefaultOpts.PulseWidth
	}
	if d.holdDelay == 0 {
		d.holdDelay = DefaultOpts.HoldDelay
	}
	if d.holdDelay > uint8(IHoldIRunIHoldDelay.Get(IHoldIRunIHoldDelay.Mask)) {
		return nil, fmt.Errorf("%w: hold delay %d", ErrInvalidSetting, d.holdDelay)
	}
	if d.log == nil {
		d.log = logger.Default()
	}
	d.log = d.log.With("driver", d.name)
	d.owner = bus.newOwner(d.name)

	if err := bus.claimNode(d.node, d.owner); err != nil {
		return nil, err
	}
	if err := d.acquire(); err != nil {
		d.release()
		return nil, err
	}
	return d, nil
}

// acquire claims and initializes the GPIO lines.
func (d *Dev) acquire() error {
	for _, p := range []gpio.PinOut{d.step, d.enable} {
		if err := d.bus.claimLine(p, d.owner); err != nil {
			return err
		}
	}
	if err := d.step.Out(gpio.Low); err != nil {
		return fmt.Errorf("%w: step line %s: %w", ErrGPIO, d.step, err)
	}
	if err := d.enable.Out(gpio.High); err != nil {
		return fmt.Errorf("%w: enable line %s: %w", ErrGPIO, d.enable, err)
	}
	return nil
}

func (d *Dev) release() {
	d.bus.releaseLine(d.step, d.owner)
	d.bus.releaseLine(d.enable, d.owner)
	d.bus.releaseNode(d.node, d.owner)
}

// String returns the device name in a readable format.
//
// String implements conn.Resource.
func (d *Dev) String() string {
	return d.name
}

// Halt disables the motor outputs and releases the node address and lines so
// another Dev can claim them. Afterwards every operation returns ErrHalted;
// calling Halt again does nothing.
//
// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	if d.halted.Swap(true) {
		return nil
	}
	err := d.setEnable(false)
	d.release()
	return err
}

// Node returns the UART node address.
func (d *Dev) Node() uint8 {
	return d.node
}

func (d *Dev) do(ctx context.Context, fn func(*Tx) error) error {
	if d.halted.Load() {
		return ErrHalted
	}
	return d.bus.Do(ctx, d.node, fn)
}

// EnableGConf sets a GCONF option.
func (d *Dev) EnableGConf(ctx context.Context, o GConfOption) error {
	return d.setGConf(ctx, o, true)
}

// DisableGConf clears a GCONF option.
func (d *Dev) DisableGConf(ctx context.Context, o GConfOption) error {
	return d.setGConf(ctx, o, false)
}

func (d *Dev) setGConf(ctx context.Context, o GConfOption, on bool) error {
	f, ok := gconfOptions[o]
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidSetting, o)
	}
	return d.do(ctx, func(tx *Tx) error { return tx.Update(f, on) })
}

// EnableChopConf sets a CHOPCONF option.
func (d *Dev) EnableChopConf(ctx context.Context, o ChopConfOption) error {
	return d.setChopConf(ctx, o, true)
}

// DisableChopConf clears a CHOPCONF option.
func (d *Dev) DisableChopConf(ctx context.Context, o ChopConfOption) error {
	return d.setChopConf(ctx, o, false)
}

func (d *Dev) setChopConf(ctx context.Context, o ChopConfOption, on bool) error {
	f, ok := chopconfOptions[o]
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidSetting, o)
	}
	return d.do(ctx, func(tx *Tx) error { return tx.Update(f, on) })
}

// SetMicrostepResolution sets CHOPCONF.MRES. Only bits 24 to 27 of CHOPCONF
// change.
//
// The chip only honors MRES when MStepRegSelect is enabled.
//
// Example:
//
//	err := dev.SetMicrostepResolution(ctx, tmc2209.Microsteps16)
func (d *Dev) SetMicrostepResolution(ctx context.Context, m MicrostepResolution) error {
	v, err := m.mres()
	if err != nil {
		return err
	}
	return d.do(ctx, func(tx *Tx) error { return tx.SetField(ChopConfMRES, v) })
}

// MicrostepResolution reads the microstep resolution from CHOPCONF.
func (d *Dev) MicrostepResolution(ctx context.Context) (MicrostepResolution, error) {
	c, err := d.ReadChopConf(ctx)
	return c.Microsteps, err
}

// SetReplyDelay sets SLAVECONF.SENDDELAY, the number of bit times the chip
// waits before answering a read: 8 for 0 and 1, then (n|1)*8 up to 120 for
// 15. Longer delays help when several nodes or a slow adapter share the line.
func (d *Dev) SetReplyDelay(ctx context.Context, n uint8) error {
	return d.writeField(ctx, SlaveConfDelay, uint32(n))
}

// SetPowerDownDelay sets TPOWERDOWN, the standstill time before the current
// drops to the hold current, in units of 2^18 clock cycles (about 21ms).
func (d *Dev) SetPowerDownDelay(ctx context.Context, n uint8) error {
	return d.writeField(ctx, TPowerDownValue, uint32(n))
}

// SetStealthChopThreshold sets TPWMTHRS. stealthChop is disabled once TSTEP
// drops below tstep, i.e. above the matching velocity. Zero disables the
// switch over.
func (d *Dev) SetStealthChopThreshold(ctx context.Context, tstep uint32) error {
	return d.writeField(ctx, TPWMThrsValue, tstep)
}

// writeField stores x into f of a write only register. Every other bit of
// the register is written as 0.
func (d *Dev) writeField(ctx context.Context, f Field, x uint32) error {
	if limit := f.Get(f.Mask); x > limit {
		return fmt.Errorf("%w: %s=%d, max %d", ErrInvalidSetting, f, x, limit)
	}
	return d.do(ctx, func(tx *Tx) error { return tx.WriteVerified(f.Reg, f.With(0, x)) })
}

// SetMotorEnabled drives the ENABLE line. It touches no register.
func (d *Dev) SetMotorEnabled(on bool) error {
	if d.halted.Load() {
		return ErrHalted
	}
	return d.setEnable(on)
}

func (d *Dev) setEnable(on bool) error {
	// ENN is active low.
	l := gpio.High
	if on {
		l = gpio.Low
	}
	if err := d.enable.Out(l); err != nil {
		return fmt.Errorf("%w: enable line %s: %w", ErrGPIO, d.enable, err)
	}
	d.log.Info("motor outputs", "enabled", on)
	return nil
}

func (d *Dev) read(ctx context.Context, reg Register) (uint32, error) {
	var v uint32
	err := d.do(ctx, func(tx *Tx) error {
		var err error
		v, err = tx.Read(reg)
		return err
	})
	return v, err
}

// ReadGConf reads GCONF. When the internal sense resistors are enabled the
// decoded value is returned along with ErrUnsafeConfiguration.
func (d *Dev) ReadGConf(ctx context.Context) (GConf, error) {
	v, err := d.read(ctx, GCONF)
	if err != nil {
		return GConf{}, err
	}
	g := decodeGConf(v)
	if g.InternalRSense {
		return g, fmt.Errorf("%w: %s", ErrUnsafeConfiguration, GConfInternalRSense)
	}
	return g, nil
}

// CheckGConf reads GCONF and logs every option. If the internal sense
// resistors are enabled the process exits through the logger's Fatal, since
// driving a board with external sense resistors this way destroys it.
func (d *Dev) CheckGConf(ctx context.Context) (GConf, error) {
	g, err := d.ReadGConf(ctx)
	if errors.Is(err, ErrUnsafeConfiguration) {
		d.log.Fatal("internal sense resistors enabled, refusing to continue", "gconf", g.String())
		return g, err
	}
	if err != nil {
		return g, err
	}
	g.report(d.log)
	return g, nil
}

// ReadGStat reads the sticky GSTAT flags.
func (d *Dev) ReadGStat(ctx context.Context) (GStat, error) {
	v, err := d.read(ctx, GSTAT)
	return decodeGStat(v), err
}

// ClearGStat clears every set GSTAT flag by writing it back as 1.
func (d *Dev) ClearGStat(ctx context.Context) error {
	return d.do(ctx, func(tx *Tx) error {
		v, err := tx.Read(GSTAT)
		if err != nil {
			return err
		}
		v &= GStatReset.Mask | GStatDrvErr.Mask | GStatUVCP.Mask
		if v == 0 {
			return nil
		}
		return tx.WriteVerified(GSTAT, v)
	})
}

// ReadInputPins reads IOIN.
func (d *Dev) ReadInputPins(ctx context.Context) (InputPins, error) {
	v, err := d.read(ctx, IOIN)
	return decodeInputPins(v), err
}

// ReadChopConf reads CHOPCONF.
func (d *Dev) ReadChopConf(ctx context.Context) (ChopConf, error) {
	v, err := d.read(ctx, CHOPCONF)
	return decodeChopConf(v), err
}

// ReadDriverStatus reads DRV_STATUS.
func (d *Dev) ReadDriverStatus(ctx context.Context) (DriverStatus, error) {
	v, err := d.read(ctx, DRVSTATUS)
	return decodeDriverStatus(v), err
}

// ReadIFCNT reads the interface write counter.
func (d *Dev) ReadIFCNT(ctx context.Context) (uint8, error) {
	var n uint8
	err := d.do(ctx, func(tx *Tx) error {
		var err error
		n, err = tx.ReadIFCNT()
		return err
	})
	return n, err
}

// ReadStepTime reads TSTEP, the measured time between two microsteps in
// clock cycles. It saturates at 2^20-1 when the motor stands still.
func (d *Dev) ReadStepTime(ctx context.Context) (uint32, error) {
	v, err := d.read(ctx, TSTEP)
	return TStepValue.Get(v), err
}

// ReadMicrostepCounter reads MSCNT, the position in the microstep table.
func (d *Dev) ReadMicrostepCounter(ctx context.Context) (uint16, error) {
	v, err := d.read(ctx, MSCNT)
	return uint16(MSCNTValue.Get(v)), err
}

// Report reads IOIN, CHOPCONF, DRV_STATUS, GSTAT and GCONF and logs every
// documented flag. Reading stops at the first bus error.
func (d *Dev) Report(ctx context.Context) error {
	p, err := d.ReadInputPins(ctx)
	if err != nil {
		return err
	}
	p.report(d.log)
	c, err := d.ReadChopConf(ctx)
	if err != nil {
		return err
	}
	c.report(d.log)
	s, err := d.ReadDriverStatus(ctx)
	if err != nil {
		return err
	}
	s.report(d.log)
	g, err := d.ReadGStat(ctx)
	if err != nil {
		return err
	}
	g.report(d.log)
	_, err = d.CheckGConf(ctx)
	return err
}

var _ conn.Resource = &Dev{}
var _ fmt.Stringer = &Dev{}
