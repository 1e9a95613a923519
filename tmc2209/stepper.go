// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package tmc2209

import (
	"context"
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// DefaultStepInterval paces MoveSteps when no interval is given. It, not the
// pulse width, sets the step rate.
const DefaultStepInterval = 2 * time.Millisecond

// Direction is the rotation direction of the motor.
type Direction int8

const (
	// DirectionUnknown is the state before the first step; the first step
	// always writes the direction.
	DirectionUnknown Direction = iota
	// Clockwise is the forward direction, GCONF shaft cleared.
	Clockwise
	// CounterClockwise is the reverse direction, GCONF shaft set.
	CounterClockwise
)

func (d Direction) String() string {
	switch d {
	case Clockwise:
		return "CW"
	case CounterClockwise:
		return "CCW"
	}
	return "unknown"
}

// SetStepsToMove sets the pending signed step count. Positive values move
// forward, negative values move in reverse.
func (d *Dev) SetStepsToMove(n int32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stepsRemaining = n
}

// StepsRemaining returns the pending signed step count.
func (d *Dev) StepsRemaining() int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stepsRemaining
}

// Position returns the logical position in microsteps.
func (d *Dev) Position() int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.position
}

// Direction returns the last direction written to the chip.
func (d *Dev) Direction() Direction {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.direction
}

// SetDirection writes the GCONF shaft bit if dir differs from the current
// direction.
func (d *Dev) SetDirection(ctx context.Context, dir Direction) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setDirection(ctx, dir)
}

func (d *Dev) setDirection(ctx context.Context, dir Direction) error {
	if dir != Clockwise && dir != CounterClockwise {
		return fmt.Errorf("%w: direction %s", ErrInvalidSetting, dir)
	}
	if dir == d.direction {
		return nil
	}
	err := d.do(ctx, func(tx *Tx) error {
		return tx.Update(GConfShaft, dir == CounterClockwise)
	})
	if err != nil {
		return err
	}
	d.log.Debug("direction changed", "from", d.direction, "to", dir)
	d.direction = dir
	return nil
}

// Step moves one microstep toward the pending target.
//
// It returns ErrNoStepsRemaining, without pulsing, once the pending count is
// zero. The counters only change after the pulse went out.
func (d *Dev) Step(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.halted.Load() {
		return ErrHalted
	}
	var dir Direction
	var delta int32
	switch {
	case d.stepsRemaining > 0:
		dir, delta = Clockwise, 1
	case d.stepsRemaining < 0:
		dir, delta = CounterClockwise, -1
	default:
		return ErrNoStepsRemaining
	}
	if err := d.setDirection(ctx, dir); err != nil {
		return err
	}
	if err := d.pulseStep(); err != nil {
		return err
	}
	d.stepsRemaining -= delta
	d.position += delta
	return nil
}

func (d *Dev) pulseStep() error {
	if err := d.step.Out(gpio.High); err != nil {
		return fmt.Errorf("%w: step line %s: %w", ErrGPIO, d.step, err)
	}
	time.Sleep(d.pulse)
	if err := d.step.Out(gpio.Low); err != nil {
		return fmt.Errorf("%w: step line %s: %w", ErrGPIO, d.step, err)
	}
	return nil
}

// MoveSteps moves n microsteps relative to the current position, calling
// Step once per interval until nothing remains. A non positive interval
// uses DefaultStepInterval. There is no acceleration ramp.
//
// Cancelling ctx stops the move between two steps; the remaining count is
// kept so the move can be resumed with Resume.
func (d *Dev) MoveSteps(ctx context.Context, n int32, interval time.Duration) error {
	d.SetStepsToMove(n)
	return d.Resume(ctx, interval)
}

// MoveTo moves to the absolute position target.
func (d *Dev) MoveTo(ctx context.Context, target int32, interval time.Duration) error {
	return d.MoveSteps(ctx, target-d.Position(), interval)
}

// Resume keeps stepping until the pending count reaches zero.
func (d *Dev) Resume(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultStepInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if err := d.Step(ctx); err != nil {
			if errors.Is(err, ErrNoStepsRemaining) {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
