// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package tmc2209

import (
	"errors"
	"fmt"
)

var (
	// ErrFrameLength is returned when the number of bytes written or read
	// differs from the datagram length.
	ErrFrameLength = errors.New("tmc2209: frame length mismatch")

	// ErrBadReply is returned when a reply has the right length but a wrong
	// header or CRC.
	ErrBadReply = errors.New("tmc2209: malformed reply")

	// ErrTransport is returned once a bus exchange failed on every attempt.
	ErrTransport = errors.New("tmc2209: transport failure")

	// ErrWriteNotVerified is returned when IFCNT did not advance after a
	// write. The caller may reissue the operation.
	ErrWriteNotVerified = errors.New("tmc2209: write not verified")

	// ErrGPIO is returned when a GPIO line cannot be acquired or driven.
	ErrGPIO = errors.New("tmc2209: gpio failure")

	// ErrUnsafeConfiguration is returned when the chip reports a
	// configuration that can damage the hardware.
	ErrUnsafeConfiguration = errors.New("tmc2209: unsafe configuration detected")

	// ErrNoStepsRemaining is returned by Step when the pending move is done.
	ErrNoStepsRemaining = errors.New("tmc2209: no steps remaining")

	// ErrIncompleteConfig is matched by every *ConfigError.
	ErrIncompleteConfig = errors.New("tmc2209: incomplete configuration")

	// ErrInvalidSetting is returned when you provide an invalid value.
	ErrInvalidSetting = errors.New("tmc2209: invalid setting")

	// ErrBusClosed is returned for transactions submitted after Bus.Close.
	ErrBusClosed = errors.New("tmc2209: bus closed")

	// ErrHalted is returned by a Dev after Halt. Its node address and lines
	// may already belong to another Dev.
	ErrHalted = errors.New("tmc2209: device halted")

	// ErrClaimed is returned when a node address or a GPIO line is already
	// owned by another driver on the same bus.
	ErrClaimed = errors.New("tmc2209: already claimed")
)

// ConfigError reports a required option that was not provided.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("tmc2209: incomplete configuration: %s is required", e.Field)
}

// Is makes errors.Is(err, ErrIncompleteConfig) true.
func (e *ConfigError) Is(target error) bool {
	return target == ErrIncompleteConfig
}

// VerifyError reports a write that the chip did not count.
type VerifyError struct {
	Reg    Register
	Before uint8
	After  uint8
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("tmc2209: write to %s not verified: ifcnt %d -> %d", e.Reg, e.Before, e.After)
}

// Is makes errors.Is(err, ErrWriteNotVerified) true.
func (e *VerifyError) Is(target error) bool {
	return target == ErrWriteNotVerified
}
