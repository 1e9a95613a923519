// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package tmc2209 drives Trinamic TMC2209 stepper motor drivers over their
// single-wire UART interface and a STEP GPIO line.
//
// # Bus
//
// All register traffic goes through a Bus, which owns the serial Channel and
// executes transactions one at a time. Several drivers with distinct node
// addresses may share one Bus. Every mutating register operation is a
// read-modify-write followed by a check of the IFCNT write counter; a write
// the chip did not count is reported as ErrWriteNotVerified.
//
// # Pins
//
// A Dev is given three pins: STEP, DIR and ENABLE. Direction is carried by
// the GCONF shaft bit rather than the DIR line, so DIR is accepted but never
// driven. ENABLE is active low.
//
// # Datasheet
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/TMC2209_datasheet_rev1.09.pdf
package tmc2209
