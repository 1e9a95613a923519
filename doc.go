// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package stepper is a container for stepper motor drivers.
//
// The TMC2209 driver lives in package tmc2209; serialbus connects it to a
// serial port and cmd/tmc2209 drives a motor from the command line.
package stepper
