// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/stepper/logger"
	"github.com/GermanBionicSystems/stepper/tmc2209"
)

func TestParseArgsDefaults(t *testing.T) {
	c, err := parseArgs(nil)
	require.NoError(t, err)
	assert.Equal(t, "/dev/serial0", c.port)
	assert.Equal(t, 115200, c.baud)
	assert.Equal(t, 300*physic.MilliAmpere, c.current)
	assert.Equal(t, tmc2209.Microsteps16, c.microsteps)
	assert.Equal(t, logger.InfoLevel, c.level)
}

func TestParseArgs(t *testing.T) {
	c, err := parseArgs([]string{
		"-v", "-port", "/dev/ttyUSB0", "-baud", "57600", "-node", "2",
		"-step", "GPIO5", "-current", "800mA", "-microsteps", "32",
		"-steps", "-200", "-interval", "500us",
	})
	require.NoError(t, err)
	assert.Equal(t, logger.DebugLevel, c.level)
	assert.Equal(t, "/dev/ttyUSB0", c.port)
	assert.Equal(t, 57600, c.baud)
	assert.Equal(t, uint8(2), c.node)
	assert.Equal(t, "GPIO5", c.step)
	assert.Equal(t, "GPIO21", c.enable)
	assert.Equal(t, 800*physic.MilliAmpere, c.current)
	assert.Equal(t, tmc2209.Microsteps32, c.microsteps)
	assert.Equal(t, int32(-200), c.steps)
	assert.Equal(t, 500*time.Microsecond, c.interval)
}

func TestParseArgsLogLevel(t *testing.T) {
	c, err := parseArgs([]string{"-v", "-log-level", "warn"})
	require.NoError(t, err)
	assert.Equal(t, logger.WarnLevel, c.level)
}

func TestParseArgsErrors(t *testing.T) {
	for _, args := range [][]string{
		{"-baud", "fast"},
		{"-current", "lots"},
		{"-interval", "soon"},
		{"extra"},
		{"-h"},
		{"-log-level", "loud"},
	} {
		_, err := parseArgs(args)
		assert.Error(t, err, "%q", args)
	}
}
