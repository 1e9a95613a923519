// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package serialbus

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GermanBionicSystems/stepper/logger"
	"github.com/GermanBionicSystems/stepper/tmc2209"
)

// loopback echoes every write, like the single wire bus with no chip
// attached.
type loopback struct {
	bytes.Buffer
	flushes int
	closed  bool
}

func (l *loopback) Flush() error {
	l.flushes++
	l.Reset()
	return nil
}

func (l *loopback) Close() error {
	l.closed = true
	return nil
}

func TestPort(t *testing.T) {
	lb := &loopback{}
	p := &Port{p: lb, name: "/dev/null", baud: 115200}

	_, _ = lb.WriteString("stale")
	require.NoError(t, p.Clear(tmc2209.Input))
	assert.Zero(t, lb.Len())

	n, err := p.Write([]byte{0x55, 0x00, 0x00, 0xcf})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	buf := make([]byte, 8)
	n, err = p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x55, 0x00, 0x00, 0xcf}, buf[:n])

	assert.Equal(t, "serialbus(/dev/null@115200)", p.String())
	assert.Equal(t, tmc2209.SettleDelay(115200), p.SettleDelay())
	require.NoError(t, p.Close())
	assert.True(t, lb.closed)
}

func TestPortWithoutChip(t *testing.T) {
	p := &Port{p: &loopback{}, baud: 115200}
	bus, err := tmc2209.NewBus(p, &tmc2209.BusOpts{
		Attempts:    2,
		SettleDelay: time.Nanosecond,
		RetryDelay:  -1,
		Logger:      logger.Nop(),
	})
	require.NoError(t, err)
	defer bus.Close()

	err = bus.Do(context.Background(), 0, func(tx *tmc2209.Tx) error {
		_, err := tx.Read(tmc2209.GCONF)
		return err
	})
	assert.ErrorIs(t, err, tmc2209.ErrTransport)
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(nil)
	assert.ErrorIs(t, err, tmc2209.ErrIncompleteConfig)

	_, err = Open(DefaultConfig(filepath.Join(t.TempDir(), "ttyMissing")))
	require.Error(t, err)
	assert.False(t, errors.Is(err, tmc2209.ErrIncompleteConfig))
}
