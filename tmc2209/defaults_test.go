// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package tmc2209

import (
	"testing"
	"time"

	"github.com/GermanBionicSystems/stepper/logger"
)

func TestBusOptsDefaults(t *testing.T) {
	tests := []struct {
		name string
		in   *BusOpts
		want time.Duration
	}{
		{"nil", nil, DefaultBusOpts.RetryDelay},
		{"zero", &BusOpts{}, DefaultBusOpts.RetryDelay},
		{"set", &BusOpts{RetryDelay: 3 * time.Millisecond}, 3 * time.Millisecond},
		{"immediate", &BusOpts{RetryDelay: -1}, 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			o := test.in.withDefaults()
			if o.RetryDelay != test.want {
				t.Fatalf("RetryDelay %s, want %s", o.RetryDelay, test.want)
			}
			if o.Attempts != DefaultBusOpts.Attempts || o.SettleDelay != DefaultBusOpts.SettleDelay {
				t.Fatalf("%+v", o)
			}
			if o.Logger == nil {
				t.Fatal("no logger")
			}
		})
	}

	l := logger.Nop()
	if o := (&BusOpts{Attempts: 7, Logger: l}).withDefaults(); o.Attempts != 7 || o.Logger != l {
		t.Fatalf("%+v", o)
	}
}
