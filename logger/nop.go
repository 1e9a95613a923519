// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package logger

import "os"

// Nop returns a Logger that discards every record. Fatal still exits.
func Nop() Logger {
	return nop{}
}

type nop struct{}

func (nop) Debug(string, ...any) {}
func (nop) Info(string, ...any) {}
func (nop) Warn(string, ...any) {}
func (nop) Error(string, ...any) {}
func (nop) Fatal(string, ...any) { os.Exit(1) }
func (n nop) With(...any) Logger { return n }
func (nop) Level() Level { return FatalLevel }
func (nop) SetLevel(Level) {}
