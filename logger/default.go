// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package logger

import "sync/atomic"

var defLogger atomic.Value

func init() {
	defLogger.Store(holder{NewSlog(InfoLevel, false)})
}

// holder keeps atomic.Value storing one concrete type.
type holder struct{ Logger }

// Default returns the package-level logger.
func Default() Logger {
	return defLogger.Load().(holder).Logger
}

// SetDefault replaces the package-level logger. A nil l is ignored.
func SetDefault(l Logger) {
	if l != nil {
		defLogger.Store(holder{l})
	}
}

func Debug(msg string, keysAndValues ...any) {
	Default().Debug(msg, keysAndValues...)
}

func Info(msg string, keysAndValues ...any) {
	Default().Info(msg, keysAndValues...)
}

func Warn(msg string, keysAndValues ...any) {
	Default().Warn(msg, keysAndValues...)
}

func Error(msg string, keysAndValues ...any) {
	Default().Error(msg, keysAndValues...)
}

func Fatal(msg string, keysAndValues ...any) {
	Default().Fatal(msg, keysAndValues...)
}

func SetLevel(level Level) {
	Default().SetLevel(level)
}

func With(keyValues ...any) Logger {
	return Default().With(keyValues...)
}
