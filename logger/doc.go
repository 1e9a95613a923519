// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package logger is the structured logging facade used by the stepper
// drivers.
//
// Drivers accept a Logger in their options and fall back to the package
// default. The default writes JSON records through log/slog; setting
// ENV=development switches to a colored console handler.
//
// Log Levels:
//
//   - DebugLevel: per-transaction traffic such as bus retries.
//   - InfoLevel: decoded diagnostics and lifecycle events.
//   - WarnLevel: recoverable faults, e.g. a write the chip did not accept.
//   - ErrorLevel: driver error flags reported by the chip.
//   - FatalLevel: hardware-damaging configurations; the process exits.
package logger
