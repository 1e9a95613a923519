// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/phsym/console-slog"
)

// SlogLogger is a Logger backed by log/slog.
type SlogLogger struct {
	logger *slog.Logger
	level  *slog.LevelVar
	exit   func(code int)
}

// NewSlog creates a Logger writing to the process' standard output.
//
// When ENV=development or standard output is a terminal the console handler
// is used, otherwise records are JSON encoded.
func NewSlog(level Level, addSource bool) Logger {
	if os.Getenv("ENV") == "development" || isatty.IsTerminal(os.Stdout.Fd()) {
		return NewConsole(colorable.NewColorableStdout(), level)
	}
	return NewJSON(os.Stdout, level, addSource)
}

// NewJSON creates a Logger emitting one JSON object per record to w.
func NewJSON(w io.Writer, level Level, addSource bool) *SlogLogger {
	lv := &slog.LevelVar{}
	lv.Set(toSlogLevel(level))
	opts := &slog.HandlerOptions{
		AddSource: addSource,
		Level:     lv,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "ts"
			}
			return a
		},
	}
	return &SlogLogger{logger: slog.New(slog.NewJSONHandler(w, opts)), level: lv, exit: os.Exit}
}

// NewConsole creates a Logger emitting human readable colored lines to w.
func NewConsole(w io.Writer, level Level) *SlogLogger {
	lv := &slog.LevelVar{}
	lv.Set(toSlogLevel(level))
	opts := &console.HandlerOptions{
		AddSource: true,
		Level:     lv,
	}
	return &SlogLogger{logger: slog.New(console.NewHandler(w, opts)), level: lv, exit: os.Exit}
}

func (l *SlogLogger) Debug(msg string, keysAndValues ...any) {
	l.log(context.Background(), slog.LevelDebug, msg, keysAndValues...)
}

func (l *SlogLogger) Info(msg string, keysAndValues ...any) {
	l.log(context.Background(), slog.LevelInfo, msg, keysAndValues...)
}

func (l *SlogLogger) Warn(msg string, keysAndValues ...any) {
	l.log(context.Background(), slog.LevelWarn, msg, keysAndValues...)
}

func (l *SlogLogger) Error(msg string, keysAndValues ...any) {
	l.log(context.Background(), slog.LevelError, msg, keysAndValues...)
}

func (l *SlogLogger) Fatal(msg string, keysAndValues ...any) {
	l.log(context.Background(), slogLevelFatal, msg, keysAndValues...)
	l.exit(1)
}

func (l *SlogLogger) With(keyValues ...any) Logger {
	return &SlogLogger{
		logger: l.logger.With(keyValues...),
		level:  l.level,
		exit:   l.exit,
	}
}

func (l *SlogLogger) Level() Level {
	switch lv := l.level.Level(); {
	case lv <= slog.LevelDebug:
		return DebugLevel
	case lv <= slog.LevelInfo:
		return InfoLevel
	case lv <= slog.LevelWarn:
		return WarnLevel
	case lv <= slog.LevelError:
		return ErrorLevel
	}
	return FatalLevel
}

func (l *SlogLogger) SetLevel(level Level) {
	l.level.Set(toSlogLevel(level))
}

// log must always be called directly by an exported logging method, because
// it uses a fixed call depth to obtain the pc.
func (l *SlogLogger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if !l.logger.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	// skip [runtime.Callers, this function, this function's caller]
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)
	_ = l.logger.Handler().Handle(ctx, r)
}

const slogLevelFatal = slog.LevelError + 4

func toSlogLevel(level Level) slog.Level {
	switch level {
	case DebugLevel:
		return slog.LevelDebug
	case InfoLevel:
		return slog.LevelInfo
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	}
	return slogLevelFatal
}

var _ Logger = (*SlogLogger)(nil)
