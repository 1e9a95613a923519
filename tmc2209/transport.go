// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package tmc2209

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jpillora/backoff"

	"github.com/GermanBionicSystems/stepper/logger"
)

// Buffer selects one direction of a Channel's kernel buffers.
type Buffer uint8

const (
	Input Buffer = iota
	Output
)

func (b Buffer) String() string {
	if b == Input {
		return "input"
	}
	return "output"
}

// Channel is the raw byte oriented half-duplex link to the chip, typically a
// serial port.
type Channel interface {
	io.Reader
	io.Writer
	// Clear discards bytes pending in the given buffer.
	Clear(b Buffer) error
}

// SettleDelay returns the bus turnaround delay for a line running at baud.
// It covers roughly 50 bit times, the length of a reply after the echo.
func SettleDelay(baud int) time.Duration {
	if baud <= 0 {
		return DefaultBusOpts.SettleDelay
	}
	return 500 * time.Second / time.Duration(baud)
}

// Transport sends datagrams over a Channel and retries transient failures.
//
// It is not safe for concurrent use; a Bus serializes access to it.
type Transport struct {
	ch       Channel
	attempts int
	settle   time.Duration
	retry    backoff.Backoff
	log      logger.Logger
}

// NewTransport returns a Transport over ch. A nil opts uses DefaultBusOpts.
func NewTransport(ch Channel, opts *BusOpts) *Transport {
	o := opts.withDefaults()
	return &Transport{
		ch:       ch,
		attempts: o.Attempts,
		settle:   o.SettleDelay,
		retry: backoff.Backoff{
			Min:    o.RetryDelay,
			Max:    o.MaxRetryDelay,
			Factor: 2,
		},
		log: o.Logger,
	}
}

// SendAndReceive writes the read request req and returns the 4 payload bytes
// of the reply.
func (t *Transport) SendAndReceive(req Datagram) ([4]byte, error) {
	var payload [4]byte
	err := t.exchange(req, func(reply []byte) error {
		var err error
		payload, err = DecodeReply(req.Register(), reply)
		return err
	})
	return payload, err
}

// Send writes req without waiting for a reply payload. It is used for write
// requests whose acceptance is verified separately through IFCNT.
func (t *Transport) Send(req Datagram) error {
	return t.exchange(req, nil)
}

// transient marks a failure worth another attempt.
type transient struct {
	err error
}

func (e *transient) Error() string { return e.err.Error() }
func (e *transient) Unwrap() error { return e.err }

func (t *Transport) exchange(req Datagram, decode func([]byte) error) error {
	t.retry.Reset()
	var last error
	for attempt := 1; attempt <= t.attempts; attempt++ {
		err := t.once(req, decode)
		if err == nil {
			return nil
		}
		var tr *transient
		if !errors.As(err, &tr) {
			return err
		}
		last = tr.err
		t.log.Debug("bus exchange failed", "req", req, "attempt", attempt, "err", last)
		if attempt < t.attempts && t.retry.Min > 0 {
			time.Sleep(t.retry.Duration())
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrTransport, t.attempts, last)
}

func (t *Transport) once(req Datagram, decode func([]byte) error) error {
	// Stale bytes from an earlier failed exchange would shift the reply.
	if err := t.ch.Clear(Input); err != nil {
		return &transient{err}
	}
	if err := t.ch.Clear(Output); err != nil {
		return &transient{err}
	}
	n, err := t.ch.Write(req)
	if err != nil {
		return &transient{err}
	}
	if n != len(req) {
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrFrameLength, n, len(req))
	}
	time.Sleep(t.settle)
	if decode == nil {
		return nil
	}
	buf := make([]byte, ReplyLen)
	n, err = readFull(t.ch, buf)
	if err != nil {
		return &transient{err}
	}
	if err := decode(buf[:n]); err != nil {
		return &transient{err}
	}
	return nil
}

// readFull reads until buf is full, the reader reports EOF or a read returns
// no data, which is how a serial port signals its read timeout.
func readFull(r io.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err == io.EOF || (err == nil && m == 0) {
			break
		}
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
