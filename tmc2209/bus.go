// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package tmc2209

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"periph.io/x/conn/v3/gpio"

	"github.com/GermanBionicSystems/stepper/logger"
)

// BusOpts configures a Bus and its Transport.
type BusOpts struct {
	// Attempts bounds how many times one exchange is tried.
	Attempts int
	// SettleDelay is the wait between writing a request and reading the
	// reply. See SettleDelay().
	SettleDelay time.Duration
	// RetryDelay is the first pause between attempts, doubling up to
	// MaxRetryDelay. Zero selects DefaultBusOpts.RetryDelay; a negative value
	// retries immediately.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	Logger        logger.Logger
}

// DefaultBusOpts suits a 115200 baud line.
var DefaultBusOpts = BusOpts{
	Attempts:      10,
	SettleDelay:   4 * time.Millisecond,
	RetryDelay:    time.Millisecond,
	MaxRetryDelay: 20 * time.Millisecond,
}

func (o *BusOpts) withDefaults() BusOpts {
	out := DefaultBusOpts
	if o == nil {
		out.Logger = logger.Default()
		return out
	}
	if o.Attempts > 0 {
		out.Attempts = o.Attempts
	}
	if o.SettleDelay > 0 {
		out.SettleDelay = o.SettleDelay
	}
	switch {
	case o.RetryDelay > 0:
		out.RetryDelay = o.RetryDelay
	case o.RetryDelay < 0:
		out.RetryDelay = 0
	}
	if o.MaxRetryDelay > 0 {
		out.MaxRetryDelay = o.MaxRetryDelay
	}
	out.Logger = o.Logger
	if out.Logger == nil {
		out.Logger = logger.Default()
	}
	return out
}

// Bus owns one Channel and runs register transactions on it strictly one
// after the other.
//
// A transaction that has started always runs to completion, so a
// read-modify-write-verify cycle is never interrupted halfway.
type Bus struct {
	t    *Transport
	log  logger.Logger
	reqs chan *busRequest
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once

	owners atomic.Uint64
	nodes  *xsync.MapOf[uint8, owner]
	lines  *xsync.MapOf[string, owner]
}

// owner identifies one claimant of a node address or line. Two Devs with the
// same name still get distinct ids.
type owner struct {
	id   uint64
	name string
}

func (o owner) String() string {
	return o.name
}

type busRequest struct {
	ctx    context.Context
	node   uint8
	fn     func(*Tx) error
	result chan error
}

// NewBus starts a Bus on ch. Call Close to stop it.
func NewBus(ch Channel, opts *BusOpts) (*Bus, error) {
	if ch == nil {
		return nil, &ConfigError{Field: "channel"}
	}
	o := opts.withDefaults()
	b := &Bus{
		t:     NewTransport(ch, &o),
		log:   o.Logger,
		reqs:  make(chan *busRequest),
		done:  make(chan struct{}),
		nodes: xsync.NewMapOf[uint8, owner](),
		lines: xsync.NewMapOf[string, owner](),
	}
	b.wg.Add(1)
	go b.run()
	return b, nil
}

func (b *Bus) run() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case r := <-b.reqs:
			if err := r.ctx.Err(); err != nil {
				r.result <- err
				continue
			}
			r.result <- r.fn(&Tx{t: b.t, node: r.node, log: b.log})
		}
	}
}

// Do runs fn on the bus for the chip at node and returns its error.
//
// ctx is only consulted until fn starts.
func (b *Bus) Do(ctx context.Context, node uint8, fn func(*Tx) error) error {
	r := &busRequest{ctx: ctx, node: node, fn: fn, result: make(chan error, 1)}
	select {
	case b.reqs <- r:
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return ErrBusClosed
	}
	return <-r.result
}

// Close stops the bus after the running transaction, if any. It does not
// close the Channel.
func (b *Bus) Close() error {
	b.once.Do(func() { close(b.done) })
	b.wg.Wait()
	return nil
}

// newOwner returns a claimant token unique on this bus.
func (b *Bus) newOwner(name string) owner {
	return owner{id: b.owners.Add(1), name: name}
}

func (b *Bus) claimNode(node uint8, o owner) error {
	if prev, loaded := b.nodes.LoadOrStore(node, o); loaded {
		return fmt.Errorf("%w: node %d is used by %s", ErrClaimed, node, prev)
	}
	return nil
}

func (b *Bus) releaseNode(node uint8, o owner) {
	release(b.nodes, node, o)
}

func (b *Bus) claimLine(p gpio.PinOut, o owner) error {
	if prev, loaded := b.lines.LoadOrStore(p.Name(), o); loaded {
		return fmt.Errorf("%w: line %s is used by %s", ErrClaimed, p.Name(), prev)
	}
	return nil
}

func (b *Bus) releaseLine(p gpio.PinOut, o owner) {
	release(b.lines, p.Name(), o)
}

// release drops the claim on key if o holds it.
func release[K comparable](m *xsync.MapOf[K, owner], key K, o owner) {
	m.Compute(key, func(cur owner, loaded bool) (owner, bool) {
		return cur, !loaded || cur.id == o.id
	})
}

// Tx performs register accesses for one node inside Bus.Do.
type Tx struct {
	t    *Transport
	node uint8
	log  logger.Logger
}

// Read returns the value of reg.
func (tx *Tx) Read(reg Register) (uint32, error) {
	if !reg.Readable() {
		return 0, fmt.Errorf("%w: %s is not readable", ErrInvalidSetting, reg)
	}
	p, err := tx.t.SendAndReceive(EncodeRead(tx.node, reg))
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(p[:]), nil
}

// Write stores v into reg without verification. Bits beyond the register
// width are rejected.
func (tx *Tx) Write(reg Register, v uint32) error {
	if !reg.Writable() {
		return fmt.Errorf("%w: %s is not writable", ErrInvalidSetting, reg)
	}
	if w := reg.Width(); w < 32 && v>>w != 0 {
		return fmt.Errorf("%w: %#x does not fit the %d bits of %s", ErrInvalidSetting, v, w, reg)
	}
	return tx.t.Send(EncodeWrite(tx.node, reg, v))
}

// ReadIFCNT returns the interface write counter.
func (tx *Tx) ReadIFCNT() (uint8, error) {
	v, err := tx.Read(IFCNT)
	return uint8(IFCNTCount.Get(v)), err
}

// WriteVerified stores v into reg and checks that IFCNT advanced. A write the
// chip did not count returns a *VerifyError.
func (tx *Tx) WriteVerified(reg Register, v uint32) error {
	before, err := tx.ReadIFCNT()
	if err != nil {
		return err
	}
	if err := tx.Write(reg, v); err != nil {
		return err
	}
	after, err := tx.ReadIFCNT()
	if err != nil {
		return err
	}
	if !ifcntAdvanced(before, after) {
		tx.log.Warn("write not verified", "node", tx.node, "reg", reg, "before", before, "after", after)
		return &VerifyError{Reg: reg, Before: before, After: after}
	}
	return nil
}

// Update sets or clears f with a read-modify-write-verify cycle.
func (tx *Tx) Update(f Field, set bool) error {
	v, err := tx.Read(f.Reg)
	if err != nil {
		return err
	}
	if set {
		v = f.Set(v)
	} else {
		v = f.Clear(v)
	}
	return tx.WriteVerified(f.Reg, v)
}

// SetField replaces f with x with a read-modify-write-verify cycle. Every
// other bit of the register is preserved.
func (tx *Tx) SetField(f Field, x uint32) error {
	v, err := tx.Read(f.Reg)
	if err != nil {
		return err
	}
	return tx.WriteVerified(f.Reg, f.With(v, x))
}
