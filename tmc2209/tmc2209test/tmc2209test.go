// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package tmc2209test is meant to be used to test drivers over a fake
// TMC2209 UART bus.
//
// Chip behaves like one or more TMC2209 sharing a single wire: every byte
// written is echoed back, read requests with a valid CRC are answered and
// write requests with a valid CRC are latched and counted in IFCNT.
package tmc2209test

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/GermanBionicSystems/stepper/tmc2209"
)

// ErrInjected is returned by Write when a failure was requested with
// FailWrites.
var ErrInjected = errors.New("tmc2209test: injected i/o error")

// Resets holds register values after power up.
var Resets = map[tmc2209.Register]uint32{
	tmc2209.GCONF:     0x00000041,
	tmc2209.GSTAT:     0x00000001,
	tmc2209.IOIN:      0x21000240,
	tmc2209.IHOLDIRUN: 0x00011f10,
	tmc2209.TSTEP:     0x000fffff,
	tmc2209.MSCNT:     0x00000008,
	tmc2209.CHOPCONF:  0x10000053,
	tmc2209.DRVSTATUS: 0xc0000000,
	tmc2209.PWMCONF:   0xc10d0024,
}

// IO is one datagram observed by the chip.
type IO struct {
	Node  uint8
	Reg   tmc2209.Register
	Write bool
	Value uint32
}

func (op IO) String() string {
	if op.Write {
		return fmt.Sprintf("node %d write %s=%#x", op.Node, op.Reg, op.Value)
	}
	return fmt.Sprintf("node %d read %s", op.Node, op.Reg)
}

// Chip implements tmc2209.Channel.
type Chip struct {
	sync.Mutex

	// Ops records every datagram with a valid CRC in arrival order.
	Ops []IO
	// Clears counts tmc2209.Channel.Clear calls per buffer.
	Clears map[tmc2209.Buffer]int

	// FailWrites makes the next FailWrites Write calls fail.
	FailWrites int
	// ShortWrites makes Write report one byte less than given.
	ShortWrites bool
	// CorruptReplies flips a bit in the CRC of the next CorruptReplies
	// replies.
	CorruptReplies int
	// DropWrites makes every node ignore write requests without counting
	// them.
	DropWrites bool
	// Silent makes the chip echo requests but never answer.
	Silent bool

	regs  map[uint8]map[tmc2209.Register]uint32
	ifcnt map[uint8]uint8
	rx    []byte
}

// NewChip returns a Chip answering on the given nodes, node 0 if none is
// given, with every register at its reset value.
func NewChip(nodes ...uint8) *Chip {
	if len(nodes) == 0 {
		nodes = []uint8{0}
	}
	c := &Chip{
		Clears: map[tmc2209.Buffer]int{},
		regs:   map[uint8]map[tmc2209.Register]uint32{},
		ifcnt:  map[uint8]uint8{},
	}
	for _, n := range nodes {
		r := make(map[tmc2209.Register]uint32, len(Resets))
		for k, v := range Resets {
			r[k] = v
		}
		c.regs[n] = r
	}
	return c
}

// Register returns the current value of reg on node.
func (c *Chip) Register(node uint8, reg tmc2209.Register) uint32 {
	c.Lock()
	defer c.Unlock()
	return c.value(node, reg)
}

// SetRegister overrides reg on node, bypassing IFCNT.
func (c *Chip) SetRegister(node uint8, reg tmc2209.Register, v uint32) {
	c.Lock()
	defer c.Unlock()
	if reg == tmc2209.IFCNT {
		c.ifcnt[node] = uint8(v)
		return
	}
	c.regs[node][reg] = v
}

// Writes returns the values written to reg on node, in order.
func (c *Chip) Writes(node uint8, reg tmc2209.Register) []uint32 {
	c.Lock()
	defer c.Unlock()
	var out []uint32
	for _, op := range c.Ops {
		if op.Write && op.Node == node && op.Reg == reg {
			out = append(out, op.Value)
		}
	}
	return out
}

func (c *Chip) value(node uint8, reg tmc2209.Register) uint32 {
	if reg == tmc2209.IFCNT {
		return uint32(c.ifcnt[node])
	}
	return c.regs[node][reg]
}

// Write implements io.Writer.
func (c *Chip) Write(b []byte) (int, error) {
	c.Lock()
	defer c.Unlock()
	if c.FailWrites > 0 {
		c.FailWrites--
		return 0, ErrInjected
	}
	c.rx = append(c.rx, b...)
	c.handle(tmc2209.Datagram(append([]byte(nil), b...)))
	if c.ShortWrites && len(b) > 0 {
		return len(b) - 1, nil
	}
	return len(b), nil
}

func (c *Chip) handle(d tmc2209.Datagram) {
	if (len(d) != tmc2209.ReadRequestLen && len(d) != tmc2209.WriteRequestLen) || d[0] != 0x55 || !d.Valid() {
		return
	}
	node, reg := d[1], d.Register()
	regs, ok := c.regs[node]
	if !ok {
		return
	}
	if !d.IsWrite() {
		c.Ops = append(c.Ops, IO{Node: node, Reg: reg})
		if c.Silent {
			return
		}
		reply := tmc2209.EncodeReply(reg, c.value(node, reg))
		if c.CorruptReplies > 0 {
			c.CorruptReplies--
			reply[len(reply)-1] ^= 0x01
		}
		c.rx = append(c.rx, reply...)
		return
	}
	v := uint32(d[3])<<24 | uint32(d[4])<<16 | uint32(d[5])<<8 | uint32(d[6])
	c.Ops = append(c.Ops, IO{Node: node, Reg: reg, Write: true, Value: v})
	if c.DropWrites {
		return
	}
	switch reg {
	case tmc2209.GSTAT:
		// Flags are cleared by writing 1.
		regs[reg] &^= v
	case tmc2209.IFCNT, tmc2209.IOIN, tmc2209.DRVSTATUS, tmc2209.MSCNT, tmc2209.TSTEP:
	default:
		regs[reg] = v
	}
	c.ifcnt[node]++
}

// Read implements io.Reader. It returns io.EOF when nothing is pending.
func (c *Chip) Read(b []byte) (int, error) {
	c.Lock()
	defer c.Unlock()
	if len(c.rx) == 0 {
		return 0, io.EOF
	}
	n := copy(b, c.rx)
	c.rx = c.rx[n:]
	return n, nil
}

// Clear implements tmc2209.Channel.
func (c *Chip) Clear(b tmc2209.Buffer) error {
	c.Lock()
	defer c.Unlock()
	c.Clears[b]++
	if b == tmc2209.Input {
		c.rx = nil
	}
	return nil
}

// Pending returns the number of bytes waiting to be read.
func (c *Chip) Pending() int {
	c.Lock()
	defer c.Unlock()
	return len(c.rx)
}

// Reset drops the recorded operations.
func (c *Chip) Reset() {
	c.Lock()
	defer c.Unlock()
	c.Ops = nil
	c.Clears = map[tmc2209.Buffer]int{}
}

var _ tmc2209.Channel = &Chip{}
