// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package tmc2209

import (
	"fmt"

	"github.com/GermanBionicSystems/stepper/common"
)

const (
	syncByte  byte = 0x55
	replySync byte = 0x05
	// replyAddr is the master address the chip puts in every reply.
	replyAddr byte = 0xFF
	writeBit  byte = 0x80
)

// Datagram lengths on the wire.
const (
	ReadRequestLen  = 4
	WriteRequestLen = 8
	// ReplyLen covers the echo of the read request, since TX and RX share a
	// single wire, followed by the 8 byte reply.
	ReplyLen = ReadRequestLen + 8
)

// Datagram is one framed bus transaction. The last byte is always the CRC.
type Datagram []byte

// EncodeRead returns the 4 byte read request for reg on the given node.
func EncodeRead(node uint8, reg Register) Datagram {
	d := Datagram{syncByte, node, byte(reg), 0}
	d[len(d)-1] = d.CRC()
	return d
}

// EncodeWrite returns the 8 byte write request storing value into reg on the
// given node. The value is sent big-endian.
func EncodeWrite(node uint8, reg Register, value uint32) Datagram {
	d := Datagram{
		syncByte,
		node,
		byte(reg) | writeBit,
		byte(value >> 24),
		byte(value >> 16),
		byte(value >> 8),
		byte(value),
		0,
	}
	d[len(d)-1] = d.CRC()
	return d
}

// CRC computes the check byte over every byte but the last.
func (d Datagram) CRC() byte {
	if len(d) == 0 {
		return 0
	}
	return common.CRC8UART(d[:len(d)-1])
}

// Valid reports whether the trailing byte matches the computed CRC.
func (d Datagram) Valid() bool {
	return len(d) > 1 && d[len(d)-1] == d.CRC()
}

// Register returns the addressed register without the write bit.
func (d Datagram) Register() Register {
	if len(d) < 3 {
		return 0
	}
	return Register(d[2] &^ writeBit)
}

// IsWrite reports whether d is a write request.
func (d Datagram) IsWrite() bool {
	return len(d) == WriteRequestLen && d[2]&writeBit != 0
}

func (d Datagram) String() string {
	if d.IsWrite() {
		return fmt.Sprintf("write %s % x", d.Register(), []byte(d))
	}
	return fmt.Sprintf("read %s % x", d.Register(), []byte(d))
}

// DecodeReply checks the reply buffer of a read of reg and returns the 4
// payload bytes, most significant first.
//
// The payload is the 4 data bytes ahead of the trailing CRC, buf[7:11]. The
// last 4 bytes of buf would end with the CRC and drop the top data byte.
//
// A buffer shorter than ReplyLen is a framing error; a reply with an
// unexpected header or CRC is reported as ErrBadReply.
func DecodeReply(reg Register, buf []byte) ([4]byte, error) {
	var payload [4]byte
	if len(buf) != ReplyLen {
		return payload, fmt.Errorf("%w: got %d reply bytes, want %d", ErrFrameLength, len(buf), ReplyLen)
	}
	reply := Datagram(buf[ReadRequestLen:])
	if reply[0] != replySync || reply[1] != replyAddr || Register(reply[2]) != reg {
		return payload, fmt.Errorf("%w: header % x for %s", ErrBadReply, []byte(reply[:3]), reg)
	}
	if !reply.Valid() {
		return payload, fmt.Errorf("%w: crc %#02x, want %#02x", ErrBadReply, reply[len(reply)-1], reply.CRC())
	}
	copy(payload[:], reply[3:7])
	return payload, nil
}

// EncodeReply builds the 8 byte reply a chip sends for a read of reg. It is
// used by simulators.
func EncodeReply(reg Register, value uint32) Datagram {
	d := Datagram{
		replySync,
		replyAddr,
		byte(reg),
		byte(value >> 24),
		byte(value >> 16),
		byte(value >> 8),
		byte(value),
		0,
	}
	d[len(d)-1] = d.CRC()
	return d
}
