// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package common contains functions used across multiple packages. For
// example, the CRC8 used by Trinamic single-wire UART datagrams and the bit
// primitives used to edit register values.
package common

// CRC8UART calculates the 8-bit CRC used by Trinamic UART datagrams over every
// byte of the parameter and returns the calculated value.
//
// Each byte is consumed least significant bit first with polynomial 0x07 and
// a zero seed. The caller excludes the check byte itself.
func CRC8UART(bytes []byte) byte {
	var crc byte
	for _, val := range bytes {
		for range 8 {
			if (crc>>7)^(val&0x01) != 0 {
				crc = (crc << 1) ^ 0x07
			} else {
				crc <<= 1
			}
			val >>= 1
		}
	}
	return crc
}
