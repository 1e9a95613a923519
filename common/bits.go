// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package common

// Unsigned is the set of native register widths.
type Unsigned interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// SetBits returns bits with every bit of mask set.
func SetBits[T Unsigned](bits, mask T) T {
	return bits | mask
}

// ClearBits returns bits with every bit of mask cleared.
func ClearBits[T Unsigned](bits, mask T) T {
	return bits &^ mask
}

// FieldShift returns the position of the lowest set bit of mask, or 0 for an
// empty mask.
func FieldShift[T Unsigned](mask T) uint {
	if mask == 0 {
		return 0
	}
	var shift uint
	for mask&1 == 0 {
		mask >>= 1
		shift++
	}
	return shift
}
