// Package fpga holds what the FPGA configuration programmers share.
package fpga

import "math/bits"

// Programmer loads a bitstream into a device's configuration SRAM.
type Programmer interface {
	Configure(bitstream []byte) error
}

// Policy decides what a programmer does with a failed status check.
type Policy int

const (
	// Strict aborts configuration on the first failed check.
	Strict Policy = iota
	// BestEffort logs failed checks and keeps going.
	BestEffort
)

func (p Policy) String() string {
	if p == BestEffort {
		return "best-effort"
	}
	return "strict"
}

// ReverseBits returns a copy of b with the bit order of every byte
// reversed. Configuration ports take bitstreams MSB first while the
// debugger shifts each byte LSB first.
func ReverseBits(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[i] = bits.Reverse8(v)
	}
	return out
}
