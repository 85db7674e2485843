package spi

import (
	"fmt"
	"math/bits"
)

// probeLength is the size of the framing probe.
const probeLength = 16

// Framing gives the byte widths of the register protocol's command and value
// fields.
type Framing struct {
	CommandBytes  int
	RegisterBytes int
}

// NegotiationError reports a framing probe whose response could not be
// interpreted.
type NegotiationError struct {
	Response     []byte
	CommandBits  int
	RegisterBits int
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("spi: framing negotiation failed: command %d bits, register %d bits (response % x)",
		e.CommandBits, e.RegisterBits, e.Response)
}

// Negotiate probes the gateware for its register framing. The first
// successful result is cached for the life of the link.
func (l *Link) Negotiate() (Framing, error) {
	if l.framing != nil {
		return *l.framing, nil
	}
	rx, err := l.Transfer(make([]byte, probeLength), false)
	if err != nil {
		return Framing{}, err
	}

	cmdBits := leadingZeroBits(rx)
	regBits := trailingOneBits(rx)
	if cmdBits == 0 || regBits == 0 || cmdBits%8 != 0 || regBits%8 != 0 || cmdBits+regBits > 8*len(rx) {
		return Framing{}, &NegotiationError{Response: rx, CommandBits: cmdBits, RegisterBits: regBits}
	}
	f := Framing{CommandBytes: cmdBits / 8, RegisterBytes: regBits / 8}
	l.log.V(1).Info("negotiated register framing", "commandBytes", f.CommandBytes, "registerBytes", f.RegisterBytes)
	l.framing = &f
	return f, nil
}

func leadingZeroBits(buf []byte) int {
	n := 0
	for _, b := range buf {
		if b != 0 {
			return n + bits.LeadingZeros8(b)
		}
		n += 8
	}
	return n
}

func trailingOneBits(buf []byte) int {
	n := 0
	for i := len(buf) - 1; i >= 0; i-- {
		if buf[i] != 0xFF {
			return n + bits.TrailingZeros8(^buf[i])
		}
		n += 8
	}
	return n
}

// RegisterTransaction performs one register access. The command word carries
// the write flag in its top bit and the address below it; value follows.
// It returns the bytes clocked in after the command word.
func (l *Link) RegisterTransaction(address uint32, write bool, value uint64) (uint64, error) {
	f, err := l.Negotiate()
	if err != nil {
		return 0, err
	}
	if f.CommandBytes > 4 || f.RegisterBytes > 8 {
		return 0, fmt.Errorf("spi: framing %d/%d bytes is wider than supported", f.CommandBytes, f.RegisterBytes)
	}

	writeFlag := uint64(1) << uint(8*f.CommandBytes-1)
	if uint64(address) >= writeFlag {
		return 0, fmt.Errorf("spi: register address %#x does not fit in %d command bytes", address, f.CommandBytes)
	}
	command := uint64(address)
	if write {
		command |= writeFlag
	}

	tx := make([]byte, f.CommandBytes+f.RegisterBytes)
	putBigEndian(tx[:f.CommandBytes], command)
	putBigEndian(tx[f.CommandBytes:], value)
	rx, err := l.Transfer(tx, false)
	if err != nil {
		return 0, err
	}

	var result uint64
	for _, b := range rx[f.CommandBytes:] {
		result = result<<8 | uint64(b)
	}
	return result, nil
}

// ReadRegister returns the value of a gateware register.
func (l *Link) ReadRegister(address uint32) (uint64, error) {
	return l.RegisterTransaction(address, false, 0)
}

// WriteRegister sets a gateware register.
func (l *Link) WriteRegister(address uint32, value uint64) error {
	_, err := l.RegisterTransaction(address, true, value)
	return err
}

func putBigEndian(buf []byte, v uint64) {
	for i := len(buf) - 1; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
}
