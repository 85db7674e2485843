// Package bitvec provides the ordered bit sequences used for JTAG scans.
//
// Index 0 of a Vector is the first bit shifted onto TDI and the first bit
// captured from TDO. Integer conversions place bit i of the value at index i,
// which matches the LSB-first order of a JTAG shift. On the wire, bit i is
// stored in byte i/8 at bit position i%8.
package bitvec

import (
	"fmt"
	"strings"
)

// ByteOrder selects how a byte buffer maps onto an integer value.
type ByteOrder uint8

const (
	// LittleEndian treats byte 0 as the least significant byte.
	LittleEndian ByteOrder = iota
	// BigEndian treats the last byte as the least significant byte.
	BigEndian
)

// Vector is an ordered sequence of bits.
type Vector struct {
	n    int
	data []byte
}

// New returns an all-zero vector of n bits.
func New(n int) Vector {
	if n < 0 {
		n = 0
	}
	return Vector{n: n, data: make([]byte, byteLen(n))}
}

// Ones returns a vector of n set bits.
func Ones(n int) Vector {
	v := New(n)
	for i := range v.data {
		v.data[i] = 0xFF
	}
	v.clearTail()
	return v
}

// FromUint returns an n-bit vector holding the low n bits of value.
func FromUint(value uint64, n int) Vector {
	v := New(n)
	for i := 0; i < n && i < 64; i++ {
		if value&(1<<uint(i)) != 0 {
			v.data[i/8] |= 1 << uint(i%8)
		}
	}
	return v
}

// FromBytes interprets buf as an integer in the given byte order and returns
// its low n bits. A negative n uses every bit of buf.
func FromBytes(buf []byte, n int, order ByteOrder) Vector {
	if n < 0 {
		n = len(buf) * 8
	}
	le := buf
	if order == BigEndian {
		le = make([]byte, len(buf))
		for i, b := range buf {
			le[len(buf)-1-i] = b
		}
	}
	v := New(n)
	copy(v.data, le)
	v.clearTail()
	return v
}

// FromWire unpacks n bits from a wire buffer.
func FromWire(buf []byte, n int) Vector {
	return FromBytes(buf, n, LittleEndian)
}

// FromString parses a binary literal written most significant bit first, the
// same form String produces. Underscores and spaces are ignored.
func FromString(s string) (Vector, error) {
	s = strings.NewReplacer("_", "", " ", "").Replace(s)
	v := New(len(s))
	for i, r := range s {
		idx := len(s) - 1 - i
		switch r {
		case '0':
		case '1':
			v.data[idx/8] |= 1 << uint(idx%8)
		default:
			return Vector{}, fmt.Errorf("bitvec: invalid binary digit %q", r)
		}
	}
	return v, nil
}

// FromHex parses a hexadecimal integer and returns its low n bits.
// Whitespace is ignored; a negative n uses four bits per digit.
func FromHex(s string, n int) (Vector, error) {
	digits := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case ' ', '\t', '\r', '\n':
		default:
			digits = append(digits, c)
		}
	}
	if n < 0 {
		n = len(digits) * 4
	}
	v := New(n)
	for k := 0; k < len(digits); k++ {
		nibble, ok := hexValue(digits[len(digits)-1-k])
		if !ok {
			return Vector{}, fmt.Errorf("bitvec: invalid hex digit %q", digits[len(digits)-1-k])
		}
		for b := 0; b < 4; b++ {
			idx := k*4 + b
			if idx >= n {
				break
			}
			if nibble&(1<<uint(b)) != 0 {
				v.data[idx/8] |= 1 << uint(idx%8)
			}
		}
	}
	return v, nil
}

// Concat joins vectors so that the bits of parts[0] are shifted first.
func Concat(parts ...Vector) Vector {
	total := 0
	for _, p := range parts {
		total += p.n
	}
	out := New(total)
	pos := 0
	for _, p := range parts {
		for i := 0; i < p.n; i++ {
			if p.Bit(i) {
				out.data[pos/8] |= 1 << uint(pos%8)
			}
			pos++
		}
	}
	return out
}

// Len reports the number of bits in the vector.
func (v Vector) Len() int { return v.n }

// Bit reports bit i. Out-of-range indexes read as zero.
func (v Vector) Bit(i int) bool {
	if i < 0 || i >= v.n {
		return false
	}
	return v.data[i/8]&(1<<uint(i%8)) != 0
}

// Set assigns bit i in place. Out-of-range indexes are ignored.
func (v *Vector) Set(i int, value bool) {
	if i < 0 || i >= v.n {
		return
	}
	if value {
		v.data[i/8] |= 1 << uint(i%8)
	} else {
		v.data[i/8] &^= 1 << uint(i%8)
	}
}

// Clone returns an independent copy.
func (v Vector) Clone() Vector {
	return Vector{n: v.n, data: append([]byte(nil), v.data...)}
}

// Slice returns bits [from, to).
func (v Vector) Slice(from, to int) Vector {
	if from < 0 {
		from = 0
	}
	if to > v.n {
		to = v.n
	}
	if to <= from {
		return New(0)
	}
	out := New(to - from)
	for i := from; i < to; i++ {
		if v.Bit(i) {
			out.data[(i-from)/8] |= 1 << uint((i-from)%8)
		}
	}
	return out
}

// Resize returns a copy of length n, zero-padding the end or truncating it.
func (v Vector) Resize(n int) Vector {
	out := New(n)
	copy(out.data, v.data)
	out.clearTail()
	return out
}

// And returns the bitwise AND of v and other, keeping the length of v.
// Bits beyond the end of other read as zero.
func (v Vector) And(other Vector) Vector {
	out := v.Clone()
	for i := range out.data {
		if i < len(other.data) {
			out.data[i] &= other.data[i]
		} else {
			out.data[i] = 0
		}
	}
	if other.n < v.n {
		for i := other.n; i < v.n; i++ {
			out.Set(i, false)
		}
	}
	return out
}

// Equal reports whether both vectors have the same length and bits.
func (v Vector) Equal(other Vector) bool {
	if v.n != other.n {
		return false
	}
	for i := range v.data {
		if v.data[i] != other.data[i] {
			return false
		}
	}
	return true
}

// IsZero reports whether no bit is set.
func (v Vector) IsZero() bool {
	for _, b := range v.data {
		if b != 0 {
			return false
		}
	}
	return true
}

// Uint returns the low 64 bits as an integer.
func (v Vector) Uint() uint64 {
	var out uint64
	for i := 0; i < v.n && i < 64; i++ {
		if v.Bit(i) {
			out |= 1 << uint(i)
		}
	}
	return out
}

// Bytes packs the vector as an integer in the given byte order.
func (v Vector) Bytes(order ByteOrder) []byte {
	out := append([]byte(nil), v.data...)
	if order == BigEndian {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// Wire returns the LSB-first byte packing sent to the debugger.
func (v Vector) Wire() []byte {
	return v.Bytes(LittleEndian)
}

// String renders the bits most significant first.
func (v Vector) String() string {
	var sb strings.Builder
	sb.Grow(v.n)
	for i := v.n - 1; i >= 0; i-- {
		if v.Bit(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// Hex renders the vector as an upper-case hexadecimal integer.
func (v Vector) Hex() string {
	digits := (v.n + 3) / 4
	if digits == 0 {
		return ""
	}
	const alphabet = "0123456789ABCDEF"
	out := make([]byte, digits)
	for k := 0; k < digits; k++ {
		var nibble byte
		for b := 0; b < 4; b++ {
			if v.Bit(k*4 + b) {
				nibble |= 1 << uint(b)
			}
		}
		out[digits-1-k] = alphabet[nibble]
	}
	return string(out)
}

func (v *Vector) clearTail() {
	if rem := v.n % 8; rem != 0 && len(v.data) > 0 {
		v.data[len(v.data)-1] &= byte(1<<uint(rem)) - 1
	}
}

func byteLen(n int) int {
	return (n + 7) / 8
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
