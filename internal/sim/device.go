package sim

import (
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/bitvec"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/tap"
)

// Device models one TAP on the simulated scan chain. The board calls the
// capture and update hooks as the controller passes through the matching
// states. A CaptureDR result of zero length turns the data register into a
// sink: every bit shifted in is collected and handed to UpdateDR, and zeros
// are shifted out.
type Device interface {
	IDCode() uint32
	IRLength() int
	Reset()
	CaptureIR() bitvec.Vector
	UpdateIR(ir bitvec.Vector)
	CaptureDR() bitvec.Vector
	UpdateDR(dr bitvec.Vector)
	Clock(state tap.State, cycles int)
}

// IDCodeDevice only supports IDCODE and BYPASS.
type IDCodeDevice struct {
	ID     uint32
	IRBits int

	bypass bool
}

// NewIDCodeDevice returns a device with the given IDCODE and a 4-bit IR.
func NewIDCodeDevice(id uint32) *IDCodeDevice {
	return &IDCodeDevice{ID: id, IRBits: 4}
}

func (d *IDCodeDevice) IDCode() uint32 { return d.ID }

func (d *IDCodeDevice) IRLength() int {
	if d.IRBits <= 0 {
		return 4
	}
	return d.IRBits
}

func (d *IDCodeDevice) Reset() { d.bypass = false }

// CaptureIR returns the mandatory 01 pattern in the low bits.
func (d *IDCodeDevice) CaptureIR() bitvec.Vector {
	return bitvec.FromUint(0x1, d.IRLength())
}

// UpdateIR selects BYPASS for an all-ones instruction and IDCODE otherwise.
func (d *IDCodeDevice) UpdateIR(ir bitvec.Vector) {
	d.bypass = ir.Equal(bitvec.Ones(d.IRLength()))
}

func (d *IDCodeDevice) CaptureDR() bitvec.Vector {
	if d.bypass {
		return bitvec.New(1)
	}
	return bitvec.FromUint(uint64(d.ID), 32)
}

func (d *IDCodeDevice) UpdateDR(bitvec.Vector) {}

func (d *IDCodeDevice) Clock(tap.State, int) {}

// shiftReg is the live shift register of one device for the current path.
type shiftReg struct {
	bits []bool
	sink bool
	sunk []bool
}

func newShiftReg(v bitvec.Vector) *shiftReg {
	if v.Len() == 0 {
		return &shiftReg{sink: true}
	}
	r := &shiftReg{bits: make([]bool, v.Len())}
	for i := range r.bits {
		r.bits[i] = v.Bit(i)
	}
	return r
}

// shift clocks one bit in at the TDI end and returns the bit leaving at the
// TDO end.
func (r *shiftReg) shift(in bool) bool {
	if r.sink {
		r.sunk = append(r.sunk, in)
		return false
	}
	out := r.bits[0]
	copy(r.bits, r.bits[1:])
	r.bits[len(r.bits)-1] = in
	return out
}

func (r *shiftReg) value() bitvec.Vector {
	src := r.bits
	if r.sink {
		src = r.sunk
	}
	v := bitvec.New(len(src))
	for i, b := range src {
		v.Set(i, b)
	}
	return v
}
