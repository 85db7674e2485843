package sim

import (
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/bitvec"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/tap"
)

// ECP5 configuration opcodes understood by the model.
const (
	ecp5ReadID       = 0xE0
	ecp5VerifyID     = 0xE2
	ecp5ReadUsercode = 0xC0
	ecp5ReadStatus   = 0x3C
	ecp5Refresh      = 0x79
	ecp5CheckBusy    = 0xF0
	ecp5ISCEnable    = 0xC6
	ecp5ISCDisable   = 0x26
	ecp5ISCErase     = 0x0E
	ecp5Preload      = 0x1C
	ecp5SetAddress   = 0x46
	ecp5Burst        = 0x7A
	ecp5NoOp         = 0xFF
)

// ECP5 status register bits.
const (
	ecp5StatusJTAGActive = 1 << 4
	ecp5StatusDone       = 1 << 8
	ecp5StatusISC        = 1 << 9
	ecp5StatusWriteable  = 1 << 10
	ecp5StatusBusy       = 1 << 12
	ecp5StatusFail       = 1 << 13
	ecp5StatusIDError    = 1 << 27

	ecp5ErrorShift = 23
)

// ECP5 models the JTAG configuration port of a Lattice ECP5.
type ECP5 struct {
	ID       uint32
	Usercode uint32

	// EraseBusyPolls is the number of LSC_CHECK_BUSY reads that report busy
	// after ISC_ERASE.
	EraseBusyPolls int
	// RefreshBusyPolls is the same for LSC_REFRESH.
	RefreshBusyPolls int
	// CRCError makes every bitstream burst fail with error code 3.
	CRCError bool
	// NeverDone keeps DONE clear after a burst without flagging an error.
	NeverDone bool

	ir        uint8
	status    uint32
	busy      int
	bitstream []byte

	checkBusyReads int
	opcodes        []uint8
}

// NewECP5 returns an unconfigured ECP5 with the given IDCODE.
func NewECP5(id uint32) *ECP5 {
	d := &ECP5{ID: id}
	d.Reset()
	return d
}

func (d *ECP5) IDCode() uint32 { return d.ID }
func (d *ECP5) IRLength() int  { return 8 }

// Reset loads IDCODE. Configuration state survives a TAP reset.
func (d *ECP5) Reset() {
	d.ir = ecp5ReadID
}

func (d *ECP5) CaptureIR() bitvec.Vector {
	return bitvec.FromUint(0x01, 8)
}

func (d *ECP5) UpdateIR(ir bitvec.Vector) {
	d.ir = uint8(ir.Uint())
	d.opcodes = append(d.opcodes, d.ir)

	switch d.ir {
	case ecp5Refresh:
		d.status &^= ecp5StatusDone | ecp5StatusISC | ecp5StatusWriteable | ecp5StatusFail | ecp5StatusIDError
		d.status &^= 0b111 << ecp5ErrorShift
		d.busy = d.RefreshBusyPolls
	case ecp5ISCDisable:
		d.status &^= ecp5StatusISC | ecp5StatusWriteable
	}
}

func (d *ECP5) CaptureDR() bitvec.Vector {
	switch d.ir {
	case ecp5ReadID:
		return bitvec.FromUint(uint64(d.ID), 32)
	case ecp5ReadUsercode:
		return bitvec.FromUint(uint64(d.Usercode), 32)
	case ecp5ReadStatus:
		return bitvec.FromUint(uint64(d.Status()), 32)
	case ecp5CheckBusy:
		d.checkBusyReads++
		if d.busy > 0 {
			d.busy--
			return bitvec.FromUint(1, 8)
		}
		return bitvec.New(8)
	case ecp5Burst:
		return bitvec.Vector{}
	case ecp5VerifyID:
		return bitvec.New(32)
	case ecp5Preload:
		return bitvec.New(510)
	case ecp5ISCEnable, ecp5ISCErase, ecp5SetAddress:
		return bitvec.New(8)
	}
	return bitvec.New(1)
}

func (d *ECP5) UpdateDR(dr bitvec.Vector) {
	switch d.ir {
	case ecp5VerifyID:
		if uint32(dr.Uint()) != d.ID {
			d.fail(1)
			d.status |= ecp5StatusIDError
		}
	case ecp5ISCEnable:
		d.status |= ecp5StatusISC | ecp5StatusWriteable
	case ecp5ISCErase:
		d.status &^= ecp5StatusDone
		d.busy = d.EraseBusyPolls
	case ecp5Burst:
		d.bitstream = dr.Wire()
		switch {
		case d.CRCError:
			d.fail(3)
		case d.NeverDone || len(d.bitstream) == 0:
		default:
			d.status |= ecp5StatusDone
		}
	}
}

func (d *ECP5) Clock(tap.State, int) {}

func (d *ECP5) fail(code uint32) {
	d.status |= ecp5StatusFail
	d.status &^= 0b111 << ecp5ErrorShift
	d.status |= code << ecp5ErrorShift
}

// Status returns the live status register.
func (d *ECP5) Status() uint32 {
	s := d.status | ecp5StatusJTAGActive
	if d.busy > 0 {
		s |= ecp5StatusBusy
	}
	return s
}

// Bitstream returns the wire bytes of the last burst.
func (d *ECP5) Bitstream() []byte {
	return append([]byte(nil), d.bitstream...)
}

// CheckBusyReads reports how many LSC_CHECK_BUSY captures occurred.
func (d *ECP5) CheckBusyReads() int {
	return d.checkBusyReads
}

// Opcodes returns every instruction loaded, in order.
func (d *ECP5) Opcodes() []uint8 {
	return append([]uint8(nil), d.opcodes...)
}
