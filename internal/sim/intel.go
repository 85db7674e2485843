package sim

import (
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/bitvec"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/tap"
)

const (
	intelProgram = 0x002
	intelStartup = 0x003
	intelIDCode  = 0x006
)

// IntelFPGA models the JTAG configuration port of a Cyclone IV device.
type IntelFPGA struct {
	ID uint32

	ir           uint16
	bitstream    []byte
	startupClock int
}

// NewIntelFPGA returns an unconfigured device with the given IDCODE.
func NewIntelFPGA(id uint32) *IntelFPGA {
	d := &IntelFPGA{ID: id}
	d.Reset()
	return d
}

func (d *IntelFPGA) IDCode() uint32 { return d.ID }
func (d *IntelFPGA) IRLength() int  { return 10 }
func (d *IntelFPGA) Reset()         { d.ir = intelIDCode }

func (d *IntelFPGA) CaptureIR() bitvec.Vector {
	return bitvec.FromUint(0x155, 10)
}

func (d *IntelFPGA) UpdateIR(ir bitvec.Vector) {
	d.ir = uint16(ir.Uint())
	if d.ir == intelStartup {
		d.startupClock = 0
	}
}

func (d *IntelFPGA) CaptureDR() bitvec.Vector {
	switch d.ir {
	case intelIDCode:
		return bitvec.FromUint(uint64(d.ID), 32)
	case intelProgram:
		return bitvec.Vector{}
	}
	return bitvec.New(1)
}

func (d *IntelFPGA) UpdateDR(dr bitvec.Vector) {
	if d.ir == intelProgram {
		d.bitstream = dr.Wire()
	}
}

func (d *IntelFPGA) Clock(state tap.State, cycles int) {
	if d.ir == intelStartup && state == tap.StateRunTestIdle {
		d.startupClock += cycles
	}
}

// Bitstream returns the wire bytes of the last PROGRAM scan.
func (d *IntelFPGA) Bitstream() []byte {
	return append([]byte(nil), d.bitstream...)
}

// StartupClocks reports the clocks spent in Run-Test/Idle since STARTUP.
func (d *IntelFPGA) StartupClocks() int {
	return d.startupClock
}
