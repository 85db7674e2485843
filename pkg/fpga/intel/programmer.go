// Package intel configures Intel (Altera) Cyclone FPGAs over JTAG.
package intel

import (
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/OpenTraceLab/OpenTraceApollo/pkg/bitvec"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/fpga"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/tap"
)

// Instruction register values used for configuration.
const (
	IRLength  = 10
	IRProgram = 0x002
	IRStartup = 0x003

	// StartupClocks is the number of TCK cycles the device needs in
	// Run-Test/Idle to leave configuration mode.
	StartupClocks = 102400
)

// Programmer loads SRAM bitstreams. The device reports nothing back, so a
// successful Configure only means the shifts completed.
type Programmer struct {
	chain *jtag.Chain
	log   logr.Logger
}

var _ fpga.Programmer = (*Programmer)(nil)

// NewProgrammer returns a programmer for the Intel FPGA on chain.
func NewProgrammer(chain *jtag.Chain) *Programmer {
	return &Programmer{chain: chain, log: chain.Logger()}
}

// Configure shifts bitstream into the device and starts it.
func (p *Programmer) Configure(bitstream []byte) error {
	if len(bitstream) == 0 {
		return errors.New("intel: empty bitstream")
	}
	reversed := fpga.ReverseBits(bitstream)

	p.log.Info("configuring FPGA", "bytes", len(bitstream))
	if _, err := p.chain.ShiftIR(bitvec.FromUint(IRProgram, IRLength), jtag.Then(tap.StatePauseIR)); err != nil {
		return fmt.Errorf("intel: load PROGRAM: %w", err)
	}
	data := bitvec.FromBytes(reversed, -1, bitvec.LittleEndian)
	if _, err := p.chain.ShiftDR(data, jtag.IgnoreResponse(), jtag.Then(tap.StateRunTestIdle)); err != nil {
		return fmt.Errorf("intel: shift bitstream: %w", err)
	}
	if _, err := p.chain.ShiftIR(bitvec.FromUint(IRStartup, IRLength), jtag.Then(tap.StatePauseIR)); err != nil {
		return fmt.Errorf("intel: load STARTUP: %w", err)
	}
	if err := p.chain.RunTest(StartupClocks, tap.StateRunTestIdle, tap.StateRunTestIdle); err != nil {
		return fmt.Errorf("intel: startup clocks: %w", err)
	}
	p.log.V(1).Info("configuration complete")
	return nil
}
