// Package sim is a protocol-level model of an Apollo debugger and the board
// behind it. A Board implements apollo.Link, so the JTAG, flash and debug-SPI
// packages can run against it without hardware.
package sim

import (
	"fmt"
	"sync"

	"github.com/go-logr/logr"

	"github.com/OpenTraceLab/OpenTraceApollo/pkg/apollo"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/bitvec"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/tap"
)

// Option configures a Board.
type Option func(*Board)

// WithDevices places devices on the scan chain. devices[0] is nearest TDO
// and is therefore the first IDCODE read during enumeration.
func WithDevices(devices ...Device) Option {
	return func(b *Board) { b.devices = append(b.devices, devices...) }
}

// WithFlash attaches a configuration flash.
func WithFlash(f *Flash) Option {
	return func(b *Board) { b.flash = f }
}

// WithRegisterTarget attaches gateware registers to the debug SPI port.
func WithRegisterTarget(t *RegisterTarget) Option {
	return func(b *Board) { b.target = t }
}

// WithLogger traces every request at V(2).
func WithLogger(log logr.Logger) Option {
	return func(b *Board) { b.log = log }
}

// Board is a simulated debugger plus target board.
type Board struct {
	mu  sync.Mutex
	log logr.Logger

	// StateFault, when set, rewrites the state reported by GET_STATE.
	StateFault func(tap.State) tap.State

	devices    []Device
	fsm        *tap.StateMachine
	regs       []*shiftReg
	jtagActive bool
	outBuf     []byte
	inBuf      []byte
	clocks     int

	flash      *Flash
	linesTaken bool

	target *RegisterTarget
	spiTx  []byte
	spiRx  []byte

	led apollo.LEDPattern
}

// New builds a board. Without options the scan chain is empty.
func New(opts ...Option) *Board {
	b := &Board{
		log: logr.Discard(),
		fsm: tap.NewStateMachine(),
		led: apollo.LEDIdle,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewDefault returns a board resembling a LUNA target: one LFE5U-12, a
// Winbond W25Q32JV and a register target.
func NewDefault(log logr.Logger) *Board {
	fpga := NewECP5(0x21111043)
	fpga.EraseBusyPolls = 2
	return New(
		WithLogger(log),
		WithDevices(fpga),
		WithFlash(NewFlash(0xef15, 4<<20)),
		WithRegisterTarget(NewRegisterTarget()),
	)
}

// Devices returns the devices on the scan chain.
func (b *Board) Devices() []Device { return b.devices }

// Flash returns the attached flash, if any.
func (b *Board) Flash() *Flash { return b.flash }

// RegisterTarget returns the attached register target, if any.
func (b *Board) RegisterTarget() *RegisterTarget { return b.target }

// LED returns the current LED pattern.
func (b *Board) LED() apollo.LEDPattern {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.led
}

// State returns the simulated TAP state.
func (b *Board) State() tap.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fsm.State()
}

// Clocks returns the number of RUN_CLOCK cycles issued.
func (b *Board) Clocks() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clocks
}

// JTAGActive reports whether a JTAG session is open.
func (b *Board) JTAGActive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.jtagActive
}

// LinesTaken reports whether the flash session holds the configuration lines.
func (b *Board) LinesTaken() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.linesTaken
}

// OutRequest implements apollo.Link.
func (b *Board) OutRequest(request uint8, value, index uint16, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log.V(2).Info("out", "request", apollo.RequestName(request), "value", value, "index", index, "length", len(data))

	switch request {
	case apollo.RequestJTAGStart:
		b.jtagActive = true
		b.outBuf = make([]byte, apollo.MaxTransfer)
		return nil
	case apollo.RequestJTAGStop:
		b.jtagActive = false
		return nil
	case apollo.RequestSetLEDPattern:
		b.led = apollo.LEDPattern(value)
		return nil
	case apollo.RequestFlashTakeLines:
		b.linesTaken = true
		return nil
	case apollo.RequestFlashReleaseLines:
		b.linesTaken = false
		return nil
	case apollo.RequestFlashSPISend:
		if !b.linesTaken {
			return b.stall(request, "configuration lines not taken")
		}
		if b.flash == nil {
			b.spiRx = make([]byte, len(data))
			return nil
		}
		b.spiRx = b.flash.Transfer(data)
		return nil
	case apollo.RequestDebugSPISend:
		return b.debugSPISend(value, data)
	}

	if !b.jtagActive {
		return b.stall(request, "JTAG session not started")
	}
	switch request {
	case apollo.RequestJTAGGotoState:
		return b.gotoState(tap.State(value))
	case apollo.RequestJTAGClearOut:
		for i := range b.outBuf {
			b.outBuf[i] = 0
		}
		return nil
	case apollo.RequestJTAGSetOut:
		if len(data) > apollo.MaxTransfer {
			return b.stall(request, "data stage too long")
		}
		b.outBuf = make([]byte, apollo.MaxTransfer)
		copy(b.outBuf, data)
		return nil
	case apollo.RequestJTAGScan:
		return b.scan(int(value), index != 0)
	case apollo.RequestJTAGRunClock:
		b.clocks += int(value)
		for _, d := range b.devices {
			d.Clock(b.fsm.State(), int(value))
		}
		return nil
	}
	return b.stall(request, "unsupported request")
}

// InRequest implements apollo.Link.
func (b *Board) InRequest(request uint8, value, index uint16, length int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log.V(2).Info("in", "request", apollo.RequestName(request), "value", value, "index", index, "length", length)

	switch request {
	case apollo.RequestJTAGGetState:
		state := b.fsm.State()
		if b.StateFault != nil {
			state = b.StateFault(state)
		}
		return []byte{byte(state)}, nil
	case apollo.RequestJTAGGetIn:
		out := make([]byte, length)
		copy(out, b.inBuf)
		return out, nil
	case apollo.RequestDebugSPIRead:
		out := make([]byte, length)
		copy(out, b.spiRx)
		return out, nil
	}
	return nil, b.stall(request, "unsupported request")
}

func (b *Board) stall(request uint8, reason string) error {
	return &apollo.RequestError{Op: "sim", Request: request, Err: fmt.Errorf("stall: %s", reason)}
}

func (b *Board) gotoState(target tap.State) error {
	if !target.Valid() {
		return b.stall(apollo.RequestJTAGGotoState, "invalid state")
	}
	seq, err := tap.Path(b.fsm.State(), target)
	if err != nil {
		return err
	}
	if len(seq.States) == 1 && target == tap.StateTestLogicReset {
		b.enter(target)
	}
	for _, s := range seq.States[1:] {
		b.fsm.Force(s)
		b.enter(s)
	}
	return nil
}

// enter runs the device hooks for a state the controller just moved into.
func (b *Board) enter(s tap.State) {
	switch s {
	case tap.StateTestLogicReset:
		for _, d := range b.devices {
			d.Reset()
		}
	case tap.StateCaptureIR:
		b.regs = b.regs[:0]
		for _, d := range b.devices {
			b.regs = append(b.regs, newShiftReg(d.CaptureIR()))
		}
	case tap.StateCaptureDR:
		b.regs = b.regs[:0]
		for _, d := range b.devices {
			b.regs = append(b.regs, newShiftReg(d.CaptureDR()))
		}
	case tap.StateUpdateIR:
		for i, d := range b.devices {
			if i < len(b.regs) {
				d.UpdateIR(b.regs[i].value())
			}
		}
	case tap.StateUpdateDR:
		for i, d := range b.devices {
			if i < len(b.regs) {
				d.UpdateDR(b.regs[i].value())
			}
		}
	}
}

func (b *Board) scan(bits int, advance bool) error {
	state := b.fsm.State()
	if state != tap.StateShiftDR && state != tap.StateShiftIR {
		return b.stall(apollo.RequestJTAGScan, "not in a shift state")
	}
	if bits > apollo.MaxTransfer*8 {
		return b.stall(apollo.RequestJTAGScan, "scan too long")
	}

	tdi := bitvec.FromWire(b.outBuf, bits)
	tdo := bitvec.New(bits)
	for i := 0; i < bits; i++ {
		carry := tdi.Bit(i)
		if len(b.regs) == 0 {
			// An empty chain connects TDI straight to TDO.
			tdo.Set(i, carry)
			continue
		}
		for d := len(b.regs) - 1; d >= 0; d-- {
			carry = b.regs[d].shift(carry)
		}
		tdo.Set(i, carry)
	}
	b.inBuf = tdo.Wire()

	if advance {
		b.fsm.Clock(true)
	}
	return nil
}

func (b *Board) debugSPISend(value uint16, data []byte) error {
	if len(data) > apollo.MaxTransfer {
		return b.stall(apollo.RequestDebugSPISend, "data stage too long")
	}
	b.spiTx = append(b.spiTx, data...)
	if b.target == nil {
		b.spiRx = make([]byte, len(data))
	} else {
		rx := b.target.Respond(b.spiTx)
		b.spiRx = rx[len(rx)-len(data):]
	}
	if value&0x1 != 0 {
		if b.target != nil {
			b.target.Complete(b.spiTx)
		}
		b.spiTx = nil
	}
	return nil
}
