// Package ecp5 configures Lattice ECP5 FPGAs over JTAG.
package ecp5

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"periph.io/x/conn/v3/gpio"

	"github.com/OpenTraceLab/OpenTraceApollo/pkg/apollo"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/bitvec"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/fpga"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/tap"
)

// Configuration opcodes.
const (
	OpNoOp              uint8 = 0xFF
	OpReadID            uint8 = 0xE0
	OpVerifyID          uint8 = 0xE2
	OpReadUsercode      uint8 = 0xC0
	OpReadStatus        uint8 = 0x3C
	OpRefresh           uint8 = 0x79
	OpCheckBusy         uint8 = 0xF0
	OpISCEnable         uint8 = 0xC6
	OpISCDisable        uint8 = 0x26
	OpISCErase          uint8 = 0x0E
	OpResetCRC          uint8 = 0x3B
	OpBitstreamBurst    uint8 = 0x7A
	OpSetWorkingAddress uint8 = 0x46
	OpISCProgramDone    uint8 = 0x5E
	OpPreload           uint8 = 0x1C
)

const (
	instructionLength   = 8
	preloadLength       = 510
	settleClocks        = 100
	defaultTimeout      = time.Second
	defaultPollInterval = 10 * time.Millisecond
	restartDelay        = 50 * time.Millisecond
)

var partNames = map[uint32]string{
	0x21111043: "LFE5U-12",
	0x41111043: "LFE5U-25",
	0x41112043: "LFE5U-45",
	0x41113043: "LFE5U-85",
	0x01111043: "LFE5UM-25",
	0x01112043: "LFE5UM-45",
	0x01113043: "LFE5UM-85",
	0x81111043: "LFE5UM5G-25",
	0x81112043: "LFE5UM5G-45",
	0x81113043: "LFE5UM5G-85",
}

// ErrNoDevice is returned when READ_ID yields all zeros or all ones.
var ErrNoDevice = errors.New("ecp5: could not detect a connected FPGA; check your wiring")

// TimeoutError reports a command that kept the device busy past its budget.
type TimeoutError struct {
	Opcode uint8
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("ecp5: timed out after %s waiting for command 0x%02x to complete", e.Budget, e.Opcode)
}

// Option configures a Programmer.
type Option func(*Programmer)

// WithLogger sets the programmer's logger.
func WithLogger(log logr.Logger) Option {
	return func(p *Programmer) { p.log = log }
}

// WithProgramLine restarts configuration by pulsing PROGRAMN instead of
// issuing LSC_REFRESH.
func WithProgramLine(pin gpio.PinOut) Option {
	return func(p *Programmer) { p.program = pin }
}

// WithExpectedID sets the IDCODE sent with VERIFY_ID. By default the ID
// read from the device is used.
func WithExpectedID(id uint32) Option {
	return func(p *Programmer) { p.expectedID = &id }
}

// WithTimeout bounds each wait for a busy command.
func WithTimeout(d time.Duration) Option {
	return func(p *Programmer) { p.timeout = d }
}

// WithPollInterval sets the delay between busy checks.
func WithPollInterval(d time.Duration) Option {
	return func(p *Programmer) { p.pollInterval = d }
}

// WithPolicy sets how failed status checks are handled.
func WithPolicy(policy fpga.Policy) Option {
	return func(p *Programmer) { p.policy = policy }
}

// Programmer drives the ECP5 sysCONFIG JTAG command set.
type Programmer struct {
	chain        *jtag.Chain
	log          logr.Logger
	program      gpio.PinOut
	expectedID   *uint32
	timeout      time.Duration
	pollInterval time.Duration
	policy       fpga.Policy

	sleep func(time.Duration)
	now   func() time.Time
}

var _ fpga.Programmer = (*Programmer)(nil)

// NewProgrammer returns a programmer for the ECP5 on chain.
func NewProgrammer(chain *jtag.Chain, opts ...Option) *Programmer {
	p := &Programmer{
		chain:        chain,
		log:          chain.Logger(),
		timeout:      defaultTimeout,
		pollInterval: defaultPollInterval,
		policy:       fpga.Strict,
		sleep:        time.Sleep,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// command loads opcode into IR and shifts data (or reads length bits) through
// the selected register, leaving the TAP in Pause-DR.
type command struct {
	opcode     uint8
	data       bitvec.Vector
	length     int
	wait       bool
	checkState bool
	ignore     bool
}

func (p *Programmer) execute(cmd command) (bitvec.Vector, error) {
	if _, err := p.chain.ShiftIR(bitvec.FromUint(uint64(cmd.opcode), instructionLength), jtag.Then(tap.StatePauseIR)); err != nil {
		return bitvec.Vector{}, fmt.Errorf("ecp5: command 0x%02x: %w", cmd.opcode, err)
	}

	var response bitvec.Vector
	if cmd.data.Len() > 0 || cmd.length > 0 {
		opts := []jtag.ScanOption{jtag.Then(tap.StatePauseDR)}
		if cmd.length > 0 {
			opts = append(opts, jtag.Length(cmd.length))
		}
		if cmd.ignore {
			opts = append(opts, jtag.IgnoreResponse())
		}
		var err error
		response, err = p.chain.ShiftDR(cmd.data, opts...)
		if err != nil {
			return bitvec.Vector{}, fmt.Errorf("ecp5: command 0x%02x: %w", cmd.opcode, err)
		}
	}

	if cmd.wait {
		if err := p.waitForCompletion(cmd.opcode); err != nil {
			return response, err
		}
	}
	if cmd.checkState {
		status, err := p.ReadStatus()
		if err != nil {
			return response, err
		}
		if err := p.check(status, Expect{}, false); err != nil {
			return response, err
		}
	}
	return response, nil
}

func (p *Programmer) busy() (bool, error) {
	resp, err := p.execute(command{opcode: OpCheckBusy, length: 8})
	if err != nil {
		return false, err
	}
	return resp.Uint()&1 != 0, nil
}

func (p *Programmer) waitForCompletion(opcode uint8) error {
	deadline := p.now().Add(p.timeout)
	for {
		busy, err := p.busy()
		if err != nil {
			return err
		}
		if !busy {
			return nil
		}
		p.sleep(p.pollInterval)
		if p.now().After(deadline) {
			return &TimeoutError{Opcode: opcode, Budget: p.timeout}
		}
	}
}

// check validates status. With continueAnyway, or under BestEffort, a
// failure is logged and nil returned.
func (p *Programmer) check(status Status, expect Expect, continueAnyway bool) error {
	err := Validate(status, expect)
	p.log.V(1).Info("status", "status", status.String())
	if err == nil {
		return nil
	}
	if continueAnyway || p.policy == fpga.BestEffort {
		p.log.Info("ignoring failed status check", "error", err.Error())
		return nil
	}
	return err
}

// ReadID returns the device's IDCODE.
func (p *Programmer) ReadID() (uint32, error) {
	resp, err := p.execute(command{opcode: OpReadID, length: 32})
	if err != nil {
		return 0, err
	}
	return uint32(resp.Uint()), nil
}

// PartName describes the attached device.
func (p *Programmer) PartName() (string, error) {
	id, err := p.ReadID()
	if err != nil {
		return "", err
	}
	return PartName(id), nil
}

// PartName maps an ECP5 IDCODE to its part number.
func PartName(id uint32) string {
	if name, ok := partNames[id]; ok {
		return name
	}
	return fmt.Sprintf("Unrecognized FPGA (%08x)", id)
}

// ReadStatus reads the configuration status register.
func (p *Programmer) ReadStatus() (Status, error) {
	resp, err := p.execute(command{opcode: OpReadStatus, length: 32})
	if err != nil {
		return 0, err
	}
	return Status(resp.Uint()), nil
}

// ReadUsercode reads the 32-bit USERCODE.
func (p *Programmer) ReadUsercode() (uint32, error) {
	resp, err := p.execute(command{opcode: OpReadUsercode, length: 32, checkState: true})
	if err != nil {
		return 0, err
	}
	return uint32(resp.Uint()), nil
}

func (p *Programmer) restart() error {
	if p.program != nil {
		if err := p.program.Out(gpio.Low); err != nil {
			return fmt.Errorf("ecp5: assert PROGRAMN: %w", err)
		}
		if err := p.program.Out(gpio.High); err != nil {
			return fmt.Errorf("ecp5: release PROGRAMN: %w", err)
		}
	} else if _, err := p.execute(command{opcode: OpRefresh, wait: true}); err != nil {
		return err
	}
	p.sleep(restartDelay)
	return nil
}

func (p *Programmer) statusCheck(expect Expect, continueAnyway bool) error {
	status, err := p.ReadStatus()
	if err != nil {
		return err
	}
	return p.check(status, expect, continueAnyway)
}

// Configure loads bitstream into the FPGA's SRAM and starts it.
func (p *Programmer) Configure(bitstream []byte) (err error) {
	reversed := fpga.ReverseBits(bitstream)
	link := p.chain.Link()

	if err := apollo.SetLEDPattern(link, apollo.LEDUpload); err != nil {
		return err
	}
	defer func() {
		if lerr := apollo.SetLEDPattern(link, apollo.LEDIdle); lerr != nil && err == nil {
			err = lerr
		}
	}()

	if err := p.restart(); err != nil {
		return err
	}

	id, err := p.ReadID()
	if err != nil {
		return err
	}
	if id == 0 || id == 0xFFFFFFFF {
		return fmt.Errorf("%w (ID: %08x)", ErrNoDevice, id)
	}
	p.log.Info("configuring FPGA", "part", PartName(id), "idcode", fmt.Sprintf("%08x", id), "bytes", len(bitstream))

	expected := id
	if p.expectedID != nil {
		expected = *p.expectedID
	}
	steps := []struct {
		name string
		run  func() error
	}{
		{"verify ID", func() error {
			_, err := p.execute(command{opcode: OpVerifyID, data: bitvec.FromUint(uint64(expected), 32), checkState: true})
			return err
		}},
		{"preload", func() error {
			_, err := p.execute(command{opcode: OpPreload, data: bitvec.Ones(preloadLength)})
			return err
		}},
		{"enable configuration", func() error {
			if _, err := p.execute(command{opcode: OpISCEnable, data: bitvec.New(8)}); err != nil {
				return err
			}
			if err := p.chain.RunTest(2, tap.StateRunTestIdle, tap.StateRunTestIdle); err != nil {
				return err
			}
			return p.statusCheck(Expect{ISC: true}, false)
		}},
		{"erase", func() error {
			if _, err := p.execute(command{opcode: OpISCErase, data: bitvec.FromUint(0x01, 8), wait: true, checkState: true}); err != nil {
				return err
			}
			if err := p.chain.RunTest(2, tap.StateRunTestIdle, tap.StateRunTestIdle); err != nil {
				return err
			}
			return p.statusCheck(Expect{}, true)
		}},
		{"set working address", func() error {
			_, err := p.execute(command{opcode: OpSetWorkingAddress, data: bitvec.FromUint(0x01, 8), checkState: true})
			return err
		}},
		{"burst bitstream", func() error {
			if len(reversed) == 0 {
				return nil
			}
			_, err := p.execute(command{opcode: OpBitstreamBurst, data: bitvec.FromWire(reversed, len(reversed)*8), ignore: true})
			return err
		}},
		{"settle", func() error {
			if _, err := p.chain.ShiftIR(bitvec.FromUint(uint64(OpNoOp), instructionLength), jtag.Then(tap.StatePauseIR)); err != nil {
				return err
			}
			return p.chain.RunTest(settleClocks, tap.StatePauseIR, tap.StatePauseIR)
		}},
		{"check DONE", func() error {
			return p.statusCheck(Expect{Done: true}, false)
		}},
		{"disable configuration", func() error {
			if _, err := p.execute(command{opcode: OpISCDisable}); err != nil {
				return err
			}
			if err := p.chain.RunTest(2, tap.StateRunTestIdle, tap.StateRunTestIdle); err != nil {
				return err
			}
			return p.statusCheck(Expect{Done: true}, false)
		}},
	}
	for _, step := range steps {
		p.log.V(1).Info("configuration step", "step", step.name)
		if err := step.run(); err != nil {
			return fmt.Errorf("ecp5: %s: %w", step.name, err)
		}
	}
	p.log.Info("configuration complete")
	return nil
}
