// Package jtag drives a JTAG scan chain through an Apollo debugger.
package jtag

import (
	"fmt"

	"github.com/go-logr/logr"
	"periph.io/x/conn/v3/physic"

	"github.com/OpenTraceLab/OpenTraceApollo/pkg/apollo"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/idcode/deviceinfo"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/tap"
)

const (
	// MaxBitsPerScan is the largest scan the debugger buffers in one request.
	MaxBitsPerScan = 2048
	// DefaultMaxDevices bounds enumeration of a chain without a terminator.
	DefaultMaxDevices = 32

	maxClocksPerRequest = 0xFFFF
)

// Option configures a Chain.
type Option func(*Chain)

// WithLogger sets the logger used for protocol tracing and warnings.
func WithLogger(log logr.Logger) Option {
	return func(c *Chain) { c.log = log }
}

// WithRegistry sets the device registry used by Enumerate.
func WithRegistry(r *deviceinfo.Registry) Option {
	return func(c *Chain) { c.registry = r }
}

// WithMaxBitsPerScan overrides the per-request scan limit.
func WithMaxBitsPerScan(n int) Option {
	return func(c *Chain) {
		if n > 0 && n <= MaxBitsPerScan {
			c.maxBits = n
		}
	}
}

// WithMaxDevices overrides the enumeration guard.
func WithMaxDevices(n int) Option {
	return func(c *Chain) {
		if n > 0 {
			c.maxDevices = n
		}
	}
}

// Chain is an open JTAG session on a debugger. It tracks the TAP state the
// debugger was last commanded into. A Chain is not safe for concurrent use.
type Chain struct {
	link     apollo.Link
	log      logr.Logger
	registry *deviceinfo.Registry

	state      tap.State
	frequency  physic.Frequency
	maxBits    int
	maxDevices int

	desync error
	closed bool
}

// Open starts a JTAG session and places the chain in Test-Logic-Reset.
// Callers must Close the chain to hand the pins back to the debugger.
func Open(link apollo.Link, opts ...Option) (*Chain, error) {
	c := &Chain{
		link:       link,
		log:        logr.Discard(),
		registry:   deviceinfo.Default,
		state:      tap.StateTestLogicReset,
		maxBits:    MaxBitsPerScan,
		maxDevices: DefaultMaxDevices,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := link.OutRequest(apollo.RequestJTAGStart, 0, 0, nil); err != nil {
		return nil, fmt.Errorf("jtag: start session: %w", err)
	}
	if err := c.MoveToState(tap.StateTestLogicReset); err != nil {
		return nil, err
	}
	c.log.V(1).Info("JTAG session started")
	return c, nil
}

// Close ends the JTAG session.
func (c *Chain) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.link.OutRequest(apollo.RequestJTAGStop, 0, 0, nil); err != nil {
		return fmt.Errorf("jtag: stop session: %w", err)
	}
	c.log.V(1).Info("JTAG session stopped")
	return nil
}

// Link returns the debugger link the chain runs on.
func (c *Chain) Link() apollo.Link {
	return c.link
}

// Logger returns the chain's logger so collaborators can share it.
func (c *Chain) Logger() logr.Logger {
	return c.log
}

// State reports the TAP state the debugger was last moved into.
func (c *Chain) State() tap.State {
	return c.state
}

func (c *Chain) usable() error {
	if c.closed {
		return ErrClosed
	}
	return c.desync
}

// MoveToState commands the debugger into target and confirms the state it
// reports. A disagreement is fatal for the session.
func (c *Chain) MoveToState(target tap.State) error {
	if err := c.usable(); err != nil {
		return err
	}
	if !target.Valid() {
		return fmt.Errorf("jtag: invalid target state %d", target)
	}

	if err := c.link.OutRequest(apollo.RequestJTAGGotoState, uint16(target), 0, nil); err != nil {
		return fmt.Errorf("jtag: go to %s: %w", target.SVFName(), err)
	}
	raw, err := c.link.InRequest(apollo.RequestJTAGGetState, 0, 0, 1)
	if err != nil {
		return fmt.Errorf("jtag: read state: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("jtag: read state: got %d bytes, want 1", len(raw))
	}

	actual := tap.State(raw[0])
	c.state = actual
	if actual != target {
		c.desync = &StateDesyncError{Expected: target, Actual: actual}
		return c.desync
	}
	c.log.V(2).Info("moved to state", "state", target.SVFName())
	return nil
}

// SetFrequency records the requested TCK frequency. The debugger firmware
// runs TCK at a fixed rate, so the value is only kept for RUNTEST timing.
func (c *Chain) SetFrequency(f physic.Frequency) error {
	if f <= 0 {
		return fmt.Errorf("jtag: invalid frequency %s", f)
	}
	c.frequency = f
	c.log.V(1).Info("TCK frequency control not supported by debugger; recording only", "frequency", f.String())
	return nil
}

// Frequency returns the last frequency passed to SetFrequency, or zero.
func (c *Chain) Frequency() physic.Frequency {
	return c.frequency
}

// RunTest parks the chain in from, clocks TCK for the given number of
// cycles and then moves to end. Passing end == from leaves the chain parked.
func (c *Chain) RunTest(cycles int, from, end tap.State) error {
	if cycles < 0 {
		return fmt.Errorf("jtag: negative cycle count %d", cycles)
	}
	if err := c.MoveToState(from); err != nil {
		return err
	}
	for remaining := cycles; remaining > 0; {
		n := remaining
		if n > maxClocksPerRequest {
			n = maxClocksPerRequest
		}
		if err := c.link.OutRequest(apollo.RequestJTAGRunClock, uint16(n), 0, nil); err != nil {
			return fmt.Errorf("jtag: run clock: %w", err)
		}
		remaining -= n
	}
	c.log.V(2).Info("run test", "cycles", cycles, "state", from.SVFName())
	if end != from {
		return c.MoveToState(end)
	}
	return nil
}
