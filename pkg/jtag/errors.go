package jtag

import (
	"errors"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceApollo/pkg/bitvec"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/tap"
)

var (
	// ErrClosed is returned by operations on a chain after Close.
	ErrClosed = errors.New("jtag: chain closed")
	// ErrChainTooLong is returned when enumeration never sees a terminator.
	ErrChainTooLong = errors.New("jtag: no end-of-chain marker; TDO may be stuck")
)

// PatternMismatchError reports a scan whose masked response differed from
// the expected TDO pattern.
type PatternMismatchError struct {
	Register Register
	Expected bitvec.Vector
	Actual   bitvec.Vector
	Mask     bitvec.Vector
}

func (e *PatternMismatchError) Error() string {
	return fmt.Sprintf("jtag: %s scan mismatch: got %s, expected %s (mask %s)",
		e.Register, e.Actual.Hex(), e.Expected.Hex(), e.Mask.Hex())
}

// StateDesyncError reports that the debugger's TAP state differs from the
// state it was commanded into. The chain is unusable afterwards.
type StateDesyncError struct {
	Expected tap.State
	Actual   tap.State
}

func (e *StateDesyncError) Error() string {
	return fmt.Sprintf("jtag: TAP state desync: commanded %s, debugger reports %s",
		e.Expected.SVFName(), e.Actual.SVFName())
}
