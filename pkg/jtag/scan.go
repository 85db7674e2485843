package jtag

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceApollo/pkg/apollo"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/bitvec"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/tap"
)

// Register selects the instruction or data register path.
type Register uint8

const (
	RegisterDR Register = iota
	RegisterIR
)

func (r Register) String() string {
	if r == RegisterIR {
		return "IR"
	}
	return "DR"
}

func (r Register) shiftState() tap.State {
	if r == RegisterIR {
		return tap.StateShiftIR
	}
	return tap.StateShiftDR
}

func (r Register) exitState() tap.State {
	if r == RegisterIR {
		return tap.StateExit1IR
	}
	return tap.StateExit1DR
}

// ScanRequest describes one shift through the chain.
//
// An empty TDI shifts zeros without uploading data. Length defaults to the
// TDI length; a longer TDI is truncated and a shorter one zero-padded. An
// empty TDO disables response checking and an empty Mask compares every bit.
type ScanRequest struct {
	Register       Register
	TDI            bitvec.Vector
	Length         int
	TDO            bitvec.Vector
	Mask           bitvec.Vector
	IgnoreResponse bool
	// PostState, when set, is entered after a successful scan. Otherwise the
	// chain stays in the Exit1 state of the scanned path.
	PostState *tap.State
}

// ScanOption adjusts a ScanRequest built by ShiftIR/ShiftDR.
type ScanOption func(*ScanRequest)

// ExpectTDO checks the response against tdo under mask. An empty mask
// compares every bit.
func ExpectTDO(tdo, mask bitvec.Vector) ScanOption {
	return func(r *ScanRequest) {
		r.TDO = tdo
		r.Mask = mask
	}
}

// IgnoreResponse skips reading TDO back.
func IgnoreResponse() ScanOption {
	return func(r *ScanRequest) { r.IgnoreResponse = true }
}

// Then moves the chain to state after the scan.
func Then(state tap.State) ScanOption {
	return func(r *ScanRequest) { r.PostState = &state }
}

// Length sets the scan length explicitly.
func Length(n int) ScanOption {
	return func(r *ScanRequest) { r.Length = n }
}

// ShiftIR shifts tdi through the instruction register path.
func (c *Chain) ShiftIR(tdi bitvec.Vector, opts ...ScanOption) (bitvec.Vector, error) {
	req := ScanRequest{Register: RegisterIR, TDI: tdi}
	for _, opt := range opts {
		opt(&req)
	}
	return c.Shift(req)
}

// ShiftDR shifts tdi through the data register path.
func (c *Chain) ShiftDR(tdi bitvec.Vector, opts ...ScanOption) (bitvec.Vector, error) {
	req := ScanRequest{Register: RegisterDR, TDI: tdi}
	for _, opt := range opts {
		opt(&req)
	}
	return c.Shift(req)
}

// ReadDR shifts length zero bits through the data register path and returns
// what came out.
func (c *Chain) ReadDR(length int, opts ...ScanOption) (bitvec.Vector, error) {
	return c.ShiftDR(bitvec.Vector{}, append([]ScanOption{Length(length)}, opts...)...)
}

// Shift performs a scan. The scan is split into MaxBitsPerScan chunks; only
// the last chunk asks the debugger to leave the shift state, so the whole
// scan is seen by the chain as a single shift. With IgnoreResponse the
// returned vector is empty.
func (c *Chain) Shift(req ScanRequest) (bitvec.Vector, error) {
	if err := c.usable(); err != nil {
		return bitvec.Vector{}, err
	}

	length := req.Length
	if length == 0 {
		length = req.TDI.Len()
	}
	if length <= 0 {
		return bitvec.Vector{}, fmt.Errorf("jtag: %s scan needs TDI or a length", req.Register)
	}
	hasTDI := req.TDI.Len() > 0
	tdi := req.TDI.Resize(length)

	if c.state != req.Register.shiftState() {
		if err := c.MoveToState(req.Register.shiftState()); err != nil {
			return bitvec.Vector{}, err
		}
	}

	if !hasTDI {
		if err := c.link.OutRequest(apollo.RequestJTAGClearOut, 0, 0, nil); err != nil {
			return bitvec.Vector{}, fmt.Errorf("jtag: clear out buffer: %w", err)
		}
	}

	var parts []bitvec.Vector
	for offset := 0; offset < length; {
		n := length - offset
		if n > c.maxBits {
			n = c.maxBits
		}
		last := offset+n == length

		chunk, err := c.scanChunk(tdi.Slice(offset, offset+n), hasTDI, req.IgnoreResponse, last)
		if err != nil {
			return bitvec.Vector{}, err
		}
		parts = append(parts, chunk)
		offset += n
	}
	c.state = req.Register.exitState()

	var response bitvec.Vector
	if !req.IgnoreResponse {
		response = bitvec.Concat(parts...)
		if log := c.log.V(2); log.Enabled() {
			log.Info("scan", "register", req.Register.String(), "length", length,
				"tdi", tdi.Hex(), "tdo", response.Hex())
		}

		if req.TDO.Len() > 0 {
			mask := req.Mask
			if mask.Len() == 0 {
				mask = bitvec.Ones(length)
			}
			mask = mask.Resize(length)
			expected := req.TDO.Resize(length)
			if !response.And(mask).Equal(expected.And(mask)) {
				c.log.V(1).Info("scan pattern mismatch", "register", req.Register.String(),
					"expected", expected.Hex(), "actual", response.Hex(), "mask", mask.Hex())
				return response, &PatternMismatchError{
					Register: req.Register,
					Expected: expected,
					Actual:   response,
					Mask:     mask,
				}
			}
		}
	}

	if req.PostState != nil {
		if err := c.MoveToState(*req.PostState); err != nil {
			return response, err
		}
	}
	return response, nil
}

func (c *Chain) scanChunk(tdi bitvec.Vector, hasTDI, ignoreResponse, advance bool) (bitvec.Vector, error) {
	n := tdi.Len()
	if hasTDI {
		if err := c.link.OutRequest(apollo.RequestJTAGSetOut, 0, 0, tdi.Wire()); err != nil {
			return bitvec.Vector{}, fmt.Errorf("jtag: set out buffer: %w", err)
		}
	}

	var index uint16
	if advance {
		index = 1
	}
	if err := c.link.OutRequest(apollo.RequestJTAGScan, uint16(n), index, nil); err != nil {
		return bitvec.Vector{}, fmt.Errorf("jtag: scan %d bits: %w", n, err)
	}

	if ignoreResponse {
		return bitvec.Vector{}, nil
	}
	raw, err := c.link.InRequest(apollo.RequestJTAGGetIn, 0, 0, (n+7)/8)
	if err != nil {
		return bitvec.Vector{}, fmt.Errorf("jtag: read in buffer: %w", err)
	}
	return bitvec.FromWire(raw, n), nil
}
