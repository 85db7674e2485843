package svf

import (
	"errors"
	"math"

	"github.com/go-logr/logr"
	"periph.io/x/conn/v3/physic"

	"github.com/OpenTraceLab/OpenTraceApollo/pkg/bitvec"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/tap"
)

// DefaultFrequency converts time-only RUNTEST delays into clocks when the
// file never set FREQUENCY.
const DefaultFrequency = 1 * physic.MegaHertz

// segment is one header, trailer or payload field set.
type segment struct {
	length int
	tdi    bitvec.Vector
	tdo    bitvec.Vector
	mask   bitvec.Vector
	hasTDO bool
}

func segmentFrom(s Scan) segment {
	seg := segment{length: s.Length}
	if s.TDI != nil {
		seg.tdi = *s.TDI
	}
	if s.TDO != nil {
		seg.tdo = *s.TDO
		seg.hasTDO = true
	}
	if s.Mask != nil {
		seg.mask = *s.Mask
	}
	return seg
}

// compareMask is the mask actually applied to the segment's bits.
func (s segment) compareMask() bitvec.Vector {
	switch {
	case !s.hasTDO:
		return bitvec.New(s.length)
	case s.mask.Len() > 0:
		return s.mask.Resize(s.length)
	default:
		return bitvec.Ones(s.length)
	}
}

// pathState is the per-register context kept between scans.
type pathState struct {
	register jtag.Register
	header   segment
	trailer  segment
	end      tap.State
	lastTDI  bitvec.Vector
	lastMask bitvec.Vector
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithLogger sets the interpreter's logger.
func WithLogger(log logr.Logger) Option {
	return func(i *Interpreter) { i.log = log }
}

// WithLegacyTrailerGuard applies a DR trailer field only when the matching
// DR header field is set. Some older players behave this way and a few SVF
// files depend on it.
func WithLegacyTrailerGuard(enabled bool) Option {
	return func(i *Interpreter) { i.legacyTrailerGuard = enabled }
}

// Interpreter executes SVF commands on a JTAG chain.
type Interpreter struct {
	chain *jtag.Chain
	log   logr.Logger

	legacyTrailerGuard bool

	ir, dr   pathState
	runState tap.State
	runEnd   tap.State
}

var _ Handler = (*Interpreter)(nil)

// NewInterpreter returns an interpreter with SVF's initial context: empty
// headers and trailers and every end state Run-Test/Idle.
func NewInterpreter(chain *jtag.Chain, opts ...Option) *Interpreter {
	i := &Interpreter{
		chain:    chain,
		log:      chain.Logger(),
		ir:       pathState{register: jtag.RegisterIR, end: tap.StateRunTestIdle},
		dr:       pathState{register: jtag.RegisterDR, end: tap.StateRunTestIdle},
		runState: tap.StateRunTestIdle,
		runEnd:   tap.StateRunTestIdle,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Interpreter) Frequency(hz float64) error {
	if hz <= 0 {
		i.log.V(1).Info("FREQUENCY reset to full speed")
		return nil
	}
	return i.chain.SetFrequency(physic.Frequency(hz * float64(physic.Hertz)))
}

func (i *Interpreter) TRST(mode string) error {
	i.log.Info("TRST is not wired on this debugger; ignoring", "mode", mode)
	return nil
}

func (i *Interpreter) State(path []tap.State, target tap.State) error {
	for _, s := range path {
		if err := i.chain.MoveToState(s); err != nil {
			return err
		}
	}
	return i.chain.MoveToState(target)
}

func (i *Interpreter) EndIR(state tap.State) error {
	i.ir.end = state
	return nil
}

func (i *Interpreter) EndDR(state tap.State) error {
	i.dr.end = state
	return nil
}

func (i *Interpreter) HIR(s Scan) error { i.ir.header = segmentFrom(s); return nil }
func (i *Interpreter) TIR(s Scan) error { i.ir.trailer = segmentFrom(s); return nil }
func (i *Interpreter) HDR(s Scan) error { i.dr.header = segmentFrom(s); return nil }
func (i *Interpreter) TDR(s Scan) error { i.dr.trailer = segmentFrom(s); return nil }

func (i *Interpreter) SIR(s Scan) error { return i.scan(&i.ir, s) }
func (i *Interpreter) SDR(s Scan) error { return i.scan(&i.dr, s) }

// trailerFor returns the trailer to append, honouring the legacy guard on
// the DR path. The shift length follows TDI, so a guarded-off TDI trailer
// drops the trailer bits entirely.
func (i *Interpreter) trailerFor(p *pathState) segment {
	t := p.trailer
	if !i.legacyTrailerGuard || p.register != jtag.RegisterDR {
		return t
	}
	h := p.header
	if h.tdi.Len() == 0 {
		return segment{}
	}
	if !h.hasTDO {
		t.tdo = bitvec.Vector{}
		t.hasTDO = false
	}
	if h.mask.Len() == 0 {
		t.mask = bitvec.Vector{}
	}
	return t
}

func (i *Interpreter) scan(p *pathState, s Scan) error {
	body := segmentFrom(s)

	// Omitted TDI and MASK carry over from the previous scan of the same
	// length on this path.
	if s.TDI == nil && p.lastTDI.Len() == s.Length {
		body.tdi = p.lastTDI
	}
	if s.Mask == nil && p.lastMask.Len() == s.Length {
		body.mask = p.lastMask
	}
	p.lastTDI = body.tdi.Resize(s.Length)
	if s.Mask != nil {
		p.lastMask = *s.Mask
	}
	if s.SMask != nil {
		i.log.V(2).Info("SMASK ignored", "register", p.register.String())
	}

	trailer := i.trailerFor(p)
	parts := []segment{p.header, body, trailer}

	var length int
	var tdi, tdo, mask []bitvec.Vector
	compare := false
	for _, seg := range parts {
		length += seg.length
		tdi = append(tdi, seg.tdi.Resize(seg.length))
		tdo = append(tdo, seg.tdo.Resize(seg.length))
		mask = append(mask, seg.compareMask())
		compare = compare || seg.hasTDO
	}
	if length == 0 {
		return i.chain.MoveToState(p.end)
	}

	req := jtag.ScanRequest{
		Register:  p.register,
		TDI:       bitvec.Concat(tdi...),
		Length:    length,
		PostState: &p.end,
	}
	if compare {
		req.TDO = bitvec.Concat(tdo...)
		req.Mask = bitvec.Concat(mask...)
	}
	_, err := i.chain.Shift(req)
	var mismatch *jtag.PatternMismatchError
	if errors.As(err, &mismatch) {
		i.log.Error(err, "scan mismatch", "register", p.register.String(),
			"expected", mismatch.Expected.Hex(), "actual", mismatch.Actual.Hex(), "mask", mismatch.Mask.Hex())
	}
	return err
}

func (i *Interpreter) RunTest(rt RunTest) error {
	if rt.RunState != nil {
		i.runState = *rt.RunState
		i.runEnd = *rt.RunState
	}
	if rt.EndState != nil {
		i.runEnd = *rt.EndState
	}
	if rt.Clock == "SCK" {
		i.log.V(1).Info("RUNTEST counts SCK; treating as TCK", "count", rt.Count)
	}

	cycles := rt.Count
	if rt.MinTime > 0 {
		freq := i.chain.Frequency()
		if freq <= 0 {
			freq = DefaultFrequency
		}
		hz := float64(freq) / float64(physic.Hertz)
		// The small offset keeps float error from adding a clock to exact
		// products.
		timed := int(math.Ceil(rt.MinTime.Seconds()*hz - 1e-6))
		if timed > cycles {
			cycles = timed
		}
	}
	return i.chain.RunTest(cycles, i.runState, i.runEnd)
}

func (i *Interpreter) PIOMap(string) error {
	return &UnsupportedError{Command: "PIOMAP"}
}

func (i *Interpreter) PIO(string) error {
	return &UnsupportedError{Command: "PIO"}
}
