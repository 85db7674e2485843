package svf

import (
	"time"

	"github.com/OpenTraceLab/OpenTraceApollo/pkg/bitvec"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/tap"
)

// Scan holds the arguments of HIR, TIR, HDR, TDR, SIR and SDR. A nil field
// was not given. Every present vector is Length bits long.
type Scan struct {
	Length int
	TDI    *bitvec.Vector
	TDO    *bitvec.Vector
	Mask   *bitvec.Vector
	SMask  *bitvec.Vector
}

// RunTest holds the arguments of RUNTEST. Count is zero for the time-only
// form; nil states were not given.
type RunTest struct {
	RunState *tap.State
	Count    int
	Clock    string // "TCK" or "SCK" when Count is set
	MinTime  time.Duration
	MaxTime  time.Duration
	EndState *tap.State
}

// Handler receives SVF commands in file order. Play stops at the first
// error a method returns.
type Handler interface {
	// Frequency sets the maximum TCK rate; zero means full speed.
	Frequency(hz float64) error
	TRST(mode string) error
	// State walks path and then settles in the stable state target.
	State(path []tap.State, target tap.State) error
	EndIR(state tap.State) error
	EndDR(state tap.State) error
	HIR(s Scan) error
	TIR(s Scan) error
	HDR(s Scan) error
	TDR(s Scan) error
	SIR(s Scan) error
	SDR(s Scan) error
	RunTest(rt RunTest) error
	PIOMap(body string) error
	PIO(body string) error
}
