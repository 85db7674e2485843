// Package svf parses Serial Vector Format files and replays them on a JTAG
// chain.
package svf

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/OpenTraceLab/OpenTraceApollo/pkg/bitvec"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/tap"
)

var svfParser = participle.MustBuild[File](
	participle.Lexer(SVFLexer),
	participle.Elide("Comment", "Whitespace"),
	participle.CaseInsensitive("Ident"),
	participle.UseLookahead(2),
)

// ParseError reports malformed SVF.
type ParseError struct {
	Pos lexer.Position
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("svf: %d:%d: %s", e.Pos.Line, e.Pos.Column, e.Msg)
}

// UnsupportedError reports a valid SVF command the player cannot execute.
type UnsupportedError struct {
	Command string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("svf: %s is not supported", e.Command)
}

// Parse reads an SVF file.
func Parse(r io.Reader) (*File, error) {
	f, err := svfParser.Parse("", r)
	if err != nil {
		var perr participle.Error
		if errors.As(err, &perr) {
			return nil, &ParseError{Pos: perr.Position(), Msg: perr.Message()}
		}
		return nil, fmt.Errorf("svf: %w", err)
	}
	return f, nil
}

// ParseString parses SVF source held in a string.
func ParseString(src string) (*File, error) {
	return Parse(strings.NewReader(src))
}

// Run parses r and plays every command on h.
func Run(r io.Reader, h Handler) error {
	f, err := Parse(r)
	if err != nil {
		return err
	}
	return Play(f, h)
}

// Play dispatches each command of f to h in order and stops at the first
// error.
func Play(f *File, h Handler) error {
	for _, cmd := range f.Commands {
		if err := dispatch(cmd, h); err != nil {
			var perr *ParseError
			if errors.As(err, &perr) {
				return err
			}
			return fmt.Errorf("svf: line %d: %w", cmd.Pos.Line, err)
		}
	}
	return nil
}

func dispatch(cmd *Command, h Handler) error {
	switch {
	case cmd.Frequency:
		var hz float64
		if cmd.FrequencyHz != nil {
			hz = *cmd.FrequencyHz
		}
		return h.Frequency(hz)
	case cmd.TRST != nil:
		mode := strings.ToUpper(*cmd.TRST)
		switch mode {
		case "ON", "OFF", "Z", "ABSENT":
		default:
			return parseErr(cmd.Pos, "invalid TRST mode %q", *cmd.TRST)
		}
		return h.TRST(mode)
	case cmd.State != nil:
		states, err := parseStates(cmd.Pos, cmd.State.States)
		if err != nil {
			return err
		}
		target := states[len(states)-1]
		if !target.Stable() {
			return parseErr(cmd.Pos, "STATE must end in a stable state, not %s", target.SVFName())
		}
		return h.State(states[:len(states)-1], target)
	case cmd.EndIR != nil:
		s, err := parseStable(cmd.Pos, *cmd.EndIR)
		if err != nil {
			return err
		}
		return h.EndIR(s)
	case cmd.EndDR != nil:
		s, err := parseStable(cmd.Pos, *cmd.EndDR)
		if err != nil {
			return err
		}
		return h.EndDR(s)
	case cmd.RunTest != nil:
		rt, err := convertRunTest(cmd.Pos, cmd.RunTest)
		if err != nil {
			return err
		}
		return h.RunTest(rt)
	case cmd.PIOMap != nil:
		return h.PIOMap(strings.Trim(*cmd.PIOMap, "()"))
	case cmd.PIO != nil:
		return h.PIO(strings.Trim(*cmd.PIO, "()"))
	case cmd.Scan != nil:
		return dispatchScan(cmd.Pos, cmd.Scan, h)
	}
	return parseErr(cmd.Pos, "empty command")
}

func dispatchScan(pos lexer.Position, sc *ScanCmd, h Handler) error {
	if sc.Length < 0 {
		return parseErr(pos, "negative length %d", sc.Length)
	}
	scan := Scan{Length: sc.Length}
	for _, field := range sc.Fields {
		v, err := bitvec.FromHex(strings.Trim(field.Value, "()"), sc.Length)
		if err != nil {
			return parseErr(pos, "%s %s: %v", sc.Kind, field.Name, err)
		}
		switch strings.ToUpper(field.Name) {
		case "TDI":
			scan.TDI = &v
		case "TDO":
			scan.TDO = &v
		case "MASK":
			scan.Mask = &v
		case "SMASK":
			scan.SMask = &v
		}
	}

	switch strings.ToUpper(sc.Kind) {
	case "HIR":
		return h.HIR(scan)
	case "TIR":
		return h.TIR(scan)
	case "HDR":
		return h.HDR(scan)
	case "TDR":
		return h.TDR(scan)
	case "SIR":
		return h.SIR(scan)
	case "SDR":
		return h.SDR(scan)
	}
	return parseErr(pos, "unknown scan command %q", sc.Kind)
}

func convertRunTest(pos lexer.Position, cmd *RunTestCmd) (RunTest, error) {
	var rt RunTest
	if cmd.RunState != nil {
		s, err := parseStable(pos, *cmd.RunState)
		if err != nil {
			return rt, err
		}
		rt.RunState = &s
	}
	if cmd.EndState != nil {
		s, err := parseStable(pos, *cmd.EndState)
		if err != nil {
			return rt, err
		}
		rt.EndState = &s
	}

	switch strings.ToUpper(cmd.Unit) {
	case "TCK", "SCK":
		if cmd.Count != math.Trunc(cmd.Count) || cmd.Count < 0 {
			return rt, parseErr(pos, "invalid clock count %v", cmd.Count)
		}
		rt.Count = int(cmd.Count)
		rt.Clock = strings.ToUpper(cmd.Unit)
		if cmd.MinTime != nil {
			rt.MinTime = seconds(*cmd.MinTime)
		}
	case "SEC":
		if cmd.MinTime != nil {
			return rt, parseErr(pos, "RUNTEST has two minimum times")
		}
		rt.MinTime = seconds(cmd.Count)
	}
	if cmd.MaxTime != nil {
		rt.MaxTime = seconds(*cmd.MaxTime)
	}
	return rt, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func parseStates(pos lexer.Position, names []string) ([]tap.State, error) {
	states := make([]tap.State, 0, len(names))
	for _, name := range names {
		s, err := tap.ParseState(name)
		if err != nil {
			return nil, parseErr(pos, "%v", err)
		}
		states = append(states, s)
	}
	return states, nil
}

func parseStable(pos lexer.Position, name string) (tap.State, error) {
	s, err := tap.ParseState(name)
	if err != nil {
		return 0, parseErr(pos, "%v", err)
	}
	if !s.Stable() {
		return 0, parseErr(pos, "%s is not a stable state", s.SVFName())
	}
	return s, nil
}

func parseErr(pos lexer.Position, format string, args ...any) error {
	return &ParseError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}
