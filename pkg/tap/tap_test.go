package tap

import "testing"

func TestNextStateTable(t *testing.T) {
	type transition struct {
		start State
		tms   bool
		end   State
	}

	cases := []transition{
		{StateTestLogicReset, false, StateRunTestIdle},
		{StateTestLogicReset, true, StateTestLogicReset},
		{StateRunTestIdle, true, StateSelectDRScan},
		{StateSelectDRScan, false, StateCaptureDR},
		{StateShiftDR, true, StateExit1DR},
		{StateExit2DR, false, StateShiftDR},
		{StateSelectIRScan, true, StateTestLogicReset},
		{StateCaptureIR, false, StateShiftIR},
		{StatePauseIR, true, StateExit2IR},
		{StateExit2IR, true, StateUpdateIR},
	}

	for _, tc := range cases {
		got := NextState(tc.start, tc.tms)
		if got != tc.end {
			t.Fatalf("NextState(%s, %v) = %s, want %s", tc.start, tc.tms, got, tc.end)
		}
	}
}

func TestStateMachineReset(t *testing.T) {
	m := NewStateMachine()
	// Move out of reset to ensure Reset() actually travels back.
	m.Clock(false) // -> Run-Test/Idle
	if m.State() != StateRunTestIdle {
		t.Fatalf("State() = %s, want %s", m.State(), StateRunTestIdle)
	}

	seq := m.Reset()

	if len(seq.TMS) != 5 {
		t.Fatalf("Reset sequence length = %d, want 5", len(seq.TMS))
	}
	if want := StateTestLogicReset; m.State() != want {
		t.Fatalf("State after reset = %s, want %s", m.State(), want)
	}
	if seq.States[len(seq.States)-1] != StateTestLogicReset {
		t.Fatalf("Final sequence state = %s, want %s", seq.States[len(seq.States)-1], StateTestLogicReset)
	}
}

func TestGoToProducesExpectedPattern(t *testing.T) {
	m := NewStateMachine()
	// Move into Run-Test/Idle so GoTo has to traverse more than one edge.
	m.Clock(false)

	path, err := m.GoTo(StateShiftIR)
	if err != nil {
		t.Fatalf("GoTo returned error: %v", err)
	}

	wantBits := []bool{true, true, false, false}
	if len(path.TMS) != len(wantBits) {
		t.Fatalf("GoTo length = %d, want %d", len(path.TMS), len(wantBits))
	}
	for i, want := range wantBits {
		if path.TMS[i] != want {
			t.Fatalf("path bit %d = %v, want %v", i, path.TMS[i], want)
		}
	}
	if m.State() != StateShiftIR {
		t.Fatalf("State() = %s, want %s", m.State(), StateShiftIR)
	}

	// Go back to Run-Test/Idle to ensure BFS works from IR path.
	if _, err := m.GoTo(StateRunTestIdle); err != nil {
		t.Fatalf("GoTo RunTestIdle returned error: %v", err)
	}
	if m.State() != StateRunTestIdle {
		t.Fatalf("State() = %s, want %s", m.State(), StateRunTestIdle)
	}
}

func TestWireNumbering(t *testing.T) {
	cases := map[string]State{
		"RESET":     0,
		"IDLE":      1,
		"DRSELECT":  2,
		"DRCAPTURE": 3,
		"DRSHIFT":   4,
		"DREXIT1":   5,
		"DRPAUSE":   6,
		"DREXIT2":   7,
		"DRUPDATE":  8,
		"IRSELECT":  9,
		"IRCAPTURE": 10,
		"IRSHIFT":   11,
		"IREXIT1":   12,
		"IRPAUSE":   13,
		"IREXIT2":   14,
		"IRUPDATE":  15,
	}
	for name, want := range cases {
		got, err := ParseState(name)
		if err != nil {
			t.Fatalf("ParseState(%q) returned error: %v", name, err)
		}
		if got != want {
			t.Fatalf("ParseState(%q) = %d, want %d", name, got, want)
		}
		if got.SVFName() != name {
			t.Fatalf("SVFName() = %q, want %q", got.SVFName(), name)
		}
	}
}

func TestParseStateCaseInsensitive(t *testing.T) {
	for _, name := range []string{"drpause", "DrPause", "PauseDR"} {
		got, err := ParseState(name)
		if err != nil {
			t.Fatalf("ParseState(%q) returned error: %v", name, err)
		}
		if got != StatePauseDR {
			t.Fatalf("ParseState(%q) = %s, want %s", name, got, StatePauseDR)
		}
	}
	if _, err := ParseState("SIDEWAYS"); err == nil {
		t.Fatalf("ParseState accepted unknown state")
	}
}

func TestPathReachesEveryState(t *testing.T) {
	for from := State(0); from < NumStates; from++ {
		for to := State(0); to < NumStates; to++ {
			seq, err := Path(from, to)
			if err != nil {
				t.Fatalf("Path(%s, %s) returned error: %v", from, to, err)
			}
			m := StateMachine{state: from}
			for _, bit := range seq.TMS {
				m.Clock(bit)
			}
			if m.State() != to {
				t.Fatalf("Path(%s, %s) ends in %s", from, to, m.State())
			}
			if got := seq.States[len(seq.States)-1]; got != to {
				t.Fatalf("Path(%s, %s) last state = %s", from, to, got)
			}
		}
	}
}

func TestStableStates(t *testing.T) {
	stable := map[State]bool{
		StateTestLogicReset: true,
		StateRunTestIdle:    true,
		StatePauseDR:        true,
		StatePauseIR:        true,
	}
	for s := State(0); s < NumStates; s++ {
		if s.Stable() != stable[s] {
			t.Fatalf("%s.Stable() = %v, want %v", s, s.Stable(), stable[s])
		}
	}
}
