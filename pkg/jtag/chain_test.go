package jtag

import (
	"errors"
	"strings"
	"testing"

	"github.com/go-logr/logr/funcr"
	"github.com/google/go-cmp/cmp"

	"github.com/OpenTraceLab/OpenTraceApollo/internal/sim"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/apollo"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/bitvec"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/tap"
)

func openChain(t *testing.T, link apollo.Link, opts ...Option) *Chain {
	t.Helper()
	c, err := Open(link, opts...)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestOpenStartsSessionInReset(t *testing.T) {
	link := apollo.NewSimLink()
	link.OnIn = func(req apollo.Request) ([]byte, error) {
		return []byte{byte(tap.StateTestLogicReset)}, nil
	}
	c := openChain(t, link)

	reqs := link.Requests()
	if len(reqs) != 3 {
		t.Fatalf("Open issued %d requests, want 3: %v", len(reqs), reqs)
	}
	if reqs[0].Request != apollo.RequestJTAGStart {
		t.Fatalf("first request = %s, want JTAG_START", reqs[0])
	}
	if reqs[1].Request != apollo.RequestJTAGGotoState || reqs[1].Value != 0 {
		t.Fatalf("second request = %s, want GOTO_STATE RESET", reqs[1])
	}
	if c.State() != tap.StateTestLogicReset {
		t.Fatalf("State() = %s, want %s", c.State(), tap.StateTestLogicReset)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if link.Count(apollo.RequestJTAGStop) != 1 {
		t.Fatalf("Close did not issue JTAG_STOP")
	}
	if _, err := c.ReadDR(8); !errors.Is(err, ErrClosed) {
		t.Fatalf("ReadDR after Close error = %v, want ErrClosed", err)
	}
}

func TestMoveToStateReachesEveryState(t *testing.T) {
	board := sim.New(sim.WithDevices(sim.NewIDCodeDevice(0x41111043)))
	c := openChain(t, board)

	for from := tap.State(0); from < tap.NumStates; from++ {
		for to := tap.State(0); to < tap.NumStates; to++ {
			if err := c.MoveToState(from); err != nil {
				t.Fatalf("MoveToState(%s) returned error: %v", from, err)
			}
			if err := c.MoveToState(to); err != nil {
				t.Fatalf("MoveToState(%s -> %s) returned error: %v", from, to, err)
			}
			if c.State() != to || board.State() != to {
				t.Fatalf("after %s -> %s: chain %s, board %s", from, to, c.State(), board.State())
			}
		}
	}
}

func TestStateDesyncIsFatal(t *testing.T) {
	board := sim.New()
	c := openChain(t, board)

	board.StateFault = func(s tap.State) tap.State {
		if s == tap.StateRunTestIdle {
			return tap.StatePauseDR
		}
		return s
	}
	err := c.MoveToState(tap.StateRunTestIdle)
	var desync *StateDesyncError
	if !errors.As(err, &desync) {
		t.Fatalf("MoveToState error = %v, want StateDesyncError", err)
	}
	if desync.Expected != tap.StateRunTestIdle || desync.Actual != tap.StatePauseDR {
		t.Fatalf("desync = %+v", desync)
	}

	board.StateFault = nil
	if err := c.MoveToState(tap.StateTestLogicReset); !errors.As(err, &desync) {
		t.Fatalf("chain recovered after desync: %v", err)
	}
}

func TestShiftChunksLongScans(t *testing.T) {
	link := trackingLink()
	c := openChain(t, link)
	link.ResetLog()

	tdi := bitvec.Ones(5000)
	if _, err := c.ShiftDR(tdi); err != nil {
		t.Fatalf("ShiftDR returned error: %v", err)
	}

	scans := link.Filter(apollo.RequestJTAGScan)
	want := []struct{ bits, index uint16 }{{2048, 0}, {2048, 0}, {904, 1}}
	if len(scans) != len(want) {
		t.Fatalf("issued %d scans, want %d", len(scans), len(want))
	}
	for i, w := range want {
		if scans[i].Value != w.bits || scans[i].Index != w.index {
			t.Fatalf("scan %d = %s, want %d bits index %d", i, scans[i], w.bits, w.index)
		}
	}
	outs := link.Filter(apollo.RequestJTAGSetOut)
	if len(outs) != 3 || len(outs[0].Data) != 256 || len(outs[2].Data) != 113 {
		t.Fatalf("SET_OUT stages = %v", outs)
	}
	if link.Count(apollo.RequestJTAGClearOut) != 0 {
		t.Fatalf("CLEAR_OUT issued for a scan with TDI")
	}
	if c.State() != tap.StateExit1DR {
		t.Fatalf("State() = %s, want %s", c.State(), tap.StateExit1DR)
	}
}

// trackingLink answers GET_STATE with the last GOTO_STATE target and GET_IN
// with zeros.
func trackingLink() *apollo.SimLink {
	link := apollo.NewSimLink()
	state := tap.StateTestLogicReset
	link.OnOut = func(req apollo.Request) error {
		if req.Request == apollo.RequestJTAGGotoState {
			state = tap.State(req.Value)
		}
		return nil
	}
	link.OnIn = func(req apollo.Request) ([]byte, error) {
		if req.Request == apollo.RequestJTAGGetState {
			return []byte{byte(state)}, nil
		}
		return make([]byte, req.Length), nil
	}
	return link
}

func TestReadWithoutTDIClearsOutBuffer(t *testing.T) {
	board := sim.New(sim.WithDevices(sim.NewIDCodeDevice(0x41111043)))
	c := openChain(t, board)

	link := &countingLink{Link: board}
	c.link = link

	got, err := c.ReadDR(32)
	if err != nil {
		t.Fatalf("ReadDR returned error: %v", err)
	}
	if got.Uint() != 0x41111043 {
		t.Fatalf("ReadDR = %#x, want 0x41111043", got.Uint())
	}
	if link.counts[apollo.RequestJTAGClearOut] != 1 || link.counts[apollo.RequestJTAGSetOut] != 0 {
		t.Fatalf("request counts = %v", link.counts)
	}
}

func TestShiftComparesMaskedTDO(t *testing.T) {
	board := sim.New(sim.WithDevices(sim.NewIDCodeDevice(0x41111043)))
	c := openChain(t, board)

	// Only the low nibble is checked; the rest of the expected value is wrong.
	tdo := bitvec.FromUint(0x00000003, 32)
	mask := bitvec.FromUint(0x0000000F, 32)
	if _, err := c.ReadDR(32, ExpectTDO(tdo, mask), Then(tap.StateRunTestIdle)); err != nil {
		t.Fatalf("masked compare failed: %v", err)
	}
	if c.State() != tap.StateRunTestIdle {
		t.Fatalf("post-state = %s, want %s", c.State(), tap.StateRunTestIdle)
	}

	if err := c.MoveToState(tap.StateTestLogicReset); err != nil {
		t.Fatalf("MoveToState returned error: %v", err)
	}
	_, err := c.ReadDR(32, ExpectTDO(bitvec.FromUint(0x12345678, 32), bitvec.Vector{}))
	var mismatch *PatternMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("ReadDR error = %v, want PatternMismatchError", err)
	}
	if mismatch.Actual.Uint() != 0x41111043 || mismatch.Register != RegisterDR {
		t.Fatalf("mismatch = %+v", mismatch)
	}
	if !strings.Contains(mismatch.Error(), "41111043") {
		t.Fatalf("Error() = %q, want actual value", mismatch.Error())
	}
}

func TestScanTraceOnlyAtVerboseLevel(t *testing.T) {
	for _, verbosity := range []int{0, 2} {
		var logs []string
		log := funcr.New(func(prefix, args string) { logs = append(logs, args) },
			funcr.Options{Verbosity: verbosity})
		board := sim.New(sim.WithDevices(sim.NewIDCodeDevice(0x41111043)))
		c := openChain(t, board, WithLogger(log))

		if _, err := c.ReadDR(32); err != nil {
			t.Fatalf("ReadDR returned error: %v", err)
		}
		traced := false
		for _, l := range logs {
			if strings.Contains(l, `"tdo"`) && strings.Contains(l, "41111043") {
				traced = true
			}
		}
		if traced != (verbosity >= 2) {
			t.Errorf("verbosity %d: scan traced = %v, logs = %q", verbosity, traced, logs)
		}
	}
}

func TestRunTestSplitsLargeCounts(t *testing.T) {
	board := sim.New()
	c := openChain(t, board)

	if err := c.RunTest(102400, tap.StateRunTestIdle, tap.StatePauseIR); err != nil {
		t.Fatalf("RunTest returned error: %v", err)
	}
	if board.Clocks() != 102400 {
		t.Fatalf("board saw %d clocks, want 102400", board.Clocks())
	}
	if c.State() != tap.StatePauseIR {
		t.Fatalf("State() = %s, want %s", c.State(), tap.StatePauseIR)
	}
}

func TestEnumerate(t *testing.T) {
	cases := []struct {
		name    string
		ids     []uint32
		want    []string
		warning bool
	}{
		{"empty", nil, nil, false},
		{"single ecp5", []uint32{0x41111043}, []string{"LFE5U-25"}, false},
		{"three devices", []uint32{0x21111043, 0x020f30dd, 0x12345679}, []string{"LFE5U-12", "EP4CE22", "Unknown device"}, false},
		{"stuck high", []uint32{0xFFFFFFFF}, nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var devs []sim.Device
			for _, id := range tc.ids {
				devs = append(devs, sim.NewIDCodeDevice(id))
			}
			var logs []string
			log := funcr.New(func(prefix, args string) { logs = append(logs, args) }, funcr.Options{})

			c := openChain(t, sim.New(sim.WithDevices(devs...)), WithLogger(log))
			found, err := c.Enumerate()
			if err != nil {
				t.Fatalf("Enumerate returned error: %v", err)
			}
			var names []string
			for i, d := range found {
				if d.Position != i {
					t.Fatalf("device %d has position %d", i, d.Position)
				}
				names = append(names, d.Info.Name)
			}
			if diff := cmp.Diff(tc.want, names); diff != "" {
				t.Fatalf("Enumerate mismatch (-want +got):\n%s", diff)
			}
			warned := false
			for _, l := range logs {
				if strings.Contains(l, "stuck at '1'") {
					warned = true
				}
			}
			if warned != tc.warning {
				t.Fatalf("stuck-high warning = %v, want %v (logs %v)", warned, tc.warning, logs)
			}
		})
	}
}

func TestEnumerateGuardsRunawayChains(t *testing.T) {
	link := trackingLink()
	inner := link.OnIn
	link.OnIn = func(req apollo.Request) ([]byte, error) {
		if req.Request == apollo.RequestJTAGGetIn {
			return []byte{0x43, 0x10, 0x11, 0x41}, nil
		}
		return inner(req)
	}
	c := openChain(t, link, WithMaxDevices(4))

	ids, err := c.IDCodes()
	if !errors.Is(err, ErrChainTooLong) {
		t.Fatalf("IDCodes error = %v, want ErrChainTooLong", err)
	}
	if len(ids) != 4 || ids[0] != 0x41111043 {
		t.Fatalf("IDCodes = %#x", ids)
	}
}

type countingLink struct {
	apollo.Link
	counts map[uint8]int
}

func (l *countingLink) OutRequest(request uint8, value, index uint16, data []byte) error {
	if l.counts == nil {
		l.counts = make(map[uint8]int)
	}
	l.counts[request]++
	return l.Link.OutRequest(request, value, index, data)
}
