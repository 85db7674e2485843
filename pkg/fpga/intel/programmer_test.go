package intel

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/OpenTraceLab/OpenTraceApollo/internal/sim"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/apollo"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/fpga"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/tap"
)

func TestConfigure(t *testing.T) {
	dev := sim.NewIntelFPGA(0x020f30dd)
	board := sim.New(sim.WithDevices(dev))
	chain, err := jtag.Open(board)
	if err != nil {
		t.Fatalf("jtag.Open returned error: %v", err)
	}
	defer chain.Close()

	bitstream := make([]byte, 700)
	for i := range bitstream {
		bitstream[i] = byte(i * 7)
	}
	if err := NewProgrammer(chain).Configure(bitstream); err != nil {
		t.Fatalf("Configure returned error: %v", err)
	}

	if diff := cmp.Diff(fpga.ReverseBits(bitstream), dev.Bitstream()); diff != "" {
		t.Errorf("shifted bitstream mismatch (-want +got):\n%s", diff)
	}
	if got := dev.StartupClocks(); got != StartupClocks {
		t.Errorf("StartupClocks = %d, want %d", got, StartupClocks)
	}
	if chain.State() != tap.StateRunTestIdle {
		t.Errorf("final state = %s, want %s", chain.State(), tap.StateRunTestIdle)
	}
}

func TestConfigureRequestShape(t *testing.T) {
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
	chain, err := jtag.Open(link)
	if err != nil {
		t.Fatalf("jtag.Open returned error: %v", err)
	}
	link.ResetLog()

	if err := NewProgrammer(chain).Configure([]byte{0x01, 0x80}); err != nil {
		t.Fatalf("Configure returned error: %v", err)
	}

	outs := link.Filter(apollo.RequestJTAGSetOut)
	want := [][]byte{{0x02, 0x00}, {0x80, 0x01}, {0x03, 0x00}}
	if len(outs) != len(want) {
		t.Fatalf("issued %d SET_OUT requests, want %d", len(outs), len(want))
	}
	for i := range want {
		if diff := cmp.Diff(want[i], outs[i].Data); diff != "" {
			t.Errorf("SET_OUT %d mismatch (-want +got):\n%s", i, diff)
		}
	}
	// The bitstream response is never read back.
	if got := link.Count(apollo.RequestJTAGGetIn); got != 2 {
		t.Errorf("GET_IN count = %d, want 2 (instruction scans only)", got)
	}
	var clocks int
	for _, r := range link.Filter(apollo.RequestJTAGRunClock) {
		clocks += int(r.Value)
	}
	if clocks != StartupClocks {
		t.Errorf("RUN_CLOCK total = %d, want %d", clocks, StartupClocks)
	}
}

func TestConfigureRejectsEmptyBitstream(t *testing.T) {
	board := sim.New(sim.WithDevices(sim.NewIntelFPGA(0x020f30dd)))
	chain, err := jtag.Open(board)
	if err != nil {
		t.Fatalf("jtag.Open returned error: %v", err)
	}
	defer chain.Close()
	if err := NewProgrammer(chain).Configure(nil); err == nil {
		t.Fatalf("Configure(nil) succeeded")
	}
}
