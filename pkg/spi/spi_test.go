package spi

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	periphspi "periph.io/x/conn/v3/spi"

	"github.com/OpenTraceLab/OpenTraceApollo/internal/sim"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/apollo"
)

// echoLink answers every read with the bytes of the preceding send, inverted.
func echoLink() *apollo.SimLink {
	link := apollo.NewSimLink()
	var last []byte
	link.OnOut = func(req apollo.Request) error {
		last = req.Data
		return nil
	}
	link.OnIn = func(req apollo.Request) ([]byte, error) {
		out := make([]byte, len(last))
		for i, b := range last {
			out[i] = ^b
		}
		return out, nil
	}
	return link
}

// fixedLink answers every read with resp.
func fixedLink(resp []byte) *apollo.SimLink {
	link := apollo.NewSimLink()
	link.OnIn = func(apollo.Request) ([]byte, error) { return resp, nil }
	return link
}

func TestTransferChunks(t *testing.T) {
	link := echoLink()
	l := NewLink(link)

	data := make([]byte, 600)
	for i := range data {
		data[i] = byte(i)
	}
	rx, err := l.Transfer(data, false)
	if err != nil {
		t.Fatalf("Transfer returned error: %v", err)
	}

	var values []uint16
	var lengths []int
	for _, req := range link.Filter(apollo.RequestDebugSPISend) {
		values = append(values, req.Value)
		lengths = append(lengths, len(req.Data))
	}
	if diff := cmp.Diff([]uint16{0, 0, 1}, values); diff != "" {
		t.Errorf("send values mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{256, 256, 88}, lengths); diff != "" {
		t.Errorf("chunk lengths mismatch (-want +got):\n%s", diff)
	}
	if len(rx) != len(data) {
		t.Fatalf("response length = %d, want %d", len(rx), len(data))
	}
	for i := range data {
		if rx[i] != ^data[i] {
			t.Fatalf("response[%d] = %#x, want %#x", i, rx[i], ^data[i])
		}
	}
}

func TestTransferInvertCS(t *testing.T) {
	link := echoLink()
	l := NewLink(link, WithChunkSize(4))

	if _, err := l.Transfer([]byte{1, 2, 3, 4, 5}, true); err != nil {
		t.Fatalf("Transfer returned error: %v", err)
	}
	var values []uint16
	for _, req := range link.Filter(apollo.RequestDebugSPISend) {
		values = append(values, req.Value)
	}
	if diff := cmp.Diff([]uint16{2, 3}, values); diff != "" {
		t.Fatalf("send values mismatch (-want +got):\n%s", diff)
	}
}

func TestTransferWithFlashRequests(t *testing.T) {
	link := echoLink()
	l := NewLink(link, WithRequests(apollo.RequestFlashSPISend, apollo.RequestFlashSPIRead),
		WithChunkSize(0), WithoutFlags())

	if _, err := l.Transfer(make([]byte, 260), false); err != nil {
		t.Fatalf("Transfer returned error: %v", err)
	}
	sends := link.Filter(apollo.RequestFlashSPISend)
	if len(sends) != 1 || len(sends[0].Data) != 260 {
		t.Fatalf("flash sends = %d, want a single 260-byte request", len(sends))
	}
	if sends[0].Value != 0 {
		t.Fatalf("flash send value = %#x, want 0", sends[0].Value)
	}
	if link.Count(apollo.RequestDebugSPISend) != 0 {
		t.Fatalf("debug SPI request issued on the flash port")
	}
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		name    string
		resp    []byte
		want    Framing
		wantErr bool
	}{
		{
			name: "two and two",
			resp: []byte{0x00, 0x00, 0x80, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xFF, 0xFF},
			want: Framing{CommandBytes: 2, RegisterBytes: 2},
		},
		{
			name: "one and four",
			resp: []byte{0x00, 0x80, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x00, 0xFF, 0xFF, 0xFF, 0xFF},
			want: Framing{CommandBytes: 1, RegisterBytes: 4},
		},
		{
			name:    "silent target",
			resp:    make([]byte, 16),
			wantErr: true,
		},
		{
			name:    "command not byte aligned",
			resp:    []byte{0x00, 0x01, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xFF, 0xFF},
			wantErr: true,
		},
		{
			name:    "register not byte aligned",
			resp:    []byte{0x00, 0x80, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x0F, 0xFF},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link := fixedLink(tt.resp)
			got, err := NewLink(link).Negotiate()
			if tt.wantErr {
				var nerr *NegotiationError
				if !errors.As(err, &nerr) {
					t.Fatalf("Negotiate error = %v, want NegotiationError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Negotiate returned error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Negotiate = %+v, want %+v", got, tt.want)
			}
			sends := link.Filter(apollo.RequestDebugSPISend)
			if len(sends) != 1 || len(sends[0].Data) != probeLength {
				t.Fatalf("probe requests = %v", sends)
			}
		})
	}
}

func TestNegotiateIsCached(t *testing.T) {
	link := fixedLink([]byte{0x00, 0x00, 0x80, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xFF, 0xFF})
	l := NewLink(link)
	for i := 0; i < 3; i++ {
		if _, err := l.Negotiate(); err != nil {
			t.Fatalf("Negotiate returned error: %v", err)
		}
	}
	if got := link.Count(apollo.RequestDebugSPISend); got != 1 {
		t.Fatalf("probe sent %d times, want 1", got)
	}
}

func TestRegistersOnBoard(t *testing.T) {
	target := sim.NewRegisterTarget()
	board := sim.New(sim.WithRegisterTarget(target))
	l := NewLink(board)

	f, err := l.Negotiate()
	if err != nil {
		t.Fatalf("Negotiate returned error: %v", err)
	}
	if f != (Framing{CommandBytes: 2, RegisterBytes: 4}) {
		t.Fatalf("framing = %+v, want 2/4", f)
	}

	id, err := l.ReadRegister(1)
	if err != nil || id != 0x54455354 {
		t.Fatalf("ReadRegister(1) = %#x, %v", id, err)
	}
	if err := l.WriteRegister(5, 0xDEADBEEF); err != nil {
		t.Fatalf("WriteRegister returned error: %v", err)
	}
	if diff := cmp.Diff([]sim.RegisterWrite{{Address: 5, Value: 0xDEADBEEF}}, target.Writes()); diff != "" {
		t.Fatalf("writes mismatch (-want +got):\n%s", diff)
	}
	got, err := l.ReadRegister(5)
	if err != nil || got != 0xDEADBEEF {
		t.Fatalf("ReadRegister(5) = %#x, %v", got, err)
	}

	if _, err := l.ReadRegister(0x8000); err == nil {
		t.Fatalf("ReadRegister accepted an address overlapping the write flag")
	}
}

func TestRegisterCommandEncoding(t *testing.T) {
	link := fixedLink([]byte{0x00, 0x00, 0x80, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xFF, 0xFF})
	l := NewLink(link)
	if _, err := l.Negotiate(); err != nil {
		t.Fatalf("Negotiate returned error: %v", err)
	}
	link.ResetLog()
	link.OnIn = func(apollo.Request) ([]byte, error) { return []byte{0xAA, 0xBB, 0x12, 0x34}, nil }

	got, err := l.RegisterTransaction(0x0102, true, 0xBEEF)
	if err != nil {
		t.Fatalf("RegisterTransaction returned error: %v", err)
	}
	if got != 0x1234 {
		t.Errorf("response = %#x, want 0x1234", got)
	}
	sends := link.Filter(apollo.RequestDebugSPISend)
	if len(sends) != 1 {
		t.Fatalf("sends = %d, want 1", len(sends))
	}
	if diff := cmp.Diff([]byte{0x81, 0x02, 0xBE, 0xEF}, sends[0].Data); diff != "" {
		t.Fatalf("transaction bytes mismatch (-want +got):\n%s", diff)
	}
}

func TestTxPacketsKeepCS(t *testing.T) {
	link := echoLink()
	l := NewLink(link)

	r := make([]byte, 3)
	packets := []periphspi.Packet{
		{W: []byte{0x9F}, KeepCS: true},
		{R: r},
	}
	if err := l.TxPackets(packets); err != nil {
		t.Fatalf("TxPackets returned error: %v", err)
	}
	sends := link.Filter(apollo.RequestDebugSPISend)
	if len(sends) != 2 || sends[0].Value != 0 || sends[1].Value != 1 {
		t.Fatalf("sends = %v, want hold then release", sends)
	}
	if diff := cmp.Diff([]byte{0, 0, 0}, sends[1].Data); diff != "" {
		t.Fatalf("read packet clocked out data (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]byte{0xFF, 0xFF, 0xFF}, r); diff != "" {
		t.Fatalf("read packet response mismatch (-want +got):\n%s", diff)
	}
}

func TestTxRejectsMismatchedBuffers(t *testing.T) {
	l := NewLink(apollo.NewSimLink())
	if err := l.Tx([]byte{1, 2}, make([]byte, 1)); err == nil {
		t.Fatalf("Tx accepted buffers of different lengths")
	}
	if _, err := l.Connect(0, periphspi.Mode3, 8); err == nil {
		t.Fatalf("Connect accepted mode 3")
	}
	if _, err := l.Connect(0, periphspi.Mode0, 8); err != nil {
		t.Fatalf("Connect(mode 0) returned error: %v", err)
	}
}
