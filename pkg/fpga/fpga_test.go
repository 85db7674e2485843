package fpga

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReverseBits(t *testing.T) {
	tests := []struct {
		in   []byte
		want []byte
	}{
		{nil, []byte{}},
		{[]byte{0x01}, []byte{0x80}},
		{[]byte{0xFF, 0x00}, []byte{0xFF, 0x00}},
		{[]byte{0x3C, 0x12}, []byte{0x3C, 0x48}},
		{[]byte{0xA0}, []byte{0x05}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, ReverseBits(tt.in)); diff != "" {
			t.Errorf("ReverseBits(% x) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestReverseBitsIsAnInvolution(t *testing.T) {
	in := make([]byte, 256)
	for i := range in {
		in[i] = byte(i)
	}
	if diff := cmp.Diff(in, ReverseBits(ReverseBits(in))); diff != "" {
		t.Fatalf("double reversal changed data (-want +got):\n%s", diff)
	}
}

func TestReverseBitsCopies(t *testing.T) {
	in := []byte{0x01}
	ReverseBits(in)
	if in[0] != 0x01 {
		t.Fatalf("ReverseBits modified its input")
	}
}

func TestPolicyString(t *testing.T) {
	if Strict.String() != "strict" || BestEffort.String() != "best-effort" {
		t.Fatalf("unexpected policy names %q %q", Strict, BestEffort)
	}
}
