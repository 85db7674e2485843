package apollo

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSimLinkRecordsRequests(t *testing.T) {
	link := NewSimLink()
	link.OnIn = func(req Request) ([]byte, error) {
		if req.Request == RequestJTAGGetState {
			return []byte{0x04, 0xAA}, nil
		}
		return nil, nil
	}

	if err := link.OutRequest(RequestJTAGGotoState, 4, 0, nil); err != nil {
		t.Fatalf("OutRequest returned error: %v", err)
	}
	data, err := link.InRequest(RequestJTAGGetState, 0, 0, 1)
	if err != nil {
		t.Fatalf("InRequest returned error: %v", err)
	}
	if diff := cmp.Diff([]byte{0x04}, data); diff != "" {
		t.Fatalf("InRequest data mismatch (-want +got):\n%s", diff)
	}

	want := []Request{
		{Direction: DirectionOut, Request: RequestJTAGGotoState, Value: 4},
		{Direction: DirectionIn, Request: RequestJTAGGetState, Length: 1},
	}
	if diff := cmp.Diff(want, link.Requests()); diff != "" {
		t.Fatalf("recorded requests mismatch (-want +got):\n%s", diff)
	}
	if got := link.Count(RequestJTAGGetState); got != 1 {
		t.Fatalf("Count(GET_STATE) = %d, want 1", got)
	}
}

func TestSimLinkPropagatesHookErrors(t *testing.T) {
	boom := errors.New("stall")
	link := NewSimLink()
	link.OnOut = func(Request) error { return boom }

	if err := link.OutRequest(RequestJTAGStart, 0, 0, nil); !errors.Is(err, boom) {
		t.Fatalf("OutRequest error = %v, want %v", err, boom)
	}
}

func TestSetLEDPattern(t *testing.T) {
	link := NewSimLink()
	if err := SetLEDPattern(link, LEDUpload); err != nil {
		t.Fatalf("SetLEDPattern returned error: %v", err)
	}
	reqs := link.Filter(RequestSetLEDPattern)
	if len(reqs) != 1 || reqs[0].Value != 50 {
		t.Fatalf("LED requests = %v, want one with value 50", reqs)
	}
}

func TestOpenOptionsMatching(t *testing.T) {
	cases := []struct {
		name string
		opts OpenOptions
		vid  uint16
		pid  uint16
		want bool
	}{
		{"default apollo", OpenOptions{}, VendorIDApollo, ProductIDApollo, true},
		{"default openmoko", OpenOptions{}, VendorIDOpenMoko, ProductIDOpenMoko, true},
		{"default other", OpenOptions{}, 0x2e8a, 0x000c, false},
		{"explicit", OpenOptions{VendorID: 0x1234, ProductID: 0x5678}, 0x1234, 0x5678, true},
		{"explicit mismatch", OpenOptions{VendorID: 0x1234, ProductID: 0x5678}, VendorIDApollo, ProductIDApollo, false},
		{"vendor only", OpenOptions{VendorID: 0x1234}, 0x1234, 0x9999, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.opts.matches(tc.vid, tc.pid); got != tc.want {
				t.Fatalf("matches(%04x:%04x) = %v, want %v", tc.vid, tc.pid, got, tc.want)
			}
		})
	}
}

func TestRequestErrorUnwraps(t *testing.T) {
	inner := errors.New("timeout")
	err := error(&RequestError{Op: "in", Request: RequestJTAGGetIn, Err: inner})
	if !errors.Is(err, inner) {
		t.Fatalf("errors.Is did not unwrap RequestError")
	}
	if got := err.Error(); got != "apollo: in request 0xb2: timeout" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestOpenHardware(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping hardware test in short mode")
	}
	dbg, err := Open(OpenOptions{})
	if errors.Is(err, ErrDeviceNotFound) {
		t.Skipf("no Apollo debugger connected")
	}
	if err != nil {
		t.Skipf("USB unavailable: %v", err)
	}
	defer dbg.Close()
	if err := SetLEDPattern(dbg, LEDIdle); err != nil {
		t.Fatalf("SetLEDPattern returned error: %v", err)
	}
}
