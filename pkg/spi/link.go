// Package spi carries SPI exchanges through the Apollo debugger, either to
// the FPGA's debug port or to the configuration flash.
package spi

import (
	"fmt"

	"github.com/go-logr/logr"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	periphspi "periph.io/x/conn/v3/spi"

	"github.com/OpenTraceLab/OpenTraceApollo/pkg/apollo"
)

// Flags carried in the value field of the send request.
const (
	flagComplete uint16 = 1 << 0
	flagInvertCS uint16 = 1 << 1
)

// Option configures a Link.
type Option func(*Link)

// WithLogger sets the link's logger.
func WithLogger(log logr.Logger) Option {
	return func(l *Link) { l.log = log }
}

// WithChunkSize sets the largest data stage of one send request. Zero or
// less sends every transfer in a single request.
func WithChunkSize(n int) Option {
	return func(l *Link) { l.chunk = n }
}

// WithRequests selects the send and read-back request numbers. The default
// is the FPGA debug port.
func WithRequests(send, read uint8) Option {
	return func(l *Link) {
		l.send = send
		l.read = read
	}
}

// WithoutFlags leaves the value field of every send request zero. The
// flash port frames each request on its own and takes no flags.
func WithoutFlags() Option {
	return func(l *Link) { l.noFlags = true }
}

// Link is an SPI port behind the debugger. It implements periph's spi.Conn.
// A Link is not safe for concurrent use.
type Link struct {
	link  apollo.Link
	log   logr.Logger
	send  uint8
	read  uint8
	chunk int
	name  string

	noFlags bool

	framing *Framing
}

var (
	_ periphspi.Conn = (*Link)(nil)
	_ periphspi.Port = (*Link)(nil)
)

// NewLink returns the debug SPI port of the debugger behind link.
func NewLink(link apollo.Link, opts ...Option) *Link {
	l := &Link{
		link:  link,
		log:   logr.Discard(),
		send:  apollo.RequestDebugSPISend,
		read:  apollo.RequestDebugSPIRead,
		chunk: apollo.MaxTransfer,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.name = fmt.Sprintf("apollo-spi(%s)", apollo.RequestName(l.send))
	return l
}

// Transfer clocks data out in one chip-select frame and returns the bytes
// clocked in. Long transfers are split into chunks and chip select stays
// asserted until the last one. invertCS drives chip select active high.
func (l *Link) Transfer(data []byte, invertCS bool) ([]byte, error) {
	return l.transfer(data, true, invertCS)
}

func (l *Link) transfer(data []byte, complete, invertCS bool) ([]byte, error) {
	var base uint16
	if invertCS {
		base |= flagInvertCS
	}
	completeFlag := flagComplete
	if l.noFlags {
		base, completeFlag = 0, 0
	}
	if len(data) == 0 {
		if !complete {
			return nil, nil
		}
		if err := l.link.OutRequest(l.send, base|completeFlag, 0, nil); err != nil {
			return nil, fmt.Errorf("spi: send: %w", err)
		}
		return nil, nil
	}

	size := l.chunk
	if size <= 0 {
		size = len(data)
	}
	rx := make([]byte, 0, len(data))
	for off := 0; off < len(data); off += size {
		end := min(off+size, len(data))
		value := base
		if complete && end == len(data) {
			value |= completeFlag
		}
		if err := l.link.OutRequest(l.send, value, 0, data[off:end]); err != nil {
			return nil, fmt.Errorf("spi: send: %w", err)
		}
		resp, err := l.link.InRequest(l.read, 0, 0, end-off)
		if err != nil {
			return nil, fmt.Errorf("spi: read response: %w", err)
		}
		if len(resp) != end-off {
			return nil, fmt.Errorf("spi: short response: got %d bytes, want %d", len(resp), end-off)
		}
		rx = append(rx, resp...)
	}
	l.log.V(2).Info("transfer", "out", fmt.Sprintf("% x", data), "in", fmt.Sprintf("% x", rx))
	return rx, nil
}

// String implements conn.Resource.
func (l *Link) String() string { return l.name }

// Duplex implements conn.Conn.
func (l *Link) Duplex() conn.Duplex { return conn.Full }

// Tx implements conn.Conn. r may be nil; otherwise it must be as long as w.
func (l *Link) Tx(w, r []byte) error {
	if r != nil && len(r) != len(w) {
		return fmt.Errorf("spi: Tx buffers differ in length (%d != %d)", len(w), len(r))
	}
	rx, err := l.Transfer(w, false)
	if err != nil {
		return err
	}
	copy(r, rx)
	return nil
}

// TxPackets implements spi.Conn. Chip select is held across packets that
// set KeepCS and is always released after the last packet.
func (l *Link) TxPackets(packets []periphspi.Packet) error {
	for i, p := range packets {
		if p.BitsPerWord != 0 && p.BitsPerWord != 8 {
			return fmt.Errorf("spi: %d bits per word is not supported", p.BitsPerWord)
		}
		w := p.W
		if len(p.R) > len(w) {
			w = make([]byte, len(p.R))
			copy(w, p.W)
		}
		complete := !p.KeepCS || i == len(packets)-1
		rx, err := l.transfer(w, complete, false)
		if err != nil {
			return err
		}
		copy(p.R, rx)
	}
	return nil
}

// Connect implements spi.Port for callers that open the link through
// periph. Only mode 0 with 8-bit words is available; the debugger fixes the
// clock rate, so any requested frequency is accepted.
func (l *Link) Connect(_ physic.Frequency, mode periphspi.Mode, bits int) (periphspi.Conn, error) {
	if mode&^periphspi.NoCS != periphspi.Mode0 {
		return nil, fmt.Errorf("spi: mode %#x is not supported", int(mode))
	}
	if bits != 8 {
		return nil, fmt.Errorf("spi: %d bits per word is not supported", bits)
	}
	return l, nil
}

// LimitSpeed implements spi.Port. The debugger fixes the SPI clock.
func (l *Link) LimitSpeed(physic.Frequency) error { return nil }

// Halt implements conn.Resource. Transfers are synchronous, so there is
// nothing in flight to stop.
func (l *Link) Halt() error { return nil }
