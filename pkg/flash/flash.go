// Package flash programs the SPI configuration flash behind an Apollo
// debugger. The debugger must hand the flash lines to the host first, so all
// access happens inside a Session.
package flash

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/OpenTraceLab/OpenTraceApollo/pkg/apollo"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/spi"
)

// SPI NOR commands.
const (
	CmdPageProgram  byte = 0x02
	CmdReadData     byte = 0x03
	CmdWriteDisable byte = 0x04
	CmdReadStatus   byte = 0x05
	CmdWriteEnable  byte = 0x06
	CmdFullErase    byte = 0x60
	CmdReadID       byte = 0x90
)

// Status register bits.
const (
	StatusBusy byte = 1 << 0
	StatusWEL  byte = 1 << 1
)

const (
	// PageSize is the program and readback unit.
	PageSize = 256

	defaultPollInterval    = time.Millisecond
	defaultPageProgramTime = 3 * time.Millisecond
)

var descriptions = map[uint16]string{
	0xef15: "Winbond W25Q32JV (32Mbit)",
}

// ErrWriteLatch is returned when the flash ignores WRITE_ENABLE.
var ErrWriteLatch = errors.New("flash: write enable latch did not set")

// VerifyError reports the first byte that differs from the expected image.
type VerifyError struct {
	Offset int
	Want   byte
	Got    byte
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("flash: verify failed at offset %#x: read %02x, expected %02x", e.Offset, e.Got, e.Want)
}

// Progress is called after each page with the bytes done so far.
type Progress func(done, total int)

// Info describes the attached flash.
type Info struct {
	ID          uint16
	Present     bool
	Description string
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session's logger.
func WithLogger(log logr.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithPollInterval sets the delay between status polls while erasing.
func WithPollInterval(d time.Duration) Option {
	return func(s *Session) { s.pollInterval = d }
}

// WithPageProgramTime sets the wait after each page program.
func WithPageProgramTime(d time.Duration) Option {
	return func(s *Session) { s.pageProgramTime = d }
}

// Session holds the configuration flash lines. It must be closed to return
// them to the FPGA.
type Session struct {
	link apollo.Link
	spi  *spi.Link
	log  logr.Logger

	pollInterval    time.Duration
	pageProgramTime time.Duration
	sleep           func(time.Duration)

	closed bool
}

// Open takes the configuration flash lines from the FPGA.
func Open(link apollo.Link, opts ...Option) (*Session, error) {
	s := &Session{
		link:            link,
		log:             logr.Discard(),
		pollInterval:    defaultPollInterval,
		pageProgramTime: defaultPageProgramTime,
		sleep:           time.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.spi = spi.NewLink(link,
		spi.WithRequests(apollo.RequestFlashSPISend, apollo.RequestFlashSPIRead),
		spi.WithChunkSize(0),
		spi.WithoutFlags(),
		spi.WithLogger(s.log),
	)

	if err := link.OutRequest(apollo.RequestFlashTakeLines, 0, 0, nil); err != nil {
		return nil, fmt.Errorf("flash: take configuration lines: %w", err)
	}
	s.log.V(1).Info("flash session started")
	return s, nil
}

// Close disables writes and releases the configuration lines. The lines are
// released even when disabling writes fails.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if _, err := s.command(CmdWriteDisable, 0, 0); err != nil {
		errs = append(errs, fmt.Errorf("flash: disable writes: %w", err))
	}
	if err := s.link.OutRequest(apollo.RequestFlashReleaseLines, 0, 0, nil); err != nil {
		errs = append(errs, fmt.Errorf("flash: release configuration lines: %w", err))
	}
	s.log.V(1).Info("flash session ended")
	return errors.Join(errs...)
}

// command sends op followed by padding and response bytes and returns the
// response bytes.
func (s *Session) command(op byte, padding, response int) ([]byte, error) {
	tx := make([]byte, 1+padding+response)
	tx[0] = op
	rx, err := s.spi.Transfer(tx, false)
	if err != nil {
		return nil, err
	}
	return rx[1+padding:], nil
}

// ReadID returns the manufacturer and device ID as manufacturer<<8 | device.
func (s *Session) ReadID() (uint16, error) {
	rx, err := s.command(CmdReadID, 3, 2)
	if err != nil {
		return 0, err
	}
	return uint16(rx[0])<<8 | uint16(rx[1]), nil
}

// Info identifies the attached flash.
func (s *Session) Info() (Info, error) {
	id, err := s.ReadID()
	if err != nil {
		return Info{}, err
	}
	switch desc, ok := descriptions[id]; {
	case id == 0x0000 || id == 0xFFFF:
		return Info{ID: id, Description: "No flash detected."}, nil
	case ok:
		return Info{ID: id, Present: true, Description: desc}, nil
	default:
		return Info{ID: id, Present: true, Description: "Unknown flash chip."}, nil
	}
}

// ReadStatus returns the status register.
func (s *Session) ReadStatus() (byte, error) {
	rx, err := s.command(CmdReadStatus, 0, 1)
	if err != nil {
		return 0, err
	}
	return rx[0], nil
}

func (s *Session) enableWrites() error {
	_, err := s.command(CmdWriteEnable, 0, 0)
	return err
}

// Erase clears the whole array and waits for the flash to finish. The wait
// has no upper bound.
func (s *Session) Erase() error {
	if err := s.enableWrites(); err != nil {
		return err
	}
	status, err := s.ReadStatus()
	if err != nil {
		return err
	}
	if status&StatusWEL == 0 {
		return fmt.Errorf("%w (status %02x)", ErrWriteLatch, status)
	}
	if _, err := s.command(CmdFullErase, 0, 0); err != nil {
		return err
	}
	s.log.V(1).Info("erasing flash")
	for {
		status, err := s.ReadStatus()
		if err != nil {
			return err
		}
		if status&StatusBusy == 0 {
			return nil
		}
		s.sleep(s.pollInterval)
	}
}

// Program erases the flash and writes data from address 0.
func (s *Session) Program(data []byte, progress Progress) error {
	s.log.Info("erasing the target flash to prepare for program")
	if err := s.Erase(); err != nil {
		return err
	}

	s.log.Info("programming the target bitstream", "bytes", len(data))
	for addr := 0; addr < len(data); addr += PageSize {
		page := data[addr:min(addr+PageSize, len(data))]
		if err := s.programPage(addr, page); err != nil {
			return fmt.Errorf("flash: program page at %#06x: %w", addr, err)
		}
		if progress != nil {
			progress(addr+len(page), len(data))
		}
	}
	s.log.Info("programming complete")
	return nil
}

func (s *Session) programPage(addr int, page []byte) error {
	// WEL clears after every page program.
	if err := s.enableWrites(); err != nil {
		return err
	}
	tx := make([]byte, 0, 4+len(page))
	tx = append(tx, CmdPageProgram, byte(addr>>16), byte(addr>>8), byte(addr))
	tx = append(tx, page...)
	if _, err := s.spi.Transfer(tx, false); err != nil {
		return err
	}
	s.sleep(s.pageProgramTime)
	return nil
}

// Readback reads length bytes from address 0.
func (s *Session) Readback(length int, progress Progress) ([]byte, error) {
	data := make([]byte, 0, length)
	for addr := 0; addr < length; addr += PageSize {
		n := min(PageSize, length-addr)
		tx := make([]byte, 4+n)
		tx[0], tx[1], tx[2], tx[3] = CmdReadData, byte(addr>>16), byte(addr>>8), byte(addr)
		rx, err := s.spi.Transfer(tx, false)
		if err != nil {
			return nil, fmt.Errorf("flash: read page at %#06x: %w", addr, err)
		}
		data = append(data, rx[4:]...)
		if progress != nil {
			progress(addr+n, length)
		}
	}
	return data, nil
}

// Verify reads back len(data) bytes and compares them with data.
func (s *Session) Verify(data []byte, progress Progress) error {
	got, err := s.Readback(len(data), progress)
	if err != nil {
		return err
	}
	if bytes.Equal(got, data) {
		return nil
	}
	for i := range data {
		if got[i] != data[i] {
			return &VerifyError{Offset: i, Want: data[i], Got: got[i]}
		}
	}
	return nil
}
