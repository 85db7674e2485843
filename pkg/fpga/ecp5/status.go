package ecp5

import (
	"fmt"
	"strings"
)

// Status is the 32-bit ECP5 configuration status register.
type Status uint32

// Status register flags.
const (
	StatusJTAGActive     Status = 1 << 4
	StatusDone           Status = 1 << 8
	StatusISCEnable      Status = 1 << 9
	StatusWriteable      Status = 1 << 10
	StatusReadable       Status = 1 << 11
	StatusBusy           Status = 1 << 12
	StatusFail           Status = 1 << 13
	StatusStandardPre    Status = 1 << 21
	StatusSPIFail        Status = 1 << 22
	StatusExecutionFail  Status = 1 << 26
	StatusIDError        Status = 1 << 27
	StatusInvalidCommand Status = 1 << 28

	errorShift = 23
	errorMask  = 0b111
)

var errorTexts = [...]string{
	"error unknown",
	"part ID mismatch",
	"illegal command issued",
	"CRC check failed",
	"preamble error",
	"user aborted configuration",
	"data overflow",
	"bitstream provides data past the device's SRAM array",
}

var flagNames = []struct {
	flag Status
	name string
}{
	{StatusJTAGActive, "JTAG_ACTIVE"},
	{StatusDone, "DONE"},
	{StatusISCEnable, "ISC_ENABLE"},
	{StatusWriteable, "WRITEABLE"},
	{StatusReadable, "READABLE"},
	{StatusBusy, "BUSY"},
	{StatusFail, "FAIL"},
	{StatusStandardPre, "STANDARD_PRE"},
	{StatusSPIFail, "SPI_FAIL"},
	{StatusExecutionFail, "EXECUTION_FAIL"},
	{StatusIDError, "ID_ERROR"},
	{StatusInvalidCommand, "INVALID_COMMAND"},
}

// Has reports whether every bit of flag is set.
func (s Status) Has(flag Status) bool {
	return s&flag == flag
}

// ErrorCode returns the 3-bit configuration error code.
func (s Status) ErrorCode() int {
	return int(s>>errorShift) & errorMask
}

// ErrorText describes ErrorCode.
func (s Status) ErrorText() string {
	return errorTexts[s.ErrorCode()]
}

// Flags names the set flags, lowest bit first.
func (s Status) Flags() []string {
	var out []string
	for _, f := range flagNames {
		if s.Has(f.flag) {
			out = append(out, f.name)
		}
	}
	return out
}

func (s Status) String() string {
	return fmt.Sprintf("%08x [%s]", uint32(s), strings.Join(s.Flags(), " "))
}

// Expect lists the conditions a status check requires beyond the absence of
// error flags.
type Expect struct {
	Done bool
	ISC  bool
}

// ConfigurationError reports a failed status check.
type ConfigurationError struct {
	Status  Status
	Flags   []string
	Code    int
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("ecp5: %s (%s / %08x)", e.Message, errorTexts[e.Code], uint32(e.Status))
}

// Validate checks a status word. Error flags are reported before missing
// DONE or ISC_ENABLE.
func Validate(status Status, expect Expect) error {
	var msg string
	switch {
	case status.Has(StatusFail):
		msg = "failed to execute last command"
	case status.Has(StatusIDError):
		msg = "failed to verify device IDCODE"
	case status.Has(StatusInvalidCommand):
		msg = "last command was invalid"
	case expect.Done && !status.Has(StatusDone):
		msg = "configuration failed"
	case expect.ISC && !status.Has(StatusISCEnable):
		msg = "failed to enter ISC"
	default:
		return nil
	}
	return &ConfigurationError{
		Status:  status,
		Flags:   status.Flags(),
		Code:    status.ErrorCode(),
		Message: msg,
	}
}
