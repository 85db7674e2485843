// Package apollo talks to the Apollo debug controller through its vendor
// control requests.
package apollo

import (
	"errors"
	"fmt"
)

// Link carries the debugger's vendor requests. OUT requests may carry a data
// stage; IN requests return up to length bytes.
type Link interface {
	OutRequest(request uint8, value, index uint16, data []byte) error
	InRequest(request uint8, value, index uint16, length int) ([]byte, error)
}

// JTAG requests.
const (
	RequestJTAGClearOut  uint8 = 0xb0
	RequestJTAGSetOut    uint8 = 0xb1
	RequestJTAGGetIn     uint8 = 0xb2
	RequestJTAGScan      uint8 = 0xb3
	RequestJTAGRunClock  uint8 = 0xb4
	RequestJTAGGotoState uint8 = 0xb5
	RequestJTAGGetState  uint8 = 0xb6
	RequestJTAGStop      uint8 = 0xbe
	RequestJTAGStart     uint8 = 0xbf
)

// Configuration flash requests. The flash link shares the SPI read request
// with the debug-SPI link.
const (
	RequestFlashSPIRead      uint8 = 0x51
	RequestFlashSPISend      uint8 = 0x52
	RequestFlashTakeLines    uint8 = 0x53
	RequestFlashReleaseLines uint8 = 0x54
)

// Debug-SPI requests.
const (
	RequestDebugSPISend uint8 = 0x50
	RequestDebugSPIRead uint8 = 0x51
)

// RequestSetLEDPattern selects the debugger's LED blink pattern.
const RequestSetLEDPattern uint8 = 0xa1

// MaxTransfer is the largest data stage the debugger accepts in one request.
const MaxTransfer = 256

// LEDPattern is the argument to RequestSetLEDPattern.
type LEDPattern uint16

const (
	LEDIdle   LEDPattern = 500
	LEDUpload LEDPattern = 50
)

// SetLEDPattern changes the debugger's LED pattern.
func SetLEDPattern(link Link, pattern LEDPattern) error {
	return link.OutRequest(RequestSetLEDPattern, uint16(pattern), 0, nil)
}

// ErrDeviceNotFound is returned when no debugger matches the open criteria.
var ErrDeviceNotFound = errors.New("apollo: debugger not found")

// RequestError wraps a failed control transfer.
type RequestError struct {
	Op      string
	Request uint8
	Err     error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("apollo: %s request 0x%02x: %v", e.Op, e.Request, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// RequestName returns a short mnemonic for a request number.
func RequestName(request uint8) string {
	if name, ok := requestNames[request]; ok {
		return name
	}
	return fmt.Sprintf("0x%02x", request)
}

var requestNames = map[uint8]string{
	RequestJTAGClearOut:      "JTAG_CLEAR_OUT",
	RequestJTAGSetOut:        "JTAG_SET_OUT",
	RequestJTAGGetIn:         "JTAG_GET_IN",
	RequestJTAGScan:          "JTAG_SCAN",
	RequestJTAGRunClock:      "JTAG_RUN_CLOCK",
	RequestJTAGGotoState:     "JTAG_GOTO_STATE",
	RequestJTAGGetState:      "JTAG_GET_STATE",
	RequestJTAGStop:          "JTAG_STOP",
	RequestJTAGStart:         "JTAG_START",
	RequestDebugSPISend:      "DEBUG_SPI_SEND",
	RequestFlashSPIRead:      "SPI_READ",
	RequestFlashSPISend:      "FLASH_SPI_SEND",
	RequestFlashTakeLines:    "FLASH_TAKE_LINES",
	RequestFlashReleaseLines: "FLASH_RELEASE_LINES",
	RequestSetLEDPattern:     "SET_LED_PATTERN",
}
