package deviceinfo

import "github.com/OpenTraceLab/OpenTraceApollo/pkg/idcode"

// Class identifies which programmer, if any, can configure a device.
type Class uint8

const (
	ClassUnknown Class = iota
	ClassECP5
	ClassIntelFPGA
	ClassFPGA
	ClassMCU
)

func (c Class) String() string {
	switch c {
	case ClassECP5:
		return "ecp5"
	case ClassIntelFPGA:
		return "intel"
	case ClassFPGA:
		return "fpga"
	case ClassMCU:
		return "mcu"
	}
	return "unknown"
}

// DeviceInfo contains rich information about a JTAG device
type DeviceInfo struct {
	// Key fields
	IDCode       idcode.IDCode
	Manufacturer idcode.Manufacturer

	// Human-friendly
	Name        string // "LFE5U-25"
	Family      string // "ECP5"
	Description string // "Lattice ECP5 FPGA, 24k LUTs"

	Class   Class
	ARMCore string // "Cortex-M4", if any

	// JTAG specifics
	IRLength int
}

// IsFPGA reports whether the device is a configurable FPGA.
func (d DeviceInfo) IsFPGA() bool {
	switch d.Class {
	case ClassECP5, ClassIntelFPGA, ClassFPGA:
		return true
	}
	return false
}

// Known reports whether the registry had an entry for the device.
func (d DeviceInfo) Known() bool {
	return d.Name != unknownName
}

func (d DeviceInfo) String() string {
	if d.Description != "" {
		return d.Name + " (" + d.Description + ")"
	}
	return d.Name
}
