package idcode

import "fmt"

// IDCode represents a parsed IEEE 1149.1 JTAG IDCODE
type IDCode struct {
	Raw              uint32 // full IDCODE
	Version          uint8  // [31:28]
	PartNumber       uint16 // [27:12]
	ManufacturerCode uint16 // [11:1] JEP106
	HasIDCode        bool   // bit 0 == 1
}

// Manufacturer represents a JEP106 manufacturer entry
type Manufacturer struct {
	Code         uint16 // JEP106 code
	Name         string // "NXP Semiconductors"
	Abbreviation string // "NXP"
	Country      string // optional
}

// Valid reports whether the value looks like an IEEE 1149.1 IDCODE rather
// than a BYPASS bit or a stuck TDO line.
func (id IDCode) Valid() bool {
	return id.HasIDCode && id.Raw != 0xFFFFFFFF && id.ManufacturerCode != 0x7F
}

func (id IDCode) String() string {
	return fmt.Sprintf("0x%08x", id.Raw)
}
