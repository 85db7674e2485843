package idcode

// IEEE 1149.1 IDCODE field layout.
const (
	versionShift      = 28
	partShift         = 12
	manufacturerShift = 1

	versionBits      = 0xF
	partBits         = 0xFFFF
	manufacturerBits = 0x7FF
)

// IgnoreVersion masks off the version nibble. Registry entries that match a
// part across silicon revisions use it as their mask.
const IgnoreVersion uint32 = ^(uint32(versionBits) << versionShift)

// ParseIDCode splits a raw IDCODE into its fields.
func ParseIDCode(raw uint32) IDCode {
	return IDCode{
		Raw:              raw,
		Version:          uint8(raw >> versionShift & versionBits),
		PartNumber:       uint16(raw >> partShift & partBits),
		ManufacturerCode: uint16(raw >> manufacturerShift & manufacturerBits),
		HasIDCode:        raw&1 == 1,
	}
}

// Encode builds the raw IDCODE for the given fields, with the marker bit set.
func Encode(version uint8, part, manufacturer uint16) uint32 {
	return uint32(version&versionBits)<<versionShift |
		uint32(part)<<partShift |
		uint32(manufacturer&manufacturerBits)<<manufacturerShift |
		1
}
