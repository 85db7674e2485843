package deviceinfo

// Lattice ECP5 family. The version nibble distinguishes the U, UM and UM5G
// variants, so each part is matched exactly.
func init() {
	parts := []struct {
		id   uint32
		name string
		luts string
	}{
		{0x21111043, "LFE5U-12", "12k"},
		{0x41111043, "LFE5U-25", "24k"},
		{0x41112043, "LFE5U-45", "44k"},
		{0x41113043, "LFE5U-85", "84k"},
		{0x01111043, "LFE5UM-25", "24k"},
		{0x01112043, "LFE5UM-45", "44k"},
		{0x01113043, "LFE5UM-85", "84k"},
		{0x81111043, "LFE5UM5G-25", "24k"},
		{0x81112043, "LFE5UM5G-45", "44k"},
		{0x81113043, "LFE5UM5G-85", "84k"},
	}
	for _, p := range parts {
		register(Exact(p.id), DeviceInfo{
			Name:        p.name,
			Family:      "ECP5",
			Description: "Lattice ECP5 FPGA, " + p.luts + " LUTs",
			Class:       ClassECP5,
			IRLength:    8,
		})
	}

	// Any other ECP5 die revision still speaks the same configuration
	// protocol.
	register(Masked(0x01110043, 0x0FFF0FFF), DeviceInfo{
		Name:        "ECP5 (unlisted variant)",
		Family:      "ECP5",
		Description: "Lattice ECP5 FPGA",
		Class:       ClassECP5,
		IRLength:    8,
	})
}
