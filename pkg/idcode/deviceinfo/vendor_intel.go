package deviceinfo

// Intel (Altera) Cyclone IV E devices.
func init() {
	parts := []struct {
		id   uint32
		name string
	}{
		{0x020f10dd, "EP4CE6/EP4CE10"},
		{0x020f20dd, "EP4CE15"},
		{0x020f30dd, "EP4CE22"},
		{0x020f40dd, "EP4CE30"},
	}
	for _, p := range parts {
		register(Exact(p.id), DeviceInfo{
			Name:        p.name,
			Family:      "Cyclone IV E",
			Description: "Intel Cyclone IV E FPGA",
			Class:       ClassIntelFPGA,
			IRLength:    10,
		})
	}
}
