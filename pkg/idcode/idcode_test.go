package idcode

import "testing"

func TestParseIDCode(t *testing.T) {
	cases := []struct {
		raw     uint32
		version uint8
		part    uint16
		mfr     uint16
		name    string
	}{
		{0x41111043, 0x4, 0x1111, 0x021, "Lattice Semiconductor"},
		{0x020f30dd, 0x0, 0x20f3, 0x06E, "Altera (Intel PSG)"},
		{0x4ba00477, 0x4, 0xba00, 0x23B, "ARM"},
		{0x06413041, 0x0, 0x6413, 0x020, "STMicroelectronics"},
	}
	for _, tc := range cases {
		id := ParseIDCode(tc.raw)
		if id.Version != tc.version || id.PartNumber != tc.part || id.ManufacturerCode != tc.mfr {
			t.Fatalf("ParseIDCode(%#08x) = %+v", tc.raw, id)
		}
		if !id.Valid() {
			t.Fatalf("ParseIDCode(%#08x).Valid() = false", tc.raw)
		}
		if got := Encode(id.Version, id.PartNumber, id.ManufacturerCode); got != tc.raw {
			t.Fatalf("Encode(%+v) = %#08x, want %#08x", id, got, tc.raw)
		}
		m, ok := LookupManufacturer(id.ManufacturerCode)
		if !ok || m.Name != tc.name {
			t.Fatalf("LookupManufacturer(%#03x) = %q, %v; want %q", id.ManufacturerCode, m.Name, ok, tc.name)
		}
	}
}

func TestIgnoreVersion(t *testing.T) {
	a := Encode(0x4, 0x1111, 0x021)
	b := Encode(0x0, 0x1111, 0x021)
	if a&IgnoreVersion != b&IgnoreVersion {
		t.Fatalf("%#08x and %#08x differ outside the version nibble", a, b)
	}
	if IgnoreVersion != 0x0FFFFFFF {
		t.Fatalf("IgnoreVersion = %#08x", IgnoreVersion)
	}
}

func TestInvalidIDCodes(t *testing.T) {
	for _, raw := range []uint32{0xFFFFFFFF, 0x00000000, 0x12345678} {
		if ParseIDCode(raw).Valid() {
			t.Fatalf("ParseIDCode(%#08x).Valid() = true", raw)
		}
	}
	m, ok := LookupManufacturer(0x7FE)
	if ok || m.Name != "Unknown (0x7FE)" {
		t.Fatalf("LookupManufacturer(0x7FE) = %q, %v", m.Name, ok)
	}
}
