package flash

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcinbor85/gohex"
)

const hexLineLength = 16

// IsIntelHex reports whether path names an Intel HEX image.
func IsIntelHex(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hex", ".ihex", ".mcs":
		return true
	}
	return false
}

// LoadImage reads a flash image. Intel HEX files are flattened from address
// 0 with gaps filled by 0xFF, the erased value; anything else is read raw.
func LoadImage(path string) ([]byte, error) {
	if !IsIntelHex(path) {
		return os.ReadFile(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(f); err != nil {
		return nil, fmt.Errorf("flash: parse %s: %w", path, err)
	}
	var end uint32
	for _, seg := range mem.GetDataSegments() {
		end = max(end, seg.Address+uint32(len(seg.Data)))
	}
	return mem.ToBinary(0, end, 0xFF), nil
}

// SaveImage writes data as a flash image starting at address 0, in Intel HEX
// when the extension asks for it.
func SaveImage(path string, data []byte) (err error) {
	if !IsIntelHex(path) {
		return os.WriteFile(path, data, 0o644)
	}

	mem := gohex.NewMemory()
	if err := mem.AddBinary(0, data); err != nil {
		return fmt.Errorf("flash: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return mem.DumpIntelHex(f, hexLineLength)
}
