package apollo

import (
	"context"
	"fmt"

	"github.com/google/gousb"
)

// InterfaceKind categorizes debugger back ends.
type InterfaceKind string

const (
	InterfaceKindApollo InterfaceKind = "apollo"
	InterfaceKindSim    InterfaceKind = "simulator"
)

// InterfaceInfo describes a detected debugger.
type InterfaceInfo struct {
	Kind        InterfaceKind
	Description string
	VendorID    uint16
	ProductID   uint16
	Bus         int
	Address     int
}

// Label returns a user-friendly description for the interface.
func (i InterfaceInfo) Label() string {
	if i.Kind == InterfaceKindSim {
		return i.Description
	}
	return fmt.Sprintf("%s (%04x:%04x, bus %d addr %d)", i.Description, i.VendorID, i.ProductID, i.Bus, i.Address)
}

// DiscoverInterfaces lists connected USB devices with a known Apollo VID/PID.
// The simulator entry is always appended so callers can run without
// hardware.
func DiscoverInterfaces(ctx context.Context) ([]InterfaceInfo, error) {
	var results []InterfaceInfo
	usb := gousb.NewContext()
	defer usb.Close()

	_, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		if known, ok := lookupKnown(uint16(desc.Vendor), uint16(desc.Product)); ok {
			results = append(results, InterfaceInfo{
				Kind:        InterfaceKindApollo,
				Description: known.Description,
				VendorID:    known.VendorID,
				ProductID:   known.ProductID,
				Bus:         desc.Bus,
				Address:     desc.Address,
			})
		}
		return false
	})
	if err != nil && err != gousb.ErrorAccess {
		return results, err
	}

	results = append(results, InterfaceInfo{
		Kind:        InterfaceKindSim,
		Description: "Simulator (no hardware)",
	})
	return results, nil
}

type knownUSBDevice struct {
	VendorID    uint16
	ProductID   uint16
	Description string
}

var knownApolloVIDPIDs = []knownUSBDevice{
	{VendorID: VendorIDApollo, ProductID: ProductIDApollo, Description: "Apollo debugger"},
	{VendorID: VendorIDOpenMoko, ProductID: ProductIDOpenMoko, Description: "Apollo debugger (openmoko ID)"},
}

func lookupKnown(vid, pid uint16) (knownUSBDevice, bool) {
	for _, known := range knownApolloVIDPIDs {
		if known.VendorID == vid && known.ProductID == pid {
			return known, true
		}
	}
	return knownUSBDevice{}, false
}
