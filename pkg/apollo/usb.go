package apollo

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"
)

// USB identifiers used by Apollo firmware.
const (
	VendorIDApollo  = 0x16d0
	ProductIDApollo = 0x05a5

	VendorIDOpenMoko  = 0x1d50
	ProductIDOpenMoko = 0x615c
)

const (
	// DefaultOutTimeout bounds host-to-device requests.
	DefaultOutTimeout = 5 * time.Second
	// DefaultInTimeout bounds device-to-host requests.
	DefaultInTimeout = 500 * time.Millisecond
)

// OpenOptions selects which debugger to open. Zero IDs match any known
// Apollo VID/PID pair; an empty Serial matches any serial number.
type OpenOptions struct {
	VendorID  uint16
	ProductID uint16
	Serial    string
}

// Info describes an opened debugger.
type Info struct {
	VendorID     uint16
	ProductID    uint16
	Serial       string
	Manufacturer string
	Product      string
}

func (i Info) String() string {
	name := i.Product
	if name == "" {
		name = "Apollo debugger"
	}
	if i.Serial != "" {
		return fmt.Sprintf("%s (%04x:%04x, serial %s)", name, i.VendorID, i.ProductID, i.Serial)
	}
	return fmt.Sprintf("%s (%04x:%04x)", name, i.VendorID, i.ProductID)
}

// Debugger is a Link backed by a USB connection to Apollo firmware.
type Debugger struct {
	mu sync.Mutex

	ctx *gousb.Context
	dev *gousb.Device

	info       Info
	outTimeout time.Duration
	inTimeout  time.Duration
}

// Open connects to the first debugger that matches opts.
func Open(opts OpenOptions) (*Debugger, error) {
	ctx := gousb.NewContext()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return opts.matches(uint16(desc.Vendor), uint16(desc.Product))
	})
	if err != nil && len(devs) == 0 {
		ctx.Close()
		return nil, fmt.Errorf("USB error: %w", err)
	}

	var dev *gousb.Device
	for _, d := range devs {
		if dev != nil {
			d.Close()
			continue
		}
		if opts.Serial != "" {
			serial, serr := d.SerialNumber()
			if serr != nil || serial != opts.Serial {
				d.Close()
				continue
			}
		}
		dev = d
	}
	if dev == nil {
		ctx.Close()
		return nil, ErrDeviceNotFound
	}

	d := &Debugger{
		ctx:        ctx,
		dev:        dev,
		outTimeout: DefaultOutTimeout,
		inTimeout:  DefaultInTimeout,
	}
	d.info = Info{
		VendorID:  uint16(dev.Desc.Vendor),
		ProductID: uint16(dev.Desc.Product),
	}
	d.info.Serial, _ = dev.SerialNumber()
	d.info.Manufacturer, _ = dev.Manufacturer()
	d.info.Product, _ = dev.Product()
	return d, nil
}

func (o OpenOptions) matches(vid, pid uint16) bool {
	if o.VendorID != 0 || o.ProductID != 0 {
		return (o.VendorID == 0 || o.VendorID == vid) && (o.ProductID == 0 || o.ProductID == pid)
	}
	_, ok := lookupKnown(vid, pid)
	return ok
}

// Info reports the identity of the connected debugger.
func (d *Debugger) Info() Info {
	return d.info
}

// SetTimeouts overrides the per-direction request timeouts.
func (d *Debugger) SetTimeouts(out, in time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outTimeout = out
	d.inTimeout = in
}

// OutRequest issues a vendor host-to-device control request.
func (d *Debugger) OutRequest(request uint8, value, index uint16, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dev == nil {
		return &RequestError{Op: "out", Request: request, Err: errors.New("debugger closed")}
	}

	d.dev.ControlTimeout = d.outTimeout
	if data == nil {
		data = []byte{}
	}
	n, err := d.dev.Control(gousb.ControlOut|gousb.ControlVendor|gousb.ControlDevice, request, value, index, data)
	if err != nil {
		return &RequestError{Op: "out", Request: request, Err: err}
	}
	if n != len(data) {
		return &RequestError{Op: "out", Request: request, Err: fmt.Errorf("short write: %d of %d bytes", n, len(data))}
	}
	return nil
}

// InRequest issues a vendor device-to-host control request.
func (d *Debugger) InRequest(request uint8, value, index uint16, length int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dev == nil {
		return nil, &RequestError{Op: "in", Request: request, Err: errors.New("debugger closed")}
	}

	d.dev.ControlTimeout = d.inTimeout
	buf := make([]byte, length)
	n, err := d.dev.Control(gousb.ControlIn|gousb.ControlVendor|gousb.ControlDevice, request, value, index, buf)
	if err != nil {
		return nil, &RequestError{Op: "in", Request: request, Err: err}
	}
	return buf[:n], nil
}

// Close releases USB resources.
func (d *Debugger) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var err error
	if d.dev != nil {
		err = d.dev.Close()
		d.dev = nil
	}
	if d.ctx != nil {
		if cerr := d.ctx.Close(); err == nil {
			err = cerr
		}
		d.ctx = nil
	}
	return err
}
