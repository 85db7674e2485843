package jtag

import (
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/idcode/deviceinfo"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/tap"
)

const (
	idcodeTerminator = 0x00000000
	idcodeStuckHigh  = 0xFFFFFFFF
)

// Device is one TAP found by Enumerate.
type Device struct {
	Position int // 0 is the device closest to TDO
	Info     deviceinfo.DeviceInfo
}

// IDCodes resets the chain and reads the IDCODE of every device. Test-Logic-
// Reset selects IDCODE (or BYPASS) in every TAP, and the debugger shifts in
// zeros, so the list ends at the first all-zero word. An all-ones word also
// ends the list; as the first word it means TDO is stuck high.
func (c *Chain) IDCodes() ([]uint32, error) {
	if err := c.MoveToState(tap.StateTestLogicReset); err != nil {
		return nil, err
	}

	var ids []uint32
	for {
		if len(ids) >= c.maxDevices {
			return ids, ErrChainTooLong
		}
		word, err := c.ReadDR(32)
		if err != nil {
			return ids, err
		}
		id := uint32(word.Uint())

		if id == idcodeStuckHigh && len(ids) == 0 {
			c.log.Info("TDO appears to be stuck at '1'; check your wiring")
		}
		if id == idcodeTerminator || id == idcodeStuckHigh {
			break
		}
		c.log.V(1).Info("found IDCODE", "position", len(ids), "idcode", id)
		ids = append(ids, id)
	}
	return ids, nil
}

// Enumerate identifies every device on the chain, in scan order.
func (c *Chain) Enumerate() ([]Device, error) {
	ids, err := c.IDCodes()
	if err != nil {
		return nil, err
	}
	devices := make([]Device, 0, len(ids))
	for i, id := range ids {
		devices = append(devices, Device{Position: i, Info: c.registry.Lookup(id)})
	}
	return devices, nil
}
