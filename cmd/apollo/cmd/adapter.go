package cmd

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceApollo/internal/sim"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/apollo"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/idcode/deviceinfo"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/jtag"
)

// debugger is an opened back end.
type debugger struct {
	apollo.Link
	name  string
	close func() error
}

func (d *debugger) Close() error {
	if d.close == nil {
		return nil
	}
	return d.close()
}

// openDebugger opens the back end selected by the global flags.
func openDebugger() (*debugger, error) {
	switch adapterType {
	case "simulator", "sim":
		board, err := newSimBoard()
		if err != nil {
			return nil, err
		}
		logger.V(1).Info("using simulated board", "devices", len(board.Devices()))
		return &debugger{Link: board, name: "Apollo simulator"}, nil

	case "usb", "apollo":
		dev, err := apollo.Open(apollo.OpenOptions{
			VendorID:  adapterVID,
			ProductID: adapterPID,
			Serial:    adapterSerial,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open debugger: %w", err)
		}
		logger.V(1).Info("connected", "debugger", dev.Info().String())
		return &debugger{Link: dev, name: dev.Info().String(), close: dev.Close}, nil

	default:
		return nil, fmt.Errorf("unknown adapter type: %s (supported: usb, simulator)", adapterType)
	}
}

// openChain opens the debugger and starts a JTAG session on it. The returned
// function ends the session and closes the debugger.
func openChain() (*jtag.Chain, func(), error) {
	dbg, err := openDebugger()
	if err != nil {
		return nil, nil, err
	}
	chain, err := jtag.Open(dbg, jtag.WithLogger(logger))
	if err != nil {
		dbg.Close()
		return nil, nil, err
	}
	return chain, func() {
		if err := chain.Close(); err != nil {
			logger.Error(err, "closing JTAG session")
		}
		dbg.Close()
	}, nil
}

// newSimBoard builds the simulated board. With --sim-ids the scan chain holds
// exactly those devices, modelled by family.
func newSimBoard() (*sim.Board, error) {
	if len(simIDCodes) == 0 {
		return sim.NewDefault(logger), nil
	}
	ids, err := parseIDCodes(simIDCodes)
	if err != nil {
		return nil, fmt.Errorf("invalid --sim-ids: %w", err)
	}
	devices := make([]sim.Device, 0, len(ids))
	for _, id := range ids {
		devices = append(devices, simDevice(id))
	}
	return sim.New(
		sim.WithLogger(logger),
		sim.WithDevices(devices...),
		sim.WithFlash(sim.NewFlash(0xef15, 4<<20)),
		sim.WithRegisterTarget(sim.NewRegisterTarget()),
	), nil
}

func simDevice(id uint32) sim.Device {
	switch deviceinfo.Lookup(id).Class {
	case deviceinfo.ClassECP5:
		return sim.NewECP5(id)
	case deviceinfo.ClassIntelFPGA:
		return sim.NewIntelFPGA(id)
	}
	return sim.NewIDCodeDevice(id)
}

// parseIDCodes parses hex IDCODE strings into uint32 values
func parseIDCodes(codes []string) ([]uint32, error) {
	ids := make([]uint32, len(codes))
	for i, code := range codes {
		id, err := parseHex32(code)
		if err != nil {
			return nil, fmt.Errorf("invalid IDCODE format: %s (expected hex like 0x12345678)", code)
		}
		ids[i] = id
	}
	return ids, nil
}

// parseHex32 accepts hex with or without a 0x prefix.
func parseHex32(s string) (uint32, error) {
	v, err := parseHex64(s)
	if err != nil {
		return 0, err
	}
	if v > 0xFFFFFFFF {
		return 0, fmt.Errorf("%s does not fit in 32 bits", s)
	}
	return uint32(v), nil
}

func parseHex64(s string) (uint64, error) {
	var v uint64
	if _, err := fmt.Sscanf(s, "0x%x", &v); err != nil {
		if _, err := fmt.Sscanf(s, "%x", &v); err != nil {
			return 0, err
		}
	}
	return v, nil
}
