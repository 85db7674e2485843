package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceApollo/pkg/fpga"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/fpga/ecp5"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/fpga/intel"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/idcode/deviceinfo"
	"github.com/OpenTraceLab/OpenTraceApollo/pkg/jtag"
)

var (
	configureFamily string
	expectedID      string
	bestEffort      bool
	busyTimeout     time.Duration
)

var configureCmd = &cobra.Command{
	Use:   "configure FILE",
	Short: "Load a bitstream into the FPGA",
	Long: `Configure the FPGA's SRAM with a bitstream over JTAG. The configuration is lost
at power-off; use flash-program to make it persistent.

With --family auto the chain is scanned and the programmer is chosen from the
device's IDCODE.

Examples:
  apollo configure top.bit
  apollo configure --family intel output.rbf
  apollo configure --best-effort --timeout 5s top.bit`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)

	configureCmd.Flags().StringVar(&configureFamily, "family", "auto",
		"FPGA family (auto, ecp5, intel)")
	configureCmd.Flags().StringVar(&expectedID, "expected-id", "",
		"ecp5: IDCODE to verify (hex); defaults to the ID read from the device")
	configureCmd.Flags().BoolVar(&bestEffort, "best-effort", false,
		"ecp5: log failed status checks instead of aborting")
	configureCmd.Flags().DurationVar(&busyTimeout, "timeout", time.Second,
		"ecp5: limit for each busy wait")
}

func runConfigure(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	bitstream, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	chain, done, err := openChain()
	if err != nil {
		return err
	}
	defer done()

	family, err := resolveFamily(chain)
	if err != nil {
		return err
	}
	prog, err := newProgrammer(chain, family)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Configuring %s FPGA with %d bytes from %s...\n", family, len(bitstream), args[0])
	start := time.Now()
	if err := prog.Configure(bitstream); err != nil {
		return err
	}
	fmt.Fprintf(out, "Configuration complete in %s.\n", time.Since(start).Round(time.Millisecond))
	return nil
}

// resolveFamily picks the programmer family, scanning the chain for auto.
func resolveFamily(chain *jtag.Chain) (deviceinfo.Class, error) {
	switch configureFamily {
	case "ecp5":
		return deviceinfo.ClassECP5, nil
	case "intel":
		return deviceinfo.ClassIntelFPGA, nil
	case "auto":
	default:
		return deviceinfo.ClassUnknown, fmt.Errorf("unknown family: %s (supported: auto, ecp5, intel)", configureFamily)
	}

	devices, err := chain.Enumerate()
	if err != nil {
		return deviceinfo.ClassUnknown, fmt.Errorf("chain scan failed: %w", err)
	}
	switch len(devices) {
	case 0:
		return deviceinfo.ClassUnknown, fmt.Errorf("no devices on the JTAG chain")
	case 1:
	default:
		return deviceinfo.ClassUnknown, fmt.Errorf("configuration needs a single-device chain; found %d devices", len(devices))
	}
	info := devices[0].Info
	switch info.Class {
	case deviceinfo.ClassECP5, deviceinfo.ClassIntelFPGA:
		logger.Info("detected FPGA", "device", info.String())
		return info.Class, nil
	}
	return deviceinfo.ClassUnknown, fmt.Errorf("no programmer for %s; pass --family to force one", info)
}

func newProgrammer(chain *jtag.Chain, family deviceinfo.Class) (fpga.Programmer, error) {
	if family == deviceinfo.ClassIntelFPGA {
		return intel.NewProgrammer(chain), nil
	}

	opts := []ecp5.Option{
		ecp5.WithLogger(logger),
		ecp5.WithTimeout(busyTimeout),
	}
	if expectedID != "" {
		id, err := parseHex32(expectedID)
		if err != nil {
			return nil, fmt.Errorf("invalid --expected-id: %w", err)
		}
		opts = append(opts, ecp5.WithExpectedID(id))
	}
	if bestEffort {
		opts = append(opts, ecp5.WithPolicy(fpga.BestEffort))
	}
	return ecp5.NewProgrammer(chain, opts...), nil
}
