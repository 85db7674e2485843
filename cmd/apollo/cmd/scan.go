package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "jtag-scan",
	Short: "Identify the devices on the JTAG chain",
	Long: `Reset the JTAG chain, read the IDCODE of every device and identify each one.

The scan will:
  1. Reset the TAP, which selects IDCODE in every device
  2. Shift out 32-bit IDCODEs until the end-of-chain marker
  3. Match each IDCODE against the device registry

Examples:
  apollo jtag-scan
  apollo --adapter simulator --sim-ids 0x41111043,0x020f30dd jtag-scan`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	chain, done, err := openChain()
	if err != nil {
		return err
	}
	defer done()

	devices, err := chain.Enumerate()
	if err != nil {
		return fmt.Errorf("chain scan failed: %w", err)
	}

	fmt.Fprintf(out, "JTAG chain: found %d device(s)\n\n", len(devices))
	totalIR := 0
	for _, device := range devices {
		info := device.Info
		fmt.Fprintf(out, "┌─ Device %d ─────────────────────────────────────\n", device.Position)
		fmt.Fprintf(out, "│ IDCODE:       0x%08X\n", info.IDCode.Raw)
		fmt.Fprintf(out, "│ Name:         %s\n", info.Name)
		if info.Description != "" {
			fmt.Fprintf(out, "│ Description:  %s\n", info.Description)
		}
		if info.Manufacturer.Name != "" {
			fmt.Fprintf(out, "│ Manufacturer: %s\n", info.Manufacturer.Name)
		}
		if info.IRLength > 0 {
			fmt.Fprintf(out, "│ IR Length:    %d bits\n", info.IRLength)
			totalIR += info.IRLength
		}
		if verbosity > 0 {
			fmt.Fprintf(out, "│ Version:      %d  Part: 0x%04X\n", info.IDCode.Version, info.IDCode.PartNumber)
		}
		fmt.Fprintf(out, "└────────────────────────────────────────────────\n\n")
	}
	if len(devices) > 0 {
		fmt.Fprintf(out, "Total IR Length: %d bits\n", totalIR)
	}
	return nil
}
