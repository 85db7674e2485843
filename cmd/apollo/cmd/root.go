package cmd

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	adapterType   string
	adapterVID    uint16
	adapterPID    uint16
	adapterSerial string
	simIDCodes    []string
	verbosity     int

	logger = logr.Discard()
)

var rootCmd = &cobra.Command{
	Use:   "apollo",
	Short: "Apollo debugger host tool",
	Long: `Drive an Apollo debug controller: scan its JTAG chain, configure ECP5 and
Intel FPGAs, replay SVF files, and program the SPI configuration flash.

Examples:
  apollo jtag-scan                               # Identify devices on the chain
  apollo configure top.bit                       # Load a bitstream into the FPGA
  apollo svf test.svf                            # Replay an SVF file
  apollo flash-program top.bit                   # Write the configuration flash
  apollo --adapter simulator jtag-scan           # Run against the simulated board`,
	Version:       "0.9.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = newLogger(verbosity, cmd.ErrOrStderr())
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&adapterType, "adapter", "a", "usb",
		"debugger back end (usb, simulator)")
	flags.Uint16Var(&adapterVID, "vid", 0,
		"USB vendor ID of the debugger (default: any known Apollo ID)")
	flags.Uint16Var(&adapterPID, "pid", 0,
		"USB product ID of the debugger")
	flags.StringVarP(&adapterSerial, "serial", "s", "",
		"debugger serial number (if multiple debuggers)")
	flags.StringSliceVar(&simIDCodes, "sim-ids", nil,
		"simulator: IDCODEs on the scan chain (hex, e.g., 0x41111043,0x020f30dd)")
	flags.CountVarP(&verbosity, "verbose", "v",
		"verbose output; repeat for protocol traces")
}
