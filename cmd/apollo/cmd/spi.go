package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceApollo/pkg/spi"
)

var invertCS bool

var spiCmd = &cobra.Command{
	Use:   "spi BYTES...",
	Short: "Exchange raw bytes over the FPGA debug SPI port",
	Long: `Clock BYTES out over the debug SPI port in one chip-select frame and print the
bytes clocked back. Each argument is hex and may hold several bytes.

Examples:
  apollo spi 9f 00 00 00
  apollo spi 0x0001deadbeef`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSPI,
}

var spiRegCmd = &cobra.Command{
	Use:   "spi-reg ADDR [VALUE]",
	Short: "Read or write a gateware register over debug SPI",
	Long: `Read the register at ADDR, or write VALUE to it. Register framing is
negotiated with the gateware before the first access. ADDR and VALUE are hex.

Examples:
  apollo spi-reg 1
  apollo spi-reg 0x10 0xdeadbeef`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSPIReg,
}

func init() {
	rootCmd.AddCommand(spiCmd, spiRegCmd)

	spiCmd.Flags().BoolVar(&invertCS, "invert-cs", false,
		"drive chip select active high")
}

func parseHexBytes(args []string) ([]byte, error) {
	var data []byte
	for _, arg := range args {
		s := strings.TrimPrefix(strings.ToLower(arg), "0x")
		if len(s)%2 != 0 {
			s = "0" + s
		}
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("invalid hex bytes %q: %w", arg, err)
		}
		data = append(data, b...)
	}
	return data, nil
}

func runSPI(cmd *cobra.Command, args []string) error {
	data, err := parseHexBytes(args)
	if err != nil {
		return err
	}
	dbg, err := openDebugger()
	if err != nil {
		return err
	}
	defer dbg.Close()

	rx, err := spi.NewLink(dbg, spi.WithLogger(logger)).Transfer(data, invertCS)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "% x\n", rx)
	return nil
}

func runSPIReg(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	addr, err := parseHex32(args[0])
	if err != nil {
		return fmt.Errorf("invalid register address %q", args[0])
	}
	dbg, err := openDebugger()
	if err != nil {
		return err
	}
	defer dbg.Close()

	link := spi.NewLink(dbg, spi.WithLogger(logger))
	if len(args) == 1 {
		value, err := link.ReadRegister(addr)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "register 0x%X = 0x%X\n", addr, value)
		return nil
	}

	value, err := parseHex64(args[1])
	if err != nil {
		return fmt.Errorf("invalid register value %q", args[1])
	}
	if err := link.WriteRegister(addr, value); err != nil {
		return err
	}
	fmt.Fprintf(out, "register 0x%X <- 0x%X\n", addr, value)
	return nil
}
