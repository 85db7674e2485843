package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceApollo/pkg/svf"
)

var legacyTrailer bool

var svfCmd = &cobra.Command{
	Use:   "svf FILE",
	Short: "Replay an SVF file on the JTAG chain",
	Long: `Parse a Serial Vector Format file and execute it on the JTAG chain. Expected
TDO values are checked and the first mismatch aborts the replay.

Examples:
  apollo svf blinky.svf
  apollo -v svf --legacy-trailer vendor.svf`,
	Args: cobra.ExactArgs(1),
	RunE: runSVF,
}

func init() {
	rootCmd.AddCommand(svfCmd)

	svfCmd.Flags().BoolVar(&legacyTrailer, "legacy-trailer", false,
		"apply TDR fields only when the matching HDR field is set")
}

func runSVF(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	file, err := svf.Parse(f)
	if err != nil {
		return err
	}

	chain, done, err := openChain()
	if err != nil {
		return err
	}
	defer done()

	interp := svf.NewInterpreter(chain,
		svf.WithLogger(logger),
		svf.WithLegacyTrailerGuard(legacyTrailer),
	)
	if err := svf.Play(file, interp); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Played %d SVF commands from %s.\n", len(file.Commands), args[0])
	return nil
}
