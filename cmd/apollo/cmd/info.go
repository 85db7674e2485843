package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceApollo/pkg/apollo"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "List debuggers and show the selected one",
	Long: `Scan the host for Apollo debuggers, print a summary of each, and then open the
debugger selected by --adapter, --vid, --pid and --serial to confirm it responds.
Use this to verify connectivity before launching other commands.`,
	Args: cobra.NoArgs,
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if adapterType != "simulator" && adapterType != "sim" {
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()

		infos, err := apollo.DiscoverInterfaces(ctx)
		if err != nil {
			return fmt.Errorf("discover interfaces: %w", err)
		}
		fmt.Fprintln(out, "Detected debuggers:")
		for _, iface := range infos {
			fmt.Fprintf(out, "  - %s [%s]\n", iface.Label(), iface.Kind)
		}
		fmt.Fprintln(out)
	}

	dbg, err := openDebugger()
	if err != nil {
		return err
	}
	defer dbg.Close()

	fmt.Fprintf(out, "Connected to: %s\n", dbg.name)
	if err := apollo.SetLEDPattern(dbg, apollo.LEDIdle); err != nil {
		return fmt.Errorf("debugger did not respond: %w", err)
	}
	return nil
}
