package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceApollo/pkg/flash"
)

var (
	readLength   int
	skipVerify   bool
	showProgress bool
)

var flashInfoCmd = &cobra.Command{
	Use:   "flash-info",
	Short: "Identify the configuration flash",
	Args:  cobra.NoArgs,
	RunE:  runFlashInfo,
}

var flashEraseCmd = &cobra.Command{
	Use:   "flash-erase",
	Short: "Erase the whole configuration flash",
	Args:  cobra.NoArgs,
	RunE:  runFlashErase,
}

var flashProgramCmd = &cobra.Command{
	Use:   "flash-program FILE",
	Short: "Write an image to the configuration flash",
	Long: `Erase the configuration flash and write FILE from address 0, then read it back
to verify. Intel HEX images (.hex, .ihex, .mcs) are flattened first; anything
else is written as raw bytes.

Examples:
  apollo flash-program top.bit
  apollo flash-program --no-verify firmware.hex`,
	Args: cobra.ExactArgs(1),
	RunE: runFlashProgram,
}

var flashReadCmd = &cobra.Command{
	Use:   "flash-read FILE",
	Short: "Read the configuration flash into a file",
	Long: `Read --length bytes from address 0 of the configuration flash into FILE. The
extension selects Intel HEX (.hex, .ihex, .mcs) or raw output.

Examples:
  apollo flash-read --length 1048576 backup.bin`,
	Args: cobra.ExactArgs(1),
	RunE: runFlashRead,
}

func init() {
	rootCmd.AddCommand(flashInfoCmd, flashEraseCmd, flashProgramCmd, flashReadCmd)

	flashProgramCmd.Flags().BoolVar(&skipVerify, "no-verify", false,
		"skip the readback after programming")
	flashReadCmd.Flags().IntVarP(&readLength, "length", "l", 0,
		"number of bytes to read")
	flashReadCmd.MarkFlagRequired("length")

	for _, c := range []*cobra.Command{flashProgramCmd, flashReadCmd} {
		c.Flags().BoolVarP(&showProgress, "progress", "p", false, "show progress")
	}
}

// withFlash runs fn inside a flash session on the selected debugger.
func withFlash(fn func(s *flash.Session) error) (err error) {
	dbg, err := openDebugger()
	if err != nil {
		return err
	}
	defer dbg.Close()

	s, err := flash.Open(dbg, flash.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(s)
}

func progressPrinter(w io.Writer, verb string) flash.Progress {
	if !showProgress {
		return nil
	}
	return func(done, total int) {
		fmt.Fprintf(w, "\r%s %d of %d bytes", verb, done, total)
		if done == total {
			fmt.Fprintln(w)
		}
	}
}

func runFlashInfo(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	return withFlash(func(s *flash.Session) error {
		info, err := s.Info()
		if err != nil {
			return err
		}
		if !info.Present {
			fmt.Fprintln(out, info.Description)
			return nil
		}
		fmt.Fprintf(out, "Flash ID:    0x%04X\n", info.ID)
		fmt.Fprintf(out, "Description: %s\n", info.Description)
		return nil
	})
}

func runFlashErase(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	return withFlash(func(s *flash.Session) error {
		fmt.Fprintln(out, "Erasing configuration flash...")
		if err := s.Erase(); err != nil {
			return err
		}
		fmt.Fprintln(out, "Erase complete.")
		return nil
	})
}

func runFlashProgram(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	data, err := flash.LoadImage(args[0])
	if err != nil {
		return err
	}

	return withFlash(func(s *flash.Session) error {
		fmt.Fprintf(out, "Programming %d bytes from %s...\n", len(data), args[0])
		if err := s.Program(data, progressPrinter(out, "Programmed")); err != nil {
			return err
		}
		if skipVerify {
			fmt.Fprintln(out, "Programming complete.")
			return nil
		}
		if err := s.Verify(data, progressPrinter(out, "Verified")); err != nil {
			return err
		}
		fmt.Fprintln(out, "Programming complete; flash contents verified.")
		return nil
	})
}

func runFlashRead(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if readLength <= 0 {
		return fmt.Errorf("--length must be positive")
	}

	var data []byte
	err := withFlash(func(s *flash.Session) error {
		var err error
		data, err = s.Readback(readLength, progressPrinter(out, "Read"))
		return err
	})
	if err != nil {
		return err
	}
	if err := flash.SaveImage(args[0], data); err != nil {
		return err
	}
	fmt.Fprintf(out, "Read %d bytes into %s.\n", len(data), args[0])
	return nil
}
