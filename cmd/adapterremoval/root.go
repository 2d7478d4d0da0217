package main

import (
	"strings"

	"github.com/spf13/cobra"
)

const programName = "adapterremoval"

// Version is overridden via -ldflags at build time, mirroring the
// teacher's closing-report convention of stamping a version string into the
// binary.
var Version = "dev"

// Execute builds the root command and runs it against args (normally
// os.Args[1:]). trim is the default subcommand: invoking the binary with
// trim-shaped flags and no subcommand name runs it directly.
func Execute(args []string) error {
	if err := warnOrRejectDuplicates(args); err != nil {
		return err
	}

	commandLine := commandLineString(args)
	root := newRootCmd(commandLine)
	root.SetArgs(args)
	return root.Execute()
}

func newRootCmd(commandLine string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     programName,
		Short:   "Adapter trimming, quality filtering and demultiplexing for paired or single-end FASTQ reads",
		Version: Version,
	}
	cmd.SetVersionTemplate(programName + " " + Version + "\n")

	trimCmd := newTrimCmd(commandLine)
	cmd.AddCommand(trimCmd)
	cmd.AddCommand(newDemultiplexCmd(commandLine))
	cmd.AddCommand(newIdentifyAdaptersCmd(commandLine))

	// trim's flags double as the root command's flags so that running the
	// binary with no subcommand behaves as "trim" (spec.md §6: "trim
	// (default)").
	cmd.Flags().AddFlagSet(trimCmd.Flags())
	cmd.RunE = trimCmd.RunE

	return cmd
}

func commandLineString(args []string) string {
	return programName + " " + strings.Join(args, " ")
}
