package main

import (
	"github.com/spf13/cobra"

	"github.com/loganrosen/adapterremoval/internal/config"
)

// newTrimCmd implements the default "trim" subcommand: adapter trimming,
// quality trimming and (optionally) PE merging, with no demultiplexing.
func newTrimCmd(commandLine string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trim",
		Short: "Trim adapters and low-quality bases (default operation)",
	}
	o := registerShared(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := o.resolve(config.ModeTrim, programName, Version, commandLine)
		if err != nil {
			return err
		}
		return runPipeline(cfg)
	}

	return cmd
}
