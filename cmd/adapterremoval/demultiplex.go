package main

import (
	"github.com/spf13/cobra"

	"github.com/loganrosen/adapterremoval/internal/config"
)

// newDemultiplexCmd implements the "demultiplex" subcommand: split input by
// barcode into one sample stream each, then trim each stream exactly as
// "trim" would.
func newDemultiplexCmd(commandLine string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demultiplex",
		Short: "Demultiplex reads by barcode, then trim each sample",
	}
	o := registerShared(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := o.resolve(config.ModeDemultiplex, programName, Version, commandLine)
		if err != nil {
			return err
		}
		return runPipeline(cfg)
	}

	return cmd
}
