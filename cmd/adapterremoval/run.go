package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"

	"github.com/loganrosen/adapterremoval/internal/config"
	"github.com/loganrosen/adapterremoval/internal/ngserr"
	"github.com/loganrosen/adapterremoval/internal/pipeline"
	"github.com/loganrosen/adapterremoval/internal/report"
)

// sampleNamesFor returns the sample labels for the report's demultiplexing
// section, or nil outside demultiplex mode.
func sampleNamesFor(cfg *config.Config) []string {
	if cfg.Mode != config.ModeDemultiplex {
		return nil
	}
	names := make([]string, len(cfg.Barcodes))
	for i, b := range cfg.Barcodes {
		names[i] = b.Name
	}
	return names
}

// runPipeline builds the step graph for cfg, runs it to completion, and
// writes the JSON report. It returns the first error observed by any step,
// unwrapped to the caller so main can print it and choose an exit code.
func runPipeline(cfg *config.Config) error {
	start := time.Now()

	graph, err := pipeline.Build(cfg)
	if err != nil {
		return err
	}

	ok := graph.Scheduler.Run(cfg.MaxThreads, pipeline.ReadFastq)
	if !ok {
		return graph.Scheduler.Err()
	}

	total := graph.Stats.Finalize()

	doc := report.Build(total, report.Options{
		ProgramName: cfg.ProgramName,
		Version:     cfg.Version,
		Command:     cfg.CommandLine,
		RuntimeSecs: time.Since(start).Seconds(),
		SampleNames: sampleNamesFor(cfg),
		PairedEnd:   len(cfg.Input2) > 0 || cfg.Interleaved,
	})

	reportPath := cfg.ReportFile
	if reportPath == "" {
		reportPath = cfg.OutputPrefix + ".settings.json"
	}
	f, err := os.Create(reportPath)
	if err != nil {
		return ngserr.IOErrorf("failed to create report file %s: %v", reportPath, err)
	}
	defer f.Close()
	if err := doc.WriteTo(f); err != nil {
		return ngserr.IOErrorf("failed to write report file %s: %v", reportPath, err)
	}

	printSummary(cfg, total.InputReads, graph.Paths, reportPath)
	return nil
}

// printSummary echoes the teacher's closing color report, generalized from
// a single input/output pair to the full set of physical output paths a run
// produced.
func printSummary(cfg *config.Config, reads uint64, paths []string, reportPath string) {
	color.HiGreen("\nProcessing completed: %d reads\n", reads)
	color.HiMagenta("Output prefix: %s\n", filepath.Clean(cfg.OutputPrefix))
	for _, p := range paths {
		fmt.Printf("  %s\n", p)
	}
	fmt.Printf("Report: %s\n", reportPath)
}
