package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loganrosen/adapterremoval/internal/adapter"
	"github.com/loganrosen/adapterremoval/internal/config"
	"github.com/loganrosen/adapterremoval/internal/encoding"
	"github.com/loganrosen/adapterremoval/internal/ngserr"
)

// options holds every flag shared across trim/demultiplex/identify-adapters,
// bound directly by pflag. A subcommand resolves the subset it needs into a
// config.Config via resolve.
type options struct {
	input1      string
	input2      string
	interleaved bool

	mateSeparator string
	qualityBase   string

	adapter1    string
	adapter2    string
	adapterList string

	barcodeList       string
	barcodeMismatches int

	minAdapterOverlap int
	maxMismatchRate   float64
	minOverlapPE      int
	maxMismatchRatePE float64
	mergePE           bool

	trimQualityThreshold int
	trimWindowSize       float64
	trimNs               bool
	preserve5p           bool

	minLength int
	maxLength int
	maxNs     int

	outputPrefix      string
	compression       string
	gzipLevel         int
	outputInterleaved bool
	keepDiscarded     bool

	threads    int
	strict     bool
	sampleRate float64

	settingsFile string
	reportFile   string
}

// registerShared adds every flag common to all three subcommands to cmd.
func registerShared(cmd *cobra.Command) *options {
	o := &options{}
	f := cmd.Flags()

	f.StringVar(&o.input1, "input1", "", "comma-separated mate-1 (or single-end) FASTQ input files (required)")
	f.StringVar(&o.input2, "input2", "", "comma-separated mate-2 FASTQ input files (paired-end)")
	f.BoolVar(&o.interleaved, "interleaved", false, "input1 holds interleaved paired-end reads")

	f.StringVar(&o.mateSeparator, "mate-separator", "/", "character separating a read name from its mate indicator")
	f.StringVar(&o.qualityBase, "quality-encoding", "phred33", "input quality encoding: phred33, phred64, or solexa")

	f.StringVar(&o.adapter1, "adapter1", "", "mate-1 adapter sequence")
	f.StringVar(&o.adapter2, "adapter2", "", "mate-2 adapter sequence")
	f.StringVar(&o.adapterList, "adapter-list", "", "YAML file of per-sample adapter pairs")

	f.StringVar(&o.barcodeList, "barcode-list", "", "YAML file of sample barcodes (required for demultiplex)")
	f.IntVar(&o.barcodeMismatches, "barcode-mismatches", 1, "mismatches tolerated when matching a barcode prefix")

	f.IntVar(&o.minAdapterOverlap, "minadapteroverlap", 11, "minimum overlap to call an adapter alignment")
	f.Float64Var(&o.maxMismatchRate, "mm", 0.3, "maximum mismatch rate tolerated in an adapter alignment")
	f.IntVar(&o.minOverlapPE, "minalignmentlength", 11, "minimum overlap to call a mate-pair alignment")
	f.Float64Var(&o.maxMismatchRatePE, "mm-pe", 0.3, "maximum mismatch rate tolerated in a mate-pair alignment")
	f.BoolVar(&o.mergePE, "collapse", false, "merge overlapping mate pairs into a single consensus read")

	f.IntVar(&o.trimQualityThreshold, "minquality", 2, "trailing/windowed quality-trim threshold (Phred scale)")
	f.Float64Var(&o.trimWindowSize, "trimwindows", 0, "sliding-window size for quality trim; 0 disables windowed trim")
	f.BoolVar(&o.trimNs, "trimns", false, "also trim leading/trailing N bases")
	f.BoolVar(&o.preserve5p, "preserve5p", false, "never trim from the 5' end")

	f.IntVar(&o.minLength, "minlength", 15, "discard reads shorter than this after trimming")
	f.IntVar(&o.maxLength, "maxlength", 0, "discard reads longer than this after trimming; 0 disables")
	f.IntVar(&o.maxNs, "maxns", -1, "discard reads with more than this many N bases; -1 disables")

	f.StringVar(&o.outputPrefix, "basename", "", "output path prefix (required)")
	f.StringVar(&o.compression, "compression", "none", "output compression: none, gzip, or bzip2")
	f.IntVar(&o.gzipLevel, "gzip-level", 6, "gzip compression level (1-9)")
	f.BoolVar(&o.outputInterleaved, "interleaved-output", false, "fold mate1/mate2 output into a single interleaved file")
	f.BoolVar(&o.keepDiscarded, "keep-discarded", false, "also write reads discarded by length/ambiguity filters")

	f.IntVar(&o.threads, "threads", 1, "worker-pool size")
	f.BoolVar(&o.strict, "strict", false, "treat a duplicated CLI option as a hard error")
	f.Float64Var(&o.sampleRate, "sample-rate", 0.1, "fraction of reads contributing to full per-position distributions; 0 or less samples every read")

	f.StringVar(&o.settingsFile, "settings-file", "", "path to a YAML settings file; accepted but not read, so it changes no setting")
	f.StringVar(&o.reportFile, "report-file", "", "JSON report output path; defaults to <basename>.settings.json")

	return o
}

func splitPaths(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func resolveEncoding(name string) (*encoding.Encoding, error) {
	switch strings.ToLower(name) {
	case "phred33", "":
		return encoding.Phred33, nil
	case "phred64":
		return encoding.Phred64, nil
	case "solexa":
		return encoding.Solexa, nil
	default:
		return nil, ngserr.ConfigErrorf("unknown --quality-encoding %q", name)
	}
}

func resolveMateSeparator(s string) (byte, error) {
	if len(s) != 1 {
		return 0, ngserr.ConfigErrorf("--mate-separator must be exactly one character, got %q", s)
	}
	return s[0], nil
}

// resolve builds a config.Config for mode from the parsed flags, applying
// the requires/prohibits constraints named in SPEC_FULL.md §6 and loading
// any adapter-list/barcode-list referenced by path. The --settings-file path
// is not read.
func (o *options) resolve(mode config.Mode, programName, version, commandLine string) (*config.Config, error) {
	enc, err := resolveEncoding(o.qualityBase)
	if err != nil {
		return nil, err
	}
	sep, err := resolveMateSeparator(o.mateSeparator)
	if err != nil {
		return nil, err
	}

	cfg := &config.Config{
		Mode: mode,

		Input1:      splitPaths(o.input1),
		Input2:      splitPaths(o.input2),
		Interleaved: o.interleaved,

		MateSeparator: sep,
		Encoding:      enc,

		MinAdapterOverlap: o.minAdapterOverlap,
		MaxMismatchRate:   o.maxMismatchRate,
		MinOverlapPE:      o.minOverlapPE,
		MaxMismatchRatePE: o.maxMismatchRatePE,
		MergePE:           o.mergePE,

		TrimQualityThreshold: o.trimQualityThreshold,
		TrimWindowSize:       o.trimWindowSize,
		TrimNs:               o.trimNs,
		Preserve5p:           o.preserve5p,

		MinLength: o.minLength,
		MaxLength: o.maxLength,
		MaxNs:     o.maxNs,

		OutputPrefix:      o.outputPrefix,
		Compression:       strings.ToLower(o.compression),
		GzipLevel:         o.gzipLevel,
		OutputInterleaved: o.outputInterleaved,
		KeepDiscarded:     o.keepDiscarded,
		ReportFile:        o.reportFile,

		MaxThreads: o.threads,
		Strict:     o.strict,
		SampleRate: o.sampleRate,

		ProgramName: programName,
		Version:     version,
		CommandLine: commandLine,
	}

	if o.adapterList != "" {
		set, names, err := config.LoadAdapterList(o.adapterList)
		if err != nil {
			return nil, err
		}
		cfg.Adapters = set
		_ = names // per-sample adapter names are reported via cfg.Barcodes when demultiplexing
	} else if o.adapter1 != "" || o.adapter2 != "" {
		cfg.Adapters = adapter.Set{Pairs: []adapter.Pair{{
			Adapter1: []byte(strings.ToUpper(o.adapter1)),
			Adapter2: []byte(strings.ToUpper(o.adapter2)),
		}}}
	}

	if mode == config.ModeDemultiplex {
		if o.barcodeList == "" {
			return nil, ngserr.ConfigErrorf("demultiplex requires --barcode-list")
		}
		barcodes, err := config.LoadBarcodeList(o.barcodeList)
		if err != nil {
			return nil, err
		}
		cfg.Barcodes = barcodes
		cfg.BarcodeMismatches = o.barcodeMismatches
		if len(cfg.Adapters.Pairs) == 0 {
			cfg.Adapters = config.BarcodesToAdapterSet(barcodes)
		}
	} else if o.barcodeList != "" {
		return nil, ngserr.ConfigErrorf("--barcode-list prohibits the %q subcommand; use demultiplex", modeName(mode))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func modeName(m config.Mode) string {
	switch m {
	case config.ModeDemultiplex:
		return "demultiplex"
	case config.ModeIdentifyAdapters:
		return "identify-adapters"
	default:
		return "trim"
	}
}

// checkDuplicateOptions scans raw argv for a long option (--name or
// --name=value) given more than once. It returns the names found duplicated,
// in first-seen order. Flags that legitimately accumulate are never
// registered as duplicates here because every multi-value flag in this CLI
// (input1/input2) takes one comma-separated value instead of repeating.
func checkDuplicateOptions(args []string) []string {
	seen := map[string]int{}
	var order []string
	for _, a := range args {
		if !strings.HasPrefix(a, "--") {
			continue
		}
		name := a[2:]
		if eq := strings.IndexByte(name, '='); eq >= 0 {
			name = name[:eq]
		}
		if name == "" {
			continue
		}
		if seen[name] == 0 {
			order = append(order, name)
		}
		seen[name]++
	}
	var dups []string
	for _, name := range order {
		if seen[name] > 1 {
			dups = append(dups, name)
		}
	}
	return dups
}

// warnOrRejectDuplicates implements REDESIGN/open-question (a): a duplicate
// option is a warning by default, and a hard ConfigError under --strict.
func warnOrRejectDuplicates(args []string) error {
	dups := checkDuplicateOptions(args)
	if len(dups) == 0 {
		return nil
	}
	strict := false
	for _, a := range args {
		if a == "--strict" {
			strict = true
		}
		if strings.HasPrefix(a, "--strict=") {
			v, err := strconv.ParseBool(a[len("--strict="):])
			strict = err == nil && v
		}
	}
	for _, name := range dups {
		fmt.Fprintf(os.Stderr, "WARNING: option --%s given more than once; the last value is used\n", name)
	}
	if strict {
		return ngserr.ConfigErrorf("option(s) %s given more than once (--strict forbids this)", strings.Join(dups, ", "))
	}
	return nil
}
