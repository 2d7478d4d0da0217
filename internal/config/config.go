// Package config assembles the immutable run configuration (C12) consumed
// by the pipeline builder: input paths, trimming thresholds, the adapter
// and barcode tables, and output layout. The CLI layer is the only producer
// of a Config; every other package treats it as read-only.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/loganrosen/adapterremoval/internal/adapter"
	"github.com/loganrosen/adapterremoval/internal/encoding"
	"github.com/loganrosen/adapterremoval/internal/ngserr"
)

// Mode selects which top-level operation the pipeline runs.
type Mode int

const (
	ModeTrim Mode = iota
	ModeDemultiplex
	ModeIdentifyAdapters
)

// Barcode names one demultiplexing sample and its prefix sequence(s).
type Barcode struct {
	Name     string
	Barcode1 []byte
	Barcode2 []byte
}

// Config is the fully-resolved, read-only configuration for one pipeline
// run. It is built by the CLI layer from flags plus any settings/barcode
// files and handed to internal/pipeline unchanged.
type Config struct {
	Mode Mode

	Input1      []string
	Input2      []string
	Interleaved bool

	MateSeparator byte
	Encoding      *encoding.Encoding

	Adapters adapter.Set

	Barcodes          []Barcode
	BarcodeMismatches int

	MinAdapterOverlap int
	MaxMismatchRate   float64

	MinOverlapPE      int
	MaxMismatchRatePE float64
	MergePE           bool

	TrimQualityThreshold int
	TrimWindowSize       float64
	TrimNs               bool
	Preserve5p           bool

	MinLength int
	MaxLength int // 0 disables the upper bound
	MaxNs     int

	OutputPrefix      string
	Compression       string // "none", "gzip", "bzip2"
	GzipLevel         int
	OutputInterleaved bool
	KeepDiscarded     bool
	ReportFile        string // defaults to OutputPrefix + ".settings.json" when empty

	MaxThreads int
	Strict     bool
	SampleRate float64

	ProgramName string
	Version     string
	CommandLine string
}

// Validate enforces the requires/prohibits constraints named in SPEC_FULL.md
// §6: a well-formed Config always has a non-empty Input1, a usable thread
// count, and mode-specific requirements (demultiplex needs barcodes; PE
// merging needs paired input).
func (c *Config) Validate() error {
	if len(c.Input1) == 0 {
		return ngserr.ConfigErrorf("at least one input file is required")
	}
	if c.MaxThreads < 1 {
		return ngserr.ConfigErrorf("--threads must be at least 1")
	}
	if c.Encoding == nil {
		return ngserr.ConfigErrorf("no quality encoding resolved")
	}

	isPE := len(c.Input2) > 0 || c.Interleaved
	if c.MergePE && !isPE {
		return ngserr.ConfigErrorf("--collapse requires paired-end input (prohibits: single-end --input1 alone)")
	}
	if len(c.Input2) > 0 && c.Interleaved {
		return ngserr.ConfigErrorf("--input2 prohibits --interleaved; supply one or the other")
	}
	if c.OutputInterleaved && !c.Interleaved {
		return ngserr.ConfigErrorf("--interleaved-output requires --interleaved")
	}

	switch c.Mode {
	case ModeDemultiplex:
		if len(c.Barcodes) == 0 {
			return ngserr.ConfigErrorf("demultiplex requires a non-empty barcode table (--barcode-list)")
		}
	case ModeIdentifyAdapters:
		if !isPE {
			return ngserr.ConfigErrorf("identify-adapters requires paired-end input")
		}
	}

	switch c.Compression {
	case "", "none", "gzip", "bzip2":
	default:
		return ngserr.ConfigErrorf("unknown --compression value %q", c.Compression)
	}

	return nil
}

// barcodeFile is the on-disk YAML shape read by LoadBarcodeList, e.g.:
//
//	barcodes:
//	  - name: sampleA
//	    barcode1: ACGTACGT
//	    barcode2: TGCATGCA
type barcodeFile struct {
	Barcodes []struct {
		Name     string `yaml:"name"`
		Barcode1 string `yaml:"barcode1"`
		Barcode2 string `yaml:"barcode2"`
	} `yaml:"barcodes"`
}

// LoadBarcodeList reads a --barcode-list YAML file into a sample table;
// sample index is the 0-based position in the file, stable across a run.
func LoadBarcodeList(path string) ([]Barcode, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, ngserr.Wrap(ngserr.IOErrorf("failed to read barcode list %s", path), err)
	}

	var doc barcodeFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, ngserr.Wrap(ngserr.ConfigErrorf("malformed barcode list %s", path), err)
	}

	barcodes := make([]Barcode, 0, len(doc.Barcodes))
	for _, b := range doc.Barcodes {
		if b.Name == "" || b.Barcode1 == "" {
			return nil, ngserr.ConfigErrorf("barcode list %s: every entry needs name and barcode1", path)
		}
		entry := Barcode{Name: b.Name, Barcode1: []byte(b.Barcode1)}
		if b.Barcode2 != "" {
			entry.Barcode2 = []byte(b.Barcode2)
		}
		barcodes = append(barcodes, entry)
	}
	return barcodes, nil
}

// adapterFile is the on-disk YAML shape read by LoadAdapterList.
type adapterFile struct {
	Adapters []struct {
		Name     string `yaml:"name"`
		Adapter1 string `yaml:"adapter1"`
		Adapter2 string `yaml:"adapter2"`
	} `yaml:"adapters"`
}

// LoadAdapterList reads a --adapter-list YAML file into an adapter.Set,
// alongside the entry names in file order (parallel to the set's Pairs).
func LoadAdapterList(path string) (adapter.Set, []string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return adapter.Set{}, nil, ngserr.Wrap(ngserr.IOErrorf("failed to read adapter list %s", path), err)
	}

	var doc adapterFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return adapter.Set{}, nil, ngserr.Wrap(ngserr.ConfigErrorf("malformed adapter list %s", path), err)
	}

	set := adapter.Set{Pairs: make([]adapter.Pair, 0, len(doc.Adapters))}
	names := make([]string, 0, len(doc.Adapters))
	for _, a := range doc.Adapters {
		if a.Name == "" || a.Adapter1 == "" {
			return adapter.Set{}, nil, ngserr.ConfigErrorf("adapter list %s: every entry needs name and adapter1", path)
		}
		pair := adapter.Pair{Adapter1: []byte(a.Adapter1)}
		if a.Adapter2 != "" {
			pair.Adapter2 = []byte(a.Adapter2)
		}
		set.Pairs = append(set.Pairs, pair)
		names = append(names, a.Name)
	}
	return set, names, nil
}

// BarcodesToAdapterSet builds an adapter.Set with one pair per barcode, in
// table order: Barcode1 becomes Adapter1 and Barcode2 becomes Adapter2.
func BarcodesToAdapterSet(barcodes []Barcode) adapter.Set {
	set := adapter.Set{Pairs: make([]adapter.Pair, len(barcodes))}
	for i, b := range barcodes {
		set.Pairs[i] = adapter.Pair{Adapter1: b.Barcode1, Adapter2: b.Barcode2}
	}
	return set
}
