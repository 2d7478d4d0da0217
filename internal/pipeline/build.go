package pipeline

import (
	"path/filepath"

	"github.com/loganrosen/adapterremoval/internal/config"
	"github.com/loganrosen/adapterremoval/internal/ngserr"
	"github.com/loganrosen/adapterremoval/internal/outputmap"
	"github.com/loganrosen/adapterremoval/internal/scheduler"
	"github.com/loganrosen/adapterremoval/internal/stats"
	"github.com/loganrosen/adapterremoval/internal/steps"
)

// Graph is a fully wired, ready-to-run scheduler plus the statistics pool it
// drains into and the writer step registered at every physical output path,
// the last of which the CLI layer reports once the run completes.
type Graph struct {
	Scheduler *scheduler.Scheduler
	Stats     *stats.Pool
	Paths     []string // every physical output path a writer step will open
}

func suffixFor(cfg *config.Config) string {
	switch cfg.Compression {
	case "gzip":
		return ".fastq.gz"
	case "bzip2":
		return ".fastq.bz2"
	default:
		return ".fastq"
	}
}

func trimSettingsFrom(cfg *config.Config) steps.TrimSettings {
	return steps.TrimSettings{
		Adapters:          cfg.Adapters,
		MinAdapterOverlap: cfg.MinAdapterOverlap,
		MaxMismatchRate:   cfg.MaxMismatchRate,
		MinOverlapPE:      cfg.MinOverlapPE,
		MaxMismatchRatePE: cfg.MaxMismatchRatePE,
		MergePE:           cfg.MergePE,
		QualityThreshold:  cfg.TrimQualityThreshold,
		WindowSize:        cfg.TrimWindowSize,
		TrimNs:            cfg.TrimNs,
		Preserve5p:        cfg.Preserve5p,
		MinLength:         cfg.MinLength,
		MaxLength:         cfg.MaxLength,
		MaxNs:             cfg.MaxNs,
	}
}

// registerWriteCluster registers the split/compress/write triple feeding one
// physical path at writerID (and writerID+1/+2 for split/compress), wiring
// them in sequence and returning the path for reporting.
func registerWriteCluster(s *scheduler.Scheduler, cfg *config.Config, writerID int, path string) error {
	splitID := SplitID(writerID)
	compressID := CompressorID(writerID)

	s.Register(splitID, "split", steps.NewSplit(compressID), true, 1)
	s.Connect(splitID, compressID)

	var compressor *steps.CompressStep
	switch cfg.Compression {
	case "gzip":
		c, err := steps.NewGzipCompressor(writerID, cfg.GzipLevel)
		if err != nil {
			return err
		}
		compressor = c
	case "bzip2":
		c, err := steps.NewBzip2Compressor(writerID)
		if err != nil {
			return err
		}
		compressor = c
	default:
		compressor = steps.NewNoneCompressor(writerID)
	}
	s.Register(compressID, "compress", compressor, true, 1)
	s.Connect(compressID, writerID)

	s.Register(writerID, "write", steps.NewWrite(path), true, 1)

	return nil
}

// sampleOutputs registers one sample's write clusters (mate1/mate2/
// singleton/collapsed/discarded, as relevant) and returns the FilenameMap the
// sample's processor step should route output through.
func sampleOutputs(s *scheduler.Scheduler, cfg *config.Config, basename string, pairedEnd bool, base int, paths *[]string) (*outputmap.FilenameMap, error) {
	fm := outputmap.New(outputmap.Options{
		Basename:      basename,
		Suffix:        suffixFor(cfg),
		Interleaved:   cfg.OutputInterleaved,
		KeepDiscarded: cfg.KeepDiscarded,
		MergePE:       cfg.MergePE,
		PairedEnd:     pairedEnd,
	})

	writerFor := map[outputmap.ReadType]int{
		outputmap.Mate1:     base + Mate1Offset,
		outputmap.Mate2:     base + Mate2Offset,
		outputmap.Singleton: base + SingletonOffset,
		outputmap.Collapsed: base + CollapsedOffset,
		outputmap.Discarded: base + DiscardedOffset,
	}

	seen := map[int]bool{}
	for _, rt := range []outputmap.ReadType{outputmap.Mate1, outputmap.Mate2, outputmap.Singleton, outputmap.Collapsed, outputmap.Discarded} {
		slot, ok := fm.SlotFor(rt)
		if !ok {
			continue
		}
		writerID := writerFor[rt]
		if seen[writerID] {
			continue // interleaved mate1/mate2 share one physical slot and writer id
		}
		seen[writerID] = true
		path := fm.PathFor(slot)
		if err := registerWriteCluster(s, cfg, writerID, path); err != nil {
			return nil, err
		}
		*paths = append(*paths, path)
	}

	return fm, nil
}

// Build assembles the full step graph for cfg: a reader source step, an
// optional demultiplexer, one reads processor per sample, and a
// split/compress/write cluster per output file, registered on a fresh
// scheduler.Scheduler ready for Run.
func Build(cfg *config.Config) (*Graph, error) {
	s := scheduler.New()
	pairedEnd := len(cfg.Input2) > 0 || cfg.Interleaved
	// One extra slot beyond the worker pool size: the reader holds its slot
	// for the entire run, so the workers still need cfg.MaxThreads slots
	// among themselves to make progress.
	pool := stats.NewPool(cfg.MaxThreads + 1)
	var paths []string

	readerSlot := pool.Acquire() // held for the lifetime of the run

	if cfg.Mode != config.ModeDemultiplex {
		base := SampleBase(0)
		fm, err := sampleOutputs(s, cfg, cfg.OutputPrefix, pairedEnd, base, &paths)
		if err != nil {
			return nil, err
		}

		trimID := TrimStepID(0)
		settings := trimSettingsFrom(cfg)
		var proc interface {
			Process(c Chunk) ([]scheduler.Routed, error)
			Finalize() error
		}
		if pairedEnd {
			proc = steps.NewPEProcessor(0, settings, cfg.Encoding, fm, pool)
		} else {
			proc = steps.NewSEProcessor(0, settings, cfg.Encoding, fm, pool)
		}
		s.Register(trimID, "process", proc, false, 1)
		connectSampleEdges(s, trimID, fm)

		reader, err := buildReader(s, cfg, ReadFastq, trimID, readerSlot)
		if err != nil {
			return nil, err
		}
		s.Register(ReadFastq, "read", reader, false, 0)
		s.Connect(ReadFastq, trimID)

		return &Graph{Scheduler: s, Stats: pool, Paths: paths}, nil
	}

	unident1Split := SplitID(Unident1)
	unident2Split := SplitID(Unident2)

	if err := registerWriteCluster(s, cfg, Unident1, filepath.Join(cfg.OutputPrefix+".unidentified.mate1"+suffixFor(cfg))); err != nil {
		return nil, err
	}
	paths = append(paths, filepath.Join(cfg.OutputPrefix+".unidentified.mate1"+suffixFor(cfg)))
	if pairedEnd {
		if err := registerWriteCluster(s, cfg, Unident2, filepath.Join(cfg.OutputPrefix+".unidentified.mate2"+suffixFor(cfg))); err != nil {
			return nil, err
		}
		paths = append(paths, filepath.Join(cfg.OutputPrefix+".unidentified.mate2"+suffixFor(cfg)))
	}

	demux := steps.NewDemultiplexer(cfg.Barcodes, cfg.BarcodeMismatches, pairedEnd, cfg.Encoding, unident1Split, unident2Split, pool)
	s.Register(Demultiplex, "demultiplex", demux, true, 1)
	s.Connect(Demultiplex, unident1Split)
	if pairedEnd {
		s.Connect(Demultiplex, unident2Split)
	}

	settings := trimSettingsFrom(cfg)
	for i, bc := range cfg.Barcodes {
		base := SampleBase(i)
		basename := filepath.Join(cfg.OutputPrefix + "." + bc.Name)
		fm, err := sampleOutputs(s, cfg, basename, pairedEnd, base, &paths)
		if err != nil {
			return nil, err
		}

		trimID := TrimStepID(i)
		var proc interface {
			Process(c Chunk) ([]scheduler.Routed, error)
			Finalize() error
		}
		if pairedEnd {
			proc = steps.NewPEProcessor(i, settings, cfg.Encoding, fm, pool)
		} else {
			proc = steps.NewSEProcessor(i, settings, cfg.Encoding, fm, pool)
		}
		s.Register(trimID, "process", proc, false, 1)
		connectSampleEdges(s, trimID, fm)

		s.Connect(Demultiplex, trimID)
	}

	reader, err := buildReader(s, cfg, ReadFastq, Demultiplex, readerSlot)
	if err != nil {
		return nil, err
	}
	s.Register(ReadFastq, "read", reader, false, 0)
	s.Connect(ReadFastq, Demultiplex)

	return &Graph{Scheduler: s, Stats: pool, Paths: paths}, nil
}

// connectSampleEdges records the finalize-order edges from a sample's
// processor to each of its write clusters' split steps.
func connectSampleEdges(s *scheduler.Scheduler, trimID int, fm *outputmap.FilenameMap) {
	base := trimID // TrimStepID(nth) == SampleBase(nth), the base used below
	offsets := map[outputmap.ReadType]int{
		outputmap.Mate1:     Mate1Offset,
		outputmap.Mate2:     Mate2Offset,
		outputmap.Singleton: SingletonOffset,
		outputmap.Collapsed: CollapsedOffset,
		outputmap.Discarded: DiscardedOffset,
	}
	connected := map[int]bool{}
	for rt, offset := range offsets {
		if _, ok := fm.SlotFor(rt); !ok {
			continue
		}
		writerID := base + offset
		if connected[writerID] {
			continue
		}
		connected[writerID] = true
		s.Connect(trimID, SplitID(writerID))
	}
}

// maxInFlightChunks is the soft back-pressure bound of spec.md §5: the
// reader declines to parse and emit a new chunk once this many chunks are
// queued, buffered or being processed across the whole graph.
func maxInFlightChunks(cfg *config.Config) int {
	return 4 * cfg.MaxThreads
}

// buildReader constructs the source ReadStep appropriate for cfg's input
// shape (single-end, paired two-file, or interleaved).
func buildReader(s *scheduler.Scheduler, cfg *config.Config, selfID, nextID int, slot *stats.StatsSlot) (*steps.ReadStep, error) {
	bound := maxInFlightChunks(cfg)
	switch {
	case cfg.Interleaved:
		return steps.NewInterleavedReader(selfID, nextID, cfg.Input1, cfg.Encoding, cfg.MateSeparator, slot, cfg.SampleRate, s.InFlight, bound), nil
	case len(cfg.Input2) > 0:
		if len(cfg.Input1) != len(cfg.Input2) {
			return nil, ngserr.ConfigErrorf("--input1 and --input2 must list the same number of files")
		}
		return steps.NewPEReader(selfID, nextID, cfg.Input1, cfg.Input2, cfg.Encoding, cfg.MateSeparator, slot, cfg.SampleRate, s.InFlight, bound), nil
	default:
		return steps.NewSEReader(selfID, nextID, cfg.Input1, cfg.Encoding, slot, cfg.SampleRate, s.InFlight, bound), nil
	}
}
