// Package report implements the JSON report writer (C10): it renders a
// single merged stats.StatsSlot into the structured document described in
// SPEC_FULL.md §6 (meta/summary/input/demultiplexing/output).
package report

import (
	"encoding/json"
	"io"

	"github.com/loganrosen/adapterremoval/internal/stats"
)

// Meta carries run identification, mirroring write_report_meta in the
// original implementation.
type Meta struct {
	Version string  `json:"version"`
	Command string  `json:"command"`
	Runtime float64 `json:"runtime"`
}

// Summary aggregates top-level counters across the whole run.
type Summary struct {
	Reads        uint64  `json:"reads"`
	Bases        uint64  `json:"bases"`
	MeanLength   float64 `json:"mean_length"`
	ReadsSampled uint64  `json:"reads_sampled"`
	Q20Rate      float64 `json:"q20_rate"`
	Q30Rate      float64 `json:"q30_rate"`
}

// PerPositionJSON is the length-aligned per-position view of a
// stats.PerPosition, used for both input and output curves.
type PerPositionJSON struct {
	A       []uint64  `json:"a"`
	C       []uint64  `json:"c"`
	G       []uint64  `json:"g"`
	T       []uint64  `json:"t"`
	N       []uint64  `json:"n"`
	MeanQual []float64 `json:"mean_quality"`
}

// Input describes the raw, pre-trim input stream.
type Input struct {
	Mate1 PerPositionJSON `json:"mate1"`
	Mate2 *PerPositionJSON `json:"mate2,omitempty"`
}

// Demultiplexing is nil (marshals to JSON null) when no barcodes were
// configured, per spec.md §6.
type Demultiplexing struct {
	Samples      []SampleCount `json:"samples"`
	Ambiguous    uint64        `json:"ambiguous"`
	Unidentified uint64        `json:"unidentified"`
}

// SampleCount pairs a sample name with its assigned-read count.
type SampleCount struct {
	Name  string `json:"name"`
	Reads uint64 `json:"reads"`
}

// Output describes post-trim statistics: trimming totals and the length
// histogram of emitted reads.
type Output struct {
	AdapterTrimmedReads   []uint64 `json:"adapter_trimmed_reads"`
	AdapterTrimmedBases   []uint64 `json:"adapter_trimmed_bases"`
	OverlappingMerged     uint64   `json:"overlapping_reads_merged"`
	TerminalBasesTrimmed  uint64   `json:"terminal_bases_trimmed"`
	LowQualityTrimmedReads uint64  `json:"low_quality_trimmed_reads"`
	LowQualityTrimmedBases uint64  `json:"low_quality_trimmed_bases"`
	LengthFilteredReads    uint64  `json:"length_filtered_reads"`
	LengthFilteredBases    uint64  `json:"length_filtered_bases"`
	AmbiguityFilteredReads uint64  `json:"ambiguity_filtered_reads"`
	AmbiguityFilteredBases uint64  `json:"ambiguity_filtered_bases"`
	Discarded              uint64  `json:"discarded"`
	LengthHistogram        []uint64 `json:"length_histogram"`
}

// Document is the full report payload, marshaled as a single JSON object.
type Document struct {
	Meta           Meta            `json:"meta"`
	Summary        Summary         `json:"summary"`
	Input          Input           `json:"input"`
	Demultiplexing *Demultiplexing `json:"demultiplexing"`
	Output         Output          `json:"output"`
}

func toPerPositionJSON(p *stats.PerPosition) PerPositionJSON {
	n := len(p.BaseCounts)
	out := PerPositionJSON{
		A: make([]uint64, n), C: make([]uint64, n), G: make([]uint64, n),
		T: make([]uint64, n), N: make([]uint64, n), MeanQual: make([]float64, n),
	}
	for i, counts := range p.BaseCounts {
		out.A[i], out.C[i], out.G[i], out.T[i], out.N[i] = counts[0], counts[1], counts[2], counts[3], counts[4]
		if p.QualityCounts[i] > 0 {
			out.MeanQual[i] = float64(p.QualitySums[i]) / float64(p.QualityCounts[i])
		}
	}
	return out
}

// SampleNames, when non-nil, labels Demultiplexing.Samples in sample-index
// order; Build returns nil Demultiplexing entirely when len(sampleNames)==0.
type Options struct {
	ProgramName string
	Version     string
	Command     string
	RuntimeSecs float64
	SampleNames []string
	PairedEnd   bool
}

// Build renders total into a Document ready for JSON encoding.
func Build(total *stats.StatsSlot, opts Options) *Document {
	doc := &Document{
		Meta: Meta{
			Version: opts.ProgramName + " " + opts.Version,
			Command: opts.Command,
			Runtime: opts.RuntimeSecs,
		},
	}

	nBases := uint64(0)
	for _, c := range total.Mate1.BaseCounts {
		for _, v := range c {
			nBases += v
		}
	}
	for _, c := range total.Mate2.BaseCounts {
		for _, v := range c {
			nBases += v
		}
	}
	meanLen := 0.0
	if total.InputReads > 0 {
		meanLen = float64(nBases) / float64(total.InputReads)
	}
	q20 := 0.0
	q30 := 0.0
	if total.QBases > 0 {
		q20 = float64(total.Q20Bases) / float64(total.QBases)
		q30 = float64(total.Q30Bases) / float64(total.QBases)
	}

	doc.Summary = Summary{
		Reads:        total.InputReads,
		Bases:        nBases,
		MeanLength:   meanLen,
		ReadsSampled: total.SampledReads,
		Q20Rate:      q20,
		Q30Rate:      q30,
	}

	doc.Input.Mate1 = toPerPositionJSON(&total.Mate1)
	if opts.PairedEnd {
		m2 := toPerPositionJSON(&total.Mate2)
		doc.Input.Mate2 = &m2
	}

	if len(opts.SampleNames) > 0 {
		samples := make([]SampleCount, len(opts.SampleNames))
		for i, name := range opts.SampleNames {
			var reads uint64
			if i < len(total.Demux.PerSample) {
				reads = total.Demux.PerSample[i]
			}
			samples[i] = SampleCount{Name: name, Reads: reads}
		}
		doc.Demultiplexing = &Demultiplexing{
			Samples:      samples,
			Ambiguous:    total.Demux.Ambiguous,
			Unidentified: total.Demux.Unidentified,
		}
	}

	doc.Output = Output{
		AdapterTrimmedReads:    total.Trim.AdapterTrimmedReads,
		AdapterTrimmedBases:    total.Trim.AdapterTrimmedBases,
		OverlappingMerged:      total.Trim.OverlappingMerged,
		TerminalBasesTrimmed:   total.Trim.TerminalBasesTrimmed,
		LowQualityTrimmedReads: total.Trim.LowQualityTrimmedReads,
		LowQualityTrimmedBases: total.Trim.LowQualityTrimmedBases,
		LengthFilteredReads:    total.Trim.LengthFilteredReads,
		LengthFilteredBases:    total.Trim.LengthFilteredBases,
		AmbiguityFilteredReads: total.Trim.AmbiguityFilteredReads,
		AmbiguityFilteredBases: total.Trim.AmbiguityFilteredBases,
		Discarded:              total.Trim.Discarded,
		LengthHistogram:        total.OutputLengths.Counts,
	}

	return doc
}

// WriteTo marshals doc as indented JSON to w.
func (d *Document) WriteTo(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}
