package steps

import (
	"github.com/loganrosen/adapterremoval/internal/adapter"
	"github.com/loganrosen/adapterremoval/internal/config"
	"github.com/loganrosen/adapterremoval/internal/encoding"
	"github.com/loganrosen/adapterremoval/internal/fastq"
	"github.com/loganrosen/adapterremoval/internal/ngserr"
	"github.com/loganrosen/adapterremoval/internal/pipeline"
	"github.com/loganrosen/adapterremoval/internal/scheduler"
	"github.com/loganrosen/adapterremoval/internal/stats"
)

// DemultiplexStep classifies each record (or pair) by barcode prefix,
// strips the matched barcode, and routes it to the trim step for its
// sample, or to one of the unidentified-read split steps when no barcode
// matches within the configured mismatch budget (spec.md §4.6).
type DemultiplexStep struct {
	barcodes   []config.Barcode
	maxMismatch int
	pairedEnd  bool

	unident1SplitID int
	unident2SplitID int
	outEnc          *encoding.Encoding

	stats *stats.Pool
}

// NewDemultiplexer builds the demultiplexer step. unident1SplitID and
// unident2SplitID are the split-step ids feeding the UNIDENT_1/UNIDENT_2
// write clusters.
func NewDemultiplexer(barcodes []config.Barcode, maxMismatch int, pairedEnd bool, outEnc *encoding.Encoding, unident1SplitID, unident2SplitID int, pool *stats.Pool) *DemultiplexStep {
	return &DemultiplexStep{
		barcodes:        barcodes,
		maxMismatch:     maxMismatch,
		pairedEnd:       pairedEnd,
		unident1SplitID: unident1SplitID,
		unident2SplitID: unident2SplitID,
		outEnc:          outEnc,
		stats:           pool,
	}
}

type matchStatus int

const (
	statusUnidentified matchStatus = iota
	statusAmbiguous
	statusMatched
)

// classify scores every barcode candidate against rec1 (and rec2, in PE
// mode) and returns the best match, or ambiguous/unidentified.
func (d *DemultiplexStep) classify(rec1, rec2 *fastq.Record) (sample int, status matchStatus) {
	best := -1
	bestMismatch := d.maxMismatch + 1
	ties := 0

	for i, b := range d.barcodes {
		m1, ok1 := adapter.MatchPrefix(rec1.Sequence, b.Barcode1, d.maxMismatch)
		if !ok1 {
			continue
		}
		total := m1
		if d.pairedEnd && len(b.Barcode2) > 0 {
			m2, ok2 := adapter.MatchPrefix(rec2.Sequence, b.Barcode2, d.maxMismatch)
			if !ok2 {
				continue
			}
			total += m2
		}
		if total > d.maxMismatch {
			continue
		}

		switch {
		case total < bestMismatch:
			bestMismatch = total
			best = i
			ties = 1
		case total == bestMismatch:
			ties++
		}
	}

	if best == -1 {
		return 0, statusUnidentified
	}
	if ties > 1 {
		return 0, statusAmbiguous
	}
	return best, statusMatched
}

func stripPrefix(rec *fastq.Record, n int) fastq.Record {
	if n == 0 || n > len(rec.Sequence) {
		return *rec
	}
	return fastq.Record{
		Header:    rec.Header,
		Sequence:  rec.Sequence[n:],
		Qualities: rec.Qualities[n:],
	}
}

// Process implements scheduler.Step.
func (d *DemultiplexStep) Process(c pipeline.Chunk) ([]scheduler.Routed, error) {
	rc, ok := c.(*pipeline.ReadChunk)
	if !ok {
		return nil, ngserr.InternalErrorf("demultiplexer received a non-read chunk")
	}

	if rc.EOF {
		routed := make([]scheduler.Routed, 0, len(d.barcodes)+2)
		for i := range d.barcodes {
			routed = append(routed, scheduler.Routed{StepID: pipeline.TrimStepID(i), Chunk: &pipeline.ReadChunk{EOF: true, ArrivalSeq: rc.ArrivalSeq}})
		}
		routed = append(routed, scheduler.Routed{StepID: d.unident1SplitID, Chunk: &pipeline.OutputChunk{EOF: true, ArrivalSeq: rc.ArrivalSeq}})
		if d.pairedEnd {
			routed = append(routed, scheduler.Routed{StepID: d.unident2SplitID, Chunk: &pipeline.OutputChunk{EOF: true, ArrivalSeq: rc.ArrivalSeq}})
		}
		return routed, nil
	}

	slot := d.stats.Acquire()
	defer d.stats.Release(slot)

	perSample := make([]*pipeline.ReadChunk, len(d.barcodes))
	var unident1, unident2 *pipeline.OutputChunk

	for i := range rc.Reads1 {
		rec1 := &rc.Reads1[i]
		var rec2 *fastq.Record
		if d.pairedEnd {
			rec2 = &rc.Reads2[i]
		}

		sample, status := d.classify(rec1, rec2)
		slot.Demux.EnsureSamples(len(d.barcodes))

		switch status {
		case statusMatched:
			slot.Demux.PerSample[sample]++
			s1 := stripPrefix(rec1, len(d.barcodes[sample].Barcode1))
			if perSample[sample] == nil {
				perSample[sample] = &pipeline.ReadChunk{ArrivalSeq: rc.ArrivalSeq}
			}
			perSample[sample].Reads1 = append(perSample[sample].Reads1, s1)
			if d.pairedEnd {
				s2 := stripPrefix(rec2, len(d.barcodes[sample].Barcode2))
				perSample[sample].Reads2 = append(perSample[sample].Reads2, s2)
			}
		case statusAmbiguous:
			slot.Demux.Ambiguous++
			if unident1 == nil {
				unident1 = &pipeline.OutputChunk{ArrivalSeq: rc.ArrivalSeq}
			}
			unident1.Add(rec1, d.outEnc, 1)
			if d.pairedEnd {
				if unident2 == nil {
					unident2 = &pipeline.OutputChunk{ArrivalSeq: rc.ArrivalSeq}
				}
				unident2.Add(rec2, d.outEnc, 1)
			}
		default: // statusUnidentified
			slot.Demux.Unidentified++
			if unident1 == nil {
				unident1 = &pipeline.OutputChunk{ArrivalSeq: rc.ArrivalSeq}
			}
			unident1.Add(rec1, d.outEnc, 1)
			if d.pairedEnd {
				if unident2 == nil {
					unident2 = &pipeline.OutputChunk{ArrivalSeq: rc.ArrivalSeq}
				}
				unident2.Add(rec2, d.outEnc, 1)
			}
		}
	}

	routed := make([]scheduler.Routed, 0, len(perSample)+2)
	for i, pc := range perSample {
		if pc != nil {
			routed = append(routed, scheduler.Routed{StepID: pipeline.TrimStepID(i), Chunk: pc})
		}
	}
	if unident1 != nil {
		routed = append(routed, scheduler.Routed{StepID: d.unident1SplitID, Chunk: unident1})
	}
	if unident2 != nil {
		routed = append(routed, scheduler.Routed{StepID: d.unident2SplitID, Chunk: unident2})
	}
	return routed, nil
}

// Finalize is a no-op: the demultiplexer owns no resources beyond the
// statistics pool, which the CLI's runPipeline finalizes once after the run.
func (d *DemultiplexStep) Finalize() error { return nil }
