package steps

import (
	"github.com/loganrosen/adapterremoval/internal/adapter"
	"github.com/loganrosen/adapterremoval/internal/encoding"
	"github.com/loganrosen/adapterremoval/internal/fastq"
	"github.com/loganrosen/adapterremoval/internal/ngserr"
	"github.com/loganrosen/adapterremoval/internal/outputmap"
	"github.com/loganrosen/adapterremoval/internal/pipeline"
	"github.com/loganrosen/adapterremoval/internal/scheduler"
	"github.com/loganrosen/adapterremoval/internal/stats"
)

// TrimSettings collects the quality/length/ambiguity thresholds shared by
// the SE and PE reads processors, independent of any one sample's adapter
// set.
type TrimSettings struct {
	Adapters          adapter.Set
	MinAdapterOverlap int
	MaxMismatchRate   float64

	MinOverlapPE      int
	MaxMismatchRatePE float64
	MergePE           bool

	QualityThreshold int
	WindowSize       float64
	TrimNs           bool
	Preserve5p       bool

	MinLength int
	MaxLength int // 0 disables the upper bound
	MaxNs     int
}

// ProcessStep is the reads processor (C7, "parallel"): for each chunk it
// acquires a statistics slot, trims adapters and low-quality bases from
// every read (or pair), applies length and ambiguity filters, optionally
// merges overlapping pairs, and emits one OutputChunk per destination read
// type via the sample's output file map.
type ProcessStep struct {
	nth       int
	pairedEnd bool
	settings  TrimSettings
	enc       *encoding.Encoding
	fm        *outputmap.FilenameMap
	stats     *stats.Pool
}

// NewSEProcessor builds the trim/filter step for a single-end sample.
func NewSEProcessor(nth int, settings TrimSettings, enc *encoding.Encoding, fm *outputmap.FilenameMap, pool *stats.Pool) *ProcessStep {
	return &ProcessStep{nth: nth, settings: settings, enc: enc, fm: fm, stats: pool}
}

// NewPEProcessor builds the trim/filter/merge step for a paired-end sample.
func NewPEProcessor(nth int, settings TrimSettings, enc *encoding.Encoding, fm *outputmap.FilenameMap, pool *stats.Pool) *ProcessStep {
	return &ProcessStep{nth: nth, pairedEnd: true, settings: settings, enc: enc, fm: fm, stats: pool}
}

func splitStepFor(nth int, rt outputmap.ReadType) int {
	base := pipeline.SampleBase(nth)
	switch rt {
	case outputmap.Mate1:
		return pipeline.SplitID(base + pipeline.Mate1Offset)
	case outputmap.Mate2:
		return pipeline.SplitID(base + pipeline.Mate2Offset)
	case outputmap.Singleton:
		return pipeline.SplitID(base + pipeline.SingletonOffset)
	case outputmap.Collapsed:
		return pipeline.SplitID(base + pipeline.CollapsedOffset)
	default:
		return pipeline.SplitID(base + pipeline.DiscardedOffset)
	}
}

// Process implements scheduler.Step.
func (p *ProcessStep) Process(c pipeline.Chunk) ([]scheduler.Routed, error) {
	rc, ok := c.(*pipeline.ReadChunk)
	if !ok {
		return nil, ngserr.InternalErrorf("reads processor received a non-read chunk")
	}

	if rc.EOF {
		var routed []scheduler.Routed
		for _, rt := range []outputmap.ReadType{outputmap.Mate1, outputmap.Mate2, outputmap.Singleton, outputmap.Collapsed, outputmap.Discarded} {
			if _, ok := p.fm.SlotFor(rt); ok {
				routed = append(routed, scheduler.Routed{StepID: splitStepFor(p.nth, rt), Chunk: &pipeline.OutputChunk{EOF: true, ArrivalSeq: rc.ArrivalSeq}})
			}
		}
		return routed, nil
	}

	slot := p.stats.Acquire()
	defer p.stats.Release(slot)

	outputs := map[outputmap.ReadType]*pipeline.OutputChunk{}
	emit := func(rt outputmap.ReadType, rec *fastq.Record, count int) {
		if _, ok := p.fm.SlotFor(rt); !ok {
			return
		}
		oc := outputs[rt]
		if oc == nil {
			oc = &pipeline.OutputChunk{ArrivalSeq: rc.ArrivalSeq}
			outputs[rt] = oc
		}
		oc.Add(rec, p.enc, count)
	}

	if p.pairedEnd {
		for i := range rc.Reads1 {
			p.processPair(&rc.Reads1[i], &rc.Reads2[i], slot, emit)
		}
	} else {
		for i := range rc.Reads1 {
			p.processSingle(&rc.Reads1[i], slot, emit)
		}
	}

	routed := make([]scheduler.Routed, 0, len(outputs))
	for rt, oc := range outputs {
		routed = append(routed, scheduler.Routed{StepID: splitStepFor(p.nth, rt), Chunk: oc})
	}
	return routed, nil
}

// trimRead runs adapter trimming (against candidate, which picks Adapter1
// for mate 1 / SE reads and Adapter2 for mate 2) followed by quality
// trimming, updating slot's trim totals.
func (p *ProcessStep) trimRead(rec *fastq.Record, pickMate2 bool, slot *stats.StatsSlot) {
	before := rec.Length()

	var hit adapter.Hit
	var found bool
	if pickMate2 {
		hit, found = adapter.FindAdapterMate2(rec.Sequence, p.settings.Adapters.Pairs, p.settings.MinAdapterOverlap, p.settings.MaxMismatchRate)
	} else {
		hit, found = adapter.FindAdapterSE(rec.Sequence, p.settings.Adapters.Pairs, p.settings.MinAdapterOverlap, p.settings.MaxMismatchRate)
	}
	if found {
		removed := before - hit.TrimFrom
		rec.Sequence = rec.Sequence[:hit.TrimFrom]
		rec.Qualities = rec.Qualities[:hit.TrimFrom]
		slot.Trim.RecordAdapterHit(hit.AdapterIndex, removed)
	}

	var nt fastq.Ntrimmed
	if p.settings.WindowSize > 0 {
		nt = rec.TrimWindowedBases(p.settings.TrimNs, p.settings.QualityThreshold, p.settings.WindowSize, p.settings.Preserve5p)
	} else {
		nt = rec.TrimTrailingBases(p.settings.TrimNs, p.settings.QualityThreshold, p.settings.Preserve5p)
	}
	if removed := nt.Left + nt.Right; removed > 0 {
		slot.Trim.LowQualityTrimmedReads++
		slot.Trim.LowQualityTrimmedBases += uint64(removed)
		slot.Trim.TerminalBasesTrimmed += uint64(removed)
	}
}

// passesFilters reports whether rec survives the length and ambiguity
// filters, recording the corresponding discard counters when it does not.
func (p *ProcessStep) passesFilters(rec *fastq.Record, slot *stats.StatsSlot) bool {
	if rec.Length() < p.settings.MinLength {
		slot.Trim.LengthFilteredReads++
		slot.Trim.LengthFilteredBases += uint64(rec.Length())
		return false
	}
	if p.settings.MaxLength > 0 && rec.Length() > p.settings.MaxLength {
		slot.Trim.LengthFilteredReads++
		slot.Trim.LengthFilteredBases += uint64(rec.Length())
		return false
	}

	n := 0
	for _, b := range rec.Sequence {
		if b == 'N' {
			n++
		}
	}
	if p.settings.MaxNs >= 0 && n > p.settings.MaxNs {
		slot.Trim.AmbiguityFilteredReads++
		slot.Trim.AmbiguityFilteredBases += uint64(rec.Length())
		return false
	}

	return true
}

func (p *ProcessStep) processSingle(rec *fastq.Record, slot *stats.StatsSlot, emit func(outputmap.ReadType, *fastq.Record, int)) {
	p.trimRead(rec, false, slot)
	if !p.passesFilters(rec, slot) {
		slot.Trim.Discarded++
		emit(outputmap.Discarded, rec, 1)
		return
	}
	slot.OutputLengths.Observe(rec.Length())
	emit(outputmap.Mate1, rec, 1)
}

func (p *ProcessStep) processPair(rec1, rec2 *fastq.Record, slot *stats.StatsSlot, emit func(outputmap.ReadType, *fastq.Record, int)) {
	p.trimRead(rec1, false, slot)
	p.trimRead(rec2, true, slot)

	if p.settings.MergePE {
		rc2 := rec2.Clone()
		rc2.ReverseComplement()
		overlap, _, found := adapter.FindOverlapPE(rec1.Sequence, rc2.Sequence, p.settings.MinOverlapPE, p.settings.MaxMismatchRatePE)
		if found {
			merged := adapter.Merge(rec1, rec2, overlap)
			slot.Trim.OverlappingMerged++
			if !p.passesFilters(merged, slot) {
				slot.Trim.Discarded += 2
				emit(outputmap.Discarded, merged, 2)
				return
			}
			slot.OutputLengths.Observe(merged.Length())
			emit(outputmap.Collapsed, merged, 2)
			return
		}
	}

	ok1 := p.passesFilters(rec1, slot)
	ok2 := p.passesFilters(rec2, slot)

	switch {
	case ok1 && ok2:
		slot.OutputLengths.Observe(rec1.Length())
		slot.OutputLengths.Observe(rec2.Length())
		emit(outputmap.Mate1, rec1, 1)
		emit(outputmap.Mate2, rec2, 1)
	case ok1 && !ok2:
		slot.OutputLengths.Observe(rec1.Length())
		emit(outputmap.Singleton, rec1, 1)
	case !ok1 && ok2:
		slot.OutputLengths.Observe(rec2.Length())
		emit(outputmap.Singleton, rec2, 1)
	default:
		slot.Trim.Discarded += 2
		emit(outputmap.Discarded, rec1, 1)
		emit(outputmap.Discarded, rec2, 1)
	}
}

// Finalize is a no-op: per-chunk statistics are merged once after the run
// by the CLI's runPipeline via the shared stats.Pool.
func (p *ProcessStep) Finalize() error { return nil }
