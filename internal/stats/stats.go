// Package stats implements the thread-state statistics pool (C9): one
// StatsSlot per worker, exclusively owned between Acquire and Release, and
// additively merged at finalization.
package stats

import "sync"

// Q20 / Q30 thresholds, expressed in internal Phred+33 bytes.
const (
	q20Cutoff = 33 + 20
	q30Cutoff = 33 + 30
)

// PerPosition holds running per-position base counts and quality sums for
// one read stream (mate 1, mate 2, or the combined/collapsed output),
// lengthened on demand to the longest read seen.
type PerPosition struct {
	BaseCounts    [][5]uint64 // indexed [pos][A,C,G,T,N]
	QualitySums   []uint64
	QualityCounts []uint64
}

func (p *PerPosition) ensureLen(n int) {
	for len(p.BaseCounts) < n {
		p.BaseCounts = append(p.BaseCounts, [5]uint64{})
		p.QualitySums = append(p.QualitySums, 0)
		p.QualityCounts = append(p.QualityCounts, 0)
	}
}

func baseIndex(b byte) int {
	switch b {
	case 'A':
		return 0
	case 'C':
		return 1
	case 'G':
		return 2
	case 'T':
		return 3
	default:
		return 4
	}
}

// Observe folds one record's bases and qualities into the per-position
// arrays, growing them if this record is longer than any seen so far.
func (p *PerPosition) Observe(seq, quals []byte) {
	p.ensureLen(len(seq))
	for i, b := range seq {
		p.BaseCounts[i][baseIndex(b)]++
		p.QualitySums[i] += uint64(quals[i])
		p.QualityCounts[i]++
	}
}

// merge folds other into p, lengthening p as needed. Additive, commutative,
// associative.
func (p *PerPosition) merge(other *PerPosition) {
	p.ensureLen(len(other.BaseCounts))
	for i := range other.BaseCounts {
		for b := 0; b < 5; b++ {
			p.BaseCounts[i][b] += other.BaseCounts[i][b]
		}
		p.QualitySums[i] += other.QualitySums[i]
		p.QualityCounts[i] += other.QualityCounts[i]
	}
}

// TrimTotals accumulates the trimming counters spec.md §3 names: adapter
// hits per index, overlap merges, terminal/low-quality/length/ambiguity
// trims and discards.
type TrimTotals struct {
	AdapterTrimmedReads []uint64 // indexed by adapter index
	AdapterTrimmedBases []uint64

	OverlappingMerged uint64

	TerminalBasesTrimmed uint64

	LowQualityTrimmedReads uint64
	LowQualityTrimmedBases uint64

	LengthFilteredReads uint64
	LengthFilteredBases uint64

	AmbiguityFilteredReads uint64
	AmbiguityFilteredBases uint64

	Discarded uint64
}

func (t *TrimTotals) ensureAdapters(n int) {
	for len(t.AdapterTrimmedReads) < n {
		t.AdapterTrimmedReads = append(t.AdapterTrimmedReads, 0)
		t.AdapterTrimmedBases = append(t.AdapterTrimmedBases, 0)
	}
}

// RecordAdapterHit folds one adapter-trim event at adapterIndex removing
// nBases bases.
func (t *TrimTotals) RecordAdapterHit(adapterIndex int, nBases int) {
	t.ensureAdapters(adapterIndex + 1)
	t.AdapterTrimmedReads[adapterIndex]++
	t.AdapterTrimmedBases[adapterIndex] += uint64(nBases)
}

func (t *TrimTotals) merge(other *TrimTotals) {
	t.ensureAdapters(len(other.AdapterTrimmedReads))
	for i := range other.AdapterTrimmedReads {
		t.AdapterTrimmedReads[i] += other.AdapterTrimmedReads[i]
		t.AdapterTrimmedBases[i] += other.AdapterTrimmedBases[i]
	}
	t.OverlappingMerged += other.OverlappingMerged
	t.TerminalBasesTrimmed += other.TerminalBasesTrimmed
	t.LowQualityTrimmedReads += other.LowQualityTrimmedReads
	t.LowQualityTrimmedBases += other.LowQualityTrimmedBases
	t.LengthFilteredReads += other.LengthFilteredReads
	t.LengthFilteredBases += other.LengthFilteredBases
	t.AmbiguityFilteredReads += other.AmbiguityFilteredReads
	t.AmbiguityFilteredBases += other.AmbiguityFilteredBases
	t.Discarded += other.Discarded
}

// DemuxTotals accumulates demultiplexing counters, indexed by sample.
type DemuxTotals struct {
	PerSample    []uint64
	Ambiguous    uint64
	Unidentified uint64
}

// EnsureSamples grows PerSample to at least n entries; callers outside this
// package use it before indexing a newly-seen sample.
func (d *DemuxTotals) EnsureSamples(n int) {
	for len(d.PerSample) < n {
		d.PerSample = append(d.PerSample, 0)
	}
}

func (d *DemuxTotals) merge(other *DemuxTotals) {
	d.EnsureSamples(len(other.PerSample))
	for i := range other.PerSample {
		d.PerSample[i] += other.PerSample[i]
	}
	d.Ambiguous += other.Ambiguous
	d.Unidentified += other.Unidentified
}

// LengthHistogram counts output read lengths, indexed by length.
type LengthHistogram struct {
	Counts []uint64
}

func (h *LengthHistogram) Observe(length int) {
	for len(h.Counts) <= length {
		h.Counts = append(h.Counts, 0)
	}
	h.Counts[length]++
}

func (h *LengthHistogram) merge(other *LengthHistogram) {
	for len(h.Counts) < len(other.Counts) {
		h.Counts = append(h.Counts, 0)
	}
	for i, c := range other.Counts {
		h.Counts[i] += c
	}
}

// StatsSlot is one worker's exclusively-owned accumulator, acquired from a
// Pool and released back to it once a chunk has been fully processed.
type StatsSlot struct {
	InputReads   uint64
	SampledReads uint64

	Mate1 PerPosition
	Mate2 PerPosition

	Trim  TrimTotals
	Demux DemuxTotals

	OutputLengths LengthHistogram

	Q20Bases uint64
	Q30Bases uint64
	QBases   uint64
}

// ObserveQuality folds Q20/Q30 counters for one quality byte slice (already
// decoded to internal Phred+33).
func (s *StatsSlot) ObserveQuality(quals []byte) {
	for _, q := range quals {
		s.QBases++
		if q >= q20Cutoff {
			s.Q20Bases++
		}
		if q >= q30Cutoff {
			s.Q30Bases++
		}
	}
}

func (s *StatsSlot) merge(other *StatsSlot) {
	s.InputReads += other.InputReads
	s.SampledReads += other.SampledReads
	s.Mate1.merge(&other.Mate1)
	s.Mate2.merge(&other.Mate2)
	s.Trim.merge(&other.Trim)
	s.Demux.merge(&other.Demux)
	s.OutputLengths.merge(&other.OutputLengths)
	s.Q20Bases += other.Q20Bases
	s.Q30Bases += other.Q30Bases
	s.QBases += other.QBases
}

// Pool is a bounded set of StatsSlots, one per worker, handed out via
// Acquire and returned via Release. A slot is exclusively owned by at most
// one worker at a time, as spec.md §4.8 requires.
type Pool struct {
	mu    sync.Mutex
	cond  *sync.Cond
	free  []*StatsSlot
	total []*StatsSlot // every slot ever created, for Finalize
}

// NewPool pre-allocates size slots.
func NewPool(size int) *Pool {
	p := &Pool{}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < size; i++ {
		slot := &StatsSlot{}
		p.free = append(p.free, slot)
		p.total = append(p.total, slot)
	}
	return p
}

// Acquire returns an exclusively-owned slot, blocking if none are free.
func (p *Pool) Acquire() *StatsSlot {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.free) == 0 {
		p.cond.Wait()
	}
	n := len(p.free)
	slot := p.free[n-1]
	p.free = p.free[:n-1]
	return slot
}

// Release returns slot to the pool.
func (p *Pool) Release(slot *StatsSlot) {
	p.mu.Lock()
	p.free = append(p.free, slot)
	p.cond.Signal()
	p.mu.Unlock()
}

// Finalize sums every slot this pool ever created into a single total. It
// must only be called once all workers have quiesced.
func (p *Pool) Finalize() *StatsSlot {
	total := &StatsSlot{}
	for _, slot := range p.total {
		total.merge(slot)
	}
	return total
}
