// Package steps implements the step set (C7): read, demultiplex,
// trim/process, split, compress and write, each conforming to the
// scheduler.Step contract.
package steps

import (
	"github.com/loganrosen/adapterremoval/internal/encoding"
	"github.com/loganrosen/adapterremoval/internal/fastq"
	"github.com/loganrosen/adapterremoval/internal/ngserr"
	"github.com/loganrosen/adapterremoval/internal/pipeline"
	"github.com/loganrosen/adapterremoval/internal/scheduler"
	"github.com/loganrosen/adapterremoval/internal/stats"
)

// fastqChunkSize is the number of records parsed into one ReadChunk per
// Process call (spec.md §4.6, FASTQ_CHUNK_SIZE).
const fastqChunkSize = 2048

// readKind selects how the second mate (if any) is obtained.
type readKind int

const (
	kindSE readKind = iota
	kindPE
	kindInterleaved
)

// ReadStep is the unique source step of the graph: it owns one or two
// joined FASTQ readers and, on each Process call, self-routes a
// continuation chunk back to its own id until its input is exhausted, at
// which point it routes a single EOF chunk downstream and stops (see the
// scheduler's source-step contract).
type ReadStep struct {
	selfID int
	nextID int

	kind          readKind
	r1            *fastq.Reader
	r2            *fastq.Reader
	mateSeparator byte

	stats      *stats.StatsSlot
	sampleRate float64
	seen       uint64

	done bool

	// chunkSeq is the arrival sequence number stamped on each chunk this
	// step emits downstream (spec.md §4.5); it does not advance for the
	// self-loop trigger chunk, which never leaves the reader.
	chunkSeq uint64

	// inFlight and maxInFlight implement the soft back-pressure bound of
	// spec.md §5 (policy: 4 * max_threads in-flight chunks). When inFlight
	// is non-nil and reports a value above maxInFlight, Process declines to
	// parse a new chunk this call, instead just re-arming its self-trigger,
	// so a slow downstream step stalls the reader instead of letting it
	// buffer unbounded input in memory.
	inFlight    func() int
	maxInFlight int
}

func newReadStep(selfID, nextID int, kind readKind, r1, r2 *fastq.Reader, mateSeparator byte, slot *stats.StatsSlot, sampleRate float64, inFlight func() int, maxInFlight int) *ReadStep {
	return &ReadStep{
		selfID:        selfID,
		nextID:        nextID,
		kind:          kind,
		r1:            r1,
		r2:            r2,
		mateSeparator: mateSeparator,
		stats:         slot,
		sampleRate:    sampleRate,
		inFlight:      inFlight,
		maxInFlight:   maxInFlight,
	}
}

// NewSEReader builds a single-end reader step. inFlight, when non-nil, is
// polled against maxInFlight to enforce soft back-pressure (spec.md §5);
// pass nil and 0 to disable the bound.
func NewSEReader(selfID, nextID int, paths []string, enc *encoding.Encoding, slot *stats.StatsSlot, sampleRate float64, inFlight func() int, maxInFlight int) *ReadStep {
	return newReadStep(selfID, nextID, kindSE, fastq.NewReader(paths, enc), nil, 0, slot, sampleRate, inFlight, maxInFlight)
}

// NewPEReader builds a paired-end reader step over two file lists.
func NewPEReader(selfID, nextID int, paths1, paths2 []string, enc *encoding.Encoding, mateSeparator byte, slot *stats.StatsSlot, sampleRate float64, inFlight func() int, maxInFlight int) *ReadStep {
	return newReadStep(selfID, nextID, kindPE, fastq.NewReader(paths1, enc), fastq.NewReader(paths2, enc), mateSeparator, slot, sampleRate, inFlight, maxInFlight)
}

// NewInterleavedReader builds a paired-end reader step over a single
// interleaved file list (mate 1 and mate 2 alternate within the stream).
func NewInterleavedReader(selfID, nextID int, paths []string, enc *encoding.Encoding, mateSeparator byte, slot *stats.StatsSlot, sampleRate float64, inFlight func() int, maxInFlight int) *ReadStep {
	return newReadStep(selfID, nextID, kindInterleaved, fastq.NewReader(paths, enc), nil, mateSeparator, slot, sampleRate, inFlight, maxInFlight)
}

func (s *ReadStep) pairedEnd() bool { return s.kind != kindSE }

// Process parses up to fastqChunkSize records (or record pairs) into a
// ReadChunk, observing raw input statistics before handing reads
// downstream, per spec.md §4.6.
func (s *ReadStep) Process(_ pipeline.Chunk) ([]scheduler.Routed, error) {
	if !s.done && s.inFlight != nil && s.maxInFlight > 0 && s.inFlight() > s.maxInFlight {
		// Over budget: decline to read a new chunk this call and just
		// re-arm the self-trigger so claim() revisits once a worker frees
		// up downstream capacity.
		return []scheduler.Routed{{StepID: s.selfID, Chunk: &pipeline.ReadChunk{}}}, nil
	}

	chunk := &pipeline.ReadChunk{}

	for i := 0; i < fastqChunkSize; i++ {
		var rec1, rec2 fastq.Record

		ok1, err := s.r1.Read(&rec1)
		if err != nil {
			return nil, err
		}
		if !ok1 {
			s.done = true
			break
		}

		if s.pairedEnd() {
			var ok2 bool
			if s.kind == kindInterleaved {
				ok2, err = s.r1.Read(&rec2)
			} else {
				ok2, err = s.r2.Read(&rec2)
			}
			if err != nil {
				return nil, err
			}
			if !ok2 {
				return nil, ngserr.FastqErrorf("unbalanced paired-end input; mate 2 stream ended before mate 1")
			}
			if err := fastq.ValidatePairedReads(&rec1, &rec2, s.mateSeparator); err != nil {
				return nil, err
			}
		}

		s.observe(&rec1, &rec2)

		chunk.Reads1 = append(chunk.Reads1, rec1)
		if s.pairedEnd() {
			chunk.Reads2 = append(chunk.Reads2, rec2)
		}
	}

	var routed []scheduler.Routed
	if len(chunk.Reads1) > 0 {
		chunk.ArrivalSeq = s.chunkSeq
		s.chunkSeq++
		routed = append(routed, scheduler.Routed{StepID: s.nextID, Chunk: chunk})
	}
	if s.done {
		eof := &pipeline.ReadChunk{EOF: true, ArrivalSeq: s.chunkSeq}
		s.chunkSeq++
		routed = append(routed, scheduler.Routed{StepID: s.nextID, Chunk: eof})
	} else {
		routed = append(routed, scheduler.Routed{StepID: s.selfID, Chunk: &pipeline.ReadChunk{}})
	}
	return routed, nil
}

func (s *ReadStep) observe(rec1, rec2 *fastq.Record) {
	if s.stats == nil {
		return
	}
	s.stats.InputReads++
	s.seen++

	sampled := s.sampleRate <= 0 || float64(s.seen%1000)/1000.0 < s.sampleRate
	if !sampled {
		return
	}
	s.stats.SampledReads++
	s.stats.Mate1.Observe(rec1.Sequence, rec1.Qualities)
	s.stats.ObserveQuality(rec1.Qualities)
	if s.pairedEnd() {
		s.stats.Mate2.Observe(rec2.Sequence, rec2.Qualities)
		s.stats.ObserveQuality(rec2.Qualities)
	}
}

// Finalize closes the underlying file handle(s).
func (s *ReadStep) Finalize() error {
	if err := s.r1.Close(); err != nil {
		return err
	}
	if s.r2 != nil {
		return s.r2.Close()
	}
	return nil
}
