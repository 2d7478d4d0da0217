// Package adapter implements the adapter/overlap engine (C4): local
// alignment between a read and candidate adapters, PE mate overlap
// detection, and consensus merging of overlapping mate pairs.
package adapter

import (
	"github.com/loganrosen/adapterremoval/internal/fastq"
)

const (
	phredOffset = 33
	phredMax    = 126
	phredMin    = 33
)

// Pair is one (adapter1, adapter2) candidate, associated with a sample.
type Pair struct {
	Adapter1 []byte
	Adapter2 []byte
}

// Set is the full adapter configuration for a run: one pair per
// barcode/sample, plus the set of raw adapters actually seen in hits (for
// reporting).
type Set struct {
	Pairs []Pair
}

// Hit describes a successful adapter alignment against a read's 3' end.
type Hit struct {
	AdapterIndex int
	TrimFrom     int
	OverlapLen   int
}

// MatchPrefix reports the mismatch count between the first len(prefix)
// bases of seq and prefix, and whether that count is within maxMismatches.
// Used by the demultiplexer to score barcode candidates with the same
// primitive the adapter engine uses for suffix alignment.
func MatchPrefix(seq, prefix []byte, maxMismatches int) (mismatches int, ok bool) {
	if len(prefix) == 0 || len(seq) < len(prefix) {
		return 0, false
	}
	mismatches = mismatchCount(seq[:len(prefix)], prefix)
	return mismatches, mismatches <= maxMismatches
}

func mismatchCount(a, b []byte) int {
	n := 0
	for i := range a {
		if a[i] != b[i] {
			n++
		}
	}
	return n
}

// FindAdapterSE searches for the best-supported candidate adapter overlap at
// the 3' end of seq. Ties are broken by lowest adapter index, then longest
// overlap.
func FindAdapterSE(seq []byte, adapters []Pair, minOverlap int, maxMismatchRate float64) (Hit, bool) {
	return findAdapter(seq, adapters, minOverlap, maxMismatchRate, func(p Pair) []byte { return p.Adapter1 })
}

// FindAdapterMate2 is the mate-2 analogue of FindAdapterSE, matched against
// each candidate's second adapter sequence.
func FindAdapterMate2(seq []byte, adapters []Pair, minOverlap int, maxMismatchRate float64) (Hit, bool) {
	return findAdapter(seq, adapters, minOverlap, maxMismatchRate, func(p Pair) []byte { return p.Adapter2 })
}

func findAdapter(seq []byte, adapters []Pair, minOverlap int, maxMismatchRate float64, pick func(Pair) []byte) (Hit, bool) {
	best := Hit{}
	found := false

	for idx, pair := range adapters {
		candidate := pick(pair)
		if len(candidate) == 0 {
			continue
		}

		for p := 0; p < len(seq); p++ {
			overlap := len(seq) - p
			if overlap > len(candidate) {
				overlap = len(candidate)
			}
			if overlap < minOverlap {
				continue
			}

			mismatches := mismatchCount(seq[p:p+overlap], candidate[:overlap])
			if float64(mismatches)/float64(overlap) > maxMismatchRate {
				continue
			}

			hit := Hit{AdapterIndex: idx, TrimFrom: p, OverlapLen: overlap}
			if !found || hit.TrimFrom < best.TrimFrom {
				// A strictly earlier trim position always wins (it removes
				// more adapter-derived sequence); among equally-early
				// positions the lowest adapter index wins, because
				// candidates are scanned in index order and only replace
				// the best on a strictly earlier position.
				best = hit
				found = true
			}
			break // earliest valid position for this adapter is used
		}
	}

	return best, found
}

// FindOverlapPE searches for the best overlap between mate 1 (seq1) and the
// reverse complement of mate 2 (seq2RC, already reverse-complemented by the
// caller). It returns the overlap length and mismatch count of the longest
// alignment, within maxMismatchRate, of seq1's 3' end against seq2RC's 5'
// end.
func FindOverlapPE(seq1, seq2RC []byte, minOverlap int, maxMismatchRate float64) (overlapLen int, mismatches int, found bool) {
	maxLen := len(seq1)
	if len(seq2RC) > maxLen {
		maxLen = len(seq2RC)
	}

	bestOverlap := 0
	bestMismatches := 0
	bestFound := false

	// Slide seq2RC over seq1 starting from a full 5'-anchored alignment
	// (offset 0, i.e. the fragment is shorter than or equal to read length)
	// outward, preferring the longest valid overlap.
	for overlap := maxLen; overlap >= minOverlap; overlap-- {
		a := lastN(seq1, overlap)
		b := firstN(seq2RC, overlap)
		if len(a) != overlap || len(b) != overlap {
			continue
		}

		mm := mismatchCount(a, b)
		if float64(mm)/float64(overlap) > maxMismatchRate {
			continue
		}

		bestOverlap = overlap
		bestMismatches = mm
		bestFound = true
		break
	}

	return bestOverlap, bestMismatches, bestFound
}

func lastN(b []byte, n int) []byte {
	if n > len(b) {
		return b
	}
	return b[len(b)-n:]
}

func firstN(b []byte, n int) []byte {
	if n > len(b) {
		return b
	}
	return b[:n]
}

// mergeQuality computes the merged Phred+33 quality byte for a pair of
// overlapping, internally phred+33-encoded quality bytes q1 (kept base b1)
// and q2 (base b2), following the agree/disagree rule resolved in
// SPEC_FULL.md §4 (Open Question (b)): agreeing bases sum their confidence,
// capped at the maximum representable score; disagreeing bases keep the
// higher-quality base with quality equal to the score difference.
func mergeQuality(b1, q1, b2, q2 byte) (base byte, quality byte) {
	p1 := int(q1) - phredOffset
	p2 := int(q2) - phredOffset

	if b1 == b2 {
		merged := p1 + p2
		if merged > phredMax-phredOffset {
			merged = phredMax - phredOffset
		}
		return b1, byte(merged + phredOffset)
	}

	diff := p1 - p2
	base = b2
	if diff < 0 {
		diff = -diff
	}
	if p1 >= p2 {
		base = b1
	}

	q := diff + phredOffset
	if q < phredMin {
		q = phredMin
	}
	if q > phredMax {
		q = phredMax
	}
	return base, byte(q)
}

// Merge collapses an overlapping mate pair into a single consensus record.
// mate1 and mate2 must already have had any adapter contamination trimmed;
// mate2 is reverse-complemented internally to align it against mate1.
// overlapLen is the number of bases of mate1's 3' end that overlap with
// mate2's (reverse-complemented) 5' end, as returned by FindOverlapPE.
func Merge(mate1, mate2 *fastq.Record, overlapLen int) *fastq.Record {
	rc2 := mate2.Clone()
	rc2.ReverseComplement()

	n1 := len(mate1.Sequence)
	merged := &fastq.Record{Header: mate1.Header}

	// Bases of mate1 before the overlap region are kept as-is.
	prefixLen := n1 - overlapLen
	merged.Sequence = append(merged.Sequence, mate1.Sequence[:prefixLen]...)
	merged.Qualities = append(merged.Qualities, mate1.Qualities[:prefixLen]...)

	for i := 0; i < overlapLen; i++ {
		b1 := mate1.Sequence[prefixLen+i]
		q1 := mate1.Qualities[prefixLen+i]
		b2 := rc2.Sequence[i]
		q2 := rc2.Qualities[i]
		base, qual := mergeQuality(b1, q1, b2, q2)
		merged.Sequence = append(merged.Sequence, base)
		merged.Qualities = append(merged.Qualities, qual)
	}

	// Any remaining bases of mate2 (reverse-complemented) beyond the
	// overlap extend the consensus read past mate1's 3' end.
	if overlapLen < len(rc2.Sequence) {
		merged.Sequence = append(merged.Sequence, rc2.Sequence[overlapLen:]...)
		merged.Qualities = append(merged.Qualities, rc2.Qualities[overlapLen:]...)
	}

	return merged
}
