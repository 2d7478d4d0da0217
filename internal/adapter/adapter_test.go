package adapter

import (
	"testing"

	"github.com/loganrosen/adapterremoval/internal/fastq"
	"github.com/stretchr/testify/require"
)

func TestFindAdapterSEFindsExactMatch(t *testing.T) {
	seq := []byte("ACGTACGTAGATCGGAAGAGC")
	adapters := []Pair{{Adapter1: []byte("AGATCGGAAGAGC")}}

	hit, found := FindAdapterSE(seq, adapters, 5, 0.1)
	require.True(t, found)
	require.Equal(t, 8, hit.TrimFrom)
	require.Equal(t, 0, hit.AdapterIndex)
}

func TestFindAdapterSENoMatch(t *testing.T) {
	seq := []byte("ACGTACGTACGTACGTACGT")
	adapters := []Pair{{Adapter1: []byte("TTTTTTTTTTTTT")}}

	_, found := FindAdapterSE(seq, adapters, 5, 0.1)
	require.False(t, found)
}

func TestFindAdapterSETieBreakLowestIndex(t *testing.T) {
	seq := []byte("ACGTAAAAA")
	adapters := []Pair{
		{Adapter1: []byte("AAAAA")},
		{Adapter1: []byte("AAAAA")},
	}

	hit, found := FindAdapterSE(seq, adapters, 5, 0.0)
	require.True(t, found)
	require.Equal(t, 0, hit.AdapterIndex)
}

func TestFindOverlapPEFullOverlap(t *testing.T) {
	seq1 := []byte("ACGTACGT")
	// reverse complement of ACGTACGT is ACGTACGT (palindromic)
	seq2RC := []byte("ACGTACGT")

	overlap, mismatches, found := FindOverlapPE(seq1, seq2RC, 4, 0.1)
	require.True(t, found)
	require.Equal(t, 8, overlap)
	require.Equal(t, 0, mismatches)
}

func TestMergeFullOverlapAgreeing(t *testing.T) {
	mate1 := &fastq.Record{Header: "x", Sequence: []byte("ACGTACGT"), Qualities: []byte("IIIIIIII")}
	mate2 := &fastq.Record{Header: "x", Sequence: []byte("ACGTACGT"), Qualities: []byte("IIIIIIII")}

	merged := Merge(mate1, mate2, 8)
	require.Equal(t, 8, merged.Length())
	// Agreeing high-quality bases should sum confidence, capped at phredMax.
	for _, q := range merged.Qualities {
		require.GreaterOrEqual(t, q, byte('I'))
	}
}

func TestMergeDisagreementKeepsHigherQuality(t *testing.T) {
	mate1 := &fastq.Record{Header: "x", Sequence: []byte("A"), Qualities: []byte{73}} // 'I', high quality
	// mate2, once reverse-complemented ('A' -> 'T'), disagrees at this position with a low-quality base.
	mate2 := &fastq.Record{Header: "x", Sequence: []byte("A"), Qualities: []byte{35}} // Q2
	merged := Merge(mate1, mate2, 1)
	require.Equal(t, 1, merged.Length())
	// The Q40 base wins; its quality becomes the score difference 40-2.
	require.Equal(t, byte('A'), merged.Sequence[0])
	require.Equal(t, byte(33+38), merged.Qualities[0])
}
