package fastq

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/loganrosen/adapterremoval/internal/encoding"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.fastq")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestReadSimpleRecord(t *testing.T) {
	path := writeFile(t, "@r1\nACGT\n+\n!!!!\n")
	r := NewReader([]string{path}, encoding.Phred33)
	defer r.Close()

	var rec Record
	ok, err := r.Read(&rec)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "r1", rec.Header)
	require.Equal(t, "ACGT", string(rec.Sequence))
	require.Equal(t, "!!!!", string(rec.Qualities))

	ok, err = r.Read(&rec)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReadNormalizesLowercase(t *testing.T) {
	path := writeFile(t, "@r\nacgt\n+\nIIII\n")
	r := NewReader([]string{path}, encoding.Phred33)
	defer r.Close()

	var rec Record
	ok, err := r.Read(&rec)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "ACGT", string(rec.Sequence))
}

func TestReadRejectsInvalidBase(t *testing.T) {
	path := writeFile(t, "@r\nACBT\n+\n!!!!\n")
	r := NewReader([]string{path}, encoding.Phred33)
	defer r.Close()

	var rec Record
	_, err := r.Read(&rec)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid character")
}

func TestRoundTripEmit(t *testing.T) {
	rec := &Record{Header: "r1", Sequence: []byte("ACGT"), Qualities: []byte("!!!!")}
	out := rec.WriteTo(nil, encoding.Phred33)
	require.Equal(t, "@r1\nACGT\n+\n!!!!\n", string(out))

	path := writeFile(t, string(out))
	r := NewReader([]string{path}, encoding.Phred33)
	defer r.Close()

	var got Record
	ok, err := r.Read(&got)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, rec.Equal(&got))
}

func TestTrimTrailingBasesNoTrimWhenAllPass(t *testing.T) {
	rec := &Record{Header: "r", Sequence: []byte("ACGT"), Qualities: []byte("!!!!")}
	// A base passes when its score is strictly above the threshold, so Q0
	// ('!') passes only with a threshold of -1.
	n := rec.TrimTrailingBases(false, -1, false)
	require.Equal(t, Ntrimmed{0, 0}, n)
	require.Equal(t, "ACGT", string(rec.Sequence))
}

func TestTrimTrailingBasesTrimsLowQualityAndNs(t *testing.T) {
	rec := &Record{Header: "r", Sequence: []byte("ACGTNN"), Qualities: []byte("IIIIAA")}
	threshold := int('H') - 33
	n := rec.TrimTrailingBases(true, threshold, false)
	require.Equal(t, 0, n.Left)
	require.Equal(t, 2, n.Right)
	require.Equal(t, "ACGT", string(rec.Sequence))
	require.Equal(t, "IIII", string(rec.Qualities))
}

func TestTrimPreserve5p(t *testing.T) {
	rec := &Record{Header: "r", Sequence: []byte("NNACGT"), Qualities: []byte("!!IIII")}
	n := rec.TrimTrailingBases(true, 10, true)
	require.Equal(t, 0, n.Left)
	require.Equal(t, "NNACGT", string(rec.Sequence))
}

func TestTrimWindowedBasesAllHighQuality(t *testing.T) {
	rec := &Record{Header: "r", Sequence: []byte("ACGTACGTAC"), Qualities: []byte("IIIIIIIIII")}
	n := rec.TrimWindowedBases(false, 20, 4, false)
	require.Equal(t, Ntrimmed{0, 0}, n)
}

func TestTrimWindowedBasesDropsLowTail(t *testing.T) {
	rec := &Record{Header: "r", Sequence: []byte("ACGTACGTAC"), Qualities: []byte("IIIIII!!!!")}
	n := rec.TrimWindowedBases(false, 20, 4, false)
	require.Less(t, len(rec.Sequence), 10)
	require.Equal(t, 0, n.Left)
	require.Greater(t, n.Right, 0)
}

func TestReverseComplementInvolution(t *testing.T) {
	rec := &Record{Header: "r", Sequence: []byte("ACGTN"), Qualities: []byte("IIIII")}
	orig := rec.Clone()
	rec.ReverseComplement()
	rec.ReverseComplement()
	require.True(t, orig.Equal(rec))
}

func TestReverseComplementBases(t *testing.T) {
	rec := &Record{Header: "r", Sequence: []byte("ACGTN"), Qualities: []byte("12345")}
	rec.ReverseComplement()
	require.Equal(t, "NACGT", string(rec.Sequence))
	require.Equal(t, "54321", string(rec.Qualities))
}

func TestValidatePairedReadsOK(t *testing.T) {
	r1 := &Record{Header: "x/1", Sequence: []byte("A"), Qualities: []byte("!")}
	r2 := &Record{Header: "x/2", Sequence: []byte("A"), Qualities: []byte("!")}
	require.NoError(t, ValidatePairedReads(r1, r2, '/'))
	require.Equal(t, "x/1", r1.Header)
	require.Equal(t, "x/2", r2.Header)
}

func TestValidatePairedReadsMismatch(t *testing.T) {
	r1 := &Record{Header: "x/1", Sequence: []byte("A"), Qualities: []byte("!")}
	r2 := &Record{Header: "y/2", Sequence: []byte("A"), Qualities: []byte("!")}
	err := ValidatePairedReads(r1, r2, '/')
	require.Error(t, err)
	require.Contains(t, err.Error(), "mismatching names")
}

func TestValidatePairedReadsInconsistentNumbering(t *testing.T) {
	r1 := &Record{Header: "x/2", Sequence: []byte("A"), Qualities: []byte("!")}
	r2 := &Record{Header: "x/2", Sequence: []byte("A"), Qualities: []byte("!")}
	err := ValidatePairedReads(r1, r2, '/')
	require.Error(t, err)
}

func TestValidatePairedReadsNoIndicator(t *testing.T) {
	r1 := &Record{Header: "x", Sequence: []byte("A"), Qualities: []byte("!")}
	r2 := &Record{Header: "x", Sequence: []byte("A"), Qualities: []byte("!")}
	require.NoError(t, ValidatePairedReads(r1, r2, '/'))
}
