// Package fastq implements the FASTQ record (C2): parsing, emission,
// sequence-alphabet validation, quality trimming, reverse-complement and
// mate-pair name validation.
package fastq

import (
	"strings"

	"github.com/loganrosen/adapterremoval/internal/encoding"
	"github.com/loganrosen/adapterremoval/internal/ioutil"
	"github.com/loganrosen/adapterremoval/internal/ngserr"
)

// CanonicalMateSeparator is the normalized mate-separator character written
// back into a record's header once its mate indicator has been parsed.
const CanonicalMateSeparator = '/'

// Record is a single parsed FASTQ read: header, sequence and Phred+33
// qualities (decoded from whatever encoding the input used).
type Record struct {
	Header    string
	Sequence  []byte
	Qualities []byte
}

// Length returns the number of bases in the record.
func (r *Record) Length() int { return len(r.Sequence) }

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	cp := &Record{Header: r.Header}
	cp.Sequence = append([]byte(nil), r.Sequence...)
	cp.Qualities = append([]byte(nil), r.Qualities...)
	return cp
}

// Equal reports whether two records have identical header, sequence and
// quality bytes.
func (r *Record) Equal(other *Record) bool {
	return r.Header == other.Header &&
		string(r.Sequence) == string(other.Sequence) &&
		string(r.Qualities) == string(other.Qualities)
}

// Reader parses FASTQ records from a joined line reader, decoding qualities
// through the configured encoding.
type Reader struct {
	lr  *ioutil.JoinedLineReader
	enc *encoding.Encoding
}

// NewReader opens the given input files (raw, gzip or bzip2, auto-detected)
// as a single logical FASTQ stream.
func NewReader(paths []string, enc *encoding.Encoding) *Reader {
	return &Reader{lr: ioutil.NewJoinedLineReader(paths), enc: enc}
}

// Close releases the underlying file handle.
func (r *Reader) Close() error { return r.lr.Close() }

func (r *Reader) fail(format string, args ...any) error {
	return ngserr.WithLocation(ngserr.FastqErrorf(format, args...), r.lr.Path(), r.lr.Line())
}

// Read parses the next record into dst, returning false at a clean
// end-of-stream (no partial record pending).
func (r *Reader) Read(dst *Record) (bool, error) {
	var header string
	for {
		line, ok, err := r.lr.GetLine()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		if line != "" {
			header = line
			break
		}
	}

	if header[0] != '@' {
		return false, r.fail("malformed or empty FASTQ header")
	}
	dst.Header = header[1:]
	if dst.Header == "" {
		return false, r.fail("malformed or empty FASTQ header")
	}

	seqLine, ok, err := r.lr.GetLine()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, r.fail("partial FASTQ record; cut off after header")
	}
	if seqLine == "" {
		return false, r.fail("sequence is empty")
	}

	plusLine, ok, err := r.lr.GetLine()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, r.fail("partial FASTQ record; cut off after sequence")
	}
	if plusLine == "" || plusLine[0] != '+' {
		return false, r.fail("FASTQ record lacks separator character (+)")
	}

	qualLine, ok, err := r.lr.GetLine()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, r.fail("partial FASTQ record; cut off after separator")
	}
	if qualLine == "" {
		return false, r.fail("no qualities")
	}
	if len(qualLine) != len(seqLine) {
		return false, r.fail("sequence/quality lengths do not match: %d and %d", len(seqLine), len(qualLine))
	}

	dst.Sequence = []byte(seqLine)
	if err := cleanSequence(dst.Sequence); err != nil {
		return false, r.fail("%s", err.(*ngserr.Error).Msg)
	}

	dst.Qualities = []byte(qualLine)
	if err := r.enc.DecodeAll(dst.Qualities); err != nil {
		return false, r.fail("%s", err.(*ngserr.Error).Msg)
	}

	return true, nil
}

// cleanSequence upper-cases lowercase bases in place and rejects any
// character outside {A,C,G,T,N}.
func cleanSequence(seq []byte) error {
	for i, b := range seq {
		switch b {
		case 'A', 'C', 'G', 'T', 'N':
		case 'a', 'c', 'g', 't', 'n':
			seq[i] = b - ('a' - 'A')
		default:
			return ngserr.FastqErrorf("invalid character in FASTQ sequence; only A, C, G, T and N are expected")
		}
	}
	return nil
}

// WriteTo appends the record, encoded with enc, in FASTQ wire format to dst
// and returns the extended slice. This is the emission half of C2, used by
// OutputChunk.Add (C4.4).
func (r *Record) WriteTo(dst []byte, enc *encoding.Encoding) []byte {
	dst = append(dst, '@')
	dst = append(dst, r.Header...)
	dst = append(dst, '\n')
	dst = append(dst, r.Sequence...)
	dst = append(dst, "\n+\n"...)
	dst = append(dst, enc.EncodeAll(r.Qualities)...)
	dst = append(dst, '\n')
	return dst
}

// Ntrimmed reports how many bases were removed from the 5' (left) and 3'
// (right) ends by a trim operation.
type Ntrimmed struct {
	Left  int
	Right int
}

func isQualityBase(seq, quals []byte, i int, trimNs bool, cutoff byte) bool {
	return quals[i] > cutoff && (!trimNs || seq[i] != 'N')
}

// TrimTrailingBases finds the largest r<=n such that position r-1 passes the
// quality test, trims from the first passing position (or 0 if preserve5p)
// up to r, and returns how many bases were removed from each end.
func (r *Record) TrimTrailingBases(trimNs bool, threshold int, preserve5p bool) Ntrimmed {
	cutoff := byte(threshold + 33)
	n := len(r.Sequence)

	rightExclusive := 0
	for i := n; i > 0; i-- {
		if isQualityBase(r.Sequence, r.Qualities, i-1, trimNs, cutoff) {
			rightExclusive = i
			break
		}
	}

	leftInclusive := 0
	if !preserve5p {
		for i := 0; i < rightExclusive; i++ {
			if isQualityBase(r.Sequence, r.Qualities, i, trimNs, cutoff) {
				leftInclusive = i
				break
			}
		}
	}

	return r.truncate(leftInclusive, rightExclusive)
}

func calculateWinlen(readLength int, windowSize float64) int {
	var winlen int
	if windowSize >= 1.0 {
		winlen = int(windowSize)
	} else {
		winlen = int(windowSize * float64(readLength))
	}
	if winlen == 0 || winlen > readLength {
		winlen = readLength
	}
	return winlen
}

// TrimWindowedBases implements the sliding-window quality trim described in
// spec.md §4.2: a running average over a window of `windowSize` bases (or a
// fraction of the read length, if windowSize < 1) determines the left edge
// where quality first becomes acceptable, and the right edge where it drops
// back down.
func (r *Record) TrimWindowedBases(trimNs bool, threshold int, windowSize float64, preserve5p bool) Ntrimmed {
	cutoff := byte(threshold + 33)
	n := len(r.Sequence)
	if n == 0 {
		return Ntrimmed{}
	}

	winlen := calculateWinlen(n, windowSize)
	runningSum := 0
	for i := 0; i < winlen; i++ {
		runningSum += int(r.Qualities[i])
	}

	const notFound = -1
	leftInclusive := notFound
	rightExclusive := notFound

	for offset := 0; offset+winlen <= n; offset++ {
		runningAvg := runningSum / winlen

		if leftInclusive == notFound && isQualityBase(r.Sequence, r.Qualities, offset, trimNs, cutoff) && runningAvg > int(cutoff) {
			leftInclusive = offset
		}

		if leftInclusive != notFound && (runningAvg <= int(cutoff) || offset+winlen == n) {
			rightExclusive = offset
			for rightExclusive < n && isQualityBase(r.Sequence, r.Qualities, rightExclusive, trimNs, cutoff) {
				rightExclusive++
			}
			break
		}

		runningSum -= int(r.Qualities[offset])
		if offset+winlen < n {
			runningSum += int(r.Qualities[offset+winlen])
		}
	}

	if leftInclusive == notFound {
		return r.truncate(n, n)
	}
	if preserve5p {
		leftInclusive = 0
	}

	return r.truncate(leftInclusive, rightExclusive)
}

func (r *Record) truncate(leftInclusive, rightExclusive int) Ntrimmed {
	n := len(r.Sequence)
	summary := Ntrimmed{Left: leftInclusive, Right: n - rightExclusive}

	if summary.Left != 0 || summary.Right != 0 {
		retained := rightExclusive - leftInclusive
		if retained < 0 {
			retained = 0
			rightExclusive = leftInclusive
		}
		r.Sequence = r.Sequence[leftInclusive:rightExclusive:rightExclusive]
		r.Qualities = r.Qualities[leftInclusive:rightExclusive:rightExclusive]
	}

	return summary
}

var complements = [16]byte{
	0: '-', 1: 'T', 2: '-', 3: 'G',
	4: 'A', 5: '-', 6: '-', 7: 'C',
	8: '-', 9: '-', 10: '-', 11: '-',
	12: '-', 13: '-', 14: 'N', 15: '-',
}

// ReverseComplement reverses both the sequence and quality strings in place,
// then replaces each base with its complement.
func (r *Record) ReverseComplement() {
	reverseBytes(r.Sequence)
	reverseBytes(r.Qualities)
	for i, b := range r.Sequence {
		r.Sequence[i] = complements[b&0xf]
	}
}

func reverseBytes(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

// mateIndicator reports the mate digit ('1', '2', or 0 if absent) found at
// the end of the read name (before the first space), normalizing the
// separator character to CanonicalMateSeparator in place.
func mateIndicator(header *string, mateSeparator byte) (name string, mate byte) {
	pos := strings.IndexByte(*header, ' ')
	if pos == -1 {
		pos = len(*header)
	}

	if pos >= 2 && (*header)[pos-2] == mateSeparator {
		digit := (*header)[pos-1]
		if digit == '1' || digit == '2' {
			b := []byte(*header)
			b[pos-2] = CanonicalMateSeparator
			*header = string(b)
			mate = digit
			pos -= 2
		}
	}

	name = (*header)[:pos]
	return name, mate
}

// ValidatePairedReads normalizes the mate separator in both records' headers
// to CanonicalMateSeparator (the mate digit stays in the header) and
// requires that: the names (up to the first space, without the mate
// indicator) match, and if either indicator is present, both are present
// and are exactly (1, 2).
func ValidatePairedReads(r1, r2 *Record, mateSeparator byte) error {
	if len(r1.Sequence) == 0 || len(r2.Sequence) == 0 {
		return ngserr.FastqErrorf("Pair contains empty reads")
	}

	name1, mate1 := mateIndicator(&r1.Header, mateSeparator)
	name2, mate2 := mateIndicator(&r2.Header, mateSeparator)

	if name1 != name2 {
		return ngserr.FastqErrorf("Pair contains reads with mismatching names: %q vs %q", name1, name2)
	}

	if mate1 != 0 || mate2 != 0 {
		if mate1 != '1' || mate2 != '2' {
			return ngserr.FastqErrorf("Inconsistent mate numbering; please verify data")
		}
	}

	return nil
}
