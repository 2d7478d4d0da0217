package steps

import (
	"compress/bzip2"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loganrosen/adapterremoval/internal/adapter"
	"github.com/loganrosen/adapterremoval/internal/config"
	"github.com/loganrosen/adapterremoval/internal/encoding"
	"github.com/loganrosen/adapterremoval/internal/fastq"
	"github.com/loganrosen/adapterremoval/internal/outputmap"
	"github.com/loganrosen/adapterremoval/internal/pipeline"
	"github.com/loganrosen/adapterremoval/internal/scheduler"
	"github.com/loganrosen/adapterremoval/internal/stats"
)

func TestSplitStepBuffersUntilThreshold(t *testing.T) {
	s := NewSplit(1)

	small := make([]byte, fastqCompressedChunk-1)
	routed, err := s.Process(&pipeline.OutputChunk{Reads: small})
	require.NoError(t, err)
	require.Empty(t, routed)

	routed, err = s.Process(&pipeline.OutputChunk{Reads: []byte{'X', 'Y'}})
	require.NoError(t, err)
	require.Len(t, routed, 1)
	oc := routed[0].Chunk.(*pipeline.OutputChunk)
	require.Len(t, oc.Reads, fastqCompressedChunk)

	routed, err = s.Process(&pipeline.OutputChunk{EOF: true})
	require.NoError(t, err)
	require.Len(t, routed, 2) // leftover byte + EOF
	require.True(t, routed[1].Chunk.IsEOF())
}

func TestWriteStepCreatesNothingWithoutData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "out.fastq")
	w := NewWrite(path)

	_, err := w.Process(&pipeline.OutputChunk{EOF: true})
	require.NoError(t, err)

	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))
}

func TestWriteStepWritesAndCreatesParents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "out.fastq")
	w := NewWrite(path)

	_, err := w.Process(&pipeline.OutputChunk{Reads: []byte("@r\nACGT\n+\n!!!!\n")})
	require.NoError(t, err)
	_, err = w.Process(&pipeline.OutputChunk{EOF: true})
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "@r\nACGT\n+\n!!!!\n", string(content))
}

func TestNoneCompressorPassesThrough(t *testing.T) {
	c := NewNoneCompressor(1)
	routed, err := c.Process(&pipeline.OutputChunk{Reads: []byte("abc")})
	require.NoError(t, err)
	require.Len(t, routed, 1)
	oc := routed[0].Chunk.(*pipeline.OutputChunk)
	require.Equal(t, [][]byte{[]byte("abc")}, oc.Buffers)
}

func TestSEProcessorPassthroughNoTrimNeeded(t *testing.T) {
	fm := outputmap.New(outputmap.Options{Basename: "sample", Suffix: ".fastq"})
	pool := stats.NewPool(1)
	settings := TrimSettings{
		Adapters:          adapter.Set{},
		MinAdapterOverlap: 5,
		QualityThreshold:  -1,
		MinLength:         1,
		MaxNs:             100,
	}
	p := NewSEProcessor(0, settings, encoding.Phred33, fm, pool)

	rec := fastq.Record{Header: "r1", Sequence: []byte("ACGT"), Qualities: []byte{33, 33, 33, 33}}
	chunk := &pipeline.ReadChunk{Reads1: []fastq.Record{rec}}

	routed, err := p.Process(chunk)
	require.NoError(t, err)
	require.Len(t, routed, 1)

	oc := routed[0].Chunk.(*pipeline.OutputChunk)
	require.Equal(t, "@r1\nACGT\n+\n!!!!\n", string(oc.Reads))
}

func TestDemultiplexerAssignsBySampleBarcode(t *testing.T) {
	barcodes := []config.Barcode{
		{Name: "A", Barcode1: []byte("ACGT")},
		{Name: "B", Barcode1: []byte("TGCA")},
	}
	pool := stats.NewPool(1)
	d := NewDemultiplexer(barcodes, 0, false, encoding.Phred33, 100, 101, pool)

	mk := func(header, seq string) fastq.Record {
		quals := make([]byte, len(seq))
		for i := range quals {
			quals[i] = 33
		}
		return fastq.Record{Header: header, Sequence: []byte(seq), Qualities: quals}
	}

	chunk := &pipeline.ReadChunk{Reads1: []fastq.Record{
		mk("r1", "ACGTAAAA"),
		mk("r2", "TGCAAAAA"),
		mk("r3", "NNNNAAAA"),
	}}

	routed, err := d.Process(chunk)
	require.NoError(t, err)

	var sawSampleA, sawSampleB, sawUnident bool
	for _, r := range routed {
		switch r.StepID {
		case pipeline.TrimStepID(0):
			sawSampleA = true
			rc := r.Chunk.(*pipeline.ReadChunk)
			require.Equal(t, "AAAA", string(rc.Reads1[0].Sequence))
		case pipeline.TrimStepID(1):
			sawSampleB = true
		case 100:
			sawUnident = true
		}
	}
	require.True(t, sawSampleA)
	require.True(t, sawSampleB)
	require.True(t, sawUnident)
}

// TestDemultiplexerAcceptsWithinMismatchBudget exercises the
// barcode-mismatch budget (SPEC_FULL.md §8): a read whose barcode has one
// substitution relative to sample A's barcode must still be assigned to
// sample A when --barcode-mismatches allows it, and rejected to unident
// when it does not.
func TestDemultiplexerAcceptsWithinMismatchBudget(t *testing.T) {
	barcodes := []config.Barcode{
		{Name: "A", Barcode1: []byte("ACGT")},
		{Name: "B", Barcode1: []byte("TGCA")},
	}
	pool := stats.NewPool(1)

	mk := func(header, seq string) fastq.Record {
		quals := make([]byte, len(seq))
		for i := range quals {
			quals[i] = 33
		}
		return fastq.Record{Header: header, Sequence: []byte(seq), Qualities: quals}
	}

	// "ACCT" differs from sample A's "ACGT" by exactly one substitution
	// (position 2: G -> C).
	oneOff := mk("r1", "ACCTAAAA")

	exact := NewDemultiplexer(barcodes, 0, false, encoding.Phred33, 100, 101, pool)
	routed, err := exact.Process(&pipeline.ReadChunk{Reads1: []fastq.Record{oneOff}})
	require.NoError(t, err)
	var rejectedToUnident bool
	for _, r := range routed {
		if r.StepID == 100 {
			rejectedToUnident = true
		}
	}
	require.True(t, rejectedToUnident, "with barcodeMismatches=0 a one-substitution barcode must miss")

	lenient := NewDemultiplexer(barcodes, 1, false, encoding.Phred33, 100, 101, pool)
	routed, err = lenient.Process(&pipeline.ReadChunk{Reads1: []fastq.Record{oneOff}})
	require.NoError(t, err)
	var matchedSampleA bool
	for _, r := range routed {
		if r.StepID == pipeline.TrimStepID(0) {
			matchedSampleA = true
			rc := r.Chunk.(*pipeline.ReadChunk)
			require.Equal(t, "AAAA", string(rc.Reads1[0].Sequence))
		}
	}
	require.True(t, matchedSampleA, "with barcodeMismatches=1 a one-substitution barcode must be accepted")
}

// TestBzip2CompressorRoundTrips feeds bytes through the pipeline's bzip2
// encoder (dsnet/compress/bzip2, the only read-write bzip2 implementation in
// the pack) and decodes the result with the standard library's decode-only
// compress/bzip2, verifying the compressed stream is valid bzip2 independent
// of the encoder's own decode path (SPEC_FULL.md §8 scenario 7).
func TestBzip2CompressorRoundTrips(t *testing.T) {
	c, err := NewBzip2Compressor(1)
	require.NoError(t, err)

	const payload = "@r1\nACGTACGTACGT\n+\n!!!!!!!!!!!!\n@r2\nTTTTGGGGCCCC\n+\n!!!!!!!!!!!!\n"

	var compressed []byte
	routed, err := c.Process(&pipeline.OutputChunk{Reads: []byte(payload)})
	require.NoError(t, err)
	for _, r := range routed {
		oc := r.Chunk.(*pipeline.OutputChunk)
		for _, b := range oc.Buffers {
			compressed = append(compressed, b...)
		}
	}

	routed, err = c.Process(&pipeline.OutputChunk{EOF: true})
	require.NoError(t, err)
	var sawEOF bool
	for _, r := range routed {
		oc := r.Chunk.(*pipeline.OutputChunk)
		for _, b := range oc.Buffers {
			compressed = append(compressed, b...)
		}
		if oc.IsEOF() {
			sawEOF = true
		}
	}
	require.True(t, sawEOF)
	require.NotEmpty(t, compressed)

	zr := bzip2.NewReader(strings.NewReader(string(compressed)))
	decodedBytes, err := io.ReadAll(zr)
	require.NoError(t, err)
	require.Equal(t, payload, string(decodedBytes))
}

// slowSinkStep is a fake downstream step that reports the scheduler's
// current in-flight chunk count before sleeping, so a test can observe
// whether the reader's back-pressure bound is being honored.
type slowSinkStep struct {
	onProcess func()
}

func (s *slowSinkStep) Process(chunk pipeline.Chunk) ([]scheduler.Routed, error) {
	if !chunk.IsEOF() {
		s.onProcess()
	}
	return nil, nil
}
func (s *slowSinkStep) Finalize() error { return nil }

// TestReadStepAppliesBackPressure drives a real ReadStep against a slow fake
// downstream step and asserts the observed in-flight chunk count never
// drifts far past the configured bound (SPEC_FULL.md §8 scenario 9;
// spec.md §5's "4 * max_threads" in-flight policy).
func TestReadStepAppliesBackPressure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.fastq")

	// Enough chunks that, left unbounded, a multi-worker pool would let the
	// reader race far ahead of the slow consumer; if back-pressure works,
	// the in-flight count should never approach this.
	const chunksWorth = 50
	var sb strings.Builder
	for i := 0; i < chunksWorth*fastqChunkSize; i++ {
		fmt.Fprintf(&sb, "@r%d\nACGT\n+\n!!!!\n", i)
	}
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))

	sch := scheduler.New()
	const maxInFlight = 4
	const workers = 4

	var mu sync.Mutex
	peak := 0
	slow := &slowSinkStep{
		onProcess: func() {
			n := sch.InFlight()
			mu.Lock()
			if n > peak {
				peak = n
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
		},
	}
	sch.Register(1, "slow", slow, false, 1)

	reader := NewSEReader(0, 1, []string{path}, encoding.Phred33, nil, 0, sch.InFlight, maxInFlight)
	sch.Register(0, "read", reader, false, 0)
	sch.Connect(0, 1)

	ok := sch.Run(workers, 0)
	require.True(t, ok)
	require.NoError(t, sch.Err())

	// With `workers` concurrent workers racing ahead of one slow consumer,
	// an unbounded reader could have built a backlog approaching
	// chunksWorth; the back-pressure gate should keep it close to
	// maxInFlight plus the handful of chunks workers can have mid-flight at
	// once.
	require.Less(t, peak, chunksWorth)
	require.LessOrEqual(t, peak, maxInFlight+workers)
}
