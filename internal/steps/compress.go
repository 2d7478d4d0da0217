package steps

import (
	"bytes"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/pgzip"

	"github.com/loganrosen/adapterremoval/internal/ngserr"
	"github.com/loganrosen/adapterremoval/internal/pipeline"
	"github.com/loganrosen/adapterremoval/internal/scheduler"
)

// encoder is the minimal streaming contract a compression backend needs to
// satisfy to sit behind CompressStep: accept bytes, return any output
// produced so far, and flush/close to produce the trailer.
type encoder interface {
	Write(p []byte) ([]byte, error)
	Flush() ([]byte, error)
}

// CompressStep feeds chunk bytes into a streaming encoder and forwards
// whatever compressed output the encoder has produced so far, flushing on
// EOF. It is ordered: compressor state is mutated sequentially.
type CompressStep struct {
	nextID int
	enc    encoder
}

func newCompressStep(nextID int, enc encoder) *CompressStep {
	return &CompressStep{nextID: nextID, enc: enc}
}

// NewNoneCompressor builds a pass-through "compressor" used when output
// compression is disabled, keeping the split -> compress -> write chain
// uniform regardless of configuration.
func NewNoneCompressor(nextID int) *CompressStep {
	return newCompressStep(nextID, &noneEncoder{})
}

// NewGzipCompressor builds a streaming gzip encoder at the given level.
func NewGzipCompressor(nextID int, level int) (*CompressStep, error) {
	enc, err := newGzipEncoder(level)
	if err != nil {
		return nil, err
	}
	return newCompressStep(nextID, enc), nil
}

// NewBzip2Compressor builds a streaming bzip2 encoder.
func NewBzip2Compressor(nextID int) (*CompressStep, error) {
	enc, err := newBzip2Encoder()
	if err != nil {
		return nil, err
	}
	return newCompressStep(nextID, enc), nil
}

// Process implements scheduler.Step.
func (s *CompressStep) Process(c pipeline.Chunk) ([]scheduler.Routed, error) {
	oc, ok := c.(*pipeline.OutputChunk)
	if !ok {
		return nil, ngserr.InternalErrorf("compressor received a non-output chunk")
	}

	if oc.EOF {
		final, err := s.enc.Flush()
		if err != nil {
			return nil, err
		}
		var routed []scheduler.Routed
		if len(final) > 0 {
			routed = append(routed, scheduler.Routed{StepID: s.nextID, Chunk: &pipeline.OutputChunk{Buffers: [][]byte{final}}})
		}
		routed = append(routed, scheduler.Routed{StepID: s.nextID, Chunk: &pipeline.OutputChunk{EOF: true}})
		return routed, nil
	}

	out, err := s.enc.Write(oc.Reads)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return []scheduler.Routed{{StepID: s.nextID, Chunk: &pipeline.OutputChunk{Buffers: [][]byte{out}}}}, nil
}

// Finalize is a no-op: the encoder is flushed on the EOF chunk.
func (s *CompressStep) Finalize() error { return nil }

// noneEncoder passes bytes through unmodified.
type noneEncoder struct{}

func (noneEncoder) Write(p []byte) ([]byte, error) {
	out := make([]byte, len(p))
	copy(out, p)
	return out, nil
}
func (noneEncoder) Flush() ([]byte, error) { return nil, nil }

// gzipEncoder wraps pgzip.Writer (the teacher's compressed-output library)
// as a streaming encoder.
type gzipEncoder struct {
	buf *bytes.Buffer
	gw  *pgzip.Writer
}

func newGzipEncoder(level int) (*gzipEncoder, error) {
	buf := &bytes.Buffer{}
	gw, err := pgzip.NewWriterLevel(buf, level)
	if err != nil {
		return nil, ngserr.Wrap(ngserr.GzipErrorf("failed to initialize gzip encoder"), err)
	}
	return &gzipEncoder{buf: buf, gw: gw}, nil
}

func (e *gzipEncoder) Write(p []byte) ([]byte, error) {
	if _, err := e.gw.Write(p); err != nil {
		return nil, ngserr.Wrap(ngserr.GzipErrorf("gzip encode failed"), err)
	}
	return e.drain(), nil
}

func (e *gzipEncoder) Flush() ([]byte, error) {
	if err := e.gw.Close(); err != nil {
		return nil, ngserr.Wrap(ngserr.GzipErrorf("gzip finalize failed"), err)
	}
	return e.drain(), nil
}

func (e *gzipEncoder) drain() []byte {
	if e.buf.Len() == 0 {
		return nil
	}
	out := make([]byte, e.buf.Len())
	copy(out, e.buf.Bytes())
	e.buf.Reset()
	return out
}

// bzip2Encoder wraps dsnet/compress/bzip2.Writer (the pack's bzip2 encoder;
// the standard library's compress/bzip2 is decode-only).
type bzip2Encoder struct {
	buf *bytes.Buffer
	bw  *bzip2.Writer
}

func newBzip2Encoder() (*bzip2Encoder, error) {
	buf := &bytes.Buffer{}
	bw, err := bzip2.NewWriter(buf, nil)
	if err != nil {
		return nil, ngserr.Wrap(ngserr.Bzip2Errorf("failed to initialize bzip2 encoder"), err)
	}
	return &bzip2Encoder{buf: buf, bw: bw}, nil
}

func (e *bzip2Encoder) Write(p []byte) ([]byte, error) {
	if _, err := e.bw.Write(p); err != nil {
		return nil, ngserr.Wrap(ngserr.Bzip2Errorf("bzip2 encode failed"), err)
	}
	return e.drain(), nil
}

func (e *bzip2Encoder) Flush() ([]byte, error) {
	if err := e.bw.Close(); err != nil {
		return nil, ngserr.Wrap(ngserr.Bzip2Errorf("bzip2 finalize failed"), err)
	}
	return e.drain(), nil
}

func (e *bzip2Encoder) drain() []byte {
	if e.buf.Len() == 0 {
		return nil
	}
	out := make([]byte, e.buf.Len())
	copy(out, e.buf.Bytes())
	e.buf.Reset()
	return out
}
