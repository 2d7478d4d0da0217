package steps

import (
	"github.com/loganrosen/adapterremoval/internal/ngserr"
	"github.com/loganrosen/adapterremoval/internal/pipeline"
	"github.com/loganrosen/adapterremoval/internal/scheduler"
)

// fastqCompressedChunk is the byte threshold at which the splitter emits an
// accumulated block downstream (spec.md §4.6, FASTQ_COMPRESSED_CHUNK).
const fastqCompressedChunk = 40 * 1024

// SplitStep buffers encoded FASTQ bytes across incoming chunks until
// fastqCompressedChunk has accumulated, then emits a single chunk carrying
// that block. It is ordered, since it must preserve byte order.
type SplitStep struct {
	nextID int
	buf    []byte
}

// NewSplit builds a splitter feeding the compressor/writer at nextID.
func NewSplit(nextID int) *SplitStep {
	return &SplitStep{nextID: nextID}
}

// Process implements scheduler.Step.
func (s *SplitStep) Process(c pipeline.Chunk) ([]scheduler.Routed, error) {
	oc, ok := c.(*pipeline.OutputChunk)
	if !ok {
		return nil, ngserr.InternalErrorf("split step received a non-output chunk")
	}

	if oc.EOF {
		var routed []scheduler.Routed
		if len(s.buf) > 0 {
			routed = append(routed, scheduler.Routed{StepID: s.nextID, Chunk: &pipeline.OutputChunk{Reads: s.buf}})
			s.buf = nil
		}
		routed = append(routed, scheduler.Routed{StepID: s.nextID, Chunk: &pipeline.OutputChunk{EOF: true}})
		return routed, nil
	}

	s.buf = append(s.buf, oc.Reads...)

	var routed []scheduler.Routed
	for len(s.buf) >= fastqCompressedChunk {
		block := make([]byte, fastqCompressedChunk)
		copy(block, s.buf[:fastqCompressedChunk])
		routed = append(routed, scheduler.Routed{StepID: s.nextID, Chunk: &pipeline.OutputChunk{Reads: block}})

		rest := make([]byte, len(s.buf)-fastqCompressedChunk)
		copy(rest, s.buf[fastqCompressedChunk:])
		s.buf = rest
	}
	return routed, nil
}

// Finalize is a no-op: any final partial block is flushed on the EOF chunk.
func (s *SplitStep) Finalize() error { return nil }
