// Package pipeline defines the typed chunks exchanged between scheduler
// steps (C5) and the step-id numbering scheme that lays out the processing
// graph (spec.md §3).
package pipeline

import (
	"github.com/loganrosen/adapterremoval/internal/encoding"
	"github.com/loganrosen/adapterremoval/internal/fastq"
)

// Chunk is the sum type flowing through the scheduler: either a ReadChunk
// (parsed records, upstream of processing) or an OutputChunk (encoded bytes
// downstream of processing). A step that receives the wrong variant for its
// role is an InternalError, not a recoverable condition.
type Chunk interface {
	isChunk()
	IsEOF() bool
	// Seq returns the chunk's arrival sequence number, assigned once by the
	// reader (spec.md §4.5: "incoming chunks carry the producer's
	// arrival_seq") and propagated unchanged by every step that derives
	// output chunks from it. It is descriptive tracing metadata, not the
	// scheduler's ordering mechanism: the scheduler's own per-entry admit/
	// release sequencing (internal/scheduler) is what actually guarantees
	// delivery order and works independently of this field.
	Seq() uint64
}

// ReadChunk carries parsed FASTQ records between the reader, demultiplexer
// and processor steps. In PE mode len(Reads1) == len(Reads2), with element i
// of each forming a pair.
type ReadChunk struct {
	EOF    bool
	Reads1 []fastq.Record
	Reads2 []fastq.Record
	// ArrivalSeq is the reader-assigned arrival sequence this chunk (or, for
	// a derived chunk, the ReadChunk it descended from) carried.
	ArrivalSeq uint64
}

func (c *ReadChunk) isChunk() {}

// IsEOF reports whether this chunk is the terminal sentinel for its stream.
func (c *ReadChunk) IsEOF() bool { return c.EOF }

// Seq returns the chunk's arrival sequence number; see Chunk.Seq.
func (c *ReadChunk) Seq() uint64 { return c.ArrivalSeq }

// OutputChunk carries encoded-but-not-yet-compressed bytes, and/or
// compressed byte fragments ready for write, between the processor,
// splitter, compressor and writer steps.
type OutputChunk struct {
	EOF bool
	// Count is the number of source reads represented by this chunk; it can
	// exceed len of any record slice when records have been merged.
	Count int
	// Reads holds encoded FASTQ bytes awaiting compression or direct write.
	Reads []byte
	// Buffers holds post-compression payload fragments ready for write.
	Buffers [][]byte
	// ArrivalSeq propagates the originating ReadChunk's arrival sequence;
	// see Chunk.Seq. The splitter batches many input chunks into fewer,
	// larger output chunks, so this field is no longer dense once a chunk
	// has passed through it.
	ArrivalSeq uint64
}

func (c *OutputChunk) isChunk() {}

// IsEOF reports whether this chunk is the terminal sentinel for its stream.
func (c *OutputChunk) IsEOF() bool { return c.EOF }

// Seq returns the chunk's arrival sequence number; see Chunk.Seq.
func (c *OutputChunk) Seq() uint64 { return c.ArrivalSeq }

// Add appends one encoded record to the chunk's byte buffer, accounting for
// `count` source reads (C4.4); count is 1 for an ordinary read and 2 for a
// read produced by merging a mate pair, since a merged read represents two
// source records in the input statistics.
func (c *OutputChunk) Add(rec *fastq.Record, enc *encoding.Encoding, count int) {
	c.Reads = rec.WriteTo(c.Reads, enc)
	c.Count += count
}
