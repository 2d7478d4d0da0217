package pipeline

// Step-id scheme (spec.md §3). The id space is partitioned so that
// post-demultiplex substeps (one trim/split/compress/write cluster per
// sample) can be registered without colliding with the fixed low ids used
// for reading, demultiplexing and unidentified-read output.
const (
	ReadFastq   = 0
	Demultiplex = 1
	Unident1    = 2
	Unident2    = 5

	// AnalysesOffset is the per-sample id stride: sample nth occupies the
	// id range [(nth+1)*AnalysesOffset, (nth+2)*AnalysesOffset).
	AnalysesOffset = 16

	subOffsetTrim       = 0
	subOffsetWriteMate1 = 1
	subOffsetWriteMate2 = 4
	subOffsetSingleton  = 7
	subOffsetCollapsed  = 10
	subOffsetDiscarded  = 13
)

// SampleBase returns the id-range base for the nth (0-indexed) sample.
func SampleBase(nth int) int {
	return (nth + 1) * AnalysesOffset
}

// TrimStepID returns the id of the reads-processor (trim) step for sample
// nth.
func TrimStepID(nth int) int {
	return SampleBase(nth) + subOffsetTrim
}

// WriterID returns the id of the final write step for the given write
// sub-offset (one of the subOffset* constants, or Unident1/Unident2 at the
// top level).
func WriterID(writeSubOffset int) int {
	return writeSubOffset
}

// SplitID returns the id of the splitter step inserted in front of the
// writer at writeSubOffset.
func SplitID(writeSubOffset int) int {
	return writeSubOffset + 1
}

// CompressorID returns the id of the compressor step inserted between the
// splitter and the writer at writeSubOffset.
func CompressorID(writeSubOffset int) int {
	return writeSubOffset + 2
}

// Per-sample write-cluster base offsets (added to SampleBase(nth)).
const (
	Mate1Offset     = subOffsetWriteMate1
	Mate2Offset     = subOffsetWriteMate2
	SingletonOffset = subOffsetSingleton
	CollapsedOffset = subOffsetCollapsed
	DiscardedOffset = subOffsetDiscarded
)
