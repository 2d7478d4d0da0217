// Package outputmap implements the output file map (C8): the sink-side
// policy that decides, for one sample, which physical path and writer slot
// each read type is delivered to.
package outputmap

// ReadType names one of the categories of output FASTQ records a reads
// processor can emit, mirroring read_type in the original implementation.
type ReadType int

const (
	Mate1 ReadType = iota
	Mate2
	Singleton
	Collapsed
	Discarded
	numReadTypes
)

func (t ReadType) String() string {
	switch t {
	case Mate1:
		return "mate1"
	case Mate2:
		return "mate2"
	case Singleton:
		return "singleton"
	case Collapsed:
		return "collapsed"
	case Discarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// FilenameMap maps each ReadType relevant to one sample to a writer slot
// index and that slot's physical output path. Multiple read types may share
// a slot: interleaved output folds Mate1 and Mate2 onto the same path.
type FilenameMap struct {
	paths []string
	slots [numReadTypes]int // -1 if that type has no destination for this sample
}

// Options controls how a FilenameMap lays out paths for one sample.
type Options struct {
	// Basename is the path prefix (including sample name, if any) that
	// every suffix below is appended to.
	Basename string
	// Suffix is appended after the read-type tag, e.g. ".fastq" or
	// ".fastq.gz"; the compressor step chooses the right one.
	Suffix string
	// Interleaved folds Mate1 and Mate2 onto a single slot/path.
	Interleaved bool
	// KeepDiscarded controls whether a Discarded slot is allocated at all;
	// when false, discarded reads are simply dropped (no slot, no file).
	KeepDiscarded bool
	// MergePE indicates the run collapses overlapping pairs, which makes a
	// Collapsed slot meaningful.
	MergePE bool
	// PairedEnd indicates mate2/singleton slots are relevant at all.
	PairedEnd bool
}

// New builds a FilenameMap for one sample from opts. Slot indices are dense
// and start at 0; paths[i] is the path for slot i.
func New(opts Options) *FilenameMap {
	m := &FilenameMap{}
	for i := range m.slots {
		m.slots[i] = -1
	}

	addSlot := func(path string) int {
		slot := len(m.paths)
		m.paths = append(m.paths, path)
		return slot
	}

	if opts.Interleaved && opts.PairedEnd {
		slot := addSlot(opts.Basename + ".pair" + opts.Suffix)
		m.slots[Mate1] = slot
		m.slots[Mate2] = slot
	} else {
		m.slots[Mate1] = addSlot(opts.Basename + ".pair1.truncated" + opts.Suffix)
		if opts.PairedEnd {
			m.slots[Mate2] = addSlot(opts.Basename + ".pair2.truncated" + opts.Suffix)
		}
	}

	if opts.PairedEnd {
		m.slots[Singleton] = addSlot(opts.Basename + ".singleton.truncated" + opts.Suffix)
	}
	if opts.PairedEnd && opts.MergePE {
		m.slots[Collapsed] = addSlot(opts.Basename + ".collapsed" + opts.Suffix)
	}
	if opts.KeepDiscarded {
		m.slots[Discarded] = addSlot(opts.Basename + ".discarded" + opts.Suffix)
	}

	return m
}

// SlotFor returns the writer slot for rt, and false if this sample has no
// destination for that read type (e.g. Collapsed when merging is disabled).
func (m *FilenameMap) SlotFor(rt ReadType) (int, bool) {
	slot := m.slots[rt]
	return slot, slot >= 0
}

// NumSlots reports how many distinct writer slots this map allocated.
func (m *FilenameMap) NumSlots() int { return len(m.paths) }

// PathFor returns the physical output path for the given slot index.
func (m *FilenameMap) PathFor(slot int) string { return m.paths[slot] }
