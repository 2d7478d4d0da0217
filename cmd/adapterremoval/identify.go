package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loganrosen/adapterremoval/internal/config"
	"github.com/loganrosen/adapterremoval/internal/fastq"
	"github.com/loganrosen/adapterremoval/internal/ngserr"
)

// maxIdentifiedAdapterLen bounds how many bases of consensus identify-
// adapters accumulates per mate; real Illumina adapters rarely exceed this.
const maxIdentifiedAdapterLen = 50

// adapterConsensus accumulates per-position base votes for one mate's
// inferred adapter read-through, the same per-position-count-then-argmax
// shape stats.PerPosition uses for quality/base curves.
type adapterConsensus struct {
	counts [maxIdentifiedAdapterLen][5]int // A,C,G,T,N
	pairs  int
}

func baseVote(b byte) int {
	switch b {
	case 'A':
		return 0
	case 'C':
		return 1
	case 'G':
		return 2
	case 'T':
		return 3
	default:
		return 4
	}
}

func (c *adapterConsensus) observe(tail []byte) {
	for i, b := range tail {
		if i >= maxIdentifiedAdapterLen {
			break
		}
		c.counts[i][baseVote(b)]++
	}
}

var consensusBase = [5]byte{'A', 'C', 'G', 'T', 'N'}

// consensus renders the majority base at each position, stopping at the
// first position with no observations at all.
func (c *adapterConsensus) consensus() []byte {
	out := make([]byte, 0, maxIdentifiedAdapterLen)
	for i := 0; i < maxIdentifiedAdapterLen; i++ {
		total := 0
		best, bestN := 4, -1
		for base, n := range c.counts[i] {
			total += n
			if n > bestN {
				best, bestN = base, n
			}
		}
		if total == 0 {
			break
		}
		out = append(out, consensusBase[best])
	}
	return out
}

// findReadThroughOverlap estimates the fragment insert size by testing
// candidate overlaps from the longest down to minOverlap: hypothesis
// "insert == overlap" holds when the first `overlap` bases of mate1 (the
// genomic prefix) match the last `overlap` bases of mate2's reverse
// complement (the genomic suffix of the rc'd mate, per the derivation in
// DESIGN.md). This is the short-fragment/read-through counterpart to
// adapter.FindOverlapPE's full-pair merge alignment, not a replacement
// for it.
func findReadThroughOverlap(mate1, mate2RC []byte, minOverlap int, maxMismatchRate float64) (overlap int, found bool) {
	maxLen := len(mate1)
	if len(mate2RC) < maxLen {
		maxLen = len(mate2RC)
	}
	for ov := maxLen; ov >= minOverlap; ov-- {
		a := mate1[:ov]
		b := mate2RC[len(mate2RC)-ov:]
		mm := 0
		for i := range a {
			if a[i] != b[i] {
				mm++
			}
		}
		if float64(mm)/float64(ov) <= maxMismatchRate {
			return ov, true
		}
	}
	return 0, false
}

// newIdentifyAdaptersCmd implements "identify-adapters": it infers the
// adapter1/adapter2 sequences actually present in a paired-end run from
// short-insert read-through, rather than requiring them up front.
func newIdentifyAdaptersCmd(commandLine string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identify-adapters",
		Short: "Infer adapter1/adapter2 sequences from paired-end read-through",
	}
	o := registerShared(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := o.resolve(config.ModeIdentifyAdapters, programName, Version, commandLine)
		if err != nil {
			return err
		}
		return runIdentifyAdapters(cfg)
	}

	return cmd
}

func runIdentifyAdapters(cfg *config.Config) error {
	var paths2 []string
	if cfg.Interleaved {
		paths2 = nil // the single reader below handles interleaved mode itself
	} else {
		paths2 = cfg.Input2
	}

	r1 := fastq.NewReader(cfg.Input1, cfg.Encoding)
	defer r1.Close()

	var r2 *fastq.Reader
	if !cfg.Interleaved {
		r2 = fastq.NewReader(paths2, cfg.Encoding)
		defer r2.Close()
	}

	const minOverlap = 11
	const maxMismatchRate = 0.2

	var c1, c2 adapterConsensus
	var pairsSeen, pairsWithAdapter uint64

	var rec1, rec2 fastq.Record
	for {
		ok1, err := r1.Read(&rec1)
		if err != nil {
			return err
		}
		if cfg.Interleaved {
			if !ok1 {
				break
			}
			ok2, err := r1.Read(&rec2)
			if err != nil {
				return err
			}
			if !ok2 {
				return ngserr.FastqErrorf("interleaved input ended on an odd number of records")
			}
		} else {
			ok2, err := r2.Read(&rec2)
			if err != nil {
				return err
			}
			if ok1 != ok2 {
				return ngserr.FastqErrorf("mate files have different numbers of records")
			}
			if !ok1 {
				break
			}
		}

		pairsSeen++
		mate2RC := rec2.Clone()
		mate2RC.ReverseComplement()

		overlap, found := findReadThroughOverlap(rec1.Sequence, mate2RC.Sequence, minOverlap, maxMismatchRate)
		if !found {
			continue
		}
		if overlap < len(rec1.Sequence) {
			c1.observe(rec1.Sequence[overlap:])
			pairsWithAdapter++
		}
		if overlap < len(rec2.Sequence) {
			c2.observe(rec2.Sequence[overlap:])
		}
	}

	a1 := c1.consensus()
	a2 := c2.consensus()

	fmt.Printf("Pairs examined:        %d\n", pairsSeen)
	fmt.Printf("Pairs with read-through: %d\n", pairsWithAdapter)
	fmt.Printf("adapter1: %s\n", string(a1))
	fmt.Printf("adapter2: %s\n", string(a2))

	if cfg.OutputPrefix != "" {
		path := cfg.OutputPrefix + ".adapters.txt"
		content := fmt.Sprintf("adapter1: %s\nadapter2: %s\n", a1, a2)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return ngserr.IOErrorf("failed to write %s: %v", path, err)
		}
		fmt.Printf("wrote %s\n", path)
	}
	return nil
}
