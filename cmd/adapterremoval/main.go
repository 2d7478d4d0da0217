// Command adapterremoval trims adapters and low-quality bases from FASTQ
// reads, optionally demultiplexing by barcode and merging overlapping mate
// pairs, per SPEC_FULL.md.
package main

import (
	"fmt"
	"os"

	"github.com/loganrosen/adapterremoval/internal/ngserr"
)

// version is overridden via -ldflags at release build time.
var version = "dev"

func main() {
	Version = version

	if err := Execute(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps an error's ngserr.Kind to the exit codes in spec.md §6:
// 1 for pipeline/IO errors, any other non-zero for CLI validation failures.
func exitCodeFor(err error) int {
	if nerr, ok := err.(*ngserr.Error); ok && nerr.Kind == ngserr.KindConfig {
		return 2
	}
	return 1
}
