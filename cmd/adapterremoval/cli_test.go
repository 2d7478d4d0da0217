package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loganrosen/adapterremoval/internal/config"
)

func writeFastq(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestTrimSubcommandEndToEnd(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.fastq")
	writeFastq(t, in, "@r1\nACGT\n+\n!!!!\n")

	out := filepath.Join(dir, "sample")
	err := Execute([]string{
		"trim",
		"--input1", in,
		"--basename", out,
		"--minlength", "1",
		"--minquality", "-1",
	})
	require.NoError(t, err)

	content, err := os.ReadFile(out + ".pair1.truncated.fastq")
	require.NoError(t, err)
	require.Equal(t, "@r1\nACGT\n+\n!!!!\n", string(content))

	report, err := os.ReadFile(out + ".settings.json")
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(report, &doc))
	summary := doc["summary"].(map[string]any)
	require.EqualValues(t, 1, summary["reads"])
}

func TestDemultiplexSubcommandRoutesByBarcode(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.fastq")
	writeFastq(t, in, "@r1\nACGTAAAA\n+\nIIIIIIII\n@r2\nTGCAAAAA\n+\nIIIIIIII\n")

	barcodes := filepath.Join(dir, "barcodes.yaml")
	writeFastq(t, barcodes, "barcodes:\n  - name: sampleA\n    barcode1: ACGT\n  - name: sampleB\n    barcode1: TGCA\n")

	out := filepath.Join(dir, "run")
	err := Execute([]string{
		"demultiplex",
		"--input1", in,
		"--basename", out,
		"--barcode-list", barcodes,
		"--minlength", "1",
		"--minquality", "-1",
	})
	require.NoError(t, err)

	a, err := os.ReadFile(out + ".sampleA.pair1.truncated.fastq")
	require.NoError(t, err)
	require.Equal(t, "@r1\nAAAA\n+\nIIII\n", string(a))

	b, err := os.ReadFile(out + ".sampleB.pair1.truncated.fastq")
	require.NoError(t, err)
	require.Equal(t, "@r2\nAAAA\n+\nIIII\n", string(b))
}

func TestResolveRejectsMissingInput(t *testing.T) {
	o := &options{outputPrefix: "x", threads: 1, qualityBase: "phred33", mateSeparator: "/"}
	_, err := o.resolve(config.ModeTrim, "adapterremoval", "test", "adapterremoval trim")
	require.Error(t, err)
}

func TestResolveRejectsUnknownEncoding(t *testing.T) {
	o := &options{input1: "a.fastq", outputPrefix: "x", threads: 1, qualityBase: "bogus", mateSeparator: "/"}
	_, err := o.resolve(config.ModeTrim, "adapterremoval", "test", "adapterremoval trim")
	require.Error(t, err)
}

func TestCheckDuplicateOptionsDetectsRepeats(t *testing.T) {
	dups := checkDuplicateOptions([]string{"--threads", "2", "--threads=4", "--basename", "x"})
	require.Equal(t, []string{"threads"}, dups)
}

func TestWarnOrRejectDuplicatesStrict(t *testing.T) {
	err := warnOrRejectDuplicates([]string{"--threads", "1", "--threads", "2", "--strict"})
	require.Error(t, err)

	err = warnOrRejectDuplicates([]string{"--threads", "1", "--threads", "2"})
	require.NoError(t, err)
}
