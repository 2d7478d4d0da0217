package ioutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, dir, name string, contents []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, contents, 0o644))
	return path
}

func TestJoinedLineReaderRaw(t *testing.T) {
	dir := t.TempDir()
	p1 := writeTemp(t, dir, "a.fastq", []byte("line1\nline2\r\n"))
	p2 := writeTemp(t, dir, "b.fastq", []byte("line3\n"))

	r := NewJoinedLineReader([]string{p1, p2})
	defer r.Close()

	var got []string
	for {
		line, ok, err := r.GetLine()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, line)
	}

	require.Equal(t, []string{"line1", "line2", "line3"}, got)
}

func TestJoinedLineReaderGzip(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	gw := pgzip.NewWriter(&buf)
	_, err := gw.Write([]byte("@r1\nACGT\n+\n!!!!\n"))
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	path := writeTemp(t, dir, "c.fastq.gz", buf.Bytes())
	r := NewJoinedLineReader([]string{path})
	defer r.Close()

	line, ok, err := r.GetLine()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "@r1", line)
}

func TestJoinedLineReaderEOFOnce(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "d.fastq", []byte("only\n"))
	r := NewJoinedLineReader([]string{path})
	defer r.Close()

	_, ok, err := r.GetLine()
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = r.GetLine()
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = r.GetLine()
	require.NoError(t, err)
	require.False(t, ok)
}
