// Package ioutil implements the line reader (C1): a byte-stream reader that
// transparently decodes raw, gzip or bzip2 input and yields logical lines,
// joining a list of input files into a single logical stream.
package ioutil

import (
	"bufio"
	"compress/bzip2"
	"io"
	"os"

	"github.com/klauspost/pgzip"

	"github.com/loganrosen/adapterremoval/internal/ngserr"
)

var (
	gzipMagic  = []byte{0x1F, 0x8B}
	bzip2Magic = []byte{0x42, 0x5A, 0x68}
)

// fileReader opens a single path, detects its compression from its magic
// bytes, and exposes it as a line-oriented reader.
type fileReader struct {
	path   string
	file   *os.File
	raw    *bufio.Reader
	lines  *bufio.Reader
	lineNo int
}

func openFileReader(path string) (*fileReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ngserr.Wrap(ngserr.IOErrorf("failed to open input file"), err)
	}

	raw := bufio.NewReaderSize(f, 64*1024)
	prefix, _ := raw.Peek(4)

	var decoded io.Reader
	switch {
	case hasPrefix(prefix, gzipMagic):
		gr, err := pgzip.NewReader(raw)
		if err != nil {
			f.Close()
			return nil, ngserr.Wrap(ngserr.GzipErrorf("invalid gzip stream in %s", path), err)
		}
		decoded = gr
	case hasPrefix(prefix, bzip2Magic):
		decoded = bzip2.NewReader(raw)
	default:
		decoded = raw
	}

	return &fileReader{
		path:  path,
		file:  f,
		raw:   raw,
		lines: bufio.NewReaderSize(decoded, 64*1024),
	}, nil
}

func hasPrefix(buf, prefix []byte) bool {
	if len(buf) < len(prefix) {
		return false
	}
	for i, b := range prefix {
		if buf[i] != b {
			return false
		}
	}
	return true
}

// getline reads one line (sans trailing \n and optional \r). It returns
// false exactly once, at end of stream.
func (r *fileReader) getline() (string, bool, error) {
	line, err := r.lines.ReadString('\n')
	if len(line) == 0 && err != nil {
		if err == io.EOF {
			return "", false, nil
		}
		return "", false, ngserr.Wrap(ngserr.IOErrorf("error reading %s", r.path), err)
	}
	r.lineNo++

	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}

	if err != nil && err != io.EOF {
		return line, true, ngserr.Wrap(ngserr.IOErrorf("error reading %s", r.path), err)
	}
	return line, true, nil
}

func (r *fileReader) Close() error {
	return r.file.Close()
}

// JoinedLineReader concatenates a list of filenames as if they were a single
// logical stream, tracking the currently open path and a 1-based line
// number within that path for diagnostics.
type JoinedLineReader struct {
	paths   []string
	idx     int
	current *fileReader
}

// NewJoinedLineReader opens the first file in paths lazily on first read.
func NewJoinedLineReader(paths []string) *JoinedLineReader {
	return &JoinedLineReader{paths: paths}
}

// Path reports the path of the file currently being read, or "" if none is
// open yet.
func (j *JoinedLineReader) Path() string {
	if j.current == nil {
		return ""
	}
	return j.current.path
}

// Line reports the 1-based line number within the currently open file.
func (j *JoinedLineReader) Line() int {
	if j.current == nil {
		return 0
	}
	return j.current.lineNo
}

// GetLine returns the next logical line across the joined file list. It
// returns ok == false exactly once, after the last file is exhausted.
func (j *JoinedLineReader) GetLine() (line string, ok bool, err error) {
	for {
		if j.current == nil {
			if j.idx >= len(j.paths) {
				return "", false, nil
			}
			j.current, err = openFileReader(j.paths[j.idx])
			j.idx++
			if err != nil {
				return "", false, err
			}
		}

		line, ok, err = j.current.getline()
		if err != nil {
			return "", false, err
		}
		if ok {
			return line, true, nil
		}

		j.current.Close()
		j.current = nil
		// Exhausted this file; continue to the next one.
	}
}

// Close releases the currently open file, if any.
func (j *JoinedLineReader) Close() error {
	if j.current != nil {
		err := j.current.Close()
		j.current = nil
		return err
	}
	return nil
}
