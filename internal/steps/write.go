package steps

import (
	"bufio"
	"os"
	"path/filepath"

	"github.com/loganrosen/adapterremoval/internal/ngserr"
	"github.com/loganrosen/adapterremoval/internal/pipeline"
	"github.com/loganrosen/adapterremoval/internal/scheduler"
)

// WriteStep is the sink of one writer slot: it opens its destination path
// lazily on the first non-empty chunk (creating parent directories),
// writes either raw encoded bytes or compressed buffers, and flushes and
// closes on EOF. If no chunk is ever received, no file is created.
type WriteStep struct {
	path   string
	f      *os.File
	w      *bufio.Writer
	opened bool
}

// NewWrite builds a writer for the given destination path.
func NewWrite(path string) *WriteStep {
	return &WriteStep{path: path}
}

func (s *WriteStep) ensureOpen() error {
	if s.opened {
		return nil
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return ngserr.Wrap(ngserr.IOErrorf("failed to create output directory for %s", s.path), err)
		}
	}
	f, err := os.Create(s.path)
	if err != nil {
		return ngserr.Wrap(ngserr.IOErrorf("failed to create output file %s", s.path), err)
	}
	s.f = f
	s.w = bufio.NewWriterSize(f, 64*1024)
	s.opened = true
	return nil
}

// Process implements scheduler.Step.
func (s *WriteStep) Process(c pipeline.Chunk) ([]scheduler.Routed, error) {
	oc, ok := c.(*pipeline.OutputChunk)
	if !ok {
		return nil, ngserr.InternalErrorf("writer received a non-output chunk")
	}

	if oc.EOF {
		if !s.opened {
			return nil, nil
		}
		if err := s.w.Flush(); err != nil {
			return nil, ngserr.Wrap(ngserr.IOErrorf("failed to flush %s", s.path), err)
		}
		if err := s.f.Close(); err != nil {
			return nil, ngserr.Wrap(ngserr.IOErrorf("failed to close %s", s.path), err)
		}
		return nil, nil
	}

	if len(oc.Reads) == 0 && len(oc.Buffers) == 0 {
		return nil, nil
	}
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	if len(oc.Buffers) > 0 {
		for _, b := range oc.Buffers {
			if _, err := s.w.Write(b); err != nil {
				return nil, ngserr.Wrap(ngserr.IOErrorf("failed to write %s", s.path), err)
			}
		}
		return nil, nil
	}

	if _, err := s.w.Write(oc.Reads); err != nil {
		return nil, ngserr.Wrap(ngserr.IOErrorf("failed to write %s", s.path), err)
	}
	return nil, nil
}

// Finalize is a no-op: the file is already flushed and closed by the EOF
// chunk, per spec.md §4.6.
func (s *WriteStep) Finalize() error { return nil }
