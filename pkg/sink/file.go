// Package sink provides destinations for downloaded bodies.
package sink

import (
	"bufio"
	"os"
	"path/filepath"

	"github.com/bentsolheim/httpsink/pkg/errors"
)

const fileBufferSize = 4 * 1024

// File writes a body to a file through a fixed-size buffer.
type File struct {
	f    *os.File
	w    *bufio.Writer
	path string
	size int64
}

// Create opens path for writing, truncating an existing file and creating
// missing parent directories. Failures are ErrorTypeSink errors.
func Create(path string) (*File, error) {
	if path == "" {
		return nil, errors.NewValidationError("destination path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.NewSinkError("creating "+dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.NewSinkError("opening "+path, err)
	}
	return &File{
		f:    f,
		w:    bufio.NewWriterSize(f, fileBufferSize),
		path: path,
	}, nil
}

// Write buffers p.
func (s *File) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	s.size += int64(n)
	return n, err
}

// Flush writes buffered bytes and syncs the file to stable storage.
func (s *File) Flush() error {
	if err := s.w.Flush(); err != nil {
		return err
	}
	return s.f.Sync()
}

// Size returns the number of bytes accepted so far.
func (s *File) Size() int64 {
	return s.size
}

// Path returns the file path.
func (s *File) Path() string {
	return s.path
}

// Close flushes and closes the file.
func (s *File) Close() error {
	ferr := s.w.Flush()
	cerr := s.f.Close()
	if ferr != nil {
		return errors.NewSinkError("flushing "+s.path, ferr)
	}
	if cerr != nil {
		return errors.NewSinkError("closing "+s.path, cerr)
	}
	return nil
}
