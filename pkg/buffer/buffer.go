// Package buffer provides a download sink that keeps small bodies in memory
// and spills larger ones to a temporary file.
package buffer

import (
	"bytes"
	"io"
	"os"
	"sync"

	"github.com/bentsolheim/httpsink/pkg/constants"
	"github.com/bentsolheim/httpsink/pkg/errors"
)

// ErrFull is the cause of a write rejected because MaxSize would be exceeded.
var ErrFull = errors.NewValidationError("buffer size limit reached")

// Buffer stores data either in memory or spooled to a temporary file when
// exceeding a threshold. A non-zero MaxSize caps the total accepted.
type Buffer struct {
	buf     bytes.Buffer
	file    *os.File
	path    string
	size    int64
	limit   int64
	maxSize int64
	mu      sync.Mutex
	closed  bool
}

// New creates a new Buffer with the provided memory limit.
func New(limit int64) *Buffer {
	if limit <= 0 {
		limit = constants.DefaultBodyMemLimit
	}
	return &Buffer{limit: limit}
}

// NewBounded creates a Buffer that rejects writes beyond maxSize bytes.
func NewBounded(limit, maxSize int64) *Buffer {
	b := New(limit)
	b.maxSize = maxSize
	return b
}

// Write stores p, spilling to disk once above the memory threshold. A write
// that would exceed MaxSize stores the bytes that fit and fails with ErrFull.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, errors.NewSinkError("writing to closed buffer", nil)
	}

	var full bool
	if b.maxSize > 0 && b.size+int64(len(p)) > b.maxSize {
		p = p[:b.maxSize-b.size]
		full = true
	}

	n, err := b.write(p)
	b.size += int64(n)
	if err != nil {
		return n, err
	}
	if full {
		return n, ErrFull
	}
	return n, nil
}

func (b *Buffer) write(p []byte) (int, error) {
	if b.file == nil && int64(b.buf.Len()+len(p)) <= b.limit {
		return b.buf.Write(p)
	}

	if b.file == nil {
		tmp, err := os.CreateTemp("", "httpsink-body-*.tmp")
		if err != nil {
			return 0, errors.NewSinkError("creating temp file", err)
		}
		b.file = tmp
		b.path = tmp.Name()

		if b.buf.Len() > 0 {
			if _, err := tmp.Write(b.buf.Bytes()); err != nil {
				return 0, errors.NewSinkError("writing to temp file", err)
			}
		}
		b.buf.Reset()
	}

	n, err := b.file.Write(p)
	if err != nil {
		return n, errors.NewSinkError("writing to temp file", err)
	}
	return n, nil
}

// Flush syncs the temp file when the buffer has spilled.
func (b *Buffer) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.file == nil {
		return nil
	}
	if err := b.file.Sync(); err != nil {
		return errors.NewSinkError("syncing temp file", err)
	}
	return nil
}

// Bytes returns the in-memory data. If the payload spilled to disk this will be
// empty.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.file != nil {
		return nil
	}
	return b.buf.Bytes()
}

// Path returns the filesystem path backing the spilled payload.
func (b *Buffer) Path() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.path
}

// Size returns the total number of bytes stored.
func (b *Buffer) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// IsSpilled returns true if the buffer has spilled to disk.
func (b *Buffer) IsSpilled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file != nil
}

// Reader provides a fresh reader for the stored data.
func (b *Buffer) Reader() (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.NewSinkError("reading closed buffer", nil)
	}

	if b.file != nil {
		if err := b.file.Sync(); err != nil {
			return nil, errors.NewSinkError("syncing temp file", err)
		}
		f, err := os.Open(b.path)
		if err != nil {
			return nil, errors.NewSinkError("opening temp file for reading", err)
		}
		return f, nil
	}

	return io.NopCloser(bytes.NewReader(b.buf.Bytes())), nil
}

// Close removes the temp file, if any. Safe for concurrent calls and idempotent.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	if b.file != nil {
		err := b.file.Close()
		if removeErr := os.Remove(b.path); removeErr != nil && err == nil {
			err = removeErr
		}
		b.file = nil
		b.path = ""
		if err != nil {
			return errors.NewSinkError("closing temp file", err)
		}
	}
	return nil
}

// Reset clears the buffer and prepares it for reuse.
func (b *Buffer) Reset() error {
	if err := b.Close(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf.Reset()
	b.size = 0
	b.closed = false
	return nil
}
