// Package linereader reads CRLF or LF terminated lines from a byte stream into
// a fixed-capacity buffer.
//
// The buffer never grows. A line longer than the capacity is truncated: the
// first bytes are returned and the remainder of the line, up to and including
// the line feed, is consumed and dropped so the next call starts on a fresh
// line.
package linereader

import (
	"errors"
	"io"

	"github.com/bentsolheim/httpsink/pkg/constants"
)

// ErrNoData is returned when the source fails before a single byte of a line is read.
var ErrNoData = errors.New("linereader: no data")

// Reader reads lines from an io.ByteReader.
type Reader struct {
	src       io.ByteReader
	buf       []byte
	truncated int
	err       error
}

// New creates a Reader with a buffer of maxLength bytes. Values below
// constants.MinLineLength are raised to it.
func New(src io.ByteReader, maxLength int) *Reader {
	if maxLength <= 0 {
		maxLength = constants.MaxLineLength
	}
	if maxLength < constants.MinLineLength {
		maxLength = constants.MinLineLength
	}
	return &Reader{
		src: src,
		buf: make([]byte, 0, maxLength),
	}
}

// Reset points the reader at a new source and clears any sticky error.
// The buffer is kept.
func (r *Reader) Reset(src io.ByteReader) {
	r.src = src
	r.buf = r.buf[:0]
	r.truncated = 0
	r.err = nil
}

// Cap returns the buffer capacity.
func (r *Reader) Cap() int {
	return cap(r.buf)
}

// Truncated returns the number of bytes dropped from over-long lines since
// the last Reset.
func (r *Reader) Truncated() int {
	return r.truncated
}

// ReadLine returns the next line without its terminator, either LF or CRLF.
// terminated reports whether a line feed ended the line; it is false when the
// source failed mid-line, in which case the partial line is returned as read,
// with a nil error, and the following call returns ErrNoData.
//
// The returned slice aliases the internal buffer and is only valid until the
// next call.
func (r *Reader) ReadLine() (line []byte, terminated bool, err error) {
	if r.err != nil {
		return nil, false, r.err
	}

	r.buf = r.buf[:0]
	read := 0
	// cr is set when the previous byte was a CR; crStored tells whether it
	// went into the buffer or was dropped and counted.
	cr, crStored := false, false
	for {
		c, err := r.src.ReadByte()
		if err != nil {
			r.err = noData(err)
			if read == 0 {
				return nil, false, r.err
			}
			return r.buf, false, nil
		}
		read++

		if c == '\n' {
			switch {
			case cr && crStored:
				r.buf = r.buf[:len(r.buf)-1]
			case cr:
				r.truncated--
			}
			return r.buf, true, nil
		}

		cr = c == '\r'
		if len(r.buf) < cap(r.buf) {
			r.buf = append(r.buf, c)
			crStored = cr
			continue
		}
		// Buffer full: drop the rest of the line.
		r.truncated++
		crStored = false
	}
}

type noDataError struct {
	cause error
}

func (e *noDataError) Error() string {
	if e.cause == nil || e.cause == io.EOF {
		return ErrNoData.Error()
	}
	return ErrNoData.Error() + ": " + e.cause.Error()
}

func (e *noDataError) Is(target error) bool { return target == ErrNoData }

func (e *noDataError) Unwrap() error { return e.cause }

func noData(cause error) error {
	return &noDataError{cause: cause}
}
