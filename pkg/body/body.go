// Package body copies a response body from the transport into a sink while
// counting the bytes transferred.
package body

import (
	"io"

	"fortio.org/log"

	"github.com/bentsolheim/httpsink/pkg/constants"
	"github.com/bentsolheim/httpsink/pkg/errors"
)

// maxEmptyReads matches the limit bufio uses before giving up on a reader
// that keeps returning 0, nil.
const maxEmptyReads = 100

// Source is the read side of a transport.
type Source interface {
	io.Reader
	// Available returns how many bytes can be read without blocking.
	Available() int
}

// Sink receives the body.
type Sink interface {
	io.Writer
	Flush() error
}

// Mode selects when the copy stops.
type Mode int

const (
	// ModeLength reads, blocking, until ContentLength bytes arrived or the
	// source fails.
	ModeLength Mode = iota
	// ModeAvailable copies only what the source reports as available and
	// stops at the first poll that reports nothing. On a slow link this can
	// stop before the whole body has arrived.
	ModeAvailable
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	if m == ModeAvailable {
		return "available"
	}
	return "length"
}

// ParseMode maps a configuration name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "length":
		return ModeLength, nil
	case "available":
		return ModeAvailable, nil
	}
	return ModeLength, errors.NewValidationError("unknown copy mode " + s)
}

// Options controls a single copy.
type Options struct {
	Mode Mode

	// ContentLength bounds ModeLength. ModeAvailable ignores it except for
	// progress reporting.
	ContentLength int64

	// Progress, when set, is called after every sink write.
	Progress func(copied, total int64)
}

// Copy moves bytes from src to dst and returns how many reached the sink.
// A failed or short sink write stops the copy with an ErrorTypeSink error;
// bytes already written are left in place. Source failures are not errors:
// they end the copy and show up as a short count.
func Copy(src Source, dst Sink, opts Options) (int64, error) {
	var buf [constants.CopyBufferSize]byte
	var copied int64
	empty := 0

	for {
		want := len(buf)
		switch opts.Mode {
		case ModeAvailable:
			avail := src.Available()
			if avail <= 0 {
				return copied, nil
			}
			want = min(want, avail)
		default:
			remaining := opts.ContentLength - copied
			if remaining <= 0 {
				return copied, nil
			}
			want = int(min(int64(want), remaining))
		}

		n, rerr := src.Read(buf[:want])
		if n == 0 && rerr == nil {
			if empty++; empty >= maxEmptyReads {
				rerr = io.ErrNoProgress
			}
		} else {
			empty = 0
		}
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			copied += int64(w)
			if werr == nil && w != n {
				werr = io.ErrShortWrite
			}
			if werr != nil {
				return copied, errors.NewSinkError("writing body", werr)
			}
			if opts.Progress != nil {
				opts.Progress(copied, opts.ContentLength)
			}
		}
		if rerr != nil {
			if rerr != io.EOF {
				log.LogVf("body: source stopped after %d bytes: %v", copied, rerr)
			}
			return copied, nil
		}
	}
}
