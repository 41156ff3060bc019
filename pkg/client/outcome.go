package client

import (
	"fmt"
	"time"

	"github.com/bentsolheim/httpsink/pkg/errors"
	"github.com/bentsolheim/httpsink/pkg/timing"
)

// Code is the result class of a download. The numeric values of the first
// seven match the codes the firmware reported over serial.
type Code int

const (
	Ok                    Code = 0
	ConnectionFailed      Code = -1
	SinkWriteError        Code = -2
	FileOpenError         Code = -3
	ReadError             Code = -4
	ContentLengthMismatch Code = -5
	ContentLengthUnknown  Code = -6
	WriteError            Code = -7
	HttpStatusError       Code = -8
)

func (c Code) String() string {
	switch c {
	case Ok:
		return "ok"
	case ConnectionFailed:
		return "connection failed"
	case SinkWriteError:
		return "sink write error"
	case FileOpenError:
		return "file open error"
	case ReadError:
		return "read error"
	case ContentLengthMismatch:
		return "content length mismatch"
	case ContentLengthUnknown:
		return "content length unknown"
	case WriteError:
		return "write error"
	case HttpStatusError:
		return "http status error"
	default:
		return fmt.Sprintf("unknown outcome %d", int(c))
	}
}

func (c Code) errorType() errors.ErrorType {
	switch c {
	case ConnectionFailed:
		return errors.ErrorTypeConnection
	case SinkWriteError, FileOpenError:
		return errors.ErrorTypeSink
	case ReadError, WriteError:
		return errors.ErrorTypeIO
	default:
		return errors.ErrorTypeProtocol
	}
}

// Outcome is the result of one download.
type Outcome struct {
	Code Code

	// StatusCode is the response status, 0 if no status line was read.
	StatusCode int

	// ContentLength is the declared length, -1 when unknown.
	ContentLength int64

	BytesCopied int64
	Metrics     timing.Metrics

	// Err is the underlying failure, nil for Ok and for outcomes decided
	// purely from the response (status, length).
	Err error
}

// OK reports whether the transfer completed with matching byte counts.
func (o Outcome) OK() bool {
	return o.Code == Ok
}

// AsError returns nil for Ok, otherwise a structured error describing the outcome.
func (o Outcome) AsError() error {
	if o.Code == Ok {
		return nil
	}

	msg := o.Code.String()
	switch o.Code {
	case HttpStatusError:
		msg = fmt.Sprintf("%s: server returned %d", msg, o.StatusCode)
	case ContentLengthMismatch:
		msg = fmt.Sprintf("%s: copied %d of %d bytes", msg, o.BytesCopied, o.ContentLength)
	}
	if t := o.Code.errorType(); t != errors.ErrorTypeProtocol {
		return &errors.Error{
			Type:      t,
			Message:   msg,
			Cause:     o.Err,
			Timestamp: time.Now(),
		}
	}
	return errors.NewProtocolError(msg, o.Err)
}

func (o Outcome) String() string {
	switch o.Code {
	case Ok:
		return fmt.Sprintf("ok (%d bytes)", o.BytesCopied)
	case HttpStatusError:
		return fmt.Sprintf("%s %d", o.Code, o.StatusCode)
	case ContentLengthMismatch:
		return fmt.Sprintf("%s (%d/%d)", o.Code, o.BytesCopied, o.ContentLength)
	}
	if o.Err != nil {
		return fmt.Sprintf("%s: %v", o.Code, o.Err)
	}
	return o.Code.String()
}
