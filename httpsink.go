// Package httpsink downloads files over plain HTTP/1.1 into a sink, using a
// fixed-size line buffer for the response head and a bounded copy for the
// body. It re-exports the main types of the pkg/ tree.
package httpsink

import (
	"context"

	"github.com/bentsolheim/httpsink/pkg/buffer"
	"github.com/bentsolheim/httpsink/pkg/client"
	"github.com/bentsolheim/httpsink/pkg/errors"
	"github.com/bentsolheim/httpsink/pkg/request"
	"github.com/bentsolheim/httpsink/pkg/timing"
	"github.com/bentsolheim/httpsink/pkg/transport"
)

// Version is the current version of the httpsink library
const Version = "1.0.0"

// GetVersion returns the current version of the library
func GetVersion() string {
	return Version
}

// Re-export key types for easier usage
type (
	// Client downloads bodies over one transport.
	Client = client.Client

	// Options controls how responses are read.
	Options = client.Options

	// TransportConfig controls how connections are made.
	TransportConfig = transport.Config

	// Outcome is the result of one download.
	Outcome = client.Outcome

	// Code classifies an Outcome.
	Code = client.Code

	// Request describes one GET.
	Request = request.Request

	// Buffer is an in-memory sink that spills to disk.
	Buffer = buffer.Buffer

	// Metrics captures detailed timing information for a download.
	Metrics = timing.Metrics

	// Error represents a structured error with context information.
	Error = errors.Error
)

// Outcome codes
const (
	Ok                    = client.Ok
	ConnectionFailed      = client.ConnectionFailed
	SinkWriteError        = client.SinkWriteError
	FileOpenError         = client.FileOpenError
	ReadError             = client.ReadError
	ContentLengthMismatch = client.ContentLengthMismatch
	ContentLengthUnknown  = client.ContentLengthUnknown
	WriteError            = client.WriteError
	HttpStatusError       = client.HttpStatusError
)

// Re-export error types for convenience
const (
	ErrorTypeDNS        = errors.ErrorTypeDNS
	ErrorTypeConnection = errors.ErrorTypeConnection
	ErrorTypeTLS        = errors.ErrorTypeTLS
	ErrorTypeTimeout    = errors.ErrorTypeTimeout
	ErrorTypeProtocol   = errors.ErrorTypeProtocol
	ErrorTypeIO         = errors.ErrorTypeIO
	ErrorTypeSink       = errors.ErrorTypeSink
	ErrorTypeValidation = errors.ErrorTypeValidation
)

// NewClient returns a Client on a new TCP (or TLS) transport.
func NewClient(tc TransportConfig, opts Options) *Client {
	return client.New(transport.New(tc), opts)
}

// DefaultOptions returns default options for common use cases.
func DefaultOptions() Options {
	return client.DefaultOptions()
}

// DownloadFile fetches an http or https URL into dest with Connection: close.
// An unparsable URL is reported as ConnectionFailed.
func DownloadFile(ctx context.Context, rawURL, dest string, opts Options) Outcome {
	t, err := request.ParseURL(rawURL)
	if err != nil {
		return Outcome{Code: ConnectionFailed, ContentLength: -1, Err: err}
	}
	c := NewClient(TransportConfig{Scheme: t.Scheme}, opts)
	defer c.Close()
	return c.DownloadFile(ctx, t.Request(request.PolicyClose), t.Port, dest)
}

// NewBuffer creates a new in-memory sink with the specified memory limit.
func NewBuffer(limit int64) *Buffer {
	return buffer.New(limit)
}

// IsTimeoutError checks if an error is a timeout error.
func IsTimeoutError(err error) bool {
	return errors.IsTimeoutError(err)
}

// GetErrorType returns the error type if it's a structured error.
func GetErrorType(err error) string {
	return string(errors.GetErrorType(err))
}
