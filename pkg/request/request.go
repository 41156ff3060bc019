// Package request builds the minimal GET request sent for a download.
package request

import (
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/bentsolheim/httpsink/pkg/errors"
)

// ConnectionPolicy selects the Connection header and whether the transport is
// kept open after the transfer.
type ConnectionPolicy int

const (
	// PolicyClose asks the server to close and closes the transport afterwards.
	PolicyClose ConnectionPolicy = iota
	// PolicyKeepAlive leaves the transport open for the next request.
	PolicyKeepAlive
)

// String returns the Connection header value for the policy.
func (p ConnectionPolicy) String() string {
	if p == PolicyKeepAlive {
		return "keep-alive"
	}
	return "close"
}

// Request describes one GET.
type Request struct {
	Host   string
	Path   string
	Policy ConnectionPolicy
}

// Validate checks that the request can be written without header injection.
func (r Request) Validate() error {
	if r.Host == "" {
		return errors.NewValidationError("host cannot be empty")
	}
	if !httpguts.ValidHostHeader(r.Host) || !httpguts.ValidHeaderFieldValue(r.Host) {
		return errors.NewValidationError("invalid host " + strconv.Quote(r.Host))
	}
	if r.Path == "" {
		return errors.NewValidationError("path cannot be empty")
	}
	if r.Path[0] != '/' {
		return errors.NewValidationError("path must start with '/': " + strconv.Quote(r.Path))
	}
	for i := 0; i < len(r.Path); i++ {
		if c := r.Path[i]; c <= ' ' || c == 0x7f {
			return errors.NewValidationError("path contains space or control character: " + strconv.Quote(r.Path))
		}
	}
	return nil
}

// Build returns the request lines in transmission order, ending with the
// empty line that terminates the header section.
func Build(r Request) ([]string, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return []string{
		"GET " + r.Path + " HTTP/1.1",
		"Host: " + r.Host,
		"Connection: " + r.Policy.String(),
		"",
	}, nil
}

// Send writes each line followed by CRLF. The first failed or short write
// aborts; later lines are not sent.
func Send(w io.Writer, lines []string) error {
	for _, line := range lines {
		buf := make([]byte, 0, len(line)+2)
		buf = append(buf, line...)
		buf = append(buf, '\r', '\n')

		n, err := w.Write(buf)
		if err != nil {
			return errors.NewIOError("writing request", err)
		}
		if n != len(buf) {
			return errors.NewIOError("writing request", io.ErrShortWrite)
		}
	}
	return nil
}

// Bytes renders the request as it appears on the wire.
func Bytes(r Request) ([]byte, error) {
	lines, err := Build(r)
	if err != nil {
		return nil, err
	}
	return []byte(strings.Join(lines, "\r\n") + "\r\n"), nil
}
