// Package header parses the status line and header fields of an HTTP/1.1
// response from a line source, stopping at the blank line that ends the
// header section.
package header

import (
	"bytes"
	"strconv"
	"strings"

	"fortio.org/log"
	"golang.org/x/net/http/httpguts"

	"github.com/bentsolheim/httpsink/pkg/constants"
	"github.com/bentsolheim/httpsink/pkg/errors"
)

// StatusOK is the only status treated as a successful transfer.
const StatusOK = 200

// LineSource yields header lines with terminators stripped.
type LineSource interface {
	ReadLine() (line []byte, terminated bool, err error)
	Truncated() int
}

// Result describes a parsed header section.
type Result struct {
	StatusCode int
	StatusLine string

	// ContentLength is only meaningful when HasContentLength is set.
	ContentLength    int64
	HasContentLength bool

	// ServerClose is set when the server sent "Connection: close".
	ServerClose bool

	// Truncated counts bytes dropped from header lines longer than the line buffer.
	Truncated int
}

// OK reports whether the status code is 200.
func (r Result) OK() bool {
	return r.StatusCode == StatusOK
}

// Parse consumes lines until the blank line ending the header section. On
// success the source is positioned at the first byte of the body.
//
// A disconnected transport or any read failure yields an ErrorTypeIO error.
func Parse(src LineSource, connected bool) (Result, error) {
	var res Result
	if !connected {
		return res, errors.NewIOError("reading header section", errors.ErrNotConnected)
	}

	sawStatus := false
	sawHeader := false
	for {
		line, _, err := src.ReadLine()
		if err != nil {
			res.Truncated = src.Truncated()
			return res, errors.NewIOError("reading header section", err)
		}
		if len(line) == 0 {
			break
		}

		colon := bytes.IndexByte(line, ':')
		if !sawStatus && !sawHeader && (colon < 0 || bytes.HasPrefix(line, []byte("HTTP/"))) {
			sawStatus = true
			res.StatusLine = string(line)
			res.StatusCode = parseStatusCode(res.StatusLine)
			log.LogVf("header: status line %q", res.StatusLine)
			continue
		}
		if colon < 0 {
			// Not a header and not the status line.
			log.LogVf("header: ignoring line without colon %q", line)
			continue
		}
		sawHeader = true

		name := strings.ToLower(string(line[:colon]))
		value := strings.TrimLeft(string(line[colon+1:]), " \t")

		switch name {
		case "content-length":
			n, ok := parseContentLength(value)
			res.ContentLength, res.HasContentLength = n, ok
			if !ok {
				log.Warnf("header: unusable content-length %q", value)
			}
		case "connection":
			if httpguts.HeaderValuesContainsToken([]string{value}, "close") {
				res.ServerClose = true
			}
		}
	}

	res.Truncated = src.Truncated()
	if res.Truncated > 0 {
		log.LogVf("header: %d bytes truncated from over-long lines", res.Truncated)
	}
	return res, nil
}

// parseStatusCode returns the first token after the protocol version, or 0
// when it is missing or not a number.
func parseStatusCode(statusLine string) int {
	fields := strings.Fields(statusLine)
	if len(fields) < 2 {
		return 0
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil || code < 0 {
		return 0
	}
	return code
}

func parseContentLength(value string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || n < 0 || n > constants.MaxContentLength {
		return 0, false
	}
	return n, true
}
