// Package constants defines limits and default values used throughout httpsink
package constants

import "time"

// Connection timeouts
const (
	DefaultConnTimeout  = 10 * time.Second
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 10 * time.Second
	DefaultDNSTimeout   = 5 * time.Second
)

// Ports
const (
	DefaultHTTPPort  = 80
	DefaultHTTPSPort = 443
)

// HTTP limits
const (
	// MaxLineLength is the capacity of the header line buffer. Longer lines are truncated.
	MaxLineLength = 1000

	// MinLineLength is the smallest line buffer accepted; a status line must fit.
	MinLineLength = 16

	MaxContentLength = 1024 * 1024 * 1024 * 1024 // 1TB
)

// Buffer limits
const (
	CopyBufferSize      = 512
	TransportBufferSize = 4 * 1024
	DefaultBodyMemLimit = 4 * 1024 * 1024 // 4MB
)

// Batch defaults
const (
	DefaultMaxConcurrentHosts = 2
)
