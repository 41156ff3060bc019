// Package timing provides performance measurement utilities for downloads.
package timing

import (
	"fmt"
	"time"
)

// Metrics captures timing information for one transfer.
type Metrics struct {
	// DNSLookup is the time spent performing DNS resolution
	DNSLookup time.Duration `json:"dns_lookup"`

	// TCPConnect is the time spent establishing the TCP connection
	TCPConnect time.Duration `json:"tcp_connect"`

	// TLSHandshake is the time spent performing the TLS handshake (0 for HTTP)
	TLSHandshake time.Duration `json:"tls_handshake"`

	// TTFB is the time from the end of the request write to the end of the
	// status line
	TTFB time.Duration `json:"ttfb"`

	// Headers is the time spent reading the whole header section
	Headers time.Duration `json:"headers"`

	// Body is the time spent copying the body into the sink
	Body time.Duration `json:"body"`

	// TotalTime is the total end-to-end transfer time
	TotalTime time.Duration `json:"total_time"`
}

// Timer helps measure transfer timings. The zero value is not usable; call NewTimer.
type Timer struct {
	start       time.Time
	dnsStart    time.Time
	dnsEnd      time.Time
	tcpStart    time.Time
	tcpEnd      time.Time
	tlsStart    time.Time
	tlsEnd      time.Time
	ttfbStart   time.Time
	ttfbEnd     time.Time
	headerStart time.Time
	headerEnd   time.Time
	bodyStart   time.Time
	bodyEnd     time.Time
}

// NewTimer creates a new timing measurement session.
func NewTimer() *Timer {
	return &Timer{
		start: time.Now(),
	}
}

// StartDNS marks the beginning of DNS resolution.
func (t *Timer) StartDNS() {
	t.dnsStart = time.Now()
}

// EndDNS marks the end of DNS resolution.
func (t *Timer) EndDNS() {
	t.dnsEnd = time.Now()
}

// StartTCP marks the beginning of TCP connection.
func (t *Timer) StartTCP() {
	t.tcpStart = time.Now()
}

// EndTCP marks the end of TCP connection.
func (t *Timer) EndTCP() {
	t.tcpEnd = time.Now()
}

// StartTLS marks the beginning of TLS handshake.
func (t *Timer) StartTLS() {
	t.tlsStart = time.Now()
}

// EndTLS marks the end of TLS handshake.
func (t *Timer) EndTLS() {
	t.tlsEnd = time.Now()
}

// StartHeaders marks the start of the header section read. It also starts
// the TTFB measurement.
func (t *Timer) StartHeaders() {
	t.headerStart = time.Now()
	t.ttfbStart = t.headerStart
}

// FirstByte marks the arrival of the first response byte.
func (t *Timer) FirstByte() {
	if t.ttfbEnd.IsZero() {
		t.ttfbEnd = time.Now()
	}
}

// EndHeaders marks the end of the header section.
func (t *Timer) EndHeaders() {
	t.headerEnd = time.Now()
}

// StartBody marks the beginning of the body copy.
func (t *Timer) StartBody() {
	t.bodyStart = time.Now()
}

// EndBody marks the end of the body copy.
func (t *Timer) EndBody() {
	t.bodyEnd = time.Now()
}

// GetMetrics returns the calculated timing metrics.
func (t *Timer) GetMetrics() Metrics {
	m := Metrics{
		TotalTime:    time.Since(t.start),
		DNSLookup:    span(t.dnsStart, t.dnsEnd),
		TCPConnect:   span(t.tcpStart, t.tcpEnd),
		TLSHandshake: span(t.tlsStart, t.tlsEnd),
		TTFB:         span(t.ttfbStart, t.ttfbEnd),
		Headers:      span(t.headerStart, t.headerEnd),
		Body:         span(t.bodyStart, t.bodyEnd),
	}
	return m
}

func span(start, end time.Time) time.Duration {
	if start.IsZero() || end.IsZero() {
		return 0
	}
	return end.Sub(start)
}

// GetConnectionTime returns the total connection establishment time (DNS + TCP + TLS).
func (m Metrics) GetConnectionTime() time.Duration {
	return m.DNSLookup + m.TCPConnect + m.TLSHandshake
}

// Throughput returns body bytes per second, or 0 when the body phase was not timed.
func (m Metrics) Throughput(bytes int64) float64 {
	if m.Body <= 0 {
		return 0
	}
	return float64(bytes) / m.Body.Seconds()
}

// String provides a human-readable representation of the metrics.
func (m Metrics) String() string {
	return fmt.Sprintf("DNSLookup: %v, TCPConnect: %v, TLSHandshake: %v, TTFB: %v, Headers: %v, Body: %v, TotalTime: %v",
		m.DNSLookup, m.TCPConnect, m.TLSHandshake, m.TTFB, m.Headers, m.Body, m.TotalTime)
}
