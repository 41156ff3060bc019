// Package transport provides the TCP/TLS byte stream a download runs over.
package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"io"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"fortio.org/log"

	"github.com/bentsolheim/httpsink/pkg/constants"
	"github.com/bentsolheim/httpsink/pkg/errors"
	"github.com/bentsolheim/httpsink/pkg/timing"
	"github.com/bentsolheim/httpsink/pkg/tlsconfig"
)

// DefaultPollInterval is how long Available waits for data when nothing is buffered.
const DefaultPollInterval = 50 * time.Millisecond

// Config holds transport configuration.
type Config struct {
	Scheme        string
	ConnectIP     string
	SNI           string
	InsecureTLS   bool
	TLSProfile    tlsconfig.VersionProfile
	CustomCACerts [][]byte
	ConnTimeout   time.Duration
	DNSTimeout    time.Duration

	// ReadTimeout bounds every blocking read and WriteTimeout every write.
	// Zero selects constants.DefaultReadTimeout and DefaultWriteTimeout.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	PollInterval  time.Duration
	BufferSize    int
}

// Conn is a reusable connection handle. It is not safe for concurrent use,
// except for Abort.
type Conn struct {
	config   Config
	resolver *net.Resolver
	timer    *timing.Timer

	conn    net.Conn
	reader  *bufio.Reader
	host    string
	port    uint16
	broken  bool
	aborted atomic.Bool
	live    atomic.Pointer[net.Conn]
}

// New creates an unconnected Conn.
func New(config Config) *Conn {
	return NewWithResolver(config, net.DefaultResolver)
}

// NewWithResolver creates an unconnected Conn using a custom resolver.
func NewWithResolver(config Config, resolver *net.Resolver) *Conn {
	if config.Scheme == "" {
		config.Scheme = "http"
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.BufferSize <= 0 {
		config.BufferSize = constants.TransportBufferSize
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = constants.DefaultReadTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = constants.DefaultWriteTimeout
	}
	return &Conn{
		config:   config,
		resolver: resolver,
		timer:    timing.NewTimer(),
	}
}

// SetTimer directs connection phase timings to t.
func (c *Conn) SetTimer(t *timing.Timer) {
	if t != nil {
		c.timer = t
	}
}

// Connect dials host:port, upgrading to TLS for https. An open connection is
// closed first.
func (c *Conn) Connect(ctx context.Context, host string, port uint16) error {
	if err := c.validate(host, port); err != nil {
		return err
	}
	if c.conn != nil {
		c.Close()
	}

	connTimeout := c.config.ConnTimeout
	if connTimeout <= 0 {
		connTimeout = constants.DefaultConnTimeout
	}

	dialAddr, err := c.resolveAddress(ctx, host, port)
	if err != nil {
		return err
	}

	conn, err := c.connectTCP(ctx, dialAddr, connTimeout)
	if err != nil {
		return errors.NewConnectionError(host, int(port), err)
	}

	if strings.EqualFold(c.config.Scheme, "https") {
		conn, err = c.upgradeTLS(ctx, conn, host, connTimeout)
		if err != nil {
			return errors.NewTLSError(host, int(port), err)
		}
	}

	c.conn = conn
	c.live.Store(&conn)
	c.reader = bufio.NewReaderSize(conn, c.config.BufferSize)
	c.host, c.port = host, port
	c.broken = false
	c.aborted.Store(false)
	log.LogVf("transport: connected to %s:%d via %s", host, port, conn.RemoteAddr())
	return nil
}

func (c *Conn) validate(host string, port uint16) error {
	if host == "" {
		return errors.NewValidationError("host cannot be empty")
	}
	if port == 0 {
		return errors.NewValidationError("port must be between 1 and 65535")
	}
	if c.config.Scheme != "http" && c.config.Scheme != "https" {
		return errors.NewValidationError("scheme must be http or https")
	}
	return nil
}

func (c *Conn) resolveAddress(ctx context.Context, host string, port uint16) (string, error) {
	portStr := strconv.Itoa(int(port))
	if c.config.ConnectIP != "" {
		return net.JoinHostPort(c.config.ConnectIP, portStr), nil
	}
	if ip := net.ParseIP(host); ip != nil {
		return net.JoinHostPort(host, portStr), nil
	}

	c.timer.StartDNS()
	defer c.timer.EndDNS()

	dnsTimeout := c.config.DNSTimeout
	if dnsTimeout <= 0 {
		dnsTimeout = c.config.ConnTimeout
	}
	if dnsTimeout <= 0 {
		dnsTimeout = constants.DefaultDNSTimeout
	}

	ctxLookup, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	addrs, err := c.resolver.LookupIPAddr(ctxLookup, host)
	if err != nil {
		return "", errors.NewDNSError(host, err)
	}
	if len(addrs) == 0 {
		return "", errors.NewDNSError(host, errors.NewValidationError("no IP addresses found"))
	}

	return net.JoinHostPort(addrs[0].IP.String(), portStr), nil
}

func (c *Conn) connectTCP(ctx context.Context, dialAddr string, timeout time.Duration) (net.Conn, error) {
	c.timer.StartTCP()
	defer c.timer.EndTCP()

	dialer := &net.Dialer{Timeout: timeout}
	return dialer.DialContext(ctx, "tcp", dialAddr)
}

func (c *Conn) upgradeTLS(ctx context.Context, conn net.Conn, host string, timeout time.Duration) (net.Conn, error) {
	c.timer.StartTLS()
	defer c.timer.EndTLS()

	serverName := c.config.SNI
	if serverName == "" {
		serverName = host
	}
	tlsConfig, err := tlsconfig.Build(tlsconfig.Options{
		ServerName:    serverName,
		Insecure:      c.config.InsecureTLS,
		Profile:       c.config.TLSProfile,
		CustomCACerts: c.config.CustomCACerts,
	})
	if err != nil {
		conn.Close()
		return nil, err
	}

	tlsCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tlsConn := tls.Client(conn, tlsConfig)
	if err := tlsConn.HandshakeContext(tlsCtx); err != nil {
		conn.Close()
		return nil, err
	}
	state := tlsConn.ConnectionState()
	version := tlsconfig.GetVersionName(state.Version)
	if tlsconfig.IsVersionDeprecated(state.Version) {
		log.Warnf("transport: %s negotiated deprecated %s", serverName, version)
	}
	log.LogVf("transport: %s with %s (%s)", version, serverName, tls.CipherSuiteName(state.CipherSuite))
	return tlsConn, nil
}

// Connected reports whether the connection is open and has not failed.
func (c *Conn) Connected() bool {
	return c.conn != nil && !c.broken && !c.aborted.Load()
}

// Host returns the host and port of the current or last connection.
func (c *Conn) Host() (string, uint16) {
	return c.host, c.port
}

// Write sends p in full or returns an error.
func (c *Conn) Write(p []byte) (int, error) {
	if c.conn == nil {
		return 0, errors.NewIOError("writing", errors.ErrNotConnected)
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
		return 0, c.fail("setting write deadline", err)
	}

	written := 0
	for written < len(p) {
		n, err := c.conn.Write(p[written:])
		written += n
		if err != nil {
			return written, c.fail("writing", err)
		}
	}
	return written, nil
}

// ReadByte reads one byte, blocking up to ReadTimeout.
func (c *Conn) ReadByte() (byte, error) {
	if err := c.beforeRead(); err != nil {
		return 0, err
	}
	b, err := c.reader.ReadByte()
	if err != nil {
		return 0, c.fail("reading", err)
	}
	return b, nil
}

// Read reads up to len(p) bytes, blocking up to ReadTimeout.
func (c *Conn) Read(p []byte) (int, error) {
	if err := c.beforeRead(); err != nil {
		return 0, err
	}
	n, err := c.reader.Read(p)
	if err != nil {
		if err == io.EOF {
			c.broken = true
			return n, io.EOF
		}
		return n, c.fail("reading", err)
	}
	return n, nil
}

// Available returns the number of bytes readable without blocking. When
// nothing is buffered it waits up to PollInterval for more to arrive.
func (c *Conn) Available() int {
	if c.conn == nil || c.broken {
		return 0
	}
	if n := c.reader.Buffered(); n > 0 {
		return n
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(c.config.PollInterval)); err != nil {
		return 0
	}
	_, err := c.reader.Peek(1)
	if err != nil {
		if !errors.IsTimeoutError(err) {
			c.broken = true
		}
		return 0
	}
	return c.reader.Buffered()
}

func (c *Conn) beforeRead() error {
	if c.conn == nil {
		return errors.NewIOError("reading", errors.ErrNotConnected)
	}
	// Deadlines only matter when the next read reaches the socket.
	if c.reader.Buffered() > 0 {
		return nil
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout)); err != nil {
		return c.fail("setting read deadline", err)
	}
	return nil
}

func (c *Conn) fail(op string, err error) error {
	c.broken = true
	if errors.IsTimeoutError(err) {
		timeout := c.config.ReadTimeout
		if strings.HasPrefix(op, "writ") {
			timeout = c.config.WriteTimeout
		}
		e := errors.NewTimeoutError(op, timeout)
		e.Cause, e.Host, e.Port = err, c.host, int(c.port)
		return e
	}
	return errors.NewIOError(op, err)
}

// Abort closes the socket from another goroutine. Blocked reads and writes
// return with an error; Close must still be called by the owner.
func (c *Conn) Abort() {
	c.aborted.Store(true)
	if conn := c.live.Load(); conn != nil {
		(*conn).Close()
	}
}

// Close closes the connection. It is idempotent.
func (c *Conn) Close() error {
	if c.conn == nil {
		return nil
	}
	c.live.Store(nil)
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	c.broken = false
	if err != nil && !c.aborted.Load() {
		return errors.NewIOError("closing", err)
	}
	return nil
}
