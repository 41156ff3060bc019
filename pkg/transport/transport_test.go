package transport

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/bentsolheim/httpsink/pkg/constants"
	"github.com/bentsolheim/httpsink/pkg/errors"
	"github.com/bentsolheim/httpsink/pkg/timing"
)

func setupTestServer(t *testing.T, serverLogic func(net.Conn)) (string, uint16, func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create test server: %v", err)
	}
	addr := listener.Addr().(*net.TCPAddr)

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		serverLogic(conn)
		conn.Close()
	}()

	cleanup := func() {
		listener.Close()
		<-done
	}
	return addr.IP.String(), uint16(addr.Port), cleanup
}

func TestConnectWriteRead(t *testing.T) {
	received := make(chan string, 1)
	host, port, cleanup := setupTestServer(t, func(conn net.Conn) {
		line, _ := bufio.NewReader(conn).ReadString('\n')
		received <- line
		conn.Write([]byte("pong\n"))
	})
	defer cleanup()

	timer := timing.NewTimer()
	c := New(Config{ReadTimeout: time.Second, WriteTimeout: time.Second})
	c.SetTimer(timer)
	if err := c.Connect(context.Background(), host, port); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer c.Close()

	if !c.Connected() {
		t.Fatal("expected connected")
	}
	if h, p := c.Host(); h != host || p != port {
		t.Fatalf("unexpected host %s:%d", h, p)
	}
	if timer.GetMetrics().TCPConnect <= 0 {
		t.Error("expected TCP connect timing")
	}

	if _, err := c.Write([]byte("ping\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if got := <-received; got != "ping\n" {
		t.Fatalf("server got %q", got)
	}

	var sb strings.Builder
	for {
		b, err := c.ReadByte()
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if b == '\n' {
			break
		}
		sb.WriteByte(b)
	}
	if sb.String() != "pong" {
		t.Fatalf("expected pong, got %q", sb.String())
	}
}

func TestConnectRefused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	port := uint16(listener.Addr().(*net.TCPAddr).Port)
	listener.Close()

	c := New(Config{ConnTimeout: time.Second})
	err = c.Connect(context.Background(), "127.0.0.1", port)
	if err == nil {
		t.Fatal("expected connection error")
	}
	if errors.GetErrorType(err) != errors.ErrorTypeConnection {
		t.Fatalf("expected connection error, got %v", err)
	}
	if c.Connected() {
		t.Fatal("must not report connected")
	}
}

func TestConnectValidation(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		host   string
		port   uint16
	}{
		{"empty host", Config{}, "", 80},
		{"zero port", Config{}, "localhost", 0},
		{"bad scheme", Config{Scheme: "ftp"}, "localhost", 21},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.config).Connect(context.Background(), tt.host, tt.port)
			if errors.GetErrorType(err) != errors.ErrorTypeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestReadTimeout(t *testing.T) {
	release := make(chan struct{})
	host, port, cleanup := setupTestServer(t, func(conn net.Conn) {
		<-release
	})
	defer cleanup()
	defer close(release)

	c := New(Config{ReadTimeout: 100 * time.Millisecond})
	if err := c.Connect(context.Background(), host, port); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer c.Close()

	_, err := c.ReadByte()
	if !errors.IsTimeoutError(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if c.Connected() {
		t.Fatal("a timed out connection must not be reused")
	}

	e, ok := err.(*errors.Error)
	if !ok {
		t.Fatalf("expected *errors.Error, got %T", err)
	}
	if e.Host != host || e.Port != int(port) {
		t.Fatalf("expected %s:%d on the error, got %s:%d", host, port, e.Host, e.Port)
	}
	if e.Cause == nil {
		t.Fatal("expected the deadline error as cause")
	}
	if !strings.Contains(e.Message, "100ms") {
		t.Fatalf("expected the configured timeout in %q", e.Message)
	}
}

func TestNewAppliesDefaultTimeouts(t *testing.T) {
	c := New(Config{})
	if c.config.ReadTimeout != constants.DefaultReadTimeout {
		t.Fatalf("expected read timeout %v, got %v", constants.DefaultReadTimeout, c.config.ReadTimeout)
	}
	if c.config.WriteTimeout != constants.DefaultWriteTimeout {
		t.Fatalf("expected write timeout %v, got %v", constants.DefaultWriteTimeout, c.config.WriteTimeout)
	}

	c = New(Config{ReadTimeout: time.Second, WriteTimeout: 2 * time.Second})
	if c.config.ReadTimeout != time.Second || c.config.WriteTimeout != 2*time.Second {
		t.Fatalf("explicit timeouts overridden: %v/%v", c.config.ReadTimeout, c.config.WriteTimeout)
	}
}

func TestAvailable(t *testing.T) {
	send := make(chan string)
	host, port, cleanup := setupTestServer(t, func(conn net.Conn) {
		for s := range send {
			conn.Write([]byte(s))
		}
	})
	defer cleanup()

	c := New(Config{PollInterval: 100 * time.Millisecond})
	if err := c.Connect(context.Background(), host, port); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer c.Close()

	if n := c.Available(); n != 0 {
		t.Fatalf("expected nothing available, got %d", n)
	}
	if !c.Connected() {
		t.Fatal("an empty poll must not break the connection")
	}

	send <- "hello"
	deadline := time.Now().Add(2 * time.Second)
	n := 0
	for n < 5 && time.Now().Before(deadline) {
		n = c.Available()
	}
	if n != 5 {
		t.Fatalf("expected 5 bytes available, got %d", n)
	}

	buf := make([]byte, 5)
	if _, err := io.ReadFull(c, buf); err != nil || string(buf) != "hello" {
		t.Fatalf("read after poll failed: %q %v", buf, err)
	}

	close(send)
	deadline = time.Now().Add(2 * time.Second)
	for c.Connected() && time.Now().Before(deadline) {
		c.Available()
	}
	if c.Connected() {
		t.Fatal("expected peer close to be detected")
	}
}

func TestAbortUnblocksRead(t *testing.T) {
	release := make(chan struct{})
	host, port, cleanup := setupTestServer(t, func(conn net.Conn) {
		<-release
	})
	defer cleanup()
	defer close(release)

	c := New(Config{})
	if err := c.Connect(context.Background(), host, port); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	time.AfterFunc(50*time.Millisecond, c.Abort)
	if _, err := c.ReadByte(); err == nil {
		t.Fatal("expected read error after abort")
	}
	if c.Connected() {
		t.Fatal("aborted connection must not report connected")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close after abort failed: %v", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	c := New(Config{})
	if err := c.Close(); err != nil {
		t.Fatalf("close on unconnected failed: %v", err)
	}
	if _, err := c.Write([]byte("x")); err == nil {
		t.Fatal("expected write error when not connected")
	}
	if _, err := c.ReadByte(); err == nil {
		t.Fatal("expected read error when not connected")
	}
}
