// Package client drives a single HTTP/1.1 GET from request to sink.
package client

import (
	"context"
	"io"

	"fortio.org/log"

	"github.com/bentsolheim/httpsink/pkg/body"
	"github.com/bentsolheim/httpsink/pkg/constants"
	"github.com/bentsolheim/httpsink/pkg/errors"
	"github.com/bentsolheim/httpsink/pkg/header"
	"github.com/bentsolheim/httpsink/pkg/linereader"
	"github.com/bentsolheim/httpsink/pkg/request"
	"github.com/bentsolheim/httpsink/pkg/sink"
	"github.com/bentsolheim/httpsink/pkg/timing"
)

// Transport is the byte stream a Client talks over. *transport.Conn
// implements it.
type Transport interface {
	Connect(ctx context.Context, host string, port uint16) error
	Connected() bool
	io.Writer
	io.ByteReader
	body.Source
	Close() error
}

// Aborter is implemented by transports whose blocking calls can be
// interrupted from another goroutine.
type Aborter interface {
	Abort()
}

type timed interface {
	SetTimer(t *timing.Timer)
}

// Options controls how responses are read.
type Options struct {
	// MaxLineLength caps the bytes kept per header line. 0 selects
	// constants.MaxLineLength.
	MaxLineLength int

	CopyMode body.Mode

	// Progress, when set, is called after every sink write.
	Progress func(copied, total int64)
}

// DefaultOptions returns length-driven copying with the standard line cap.
func DefaultOptions() Options {
	return Options{
		MaxLineLength: constants.MaxLineLength,
		CopyMode:      body.ModeLength,
	}
}

// Client downloads response bodies over a single Transport. It is not safe
// for concurrent use; one transfer runs at a time.
type Client struct {
	transport Transport
	opts      Options
	lines     *linereader.Reader
	timer     *timing.Timer

	// serverClose is set when the current response carried Connection: close.
	serverClose bool
}

// New returns a Client using t.
func New(t Transport, opts Options) *Client {
	return &Client{
		transport: t,
		opts:      opts,
		lines:     linereader.New(nil, opts.MaxLineLength),
	}
}

// Transport returns the underlying transport.
func (c *Client) Transport() Transport {
	return c.transport
}

// Close closes the underlying transport.
func (c *Client) Close() error {
	return c.transport.Close()
}

// DownloadClose connects, requests path with Connection: close and copies
// the body into dst. The transport is closed afterwards.
func (c *Client) DownloadClose(ctx context.Context, host string, port uint16, path string, dst body.Sink) Outcome {
	return c.Download(ctx, request.Request{Host: host, Path: path, Policy: request.PolicyClose}, port, dst)
}

// DownloadReuse requests path over the already open transport with
// Connection: keep-alive. It never dials.
func (c *Client) DownloadReuse(ctx context.Context, host, path string, dst body.Sink) Outcome {
	if !c.transport.Connected() {
		return Outcome{
			Code:          ConnectionFailed,
			ContentLength: -1,
			Err:           errors.NewConnectionError(host, 0, errors.ErrNotConnected),
		}
	}
	return c.Download(ctx, request.Request{Host: host, Path: path, Policy: request.PolicyKeepAlive}, 0, dst)
}

// ReceivePending reads the response to a request that was already written to
// the transport. The transport is left open unless the transfer fails or the
// server asks to close.
func (c *Client) ReceivePending(ctx context.Context, dst body.Sink) Outcome {
	c.begin()
	stop := c.watch(ctx)
	defer stop()

	out := c.receive(ctx, dst)
	return c.finish(out, request.PolicyKeepAlive, "", "")
}

// DownloadFile downloads req into the file at path, creating or truncating it.
func (c *Client) DownloadFile(ctx context.Context, req request.Request, port uint16, path string) Outcome {
	f, err := sink.Create(path)
	if err != nil {
		log.Errf("client: cannot open %s: %v", path, err)
		return Outcome{Code: FileOpenError, ContentLength: -1, Err: err}
	}
	out := c.Download(ctx, req, port, f)
	if err := f.Close(); err != nil && out.Code == Ok {
		out.Code, out.Err = SinkWriteError, err
	}
	return out
}

// Download performs one GET. An unconnected transport is connected to
// req.Host:port first; a connected one is reused and port is ignored.
func (c *Client) Download(ctx context.Context, req request.Request, port uint16, dst body.Sink) Outcome {
	c.begin()
	stop := c.watch(ctx)
	defer stop()

	if !c.transport.Connected() {
		if err := ctx.Err(); err != nil {
			return c.finish(Outcome{Code: ConnectionFailed, ContentLength: -1, Err: err}, req.Policy, req.Host, req.Path)
		}
		if err := c.transport.Connect(ctx, req.Host, port); err != nil {
			log.Warnf("client: connect to %s:%d failed: %v", req.Host, port, err)
			return c.finish(Outcome{Code: ConnectionFailed, ContentLength: -1, Err: err}, req.Policy, req.Host, req.Path)
		}
	}

	lines, err := request.Build(req)
	if err == nil {
		err = ctx.Err()
	}
	if err == nil {
		err = request.Send(c.transport, lines)
	}
	if err != nil {
		log.Warnf("client: sending request for %s failed: %v", req.Path, err)
		return c.finish(Outcome{Code: WriteError, ContentLength: -1, Err: err}, req.Policy, req.Host, req.Path)
	}

	return c.finish(c.receive(ctx, dst), req.Policy, req.Host, req.Path)
}

func (c *Client) begin() {
	c.timer = timing.NewTimer()
	if t, ok := c.transport.(timed); ok {
		t.SetTimer(c.timer)
	}
}

// watch aborts the transport when ctx is done. The returned func must be
// called once the transfer ends.
func (c *Client) watch(ctx context.Context) func() {
	a, ok := c.transport.(Aborter)
	if !ok || ctx.Done() == nil {
		return func() {}
	}
	stop := context.AfterFunc(ctx, a.Abort)
	return func() { stop() }
}

// receive parses the response head and copies the body.
func (c *Client) receive(ctx context.Context, dst body.Sink) Outcome {
	out := Outcome{ContentLength: -1}

	c.timer.StartHeaders()
	c.lines.Reset(firstByte{c.transport, c.timer})
	res, err := header.Parse(c.lines, c.transport.Connected())
	c.timer.EndHeaders()
	out.StatusCode = res.StatusCode
	if err != nil {
		out.Code, out.Err = ReadError, readCause(ctx, err)
		return out
	}
	if res.ServerClose {
		c.serverClose = true
	}
	if !res.OK() {
		out.Code = HttpStatusError
		return out
	}
	if !res.HasContentLength {
		out.Code = ContentLengthUnknown
		return out
	}
	out.ContentLength = res.ContentLength

	c.timer.StartBody()
	n, err := body.Copy(c.transport, dst, body.Options{
		Mode:          c.opts.CopyMode,
		ContentLength: res.ContentLength,
		Progress:      c.opts.Progress,
	})
	c.timer.EndBody()
	out.BytesCopied = n

	ferr := dst.Flush()
	if err != nil {
		out.Code, out.Err = SinkWriteError, err
		return out
	}
	if ferr != nil {
		out.Code, out.Err = SinkWriteError, errors.NewSinkError("flushing body", ferr)
		return out
	}

	if n != res.ContentLength {
		out.Code = ContentLengthMismatch
		if cerr := ctx.Err(); cerr != nil {
			out.Err = cerr
		}
		return out
	}
	out.Code = Ok
	return out
}

// finish applies the connection policy and logs the result.
func (c *Client) finish(out Outcome, policy request.ConnectionPolicy, host, path string) Outcome {
	out.Metrics = c.timer.GetMetrics()

	keep := policy == request.PolicyKeepAlive && out.Code == Ok && !c.serverClose
	if !keep {
		if err := c.transport.Close(); err != nil {
			log.LogVf("client: closing transport: %v", err)
		}
	}
	c.serverClose = false

	lvl := log.Verbose
	if out.Code != Ok {
		lvl = log.Warning
	}
	log.S(lvl, "download finished",
		log.Str("host", host),
		log.Str("path", path),
		log.Str("outcome", out.Code.String()),
		log.Attr("status", out.StatusCode),
		log.Attr("bytes", out.BytesCopied),
		log.Attr("content_length", out.ContentLength),
		log.Str("total", out.Metrics.TotalTime.String()))
	return out
}

// readCause prefers the context error when an abort caused the read failure.
func readCause(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil && !errors.IsContextCanceled(err) {
		return cerr
	}
	return err
}

// firstByte marks time to first byte on the timer.
type firstByte struct {
	r     io.ByteReader
	timer *timing.Timer
}

func (f firstByte) ReadByte() (byte, error) {
	b, err := f.r.ReadByte()
	if err == nil {
		f.timer.FirstByte()
	}
	return b, err
}
