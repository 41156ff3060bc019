package body_test

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/bentsolheim/httpsink/pkg/body"
	"github.com/bentsolheim/httpsink/pkg/errors"
)

// chunkedSource hands out data in fixed chunks and reports only the current
// chunk as available, like a socket where bytes arrive in bursts.
type chunkedSource struct {
	chunks [][]byte
}

func (s *chunkedSource) Read(p []byte) (int, error) {
	if len(s.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, s.chunks[0])
	s.chunks[0] = s.chunks[0][n:]
	if len(s.chunks[0]) == 0 {
		s.chunks = s.chunks[1:]
	}
	return n, nil
}

func (s *chunkedSource) Available() int {
	if len(s.chunks) == 0 {
		return 0
	}
	return len(s.chunks[0])
}

// gapSource reports nothing available between chunks.
type gapSource struct {
	chunkedSource
	polls int
}

func (s *gapSource) Available() int {
	s.polls++
	if s.polls == 2 {
		return 0
	}
	return s.chunkedSource.Available()
}

type memSink struct {
	bytes.Buffer
	flushed int
	failAt  int
	short   bool
	writes  int
}

func (m *memSink) Write(p []byte) (int, error) {
	m.writes++
	if m.failAt > 0 && m.writes >= m.failAt {
		if m.short {
			return m.Buffer.Write(p[:len(p)/2])
		}
		return 0, fmt.Errorf("card removed")
	}
	return m.Buffer.Write(p)
}

func (m *memSink) Flush() error {
	m.flushed++
	return nil
}

func source(s string, chunk int) *chunkedSource {
	var chunks [][]byte
	for len(s) > 0 {
		n := min(chunk, len(s))
		chunks = append(chunks, []byte(s[:n]))
		s = s[n:]
	}
	return &chunkedSource{chunks: chunks}
}

func TestCopyLengthExact(t *testing.T) {
	data := strings.Repeat("0123456789", 200)
	sink := &memSink{}

	n, err := body.Copy(source(data+"EXTRA", 333), sink, body.Options{ContentLength: int64(len(data))})
	if err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	if n != int64(len(data)) {
		t.Fatalf("expected %d bytes, got %d", len(data), n)
	}
	if sink.String() != data {
		t.Fatal("sink content mismatch")
	}
}

func TestCopyLengthShortBody(t *testing.T) {
	data := strings.Repeat("x", 80)
	sink := &memSink{}

	n, err := body.Copy(source(data, 16), sink, body.Options{ContentLength: 100})
	if err != nil {
		t.Fatalf("short body must not be an error: %v", err)
	}
	if n != 80 {
		t.Fatalf("expected 80 bytes, got %d", n)
	}
	if sink.Len() != 80 {
		t.Fatalf("expected the 80 received bytes in the sink, got %d", sink.Len())
	}
}

func TestCopyLengthZero(t *testing.T) {
	sink := &memSink{}
	n, err := body.Copy(source("ignored", 4), sink, body.Options{ContentLength: 0})
	if err != nil || n != 0 {
		t.Fatalf("expected empty copy, got %d, %v", n, err)
	}
}

func TestCopyAvailableDrain(t *testing.T) {
	data := strings.Repeat("a", 1500)
	sink := &memSink{}

	n, err := body.Copy(source(data, 700), sink, body.Options{Mode: body.ModeAvailable, ContentLength: 1500})
	if err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	if n != 1500 {
		t.Fatalf("expected 1500 bytes, got %d", n)
	}
}

func TestCopyAvailableStopsOnEmptyPoll(t *testing.T) {
	src := &gapSource{chunkedSource: *source(strings.Repeat("b", 1000), 500)}
	sink := &memSink{}

	n, err := body.Copy(src, sink, body.Options{Mode: body.ModeAvailable, ContentLength: 1000})
	if err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	if n != 500 {
		t.Fatalf("expected the drain to stop after the first burst, got %d", n)
	}

	// The same gap does not stop a length-driven copy.
	src = &gapSource{chunkedSource: *source(strings.Repeat("b", 1000), 500)}
	n, err = body.Copy(src, &memSink{}, body.Options{Mode: body.ModeLength, ContentLength: 1000})
	if err != nil || n != 1000 {
		t.Fatalf("expected 1000 bytes, got %d, %v", n, err)
	}
}

func TestCopySinkFailure(t *testing.T) {
	for _, short := range []bool{false, true} {
		sink := &memSink{failAt: 3, short: short}
		n, err := body.Copy(source(strings.Repeat("c", 4096), 4096), sink, body.Options{ContentLength: 4096})
		if err == nil {
			t.Fatal("expected sink error")
		}
		if errors.GetErrorType(err) != errors.ErrorTypeSink {
			t.Fatalf("expected sink error, got %v", err)
		}
		if n != int64(sink.Len()) {
			t.Fatalf("count %d does not match sink contents %d", n, sink.Len())
		}
		if n < 1024 {
			t.Fatalf("earlier writes must be kept, got %d bytes", n)
		}
	}
}

func TestCopyProgress(t *testing.T) {
	var last, total int64
	calls := 0
	_, err := body.Copy(source(strings.Repeat("d", 1200), 1200), &memSink{}, body.Options{
		ContentLength: 1200,
		Progress: func(copied, t int64) {
			calls++
			last, total = copied, t
		},
	})
	if err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 progress calls for 512-byte chunks, got %d", calls)
	}
	if last != 1200 || total != 1200 {
		t.Fatalf("unexpected final progress %d/%d", last, total)
	}
}

type stuckSource struct{}

func (stuckSource) Read(p []byte) (int, error) { return 0, nil }
func (stuckSource) Available() int             { return 1 }

func TestCopyStuckSourceTerminates(t *testing.T) {
	n, err := body.Copy(stuckSource{}, &memSink{}, body.Options{ContentLength: 10})
	if err != nil || n != 0 {
		t.Fatalf("expected 0, nil, got %d, %v", n, err)
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]body.Mode{"": body.ModeLength, "length": body.ModeLength, "available": body.ModeAvailable} {
		got, err := body.ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := body.ParseMode("chunked"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
