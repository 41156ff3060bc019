package sink_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bentsolheim/httpsink/pkg/errors"
	"github.com/bentsolheim/httpsink/pkg/sink"
)

func TestCreateWriteFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "dir", "fw.bin")

	s, err := sink.Create(path)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	defer s.Close()

	if _, err := s.Write([]byte("firmware")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back failed: %v", err)
	}
	if string(data) != "firmware" {
		t.Fatalf("unexpected contents %q", data)
	}
	if s.Size() != 8 || s.Path() != path {
		t.Fatalf("unexpected size %d or path %s", s.Size(), s.Path())
	}
}

func TestCreateTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(path, []byte("old contents that are long"), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := sink.Create(path)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	s.Write([]byte("new"))
	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "new" {
		t.Fatalf("expected truncated file, got %q", data)
	}
}

func TestCreateFailure(t *testing.T) {
	dir := t.TempDir()
	// A directory cannot be opened for writing.
	_, err := sink.Create(dir)
	if errors.GetErrorType(err) != errors.ErrorTypeSink {
		t.Fatalf("expected sink error, got %v", err)
	}

	_, err = sink.Create("")
	if errors.GetErrorType(err) != errors.ErrorTypeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCloseKeepsPartialData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial")
	s, err := sink.Create(path)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	s.Write([]byte("partial"))
	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected file to remain, got %v", err)
	}
	if string(data) != "partial" {
		t.Fatalf("expected partial data kept, got %q", data)
	}
}
