package buffer_test

import (
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/bentsolheim/httpsink/pkg/buffer"
)

func TestBufferMemoryLimit(t *testing.T) {
	buf := buffer.New(10)
	defer buf.Close()

	data1 := []byte("small")
	if _, err := buf.Write(data1); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if buf.IsSpilled() {
		t.Fatalf("expected data in memory")
	}
	if buf.Bytes() == nil {
		t.Fatalf("expected data in memory")
	}

	data2 := []byte("this is much larger data that exceeds the limit")
	if _, err := buf.Write(data2); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if !buf.IsSpilled() {
		t.Fatalf("expected data to spill to disk")
	}
	if buf.Path() == "" {
		t.Fatalf("expected temp file path")
	}
	if buf.Bytes() != nil {
		t.Fatalf("expected no data in memory after spill")
	}
	if err := buf.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	totalSize := int64(len(data1) + len(data2))
	if buf.Size() != totalSize {
		t.Fatalf("expected size %d, got %d", totalSize, buf.Size())
	}

	r, err := buf.Reader()
	if err != nil {
		t.Fatalf("reader failed: %v", err)
	}
	defer r.Close()
	got, _ := io.ReadAll(r)
	if string(got) != string(data1)+string(data2) {
		t.Fatalf("spilled data mismatch: %q", got)
	}
}

func TestBufferReader(t *testing.T) {
	buf := buffer.New(1024)
	defer buf.Close()

	testData := []byte("test data for reader")
	if _, err := buf.Write(testData); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := buf.Flush(); err != nil {
		t.Fatalf("flush on memory buffer failed: %v", err)
	}

	reader, err := buf.Reader()
	if err != nil {
		t.Fatalf("reader failed: %v", err)
	}
	defer reader.Close()

	readData, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(readData) != string(testData) {
		t.Fatalf("data mismatch: expected %s, got %s", testData, readData)
	}
}

func TestBufferBounded(t *testing.T) {
	buf := buffer.NewBounded(1024, 8)
	defer buf.Close()

	if _, err := buf.Write([]byte("12345")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	n, err := buf.Write([]byte("6789"))
	if !errors.Is(err, buffer.ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 bytes accepted, got %d", n)
	}
	if string(buf.Bytes()) != "12345678" {
		t.Fatalf("unexpected contents %q", buf.Bytes())
	}
}

func TestBufferReset(t *testing.T) {
	buf := buffer.New(10)
	defer buf.Close()

	if _, err := buf.Write([]byte("this will spill to disk because it's too large")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if !buf.IsSpilled() {
		t.Fatalf("expected data to spill")
	}

	if err := buf.Reset(); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if buf.Size() != 0 {
		t.Fatalf("expected size 0 after reset, got %d", buf.Size())
	}
	if buf.IsSpilled() {
		t.Fatalf("expected no spill after reset")
	}
	if _, err := buf.Write([]byte("again")); err != nil {
		t.Fatalf("write after reset failed: %v", err)
	}
}

func TestBufferClosed(t *testing.T) {
	buf := buffer.New(10)
	buf.Close()
	if _, err := buf.Write([]byte("x")); err == nil {
		t.Fatal("expected error writing to closed buffer")
	}
	if _, err := buf.Reader(); err == nil {
		t.Fatal("expected error reading closed buffer")
	}
}

func TestBufferConcurrentClose(t *testing.T) {
	buf := buffer.New(4)
	buf.Write([]byte("spill me to disk"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf.Close()
		}()
	}
	wg.Wait()

	if buf.Path() != "" {
		t.Fatal("expected temp file to be removed")
	}
}
