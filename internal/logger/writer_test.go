package logger

import (
	"bytes"
	"io"
	"testing"
)

func TestAsyncWriterFlushDeliversQueuedLines(t *testing.T) {
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)

	if err := aw.Write([]byte("one\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := aw.Write([]byte("two\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if got := buf.String(); got != "one\ntwo\n" {
		t.Fatalf("flushed output = %q", got)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestAsyncWriterCloseFlushesAndIsIdempotent(t *testing.T) {
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)

	if err := aw.Write([]byte("last line\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := buf.String(); got != "last line\n" {
		t.Fatalf("output after close = %q", got)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestAsyncWriterFansOutToAllSinks(t *testing.T) {
	a := &bytes.Buffer{}
	b := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{a, nil, b}, 1024)

	if err := aw.Write([]byte("both\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if a.String() != "both\n" || b.String() != "both\n" {
		t.Fatalf("fan-out mismatch: %q vs %q", a.String(), b.String())
	}
}
