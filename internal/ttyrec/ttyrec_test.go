package ttyrec

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return base }
	if err := w.WriteFrame([]byte("hello")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	w.now = func() time.Time { return base.Add(250 * time.Millisecond) }
	if err := w.WriteFrame([]byte("world")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	r := NewReader(&buf)
	f1, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if string(f1.Data) != "hello" {
		t.Fatalf("expected hello, got %q", f1.Data)
	}

	f2, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if string(f2.Data) != "world" {
		t.Fatalf("expected world, got %q", f2.Data)
	}
	if delta := f2.Time.Sub(f1.Time); delta != 250*time.Millisecond {
		t.Fatalf("expected 250ms delta, got %v", delta)
	}

	if _, err := r.ReadFrame(); err == nil {
		t.Fatalf("expected io.EOF at end of stream")
	}
}

func TestPlayWritesFramesInOrder(t *testing.T) {
	var recorded bytes.Buffer
	w := NewWriter(&recorded)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return base }
	w.WriteFrame([]byte("a"))
	w.now = func() time.Time { return base.Add(5 * time.Millisecond) }
	w.WriteFrame([]byte("b"))
	w.Flush()

	var played bytes.Buffer
	if err := Play(context.Background(), &recorded, &played, PlayOptions{Speed: 100}); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if played.String() != "ab" {
		t.Fatalf("expected \"ab\", got %q", played.String())
	}
}
