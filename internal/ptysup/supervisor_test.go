package ptysup

import (
	"bytes"
	"testing"
	"time"
)

func TestSpawnCapturesOutput(t *testing.T) {
	s, err := Spawn(Options{
		Command: "sh",
		Args:    []string{"-c", "echo hello"},
		Cols:    80,
		Rows:    24,
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	var got bytes.Buffer
	timeout := time.After(5 * time.Second)
loop:
	for {
		select {
		case chunk, ok := <-s.Output():
			if !ok {
				break loop
			}
			got.Write(chunk)
		case <-timeout:
			t.Fatalf("timed out waiting for pty output to close")
		}
	}

	if !bytes.Contains(got.Bytes(), []byte("hello")) {
		t.Fatalf("expected output to contain %q, got %q", "hello", got.String())
	}

	if _, err := s.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if err := s.ReadError(); err != nil {
		t.Fatalf("expected clean EOF, got %v", err)
	}
}

func TestSpawnRejectsZeroSize(t *testing.T) {
	if _, err := Spawn(Options{Command: "sh"}); err == nil {
		t.Fatalf("expected an error for zero cols/rows")
	}
}
