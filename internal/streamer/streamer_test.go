package streamer_test

import (
	"bytes"
	"context"
	"io"
	"log"
	"net"
	"runtime"
	"testing"
	"time"

	"github.com/doy/teleterm/internal/auth"
	"github.com/doy/teleterm/internal/ptysup"
	"github.com/doy/teleterm/internal/registry"
	"github.com/doy/teleterm/internal/relay"
	"github.com/doy/teleterm/internal/streamer"
	"github.com/doy/teleterm/internal/wire"
)

func TestStreamerConnectsAndBroadcastsOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("PTY tests are not supported on Windows")
	}

	reg := registry.New()
	authReg := auth.NewRegistry(auth.Plain{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	srv := relay.New(relay.Options{
		ListenAddress:       addr,
		AllowedLoginMethods: []string{"plain"},
		ReadTimeout:         2 * time.Second,
	}, authReg, reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.ListenAndServe(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c, derr := net.DialTimeout("tcp", addr, 20*time.Millisecond); derr == nil {
			c.Close()
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	sup, err := ptysup.Spawn(ptysup.Options{Command: "sh", Args: []string{"-c", "printf hello; sleep 5"}, Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("ptysup.Spawn: %v", err)
	}
	defer sup.Close()

	s := streamer.New(streamer.Options{
		ServerAddress:     addr,
		LoginMethod:       "plain",
		Username:          "alice",
		Title:             "sh",
		HeartbeatInterval: 200 * time.Millisecond,
	}, sup, 80, 24)

	runCtx, runCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer runCancel()
	go s.Run(runCtx, nil)

	var sessionID string
	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if session, ok := reg.GetByDisplayName("alice"); ok {
			sessionID = session.ID
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if sessionID == "" {
		t.Fatalf("streamer never registered a session")
	}

	watcherConn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer watcherConn.Close()
	if err := wire.WriteFrame(watcherConn, wire.Frame{Kind: wire.KindLogin, Login: &wire.LoginPayload{Method: "plain", Credential: "bob"}}); err != nil {
		t.Fatalf("watcher login: %v", err)
	}
	if err := wire.WriteFrame(watcherConn, wire.Frame{Kind: wire.KindWatchSession, WatchSession: sessionID}); err != nil {
		t.Fatalf("WatchSession: %v", err)
	}

	sawHello := false
	watcherConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := 0; i < 6 && !sawHello; i++ {
		frame, err := wire.ReadFrame(watcherConn, wire.DefaultMaxFrameSize)
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if frame.Kind == wire.KindTerminalOutput && contains(frame.TerminalOutput, "hello") {
			sawHello = true
		}
	}
	if !sawHello {
		t.Fatalf("watcher never observed the streamed \"hello\" output")
	}
}

// TestRunFlushesFinalOutputAfterContextCancellation reproduces the case
// where a child exits immediately after writing its last output and a
// caller observes that exit and cancels Run's context. The pty pump goroutine can already have
// pushed the final chunk onto the buffered output channel by then, so a
// naive select between ctx.Done() and that channel has a real chance of
// picking cancellation over the pending chunk and dropping it.
func TestRunFlushesFinalOutputAfterContextCancellation(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("PTY tests are not supported on Windows")
	}

	sup, err := ptysup.Spawn(ptysup.Options{Command: "sh", Args: []string{"-c", "printf hello"}, Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("ptysup.Spawn: %v", err)
	}
	defer sup.Close()

	if _, err := sup.Wait(); err != nil {
		t.Fatalf("sup.Wait: %v", err)
	}

	// Give the pump goroutine time to read the child's output and push it
	// onto sup.Output() before Run ever looks at the channel, so the race
	// is reliably present regardless of scheduling.
	time.Sleep(50 * time.Millisecond)

	var out bytes.Buffer
	s := streamer.New(streamer.Options{
		ServerAddress: "127.0.0.1:1", // unreachable; Run must flush locally without a live connection
		LoginMethod:   "plain",
		Username:      "alice",
		LocalOutput:   &out,
		Logger:        log.New(io.Discard, "", 0),
	}, sup, 80, 24)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // simulate cmd/teleterm observing the exit and canceling immediately

	s.Run(ctx, nil)

	if !contains(out.Bytes(), "hello") {
		t.Fatalf("Run dropped the child's final output on a canceled context; got %q", out.String())
	}
}

func contains(haystack []byte, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(string(haystack), needle) >= 0
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
