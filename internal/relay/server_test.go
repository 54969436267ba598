package relay_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/doy/teleterm/internal/auth"
	"github.com/doy/teleterm/internal/registry"
	"github.com/doy/teleterm/internal/relay"
	"github.com/doy/teleterm/internal/wire"
)

func startTestServer(t *testing.T) (addr string, reg *registry.Registry) {
	t.Helper()
	reg = registry.New()
	authReg := auth.NewRegistry(auth.Plain{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	addr = ln.Addr().String()
	ln.Close()

	srv := relay.New(relay.Options{
		ListenAddress:       addr,
		AllowedLoginMethods: []string{"plain"},
		ReadTimeout:         2 * time.Second,
	}, authReg, reg)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ready := make(chan struct{})
	go func() {
		for {
			if c, err := net.DialTimeout("tcp", addr, 50*time.Millisecond); err == nil {
				c.Close()
				close(ready)
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	select {
	case <-ready:
	case err := <-errCh:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("server never became reachable")
	}

	return addr, reg
}

func dialAndLogin(t *testing.T, addr string, login wire.LoginPayload) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if err := wire.WriteFrame(conn, wire.Frame{Kind: wire.KindLogin, Login: &login}); err != nil {
		t.Fatalf("WriteFrame(Login): %v", err)
	}
	return conn
}

func TestStreamerLoginRegistersSession(t *testing.T) {
	addr, reg := startTestServer(t)

	conn := dialAndLogin(t, addr, wire.LoginPayload{
		Method: "plain", Credential: "alice", Cols: 80, Rows: 24, Title: "bash",
	})
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s, ok := reg.GetByDisplayName("alice"); ok {
			if s.Title != "bash" {
				t.Fatalf("expected title bash, got %s", s.Title)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session for alice was never registered")
}

func TestWatcherReceivesLiveOutputAfterAttach(t *testing.T) {
	addr, reg := startTestServer(t)

	streamerConn := dialAndLogin(t, addr, wire.LoginPayload{
		Method: "plain", Credential: "alice", Cols: 80, Rows: 24, Title: "bash",
	})
	defer streamerConn.Close()

	var sessionID string
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s, ok := reg.GetByDisplayName("alice"); ok {
			sessionID = s.ID
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if sessionID == "" {
		t.Fatalf("session for alice was never registered")
	}

	watcherConn := dialAndLogin(t, addr, wire.LoginPayload{Method: "plain", Credential: "bob"})
	defer watcherConn.Close()

	if err := wire.WriteFrame(watcherConn, wire.Frame{Kind: wire.KindWatchSession, WatchSession: sessionID}); err != nil {
		t.Fatalf("WriteFrame(WatchSession): %v", err)
	}

	// First frames are the priming Resize + TerminalOutput.
	watcherConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := wire.ReadFrame(watcherConn, wire.DefaultMaxFrameSize); err != nil {
		t.Fatalf("read priming resize: %v", err)
	}
	if _, err := wire.ReadFrame(watcherConn, wire.DefaultMaxFrameSize); err != nil {
		t.Fatalf("read priming output: %v", err)
	}

	if err := wire.WriteFrame(streamerConn, wire.Frame{Kind: wire.KindTerminalOutput, TerminalOutput: []byte("hello")}); err != nil {
		t.Fatalf("streamer write: %v", err)
	}

	watcherConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	frame, err := wire.ReadFrame(watcherConn, wire.DefaultMaxFrameSize)
	if err != nil {
		t.Fatalf("read live output: %v", err)
	}
	if frame.Kind != wire.KindTerminalOutput || string(frame.TerminalOutput) != "hello" {
		t.Fatalf("unexpected live frame: %#v", frame)
	}
}

func TestDisallowedLoginMethodIsRejected(t *testing.T) {
	addr, _ := startTestServer(t)

	conn := dialAndLogin(t, addr, wire.LoginPayload{Method: "recurse_center"})
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	frame, err := wire.ReadFrame(conn, wire.DefaultMaxFrameSize)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if frame.Kind != wire.KindError || frame.Error == nil || frame.Error.Code != wire.ErrCodeAuthMethodNotAllowed {
		t.Fatalf("expected AuthMethodNotAllowed error, got %#v", frame)
	}
}

func TestStreamerDisconnectNotifiesWatcher(t *testing.T) {
	addr, reg := startTestServer(t)

	streamerConn := dialAndLogin(t, addr, wire.LoginPayload{
		Method: "plain", Credential: "alice", Cols: 80, Rows: 24, Title: "bash",
	})

	var sessionID string
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s, ok := reg.GetByDisplayName("alice"); ok {
			sessionID = s.ID
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if sessionID == "" {
		t.Fatalf("session for alice was never registered")
	}

	watcherConn := dialAndLogin(t, addr, wire.LoginPayload{Method: "plain", Credential: "bob"})
	defer watcherConn.Close()
	if err := wire.WriteFrame(watcherConn, wire.Frame{Kind: wire.KindWatchSession, WatchSession: sessionID}); err != nil {
		t.Fatalf("WriteFrame(WatchSession): %v", err)
	}
	watcherConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	wire.ReadFrame(watcherConn, wire.DefaultMaxFrameSize) // priming resize
	wire.ReadFrame(watcherConn, wire.DefaultMaxFrameSize) // priming output

	streamerConn.Close()

	watcherConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	frame, err := wire.ReadFrame(watcherConn, wire.DefaultMaxFrameSize)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if frame.Kind != wire.KindDisconnected {
		t.Fatalf("expected Disconnected frame, got %#v", frame)
	}
}
