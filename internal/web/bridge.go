// Package web serves a browser-based watcher UI: a static page plus a
// WebSocket handler that bridges to the relay server, translating wire
// frames to and from a small JSON protocol (spec.md §4.10 expansion).
// It reuses internal/wire rather than re-teaching the relay a second
// protocol; the bridge itself carries no session state of its own.
package web

import (
	"context"
	"crypto/tls"
	"embed"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/doy/teleterm/internal/wire"
)

//go:embed static
var staticFS embed.FS

// Options configures a Bridge.
type Options struct {
	// RelayAddress is the relay server's host:port. The bridge dials it
	// once per browser connection, logging in as a plain watcher.
	RelayAddress string
	TLSConfig    *tls.Config

	// LoginMethod and Credential authenticate the bridge's own watcher
	// connection to the relay; typically "plain" with a fixed display
	// name for the web UI, since browsers do not carry an OAuth CLI
	// flow through a WebSocket.
	LoginMethod string
	Credential  string

	MaxFrameSize uint32

	// OriginAllowed validates the WebSocket upgrade's Origin header. A
	// nil value rejects every cross-origin request but allows same-origin
	// (empty Origin) requests, matching the teacher's default.
	OriginAllowed func(origin string) bool

	Logger *log.Logger
}

// Bridge serves the watcher web UI and its WebSocket backend.
type Bridge struct {
	opts     Options
	upgrader websocket.Upgrader
	logger   *log.Logger
}

// New creates a Bridge from opts.
func New(opts Options) *Bridge {
	if opts.MaxFrameSize == 0 {
		opts.MaxFrameSize = wire.DefaultMaxFrameSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Bridge{
		opts:   opts,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				if opts.OriginAllowed != nil {
					return opts.OriginAllowed(origin)
				}
				return false
			},
		},
	}
}

// Handler returns the bridge's http.Handler: a static index page at "/"
// and the WebSocket endpoint at "/ws".
func (b *Bridge) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(staticFS)))
	mux.HandleFunc("/ws", b.handleWebSocket)
	return mux
}

// clientMessage is the JSON shape a browser sends over the WebSocket.
type clientMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
}

// serverMessage is the JSON shape the bridge sends back for anything
// that isn't raw terminal output (which goes out as a binary message,
// undecorated, since the browser already knows which session it watches).
type serverMessage struct {
	Type      string             `json:"type"`
	Sessions  []wire.SessionInfo `json:"sessions,omitempty"`
	SessionID string             `json:"sessionId,omitempty"`
	Message   string             `json:"message,omitempty"`
}

func (b *Bridge) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Printf("web: upgrade: %v", err)
		return
	}
	defer conn.Close()

	relay, err := b.dialRelay(r.Context())
	if err != nil {
		conn.WriteJSON(serverMessage{Type: "error", Message: fmt.Sprintf("connect to relay: %v", err)})
		return
	}
	defer relay.Close()

	if err := wire.WriteFrame(relay, wire.Frame{
		Kind:  wire.KindLogin,
		Login: &wire.LoginPayload{Method: b.opts.LoginMethod, Credential: b.opts.Credential},
	}); err != nil {
		conn.WriteJSON(serverMessage{Type: "error", Message: fmt.Sprintf("login: %v", err)})
		return
	}

	var writeMu sync.Mutex
	done := make(chan struct{})
	go b.pumpRelayToClient(conn, relay, done)
	go b.heartbeatLoop(relay, &writeMu, done)
	b.pumpClientToRelay(conn, relay, &writeMu)
	<-done
}

// heartbeatLoop sends periodic Heartbeat frames so the relay never evicts
// this connection as idle, matching the streamer's own cadence
// (spec.md §4.4).
func (b *Bridge) heartbeatLoop(relay net.Conn, writeMu *sync.Mutex, done <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			writeMu.Lock()
			err := wire.WriteFrame(relay, wire.Frame{Kind: wire.KindHeartbeat})
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (b *Bridge) dialRelay(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{}
	if b.opts.TLSConfig != nil {
		return tls.DialWithDialer(dialer, "tcp", b.opts.RelayAddress, b.opts.TLSConfig)
	}
	return dialer.DialContext(ctx, "tcp", b.opts.RelayAddress)
}

// pumpRelayToClient reads wire frames from the relay and forwards each
// as a WebSocket message, closing done when the relay connection ends.
func (b *Bridge) pumpRelayToClient(conn *websocket.Conn, relay net.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		frame, err := wire.ReadFrame(relay, b.opts.MaxFrameSize)
		if err != nil {
			return
		}

		switch frame.Kind {
		case wire.KindTerminalOutput:
			if err := conn.WriteMessage(websocket.BinaryMessage, frame.TerminalOutput); err != nil {
				return
			}
		case wire.KindSessions:
			if err := conn.WriteJSON(serverMessage{Type: "sessions", Sessions: frame.Sessions}); err != nil {
				return
			}
		case wire.KindDisconnected:
			if err := conn.WriteJSON(serverMessage{Type: "disconnected", Message: frame.Disconnected}); err != nil {
				return
			}
		case wire.KindError:
			if err := conn.WriteJSON(serverMessage{Type: "error", Message: frame.Error.Message}); err != nil {
				return
			}
			return
		}
	}
}

// pumpClientToRelay reads JSON messages from the browser and forwards
// them as wire frames to the relay, until the WebSocket closes.
func (b *Bridge) pumpClientToRelay(conn *websocket.Conn, relay net.Conn, writeMu *sync.Mutex) {
	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		var frame wire.Frame
		switch msg.Type {
		case "list":
			frame = wire.Frame{Kind: wire.KindListSessions}
		case "watch":
			frame = wire.Frame{Kind: wire.KindWatchSession, WatchSession: msg.SessionID}
		case "unwatch":
			frame = wire.Frame{Kind: wire.KindUnwatchSession}
		default:
			continue
		}

		writeMu.Lock()
		err := wire.WriteFrame(relay, frame)
		writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

// heartbeatInterval matches the streamer's own cadence (spec.md §4.4) so
// the relay never evicts an idle browser watcher for a missed heartbeat.
const heartbeatInterval = 30 * time.Second
