// Package streamer implements the client side of teleterm's broadcast:
// it is handed a PTY-backed process, mirrors its output into
// a local terminal buffer regardless of connection state, and maintains
// a best-effort connection to a relay server that reconnects with
// exponential backoff on failure (spec.md §4.4).
package streamer

import (
	"context"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/doy/teleterm/internal/ptysup"
	"github.com/doy/teleterm/internal/termbuf"
	"github.com/doy/teleterm/internal/wire"
)

// Options configures a Streamer.
type Options struct {
	ServerAddress string
	TLS           bool
	TLSServerName string

	LoginMethod string
	Username    string
	Title       string

	HeartbeatInterval time.Duration
	MaxFrameSize      uint32
	Backoff           BackoffConfig

	OAuthRedirectAddr string
	OpenBrowser       func(url string) error

	// LocalOutput, when set, receives every chunk of pty output as it is
	// fed into the local buffer — the `stream` command's passthrough to
	// the user's own terminal, independent of the relay connection.
	LocalOutput io.Writer

	Logger *log.Logger
}

// Streamer drives one PTY-backed stream against a relay server.
type Streamer struct {
	opts   Options
	pty    *ptysup.Supervisor
	buffer *termbuf.Buffer
	logger *log.Logger
}

// New builds a Streamer that mirrors pty's output. cols/rows seed the
// local terminal buffer's initial size and should match the pty's.
func New(opts Options, sup *ptysup.Supervisor, cols, rows int) *Streamer {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.MaxFrameSize == 0 {
		opts.MaxFrameSize = wire.DefaultMaxFrameSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Streamer{
		opts:   opts,
		pty:    sup,
		buffer: termbuf.New(cols, rows),
		logger: logger,
	}
}

// liveConn tracks one connection attempt's lifetime; fail is
// idempotent and is called by either the reader goroutine or a failed
// write, whichever notices the connection is dead first.
type liveConn struct {
	conn     net.Conn
	failed   chan struct{}
	failOnce sync.Once
}

func (lc *liveConn) fail() {
	lc.failOnce.Do(func() { close(lc.failed) })
}

// Run pumps the supervised pty's output into the local buffer and, when
// connected, onto the wire, until ctx is canceled or the pty exits.
// resize delivers local terminal resize events (see
// ptysup.WatchLocalResize); a nil channel disables resize forwarding.
func (s *Streamer) Run(ctx context.Context, resize <-chan ptysup.Size) error {
	var mu sync.Mutex
	var conn net.Conn
	var live *liveConn

	go s.connectLoop(ctx, &mu, &conn, &live)

	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()

	feed := func(chunk []byte) {
		s.buffer.Feed(chunk)
		if s.opts.LocalOutput != nil {
			s.opts.LocalOutput.Write(chunk)
		}
		s.sendFrame(&mu, &conn, &live, wire.Frame{Kind: wire.KindTerminalOutput, TerminalOutput: chunk})
	}

	for {
		select {
		case <-ctx.Done():
			// A caller may cancel ctx right after the pty child exits
			// (cmd/teleterm's stream.go does not; it waits for Run to
			// return on its own), so a chunk the pump goroutine already
			// queued before we observed ctx.Done() must still be flushed
			// rather than silently dropped (spec.md §4.4: "when the pty
			// child exits, finish flushing"). Drain whatever is already
			// buffered; do not block waiting for more, since ctx may
			// equally have been canceled by an interactive abort with
			// the child still running.
			for {
				select {
				case chunk, ok := <-s.pty.Output():
					if !ok {
						return s.pty.ReadError()
					}
					feed(chunk)
				default:
					return ctx.Err()
				}
			}

		case chunk, ok := <-s.pty.Output():
			if !ok {
				return s.pty.ReadError()
			}
			feed(chunk)

		case sz, ok := <-resize:
			if !ok {
				resize = nil
				continue
			}
			s.buffer.Resize(sz.Cols, sz.Rows)
			s.pty.Resize(sz.Cols, sz.Rows)
			s.sendFrame(&mu, &conn, &live, wire.Frame{
				Kind:   wire.KindResize,
				Resize: &wire.ResizePayload{Cols: uint16(sz.Cols), Rows: uint16(sz.Rows)},
			})

		case <-ticker.C:
			s.sendFrame(&mu, &conn, &live, wire.Frame{Kind: wire.KindHeartbeat})
		}
	}
}

// sendFrame writes frame to the current connection, if any, dropping it
// silently when disconnected: the local buffer already holds the
// authoritative state, and a future reconnect primes the watcher-side
// server with a fresh full-redraw snapshot rather than replaying missed
// frames (spec.md §4.4/§4.5).
func (s *Streamer) sendFrame(mu *sync.Mutex, connPtr *net.Conn, livePtr **liveConn, frame wire.Frame) {
	mu.Lock()
	conn := *connPtr
	lc := *livePtr
	mu.Unlock()
	if conn == nil {
		return
	}

	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := wire.WriteFrame(conn, frame); err != nil {
		lc.fail()
	}
}

// connectLoop maintains the connection, reconnecting with exponential
// backoff whenever the current one fails (spec.md §4.4's Backoff state).
func (s *Streamer) connectLoop(ctx context.Context, mu *sync.Mutex, connPtr *net.Conn, livePtr **liveConn) {
	bo := newBackoff(s.opts.Backoff)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, err := s.dialAndAuthenticate(ctx)
		if err != nil {
			s.logger.Printf("streamer: %v", err)
			delay := bo.next()
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		bo.reset()

		cols, rows := s.buffer.Size()
		contents := s.buffer.ContentsFormatted()
		primingErr := wire.WriteFrame(conn, wire.Frame{
			Kind: wire.KindResize, Resize: &wire.ResizePayload{Cols: uint16(cols), Rows: uint16(rows)},
		})
		if primingErr == nil {
			primingErr = wire.WriteFrame(conn, wire.Frame{Kind: wire.KindTerminalOutput, TerminalOutput: contents})
		}
		if primingErr != nil {
			conn.Close()
			continue
		}

		lc := &liveConn{conn: conn, failed: make(chan struct{})}
		mu.Lock()
		*connPtr = conn
		*livePtr = lc
		mu.Unlock()
		s.logger.Printf("streamer: connected to %s", s.opts.ServerAddress)

		go s.readLoop(conn, lc)

		select {
		case <-ctx.Done():
			conn.Close()
			return
		case <-lc.failed:
		}

		mu.Lock()
		if *livePtr == lc {
			*connPtr = nil
			*livePtr = nil
		}
		mu.Unlock()
		conn.Close()
		s.logger.Printf("streamer: disconnected, will retry")
	}
}

// readLoop watches an established connection for the relay closing it or
// sending an Error frame, either of which ends this connection attempt.
func (s *Streamer) readLoop(conn net.Conn, lc *liveConn) {
	for {
		conn.SetReadDeadline(time.Now().Add(2 * s.opts.HeartbeatInterval))
		frame, err := wire.ReadFrame(conn, s.opts.MaxFrameSize)
		if err != nil {
			lc.fail()
			return
		}
		if frame.Kind == wire.KindError && frame.Error != nil {
			s.logger.Printf("streamer: server error: %s", frame.Error.Message)
			lc.fail()
			return
		}
	}
}

// dialAndAuthenticate opens a connection, sends the Login frame, and
// completes the OAuth CLI dance if the configured method requires one.
func (s *Streamer) dialAndAuthenticate(ctx context.Context) (net.Conn, error) {
	cols, rows := s.buffer.Size()
	return Dial(ctx, DialOptions{
		ServerAddress: s.opts.ServerAddress,
		TLS:           s.opts.TLS,
		TLSServerName: s.opts.TLSServerName,
		Login: wire.LoginPayload{
			Method: s.opts.LoginMethod, Credential: s.opts.Username,
			Cols: uint16(cols), Rows: uint16(rows), Title: s.opts.Title,
		},
		MaxFrameSize:      s.opts.MaxFrameSize,
		OAuthRedirectAddr: s.opts.OAuthRedirectAddr,
		OpenBrowser:       s.opts.OpenBrowser,
		Logger:            s.logger,
	})
}

