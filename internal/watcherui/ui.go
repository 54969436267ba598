// Package watcherui implements the keyboard-driven menu described in
// spec.md §4.7: a live-refreshed list of sessions, letter-key selection,
// streaming of the chosen session, and return-to-menu on "q". It knows
// nothing about the transport beyond the wire.Frame protocol, so it can
// be driven by a real terminal or, in tests, by plain channels.
package watcherui

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"time"

	"github.com/doy/teleterm/internal/wire"
)

const listRefreshInterval = 3 * time.Second

// UI drives one watcher connection's menu/attached lifecycle.
type UI struct {
	conn         net.Conn
	out          io.Writer
	localCols    int
	localRows    int
	maxFrameSize uint32
	logger       *log.Logger

	sessions []wire.SessionInfo
	attached string // session id, or "" for menu
}

// New builds a UI writing rendered output to out. localCols/localRows
// are the watcher's own terminal size, used to flag size-mismatched
// sessions in the menu.
func New(conn net.Conn, out io.Writer, localCols, localRows int, maxFrameSize uint32, logger *log.Logger) *UI {
	if maxFrameSize == 0 {
		maxFrameSize = wire.DefaultMaxFrameSize
	}
	if logger == nil {
		logger = log.Default()
	}
	return &UI{conn: conn, out: out, localCols: localCols, localRows: localRows, maxFrameSize: maxFrameSize, logger: logger}
}

// Run drives the UI until ctx is canceled, the connection closes, keys
// is closed (Run then returns nil), or the user presses 'q' in the menu
// (Run then returns io.EOF). keys
// delivers one decoded keypress at a time (letters select a session by
// menu position; 'q' either detaches or exits, per spec.md §4.7).
func (u *UI) Run(ctx context.Context, keys <-chan byte) error {
	frames := make(chan wire.Frame)
	readErrs := make(chan error, 1)
	go func() {
		for {
			u.conn.SetReadDeadline(time.Time{})
			f, err := wire.ReadFrame(u.conn, u.maxFrameSize)
			if err != nil {
				readErrs <- err
				return
			}
			select {
			case frames <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := u.requestSessions(); err != nil {
		return err
	}
	u.renderMenu()

	ticker := time.NewTicker(listRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErrs:
			return err

		case <-ticker.C:
			if u.attached == "" {
				if err := u.requestSessions(); err != nil {
					return err
				}
			}

		case frame := <-frames:
			switch frame.Kind {
			case wire.KindSessions:
				u.sessions = frame.Sessions
				if u.attached == "" {
					u.renderMenu()
				}
			case wire.KindTerminalOutput:
				if u.attached != "" {
					u.out.Write(frame.TerminalOutput)
				}
			case wire.KindResize, wire.KindHeartbeat:
				// ignored by the menu UI; a real terminal-attached client
				// would resize its local emulator here.
			case wire.KindDisconnected:
				u.attached = ""
				fmt.Fprintf(u.out, "\r\n[session ended: %s]\r\n", frame.Disconnected)
				if err := u.requestSessions(); err != nil {
					return err
				}
				u.renderMenu()
			case wire.KindError:
				u.logger.Printf("watcherui: server error: %s", errorMessage(frame.Error))
			}

		case key, ok := <-keys:
			if !ok {
				return nil
			}
			if err := u.handleKey(key); err != nil {
				return err
			}
		}
	}
}

func (u *UI) handleKey(key byte) error {
	if u.attached != "" {
		if key == 'q' {
			u.attached = ""
			if err := wire.WriteFrame(u.conn, wire.Frame{Kind: wire.KindUnwatchSession}); err != nil {
				return err
			}
			if err := u.requestSessions(); err != nil {
				return err
			}
			u.renderMenu()
		}
		return nil
	}

	if key == 'q' {
		return io.EOF
	}

	idx := letterIndex(key)
	if idx < 0 || idx >= len(u.sessions) {
		return nil
	}
	session := u.sessions[idx]
	if err := wire.WriteFrame(u.conn, wire.Frame{Kind: wire.KindWatchSession, WatchSession: session.ID}); err != nil {
		return err
	}
	u.attached = session.ID
	fmt.Fprintf(u.out, "\x1b[2J\x1b[H")
	return nil
}

func (u *UI) requestSessions() error {
	return wire.WriteFrame(u.conn, wire.Frame{Kind: wire.KindListSessions})
}

// renderMenu prints the current session list, one row per session,
// keyed by lowercase letters starting at 'a'. Sessions whose size
// doesn't match the watcher's own terminal are flagged, per spec.md
// §4.7 ("the server does not refuse such attaches").
func (u *UI) renderMenu() {
	fmt.Fprintf(u.out, "\x1b[2J\x1b[Hteleterm — live sessions (press a letter to watch, q to quit)\r\n\r\n")
	if len(u.sessions) == 0 {
		fmt.Fprintf(u.out, "  (none)\r\n")
		return
	}
	for i, s := range u.sessions {
		if i >= 26 {
			break
		}
		mismatch := ""
		if int(s.Cols) != u.localCols || int(s.Rows) != u.localRows {
			mismatch = " \x1b[33m[size mismatch]\x1b[0m"
		}
		fmt.Fprintf(u.out, "  %c) %-16s %-24s %dx%d  idle %ds  watchers %d%s\r\n",
			'a'+i, s.DisplayName, s.Title, s.Cols, s.Rows, s.IdleSeconds, s.WatcherCount, mismatch)
	}
}

func letterIndex(key byte) int {
	if key >= 'a' && key <= 'z' {
		return int(key - 'a')
	}
	return -1
}

func errorMessage(p *wire.ErrorPayload) string {
	if p == nil {
		return "unknown error"
	}
	return p.Message
}
