package relay

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/doy/teleterm/internal/registry"
	"github.com/doy/teleterm/internal/wire"
)

// serveStreamer registers a new session for this connection and pumps
// TerminalOutput, Resize, and Heartbeat frames from it into the
// registry until it disconnects, at which point the session is torn
// down and its watchers notified (spec.md §4.6).
func (srv *Server) serveStreamer(ctx context.Context, conn net.Conn, displayName string, login *wire.LoginPayload) {
	session := srv.registry.Register(displayName, login.Title, int(login.Cols), int(login.Rows))
	srv.logger.Printf("relay: %s: streamer %q registered session %s", conn.RemoteAddr(), displayName, session.ID)

	defer func() {
		notify := wire.Frame{Kind: wire.KindDisconnected, Disconnected: "streamer disconnected"}
		if _, err := srv.registry.TearDownSession(session.ID, &notify); err != nil && !errors.Is(err, registry.ErrSessionNotFound) {
			srv.logger.Printf("relay: %s: tear down session %s: %v", conn.RemoteAddr(), session.ID, err)
		}
		srv.logger.Printf("relay: %s: streamer %q session %s ended", conn.RemoteAddr(), displayName, session.ID)
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(srv.opts.ReadTimeout))
		frame, err := wire.ReadFrame(conn, srv.opts.MaxFrameSize)
		if err != nil {
			return
		}

		switch frame.Kind {
		case wire.KindTerminalOutput:
			if _, err := srv.registry.Broadcast(session.ID, frame); err != nil {
				return
			}
		case wire.KindResize:
			if frame.Resize == nil {
				continue
			}
			session.Resize(int(frame.Resize.Cols), int(frame.Resize.Rows))
			if _, err := srv.registry.Broadcast(session.ID, frame); err != nil {
				return
			}
		case wire.KindHeartbeat:
			session.Touch()
		default:
			srv.sendError(conn, wire.ErrCodeMalformed, "unexpected frame kind on a streamer connection: "+frame.Kind.String())
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
