package relay

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/doy/teleterm/internal/registry"
	"github.com/doy/teleterm/internal/wire"
)

// serveWatcher runs a watcher connection: a reader loop that processes
// ListSessions/WatchSession/UnwatchSession/Heartbeat frames, and a
// writer goroutine that drains the watcher's registry-side queue onto
// the socket (spec.md §4.6). The two run concurrently because a watcher
// can receive live broadcast frames at any time, independent of when it
// next sends a request.
func (srv *Server) serveWatcher(ctx context.Context, conn net.Conn, displayName string) {
	w := registry.NewWatcher(uuid.NewString(), displayName, 0, 0, 0)
	srv.logger.Printf("relay: %s: watcher %q connected as %s", conn.RemoteAddr(), displayName, w.ID)

	var mu sync.Mutex
	attachedTo := ""

	// writeMu serializes every write to conn: the writer goroutine drains
	// live broadcast frames while the reader goroutine below replies to
	// ListSessions/WatchSession requests and error frames on the same
	// connection, and net.Conn does not allow concurrent Write calls.
	var writeMu sync.Mutex

	done := make(chan struct{})
	var writerWG sync.WaitGroup
	writerWG.Add(1)
	go func() {
		defer writerWG.Done()
		srv.watcherWriteLoop(conn, &writeMu, w, done)
	}()

	defer func() {
		close(done)
		writerWG.Wait()
		mu.Lock()
		sid := attachedTo
		mu.Unlock()
		if sid != "" {
			srv.registry.DetachWatcher(sid, w.ID)
		}
		w.Close()
		srv.logger.Printf("relay: %s: watcher %q disconnected", conn.RemoteAddr(), displayName)
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(srv.opts.ReadTimeout))
		frame, err := wire.ReadFrame(conn, srv.opts.MaxFrameSize)
		if err != nil {
			return
		}

		switch frame.Kind {
		case wire.KindListSessions:
			sessions := srv.registry.List()
			writeMu.Lock()
			err := wire.WriteFrame(conn, wire.Frame{Kind: wire.KindSessions, Sessions: sessions})
			writeMu.Unlock()
			if err != nil {
				return
			}
		case wire.KindWatchSession:
			mu.Lock()
			prev := attachedTo
			mu.Unlock()
			if prev != "" {
				srv.registry.DetachWatcher(prev, w.ID)
			}
			if err := srv.registry.AttachWatcher(frame.WatchSession, w); err != nil {
				srv.sendErrorLocked(conn, &writeMu, wire.ErrCodeSessionNotFound, "no such session")
				mu.Lock()
				attachedTo = ""
				mu.Unlock()
				continue
			}
			mu.Lock()
			attachedTo = frame.WatchSession
			mu.Unlock()
		case wire.KindUnwatchSession:
			mu.Lock()
			sid := attachedTo
			attachedTo = ""
			mu.Unlock()
			if sid != "" {
				srv.registry.DetachWatcher(sid, w.ID)
			}
		case wire.KindHeartbeat:
			// no-op; reading the frame is enough to keep the read deadline moving
		default:
			srv.sendErrorLocked(conn, &writeMu, wire.ErrCodeMalformed, "unexpected frame kind on a watcher connection: "+frame.Kind.String())
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-w.Evicted():
			return
		default:
		}
	}
}

// watcherWriteLoop drains w's outbound queue onto conn until done is
// closed or the watcher is evicted as a SlowConsumer (spec.md §4.5).
func (srv *Server) watcherWriteLoop(conn net.Conn, writeMu *sync.Mutex, w *registry.Watcher, done <-chan struct{}) {
	for {
		for {
			b, ok := w.Dequeue()
			if !ok {
				break
			}
			writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(srv.opts.ReadTimeout))
			_, err := conn.Write(b)
			writeMu.Unlock()
			if err != nil {
				return
			}
		}

		select {
		case <-done:
			return
		case <-w.Evicted():
			srv.sendErrorLocked(conn, writeMu, wire.ErrCodeSlowConsumer, "queue overflow")
			// Force the reader goroutine's blocked ReadFrame to unwind
			// immediately rather than waiting out the read deadline.
			conn.Close()
			return
		case <-w.Notify():
		}
	}
}
