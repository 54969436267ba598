// Package relay implements the server side of teleterm's session
// broadcast: it accepts streamer and watcher connections, classifies
// them by their Login frame, authenticates them against an
// auth.Registry, and wires streamers and watchers together through an
// internal/registry.Registry (spec.md §4.6).
package relay

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/doy/teleterm/internal/auth"
	"github.com/doy/teleterm/internal/registry"
	"github.com/doy/teleterm/internal/wire"
)

// Options configures a Server.
type Options struct {
	ListenAddress       string
	AllowedLoginMethods []string
	ReadTimeout         time.Duration
	MaxFrameSize        uint32

	// TLSConfig, when non-nil, causes the listener to speak TLS. Callers
	// build this from the configured PKCS#12 identity (see LoadIdentity)
	// before constructing the Server, so identity loading happens while
	// the process still holds whatever privilege reading the file needs.
	TLSConfig *tls.Config

	// DropPrivilege, when set, is invoked once the listening socket (and
	// TLS identity, if any) is already open, and before the first
	// connection is accepted. It implements spec.md §4.6's ordering
	// requirement for binding a privileged port and then dropping to an
	// unprivileged uid/gid.
	DropPrivilege func() error

	Logger *log.Logger
}

// Server is teleterm's relay: one TCP (optionally TLS) listener whose
// accepted connections are dispatched to either the streamer or the
// watcher handling loop depending on their Login frame (spec.md §4.6).
type Server struct {
	opts     Options
	auth     *auth.Registry
	registry *registry.Registry
	logger   *log.Logger

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// New builds a Server backed by authRegistry and sessionRegistry.
func New(opts Options, authRegistry *auth.Registry, sessionRegistry *registry.Registry) *Server {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 120 * time.Second
	}
	if opts.MaxFrameSize == 0 {
		opts.MaxFrameSize = wire.DefaultMaxFrameSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		opts:     opts,
		auth:     authRegistry,
		registry: sessionRegistry,
		logger:   logger,
	}
}

// ListenAndServe binds the configured address and serves connections
// until ctx is canceled or a fatal listener error occurs.
func (srv *Server) ListenAndServe(ctx context.Context) error {
	var ln net.Listener
	var err error
	if srv.opts.TLSConfig != nil {
		ln, err = tls.Listen("tcp", srv.opts.ListenAddress, srv.opts.TLSConfig)
	} else {
		ln, err = net.Listen("tcp", srv.opts.ListenAddress)
	}
	if err != nil {
		return fmt.Errorf("relay: listen %s: %w", srv.opts.ListenAddress, err)
	}

	srv.mu.Lock()
	srv.listener = ln
	srv.mu.Unlock()

	if srv.opts.DropPrivilege != nil {
		if err := srv.opts.DropPrivilege(); err != nil {
			ln.Close()
			return fmt.Errorf("relay: drop privileges: %w", err)
		}
	}

	srv.logger.Printf("relay: listening on %s (tls=%v)", srv.opts.ListenAddress, srv.opts.TLSConfig != nil)

	srv.wg.Add(1)
	go func() {
		defer srv.wg.Done()
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				srv.wg.Wait()
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				srv.wg.Wait()
				return nil
			}
			srv.logger.Printf("relay: accept: %v", err)
			continue
		}

		srv.wg.Add(1)
		go func() {
			defer srv.wg.Done()
			srv.handleConn(ctx, conn)
		}()
	}
}

// Shutdown closes the listener and waits for every connection handler,
// and for the goroutine watching ListenAndServe's ctx, to return; it
// therefore does not return until that ctx has been canceled. It does
// not close already accepted connections: their handlers return once
// they see ctx canceled after their next frame, or on a read error or
// timeout.
func (srv *Server) Shutdown() error {
	srv.mu.Lock()
	ln := srv.listener
	srv.mu.Unlock()
	if ln == nil {
		return nil
	}
	err := ln.Close()
	srv.wg.Wait()
	return err
}

// handleConn reads the connection's first frame, which must be a Login,
// authenticates it, then dispatches to the streamer or watcher loop
// depending on LoginPayload.IsStreamer (spec.md §4.6).
func (srv *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(srv.opts.ReadTimeout))
	frame, err := wire.ReadFrame(conn, srv.opts.MaxFrameSize)
	if err != nil {
		srv.logger.Printf("relay: %s: read login frame: %v", conn.RemoteAddr(), err)
		return
	}
	if frame.Kind != wire.KindLogin || frame.Login == nil {
		srv.sendError(conn, wire.ErrCodeMalformed, "first frame must be Login")
		return
	}

	displayName, err := srv.authenticate(ctx, conn, frame.Login)
	if err != nil {
		srv.logger.Printf("relay: %s: auth failed: %v", conn.RemoteAddr(), err)
		if errors.Is(err, errMethodNotAllowed) {
			srv.sendError(conn, wire.ErrCodeAuthMethodNotAllowed, "login method not allowed")
		} else {
			srv.sendError(conn, wire.ErrCodeAuthFailed, "authentication failed")
		}
		return
	}

	if frame.Login.IsStreamer() {
		srv.serveStreamer(ctx, conn, displayName, frame.Login)
	} else {
		srv.serveWatcher(ctx, conn, displayName)
	}
}

var errMethodNotAllowed = errors.New("relay: login method not allowed")

// authenticate runs the login method named in login against srv.auth,
// enforcing srv.opts.AllowedLoginMethods, and returns the resulting
// display name (spec.md §4.8).
func (srv *Server) authenticate(ctx context.Context, conn net.Conn, login *wire.LoginPayload) (string, error) {
	method, ok := srv.auth.Allowed(login.Method, srv.opts.AllowedLoginMethods)
	if !ok {
		return "", errMethodNotAllowed
	}

	switch m := method.(type) {
	case interface {
		Authenticate(ctx context.Context, credential string) (string, error)
	}:
		return m.Authenticate(ctx, login.Credential)
	case interface {
		RequestURL(ctx context.Context) (string, error)
		Exchange(ctx context.Context, code string) (string, error)
	}:
		return srv.oauthCLIDance(ctx, conn, login.Method, m)
	default:
		return "", fmt.Errorf("relay: method %q has no known adapter shape", login.Method)
	}
}

// oauthCLIDance runs the three-message OAuth exchange described in
// spec.md §4.4: the server sends an OauthCliRequest carrying the
// authorization URL, then blocks for the client's OauthCliResponse
// carrying the captured code.
func (srv *Server) oauthCLIDance(ctx context.Context, conn net.Conn, method string, m interface {
	RequestURL(ctx context.Context) (string, error)
	Exchange(ctx context.Context, code string) (string, error)
}) (string, error) {
	url, err := m.RequestURL(ctx)
	if err != nil {
		return "", err
	}
	if err := wire.WriteFrame(conn, wire.Frame{
		Kind:            wire.KindOauthCliRequest,
		OauthCliRequest: &wire.OauthCliRequestPayload{Method: method, URL: url},
	}); err != nil {
		return "", err
	}

	conn.SetReadDeadline(time.Now().Add(srv.opts.ReadTimeout))
	resp, err := wire.ReadFrame(conn, srv.opts.MaxFrameSize)
	if err != nil {
		return "", err
	}
	if resp.Kind != wire.KindOauthCliResponse || resp.OauthCliRespose == nil {
		return "", fmt.Errorf("relay: expected OauthCliResponse, got %s", resp.Kind)
	}

	return m.Exchange(ctx, resp.OauthCliRespose.Code)
}

func (srv *Server) sendError(conn net.Conn, code uint32, message string) {
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_ = wire.WriteFrame(conn, wire.Frame{Kind: wire.KindError, Error: &wire.ErrorPayload{Code: code, Message: message}})
}

// sendErrorLocked is sendError for a connection whose writes must be
// serialized against a concurrent writer goroutine (the watcher fan-out
// loop; see serveWatcher).
func (srv *Server) sendErrorLocked(conn net.Conn, writeMu *sync.Mutex, code uint32, message string) {
	writeMu.Lock()
	defer writeMu.Unlock()
	srv.sendError(conn, code, message)
}
