package streamer

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"github.com/doy/teleterm/internal/wire"
)

const defaultOAuthRedirectAddr = "127.0.0.1:44141"

// DialOptions configures Dial. It is shared by the streamer's own
// reconnect loop and by watcher-side clients (spec.md §4.4/§4.7 use the
// same Login-then-optional-OAuth handshake regardless of which side of
// the wire ends up sending TerminalOutput frames).
type DialOptions struct {
	ServerAddress string
	TLS           bool
	TLSServerName string

	Login wire.LoginPayload

	MaxFrameSize uint32

	OAuthRedirectAddr string
	OpenBrowser       func(url string) error

	Logger *log.Logger
}

// Dial opens a connection to a relay server, sends the Login frame, and
// completes the OAuth CLI redirect dance if the relay demands one.
func Dial(ctx context.Context, opts DialOptions) (net.Conn, error) {
	if opts.MaxFrameSize == 0 {
		opts.MaxFrameSize = wire.DefaultMaxFrameSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	var conn net.Conn
	var err error
	if opts.TLS {
		d := &tls.Dialer{Config: &tls.Config{ServerName: opts.TLSServerName}}
		conn, err = d.DialContext(ctx, "tcp", opts.ServerAddress)
	} else {
		d := &net.Dialer{}
		conn, err = d.DialContext(ctx, "tcp", opts.ServerAddress)
	}
	if err != nil {
		return nil, fmt.Errorf("streamer: dial %s: %w", opts.ServerAddress, err)
	}

	login := opts.Login
	if err := wire.WriteFrame(conn, wire.Frame{Kind: wire.KindLogin, Login: &login}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("streamer: send login: %w", err)
	}

	// The relay sends nothing on a successful plain login, only an Error
	// on failure (or an OauthCliRequest to begin the redirect dance). A
	// short bounded read tells the two apart without an explicit ack.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	frame, ferr := wire.ReadFrame(conn, opts.MaxFrameSize)
	if ferr == nil {
		switch frame.Kind {
		case wire.KindError:
			conn.Close()
			return nil, fmt.Errorf("streamer: login rejected: %s", errorMessage(frame.Error))
		case wire.KindOauthCliRequest:
			if err := completeOAuthCLI(ctx, conn, frame.OauthCliRequest, opts, logger); err != nil {
				conn.Close()
				return nil, err
			}
			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			if frame2, err2 := wire.ReadFrame(conn, opts.MaxFrameSize); err2 == nil && frame2.Kind == wire.KindError {
				conn.Close()
				return nil, fmt.Errorf("streamer: oauth login rejected: %s", errorMessage(frame2.Error))
			}
		}
	}

	conn.SetReadDeadline(time.Time{})
	return conn, nil
}

func errorMessage(p *wire.ErrorPayload) string {
	if p == nil {
		return "unknown error"
	}
	return p.Message
}

// completeOAuthCLI runs the client half of spec.md §4.4/§4.8's redirect
// dance: open req.URL in a browser, capture the authorization code on a
// local loopback listener, and reply with OauthCliResponse.
func completeOAuthCLI(ctx context.Context, conn net.Conn, req *wire.OauthCliRequestPayload, opts DialOptions, logger *log.Logger) error {
	if req == nil {
		return fmt.Errorf("streamer: relay sent an empty oauth request")
	}

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code parameter", http.StatusBadRequest)
			select {
			case errCh <- fmt.Errorf("streamer: oauth redirect had no code parameter"):
			default:
			}
			return
		}
		fmt.Fprintln(w, "Login complete, you may close this window.")
		select {
		case codeCh <- code:
		default:
		}
	})

	addr := opts.OAuthRedirectAddr
	if addr == "" {
		addr = defaultOAuthRedirectAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("streamer: oauth redirect listener on %s: %w", addr, err)
	}
	httpSrv := &http.Server{Handler: mux}
	go httpSrv.Serve(ln)
	defer httpSrv.Close()

	open := opts.OpenBrowser
	if open == nil {
		open = openBrowser
	}
	if err := open(req.URL); err != nil {
		logger.Printf("streamer: open this URL in a browser to finish logging in: %s", req.URL)
	} else {
		logger.Printf("streamer: opened a browser to finish logging in: %s", req.URL)
	}

	select {
	case code := <-codeCh:
		return wire.WriteFrame(conn, wire.Frame{
			Kind:            wire.KindOauthCliResponse,
			OauthCliRespose: &wire.OauthCliResponsePayload{Method: req.Method, Code: code},
		})
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("streamer: timed out waiting for the oauth redirect")
	}
}

// openBrowser shells out to the platform's URL opener.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
