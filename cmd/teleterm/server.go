package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/doy/teleterm/internal/auth"
	"github.com/doy/teleterm/internal/config"
	"github.com/doy/teleterm/internal/registry"
	"github.com/doy/teleterm/internal/relay"
	"github.com/doy/teleterm/internal/web"
)

// oauthRedirectAddr is the loopback address the CLI's OAuth redirect
// listener binds to (see internal/streamer.DialOptions.OAuthRedirectAddr);
// the server needs the same value to build a matching redirect_uri.
const oauthRedirectAddr = "127.0.0.1:44141"

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)

	authRegistry, err := buildAuthRegistry(cfg)
	if err != nil {
		return err
	}
	sessionRegistry := registry.New()

	var tlsConfig *tls.Config
	if cfg.Server.TLSIdentityFile != "" {
		tlsConfig, err = relay.LoadIdentity(cfg.Server.TLSIdentityFile, cfg.Server.TLSIdentityPassword)
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}

	srv := relay.New(relay.Options{
		ListenAddress:       cfg.Server.ListenAddress,
		AllowedLoginMethods: cfg.Server.AllowedLoginMethods,
		ReadTimeout:         time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		TLSConfig:           tlsConfig,
		DropPrivilege: func() error {
			return relay.DropPrivileges(cfg.Server.UID, cfg.Server.GID)
		},
		Logger: logger,
	}, authRegistry, sessionRegistry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Printf("server: received signal, shutting down")
		cancel()
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	if cfg.Web.ListenAddress != "" {
		bridge := web.New(web.Options{
			RelayAddress: cfg.Server.ListenAddress,
			TLSConfig:    tlsConfig,
			LoginMethod:  "plain",
			Credential:   cfg.Web.Credential,
			Logger:       logger,
		})
		webSrv := &http.Server{Addr: cfg.Web.ListenAddress, Handler: bridge.Handler()}
		go func() {
			logger.Printf("server: web watcher listening on %s", cfg.Web.ListenAddress)
			if err := webSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("server: web watcher: %v", err)
			}
		}()
		go func() {
			<-ctx.Done()
			webSrv.Close()
		}()
	}

	logger.Printf("server: listening on %s (pid %d)", cfg.Server.ListenAddress, os.Getpid())

	select {
	case <-ctx.Done():
		if err := srv.Shutdown(); err != nil {
			logger.Printf("server: shutdown: %v", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

// buildAuthRegistry assembles the auth methods allowed by cfg: plain
// login is always available, and recurse_center is added when
// [oauth.recurse_center] is configured (spec.md §4.8).
func buildAuthRegistry(cfg config.Config) (*auth.Registry, error) {
	methods := []auth.Method{auth.Plain{}}

	if rc, ok := cfg.OAuth["recurse_center"]; ok {
		methods = append(methods, auth.NewRecurseCenter(auth.RecurseCenterConfig{
			ClientID:     rc.ClientID,
			ClientSecret: rc.ClientSecret,
			AuthURL:      rc.AuthURL,
			TokenURL:     rc.TokenURL,
			UserinfoURL:  rc.UserinfoURL,
			RedirectURL:  fmt.Sprintf("http://%s/oauth", oauthRedirectAddr),
		}))
	}

	return auth.NewRegistry(methods...), nil
}
