package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/doy/teleterm/internal/streamer"
	"github.com/doy/teleterm/internal/watcherui"
	"github.com/doy/teleterm/internal/wire"
)

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	cols, rows := 80, 24
	if terminal.IsTerminal(0) {
		if c, r, err := terminal.GetSize(0); err == nil {
			cols, rows = c, r
		}
	}

	username := cfg.Client.Username
	if username == "" {
		username = os.Getenv("USER")
	}
	loginMethod := cfg.Client.LoginMethod
	if loginMethod == "" {
		loginMethod = "plain"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := streamer.Dial(ctx, streamer.DialOptions{
		ServerAddress: cfg.Client.ServerAddress,
		TLS:           cfg.Client.TLS,
		TLSServerName: cfg.Client.TLSServerName,
		Login:         wire.LoginPayload{Method: loginMethod, Credential: username},
		Logger:        log.New(os.Stderr, "", log.LstdFlags),
	})
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer conn.Close()

	var oldState *terminal.State
	if terminal.IsTerminal(0) {
		oldState, err = terminal.MakeRaw(0)
		if err == nil {
			defer terminal.Restore(0, oldState)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	keys := make(chan byte, 16)
	go readKeys(os.Stdin, keys)

	ui := watcherui.New(conn, os.Stdout, cols, rows, 0, log.New(os.Stderr, "", log.LstdFlags))
	err = ui.Run(ctx, keys)
	if err == io.EOF || err == context.Canceled {
		return nil
	}
	return err
}

// readKeys feeds one byte at a time from r onto keys until r errors or
// closes.
func readKeys(r *os.File, keys chan<- byte) {
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			keys <- buf[0]
		}
		if err != nil {
			close(keys)
			return
		}
	}
}
