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

	"github.com/doy/teleterm/internal/config"
	"github.com/doy/teleterm/internal/ptysup"
	"github.com/doy/teleterm/internal/streamer"
)

// defaultCommand resolves the child process to run when none is given on
// the command line: $SHELL as an interactive login shell, or /bin/sh.
func defaultCommand() (string, []string) {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}
	return shell, []string{"-i", "-l"}
}

func commandFromArgsOrConfig(args []string, cfg config.Command) (string, []string) {
	if len(args) > 0 {
		return args[0], args[1:]
	}
	if cfg.Command != "" {
		return cfg.Command, cfg.Args
	}
	return defaultCommand()
}

func runStream(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadDefaultPath()
	if err != nil {
		return err
	}
	command, commandArgs := commandFromArgsOrConfig(args, cfg.Command)

	cols, rows := 80, 24
	if terminal.IsTerminal(0) {
		if c, r, err := terminal.GetSize(0); err == nil {
			cols, rows = c, r
		}
	}

	sup, err := ptysup.Spawn(ptysup.Options{Command: command, Args: commandArgs, Cols: cols, Rows: rows})
	if err != nil {
		return fmt.Errorf("spawn %s: %w", command, err)
	}
	defer sup.Close()

	var oldState *terminal.State
	if terminal.IsTerminal(0) {
		oldState, err = terminal.MakeRaw(0)
		if err == nil {
			defer terminal.Restore(0, oldState)
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

	s := streamer.New(streamer.Options{
		ServerAddress: cfg.Client.ServerAddress,
		TLS:           cfg.Client.TLS,
		TLSServerName: cfg.Client.TLSServerName,
		LoginMethod:   loginMethod,
		Username:      username,
		Title:         command,
		LocalOutput:   os.Stdout,
		Logger:        log.New(os.Stderr, "", log.LstdFlags),
	}, sup, cols, rows)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	go io.Copy(sup, os.Stdin)

	stop := make(chan struct{})
	defer close(stop)
	resize := ptysup.WatchLocalResize(0, stop)

	exitCh := make(chan struct {
		code int
		err  error
	}, 1)
	go func() {
		code, err := sup.Wait()
		exitCh <- struct {
			code int
			err  error
		}{code, err}
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx, resize) }()

	select {
	case exit := <-exitCh:
		// Do not cancel ctx here: s.Run notices the pty's output channel
		// close on its own and returns once it has flushed everything the
		// child wrote, including its last bytes. Canceling ctx now would
		// race that flush against Run's select loop (spec.md §4.4).
		<-runErr
		if exit.err != nil {
			return exit.err
		}
		if exit.code != 0 {
			os.Exit(exit.code)
		}
		return nil
	case err := <-runErr:
		return err
	}
}
