package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/doy/teleterm/internal/config"
	"github.com/doy/teleterm/internal/ptysup"
	"github.com/doy/teleterm/internal/recording"
	"github.com/doy/teleterm/internal/ttyrec"
)

func runRecord(cmd *cobra.Command, args []string) error {
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

	workDir, _ := os.Getwd()
	sup, err := ptysup.Spawn(ptysup.Options{Command: command, Args: commandArgs, WorkingDir: workDir, Cols: cols, Rows: rows})
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

	recordingsDir := config.RecordingsDir(cfg)
	store, err := recording.Open(recordingsDBPath(recordingsDir), recordingsDir)
	if err != nil {
		return fmt.Errorf("record: open recording store: %w", err)
	}
	defer store.Close()

	sessionID := uuid.NewString()
	filename := sessionID + ".ttyrec"
	path := filepath.Join(recordingsDir, filename)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("record: create %s: %w", path, err)
	}
	defer f.Close()

	rec := ttyrec.NewWriter(f)
	startTime := time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	go io.Copy(sup, os.Stdin)

	fmt.Fprintf(os.Stderr, "recording to %s\r\n", path)

	writeChunk := func(chunk []byte) error {
		os.Stdout.Write(chunk)
		return rec.WriteFrame(chunk)
	}

	pumpDone := make(chan error, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				// Only an interactive abort (SIGINT/SIGTERM) cancels ctx;
				// the child exiting is noticed through sup.Output()
				// closing. Drain whatever sup.Output() already has queued
				// before treating this as done, so bytes the child wrote
				// before the abort still land in the .ttyrec file rather
				// than being dropped by a lucky select.
				for {
					select {
					case chunk, ok := <-sup.Output():
						if !ok {
							pumpDone <- sup.ReadError()
							return
						}
						if err := writeChunk(chunk); err != nil {
							pumpDone <- err
							return
						}
					default:
						pumpDone <- ctx.Err()
						return
					}
				}
			case chunk, ok := <-sup.Output():
				if !ok {
					pumpDone <- sup.ReadError()
					return
				}
				if err := writeChunk(chunk); err != nil {
					pumpDone <- err
					return
				}
			}
		}
	}()

	// Do not cancel ctx here: the pump goroutine notices sup.Output()
	// close on its own once the pty has been fully drained, and canceling
	// early would race that drain the same way it would in the streamer
	// (see internal/streamer/streamer.go's Run).
	exitCode, waitErr := sup.Wait()
	<-pumpDone
	rec.Flush()

	meta := recording.Metadata{
		SessionID:       sessionID,
		Filename:        filename,
		Command:         command,
		Args:            commandArgs,
		WorkDir:         workDir,
		StartTime:       startTime,
		DurationSeconds: time.Since(startTime).Seconds(),
		Cols:            cols,
		Rows:            rows,
		Title:           command,
		RecordingPath:   path,
	}
	if err := store.Save(meta); err != nil {
		return fmt.Errorf("record: save metadata: %w", err)
	}

	if waitErr != nil {
		return waitErr
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}
