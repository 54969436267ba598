package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/doy/teleterm/internal/config"
	"github.com/doy/teleterm/internal/recording"
	"github.com/doy/teleterm/internal/ttyrec"
)

func runPlay(cmd *cobra.Command, args []string) error {
	list, err := cmd.Flags().GetBool("list")
	if err != nil {
		return err
	}
	rmSessionID, err := cmd.Flags().GetString("rm")
	if err != nil {
		return err
	}
	speed, err := cmd.Flags().GetFloat64("speed")
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	recordingsDir := config.RecordingsDir(cfg)

	if list {
		return listRecordings(recordingsDir)
	}
	if rmSessionID != "" {
		return removeRecording(recordingsDir, rmSessionID)
	}

	path, err := resolveRecordingPath(recordingsDir, args[0])
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("play: open %s: %w", path, err)
	}
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := ttyrec.Play(ctx, f, os.Stdout, ttyrec.PlayOptions{Speed: speed}); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	return nil
}

// resolveRecordingPath treats arg as a direct file path when it exists on
// disk, and otherwise as a session id to look up in the recording store —
// letting `teleterm play <session-id>` work without the caller needing to
// remember where recordings live.
func resolveRecordingPath(recordingsDir, arg string) (string, error) {
	if _, err := os.Stat(arg); err == nil {
		return arg, nil
	}

	store, err := recording.Open(recordingsDBPath(recordingsDir), recordingsDir)
	if err != nil {
		return "", fmt.Errorf("play: open recording store: %w", err)
	}
	defer store.Close()

	meta, err := store.GetBySessionID(arg)
	if err != nil {
		return "", fmt.Errorf("play: %s is neither a readable file nor a known session id: %w", arg, err)
	}
	return meta.RecordingPath, nil
}

// listRecordings prints every recording's metadata, most recent first,
// and flags any .ttyrec file on disk that has no metadata row (e.g. left
// behind by a `record` run that was killed before it could save).
func listRecordings(recordingsDir string) error {
	store, err := recording.Open(recordingsDBPath(recordingsDir), recordingsDir)
	if err != nil {
		return fmt.Errorf("play: open recording store: %w", err)
	}
	defer store.Close()

	metas, err := store.LoadAll()
	if err != nil {
		return fmt.Errorf("play: list recordings: %w", err)
	}

	known := make(map[string]bool, len(metas))
	for _, m := range metas {
		known[m.RecordingPath] = true
		fmt.Fprintf(os.Stdout, "%s\t%s\t%s\t%.1fs\t%s\n",
			m.SessionID, m.StartTime.Format(time.RFC3339), m.Command, m.DurationSeconds, m.RecordingPath)
	}

	files, err := store.ScanRecordings()
	if err != nil {
		return fmt.Errorf("play: scan recordings directory: %w", err)
	}
	for _, path := range files {
		if !known[path] {
			fmt.Fprintf(os.Stderr, "play: %s has no recording metadata\n", filepath.Base(path))
		}
	}

	return nil
}

// removeRecording deletes a recording's metadata row and its .ttyrec
// file.
func removeRecording(recordingsDir, sessionID string) error {
	store, err := recording.Open(recordingsDBPath(recordingsDir), recordingsDir)
	if err != nil {
		return fmt.Errorf("play: open recording store: %w", err)
	}
	defer store.Close()

	meta, err := store.GetBySessionID(sessionID)
	if err != nil {
		return fmt.Errorf("play: %w", err)
	}

	if err := os.Remove(meta.RecordingPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("play: remove %s: %w", meta.RecordingPath, err)
	}
	if err := store.Delete(sessionID); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	return nil
}
