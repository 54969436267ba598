package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/doy/teleterm/internal/config"
	"github.com/doy/teleterm/internal/version"
)

var rootCmd *cobra.Command

// usageError marks a bad invocation (unknown flag, wrong argument count,
// wrong argument combination) as distinct from a runtime failure, so
// main can honor spec.md §6's "exit 0 on clean exit; 1 on fatal error;
// 2 on misuse".
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func init() {
	rootCmd = &cobra.Command{
		Use:   "teleterm",
		Short: "Broadcast a terminal session to read-only watchers",
		Long: `teleterm streams a PTY-backed terminal session to a relay server so
that other people can watch it live, records sessions to disk for later
playback, and runs the relay server itself.`,
	}
	rootCmd.Version = version.String()
	rootCmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")
	rootCmd.PersistentFlags().String("config", "", "path to config.toml (defaults to the standard search path)")
	rootCmd.SilenceUsage = true
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})
}

func main() {
	streamCmd := &cobra.Command{
		Use:                "stream [--] [command] [args...]",
		Short:              "Run a command and broadcast it to the relay server",
		Args:               cobra.ArbitraryArgs,
		DisableFlagParsing: true,
		SilenceUsage:       true,
		SilenceErrors:      true,
		RunE:               runStream,
	}

	watchCmd := &cobra.Command{
		Use:           "watch",
		Short:         "Connect to the relay server and watch a live session",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runWatch,
	}

	recordCmd := &cobra.Command{
		Use:                "record [--] [command] [args...]",
		Short:              "Run a command and record it to a local ttyrec file",
		Args:               cobra.ArbitraryArgs,
		DisableFlagParsing: true,
		SilenceUsage:       true,
		SilenceErrors:      true,
		RunE:               runRecord,
	}

	playCmd := &cobra.Command{
		Use:   "play <file.ttyrec>",
		Short: "Play back a recorded ttyrec file, or list/remove past recordings",
		Args: func(cmd *cobra.Command, args []string) error {
			list, _ := cmd.Flags().GetBool("list")
			rm, _ := cmd.Flags().GetString("rm")
			if list || rm != "" {
				if len(args) != 0 {
					return usageError{fmt.Errorf("play: --list and --rm take no positional arguments")}
				}
				return nil
			}
			if len(args) != 1 {
				return usageError{fmt.Errorf("play requires exactly one <file.ttyrec> or <session-id> argument, or --list / --rm <session-id>")}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runPlay,
	}
	playCmd.Flags().Float64("speed", 1.0, "playback speed multiplier")
	playCmd.Flags().Bool("list", false, "list past recordings instead of playing one")
	playCmd.Flags().String("rm", "", "remove a past recording by session id instead of playing one")

	serverCmd := &cobra.Command{
		Use:           "server",
		Short:         "Run the relay server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServer,
	}

	rootCmd.AddCommand(streamCmd, watchCmd, recordCmd, playCmd, serverCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var uerr usageError
		if errors.As(err, &uerr) || isUsageError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// isUsageError recognizes cobra's own unmarked errors for unrecognized
// subcommands and flags, which are produced before any subcommand's
// RunE runs and are misuse rather than a runtime failure.
func isUsageError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "unknown command") ||
		strings.Contains(msg, "unknown flag") ||
		strings.Contains(msg, "unknown shorthand flag")
}

// loadConfig reads the --config flag (or the default search path) into
// a config.Config, layered on config.Default().
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.LoadDefaultPath()
	}
	return config.Load(path)
}

// recordingsDBPath returns the sqlite metadata index path inside the
// configured recordings directory.
func recordingsDBPath(dir string) string {
	return filepath.Join(dir, "recordings.db")
}
