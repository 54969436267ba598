// Package ptysup spawns a child process under a pseudo-terminal and
// exposes its output as a stream of byte chunks, its window as a
// resizable surface, and its lifecycle through a blocking Wait that
// reports the exit code.
package ptysup

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
)

// Options configures a spawned child.
type Options struct {
	Command    string
	Args       []string
	WorkingDir string
	Env        []string
	Cols       int
	Rows       int
}

// Supervisor owns one pty-backed child process.
type Supervisor struct {
	ptyFile *os.File
	cmd     *exec.Cmd

	output    chan []byte
	closeOnce sync.Once
	readErr   error

	waitOnce sync.Once
	waitErr  error
	exitCode int
}

// Spawn starts command under a fresh pty and immediately begins pumping
// its output into the returned Supervisor's Output channel. The pty's
// initial size is Options.Cols x Options.Rows.
func Spawn(opts Options) (*Supervisor, error) {
	if opts.Cols <= 0 || opts.Rows <= 0 {
		return nil, fmt.Errorf("ptysup: cols and rows must be positive")
	}

	cmd := exec.Command(opts.Command, opts.Args...)
	if opts.WorkingDir != "" {
		cmd.Dir = opts.WorkingDir
	}
	if len(opts.Env) > 0 {
		cmd.Env = opts.Env
	} else {
		cmd.Env = os.Environ()
	}
	cmd.Env = ensureTermAndLocale(cmd.Env)

	ptyFile, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(opts.Rows),
		Cols: uint16(opts.Cols),
	})
	if err != nil {
		return nil, fmt.Errorf("ptysup: start: %w", err)
	}

	s := &Supervisor{
		ptyFile: ptyFile,
		cmd:     cmd,
		output:  make(chan []byte, 64),
	}
	go s.pump()
	return s, nil
}

func ensureTermAndLocale(env []string) []string {
	var haveTerm, haveLocale bool
	for _, kv := range env {
		if hasPrefix(kv, "TERM=") {
			haveTerm = true
		}
		if hasPrefix(kv, "LANG=") || hasPrefix(kv, "LC_ALL=") {
			haveLocale = true
		}
	}
	if !haveTerm {
		env = append(env, "TERM=xterm-256color")
	}
	if !haveLocale {
		env = append(env, "LANG=C.UTF-8")
	}
	return env
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// pump reads from the pty master and forwards chunks as they arrive,
// unbuffered beyond the kernel's own read granularity. An EIO from the
// master (the child's slave side is gone) is treated as a clean EOF, per
// spec.md §4.3, rather than surfaced as an error.
func (s *Supervisor) pump() {
	buf := make([]byte, 4096)
	for {
		n, err := s.ptyFile.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.output <- chunk
		}
		if err != nil {
			if !isEIO(err) && !errors.Is(err, io.EOF) {
				s.readErr = err
			}
			s.closeOnce.Do(func() { close(s.output) })
			return
		}
	}
}

// isEIO reports whether err represents the "child gone" EIO condition
// captured by a pty master read.
func isEIO(err error) bool {
	return errors.Is(err, syscall.EIO)
}

// ReadError returns the error that ended pty output, or nil if the pty
// closed cleanly (including the EIO-as-EOF case in spec.md §4.3).
func (s *Supervisor) ReadError() error {
	return s.readErr
}

// Output returns the channel of raw output chunks. It is closed when the
// pty reaches EOF (including the EIO-as-EOF case).
func (s *Supervisor) Output() <-chan []byte {
	return s.output
}

// Write forwards keystrokes (or any input) into the pty master, which
// the kernel delivers to the child's stdin.
func (s *Supervisor) Write(p []byte) (int, error) {
	return s.ptyFile.Write(p)
}

// Resize changes the pty's window size, which the kernel delivers to the
// child as SIGWINCH.
func (s *Supervisor) Resize(cols, rows int) error {
	return pty.Setsize(s.ptyFile, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
}

// Wait blocks until the child exits, reaps it, and returns its exit
// code. It is safe to call concurrently; all callers observe the same
// result.
func (s *Supervisor) Wait() (int, error) {
	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
		if state := s.cmd.ProcessState; state != nil {
			s.exitCode = state.ExitCode()
		} else {
			s.exitCode = -1
		}
	})
	var exitErr *exec.ExitError
	if s.waitErr != nil && !errors.As(s.waitErr, &exitErr) {
		return s.exitCode, s.waitErr
	}
	return s.exitCode, nil
}

// Close closes the pty master file descriptor, unblocking any pending
// Read in pump() and releasing the fd. It does not touch the child
// process; callers that need to terminate the child should signal it
// directly and then Wait.
func (s *Supervisor) Close() error {
	return s.ptyFile.Close()
}

// PID returns the child process's pid.
func (s *Supervisor) PID() int {
	if s.cmd.Process == nil {
		return -1
	}
	return s.cmd.Process.Pid
}

var _ io.Writer = (*Supervisor)(nil)
