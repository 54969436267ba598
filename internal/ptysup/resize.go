package ptysup

import (
	"os"
	"os/signal"

	"golang.org/x/term"
)

// Size is a terminal geometry in columns and rows.
type Size struct {
	Cols int
	Rows int
}

// WatchLocalResize reports the local controlling terminal's size
// whenever it changes (SIGWINCH), plus once immediately with the
// current size, mirroring the original implementation's Resizer stream
// (send current size first, then one event per SIGWINCH). The returned
// channel is closed when stop is closed.
func WatchLocalResize(fd int, stop <-chan struct{}) <-chan Size {
	out := make(chan Size, 1)

	go func() {
		defer close(out)

		sigCh := make(chan os.Signal, 1)
		notifySIGWINCH(sigCh)
		defer signal.Stop(sigCh)

		send := func() bool {
			cols, rows, err := term.GetSize(fd)
			if err != nil {
				return true
			}
			select {
			case out <- Size{Cols: cols, Rows: rows}:
			case <-stop:
				return false
			}
			return true
		}

		if !send() {
			return
		}

		for {
			select {
			case <-stop:
				return
			case <-sigCh:
				if !send() {
					return
				}
			}
		}
	}()

	return out
}
