//go:build !windows

package ptysup

import (
	"os"
	"os/signal"
	"syscall"
)

// notifySIGWINCH registers ch to receive terminal resize signals.
func notifySIGWINCH(ch chan<- os.Signal) {
	signal.Notify(ch, syscall.SIGWINCH)
}
