//go:build windows

package ptysup

import "os"

// notifySIGWINCH is a no-op on Windows, which has no SIGWINCH equivalent;
// WatchLocalResize still reports the initial size once.
func notifySIGWINCH(ch chan<- os.Signal) {}
