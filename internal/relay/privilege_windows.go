//go:build windows

package relay

import "fmt"

// DropPrivileges is not supported on Windows, which has no analogue of
// POSIX uid/gid switching. A configured uid or gid is a startup error
// rather than a silent no-op.
func DropPrivileges(uidSpec, gidSpec string) error {
	if uidSpec == "" && gidSpec == "" {
		return nil
	}
	return fmt.Errorf("relay: privilege drop (uid/gid) is not supported on windows")
}
