//go:build !windows

package relay

import (
	"fmt"
	"os/user"
	"strconv"

	"golang.org/x/sys/unix"
)

// DropPrivileges switches the running process to the named uid and gid,
// resolving either as a numeric id or a system account/group name. It
// must be called only after every privileged resource (the listening
// socket, the TLS identity file) has already been opened, per spec.md
// §4.6's ordering requirement.
func DropPrivileges(uidSpec, gidSpec string) error {
	if uidSpec == "" && gidSpec == "" {
		return nil
	}

	if gidSpec != "" {
		gid, err := resolveGID(gidSpec)
		if err != nil {
			return err
		}
		if err := unix.Setresgid(gid, gid, gid); err != nil {
			return fmt.Errorf("relay: setresgid(%d): %w", gid, err)
		}
	}

	if uidSpec != "" {
		uid, err := resolveUID(uidSpec)
		if err != nil {
			return err
		}
		if err := unix.Setresuid(uid, uid, uid); err != nil {
			return fmt.Errorf("relay: setresuid(%d): %w", uid, err)
		}
	}

	return nil
}

func resolveUID(spec string) (int, error) {
	if n, err := strconv.Atoi(spec); err == nil {
		return n, nil
	}
	u, err := user.Lookup(spec)
	if err != nil {
		return 0, fmt.Errorf("relay: lookup user %q: %w", spec, err)
	}
	return strconv.Atoi(u.Uid)
}

func resolveGID(spec string) (int, error) {
	if n, err := strconv.Atoi(spec); err == nil {
		return n, nil
	}
	g, err := user.LookupGroup(spec)
	if err != nil {
		return 0, fmt.Errorf("relay: lookup group %q: %w", spec, err)
	}
	return strconv.Atoi(g.Gid)
}
