package auth

import (
	"context"
	"strings"
)

// Plain is the trivial adapter: the client-supplied name is taken
// verbatim, per spec.md §4.8 ("The adapter for `plain` returns the
// supplied name"). A name that is empty or only whitespace is rejected.
type Plain struct{}

var _ PlainMethod = Plain{}

func (Plain) Name() string { return "plain" }

func (Plain) Authenticate(_ context.Context, credential string) (string, error) {
	if strings.TrimSpace(credential) == "" {
		return "", fail("plain", errEmptyName)
	}
	return credential, nil
}

var errEmptyName = plainError("empty display name")

type plainError string

func (e plainError) Error() string { return string(e) }
