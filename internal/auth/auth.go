// Package auth implements the uniform authentication adapter described
// in spec.md §4.8: a method name maps to either the trivial "plain"
// adapter or an OAuth-derived adapter, and either way authentication
// yields a display name or a redacted failure.
package auth

import (
	"context"
	"errors"
	"fmt"
)

// ErrAuthFailed is wrapped by every adapter's failure return. Diagnostic
// text from a provider is folded into the error message; spec.md §4.8
// requires it be provider-specific but redacted, so adapters must not
// embed raw provider payloads (tokens, secrets) into the message.
var ErrAuthFailed = errors.New("auth: authentication failed")

// Method is implemented by every registered authentication method.
type Method interface {
	Name() string
}

// PlainMethod authenticates synchronously from a single credential value
// carried in the Login frame (spec.md §4.1: "display name (plain)").
type PlainMethod interface {
	Method
	Authenticate(ctx context.Context, credential string) (displayName string, err error)
}

// OAuthCLIMethod implements the three-message dance in spec.md §4.4/§4.8:
// the server issues a request URL, the client captures an authorization
// code out of band, and the server exchanges that code for a display
// name.
type OAuthCLIMethod interface {
	Method
	RequestURL(ctx context.Context) (url string, err error)
	Exchange(ctx context.Context, code string) (displayName string, err error)
}

// Registry maps a login frame's method tag to its adapter.
type Registry struct {
	methods map[string]Method
}

// NewRegistry builds a registry from the given methods, keyed by their
// own Name().
func NewRegistry(methods ...Method) *Registry {
	r := &Registry{methods: make(map[string]Method, len(methods))}
	for _, m := range methods {
		r.methods[m.Name()] = m
	}
	return r
}

// Allowed reports whether method is both registered and present in
// allowedMethods (the server's allowed_login_methods configuration).
func (r *Registry) Allowed(method string, allowedMethods []string) (Method, bool) {
	adapter, ok := r.methods[method]
	if !ok {
		return nil, false
	}
	for _, m := range allowedMethods {
		if m == method {
			return adapter, true
		}
	}
	return nil, false
}

// Lookup returns the adapter registered for method, regardless of the
// server's allow-list.
func (r *Registry) Lookup(method string) (Method, bool) {
	adapter, ok := r.methods[method]
	return adapter, ok
}

func fail(method string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrAuthFailed, method, err)
}
