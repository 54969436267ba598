package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPlainAuthenticate(t *testing.T) {
	p := Plain{}
	name, err := p.Authenticate(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if name != "alice" {
		t.Fatalf("expected alice, got %s", name)
	}

	if _, err := p.Authenticate(context.Background(), "   "); err == nil {
		t.Fatalf("expected an error for an empty display name")
	}
}

func TestRegistryAllowed(t *testing.T) {
	r := NewRegistry(Plain{})

	if _, ok := r.Allowed("plain", []string{"plain", "recurse_center"}); !ok {
		t.Fatalf("expected plain to be allowed")
	}
	if _, ok := r.Allowed("plain", []string{"recurse_center"}); ok {
		t.Fatalf("expected plain to be disallowed when absent from the allow-list")
	}
	if _, ok := r.Allowed("bogus", []string{"bogus"}); ok {
		t.Fatalf("expected an unregistered method to never be allowed")
	}
}

func TestRecurseCenterExchange(t *testing.T) {
	userinfo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"name": "alice"})
	}))
	defer userinfo.Close()

	token := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok",
			"token_type":   "bearer",
		})
	}))
	defer token.Close()

	rc := NewRecurseCenter(RecurseCenterConfig{
		ClientID:     "id",
		ClientSecret: "secret",
		AuthURL:      "https://example.invalid/authorize",
		TokenURL:     token.URL,
		UserinfoURL:  userinfo.URL,
	})

	name, err := rc.Exchange(context.Background(), "some-code")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if name != "alice" {
		t.Fatalf("expected alice, got %s", name)
	}
}

func TestRecurseCenterRequestURLRequiresConfig(t *testing.T) {
	rc := NewRecurseCenter(RecurseCenterConfig{})
	if _, err := rc.RequestURL(context.Background()); err == nil {
		t.Fatalf("expected an error when unconfigured")
	}
}
