package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultMatchesSpecDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Server.ListenAddress != "127.0.0.1:4144" {
		t.Fatalf("unexpected default listen address: %s", cfg.Server.ListenAddress)
	}
	if cfg.Server.ReadTimeoutSeconds != 120 {
		t.Fatalf("unexpected default read timeout: %d", cfg.Server.ReadTimeoutSeconds)
	}
	if len(cfg.Server.AllowedLoginMethods) != 2 {
		t.Fatalf("unexpected default allowed login methods: %v", cfg.Server.AllowedLoginMethods)
	}
}

func TestLoadParsesTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `
[server]
listen_address = "0.0.0.0:4144"
read_timeout = 60
allowed_login_methods = ["plain"]

[oauth.recurse_center]
client_id = "abc"
client_secret = "def"
auth_url = "https://recurse.example/authorize"
token_url = "https://recurse.example/token"
userinfo_url = "https://recurse.example/userinfo"

[client]
server_address = "example.com:4144"
tls = true

[command]
command = "bash"
args = ["-l"]

[ttyrec]
directory = "/tmp/casts"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddress != "0.0.0.0:4144" {
		t.Fatalf("unexpected listen address: %s", cfg.Server.ListenAddress)
	}
	if cfg.Server.ReadTimeoutSeconds != 60 {
		t.Fatalf("unexpected read timeout: %d", cfg.Server.ReadTimeoutSeconds)
	}
	oauth, ok := cfg.OAuth["recurse_center"]
	if !ok {
		t.Fatalf("expected recurse_center oauth section")
	}
	if oauth.ClientID != "abc" {
		t.Fatalf("unexpected client id: %s", oauth.ClientID)
	}
	if !cfg.Client.TLS {
		t.Fatalf("expected client TLS to be true")
	}
	if cfg.Command.Command != "bash" {
		t.Fatalf("unexpected command: %s", cfg.Command.Command)
	}
	if cfg.Ttyrec.Directory != "/tmp/casts" {
		t.Fatalf("unexpected ttyrec directory: %s", cfg.Ttyrec.Directory)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddress != Default().Server.ListenAddress {
		t.Fatalf("expected defaults when file is missing")
	}
}

func TestUserHomeDirTreatsRootAsNoHome(t *testing.T) {
	t.Setenv("HOME", "/")
	if _, ok := UserHomeDir(); ok {
		t.Fatalf("expected home directory of / to be treated as no home directory")
	}
}
