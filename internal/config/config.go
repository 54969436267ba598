// Package config loads teleterm's TOML configuration file, the way
// spec.md §6 describes it: a well-known user path first, then a
// system-wide fallback, parsed with github.com/pelletier/go-toml/v2.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Server holds [server] settings.
type Server struct {
	ListenAddress       string   `toml:"listen_address"`
	ReadTimeoutSeconds  int      `toml:"read_timeout"`
	AllowedLoginMethods []string `toml:"allowed_login_methods"`
	TLSIdentityFile     string   `toml:"tls_identity_file"`
	TLSIdentityPassword string   `toml:"tls_identity_password"`
	UID                 string   `toml:"uid"`
	GID                 string   `toml:"gid"`
}

// OAuthMethod holds one [oauth.<method>] section.
type OAuthMethod struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	AuthURL      string `toml:"auth_url"`
	TokenURL     string `toml:"token_url"`
	UserinfoURL  string `toml:"userinfo_url"`
}

// Client holds [client] settings used by stream/watch.
type Client struct {
	ServerAddress string `toml:"server_address"`
	TLS           bool   `toml:"tls"`
	TLSServerName string `toml:"tls_server_name"`
	LoginMethod   string `toml:"login_method"`
	Username      string `toml:"username"`
}

// Command holds [command] settings: the default child process to run.
type Command struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
}

// Ttyrec holds [ttyrec] settings for record/play.
type Ttyrec struct {
	Directory string `toml:"directory"`
}

// Web holds [web] settings for the embedded browser watcher bridge
// (spec.md §4.10 expansion). A blank ListenAddress leaves it disabled.
type Web struct {
	ListenAddress string `toml:"listen_address"`
	Credential    string `toml:"credential"`
}

// Config is the parsed contents of config.toml.
type Config struct {
	Server  Server                 `toml:"server"`
	OAuth   map[string]OAuthMethod `toml:"oauth"`
	Client  Client                 `toml:"client"`
	Command Command                `toml:"command"`
	Ttyrec  Ttyrec                 `toml:"ttyrec"`
	Web     Web                    `toml:"web"`
}

// Default returns a Config populated with the defaults enumerated in
// spec.md §6.
func Default() Config {
	return Config{
		Server: Server{
			ListenAddress:       "127.0.0.1:4144",
			ReadTimeoutSeconds:  120,
			AllowedLoginMethods: []string{"plain", "recurse_center"},
		},
	}
}

// Load reads and parses the config file at path, layering it on top of
// Default().
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefaultPath tries ~/.config/teleterm/config.toml, then
// /etc/teleterm/config.toml, returning Default() if neither exists.
func LoadDefaultPath() (Config, error) {
	for _, p := range CandidatePaths() {
		if _, err := os.Stat(p); err == nil {
			return Load(p)
		}
	}
	return Default(), nil
}
