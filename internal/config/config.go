package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds client configuration values.
type Config struct {
	// APIBaseURL is the REST endpoint root, e.g. "http://localhost:8080".
	APIBaseURL string `mapstructure:"api_base_url" yaml:"api_base_url"`
	// SocketURL is the websocket endpoint, e.g. "ws://localhost:8080/ws".
	SocketURL string `mapstructure:"socket_url" yaml:"socket_url"`
	// CredentialsPath is the sqlite file keeping the auth token and identity.
	CredentialsPath string `mapstructure:"credentials_path" yaml:"credentials_path"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	// DialTimeout bounds a single websocket connect attempt.
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	// RequestTimeout bounds REST calls and socket RPC acknowledgements.
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	// ReconnectAttempts bounds transport-level automatic reconnection.
	ReconnectAttempts int `mapstructure:"reconnect_attempts" yaml:"reconnect_attempts"`
	// ReconnectDelay is the fixed pause between reconnection attempts.
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		APIBaseURL:        "http://localhost:8080",
		SocketURL:         "ws://localhost:8080/ws",
		CredentialsPath:   defaultCredentialsPath(),
		LogLevel:          "info",
		DialTimeout:       10 * time.Second,
		RequestTimeout:    15 * time.Second,
		ReconnectAttempts: 5,
		ReconnectDelay:    2 * time.Second,
	}
}

func defaultCredentialsPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return "chatsync.db"
	}
	return filepath.Join(base, "chatsync", "chatsync.db")
}
