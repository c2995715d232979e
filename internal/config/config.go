// Package config holds the server's runtime settings: listen address, the
// credential and log file paths, and per-connection WebSocket knobs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the full server configuration.
type Config struct {
	Server    ServerConfig
	Files     FilesConfig
	WebSocket WebSocketConfig
}

// ServerConfig controls the listener.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// FilesConfig locates the two persisted stores.
type FilesConfig struct {
	Credentials string // flat username,password,role file
	ChatLog     string // append-only MESSAGE/SESSION log
}

// WebSocketConfig controls per-connection behavior.
type WebSocketConfig struct {
	WriteTimeout time.Duration
	SendBuffer   int
}

// DefaultConfig returns the settings used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            1234,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Files: FilesConfig{
			Credentials: "./credentials.txt",
			ChatLog:     "./server.log",
		},
		WebSocket: WebSocketConfig{
			WriteTimeout: 10 * time.Second,
			SendBuffer:   100,
		},
	}
}

// LoadFromEnv returns the defaults overridden by PARLEY_* environment
// variables. Unparseable values fall back to the default.
func LoadFromEnv() *Config {
	cfg := DefaultConfig()

	if host := os.Getenv("PARLEY_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("PARLEY_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("PARLEY_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("PARLEY_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if v := os.Getenv("PARLEY_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ShutdownTimeout = d
		}
	}
	if path := os.Getenv("PARLEY_CREDENTIALS_FILE"); path != "" {
		cfg.Files.Credentials = path
	}
	if path := os.Getenv("PARLEY_CHATLOG_FILE"); path != "" {
		cfg.Files.ChatLog = path
	}
	if v := os.Getenv("PARLEY_WS_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.WebSocket.WriteTimeout = d
		}
	}
	if v := os.Getenv("PARLEY_WS_SEND_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WebSocket.SendBuffer = n
		}
	}
	return cfg
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	if c.Files.Credentials == "" {
		return fmt.Errorf("credentials file path cannot be empty")
	}
	if c.Files.ChatLog == "" {
		return fmt.Errorf("chat log file path cannot be empty")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("websocket write timeout must be positive")
	}
	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("websocket send buffer must be positive")
	}
	return nil
}
