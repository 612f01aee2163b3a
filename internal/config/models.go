package config

import (
	"fmt"
	"time"
)

// CurrentVersion is the only configuration schema version understood.
const CurrentVersion = 1

// Config is the server configuration file.
type Config struct {
	Version     int                `yaml:"version"`
	LogLevel    string             `yaml:"log_level,omitempty"` // debug, info, warn, error
	HTTP        *HTTPConfig        `yaml:"http,omitempty"`
	WebSocket   *WebSocketConfig   `yaml:"websocket,omitempty"`
	Reader      *ReaderConfig      `yaml:"reader,omitempty"`
	Diagnostics *DiagnosticsConfig `yaml:"diagnostics,omitempty"`
	Discovery   *DiscoveryConfig   `yaml:"discovery,omitempty"`
}

// HTTPConfig configures the HTTP front-end.
type HTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// WebSocketConfig configures the WebSocket front-end.
type WebSocketConfig struct {
	Enabled       bool `yaml:"enabled"`
	Port          int  `yaml:"port"`
	StrictFraming bool `yaml:"strict_framing"` // full inbound frame decoding
}

// ReaderConfig tunes the per-connection stream reader.
type ReaderConfig struct {
	BufferSize  int           `yaml:"buffer_size"`  // bytes
	LineTimeout time.Duration `yaml:"line_timeout"` // e.g. "15s"
}

// DiagnosticsConfig controls call record retention.
type DiagnosticsConfig struct {
	History   int    `yaml:"history"`              // records kept per front-end
	RecordDir string `yaml:"record_dir,omitempty"` // JSON-lines capture directory, empty disables
}

// DiscoveryConfig controls mDNS advertisement.
type DiscoveryConfig struct {
	Advertise bool   `yaml:"advertise"`
	Instance  string `yaml:"instance,omitempty"` // defaults to the host name
}

// Default returns a configuration with every section populated.
func Default() *Config {
	return &Config{
		Version:  CurrentVersion,
		LogLevel: "info",
		HTTP: &HTTPConfig{
			Enabled: true,
			Port:    8080,
		},
		WebSocket: &WebSocketConfig{
			Enabled: true,
			Port:    8081,
		},
		Reader: &ReaderConfig{
			BufferSize:  262144,
			LineTimeout: 15 * time.Second,
		},
		Diagnostics: &DiagnosticsConfig{
			History: 256,
		},
		Discovery: &DiscoveryConfig{},
	}
}

// applyDefaults fills sections missing from a loaded file.
func (c *Config) applyDefaults() {
	def := Default()
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.HTTP == nil {
		c.HTTP = def.HTTP
	}
	if c.WebSocket == nil {
		c.WebSocket = def.WebSocket
	}
	if c.Reader == nil {
		c.Reader = def.Reader
	}
	if c.Reader.BufferSize == 0 {
		c.Reader.BufferSize = def.Reader.BufferSize
	}
	if c.Reader.LineTimeout == 0 {
		c.Reader.LineTimeout = def.Reader.LineTimeout
	}
	if c.Diagnostics == nil {
		c.Diagnostics = def.Diagnostics
	}
	if c.Discovery == nil {
		c.Discovery = def.Discovery
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return fmt.Errorf("unsupported config version: %d (expected %d)", c.Version, CurrentVersion)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	if err := validPort("http", c.HTTP.Port); err != nil {
		return err
	}
	if err := validPort("websocket", c.WebSocket.Port); err != nil {
		return err
	}
	if c.HTTP.Enabled && c.WebSocket.Enabled && c.HTTP.Port != 0 && c.HTTP.Port == c.WebSocket.Port {
		return fmt.Errorf("http and websocket cannot share port %d", c.HTTP.Port)
	}
	if c.Reader.BufferSize < 16 {
		return fmt.Errorf("reader.buffer_size must be at least 16, got %d", c.Reader.BufferSize)
	}
	if c.Reader.LineTimeout < 0 {
		return fmt.Errorf("reader.line_timeout must not be negative")
	}
	if c.Diagnostics.History < 0 {
		return fmt.Errorf("diagnostics.history must not be negative")
	}
	return nil
}

func validPort(section string, port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("%s.port out of range: %d", section, port)
	}
	return nil
}
