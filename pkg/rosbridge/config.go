// Package rosbridge is a client for the rosbridge v2 JSON protocol.
//
// It speaks to a rosbridge_server websocket and provides:
//   - topic advertise/publish for outgoing commands
//   - topic subscribe with per-topic handlers
//   - service calls (used for /rosapi subscriber probes)
//   - connection retry at startup
package rosbridge

import (
	"fmt"
	"strings"
	"time"
)

// Config holds rosbridge client configuration.
type Config struct {
	// Endpoint is the rosbridge websocket URL.
	// Examples: "ws://localhost:9090", "ws://192.168.1.20:9090"
	Endpoint string `yaml:"endpoint" json:"endpoint" env:"ENDPOINT"`

	// ReconnectInterval is how long to wait between connection attempts.
	ReconnectInterval time.Duration `yaml:"reconnect_interval" json:"reconnect_interval" env:"RECONNECT_INTERVAL"`

	// MaxReconnectAttempts is the maximum number of connection attempts.
	// 0 means unlimited.
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts" json:"max_reconnect_attempts" env:"MAX_RECONNECT_ATTEMPTS"`

	// WriteTimeout bounds a single websocket write when the caller's
	// context has no deadline.
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" env:"WRITE_TIMEOUT"`

	// CallTimeout bounds a service call when the caller's context has no
	// deadline.
	CallTimeout time.Duration `yaml:"call_timeout" json:"call_timeout" env:"CALL_TIMEOUT"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Endpoint:             "ws://localhost:9090",
		ReconnectInterval:    2 * time.Second,
		MaxReconnectAttempts: 0, // Unlimited
		WriteTimeout:         time.Second,
		CallTimeout:          2 * time.Second,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if !strings.HasPrefix(c.Endpoint, "ws://") && !strings.HasPrefix(c.Endpoint, "wss://") {
		return fmt.Errorf("endpoint must be a ws:// or wss:// URL, got '%s'", c.Endpoint)
	}
	if c.ReconnectInterval <= 0 {
		return fmt.Errorf("reconnect_interval must be positive")
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("max_reconnect_attempts must be >= 0")
	}
	return nil
}
