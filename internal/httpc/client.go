// Package httpc provides shared network dialers with sensible defaults.
// Use this instead of websocket.DefaultDialer to ensure timeouts are set.
package httpc

import (
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Default timeouts for outbound connections.
const (
	DefaultConnectTimeout   = 10 * time.Second
	DefaultKeepAlive        = 30 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
)

// Dialer is a shared websocket dialer with production-ready defaults.
var Dialer = NewDialer(DefaultConnectTimeout)

// NewDialer creates a websocket dialer whose TCP connect is bounded by
// connectTimeout. Proxy settings come from the environment.
func NewDialer(connectTimeout time.Duration) *websocket.Dialer {
	return &websocket.Dialer{
		NetDialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: DefaultKeepAlive,
		}).DialContext,
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: DefaultHandshakeTimeout,
	}
}
