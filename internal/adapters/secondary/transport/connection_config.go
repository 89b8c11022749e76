// Package transport builds the TLS client context and HTTP transport used to reach
// the secure server, and the matching server-side TLS configuration.
package transport

import (
	"net"
	"net/http"
	"time"
)

// Connection timeout constants.
const (
	defaultDialTimeout         = 10 * time.Second
	defaultTLSHandshakeTimeout = 10 * time.Second
	defaultRequestTimeout      = 30 * time.Second
	developmentRequestTimeout  = 5 * time.Second
	developmentDialTimeout     = 2 * time.Second
)

// Keepalive and pooling constants.
const (
	defaultKeepAlive        = 30 * time.Second
	defaultIdleConnTimeout  = 90 * time.Second
	developmentIdleTimeout  = 10 * time.Second
	defaultMaxIdleConns     = 16
	defaultMaxConnsPerHost  = 0 // unlimited
	defaultMaxResponseBytes = 1 << 20
)

// ConnectionConfig holds the HTTP transport settings wrapped around the TLS context.
type ConnectionConfig struct {
	// DialTimeout bounds TCP connection establishment.
	DialTimeout time.Duration

	// TLSHandshakeTimeout bounds the handshake, including chain validation.
	TLSHandshakeTimeout time.Duration

	// RequestTimeout bounds a whole request, from dial to the last body byte.
	RequestTimeout time.Duration

	KeepAlive       time.Duration
	IdleConnTimeout time.Duration
	MaxIdleConns    int
	MaxConnsPerHost int

	// MaxResponseBytes caps how much of a response body the client decodes.
	MaxResponseBytes int64
}

// DefaultConnectionConfig returns the production defaults.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		DialTimeout:         defaultDialTimeout,
		TLSHandshakeTimeout: defaultTLSHandshakeTimeout,
		RequestTimeout:      defaultRequestTimeout,
		KeepAlive:           defaultKeepAlive,
		IdleConnTimeout:     defaultIdleConnTimeout,
		MaxIdleConns:        defaultMaxIdleConns,
		MaxConnsPerHost:     defaultMaxConnsPerHost,
		MaxResponseBytes:    defaultMaxResponseBytes,
	}
}

// DevelopmentConnectionConfig fails fast against a local server.
func DevelopmentConnectionConfig() *ConnectionConfig {
	config := DefaultConnectionConfig()
	config.DialTimeout = developmentDialTimeout
	config.RequestTimeout = developmentRequestTimeout
	config.IdleConnTimeout = developmentIdleTimeout
	return config
}

// newHTTPTransport builds an *http.Transport. Proxies from the environment are ignored
// so the TLS peer is always the configured server.
func (c *ConnectionConfig) newHTTPTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   c.DialTimeout,
		KeepAlive: c.KeepAlive,
	}
	return &http.Transport{
		Proxy:               nil,
		DialContext:         dialer.DialContext,
		ForceAttemptHTTP2:   true,
		TLSHandshakeTimeout: c.TLSHandshakeTimeout,
		IdleConnTimeout:     c.IdleConnTimeout,
		MaxIdleConns:        c.MaxIdleConns,
		MaxConnsPerHost:     c.MaxConnsPerHost,
	}
}
