package transport

import (
	"crypto/tls"
	"net/http"

	"github.com/sufield/securechain/internal/core/domain"
)

// SecureTransport is an HTTPS client bound to one TrustAnchorSet. It is immutable and
// safe for concurrent use.
type SecureTransport struct {
	anchors   *domain.TrustAnchorSet
	policy    *ChainPolicy
	tlsConfig *tls.Config
	base      *http.Transport
	client    *http.Client
	conn      ConnectionConfig
}

// HTTPClient returns the client whose handshakes validate against the anchors.
func (s *SecureTransport) HTTPClient() *http.Client {
	return s.client
}

// TLSConfig returns a copy of the client TLS configuration.
func (s *SecureTransport) TLSConfig() *tls.Config {
	return s.tlsConfig.Clone()
}

// Anchors returns the trust anchors the transport was built from.
func (s *SecureTransport) Anchors() *domain.TrustAnchorSet {
	return s.anchors
}

// Policy returns the chain policy applied during handshakes.
func (s *SecureTransport) Policy() *ChainPolicy {
	return s.policy
}

// MaxResponseBytes is the largest response body callers should decode.
func (s *SecureTransport) MaxResponseBytes() int64 {
	return s.conn.MaxResponseBytes
}

// Close drops idle pooled connections.
func (s *SecureTransport) Close() {
	s.base.CloseIdleConnections()
}
