package transport

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/sufield/securechain/internal/core/domain"
	"github.com/sufield/securechain/internal/core/errors"
)

// CertificateSource supplies the server certificate for each handshake.
type CertificateSource func(*tls.ClientHelloInfo) (*tls.Certificate, error)

// ServerTLSOptions configures NewServerTLSConfig.
type ServerTLSOptions struct {
	GetCertificate CertificateSource
	ClientAuth     domain.ClientAuthMode
	// ClientCAs verifies client certificates. Required unless ClientAuth is none.
	ClientCAs *domain.TrustAnchorSet
	Now       func() time.Time
}

// NewServerTLSConfig builds the server TLS configuration. Presented client chains are
// checked by the same ChainPolicy the client applies to servers.
func NewServerTLSConfig(opts ServerTLSOptions) (*tls.Config, error) {
	if opts.GetCertificate == nil {
		return nil, errors.NewDomainError(errors.ErrMissingConfiguration, fmt.Errorf("server certificate source is required"))
	}
	mode := opts.ClientAuth
	if mode == "" {
		mode = domain.ClientAuthNone
	}

	cfg := &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: opts.GetCertificate,
		ClientAuth:     mode.TLS(),
		Time:           opts.Now,
		NextProtos:     []string{"h2", "http/1.1"},
	}

	if mode == domain.ClientAuthNone {
		return cfg, nil
	}
	if opts.ClientCAs == nil || opts.ClientCAs.Count() == 0 {
		return nil, errors.NewDomainError(errors.ErrMissingConfiguration,
			fmt.Errorf("client auth %q needs a client trust store", mode))
	}

	policy := NewChainPolicy(opts.ClientCAs, opts.Now)
	cfg.ClientCAs = opts.ClientCAs.Pool()
	cfg.VerifyConnection = func(cs tls.ConnectionState) error {
		if len(cs.PeerCertificates) == 0 {
			return nil // only reachable in request mode
		}
		// The server name belongs to this server, not the client.
		cs.ServerName = ""
		return policy.VerifyConnection(cs)
	}
	return cfg, nil
}
