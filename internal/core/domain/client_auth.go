package domain

import (
	"crypto/tls"
	"fmt"
	"strings"
)

// ClientAuthMode selects whether the server asks connecting clients for a certificate.
type ClientAuthMode string

const (
	ClientAuthNone    ClientAuthMode = "none"
	ClientAuthRequest ClientAuthMode = "request"
	ClientAuthRequire ClientAuthMode = "require"
)

// ParseClientAuthMode parses a mode case-insensitively. An empty string selects none.
func ParseClientAuthMode(s string) (ClientAuthMode, error) {
	switch ClientAuthMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ClientAuthNone:
		return ClientAuthNone, nil
	case ClientAuthRequest:
		return ClientAuthRequest, nil
	case ClientAuthRequire:
		return ClientAuthRequire, nil
	default:
		return "", fmt.Errorf("unsupported client auth mode %q", s)
	}
}

// TLS maps the mode onto crypto/tls. Presented client certificates are always
// verified against the configured client CAs.
func (m ClientAuthMode) TLS() tls.ClientAuthType {
	switch m {
	case ClientAuthRequest:
		return tls.VerifyClientCertIfGiven
	case ClientAuthRequire:
		return tls.RequireAndVerifyClientCert
	default:
		return tls.NoClientCert
	}
}
