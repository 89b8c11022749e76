package transport

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sufield/securechain/internal/core/domain"
	"github.com/sufield/securechain/internal/core/errors"
)

// ClientContextBuilder turns a TrustAnchorSet into a SecureTransport.
type ClientContextBuilder struct {
	conn       ConnectionConfig
	now        func() time.Time
	serverName string
	clientCert *tls.Certificate
	minVersion uint16
	instrument bool
	logger     *slog.Logger
}

// BuilderOption configures a ClientContextBuilder.
type BuilderOption func(*ClientContextBuilder)

// WithConnectionConfig replaces the timeouts and pooling settings.
func WithConnectionConfig(c *ConnectionConfig) BuilderOption {
	return func(b *ClientContextBuilder) {
		if c != nil {
			b.conn = *c
		}
	}
}

// WithRequestTimeout overrides only the whole-request timeout.
func WithRequestTimeout(d time.Duration) BuilderOption {
	return func(b *ClientContextBuilder) {
		b.conn.RequestTimeout = d
	}
}

// WithClock sets the time used for certificate validity checks.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *ClientContextBuilder) {
		if now != nil {
			b.now = now
		}
	}
}

// WithServerName pins the name verified against the server certificate instead of
// the request host.
func WithServerName(name string) BuilderOption {
	return func(b *ClientContextBuilder) {
		b.serverName = name
	}
}

// WithClientCertificate presents cert when the server asks for one.
func WithClientCertificate(cert tls.Certificate) BuilderOption {
	return func(b *ClientContextBuilder) {
		b.clientCert = &cert
	}
}

// WithMinVersion raises the minimum protocol version. Versions below TLS 1.2 are rejected by Build.
func WithMinVersion(v uint16) BuilderOption {
	return func(b *ClientContextBuilder) {
		b.minVersion = v
	}
}

// WithoutInstrumentation skips the otelhttp transport wrapper.
func WithoutInstrumentation() BuilderOption {
	return func(b *ClientContextBuilder) {
		b.instrument = false
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) BuilderOption {
	return func(b *ClientContextBuilder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewClientContextBuilder creates a builder with TLS 1.2 minimum and default timeouts.
func NewClientContextBuilder(opts ...BuilderOption) *ClientContextBuilder {
	b := &ClientContextBuilder{
		conn:       *DefaultConnectionConfig(),
		now:        time.Now,
		minVersion: tls.VersionTLS12,
		instrument: true,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build creates a SecureTransport that trusts exactly anchors. The standard library
// verifies chain and hostname first; ChainPolicy then runs over every verified chain.
// Any failure aborts the handshake before application data is exchanged.
func (b *ClientContextBuilder) Build(anchors *domain.TrustAnchorSet) (*SecureTransport, error) {
	if anchors == nil || anchors.Count() == 0 {
		return nil, errors.NewDomainError(errors.ErrTrustStoreEmpty, fmt.Errorf("client context needs at least one trust anchor"))
	}
	if b.minVersion < tls.VersionTLS12 {
		return nil, &errors.ValidationError{Field: "min_version", Value: b.minVersion, Message: "must be TLS 1.2 or newer"}
	}
	if b.conn.DialTimeout <= 0 || b.conn.TLSHandshakeTimeout <= 0 || b.conn.RequestTimeout <= 0 {
		return nil, &errors.ValidationError{Field: "timeouts", Value: b.conn, Message: "timeouts must be positive"}
	}

	policy := NewChainPolicy(anchors, b.now)

	tlsConfig := &tls.Config{
		MinVersion:       b.minVersion,
		RootCAs:          anchors.Pool(),
		ServerName:       b.serverName,
		Time:             b.now,
		VerifyConnection: policy.VerifyConnection,
	}
	if b.clientCert != nil {
		tlsConfig.Certificates = []tls.Certificate{*b.clientCert}
	}

	base := b.conn.newHTTPTransport()
	base.TLSClientConfig = tlsConfig

	var rt http.RoundTripper = base
	if b.instrument {
		rt = otelhttp.NewTransport(base)
	}

	b.logger.Debug("TLS client context built",
		"anchors", anchors.Count(),
		"min_version", tls.VersionName(b.minVersion),
		"client_certificate", b.clientCert != nil,
		"request_timeout", b.conn.RequestTimeout)

	return &SecureTransport{
		anchors:   anchors,
		policy:    policy,
		tlsConfig: tlsConfig,
		base:      base,
		conn:      b.conn,
		client: &http.Client{
			Transport: rt,
			Timeout:   b.conn.RequestTimeout,
		},
	}, nil
}

// VerifyConnection is a tls.Config hook that applies the policy to every verified
// chain. At least one chain must pass.
func (p *ChainPolicy) VerifyConnection(cs tls.ConnectionState) error {
	if len(cs.VerifiedChains) == 0 {
		if len(cs.PeerCertificates) == 0 {
			return &errors.ChainValidationError{Reason: errors.ReasonEmptyChain}
		}
		return &errors.ChainValidationError{
			Reason:  errors.ReasonVerifyFailed,
			Subject: cs.PeerCertificates[0].Subject.String(),
			Err:     fmt.Errorf("peer chain was not verified"),
		}
	}

	var first error
	for _, chain := range cs.VerifiedChains {
		err := p.VerifyChain(chain, cs.ServerName)
		if err == nil {
			return nil
		}
		if first == nil {
			first = err
		}
	}
	return first
}
