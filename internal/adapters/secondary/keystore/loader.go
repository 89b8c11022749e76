// Package keystore loads the server's private key and certificate chain and keeps the
// served certificate current when the keystore file changes.
package keystore

import (
	"bytes"
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	pkcs12 "software.sslmate.com/src/go-pkcs12"

	"github.com/sufield/securechain/internal/core/domain"
	"github.com/sufield/securechain/internal/core/errors"
)

// Loader decodes keystores into tls.Certificates.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a Loader. A nil logger uses slog.Default.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Source names a keystore on disk.
type Source struct {
	Path     string
	Password string
	// Alias selects the key entry. PKCS#12 keystores hold a single key, so the alias
	// is informational.
	Alias  string
	Format domain.ContainerFormat
}

// Load reads and decodes the keystore. The returned certificate carries the leaf
// followed by its issuers in signing order.
func (l *Loader) Load(src Source) (tls.Certificate, error) {
	data, err := os.ReadFile(filepath.Clean(src.Path))
	if err != nil {
		return tls.Certificate{}, errors.NewDomainError(errors.ErrKeystoreUnreadable, fmt.Errorf("read %s: %w", src.Path, err))
	}

	format := src.Format
	if format == "" {
		format = domain.FormatPKCS12
	}

	var cert tls.Certificate
	switch format {
	case domain.FormatPKCS12:
		cert, err = decodePKCS12(data, src.Password)
	case domain.FormatPEM:
		cert, err = decodePEM(data)
	default:
		err = errors.NewDomainError(errors.ErrKeystoreDecryptFailed, fmt.Errorf("unsupported container format %q", format))
	}
	if err != nil {
		return tls.Certificate{}, err
	}

	if src.Alias != "" {
		l.logger.Debug("Keystore alias is informational for single-entry keystores", "alias", src.Alias)
	}
	l.logger.Info("Keystore loaded",
		"path", src.Path,
		"format", format,
		"subject", cert.Leaf.Subject.String(),
		"chain_length", len(cert.Certificate),
		"not_after", cert.Leaf.NotAfter)

	return cert, nil
}

func decodePKCS12(data []byte, password string) (tls.Certificate, error) {
	key, leaf, cas, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		if stderrors.Is(err, pkcs12.ErrIncorrectPassword) {
			return tls.Certificate{}, errors.NewDomainError(errors.ErrKeystoreDecryptFailed, err)
		}
		return tls.Certificate{}, errors.NewDomainError(errors.ErrKeystoreDecryptFailed, fmt.Errorf("decode keystore: %w", err))
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return tls.Certificate{}, errors.NewDomainError(errors.ErrKeystoreInvalid, fmt.Errorf("unsupported private key type %T", key))
	}
	if err := matchKey(leaf, signer); err != nil {
		return tls.Certificate{}, err
	}

	chain := orderChain(leaf, cas)
	raw := make([][]byte, len(chain))
	for i, c := range chain {
		raw[i] = c.Raw
	}
	return tls.Certificate{Certificate: raw, PrivateKey: signer, Leaf: leaf}, nil
}

func decodePEM(data []byte) (tls.Certificate, error) {
	var certPEM, keyPEM bytes.Buffer
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch {
		case block.Type == "CERTIFICATE":
			_ = pem.Encode(&certPEM, block)
		case strings.HasSuffix(block.Type, "PRIVATE KEY"):
			_ = pem.Encode(&keyPEM, block)
		}
	}
	if certPEM.Len() == 0 || keyPEM.Len() == 0 {
		return tls.Certificate{}, errors.NewDomainError(errors.ErrKeystoreDecryptFailed,
			fmt.Errorf("PEM keystore needs a certificate and a private key"))
	}

	cert, err := tls.X509KeyPair(certPEM.Bytes(), keyPEM.Bytes())
	if err != nil {
		if strings.Contains(err.Error(), "does not match") {
			return tls.Certificate{}, errors.NewDomainError(errors.ErrKeystoreInvalid, err)
		}
		return tls.Certificate{}, errors.NewDomainError(errors.ErrKeystoreDecryptFailed, err)
	}
	if cert.Leaf == nil {
		leaf, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return tls.Certificate{}, errors.NewDomainError(errors.ErrKeystoreInvalid, err)
		}
		cert.Leaf = leaf
	}
	return cert, nil
}

func matchKey(leaf *x509.Certificate, key crypto.Signer) error {
	pub, ok := leaf.PublicKey.(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !pub.Equal(key.Public()) {
		return errors.NewDomainError(errors.ErrKeystoreInvalid,
			fmt.Errorf("private key does not match certificate %q", leaf.Subject.String()))
	}
	return nil
}

// orderChain returns leaf followed by each issuer found in cas. Certificates that do
// not extend the path are appended in their original order.
func orderChain(leaf *x509.Certificate, cas []*x509.Certificate) []*x509.Certificate {
	chain := []*x509.Certificate{leaf}
	used := make([]bool, len(cas))
	current := leaf
	for {
		if bytes.Equal(current.RawIssuer, current.RawSubject) {
			break
		}
		next := -1
		for i, c := range cas {
			if !used[i] && bytes.Equal(c.RawSubject, current.RawIssuer) {
				next = i
				break
			}
		}
		if next < 0 {
			break
		}
		used[next] = true
		chain = append(chain, cas[next])
		current = cas[next]
	}
	for i, c := range cas {
		if !used[i] {
			chain = append(chain, c)
		}
	}
	return chain
}

// DescribeChain renders subjects from root to leaf, e.g. "root -> intermediate -> server".
// Common names are used when present.
func DescribeChain(cert tls.Certificate) string {
	names := make([]string, 0, len(cert.Certificate))
	for i := len(cert.Certificate) - 1; i >= 0; i-- {
		c, err := x509.ParseCertificate(cert.Certificate[i])
		if err != nil {
			return ""
		}
		name := c.Subject.CommonName
		if name == "" {
			name = c.Subject.String()
		}
		names = append(names, name)
	}
	return strings.Join(names, " -> ")
}
