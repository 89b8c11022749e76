// Package testpki builds throwaway certificate hierarchies for tests: a root CA, an
// intermediate CA and a server leaf, plus the PKCS#12 containers the loaders consume.
package testpki

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tsaarni/certyaml"
	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

// Chain is a root -> intermediate -> server hierarchy.
type Chain struct {
	Root         *x509.Certificate
	Intermediate *x509.Certificate
	Server       *x509.Certificate
	ServerKey    crypto.Signer
}

type options struct {
	serverSANs       []string
	serverNotBefore  *time.Time
	serverNotAfter   *time.Time
	intermediateIsCA bool
	rootSubject      string
	serverSubject    string
}

// Option customises a generated chain.
type Option func(*options)

// WithServerValidity sets the leaf validity interval.
func WithServerValidity(notBefore, notAfter time.Time) Option {
	return func(o *options) {
		o.serverNotBefore = &notBefore
		o.serverNotAfter = &notAfter
	}
}

// WithServerSANs overrides the leaf subject alternative names (certyaml syntax,
// e.g. "DNS:localhost", "IP:127.0.0.1").
func WithServerSANs(sans ...string) Option {
	return func(o *options) { o.serverSANs = sans }
}

// WithIntermediateNotCA issues the intermediate without the CA basic constraint.
func WithIntermediateNotCA() Option {
	return func(o *options) { o.intermediateIsCA = false }
}

// WithRootSubject overrides the root subject.
func WithRootSubject(subject string) Option {
	return func(o *options) { o.rootSubject = subject }
}

// NewChain generates a fresh three-tier hierarchy. The leaf is valid for localhost
// and 127.0.0.1 so it can be served by httptest.
func NewChain(t testing.TB, opts ...Option) *Chain {
	t.Helper()

	o := &options{
		serverSANs:       []string{"DNS:localhost", "IP:127.0.0.1"},
		intermediateIsCA: true,
		rootSubject:      "CN=Test Root CA,O=securechain",
		serverSubject:    "CN=localhost,O=securechain",
	}
	for _, opt := range opts {
		opt(o)
	}

	intermediateIsCA := o.intermediateIsCA
	root := certyaml.Certificate{Subject: o.rootSubject}
	intermediate := certyaml.Certificate{
		Subject: "CN=Test Intermediate CA,O=securechain",
		Issuer:  &root,
		IsCA:    &intermediateIsCA,
	}
	server := certyaml.Certificate{
		Subject:         o.serverSubject,
		SubjectAltNames: o.serverSANs,
		Issuer:          &intermediate,
		NotBefore:       o.serverNotBefore,
		NotAfter:        o.serverNotAfter,
	}

	rootCert, err := root.X509Certificate()
	require.NoError(t, err)
	intermediateCert, err := intermediate.X509Certificate()
	require.NoError(t, err)
	serverCert, err := server.X509Certificate()
	require.NoError(t, err)
	serverTLS, err := server.TLSCertificate()
	require.NoError(t, err)

	signer, ok := serverTLS.PrivateKey.(crypto.Signer)
	require.True(t, ok, "server private key must be a crypto.Signer")

	return &Chain{
		Root:         &rootCert,
		Intermediate: &intermediateCert,
		Server:       &serverCert,
		ServerKey:    signer,
	}
}

// TLSCertificate returns the leaf with the intermediate attached, as a server
// presents it during the handshake.
func (c *Chain) TLSCertificate() tls.Certificate {
	return tls.Certificate{
		Certificate: [][]byte{c.Server.Raw, c.Intermediate.Raw},
		PrivateKey:  c.ServerKey,
		Leaf:        c.Server,
	}
}

// TrustStore encodes certs as a password-protected PKCS#12 trust store.
func TrustStore(t testing.TB, password string, certs ...*x509.Certificate) []byte {
	t.Helper()
	data, err := pkcs12.Modern.EncodeTrustStore(certs, password)
	require.NoError(t, err)
	return data
}

// KeyStore encodes the server key, leaf and intermediate as a PKCS#12 key store.
func (c *Chain) KeyStore(t testing.TB, password string) []byte {
	t.Helper()
	data, err := pkcs12.Modern.Encode(c.ServerKey, c.Server, []*x509.Certificate{c.Intermediate}, password)
	require.NoError(t, err)
	return data
}

// WriteFile writes data under t.TempDir and returns the path.
func WriteFile(t testing.TB, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

// PEM encodes certificates as concatenated CERTIFICATE blocks.
func PEM(certs ...*x509.Certificate) []byte {
	var out []byte
	for _, cert := range certs {
		out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})...)
	}
	return out
}

// KeyPEM encodes a private key as a PKCS#8 PEM block.
func KeyPEM(t testing.TB, key crypto.Signer) []byte {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

// PathLenChain is a hierarchy whose root forbids any intermediate (MaxPathLen 0)
// yet has one, so path length validation must reject it.
type PathLenChain struct {
	Root         *x509.Certificate
	Intermediate *x509.Certificate
	Server       *x509.Certificate
	ServerKey    crypto.Signer
}

// NewPathLenViolation builds a PathLenChain with the crypto/x509 primitives directly,
// since the path length constraint has to be set explicitly on the root.
func NewPathLenViolation(t testing.TB) *PathLenChain {
	t.Helper()

	now := time.Now()
	rootKey := newKey(t)
	rootTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "PathLen Root CA"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            0,
		MaxPathLenZero:        true,
	}
	root := createCert(t, rootTmpl, rootTmpl, rootKey.Public(), rootKey)

	intKey := newKey(t)
	intTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(2),
		Subject:               pkix.Name{CommonName: "PathLen Intermediate CA"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	intermediate := createCert(t, intTmpl, root, intKey.Public(), rootKey)

	leafKey := newKey(t)
	leafTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(3),
		Subject:      pkix.Name{CommonName: "localhost"},
		DNSNames:     []string{"localhost"},
		IPAddresses:  nil,
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	server := createCert(t, leafTmpl, intermediate, leafKey.Public(), intKey)

	return &PathLenChain{Root: root, Intermediate: intermediate, Server: server, ServerKey: leafKey}
}

func newKey(t testing.TB) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func createCert(t testing.TB, tmpl, parent *x509.Certificate, pub crypto.PublicKey, signer crypto.Signer) *x509.Certificate {
	t.Helper()
	der, err := x509.CreateCertificate(rand.Reader, tmpl, parent, pub, signer)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}
