// Package truststore decodes trust store containers into a domain.TrustAnchorSet.
package truststore

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/pem"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	pkcs12 "software.sslmate.com/src/go-pkcs12"

	"github.com/sufield/securechain/internal/core/domain"
	"github.com/sufield/securechain/internal/core/errors"
	"github.com/sufield/securechain/internal/core/ports"
)

// DefaultMaxSize bounds how much of a trust store is read into memory.
const DefaultMaxSize = 10 << 20

// streamSource names trust stores handed to Load without a file path.
const streamSource = "stream"

// DecodeFunc extracts certificates from a container. errWrongPassphrase and
// errUnrecognized classify failures; any other error is treated as unrecognized.
type DecodeFunc func(data []byte, passphrase string) ([]*x509.Certificate, error)

var (
	errWrongPassphrase = stderrors.New("incorrect passphrase")
	errUnrecognized    = stderrors.New("unrecognized container")
)

// Loader turns trust store bytes into anchors. It is safe for concurrent use.
type Loader struct {
	observer ports.Observer
	logger   *slog.Logger
	maxSize  int64
	decoders map[domain.ContainerFormat]DecodeFunc
}

// Option configures a Loader.
type Option func(*Loader)

// WithObserver sets the post-load observer.
func WithObserver(o ports.Observer) Option {
	return func(l *Loader) {
		if o != nil {
			l.observer = o
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMaxSize caps the number of bytes read.
func WithMaxSize(n int64) Option {
	return func(l *Loader) {
		if n > 0 {
			l.maxSize = n
		}
	}
}

// WithDecoder replaces the decoder for a container format.
func WithDecoder(format domain.ContainerFormat, fn DecodeFunc) Option {
	return func(l *Loader) {
		if fn != nil {
			l.decoders[format] = fn
		}
	}
}

// NewLoader creates a Loader supporting PKCS#12 and PEM containers.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		observer: ports.NopObserver{},
		logger:   slog.Default(),
		maxSize:  DefaultMaxSize,
		decoders: map[domain.ContainerFormat]DecodeFunc{
			domain.FormatPKCS12: DecodePKCS12,
			domain.FormatPEM:    DecodePEM,
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadFile opens path and loads it. A missing or unreadable file yields ErrTrustStoreUnreadable.
func (l *Loader) LoadFile(ctx context.Context, path string, cred domain.TrustStoreCredential) (*domain.TrustAnchorSet, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		cred.Wipe()
		return nil, errors.NewDomainError(errors.ErrTrustStoreUnreadable, fmt.Errorf("open %s: %w", path, err))
	}
	defer f.Close()

	return l.load(ctx, f, path, cred)
}

// Load reads a trust store from r. The credential's passphrase is wiped before
// returning. On failure no anchors are returned.
func (l *Loader) Load(ctx context.Context, r io.Reader, cred domain.TrustStoreCredential) (*domain.TrustAnchorSet, error) {
	return l.load(ctx, r, streamSource, cred)
}

func (l *Loader) load(ctx context.Context, r io.Reader, source string, cred domain.TrustStoreCredential) (*domain.TrustAnchorSet, error) {
	defer cred.Wipe()

	if err := ctx.Err(); err != nil {
		return nil, errors.NewDomainError(errors.ErrTrustStoreUnreadable, err)
	}

	format := cred.Format
	if format == "" {
		format = domain.FormatPKCS12
	}
	decode, ok := l.decoders[format]
	if !ok {
		return nil, errors.NewDomainError(errors.ErrTrustStoreDecryptFailed, fmt.Errorf("unsupported container format %q", format))
	}

	data, err := io.ReadAll(io.LimitReader(r, l.maxSize+1))
	if err != nil {
		return nil, errors.NewDomainError(errors.ErrTrustStoreUnreadable, fmt.Errorf("read %s: %w", source, err))
	}
	if int64(len(data)) > l.maxSize {
		return nil, errors.NewDomainError(errors.ErrTrustStoreUnreadable, fmt.Errorf("%s exceeds %d bytes", source, l.maxSize))
	}

	certs, err := decode(data, string(cred.Passphrase))
	if err != nil {
		l.logger.DebugContext(ctx, "Trust store decode failed", "source", source, "format", format, "error", err)
		return nil, errors.NewDomainError(errors.ErrTrustStoreDecryptFailed, fmt.Errorf("decode %s: %w", source, err))
	}

	anchors, err := domain.NewTrustAnchorSet(certs)
	if err != nil {
		if stderrors.Is(err, errors.ErrTrustStoreEmpty) {
			return nil, err
		}
		return nil, errors.NewDomainError(errors.ErrTrustStoreDecryptFailed, err)
	}

	l.logger.InfoContext(ctx, "Trust store loaded",
		"source", source,
		"format", format,
		"anchors", anchors.Count())
	l.observer.TrustStoreLoaded(ctx, ports.TrustStoreLoadedEvent{
		Source:      source,
		Format:      format,
		AnchorCount: anchors.Count(),
		Subjects:    anchors.Subjects(),
	})

	return anchors, nil
}

// DecodePKCS12 reads a PKCS#12 trust store. A key+certificate bundle is accepted too;
// its certificates become anchors.
func DecodePKCS12(data []byte, passphrase string) ([]*x509.Certificate, error) {
	certs, err := pkcs12.DecodeTrustStore(data, passphrase)
	if err == nil {
		return certs, nil
	}
	if stderrors.Is(err, pkcs12.ErrIncorrectPassword) {
		return nil, errWrongPassphrase
	}

	_, leaf, cas, chainErr := pkcs12.DecodeChain(data, passphrase)
	if chainErr != nil {
		if stderrors.Is(chainErr, pkcs12.ErrIncorrectPassword) {
			return nil, errWrongPassphrase
		}
		return nil, fmt.Errorf("%w: %v", errUnrecognized, err)
	}
	out := make([]*x509.Certificate, 0, 1+len(cas))
	if leaf != nil {
		out = append(out, leaf)
	}
	return append(out, cas...), nil
}

// DecodePEM reads concatenated CERTIFICATE blocks. Other block types are skipped.
// Input with no PEM blocks at all is unrecognized; PEM without certificates is empty.
func DecodePEM(data []byte, _ string) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	blocks := 0
	rest := bytes.TrimSpace(data)
	for len(rest) > 0 {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		blocks++
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: certificate %d: %v", errUnrecognized, len(certs), err)
		}
		certs = append(certs, cert)
	}
	if blocks == 0 {
		return nil, errUnrecognized
	}
	return certs, nil
}

// IsWrongPassphrase reports whether a load failed because of the passphrase rather
// than the container contents.
func IsWrongPassphrase(err error) bool {
	return stderrors.Is(err, errWrongPassphrase)
}
