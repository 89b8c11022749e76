package domain

import (
	"bytes"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/sufield/securechain/internal/core/errors"
)

// TrustAnchorSet is the immutable, ordered set of certificates a client treats as
// unconditionally trusted roots for chain validation.
type TrustAnchorSet struct {
	anchors []*x509.Certificate
}

// NewTrustAnchorSet builds a set from parsed certificates, one anchor per entry in
// container order. Repeated entries are kept, so Count matches the container.
// An empty input is rejected so a client can never run with nothing to trust.
func NewTrustAnchorSet(certs []*x509.Certificate) (*TrustAnchorSet, error) {
	anchors := make([]*x509.Certificate, 0, len(certs))
	for i, cert := range certs {
		if cert == nil {
			return nil, fmt.Errorf("certificate at index %d is nil", i)
		}
		anchors = append(anchors, cert)
	}

	if len(anchors) == 0 {
		return nil, errors.ErrTrustStoreEmpty
	}

	return &TrustAnchorSet{anchors: anchors}, nil
}

// Count returns the number of anchor entries.
func (s *TrustAnchorSet) Count() int {
	return len(s.anchors)
}

// Certificates returns a copy of the anchor slice. The certificates themselves are
// shared and must be treated as read-only.
func (s *TrustAnchorSet) Certificates() []*x509.Certificate {
	out := make([]*x509.Certificate, len(s.anchors))
	copy(out, s.anchors)
	return out
}

// Pool creates a fresh x509.CertPool holding each distinct anchor once.
func (s *TrustAnchorSet) Pool() *x509.CertPool {
	pool := x509.NewCertPool()
	seen := make(map[string]struct{}, len(s.anchors))
	for _, cert := range s.anchors {
		key := anchorKey(cert)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		pool.AddCert(cert)
	}
	return pool
}

// Contains reports whether cert is one of the anchors. The match is on both the raw
// subject and the raw SubjectPublicKeyInfo, never on the name alone.
func (s *TrustAnchorSet) Contains(cert *x509.Certificate) bool {
	if cert == nil {
		return false
	}
	for _, anchor := range s.anchors {
		if bytes.Equal(anchor.RawSubject, cert.RawSubject) &&
			bytes.Equal(anchor.RawSubjectPublicKeyInfo, cert.RawSubjectPublicKeyInfo) {
			return true
		}
	}
	return false
}

// Subjects returns the anchor subjects in order.
func (s *TrustAnchorSet) Subjects() []string {
	subjects := make([]string, len(s.anchors))
	for i, cert := range s.anchors {
		subjects[i] = cert.Subject.String()
	}
	return subjects
}

// AnchorInfo is a read-only summary of a single anchor, used for inspection output.
type AnchorInfo struct {
	Subject    string    `json:"subject" yaml:"subject"`
	Issuer     string    `json:"issuer" yaml:"issuer"`
	Serial     string    `json:"serial" yaml:"serial"`
	NotBefore  time.Time `json:"not_before" yaml:"not_before"`
	NotAfter   time.Time `json:"not_after" yaml:"not_after"`
	IsCA       bool      `json:"is_ca" yaml:"is_ca"`
	SelfSigned bool      `json:"self_signed" yaml:"self_signed"`
	Expired    bool      `json:"expired" yaml:"expired"`
}

// Describe summarises every anchor relative to now.
func (s *TrustAnchorSet) Describe(now time.Time) []AnchorInfo {
	infos := make([]AnchorInfo, len(s.anchors))
	for i, cert := range s.anchors {
		infos[i] = AnchorInfo{
			Subject:    cert.Subject.String(),
			Issuer:     cert.Issuer.String(),
			Serial:     cert.SerialNumber.String(),
			NotBefore:  cert.NotBefore,
			NotAfter:   cert.NotAfter,
			IsCA:       cert.IsCA,
			SelfSigned: bytes.Equal(cert.RawSubject, cert.RawIssuer) && cert.CheckSignatureFrom(cert) == nil,
			Expired:    now.After(cert.NotAfter),
		}
	}
	return infos
}

func anchorKey(cert *x509.Certificate) string {
	return string(cert.RawSubject) + "\x00" + string(cert.RawSubjectPublicKeyInfo)
}
