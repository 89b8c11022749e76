package transport

import (
	"bytes"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/sufield/securechain/internal/core/domain"
	"github.com/sufield/securechain/internal/core/errors"
)

// ChainPolicy checks a presented chain against a TrustAnchorSet. It runs inside the
// handshake after the standard library verification, and can be used offline.
type ChainPolicy struct {
	anchors *domain.TrustAnchorSet
	now     func() time.Time
}

// NewChainPolicy creates a policy. A nil now uses time.Now.
func NewChainPolicy(anchors *domain.TrustAnchorSet, now func() time.Time) *ChainPolicy {
	if now == nil {
		now = time.Now
	}
	return &ChainPolicy{anchors: anchors, now: now}
}

// VerifyChain validates chain, ordered leaf first. The chain may end at an anchor or at
// a certificate issued directly by one. dnsName is checked against the leaf when non-empty.
// Failures are *errors.ChainValidationError.
func (p *ChainPolicy) VerifyChain(chain []*x509.Certificate, dnsName string) error {
	if len(chain) == 0 || chain[0] == nil {
		return &errors.ChainValidationError{Reason: errors.ReasonEmptyChain}
	}
	if p.anchors == nil {
		return &errors.ChainValidationError{Reason: errors.ReasonUnknownAuthority, Err: fmt.Errorf("no trust anchors")}
	}

	full, err := p.anchor(chain)
	if err != nil {
		return err
	}

	now := p.now()
	for _, cert := range full {
		if err := checkValidity(cert, now); err != nil {
			return err
		}
	}

	for i := 0; i+1 < len(full); i++ {
		child, issuer := full[i], full[i+1]
		if err := checkIssuer(issuer, i); err != nil {
			return err
		}
		if !bytes.Equal(child.RawIssuer, issuer.RawSubject) {
			return &errors.ChainValidationError{
				Reason:  errors.ReasonBadSignature,
				Subject: child.Subject.String(),
				Err:     fmt.Errorf("issuer name does not match %q", issuer.Subject.String()),
			}
		}
		if err := issuer.CheckSignature(child.SignatureAlgorithm, child.RawTBSCertificate, child.Signature); err != nil {
			return &errors.ChainValidationError{Reason: errors.ReasonBadSignature, Subject: child.Subject.String(), Err: err}
		}
	}

	if dnsName != "" {
		if err := chain[0].VerifyHostname(dnsName); err != nil {
			return &errors.ChainValidationError{Reason: errors.ReasonHostnameMismatch, Subject: chain[0].Subject.String(), Err: err}
		}
	}

	return nil
}

// anchor returns the chain terminated by a trust anchor. A terminal certificate that
// is not itself an anchor is accepted when an anchor issued it.
func (p *ChainPolicy) anchor(chain []*x509.Certificate) ([]*x509.Certificate, error) {
	last := chain[len(chain)-1]
	if p.anchors.Contains(last) {
		return chain, nil
	}

	nameMatch := false
	for _, a := range p.anchors.Certificates() {
		if bytes.Equal(a.RawSubject, last.RawSubject) {
			nameMatch = true
		}
		if !bytes.Equal(last.RawIssuer, a.RawSubject) || bytes.Equal(last.RawIssuer, last.RawSubject) {
			continue
		}
		if a.CheckSignature(last.SignatureAlgorithm, last.RawTBSCertificate, last.Signature) == nil {
			return append(append([]*x509.Certificate(nil), chain...), a), nil
		}
	}

	if nameMatch {
		return nil, &errors.ChainValidationError{
			Reason:  errors.ReasonAnchorMismatch,
			Subject: last.Subject.String(),
			Err:     fmt.Errorf("subject matches a trust anchor but the key does not"),
		}
	}
	return nil, &errors.ChainValidationError{
		Reason:  errors.ReasonUnknownAuthority,
		Subject: last.Subject.String(),
		Err:     fmt.Errorf("chain does not terminate at a trust anchor"),
	}
}

func checkValidity(cert *x509.Certificate, now time.Time) error {
	if now.Before(cert.NotBefore) {
		return &errors.ChainValidationError{
			Reason:  errors.ReasonNotYetValid,
			Subject: cert.Subject.String(),
			Err:     fmt.Errorf("valid from %s", cert.NotBefore.UTC().Format(time.RFC3339)),
		}
	}
	if now.After(cert.NotAfter) {
		return &errors.ChainValidationError{
			Reason:  errors.ReasonExpired,
			Subject: cert.Subject.String(),
			Err:     fmt.Errorf("expired at %s", cert.NotAfter.UTC().Format(time.RFC3339)),
		}
	}
	return nil
}

// checkIssuer enforces CA constraints on the certificate at depth+1, which signs
// depth+1 certificates below it, depth of them intermediates.
func checkIssuer(issuer *x509.Certificate, depth int) error {
	if !issuer.BasicConstraintsValid || !issuer.IsCA {
		return &errors.ChainValidationError{
			Reason:  errors.ReasonNotCA,
			Subject: issuer.Subject.String(),
			Err:     fmt.Errorf("issuer is not a certificate authority"),
		}
	}
	if issuer.KeyUsage != 0 && issuer.KeyUsage&x509.KeyUsageCertSign == 0 {
		return &errors.ChainValidationError{
			Reason:  errors.ReasonNotCA,
			Subject: issuer.Subject.String(),
			Err:     fmt.Errorf("issuer key usage lacks certSign"),
		}
	}
	if issuer.MaxPathLen >= 0 && (issuer.MaxPathLen > 0 || issuer.MaxPathLenZero) && depth > issuer.MaxPathLen {
		return &errors.ChainValidationError{
			Reason:  errors.ReasonPathLength,
			Subject: issuer.Subject.String(),
			Err:     fmt.Errorf("%d intermediates below a CA limited to %d", depth, issuer.MaxPathLen),
		}
	}
	return nil
}
