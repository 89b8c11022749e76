package transport

import (
	"crypto/tls"
	"crypto/x509"
	stderrors "errors"
	"strings"

	"github.com/sufield/securechain/internal/core/errors"
)

// ClassifyHandshakeError extracts the chain validation failure behind err, whether it
// came from the standard library verifier or from ChainPolicy. It returns nil when err
// is not a certificate verification failure.
func ClassifyHandshakeError(err error) *errors.ChainValidationError {
	if err == nil {
		return nil
	}

	var policyErr *errors.ChainValidationError
	if stderrors.As(err, &policyErr) {
		return policyErr
	}

	subject := ""
	var verifyErr *tls.CertificateVerificationError
	if stderrors.As(err, &verifyErr) && len(verifyErr.UnverifiedCertificates) > 0 {
		subject = verifyErr.UnverifiedCertificates[0].Subject.String()
	}

	var unknownAuthority x509.UnknownAuthorityError
	if stderrors.As(err, &unknownAuthority) {
		if unknownAuthority.Cert != nil {
			subject = unknownAuthority.Cert.Subject.String()
		}
		return &errors.ChainValidationError{Reason: hintReason(unknownAuthority.Error()), Subject: subject, Err: err}
	}

	var invalid x509.CertificateInvalidError
	if stderrors.As(err, &invalid) {
		if invalid.Cert != nil {
			subject = invalid.Cert.Subject.String()
		}
		reason := invalidReason(invalid.Reason)
		if invalid.Reason == x509.Expired && strings.Contains(invalid.Detail, "is before") {
			reason = errors.ReasonNotYetValid
		}
		return &errors.ChainValidationError{Reason: reason, Subject: subject, Err: err}
	}

	var hostname x509.HostnameError
	if stderrors.As(err, &hostname) {
		if hostname.Certificate != nil {
			subject = hostname.Certificate.Subject.String()
		}
		return &errors.ChainValidationError{Reason: errors.ReasonHostnameMismatch, Subject: subject, Err: err}
	}

	var constraint x509.ConstraintViolationError
	if stderrors.As(err, &constraint) {
		return &errors.ChainValidationError{Reason: errors.ReasonNotCA, Subject: subject, Err: err}
	}

	if stderrors.Is(err, x509.ErrUnsupportedAlgorithm) {
		return &errors.ChainValidationError{Reason: errors.ReasonBadSignature, Subject: subject, Err: err}
	}

	if verifyErr != nil {
		return &errors.ChainValidationError{Reason: errors.ReasonVerifyFailed, Subject: subject, Err: err}
	}

	return nil
}

func invalidReason(reason x509.InvalidReason) string {
	switch reason {
	case x509.Expired:
		return errors.ReasonExpired
	case x509.NotAuthorizedToSign, x509.CANotAuthorizedForThisName, x509.CANotAuthorizedForExtKeyUsage:
		return errors.ReasonNotCA
	case x509.TooManyIntermediates:
		return errors.ReasonPathLength
	case x509.NameMismatch:
		return errors.ReasonBadSignature
	default:
		return errors.ReasonVerifyFailed
	}
}

// hintReason reads the candidate failure x509 folds into UnknownAuthorityError's
// message. The hint is not otherwise reachable.
func hintReason(msg string) string {
	_, hint, ok := strings.Cut(msg, "possibly because of")
	if !ok {
		return errors.ReasonUnknownAuthority
	}
	switch {
	case strings.Contains(hint, "path length constraint"):
		return errors.ReasonPathLength
	case strings.Contains(hint, "not authorized to sign"), strings.Contains(hint, "parent certificate cannot sign"):
		return errors.ReasonNotCA
	case strings.Contains(hint, "has expired or is not yet valid"):
		if strings.Contains(hint, "is before") {
			return errors.ReasonNotYetValid
		}
		return errors.ReasonExpired
	default:
		return errors.ReasonUnknownAuthority
	}
}
