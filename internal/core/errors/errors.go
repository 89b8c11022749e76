// Package errors defines custom error types for securechain.
package errors

import (
	"errors"
	"fmt"
)

// DomainError represents errors in the domain logic
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError carrying the same code.
// This lets callers match wrapped instances against the sentinels below.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// Trust material errors. These are fatal at startup and never retried.
var (
	ErrTrustStoreUnreadable = &DomainError{
		Code:    "TRUSTSTORE_UNREADABLE",
		Message: "trust store cannot be opened or read",
	}

	ErrTrustStoreDecryptFailed = &DomainError{
		Code:    "TRUSTSTORE_DECRYPT_FAILED",
		Message: "trust store passphrase is wrong or the container format is not recognized",
	}

	ErrTrustStoreEmpty = &DomainError{
		Code:    "TRUSTSTORE_EMPTY",
		Message: "trust store contains no certificates",
	}

	ErrKeystoreUnreadable = &DomainError{
		Code:    "KEYSTORE_UNREADABLE",
		Message: "key store cannot be opened or read",
	}

	ErrKeystoreDecryptFailed = &DomainError{
		Code:    "KEYSTORE_DECRYPT_FAILED",
		Message: "key store password is wrong or the container format is not recognized",
	}

	ErrKeystoreInvalid = &DomainError{
		Code:    "KEYSTORE_INVALID",
		Message: "key store does not hold a usable key and certificate",
	}
)

// Per-request errors.
var (
	ErrChainValidationFailed = &DomainError{
		Code:    "CHAIN_VALIDATION_FAILED",
		Message: "peer certificate chain was rejected",
	}

	ErrRequestFailed = &DomainError{
		Code:    "REQUEST_FAILED",
		Message: "request to secure endpoint failed",
	}

	ErrDecodeFailed = &DomainError{
		Code:    "DECODE_FAILED",
		Message: "response body does not match the expected shape",
	}

	ErrEncodeFailed = &DomainError{
		Code:    "ENCODE_FAILED",
		Message: "request body could not be encoded",
	}

	ErrInvalidRequest = &DomainError{
		Code:    "INVALID_REQUEST",
		Message: "request body is malformed",
	}

	ErrMissingConfiguration = &DomainError{
		Code:    "MISSING_CONFIGURATION",
		Message: "required configuration is missing",
	}
)

// NewDomainError creates a new domain error with context
func NewDomainError(base *DomainError, err error) error {
	return &DomainError{
		Code:    base.Code,
		Message: base.Message,
		Err:     err,
	}
}

// Chain validation failure reasons. They are stable strings used as metric labels
// and in local diagnostics; they are never sent to the peer.
const (
	ReasonUnknownAuthority = "unknown_authority"
	ReasonExpired          = "expired"
	ReasonNotYetValid      = "not_yet_valid"
	ReasonNotCA            = "not_ca"
	ReasonPathLength       = "path_length"
	ReasonBadSignature     = "bad_signature"
	ReasonHostnameMismatch = "hostname_mismatch"
	ReasonAnchorMismatch   = "anchor_mismatch"
	ReasonEmptyChain       = "empty_chain"
	ReasonVerifyFailed     = "verify_failed"
)

// ChainValidationError describes why a presented certificate chain was rejected.
type ChainValidationError struct {
	Reason  string
	Subject string // subject of the offending certificate, if known
	Err     error
}

func (e *ChainValidationError) Error() string {
	msg := "chain validation failed: " + e.Reason
	if e.Subject != "" {
		msg += " (" + e.Subject + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ChainValidationError) Unwrap() error {
	return e.Err
}

// Is makes every ChainValidationError match ErrChainValidationFailed.
func (e *ChainValidationError) Is(target error) bool {
	return target == ErrChainValidationFailed
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}
