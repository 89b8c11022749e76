package cli

import (
	stderrors "errors"
	"strings"

	"github.com/sufield/securechain/internal/core/errors"
)

// Sentinel errors for exit code classification
var (
	// ErrUsage indicates invalid command usage, flags, or arguments
	ErrUsage = stderrors.New("usage error")

	// ErrConfig indicates missing or invalid configuration
	ErrConfig = stderrors.New("configuration error")

	// ErrTrustMaterial indicates a trust store or key store that cannot be used
	ErrTrustMaterial = stderrors.New("trust material error")
)

// Exit codes returned by the binaries.
const (
	ExitOK            = 0
	ExitRuntime       = 1
	ExitUsage         = 2
	ExitTrustMaterial = 3
	ExitConfig        = 4
)

// ExitCode maps a command error to the process exit status. Request failures are
// runtime errors even when a rejected server chain caused them.
func ExitCode(err error) int {
	var cve *errors.ConfigValidationError

	switch {
	case err == nil:
		return ExitOK
	case stderrors.Is(err, ErrUsage), isCobraUsageError(err):
		return ExitUsage
	case stderrors.Is(err, errors.ErrRequestFailed),
		stderrors.Is(err, errors.ErrDecodeFailed),
		stderrors.Is(err, errors.ErrEncodeFailed):
		return ExitRuntime
	case stderrors.Is(err, ErrTrustMaterial),
		stderrors.Is(err, errors.ErrTrustStoreUnreadable),
		stderrors.Is(err, errors.ErrTrustStoreDecryptFailed),
		stderrors.Is(err, errors.ErrTrustStoreEmpty),
		stderrors.Is(err, errors.ErrKeystoreUnreadable),
		stderrors.Is(err, errors.ErrKeystoreDecryptFailed),
		stderrors.Is(err, errors.ErrKeystoreInvalid),
		stderrors.Is(err, errors.ErrChainValidationFailed):
		return ExitTrustMaterial
	case stderrors.Is(err, ErrConfig),
		stderrors.Is(err, errors.ErrMissingConfiguration),
		stderrors.As(err, &cve):
		return ExitConfig
	default:
		return ExitRuntime
	}
}

// cobra reports unknown subcommands and argument count mismatches as plain errors.
func isCobraUsageError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") ||
		strings.HasPrefix(msg, "accepts ") ||
		strings.HasPrefix(msg, "requires ")
}
