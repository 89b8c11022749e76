package cli_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sufield/securechain/internal/cli"
	"github.com/sufield/securechain/internal/core/errors"
)

func TestExitCode(t *testing.T) {
	t.Parallel()

	rejected := &errors.ChainValidationError{Reason: errors.ReasonUnknownAuthority}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "success", err: nil, want: cli.ExitOK},
		{name: "usage sentinel", err: fmt.Errorf("%w: bad flag", cli.ErrUsage), want: cli.ExitUsage},
		{name: "unknown command", err: stderrors.New(`unknown command "nope" for "secure-client"`), want: cli.ExitUsage},
		{name: "argument count", err: stderrors.New("accepts 1 arg(s), received 0"), want: cli.ExitUsage},
		{name: "request failed by rejected chain", err: errors.NewDomainError(errors.ErrRequestFailed, rejected), want: cli.ExitRuntime},
		{name: "decode failure", err: errors.NewDomainError(errors.ErrDecodeFailed, stderrors.New("eof")), want: cli.ExitRuntime},
		{name: "unreadable trust store", err: errors.NewDomainError(errors.ErrTrustStoreUnreadable, stderrors.New("missing")), want: cli.ExitTrustMaterial},
		{name: "wrong passphrase", err: errors.NewDomainError(errors.ErrTrustStoreDecryptFailed, stderrors.New("mac")), want: cli.ExitTrustMaterial},
		{name: "offline chain rejection", err: rejected, want: cli.ExitTrustMaterial},
		{name: "trust material sentinel", err: fmt.Errorf("%w: keystore", cli.ErrTrustMaterial), want: cli.ExitTrustMaterial},
		{name: "config sentinel", err: fmt.Errorf("%w: bad url", cli.ErrConfig), want: cli.ExitConfig},
		{name: "missing configuration", err: errors.NewDomainError(errors.ErrMissingConfiguration, stderrors.New("no file")), want: cli.ExitConfig},
		{name: "anything else", err: stderrors.New("boom"), want: cli.ExitRuntime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, cli.ExitCode(tt.err))
		})
	}
}
