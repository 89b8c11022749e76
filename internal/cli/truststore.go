package cli

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/sufield/securechain/internal/adapters/secondary/transport"
	"github.com/sufield/securechain/internal/adapters/secondary/truststore"
	"github.com/sufield/securechain/internal/core/errors"
)

func newTrustStoreCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "truststore",
		Aliases: []string{"ts"},
		Short:   "Inspect the client trust store and check chains against it offline",
		Args:    usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newInspectCommand(a), newVerifyCommand(a))
	return cmd
}

func newInspectCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "List the trust anchors in the configured trust store",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ssl := a.cfg.Client.SSL
			anchors, err := a.loadAnchors(cmd.Context(), ssl.TrustStore, ssl.TrustStorePassword, ssl.TrustStoreType)
			if err != nil {
				return err
			}
			return a.printer(cmd).Anchors(ssl.TrustStore, anchors.Describe(time.Now()))
		},
	}
}

func newVerifyCommand(a *app) *cobra.Command {
	var hostname string

	cmd := &cobra.Command{
		Use:   "verify <chain.pem>",
		Short: "Check a PEM certificate chain (leaf first) against the trust store",
		Long: `verify applies the same chain policy the client enforces during the handshake:
the chain must end at a trust anchor, every certificate must be inside its validity
period, every issuer must be a CA within its path length, and every signature must
verify. With --hostname the leaf must also be valid for that name.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ssl := a.cfg.Client.SSL
			anchors, err := a.loadAnchors(cmd.Context(), ssl.TrustStore, ssl.TrustStorePassword, ssl.TrustStoreType)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(filepath.Clean(args[0]))
			if err != nil {
				return fmt.Errorf("failed to read chain: %w", err)
			}
			chain, err := truststore.DecodePEM(data, "")
			if err != nil {
				return fmt.Errorf("failed to parse chain %s: %w", args[0], err)
			}

			p := a.printer(cmd)
			err = transport.NewChainPolicy(anchors, time.Now).VerifyChain(chain, hostname)
			var cve *errors.ChainValidationError
			if stderrors.As(err, &cve) {
				if perr := p.ChainRejected(cve); perr != nil {
					return perr
				}
				return err
			}
			if err != nil {
				return err
			}

			subjects := make([]string, len(chain))
			for i, cert := range chain {
				subjects[i] = cert.Subject.String()
			}
			return p.ChainVerified(subjects)
		},
	}
	cmd.Flags().StringVar(&hostname, "hostname", "", "Host name the leaf certificate must be valid for")
	return cmd
}
