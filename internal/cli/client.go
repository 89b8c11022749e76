package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sufield/securechain/internal/adapters/logging"
	"github.com/sufield/securechain/internal/adapters/primary/api"
	"github.com/sufield/securechain/internal/adapters/secondary/keystore"
	"github.com/sufield/securechain/internal/adapters/secondary/transport"
	"github.com/sufield/securechain/internal/adapters/secondary/truststore"
	"github.com/sufield/securechain/internal/core/domain"
	"github.com/sufield/securechain/internal/core/ports"
)

// DemoContent is the message the demo run submits.
const DemoContent = "Hello from secure client!"

// clientFlags override the client section of the configuration when set.
type clientFlags struct {
	baseURL            string
	trustStore         string
	trustStorePassword string
	trustStoreType     string
	keyStore           string
	keyStorePassword   string
	identity           string
	timeout            time.Duration
}

func (f *clientFlags) bind(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&f.baseURL, "base-url", "", "Server base URL (https only)")
	flags.StringVar(&f.trustStore, "truststore", "", "Trust store holding the anchors the server chain must end at")
	flags.StringVar(&f.trustStorePassword, "truststore-password", "", "Trust store passphrase")
	flags.StringVar(&f.trustStoreType, "truststore-type", "", "Trust store format: PKCS12 or PEM")
	flags.StringVar(&f.keyStore, "keystore", "", "Optional PKCS#12 client certificate for servers that request one")
	flags.StringVar(&f.keyStorePassword, "keystore-password", "", "Client keystore passphrase")
	flags.StringVar(&f.identity, "identity", "", "Sender label stamped on submitted messages")
	flags.DurationVar(&f.timeout, "timeout", 0, "Per-request timeout")
}

func (f *clientFlags) apply(cmd *cobra.Command, a *app) {
	c := &a.cfg.Client
	changed := cmd.Flags().Changed
	if changed("base-url") {
		c.API.BaseURL = f.baseURL
	}
	if changed("truststore") {
		c.SSL.TrustStore = f.trustStore
	}
	if changed("truststore-password") {
		c.SSL.TrustStorePassword = f.trustStorePassword
	}
	if changed("truststore-type") {
		c.SSL.TrustStoreType = f.trustStoreType
	}
	if changed("keystore") {
		c.SSL.KeyStore = f.keyStore
	}
	if changed("keystore-password") {
		c.SSL.KeyStorePassword = f.keyStorePassword
	}
	if changed("identity") {
		c.Identity = f.identity
	}
	if changed("timeout") {
		c.Timeout = f.timeout
	}
}

// NewClientCommand builds the secure-client command tree. Run without a subcommand it
// performs the demo sequence.
func NewClientCommand() *cobra.Command {
	a := newApp()
	flags := &clientFlags{}

	root := &cobra.Command{
		Use:   "secure-client",
		Short: "HTTPS client that only trusts servers chaining to its trust store",
		Long: `secure-client talks to the secure message server over HTTPS.

The server certificate chain must end at an anchor in the configured trust store
and pass validity, CA and signature checks on every link. Any failure aborts the
handshake before a request is sent.`,
		Args:          usageArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.load(cmd); err != nil {
				return err
			}
			flags.apply(cmd, a)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd, a)
		},
	}
	a.bindGlobalFlags(root.PersistentFlags())
	flags.bind(root)
	root.SetFlagErrorFunc(flagUsageError)

	root.AddCommand(
		newMessageCommand(a),
		newHealthCommand(a),
		newDemoCommand(a),
		newTrustStoreCommand(a),
		newVersionCommand(a),
		newManCommand(),
	)
	return root
}

func newMessageCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Fetch or submit secure messages",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "GET " + api.MessagePath,
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, done, err := a.newClient(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			msg, err := client.FetchMessage(cmd.Context())
			if err != nil {
				return err
			}
			return a.printer(cmd).Message("GET "+api.MessagePath, msg)
		},
	}

	send := &cobra.Command{
		Use:   "send <content>",
		Short: "POST " + api.MessagePath,
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, done, err := a.newClient(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			msg, err := client.SubmitMessage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printer(cmd).Message("POST "+api.MessagePath, msg)
		},
	}

	cmd.AddCommand(get, send)
	return cmd
}

func newHealthCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "GET " + api.HealthPath,
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, done, err := a.newClient(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			h, err := client.FetchHealth(cmd.Context())
			if err != nil {
				return err
			}
			return a.printer(cmd).Health("GET "+api.HealthPath, h)
		},
	}
}

func newDemoCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Fetch a message, submit one, then check health",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd, a)
		},
	}
}

// runDemo stops at the first failed request.
func runDemo(cmd *cobra.Command, a *app) error {
	ctx := cmd.Context()
	client, done, err := a.newClient(ctx)
	if err != nil {
		return err
	}
	defer done()

	p := a.printer(cmd)

	msg, err := client.FetchMessage(ctx)
	if err != nil {
		return err
	}
	if err := p.Message("GET "+api.MessagePath, msg); err != nil {
		return err
	}

	msg, err = client.SubmitMessage(ctx, DemoContent)
	if err != nil {
		return err
	}
	if err := p.Message("POST "+api.MessagePath, msg); err != nil {
		return err
	}

	h, err := client.FetchHealth(ctx)
	if err != nil {
		return err
	}
	return p.Health("GET "+api.HealthPath, h)
}

// newClient builds the secure transport from the client configuration. The returned
// func releases idle connections.
func (a *app) newClient(ctx context.Context) (*api.Client, func(), error) {
	if err := a.provider.ValidateClient(a.cfg); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	c := a.cfg.Client

	anchors, err := a.loadAnchors(ctx, c.SSL.TrustStore, c.SSL.TrustStorePassword, c.SSL.TrustStoreType)
	if err != nil {
		return nil, nil, err
	}

	opts := []transport.BuilderOption{
		transport.WithRequestTimeout(c.Timeout),
		transport.WithLogger(a.logger),
	}
	if c.SSL.KeyStore != "" {
		format, err := domain.ParseContainerFormat(c.SSL.KeyStoreType)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrConfig, err)
		}
		cert, err := keystore.NewLoader(a.logger).Load(keystore.Source{
			Path:     c.SSL.KeyStore,
			Password: c.SSL.KeyStorePassword,
			Format:   format,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrTrustMaterial, err)
		}
		a.logger.Debug("client certificate loaded", "chain", keystore.DescribeChain(cert))
		opts = append(opts, transport.WithClientCertificate(cert))
	}

	st, err := transport.NewClientContextBuilder(opts...).Build(anchors)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrTrustMaterial, err)
	}

	client, err := api.NewClient(c.API.BaseURL, st,
		api.WithIdentity(c.Identity),
		api.WithObserver(logging.NewObserver(a.logger)),
		api.WithClientLogger(a.logger),
	)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return client, st.Close, nil
}

// loadAnchors opens a trust store. Failures are trust material errors.
// Extra observers see the load event after the log.
func (a *app) loadAnchors(ctx context.Context, path, password, storeType string, extra ...ports.Observer) (*domain.TrustAnchorSet, error) {
	format, err := domain.ParseContainerFormat(storeType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	observers := append(ports.Observers{logging.NewObserver(a.logger)}, extra...)
	loader := truststore.NewLoader(
		truststore.WithObserver(observers),
		truststore.WithLogger(a.logger),
	)
	anchors, err := loader.LoadFile(ctx, path, domain.NewTrustStoreCredential(format, password))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTrustMaterial, err)
	}
	return anchors, nil
}
