package cli

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/sufield/securechain/internal/adapters/metrics"
	"github.com/sufield/securechain/internal/adapters/primary/api"
	"github.com/sufield/securechain/internal/adapters/secondary/keystore"
	"github.com/sufield/securechain/internal/adapters/secondary/transport"
	"github.com/sufield/securechain/internal/core/domain"
	"github.com/sufield/securechain/internal/core/services"
	"github.com/sufield/securechain/internal/shutdown"
)

type serverFlags struct {
	port               int
	keyStore           string
	keyStorePassword   string
	keyStoreType       string
	keyAlias           string
	clientAuth         string
	trustStore         string
	trustStorePassword string
	trustStoreType     string
	metricsAddr        string
	reload             bool
}

func (f *serverFlags) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.IntVarP(&f.port, "port", "p", 0, "HTTPS port")
	flags.StringVar(&f.keyStore, "keystore", "", "PKCS#12 (or PEM) file holding the server key and chain")
	flags.StringVar(&f.keyStorePassword, "keystore-password", "", "Keystore passphrase")
	flags.StringVar(&f.keyStoreType, "keystore-type", "", "Keystore format: PKCS12 or PEM")
	flags.StringVar(&f.keyAlias, "key-alias", "", "Key entry alias (informational for PKCS#12)")
	flags.StringVar(&f.clientAuth, "client-auth", "", "Client certificate policy: none, request or require")
	flags.StringVar(&f.trustStore, "truststore", "", "Trust store for client certificates")
	flags.StringVar(&f.trustStorePassword, "truststore-password", "", "Client trust store passphrase")
	flags.StringVar(&f.trustStoreType, "truststore-type", "", "Client trust store format: PKCS12 or PEM")
	flags.StringVar(&f.metricsAddr, "metrics-addr", "", "Plain HTTP listener for /metrics, e.g. 127.0.0.1:9090")
	flags.BoolVar(&f.reload, "reload", false, "Watch the keystore and serve the new certificate when it changes")
}

func (f *serverFlags) apply(cmd *cobra.Command, a *app) {
	s := &a.cfg.Server
	changed := cmd.Flags().Changed
	if changed("port") {
		s.Port = f.port
	}
	if changed("keystore") {
		s.SSL.KeyStore = f.keyStore
	}
	if changed("keystore-password") {
		s.SSL.KeyStorePassword = f.keyStorePassword
	}
	if changed("keystore-type") {
		s.SSL.KeyStoreType = f.keyStoreType
	}
	if changed("key-alias") {
		s.SSL.KeyAlias = f.keyAlias
	}
	if changed("client-auth") {
		s.SSL.ClientAuth = f.clientAuth
	}
	if changed("truststore") {
		s.SSL.TrustStore = f.trustStore
	}
	if changed("truststore-password") {
		s.SSL.TrustStorePassword = f.trustStorePassword
	}
	if changed("truststore-type") {
		s.SSL.TrustStoreType = f.trustStoreType
	}
	if changed("metrics-addr") {
		s.MetricsAddr = f.metricsAddr
	}
	if changed("reload") {
		s.SSL.Reload = f.reload
	}
}

// NewServerCommand builds the secure-server command tree. Run without a subcommand it
// serves until SIGINT or SIGTERM.
func NewServerCommand() *cobra.Command {
	a := newApp()
	flags := &serverFlags{}

	root := &cobra.Command{
		Use:   "secure-server",
		Short: "HTTPS endpoint for the secure message and health routes",
		Long: `secure-server serves GET and POST /api/secure/message and GET /api/secure/health
over HTTPS with the certificate chain from its keystore.

With client auth set to request or require, presented client certificates must
chain to the configured trust store.`,
		Args:              usageArgs(cobra.NoArgs),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return a.load(cmd) },
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags.apply(cmd, a)
			return runServer(cmd, a)
		},
	}
	a.bindGlobalFlags(root.PersistentFlags())
	flags.bind(root)
	root.SetFlagErrorFunc(flagUsageError)

	root.AddCommand(newVersionCommand(a), newManCommand())
	return root
}

func runServer(cmd *cobra.Command, a *app) error {
	if err := a.provider.ValidateServer(a.cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	sc := a.cfg.Server
	logger := a.logger

	clientAuth, err := domain.ParseClientAuthMode(sc.SSL.ClientAuth)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	keyFormat, err := domain.ParseContainerFormat(sc.SSL.KeyStoreType)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewPrometheusMetrics(reg)

	source := keystore.Source{
		Path:     sc.SSL.KeyStore,
		Password: sc.SSL.KeyStorePassword,
		Alias:    sc.SSL.KeyAlias,
		Format:   keyFormat,
	}
	ksLoader := keystore.NewLoader(logger)
	load := func() (tls.Certificate, error) {
		cert, err := ksLoader.Load(source)
		if err != nil {
			return cert, err
		}
		recordServedChain(logger, m, cert)
		return cert, nil
	}
	reloader, err := keystore.NewReloader(sc.SSL.KeyStore, load,
		keystore.WithReloadHook(m.RecordKeystoreReload),
		keystore.WithReloaderLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTrustMaterial, err)
	}

	tlsOpts := transport.ServerTLSOptions{
		GetCertificate: reloader.GetCertificate,
		ClientAuth:     clientAuth,
	}
	if clientAuth != domain.ClientAuthNone {
		anchors, err := a.loadAnchors(cmd.Context(), sc.SSL.TrustStore, sc.SSL.TrustStorePassword, sc.SSL.TrustStoreType, m)
		if err != nil {
			_ = reloader.Close()
			return err
		}
		tlsOpts.ClientCAs = anchors
	}
	tlsConfig, err := transport.NewServerTLSConfig(tlsOpts)
	if err != nil {
		_ = reloader.Close()
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}

	health := services.NewHealthService(nil, true, "", logger)
	if err := health.RegisterCheck("keystore", reloader.Check); err != nil {
		_ = reloader.Close()
		return err
	}

	server, err := api.NewServer(api.ServerConfig{
		Addr:            fmt.Sprintf(":%d", sc.Port),
		TLSConfig:       tlsConfig,
		Messages:        services.NewMessageService(nil, logger),
		Health:          health,
		Recorder:        m,
		MetricsAddr:     sc.MetricsAddr,
		Gatherer:        reg,
		ShutdownTimeout: sc.ShutdownTimeout,
		Logger:          logger,
	})
	if err != nil {
		_ = reloader.Close()
		return err
	}

	coordinator := shutdown.NewCoordinator(&shutdown.Config{
		GracePeriod: sc.ShutdownTimeout,
		Logger:      logger,
	})
	coordinator.RegisterServer(server)
	coordinator.RegisterCloser(reloader)

	ctx, stop := signalContext(cmd)
	defer stop()

	if sc.SSL.Reload {
		if err := reloader.Watch(ctx); err != nil {
			_ = coordinator.Shutdown(context.Background())
			return fmt.Errorf("failed to watch keystore: %w", err)
		}
	}

	logger.Info("Starting secure server",
		"port", sc.Port,
		"client_auth", string(clientAuth),
		"reload", sc.SSL.Reload,
		"metrics_addr", sc.MetricsAddr)

	serveErr := server.ListenAndServe(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), sc.ShutdownTimeout)
	defer cancel()
	if err := coordinator.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

// recordServedChain logs the chain about to be served and exports its expiry.
func recordServedChain(logger *slog.Logger, m *metrics.PrometheusMetrics, cert tls.Certificate) {
	if cert.Leaf == nil {
		return
	}
	logger.Info("Serving certificate chain",
		"chain", keystore.DescribeChain(cert),
		"not_after", cert.Leaf.NotAfter.UTC().Format(time.RFC3339))
	m.UpdateCertExpiry(cert.Leaf.Subject.String(), cert.Leaf.NotAfter)
}
