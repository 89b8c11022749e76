package cli_test

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/sufield/securechain/internal/adapters/primary/api"
	"github.com/sufield/securechain/internal/adapters/secondary/transport"
	"github.com/sufield/securechain/internal/cli"
	"github.com/sufield/securechain/internal/core/domain"
	"github.com/sufield/securechain/internal/core/services"
	"github.com/sufield/securechain/internal/testpki"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type result struct {
	code   int
	stdout string
	stderr string
}

func execute(t *testing.T, root *cobra.Command, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	code := cli.Execute(context.Background(), root)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

// decodeAll reads consecutive JSON documents.
func decodeAll(t *testing.T, out string) []map[string]interface{} {
	t.Helper()
	var docs []map[string]interface{}
	dec := json.NewDecoder(bytes.NewBufferString(out))
	for dec.More() {
		var doc map[string]interface{}
		require.NoError(t, dec.Decode(&doc))
		docs = append(docs, doc)
	}
	return docs
}

// serveChain runs the api server on a loopback listener and returns its base URL with
// the host spelled localhost, so the client sends SNI and checks the leaf DNS name.
func serveChain(t *testing.T, chain *testpki.Chain, clientRoots ...*x509.Certificate) string {
	t.Helper()

	served := chain.TLSCertificate()
	opts := transport.ServerTLSOptions{
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) { return &served, nil },
	}
	if len(clientRoots) > 0 {
		anchors, err := domain.NewTrustAnchorSet(clientRoots)
		require.NoError(t, err)
		opts.ClientAuth = domain.ClientAuthRequire
		opts.ClientCAs = anchors
	}
	tlsConfig, err := transport.NewServerTLSConfig(opts)
	require.NoError(t, err)

	srv, err := api.NewServer(api.ServerConfig{
		TLSConfig:       tlsConfig,
		Messages:        services.NewMessageService(nil, discard),
		Health:          services.NewHealthService(nil, true, "", discard),
		ShutdownTimeout: time.Second,
		Logger:          discard,
	})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	port := ln.Addr().(*net.TCPAddr).Port
	return "https://localhost:" + strconv.Itoa(port)
}

// trustStoreFile writes a PKCS#12 trust store holding certs.
func trustStoreFile(t *testing.T, password string, certs ...*x509.Certificate) string {
	t.Helper()
	return testpki.WriteFile(t, "truststore.p12", testpki.TrustStore(t, password, certs...))
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}
