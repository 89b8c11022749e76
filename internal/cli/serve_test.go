package cli_test

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/securechain/internal/cli"
	"github.com/sufield/securechain/internal/testpki"
)

func TestServerCommand_ServesUntilCanceled(t *testing.T) {
	t.Parallel()

	chain := testpki.NewChain(t)
	ks := testpki.WriteFile(t, "server.p12", chain.KeyStore(t, "serverpass"))
	ts := trustStoreFile(t, "changeit", chain.Root)
	port := freePort(t)
	metricsAddr := "127.0.0.1:" + strconv.Itoa(freePort(t))

	root := cli.NewServerCommand()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{
		"--port", strconv.Itoa(port),
		"--keystore", ks,
		"--keystore-password", "serverpass",
		"--key-alias", "server",
		"--metrics-addr", metricsAddr,
		"--log-level", "error",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan int, 1)
	go func() { done <- cli.Execute(ctx, root) }()

	baseURL := "https://localhost:" + strconv.Itoa(port)
	require.Eventually(t, func() bool {
		res := execute(t, cli.NewClientCommand(), clientArgs(baseURL, ts, "-o", "json", "health")...)
		return res.code == cli.ExitOK
	}, 5*time.Second, 50*time.Millisecond)

	res := execute(t, cli.NewClientCommand(), clientArgs(baseURL, ts, "-o", "json")...)
	require.Equal(t, cli.ExitOK, res.code, res.stderr)
	require.Len(t, decodeAll(t, res.stdout), 3)

	var body []byte
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + metricsAddr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, err = io.ReadAll(resp.Body)
		return err == nil && resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)
	assert.Contains(t, string(body), `securechain_server_requests_total{code="200",route="/api/secure/message"} 2`)
	assert.Contains(t, string(body), "securechain_cert_expiry_timestamp_seconds")
	assert.Contains(t, string(body), "go_goroutines")

	cancel()
	select {
	case code := <-done:
		assert.Equal(t, cli.ExitOK, code)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop after cancellation")
	}
}

func TestServerCommand_RequiresClientCertificates(t *testing.T) {
	t.Parallel()

	serverChain := testpki.NewChain(t)
	clientChain := testpki.NewChain(t, testpki.WithRootSubject("CN=Client Root,O=securechain"))
	ks := testpki.WriteFile(t, "server.p12", serverChain.KeyStore(t, "serverpass"))
	clientCAs := testpki.WriteFile(t, "clients.p12", testpki.TrustStore(t, "capass", clientChain.Root))
	clientKS := testpki.WriteFile(t, "client.p12", clientChain.KeyStore(t, "clientpass"))
	ts := trustStoreFile(t, "changeit", serverChain.Root)
	port := freePort(t)

	root := cli.NewServerCommand()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{
		"--port", strconv.Itoa(port),
		"--keystore", ks,
		"--keystore-password", "serverpass",
		"--client-auth", "require",
		"--truststore", clientCAs,
		"--truststore-password", "capass",
		"--log-level", "error",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan int, 1)
	go func() { done <- cli.Execute(ctx, root) }()

	baseURL := "https://localhost:" + strconv.Itoa(port)
	withCert := clientArgs(baseURL, ts, "--keystore", clientKS, "--keystore-password", "clientpass", "-o", "json", "message", "send", "hi")
	var res result
	require.Eventually(t, func() bool {
		res = execute(t, cli.NewClientCommand(), withCert...)
		return res.code == cli.ExitOK
	}, 5*time.Second, 50*time.Millisecond)

	docs := decodeAll(t, res.stdout)
	require.Len(t, docs, 1)
	assert.Equal(t, "localhost", docs[0]["sender"])
	assert.Equal(t, "Received: hi", docs[0]["content"])

	res = execute(t, cli.NewClientCommand(), clientArgs(baseURL, ts, "health")...)
	assert.Equal(t, cli.ExitRuntime, res.code)

	cancel()
	assert.Equal(t, cli.ExitOK, <-done)
}

func TestServerCommand_StartupErrors(t *testing.T) {
	t.Parallel()

	chain := testpki.NewChain(t)
	ks := testpki.WriteFile(t, "server.p12", chain.KeyStore(t, "serverpass"))
	missing := filepath.Join(t.TempDir(), "absent.p12")

	tests := []struct {
		name string
		args []string
		code int
	}{
		{name: "missing keystore", args: []string{"--keystore", missing}, code: cli.ExitConfig},
		{name: "client auth without trust store", args: []string{"--keystore", ks, "--keystore-password", "serverpass", "--client-auth", "require"}, code: cli.ExitConfig},
		{name: "unknown client auth mode", args: []string{"--keystore", ks, "--client-auth", "optional"}, code: cli.ExitConfig},
		{name: "port out of range", args: []string{"--keystore", ks, "--port", "70000"}, code: cli.ExitConfig},
		{name: "wrong keystore password", args: []string{"--keystore", ks, "--keystore-password", "nope", "--port", "1"}, code: cli.ExitTrustMaterial},
		{name: "unknown flag", args: []string{"--bogus"}, code: cli.ExitUsage},
		{name: "stray argument", args: []string{"now"}, code: cli.ExitUsage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			args := append([]string{"--log-level", "error"}, tt.args...)
			res := execute(t, cli.NewServerCommand(), args...)
			assert.Equal(t, tt.code, res.code, res.stderr)
		})
	}
}
