package api_test

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sufield/securechain/internal/adapters/primary/api"
	"github.com/sufield/securechain/internal/adapters/secondary/transport"
	"github.com/sufield/securechain/internal/core/domain"
	"github.com/sufield/securechain/internal/core/errors"
	"github.com/sufield/securechain/internal/core/ports"
	"github.com/sufield/securechain/internal/core/services"
	"github.com/sufield/securechain/internal/testpki"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type countingRecorder struct {
	mu     sync.Mutex
	routes map[string]int
}

func (r *countingRecorder) RecordServerRequest(route string, code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.routes == nil {
		r.routes = make(map[string]int)
	}
	r.routes[fmt.Sprintf("%s %d", route, code)]++
}

func (r *countingRecorder) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.routes[key]
}

func (r *countingRecorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.routes {
		n += c
	}
	return n
}

type recordingObserver struct {
	ports.NopObserver
	mu        sync.Mutex
	started   []ports.RequestEvent
	failed    []error
	succeeded int
	rejected  []*errors.ChainValidationError
}

func (o *recordingObserver) RequestStarted(_ context.Context, ev ports.RequestEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, ev)
}

func (o *recordingObserver) RequestFailed(_ context.Context, _ ports.RequestEvent, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, err)
}

func (o *recordingObserver) RequestSucceeded(context.Context, ports.RequestEvent, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.succeeded++
}

func (o *recordingObserver) HandshakeRejected(_ context.Context, cause *errors.ChainValidationError) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rejected = append(o.rejected, cause)
}

type serverFixture struct {
	url      string
	recorder *countingRecorder
	server   *api.Server
}

type serverOption func(*transport.ServerTLSOptions, *api.ServerConfig)

func withClientAuth(mode domain.ClientAuthMode, roots ...*x509.Certificate) serverOption {
	return func(o *transport.ServerTLSOptions, _ *api.ServerConfig) {
		anchors, err := domain.NewTrustAnchorSet(roots)
		if err != nil {
			panic(err)
		}
		o.ClientAuth = mode
		o.ClientCAs = anchors
	}
}

// startServer serves the api router over a real TLS listener presenting chain.
func startServer(t *testing.T, chain *testpki.Chain, opts ...serverOption) *serverFixture {
	t.Helper()

	served := chain.TLSCertificate()
	tlsOpts := transport.ServerTLSOptions{
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) { return &served, nil },
	}
	recorder := &countingRecorder{}
	cfg := api.ServerConfig{
		Messages:        services.NewMessageService(nil, discard),
		Health:          services.NewHealthService(nil, true, "", discard),
		Recorder:        recorder,
		ShutdownTimeout: time.Second,
		Logger:          discard,
	}
	for _, opt := range opts {
		opt(&tlsOpts, &cfg)
	}

	tlsConfig, err := transport.NewServerTLSConfig(tlsOpts)
	require.NoError(t, err)
	cfg.TLSConfig = tlsConfig

	srv, err := api.NewServer(cfg)
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

	return &serverFixture{
		url:      "https://" + ln.Addr().String(),
		recorder: recorder,
		server:   srv,
	}
}

// newTransport trusts roots and sends SNI localhost so the server's certificate
// callback is consulted.
func newTransport(t *testing.T, roots []*x509.Certificate, opts ...transport.BuilderOption) *transport.SecureTransport {
	t.Helper()
	anchors, err := domain.NewTrustAnchorSet(roots)
	require.NoError(t, err)

	opts = append([]transport.BuilderOption{
		transport.WithServerName("localhost"),
		transport.WithLogger(discard),
	}, opts...)
	st, err := transport.NewClientContextBuilder(opts...).Build(anchors)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

func newClient(t *testing.T, url string, st *transport.SecureTransport, opts ...api.ClientOption) *api.Client {
	t.Helper()
	opts = append([]api.ClientOption{api.WithClientLogger(discard)}, opts...)
	c, err := api.NewClient(url, st, opts...)
	require.NoError(t, err)
	return c
}

func rawRequest(t *testing.T, st *transport.SecureTransport, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := st.HTTPClient().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}
