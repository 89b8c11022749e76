package keystore_test

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/securechain/internal/adapters/secondary/keystore"
	"github.com/sufield/securechain/internal/testpki"
)

// replaceFile writes data next to path and renames it into place.
func replaceFile(t *testing.T, path string, data []byte) {
	t.Helper()
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, data, 0o600))
	require.NoError(t, os.Rename(tmp, path))
}

func TestReloader_SwapsCertificateOnChange(t *testing.T) {
	t.Parallel()

	first := testpki.NewChain(t)
	second := testpki.NewChain(t)
	path := testpki.WriteFile(t, "server.p12", first.KeyStore(t, password))

	results := make(chan string, 8)
	loader := keystore.NewLoader(nil)
	r, err := keystore.NewReloader(path,
		func() (tls.Certificate, error) {
			return loader.Load(keystore.Source{Path: path, Password: password})
		},
		keystore.WithDebounce(20*time.Millisecond),
		keystore.WithReloadHook(func(result string) { results <- result }),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	served, err := r.GetCertificate(nil)
	require.NoError(t, err)
	assert.Equal(t, first.Server.Raw, served.Certificate[0])

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, r.Watch(ctx))
	assert.Error(t, r.Watch(ctx), "second watch is rejected")

	replaceFile(t, path, second.KeyStore(t, password))
	select {
	case res := <-results:
		assert.Equal(t, keystore.ReloadSuccess, res)
	case <-time.After(5 * time.Second):
		t.Fatal("keystore change was not picked up")
	}
	assert.Equal(t, second.Server.Raw, r.Certificate().Certificate[0])

	replaceFile(t, path, []byte("corrupt"))
	select {
	case res := <-results:
		assert.Equal(t, keystore.ReloadFailure, res)
	case <-time.After(5 * time.Second):
		t.Fatal("corrupt keystore was not noticed")
	}
	assert.Equal(t, second.Server.Raw, r.Certificate().Certificate[0], "failed reload keeps the previous certificate")
}

func TestReloader_IgnoresOtherFiles(t *testing.T) {
	t.Parallel()

	chain := testpki.NewChain(t)
	path := testpki.WriteFile(t, "server.p12", chain.KeyStore(t, password))

	results := make(chan string, 1)
	r, err := keystore.NewReloader(path,
		func() (tls.Certificate, error) { return chain.TLSCertificate(), nil },
		keystore.WithDebounce(10*time.Millisecond),
		keystore.WithReloadHook(func(result string) { results <- result }),
	)
	require.NoError(t, err)
	require.NoError(t, r.Watch(context.Background()))

	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "unrelated.txt"), []byte("x"), 0o600))
	select {
	case res := <-results:
		t.Fatalf("unexpected reload: %s", res)
	case <-time.After(200 * time.Millisecond):
	}
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
}

func TestReloader_InitialLoadFailure(t *testing.T) {
	t.Parallel()

	_, err := keystore.NewReloader("server.p12", func() (tls.Certificate, error) {
		return tls.Certificate{}, stderrors.New("boom")
	})
	assert.Error(t, err)
}

func TestReloader_Check(t *testing.T) {
	t.Parallel()

	chain := testpki.NewChain(t)
	load := func() (tls.Certificate, error) { return chain.TLSCertificate(), nil }

	r, err := keystore.NewReloader("server.p12", load)
	require.NoError(t, err)
	assert.NoError(t, r.Check(context.Background()))

	late, err := keystore.NewReloader("server.p12", load,
		keystore.WithReloaderClock(func() time.Time { return chain.Server.NotAfter.Add(time.Hour) }))
	require.NoError(t, err)
	assert.Error(t, late.Check(context.Background()))

	early, err := keystore.NewReloader("server.p12", load,
		keystore.WithReloaderClock(func() time.Time { return chain.Server.NotBefore.Add(-time.Hour) }))
	require.NoError(t, err)
	assert.Error(t, early.Check(context.Background()))
}
