package truststore_test

import (
	"bytes"
	"context"
	"crypto/x509"
	stderrors "errors"
	"path/filepath"
	"sync"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/sufield/securechain/internal/adapters/secondary/truststore"
	"github.com/sufield/securechain/internal/core/domain"
	"github.com/sufield/securechain/internal/core/errors"
	"github.com/sufield/securechain/internal/core/ports"
	"github.com/sufield/securechain/internal/testpki"
)

const password = "truststorepass"

type recordingObserver struct {
	ports.NopObserver
	mu     sync.Mutex
	loaded []ports.TrustStoreLoadedEvent
}

func (r *recordingObserver) TrustStoreLoaded(_ context.Context, ev ports.TrustStoreLoadedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = append(r.loaded, ev)
}

func (r *recordingObserver) events() []ports.TrustStoreLoadedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ports.TrustStoreLoadedEvent(nil), r.loaded...)
}

func pkcs12Cred(pass string) domain.TrustStoreCredential {
	return domain.NewTrustStoreCredential(domain.FormatPKCS12, pass)
}

func TestLoader_LoadFile(t *testing.T) {
	t.Parallel()

	chain := testpki.NewChain(t)
	path := testpki.WriteFile(t, "client-truststore.p12", testpki.TrustStore(t, password, chain.Root))

	obs := &recordingObserver{}
	loader := truststore.NewLoader(truststore.WithObserver(obs))

	anchors, err := loader.LoadFile(context.Background(), path, pkcs12Cred(password))
	require.NoError(t, err)
	assert.Equal(t, 1, anchors.Count())
	assert.True(t, anchors.Contains(chain.Root))

	events := obs.events()
	require.Len(t, events, 1)
	assert.Equal(t, 1, events[0].AnchorCount)
	assert.Equal(t, path, events[0].Source)
	assert.Equal(t, domain.FormatPKCS12, events[0].Format)
}

func TestLoader_Failures(t *testing.T) {
	t.Parallel()

	chain := testpki.NewChain(t)
	store := testpki.TrustStore(t, password, chain.Root)

	tests := []struct {
		name    string
		load    func(l *truststore.Loader) (*domain.TrustAnchorSet, error)
		wantErr error
	}{
		{
			name: "missing file",
			load: func(l *truststore.Loader) (*domain.TrustAnchorSet, error) {
				return l.LoadFile(context.Background(), filepath.Join(t.TempDir(), "absent.p12"), pkcs12Cred(password))
			},
			wantErr: errors.ErrTrustStoreUnreadable,
		},
		{
			name: "wrong passphrase",
			load: func(l *truststore.Loader) (*domain.TrustAnchorSet, error) {
				return l.Load(context.Background(), bytes.NewReader(store), pkcs12Cred("wrong"))
			},
			wantErr: errors.ErrTrustStoreDecryptFailed,
		},
		{
			name: "garbage bytes",
			load: func(l *truststore.Loader) (*domain.TrustAnchorSet, error) {
				return l.Load(context.Background(), bytes.NewReader([]byte("not a trust store")), pkcs12Cred(password))
			},
			wantErr: errors.ErrTrustStoreDecryptFailed,
		},
		{
			name: "pem container read as pkcs12",
			load: func(l *truststore.Loader) (*domain.TrustAnchorSet, error) {
				return l.Load(context.Background(), bytes.NewReader(testpki.PEM(chain.Root)), pkcs12Cred(password))
			},
			wantErr: errors.ErrTrustStoreDecryptFailed,
		},
		{
			name: "reader error",
			load: func(l *truststore.Loader) (*domain.TrustAnchorSet, error) {
				return l.Load(context.Background(), iotest.ErrReader(stderrors.New("disk gone")), pkcs12Cred(password))
			},
			wantErr: errors.ErrTrustStoreUnreadable,
		},
		{
			name: "canceled context",
			load: func(l *truststore.Loader) (*domain.TrustAnchorSet, error) {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return l.Load(ctx, bytes.NewReader(store), pkcs12Cred(password))
			},
			wantErr: errors.ErrTrustStoreUnreadable,
		},
		{
			name: "oversized input",
			load: func(*truststore.Loader) (*domain.TrustAnchorSet, error) {
				small := truststore.NewLoader(truststore.WithMaxSize(16))
				return small.Load(context.Background(), bytes.NewReader(store), pkcs12Cred(password))
			},
			wantErr: errors.ErrTrustStoreUnreadable,
		},
		{
			name: "pem without certificates",
			load: func(l *truststore.Loader) (*domain.TrustAnchorSet, error) {
				cred := domain.NewTrustStoreCredential(domain.FormatPEM, "")
				return l.Load(context.Background(), bytes.NewReader(testpki.KeyPEM(t, chain.ServerKey)), cred)
			},
			wantErr: errors.ErrTrustStoreEmpty,
		},
		{
			name: "decoder yields nothing",
			load: func(*truststore.Loader) (*domain.TrustAnchorSet, error) {
				empty := truststore.NewLoader(truststore.WithDecoder(domain.FormatPKCS12,
					func([]byte, string) ([]*x509.Certificate, error) { return nil, nil }))
				return empty.Load(context.Background(), bytes.NewReader(store), pkcs12Cred(password))
			},
			wantErr: errors.ErrTrustStoreEmpty,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			obs := &recordingObserver{}
			loader := truststore.NewLoader(truststore.WithObserver(obs))

			anchors, err := tt.load(loader)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, anchors)
			assert.Empty(t, obs.events())
			assert.NotContains(t, err.Error(), password)
		})
	}
}

func TestLoader_WrongPassphraseIsDistinguished(t *testing.T) {
	t.Parallel()

	chain := testpki.NewChain(t)
	store := testpki.TrustStore(t, password, chain.Root)

	_, err := truststore.NewLoader().Load(context.Background(), bytes.NewReader(store), pkcs12Cred("nope"))
	require.Error(t, err)
	assert.True(t, truststore.IsWrongPassphrase(err))

	_, err = truststore.NewLoader().Load(context.Background(), bytes.NewReader([]byte{0x30, 0x00}), pkcs12Cred(password))
	require.Error(t, err)
	assert.False(t, truststore.IsWrongPassphrase(err))
}

func TestLoader_KeyBundleAsTrustStore(t *testing.T) {
	t.Parallel()

	chain := testpki.NewChain(t)
	bundle := chain.KeyStore(t, password)

	anchors, err := truststore.NewLoader().Load(context.Background(), bytes.NewReader(bundle), pkcs12Cred(password))
	require.NoError(t, err)
	assert.True(t, anchors.Contains(chain.Server))
	assert.True(t, anchors.Contains(chain.Intermediate))
}

func TestLoader_PEM(t *testing.T) {
	t.Parallel()

	chain := testpki.NewChain(t)
	data := append(testpki.KeyPEM(t, chain.ServerKey), testpki.PEM(chain.Root, chain.Intermediate)...)

	anchors, err := truststore.NewLoader().Load(context.Background(), bytes.NewReader(data),
		domain.NewTrustStoreCredential(domain.FormatPEM, ""))
	require.NoError(t, err)
	assert.Equal(t, 2, anchors.Count())
}

func TestLoader_WipesPassphrase(t *testing.T) {
	t.Parallel()

	chain := testpki.NewChain(t)
	store := testpki.TrustStore(t, password, chain.Root)

	cred := pkcs12Cred(password)
	buf := cred.Passphrase
	_, err := truststore.NewLoader().Load(context.Background(), bytes.NewReader(store), cred)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, len(password)), buf)
}

func TestLoader_RepeatedEntriesAreCounted(t *testing.T) {
	t.Parallel()

	root := testpki.NewChain(t).Root
	store := testpki.TrustStore(t, password, root, root, root)

	anchors, err := truststore.NewLoader().Load(context.Background(), bytes.NewReader(store), pkcs12Cred(password))
	require.NoError(t, err)
	assert.Equal(t, 3, anchors.Count())
	assert.True(t, anchors.Contains(root))
}

func TestLoader_AnchorCountMatchesEntryCount(t *testing.T) {
	t.Parallel()

	pool := make([]*x509.Certificate, 4)
	for i := range pool {
		pool[i] = testpki.NewChain(t).Root
	}
	stores := map[string][]byte{}
	loader := truststore.NewLoader()

	rapid.Check(t, func(rt *rapid.T) {
		picks := rapid.SliceOfN(rapid.IntRange(0, len(pool)-1), 1, 8).Draw(rt, "picks")

		var certs []*x509.Certificate
		key := ""
		for _, p := range picks {
			certs = append(certs, pool[p])
			key += string(rune('a' + p))
		}

		// Repeated certificates in a PKCS#12 file are legal; each entry counts.
		data, ok := stores[key]
		if !ok {
			data = testpki.TrustStore(t, password, certs...)
			stores[key] = data
		}

		anchors, err := loader.Load(context.Background(), bytes.NewReader(data), pkcs12Cred(password))
		if err != nil {
			rt.Fatalf("load: %v", err)
		}
		if anchors.Count() != len(picks) {
			rt.Fatalf("got %d anchors, want %d", anchors.Count(), len(picks))
		}
	})
}
