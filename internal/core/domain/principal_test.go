package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sufield/securechain/internal/core/domain"
)

func TestPrincipal_NameOr(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Anonymous", domain.Principal{}.NameOr("Anonymous"))
	assert.Equal(t, "Server", domain.Principal{Name: "  "}.NameOr("Server"))
	assert.Equal(t, "client-a", domain.Principal{Name: "client-a"}.NameOr("Server"))
}

func TestTrustStoreCredential(t *testing.T) {
	t.Parallel()

	secret := "truststorepass"
	cred := domain.NewTrustStoreCredential(domain.FormatPKCS12, secret)
	assert.NotContains(t, cred.String(), secret)

	buf := cred.Passphrase
	cred.Wipe()
	assert.Nil(t, cred.Passphrase)
	assert.Equal(t, make([]byte, len(secret)), buf)
	assert.Equal(t, "truststorepass", secret)
}

func TestParseContainerFormat(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]domain.ContainerFormat{
		"":       domain.FormatPKCS12,
		"pkcs12": domain.FormatPKCS12,
		"P12":    domain.FormatPKCS12,
		"pfx":    domain.FormatPKCS12,
		"pem":    domain.FormatPEM,
	} {
		got, err := domain.ParseContainerFormat(in)
		assert.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := domain.ParseContainerFormat("jks")
	assert.Error(t, err)
}
