package domain

import (
	"fmt"
	"strings"
)

// ContainerFormat identifies how trust or key material is packaged on disk.
type ContainerFormat string

const (
	FormatPKCS12 ContainerFormat = "PKCS12"
	FormatPEM    ContainerFormat = "PEM"
)

// ParseContainerFormat accepts the usual spellings ("pkcs12", "p12", "pfx", "pem").
// An empty string selects PKCS#12.
func ParseContainerFormat(s string) (ContainerFormat, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "PKCS12", "P12", "PFX":
		return FormatPKCS12, nil
	case "PEM":
		return FormatPEM, nil
	default:
		return "", fmt.Errorf("unsupported container format %q", s)
	}
}

// TrustStoreCredential opens a trust store container. It is consumed once by the
// loader and must not be retained afterwards.
type TrustStoreCredential struct {
	Format     ContainerFormat
	Passphrase []byte
}

// NewTrustStoreCredential copies the passphrase so the caller's buffer is untouched
// when the credential is wiped.
func NewTrustStoreCredential(format ContainerFormat, passphrase string) TrustStoreCredential {
	return TrustStoreCredential{Format: format, Passphrase: []byte(passphrase)}
}

// Wipe zeroes the passphrase bytes.
func (c *TrustStoreCredential) Wipe() {
	for i := range c.Passphrase {
		c.Passphrase[i] = 0
	}
	c.Passphrase = nil
}

// String never reveals the passphrase.
func (c TrustStoreCredential) String() string {
	return fmt.Sprintf("TrustStoreCredential{format=%s, passphrase=[REDACTED]}", c.Format)
}
