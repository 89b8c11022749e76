// Package ports defines interfaces for core services and domain boundaries.
package ports

import (
	"context"
	"time"
)

// Environment variable prefix; nested keys map as SECURECHAIN_CLIENT_SSL_TRUST_STORE.
const EnvPrefix = "SECURECHAIN"

// Defaults applied before any file or environment source is read.
const (
	DefaultServerPort         = 8443
	DefaultBaseURL            = "https://localhost:8443"
	DefaultTrustStorePath     = "client-truststore.p12"
	DefaultTrustStorePassword = "truststorepass"
	DefaultClientIdentity     = "Client"
	DefaultRequestTimeout     = 30 * time.Second
	DefaultShutdownTimeout    = 10 * time.Second
)

// Configuration is the complete settings tree for the client and the server.
// Only the half relevant to the running binary is validated.
type Configuration struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Client  ClientConfig  `mapstructure:"client" yaml:"client"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig configures the HTTPS endpoint.
type ServerConfig struct {
	Port int `mapstructure:"port" yaml:"port" validate:"port"`

	// MetricsAddr is a separate plain-HTTP listener for /metrics. Empty disables it.
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr" validate:"omitempty,hostname_port"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`

	SSL ServerSSLConfig `mapstructure:"ssl" yaml:"ssl"`
}

// ServerSSLConfig names the server's key material and, for client authentication, its trust store.
type ServerSSLConfig struct {
	KeyStore         string `mapstructure:"key_store" yaml:"key_store" validate:"required,file_exists"`
	KeyStorePassword string `mapstructure:"key_store_password" yaml:"key_store_password"`
	KeyAlias         string `mapstructure:"key_alias" yaml:"key_alias"`
	KeyStoreType     string `mapstructure:"key_store_type" yaml:"key_store_type" validate:"container_format"`

	ClientAuth         string `mapstructure:"client_auth" yaml:"client_auth" validate:"client_auth"`
	TrustStore         string `mapstructure:"trust_store" yaml:"trust_store" validate:"required_unless=ClientAuth none,file_exists"`
	TrustStorePassword string `mapstructure:"trust_store_password" yaml:"trust_store_password"`
	TrustStoreType     string `mapstructure:"trust_store_type" yaml:"trust_store_type" validate:"container_format"`

	// Reload watches KeyStore and swaps the served certificate when it changes.
	Reload bool `mapstructure:"reload" yaml:"reload"`
}

// ClientConfig configures the secure transport client.
type ClientConfig struct {
	API      ClientAPIConfig `mapstructure:"api" yaml:"api"`
	SSL      ClientSSLConfig `mapstructure:"ssl" yaml:"ssl"`
	Identity string          `mapstructure:"identity" yaml:"identity" validate:"required"`
	Timeout  time.Duration   `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
}

// ClientAPIConfig locates the server.
type ClientAPIConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url" validate:"required,url,startswith=https://"`
}

// ClientSSLConfig locates the client trust store and, for servers that ask for one,
// an optional client certificate.
type ClientSSLConfig struct {
	TrustStore         string `mapstructure:"trust_store" yaml:"trust_store" validate:"required"`
	TrustStorePassword string `mapstructure:"trust_store_password" yaml:"trust_store_password"`
	TrustStoreType     string `mapstructure:"trust_store_type" yaml:"trust_store_type" validate:"container_format"`

	KeyStore         string `mapstructure:"key_store" yaml:"key_store" validate:"file_exists"`
	KeyStorePassword string `mapstructure:"key_store_password" yaml:"key_store_password"`
	KeyStoreType     string `mapstructure:"key_store_type" yaml:"key_store_type" validate:"container_format"`
}

// LoggingConfig selects slog level and handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
}

// ConfigurationProvider loads and validates configuration.
type ConfigurationProvider interface {
	// LoadConfiguration reads the optional file at path, then environment overrides.
	// An empty path uses defaults and environment only.
	LoadConfiguration(ctx context.Context, path string) (*Configuration, error)

	// GetDefaultConfiguration returns the built-in defaults.
	GetDefaultConfiguration(ctx context.Context) *Configuration

	// ValidateClient checks the client and logging sections.
	ValidateClient(cfg *Configuration) error

	// ValidateServer checks the server and logging sections.
	ValidateServer(cfg *Configuration) error
}
