// Package config loads securechain configuration from defaults, an optional YAML
// file and SECURECHAIN_* environment variables, in increasing precedence.
package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/sufield/securechain/internal/core/domain"
	"github.com/sufield/securechain/internal/core/errors"
	"github.com/sufield/securechain/internal/core/ports"
)

// Provider implements ports.ConfigurationProvider on viper.
type Provider struct {
	validator *domain.Validator
}

var _ ports.ConfigurationProvider = (*Provider)(nil)

// NewProvider creates a configuration provider.
func NewProvider() *Provider {
	return &Provider{validator: domain.NewValidator()}
}

// LoadConfiguration layers the file at path (if any) and the environment over the defaults.
// The result is not validated; call ValidateClient or ValidateServer for the binary in use.
func (p *Provider) LoadConfiguration(ctx context.Context, path string) (*ports.Configuration, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("configuration loading canceled: %w", err)
	}

	v := viper.New()
	setDefaults(v, p.GetDefaultConfiguration(ctx))

	v.SetEnvPrefix(ports.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(filepath.Clean(path))
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.NewDomainError(errors.ErrMissingConfiguration,
				fmt.Errorf("failed to read config file %s: %w", path, err))
		}
	}

	var cfg ports.Configuration
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	))); err != nil {
		return nil, errors.NewDomainError(errors.ErrMissingConfiguration,
			fmt.Errorf("failed to decode configuration: %w", err))
	}

	return &cfg, nil
}

// GetDefaultConfiguration returns the built-in defaults. They match the demo
// deployment: a local server on 8443 and a client trust store next to the binary.
func (p *Provider) GetDefaultConfiguration(context.Context) *ports.Configuration {
	return &ports.Configuration{
		Server: ports.ServerConfig{
			Port:            ports.DefaultServerPort,
			ShutdownTimeout: ports.DefaultShutdownTimeout,
			SSL: ports.ServerSSLConfig{
				KeyStoreType:   string(domain.FormatPKCS12),
				ClientAuth:     string(domain.ClientAuthNone),
				TrustStoreType: string(domain.FormatPKCS12),
			},
		},
		Client: ports.ClientConfig{
			API: ports.ClientAPIConfig{BaseURL: ports.DefaultBaseURL},
			SSL: ports.ClientSSLConfig{
				TrustStore:         ports.DefaultTrustStorePath,
				TrustStorePassword: ports.DefaultTrustStorePassword,
				TrustStoreType:     string(domain.FormatPKCS12),
				KeyStoreType:       string(domain.FormatPKCS12),
			},
			Identity: ports.DefaultClientIdentity,
			Timeout:  ports.DefaultRequestTimeout,
		},
		Logging: ports.LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ValidateClient checks the sections the secure client reads.
func (p *Provider) ValidateClient(cfg *ports.Configuration) error {
	if cfg == nil {
		return errors.NewDomainError(errors.ErrMissingConfiguration, fmt.Errorf("configuration is nil"))
	}
	return p.validate(cfg.Client, cfg.Logging)
}

// ValidateServer checks the sections the secure server reads.
func (p *Provider) ValidateServer(cfg *ports.Configuration) error {
	if cfg == nil {
		return errors.NewDomainError(errors.ErrMissingConfiguration, fmt.Errorf("configuration is nil"))
	}
	return p.validate(cfg.Server, cfg.Logging)
}

func (p *Provider) validate(sections ...interface{}) error {
	var errs []error
	for _, section := range sections {
		err := p.validator.Validate(section)
		if err == nil {
			continue
		}
		fieldErrs := domain.ConvertValidationErrors(err)
		if len(fieldErrs) == 0 {
			errs = append(errs, err)
			continue
		}
		for i := range fieldErrs {
			errs = append(errs, &fieldErrs[i])
		}
	}
	return errors.NewConfigValidationError(errs...)
}

// setDefaults registers every leaf key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, cfg *ports.Configuration) {
	defaults := map[string]interface{}{
		"server.port":                     cfg.Server.Port,
		"server.metrics_addr":             cfg.Server.MetricsAddr,
		"server.shutdown_timeout":         cfg.Server.ShutdownTimeout,
		"server.ssl.key_store":            cfg.Server.SSL.KeyStore,
		"server.ssl.key_store_password":   cfg.Server.SSL.KeyStorePassword,
		"server.ssl.key_alias":            cfg.Server.SSL.KeyAlias,
		"server.ssl.key_store_type":       cfg.Server.SSL.KeyStoreType,
		"server.ssl.client_auth":          cfg.Server.SSL.ClientAuth,
		"server.ssl.trust_store":          cfg.Server.SSL.TrustStore,
		"server.ssl.trust_store_password": cfg.Server.SSL.TrustStorePassword,
		"server.ssl.trust_store_type":     cfg.Server.SSL.TrustStoreType,
		"server.ssl.reload":               cfg.Server.SSL.Reload,
		"client.api.base_url":             cfg.Client.API.BaseURL,
		"client.ssl.trust_store":          cfg.Client.SSL.TrustStore,
		"client.ssl.trust_store_password": cfg.Client.SSL.TrustStorePassword,
		"client.ssl.trust_store_type":     cfg.Client.SSL.TrustStoreType,
		"client.ssl.key_store":            cfg.Client.SSL.KeyStore,
		"client.ssl.key_store_password":   cfg.Client.SSL.KeyStorePassword,
		"client.ssl.key_store_type":       cfg.Client.SSL.KeyStoreType,
		"client.identity":                 cfg.Client.Identity,
		"client.timeout":                  cfg.Client.Timeout,
		"logging.level":                   cfg.Logging.Level,
		"logging.format":                  cfg.Logging.Format,
	}
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
}
