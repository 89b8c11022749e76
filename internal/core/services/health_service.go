package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/sufield/securechain/internal/core/domain"
	"github.com/sufield/securechain/internal/core/ports"
)

// HealthCheck reports a problem with a server component. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// HealthService recomputes the health snapshot on every call.
type HealthService struct {
	clock            ports.Clock
	tlsEnabled       bool
	chainDescription string
	logger           *slog.Logger

	mu     sync.RWMutex
	checks map[string]HealthCheck
}

var _ ports.HealthService = (*HealthService)(nil)

// NewHealthService creates a health service. An empty chain description falls back to
// domain.DefaultChainDescription.
func NewHealthService(clock ports.Clock, tlsEnabled bool, chainDescription string, logger *slog.Logger) *HealthService {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if chainDescription == "" {
		chainDescription = domain.DefaultChainDescription
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		clock:            clock,
		tlsEnabled:       tlsEnabled,
		chainDescription: chainDescription,
		logger:           logger,
		checks:           make(map[string]HealthCheck),
	}
}

// RegisterCheck adds a named component check. Registering a name twice replaces the check.
func (h *HealthService) RegisterCheck(name string, check HealthCheck) error {
	if name == "" {
		return fmt.Errorf("health check must have a name")
	}
	if check == nil {
		return fmt.Errorf("health check %s cannot be nil", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
	return nil
}

// Check runs every registered check. Any failure reports DOWN.
func (h *HealthService) Check(ctx context.Context) domain.HealthStatus {
	status := domain.StatusUp

	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	checks := make([]HealthCheck, len(names))
	for i, name := range names {
		checks[i] = h.checks[name]
	}
	h.mu.RUnlock()

	for i, check := range checks {
		if err := check(ctx); err != nil {
			h.logger.WarnContext(ctx, "Health check failed", "component", names[i], "error", err)
			status = domain.StatusDown
		}
	}

	return domain.HealthStatus{
		Status:           status,
		Timestamp:        h.clock.Now(),
		TLSEnabled:       h.tlsEnabled,
		ChainDescription: h.chainDescription,
	}
}
