// Package shutdown stops the secure server's listeners and watchers in order.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// DefaultGracePeriod bounds how long servers may take to drain.
const DefaultGracePeriod = 30 * time.Second

// Config tunes a Coordinator.
type Config struct {
	// GracePeriod caps the time servers get to finish in-flight requests.
	GracePeriod time.Duration
	Logger      *slog.Logger
}

// DefaultConfig returns a Config with DefaultGracePeriod.
func DefaultConfig() *Config {
	return &Config{GracePeriod: DefaultGracePeriod}
}

// Server drains and stops, like *http.Server.
type Server interface {
	Shutdown(ctx context.Context) error
}

// Coordinator drains servers concurrently, then closes resources in
// reverse registration order. Shutdown runs at most once.
type Coordinator struct {
	grace  time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	servers []Server
	closers []io.Closer
	stopped bool

	once sync.Once
	err  error
}

// NewCoordinator builds a Coordinator; nil config means DefaultConfig.
func NewCoordinator(cfg *Config) *Coordinator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := &Coordinator{grace: cfg.GracePeriod, logger: cfg.Logger}
	if c.grace <= 0 {
		c.grace = DefaultGracePeriod
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// RegisterServer adds s to the drain phase. Ignored once shutdown began.
func (c *Coordinator) RegisterServer(s Server) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s != nil && !c.stopped {
		c.servers = append(c.servers, s)
	}
}

// RegisterCloser adds a resource such as the keystore reloader.
func (c *Coordinator) RegisterCloser(cl io.Closer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl != nil && !c.stopped {
		c.closers = append(c.closers, cl)
	}
}

// Shutdown stops everything and joins the errors. Repeat calls return the
// first result.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.once.Do(func() {
		c.mu.Lock()
		c.stopped = true
		servers, closers := c.servers, c.closers
		c.mu.Unlock()

		c.logger.Info("Shutting down", "grace_period", c.grace, "servers", len(servers), "closers", len(closers))

		errs := c.drain(ctx, servers)
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				errs = append(errs, fmt.Errorf("close: %w", err))
			}
		}

		c.err = errors.Join(errs...)
		if c.err != nil {
			c.logger.Error("Shutdown finished with errors", "error", c.err)
			return
		}
		c.logger.Info("Shutdown complete")
	})
	return c.err
}

func (c *Coordinator) drain(ctx context.Context, servers []Server) []error {
	ctx, cancel := context.WithTimeout(ctx, c.grace)
	defer cancel()

	errs := make([]error, len(servers))
	var wg sync.WaitGroup
	for i, s := range servers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Shutdown(ctx); err != nil {
				errs[i] = fmt.Errorf("server shutdown: %w", err)
			}
		}()
	}
	wg.Wait()

	out := errs[:0]
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}
