package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/sufield/securechain/internal/core/errors"
	"github.com/sufield/securechain/internal/core/ports"
)

// Observer logs the client extension points.
type Observer struct {
	logger *slog.Logger
}

var _ ports.Observer = (*Observer)(nil)

// NewObserver creates a logging observer.
func NewObserver(logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{logger: logger}
}

func (o *Observer) TrustStoreLoaded(ctx context.Context, ev ports.TrustStoreLoadedEvent) {
	o.logger.InfoContext(ctx, "Trust anchors ready",
		"source", ev.Source,
		"format", string(ev.Format),
		"anchors", ev.AnchorCount,
		"subjects", ev.Subjects)
}

func (o *Observer) RequestStarted(ctx context.Context, ev ports.RequestEvent) {
	o.logger.DebugContext(ctx, "Request started",
		"operation", ev.Operation,
		"method", ev.Method,
		"url", ev.URL,
		"request_id", ev.RequestID)
}

func (o *Observer) RequestSucceeded(ctx context.Context, ev ports.RequestEvent, status int) {
	o.logger.DebugContext(ctx, "Request completed",
		"operation", ev.Operation,
		"request_id", ev.RequestID,
		"status", status,
		"duration", time.Since(ev.Started))
}

func (o *Observer) RequestFailed(ctx context.Context, ev ports.RequestEvent, err error) {
	o.logger.WarnContext(ctx, "Request failed",
		"operation", ev.Operation,
		"method", ev.Method,
		"url", ev.URL,
		"request_id", ev.RequestID,
		"duration", time.Since(ev.Started),
		"error", err)
}

// HandshakeRejected logs the precise reason locally. The peer only sees a TLS alert.
func (o *Observer) HandshakeRejected(ctx context.Context, cause *errors.ChainValidationError) {
	o.logger.ErrorContext(ctx, "Server certificate chain rejected",
		"reason", cause.Reason,
		"subject", cause.Subject,
		"error", cause.Err)
}
