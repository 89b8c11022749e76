package ports

import (
	"context"
	"time"

	"github.com/sufield/securechain/internal/core/domain"
	"github.com/sufield/securechain/internal/core/errors"
)

// TrustStoreLoadedEvent is emitted after a trust store decodes successfully.
type TrustStoreLoadedEvent struct {
	Source      string
	Format      domain.ContainerFormat
	AnchorCount int
	Subjects    []string
}

// RequestEvent describes one outbound client request.
type RequestEvent struct {
	Operation string
	Method    string
	URL       string
	RequestID string
	Started   time.Time
}

// Observer receives the client-side extension points: post-load, pre-request and on-error.
// Implementations must be safe for concurrent use and must not block.
type Observer interface {
	TrustStoreLoaded(ctx context.Context, ev TrustStoreLoadedEvent)
	RequestStarted(ctx context.Context, ev RequestEvent)
	RequestFailed(ctx context.Context, ev RequestEvent, err error)
	RequestSucceeded(ctx context.Context, ev RequestEvent, status int)
	HandshakeRejected(ctx context.Context, cause *errors.ChainValidationError)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) TrustStoreLoaded(context.Context, TrustStoreLoadedEvent)         {}
func (NopObserver) RequestStarted(context.Context, RequestEvent)                    {}
func (NopObserver) RequestFailed(context.Context, RequestEvent, error)              {}
func (NopObserver) RequestSucceeded(context.Context, RequestEvent, int)             {}
func (NopObserver) HandshakeRejected(context.Context, *errors.ChainValidationError) {}

// Observers fans events out to each member in order.
type Observers []Observer

func (o Observers) TrustStoreLoaded(ctx context.Context, ev TrustStoreLoadedEvent) {
	for _, obs := range o {
		obs.TrustStoreLoaded(ctx, ev)
	}
}

func (o Observers) RequestStarted(ctx context.Context, ev RequestEvent) {
	for _, obs := range o {
		obs.RequestStarted(ctx, ev)
	}
}

func (o Observers) RequestFailed(ctx context.Context, ev RequestEvent, err error) {
	for _, obs := range o {
		obs.RequestFailed(ctx, ev, err)
	}
}

func (o Observers) RequestSucceeded(ctx context.Context, ev RequestEvent, status int) {
	for _, obs := range o {
		obs.RequestSucceeded(ctx, ev, status)
	}
}

func (o Observers) HandshakeRejected(ctx context.Context, cause *errors.ChainValidationError) {
	for _, obs := range o {
		obs.HandshakeRejected(ctx, cause)
	}
}
