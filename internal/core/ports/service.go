package ports

import (
	"context"
	"time"

	"github.com/sufield/securechain/internal/core/domain"
)

// Clock supplies the current time. Services take one so tests can pin timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// MessageService produces the server's message responses.
type MessageService interface {
	// Greeting is the response to a message fetch.
	Greeting(ctx context.Context, caller domain.Principal) domain.Message
	// Acknowledge echoes a submitted message back to its sender.
	Acknowledge(ctx context.Context, caller domain.Principal, in domain.Message) domain.Message
}

// HealthService produces the health snapshot.
type HealthService interface {
	Check(ctx context.Context) domain.HealthStatus
}

// SecureAPI is the client-side view of the secure server.
type SecureAPI interface {
	FetchMessage(ctx context.Context) (domain.Message, error)
	SubmitMessage(ctx context.Context, content string) (domain.Message, error)
	FetchHealth(ctx context.Context) (domain.HealthStatus, error)
}
