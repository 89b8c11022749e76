// Package services contains the core logic behind the secure endpoint.
package services

import (
	"context"
	"log/slog"

	"github.com/sufield/securechain/internal/core/domain"
	"github.com/sufield/securechain/internal/core/ports"
)

// Sender labels used when the caller did not authenticate with a certificate.
const (
	ServerSender    = "Server"
	AnonymousSender = "Anonymous"
)

// GreetingContent is returned for every message fetch.
const GreetingContent = "This is a secure message transmitted over HTTPS with proper certificate chain validation"

// ReceivedPrefix is prepended to the content of a submitted message.
const ReceivedPrefix = "Received: "

// MessageService answers message fetches and acknowledges submissions.
type MessageService struct {
	clock  ports.Clock
	logger *slog.Logger
}

var _ ports.MessageService = (*MessageService)(nil)

// NewMessageService creates a message service. A nil clock uses the wall clock.
func NewMessageService(clock ports.Clock, logger *slog.Logger) *MessageService {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageService{clock: clock, logger: logger}
}

// Greeting returns the fixed secure message. The sender is the caller's principal
// name, or "Server" for an unauthenticated caller.
func (s *MessageService) Greeting(ctx context.Context, caller domain.Principal) domain.Message {
	msg := domain.NewMessageAt(GreetingContent, caller.NameOr(ServerSender), s.clock.Now())
	s.logger.DebugContext(ctx, "Serving secure message", "sender", msg.Sender)
	return msg
}

// Acknowledge echoes the submitted content with the receipt time. The sender is the
// caller's principal name, or "Anonymous" for an unauthenticated caller; the sender
// claimed in the body is ignored.
func (s *MessageService) Acknowledge(ctx context.Context, caller domain.Principal, in domain.Message) domain.Message {
	out := domain.NewMessageAt(ReceivedPrefix+in.Content, caller.NameOr(AnonymousSender), s.clock.Now())
	s.logger.InfoContext(ctx, "Received secure message",
		"claimed_sender", in.Sender,
		"sender", out.Sender,
		"content_length", len(in.Content))
	return out
}
