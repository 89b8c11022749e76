// Package api provides the HTTPS client and server for the secure message endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/sufield/securechain/internal/adapters/secondary/transport"
	"github.com/sufield/securechain/internal/core/domain"
	"github.com/sufield/securechain/internal/core/errors"
	"github.com/sufield/securechain/internal/core/ports"
)

// Client operation names, used in observer events and metric labels.
const (
	OpFetchMessage  = "fetch_message"
	OpSubmitMessage = "submit_message"
	OpFetchHealth   = "fetch_health"
)

// Client calls the secure endpoints over a SecureTransport. It performs no retries.
type Client struct {
	baseURL   *url.URL
	transport *transport.SecureTransport
	identity  string
	observer  ports.Observer
	clock     ports.Clock
	logger    *slog.Logger
}

var _ ports.SecureAPI = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithIdentity sets the sender label on submitted messages.
func WithIdentity(label string) ClientOption {
	return func(c *Client) {
		if label != "" {
			c.identity = label
		}
	}
}

// WithObserver attaches the pre-request and on-error extension points.
func WithObserver(o ports.Observer) ClientOption {
	return func(c *Client) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithClientClock sets the clock used to stamp submitted messages.
func WithClientClock(clock ports.Clock) ClientOption {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithClientLogger sets the client logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client for the server at baseURL. Only https URLs are accepted.
func NewClient(baseURL string, st *transport.SecureTransport, opts ...ClientOption) (*Client, error) {
	if st == nil {
		return nil, &errors.ValidationError{
			Field:   "transport",
			Value:   nil,
			Message: "secure transport cannot be nil",
		}
	}

	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil, &errors.ValidationError{
			Field:   "baseURL",
			Value:   baseURL,
			Message: "must be an absolute URL",
		}
	}
	if u.Scheme != "https" {
		return nil, &errors.ValidationError{
			Field:   "baseURL",
			Value:   baseURL,
			Message: "scheme must be https",
		}
	}

	c := &Client{
		baseURL:   u,
		transport: st,
		identity:  ports.DefaultClientIdentity,
		observer:  ports.NopObserver{},
		clock:     ports.SystemClock{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.logger.Debug("Secure client created",
		"base_url", u.Redacted(),
		"identity", c.identity,
		"anchors", st.Anchors().Count())

	return c, nil
}

// FetchMessage retrieves the server's greeting.
func (c *Client) FetchMessage(ctx context.Context) (domain.Message, error) {
	var msg domain.Message
	if err := c.do(ctx, OpFetchMessage, http.MethodGet, MessagePath, nil, &msg); err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// SubmitMessage posts content under the client identity and returns the server's echo.
func (c *Client) SubmitMessage(ctx context.Context, content string) (domain.Message, error) {
	out := domain.NewMessageAt(content, c.identity, c.clock.Now())

	var msg domain.Message
	if err := c.do(ctx, OpSubmitMessage, http.MethodPost, MessagePath, out, &msg); err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// FetchHealth retrieves the server's health snapshot.
func (c *Client) FetchHealth(ctx context.Context) (domain.HealthStatus, error) {
	var status domain.HealthStatus
	if err := c.do(ctx, OpFetchHealth, http.MethodGet, HealthPath, nil, &status); err != nil {
		return domain.HealthStatus{}, err
	}
	return status, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, payload, out interface{}) error {
	target := c.baseURL.JoinPath(path)
	ev := ports.RequestEvent{
		Operation: op,
		Method:    method,
		URL:       target.Redacted(),
		RequestID: uuid.NewString(),
		Started:   time.Now(),
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return c.fail(ctx, ev, errors.NewDomainError(errors.ErrEncodeFailed, err))
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return c.fail(ctx, ev, errors.NewDomainError(errors.ErrRequestFailed, err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, ev.RequestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.observer.RequestStarted(ctx, ev)

	resp, err := c.transport.HTTPClient().Do(req)
	if err != nil {
		if cause := transport.ClassifyHandshakeError(err); cause != nil {
			c.observer.HandshakeRejected(ctx, cause)
			// Chain detail goes to the observer only.
			return c.fail(ctx, ev, errors.NewDomainError(errors.ErrRequestFailed,
				fmt.Errorf("%s %s: server certificate rejected", method, ev.URL)))
		}
		return c.fail(ctx, ev, errors.NewDomainError(errors.ErrRequestFailed,
			fmt.Errorf("%s %s: %w", method, ev.URL, err)))
	}
	defer resp.Body.Close()

	limit := c.transport.MaxResponseBytes()
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return c.fail(ctx, ev, errors.NewDomainError(errors.ErrRequestFailed,
			fmt.Errorf("failed to read response body: %w", err)))
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return c.fail(ctx, ev, errors.NewDomainError(errors.ErrRequestFailed,
			fmt.Errorf("%s %s: unexpected status %d", method, ev.URL, resp.StatusCode)))
	}
	if int64(len(data)) > limit {
		return c.fail(ctx, ev, errors.NewDomainError(errors.ErrDecodeFailed,
			fmt.Errorf("response body exceeds %d bytes", limit)))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return c.fail(ctx, ev, errors.NewDomainError(errors.ErrDecodeFailed, err))
	}

	c.observer.RequestSucceeded(ctx, ev, resp.StatusCode)
	return nil
}

func (c *Client) fail(ctx context.Context, ev ports.RequestEvent, err error) error {
	c.observer.RequestFailed(ctx, ev, err)
	return err
}
