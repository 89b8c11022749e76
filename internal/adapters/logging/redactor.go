// Package logging provides slog handlers and observers that keep passphrases
// and key material out of log output.
package logging

import (
	"context"
	"log/slog"
	"strings"
)

// RedactedValue replaces any attribute value judged sensitive.
const RedactedValue = "[REDACTED]"

// Key fragments that mark an attribute as secret wherever they appear.
var secretFragments = []string{
	"password", "passphrase", "passwd", "secret", "token",
	"private_key", "privatekey", "private-key",
	"credentials", "authorization", "bearer",
}

// Short keys are only secret on an exact match; "key_alias" stays readable.
var secretKeys = map[string]struct{}{"key": {}, "pin": {}, "auth": {}}

// RedactorHandler scrubs sensitive attributes before passing records on.
type RedactorHandler struct {
	next slog.Handler
}

// NewRedactorHandler wraps next.
func NewRedactorHandler(next slog.Handler) *RedactorHandler {
	return &RedactorHandler{next: next}
}

// NewSecureSlogLogger returns a logger whose output passes through a RedactorHandler.
func NewSecureSlogLogger(next slog.Handler) *slog.Logger {
	return slog.New(NewRedactorHandler(next))
}

func (h *RedactorHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

//nolint:gocritic // slog.Handler takes the record by value
func (h *RedactorHandler) Handle(ctx context.Context, r slog.Record) error {
	clean := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(scrub(a))
		return true
	})
	return h.next.Handle(ctx, clean)
}

func (h *RedactorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &RedactorHandler{next: h.next.WithAttrs(scrubAll(attrs))}
}

func (h *RedactorHandler) WithGroup(name string) slog.Handler {
	return &RedactorHandler{next: h.next.WithGroup(name)}
}

// IsSensitiveField reports whether an attribute key names secret data.
func IsSensitiveField(key string) bool {
	k := strings.ToLower(key)
	if _, ok := secretKeys[k]; ok {
		return true
	}
	for _, frag := range secretFragments {
		if strings.Contains(k, frag) {
			return true
		}
	}
	return false
}

func scrubAll(attrs []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = scrub(a)
	}
	return out
}

func scrub(a slog.Attr) slog.Attr {
	if IsSensitiveField(a.Key) {
		return slog.String(a.Key, RedactedValue)
	}
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindGroup:
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(scrubAll(v.Group())...)}
	case slog.KindString:
		if looksSecret(v.String()) {
			return slog.String(a.Key, RedactedValue)
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}

// looksSecret catches PEM blocks and JWT-shaped tokens logged under innocent keys.
func looksSecret(s string) bool {
	if strings.Contains(s, "-----BEGIN ") {
		return true
	}
	return len(s) > 50 && strings.Count(s, ".") == 2 && !strings.ContainsAny(s, " /:")
}
