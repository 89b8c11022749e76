package api

import (
	"context"
	"crypto/x509"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/spiffe/go-spiffe/v2/spiffeid"

	"github.com/sufield/securechain/internal/core/domain"
)

// RequestIDHeader carries the per-request correlation ID in both directions.
const RequestIDHeader = "X-Request-ID"

type principalKey struct{}

type requestIDKey struct{}

// PrincipalFromContext returns the authenticated caller, if the request presented a
// verified client certificate.
func PrincipalFromContext(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(domain.Principal)
	return p, ok && !p.IsZero()
}

// RequestIDFromContext returns the request ID set by the request ID middleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// requestID propagates a well-formed incoming X-Request-ID or assigns a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// identity resolves the caller from the verified client certificate. Requests without
// one proceed anonymously; whether a certificate is mandatory is decided by the TLS
// client auth mode, not here.
func identity(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.TLS == nil || len(r.TLS.VerifiedChains) == 0 || len(r.TLS.PeerCertificates) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			p := principalFromCertificate(r.TLS.PeerCertificates[0])
			logger.Debug("Client identity authenticated",
				"principal", p.Name,
				"spiffe_id", p.SPIFFEID,
				"request_id", RequestIDFromContext(r.Context()))

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
		})
	}
}

// principalFromCertificate prefers a SPIFFE URI SAN and falls back to the subject CN.
func principalFromCertificate(cert *x509.Certificate) domain.Principal {
	for _, uri := range cert.URIs {
		if uri.Scheme != "spiffe" {
			continue
		}
		id, err := spiffeid.FromString(uri.String())
		if err != nil {
			continue
		}
		return domain.Principal{Name: id.String(), SPIFFEID: id.String()}
	}

	name := cert.Subject.CommonName
	if name == "" {
		name = cert.Subject.String()
	}
	return domain.Principal{Name: name}
}

// RequestRecorder receives one observation per served request.
type RequestRecorder interface {
	RecordServerRequest(route string, code int)
}

// accessLog records every request once the route pattern is known.
func accessLog(logger *slog.Logger, recorder RequestRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			if recorder != nil {
				recorder.RecordServerRequest(route, status)
			}
			logger.Debug("Request served",
				"method", r.Method,
				"route", route,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", RequestIDFromContext(r.Context()))
		})
	}
}
