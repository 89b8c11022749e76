// Package metrics provides Prometheus-based reporting for the secure client and server.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sufield/securechain/internal/core/errors"
	"github.com/sufield/securechain/internal/core/ports"
)

const namespace = "securechain"

// Request results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// PrometheusMetrics records client and server activity on a registerer.
// It also implements ports.Observer so it can be attached to the client.
type PrometheusMetrics struct {
	trustAnchors       prometheus.Gauge
	clientRequests     *prometheus.CounterVec
	clientDuration     *prometheus.HistogramVec
	handshakeRejects   *prometheus.CounterVec
	serverRequests     *prometheus.CounterVec
	keystoreReloads    *prometheus.CounterVec
	certExpiryUnixTime *prometheus.GaugeVec
}

var _ ports.Observer = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics registers the collectors on reg. A nil reg uses a private registry.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		trustAnchors: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "trust_anchors_loaded",
			Help:      "Number of trust anchors loaded from the most recent trust store",
		}),
		clientRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_requests_total",
			Help:      "Total number of secure client requests",
		}, []string{"operation", "result"}),
		clientDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "client_request_duration_seconds",
			Help:      "Duration of secure client requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		handshakeRejects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_rejections_total",
			Help:      "Total number of peer certificate chains rejected during the handshake",
		}, []string{"reason"}),
		serverRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_requests_total",
			Help:      "Total number of requests served by the secure endpoint",
		}, []string{"route", "code"}),
		keystoreReloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keystore_reloads_total",
			Help:      "Total number of server key store reload attempts",
		}, []string{"result"}),
		certExpiryUnixTime: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cert_expiry_timestamp_seconds",
			Help:      "Unix timestamp when the served certificate expires",
		}, []string{"subject"}),
	}
}

func (m *PrometheusMetrics) TrustStoreLoaded(_ context.Context, ev ports.TrustStoreLoadedEvent) {
	m.trustAnchors.Set(float64(ev.AnchorCount))
}

func (m *PrometheusMetrics) RequestStarted(context.Context, ports.RequestEvent) {}

func (m *PrometheusMetrics) RequestSucceeded(_ context.Context, ev ports.RequestEvent, _ int) {
	m.observeRequest(ev, ResultSuccess)
}

func (m *PrometheusMetrics) RequestFailed(_ context.Context, ev ports.RequestEvent, _ error) {
	m.observeRequest(ev, ResultFailure)
}

func (m *PrometheusMetrics) HandshakeRejected(_ context.Context, cause *errors.ChainValidationError) {
	m.handshakeRejects.WithLabelValues(cause.Reason).Inc()
}

func (m *PrometheusMetrics) observeRequest(ev ports.RequestEvent, result string) {
	m.clientRequests.WithLabelValues(ev.Operation, result).Inc()
	if !ev.Started.IsZero() {
		m.clientDuration.WithLabelValues(ev.Operation).Observe(time.Since(ev.Started).Seconds())
	}
}

// RecordServerRequest counts a served request by route pattern and status code.
func (m *PrometheusMetrics) RecordServerRequest(route string, code int) {
	m.serverRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// RecordKeystoreReload counts a key store reload attempt. It matches the keystore
// reload hook signature.
func (m *PrometheusMetrics) RecordKeystoreReload(result string) {
	m.keystoreReloads.WithLabelValues(result).Inc()
}

// UpdateCertExpiry publishes the expiry of the certificate being served.
func (m *PrometheusMetrics) UpdateCertExpiry(subject string, notAfter time.Time) {
	m.certExpiryUnixTime.WithLabelValues(subject).Set(float64(notAfter.Unix()))
}
