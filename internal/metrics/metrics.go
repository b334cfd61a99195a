// Package metrics provides Prometheus metrics collection for Granta.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments the server records into.
type Metrics struct {
	DownloadsAllowed   prometheus.Counter
	DownloadsDenied    *prometheus.CounterVec
	EntitlementsIssued prometheus.Counter
	WebhookEvents      *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

// New creates the Granta metrics and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		DownloadsAllowed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "granta_downloads_allowed_total",
			Help: "Total number of downloads that were allowed and recorded.",
		}),
		DownloadsDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "granta_downloads_denied_total",
			Help: "Total number of denied download attempts by reason.",
		}, []string{"reason"}),
		EntitlementsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "granta_entitlements_issued_total",
			Help: "Total number of entitlements issued.",
		}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "granta_webhook_events_total",
			Help: "Total number of payment webhook events by type and outcome.",
		}, []string{"type", "outcome"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "granta_http_request_duration_seconds",
			Help:    "HTTP request latency by method, route, and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	for _, c := range []prometheus.Collector{
		m.DownloadsAllowed,
		m.DownloadsDenied,
		m.EntitlementsIssued,
		m.WebhookEvents,
		m.HTTPDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	return m, nil
}

// RecordDownloadAllowed counts a successful download.
func (m *Metrics) RecordDownloadAllowed() {
	m.DownloadsAllowed.Inc()
}

// RecordDownloadDenied counts a denied download attempt.
func (m *Metrics) RecordDownloadDenied(reason string) {
	m.DownloadsDenied.WithLabelValues(reason).Inc()
}

// RecordEntitlementIssued counts an issued entitlement.
func (m *Metrics) RecordEntitlementIssued() {
	m.EntitlementsIssued.Inc()
}

// RecordWebhookEvent counts a processed webhook event.
func (m *Metrics) RecordWebhookEvent(eventType, outcome string) {
	m.WebhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// ObserveHTTPRequest records one request's latency.
func (m *Metrics) ObserveHTTPRequest(method, route, status string, seconds float64) {
	m.HTTPDuration.WithLabelValues(method, route, status).Observe(seconds)
}
