// Package metrics holds the prometheus collectors exported on /metrics.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/webshop-accounts/internal/model"
)

const namespace = "accounts"

// Metrics groups every collector of the service on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	gateRejections *prometheus.CounterVec
	logins         *prometheus.CounterVec
	forceLogouts   *prometheus.CounterVec
	purgedRows     *prometheus.CounterVec
	purgeRuns      *prometheus.CounterVec
	purgeDuration  prometheus.Histogram
	events         *prometheus.CounterVec
}

// New registers all collectors, plus the Go runtime and process
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		gateRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_rejections_total",
			Help:      "Requests rejected by the access control gate, by reason.",
		}, []string{"reason"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		forceLogouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "force_logouts_total",
			Help:      "Force-logout counter bumps by source.",
		}, []string{"source"}),
		purgedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purged_rows_total",
			Help:      "Expired ephemeral rows deleted, by table.",
		}, []string{"table"}),
		purgeRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purge_runs_total",
			Help:      "Purge runs by result.",
		}, []string{"result"}),
		purgeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "purge_duration_seconds",
			Help:      "Wall time of one purge run.",
			Buckets:   prometheus.DefBuckets,
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Account events handed to the broker publisher, by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.gateRejections, m.logins, m.forceLogouts,
		m.purgedRows, m.purgeRuns, m.purgeDuration, m.events,
	)
	return m
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) GateRejected(reason string) {
	if m == nil {
		return
	}
	m.gateRejections.WithLabelValues(reason).Inc()
}

// Login outcomes.
const (
	LoginSuccess        = "success"
	LoginBadCredentials = "bad_credentials"
	LoginBlocked        = "blocked"
	LoginError          = "error"
)

func (m *Metrics) LoginAttempt(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

// ForceLogout counts a counter bump; source is "logout", "admin" or
// "password_change".
func (m *Metrics) ForceLogout(source string) {
	if m == nil {
		return
	}
	m.forceLogouts.WithLabelValues(source).Inc()
}

// PurgeCompleted records one purge run.  res is counted even when err is
// set since tables before the failing one were already purged.
func (m *Metrics) PurgeCompleted(res model.PurgeResult, seconds float64, err error) {
	if m == nil {
		return
	}
	m.purgedRows.WithLabelValues("users_confirmations").Add(float64(res.Confirmations))
	m.purgedRows.WithLabelValues("users_resets").Add(float64(res.Resets))
	m.purgedRows.WithLabelValues("users_remembered").Add(float64(res.Remembered))
	m.purgedRows.WithLabelValues("users_throttling").Add(float64(res.Throttling))
	m.purgeDuration.Observe(seconds)
	if err != nil {
		m.purgeRuns.WithLabelValues("error").Inc()
		return
	}
	m.purgeRuns.WithLabelValues("ok").Inc()
}

// Event publish results.
const (
	EventPublished = "published"
	EventFailed    = "failed"
	EventDropped   = "dropped"
)

func (m *Metrics) PublishResult(result string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(result).Inc()
}
