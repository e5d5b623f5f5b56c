// Package metrics exposes Prometheus collectors for actions, ledger calls,
// pollers, keeper jobs and the HTTP API.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

const namespace = "darkpool"

// Metrics owns a private registry so several instances (and tests) never
// collide on global state.
type Metrics struct {
	registry *prometheus.Registry

	actions        *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
	ledger         *prometheus.HistogramVec
	ledgerErrors   *prometheus.CounterVec
	polls          *prometheus.CounterVec
	jobs           *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	httpInFlight   prometheus.Gauge
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "actions",
			Name:      "total",
			Help:      "Commit, reveal, claim, create and resolve outcomes.",
		}, []string{"action", "reason"}),
		actionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "actions",
			Name:      "duration_seconds",
			Help:      "Time from action start to outcome, including confirmation.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"action"}),
		ledger: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "request_duration_seconds",
			Help:      "Fullnode REST request latency.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}, []string{"op"}),
		ledgerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "errors_total",
			Help:      "Fullnode REST failures by class.",
		}, []string{"op", "class"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "ticks_total",
			Help:      "Poll attempts by poller and result.",
		}, []string{"poller", "result"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keeper",
			Name:      "job_runs_total",
			Help:      "Keeper job runs by job and result.",
		}, []string{"job", "result"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "keeper",
			Name:      "job_duration_seconds",
			Help:      "Keeper job duration.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"job"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "path"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
	}

	m.registry.MustRegister(
		m.actions,
		m.actionDuration,
		m.ledger,
		m.ledgerErrors,
		m.polls,
		m.jobs,
		m.jobDuration,
		m.httpRequests,
		m.httpDuration,
		m.httpInFlight,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAction records one action outcome. A successful action has an empty
// reason and is labelled "ok".
func (m *Metrics) ObserveAction(action domain.ActionKind, reason domain.Reason, d time.Duration) {
	label := string(reason)
	if reason == domain.ReasonNone {
		label = "ok"
	}
	m.actions.WithLabelValues(string(action), label).Inc()
	m.actionDuration.WithLabelValues(string(action)).Observe(d.Seconds())
}

// ObserveLedger records one fullnode request. Its signature matches the
// aptos client observer hook.
func (m *Metrics) ObserveLedger(op string, d time.Duration, err error) {
	m.ledger.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		m.ledgerErrors.WithLabelValues(op, errorClass(err)).Inc()
	}
}

// ObservePoll records one poll attempt.
func (m *Metrics) ObservePoll(name string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.polls.WithLabelValues(name, result).Inc()
}

// ObserveJob records one keeper job run.
func (m *Metrics) ObserveJob(name string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.jobs.WithLabelValues(name, result).Inc()
	m.jobDuration.WithLabelValues(name).Observe(d.Seconds())
}

// InstrumentHandler wraps next with HTTP request metrics. /metrics itself is
// not counted.
func (m *Metrics) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)
		m.httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

func errorClass(err error) string {
	switch domain.ReasonFor(err) {
	case domain.ReasonNetworkError:
		return "network"
	case domain.ReasonSignerRejected:
		return "rejected"
	}
	if errors.Is(err, domain.ErrNotFound) {
		return "not_found"
	}
	return "ledger"
}

// canonicalPath collapses numeric path segments so market ids do not explode
// label cardinality.
func canonicalPath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		if s == "" {
			continue
		}
		if _, err := strconv.ParseUint(s, 10, 64); err == nil {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
