// Package metrics exposes reconciliation activity as Prometheus series.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"corporatepay-reconciliation/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reconciler"

// Recorder observes workspace and API activity
type Recorder interface {
	MatchCreated(method models.MatchMethod)
	MatchRemoved()
	ExceptionRaised(exceptionType models.ExceptionType, severity models.Severity)
	AutoMatchRun(matched, skipped int, duration time.Duration)
	ApprovalStatusChanged(status string)
	HTTPRequest(method, route string, status int, duration time.Duration)
}

// Noop discards every observation
type Noop struct{}

func (Noop) MatchCreated(models.MatchMethod) {}

func (Noop) MatchRemoved() {}

func (Noop) ExceptionRaised(models.ExceptionType, models.Severity) {}

func (Noop) AutoMatchRun(int, int, time.Duration) {}

func (Noop) ApprovalStatusChanged(string) {}

func (Noop) HTTPRequest(string, string, int, time.Duration) {}

// Prometheus records into its own registry
type Prometheus struct {
	registry         *prometheus.Registry
	matchesCreated   *prometheus.CounterVec
	matchesRemoved   prometheus.Counter
	exceptions       *prometheus.CounterVec
	autoMatchRuns    prometheus.Counter
	autoMatched      prometheus.Counter
	autoSkipped      prometheus.Counter
	autoMatchSeconds prometheus.Histogram
	approvals        *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpSeconds      *prometheus.HistogramVec
}

// NewPrometheus builds a recorder on a fresh registry that also carries the
// Go runtime and process collectors
func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	p := &Prometheus{
		registry: registry,
		matchesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_created_total",
			Help:      "Matches created, by method.",
		}, []string{"method"}),
		matchesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_removed_total",
			Help:      "Matches removed.",
		}),
		exceptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exceptions_raised_total",
			Help:      "Exceptions raised, by type and severity.",
		}, []string{"type", "severity"}),
		autoMatchRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "automatch_runs_total",
			Help:      "Batch auto-match runs.",
		}),
		autoMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "automatch_lines_matched_total",
			Help:      "Lines matched by auto-match.",
		}),
		autoSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "automatch_lines_skipped_total",
			Help:      "Lines auto-match considered and skipped.",
		}),
		autoMatchSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "automatch_duration_seconds",
			Help:      "Wall time of one auto-match run.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approval_status_changes_total",
			Help:      "Approval status changes, by target status.",
		}, []string{"status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by method, route and status code.",
		}, []string{"method", "route", "code"}),
		httpSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	registry.MustRegister(
		p.matchesCreated,
		p.matchesRemoved,
		p.exceptions,
		p.autoMatchRuns,
		p.autoMatched,
		p.autoSkipped,
		p.autoMatchSeconds,
		p.approvals,
		p.httpRequests,
		p.httpSeconds,
	)
	return p
}

// Registry returns the underlying registry
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

func (p *Prometheus) MatchCreated(method models.MatchMethod) {
	p.matchesCreated.WithLabelValues(string(method)).Inc()
}

func (p *Prometheus) MatchRemoved() {
	p.matchesRemoved.Inc()
}

func (p *Prometheus) ExceptionRaised(exceptionType models.ExceptionType, severity models.Severity) {
	p.exceptions.WithLabelValues(string(exceptionType), string(severity)).Inc()
}

func (p *Prometheus) AutoMatchRun(matched, skipped int, duration time.Duration) {
	p.autoMatchRuns.Inc()
	p.autoMatched.Add(float64(matched))
	p.autoSkipped.Add(float64(skipped))
	p.autoMatchSeconds.Observe(duration.Seconds())
}

func (p *Prometheus) ApprovalStatusChanged(status string) {
	p.approvals.WithLabelValues(status).Inc()
}

func (p *Prometheus) HTTPRequest(method, route string, status int, duration time.Duration) {
	p.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.httpSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
