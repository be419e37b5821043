// Package metrics exposes Prometheus collectors for the lead pipeline and the HTTP server.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"whitelabel_crm_backend/internal/events"
	"whitelabel_crm_backend/internal/leadinbox"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	passStatusOK    = "ok"
	passStatusError = "error"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Lead inbox metrics
	LeadsProcessed *prometheus.CounterVec
	LeadDuration   *prometheus.HistogramVec
	LeadsRecovered prometheus.Counter
	PassesTotal    *prometheus.CounterVec
	PassDuration   prometheus.Histogram
	InboxDepth     *prometheus.GaugeVec
	LeadEvents     *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		LeadsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lead_inbox_leads_processed_total",
				Help: "Leads handled by a processing pass, by outcome",
			},
			[]string{"outcome"}, // completed, duplicate, retried, failed, timed_out, claim_lost, unrecorded
		),
		LeadDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lead_inbox_lead_duration_seconds",
				Help:    "Time spent on a single lead",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"outcome"},
		),
		LeadsRecovered: factory.NewCounter(prometheus.CounterOpts{
			Name: "lead_inbox_leads_recovered_total",
			Help: "Stale processing leads released back to pending",
		}),
		PassesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lead_inbox_passes_total",
				Help: "Processing passes run, by status",
			},
			[]string{"status"}, // ok, error
		),
		PassDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lead_inbox_pass_duration_seconds",
			Help:    "Duration of a full recover, process, stats pass",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		InboxDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lead_inbox_leads",
				Help: "Lead events per state after the last pass",
			},
			[]string{"state"},
		),
		LeadEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lead_inbox_events_total",
				Help: "Lead inbox domain events published on the event bus",
			},
			[]string{"event"},
		),
		gatherer: reg,
	}
}

// ObserveLead records the outcome of one lead.
func (m *Metrics) ObserveLead(outcome string, duration time.Duration) {
	m.LeadsProcessed.WithLabelValues(outcome).Inc()
	m.LeadDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveRecovered records a stale-lock sweep.
func (m *Metrics) ObserveRecovered(count int) {
	m.LeadsRecovered.Add(float64(count))
}

// ObservePass records a finished pass.
func (m *Metrics) ObservePass(duration time.Duration, err error) {
	status := passStatusOK
	if err != nil {
		status = passStatusError
	}
	m.PassesTotal.WithLabelValues(status).Inc()
	m.PassDuration.Observe(duration.Seconds())
}

// SetInboxDepth sets the lead count for a state.
func (m *Metrics) SetInboxDepth(state string, count int) {
	m.InboxDepth.WithLabelValues(state).Set(float64(count))
}

// Subscribe counts lead inbox events published on bus.
func (m *Metrics) Subscribe(bus events.Bus) {
	count := events.HandlerFunc(func(_ context.Context, event events.Event) error {
		m.LeadEvents.WithLabelValues(event.EventName()).Inc()
		return nil
	})
	for _, name := range []string{
		events.LeadEventReceived{}.EventName(),
		events.LeadRouted{}.EventName(),
		events.LeadFailed{}.EventName(),
	} {
		bus.Subscribe(name, count)
	}
}

// Middleware records request counts and latency per route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Compile-time check that Metrics implements leadinbox.Metrics
var _ leadinbox.Metrics = (*Metrics)(nil)

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
