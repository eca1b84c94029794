// Package metrics exposes Prometheus collectors for the help desk.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the desk records into. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Questions      *prometheus.CounterVec
	Tickets        *prometheus.CounterVec
	Transitions    *prometheus.CounterVec
	TimeToResolve  *prometheus.HistogramVec
	Sweeps         *prometheus.CounterVec
	SweepDuration  prometheus.Histogram
	Provisioning   *prometheus.CounterVec
	ProvisionQueue prometheus.Gauge
}

// New creates collectors registered on a fresh registry together with the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Questions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frontdesk_questions_total",
			Help: "Caller questions by outcome (answered, escalated).",
		}, []string{"outcome"}),
		Tickets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frontdesk_tickets_created_total",
			Help: "Help requests created, by intake channel.",
		}, []string{"channel"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frontdesk_ticket_transitions_total",
			Help: "Help request state transitions, by target state.",
		}, []string{"state"}),
		TimeToResolve: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "frontdesk_ticket_open_seconds",
			Help:    "Time a help request spent PENDING before its terminal transition.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"state"}),
		Sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frontdesk_timeout_sweeps_total",
			Help: "Timeout sweep cycles, by result (ok, error).",
		}, []string{"result"}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "frontdesk_timeout_sweep_seconds",
			Help:    "Duration of one timeout sweep cycle.",
			Buckets: prometheus.DefBuckets,
		}),
		Provisioning: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frontdesk_room_provisioning_total",
			Help: "Voice room provisioning attempts, by result (bound, failed, dropped, orphaned).",
		}, []string{"result"}),
		ProvisionQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "frontdesk_room_provisioning_queue_depth",
			Help: "Help requests waiting for a voice room.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Questions, m.Tickets, m.Transitions, m.TimeToResolve,
		m.Sweeps, m.SweepDuration, m.Provisioning, m.ProvisionQueue,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry (for tests).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Question(outcome string) {
	if m == nil {
		return
	}
	m.Questions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) TicketCreated(channel string) {
	if m == nil {
		return
	}
	m.Tickets.WithLabelValues(channel).Inc()
}

// Transition records a terminal transition and how long the request was open.
func (m *Metrics) Transition(state string, open float64) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(state).Inc()
	m.TimeToResolve.WithLabelValues(state).Observe(open)
}

func (m *Metrics) Sweep(result string, seconds float64) {
	if m == nil {
		return
	}
	m.Sweeps.WithLabelValues(result).Inc()
	m.SweepDuration.Observe(seconds)
}

func (m *Metrics) Provisioned(result string) {
	if m == nil {
		return
	}
	m.Provisioning.WithLabelValues(result).Inc()
}

func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.ProvisionQueue.Set(float64(n))
}
