package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wgprov/internal/apperr"
)

// Metrics — счётчики провиженинга, пула и вызовов wg.
type Metrics struct {
	reg *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	Operations       *prometheus.CounterVec
	Compensations    *prometheus.CounterVec
	ReleaseFailures  prometheus.Counter
	ToolDuration     *prometheus.HistogramVec
	PoolAddresses    *prometheus.GaugeVec
	ReconcileRepairs *prometheus.CounterVec
}

// New builds the collectors on a private registry so tests can create as
// many instances as they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,

		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wgprov_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wgprov_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		Operations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wgprov_provision_operations_total",
				Help: "Provisioning operations by outcome",
			},
			[]string{"op", "result"},
		),
		Compensations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wgprov_provision_compensations_total",
				Help: "Compensating actions run after a failed step",
			},
			[]string{"op", "step", "result"},
		),
		ReleaseFailures: f.NewCounter(
			prometheus.CounterOpts{
				Name: "wgprov_pool_release_failures_total",
				Help: "Addresses left assigned after their peer was deleted",
			},
		),
		ToolDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wgprov_interface_tool_duration_seconds",
				Help:    "Duration of interface tool invocations",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"verb", "result"},
		),
		PoolAddresses: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "wgprov_pool_addresses",
				Help: "Address pool entries by state",
			},
			[]string{"state"}, // "free", "assigned"
		),
		ReconcileRepairs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wgprov_reconcile_repairs_total",
				Help: "Drift repaired by reconcile runs",
			},
			[]string{"kind"},
		),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) RecordHTTPRequest(method, path string, status int, took time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(took.Seconds())
}

// RecordOperation counts an orchestrator operation by its error kind.
func (m *Metrics) RecordOperation(op string, err error) {
	m.Operations.WithLabelValues(op, result(err)).Inc()
}

func (m *Metrics) RecordCompensation(op, step string, err error) {
	m.Compensations.WithLabelValues(op, step, result(err)).Inc()
}

func (m *Metrics) RecordReleaseFailure() { m.ReleaseFailures.Inc() }

// ObserveTool matches wgsync.Observer.
func (m *Metrics) ObserveTool(verb string, took time.Duration, err error) {
	m.ToolDuration.WithLabelValues(verb, result(err)).Observe(took.Seconds())
}

func (m *Metrics) SetPool(free, assigned int64) {
	m.PoolAddresses.WithLabelValues("free").Set(float64(free))
	m.PoolAddresses.WithLabelValues("assigned").Set(float64(assigned))
}

func (m *Metrics) AddRepairs(kind string, n int) {
	if n > 0 {
		m.ReconcileRepairs.WithLabelValues(kind).Add(float64(n))
	}
}

func result(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperr.KindOf(err))
}
