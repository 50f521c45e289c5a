// ABOUTME: Prometheus metrics for orchestrator runs, model calls, tool dispatches, and HTTP traffic.
// ABOUTME: Implements orchestrator.Recorder and renders the text exposition format.

package metrics

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/2389/adjunct-gateway/internal/orchestrator"
)

// Ensure Metrics implements orchestrator.Recorder.
var _ orchestrator.Recorder = (*Metrics)(nil)

// Metrics owns a registry and the gateway's collectors.
type Metrics struct {
	registry *prometheus.Registry

	// RunsTotal counts finished orchestration runs by terminal state.
	RunsTotal *prometheus.CounterVec
	// ModelCallDuration observes model invocations by outcome.
	ModelCallDuration *prometheus.HistogramVec
	// ToolDispatchDuration observes tool dispatches by tool and outcome.
	ToolDispatchDuration *prometheus.HistogramVec
	// HTTPRequestsTotal counts served requests by route and status code.
	HTTPRequestsTotal *prometheus.CounterVec
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adjunct_orchestrator_runs_total",
				Help: "Orchestration runs by terminal state",
			},
			[]string{"state"}, // text | fallback | error
		),
		ModelCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "adjunct_model_call_duration_seconds",
				Help:    "Model invocation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"}, // ok | error
		),
		ToolDispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "adjunct_tool_dispatch_duration_seconds",
				Help:    "Tool dispatch latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool", "status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adjunct_http_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
	}
	m.registry.MustRegister(m.RunsTotal, m.ModelCallDuration, m.ToolDispatchDuration, m.HTTPRequestsTotal)
	return m
}

// Registry exposes the underlying registry for extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveModelCall records one model invocation.
func (m *Metrics) ObserveModelCall(d time.Duration, err error) {
	m.ModelCallDuration.WithLabelValues(status(err)).Observe(d.Seconds())
}

// ObserveToolDispatch records one tool dispatch.
func (m *Metrics) ObserveToolDispatch(tool string, d time.Duration, err error) {
	m.ToolDispatchDuration.WithLabelValues(tool, status(err)).Observe(d.Seconds())
}

// ObserveRun records the terminal state of a run.
func (m *Metrics) ObserveRun(state orchestrator.State) {
	m.RunsTotal.WithLabelValues(runLabel(state)).Inc()
}

func runLabel(state orchestrator.State) string {
	switch state {
	case orchestrator.StateDoneText:
		return "text"
	case orchestrator.StateDoneFallback:
		return "fallback"
	case orchestrator.StateDoneError:
		return "error"
	default:
		return "unknown"
	}
}

// ObserveHTTPRequest records one served request.
func (m *Metrics) ObserveHTTPRequest(route string, code int) {
	m.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// WritePrometheus writes every metric family in the text exposition format.
func (m *Metrics) WritePrometheus(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
		if err := m.WritePrometheus(w); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
