// Package metrics exposes pipeline counters and latencies to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chatpush/notifier/pkg/circuitbreaker"
)

const namespace = "chat_notifier"

// Recorder owns a registry and every collector the service reports.
type Recorder struct {
	registry *prometheus.Registry

	invocations        *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec

	sends         *prometheus.CounterVec
	sendDuration  prometheus.Histogram
	addresses     prometheus.Counter
	failedAddress prometheus.Counter

	handlerRuns *prometheus.CounterVec

	circuitState *prometheus.GaugeVec

	httpDuration *prometheus.HistogramVec
	httpRequests *prometheus.CounterVec
}

// New registers all collectors on a fresh registry, together with the
// Go runtime and process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,

		invocations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocations_total",
			Help:      "Trigger invocations by source, last stage reached, and result.",
		}, []string{"source", "stage", "result"}),

		invocationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invocation_duration_seconds",
			Help:      "Duration of one trigger invocation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source", "result"}),

		sends: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_sends_total",
			Help:      "Multicast requests to the push gateway by result.",
		}, []string{"result"}),

		sendDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_send_duration_seconds",
			Help:      "Latency of one multicast request.",
			Buckets:   prometheus.DefBuckets,
		}),

		addresses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_addresses_total",
			Help:      "Push addresses submitted to the gateway.",
		}),

		failedAddress: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_address_failures_total",
			Help:      "Push addresses the gateway reported as failed.",
		}),

		handlerRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_handler_runs_total",
			Help:      "Event bus handler executions.",
		}, []string{"event_type", "status"}),

		circuitState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_state",
			Help:      "Circuit breaker state: 0 closed, 1 open, 2 half-open.",
		}, []string{"name"}),

		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "method", "status"}),

		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"path", "method", "status"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveInvocation records one finished pipeline invocation.
func (r *Recorder) ObserveInvocation(source, stage, result string, latency time.Duration) {
	r.invocations.WithLabelValues(source, stage, result).Inc()
	r.invocationDuration.WithLabelValues(source, result).Observe(latency.Seconds())
}

// ObserveSend records one multicast send.
func (r *Recorder) ObserveSend(result string, addresses, failures int, latency time.Duration) {
	r.sends.WithLabelValues(result).Inc()
	r.sendDuration.Observe(latency.Seconds())
	r.addresses.Add(float64(addresses))
	r.failedAddress.Add(float64(failures))
}

// ObserveHandler records one event bus handler execution.
func (r *Recorder) ObserveHandler(eventType string, _ time.Duration, success bool) {
	status := "ok"
	if !success {
		status = "error"
	}
	r.handlerRuns.WithLabelValues(eventType, status).Inc()
}

// ObserveCircuitState records a breaker transition. Its signature matches
// circuitbreaker.WithOnStateChange.
func (r *Recorder) ObserveCircuitState(name string, _, to circuitbreaker.State) {
	r.circuitState.WithLabelValues(name).Set(float64(to))
}

// Middleware records RED metrics per route pattern.
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)

		next.ServeHTTP(ww, req)

		path := req.URL.Path
		if routeCtx := chi.RouteContext(req.Context()); routeCtx != nil && routeCtx.RoutePattern() != "" {
			path = routeCtx.RoutePattern()
		}

		status := strconv.Itoa(ww.Status())
		r.httpDuration.WithLabelValues(path, req.Method, status).Observe(time.Since(start).Seconds())
		r.httpRequests.WithLabelValues(path, req.Method, status).Inc()
	})
}
