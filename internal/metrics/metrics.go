package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	completionReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfchat",
			Name:      "completion_requests_total",
			Help:      "Total completion requests by result",
		},
		[]string{"result"},
	)

	completionLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pdfchat",
			Name:      "completion_request_duration_seconds",
			Help:      "Duration of completion requests by result",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
		[]string{"result"},
	)

	dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfchat",
			Name:      "chat_dispatch_total",
			Help:      "Chat operations by operation and outcome (accepted, busy, empty_context, no_metadata)",
		},
		[]string{"op", "outcome"},
	)

	contextChars = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pdfchat",
			Name:      "context_chars",
			Help:      "Characters of PDF context sent per request, by scope",
			Buckets:   prometheus.ExponentialBuckets(250, 2, 10),
		},
		[]string{"scope"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pdfchat",
			Name:      "sessions_active",
			Help:      "Chat sessions currently open",
		},
	)

	imports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfchat",
			Name:      "pdf_imports_total",
			Help:      "PDF imports by source (file, http, s3) and result",
		},
		[]string{"source", "result"},
	)

	textCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfchat",
			Name:      "text_cache_lookups_total",
			Help:      "Extracted text cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	inflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pdfchat",
			Name:      "completion_inflight",
			Help:      "Completion requests currently holding a slot",
		},
	)

	breakerOpens = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pdfchat",
			Name:      "completion_circuit_opened_total",
			Help:      "Times the completion circuit breaker opened",
		},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(completionReqs, completionLatency, dispatches, contextChars, activeSessions, imports, textCache, inflight, breakerOpens)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveCompletion(result string, dur time.Duration) {
	completionReqs.WithLabelValues(result).Inc()
	completionLatency.WithLabelValues(result).Observe(dur.Seconds())
}

func IncDispatch(op, outcome string) { dispatches.WithLabelValues(op, outcome).Inc() }

func ObserveContext(scope string, chars int) {
	contextChars.WithLabelValues(scope).Observe(float64(chars))
}

func SessionOpened() { activeSessions.Inc() }
func SessionClosed() { activeSessions.Dec() }

func IncTextCache(result string) { textCache.WithLabelValues(result).Inc() }

func IncImport(source, result string) { imports.WithLabelValues(source, result).Inc() }

func IncBreakerOpen() { breakerOpens.Inc() }

func SetInflight(n int) { inflight.Set(float64(n)) }
