// Package metrics holds the Prometheus collectors for generation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "steve"
	subsystem = "generation"
)

// Rejection reasons used as label values.
const (
	ReasonEmptyBatch    = "empty_batch"
	ReasonBatchTooLarge = "batch_too_large"
	ReasonEmptyPrompt   = "empty_prompt"
	ReasonPromptTooLong = "prompt_too_long"
	ReasonInvalidParams = "invalid_params"
	ReasonDialogOrder   = "dialog_order"
)

var (
	generateRequestOps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "generate_request_ops_total",
			Help:      "The total number of batched generate calls that reached the model.",
		},
	)
	tokenGenerationOps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "token_generation_ops_total",
			Help:      "The total number of tokens returned to callers.",
		},
	)
	forwardOps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "forward_ops_total",
			Help:      "The total number of model forward calls.",
		},
	)
	rejectionOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rejection_ops_total",
			Help:      "The total number of requests rejected before generation.",
		},
		[]string{"reason"},
	)
	completionRequestOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "completion_request_ops_total",
			Help:      "The total number of completion requests.",
		},
		[]string{"kind"},
	)
	unsafeDialogOps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "unsafe_dialog_ops_total",
			Help:      "The total number of dialogs answered with the reserved-tag error.",
		},
	)
	generateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "generate_duration_seconds",
			Help:      "Time taken by a batched generate call.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)
)

// Registry is the registry every collector of this package is registered on.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		generateRequestOps,
		tokenGenerationOps,
		forwardOps,
		rejectionOps,
		completionRequestOps,
		unsafeDialogOps,
		generateDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// RecordGenerate records one completed generate call.
func RecordGenerate(d time.Duration, tokens, forwardCalls int) {
	generateRequestOps.Inc()
	tokenGenerationOps.Add(float64(tokens))
	forwardOps.Add(float64(forwardCalls))
	generateDuration.Observe(d.Seconds())
}

// RecordRejection counts a request refused for reason.
func RecordRejection(reason string) {
	rejectionOps.WithLabelValues(reason).Inc()
}

// RecordCompletion counts a completion request of the given kind ("text" or "chat").
func RecordCompletion(kind string) {
	completionRequestOps.WithLabelValues(kind).Inc()
}

// RecordUnsafe counts dialogs rejected by the reserved-tag scan.
func RecordUnsafe(n int) {
	if n > 0 {
		unsafeDialogOps.Add(float64(n))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
