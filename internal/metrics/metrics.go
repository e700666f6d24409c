// Package metrics exposes Prometheus collectors for the HTTP surface
// and the chat path. Ingestion progress metrics live with the progress
// sinks and register their own collectors.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	chatRequestsTotal          *prometheus.CounterVec
	chatRetrievedChunks        prometheus.Histogram
	llmTokensTotal             *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		chatRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_requests_total",
				Help: "Total chat requests, labeled by result (answered, fallback, error).",
			},
			[]string{"result"},
		)

		chatRetrievedChunks = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chat_retrieved_chunks",
				Help:    "Number of chunks returned by retrieval per chat request.",
				Buckets: []float64{0, 1, 2, 3, 4, 6, 8, 12},
			},
		)

		llmTokensTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_total",
				Help: "Total tokens reported by the model provider, labeled by kind.",
			},
			[]string{"kind"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveChat records the outcome of one chat request.
func ObserveChat(result string, retrievedChunks int) {
	chatRequestsTotal.WithLabelValues(result).Inc()
	chatRetrievedChunks.Observe(float64(retrievedChunks))
}

// ObserveTokens adds the model provider's reported token usage.
func ObserveTokens(promptTokens, completionTokens int) {
	if promptTokens > 0 {
		llmTokensTotal.WithLabelValues("prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		llmTokensTotal.WithLabelValues("completion").Add(float64(completionTokens))
	}
}
