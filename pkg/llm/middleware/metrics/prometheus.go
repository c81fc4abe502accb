// Package metrics provides Prometheus-based metrics recording for
// completion-service calls.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"scriptsmith/pkg/llm"
	"scriptsmith/pkg/llm/llmerrors"
)

// Recorder collects Prometheus metrics for completion requests.
type Recorder struct {
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

//nolint:gochecknoglobals // promauto registers collectors once per process
var (
	defaultRecorder *Recorder
	recorderOnce    sync.Once
)

// NewRecorder returns the process-wide metrics recorder, creating it on
// first use. promauto collectors may only be registered once.
func NewRecorder() *Recorder {
	recorderOnce.Do(func() {
		defaultRecorder = &Recorder{
			requestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "completion_requests_total",
					Help: "Total number of completion requests by model, purpose, and status",
				},
				[]string{"model", "purpose", "status", "error_type"},
			),
			tokensTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "completion_tokens_total",
					Help: "Total number of tokens used in completion requests",
				},
				[]string{"model", "purpose", "type"},
			),
			requestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "completion_request_duration_seconds",
					Help:    "Duration of completion requests in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"model", "purpose"},
			),
		}
	})
	return defaultRecorder
}

// ObserveRequest records metrics for a completed request.
func (r *Recorder) ObserveRequest(model, purpose string, usage llm.Usage, err error, duration time.Duration) {
	status := "success"
	errorType := ""
	if err != nil {
		status = "error"
		errorType = llmerrors.Classify(err).Type.String()
	}

	r.requestsTotal.WithLabelValues(model, purpose, status, errorType).Inc()
	if err == nil {
		r.tokensTotal.WithLabelValues(model, purpose, "prompt").Add(float64(usage.PromptTokens))
		r.tokensTotal.WithLabelValues(model, purpose, "completion").Add(float64(usage.CompletionTokens))
	}
	r.requestDuration.WithLabelValues(model, purpose).Observe(duration.Seconds())
}

// purposeKey carries the request purpose ("generate", "verify", "improve")
// through the context to the middleware.
type purposeKey struct{}

// WithPurpose tags the context with the purpose label for the middleware.
func WithPurpose(ctx context.Context, purpose string) context.Context {
	return context.WithValue(ctx, purposeKey{}, purpose)
}

func purposeFrom(ctx context.Context) string {
	if v, ok := ctx.Value(purposeKey{}).(string); ok {
		return v
	}
	return "unknown"
}

// Middleware returns a middleware that records request metrics.
func Middleware(recorder *Recorder) llm.Middleware {
	return func(next llm.CompletionClient) llm.CompletionClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				resp, err := next.Complete(ctx, req)
				recorder.ObserveRequest(next.ModelName(), purposeFrom(ctx), resp.Usage, err, time.Since(start))
				return resp, err
			},
			next.ModelName,
		)
	}
}
