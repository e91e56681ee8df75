package llm

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ChatMetricsRecorder abstracts metrics recording for chat-completion calls,
// so it can be mocked in tests or swapped for a different metrics system.
type ChatMetricsRecorder interface {
	// RecordDuration records the wall-clock time of one Chat call.
	RecordDuration(dialect string, duration time.Duration)

	// RecordTokens records prompt and completion token counts.
	RecordTokens(dialect string, prompt, completion int)

	// RecordOutcome records whether a call succeeded, failed, or was
	// rejected by an open circuit breaker.
	RecordOutcome(dialect, outcome string)
}

// PrometheusChatMetrics implements ChatMetricsRecorder with Prometheus
// collectors, registered once per process via a singleton.
type PrometheusChatMetrics struct {
	duration *prometheus.HistogramVec
	tokens   *prometheus.CounterVec
	outcomes *prometheus.CounterVec
}

var (
	chatMetricsInstance *PrometheusChatMetrics
	chatMetricsOnce     sync.Once
)

func getOrCreateHistogramVec(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(opts, labels)
	if err := prometheus.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.HistogramVec)
		}
		return promauto.NewHistogramVec(opts, labels)
	}
	return h
}

func getOrCreateCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(opts, labels)
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.CounterVec)
		}
		return promauto.NewCounterVec(opts, labels)
	}
	return c
}

// NewPrometheusChatMetrics returns the process-wide chat metrics recorder.
// Uses singleton pattern to avoid duplicate metric registration in tests.
func NewPrometheusChatMetrics() *PrometheusChatMetrics {
	chatMetricsOnce.Do(func() {
		chatMetricsInstance = &PrometheusChatMetrics{
			duration: getOrCreateHistogramVec(prometheus.HistogramOpts{
				Name:    "llm_chat_duration_seconds",
				Help:    "Time taken for a chat-completion call to return",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			}, []string{"dialect"}),
			tokens: getOrCreateCounterVec(prometheus.CounterOpts{
				Name: "llm_chat_tokens_total",
				Help: "Total tokens consumed by chat-completion calls",
			}, []string{"dialect", "kind"}),
			outcomes: getOrCreateCounterVec(prometheus.CounterOpts{
				Name: "llm_chat_outcomes_total",
				Help: "Total chat-completion calls by outcome",
			}, []string{"dialect", "outcome"}),
		}
	})
	return chatMetricsInstance
}

func (p *PrometheusChatMetrics) RecordDuration(dialect string, duration time.Duration) {
	p.duration.WithLabelValues(dialect).Observe(duration.Seconds())
}

func (p *PrometheusChatMetrics) RecordTokens(dialect string, prompt, completion int) {
	p.tokens.WithLabelValues(dialect, "prompt").Add(float64(prompt))
	p.tokens.WithLabelValues(dialect, "completion").Add(float64(completion))
}

func (p *PrometheusChatMetrics) RecordOutcome(dialect, outcome string) {
	p.outcomes.WithLabelValues(dialect, outcome).Inc()
}
