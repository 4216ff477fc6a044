package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/example/skinai/internal/decision"
)

// MetricsSummary represents aggregated prediction insights since startup.
type MetricsSummary struct {
	TotalRequests              int64            `json:"total_requests"`
	SuccessfulRequests         int64            `json:"successful_requests"`
	FailedRequests             int64            `json:"failed_requests"`
	ModelUnavailable           int64            `json:"model_unavailable"`
	CacheHits                  int64            `json:"cache_hits"`
	ByStatus                   map[string]int64 `json:"by_status"`
	SuccessRate                float64          `json:"success_rate"`
	AverageProcessingLatencyMs float64          `json:"average_processing_latency_ms"`
}

type metrics struct {
	mu           sync.Mutex
	total        int64
	succeeded    int64
	failed       int64
	unavailable  int64
	cacheHits    int64
	byStatus     map[decision.Status]int64
	totalLatency time.Duration
}

func newMetrics() *metrics {
	return &metrics{byStatus: make(map[decision.Status]int64)}
}

func (m *metrics) observe(pred *Prediction, err error, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.totalLatency += latency
	switch {
	case err == nil && pred != nil:
		m.succeeded++
		m.byStatus[pred.Status]++
		if pred.Cached {
			m.cacheHits++
		}
	case errors.Is(err, ErrModelUnavailable):
		m.unavailable++
		m.failed++
	default:
		m.failed++
	}
}

// GetMetricsSummary aggregates prediction metrics recorded in memory.
func (uc *PredictionUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := uc.metrics
	m.mu.Lock()
	defer m.mu.Unlock()

	summary := &MetricsSummary{
		TotalRequests:      m.total,
		SuccessfulRequests: m.succeeded,
		FailedRequests:     m.failed,
		ModelUnavailable:   m.unavailable,
		CacheHits:          m.cacheHits,
		ByStatus:           make(map[string]int64, len(m.byStatus)),
	}
	for status, n := range m.byStatus {
		summary.ByStatus[string(status)] = n
	}

	if m.total > 0 {
		summary.SuccessRate = float64(m.succeeded) / float64(m.total)
		summary.AverageProcessingLatencyMs = float64(m.totalLatency.Microseconds()) / 1000 / float64(m.total)
	}

	return summary, nil
}
