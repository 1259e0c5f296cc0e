package ollama

import (
	"math"

	"github.com/graphmill/graphmill/pkg/ai"
)

// ResetMetrics clears all accumulated token and timing metrics to zero.
func (b *Backend) ResetMetrics() {
	b.metricsLock.Lock()
	b.metrics = ai.ModelMetrics{}
	b.metricsLock.Unlock()
}

// GetMetrics returns the accumulated token usage and timing metrics since
// the last reset.
func (b *Backend) GetMetrics() ai.ModelMetrics {
	b.metricsLock.Lock()
	defer b.metricsLock.Unlock()
	return b.metrics
}

func (b *Backend) modifyMetrics(m ai.ModelMetrics) {
	b.metricsLock.Lock()
	defer b.metricsLock.Unlock()

	b.metrics.InputTokens += m.InputTokens
	b.metrics.OutputTokens += m.OutputTokens
	b.metrics.TotalTokens += m.TotalTokens
	b.metrics.DurationMs += m.DurationMs

	if b.metrics.DurationMs > 0 {
		tokensPerSecond := (float64(b.metrics.TotalTokens) * 1000.0) / float64(b.metrics.DurationMs)
		b.metrics.TokenPerSecond = float32(math.Round(tokensPerSecond*100) / 100)
	}
}
