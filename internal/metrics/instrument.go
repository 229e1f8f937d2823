package metrics

import (
	"context"
	"time"

	"github.com/khanglvm/tool-hub-search/internal/embedding"
)

// InstrumentedProvider records call counts and latency for a provider.
type InstrumentedProvider struct {
	embedding.Provider
	pool    string
	metrics *Metrics
}

// InstrumentProvider wraps p, labelling observations with pool.
func InstrumentProvider(p embedding.Provider, pool string, m *Metrics) embedding.Provider {
	if m == nil {
		return p
	}
	return &InstrumentedProvider{Provider: p, pool: pool, metrics: m}
}

// Embed delegates and records the outcome.
func (p *InstrumentedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vec, err := p.Provider.Embed(ctx, text)
	p.metrics.ObserveEmbedding(p.pool, err, time.Since(start))
	return vec, err
}
