package embedding

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// DefaultWorkers is used when a pool is created with a non-positive size.
const DefaultWorkers = 4

// Pool bounds the number of in-flight Embed calls on a Provider.
// The search and sync paths each get their own Pool so a large sync
// cannot delay interactive queries.
type Pool struct {
	provider Provider
	sem      *semaphore.Weighted
	size     int
}

// NewPool creates a pool allowing size concurrent calls.
func NewPool(provider Provider, size int) *Pool {
	if size <= 0 {
		size = DefaultWorkers
	}
	return &Pool{
		provider: provider,
		sem:      semaphore.NewWeighted(int64(size)),
		size:     size,
	}
}

// Embed waits for a free slot, then calls the underlying provider.
// Cancellation while waiting returns the context error.
func (p *Pool) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("embedding pool: %w", err)
	}
	defer p.sem.Release(1)

	return p.provider.Embed(ctx, text)
}

// Model returns the underlying provider's model.
func (p *Pool) Model() string {
	return p.provider.Model()
}

// Size returns the pool's concurrency limit.
func (p *Pool) Size() int {
	return p.size
}
