// Package worker provides goroutine pool management.
//
// Naked goroutines are avoided in request paths: fan-out goes through a
// Pool so concurrency stays bounded and panics are recovered and logged.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"squadkeeper.io/keeper/internal/pkg/logger"
)

// Pool wraps ants.Pool with context-aware submission.
type Pool struct {
	pool *ants.Pool
	name string
}

// Pools is the worker pool collection.
type Pools struct {
	// Tenant runs per-tenant swaps; its size caps concurrent calls to the
	// provisioning API during bulk runs.
	Tenant *Pool
}

// PoolConfig contains worker pool configuration.
type PoolConfig struct {
	TenantPoolSize int
}

// DefaultPoolConfig returns default configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		TenantPoolSize: 8,
	}
}

// NewPool creates a single named pool.
func NewPool(name string, size int) (*Pool, error) {
	panicHandler := func(p interface{}) {
		logger.Error("worker panic recovered",
			zap.String("pool", name),
			zap.Any("panic", p),
			zap.Stack("stack"),
		)
	}
	p, err := ants.NewPool(size,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(30*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &Pool{pool: p, name: name}, nil
}

// NewPools creates the worker pool collection.
func NewPools(cfg PoolConfig) (*Pools, error) {
	tenant, err := NewPool("tenant", cfg.TenantPoolSize)
	if err != nil {
		return nil, err
	}
	return &Pools{Tenant: tenant}, nil
}

// ForEach runs fn for indexes [0, n) on the pool and waits for all of them.
//
// Cancelling ctx stops scheduling: indexes not yet started are handed to
// skipped instead. Work that has started receives a context detached from
// ctx's cancellation and always runs to completion.
func (p *Pool) ForEach(ctx context.Context, n int, fn func(ctx context.Context, i int), skipped func(i int)) {
	var wg sync.WaitGroup
	runCtx := context.WithoutCancel(ctx)

	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			skipped(i)
			continue
		}

		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				skipped(i)
				return
			}
			fn(runCtx, i)
		})
		if err != nil {
			wg.Done()
			logger.Warn("worker submit failed",
				zap.String("pool", p.name),
				zap.Int("index", i),
				zap.Error(err),
			)
			skipped(i)
		}
	}
	wg.Wait()
}

// Release waits up to 30s for running tasks, then closes the pool.
func (p *Pool) Release() {
	const shutdownTimeout = 30 * time.Second
	if err := p.pool.ReleaseTimeout(shutdownTimeout); err != nil {
		logger.Warn("pool shutdown timeout", zap.String("pool", p.name), zap.Error(err))
	}
}

// Stats reports running/free/capacity counts.
func (p *Pool) Stats() map[string]int {
	return map[string]int{
		"running": p.pool.Running(),
		"free":    p.pool.Free(),
		"cap":     p.pool.Cap(),
	}
}

// Shutdown gracefully shuts down all pools.
func (p *Pools) Shutdown() {
	p.Tenant.Release()
}

// Metrics returns pool metrics for observability.
func (p *Pools) Metrics() map[string]interface{} {
	return map[string]interface{}{
		"tenant": p.Tenant.Stats(),
	}
}
