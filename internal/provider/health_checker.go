package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"squadkeeper.io/keeper/internal/pkg/logger"
)

// Status is the provisioning API health state.
type Status string

const (
	StatusUnknown     Status = "UNKNOWN"
	StatusHealthy     Status = "HEALTHY"
	StatusUnreachable Status = "UNREACHABLE"
)

// Health is one health check result.
type Health struct {
	Provider    string        `json:"provider"`
	Status      Status        `json:"status"`
	Resources   int           `json:"resources"`
	Latency     time.Duration `json:"latency_ns"`
	LastChecked time.Time     `json:"last_checked"`
	Error       string        `json:"error,omitempty"`
}

// HealthChecker periodically probes the provisioning API with a list call
// and caches the latest result for readiness checks.
type HealthChecker struct {
	provider ResourceProvider
	interval time.Duration
	timeout  time.Duration

	mu       sync.RWMutex
	last     *Health
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewHealthChecker creates a HealthChecker.
func NewHealthChecker(p ResourceProvider, interval, timeout time.Duration) *HealthChecker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthChecker{provider: p, interval: interval, timeout: timeout, stopCh: make(chan struct{})}
}

// Check probes the provider once and caches the result.
func (c *HealthChecker) Check(ctx context.Context) *Health {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	h := &Health{Provider: c.provider.Name(), LastChecked: start}
	resources, err := c.provider.ListResources(ctx)
	h.Latency = time.Since(start)
	if err != nil {
		h.Status = StatusUnreachable
		h.Error = fmt.Sprintf("list resources: %v", err)
		logger.Warn("provider health check failed", zap.String("provider", h.Provider), zap.Error(err))
	} else {
		h.Status = StatusHealthy
		h.Resources = len(resources)
	}

	c.mu.Lock()
	c.last = h
	c.mu.Unlock()
	return h
}

// Last returns the cached result, or UNKNOWN before the first check.
func (c *HealthChecker) Last() *Health {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return &Health{Provider: c.provider.Name(), Status: StatusUnknown}
	}
	h := *c.last
	return &h
}

// Start begins periodic checking until ctx ends or Stop is called.
// nolint:naked-goroutine // ticker loop; doesn't fit worker pool pattern.
func (c *HealthChecker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		c.Check(ctx)
		for {
			select {
			case <-ticker.C:
				c.Check(ctx)
			case <-c.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts periodic checking. Safe to call more than once.
func (c *HealthChecker) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}
