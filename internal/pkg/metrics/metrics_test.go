package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"squadkeeper.io/keeper/internal/pkg/worker"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveSwap("upgrade", "success", time.Second)
	m.IncDeleteFailure()
	m.ObservePlanEntry("upgraded")
	m.SetReconcile(1, 2, 3)
	m.ObserveHTTP("GET", "/x", 200, time.Millisecond)
	require.NoError(t, m.RegisterPools(nil))
	require.NotNil(t, m.Handler())
}

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.ObserveSwap("upgrade", "success", 10*time.Millisecond)
	m.ObserveSwap("upgrade", "success", 10*time.Millisecond)
	m.ObserveSwap("rollback", "provision_failed", time.Millisecond)
	m.IncDeleteFailure()
	m.SetReconcile(4, 0, 1)

	require.Equal(t, 2.0, testutil.ToFloat64(m.swapTotal.WithLabelValues("upgrade", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.swapTotal.WithLabelValues("rollback", "provision_failed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.deleteFailures))
	require.Equal(t, 4.0, testutil.ToFloat64(m.reconcileFound.WithLabelValues("orphaned_resources")))
}

func TestMetrics_RegisterPools(t *testing.T) {
	pools, err := worker.NewPools(worker.PoolConfig{TenantPoolSize: 3})
	require.NoError(t, err)
	defer pools.Shutdown()

	m := New()
	require.NoError(t, m.RegisterPools(pools))
	require.NoError(t, m.RegisterPools(pools))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	found := false
	for _, f := range families {
		if f.GetName() == "squadkeeper_worker_pool_cap" {
			found = true
			require.Len(t, f.GetMetric(), 1)
		}
	}
	require.True(t, found)
}
