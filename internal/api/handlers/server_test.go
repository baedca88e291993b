package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"squadkeeper.io/keeper/internal/api/middleware"
	"squadkeeper.io/keeper/internal/domain"
	"squadkeeper.io/keeper/internal/jobs"
	apperrors "squadkeeper.io/keeper/internal/pkg/errors"
	"squadkeeper.io/keeper/internal/pkg/lease"
	"squadkeeper.io/keeper/internal/pkg/logger"
	"squadkeeper.io/keeper/internal/pkg/metrics"
	"squadkeeper.io/keeper/internal/pkg/worker"
	"squadkeeper.io/keeper/internal/provider"
	"squadkeeper.io/keeper/internal/repository/memory"
	"squadkeeper.io/keeper/internal/service"
	"squadkeeper.io/keeper/internal/usecase"
)

func init() {
	gin.SetMode(gin.TestMode)
	_ = logger.Init("error", "json")
}

const builtInID = "builtin:front-desk"

type testEnv struct {
	router   *gin.Engine
	store    *memory.Store
	provider *provider.MockProvider
	metrics  *metrics.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.New()
	mock := provider.NewMockProvider()
	m := metrics.New()

	registry, err := service.NewTemplateRegistry(store)
	require.NoError(t, err)
	ledger := service.NewLedger(store)
	pool, err := worker.NewPool("handlers-test", 4)
	require.NoError(t, err)
	t.Cleanup(pool.Release)

	orch := usecase.NewOrchestrator(store, ledger, mock, provider.NewStaticContextProvider(), lease.NewLocalLocker(),
		usecase.OrchestratorConfig{
			CreateTimeout:  time.Second,
			RoutingTimeout: time.Second,
			DeleteTimeout:  time.Second,
			LeaseWait:      time.Second,
		}).WithMetrics(m)

	srv := NewServer(ServerDeps{
		Registry: registry,
		Accounts: usecase.NewAccountUseCase(usecase.AccountDeps{
			Registry:         registry,
			Resolver:         service.NewVersionResolver(registry, store),
			Rollbacks:        service.NewRollbackResolver(registry, ledger),
			Ledger:           ledger,
			Deployments:      store,
			Orchestrator:     orch,
			Pool:             pool,
			BuiltInWinsOnTie: true,
		}),
		Planner:    usecase.NewPlanUpgradeUseCase(registry, store, orch, pool).WithMetrics(m),
		Reconciler: usecase.NewReconcileUseCase(store, mock).WithMetrics(m),
		Enqueuer:   jobs.NewEnqueuer(nil),
		Health:     provider.NewHealthChecker(mock, time.Minute, time.Second),
		Metrics:    m,
	})

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.ErrorHandler(), middleware.Metrics(m))
	r.Use(middleware.ActorAuth(middleware.JWTConfig{VerificationKeys: [][]byte{[]byte("handlers-test-key-0123456789abcdef")}}))
	r.Use(middleware.MustOpenAPIValidator("/api/v1"))
	srv.Register(r.Group("/api/v1"))
	r.GET("/metrics", gin.WrapH(srv.MetricsHandler()))

	return &testEnv{router: r, store: store, provider: mock, metrics: m}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst), "body: %s", w.Body.String())
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	decode(t, w, &body)
	return body.Code
}

func TestProvisionThenQuery(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/accounts/acct-1/provision", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var prov struct {
		Reason     string             `json:"reason"`
		Template   domain.Template    `json:"template"`
		Transition *domain.Transition `json:"transition"`
	}
	decode(t, w, &prov)
	assert.Equal(t, builtInID, prov.Template.ID)
	assert.Equal(t, string(service.ResolveBuiltIn), prov.Reason)
	assert.Equal(t, anonymousActor, prov.Transition.Actor)

	w = env.do(t, http.MethodGet, "/api/v1/accounts/acct-1/deployment", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var dep domain.Deployment
	decode(t, w, &dep)
	assert.Equal(t, prov.Transition.NewResourceID, dep.ExternalResourceID)
	assert.Len(t, dep.History, 1)

	w = env.do(t, http.MethodGet, "/api/v1/accounts/acct-1/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var hist struct {
		Transitions []domain.Transition `json:"transitions"`
	}
	decode(t, w, &hist)
	assert.Len(t, hist.Transitions, 1)

	w = env.do(t, http.MethodGet, "/api/v1/accounts/nobody/deployment", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperrors.CodeAccountNotFound, errorCode(t, w))
}

func TestUpgradeErrors(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/accounts/acct-1/upgrade", map[string]string{"template_id": "nope"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperrors.CodeTemplateNotFound, errorCode(t, w))

	w = env.do(t, http.MethodPost, "/api/v1/accounts/acct-1/upgrade", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperrors.CodeValidation, errorCode(t, w))

	env.provider.FailCreate(func(string) error { return assert.AnError })
	w = env.do(t, http.MethodPost, "/api/v1/accounts/acct-1/upgrade", map[string]string{"template_id": builtInID})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, apperrors.CodeProvisionFailed, errorCode(t, w))
}

func TestEffectiveTemplate(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/accounts/acct-1/effective-template?built_in_wins_on_tie=false", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Template domain.Template `json:"template"`
		Reason   string          `json:"reason"`
	}
	decode(t, w, &body)
	assert.Equal(t, builtInID, body.Template.ID)

	w = env.do(t, http.MethodGet, "/api/v1/accounts/acct-1/effective-template?template_id=builtin:after-hours", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &body)
	assert.Equal(t, "builtin:after-hours", body.Template.ID)
	assert.Equal(t, string(service.ResolveExplicit), body.Reason)
}

func TestPlanUpgrade(t *testing.T) {
	env := newTestEnv(t)
	for _, id := range []string{"a", "b"} {
		w := env.do(t, http.MethodPost, "/api/v1/accounts/"+id+"/provision", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := env.do(t, http.MethodPost, "/api/v1/templates", map[string]interface{}{
		"name": "front-desk", "version": "1.3.0", "member_configs": []map[string]string{{"name": "greeter"}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var tpl domain.Template
	decode(t, w, &tpl)

	w = env.do(t, http.MethodPost, "/api/v1/upgrades/plan", map[string]interface{}{"template_id": tpl.ID, "dry_run": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var plan struct {
		Entries []domain.UpgradePlanEntry `json:"entries"`
		Summary domain.PlanSummary        `json:"summary"`
		Report  *domain.MigrationReport   `json:"report"`
	}
	decode(t, w, &plan)
	assert.Equal(t, 2, plan.Summary.Pending)
	assert.NotNil(t, plan.Report)

	w = env.do(t, http.MethodPost, "/api/v1/upgrades/plan", map[string]interface{}{"template_id": tpl.ID})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &plan)
	assert.Equal(t, 2, plan.Summary.Upgraded)

	w = env.do(t, http.MethodPost, "/api/v1/upgrades/plan", map[string]interface{}{"template_id": tpl.ID, "async": true})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, apperrors.CodeAsyncUnavailable, errorCode(t, w))

	w = env.do(t, http.MethodPost, "/api/v1/upgrades/plan", map[string]interface{}{"template_id": tpl.ID, "async": true, "dry_run": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRollback(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/accounts/a/provision", nil).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/accounts/a/upgrade",
		map[string]string{"template_id": "builtin:after-hours"}).Code)

	w := env.do(t, http.MethodPost, "/api/v1/rollbacks", map[string]interface{}{"account_ids": []string{"a", "ghost"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Results []usecase.RollbackResult `json:"results"`
	}
	decode(t, w, &body)
	require.Len(t, body.Results, 2)
	assert.Equal(t, usecase.RollbackStatusRolledBack, body.Results[0].Status)
	assert.Equal(t, "front-desk@1.2.0", body.Results[0].TargetTemplate)
	assert.Equal(t, usecase.RollbackStatusFailed, body.Results[1].Status)
	assert.Equal(t, apperrors.CodeAccountNotFound, body.Results[1].ErrorCode)

	w = env.do(t, http.MethodPost, "/api/v1/rollbacks", map[string]interface{}{"account_ids": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReconcile(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/accounts/a/provision", nil).Code)
	env.provider.Seed(domain.Resource{ID: "stray", Name: "stray"})

	w := env.do(t, http.MethodGet, "/api/v1/reconcile", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report domain.ReconcileReport
	decode(t, w, &report)
	assert.Equal(t, []string{"stray"}, report.OrphanedResources)
	assert.Empty(t, report.OrphanedDeployments)
}

func TestTemplates(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/templates", map[string]interface{}{"name": "front-desk", "version": "2.0.0", "inactive": true})
	require.Equal(t, http.StatusCreated, w.Code)
	var tpl domain.Template
	decode(t, w, &tpl)
	assert.False(t, tpl.IsActive)

	w = env.do(t, http.MethodPost, "/api/v1/templates", map[string]interface{}{"name": "front-desk", "version": "2.0.0"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, apperrors.CodeTemplateExists, errorCode(t, w))

	var list struct {
		Templates []domain.Template `json:"templates"`
	}
	w = env.do(t, http.MethodGet, "/api/v1/templates", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &list)
	assert.Len(t, list.Templates, 2)

	w = env.do(t, http.MethodGet, "/api/v1/templates?include_inactive=true", nil)
	decode(t, w, &list)
	assert.Len(t, list.Templates, 3)

	w = env.do(t, http.MethodPut, "/api/v1/templates/"+tpl.ID+"/activation", map[string]bool{"active": true})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &tpl)
	assert.True(t, tpl.IsActive)

	w = env.do(t, http.MethodGet, "/api/v1/templates/"+builtInID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/templates/compare?from="+builtInID+"&to=builtin:after-hours", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var report domain.MigrationReport
	decode(t, w, &report)
	assert.True(t, report.HasBreakingChanges)

	w = env.do(t, http.MethodGet, "/api/v1/templates/compare?from="+builtInID, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSystemEndpoints(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/health/live", nil).Code)

	w := env.do(t, http.MethodGet, "/api/v1/health/ready", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), string(provider.StatusUnknown))

	t.Cleanup(func() { _ = logger.SetLevel("error") })
	w = env.do(t, http.MethodPut, "/api/v1/admin/log-level", map[string]string{"level": "debug"})
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodGet, "/api/v1/admin/log-level", nil)
	assert.Contains(t, w.Body.String(), "debug")
	w = env.do(t, http.MethodPut, "/api/v1/admin/log-level", map[string]string{"level": "loud"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "squadkeeper_http_requests_total")
}
