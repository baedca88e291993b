package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	query  string
	auth   string
	body   map[string]interface{}
}

func fakeServer(t *testing.T, status int, reply string) (*httptest.Server, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.query = r.URL.RawQuery
		rec.auth = r.Header.Get("Authorization")
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &rec.body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func execute(args ...string) (string, error) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestDeploymentCommand(t *testing.T) {
	srv, rec := fakeServer(t, http.StatusOK, `{"account_id":"acct-1"}`)

	out, err := execute("deployment", "acct-1", "--server", srv.URL, "--token", "tok")
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, rec.method)
	assert.Equal(t, "/api/v1/accounts/acct-1/deployment", rec.path)
	assert.Equal(t, "Bearer tok", rec.auth)
	assert.Contains(t, out, `"account_id": "acct-1"`)
}

func TestPlanCommand(t *testing.T) {
	srv, rec := fakeServer(t, http.StatusOK, `{"entries":[]}`)

	_, err := execute("plan", "--server", srv.URL, "-t", "tpl-2", "--accounts", "a,b", "--dry-run")
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/upgrades/plan", rec.path)
	assert.Equal(t, "tpl-2", rec.body["template_id"])
	assert.Equal(t, []interface{}{"a", "b"}, rec.body["account_ids"])
	assert.Equal(t, true, rec.body["dry_run"])

	_, err = execute("plan", "--server", srv.URL, "-t", "tpl-2", "--dry-run", "--async")
	assert.Error(t, err)

	_, err = execute("plan", "--server", srv.URL)
	assert.Error(t, err, "template flag is required")
}

func TestRollbackCommand(t *testing.T) {
	srv, rec := fakeServer(t, http.StatusOK, `{"results":[]}`)

	_, err := execute("rollback", "a", "b", "--built-in", "--server", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, []interface{}{"a", "b"}, rec.body["account_ids"])
	assert.Equal(t, true, rec.body["use_built_in"])
}

func TestTemplatesCompareCommand(t *testing.T) {
	srv, rec := fakeServer(t, http.StatusOK, `{}`)

	_, err := execute("templates", "compare", "t1", "t2", "--server", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/templates/compare", rec.path)
	assert.Equal(t, "from=t1&to=t2", rec.query)
}

func TestAPIErrorSurfaced(t *testing.T) {
	srv, _ := fakeServer(t, http.StatusConflict, `{"code":"ACCOUNT_BUSY","message":"swap in progress"}`)

	_, err := execute("upgrade", "acct-1", "-t", "tpl-2", "--server", srv.URL)
	require.Error(t, err)
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "ACCOUNT_BUSY", apiErr.Code)
	assert.True(t, strings.HasPrefix(err.Error(), "ACCOUNT_BUSY"))
}

func TestNewClient_Invalid(t *testing.T) {
	_, err := newClient(&globalOptions{server: "not a url", timeout: "1s"})
	assert.Error(t, err)
	_, err = newClient(&globalOptions{server: "http://x", timeout: "soon"})
	assert.Error(t, err)
}
