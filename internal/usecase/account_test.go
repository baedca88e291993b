package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"squadkeeper.io/keeper/internal/domain"
	apperrors "squadkeeper.io/keeper/internal/pkg/errors"
	"squadkeeper.io/keeper/internal/service"
)

func TestAccount_RollbackReturnsToPreviousTemplateOfSameName(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.addTemplate(t, "A", "front-desk", "2.0.0")
	h.addTemplate(t, "B", "front-desk", "3.0.0")
	h.deploy(t, "acct-1", a)

	_, err := h.accounts.Upgrade(ctx, "acct-1", "B", "ops")
	require.NoError(t, err)

	tr, target, err := h.accounts.RollbackOne(ctx, "acct-1", "", false, "ops")
	require.NoError(t, err)
	require.Equal(t, "A", target.ID)
	require.True(t, tr.IsRollback)

	dep := h.deployment(t, "acct-1")
	require.Equal(t, "A", *dep.CurrentTemplateID)
	require.Equal(t, "2.0.0", dep.CurrentVersion)
	require.Len(t, dep.History, 3)
	requireLedgerConsistent(t, dep)
}

func TestAccount_RollbackNoHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.store.PutDeployment(domain.Deployment{AccountID: "acct-1", CurrentVersion: "1.0.0", ExternalResourceID: "legacy"})
	h.provider.Seed(domain.Resource{ID: "legacy"})

	_, _, err := h.accounts.RollbackOne(ctx, "acct-1", "", false, "ops")
	require.Equal(t, apperrors.CodeNoHistory, apperrors.CodeOf(err))
	require.Empty(t, h.provider.Ops())

	_, target, err := h.accounts.RollbackOne(ctx, "acct-1", "", true, "ops")
	require.NoError(t, err)
	require.Equal(t, builtInID, target.ID)
	require.False(t, h.provider.Has("legacy"))
}

func TestAccount_RollbackUnknownAccount(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.accounts.RollbackOne(context.Background(), "ghost", "", true, "ops")
	require.Equal(t, apperrors.CodeAccountNotFound, apperrors.CodeOf(err))
}

func TestAccount_BulkRollbackReportsPerAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.addTemplate(t, "A", "front-desk", "2.0.0")
	h.addTemplate(t, "B", "front-desk", "3.0.0")
	h.deploy(t, "one", a)
	h.deploy(t, "two", a)
	_, err := h.accounts.Upgrade(ctx, "one", "B", "ops")
	require.NoError(t, err)

	results, err := h.accounts.Rollback(ctx, RollbackInput{AccountIDs: []string{"one", "ghost", "two"}, Actor: "ops"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	require.Equal(t, RollbackStatusRolledBack, results[0].Status)
	require.Equal(t, "front-desk@2.0.0", results[0].TargetTemplate)
	require.Equal(t, RollbackStatusFailed, results[1].Status)
	require.Equal(t, apperrors.CodeAccountNotFound, results[1].ErrorCode)
	// "two" only has its initial provision; rolling back returns to the built-in.
	require.Equal(t, RollbackStatusRolledBack, results[2].Status)
	require.Equal(t, "front-desk@1.2.0", results[2].TargetTemplate)

	_, err = h.accounts.Rollback(ctx, RollbackInput{})
	require.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
}

func TestAccount_Provision(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.accounts.Provision(ctx, "acct-1", "", "signup")
	require.NoError(t, err)
	require.Equal(t, builtInID, res.Template.ID)
	require.Equal(t, service.ResolveBuiltIn, res.Reason)

	h.addTemplate(t, "newer", "front-desk", "9.0.0")
	res, err = h.accounts.Provision(ctx, "acct-1", "newer", "ops")
	require.NoError(t, err)
	require.Equal(t, service.ResolveExplicit, res.Reason)

	// Drift repair: the linked stored template is newer than the built-in.
	res, err = h.accounts.Provision(ctx, "acct-1", "", "ops")
	require.NoError(t, err)
	require.Equal(t, "newer", res.Template.ID)
	require.Equal(t, service.ResolveDBNewer, res.Reason)

	tie := false
	tpl, _, err := h.accounts.EffectiveTemplate(ctx, "acct-1", "", &tie)
	require.NoError(t, err)
	require.Equal(t, "newer", tpl.ID)
}

func TestAccount_UpgradeErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.accounts.Upgrade(ctx, "acct-1", "", "ops")
	require.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
	_, err = h.accounts.Upgrade(ctx, "acct-1", "missing", "ops")
	require.Equal(t, apperrors.CodeTemplateNotFound, apperrors.CodeOf(err))

	h.provider.FailCreate(func(string) error { return errors.New("down") })
	_, err = h.accounts.Upgrade(ctx, "acct-1", builtInID, "ops")
	require.Equal(t, apperrors.CodeProvisionFailed, apperrors.CodeOf(err))
}

func TestAccount_QueriesOnUnknownAccount(t *testing.T) {
	h := newHarness(t)
	_, err := h.accounts.CurrentDeployment(context.Background(), "ghost")
	require.Equal(t, apperrors.CodeAccountNotFound, apperrors.CodeOf(err))

	history, err := h.accounts.History(context.Background(), "ghost")
	require.NoError(t, err)
	require.Empty(t, history)
}
