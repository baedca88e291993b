package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"squadkeeper.io/keeper/internal/domain"
	"squadkeeper.io/keeper/internal/repository"
	"squadkeeper.io/keeper/internal/testutil"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	pool, dsn := testutil.OpenPGXPool(t, t.Name())
	require.NoError(t, Migrate(context.Background(), dsn))
	return New(pool)
}

func TestRepository_CommitTransition(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	tpl := &domain.Template{ID: "tpl-1", Name: "receptionist", Version: "2.0.0", IsActive: true}
	require.NoError(t, repo.CreateTemplate(ctx, tpl))

	dep := &domain.Deployment{
		AccountID:           "acct-1",
		CurrentTemplateID:   tpl.TemplateID(),
		CurrentVersion:      "2.0.0",
		CurrentTemplateName: "receptionist",
		ExternalResourceID:  "r-2",
		DeletedResourceID:   "r-1",
	}
	first := &domain.Transition{ID: "tr-1", AccountID: "acct-1", FromVersion: "1.0.0", ToVersion: "2.0.0", NewResourceID: "r-2"}
	require.NoError(t, repo.CommitTransition(ctx, dep, first))
	assert.Equal(t, 1, first.Seq)

	dep.CurrentTemplateID = nil
	dep.CurrentVersion = "1.0.0"
	second := &domain.Transition{ID: "tr-2", AccountID: "acct-1", FromVersion: "2.0.0", ToVersion: "1.0.0", NewResourceID: "r-3", IsRollback: true}
	require.NoError(t, repo.CommitTransition(ctx, dep, second))
	assert.Equal(t, 2, second.Seq)

	got, err := repo.GetDeployment(ctx, "acct-1")
	require.NoError(t, err)
	assert.Nil(t, got.CurrentTemplateID)
	assert.Equal(t, "1.0.0", got.CurrentVersion)
	require.Len(t, got.History, 2)
	assert.True(t, got.History[1].IsRollback)

	last, err := repo.LastTransition(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "tr-2", last.ID)
}

func TestRepository_NotFoundAndDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.GetDeployment(ctx, "nobody")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repo.GetTemplate(ctx, "nothing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, repo.CreateTemplate(ctx, &domain.Template{ID: "a", Name: "n", Version: "1.0.0"}))
	err = repo.CreateTemplate(ctx, &domain.Template{ID: "b", Name: "n", Version: "1.0.0"})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestRepository_ListDeploymentsFilter(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	for _, d := range []domain.Deployment{
		{AccountID: "a", CurrentVersion: "1.0.0", ExternalResourceID: "ra"},
		{AccountID: "b", CurrentVersion: "2.0.0", ExternalResourceID: "rb"},
	} {
		d := d
		require.NoError(t, repo.CommitTransition(ctx, &d, &domain.Transition{
			ID: d.AccountID + "-t", AccountID: d.AccountID, ToVersion: d.CurrentVersion, NewResourceID: d.ExternalResourceID,
		}))
	}

	got, err := repo.ListDeployments(ctx, repository.DeploymentFilter{CurrentVersion: "1.0.0"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].AccountID)

	got, err = repo.ListDeployments(ctx, repository.DeploymentFilter{AccountIDs: []string{"b"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].AccountID)
}
