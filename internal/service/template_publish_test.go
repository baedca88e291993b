package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "squadkeeper.io/keeper/internal/pkg/errors"
)

func TestTemplateRegistry_Publish(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tpl, err := f.registry.Publish(ctx, PublishInput{
		Name:          "front-desk",
		Version:       "1.3.0",
		Category:      "reception",
		MemberConfigs: json.RawMessage(`[{"name":"greeter"}]`),
	})
	require.NoError(t, err)
	require.NotEmpty(t, tpl.ID)
	require.True(t, tpl.IsActive)
	require.False(t, tpl.BuiltIn)

	latest, err := f.registry.LatestActiveByName(ctx, "front-desk")
	require.NoError(t, err)
	require.Equal(t, tpl.ID, latest.ID)

	_, err = f.registry.Publish(ctx, PublishInput{Name: "front-desk", Version: "1.3.0"})
	require.Equal(t, apperrors.CodeTemplateExists, apperrors.CodeOf(err))
}

func TestTemplateRegistry_PublishValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []PublishInput{
		{Version: "1.0.0"},
		{Name: "x", Version: "latest"},
		{Name: "x", Version: "1.0.0", MemberConfigs: json.RawMessage(`{"name":"greeter"}`)},
	}
	for _, in := range cases {
		_, err := f.registry.Publish(ctx, in)
		require.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err), "input %+v", in)
	}
}

func TestTemplateRegistry_SetActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tpl, err := f.registry.Publish(ctx, PublishInput{Name: "after-hours", Version: "2.0.0", Inactive: true})
	require.NoError(t, err)
	require.False(t, tpl.IsActive)

	_, err = f.registry.GetDeployable(ctx, tpl.ID)
	require.Equal(t, apperrors.CodeTemplateInactive, apperrors.CodeOf(err))

	tpl, err = f.registry.SetActive(ctx, tpl.ID, true)
	require.NoError(t, err)
	require.True(t, tpl.IsActive)

	_, err = f.registry.SetActive(ctx, defaultBuiltInID, false)
	require.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))

	_, err = f.registry.SetActive(ctx, "missing", false)
	require.Equal(t, apperrors.CodeTemplateNotFound, apperrors.CodeOf(err))
}
