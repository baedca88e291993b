package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"squadkeeper.io/keeper/internal/domain"
	apperrors "squadkeeper.io/keeper/internal/pkg/errors"
)

func TestRollbackResolver_Order(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		setup      func(t *testing.T, f *fixture)
		last       *domain.Transition
		explicit   string
		useBuiltIn bool
		wantID     string
		wantCode   string
	}{
		{
			name:     "no history without escape hatch",
			wantCode: apperrors.CodeNoHistory,
		},
		{
			name:       "no history with built-in",
			useBuiltIn: true,
			wantID:     defaultBuiltInID,
		},
		{
			name:     "explicit template",
			setup:    func(t *testing.T, f *fixture) { f.addTemplate(t, "x", "front-desk", "0.5.0", true, base) },
			explicit: "x",
			wantID:   "x",
		},
		{
			name:     "explicit inactive rejected",
			setup:    func(t *testing.T, f *fixture) { f.addTemplate(t, "x", "front-desk", "0.5.0", false, base) },
			explicit: "x",
			wantCode: apperrors.CodeTemplateInactive,
		},
		{
			name: "same name resolved by template id",
			setup: func(t *testing.T, f *fixture) {
				f.addTemplate(t, "A", "front-desk", "2.0.0", true, base)
				f.addTemplate(t, "B", "front-desk", "3.0.0", true, base.Add(time.Hour))
			},
			last:   &domain.Transition{FromTemplateID: "A", FromTemplateName: "front-desk", FromVersion: "2.0.0", ToTemplateID: "B", ToVersion: "3.0.0"},
			wantID: "A",
		},
		{
			name: "name and version when id is unknown",
			setup: func(t *testing.T, f *fixture) {
				f.addTemplate(t, "A", "front-desk", "2.0.0", true, base)
				f.addTemplate(t, "B", "front-desk", "3.0.0", true, base)
			},
			last:   &domain.Transition{FromTemplateName: "front-desk", FromVersion: "2.0.0", ToVersion: "3.0.0"},
			wantID: "A",
		},
		{
			name:   "built-in from side",
			last:   &domain.Transition{FromTemplateName: "front-desk", FromVersion: "1.2.0", ToTemplateID: "B", ToVersion: "3.0.0"},
			wantID: defaultBuiltInID,
		},
		{
			name: "latest active by name when version is gone",
			setup: func(t *testing.T, f *fixture) {
				f.addTemplate(t, "C", "after-hours", "4.0.0", true, base)
			},
			last:   &domain.Transition{FromTemplateName: "after-hours", FromVersion: "3.5.0", ToVersion: "5.0.0"},
			wantID: "C",
		},
		{
			name:   "inactive candidate falls back to built-in",
			setup:  func(t *testing.T, f *fixture) { f.addTemplate(t, "A", "front-desk", "2.0.0", false, base) },
			last:   &domain.Transition{FromTemplateID: "A", FromTemplateName: "front-desk", FromVersion: "2.0.0", ToVersion: "3.0.0"},
			wantID: defaultBuiltInID,
		},
		{
			name:   "first provision rolls back to built-in",
			last:   &domain.Transition{ToVersion: "3.0.0"},
			wantID: defaultBuiltInID,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(t, f)
			}
			if tt.last != nil {
				require.NoError(t, f.ledger.Append(context.Background(), "acct-1", tt.last))
			}

			tpl, err := NewRollbackResolver(f.registry, f.ledger).
				ResolveRollbackTarget(context.Background(), "acct-1", tt.explicit, tt.useBuiltIn)
			if tt.wantCode != "" {
				require.Equal(t, tt.wantCode, apperrors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantID, tpl.ID)
		})
	}
}
