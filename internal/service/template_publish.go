package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"squadkeeper.io/keeper/internal/domain"
	apperrors "squadkeeper.io/keeper/internal/pkg/errors"
	"squadkeeper.io/keeper/internal/pkg/logger"
	"squadkeeper.io/keeper/internal/pkg/version"
	"squadkeeper.io/keeper/internal/repository"
)

// PublishInput describes a new stored template version.
type PublishInput struct {
	Name          string          `json:"name"`
	Version       string          `json:"version"`
	DisplayName   string          `json:"display_name"`
	Category      string          `json:"category"`
	MemberConfigs json.RawMessage `json:"member_configs"`
	// Inactive publishes the version without making it deployable.
	Inactive bool `json:"inactive"`
}

// Publish stores a new template version. Published versions are never
// edited; a change means publishing the next version.
func (r *TemplateRegistry) Publish(ctx context.Context, in PublishInput) (*domain.Template, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperrors.ErrValidation("name is required")
	}
	if !version.IsSemver(in.Version) {
		return nil, apperrors.ErrValidation(fmt.Sprintf("version %q is not a semantic version", in.Version))
	}
	members := in.MemberConfigs
	if len(members) == 0 {
		members = json.RawMessage("[]")
	}
	var decoded []domain.MemberConfig
	if err := json.Unmarshal(members, &decoded); err != nil {
		return nil, apperrors.ErrValidation("member_configs must be a JSON array of members")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate template id: %w", err)
	}
	tpl := &domain.Template{
		ID:            id.String(),
		Name:          name,
		Version:       in.Version,
		DisplayName:   in.DisplayName,
		Category:      in.Category,
		IsActive:      !in.Inactive,
		MemberConfigs: members,
	}
	if err := r.store.CreateTemplate(ctx, tpl); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.ErrTemplateExistsf(name, in.Version)
		}
		return nil, fmt.Errorf("create template %s: %w", tpl.Ref(), err)
	}
	logger.Info("template published",
		zap.String("template_id", tpl.ID),
		zap.String("template", tpl.Ref()),
		zap.Bool("active", tpl.IsActive),
	)
	return r.Get(ctx, tpl.ID)
}

// SetActive toggles whether a stored template may be deployed. Built-ins
// are always active.
func (r *TemplateRegistry) SetActive(ctx context.Context, id string, active bool) (*domain.Template, error) {
	if _, ok := r.byID[id]; ok {
		return nil, apperrors.ErrValidation("built-in templates cannot be deactivated")
	}
	if err := r.store.SetTemplateActive(ctx, id, active); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrTemplateNotFoundf(id)
		}
		return nil, fmt.Errorf("set template %s active=%t: %w", id, active, err)
	}
	logger.Info("template activation changed", zap.String("template_id", id), zap.Bool("active", active))
	return r.Get(ctx, id)
}
