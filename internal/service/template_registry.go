package service

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"squadkeeper.io/keeper/internal/domain"
	apperrors "squadkeeper.io/keeper/internal/pkg/errors"
	"squadkeeper.io/keeper/internal/pkg/version"
	"squadkeeper.io/keeper/internal/repository"
)

//go:embed builtin/templates.yaml
var builtinTemplatesYAML []byte

type builtinFile struct {
	Templates []builtinTemplate `yaml:"templates"`
}

type builtinTemplate struct {
	domain.Template `yaml:",inline"`
	Members         []builtinMember `yaml:"members"`
}

type builtinMember struct {
	Name         string                 `yaml:"name"`
	Role         string                 `yaml:"role"`
	Capabilities []string               `yaml:"capabilities"`
	Behavior     map[string]interface{} `yaml:"behavior"`
}

// TemplateRegistry serves built-in and stored templates behind one lookup
// surface. Built-ins are compiled in and always active.
type TemplateRegistry struct {
	store    repository.TemplateRepository
	builtIns []domain.Template
	byID     map[string]*domain.Template
	def      *domain.Template
}

// NewTemplateRegistry creates a registry with the embedded built-ins.
func NewTemplateRegistry(store repository.TemplateRepository) (*TemplateRegistry, error) {
	return NewTemplateRegistryFromYAML(store, builtinTemplatesYAML)
}

// NewTemplateRegistryFromYAML creates a registry with built-ins parsed from data.
func NewTemplateRegistryFromYAML(store repository.TemplateRepository, data []byte) (*TemplateRegistry, error) {
	var file builtinFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse built-in templates: %w", err)
	}

	r := &TemplateRegistry{store: store, byID: make(map[string]*domain.Template)}
	for _, bt := range file.Templates {
		tpl := bt.Template
		if tpl.Name == "" || tpl.Version == "" {
			return nil, fmt.Errorf("built-in template %q: name and version are required", tpl.ID)
		}
		if tpl.ID == "" {
			tpl.ID = domain.BuiltInIDPrefix + tpl.Name
		}
		tpl.BuiltIn = true
		tpl.IsActive = true
		members := make([]domain.MemberConfig, 0, len(bt.Members))
		for _, m := range bt.Members {
			members = append(members, domain.MemberConfig(m))
		}
		raw, err := json.Marshal(members)
		if err != nil {
			return nil, fmt.Errorf("built-in template %q: encode members: %w", tpl.ID, err)
		}
		tpl.MemberConfigs = raw
		r.builtIns = append(r.builtIns, tpl)
	}

	for i := range r.builtIns {
		tpl := &r.builtIns[i]
		if _, dup := r.byID[tpl.ID]; dup {
			return nil, fmt.Errorf("duplicate built-in template id %q", tpl.ID)
		}
		r.byID[tpl.ID] = tpl
		if tpl.IsDefault {
			if r.def != nil {
				return nil, fmt.Errorf("built-in templates %q and %q are both marked default", r.def.ID, tpl.ID)
			}
			r.def = tpl
		}
	}
	if r.def == nil {
		return nil, errors.New("no built-in template is marked default")
	}
	return r, nil
}

// Default returns the default built-in template.
func (r *TemplateRegistry) Default() *domain.Template {
	c := *r.def
	return &c
}

// BuiltIns returns every built-in template.
func (r *TemplateRegistry) BuiltIns() []domain.Template {
	return append([]domain.Template(nil), r.builtIns...)
}

// Get returns a template by id regardless of its active flag.
func (r *TemplateRegistry) Get(ctx context.Context, id string) (*domain.Template, error) {
	if tpl, ok := r.byID[id]; ok {
		c := *tpl
		return &c, nil
	}
	tpl, err := r.store.GetTemplate(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.ErrTemplateNotFoundf(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get template %s: %w", id, err)
	}
	return tpl, nil
}

// GetDeployable returns a template by id, rejecting inactive ones.
func (r *TemplateRegistry) GetDeployable(ctx context.Context, id string) (*domain.Template, error) {
	tpl, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tpl.IsActive {
		return nil, apperrors.ErrTemplateInactivef(tpl.ID, tpl.Version)
	}
	return tpl, nil
}

// FindByNameVersion returns the template with an exact name and version.
// Stored templates shadow built-ins with the same coordinates.
func (r *TemplateRegistry) FindByNameVersion(ctx context.Context, name, ver string) (*domain.Template, error) {
	stored, err := r.store.ListTemplates(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("list templates %s: %w", name, err)
	}
	for i := range stored {
		if version.Equal(stored[i].Version, ver) {
			return &stored[i], nil
		}
	}
	for _, tpl := range r.builtIns {
		if tpl.Name == name && version.Equal(tpl.Version, ver) {
			c := tpl
			return &c, nil
		}
	}
	return nil, apperrors.ErrTemplateNotFoundf(name + "@" + ver)
}

// LatestActiveByName returns the highest-versioned active template named name.
// Among equal versions the most recently created wins.
func (r *TemplateRegistry) LatestActiveByName(ctx context.Context, name string) (*domain.Template, error) {
	stored, err := r.store.ListTemplates(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("list templates %s: %w", name, err)
	}
	candidates := append([]domain.Template(nil), stored...)
	for _, tpl := range r.builtIns {
		if tpl.Name == name {
			candidates = append(candidates, tpl)
		}
	}

	var best *domain.Template
	for i := range candidates {
		c := &candidates[i]
		if !c.IsActive {
			continue
		}
		if best == nil {
			best = c
			continue
		}
		switch cmp := version.Compare(c.Version, best.Version); {
		case cmp > 0:
			best = c
		case cmp == 0 && c.CreatedAt.After(best.CreatedAt):
			best = c
		}
	}
	if best == nil {
		return nil, apperrors.ErrTemplateNotFoundf(name)
	}
	return best, nil
}

// List returns built-ins followed by stored templates, sorted by name then
// descending version. Inactive stored templates are included on request.
func (r *TemplateRegistry) List(ctx context.Context, includeInactive bool) ([]domain.Template, error) {
	stored, err := r.store.ListTemplates(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	out := r.BuiltIns()
	for _, tpl := range stored {
		if tpl.IsActive || includeInactive {
			out = append(out, tpl)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return version.Compare(out[i].Version, out[j].Version) > 0
	})
	return out, nil
}

// Compare builds the advisory migration report between two templates.
func (r *TemplateRegistry) Compare(ctx context.Context, fromID, toID string) (*domain.MigrationReport, error) {
	from, err := r.Get(ctx, fromID)
	if err != nil {
		return nil, err
	}
	to, err := r.Get(ctx, toID)
	if err != nil {
		return nil, err
	}
	return BuildMigrationReport(from, to), nil
}
