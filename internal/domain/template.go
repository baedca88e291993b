// Package domain provides the domain model for SquadKeeper.
//
// Provider and repository methods return these types, never wire or row
// types.
package domain

import (
	"encoding/json"
	"time"
)

// BuiltInIDPrefix marks template ids that are compiled into the service.
const BuiltInIDPrefix = "builtin:"

// Template is an immutable, versioned squad configuration bundle.
// A change produces a new version; existing rows are never edited.
type Template struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Version     string `json:"version" yaml:"version"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	Category    string `json:"category" yaml:"category"`
	IsActive    bool   `json:"is_active" yaml:"is_active"`
	IsDefault   bool   `json:"is_default" yaml:"is_default"`
	BuiltIn     bool   `json:"built_in" yaml:"-"`
	// MemberConfigs describes the squad members to provision. Opaque to
	// everything except the payload builder and the migration report.
	MemberConfigs json.RawMessage `json:"member_configs,omitempty" yaml:"-"`
	CreatedAt     time.Time       `json:"created_at" yaml:"-"`
}

// Ref returns a short "name@version" label for logs.
func (t *Template) Ref() string {
	if t == nil {
		return ""
	}
	return t.Name + "@" + t.Version
}

// TemplateID returns a pointer suitable for Deployment.CurrentTemplateID.
// Built-ins return nil: a deployment on a built-in has no stored template.
func (t *Template) TemplateID() *string {
	if t == nil || t.BuiltIn {
		return nil
	}
	id := t.ID
	return &id
}

// MemberConfig is the subset of a squad member the migration report reads.
type MemberConfig struct {
	Name         string                 `json:"name"`
	Role         string                 `json:"role,omitempty"`
	Capabilities []string               `json:"capabilities,omitempty"`
	Behavior     map[string]interface{} `json:"behavior,omitempty"`
}

// FlagChange is one behavior flag that differs between two templates.
type FlagChange struct {
	Key  string      `json:"key"`
	From interface{} `json:"from"`
	To   interface{} `json:"to"`
}

// MigrationReport is an advisory diff between two templates.
type MigrationReport struct {
	FromTemplate        string       `json:"from_template"`
	ToTemplate          string       `json:"to_template"`
	AddedCapabilities   []string     `json:"added_capabilities"`
	RemovedCapabilities []string     `json:"removed_capabilities"`
	ChangedFlags        []FlagChange `json:"changed_flags"`
	HasBreakingChanges  bool         `json:"has_breaking_changes"`
}
