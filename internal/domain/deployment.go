package domain

import "time"

// Deployment is the per-tenant record of what is live.
type Deployment struct {
	AccountID string `json:"account_id"`
	// CurrentTemplateID is nil when the tenant runs the implicit built-in.
	CurrentTemplateID   *string `json:"current_template_id"`
	CurrentVersion      string  `json:"current_version"`
	CurrentTemplateName string  `json:"current_template_name"`
	// ExternalResourceID is empty when nothing has been provisioned yet.
	ExternalResourceID string `json:"external_resource_id,omitempty"`
	// DeletedResourceID is the last retired handle, kept for diagnostics.
	DeletedResourceID string `json:"deleted_resource_id,omitempty"`
	// DeleteFailed marks DeletedResourceID as possibly still alive.
	DeleteFailed bool         `json:"delete_failed"`
	History      []Transition `json:"history"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// HasResource reports whether the tenant believes it has a live resource.
func (d *Deployment) HasResource() bool {
	return d != nil && d.ExternalResourceID != ""
}

// Clone returns a deep copy so callers can stage changes without touching
// the loaded record.
func (d *Deployment) Clone() *Deployment {
	if d == nil {
		return nil
	}
	c := *d
	if d.CurrentTemplateID != nil {
		id := *d.CurrentTemplateID
		c.CurrentTemplateID = &id
	}
	c.History = append([]Transition(nil), d.History...)
	return &c
}

// Transition is one append-only ledger entry for a version change.
type Transition struct {
	ID                 string    `json:"id"`
	AccountID          string    `json:"account_id"`
	Seq                int       `json:"seq"`
	FromVersion        string    `json:"from_version"`
	FromTemplateName   string    `json:"from_template_name"`
	FromTemplateID     string    `json:"from_template_id,omitempty"`
	ToVersion          string    `json:"to_version"`
	ToTemplateName     string    `json:"to_template_name"`
	ToTemplateID       string    `json:"to_template_id,omitempty"`
	OldResourceID      string    `json:"old_resource_id,omitempty"`
	NewResourceID      string    `json:"new_resource_id"`
	OldResourceDeleted bool      `json:"old_resource_deleted"`
	Timestamp          time.Time `json:"timestamp"`
	Actor              string    `json:"actor"`
	IsRollback         bool      `json:"is_rollback"`
}
