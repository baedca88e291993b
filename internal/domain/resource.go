package domain

import (
	"encoding/json"
	"time"
)

// Resource is a live squad in the external provisioning API.
type Resource struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// RuntimeContext carries tenant-specific variables for payload building.
type RuntimeContext struct {
	AccountID     string `json:"account_id" yaml:"account_id"`
	DisplayName   string `json:"display_name" yaml:"display_name"`
	ContactNumber string `json:"contact_number,omitempty" yaml:"contact_number"`
	// RoutingBindingID identifies the inbound binding (e.g. a phone number)
	// that must point at the live resource. Empty means nothing to re-point.
	RoutingBindingID string            `json:"routing_binding_id,omitempty" yaml:"routing_binding_id"`
	KnowledgeIDs     []string          `json:"knowledge_ids,omitempty" yaml:"knowledge_ids"`
	Variables        map[string]string `json:"variables,omitempty" yaml:"variables"`
}

// ProvisionPayload is sent to the provisioning API on create.
type ProvisionPayload struct {
	Name            string            `json:"name"`
	AccountID       string            `json:"account_id"`
	TemplateName    string            `json:"template_name"`
	TemplateVersion string            `json:"template_version"`
	Members         json.RawMessage   `json:"members"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// ReconcileReport lists mismatches between deployments and live resources.
type ReconcileReport struct {
	OrphanedResources   []string `json:"orphaned_resources"`
	OrphanedDeployments []string `json:"orphaned_deployments"`
	// StaleHandles lists accounts whose failed-delete handle is still live.
	StaleHandles       []string  `json:"stale_handles"`
	ScannedResources   int       `json:"scanned_resources"`
	ScannedDeployments int       `json:"scanned_deployments"`
	ScannedAt          time.Time `json:"scanned_at"`
}
