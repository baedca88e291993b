package domain

// PlanStatus is the state of one tenant inside a bulk plan.
type PlanStatus string

const (
	PlanStatusPending  PlanStatus = "pending"
	PlanStatusSkipped  PlanStatus = "skipped"
	PlanStatusUpgraded PlanStatus = "upgraded"
	PlanStatusFailed   PlanStatus = "failed"
)

// Skip reasons reported to operators.
const (
	ReasonAlreadyOnTarget = "already on target version"
	ReasonNoResource      = "no resource deployed"
	ReasonCancelled       = "cancelled before execution"
)

// UpgradePlanEntry is the planner's decision for one tenant. Never persisted.
type UpgradePlanEntry struct {
	AccountID      string     `json:"account_id"`
	CurrentVersion string     `json:"current_version"`
	TargetVersion  string     `json:"target_version"`
	Status         PlanStatus `json:"status"`
	Reason         string     `json:"reason,omitempty"`
	ErrorCode      string     `json:"error_code,omitempty"`
	TransitionID   string     `json:"transition_id,omitempty"`
}

// PlanFilter selects candidate tenants.
type PlanFilter struct {
	AccountIDs  []string `json:"account_ids,omitempty"`
	FromVersion string   `json:"from_version,omitempty"`
}

// PlanSummary counts entries per status.
type PlanSummary struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Skipped  int `json:"skipped"`
	Upgraded int `json:"upgraded"`
	Failed   int `json:"failed"`
}

// Plan is the planner output, with or without execution.
type Plan struct {
	TargetTemplateID string             `json:"target_template_id"`
	TargetVersion    string             `json:"target_version"`
	TargetName       string             `json:"target_name"`
	DryRun           bool               `json:"dry_run"`
	Force            bool               `json:"force"`
	Entries          []UpgradePlanEntry `json:"entries"`
	Report           *MigrationReport   `json:"report"`
}

// Summary counts entries per status.
func (p *Plan) Summary() PlanSummary {
	s := PlanSummary{Total: len(p.Entries)}
	for _, e := range p.Entries {
		switch e.Status {
		case PlanStatusPending:
			s.Pending++
		case PlanStatusSkipped:
			s.Skipped++
		case PlanStatusUpgraded:
			s.Upgraded++
		case PlanStatusFailed:
			s.Failed++
		}
	}
	return s
}
