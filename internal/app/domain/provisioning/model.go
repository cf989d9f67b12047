// Package provisioning models the durable tenant-to-workflow-instance
// mapping and the per-run outcome report.
package provisioning

import "time"

// MappingStatus is the lifecycle of a provisioning run's durable record.
type MappingStatus string

const (
	MappingProvisioning MappingStatus = "provisioning"
	MappingActive       MappingStatus = "active"
	MappingError        MappingStatus = "error"
)

// MappingMetadata carries run artefacts that are useful after the fact but
// not part of the mapping's identity.
type MappingMetadata struct {
	WebhookURL    string     `json:"webhook_url,omitempty"`
	ProvisionedAt *time.Time `json:"provisioned_at,omitempty"`
	// DegradedSteps names non-fatal steps that failed during an otherwise
	// successful run, so partial success stays distinguishable.
	DegradedSteps []string `json:"degraded_steps,omitempty"`
}

// Mapping ties one activation request to its engine-side workflow and
// credential ids. At most one mapping exists per (tenant, activation request);
// rows are updated at each major step and never deleted.
type Mapping struct {
	ID                  string          `json:"id"`
	TenantID            string          `json:"tenant_id"`
	ActivationRequestID string          `json:"activation_request_id"`
	AutomationID        string          `json:"automation_id"`
	Status              MappingStatus   `json:"status"`
	EngineWorkflowIDs   []string        `json:"n8n_workflow_ids"`
	EngineCredentialIDs []string        `json:"n8n_credential_ids"`
	ErrorMessage        string          `json:"error_message,omitempty"`
	Metadata            MappingMetadata `json:"metadata"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// EngineCredential records a credential object created inside the engine
// during one provisioning run. It lives only for the run; the mapping keeps
// the id list.
type EngineCredential struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Type     string `json:"type"`
	Name     string `json:"name"`
}

// StepOutcome is one entry in a run report.
type StepOutcome struct {
	Step     string `json:"step"`
	Provider string `json:"provider,omitempty"`
	OK       bool   `json:"ok"`
	Detail   string `json:"detail,omitempty"`
}

// RunReport accumulates per-step outcomes so degraded runs are queryable
// instead of living only in logs.
type RunReport struct {
	Steps []StepOutcome `json:"steps"`
}

// Succeed records a successful step.
func (r *RunReport) Succeed(step, provider, detail string) {
	r.Steps = append(r.Steps, StepOutcome{Step: step, Provider: provider, OK: true, Detail: detail})
}

// Fail records a degraded (non-fatal) step.
func (r *RunReport) Fail(step, provider, detail string) {
	r.Steps = append(r.Steps, StepOutcome{Step: step, Provider: provider, OK: false, Detail: detail})
}

// DegradedSteps returns the names of failed steps, provider-qualified when a
// provider was involved.
func (r *RunReport) DegradedSteps() []string {
	var out []string
	for _, s := range r.Steps {
		if s.OK {
			continue
		}
		name := s.Step
		if s.Provider != "" {
			name += ":" + s.Provider
		}
		out = append(out, name)
	}
	return out
}
