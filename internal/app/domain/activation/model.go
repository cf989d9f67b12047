package activation

import "time"

// Status is the tenant-visible lifecycle of an activation request.
type Status string

const (
	StatusPending        Status = "pending"
	StatusProvisioning   Status = "provisioning"
	StatusLive           Status = "live"
	StatusNeedsAttention Status = "needs_attention"
)

// Request records a tenant's intent to run a specific automation. Created by
// the signup flow; only the provisioning orchestrator mutates its status.
type Request struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	TenantEmail  string    `json:"tenant_email,omitempty"`
	AutomationID string    `json:"automation_id"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
