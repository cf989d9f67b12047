package catalog

import "time"

// Automation is a catalog offering: the templates it instantiates and the
// provider integrations a tenant must connect before provisioning. Read-only
// to the provisioning core.
type Automation struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// TemplateIDs lists the workflow templates this offering instantiates.
	// Provisioning uses the first entry.
	TemplateIDs []string `json:"template_ids"`
	// RequiredIntegrations holds lower-cased provider names that must be
	// connected before provisioning begins. Empty means no prerequisites.
	RequiredIntegrations []string  `json:"required_integrations"`
	Active               bool      `json:"active"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}
