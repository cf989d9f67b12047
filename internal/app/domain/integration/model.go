package integration

import (
	"strings"
	"time"
)

// StatusConnected marks a credential record usable for provisioning.
const StatusConnected = "connected"

// Connection is one tenant's encrypted credential for one external provider.
// Written by the connect flow; read-only here. Ciphertext, IV and AuthTag are
// base64 encoded; the AES-256-GCM key lives in deployment configuration.
type Connection struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	Provider   string    `json:"provider"`
	Status     string    `json:"status"`
	Ciphertext string    `json:"ciphertext"`
	IV         string    `json:"iv"`
	AuthTag    string    `json:"auth_tag"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Connected reports whether the record can be used for provisioning.
func (c Connection) Connected() bool {
	return strings.EqualFold(c.Status, StatusConnected)
}
