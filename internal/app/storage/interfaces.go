package storage

import (
	"context"
	"errors"

	"github.com/hatchflow/provisioning/internal/app/domain/activation"
	"github.com/hatchflow/provisioning/internal/app/domain/catalog"
	"github.com/hatchflow/provisioning/internal/app/domain/integration"
	"github.com/hatchflow/provisioning/internal/app/domain/provisioning"
	"github.com/hatchflow/provisioning/internal/app/domain/template"
)

// ErrNotFound is returned by all stores when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ActivationStore persists activation requests. Creation belongs to the
// signup flow; the orchestrator only reads and flips status.
type ActivationStore interface {
	CreateActivationRequest(ctx context.Context, req activation.Request) (activation.Request, error)
	GetActivationRequest(ctx context.Context, id string) (activation.Request, error)
	UpdateActivationStatus(ctx context.Context, id string, status activation.Status) error
	ListActivationRequests(ctx context.Context, tenantID string) ([]activation.Request, error)
}

// CatalogStore persists automation catalog entries.
type CatalogStore interface {
	CreateAutomation(ctx context.Context, auto catalog.Automation) (catalog.Automation, error)
	GetAutomation(ctx context.Context, id string) (catalog.Automation, error)
	ListAutomations(ctx context.Context) ([]catalog.Automation, error)
}

// TemplateStore persists immutable workflow templates.
type TemplateStore interface {
	CreateTemplate(ctx context.Context, wf template.Workflow) (template.Workflow, error)
	GetTemplate(ctx context.Context, id string) (template.Workflow, error)
}

// IntegrationStore persists encrypted tenant credentials.
type IntegrationStore interface {
	CreateConnection(ctx context.Context, conn integration.Connection) (integration.Connection, error)
	GetConnection(ctx context.Context, tenantID, provider string) (integration.Connection, error)
	ListConnections(ctx context.Context, tenantID string) ([]integration.Connection, error)
}

// MappingStore persists workflow instance mappings. Rows are never deleted.
type MappingStore interface {
	// ClaimMapping inserts the mapping if no row exists for its
	// (tenant, activation request) key and returns it with claimed=true.
	// When a row already exists it is returned unchanged with
	// claimed=false. The insert-or-return is a single atomic operation.
	ClaimMapping(ctx context.Context, m provisioning.Mapping) (provisioning.Mapping, bool, error)
	UpdateMapping(ctx context.Context, m provisioning.Mapping) (provisioning.Mapping, error)
	GetMapping(ctx context.Context, id string) (provisioning.Mapping, error)
	GetMappingByActivation(ctx context.Context, tenantID, activationRequestID string) (provisioning.Mapping, error)
	ListMappings(ctx context.Context, tenantID string) ([]provisioning.Mapping, error)
}
