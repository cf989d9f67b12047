package database

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/hatchflow/provisioning/internal/app/domain/activation"
	"github.com/hatchflow/provisioning/internal/app/domain/catalog"
	"github.com/hatchflow/provisioning/internal/app/domain/integration"
	"github.com/hatchflow/provisioning/internal/app/domain/provisioning"
	"github.com/hatchflow/provisioning/internal/app/domain/template"
	"github.com/hatchflow/provisioning/internal/app/storage"
)

const (
	tableActivations  = "activation_requests"
	tableAutomations  = "automations"
	tableTemplates    = "workflow_templates"
	tableIntegrations = "integration_connections"
	tableMappings     = "workflow_instance_mappings"

	preferRepresentation = "return=representation"
	// ignore-duplicates turns a unique-key conflict into an empty result
	// instead of an error, which is what ClaimMapping needs. PostgREST
	// resolves against the primary key unless on_conflict names the
	// constraint columns, so the claim insert must target the tenant and
	// activation request unique key explicitly.
	preferClaim       = "resolution=ignore-duplicates,return=representation"
	claimConflictKeys = "on_conflict=tenant_id,activation_request_id"
)

// Repository implements the storage interfaces over a Supabase project. The
// domain structs' JSON tags line up with the table columns, so rows travel
// as the domain types directly.
type Repository struct {
	client *Client
}

var _ storage.ActivationStore = (*Repository)(nil)
var _ storage.CatalogStore = (*Repository)(nil)
var _ storage.TemplateStore = (*Repository)(nil)
var _ storage.IntegrationStore = (*Repository)(nil)
var _ storage.MappingStore = (*Repository)(nil)

// NewRepository wraps a Supabase client.
func NewRepository(client *Client) *Repository {
	return &Repository{client: client}
}

func eq(column, value string) string {
	return column + "=eq." + url.QueryEscape(value)
}

// firstOrNotFound maps PostgREST's empty-array answer to ErrNotFound.
func firstOrNotFound[T any](rows []T) (T, error) {
	if len(rows) == 0 {
		var zero T
		return zero, storage.ErrNotFound
	}
	return rows[0], nil
}

// --- ActivationStore ---------------------------------------------------------

func (r *Repository) CreateActivationRequest(ctx context.Context, req activation.Request) (activation.Request, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = activation.StatusPending
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	var rows []activation.Request
	if err := r.client.request(ctx, http.MethodPost, tableActivations, "", preferRepresentation, req, &rows); err != nil {
		return activation.Request{}, err
	}
	return firstOrNotFound(rows)
}

func (r *Repository) GetActivationRequest(ctx context.Context, id string) (activation.Request, error) {
	var rows []activation.Request
	if err := r.client.request(ctx, http.MethodGet, tableActivations, eq("id", id), "", nil, &rows); err != nil {
		return activation.Request{}, err
	}
	return firstOrNotFound(rows)
}

func (r *Repository) UpdateActivationStatus(ctx context.Context, id string, status activation.Status) error {
	patch := map[string]interface{}{
		"status":     string(status),
		"updated_at": time.Now().UTC(),
	}
	var rows []activation.Request
	if err := r.client.request(ctx, http.MethodPatch, tableActivations, eq("id", id), preferRepresentation, patch, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *Repository) ListActivationRequests(ctx context.Context, tenantID string) ([]activation.Request, error) {
	var rows []activation.Request
	query := eq("tenant_id", tenantID) + "&order=created_at.asc"
	if err := r.client.request(ctx, http.MethodGet, tableActivations, query, "", nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// --- CatalogStore ------------------------------------------------------------

func (r *Repository) CreateAutomation(ctx context.Context, auto catalog.Automation) (catalog.Automation, error) {
	if auto.ID == "" {
		auto.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	auto.CreatedAt = now
	auto.UpdatedAt = now

	var rows []catalog.Automation
	if err := r.client.request(ctx, http.MethodPost, tableAutomations, "", preferRepresentation, auto, &rows); err != nil {
		return catalog.Automation{}, err
	}
	return firstOrNotFound(rows)
}

func (r *Repository) GetAutomation(ctx context.Context, id string) (catalog.Automation, error) {
	var rows []catalog.Automation
	if err := r.client.request(ctx, http.MethodGet, tableAutomations, eq("id", id), "", nil, &rows); err != nil {
		return catalog.Automation{}, err
	}
	return firstOrNotFound(rows)
}

func (r *Repository) ListAutomations(ctx context.Context) ([]catalog.Automation, error) {
	var rows []catalog.Automation
	if err := r.client.request(ctx, http.MethodGet, tableAutomations, "order=created_at.asc", "", nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// --- TemplateStore -----------------------------------------------------------

func (r *Repository) CreateTemplate(ctx context.Context, wf template.Workflow) (template.Workflow, error) {
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	wf.CreatedAt = time.Now().UTC()

	var rows []template.Workflow
	if err := r.client.request(ctx, http.MethodPost, tableTemplates, "", preferRepresentation, wf, &rows); err != nil {
		return template.Workflow{}, err
	}
	return firstOrNotFound(rows)
}

func (r *Repository) GetTemplate(ctx context.Context, id string) (template.Workflow, error) {
	var rows []template.Workflow
	if err := r.client.request(ctx, http.MethodGet, tableTemplates, eq("id", id), "", nil, &rows); err != nil {
		return template.Workflow{}, err
	}
	return firstOrNotFound(rows)
}

// --- IntegrationStore --------------------------------------------------------

func (r *Repository) CreateConnection(ctx context.Context, conn integration.Connection) (integration.Connection, error) {
	if conn.ID == "" {
		conn.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	conn.CreatedAt = now
	conn.UpdatedAt = now

	var rows []integration.Connection
	if err := r.client.request(ctx, http.MethodPost, tableIntegrations, "", preferRepresentation, conn, &rows); err != nil {
		return integration.Connection{}, err
	}
	return firstOrNotFound(rows)
}

func (r *Repository) GetConnection(ctx context.Context, tenantID, provider string) (integration.Connection, error) {
	var rows []integration.Connection
	query := eq("tenant_id", tenantID) + "&" + eq("provider", provider)
	if err := r.client.request(ctx, http.MethodGet, tableIntegrations, query, "", nil, &rows); err != nil {
		return integration.Connection{}, err
	}
	return firstOrNotFound(rows)
}

func (r *Repository) ListConnections(ctx context.Context, tenantID string) ([]integration.Connection, error) {
	var rows []integration.Connection
	query := eq("tenant_id", tenantID) + "&order=created_at.asc"
	if err := r.client.request(ctx, http.MethodGet, tableIntegrations, query, "", nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// --- MappingStore ------------------------------------------------------------

// ClaimMapping inserts with ignore-duplicates: an empty representation means
// another row already holds the (tenant, activation request) key, so that
// row is fetched and returned unclaimed.
func (r *Repository) ClaimMapping(ctx context.Context, m provisioning.Mapping) (provisioning.Mapping, bool, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = provisioning.MappingProvisioning
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	var rows []provisioning.Mapping
	if err := r.client.request(ctx, http.MethodPost, tableMappings, claimConflictKeys, preferClaim, m, &rows); err != nil {
		return provisioning.Mapping{}, false, err
	}
	if len(rows) > 0 {
		return rows[0], true, nil
	}

	existing, err := r.GetMappingByActivation(ctx, m.TenantID, m.ActivationRequestID)
	if err != nil {
		return provisioning.Mapping{}, false, err
	}
	return existing, false, nil
}

func (r *Repository) UpdateMapping(ctx context.Context, m provisioning.Mapping) (provisioning.Mapping, error) {
	m.UpdatedAt = time.Now().UTC()

	patch := map[string]interface{}{
		"automation_id":      m.AutomationID,
		"status":             string(m.Status),
		"n8n_workflow_ids":   m.EngineWorkflowIDs,
		"n8n_credential_ids": m.EngineCredentialIDs,
		"error_message":      m.ErrorMessage,
		"metadata":           m.Metadata,
		"updated_at":         m.UpdatedAt,
	}
	var rows []provisioning.Mapping
	if err := r.client.request(ctx, http.MethodPatch, tableMappings, eq("id", m.ID), preferRepresentation, patch, &rows); err != nil {
		return provisioning.Mapping{}, err
	}
	return firstOrNotFound(rows)
}

func (r *Repository) GetMapping(ctx context.Context, id string) (provisioning.Mapping, error) {
	var rows []provisioning.Mapping
	if err := r.client.request(ctx, http.MethodGet, tableMappings, eq("id", id), "", nil, &rows); err != nil {
		return provisioning.Mapping{}, err
	}
	return firstOrNotFound(rows)
}

func (r *Repository) GetMappingByActivation(ctx context.Context, tenantID, activationRequestID string) (provisioning.Mapping, error) {
	var rows []provisioning.Mapping
	query := eq("tenant_id", tenantID) + "&" + eq("activation_request_id", activationRequestID)
	if err := r.client.request(ctx, http.MethodGet, tableMappings, query, "", nil, &rows); err != nil {
		return provisioning.Mapping{}, err
	}
	return firstOrNotFound(rows)
}

func (r *Repository) ListMappings(ctx context.Context, tenantID string) ([]provisioning.Mapping, error) {
	var rows []provisioning.Mapping
	query := eq("tenant_id", tenantID) + "&order=created_at.asc"
	if err := r.client.request(ctx, http.MethodGet, tableMappings, query, "", nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
