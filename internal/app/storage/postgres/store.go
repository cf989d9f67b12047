package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hatchflow/provisioning/internal/app/domain/activation"
	"github.com/hatchflow/provisioning/internal/app/domain/catalog"
	"github.com/hatchflow/provisioning/internal/app/domain/integration"
	"github.com/hatchflow/provisioning/internal/app/domain/provisioning"
	"github.com/hatchflow/provisioning/internal/app/domain/template"
	"github.com/hatchflow/provisioning/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.ActivationStore = (*Store)(nil)
var _ storage.CatalogStore = (*Store)(nil)
var _ storage.TemplateStore = (*Store)(nil)
var _ storage.IntegrationStore = (*Store)(nil)
var _ storage.MappingStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}

// --- ActivationStore ---------------------------------------------------------

func (s *Store) CreateActivationRequest(ctx context.Context, req activation.Request) (activation.Request, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = activation.StatusPending
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activation_requests (id, tenant_id, tenant_email, automation_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, req.ID, req.TenantID, req.TenantEmail, req.AutomationID, string(req.Status), req.CreatedAt, req.UpdatedAt)
	if err != nil {
		return activation.Request{}, err
	}
	return req, nil
}

func (s *Store) GetActivationRequest(ctx context.Context, id string) (activation.Request, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, tenant_email, automation_id, status, created_at, updated_at
		FROM activation_requests
		WHERE id = $1
	`, id)

	var req activation.Request
	var status string
	if err := row.Scan(&req.ID, &req.TenantID, &req.TenantEmail, &req.AutomationID, &status, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return activation.Request{}, mapNoRows(err)
	}
	req.Status = activation.Status(status)
	return req, nil
}

func (s *Store) UpdateActivationStatus(ctx context.Context, id string, status activation.Status) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE activation_requests
		SET status = $2, updated_at = $3
		WHERE id = $1
	`, id, string(status), time.Now().UTC())
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ListActivationRequests(ctx context.Context, tenantID string) ([]activation.Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, tenant_email, automation_id, status, created_at, updated_at
		FROM activation_requests
		WHERE tenant_id = $1
		ORDER BY created_at
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []activation.Request
	for rows.Next() {
		var req activation.Request
		var status string
		if err := rows.Scan(&req.ID, &req.TenantID, &req.TenantEmail, &req.AutomationID, &status, &req.CreatedAt, &req.UpdatedAt); err != nil {
			return nil, err
		}
		req.Status = activation.Status(status)
		result = append(result, req)
	}
	return result, rows.Err()
}

// --- CatalogStore ------------------------------------------------------------

func (s *Store) CreateAutomation(ctx context.Context, auto catalog.Automation) (catalog.Automation, error) {
	if auto.ID == "" {
		auto.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	auto.CreatedAt = now
	auto.UpdatedAt = now

	templatesJSON, err := json.Marshal(auto.TemplateIDs)
	if err != nil {
		return catalog.Automation{}, err
	}
	requiredJSON, err := json.Marshal(auto.RequiredIntegrations)
	if err != nil {
		return catalog.Automation{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO automations (id, name, description, template_ids, required_integrations, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, auto.ID, auto.Name, auto.Description, templatesJSON, requiredJSON, auto.Active, auto.CreatedAt, auto.UpdatedAt)
	if err != nil {
		return catalog.Automation{}, err
	}
	return auto, nil
}

func (s *Store) GetAutomation(ctx context.Context, id string) (catalog.Automation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, template_ids, required_integrations, active, created_at, updated_at
		FROM automations
		WHERE id = $1
	`, id)
	return scanAutomation(row)
}

func (s *Store) ListAutomations(ctx context.Context) ([]catalog.Automation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, template_ids, required_integrations, active, created_at, updated_at
		FROM automations
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []catalog.Automation
	for rows.Next() {
		auto, err := scanAutomation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, auto)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAutomation(row rowScanner) (catalog.Automation, error) {
	var (
		auto         catalog.Automation
		templatesRaw []byte
		requiredRaw  []byte
	)
	if err := row.Scan(&auto.ID, &auto.Name, &auto.Description, &templatesRaw, &requiredRaw, &auto.Active, &auto.CreatedAt, &auto.UpdatedAt); err != nil {
		return catalog.Automation{}, mapNoRows(err)
	}
	if len(templatesRaw) > 0 {
		_ = json.Unmarshal(templatesRaw, &auto.TemplateIDs)
	}
	if len(requiredRaw) > 0 {
		_ = json.Unmarshal(requiredRaw, &auto.RequiredIntegrations)
	}
	return auto, nil
}

// --- TemplateStore -----------------------------------------------------------

func (s *Store) CreateTemplate(ctx context.Context, wf template.Workflow) (template.Workflow, error) {
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	wf.CreatedAt = time.Now().UTC()

	nodesJSON, err := json.Marshal(wf.Nodes)
	if err != nil {
		return template.Workflow{}, err
	}
	connectionsJSON, err := json.Marshal(wf.Connections)
	if err != nil {
		return template.Workflow{}, err
	}
	settingsJSON, err := json.Marshal(wf.Settings)
	if err != nil {
		return template.Workflow{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_templates (id, name, nodes, connections, settings, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, wf.ID, wf.Name, nodesJSON, connectionsJSON, settingsJSON, wf.CreatedAt)
	if err != nil {
		return template.Workflow{}, err
	}
	return wf, nil
}

func (s *Store) GetTemplate(ctx context.Context, id string) (template.Workflow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, nodes, connections, settings, created_at
		FROM workflow_templates
		WHERE id = $1
	`, id)

	var (
		wf             template.Workflow
		nodesRaw       []byte
		connectionsRaw []byte
		settingsRaw    []byte
	)
	if err := row.Scan(&wf.ID, &wf.Name, &nodesRaw, &connectionsRaw, &settingsRaw, &wf.CreatedAt); err != nil {
		return template.Workflow{}, mapNoRows(err)
	}
	if len(nodesRaw) > 0 {
		if err := json.Unmarshal(nodesRaw, &wf.Nodes); err != nil {
			return template.Workflow{}, err
		}
	}
	if len(connectionsRaw) > 0 {
		_ = json.Unmarshal(connectionsRaw, &wf.Connections)
	}
	if len(settingsRaw) > 0 {
		_ = json.Unmarshal(settingsRaw, &wf.Settings)
	}
	return wf, nil
}

// --- IntegrationStore --------------------------------------------------------

func (s *Store) CreateConnection(ctx context.Context, conn integration.Connection) (integration.Connection, error) {
	if conn.ID == "" {
		conn.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	conn.CreatedAt = now
	conn.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO integration_connections (id, tenant_id, provider, status, ciphertext, iv, auth_tag, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, conn.ID, conn.TenantID, conn.Provider, conn.Status, conn.Ciphertext, conn.IV, conn.AuthTag, conn.CreatedAt, conn.UpdatedAt)
	if err != nil {
		return integration.Connection{}, err
	}
	return conn, nil
}

func (s *Store) GetConnection(ctx context.Context, tenantID, provider string) (integration.Connection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, provider, status, ciphertext, iv, auth_tag, created_at, updated_at
		FROM integration_connections
		WHERE tenant_id = $1 AND provider = $2
	`, tenantID, provider)

	var conn integration.Connection
	if err := row.Scan(&conn.ID, &conn.TenantID, &conn.Provider, &conn.Status, &conn.Ciphertext, &conn.IV, &conn.AuthTag, &conn.CreatedAt, &conn.UpdatedAt); err != nil {
		return integration.Connection{}, mapNoRows(err)
	}
	return conn, nil
}

func (s *Store) ListConnections(ctx context.Context, tenantID string) ([]integration.Connection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, provider, status, ciphertext, iv, auth_tag, created_at, updated_at
		FROM integration_connections
		WHERE tenant_id = $1
		ORDER BY created_at
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []integration.Connection
	for rows.Next() {
		var conn integration.Connection
		if err := rows.Scan(&conn.ID, &conn.TenantID, &conn.Provider, &conn.Status, &conn.Ciphertext, &conn.IV, &conn.AuthTag, &conn.CreatedAt, &conn.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, conn)
	}
	return result, rows.Err()
}

// --- MappingStore ------------------------------------------------------------

// ClaimMapping relies on the unique index on (tenant_id, activation_request_id):
// the INSERT either claims the key or does nothing, and the follow-up read
// returns whichever row won.
func (s *Store) ClaimMapping(ctx context.Context, m provisioning.Mapping) (provisioning.Mapping, bool, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = provisioning.MappingProvisioning
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	workflowsJSON, credentialsJSON, metadataJSON, err := marshalMappingColumns(m)
	if err != nil {
		return provisioning.Mapping{}, false, err
	}

	var insertedID string
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO workflow_instance_mappings
			(id, tenant_id, activation_request_id, automation_id, status,
			 n8n_workflow_ids, n8n_credential_ids, error_message, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tenant_id, activation_request_id) DO NOTHING
		RETURNING id
	`, m.ID, m.TenantID, m.ActivationRequestID, m.AutomationID, string(m.Status),
		workflowsJSON, credentialsJSON, m.ErrorMessage, metadataJSON, m.CreatedAt, m.UpdatedAt).Scan(&insertedID)

	if err == nil {
		return m, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return provisioning.Mapping{}, false, err
	}

	existing, err := s.GetMappingByActivation(ctx, m.TenantID, m.ActivationRequestID)
	if err != nil {
		return provisioning.Mapping{}, false, err
	}
	return existing, false, nil
}

func (s *Store) UpdateMapping(ctx context.Context, m provisioning.Mapping) (provisioning.Mapping, error) {
	m.UpdatedAt = time.Now().UTC()

	workflowsJSON, credentialsJSON, metadataJSON, err := marshalMappingColumns(m)
	if err != nil {
		return provisioning.Mapping{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE workflow_instance_mappings
		SET automation_id = $2, status = $3, n8n_workflow_ids = $4,
		    n8n_credential_ids = $5, error_message = $6, metadata = $7, updated_at = $8
		WHERE id = $1
	`, m.ID, m.AutomationID, string(m.Status), workflowsJSON, credentialsJSON, m.ErrorMessage, metadataJSON, m.UpdatedAt)
	if err != nil {
		return provisioning.Mapping{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return provisioning.Mapping{}, storage.ErrNotFound
	}
	return m, nil
}

func (s *Store) GetMapping(ctx context.Context, id string) (provisioning.Mapping, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, activation_request_id, automation_id, status,
		       n8n_workflow_ids, n8n_credential_ids, error_message, metadata, created_at, updated_at
		FROM workflow_instance_mappings
		WHERE id = $1
	`, id)
	return scanMapping(row)
}

func (s *Store) GetMappingByActivation(ctx context.Context, tenantID, activationRequestID string) (provisioning.Mapping, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, activation_request_id, automation_id, status,
		       n8n_workflow_ids, n8n_credential_ids, error_message, metadata, created_at, updated_at
		FROM workflow_instance_mappings
		WHERE tenant_id = $1 AND activation_request_id = $2
	`, tenantID, activationRequestID)
	return scanMapping(row)
}

func (s *Store) ListMappings(ctx context.Context, tenantID string) ([]provisioning.Mapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, activation_request_id, automation_id, status,
		       n8n_workflow_ids, n8n_credential_ids, error_message, metadata, created_at, updated_at
		FROM workflow_instance_mappings
		WHERE tenant_id = $1
		ORDER BY created_at
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []provisioning.Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func marshalMappingColumns(m provisioning.Mapping) ([]byte, []byte, []byte, error) {
	workflowsJSON, err := json.Marshal(m.EngineWorkflowIDs)
	if err != nil {
		return nil, nil, nil, err
	}
	credentialsJSON, err := json.Marshal(m.EngineCredentialIDs)
	if err != nil {
		return nil, nil, nil, err
	}
	metadataJSON, err := json.Marshal(m.Metadata)
	if err != nil {
		return nil, nil, nil, err
	}
	return workflowsJSON, credentialsJSON, metadataJSON, nil
}

func scanMapping(row rowScanner) (provisioning.Mapping, error) {
	var (
		m              provisioning.Mapping
		status         string
		workflowsRaw   []byte
		credentialsRaw []byte
		metadataRaw    []byte
	)
	if err := row.Scan(&m.ID, &m.TenantID, &m.ActivationRequestID, &m.AutomationID, &status,
		&workflowsRaw, &credentialsRaw, &m.ErrorMessage, &metadataRaw, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return provisioning.Mapping{}, mapNoRows(err)
	}
	m.Status = provisioning.MappingStatus(status)
	if len(workflowsRaw) > 0 {
		_ = json.Unmarshal(workflowsRaw, &m.EngineWorkflowIDs)
	}
	if len(credentialsRaw) > 0 {
		_ = json.Unmarshal(credentialsRaw, &m.EngineCredentialIDs)
	}
	if len(metadataRaw) > 0 {
		_ = json.Unmarshal(metadataRaw, &m.Metadata)
	}
	return m, nil
}
