package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hatchflow/provisioning/internal/app/domain/activation"
	"github.com/hatchflow/provisioning/internal/app/domain/catalog"
	"github.com/hatchflow/provisioning/internal/app/domain/integration"
	"github.com/hatchflow/provisioning/internal/app/domain/provisioning"
	"github.com/hatchflow/provisioning/internal/app/domain/template"
)

// Memory is a thread-safe in-memory persistence layer implementing every
// store interface in this package. It backs tests and local development.
type Memory struct {
	mu          sync.RWMutex
	nextID      int64
	activations map[string]activation.Request
	automations map[string]catalog.Automation
	templates   map[string]template.Workflow
	connections map[string]integration.Connection
	mappings    map[string]provisioning.Mapping
}

var _ ActivationStore = (*Memory)(nil)
var _ CatalogStore = (*Memory)(nil)
var _ TemplateStore = (*Memory)(nil)
var _ IntegrationStore = (*Memory)(nil)
var _ MappingStore = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		nextID:      1,
		activations: make(map[string]activation.Request),
		automations: make(map[string]catalog.Automation),
		templates:   make(map[string]template.Workflow),
		connections: make(map[string]integration.Connection),
		mappings:    make(map[string]provisioning.Mapping),
	}
}

func (m *Memory) nextIDLocked() string {
	id := m.nextID
	m.nextID++
	return fmt.Sprintf("%d", id)
}

// ActivationStore implementation ----------------------------------------------

func (m *Memory) CreateActivationRequest(_ context.Context, req activation.Request) (activation.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if req.ID == "" {
		req.ID = m.nextIDLocked()
	} else if _, exists := m.activations[req.ID]; exists {
		return activation.Request{}, fmt.Errorf("activation request %s already exists", req.ID)
	}
	if req.Status == "" {
		req.Status = activation.StatusPending
	}

	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	m.activations[req.ID] = req
	return req, nil
}

func (m *Memory) GetActivationRequest(_ context.Context, id string) (activation.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	req, ok := m.activations[id]
	if !ok {
		return activation.Request{}, ErrNotFound
	}
	return req, nil
}

func (m *Memory) UpdateActivationStatus(_ context.Context, id string, status activation.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.activations[id]
	if !ok {
		return ErrNotFound
	}
	req.Status = status
	req.UpdatedAt = time.Now().UTC()
	m.activations[id] = req
	return nil
}

func (m *Memory) ListActivationRequests(_ context.Context, tenantID string) ([]activation.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]activation.Request, 0)
	for _, req := range m.activations {
		if tenantID == "" || req.TenantID == tenantID {
			result = append(result, req)
		}
	}
	return result, nil
}

// CatalogStore implementation -------------------------------------------------

func (m *Memory) CreateAutomation(_ context.Context, auto catalog.Automation) (catalog.Automation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if auto.ID == "" {
		auto.ID = m.nextIDLocked()
	} else if _, exists := m.automations[auto.ID]; exists {
		return catalog.Automation{}, fmt.Errorf("automation %s already exists", auto.ID)
	}

	now := time.Now().UTC()
	auto.CreatedAt = now
	auto.UpdatedAt = now
	auto.TemplateIDs = append([]string(nil), auto.TemplateIDs...)
	auto.RequiredIntegrations = append([]string(nil), auto.RequiredIntegrations...)

	m.automations[auto.ID] = auto
	return cloneAutomation(auto), nil
}

func (m *Memory) GetAutomation(_ context.Context, id string) (catalog.Automation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	auto, ok := m.automations[id]
	if !ok {
		return catalog.Automation{}, ErrNotFound
	}
	return cloneAutomation(auto), nil
}

func (m *Memory) ListAutomations(_ context.Context) ([]catalog.Automation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]catalog.Automation, 0, len(m.automations))
	for _, auto := range m.automations {
		result = append(result, cloneAutomation(auto))
	}
	return result, nil
}

// TemplateStore implementation ------------------------------------------------

func (m *Memory) CreateTemplate(_ context.Context, wf template.Workflow) (template.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if wf.ID == "" {
		wf.ID = m.nextIDLocked()
	} else if _, exists := m.templates[wf.ID]; exists {
		return template.Workflow{}, fmt.Errorf("template %s already exists", wf.ID)
	}
	wf.CreatedAt = time.Now().UTC()

	m.templates[wf.ID] = wf
	return wf, nil
}

func (m *Memory) GetTemplate(_ context.Context, id string) (template.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wf, ok := m.templates[id]
	if !ok {
		return template.Workflow{}, ErrNotFound
	}
	return wf, nil
}

// IntegrationStore implementation ---------------------------------------------

func (m *Memory) CreateConnection(_ context.Context, conn integration.Connection) (integration.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conn.ID == "" {
		conn.ID = m.nextIDLocked()
	} else if _, exists := m.connections[conn.ID]; exists {
		return integration.Connection{}, fmt.Errorf("connection %s already exists", conn.ID)
	}

	now := time.Now().UTC()
	conn.CreatedAt = now
	conn.UpdatedAt = now

	m.connections[conn.ID] = conn
	return conn, nil
}

func (m *Memory) GetConnection(_ context.Context, tenantID, provider string) (integration.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, conn := range m.connections {
		if conn.TenantID == tenantID && conn.Provider == provider {
			return conn, nil
		}
	}
	return integration.Connection{}, ErrNotFound
}

func (m *Memory) ListConnections(_ context.Context, tenantID string) ([]integration.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]integration.Connection, 0)
	for _, conn := range m.connections {
		if tenantID == "" || conn.TenantID == tenantID {
			result = append(result, conn)
		}
	}
	return result, nil
}

// MappingStore implementation -------------------------------------------------

func (m *Memory) ClaimMapping(_ context.Context, mapping provisioning.Mapping) (provisioning.Mapping, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.mappings {
		if existing.TenantID == mapping.TenantID && existing.ActivationRequestID == mapping.ActivationRequestID {
			return cloneMapping(existing), false, nil
		}
	}

	if mapping.ID == "" {
		mapping.ID = m.nextIDLocked()
	}
	if mapping.Status == "" {
		mapping.Status = provisioning.MappingProvisioning
	}
	now := time.Now().UTC()
	mapping.CreatedAt = now
	mapping.UpdatedAt = now

	m.mappings[mapping.ID] = cloneMapping(mapping)
	return mapping, true, nil
}

func (m *Memory) UpdateMapping(_ context.Context, mapping provisioning.Mapping) (provisioning.Mapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	original, ok := m.mappings[mapping.ID]
	if !ok {
		return provisioning.Mapping{}, ErrNotFound
	}

	mapping.CreatedAt = original.CreatedAt
	mapping.UpdatedAt = time.Now().UTC()

	m.mappings[mapping.ID] = cloneMapping(mapping)
	return mapping, nil
}

func (m *Memory) GetMapping(_ context.Context, id string) (provisioning.Mapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mapping, ok := m.mappings[id]
	if !ok {
		return provisioning.Mapping{}, ErrNotFound
	}
	return cloneMapping(mapping), nil
}

func (m *Memory) GetMappingByActivation(_ context.Context, tenantID, activationRequestID string) (provisioning.Mapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, mapping := range m.mappings {
		if mapping.TenantID == tenantID && mapping.ActivationRequestID == activationRequestID {
			return cloneMapping(mapping), nil
		}
	}
	return provisioning.Mapping{}, ErrNotFound
}

func (m *Memory) ListMappings(_ context.Context, tenantID string) ([]provisioning.Mapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]provisioning.Mapping, 0)
	for _, mapping := range m.mappings {
		if tenantID == "" || mapping.TenantID == tenantID {
			result = append(result, cloneMapping(mapping))
		}
	}
	return result, nil
}

// Helpers ---------------------------------------------------------------------

func cloneAutomation(auto catalog.Automation) catalog.Automation {
	auto.TemplateIDs = append([]string(nil), auto.TemplateIDs...)
	auto.RequiredIntegrations = append([]string(nil), auto.RequiredIntegrations...)
	return auto
}

func cloneMapping(mapping provisioning.Mapping) provisioning.Mapping {
	mapping.EngineWorkflowIDs = append([]string(nil), mapping.EngineWorkflowIDs...)
	mapping.EngineCredentialIDs = append([]string(nil), mapping.EngineCredentialIDs...)
	mapping.Metadata.DegradedSteps = append([]string(nil), mapping.Metadata.DegradedSteps...)
	return mapping
}
