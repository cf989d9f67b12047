package storage

import (
	"context"
	"testing"

	"github.com/hatchflow/provisioning/internal/app/domain/activation"
	"github.com/hatchflow/provisioning/internal/app/domain/integration"
	"github.com/hatchflow/provisioning/internal/app/domain/provisioning"
)

func TestMemoryActivationLifecycle(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	req, err := store.CreateActivationRequest(ctx, activation.Request{
		TenantID:     "tenant-1",
		AutomationID: "auto-1",
	})
	if err != nil {
		t.Fatalf("CreateActivationRequest: %v", err)
	}
	if req.ID == "" || req.Status != activation.StatusPending {
		t.Fatalf("request = %+v", req)
	}

	if err := store.UpdateActivationStatus(ctx, req.ID, activation.StatusLive); err != nil {
		t.Fatalf("UpdateActivationStatus: %v", err)
	}
	got, err := store.GetActivationRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetActivationRequest: %v", err)
	}
	if got.Status != activation.StatusLive {
		t.Fatalf("status = %s", got.Status)
	}
	if !got.UpdatedAt.After(req.UpdatedAt) && !got.UpdatedAt.Equal(req.UpdatedAt) {
		t.Fatalf("updated_at went backwards: %v -> %v", req.UpdatedAt, got.UpdatedAt)
	}

	if err := store.UpdateActivationStatus(ctx, "missing", activation.StatusLive); err != ErrNotFound {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestMemoryClaimMapping(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	first, claimed, err := store.ClaimMapping(ctx, provisioning.Mapping{
		TenantID:            "tenant-1",
		ActivationRequestID: "act-1",
		AutomationID:        "auto-1",
	})
	if err != nil {
		t.Fatalf("ClaimMapping: %v", err)
	}
	if !claimed || first.ID == "" || first.Status != provisioning.MappingProvisioning {
		t.Fatalf("first claim = %+v claimed=%v", first, claimed)
	}

	second, claimed, err := store.ClaimMapping(ctx, provisioning.Mapping{
		TenantID:            "tenant-1",
		ActivationRequestID: "act-1",
	})
	if err != nil {
		t.Fatalf("second ClaimMapping: %v", err)
	}
	if claimed || second.ID != first.ID {
		t.Fatalf("second claim = %+v claimed=%v", second, claimed)
	}

	// a different activation request gets its own row
	_, claimed, err = store.ClaimMapping(ctx, provisioning.Mapping{
		TenantID:            "tenant-1",
		ActivationRequestID: "act-2",
	})
	if err != nil || !claimed {
		t.Fatalf("claim for act-2: %v claimed=%v", err, claimed)
	}
}

func TestMemoryMappingUpdatesAreIsolated(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	m, _, err := store.ClaimMapping(ctx, provisioning.Mapping{
		TenantID:            "tenant-1",
		ActivationRequestID: "act-1",
	})
	if err != nil {
		t.Fatalf("ClaimMapping: %v", err)
	}

	m.EngineWorkflowIDs = []string{"wf-1"}
	if _, err := store.UpdateMapping(ctx, m); err != nil {
		t.Fatalf("UpdateMapping: %v", err)
	}

	got, err := store.GetMapping(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMapping: %v", err)
	}
	// mutating the returned slice must not leak into the store
	got.EngineWorkflowIDs[0] = "mutated"
	again, _ := store.GetMapping(ctx, m.ID)
	if again.EngineWorkflowIDs[0] != "wf-1" {
		t.Fatalf("store row mutated: %v", again.EngineWorkflowIDs)
	}
}

func TestMemoryConnectionsScopedToTenant(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	for _, tenant := range []string{"tenant-1", "tenant-2"} {
		if _, err := store.CreateConnection(ctx, integration.Connection{
			TenantID:   tenant,
			Provider:   "slack",
			Status:     integration.StatusConnected,
			Ciphertext: "ct",
			IV:         "iv",
			AuthTag:    "tag",
		}); err != nil {
			t.Fatalf("CreateConnection: %v", err)
		}
	}

	conns, err := store.ListConnections(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("ListConnections: %v", err)
	}
	if len(conns) != 1 || conns[0].TenantID != "tenant-1" {
		t.Fatalf("connections = %+v", conns)
	}

	if _, err := store.GetConnection(ctx, "tenant-2", "hubspot"); err != ErrNotFound {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}
