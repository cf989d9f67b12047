package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hatchflow/provisioning/internal/app/domain/activation"
	domprov "github.com/hatchflow/provisioning/internal/app/domain/provisioning"
	"github.com/hatchflow/provisioning/internal/app/services/provisioning"
	"github.com/hatchflow/provisioning/internal/app/storage"
)

var testSecret = []byte("test-jwt-secret")

type fakeProvisioner struct {
	result provisioning.Result
	err    error

	gotTenantID string
	gotEmail    string
	gotID       string
}

func (f *fakeProvisioner) Provision(_ context.Context, tenantID, tenantEmail, activationRequestID string) (provisioning.Result, error) {
	f.gotTenantID = tenantID
	f.gotEmail = tenantEmail
	f.gotID = activationRequestID
	return f.result, f.err
}

func signToken(t *testing.T, tenantID, email string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tenantClaims{
		TenantID: tenantID,
		Email:    email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newTestHandler(t *testing.T, prov Provisioner, store *storage.Memory) *Handler {
	t.Helper()
	if store == nil {
		store = storage.NewMemory()
	}
	h, err := NewHandler(Config{JWTSecret: testSecret}, prov, store, store, store, nil)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return h
}

func doRequest(h *Handler, method, path, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthIsPublic(t *testing.T) {
	h := newTestHandler(t, &fakeProvisioner{}, nil)
	rec := doRequest(h, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	h := newTestHandler(t, &fakeProvisioner{}, nil)

	rec := doRequest(h, http.MethodGet, "/api/v1/activations", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d", rec.Code)
	}

	rec = doRequest(h, http.MethodGet, "/api/v1/activations", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status with garbage token = %d", rec.Code)
	}
}

func TestProvisionEndpoint(t *testing.T) {
	prov := &fakeProvisioner{result: provisioning.Result{
		Success:    true,
		WorkflowID: "wf-1",
		WebhookURL: "https://engine.test/webhook/x",
	}}
	h := newTestHandler(t, prov, nil)

	body, _ := json.Marshal(map[string]string{"activation_request_id": "act-1"})
	token := signToken(t, "tenant-1", "ops@acme.test")
	rec := doRequest(h, http.MethodPost, "/api/v1/provision", token, body)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if prov.gotTenantID != "tenant-1" || prov.gotEmail != "ops@acme.test" || prov.gotID != "act-1" {
		t.Fatalf("provisioner called with %q %q %q", prov.gotTenantID, prov.gotEmail, prov.gotID)
	}

	var res provisioning.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !res.Success || res.WorkflowID != "wf-1" {
		t.Fatalf("response = %+v", res)
	}
}

func TestProvisionEndpointRequiresActivationID(t *testing.T) {
	h := newTestHandler(t, &fakeProvisioner{}, nil)

	token := signToken(t, "tenant-1", "")
	rec := doRequest(h, http.MethodPost, "/api/v1/provision", token, []byte(`{}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestProvisionEndpointAlreadyProvisioned(t *testing.T) {
	prov := &fakeProvisioner{result: provisioning.Result{
		Success:            true,
		AlreadyProvisioned: true,
		WorkflowID:         "wf-1",
	}}
	h := newTestHandler(t, prov, nil)

	body, _ := json.Marshal(map[string]string{"activation_request_id": "act-1"})
	rec := doRequest(h, http.MethodPost, "/api/v1/provision", signToken(t, "tenant-1", ""), body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGetActivationEnforcesTenantOwnership(t *testing.T) {
	store := storage.NewMemory()
	req, err := store.CreateActivationRequest(context.Background(), activation.Request{
		TenantID:     "tenant-1",
		AutomationID: "auto-1",
	})
	if err != nil {
		t.Fatalf("CreateActivationRequest: %v", err)
	}
	h := newTestHandler(t, &fakeProvisioner{}, store)

	rec := doRequest(h, http.MethodGet, "/api/v1/activations/"+req.ID, signToken(t, "tenant-1", ""), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner status = %d", rec.Code)
	}

	rec = doRequest(h, http.MethodGet, "/api/v1/activations/"+req.ID, signToken(t, "tenant-2", ""), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign tenant status = %d", rec.Code)
	}
}

func TestGetMappingByActivation(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()
	mapping, claimed, err := store.ClaimMapping(ctx, domprov.Mapping{
		TenantID:            "tenant-1",
		ActivationRequestID: "act-1",
		AutomationID:        "auto-1",
		Status:              domprov.MappingActive,
		EngineWorkflowIDs:   []string{"wf-1"},
	})
	if err != nil || !claimed {
		t.Fatalf("ClaimMapping: %v claimed=%v", err, claimed)
	}
	h := newTestHandler(t, &fakeProvisioner{}, store)

	rec := doRequest(h, http.MethodGet, "/api/v1/activations/act-1/mapping", signToken(t, "tenant-1", ""), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var got domprov.Mapping
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode mapping: %v", err)
	}
	if got.ID != mapping.ID || got.Status != domprov.MappingActive {
		t.Fatalf("mapping = %+v", got)
	}

	rec = doRequest(h, http.MethodGet, "/api/v1/activations/missing/mapping", signToken(t, "tenant-1", ""), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing mapping status = %d", rec.Code)
	}
}

func TestAuditRecordsProvisionCalls(t *testing.T) {
	h := newTestHandler(t, &fakeProvisioner{result: provisioning.Result{Success: true}}, nil)
	token := signToken(t, "tenant-1", "")

	body, _ := json.Marshal(map[string]string{"activation_request_id": "act-1"})
	doRequest(h, http.MethodPost, "/api/v1/provision", token, body)

	rec := doRequest(h, http.MethodGet, "/api/v1/audit?limit=10", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var payload struct {
		Entries []auditEntry `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode audit: %v", err)
	}
	if len(payload.Entries) != 1 || payload.Entries[0].Action != "provision" || payload.Entries[0].Outcome != "success" {
		t.Fatalf("entries = %+v", payload.Entries)
	}
}
