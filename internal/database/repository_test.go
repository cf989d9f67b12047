package database

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hatchflow/provisioning/internal/app/domain/activation"
	"github.com/hatchflow/provisioning/internal/app/domain/provisioning"
	"github.com/hatchflow/provisioning/internal/app/storage"
)

// fakePostgREST answers table routes the way PostgREST does: JSON arrays,
// honoring the ignore-duplicates Prefer for the mapping claim.
type fakePostgREST struct {
	t        *testing.T
	mappings []provisioning.Mapping
}

func (f *fakePostgREST) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") == "" || !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		switch {
		case r.URL.Path == "/rest/v1/activation_requests" && r.Method == http.MethodPost:
			var req activation.Request
			_ = json.NewDecoder(r.Body).Decode(&req)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode([]activation.Request{req})

		case r.URL.Path == "/rest/v1/workflow_instance_mappings" && r.Method == http.MethodPost:
			var m provisioning.Mapping
			_ = json.NewDecoder(r.Body).Decode(&m)
			prefer := r.Header.Get("Prefer")
			if !strings.Contains(prefer, "ignore-duplicates") {
				f.t.Errorf("mapping insert missing ignore-duplicates Prefer: %q", prefer)
			}
			for _, existing := range f.mappings {
				if existing.TenantID == m.TenantID && existing.ActivationRequestID == m.ActivationRequestID {
					// PostgREST resolves ignore-duplicates against the primary
					// key unless on_conflict names the unique columns; without
					// it this insert surfaces the unique violation as a 409.
					if r.URL.Query().Get("on_conflict") != "tenant_id,activation_request_id" {
						w.WriteHeader(http.StatusConflict)
						_, _ = w.Write([]byte(`{"code":"23505","message":"duplicate key value violates unique constraint"}`))
						return
					}
					w.WriteHeader(http.StatusCreated)
					_, _ = w.Write([]byte("[]"))
					return
				}
			}
			f.mappings = append(f.mappings, m)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode([]provisioning.Mapping{m})

		case r.URL.Path == "/rest/v1/workflow_instance_mappings" && r.Method == http.MethodGet:
			q := r.URL.Query()
			var out []provisioning.Mapping
			for _, m := range f.mappings {
				if q.Get("tenant_id") == "eq."+m.TenantID && q.Get("activation_request_id") == "eq."+m.ActivationRequestID {
					out = append(out, m)
				}
			}
			if out == nil {
				out = []provisioning.Mapping{}
			}
			_ = json.NewEncoder(w).Encode(out)

		default:
			f.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newTestRepository(t *testing.T) (*Repository, *fakePostgREST) {
	t.Helper()
	fake := &fakePostgREST{t: t}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL, "service-key", nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return NewRepository(client), fake
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient("", "key", nil); err == nil {
		t.Fatal("accepted empty URL")
	}
	if _, err := NewClient("https://proj.supabase.co", "", nil); err == nil {
		t.Fatal("accepted empty service key")
	}
}

func TestCreateActivationRequestAssignsDefaults(t *testing.T) {
	repo, _ := newTestRepository(t)

	req, err := repo.CreateActivationRequest(context.Background(), activation.Request{
		TenantID:     "tenant-1",
		AutomationID: "auto-1",
	})
	if err != nil {
		t.Fatalf("CreateActivationRequest: %v", err)
	}
	if req.ID == "" || req.Status != activation.StatusPending || req.CreatedAt.IsZero() {
		t.Fatalf("request = %+v", req)
	}
}

func TestClaimMappingConflictReturnsExisting(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	first, claimed, err := repo.ClaimMapping(ctx, provisioning.Mapping{
		TenantID:            "tenant-1",
		ActivationRequestID: "act-1",
		AutomationID:        "auto-1",
	})
	if err != nil {
		t.Fatalf("first ClaimMapping: %v", err)
	}
	if !claimed {
		t.Fatal("first claim not granted")
	}

	second, claimed, err := repo.ClaimMapping(ctx, provisioning.Mapping{
		TenantID:            "tenant-1",
		ActivationRequestID: "act-1",
		AutomationID:        "auto-1",
	})
	if err != nil {
		t.Fatalf("second ClaimMapping: %v", err)
	}
	if claimed {
		t.Fatal("second claim granted for same activation")
	}
	if second.ID != first.ID {
		t.Fatalf("second claim returned %q, want existing %q", second.ID, first.ID)
	}
}

func TestGetMappingByActivationNotFound(t *testing.T) {
	repo, _ := newTestRepository(t)

	_, err := repo.GetMappingByActivation(context.Background(), "tenant-1", "missing")
	if err != storage.ErrNotFound {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}
