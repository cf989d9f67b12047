package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hatchflow/provisioning/internal/app/domain/template"
	"github.com/hatchflow/provisioning/internal/errors"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(Config{BaseURL: srv.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client, srv
}

func TestNewNormalizesBaseURL(t *testing.T) {
	client, err := New(Config{BaseURL: "https://engine.example.com/some/path/", APIKey: "k"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := client.Origin(); got != "https://engine.example.com" {
		t.Fatalf("origin = %q, want bare origin", got)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cases := []Config{
		{BaseURL: "", APIKey: "k"},
		{BaseURL: "://bad", APIKey: "k"},
		{BaseURL: "ftp://engine.example.com", APIKey: "k"},
		{BaseURL: "https://engine.example.com", APIKey: ""},
	}
	for _, cfg := range cases {
		if _, err := New(cfg); err == nil {
			t.Fatalf("New(%+v) accepted invalid config", cfg)
		}
	}
}

func TestCreateWorkflowSanitizesNodes(t *testing.T) {
	var captured struct {
		Name  string `json:"name"`
		Nodes []struct {
			ID          string                          `json:"id"`
			Name        string                          `json:"name"`
			Credentials map[string]template.CredentialRef `json:"credentials"`
		} `json:"nodes"`
	}

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/workflows" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("X-N8N-API-KEY"); got != "test-key" {
			t.Fatalf("api key header = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "wf-123"})
	}))

	def := template.Workflow{
		Name: "Lead Sync",
		Nodes: []template.Node{
			{
				ID:   "orig-node-id",
				Name: "HubSpot",
				Type: "n8n-nodes-base.hubspot",
				Credentials: map[string]template.CredentialRef{
					"hubspotOAuth2Api": {ID: "stale-cred", Name: "old"},
				},
			},
		},
	}

	id, err := client.CreateWorkflow(context.Background(), def, "Acme", "3f2a9c71-aaaa-bbbb-cccc-000000000000")
	if err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}
	if id != "wf-123" {
		t.Fatalf("workflow id = %q", id)
	}
	if captured.Name != "Lead Sync - Acme (3f2a9c71)" {
		t.Fatalf("workflow name = %q", captured.Name)
	}
	if len(captured.Nodes) != 1 {
		t.Fatalf("node count = %d", len(captured.Nodes))
	}
	if captured.Nodes[0].ID != "" {
		t.Fatalf("node id not stripped: %q", captured.Nodes[0].ID)
	}
	if captured.Nodes[0].Credentials != nil {
		t.Fatalf("node credentials not stripped: %v", captured.Nodes[0].Credentials)
	}
	// the template itself must be untouched
	if def.Nodes[0].ID != "orig-node-id" || def.Nodes[0].Credentials == nil {
		t.Fatal("template nodes mutated")
	}
}

func TestCreateCredential(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/credentials" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["type"] != "slackOAuth2Api" {
			t.Fatalf("credential type = %v", body["type"])
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]string{"id": "cred-9"},
		})
	}))

	id, err := client.CreateCredential(context.Background(), "slackOAuth2Api", "Slack - Acme", map[string]interface{}{"accessToken": "x"})
	if err != nil {
		t.Fatalf("CreateCredential: %v", err)
	}
	if id != "cred-9" {
		t.Fatalf("credential id = %q", id)
	}
}

func TestActivateWorkflow(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/workflows/wf-1/activate" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]bool{"active": true})
	}))

	active, err := client.ActivateWorkflow(context.Background(), "wf-1")
	if err != nil {
		t.Fatalf("ActivateWorkflow: %v", err)
	}
	if !active {
		t.Fatal("expected active")
	}
}

func TestEngineErrorStatusAndBody(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"workflow has no trigger"}`, http.StatusBadRequest)
	}))

	_, err := client.ActivateWorkflow(context.Background(), "wf-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.IsCode(err, errors.CodeEngineAPI) {
		t.Fatalf("error code: %v", err)
	}
	se := errors.GetServiceError(err)
	if se.Details["status"] != 400 {
		t.Fatalf("error details = %v", se.Details)
	}
}

func TestWebhookURL(t *testing.T) {
	client, err := New(Config{BaseURL: "https://engine.example.com", APIKey: "k"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	wf := template.Workflow{Nodes: []template.Node{
		{Type: "n8n-nodes-base.slack"},
		{Type: "n8n-nodes-base.webhook", Parameters: map[string]interface{}{"path": "/lead-intake/"}},
	}}
	if got := client.WebhookURL(wf); got != "https://engine.example.com/webhook/lead-intake" {
		t.Fatalf("webhook url = %q", got)
	}

	if got := client.WebhookURL(template.Workflow{}); got != "" {
		t.Fatalf("webhook url for empty workflow = %q", got)
	}
}
