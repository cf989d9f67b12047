package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPNotifierPostsEvent(t *testing.T) {
	var got Event
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n, err := NewHTTPNotifier(srv.URL, "secret", nil)
	if err != nil {
		t.Fatalf("NewHTTPNotifier: %v", err)
	}

	event := Event{
		Type:                EventActivated,
		ActivationRequestID: "act-1",
		TenantID:            "tenant-1",
		WorkflowID:          "wf-1",
	}
	if err := n.Notify(context.Background(), event); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if got.Type != EventActivated || got.ActivationRequestID != "act-1" {
		t.Fatalf("delivered event = %+v", got)
	}
	if got.OccurredAt.IsZero() {
		t.Fatal("occurred_at not stamped")
	}
	if auth != "Bearer secret" {
		t.Fatalf("authorization header = %q", auth)
	}
}

func TestHTTPNotifierReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n, err := NewHTTPNotifier(srv.URL, "", nil)
	if err != nil {
		t.Fatalf("NewHTTPNotifier: %v", err)
	}
	if err := n.Notify(context.Background(), Event{Type: EventProvisioningFailed}); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestNewHTTPNotifierRejectsBadEndpoint(t *testing.T) {
	if _, err := NewHTTPNotifier("not a url", "", nil); err == nil {
		t.Fatal("expected error")
	}
}
