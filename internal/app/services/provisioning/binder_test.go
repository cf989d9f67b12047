package provisioning

import (
	"testing"

	"github.com/hatchflow/provisioning/internal/app/domain/provisioning"
	"github.com/hatchflow/provisioning/internal/app/domain/template"
)

func TestBindCredentialsMatchesByNodeType(t *testing.T) {
	nodes := []template.Node{
		{Name: "Webhook", Type: "n8n-nodes-base.webhook"},
		{Name: "Slack", Type: "n8n-nodes-base.slack"},
		{Name: "HubSpot", Type: "n8n-nodes-base.hubspot"},
	}
	creds := []provisioning.EngineCredential{
		{ID: "cred-slack", Type: "slackOAuth2Api", Name: "slack - acme"},
	}

	bound, count := bindCredentials(nodes, creds)
	if count != 1 {
		t.Fatalf("bound count = %d, want 1", count)
	}
	if bound[0].Credentials != nil {
		t.Fatalf("webhook node unexpectedly got credentials: %v", bound[0].Credentials)
	}
	ref, ok := bound[1].Credentials["slackOAuth2Api"]
	if !ok || ref.ID != "cred-slack" {
		t.Fatalf("slack node credentials = %v", bound[1].Credentials)
	}
	// hubspot has no credential this run; the node passes through untouched
	if bound[2].Credentials != nil {
		t.Fatalf("hubspot node unexpectedly got credentials: %v", bound[2].Credentials)
	}
}

func TestNodeProvider(t *testing.T) {
	if got := nodeProvider("n8n-nodes-base.stripe"); got != "stripe" {
		t.Fatalf("nodeProvider(stripe node) = %q", got)
	}
	if got := nodeProvider("n8n-nodes-base.if"); got != "" {
		t.Fatalf("nodeProvider(control node) = %q, want empty", got)
	}
}
