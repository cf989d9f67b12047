package provisioning

import (
	"sort"
	"strings"

	"github.com/hatchflow/provisioning/internal/app/domain/provisioning"
	"github.com/hatchflow/provisioning/internal/app/domain/template"
)

// nodeCredentialTypes maps engine node types to the credential type each
// expects. The engine rejects a credential of the wrong type on a node, so
// the binding must go through this table rather than by provider name alone.
var nodeCredentialTypes = map[string]string{
	"n8n-nodes-base.hubspot":  "hubspotOAuth2Api",
	"n8n-nodes-base.slack":    "slackOAuth2Api",
	"n8n-nodes-base.gmail":    "gmailOAuth2",
	"n8n-nodes-base.stripe":   "stripeApi",
	"n8n-nodes-base.notion":   "notionApi",
	"n8n-nodes-base.airtable": "airtableTokenApi",
}

// credentialProviders maps credential types back to integration providers,
// derived from providerCredentials so the two tables cannot drift. Providers
// are visited in sorted order so aliases (gmail/google) resolve stably.
var credentialProviders = func() map[string]string {
	providers := make([]string, 0, len(providerCredentials))
	for provider := range providerCredentials {
		providers = append(providers, provider)
	}
	sort.Strings(providers)

	out := make(map[string]string, len(providers))
	for _, provider := range providers {
		credType := providerCredentials[provider].credType
		if _, ok := out[credType]; !ok {
			out[credType] = provider
		}
	}
	return out
}()

// bindCredentials walks the duplicated workflow's nodes and attaches the
// tenant's engine credentials wherever a node's type matches one. Nodes with
// no matching credential are left untouched; the tenant may simply not use
// that integration, or its credential creation was skipped this run.
func bindCredentials(nodes []template.Node, creds []provisioning.EngineCredential) (bound []template.Node, boundCount int) {
	byType := make(map[string]provisioning.EngineCredential, len(creds))
	for _, c := range creds {
		byType[c.Type] = c
	}

	for i := range nodes {
		credType, ok := nodeCredentialTypes[nodes[i].Type]
		if !ok {
			continue
		}
		cred, ok := byType[credType]
		if !ok {
			continue
		}
		if nodes[i].Credentials == nil {
			nodes[i].Credentials = make(map[string]template.CredentialRef, 1)
		}
		nodes[i].Credentials[credType] = template.CredentialRef{ID: cred.ID, Name: cred.Name}
		boundCount++
	}
	return nodes, boundCount
}

// nodeProvider returns the integration provider a node type belongs to, or
// "" for node types outside the supported set.
func nodeProvider(nodeType string) string {
	credType, ok := nodeCredentialTypes[nodeType]
	if !ok {
		return ""
	}
	return credentialProviders[credType]
}

// normalizeProvider lower-cases and trims a provider name so catalog
// declarations and integration rows compare consistently.
func normalizeProvider(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}
