// Package engine wraps the external workflow engine's REST API. The engine
// runs duplicated per-tenant workflow instances; this client covers the five
// operations provisioning needs.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hatchflow/provisioning/internal/app/domain/template"
	"github.com/hatchflow/provisioning/internal/app/metrics"
	"github.com/hatchflow/provisioning/internal/errors"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxBodySize = 4 << 20 // 4 MiB
	maxErrorBodyBytes  = 32 << 10
)

// Config configures the engine client.
type Config struct {
	// BaseURL is the engine address. Operator-supplied and possibly
	// malformed; it is normalized to a bare origin at construction.
	BaseURL string
	// APIKey is sent on every request.
	APIKey string
	// HTTPClient overrides the default client (tests, instrumented clients).
	HTTPClient *http.Client
	// MaxBodyBytes caps response bodies.
	MaxBodyBytes int64
}

// Client talks to the workflow engine.
type Client struct {
	origin       string
	apiKey       string
	httpClient   *http.Client
	maxBodyBytes int64
}

// New creates an engine client. The base URL is reduced to scheme://host so
// stray paths or trailing slashes in operator configuration cannot corrupt
// request URLs.
func New(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, errors.Configuration("engine base URL is required")
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, errors.Configuration("engine base URL must be a valid URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errors.Configuration("engine base URL scheme must be http or https")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.Configuration("engine API key is required")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	maxBodyBytes := cfg.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodySize
	}

	return &Client{
		origin:       parsed.Scheme + "://" + parsed.Host,
		apiKey:       strings.TrimSpace(cfg.APIKey),
		httpClient:   client,
		maxBodyBytes: maxBodyBytes,
	}, nil
}

// Origin returns the normalized engine origin.
func (c *Client) Origin() string { return c.origin }

type workflowResponse struct {
	ID   string `json:"id"`
	Data *struct {
		ID string `json:"id"`
	} `json:"data,omitempty"`
}

func (r workflowResponse) id() string {
	if r.ID != "" {
		return r.ID
	}
	if r.Data != nil {
		return r.Data.ID
	}
	return ""
}

// CreateWorkflow duplicates a template into the engine as a new, isolated
// workflow. Node ids and credential references from the template are
// stripped so one tenant's engine identifiers can never leak into another's
// duplicate, and the name embeds the tenant label plus the first 8 hex
// characters of the activation id for operator traceability.
func (c *Client) CreateWorkflow(ctx context.Context, def template.Workflow, tenantLabel, activationID string) (string, error) {
	nodes := def.CloneNodes()
	for i := range nodes {
		nodes[i].ID = ""
		nodes[i].Credentials = nil
	}

	payload := map[string]interface{}{
		"name":        workflowName(def.Name, tenantLabel, activationID),
		"nodes":       nodes,
		"connections": def.Connections,
		"settings":    def.Settings,
	}

	var out workflowResponse
	if err := c.doJSON(ctx, http.MethodPost, "/workflows", payload, &out, "create workflow"); err != nil {
		return "", err
	}
	if out.id() == "" {
		return "", errors.EngineAPI("create workflow", http.StatusOK, "response missing workflow id")
	}
	return out.id(), nil
}

func workflowName(templateName, tenantLabel, activationID string) string {
	short := strings.ReplaceAll(activationID, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s - %s (%s)", templateName, tenantLabel, short)
}

// CreateCredential registers a credential object inside the engine.
func (c *Client) CreateCredential(ctx context.Context, credType, name string, data map[string]interface{}) (string, error) {
	payload := map[string]interface{}{
		"name": name,
		"type": credType,
		"data": data,
	}

	var out workflowResponse
	if err := c.doJSON(ctx, http.MethodPost, "/credentials", payload, &out, "create credential"); err != nil {
		return "", err
	}
	if out.id() == "" {
		return "", errors.EngineAPI("create credential", http.StatusOK, "response missing credential id")
	}
	return out.id(), nil
}

// PatchWorkflowNodes replaces the workflow's node array, used once
// credential ids are known.
func (c *Client) PatchWorkflowNodes(ctx context.Context, workflowID string, nodes []template.Node) error {
	payload := map[string]interface{}{"nodes": nodes}
	return c.doJSON(ctx, http.MethodPatch, "/workflows/"+url.PathEscape(workflowID), payload, nil, "patch workflow")
}

// ActivateWorkflow switches the workflow live. The engine reports activation
// state in the response; a missing field is treated as activated.
func (c *Client) ActivateWorkflow(ctx context.Context, workflowID string) (bool, error) {
	var out struct {
		Active *bool `json:"active,omitempty"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/workflows/"+url.PathEscape(workflowID)+"/activate", nil, &out, "activate workflow"); err != nil {
		return false, err
	}
	if out.Active != nil {
		return *out.Active, nil
	}
	return true, nil
}

// GetWorkflow fetches the engine-side workflow definition.
func (c *Client) GetWorkflow(ctx context.Context, workflowID string) (template.Workflow, error) {
	var out template.Workflow
	if err := c.doJSON(ctx, http.MethodGet, "/workflows/"+url.PathEscape(workflowID), nil, &out, "get workflow"); err != nil {
		return template.Workflow{}, err
	}
	return out, nil
}

const webhookNodeType = "n8n-nodes-base.webhook"

// WebhookURL locates a webhook-trigger node in the workflow and composes its
// configured path with the engine origin. Empty when the workflow has no
// webhook entry point.
func (c *Client) WebhookURL(wf template.Workflow) string {
	for _, node := range wf.Nodes {
		if node.Type != webhookNodeType {
			continue
		}
		path, _ := node.Parameters["path"].(string)
		path = strings.Trim(strings.TrimSpace(path), "/")
		if path == "" {
			continue
		}
		return c.origin + "/webhook/" + path
	}
	return ""
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}, operation string) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("engine: marshal %s body: %w", operation, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.origin+path, reqBody)
	if err != nil {
		return fmt.Errorf("engine: create %s request: %w", operation, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-N8N-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordEngineCall(operation, 0)
		return fmt.Errorf("engine: %s: %w", operation, err)
	}
	defer resp.Body.Close()
	metrics.RecordEngineCall(operation, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return errors.EngineAPI(operation, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, c.maxBodyBytes))
		return nil
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, c.maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("engine: decode %s response: %w", operation, err)
	}
	return nil
}
