// Package database provides a Supabase (PostgREST) backed implementation of
// the storage interfaces, for deployments that keep tenant data in a managed
// Supabase project instead of a directly reachable Postgres.
package database

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

	"github.com/hatchflow/provisioning/pkg/logger"
)

const maxResponseBytes = 8 << 20

// Client is a thin PostgREST client scoped to one Supabase project.
type Client struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient validates the project URL and returns a client using the
// service-role key for both the apikey and bearer headers.
func NewClient(baseURL, serviceKey string, log *logger.Logger) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("database: invalid supabase URL %q", baseURL)
	}
	if strings.TrimSpace(serviceKey) == "" {
		return nil, fmt.Errorf("database: supabase service key is required")
	}
	if log == nil {
		log = logger.NewDefault("database")
	}
	return &Client{
		baseURL:    baseURL,
		serviceKey: strings.TrimSpace(serviceKey),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}, nil
}

// request performs one PostgREST call. query is the already-encoded filter
// string ("tenant_id=eq.X&order=created_at.desc"); prefer sets the Prefer
// header when non-empty. The decoded response body lands in out when out is
// non-nil; PostgREST always answers with a JSON array for table routes.
func (c *Client) request(ctx context.Context, method, table, query, prefer string, body, out interface{}) error {
	endpoint := c.baseURL + "/rest/v1/" + table
	if query != "" {
		endpoint += "?" + query
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("database: marshal %s body: %w", table, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("database: create request: %w", err)
	}
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("database: %s %s: %w", method, table, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("database: read %s response: %w", table, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.WithFields(map[string]interface{}{
			"table":  table,
			"status": resp.StatusCode,
		}).Warn("supabase request failed")
		return fmt.Errorf("database: %s %s returned status %d: %s", method, table, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("database: decode %s response: %w", table, err)
	}
	return nil
}
