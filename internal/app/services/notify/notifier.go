// Package notify delivers provisioning outcome events to an external
// notification workflow. Delivery is best effort: provisioning never fails
// because a notification could not be sent.
package notify

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

// Event types emitted by the provisioning orchestrator.
const (
	EventActivated          = "automation_activated"
	EventProvisioningFailed = "provisioning_failed"
)

// Event is one provisioning outcome notification.
type Event struct {
	Type                string    `json:"type"`
	ActivationRequestID string    `json:"activation_request_id"`
	TenantID            string    `json:"tenant_id"`
	TenantEmail         string    `json:"tenant_email,omitempty"`
	AutomationID        string    `json:"automation_id,omitempty"`
	WorkflowID          string    `json:"workflow_id,omitempty"`
	WebhookURL          string    `json:"webhook_url,omitempty"`
	Error               string    `json:"error,omitempty"`
	DegradedSteps       []string  `json:"degraded_steps,omitempty"`
	OccurredAt          time.Time `json:"occurred_at"`
}

// Notifier delivers outcome events.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// HTTPNotifier posts events to a webhook endpoint, typically an automation
// workflow that emails the tenant or pages an operator.
type HTTPNotifier struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	log        *logger.Logger
}

// NewHTTPNotifier validates the endpoint and returns a notifier. The API key
// is optional; when set it is sent as a bearer token.
func NewHTTPNotifier(endpoint, apiKey string, log *logger.Logger) (*HTTPNotifier, error) {
	endpoint = strings.TrimSpace(endpoint)
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("notify: invalid endpoint %q", endpoint)
	}
	if log == nil {
		log = logger.NewDefault("notify")
	}
	return &HTTPNotifier{
		endpoint:   endpoint,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        log,
	}, nil
}

// Notify posts the event as JSON. Non-2xx responses are errors so callers can
// record the degraded step, but they carry no typed code; nothing retries.
func (n *HTTPNotifier) Notify(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+n.apiKey)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post event: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: endpoint returned status %d", resp.StatusCode)
	}

	n.log.WithFields(map[string]interface{}{
		"event":                 event.Type,
		"activation_request_id": event.ActivationRequestID,
	}).Debug("notification delivered")
	return nil
}

// NopNotifier drops all events. Used when no notifier endpoint is configured.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) error { return nil }
