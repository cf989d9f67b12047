// Package provisioning turns an approved activation request into a live,
// isolated workflow instance inside the external engine: duplicate the
// template, create tenant credentials, bind them to nodes, activate, and
// record the mapping.
package provisioning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hatchflow/provisioning/internal/app/domain/activation"
	"github.com/hatchflow/provisioning/internal/app/domain/integration"
	"github.com/hatchflow/provisioning/internal/app/domain/provisioning"
	"github.com/hatchflow/provisioning/internal/app/domain/template"
	"github.com/hatchflow/provisioning/internal/app/services/notify"
	"github.com/hatchflow/provisioning/internal/app/storage"
	"github.com/hatchflow/provisioning/internal/errors"
	"github.com/hatchflow/provisioning/pkg/logger"
)

// EngineAPI is the slice of the workflow engine client the orchestrator uses.
type EngineAPI interface {
	CreateWorkflow(ctx context.Context, def template.Workflow, tenantLabel, activationID string) (string, error)
	CreateCredential(ctx context.Context, credType, name string, data map[string]interface{}) (string, error)
	PatchWorkflowNodes(ctx context.Context, workflowID string, nodes []template.Node) error
	ActivateWorkflow(ctx context.Context, workflowID string) (bool, error)
	GetWorkflow(ctx context.Context, workflowID string) (template.Workflow, error)
	WebhookURL(wf template.Workflow) string
}

// Decryptor opens a stored credential payload.
type Decryptor interface {
	Decrypt(ciphertextB64, ivB64, tagB64 string) (string, error)
}

// Recorder receives run metrics. The metrics package implements it; tests
// and minimal deployments use the nop default.
type Recorder interface {
	RecordProvisionRun(outcome string, degradedSteps int, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordProvisionRun(string, int, time.Duration) {}

// Stores groups the persistence interfaces the orchestrator reads and writes.
type Stores struct {
	Activations  storage.ActivationStore
	Catalog      storage.CatalogStore
	Templates    storage.TemplateStore
	Integrations storage.IntegrationStore
	Mappings     storage.MappingStore
}

// Service is the provisioning orchestrator.
type Service struct {
	stores    Stores
	engine    EngineAPI
	decryptor Decryptor
	notifier  notify.Notifier
	metrics   Recorder
	log       *logger.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithNotifier sets the outcome notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.metrics = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService wires the orchestrator.
func NewService(stores Stores, engine EngineAPI, decryptor Decryptor, opts ...Option) (*Service, error) {
	if stores.Activations == nil || stores.Catalog == nil || stores.Templates == nil ||
		stores.Integrations == nil || stores.Mappings == nil {
		return nil, errors.Configuration("provisioning service requires all stores")
	}
	if engine == nil {
		return nil, errors.Configuration("provisioning service requires an engine client")
	}
	if decryptor == nil {
		return nil, errors.Configuration("provisioning service requires a decryptor")
	}

	s := &Service{
		stores:    stores,
		engine:    engine,
		decryptor: decryptor,
		notifier:  notify.NopNotifier{},
		metrics:   nopRecorder{},
		log:       logger.NewDefault("provisioning"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Result summarizes one provisioning run.
type Result struct {
	Success            bool                   `json:"success"`
	AlreadyProvisioned bool                   `json:"already_provisioned,omitempty"`
	MappingID          string                 `json:"mapping_id,omitempty"`
	WorkflowID         string                 `json:"workflow_id,omitempty"`
	WebhookURL         string                 `json:"webhook_url,omitempty"`
	CredentialIDs      []string               `json:"credential_ids,omitempty"`
	Error              string                 `json:"error,omitempty"`
	Report             provisioning.RunReport `json:"report"`
}

// Provision runs one provisioning attempt for the activation request.
//
// Fatal failures (missing request, automation, template, required
// integrations, or workflow creation) commit an error mapping, flip the
// request to needs_attention, and return the typed error. Everything past
// workflow creation is best effort: per-credential failures, node patching,
// activation and webhook discovery degrade the run but never roll back the
// created workflow.
func (s *Service) Provision(ctx context.Context, tenantID, tenantEmail, activationRequestID string) (Result, error) {
	start := time.Now()
	report := &provisioning.RunReport{}
	log := s.log.WithFields(map[string]interface{}{
		"tenant_id":             tenantID,
		"activation_request_id": activationRequestID,
	})

	req, err := s.stores.Activations.GetActivationRequest(ctx, activationRequestID)
	if err != nil {
		if err == storage.ErrNotFound {
			err = errors.NotFound("activation request", activationRequestID)
		}
		s.metrics.RecordProvisionRun("error", 0, time.Since(start))
		return Result{Error: err.Error(), Report: *report}, err
	}
	if req.TenantID != tenantID {
		err := errors.NotFound("activation request", activationRequestID)
		s.metrics.RecordProvisionRun("error", 0, time.Since(start))
		return Result{Error: err.Error(), Report: *report}, err
	}
	if tenantEmail == "" {
		tenantEmail = req.TenantEmail
	}

	// Idempotency: claim the mapping row or find out someone else holds it.
	mapping, claimed, err := s.stores.Mappings.ClaimMapping(ctx, provisioning.Mapping{
		ID:                  uuid.NewString(),
		TenantID:            tenantID,
		ActivationRequestID: activationRequestID,
		AutomationID:        req.AutomationID,
		Status:              provisioning.MappingProvisioning,
	})
	if err != nil {
		s.metrics.RecordProvisionRun("error", 0, time.Since(start))
		return Result{Error: err.Error(), Report: *report}, errors.Internal("claim mapping", err)
	}
	if !claimed {
		if done, res := shortCircuit(mapping); done {
			log.WithField("mapping_id", mapping.ID).Info("activation already provisioned, skipping")
			s.metrics.RecordProvisionRun("skipped", 0, time.Since(start))
			return res, nil
		}
		// A terminal error row, or a provisioning row with no workflow yet
		// (a crashed or concurrent run), is resumed in place.
		mapping.Status = provisioning.MappingProvisioning
		mapping.ErrorMessage = ""
		if mapping, err = s.stores.Mappings.UpdateMapping(ctx, mapping); err != nil {
			s.metrics.RecordProvisionRun("error", 0, time.Since(start))
			return Result{Error: err.Error(), Report: *report}, errors.Internal("reopen mapping", err)
		}
		log.WithField("mapping_id", mapping.ID).Info("reusing existing mapping row")
	}

	run := func() (Result, error) {
		auto, err := s.stores.Catalog.GetAutomation(ctx, req.AutomationID)
		if err != nil {
			if err == storage.ErrNotFound {
				err = errors.NotFound("automation", req.AutomationID)
			}
			return Result{}, err
		}

		if len(auto.TemplateIDs) == 0 {
			return Result{}, errors.NotFound("workflow template for automation", auto.ID)
		}
		def, err := s.stores.Templates.GetTemplate(ctx, auto.TemplateIDs[0])
		if err != nil {
			if err == storage.ErrNotFound {
				err = errors.NotFound("workflow template", auto.TemplateIDs[0])
			}
			return Result{}, err
		}

		conns, err := s.connectedIntegrations(ctx, tenantID, auto.RequiredIntegrations)
		if err != nil {
			return Result{}, err
		}

		if err := s.stores.Activations.UpdateActivationStatus(ctx, req.ID, activation.StatusProvisioning); err != nil {
			log.WithError(err).Warn("failed to mark activation request provisioning")
		}

		label := tenantLabel(tenantID, tenantEmail)
		workflowID, err := s.engine.CreateWorkflow(ctx, def, label, req.ID)
		if err != nil {
			return Result{}, err
		}
		report.Succeed("create_workflow", "", workflowID)
		log = log.WithField("workflow_id", workflowID)

		mapping.EngineWorkflowIDs = []string{workflowID}
		if mapping, err = s.stores.Mappings.UpdateMapping(ctx, mapping); err != nil {
			log.WithError(err).Warn("failed to record workflow id on mapping")
		}

		creds := s.provisionCredentials(ctx, conns, label, report)
		credIDs := make([]string, 0, len(creds))
		for _, c := range creds {
			credIDs = append(credIDs, c.ID)
		}
		mapping.EngineCredentialIDs = credIDs

		nodes, boundCount := bindCredentials(def.CloneNodes(), creds)
		for i := range nodes {
			nodes[i].ID = ""
		}
		if boundCount > 0 {
			if err := s.engine.PatchWorkflowNodes(ctx, workflowID, nodes); err != nil {
				log.WithError(err).Warn("failed to bind credentials to workflow nodes")
				report.Fail("patch_workflow", "", err.Error())
			} else {
				report.Succeed("patch_workflow", "", fmt.Sprintf("%d nodes bound", boundCount))
			}
		}

		if active, err := s.engine.ActivateWorkflow(ctx, workflowID); err != nil {
			log.WithError(err).Warn("workflow activation failed, instance stays inactive")
			report.Fail("activate_workflow", "", err.Error())
		} else if !active {
			report.Fail("activate_workflow", "", "engine reported workflow inactive")
		} else {
			report.Succeed("activate_workflow", "", "")
		}

		webhookURL := ""
		if wf, err := s.engine.GetWorkflow(ctx, workflowID); err != nil {
			log.WithError(err).Warn("failed to fetch workflow for webhook discovery")
			report.Fail("discover_webhook", "", err.Error())
		} else if webhookURL = s.engine.WebhookURL(wf); webhookURL != "" {
			report.Succeed("discover_webhook", "", webhookURL)
		}

		now := time.Now().UTC()
		mapping.Status = provisioning.MappingActive
		mapping.Metadata = provisioning.MappingMetadata{
			WebhookURL:    webhookURL,
			ProvisionedAt: &now,
			DegradedSteps: report.DegradedSteps(),
		}
		if mapping, err = s.stores.Mappings.UpdateMapping(ctx, mapping); err != nil {
			return Result{}, errors.Internal("commit mapping", err)
		}

		if err := s.stores.Activations.UpdateActivationStatus(ctx, req.ID, activation.StatusLive); err != nil {
			log.WithError(err).Warn("failed to mark activation request live")
		}

		s.notify(ctx, notify.Event{
			Type:                notify.EventActivated,
			ActivationRequestID: req.ID,
			TenantID:            tenantID,
			TenantEmail:         tenantEmail,
			AutomationID:        auto.ID,
			WorkflowID:          workflowID,
			WebhookURL:          webhookURL,
			DegradedSteps:       report.DegradedSteps(),
		}, report)

		return Result{
			Success:       true,
			MappingID:     mapping.ID,
			WorkflowID:    workflowID,
			WebhookURL:    webhookURL,
			CredentialIDs: credIDs,
			Report:        *report,
		}, nil
	}

	res, err := run()
	if err != nil {
		s.failRun(ctx, mapping, req, tenantEmail, err, report)
		s.metrics.RecordProvisionRun("error", len(report.DegradedSteps()), time.Since(start))
		log.WithError(err).Error("provisioning run failed")
		return Result{MappingID: mapping.ID, Error: err.Error(), Report: *report}, err
	}

	outcome := "success"
	if len(report.DegradedSteps()) > 0 {
		outcome = "degraded"
	}
	s.metrics.RecordProvisionRun(outcome, len(report.DegradedSteps()), time.Since(start))
	log.WithField("outcome", outcome).Info("provisioning run completed")
	return res, nil
}

// shortCircuit decides whether an existing mapping already represents a live
// or in-flight instance. Only active or provisioning rows with at least one
// recorded engine workflow id are final for idempotency purposes; a row
// without a workflow id never reached the engine and is resumed instead.
func shortCircuit(m provisioning.Mapping) (bool, Result) {
	if len(m.EngineWorkflowIDs) == 0 {
		return false, Result{}
	}
	if m.Status != provisioning.MappingActive && m.Status != provisioning.MappingProvisioning {
		return false, Result{}
	}

	return true, Result{
		Success:            m.Status == provisioning.MappingActive,
		AlreadyProvisioned: true,
		MappingID:          m.ID,
		WorkflowID:         m.EngineWorkflowIDs[0],
		WebhookURL:         m.Metadata.WebhookURL,
		CredentialIDs:      m.EngineCredentialIDs,
	}
}

// connectedIntegrations loads the tenant's connected credentials, checks
// every required provider is present, and returns only the required ones.
// An automation with no declared set gets every connected credential.
func (s *Service) connectedIntegrations(ctx context.Context, tenantID string, required []string) ([]integration.Connection, error) {
	all, err := s.stores.Integrations.ListConnections(ctx, tenantID)
	if err != nil {
		return nil, errors.Internal("list integration connections", err)
	}

	connected := make(map[string]integration.Connection, len(all))
	for _, conn := range all {
		if conn.Connected() {
			connected[normalizeProvider(conn.Provider)] = conn
		}
	}

	if len(required) == 0 {
		conns := make([]integration.Connection, 0, len(connected))
		for _, conn := range connected {
			conns = append(conns, conn)
		}
		return conns, nil
	}

	var missing []string
	conns := make([]integration.Connection, 0, len(required))
	for _, provider := range required {
		conn, ok := connected[normalizeProvider(provider)]
		if !ok {
			missing = append(missing, normalizeProvider(provider))
			continue
		}
		conns = append(conns, conn)
	}
	if len(missing) > 0 {
		return nil, errors.IntegrationMissing(missing)
	}
	return conns, nil
}

// failRun commits the terminal error state. Persistence failures here are
// logged and swallowed; the typed run error is what the caller sees.
func (s *Service) failRun(ctx context.Context, mapping provisioning.Mapping, req activation.Request, tenantEmail string, runErr error, report *provisioning.RunReport) {
	mapping.Status = provisioning.MappingError
	mapping.ErrorMessage = runErr.Error()
	mapping.Metadata.DegradedSteps = report.DegradedSteps()
	if _, err := s.stores.Mappings.UpdateMapping(ctx, mapping); err != nil {
		s.log.WithError(err).Error("failed to persist error mapping")
	}
	if err := s.stores.Activations.UpdateActivationStatus(ctx, req.ID, activation.StatusNeedsAttention); err != nil {
		s.log.WithError(err).Error("failed to mark activation request needs_attention")
	}

	s.notify(ctx, notify.Event{
		Type:                notify.EventProvisioningFailed,
		ActivationRequestID: req.ID,
		TenantID:            req.TenantID,
		TenantEmail:         tenantEmail,
		AutomationID:        req.AutomationID,
		Error:               runErr.Error(),
		DegradedSteps:       report.DegradedSteps(),
	}, report)
}

func (s *Service) notify(ctx context.Context, event notify.Event, report *provisioning.RunReport) {
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.log.WithError(err).Warn("outcome notification failed")
		report.Fail("notify", "", err.Error())
	} else {
		report.Succeed("notify", "", event.Type)
	}
}

// tenantLabel is the human-readable tenant marker embedded in engine-side
// workflow and credential names.
func tenantLabel(tenantID, tenantEmail string) string {
	if email := strings.TrimSpace(tenantEmail); email != "" {
		return email
	}
	return tenantID
}
