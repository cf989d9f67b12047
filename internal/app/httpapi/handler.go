// Package httpapi exposes the provisioning pipeline over HTTP: a provision
// trigger plus tenant-scoped reads of activation requests and their workflow
// instance mappings.
package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/hatchflow/provisioning/internal/app/services/provisioning"
	"github.com/hatchflow/provisioning/internal/app/storage"
	"github.com/hatchflow/provisioning/internal/errors"
	"github.com/hatchflow/provisioning/internal/httputil"
	"github.com/hatchflow/provisioning/pkg/logger"
)

// Provisioner runs one provisioning attempt.
type Provisioner interface {
	Provision(ctx context.Context, tenantID, tenantEmail, activationRequestID string) (provisioning.Result, error)
}

// Config configures the HTTP handler.
type Config struct {
	// JWTSecret verifies HS256 bearer tokens.
	JWTSecret []byte
	// AuditLimit bounds the in-memory audit ring. Zero means the default.
	AuditLimit int
	// AuditFile, when set, receives every audit entry as JSONL.
	AuditFile string
}

// Handler serves the provisioning API.
type Handler struct {
	provisioner Provisioner
	activations storage.ActivationStore
	catalog     storage.CatalogStore
	mappings    storage.MappingStore
	jwtSecret   []byte
	audit       *auditLog
	log         *logger.Logger
}

// NewHandler wires the API surface.
func NewHandler(cfg Config, provisioner Provisioner, activations storage.ActivationStore, catalog storage.CatalogStore, mappings storage.MappingStore, log *logger.Logger) (*Handler, error) {
	if len(cfg.JWTSecret) == 0 {
		return nil, errors.Configuration("httpapi requires a JWT secret")
	}
	if provisioner == nil || activations == nil || catalog == nil || mappings == nil {
		return nil, errors.Configuration("httpapi requires provisioner and stores")
	}
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	return &Handler{
		provisioner: provisioner,
		activations: activations,
		catalog:     catalog,
		mappings:    mappings,
		jwtSecret:   cfg.JWTSecret,
		audit:       newAuditLog(cfg.AuditLimit, cfg.AuditFile, log),
		log:         log,
	}, nil
}

// Close releases the audit file sink, if any.
func (h *Handler) Close() error {
	if h.audit.sink != nil {
		return h.audit.sink.close()
	}
	return nil
}

// Router builds the route table.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(h.authenticate)
	api.HandleFunc("/provision", h.handleProvision).Methods(http.MethodPost)
	api.HandleFunc("/automations", h.handleListAutomations).Methods(http.MethodGet)
	api.HandleFunc("/activations", h.handleListActivations).Methods(http.MethodGet)
	api.HandleFunc("/activations/{id}", h.handleGetActivation).Methods(http.MethodGet)
	api.HandleFunc("/activations/{id}/mapping", h.handleGetMapping).Methods(http.MethodGet)
	api.HandleFunc("/audit", h.handleAudit).Methods(http.MethodGet)
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type provisionRequest struct {
	ActivationRequestID string `json:"activation_request_id"`
}

func (h *Handler) handleProvision(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	var req provisionRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.ActivationRequestID == "" {
		httputil.BadRequest(w, "activation_request_id is required")
		return
	}

	result, err := h.provisioner.Provision(r.Context(), identity.TenantID, identity.Email, req.ActivationRequestID)

	entry := auditEntry{
		Action:              "provision",
		TenantID:            identity.TenantID,
		ActivationRequestID: req.ActivationRequestID,
	}
	if err != nil {
		entry.Outcome = "error"
		entry.Detail = err.Error()
		h.audit.record(entry)
		httputil.WriteServiceError(w, err)
		return
	}
	entry.Outcome = "success"
	if result.AlreadyProvisioned {
		entry.Outcome = "skipped"
	}
	h.audit.record(entry)

	status := http.StatusOK
	if !result.AlreadyProvisioned {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, result)
}

func (h *Handler) handleListAutomations(w http.ResponseWriter, r *http.Request) {
	autos, err := h.catalog.ListAutomations(r.Context())
	if err != nil {
		h.log.WithError(err).Error("list automations failed")
		httputil.InternalError(w, "failed to list automations")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"automations": autos})
}

func (h *Handler) handleListActivations(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	requests, err := h.activations.ListActivationRequests(r.Context(), identity.TenantID)
	if err != nil {
		h.log.WithError(err).Error("list activation requests failed")
		httputil.InternalError(w, "failed to list activation requests")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"activation_requests": requests})
}

func (h *Handler) handleGetActivation(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	id := mux.Vars(r)["id"]

	req, err := h.activations.GetActivationRequest(r.Context(), id)
	if err == nil && req.TenantID != identity.TenantID {
		err = storage.ErrNotFound
	}
	if err != nil {
		if err == storage.ErrNotFound {
			httputil.WriteServiceError(w, errors.NotFound("activation request", id))
			return
		}
		h.log.WithError(err).Error("get activation request failed")
		httputil.InternalError(w, "failed to load activation request")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) handleGetMapping(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	id := mux.Vars(r)["id"]

	mapping, err := h.mappings.GetMappingByActivation(r.Context(), identity.TenantID, id)
	if err != nil {
		if err == storage.ErrNotFound {
			httputil.WriteServiceError(w, errors.NotFound("workflow instance mapping for activation", id))
			return
		}
		h.log.WithError(err).Error("get mapping failed")
		httputil.InternalError(w, "failed to load mapping")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, mapping)
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"entries": h.audit.recent(limit)})
}
