// Package app assembles the provisioning pipeline from its parts: storage
// backend, engine client, credential cipher, notifier, orchestrator and HTTP
// surface.
package app

import (
	"github.com/hatchflow/provisioning/internal/app/httpapi"
	"github.com/hatchflow/provisioning/internal/app/metrics"
	"github.com/hatchflow/provisioning/internal/app/services/notify"
	"github.com/hatchflow/provisioning/internal/app/services/provisioning"
	"github.com/hatchflow/provisioning/internal/app/storage"
	"github.com/hatchflow/provisioning/internal/errors"
	"github.com/hatchflow/provisioning/pkg/logger"
)

// Stores groups the persistence interfaces one backend implements. A nil
// field falls back to the shared in-memory store, so partial wiring still
// yields a runnable application for development.
type Stores struct {
	Activations  storage.ActivationStore
	Catalog      storage.CatalogStore
	Templates    storage.TemplateStore
	Integrations storage.IntegrationStore
	Mappings     storage.MappingStore
}

func (s Stores) withFallback() Stores {
	var mem *storage.Memory
	fallback := func() *storage.Memory {
		if mem == nil {
			mem = storage.NewMemory()
		}
		return mem
	}

	if s.Activations == nil {
		s.Activations = fallback()
	}
	if s.Catalog == nil {
		s.Catalog = fallback()
	}
	if s.Templates == nil {
		s.Templates = fallback()
	}
	if s.Integrations == nil {
		s.Integrations = fallback()
	}
	if s.Mappings == nil {
		s.Mappings = fallback()
	}
	return s
}

// Dependencies are the external collaborators the application needs.
type Dependencies struct {
	Engine    provisioning.EngineAPI
	Decryptor provisioning.Decryptor
	Notifier  notify.Notifier
	JWTSecret []byte

	AuditLimit int
	AuditFile  string

	Log *logger.Logger
}

// Application is the assembled provisioning service.
type Application struct {
	Stores      Stores
	Provisioner *provisioning.Service
	Handler     *httpapi.Handler
	Log         *logger.Logger
}

// New wires the application.
func New(stores Stores, deps Dependencies) (*Application, error) {
	if deps.Engine == nil {
		return nil, errors.Configuration("application requires an engine client")
	}
	if deps.Decryptor == nil {
		return nil, errors.Configuration("application requires a credential decryptor")
	}
	if deps.Log == nil {
		deps.Log = logger.NewDefault("app")
	}

	stores = stores.withFallback()

	opts := []provisioning.Option{
		provisioning.WithLogger(deps.Log.WithField("component", "provisioning")),
		provisioning.WithMetrics(metrics.Recorder{}),
	}
	if deps.Notifier != nil {
		opts = append(opts, provisioning.WithNotifier(deps.Notifier))
	}

	provisioner, err := provisioning.NewService(provisioning.Stores{
		Activations:  stores.Activations,
		Catalog:      stores.Catalog,
		Templates:    stores.Templates,
		Integrations: stores.Integrations,
		Mappings:     stores.Mappings,
	}, deps.Engine, deps.Decryptor, opts...)
	if err != nil {
		return nil, err
	}

	handler, err := httpapi.NewHandler(httpapi.Config{
		JWTSecret:  deps.JWTSecret,
		AuditLimit: deps.AuditLimit,
		AuditFile:  deps.AuditFile,
	}, provisioner, stores.Activations, stores.Catalog, stores.Mappings, deps.Log.WithField("component", "httpapi"))
	if err != nil {
		return nil, err
	}

	return &Application{
		Stores:      stores,
		Provisioner: provisioner,
		Handler:     handler,
		Log:         deps.Log,
	}, nil
}
