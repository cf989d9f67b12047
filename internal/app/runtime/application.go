// Package runtime boots the provisioning service from configuration: open
// the storage backend, build the engine client and cipher, assemble the
// application and run the HTTP server until shutdown.
package runtime

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/hatchflow/provisioning/internal/app"
	"github.com/hatchflow/provisioning/internal/app/metrics"
	"github.com/hatchflow/provisioning/internal/app/services/notify"
	"github.com/hatchflow/provisioning/internal/app/services/vault"
	"github.com/hatchflow/provisioning/internal/app/storage/postgres"
	"github.com/hatchflow/provisioning/internal/app/system"
	"github.com/hatchflow/provisioning/internal/config"
	"github.com/hatchflow/provisioning/internal/database"
	"github.com/hatchflow/provisioning/internal/engine"
	"github.com/hatchflow/provisioning/internal/middleware"
	"github.com/hatchflow/provisioning/pkg/logger"
)

// Runtime owns the process-level pieces: configuration, application and the
// lifecycle manager.
type Runtime struct {
	cfg     *config.Config
	app     *app.Application
	manager *system.Manager
	log     *logger.Logger

	db *sql.DB
}

// New builds a runtime from the config file at path (empty means environment
// only).
func New(path string) (*Runtime, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	}).WithField("service", "provisioning")

	rt := &Runtime{cfg: cfg, log: log}

	stores, err := rt.buildStores()
	if err != nil {
		return nil, err
	}

	engineClient, err := engine.New(engine.Config{
		BaseURL: cfg.Engine.BaseURL,
		APIKey:  cfg.Engine.APIKey,
	})
	if err != nil {
		return nil, err
	}

	key, err := cfg.EncryptionKeyBytes()
	if err != nil {
		return nil, err
	}
	cipher, err := vault.NewCipher(key)
	if err != nil {
		return nil, err
	}

	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.Notifier.WebhookURL != "" {
		httpNotifier, err := notify.NewHTTPNotifier(cfg.Notifier.WebhookURL, cfg.Notifier.APIKey, log.WithField("component", "notify"))
		if err != nil {
			return nil, err
		}
		notifier = httpNotifier
	}

	application, err := app.New(stores, app.Dependencies{
		Engine:     engineClient,
		Decryptor:  cipher,
		Notifier:   notifier,
		JWTSecret:  []byte(cfg.Auth.JWTSecret),
		AuditLimit: cfg.Audit.MaxEntries,
		AuditFile:  cfg.Audit.FilePath,
		Log:        log,
	})
	if err != nil {
		return nil, err
	}
	rt.app = application

	rt.manager = system.NewManager(log.WithField("component", "system"))
	rt.manager.Register(newHTTPService(cfg.Server, application, log))

	return rt, nil
}

func (rt *Runtime) buildStores() (app.Stores, error) {
	backend := strings.ToLower(strings.TrimSpace(rt.cfg.Database.Backend))
	switch backend {
	case "postgres":
		db, err := openDatabase(rt.cfg.Database)
		if err != nil {
			return app.Stores{}, err
		}
		rt.db = db
		store := postgres.New(db)
		return app.Stores{
			Activations:  store,
			Catalog:      store,
			Templates:    store,
			Integrations: store,
			Mappings:     store,
		}, nil

	case "supabase":
		client, err := database.NewClient(rt.cfg.Database.SupabaseURL, rt.cfg.Database.SupabaseKey, rt.log.WithField("component", "database"))
		if err != nil {
			return app.Stores{}, err
		}
		repo := database.NewRepository(client)
		return app.Stores{
			Activations:  repo,
			Catalog:      repo,
			Templates:    repo,
			Integrations: repo,
			Mappings:     repo,
		}, nil

	default:
		rt.log.Warn("using in-memory storage, data will not survive restarts")
		return app.Stores{}, nil
	}
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Run starts all services and blocks until ctx is cancelled, then shuts
// down.
func (rt *Runtime) Run(ctx context.Context) error {
	if err := rt.manager.Start(ctx); err != nil {
		return err
	}
	rt.log.Info("provisioning service started")

	<-ctx.Done()
	rt.log.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := rt.manager.Stop(stopCtx)
	if closeErr := rt.app.Handler.Close(); err == nil {
		err = closeErr
	}
	if rt.db != nil {
		if dbErr := rt.db.Close(); err == nil {
			err = dbErr
		}
	}
	return err
}

// httpService runs the API server as a managed service.
type httpService struct {
	server *http.Server
	log    *logger.Logger
}

func newHTTPService(cfg config.ServerConfig, application *app.Application, log *logger.Logger) *httpService {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", application.Handler.Router())

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log.WithField("component", "ratelimit"))
	cors := middleware.NewCORS(cfg.AllowedOrigins)

	var handler http.Handler = mux
	handler = limiter.Handler(handler)
	handler = cors.Handler(handler)
	handler = middleware.Tracing(handler)
	handler = metrics.InstrumentHandler(handler)

	return &httpService{
		server: &http.Server{
			Addr:           net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:        handler,
			ReadTimeout:    time.Duration(cfg.ReadTimeoutS) * time.Second,
			WriteTimeout:   time.Duration(cfg.WriteTimeoutS) * time.Second,
			MaxHeaderBytes: cfg.MaxHeaderBytes,
		},
		log: log.WithField("component", "http"),
	}
}

func (s *httpService) Name() string { return "http" }

func (s *httpService) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	s.log.WithField("addr", s.server.Addr).Info("http server listening")
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("http server stopped")
		}
	}()
	return nil
}

func (s *httpService) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
