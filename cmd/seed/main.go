// Command seed loads workflow templates and catalog automations from a JSON
// file into the configured storage backend. Used to populate a fresh
// deployment before tenants can activate anything.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"os"
	"strings"

	_ "github.com/lib/pq"

	"github.com/hatchflow/provisioning/internal/app/domain/catalog"
	"github.com/hatchflow/provisioning/internal/app/domain/template"
	"github.com/hatchflow/provisioning/internal/app/storage"
	"github.com/hatchflow/provisioning/internal/app/storage/postgres"
	"github.com/hatchflow/provisioning/internal/config"
	"github.com/hatchflow/provisioning/internal/database"
	"github.com/hatchflow/provisioning/pkg/logger"
)

type seedFile struct {
	Templates   []template.Workflow  `json:"templates"`
	Automations []catalog.Automation `json:"automations"`
}

type catalogStores interface {
	storage.TemplateStore
	storage.CatalogStore
}

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	seedPath := flag.String("seed", "seed.json", "path to seed JSON file")
	flag.Parse()

	log := logger.NewDefault("seed")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	store, cleanup, err := openStores(cfg, log)
	if err != nil {
		log.WithError(err).Error("failed to open storage backend")
		os.Exit(1)
	}
	defer cleanup()

	data, err := os.ReadFile(*seedPath)
	if err != nil {
		log.WithError(err).Error("failed to read seed file")
		os.Exit(1)
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		log.WithError(err).Error("failed to parse seed file")
		os.Exit(1)
	}

	ctx := context.Background()
	for _, tmpl := range seed.Templates {
		created, err := store.CreateTemplate(ctx, tmpl)
		if err != nil {
			log.WithField("template", tmpl.Name).WithError(err).Error("failed to create template")
			os.Exit(1)
		}
		log.WithFields(map[string]interface{}{"template": created.Name, "id": created.ID}).Info("template created")
	}
	for _, auto := range seed.Automations {
		created, err := store.CreateAutomation(ctx, auto)
		if err != nil {
			log.WithField("automation", auto.Name).WithError(err).Error("failed to create automation")
			os.Exit(1)
		}
		log.WithFields(map[string]interface{}{"automation": created.Name, "id": created.ID}).Info("automation created")
	}

	log.Infof("seeded %d templates and %d automations", len(seed.Templates), len(seed.Automations))
}

func openStores(cfg *config.Config, log *logger.Logger) (catalogStores, func(), error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Database.Backend)) {
	case "postgres":
		db, err := sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return postgres.New(db), func() { _ = db.Close() }, nil

	case "supabase":
		client, err := database.NewClient(cfg.Database.SupabaseURL, cfg.Database.SupabaseKey, log)
		if err != nil {
			return nil, nil, err
		}
		return database.NewRepository(client), func() {}, nil

	default:
		return storage.NewMemory(), func() {}, nil
	}
}
