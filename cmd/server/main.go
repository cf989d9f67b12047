// Command server runs the tenant workflow provisioning service.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/hatchflow/provisioning/internal/app/runtime"
	"github.com/hatchflow/provisioning/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()

	log := logger.NewDefault("server")

	rt, err := runtime.New(*configPath)
	if err != nil {
		log.WithError(err).Error("failed to initialize")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Run(ctx); err != nil {
		log.WithError(err).Error("service exited with error")
		os.Exit(1)
	}
}
