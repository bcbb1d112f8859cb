package main

import (
	"context"
	"fmt"
	"os"

	appconfig "github.com/lumaproject/luma/internal/config"
	"github.com/lumaproject/luma/internal/server"
	pkgconfig "github.com/lumaproject/luma/pkg/config"
	"github.com/lumaproject/luma/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "luma server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := &appconfig.AppConfig{}
	if err := pkgconfig.GetConfig(cfg, os.Getenv("CONFIG_FILE"), true); err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.NewLogger(logger.Config{
		Level:   cfg.GetLogLevel(),
		Format:  cfg.Logging.Format,
		Service: cfg.ServiceName,
	})
	cfg.LogConfig(log)

	srv, err := server.New(context.Background(), cfg, log)
	if err != nil {
		return fmt.Errorf("initializing server: %w", err)
	}

	return srv.Run()
}
