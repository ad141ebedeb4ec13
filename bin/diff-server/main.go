package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"

	"visual-diff/internal/config"
	"visual-diff/internal/runnable"
	"visual-diff/internal/storage"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("failed to load .env: %v", err)
	}

	var configPath string
	var schedule string
	flag.StringVar(&configPath, "config", config.EnvOrDefaultValue("CONFIG", ""), "YAML file declaring sources, pairs and options")
	flag.StringVar(&schedule, "schedule", config.EnvOrDefaultValue("SCHEDULE", ""), "Cron expression for scheduled comparison runs (e.g. \"0 * * * *\")")
	flag.BoolVar(&runnable.Debug, "debug", config.EnvOrDefaultValue("DEBUG", false), "Enable debug endpoints and human readable logs")
	flag.Parse()

	ctx := context.Background()

	c, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := c.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	s, err := storage.New(ctx, c.Storage)
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}

	server := runnable.NewServer(c, s, schedule)
	if err := server.Start(ctx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
