package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"docbulk/internal/config"
	"docbulk/internal/server"

	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "config/config.json", "path to the JSON config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Configure logging
	config.SetupLogger(cfg.Logging)
	log.Info().Str("env", cfg.Env).Int("port", cfg.Port).Msg("Starting docbulk API")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("API stopped with error")
		os.Exit(1)
	}

	log.Info().Msg("Shutdown complete")
}
