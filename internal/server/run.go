package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"docbulk/internal/config"
	"docbulk/internal/controller"
	"docbulk/internal/database"
	"docbulk/internal/rabbitmq"

	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 30 * time.Second

// Run connects every dependency, starts the job consumer and serves the API
// until ctx is cancelled
func Run(ctx context.Context, cfg *config.Config) error {
	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to mongodb: %w", err)
	}
	defer func() {
		if err := db.Close(context.Background()); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}()

	redisCache, err := controller.OpenCache(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	if redisCache != nil {
		defer redisCache.Close()
	}

	rabbit, err := rabbitmq.NewClientFromConfig(cfg.RabbitMQ)
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}
	defer rabbit.Close()

	queue := rabbitmq.NewJobQueue(rabbit, cfg.RabbitMQ)
	if err := queue.Setup(); err != nil {
		return err
	}

	storage, err := controller.OpenStorage(ctx, cfg.S3)
	if err != nil {
		return fmt.Errorf("connect to s3: %w", err)
	}

	registry := controller.NewClientRegistry(cfg.DocStore, redisCache)
	defer func() {
		if err := registry.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close document clients")
		}
	}()

	runner := controller.NewRunner(cfg.Jobs, registry,
		controller.WithStorage(storage),
		controller.WithProgress(db),
	)

	jc := controller.NewJobController(db, queue, runner)
	if err := jc.ProcessJobs(ctx); err != nil {
		return err
	}
	defer jc.StopProcessing()

	httpServer := New(*cfg, controller.NewServer(db, redisCache, rabbit, storage), jc)

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
