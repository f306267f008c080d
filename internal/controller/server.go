package controller

import (
	"context"
	"errors"

	"docbulk/internal/aws"
	"docbulk/internal/cache"
	"docbulk/internal/database"
	"docbulk/internal/rabbitmq"
)

// ErrNotConfigured is reported for optional dependencies that were not set up
var ErrNotConfigured = errors.New("not configured")

type ServerController interface {
	DBHealth() error
	CacheHealth(ctx context.Context) error
	RabbitHealth() error
	StorageHealth(ctx context.Context) error
	Online() string
}

type serverController struct {
	db      database.Database
	cache   cache.Cache
	rabbit  rabbitmq.Client
	storage *aws.Storage
}

// NewServer builds the health controller. cache and storage may be nil.
func NewServer(db database.Database, cache cache.Cache, rabbit rabbitmq.Client, storage *aws.Storage) ServerController {
	return &serverController{
		db:      db,
		cache:   cache,
		rabbit:  rabbit,
		storage: storage,
	}
}

func (sc *serverController) Online() string {
	return "Online"
}

func (sc *serverController) DBHealth() error {
	return sc.db.Health()
}

func (sc *serverController) CacheHealth(ctx context.Context) error {
	if sc.cache == nil {
		return ErrNotConfigured
	}
	return sc.cache.Ping(ctx)
}

func (sc *serverController) RabbitHealth() error {
	return sc.rabbit.Health()
}

func (sc *serverController) StorageHealth(ctx context.Context) error {
	if sc.storage == nil {
		return ErrNotConfigured
	}
	return sc.storage.TestConnection(ctx)
}
