package database

import (
	"context"
	"fmt"
	"time"

	"docbulk/internal/config"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const JOBS_COLLECTION = "jobs"

// Database persists bulk job records
type Database interface {
	Health() error
	Close(ctx context.Context) error
	JobDatabase
}

type mongoDB struct {
	client *mongo.Client
	db     *mongo.Database

	jobsCol *mongo.Collection
}

// New connects to MongoDB and ensures the jobs indexes exist
func New(cfg *config.Config) (Database, error) {
	clientOptions := options.Client().ApplyURI(cfg.MongoDB.URI)
	if cfg.MongoDB.Username != "" {
		clientOptions.SetAuth(options.Credential{
			Username: cfg.MongoDB.Username,
			Password: cfg.MongoDB.Password,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	db := client.Database(cfg.MongoDB.DB)
	jobsCol := db.Collection(JOBS_COLLECTION)

	jobIndexModels := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "status", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "type", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "type", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "created_at", Value: -1}},
		},
		{
			// Expire finished jobs after 90 days
			Keys:    bson.D{{Key: "completed_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(60 * 60 * 24 * 90),
		},
	}

	if _, err := jobsCol.Indexes().CreateMany(ctx, jobIndexModels); err != nil {
		log.Warn().Err(err).Str("collection", JOBS_COLLECTION).Msg("Error creating indexes")
	}

	log.Info().
		Str("db", cfg.MongoDB.DB).
		Msg("Connected to MongoDB")

	return newMongoDB(client, db), nil
}

func newMongoDB(client *mongo.Client, db *mongo.Database) *mongoDB {
	return &mongoDB{
		client:  client,
		db:      db,
		jobsCol: db.Collection(JOBS_COLLECTION),
	}
}

// Health pings the primary
func (m *mongoDB) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := m.client.Ping(ctx, nil); err != nil {
		log.Error().Err(err).Msg("Database health error")
		return err
	}

	return nil
}

// Close disconnects the client
func (m *mongoDB) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
