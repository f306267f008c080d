package database

import (
	"context"
	"errors"
	"time"

	"docbulk/internal/model"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrJobNotFound is returned when no job record matches an ID
var ErrJobNotFound = errors.New("job not found")

// maxStoredFailures caps the failed URIs kept on a job record
const maxStoredFailures = 1000

// JobFilter narrows ListJobs. Empty fields match everything.
type JobFilter struct {
	Status model.JobStatus
	Type   string
}

// JobDatabase defines job-related database operations
type JobDatabase interface {
	// Create a new job
	CreateJob(ctx context.Context, job *model.Job) error

	// Get a job by ID
	GetJobByID(ctx context.Context, id string) (*model.Job, error)

	// List jobs newest first
	ListJobs(ctx context.Context, filter JobFilter, limit, offset int) ([]*model.Job, error)

	// Count jobs by status
	CountJobsByStatus(ctx context.Context, status model.JobStatus) (int64, error)

	// Update job status
	UpdateJobStatus(ctx context.Context, id string, status model.JobStatus, errorMsg string) error

	// Update job metrics while it runs
	UpdateProgress(ctx context.Context, id string, metrics model.JobMetrics) error

	// Record the final outcome of a job
	CompleteJob(ctx context.Context, id string, status model.JobStatus, metrics model.JobMetrics, failedURIs, errorList []string) error
}

// CreateJob creates a new job in the database
func (m *mongoDB) CreateJob(ctx context.Context, job *model.Job) error {
	if job.ID.IsZero() {
		job.ID = primitive.NewObjectID()
	}

	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now

	if job.ErrorList == nil {
		job.ErrorList = []string{}
	}

	if _, err := m.jobsCol.InsertOne(ctx, job); err != nil {
		log.Error().Err(err).Str("jobID", job.ID.Hex()).Msg("Failed to create job")
		return err
	}

	log.Debug().Str("jobID", job.ID.Hex()).Str("type", job.Type).Msg("Created new job")
	return nil
}

// GetJobByID retrieves a job by its ID
func (m *mongoDB) GetJobByID(ctx context.Context, id string) (*model.Job, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrJobNotFound
	}

	var job model.Job
	err = m.jobsCol.FindOne(ctx, bson.M{"_id": objectID}).Decode(&job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrJobNotFound
		}
		log.Error().Err(err).Str("jobID", id).Msg("Failed to get job")
		return nil, err
	}

	return &job, nil
}

// ListJobs retrieves jobs matching filter, newest first
func (m *mongoDB) ListJobs(ctx context.Context, filter JobFilter, limit, offset int) ([]*model.Job, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Type != "" {
		query["type"] = filter.Type
	}

	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(int64(offset)).
		SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := m.jobsCol.Find(ctx, query, opts)
	if err != nil {
		log.Error().Err(err).Str("status", string(filter.Status)).Str("type", filter.Type).Msg("Failed to list jobs")
		return nil, err
	}
	defer cursor.Close(ctx)

	jobs := make([]*model.Job, 0)
	if err := cursor.All(ctx, &jobs); err != nil {
		log.Error().Err(err).Msg("Failed to decode jobs")
		return nil, err
	}

	return jobs, nil
}

// CountJobsByStatus counts jobs with a specific status
func (m *mongoDB) CountJobsByStatus(ctx context.Context, status model.JobStatus) (int64, error) {
	count, err := m.jobsCol.CountDocuments(ctx, bson.M{"status": status})
	if err != nil {
		log.Error().Err(err).Str("status", string(status)).Msg("Failed to count jobs by status")
		return 0, err
	}

	return count, nil
}

// UpdateJobStatus updates a job's status and optionally adds an error message
func (m *mongoDB) UpdateJobStatus(ctx context.Context, id string, status model.JobStatus, errorMsg string) error {
	set := bson.M{
		"status":     status,
		"updated_at": time.Now(),
	}
	if status == model.StatusCompleted || status == model.StatusFailed {
		set["completed_at"] = time.Now()
	}

	update := bson.M{"$set": set}
	if errorMsg != "" {
		update["$push"] = bson.M{"error_list": errorMsg}
	}

	if err := m.updateJob(ctx, id, update); err != nil {
		log.Error().Err(err).Str("jobID", id).Str("status", string(status)).Msg("Failed to update job status")
		return err
	}

	log.Debug().Str("jobID", id).Str("status", string(status)).Msg("Updated job status")
	return nil
}

// UpdateProgress stores a metrics snapshot. It implements the orchestrator's progress sink.
func (m *mongoDB) UpdateProgress(ctx context.Context, id string, metrics model.JobMetrics) error {
	update := bson.M{
		"$set": bson.M{
			"metrics":    metrics,
			"updated_at": time.Now(),
		},
	}

	if err := m.updateJob(ctx, id, update); err != nil {
		return err
	}

	log.Debug().Str("jobID", id).
		Int("totalItems", metrics.TotalItems).
		Int("successCount", metrics.SuccessCount).
		Int("failureCount", metrics.FailureCount).
		Int("batchesComplete", metrics.BatchesComplete).
		Msg("Updated job progress")
	return nil
}

// CompleteJob stores the final metrics and failures of a job
func (m *mongoDB) CompleteJob(ctx context.Context, id string, status model.JobStatus, metrics model.JobMetrics, failedURIs, errorList []string) error {
	if len(failedURIs) > maxStoredFailures {
		failedURIs = failedURIs[:maxStoredFailures]
	}

	now := time.Now()
	update := bson.M{
		"$set": bson.M{
			"status":       status,
			"metrics":      metrics,
			"failed_uris":  failedURIs,
			"updated_at":   now,
			"completed_at": now,
		},
	}
	if len(errorList) > 0 {
		update["$push"] = bson.M{"error_list": bson.M{"$each": errorList}}
	}

	if err := m.updateJob(ctx, id, update); err != nil {
		log.Error().Err(err).Str("jobID", id).Msg("Failed to complete job")
		return err
	}

	log.Info().
		Str("jobID", id).
		Str("status", string(status)).
		Int("successCount", metrics.SuccessCount).
		Int("failureCount", metrics.FailureCount).
		Msg("Job record completed")
	return nil
}

func (m *mongoDB) updateJob(ctx context.Context, id string, update bson.M) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrJobNotFound
	}

	result, err := m.jobsCol.UpdateOne(ctx, bson.M{"_id": objectID}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrJobNotFound
	}

	return nil
}
