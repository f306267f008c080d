package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"docbulk/internal/database"
	"docbulk/internal/model"
	"docbulk/internal/rabbitmq"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

const consumerRetryDelay = 5 * time.Second

// jobDescriptions are shown by GetAvailableJobTypes
var jobDescriptions = map[string]string{
	model.RequestLoad:   "Write documents from a directory or S3 prefix",
	model.RequestExport: "Read documents by URI and upload them to S3",
	model.RequestDelete: "Delete documents by URI",
}

// JobQueue carries job messages between the API and the consumers
type JobQueue interface {
	Publish(ctx context.Context, msg rabbitmq.JobMessage) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// JobController handles job operations
type JobController interface {
	// CreateJob validates and persists a request, then enqueues it
	CreateJob(ctx context.Context, req model.JobRequest) (*model.Job, error)

	// GetJob returns a job record by ID
	GetJob(ctx context.Context, id string) (*model.Job, error)

	// ListJobs returns job records newest first
	ListJobs(ctx context.Context, filter database.JobFilter, limit, offset int) ([]*model.Job, error)

	// GetAvailableJobTypes maps each request kind to a description
	GetAvailableJobTypes() map[string]string

	// ProcessJobs starts consuming and running queued jobs
	ProcessJobs(ctx context.Context) error

	// StopProcessing stops the consumer and waits for the running job
	StopProcessing()
}

type jobController struct {
	db          database.JobDatabase
	queue       JobQueue
	runner      *Runner
	consumerTag string
	shutdown    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// NewJobController creates a new job controller
func NewJobController(db database.JobDatabase, queue JobQueue, runner *Runner) JobController {
	return &jobController{
		db:       db,
		queue:    queue,
		runner:   runner,
		shutdown: make(chan struct{}),
	}
}

func (c *jobController) GetJob(ctx context.Context, id string) (*model.Job, error) {
	return c.db.GetJobByID(ctx, id)
}

func (c *jobController) ListJobs(ctx context.Context, filter database.JobFilter, limit, offset int) ([]*model.Job, error) {
	return c.db.ListJobs(ctx, filter, limit, offset)
}

func (c *jobController) GetAvailableJobTypes() map[string]string {
	types := make(map[string]string, len(model.RequestKinds))
	for _, kind := range model.RequestKinds {
		types[kind] = jobDescriptions[kind]
	}
	return types
}

// CreateJob creates a new job and enqueues it
func (c *jobController) CreateJob(ctx context.Context, req model.JobRequest) (*model.Job, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	job := &model.Job{
		Type:    req.Kind,
		Status:  model.StatusQueued,
		Request: req,
	}

	if err := c.db.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	msg := rabbitmq.JobMessage{JobID: job.ID.Hex(), Kind: job.Type}
	if err := c.queue.Publish(ctx, msg); err != nil {
		if updateErr := c.db.UpdateJobStatus(ctx, msg.JobID, model.StatusFailed, err.Error()); updateErr != nil {
			log.Error().Err(updateErr).Str("jobID", msg.JobID).Msg("Failed to mark unqueued job as failed")
		}
		job.Status = model.StatusFailed
		return job, fmt.Errorf("failed to enqueue job: %w", err)
	}

	log.Info().
		Str("jobID", msg.JobID).
		Str("jobType", job.Type).
		Msg("Job created and enqueued")

	return job, nil
}

// ProcessJobs starts the consumer goroutine
func (c *jobController) ProcessJobs(ctx context.Context) error {
	if c.runner == nil {
		return errors.New("no job runner configured")
	}

	c.consumerTag = fmt.Sprintf("docbulk-consumer-%s", uuid.New().String())
	c.startConsumer(ctx, c.consumerTag)

	log.Info().Strs("kinds", model.RequestKinds).Msg("Job processing started")
	return nil
}

// StopProcessing stops all job consumers
func (c *jobController) StopProcessing() {
	c.stopOnce.Do(func() { close(c.shutdown) })
	c.wg.Wait()
	log.Info().Msg("Job processing stopped")
}

func (c *jobController) stopped(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-c.shutdown:
		return true
	default:
		return false
	}
}

func (c *jobController) pause(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-c.shutdown:
	case <-time.After(consumerRetryDelay):
	}
}

// startConsumer consumes until shutdown, resubscribing whenever the delivery channel closes
func (c *jobController) startConsumer(ctx context.Context, consumerTag string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		log.Info().Str("consumerTag", consumerTag).Msg("Starting job consumer")

		for !c.stopped(ctx) {
			deliveries, err := c.queue.Consume(consumerTag)
			if err != nil {
				log.Error().Err(err).Str("consumerTag", consumerTag).Msg("Failed to consume from queue")
				c.pause(ctx)
				continue
			}

			c.drain(ctx, deliveries)
			if c.stopped(ctx) {
				break
			}

			log.Warn().Str("consumerTag", consumerTag).Msg("Consumer channel closed, reconnecting...")
			c.pause(ctx)
		}

		log.Info().Str("consumerTag", consumerTag).Msg("Job consumer stopped")
	}()
}

func (c *jobController) drain(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case delivery, ok := <-deliveries:
			if !ok {
				return
			}
			c.processDelivery(ctx, delivery)
		}
	}
}

// processDelivery runs the job named by a delivery and records its outcome
func (c *jobController) processDelivery(ctx context.Context, delivery amqp.Delivery) {
	msg, err := rabbitmq.DecodeJobMessage(delivery)
	if err != nil {
		log.Error().Err(err).Msg("Rejecting malformed job message")
		_ = delivery.Nack(false, false)
		return
	}

	logger := log.With().Str("jobID", msg.JobID).Str("jobType", msg.Kind).Logger()

	job, err := c.db.GetJobByID(ctx, msg.JobID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to retrieve job from database")
		_ = delivery.Nack(false, !errors.Is(err, database.ErrJobNotFound))
		return
	}

	if job.Status != model.StatusQueued {
		logger.Warn().Str("status", string(job.Status)).Msg("Skipping job that is no longer queued")
		_ = delivery.Ack(false)
		return
	}

	if err := c.db.UpdateJobStatus(ctx, msg.JobID, model.StatusProcessing, ""); err != nil {
		logger.Error().Err(err).Msg("Failed to update job status to processing")
		_ = delivery.Nack(false, true)
		return
	}

	logger.Info().Msg("Processing job")
	c.runJob(ctx, msg.JobID, job.Request)

	_ = delivery.Ack(false)
}

func (c *jobController) runJob(ctx context.Context, id string, req model.JobRequest) {
	logger := log.With().Str("jobID", id).Str("jobType", req.Kind).Logger()

	result, err := c.runner.Run(ctx, id, req)
	if err != nil {
		logger.Error().Err(err).Msg("Job failed to run")
		if updateErr := c.db.UpdateJobStatus(ctx, id, model.StatusFailed, err.Error()); updateErr != nil {
			logger.Error().Err(updateErr).Msg("Failed to update job status to failed")
		}
		return
	}

	errorList := result.Report.ErrorMessages()
	if result.Export != nil && len(result.Export.Failed) > 0 {
		errorList = append(errorList, fmt.Sprintf("%d documents failed to upload", len(result.Export.Failed)))
	}

	if err := c.db.CompleteJob(ctx, id, result.Status(), result.Metrics, result.FailedURIs(), errorList); err != nil {
		logger.Error().Err(err).Msg("Failed to record job outcome")
		return
	}

	logger.Info().
		Int("successful", result.Report.Successful).
		Int("failed", result.Report.Failed).
		Msg("Job processed")
}
