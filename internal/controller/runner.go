package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"docbulk/internal/aws"
	"docbulk/internal/config"
	"docbulk/internal/loader"
	"docbulk/internal/model"
	"docbulk/internal/orchestrator"
	"docbulk/pkg/docstore"

	"github.com/rs/zerolog/log"
)

// DEFAULT_CLIENT is the registry name of the client built from the docstore config
const DEFAULT_CLIENT = "default"

var (
	// ErrUnknownKind is returned for a request kind no runner handles
	ErrUnknownKind = errors.New("unknown job kind")

	// ErrInvalidRequest is returned when a request lacks the inputs its kind needs
	ErrInvalidRequest = errors.New("invalid job request")

	// ErrNoStorage is returned when a request needs S3 and none is configured
	ErrNoStorage = errors.New("s3 storage is not configured")
)

// RunResult is the outcome of one bulk run
type RunResult struct {
	Kind    string              `json:"kind"`
	JobID   string              `json:"job_id"`
	Metrics model.JobMetrics    `json:"metrics"`
	Report  orchestrator.Report `json:"report"`
	Export  *aws.ExportResult   `json:"export,omitempty"`
}

// FailedURIs lists items that failed in the store or during export
func (r RunResult) FailedURIs() []string {
	failed := append([]string{}, r.Report.FailedURIs...)
	if r.Export != nil {
		failed = append(failed, r.Export.Failed...)
	}
	return failed
}

// Status is the job record status the result maps to. A run in which every
// item failed is a failed job.
func (r RunResult) Status() model.JobStatus {
	if r.Report.Total > 0 && r.Report.Successful == 0 {
		return model.StatusFailed
	}
	return model.StatusCompleted
}

// documentLine is the JSON lines form of an exported document
type documentLine struct {
	URI      string             `json:"uri"`
	Kind     model.DocumentKind `json:"kind"`
	Content  string             `json:"content,omitempty"`
	Binary   []byte             `json:"binary,omitempty"`
	Metadata *model.Metadata    `json:"metadata,omitempty"`
}

func newDocumentLine(doc model.Document) documentLine {
	line := documentLine{URI: doc.URI, Kind: doc.Kind, Metadata: doc.Metadata}
	if doc.Kind == model.KindBinary {
		line.Binary = doc.Content
	} else {
		line.Content = string(doc.Content)
	}
	return line
}

// Runner turns job requests into orchestrator jobs and runs them to completion
type Runner struct {
	jobs     config.JobsConfig
	registry *orchestrator.ClientRegistry
	storage  *aws.Storage
	progress orchestrator.ProgressSink

	clientConfig map[string]string
	output       io.Writer
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithStorage enables S3 loads and exports
func WithStorage(storage *aws.Storage) RunnerOption {
	return func(r *Runner) { r.storage = storage }
}

// WithProgress flushes running metrics to sink
func WithProgress(sink orchestrator.ProgressSink) RunnerOption {
	return func(r *Runner) { r.progress = sink }
}

// WithClientConfig makes every job build and own its client from values
// instead of borrowing the registered one
func WithClientConfig(values map[string]string) RunnerOption {
	return func(r *Runner) { r.clientConfig = values }
}

// WithOutput writes exported documents as JSON lines to w when a request has no S3 prefix
func WithOutput(w io.Writer) RunnerOption {
	return func(r *Runner) { r.output = w }
}

// NewRunner creates a runner that borrows DEFAULT_CLIENT from registry
func NewRunner(jobs config.JobsConfig, registry *orchestrator.ClientRegistry, opts ...RunnerOption) *Runner {
	runner := &Runner{
		jobs:     jobs,
		registry: registry,
	}
	for _, opt := range opts {
		opt(runner)
	}
	return runner
}

// DocStoreFactory builds a docstore client from key/value settings
func DocStoreFactory(values map[string]string) (orchestrator.DocumentClient, error) {
	client, err := docstore.NewFromMap(values)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// ValidateRequest checks that req names a known kind and carries its inputs
func ValidateRequest(req model.JobRequest) error {
	switch req.Kind {
	case model.RequestLoad:
		if req.Path == "" && req.S3Prefix == "" {
			return fmt.Errorf("%w: load needs a path or an s3_prefix", ErrInvalidRequest)
		}
	case model.RequestExport, model.RequestDelete:
		if len(req.URIs) == 0 {
			return fmt.Errorf("%w: %s needs uris", ErrInvalidRequest, req.Kind)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, req.Kind)
	}
	if req.ThreadCount < 0 || req.BatchSize < 0 {
		return fmt.Errorf("%w: thread_count and batch_size must not be negative", ErrInvalidRequest)
	}
	return nil
}

// Run executes req under id and blocks until every item has an outcome
func (r *Runner) Run(ctx context.Context, id string, req model.JobRequest) (*RunResult, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	switch req.Kind {
	case model.RequestLoad:
		return r.runLoad(ctx, id, req)
	case model.RequestExport:
		return r.runExport(ctx, id, req)
	default:
		return r.runDelete(ctx, id, req)
	}
}

func (r *Runner) options(id string, req model.JobRequest, defaultBatch int) []orchestrator.Option {
	threads := req.ThreadCount
	if threads == 0 {
		threads = r.jobs.ThreadCount
	}
	batch := req.BatchSize
	if batch == 0 {
		batch = defaultBatch
	}

	opts := []orchestrator.Option{orchestrator.WithID(id)}
	if threads > 0 {
		opts = append(opts, orchestrator.WithThreadCount(threads))
	}
	if batch > 0 {
		opts = append(opts, orchestrator.WithBatchSize(batch))
	}
	if r.progress != nil {
		interval := time.Duration(r.jobs.ProgressInterval) * time.Second
		opts = append(opts, orchestrator.WithProgressSink(r.progress, interval))
	}
	return opts
}

// configurable is the job surface shared by every job kind
type configurable interface {
	SetClientConfig(config map[string]string, factory orchestrator.ClientFactory) error
	UseRegistry(registry *orchestrator.ClientRegistry, name string) error
	SetDatabase(database string) error
}

func (r *Runner) configure(job configurable, req model.JobRequest) error {
	if r.clientConfig != nil {
		if err := job.SetClientConfig(r.clientConfig, DocStoreFactory); err != nil {
			return err
		}
	} else if err := job.UseRegistry(r.registry, DEFAULT_CLIENT); err != nil {
		return err
	}

	if req.Database != "" {
		return job.SetDatabase(req.Database)
	}
	return nil
}

func (r *Runner) runLoad(ctx context.Context, id string, req model.JobRequest) (*RunResult, error) {
	job, err := orchestrator.NewWriteJob(r.options(id, req, r.jobs.WriteBatchSize)...)
	if err != nil {
		return nil, err
	}
	if err := r.configure(job, req); err != nil {
		return nil, err
	}

	opts := loader.Options{Raw: req.Raw, LoadMetadata: req.LoadMetadata}
	if req.Path != "" {
		if err := job.AddDirectory(req.Path, req.URIPrefix, opts); err != nil {
			return nil, err
		}
	}
	if req.S3Prefix != "" {
		if r.storage == nil {
			return nil, ErrNoStorage
		}
		if err := job.AddSource(r.storage.Source(req.S3Prefix, req.URIPrefix, opts)); err != nil {
			return nil, err
		}
	}

	if err := job.Start(ctx); err != nil {
		return nil, err
	}
	if err := job.Wait(); err != nil {
		return nil, err
	}

	return &RunResult{Kind: req.Kind, JobID: job.ID(), Metrics: job.Metrics(), Report: job.Report()}, nil
}

func (r *Runner) runExport(ctx context.Context, id string, req model.JobRequest) (*RunResult, error) {
	if req.S3Prefix != "" && r.storage == nil {
		return nil, ErrNoStorage
	}
	if req.S3Prefix == "" && r.output == nil {
		return nil, fmt.Errorf("%w: export needs an s3_prefix", ErrInvalidRequest)
	}

	job, err := orchestrator.NewReadJob(r.options(id, req, r.jobs.ReadBatchSize)...)
	if err != nil {
		return nil, err
	}
	if err := r.configure(job, req); err != nil {
		return nil, err
	}
	if len(req.Categories) > 0 {
		if err := job.SetCategories(req.Categories...); err != nil {
			return nil, err
		}
	}
	if err := job.AddURIs(req.URIs...); err != nil {
		return nil, err
	}

	if err := job.Start(ctx); err != nil {
		return nil, err
	}

	result := &RunResult{Kind: req.Kind, JobID: job.ID()}
	if req.S3Prefix != "" {
		exported, err := r.storage.Export(ctx, job.Results(), req.S3Prefix)
		if err != nil {
			log.Warn().Err(err).Str("jobID", job.ID()).Msg("Export finished with upload failures")
		}
		result.Export = &exported
	} else {
		encoder := json.NewEncoder(r.output)
		for doc := range job.Results() {
			if err := encoder.Encode(newDocumentLine(doc)); err != nil {
				log.Warn().Err(err).Str("uri", doc.URI).Msg("Failed to write document")
			}
		}
	}

	if err := job.Wait(); err != nil {
		return nil, err
	}

	result.Metrics = job.Metrics()
	result.Report = job.Report()
	return result, nil
}

func (r *Runner) runDelete(ctx context.Context, id string, req model.JobRequest) (*RunResult, error) {
	job, err := orchestrator.NewDeleteJob(r.options(id, req, r.jobs.DeleteBatchSize)...)
	if err != nil {
		return nil, err
	}
	if err := r.configure(job, req); err != nil {
		return nil, err
	}
	if err := job.AddURIs(req.URIs...); err != nil {
		return nil, err
	}

	if err := job.Start(ctx); err != nil {
		return nil, err
	}
	if err := job.Wait(); err != nil {
		return nil, err
	}

	return &RunResult{Kind: req.Kind, JobID: job.ID(), Metrics: job.Metrics(), Report: job.Report()}, nil
}
