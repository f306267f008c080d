package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// JobKind selects the operation a bulk job performs
type JobKind string

const (
	JobWrite  JobKind = "write"
	JobRead   JobKind = "read"
	JobDelete JobKind = "delete"
)

// Request kinds accepted by the job queue
const (
	RequestLoad   = "load"
	RequestExport = "export"
	RequestDelete = "delete"
)

// RequestKinds lists the request kinds in display order
var RequestKinds = []string{RequestLoad, RequestExport, RequestDelete}

// JobState is the lifecycle state of an in-process bulk job
type JobState string

const (
	StateCreated    JobState = "created"
	StateConfigured JobState = "configured"
	StateRunning    JobState = "running"
	StateCompleted  JobState = "completed"
)

// JobStatus represents the current state of a persisted job record
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// OutcomeStatus is the per-item result of a job
type OutcomeStatus string

const (
	OutcomePending OutcomeStatus = "pending"
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailure OutcomeStatus = "failure"
)

// IsTerminal reports whether the outcome can no longer change
func (s OutcomeStatus) IsTerminal() bool {
	return s == OutcomeSuccess || s == OutcomeFailure
}

// OutcomeRecord tracks a single work item through a job
type OutcomeRecord struct {
	ID        int           `bson:"id" json:"id"`
	URI       string        `bson:"uri" json:"uri"`
	Status    OutcomeStatus `bson:"status" json:"status"`
	Err       error         `bson:"-" json:"-"`
	Error     string        `bson:"error,omitempty" json:"error,omitempty"`
	UpdatedAt time.Time     `bson:"updated_at" json:"updated_at"`
}

// JobMetrics tracks the processing statistics for a job
type JobMetrics struct {
	TotalItems      int `bson:"total_items" json:"total_items"`
	PendingCount    int `bson:"pending_count" json:"pending_count"`
	SuccessCount    int `bson:"success_count" json:"success_count"`
	FailureCount    int `bson:"failure_count" json:"failure_count"`
	BatchesComplete int `bson:"batches_complete" json:"batches_complete"`
}

// Processed is the number of items that reached a terminal outcome
func (m JobMetrics) Processed() int {
	return m.SuccessCount + m.FailureCount
}

// JobRequest is the payload submitted to run a bulk job out of process
type JobRequest struct {
	Kind         string   `bson:"kind" json:"kind" binding:"required"`
	Database     string   `bson:"database,omitempty" json:"database,omitempty"`
	ThreadCount  int      `bson:"thread_count,omitempty" json:"thread_count,omitempty"`
	BatchSize    int      `bson:"batch_size,omitempty" json:"batch_size,omitempty"`
	Path         string   `bson:"path,omitempty" json:"path,omitempty"`
	URIPrefix    string   `bson:"uri_prefix,omitempty" json:"uri_prefix,omitempty"`
	LoadMetadata bool     `bson:"load_metadata,omitempty" json:"load_metadata,omitempty"`
	Raw          bool     `bson:"raw,omitempty" json:"raw,omitempty"`
	// S3Prefix is the object source of a load or the destination of an export
	S3Prefix     string   `bson:"s3_prefix,omitempty" json:"s3_prefix,omitempty"`
	URIs         []string `bson:"uris,omitempty" json:"uris,omitempty"`
	Categories   []string `bson:"categories,omitempty" json:"categories,omitempty"`
}

// Job represents a persisted bulk job and its final report
type Job struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RunID       string             `bson:"run_id,omitempty" json:"run_id,omitempty"`
	Type        string             `bson:"type" json:"type"`
	Status      JobStatus          `bson:"status" json:"status"`
	Request     JobRequest         `bson:"request" json:"request"`
	Metrics     JobMetrics         `bson:"metrics" json:"metrics"`
	FailedURIs  []string           `bson:"failed_uris,omitempty" json:"failed_uris,omitempty"`
	ErrorList   []string           `bson:"error_list,omitempty" json:"error_list,omitempty"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
	CompletedAt *time.Time         `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}
