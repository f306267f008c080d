package orchestrator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"docbulk/internal/model"

	"github.com/hashicorp/go-multierror"
)

// Status is the per-job aggregate of work item outcomes. The feeder registers
// items and workers mark them; every method is safe for concurrent use.
// Items are tracked by ID, not URI: each tracked item is in exactly one of
// pending, successful or failed, but a URI registered twice may appear in
// more than one of those lists.
type Status struct {
	mu      sync.Mutex
	records []model.OutcomeRecord

	pending    int
	successful int
	failed     int
}

// NewStatus creates an empty status
func NewStatus() *Status {
	return &Status{}
}

// AddPending registers an item and returns its tracking ID. uri may be empty.
func (s *Status) AddPending(uri string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := len(s.records)
	s.records = append(s.records, model.OutcomeRecord{
		ID:        id,
		URI:       uri,
		Status:    model.OutcomePending,
		UpdatedAt: time.Now(),
	})
	s.pending++
	return id
}

// MarkSuccessful moves a pending item to success
func (s *Status) MarkSuccessful(id int) error {
	return s.mark(id, model.OutcomeSuccess, nil)
}

// MarkFailed moves a pending item to failure and keeps the cause
func (s *Status) MarkFailed(id int, cause error) error {
	return s.mark(id, model.OutcomeFailure, cause)
}

func (s *Status) mark(id int, outcome model.OutcomeStatus, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id < 0 || id >= len(s.records) {
		return fmt.Errorf("%w: %d", ErrUnknownItem, id)
	}

	record := &s.records[id]
	if record.Status.IsTerminal() {
		return fmt.Errorf("%w: item %d (%s) is %s", ErrTerminalOutcome, id, record.URI, record.Status)
	}

	record.Status = outcome
	record.UpdatedAt = time.Now()
	s.pending--

	switch outcome {
	case model.OutcomeSuccess:
		s.successful++
	case model.OutcomeFailure:
		s.failed++
		record.Err = cause
		if cause != nil {
			record.Error = cause.Error()
		}
	}

	return nil
}

// Total is the number of items ever registered
func (s *Status) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Pending is the number of items without an outcome yet
func (s *Status) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Successful is the number of items that succeeded
func (s *Status) Successful() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.successful
}

// Failed is the number of items that failed
func (s *Status) Failed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// Completed is successful + failed
func (s *Status) Completed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.successful + s.failed
}

// PendingURIs lists pending item URIs in registration order
func (s *Status) PendingURIs() []string {
	return s.urisWith(model.OutcomePending)
}

// SuccessfulURIs lists successful item URIs in registration order
func (s *Status) SuccessfulURIs() []string {
	return s.urisWith(model.OutcomeSuccess)
}

// FailedURIs lists failed item URIs in registration order
func (s *Status) FailedURIs() []string {
	return s.urisWith(model.OutcomeFailure)
}

func (s *Status) urisWith(outcome model.OutcomeStatus) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	uris := make([]string, 0)
	for _, record := range s.records {
		if record.Status == outcome {
			uris = append(uris, record.URI)
		}
	}
	return uris
}

// Record returns a copy of the record with the given tracking ID
func (s *Status) Record(id int) (model.OutcomeRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id < 0 || id >= len(s.records) {
		return model.OutcomeRecord{}, false
	}
	return s.records[id], true
}

// Records returns a copy of every record in registration order
func (s *Status) Records() []model.OutcomeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]model.OutcomeRecord, len(s.records))
	copy(records, s.records)
	return records
}

// RecordMap returns records keyed by URI. When the same URI was registered
// more than once the latest registration wins.
func (s *Status) RecordMap() map[string]model.OutcomeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make(map[string]model.OutcomeRecord, len(s.records))
	for _, record := range s.records {
		records[record.URI] = record
	}
	return records
}

// Metrics summarises the counts for persistence
func (s *Status) Metrics() model.JobMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	return model.JobMetrics{
		TotalItems:   len(s.records),
		PendingCount: s.pending,
		SuccessCount: s.successful,
		FailureCount: s.failed,
	}
}

// Report takes a consistent point-in-time snapshot
func (s *Status) Report() Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := Report{
		Total:          len(s.records),
		Pending:        s.pending,
		Successful:     s.successful,
		Failed:         s.failed,
		Completed:      s.successful + s.failed,
		PendingURIs:    make([]string, 0, s.pending),
		SuccessfulURIs: make([]string, 0, s.successful),
		FailedURIs:     make([]string, 0, s.failed),
	}

	for _, record := range s.records {
		switch record.Status {
		case model.OutcomePending:
			report.PendingURIs = append(report.PendingURIs, record.URI)
		case model.OutcomeSuccess:
			report.SuccessfulURIs = append(report.SuccessfulURIs, record.URI)
		case model.OutcomeFailure:
			report.FailedURIs = append(report.FailedURIs, record.URI)
			report.Failures = append(report.Failures, record)
		}
	}

	return report
}

// Report is a snapshot of a job's status
type Report struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Completed  int `json:"completed"`

	PendingURIs    []string              `json:"pending_uris"`
	SuccessfulURIs []string              `json:"successful_uris"`
	FailedURIs     []string              `json:"failed_uris"`
	Failures       []model.OutcomeRecord `json:"failures,omitempty"`
}

// Err aggregates the distinct errors behind failed items. It returns nil when
// nothing failed.
func (r Report) Err() error {
	var result *multierror.Error
	seen := make(map[string]bool)

	for _, failure := range r.Failures {
		cause := failure.Err
		if cause == nil {
			cause = errors.New("unknown failure")
		}
		if seen[cause.Error()] {
			continue
		}
		seen[cause.Error()] = true
		result = multierror.Append(result, cause)
	}

	return result.ErrorOrNil()
}

// ErrorMessages returns the distinct failure messages, in first-seen order
func (r Report) ErrorMessages() []string {
	messages := make([]string, 0)
	seen := make(map[string]bool)
	for _, failure := range r.Failures {
		if failure.Error == "" || seen[failure.Error] {
			continue
		}
		seen[failure.Error] = true
		messages = append(messages, failure.Error)
	}
	return messages
}
