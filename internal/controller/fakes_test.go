package controller

import (
	"context"
	"errors"
	"sync"

	"docbulk/internal/database"
	"docbulk/internal/model"
	"docbulk/internal/rabbitmq"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fakeStore is a document client that accepts everything unless fail is set
type fakeStore struct {
	mu      sync.Mutex
	calls   int
	written []string
	deleted []string
	fail    error
}

func (s *fakeStore) CreateDocuments(_ context.Context, docs []model.Document, _ string) (*model.BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail != nil {
		return nil, s.fail
	}
	result := &model.BatchResult{}
	for _, doc := range docs {
		s.written = append(s.written, doc.URI)
		result.URIs = append(result.URIs, doc.URI)
	}
	return result, nil
}

func (s *fakeStore) ReadDocuments(_ context.Context, uris []string, _ model.ReadOptions) ([]model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail != nil {
		return nil, s.fail
	}
	docs := make([]model.Document, len(uris))
	for i, uri := range uris {
		docs[i] = model.NewTextDocument(uri, "content of "+uri, nil)
	}
	return docs, nil
}

func (s *fakeStore) DeleteDocuments(_ context.Context, uris []string, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail != nil {
		return s.fail
	}
	s.deleted = append(s.deleted, uris...)
	return nil
}

type statusUpdate struct {
	id     string
	status model.JobStatus
	errMsg string
}

type completion struct {
	id         string
	status     model.JobStatus
	metrics    model.JobMetrics
	failedURIs []string
	errorList  []string
}

// fakeJobDB keeps job records in memory
type fakeJobDB struct {
	mu          sync.Mutex
	jobs        map[string]*model.Job
	updates     []statusUpdate
	completions []completion
	progress    []model.JobMetrics
	createErr   error
}

func newFakeJobDB() *fakeJobDB {
	return &fakeJobDB{jobs: make(map[string]*model.Job)}
}

func (d *fakeJobDB) CreateJob(_ context.Context, job *model.Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.createErr != nil {
		return d.createErr
	}
	if job.ID.IsZero() {
		job.ID = primitive.NewObjectID()
	}
	copied := *job
	d.jobs[job.ID.Hex()] = &copied
	return nil
}

func (d *fakeJobDB) GetJobByID(_ context.Context, id string) (*model.Job, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	job, ok := d.jobs[id]
	if !ok {
		return nil, database.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (d *fakeJobDB) ListJobs(_ context.Context, filter database.JobFilter, _, _ int) ([]*model.Job, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	jobs := make([]*model.Job, 0)
	for _, job := range d.jobs {
		if filter.Type != "" && job.Type != filter.Type {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (d *fakeJobDB) CountJobsByStatus(_ context.Context, status model.JobStatus) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var n int64
	for _, job := range d.jobs {
		if job.Status == status {
			n++
		}
	}
	return n, nil
}

func (d *fakeJobDB) UpdateJobStatus(_ context.Context, id string, status model.JobStatus, errorMsg string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	job, ok := d.jobs[id]
	if !ok {
		return database.ErrJobNotFound
	}
	job.Status = status
	d.updates = append(d.updates, statusUpdate{id: id, status: status, errMsg: errorMsg})
	return nil
}

func (d *fakeJobDB) UpdateProgress(_ context.Context, _ string, metrics model.JobMetrics) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.progress = append(d.progress, metrics)
	return nil
}

func (d *fakeJobDB) CompleteJob(_ context.Context, id string, status model.JobStatus, metrics model.JobMetrics, failedURIs, errorList []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	job, ok := d.jobs[id]
	if !ok {
		return database.ErrJobNotFound
	}
	job.Status = status
	job.Metrics = metrics
	d.completions = append(d.completions, completion{id, status, metrics, failedURIs, errorList})
	return nil
}

func (d *fakeJobDB) completed() []completion {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]completion(nil), d.completions...)
}

// fakeQueue records published messages and hands out a test-controlled delivery channel
type fakeQueue struct {
	mu         sync.Mutex
	published  []rabbitmq.JobMessage
	publishErr error
	deliveries chan amqp.Delivery
}

func (q *fakeQueue) Publish(_ context.Context, msg rabbitmq.JobMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.publishErr != nil {
		return q.publishErr
	}
	q.published = append(q.published, msg)
	return nil
}

func (q *fakeQueue) Consume(string) (<-chan amqp.Delivery, error) {
	if q.deliveries == nil {
		return nil, errors.New("channel closed")
	}
	return q.deliveries, nil
}

// fakeAcknowledger records how each delivery was settled
type fakeAcknowledger struct {
	mu      sync.Mutex
	acks    int
	nacks   int
	requeue []bool
}

func (a *fakeAcknowledger) Ack(uint64, bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks++
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAcknowledger) counts() (int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acks, a.nacks
}
