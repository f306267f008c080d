package orchestrator

import (
	"context"
	"iter"
	"slices"
	"sync"

	"docbulk/internal/model"
)

// DEFAULT_READ_BATCH_SIZE is the number of URIs per read request
const DEFAULT_READ_BATCH_SIZE = 100

// ReadJob fetches documents by URI in batches. Fetched documents are
// delivered through Results in completion order. Workers block while the
// results buffer is full, so a started read job must be drained by ranging
// over Results or by calling Wait.
type ReadJob struct {
	*Job[string]

	categories []string
	as         model.DocumentKind
	results    chan model.Document

	mu         sync.Mutex
	claimed    bool
	served     bool
	buffered   []model.Document
	bufferDone chan struct{}
}

// NewReadJob builds a read job with the given options
func NewReadJob(opts ...Option) (*ReadJob, error) {
	job, err := newJob[string](model.JobRead, DEFAULT_READ_BATCH_SIZE, identityURI, nil, opts...)
	if err != nil {
		return nil, err
	}

	r := &ReadJob{
		Job:        job,
		categories: []string{model.CategoryContent},
		results:    make(chan model.Document, bufferSize(job.threadCount, job.batchSize)),
	}
	job.process = r.readBatch
	job.onComplete = append(job.onComplete, func() { close(r.results) })

	return r, nil
}

// AddURIs registers an in-memory collection of URIs
func (r *ReadJob) AddURIs(uris ...string) error {
	return r.AddItems(uris...)
}

// SetCategories selects which parts of each document are fetched
func (r *ReadJob) SetCategories(categories ...string) error {
	copied := slices.Clone(categories)
	return r.configure(func() { r.categories = copied })
}

// SetOutputKind forces the kind of every returned document
func (r *ReadJob) SetOutputKind(kind model.DocumentKind) error {
	return r.configure(func() { r.as = kind })
}

func (r *ReadJob) readBatch(ctx context.Context, client DocumentClient, database string, batch []string) error {
	docs, err := client.ReadDocuments(ctx, batch, model.ReadOptions{
		Categories: r.categories,
		Database:   database,
		As:         r.as,
	})
	if err != nil {
		return err
	}

	for _, doc := range docs {
		r.results <- doc
	}
	return nil
}

// Results yields fetched documents as batches complete. The sequence is
// single-pass: only the first iteration after Start yields anything. Breaking
// out early discards the remaining documents.
func (r *ReadJob) Results() iter.Seq[model.Document] {
	return func(yield func(model.Document) bool) {
		if state := r.State(); state == model.StateCreated || state == model.StateConfigured {
			return
		}

		r.mu.Lock()
		if r.served {
			r.mu.Unlock()
			return
		}
		r.served = true

		// Wait already took the channel and is buffering it
		if r.claimed {
			done := r.bufferDone
			r.mu.Unlock()

			<-done
			for _, doc := range r.buffered {
				if !yield(doc) {
					break
				}
			}
			r.buffered = nil
			return
		}
		r.claimed = true
		r.mu.Unlock()

		for doc := range r.results {
			if !yield(doc) {
				go r.discard()
				return
			}
		}
	}
}

// Collect drains Results and waits for the job to complete
func (r *ReadJob) Collect() ([]model.Document, error) {
	docs := slices.Collect(r.Results())
	if err := r.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

// Wait blocks until the job completes. Documents not yet taken by Results are
// kept so a later Results call still yields them.
func (r *ReadJob) Wait() error {
	if state := r.State(); state == model.StateCreated || state == model.StateConfigured {
		return r.Job.Wait()
	}

	r.mu.Lock()
	if !r.claimed {
		r.claimed = true
		r.bufferDone = make(chan struct{})
		r.mu.Unlock()

		for doc := range r.results {
			r.buffered = append(r.buffered, doc)
		}
		close(r.bufferDone)
	} else {
		done := r.bufferDone
		r.mu.Unlock()
		if done != nil {
			<-done
		}
	}

	return r.Job.Wait()
}

func (r *ReadJob) discard() {
	for range r.results {
	}
}
