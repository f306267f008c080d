package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	"docbulk/internal/model"
)

var errTransport = errors.New("connection refused")

// fakeClient records every batch it receives
type fakeClient struct {
	mu      sync.Mutex
	calls   [][]string
	options []model.ReadOptions
	dbs     []string
	fail    func(uris []string) error
	closed  int
}

func (c *fakeClient) record(ctx context.Context, uris []string, database string) error {
	c.mu.Lock()
	c.calls = append(c.calls, append([]string(nil), uris...))
	c.dbs = append(c.dbs, database)
	fail := c.fail
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if fail != nil {
		return fail(uris)
	}
	return nil
}

func (c *fakeClient) CreateDocuments(ctx context.Context, docs []model.Document, database string) (*model.BatchResult, error) {
	uris := make([]string, len(docs))
	for i, doc := range docs {
		uris[i] = doc.URI
	}
	if err := c.record(ctx, uris, database); err != nil {
		return nil, err
	}
	return &model.BatchResult{URIs: uris}, nil
}

func (c *fakeClient) ReadDocuments(ctx context.Context, uris []string, opts model.ReadOptions) ([]model.Document, error) {
	c.mu.Lock()
	c.options = append(c.options, opts)
	c.mu.Unlock()

	if err := c.record(ctx, uris, opts.Database); err != nil {
		return nil, err
	}

	docs := make([]model.Document, len(uris))
	for i, uri := range uris {
		docs[i] = model.NewTextDocument(uri, "content of "+uri, nil)
	}
	return docs, nil
}

func (c *fakeClient) DeleteDocuments(ctx context.Context, uris []string, database string) error {
	return c.record(ctx, uris, database)
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *fakeClient) allCalls() [][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]string(nil), c.calls...)
}

func (c *fakeClient) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func makeDocuments(prefix string, n int) []model.Document {
	docs := make([]model.Document, n)
	for i := range n {
		docs[i] = model.NewTextDocument(fmt.Sprintf("/%s/%05d.txt", prefix, i), "body", nil)
	}
	return docs
}

func makeURIs(prefix string, n int) []string {
	uris := make([]string, n)
	for i := range n {
		uris[i] = fmt.Sprintf("/%s/%05d.json", prefix, i)
	}
	return uris
}

// erroringSource yields an error for every index in bad
type erroringSource struct {
	docs []model.Document
	bad  map[int]bool
}

func (s erroringSource) Items(context.Context) iter.Seq2[model.Document, error] {
	return func(yield func(model.Document, error) bool) {
		for i, doc := range s.docs {
			if s.bad[i] {
				if !yield(model.Document{}, fmt.Errorf("unreadable item %d", i)) {
					return
				}
				continue
			}
			if !yield(doc, nil) {
				return
			}
		}
	}
}

// recordingSink keeps every progress snapshot it receives
type recordingSink struct {
	mu       sync.Mutex
	jobIDs   []string
	snapshot []model.JobMetrics
}

func (s *recordingSink) UpdateProgress(_ context.Context, jobID string, metrics model.JobMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobIDs = append(s.jobIDs, jobID)
	s.snapshot = append(s.snapshot, metrics)
	return nil
}

func (s *recordingSink) last() (model.JobMetrics, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snapshot) == 0 {
		return model.JobMetrics{}, false
	}
	return s.snapshot[len(s.snapshot)-1], true
}
