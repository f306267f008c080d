package orchestrator

import (
	"context"

	"docbulk/internal/model"
)

// DEFAULT_DELETE_BATCH_SIZE is the number of URIs per delete request
const DEFAULT_DELETE_BATCH_SIZE = 250

// DeleteJob removes documents by URI in batches
type DeleteJob struct {
	*Job[string]
}

// NewDeleteJob builds a delete job with the given options
func NewDeleteJob(opts ...Option) (*DeleteJob, error) {
	job, err := newJob(model.JobDelete, DEFAULT_DELETE_BATCH_SIZE, identityURI, deleteBatch, opts...)
	if err != nil {
		return nil, err
	}
	return &DeleteJob{Job: job}, nil
}

// AddURIs registers an in-memory collection of URIs
func (d *DeleteJob) AddURIs(uris ...string) error {
	return d.AddItems(uris...)
}

func identityURI(uri string) string {
	return uri
}

func deleteBatch(ctx context.Context, client DocumentClient, database string, batch []string) error {
	return client.DeleteDocuments(ctx, batch, database)
}
