package orchestrator

import (
	"context"

	"docbulk/internal/loader"
	"docbulk/internal/model"

	"github.com/rs/zerolog/log"
)

// DEFAULT_WRITE_BATCH_SIZE is the number of documents per create request
const DEFAULT_WRITE_BATCH_SIZE = 100

// WriteJob creates documents in batches
type WriteJob struct {
	*Job[model.Document]
}

// NewWriteJob builds a write job with the given options
func NewWriteJob(opts ...Option) (*WriteJob, error) {
	job, err := newJob(model.JobWrite, DEFAULT_WRITE_BATCH_SIZE, documentURI, createBatch, opts...)
	if err != nil {
		return nil, err
	}
	return &WriteJob{Job: job}, nil
}

// AddDocuments registers an in-memory collection of documents
func (w *WriteJob) AddDocuments(docs ...model.Document) error {
	return w.AddItems(docs...)
}

// AddDirectory registers every file below path, with URIs rooted at uriPrefix
func (w *WriteJob) AddDirectory(path, uriPrefix string, opts loader.Options) error {
	return w.AddSource(DirectorySource{Path: path, URIPrefix: uriPrefix, Options: opts})
}

func documentURI(doc model.Document) string {
	return doc.URI
}

func createBatch(ctx context.Context, client DocumentClient, database string, batch []model.Document) error {
	result, err := client.CreateDocuments(ctx, batch, database)
	if err != nil {
		return err
	}

	if result != nil && len(result.URIs) != len(batch) {
		log.Debug().
			Int("sent", len(batch)).
			Int("acknowledged", len(result.URIs)).
			Msg("Store acknowledged a different number of documents than sent")
	}
	return nil
}
