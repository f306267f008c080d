package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"sync"

	"docbulk/internal/loader"
	"docbulk/internal/model"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ExportResult summarises an export
type ExportResult struct {
	Uploaded int      `json:"uploaded"`
	Failed   []string `json:"failed,omitempty"`
}

// Export uploads every document under prefix, keyed by its URI, with up to
// the configured number of concurrent uploads. Metadata is written to a
// sidecar object next to the content. Failed uploads do not stop the export.
func (s *Storage) Export(ctx context.Context, docs iter.Seq[model.Document], prefix string) (ExportResult, error) {
	var (
		mu     sync.Mutex
		result ExportResult
		errs   *multierror.Error
	)

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)

	for doc := range docs {
		g.Go(func() error {
			err := s.exportDocument(ctx, doc, prefix)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed = append(result.Failed, doc.URI)
				errs = multierror.Append(errs, err)
				return nil
			}
			result.Uploaded++
			return nil
		})
	}
	_ = g.Wait()

	log.Info().
		Str("bucket", s.bucket).
		Str("prefix", prefix).
		Int("uploaded", result.Uploaded).
		Int("failed", len(result.Failed)).
		Msg("Export finished")

	return result, errs.ErrorOrNil()
}

func (s *Storage) exportDocument(ctx context.Context, doc model.Document, prefix string) error {
	key := joinKey(prefix, doc.URI)

	if err := s.putObject(ctx, key, doc.MimeType(), bytes.NewReader(doc.Content)); err != nil {
		return err
	}

	if !doc.Metadata.IsEmpty() {
		metadata, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", doc.URI, err)
		}
		if err := s.putObject(ctx, key+loader.MetadataSuffix, "application/json", bytes.NewReader(metadata)); err != nil {
			return err
		}
	}

	return nil
}
