package aws

import (
	"context"
	"fmt"
	"iter"
	"path"
	"strings"

	"docbulk/internal/loader"
	"docbulk/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// ObjectSource feeds a write job with the objects below a key prefix
type ObjectSource struct {
	storage   *Storage
	prefix    string
	uriPrefix string
	options   loader.Options
}

// Source returns a job source over the objects below prefix. Document URIs
// are uriPrefix followed by the key relative to prefix.
func (s *Storage) Source(prefix, uriPrefix string, opts loader.Options) *ObjectSource {
	return &ObjectSource{
		storage:   s,
		prefix:    prefix,
		uriPrefix: uriPrefix,
		options:   opts,
	}
}

// Items lists the prefix page by page and downloads each object lazily.
// Listing failures end the sequence, download failures skip one object.
func (o *ObjectSource) Items(ctx context.Context) iter.Seq2[model.Document, error] {
	return func(yield func(model.Document, error) bool) {
		paginator := s3.NewListObjectsV2Paginator(o.storage.s3, &s3.ListObjectsV2Input{
			Bucket: aws.String(o.storage.bucket),
			Prefix: aws.String(o.prefix),
		})

		pages := 0
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				yield(model.Document{}, fmt.Errorf("list s3://%s/%s: %w", o.storage.bucket, o.prefix, err))
				return
			}
			pages++

			for _, object := range page.Contents {
				key := aws.ToString(object.Key)
				if skipKey(key) {
					continue
				}

				if !yield(o.document(ctx, key)) {
					return
				}
			}
		}

		log.Debug().
			Str("bucket", o.storage.bucket).
			Str("prefix", o.prefix).
			Int("pages", pages).
			Msg("Finished listing S3 source")
	}
}

func (o *ObjectSource) document(ctx context.Context, key string) (model.Document, error) {
	uri := o.uri(key)

	content, found, err := o.storage.getObject(ctx, key)
	if err != nil {
		return model.Document{URI: uri}, err
	}
	if !found {
		return model.Document{URI: uri}, fmt.Errorf("s3://%s/%s disappeared during listing", o.storage.bucket, key)
	}

	doc := loader.NewDocument(key, uri, content, o.options)

	if o.options.LoadMetadata {
		sidecar, found, err := o.storage.getObject(ctx, key+loader.MetadataSuffix)
		if err != nil {
			return model.Document{URI: uri}, err
		}
		if found {
			metadata, err := loader.ParseMetadata(sidecar)
			if err != nil {
				return model.Document{URI: uri}, fmt.Errorf("parse metadata for %s: %w", key, err)
			}
			doc.Metadata = metadata
		}
	}

	return doc, nil
}

func (o *ObjectSource) uri(key string) string {
	rel := strings.TrimPrefix(strings.TrimPrefix(key, o.prefix), "/")
	if rel == "" {
		rel = path.Base(key)
	}
	return strings.TrimSuffix(o.uriPrefix, "/") + "/" + rel
}

func skipKey(key string) bool {
	if strings.HasSuffix(key, "/") || loader.IsSidecar(key) {
		return true
	}
	return strings.HasPrefix(path.Base(key), ".")
}
