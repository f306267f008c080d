package docstore

import (
	"context"
	"encoding/json"

	"docbulk/internal/model"

	"github.com/rs/zerolog/log"
)

// cachedDocument is the Redis representation of a content-only read
type cachedDocument struct {
	Kind        model.DocumentKind `json:"kind"`
	ContentType string             `json:"content_type,omitempty"`
	Content     []byte             `json:"content"`
}

func cacheKey(database, uri string) string {
	return "docstore:" + database + ":" + uri
}

// cachedDocuments splits uris into cache hits and misses. Cache failures count as misses.
func (c *Client) cachedDocuments(ctx context.Context, database string, uris []string) (map[string]model.Document, []string) {
	found := make(map[string]model.Document, len(uris))

	keys := make([]string, len(uris))
	for i, uri := range uris {
		keys[i] = cacheKey(database, uri)
	}

	values, err := c.cache.GetMany(ctx, keys)
	if err != nil {
		log.Warn().Err(err).Int("keys", len(keys)).Msg("Document cache lookup failed")
		return found, uris
	}

	missing := make([]string, 0, len(uris))
	for i, uri := range uris {
		raw, ok := values[keys[i]]
		if !ok {
			missing = append(missing, uri)
			continue
		}

		var entry cachedDocument
		if err := json.Unmarshal(raw, &entry); err != nil {
			log.Warn().Err(err).Str("uri", uri).Msg("Discarding malformed cache entry")
			missing = append(missing, uri)
			continue
		}

		found[uri] = model.Document{
			URI:         uri,
			Kind:        entry.Kind,
			Content:     entry.Content,
			ContentType: entry.ContentType,
		}
	}

	log.Debug().
		Int("requested", len(uris)).
		Int("hits", len(found)).
		Msg("Document cache lookup")

	return found, missing
}

func (c *Client) storeDocuments(ctx context.Context, database string, docs []model.Document) {
	for _, doc := range docs {
		raw, err := json.Marshal(cachedDocument{Kind: doc.Kind, ContentType: doc.ContentType, Content: doc.Content})
		if err != nil {
			continue
		}
		if err := c.cache.Set(ctx, cacheKey(database, doc.URI), raw, c.cacheTTL); err != nil {
			log.Warn().Err(err).Str("uri", doc.URI).Msg("Failed to cache document")
		}
	}
}
