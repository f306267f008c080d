package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"docbulk/internal/model"

	"github.com/rs/zerolog/log"
)

// CreateDocuments writes a batch in one multipart/mixed request. Each
// document contributes an optional metadata part followed by its content part.
func (c *Client) CreateDocuments(ctx context.Context, docs []model.Document, database string) (*model.BatchResult, error) {
	if len(docs) == 0 {
		return &model.BatchResult{}, nil
	}

	body, contentType, temporal, err := encodeDocuments(docs)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	if db := c.resolveDatabase(database); db != "" {
		query.Set("database", db)
	}
	if temporal != "" {
		query.Set("temporal-collection", temporal)
	}

	resp, err := c.do(ctx, http.MethodPost, DOCUMENTS_ENDPOINT, query, contentType, body, "application/json")
	if err != nil {
		return nil, fmt.Errorf("create %d documents: %w", len(docs), err)
	}

	result := &model.BatchResult{}
	var written struct {
		Documents []struct {
			URI string `json:"uri"`
		} `json:"documents"`
	}
	if len(resp.Body) > 0 && json.Unmarshal(resp.Body, &written) == nil && len(written.Documents) > 0 {
		for _, doc := range written.Documents {
			result.URIs = append(result.URIs, doc.URI)
		}
	} else {
		for _, doc := range docs {
			result.URIs = append(result.URIs, doc.URI)
		}
	}

	c.invalidate(ctx, c.resolveDatabase(database), result.URIs)
	return result, nil
}

// ReadDocuments fetches a batch of documents in one request. URIs unknown to
// the store are left out of the result.
func (c *Client) ReadDocuments(ctx context.Context, uris []string, opts model.ReadOptions) ([]model.Document, error) {
	if len(uris) == 0 {
		return nil, nil
	}

	categories := opts.Categories
	if len(categories) == 0 {
		categories = []string{model.CategoryContent}
	}
	database := c.resolveDatabase(opts.Database)
	cacheable := c.cache != nil && len(categories) == 1 && categories[0] == model.CategoryContent

	found := make(map[string]model.Document, len(uris))
	missing := uris
	if cacheable {
		found, missing = c.cachedDocuments(ctx, database, uris)
	}

	if len(missing) > 0 {
		fetched, err := c.fetchDocuments(ctx, missing, categories, database)
		if err != nil {
			return nil, fmt.Errorf("read %d documents: %w", len(missing), err)
		}
		for _, doc := range fetched {
			found[doc.URI] = doc
		}
		if cacheable {
			c.storeDocuments(ctx, database, fetched)
		}
	}

	docs := make([]model.Document, 0, len(found))
	for _, uri := range uris {
		doc, ok := found[uri]
		if !ok {
			continue
		}
		if opts.As != "" {
			doc.Kind = opts.As
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

// DeleteDocuments removes a batch of documents in one request
func (c *Client) DeleteDocuments(ctx context.Context, uris []string, database string) error {
	if len(uris) == 0 {
		return nil
	}

	query := url.Values{}
	for _, uri := range uris {
		query.Add("uri", uri)
	}
	db := c.resolveDatabase(database)
	if db != "" {
		query.Set("database", db)
	}

	if _, err := c.do(ctx, http.MethodDelete, DOCUMENTS_ENDPOINT, query, "", nil, ""); err != nil {
		return fmt.Errorf("delete %d documents: %w", len(uris), err)
	}

	c.invalidate(ctx, db, uris)
	return nil
}

func (c *Client) fetchDocuments(ctx context.Context, uris, categories []string, database string) ([]model.Document, error) {
	query := url.Values{}
	for _, uri := range uris {
		query.Add("uri", uri)
	}
	for _, category := range categories {
		query.Add("category", category)
	}
	if database != "" {
		query.Set("database", database)
	}

	resp, err := c.do(ctx, http.MethodGet, DOCUMENTS_ENDPOINT, query, "", nil, "multipart/mixed")
	if err != nil {
		return nil, err
	}

	return decodeDocuments(resp.Header.Get("Content-Type"), resp.Body, uris)
}

// encodeDocuments builds the multipart/mixed body of a create request and
// returns the temporal collection shared by the batch
func encodeDocuments(docs []model.Document) (io.Reader, string, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	temporal := ""
	for _, doc := range docs {
		if doc.TemporalCollection != "" {
			if temporal != "" && temporal != doc.TemporalCollection {
				return nil, "", "", fmt.Errorf("batch mixes temporal collections %q and %q", temporal, doc.TemporalCollection)
			}
			temporal = doc.TemporalCollection
		}

		if !doc.Metadata.IsEmpty() {
			metadata, err := json.Marshal(doc.Metadata)
			if err != nil {
				return nil, "", "", fmt.Errorf("marshal metadata for %s: %w", doc.URI, err)
			}
			if err := writePart(writer, doc.URI, model.CategoryMetadata, "application/json", metadata); err != nil {
				return nil, "", "", err
			}
		}

		if err := writePart(writer, doc.URI, model.CategoryContent, doc.MimeType(), doc.Content); err != nil {
			return nil, "", "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", "", fmt.Errorf("close multipart body: %w", err)
	}

	return &buf, "multipart/mixed; boundary=" + writer.Boundary(), temporal, nil
}

func writePart(writer *multipart.Writer, uri, category, contentType string, body []byte) error {
	params := map[string]string{}
	if uri != "" {
		params["filename"] = uri
	}
	if category == model.CategoryMetadata {
		params["category"] = category
	}

	header := textproto.MIMEHeader{}
	header.Set("Content-Type", contentType)
	header.Set("Content-Disposition", mime.FormatMediaType("attachment", params))

	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create part for %s: %w", uri, err)
	}
	if _, err := part.Write(body); err != nil {
		return fmt.Errorf("write part for %s: %w", uri, err)
	}
	return nil
}

// decodeDocuments parses a read response. Metadata and content parts of the
// same URI are merged into one document, in response order.
func decodeDocuments(contentType string, body []byte, uris []string) ([]model.Document, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		// A single document may come back without a multipart envelope
		if len(uris) != 1 {
			return nil, fmt.Errorf("expected multipart response for %d documents, got %q", len(uris), contentType)
		}
		kind := model.KindFromMimeType(mediaType)
		return []model.Document{{URI: uris[0], Kind: kind, Content: body, ContentType: binaryContentType(kind, mediaType)}}, nil
	}

	var docs []model.Document
	index := make(map[string]int)

	reader := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read multipart response: %w", err)
		}

		data, err := io.ReadAll(part)
		if err != nil {
			return nil, fmt.Errorf("read multipart part: %w", err)
		}

		_, disposition, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
		if err != nil {
			return nil, fmt.Errorf("parse content disposition: %w", err)
		}
		uri := disposition["filename"]

		i, seen := index[uri]
		if !seen {
			i = len(docs)
			index[uri] = i
			docs = append(docs, model.Document{URI: uri})
		}

		if disposition["category"] == model.CategoryMetadata {
			var metadata model.Metadata
			if err := json.Unmarshal(data, &metadata); err != nil {
				return nil, fmt.Errorf("parse metadata for %s: %w", uri, err)
			}
			docs[i].Metadata = &metadata
			continue
		}

		partType, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		kind := kindFromFormat(disposition["format"])
		if kind == "" {
			kind = model.KindFromMimeType(partType)
		}

		docs[i].Kind = kind
		docs[i].Content = data
		docs[i].ContentType = binaryContentType(kind, partType)
	}

	return docs, nil
}

func kindFromFormat(format string) model.DocumentKind {
	switch format {
	case "json":
		return model.KindJSON
	case "xml":
		return model.KindXML
	case "text":
		return model.KindText
	case "binary":
		return model.KindBinary
	default:
		return ""
	}
}

// binaryContentType keeps the reported type only where the kind does not imply it
func binaryContentType(kind model.DocumentKind, mediaType string) string {
	if kind == model.KindBinary {
		return mediaType
	}
	return ""
}

// invalidate drops cached content for uris after a write or delete
func (c *Client) invalidate(ctx context.Context, database string, uris []string) {
	if c.cache == nil || len(uris) == 0 {
		return
	}

	keys := make([]string, len(uris))
	for i, uri := range uris {
		keys[i] = cacheKey(database, uri)
	}
	if err := c.cache.Delete(ctx, keys...); err != nil {
		log.Warn().Err(err).Int("keys", len(keys)).Msg("Failed to invalidate cached documents")
	}
}
