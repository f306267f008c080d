package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DocumentKind discriminates the payload carried by a Document
type DocumentKind string

const (
	KindXML    DocumentKind = "xml"
	KindJSON   DocumentKind = "json"
	KindText   DocumentKind = "text"
	KindBinary DocumentKind = "binary"
	KindRaw    DocumentKind = "raw"
)

// Metadata categories understood by the document store
const (
	CategoryContent        = "content"
	CategoryMetadata       = "metadata"
	CategoryCollections    = "collections"
	CategoryPermissions    = "permissions"
	CategoryProperties     = "properties"
	CategoryQuality        = "quality"
	CategoryMetadataValues = "metadata-values"
)

// Permission grants a role a set of capabilities on a document
type Permission struct {
	RoleName     string   `json:"role-name" bson:"role_name"`
	Capabilities []string `json:"capabilities" bson:"capabilities"`
}

// Metadata mirrors the store's JSON metadata format
type Metadata struct {
	Collections    []string          `json:"collections,omitempty" bson:"collections,omitempty"`
	Permissions    []Permission      `json:"permissions,omitempty" bson:"permissions,omitempty"`
	Properties     map[string]any    `json:"properties,omitempty" bson:"properties,omitempty"`
	Quality        int               `json:"quality,omitempty" bson:"quality,omitempty"`
	MetadataValues map[string]string `json:"metadataValues,omitempty" bson:"metadata_values,omitempty"`
}

// IsEmpty reports whether no metadata field is set
func (m *Metadata) IsEmpty() bool {
	if m == nil {
		return true
	}
	return len(m.Collections) == 0 &&
		len(m.Permissions) == 0 &&
		len(m.Properties) == 0 &&
		m.Quality == 0 &&
		len(m.MetadataValues) == 0
}

// Merge overlays the non-empty fields of other onto m
func (m *Metadata) Merge(other *Metadata) {
	if other == nil {
		return
	}
	if len(other.Collections) > 0 {
		m.Collections = append(m.Collections, other.Collections...)
	}
	if len(other.Permissions) > 0 {
		m.Permissions = append(m.Permissions, other.Permissions...)
	}
	if len(other.Properties) > 0 {
		if m.Properties == nil {
			m.Properties = make(map[string]any, len(other.Properties))
		}
		for k, v := range other.Properties {
			m.Properties[k] = v
		}
	}
	if other.Quality != 0 {
		m.Quality = other.Quality
	}
	if len(other.MetadataValues) > 0 {
		if m.MetadataValues == nil {
			m.MetadataValues = make(map[string]string, len(other.MetadataValues))
		}
		for k, v := range other.MetadataValues {
			m.MetadataValues[k] = v
		}
	}
}

// Document is a unit of content exchanged with the store. Kind selects how
// Content is interpreted.
type Document struct {
	URI                string
	Kind               DocumentKind
	Content            []byte
	Metadata           *Metadata
	ContentType        string
	TemporalCollection string
}

// NewJSONDocument marshals v into a JSON document
func NewJSONDocument(uri string, v any, metadata *Metadata) (Document, error) {
	content, err := json.Marshal(v)
	if err != nil {
		return Document{}, fmt.Errorf("marshal json document %s: %w", uri, err)
	}
	return Document{URI: uri, Kind: KindJSON, Content: content, Metadata: metadata}, nil
}

// NewTextDocument builds a text document
func NewTextDocument(uri, text string, metadata *Metadata) Document {
	return Document{URI: uri, Kind: KindText, Content: []byte(text), Metadata: metadata}
}

// NewXMLDocument builds an XML document from serialized markup
func NewXMLDocument(uri, xml string, metadata *Metadata) Document {
	return Document{URI: uri, Kind: KindXML, Content: []byte(xml), Metadata: metadata}
}

// NewBinaryDocument builds a binary document
func NewBinaryDocument(uri string, content []byte, metadata *Metadata) Document {
	return Document{URI: uri, Kind: KindBinary, Content: content, Metadata: metadata}
}

// ContentBytes returns the raw payload
func (d Document) ContentBytes() []byte {
	return d.Content
}

// ContentString returns the payload as a string. Binary payloads are rendered
// as a short placeholder rather than raw bytes.
func (d Document) ContentString() string {
	switch d.Kind {
	case KindXML, KindJSON, KindText, KindRaw:
		return string(d.Content)
	case KindBinary:
		return fmt.Sprintf("<binary %d bytes>", len(d.Content))
	default:
		return string(d.Content)
	}
}

// Decode returns the payload in its natural Go form: any for JSON, string for
// XML and text, []byte for binary and raw content.
func (d Document) Decode() (any, error) {
	switch d.Kind {
	case KindJSON:
		var v any
		if err := json.Unmarshal(d.Content, &v); err != nil {
			return nil, fmt.Errorf("decode json document %s: %w", d.URI, err)
		}
		return v, nil
	case KindXML, KindText:
		return string(d.Content), nil
	case KindBinary, KindRaw:
		return d.Content, nil
	default:
		return nil, fmt.Errorf("unknown document kind %q", d.Kind)
	}
}

// MimeType returns ContentType when set, otherwise the default for Kind
func (d Document) MimeType() string {
	if d.ContentType != "" {
		return d.ContentType
	}
	return d.Kind.MimeType()
}

// MimeType returns the default content type for the kind
func (k DocumentKind) MimeType() string {
	switch k {
	case KindXML:
		return "application/xml"
	case KindJSON:
		return "application/json"
	case KindText:
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

// KindFromMimeType maps a content type reported by the store onto a kind
func KindFromMimeType(mimeType string) DocumentKind {
	switch {
	case mimeType == "":
		return KindBinary
	case mimeType == "application/json" || strings.HasSuffix(mimeType, "+json"):
		return KindJSON
	case mimeType == "application/xml" || mimeType == "text/xml" || strings.HasSuffix(mimeType, "+xml"):
		return KindXML
	case strings.HasPrefix(mimeType, "text/"):
		return KindText
	default:
		return KindBinary
	}
}

// ReadOptions controls a batched document read
type ReadOptions struct {
	Categories []string
	Database   string
	// As forces the kind of returned documents. Empty keeps the kind reported by the store.
	As DocumentKind
}

// BatchResult is returned by a batched create call
type BatchResult struct {
	URIs []string `json:"uris"`
}
