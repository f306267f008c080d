// Package loader turns files on disk into documents for write jobs.
package loader

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path"
	"path/filepath"
	"strings"

	"docbulk/internal/model"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// MetadataSuffix marks a sidecar file holding JSON metadata for the file it is named after
const MetadataSuffix = ".metadata.json"

// Options controls how files are turned into documents
type Options struct {
	// Raw skips type detection and sends content untouched
	Raw bool
	// LoadMetadata merges <file>.metadata.json sidecars into the document
	LoadMetadata bool
}

var extensionKinds = map[string]model.DocumentKind{
	".xml":   model.KindXML,
	".xsd":   model.KindXML,
	".xsl":   model.KindXML,
	".xslt":  model.KindXML,
	".xhtml": model.KindXML,
	".json":  model.KindJSON,
	".txt":   model.KindText,
	".md":    model.KindText,
	".csv":   model.KindText,
	".html":  model.KindText,
	".css":   model.KindText,
	".js":    model.KindText,
}

// Load lazily walks root in lexical order and yields one document per regular
// file. Sidecar metadata files and dot files are never yielded as documents.
// A file that cannot be read yields a document carrying only its URI together
// with the error; the walk continues.
func Load(root, uriPrefix string, opts Options) iter.Seq2[model.Document, error] {
	return func(yield func(model.Document, error) bool) {
		stopped := false

		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				if !yield(model.Document{}, fmt.Errorf("walk %s: %w", p, walkErr)) {
					stopped = true
					return filepath.SkipAll
				}
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if d.IsDir() {
				if p != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}

			if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".") || IsSidecar(d.Name()) {
				return nil
			}

			uri := BuildURI(root, p, uriPrefix)
			doc, err := LoadFile(p, uri, opts)
			if !yield(doc, err) {
				stopped = true
				return filepath.SkipAll
			}
			return nil
		})

		if err != nil && !stopped {
			yield(model.Document{}, fmt.Errorf("walk %s: %w", root, err))
		}
	}
}

// LoadFile reads a single file into a document with the given URI
func LoadFile(p, uri string, opts Options) (model.Document, error) {
	content, err := os.ReadFile(p)
	if err != nil {
		return model.Document{URI: uri}, fmt.Errorf("read %s: %w", p, err)
	}

	doc := NewDocument(p, uri, content, opts)

	if opts.LoadMetadata {
		metadata, err := loadSidecar(p + MetadataSuffix)
		if err != nil {
			return model.Document{URI: uri}, err
		}
		doc.Metadata = metadata
	}

	log.Trace().
		Str("path", p).
		Str("uri", uri).
		Str("kind", string(doc.Kind)).
		Int("size", len(content)).
		Msg("Loaded document from disk")

	return doc, nil
}

// NewDocument builds a document from content read elsewhere. name is only
// used for extension based detection.
func NewDocument(name, uri string, content []byte, opts Options) model.Document {
	doc := model.Document{
		URI:     uri,
		Content: content,
	}

	if opts.Raw {
		doc.Kind = model.KindRaw
	} else {
		doc.Kind, doc.ContentType = DetectKind(name, content)
	}

	return doc
}

// IsSidecar reports whether name is a metadata sidecar
func IsSidecar(name string) bool {
	return strings.HasSuffix(name, MetadataSuffix)
}

// ParseMetadata decodes a sidecar body
func ParseMetadata(data []byte) (*model.Metadata, error) {
	metadata := &model.Metadata{}
	if err := json.Unmarshal(data, metadata); err != nil {
		return nil, err
	}
	return metadata, nil
}

// DetectKind picks a document kind from the file extension, falling back to
// content sniffing. The returned content type is empty when the kind default applies.
func DetectKind(name string, content []byte) (model.DocumentKind, string) {
	if kind, ok := extensionKinds[strings.ToLower(filepath.Ext(name))]; ok {
		return kind, ""
	}

	detected := mimetype.Detect(content)
	for m := detected; m != nil; m = m.Parent() {
		switch {
		case m.Is("application/json"):
			return model.KindJSON, ""
		case m.Is("text/xml"), m.Is("application/xml"):
			return model.KindXML, ""
		}
	}

	for m := detected; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return model.KindText, ""
		}
	}

	return model.KindBinary, baseMimeType(detected.String())
}

// BuildURI derives a document URI from a file's position below root
func BuildURI(root, p, uriPrefix string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." {
		rel = filepath.Base(p)
	}
	prefix := strings.TrimSuffix(uriPrefix, "/")
	return prefix + "/" + path.Clean(filepath.ToSlash(rel))
}

func loadSidecar(p string) (*model.Metadata, error) {
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read metadata %s: %w", p, err)
	}

	metadata, err := ParseMetadata(data)
	if err != nil {
		return nil, fmt.Errorf("parse metadata %s: %w", p, err)
	}
	return metadata, nil
}

func baseMimeType(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	return strings.TrimSpace(base)
}
