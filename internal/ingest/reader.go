// Package ingest reads and identifies raw input content.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/inful/mdfp"

	"git.home.luguber.info/inful/docgen/internal/errors"
)

// Format identifies the detected input format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatYAML     Format = "yaml"
	FormatJSON     Format = "json"
	FormatText     Format = "text"
)

// Document is the result of ingesting one input file.
type Document struct {
	Path        string `json:"path"`
	Format      Format `json:"format"`
	Hash        string `json:"hash"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Content     string `json:"content"`
}

// Reader ingests input files from disk.
type Reader struct{}

// NewReader creates an ingestion reader.
func NewReader() *Reader { return &Reader{} }

// Read loads the file at path, detects its format, and computes its content
// hash. Markdown inputs additionally get an mdfp content fingerprint for the
// manifest.
func (r *Reader) Read(path string) (*Document, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, errors.InputError(fmt.Sprintf("input file not found: %s", path))
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInput, errors.SeverityError, "stat input file")
	}
	if info.IsDir() {
		return nil, errors.InputError(fmt.Sprintf("input path is a directory: %s", path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInput, errors.SeverityError, "read input file")
	}

	format, err := DetectFormat(path, data)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	doc := &Document{
		Path:    path,
		Format:  format,
		Hash:    hex.EncodeToString(sum[:]),
		Content: string(data),
	}
	if format == FormatMarkdown {
		doc.Fingerprint = mdfp.CalculateFingerprintFromParts("", doc.Content)
	}
	return doc, nil
}

// DetectFormat determines the input format from the file extension, falling
// back to a content sniff for unknown extensions. Binary content is rejected
// as unsupported.
func DetectFormat(path string, data []byte) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return FormatMarkdown, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".txt":
		return FormatText, nil
	}

	if !utf8.Valid(data) || strings.ContainsRune(string(data), 0) {
		return "", errors.InputError(fmt.Sprintf("unsupported input format: %s", path))
	}

	trimmed := strings.TrimSpace(string(data))
	switch {
	case strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "["):
		return FormatJSON, nil
	case strings.HasPrefix(trimmed, "---\n") || strings.HasPrefix(trimmed, "---\r\n"):
		return FormatYAML, nil
	default:
		return FormatText, nil
	}
}
