// Package render writes the final output artifact to disk.
package render

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/docgen/internal/errors"
	"git.home.luguber.info/inful/docgen/internal/storage"
	"git.home.luguber.info/inful/docgen/internal/templates"
	"git.home.luguber.info/inful/docgen/internal/transform"
)

// Artifact describes a generated output document.
type Artifact struct {
	Path     string `json:"path"`
	Hash     string `json:"hash"`
	Size     int64  `json:"size"`
	Template string `json:"template"`
}

// Generator renders presentations through a template and writes the result.
type Generator struct {
	outputDir string
	store     *storage.FSStore
}

// NewGenerator creates a generator writing into outputDir. The store is
// optional; when present every artifact is also recorded content-addressably.
func NewGenerator(outputDir string, store *storage.FSStore) *Generator {
	return &Generator{outputDir: outputDir, store: store}
}

// Generate renders pres with the given template and writes index.html into the
// output directory.
func (g *Generator) Generate(pres *transform.Presentation, tmpl templates.Descriptor) (*Artifact, error) {
	rendered, err := templates.Render(tmpl, pres)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryGeneration, errors.SeverityError, "render document")
	}

	if err := os.MkdirAll(g.outputDir, 0750); err != nil {
		return nil, errors.Wrap(err, errors.CategoryGeneration, errors.SeverityError,
			fmt.Sprintf("create output directory %s", g.outputDir))
	}

	// Stage through a unique temp file and rename so concurrent rebuilds of
	// the same output never interleave partial writes; readers always see a
	// complete artifact.
	outPath := filepath.Join(g.outputDir, "index.html")
	data := []byte(rendered)
	tmp, err := os.CreateTemp(g.outputDir, ".index-*.html")
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryGeneration, errors.SeverityError,
			fmt.Sprintf("stage artifact in %s", g.outputDir))
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, errors.Wrap(err, errors.CategoryGeneration, errors.SeverityError,
			fmt.Sprintf("write artifact %s", outPath))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, errors.Wrap(err, errors.CategoryGeneration, errors.SeverityError,
			fmt.Sprintf("write artifact %s", outPath))
	}
	if err := os.Chmod(tmp.Name(), 0640); err != nil {
		os.Remove(tmp.Name())
		return nil, errors.Wrap(err, errors.CategoryGeneration, errors.SeverityError,
			fmt.Sprintf("write artifact %s", outPath))
	}
	if err := os.Rename(tmp.Name(), outPath); err != nil {
		os.Remove(tmp.Name())
		return nil, errors.Wrap(err, errors.CategoryGeneration, errors.SeverityError,
			fmt.Sprintf("commit artifact %s", outPath))
	}

	sum := sha256.Sum256(data)
	art := &Artifact{
		Path:     outPath,
		Hash:     hex.EncodeToString(sum[:]),
		Size:     int64(len(data)),
		Template: tmpl.ID,
	}

	if g.store != nil {
		if _, err := g.store.Put(&storage.Object{
			Hash: art.Hash,
			Type: storage.ObjectTypeArtifact,
			Data: data,
			Metadata: storage.Metadata{
				Custom: map[string]string{"template": tmpl.ID, "path": outPath},
			},
		}); err != nil {
			// Archival is best-effort; the artifact on disk is authoritative.
			slog.Warn("Failed to archive artifact", "hash", art.Hash, "error", err)
		}
	}

	slog.Info("Artifact generated",
		slog.String("path", outPath),
		slog.String("template", tmpl.ID),
		slog.Int64("bytes", art.Size))
	return art, nil
}
