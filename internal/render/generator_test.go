package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"git.home.luguber.info/inful/docgen/internal/storage"
	"git.home.luguber.info/inful/docgen/internal/templates"
	"git.home.luguber.info/inful/docgen/internal/transform"
)

func samplePresentation() *transform.Presentation {
	return &transform.Presentation{
		Title: "Ops Handbook",
		Blocks: []transform.Block{
			{Kind: "section", Heading: "Oncall", Level: 2, HTML: "<p>Page the rotation.</p>"},
		},
	}
}

func minimalTemplate(t *testing.T) templates.Descriptor {
	t.Helper()
	d, err := templates.NewCatalog().Lookup("minimal")
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestGenerateWritesArtifact(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "site")
	g := NewGenerator(outDir, nil)

	art, err := g.Generate(samplePresentation(), minimalTemplate(t))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if art.Template != "minimal" {
		t.Errorf("template = %s", art.Template)
	}
	if art.Size <= 0 {
		t.Error("size not recorded")
	}
	if len(art.Hash) != 64 {
		t.Errorf("hash = %q", art.Hash)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "index.html"))
	if err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if !strings.Contains(string(data), "Ops Handbook") {
		t.Error("rendered output missing title")
	}
}

func TestGenerateArchivesToStore(t *testing.T) {
	store, err := storage.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	g := NewGenerator(filepath.Join(t.TempDir(), "site"), store)

	art, err := g.Generate(samplePresentation(), minimalTemplate(t))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !store.Exists(art.Hash) {
		t.Error("artifact not archived in object store")
	}
}

func TestGenerateCommitsAtomically(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "site")
	g := NewGenerator(outDir, nil)

	// Overwriting an existing artifact must go through rename, leaving no
	// staging files behind.
	if _, err := g.Generate(samplePresentation(), minimalTemplate(t)); err != nil {
		t.Fatal(err)
	}
	pres := samplePresentation()
	pres.Title = "Second Edition"
	if _, err := g.Generate(pres, minimalTemplate(t)); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != "index.html" {
			t.Errorf("unexpected file in output dir: %s", e.Name())
		}
	}

	data, err := os.ReadFile(filepath.Join(outDir, "index.html"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Second Edition") {
		t.Error("artifact not replaced")
	}
}

func TestGenerateWriteFailure(t *testing.T) {
	// Occupy the output path with a file so MkdirAll fails.
	base := filepath.Join(t.TempDir(), "taken")
	if err := os.WriteFile(base, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	g := NewGenerator(filepath.Join(base, "site"), nil)
	if _, err := g.Generate(samplePresentation(), minimalTemplate(t)); err == nil {
		t.Fatal("expected error when the output directory cannot be created")
	}
}
