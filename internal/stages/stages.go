// Package stages binds the domain collaborators — reader, extractor,
// transformer, template catalog, validator and generator — to the pipeline's
// stage sequence and its shared state keys.
package stages

import (
	"context"
	"fmt"
	"path/filepath"

	"git.home.luguber.info/inful/docgen/internal/config"
	"git.home.luguber.info/inful/docgen/internal/extract"
	"git.home.luguber.info/inful/docgen/internal/ingest"
	"git.home.luguber.info/inful/docgen/internal/models"
	"git.home.luguber.info/inful/docgen/internal/render"
	"git.home.luguber.info/inful/docgen/internal/source"
	"git.home.luguber.info/inful/docgen/internal/storage"
	"git.home.luguber.info/inful/docgen/internal/templates"
	"git.home.luguber.info/inful/docgen/internal/transform"
	"git.home.luguber.info/inful/docgen/internal/validate"
)

// Set owns one run's worth of stage collaborators.
type Set struct {
	cfg         *config.Config
	reader      *ingest.Reader
	fetcher     *source.Fetcher
	extractor   *extract.Extractor
	transformer *transform.Transformer
	catalog     *templates.Catalog
	validator   *validate.Validator
	generator   *render.Generator
}

// NewSet wires the default collaborators from configuration. The object store
// is optional; without a storage directory artifacts are only written to the
// output directory.
func NewSet(cfg *config.Config) (*Set, error) {
	var store *storage.FSStore
	if cfg.Storage.Directory != "" {
		var err error
		store, err = storage.NewFSStore(cfg.Storage.Directory)
		if err != nil {
			return nil, err
		}
	}

	return &Set{
		cfg:         cfg,
		reader:      ingest.NewReader(),
		fetcher:     source.NewFetcher(filepath.Join(cfg.Pipeline.CheckpointDir, "..", "workspace")),
		extractor:   extract.NewExtractor(),
		transformer: transform.NewTransformer(),
		catalog:     templates.NewCatalog(),
		validator:   validate.NewValidator(cfg.Pipeline.Strict),
		generator:   render.NewGenerator(cfg.Output.Directory, store),
	}, nil
}

// Registry returns the canonical stage registry for this set.
func (s *Set) Registry() *models.Registry {
	return models.NewRegistry().
		Add(models.StageIngestion, s.Ingest).
		Add(models.StageExtraction, s.Extract).
		Add(models.StageTransformation, s.Transform).
		Add(models.StageTemplateSelection, s.SelectTemplate).
		Add(models.StageValidation, s.Validate).
		Add(models.StageGeneration, s.Generate)
}

// Ingest resolves the input path (fetching the configured repository first
// when one is set), reads and hashes the document, and records it in state.
func (s *Set) Ingest(ctx context.Context, st *models.RunState) (*models.StageResult, error) {
	path := s.cfg.Input.Path
	if s.cfg.Input.Repo != "" {
		checkout, err := s.fetcher.Fetch(ctx, s.cfg.Input.Repo, s.cfg.Input.Ref)
		if err != nil {
			return nil, err
		}
		path = filepath.Join(checkout, s.cfg.Input.Path)
	}

	doc, err := s.reader.Read(path)
	if err != nil {
		return nil, err
	}
	if err := st.Put(models.KeyDocument, doc); err != nil {
		return nil, err
	}

	res := models.NewStageResult(models.StageIngestion)
	res.Data["path"] = doc.Path
	res.Data["format"] = string(doc.Format)
	res.Data["hash"] = doc.Hash
	return res, nil
}

// Extract parses the ingested document into its semantic structure.
func (s *Set) Extract(ctx context.Context, st *models.RunState) (*models.StageResult, error) {
	var doc ingest.Document
	if err := st.Get(models.KeyDocument, &doc); err != nil {
		return nil, err
	}

	sem, err := s.extractor.Extract(&doc)
	if err != nil {
		return nil, err
	}
	if err := st.Put(models.KeySemantic, sem); err != nil {
		return nil, err
	}

	res := models.NewStageResult(models.StageExtraction)
	res.Data["title"] = sem.Title
	res.Data["sections"] = len(sem.Sections)
	return res, nil
}

// Transform renders the semantic structure into presentation blocks.
func (s *Set) Transform(ctx context.Context, st *models.RunState) (*models.StageResult, error) {
	var sem extract.Semantic
	if err := st.Get(models.KeySemantic, &sem); err != nil {
		return nil, err
	}

	pres, err := s.transformer.Transform(&sem)
	if err != nil {
		return nil, err
	}
	if err := st.Put(models.KeyPresentation, pres); err != nil {
		return nil, err
	}

	res := models.NewStageResult(models.StageTransformation)
	res.Data["blocks"] = len(pres.Blocks)
	return res, nil
}

// SelectTemplate picks a template id (override, then document hint, then the
// standard default) and verifies it resolves in the catalog. It records only
// the id; generation resolves it again, so a fallback-injected id works the
// same way.
func (s *Set) SelectTemplate(ctx context.Context, st *models.RunState) (*models.StageResult, error) {
	var pres transform.Presentation
	if err := st.Get(models.KeyPresentation, &pres); err != nil {
		return nil, err
	}

	id := s.catalog.Select(s.cfg.Pipeline.Template, pres.TemplateHint)
	if _, err := s.catalog.Lookup(id); err != nil {
		return nil, err
	}
	if err := st.Put(models.KeyTemplateID, id); err != nil {
		return nil, err
	}

	res := models.NewStageResult(models.StageTemplateSelection)
	res.Data["template_id"] = id
	return res, nil
}

// Validate checks the presentation and records the report. A failed report
// fails the stage; whether that halts the run is the failure policy's call.
func (s *Set) Validate(ctx context.Context, st *models.RunState) (*models.StageResult, error) {
	var pres transform.Presentation
	if err := st.Get(models.KeyPresentation, &pres); err != nil {
		return nil, err
	}

	rep := s.validator.Validate(&pres)
	if err := st.Put(models.KeyValidation, rep); err != nil {
		return nil, err
	}

	res := models.NewStageResult(models.StageValidation)
	res.Data["diagnostics"] = len(rep.Diagnostics)
	for _, d := range rep.Diagnostics {
		msg := fmt.Sprintf("block %d: %s", d.Block, d.Message)
		if d.Severity == validate.SeverityError {
			res.Errors = append(res.Errors, msg)
		} else {
			res.AddWarning(msg)
		}
	}
	if !rep.Passed {
		res.Success = false
	}
	return res, nil
}

// Generate resolves the selected template id and writes the final artifact.
func (s *Set) Generate(ctx context.Context, st *models.RunState) (*models.StageResult, error) {
	var pres transform.Presentation
	if err := st.Get(models.KeyPresentation, &pres); err != nil {
		return nil, err
	}
	var id string
	if err := st.Get(models.KeyTemplateID, &id); err != nil {
		return nil, err
	}

	desc, err := s.catalog.Lookup(id)
	if err != nil {
		return nil, err
	}
	art, err := s.generator.Generate(&pres, desc)
	if err != nil {
		return nil, err
	}
	if err := st.Put(models.KeyArtifact, art); err != nil {
		return nil, err
	}

	res := models.NewStageResult(models.StageGeneration)
	res.Data["path"] = art.Path
	res.Data["hash"] = art.Hash
	res.Data["template"] = art.Template
	return res, nil
}
