// Package failure classifies stage failures as fatal or fallback-absorbable
// and supplies remediation suggestions.
package failure

import (
	"git.home.luguber.info/inful/docgen/internal/models"
)

// Fallback substitutes reduced behavior for a failed non-critical stage. Inject
// holds state values merged before the pipeline continues; Note is logged.
type Fallback struct {
	Inject map[string]any
	Note   string
}

// Policy is the complete failure policy for a pipeline: which stages are
// critical, which non-critical stages have a fallback, and the remediation
// suggestions surfaced per stage. It is injected at pipeline construction so
// tests can replace it.
type Policy struct {
	Critical    map[models.StageName]bool
	Fallbacks   map[models.StageName]Fallback
	Suggestions map[models.StageName][]string
}

// DefaultPolicy returns the standard policy. Ingestion, extraction,
// transformation and generation are critical and never fall back.
// Template selection falls back to the "minimal" template; validation failures
// are logged and skipped. Stages with neither classification are treated as
// fatal: an unknown stage is not assumed safe to skip.
func DefaultPolicy(strict bool) Policy {
	p := Policy{
		Critical: map[models.StageName]bool{
			models.StageIngestion:      true,
			models.StageExtraction:     true,
			models.StageTransformation: true,
			models.StageGeneration:     true,
		},
		Fallbacks: map[models.StageName]Fallback{
			models.StageTemplateSelection: {
				Inject: map[string]any{models.KeyTemplateID: models.DefaultTemplateID},
				Note:   "substituting default template " + models.DefaultTemplateID,
			},
			models.StageValidation: {
				Note: "continuing without validation gate",
			},
		},
		Suggestions: map[models.StageName][]string{
			models.StageIngestion: {
				"Verify the input file exists and is readable",
				"Verify the input format is supported (markdown, yaml, json, plain text)",
			},
			models.StageExtraction: {
				"Verify the input file is well-formed for its format",
				"Check for encoding problems in the input content",
			},
			models.StageTransformation: {
				"Inspect the extracted sections for unexpected structure",
				"Re-run with -v to log the transformation steps",
			},
			models.StageTemplateSelection: {
				"Verify the configured template id exists in the catalog",
				"Remove the template override to use automatic selection",
			},
			models.StageValidation: {
				"Review the validation diagnostics in the stage result",
				"Disable strict mode to continue past validation findings",
			},
			models.StageGeneration: {
				"Verify the renderer template resolves",
				"Verify the output directory exists and is writable",
			},
		},
	}
	if strict {
		// Strict mode removes the validation escape hatch.
		delete(p.Fallbacks, models.StageValidation)
	}
	return p
}

// SuggestionsFor returns the remediation hints for a stage. When checkpointing
// is available the caller appends a resume instruction.
func (p Policy) SuggestionsFor(stage models.StageName) []string {
	return append([]string(nil), p.Suggestions[stage]...)
}

// IsCritical reports whether the stage can never fall back.
func (p Policy) IsCritical(stage models.StageName) bool {
	return p.Critical[stage]
}
