package models

import (
	"context"
	"fmt"
)

// Stage is a discrete unit of work in the generation pipeline. It consumes the
// accumulated run state and produces a StageResult. A non-nil error marks the
// attempt as failed; retryable errors are re-attempted by the retry runner.
type Stage func(ctx context.Context, st *RunState) (*StageResult, error)

// StageName is a strongly-typed identifier for a pipeline stage.
type StageName string

// Canonical stage names, in execution order.
const (
	StageIngestion         StageName = "ingestion"
	StageExtraction        StageName = "extraction"
	StageTransformation    StageName = "transformation"
	StageTemplateSelection StageName = "template_selection"
	StageValidation        StageName = "validation"
	StageGeneration        StageName = "generation"
)

// Stages is the fixed total order of pipeline stages.
var Stages = []StageName{
	StageIngestion,
	StageExtraction,
	StageTransformation,
	StageTemplateSelection,
	StageValidation,
	StageGeneration,
}

// StageIndex returns the position of a stage in the fixed order, or -1 if unknown.
func StageIndex(name StageName) int {
	for i, s := range Stages {
		if s == name {
			return i
		}
	}
	return -1
}

// StageAfter returns the stage following the given one, or "" if it is the last
// stage or unknown.
func StageAfter(name StageName) StageName {
	i := StageIndex(name)
	if i < 0 || i+1 >= len(Stages) {
		return ""
	}
	return Stages[i+1]
}

// State keys written by each stage. A stage may only consume keys written by a
// strictly earlier stage.
const (
	KeyDocument     = "document"     // ingestion
	KeySemantic     = "semantic"     // extraction
	KeyPresentation = "presentation" // transformation
	KeyTemplateID   = "template_id"  // template_selection
	KeyValidation   = "validation"   // validation
	KeyArtifact     = "artifact"     // generation
)

// DefaultTemplateID is the template identifier guaranteed to resolve in every
// catalog; it is the fallback target when template selection fails.
const DefaultTemplateID = "minimal"

// StageDef pairs a stage name with its executing function.
type StageDef struct {
	Name StageName
	Fn   Stage
}

// Registry is an ordered, typed set of stage definitions resolved once at
// pipeline construction.
type Registry struct{ Defs []StageDef }

// NewRegistry creates an empty registry.
func NewRegistry() *Registry { return &Registry{Defs: make([]StageDef, 0, len(Stages))} }

// Add appends a stage definition.
func (r *Registry) Add(name StageName, fn Stage) *Registry {
	r.Defs = append(r.Defs, StageDef{Name: name, Fn: fn})
	return r
}

// Build validates the registry against the canonical stage order and returns a
// defensive copy of the definitions.
func (r *Registry) Build() ([]StageDef, error) {
	if len(r.Defs) != len(Stages) {
		return nil, fmt.Errorf("registry has %d stages, want %d", len(r.Defs), len(Stages))
	}
	for i, def := range r.Defs {
		if def.Name != Stages[i] {
			return nil, fmt.Errorf("registry stage %d is %s, want %s", i, def.Name, Stages[i])
		}
		if def.Fn == nil {
			return nil, fmt.Errorf("registry stage %s has nil function", def.Name)
		}
	}
	out := make([]StageDef, len(r.Defs))
	copy(out, r.Defs)
	return out, nil
}
