package failure

import (
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/docgen/internal/models"
)

// Decision is the handler's verdict on a stage failure. When Halt is false the
// pipeline merges Inject into state and proceeds; when Halt is true it stops
// and Err carries the structured error for the PipelineResult.
type Decision struct {
	Halt   bool
	Inject map[string]any
	Err    *models.PipelineError
}

// Handler applies the failure policy to stage failures.
type Handler struct {
	policy Policy

	// ResumeHint, when non-empty, is appended to every fatal error's
	// suggestions. The pipeline sets it when checkpointing is available.
	ResumeHint func(stage models.StageName) string
}

// NewHandler creates a failure handler with the given policy.
func NewHandler(policy Policy) *Handler {
	return &Handler{policy: policy}
}

// Handle classifies a stage failure. Critical stages always halt. Non-critical
// stages with a fallback continue; any other stage halts — an unrecognized
// stage is deliberately not assumed safe to skip.
func (h *Handler) Handle(stage models.StageName, res *models.StageResult, result *models.PipelineResult) Decision {
	if h.policy.IsCritical(stage) {
		return h.halt(stage, res, models.ErrorKindCritical)
	}

	fb, ok := h.policy.Fallbacks[stage]
	if !ok {
		return h.halt(stage, res, models.ErrorKindStage)
	}

	slog.Warn("Stage failed; applying fallback",
		slog.String("stage", string(stage)),
		slog.String("fallback", fb.Note))
	return Decision{Halt: false, Inject: fb.Inject}
}

func (h *Handler) halt(stage models.StageName, res *models.StageResult, kind models.ErrorKind) Decision {
	msg := fmt.Sprintf("stage %s failed", stage)
	ctx := map[string]any{}
	if res != nil && len(res.Errors) > 0 {
		msg = res.Errors[len(res.Errors)-1]
		ctx["errors"] = res.Errors
	}
	if res != nil && len(res.Warnings) > 0 {
		ctx["warnings"] = res.Warnings
	}

	suggestions := h.policy.SuggestionsFor(stage)
	if h.ResumeHint != nil {
		if hint := h.ResumeHint(stage); hint != "" {
			suggestions = append(suggestions, hint)
		}
	}

	return Decision{
		Halt: true,
		Err: &models.PipelineError{
			Stage:       stage,
			Kind:        kind,
			Message:     msg,
			Context:     ctx,
			Recoverable: false,
			Suggestions: suggestions,
		},
	}
}
