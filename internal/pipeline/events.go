package pipeline

import (
	"git.home.luguber.info/inful/docgen/internal/models"
)

// Event is a lifecycle event published by the pipeline and consumed by
// handlers (and, when configured, persisted to the event store).
type Event struct {
	RunID  string            `json:"run_id"`
	Type   string            `json:"type"`
	Stage  models.StageName  `json:"stage,omitempty"`
	Detail map[string]string `json:"detail,omitempty"`
}

// Name returns the event type for subscription dispatch.
func (e Event) Name() string { return e.Type }

// Event names used in the pipeline.
const (
	EventRunStarted      = "RunStarted"
	EventStageStarted    = "StageStarted"
	EventStageCompleted  = "StageCompleted"
	EventStageFailed     = "StageFailed"
	EventFallbackApplied = "FallbackApplied"
	EventCheckpointSaved = "CheckpointSaved"
	EventRunCompleted    = "RunCompleted"
	EventRunFailed       = "RunFailed"
)
