package models

import (
	"encoding/json"
	"fmt"
	"time"

	"git.home.luguber.info/inful/docgen/internal/manifest"
)

// StageResult captures the outcome of a single stage attempt. Results are
// transient per attempt; on retry only the final attempt's result is kept.
type StageResult struct {
	Stage    StageName      `json:"stage"`
	Success  bool           `json:"success"`
	Data     map[string]any `json:"data,omitempty"`
	Errors   []string       `json:"errors,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// NewStageResult creates a successful result for the given stage.
func NewStageResult(stage StageName) *StageResult {
	return &StageResult{Stage: stage, Success: true, Data: make(map[string]any)}
}

// FailedStageResult creates a failing result carrying the given error.
func FailedStageResult(stage StageName, err error) *StageResult {
	res := &StageResult{Stage: stage, Success: false}
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
	}
	return res
}

// AddWarning appends a warning message.
func (r *StageResult) AddWarning(msg string) { r.Warnings = append(r.Warnings, msg) }

// ErrorKind classifies a structured pipeline error.
type ErrorKind string

const (
	ErrorKindCritical   ErrorKind = "critical_stage"
	ErrorKindStage      ErrorKind = "stage"
	ErrorKindCheckpoint ErrorKind = "checkpoint"
	ErrorKindConfig     ErrorKind = "config"
)

// PipelineError is a structured fatal-failure record surfaced in the
// PipelineResult. Recoverable is always false once the error reaches the
// caller; transient conditions are absorbed earlier by the retry runner.
type PipelineError struct {
	Stage       StageName      `json:"stage"`
	Kind        ErrorKind      `json:"kind"`
	Message     string         `json:"message"`
	Context     map[string]any `json:"context,omitempty"`
	Recoverable bool           `json:"recoverable"`
	Suggestions []string       `json:"suggestions,omitempty"`
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s stage %s: %s", e.Kind, e.Stage, e.Message)
}

// PipelineResult is the aggregate outcome of a full run. It is the only value
// Run ever returns; fatal termination is reported through Success=false and the
// error lists, never through a raised error.
type PipelineResult struct {
	RunID           string                `json:"run_id"`
	Success         bool                  `json:"success"`
	Errors          []string              `json:"errors,omitempty"`
	PipelineErrors  []*PipelineError      `json:"pipeline_errors,omitempty"`
	StagesCompleted []StageName           `json:"stages_completed"`
	RecoveredErrors int                   `json:"recovered_errors"`
	Duration        time.Duration         `json:"duration"`
	Manifest        *manifest.RunManifest `json:"manifest,omitempty"`
}

// RecordError appends both a plain error string and a structured error.
func (r *PipelineResult) RecordError(pe *PipelineError) {
	r.Errors = append(r.Errors, pe.Message)
	r.PipelineErrors = append(r.PipelineErrors, pe)
}

// Checkpoint is a durable snapshot taken after a completed stage. Together with
// the fixed stage order it is sufficient to resume at the following stage.
type Checkpoint struct {
	Stage           StageName                  `json:"stage"`
	Timestamp       time.Time                  `json:"timestamp"`
	StateData       map[string]json.RawMessage `json:"state_data"`
	StageResults    map[StageName]*StageResult `json:"stage_results"`
	CompletedStages []StageName                `json:"completed_stages"`
}
