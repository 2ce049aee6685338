// Package diagnostics dumps partial pipeline results on fatal failure.
//
// The dump is best-effort: non-serializable values are coerced to their string
// representation, and any write failure is logged rather than propagated, so a
// diagnostics problem never masks the pipeline failure being reported.
package diagnostics

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/docgen/internal/models"
)

const (
	stateFile    = "state_data.json"
	resultsFile  = "stage_results.json"
	recoveryFile = "recovery_info.json"
)

// RecoveryInfo names the failed stage and how to pick the run back up.
type RecoveryInfo struct {
	FailedStage     models.StageName   `json:"failed_stage"`
	CompletedStages []models.StageName `json:"completed_stages"`
	Timestamp       time.Time          `json:"timestamp"`
	Suggestions     []string           `json:"suggestions"`
	ResumeCommand   string             `json:"resume_command,omitempty"`
}

// Writer persists diagnostic state to a timestamped directory on fatal halt.
type Writer struct {
	baseDir string
}

// NewWriter creates a partial-results writer rooted at baseDir.
func NewWriter(baseDir string) *Writer {
	return &Writer{baseDir: baseDir}
}

// Write dumps the cumulative state, the recorded per-stage results, and a
// recovery record. It returns the directory written, or "" when nothing could
// be written. Errors are logged, never returned.
func (w *Writer) Write(state *models.RunState, results map[models.StageName]*models.StageResult, info RecoveryInfo) string {
	dir := filepath.Join(w.baseDir, fmt.Sprintf("partial_results_%s", info.Timestamp.UTC().Format("20060102T150405Z")))
	if err := os.MkdirAll(dir, 0750); err != nil {
		slog.Error("Failed to create partial-results directory", "dir", dir, "error", err)
		return ""
	}

	w.writeJSON(filepath.Join(dir, stateFile), state.Snapshot())
	w.writeJSON(filepath.Join(dir, resultsFile), coerceResults(results))
	w.writeJSON(filepath.Join(dir, recoveryFile), info)

	slog.Info("Partial results written", "dir", dir, "failed_stage", string(info.FailedStage))
	return dir
}

func (w *Writer) writeJSON(path string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		slog.Error("Failed to serialize diagnostic file", "path", path, "error", err)
		return
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		slog.Error("Failed to write diagnostic file", "path", path, "error", err)
	}
}

// coerceResults rewrites stage-result data so every value serializes: values
// that fail a marshal probe are replaced by their fmt representation.
func coerceResults(results map[models.StageName]*models.StageResult) map[models.StageName]*models.StageResult {
	out := make(map[models.StageName]*models.StageResult, len(results))
	for name, res := range results {
		if res == nil || res.Data == nil {
			out[name] = res
			continue
		}
		clone := *res
		clone.Data = make(map[string]any, len(res.Data))
		for k, v := range res.Data {
			clone.Data[k] = coerceValue(v)
		}
		out[name] = &clone
	}
	return out
}

func coerceValue(v any) any {
	if _, err := json.Marshal(v); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return v
}
