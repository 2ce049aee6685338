// Package checkpoint persists and reloads per-stage pipeline snapshots.
//
// One checkpoint is written per completed stage, keyed by stage name. Loading
// and merging the same checkpoint twice yields the same state as applying it
// once: the merge fully overwrites matching keys.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"git.home.luguber.info/inful/docgen/internal/models"
)

// CheckpointError indicates a requested checkpoint is missing or corrupt.
type CheckpointError struct {
	Stage models.StageName
	Err   error
}

func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s: %v", e.Stage, e.Err)
}
func (e *CheckpointError) Unwrap() error { return e.Err }

// Manager stores checkpoints as JSON files in a directory, one file per stage.
// Distinct pipeline instances must use distinct directories; the manager does
// not arbitrate between concurrent writers.
type Manager struct {
	dir string
	mu  sync.RWMutex
}

// NewManager creates a checkpoint manager rooted at dir, creating it if needed.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create checkpoint directory %s: %w", dir, err)
	}
	return &Manager{dir: dir}, nil
}

// Save persists a new checkpoint after the given stage completes. The write is
// staged through a temp file so readers never observe a partial checkpoint.
func (m *Manager) Save(stage models.StageName, state *models.RunState, results map[models.StageName]*models.StageResult, completed []models.StageName) (*models.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := &models.Checkpoint{
		Stage:           stage,
		Timestamp:       time.Now().UTC(),
		StateData:       state.Snapshot(),
		StageResults:    copyResults(results),
		CompletedStages: append([]models.StageName(nil), completed...),
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint %s: %w", stage, err)
	}

	path := m.path(stage)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0640); err != nil {
		return nil, fmt.Errorf("write checkpoint %s: %w", stage, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, fmt.Errorf("commit checkpoint %s: %w", stage, err)
	}
	return cp, nil
}

// Load deserializes the checkpoint taken after the given stage. Missing or
// corrupt checkpoints fail with a CheckpointError.
func (m *Manager) Load(stage models.StageName) (*models.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.load(stage)
}

func (m *Manager) load(stage models.StageName) (*models.Checkpoint, error) {
	data, err := os.ReadFile(m.path(stage))
	if err != nil {
		return nil, &CheckpointError{Stage: stage, Err: err}
	}
	var cp models.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, &CheckpointError{Stage: stage, Err: fmt.Errorf("corrupt checkpoint: %w", err)}
	}
	if cp.Stage != stage {
		return nil, &CheckpointError{Stage: stage, Err: fmt.Errorf("checkpoint names stage %s", cp.Stage)}
	}
	return &cp, nil
}

// ForStage returns the last persisted checkpoint at or before the given stage,
// or nil when none exists.
func (m *Manager) ForStage(stage models.StageName) (*models.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx := models.StageIndex(stage)
	if idx < 0 {
		return nil, &CheckpointError{Stage: stage, Err: fmt.Errorf("unknown stage")}
	}
	for i := idx; i >= 0; i-- {
		cp, err := m.load(models.Stages[i])
		if err == nil {
			return cp, nil
		}
		if !os.IsNotExist(underlying(err)) {
			return nil, err
		}
	}
	return nil, nil
}

// Before returns every persisted checkpoint for stages strictly before the
// given stage, in stage order. Missing checkpoints are skipped.
func (m *Manager) Before(stage models.StageName) ([]*models.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx := models.StageIndex(stage)
	if idx < 0 {
		return nil, &CheckpointError{Stage: stage, Err: fmt.Errorf("unknown stage")}
	}
	var out []*models.Checkpoint
	for i := 0; i < idx; i++ {
		cp, err := m.load(models.Stages[i])
		if err != nil {
			if os.IsNotExist(underlying(err)) {
				continue
			}
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// List returns the stages that currently have a persisted checkpoint, in stage order.
func (m *Manager) List() []models.StageName {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.StageName
	for _, s := range models.Stages {
		if _, err := os.Stat(m.path(s)); err == nil {
			out = append(out, s)
		}
	}
	return out
}

func (m *Manager) path(stage models.StageName) string {
	return filepath.Join(m.dir, string(stage)+".json")
}

func underlying(err error) error {
	if ce, ok := err.(*CheckpointError); ok {
		return ce.Err
	}
	return err
}

func copyResults(results map[models.StageName]*models.StageResult) map[models.StageName]*models.StageResult {
	out := make(map[models.StageName]*models.StageResult, len(results))
	for k, v := range results {
		out[k] = v
	}
	return out
}
