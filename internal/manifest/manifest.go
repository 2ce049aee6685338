// Package manifest records the provenance of a generation run: its inputs,
// plan, and outputs.
package manifest

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"
)

// RunManifest represents a complete record of a run's inputs, plan, and outputs.
type RunManifest struct {
	ID              string    `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	Inputs          Inputs    `json:"inputs"`
	Plan            Plan      `json:"plan"`
	Outputs         Outputs   `json:"outputs"`
	Status          string    `json:"status"`
	Duration        int64     `json:"duration_ms"`
	StagesCompleted []string  `json:"stages_completed"`
}

// Inputs captures all inputs to the run.
type Inputs struct {
	Path        string `json:"path"`
	Format      string `json:"format,omitempty"`
	ContentHash string `json:"content_hash,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	ConfigHash  string `json:"config_hash,omitempty"`
}

// Plan captures the run execution plan.
type Plan struct {
	Template string `json:"template"`
	Strict   bool   `json:"strict"`
}

// Outputs captures all outputs from the run.
type Outputs struct {
	ArtifactPath string `json:"artifact_path,omitempty"`
	ArtifactHash string `json:"artifact_hash,omitempty"`
}

// ToJSON serializes the manifest to JSON.
func (m *RunManifest) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	return data, nil
}

// FromJSON deserializes a manifest from JSON.
func FromJSON(data []byte) (*RunManifest, error) {
	var m RunManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	return &m, nil
}

// Hash computes a deterministic hash of the manifest's inputs and plan. Two
// runs over identical inputs with an identical plan hash the same.
func (m *RunManifest) Hash() (string, error) {
	hashInput := struct {
		Inputs Inputs `json:"inputs"`
		Plan   Plan   `json:"plan"`
	}{
		Inputs: m.Inputs,
		Plan:   m.Plan,
	}

	data, err := json.Marshal(hashInput)
	if err != nil {
		return "", fmt.Errorf("marshal for hash: %w", err)
	}

	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash), nil
}
