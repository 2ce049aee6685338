package models

import (
	"encoding/json"
	"fmt"
	"maps"
)

// RunState is the cumulative state-data mapping threaded through stages. Values
// are stored pre-serialized so that checkpoint persistence never has to probe
// value types, and so that a resumed run sees byte-identical state to the run
// that wrote the checkpoint.
type RunState struct {
	data map[string]json.RawMessage
}

// NewRunState creates an empty run state.
func NewRunState() *RunState {
	return &RunState{data: make(map[string]json.RawMessage)}
}

// Put serializes v and stores it under key. Non-serializable values are
// rejected at write time rather than at checkpoint time.
func (s *RunState) Put(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("state value %q not serializable: %w", key, err)
	}
	s.data[key] = raw
	return nil
}

// Get unmarshals the value under key into dst. Missing keys return an error
// naming the key.
func (s *RunState) Get(key string, dst any) error {
	raw, ok := s.data[key]
	if !ok {
		return fmt.Errorf("state key %q not present", key)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode state key %q: %w", key, err)
	}
	return nil
}

// Has reports whether key is present.
func (s *RunState) Has(key string) bool {
	_, ok := s.data[key]
	return ok
}

// Merge overwrites matching keys from the given snapshot. Overwrite semantics
// make repeated application of the same snapshot idempotent.
func (s *RunState) Merge(snapshot map[string]json.RawMessage) {
	for k, v := range snapshot {
		s.data[k] = append(json.RawMessage(nil), v...)
	}
}

// MergeValues serializes and merges a plain value mapping (stage output data or
// fallback injections) into the state.
func (s *RunState) MergeValues(values map[string]any) error {
	for k, v := range values {
		if err := s.Put(k, v); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns a deep copy of the underlying mapping, suitable for
// checkpoint persistence.
func (s *RunState) Snapshot() map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(s.data))
	for k, v := range s.data {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// Replace discards the current contents and installs the given snapshot.
func (s *RunState) Replace(snapshot map[string]json.RawMessage) {
	s.data = make(map[string]json.RawMessage, len(snapshot))
	s.Merge(snapshot)
}

// Keys returns the set of present keys.
func (s *RunState) Keys() []string {
	out := make([]string, 0, len(s.data))
	for k := range maps.Keys(s.data) {
		out = append(out, k)
	}
	return out
}

// Len returns the number of stored keys.
func (s *RunState) Len() int { return len(s.data) }
