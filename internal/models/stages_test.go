package models

import (
	"context"
	"testing"
)

func noopStage(stage StageName) Stage {
	return func(ctx context.Context, st *RunState) (*StageResult, error) {
		return NewStageResult(stage), nil
	}
}

func TestStageOrderIsFixed(t *testing.T) {
	want := []StageName{
		StageIngestion,
		StageExtraction,
		StageTransformation,
		StageTemplateSelection,
		StageValidation,
		StageGeneration,
	}
	if len(Stages) != len(want) {
		t.Fatalf("len(Stages) = %d, want %d", len(Stages), len(want))
	}
	for i, s := range want {
		if Stages[i] != s {
			t.Errorf("Stages[%d] = %s, want %s", i, Stages[i], s)
		}
	}
}

func TestStageIndexAndAfter(t *testing.T) {
	if StageIndex(StageIngestion) != 0 {
		t.Error("ingestion should be first")
	}
	if StageIndex("bogus") != -1 {
		t.Error("unknown stage should index -1")
	}
	if StageAfter(StageValidation) != StageGeneration {
		t.Error("generation follows validation")
	}
	if StageAfter(StageGeneration) != "" {
		t.Error("nothing follows generation")
	}
}

func TestRegistryBuildValidatesOrder(t *testing.T) {
	r := NewRegistry()
	for _, s := range Stages {
		r.Add(s, noopStage(s))
	}
	defs, err := r.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(defs) != len(Stages) {
		t.Errorf("len = %d", len(defs))
	}
}

func TestRegistryBuildRejectsMissingStage(t *testing.T) {
	r := NewRegistry().Add(StageIngestion, noopStage(StageIngestion))
	if _, err := r.Build(); err == nil {
		t.Fatal("expected error for incomplete registry")
	}
}

func TestRegistryBuildRejectsWrongOrder(t *testing.T) {
	r := NewRegistry()
	for i := len(Stages) - 1; i >= 0; i-- {
		r.Add(Stages[i], noopStage(Stages[i]))
	}
	if _, err := r.Build(); err == nil {
		t.Fatal("expected error for out-of-order registry")
	}
}

func TestRegistryBuildRejectsNilFn(t *testing.T) {
	r := NewRegistry()
	for _, s := range Stages {
		r.Add(s, nil)
	}
	if _, err := r.Build(); err == nil {
		t.Fatal("expected error for nil stage function")
	}
}
