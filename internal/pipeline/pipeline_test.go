package pipeline

import (
	"context"
	stdErrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"git.home.luguber.info/inful/docgen/internal/checkpoint"
	"git.home.luguber.info/inful/docgen/internal/config"
	"git.home.luguber.info/inful/docgen/internal/errors"
	"git.home.luguber.info/inful/docgen/internal/metrics"
	"git.home.luguber.info/inful/docgen/internal/models"
	"git.home.luguber.info/inful/docgen/internal/retry"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.Input.Path = filepath.Join(base, "in.md")
	cfg.Output.Directory = filepath.Join(base, "site")
	cfg.Pipeline.CheckpointDir = filepath.Join(base, "checkpoints")
	cfg.Storage.Directory = ""
	cfg.Events.Path = ""
	return cfg
}

func instant() retry.Sleeper {
	return func(ctx context.Context, d time.Duration) {}
}

// stubRegistry returns a registry of stages that each write their state key
// and append their name to calls. Overrides replace individual stages.
func stubRegistry(calls *[]models.StageName, overrides map[models.StageName]models.Stage) *models.Registry {
	keys := map[models.StageName]string{
		models.StageIngestion:         models.KeyDocument,
		models.StageExtraction:        models.KeySemantic,
		models.StageTransformation:    models.KeyPresentation,
		models.StageTemplateSelection: models.KeyTemplateID,
		models.StageValidation:        models.KeyValidation,
		models.StageGeneration:        models.KeyArtifact,
	}

	reg := models.NewRegistry()
	for _, stage := range models.Stages {
		if fn, ok := overrides[stage]; ok {
			wrapped := fn
			name := stage
			reg.Add(name, func(ctx context.Context, st *models.RunState) (*models.StageResult, error) {
				*calls = append(*calls, name)
				return wrapped(ctx, st)
			})
			continue
		}
		name := stage
		key := keys[stage]
		reg.Add(name, func(ctx context.Context, st *models.RunState) (*models.StageResult, error) {
			*calls = append(*calls, name)
			if err := st.Put(key, string(name)+"-output"); err != nil {
				return nil, err
			}
			return models.NewStageResult(name), nil
		})
	}
	return reg
}

// countingRecorder captures run outcome labels for assertion.
type countingRecorder struct {
	metrics.NoopRecorder
	outcomes []string
}

func (r *countingRecorder) IncRunOutcome(outcome string) {
	r.outcomes = append(r.outcomes, outcome)
}

func TestRunOutcomeLabels(t *testing.T) {
	rec := &countingRecorder{}
	var calls []models.StageName
	p, err := New(testConfig(t), stubRegistry(&calls, nil), WithSleeper(instant()), WithRecorder(rec))
	if err != nil {
		t.Fatal(err)
	}
	p.Run(context.Background())
	if len(rec.outcomes) != 1 || rec.outcomes[0] != "success" {
		t.Errorf("outcomes = %v, want [success]", rec.outcomes)
	}

	rec = &countingRecorder{}
	calls = nil
	failing := map[models.StageName]models.Stage{
		models.StageIngestion: func(ctx context.Context, st *models.RunState) (*models.StageResult, error) {
			return nil, errors.InputError("no input")
		},
	}
	p, err = New(testConfig(t), stubRegistry(&calls, failing), WithSleeper(instant()), WithRecorder(rec))
	if err != nil {
		t.Fatal(err)
	}
	p.Run(context.Background())
	if len(rec.outcomes) != 1 || rec.outcomes[0] != "failed" {
		t.Errorf("outcomes = %v, want [failed]", rec.outcomes)
	}
}

func TestRunHappyPath(t *testing.T) {
	cfg := testConfig(t)
	var calls []models.StageName
	p, err := New(cfg, stubRegistry(&calls, nil), WithSleeper(instant()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result := p.Run(context.Background())
	if !result.Success {
		t.Fatalf("run failed: %v", result.Errors)
	}
	if len(result.StagesCompleted) != len(models.Stages) {
		t.Errorf("completed = %v", result.StagesCompleted)
	}
	if len(calls) != len(models.Stages) {
		t.Errorf("calls = %v", calls)
	}
	if result.RunID == "" {
		t.Error("run id missing")
	}
	if result.Duration <= 0 {
		t.Error("duration not recorded")
	}

	// One checkpoint per completed stage.
	for _, s := range models.Stages {
		path := filepath.Join(cfg.Pipeline.CheckpointDir, string(s)+".json")
		if _, err := os.Stat(path); err != nil {
			t.Errorf("missing checkpoint for %s", s)
		}
	}

	if result.Manifest == nil {
		t.Fatal("manifest missing")
	}
	if result.Manifest.Status != "completed" {
		t.Errorf("manifest status = %s", result.Manifest.Status)
	}
}

func TestRunRecoversFromTransientFailure(t *testing.T) {
	cfg := testConfig(t)
	var calls []models.StageName

	attempts := 0
	flaky := func(ctx context.Context, st *models.RunState) (*models.StageResult, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.Retryable(errors.CategoryExtraction, errors.SeverityWarning, "transient parse hiccup")
		}
		if err := st.Put(models.KeySemantic, "recovered"); err != nil {
			return nil, err
		}
		return models.NewStageResult(models.StageExtraction), nil
	}

	p, err := New(cfg, stubRegistry(&calls, map[models.StageName]models.Stage{
		models.StageExtraction: flaky,
	}), WithSleeper(instant()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result := p.Run(context.Background())
	if !result.Success {
		t.Fatalf("run failed: %v", result.Errors)
	}
	if result.RecoveredErrors != 1 {
		t.Errorf("recovered = %d, want 1", result.RecoveredErrors)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRunTemplateSelectionFallsBack(t *testing.T) {
	cfg := testConfig(t)
	var calls []models.StageName

	failing := func(ctx context.Context, st *models.RunState) (*models.StageResult, error) {
		return nil, stdErrors.New("template \"fancy\" not in catalog")
	}

	p, err := New(cfg, stubRegistry(&calls, map[models.StageName]models.Stage{
		models.StageTemplateSelection: failing,
	}), WithSleeper(instant()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result := p.Run(context.Background())
	if !result.Success {
		t.Fatalf("fallback should keep the run alive: %v", result.Errors)
	}

	var id string
	if err := p.State().Get(models.KeyTemplateID, &id); err != nil || id != models.DefaultTemplateID {
		t.Errorf("template_id = %q (%v), want %s", id, err, models.DefaultTemplateID)
	}

	// The absorbed stage is not recorded as completed and leaves no checkpoint.
	for _, s := range result.StagesCompleted {
		if s == models.StageTemplateSelection {
			t.Error("fallback-absorbed stage listed as completed")
		}
	}
	path := filepath.Join(cfg.Pipeline.CheckpointDir, "template_selection.json")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("absorbed stage should not checkpoint")
	}

	// Generation still ran, after the fallback.
	if calls[len(calls)-1] != models.StageGeneration {
		t.Errorf("last call = %s, want generation", calls[len(calls)-1])
	}
}

func TestRunHaltsOnCriticalFailure(t *testing.T) {
	cfg := testConfig(t)
	var calls []models.StageName

	failing := func(ctx context.Context, st *models.RunState) (*models.StageResult, error) {
		return nil, stdErrors.New("cannot transform")
	}

	p, err := New(cfg, stubRegistry(&calls, map[models.StageName]models.Stage{
		models.StageTransformation: failing,
	}), WithSleeper(instant()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result := p.Run(context.Background())
	if result.Success {
		t.Fatal("expected failure")
	}
	if len(result.PipelineErrors) != 1 {
		t.Fatalf("pipeline errors = %d, want 1", len(result.PipelineErrors))
	}
	pe := result.PipelineErrors[0]
	if pe.Kind != models.ErrorKindCritical {
		t.Errorf("kind = %s, want critical_stage", pe.Kind)
	}
	if pe.Stage != models.StageTransformation {
		t.Errorf("stage = %s", pe.Stage)
	}
	if len(pe.Suggestions) == 0 {
		t.Error("expected suggestions on fatal error")
	}

	// Later stages never ran.
	for _, c := range calls {
		if c == models.StageTemplateSelection || c == models.StageGeneration {
			t.Errorf("stage %s ran after fatal halt", c)
		}
	}
	if len(result.StagesCompleted) != 2 {
		t.Errorf("completed = %v, want ingestion+extraction", result.StagesCompleted)
	}

	// Partial results were dumped next to the output.
	entries, err := os.ReadDir(cfg.Output.Directory)
	if err != nil {
		t.Fatalf("reading output dir: %v", err)
	}
	var found string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "partial_results_") {
			found = e.Name()
		}
	}
	if found == "" {
		t.Fatal("no partial_results directory written")
	}
	for _, name := range []string{"state_data.json", "stage_results.json", "recovery_info.json"} {
		if _, err := os.Stat(filepath.Join(cfg.Output.Directory, found, name)); err != nil {
			t.Errorf("missing diagnostic file %s", name)
		}
	}
}

func TestRunValidationFailureIsAbsorbed(t *testing.T) {
	cfg := testConfig(t)
	var calls []models.StageName

	failing := func(ctx context.Context, st *models.RunState) (*models.StageResult, error) {
		res := models.FailedStageResult(models.StageValidation, stdErrors.New("two warnings"))
		return res, nil
	}

	p, err := New(cfg, stubRegistry(&calls, map[models.StageName]models.Stage{
		models.StageValidation: failing,
	}), WithSleeper(instant()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result := p.Run(context.Background())
	if !result.Success {
		t.Fatalf("validation failure should be absorbed: %v", result.Errors)
	}
	if calls[len(calls)-1] != models.StageGeneration {
		t.Error("generation should run after absorbed validation failure")
	}
}

func TestRunStrictValidationHalts(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.Strict = true
	var calls []models.StageName

	failing := func(ctx context.Context, st *models.RunState) (*models.StageResult, error) {
		return models.FailedStageResult(models.StageValidation, stdErrors.New("warnings as errors")), nil
	}

	p, err := New(cfg, stubRegistry(&calls, map[models.StageName]models.Stage{
		models.StageValidation: failing,
	}), WithSleeper(instant()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result := p.Run(context.Background())
	if result.Success {
		t.Fatal("strict mode should make validation fatal")
	}
	for _, c := range calls {
		if c == models.StageGeneration {
			t.Error("generation ran after strict validation halt")
		}
	}
}

func TestResumeReproducesUninterruptedState(t *testing.T) {
	cfg := testConfig(t)

	var firstCalls []models.StageName
	p1, err := New(cfg, stubRegistry(&firstCalls, nil), WithSleeper(instant()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	full := p1.Run(context.Background())
	if !full.Success {
		t.Fatalf("setup run failed: %v", full.Errors)
	}
	fullState := p1.State().Snapshot()

	var resumedCalls []models.StageName
	p2, err := New(cfg, stubRegistry(&resumedCalls, nil), WithSleeper(instant()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := p2.Resume(context.Background(), models.StageExtraction)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !result.Success {
		t.Fatalf("resumed run failed: %v", result.Errors)
	}

	// Only the stages after the checkpoint executed.
	want := []models.StageName{
		models.StageTransformation,
		models.StageTemplateSelection,
		models.StageValidation,
		models.StageGeneration,
	}
	if len(resumedCalls) != len(want) {
		t.Fatalf("resumed calls = %v, want %v", resumedCalls, want)
	}
	for i, s := range want {
		if resumedCalls[i] != s {
			t.Errorf("call %d = %s, want %s", i, resumedCalls[i], s)
		}
	}

	// Cumulative state matches the uninterrupted run key for key.
	resumedState := p2.State().Snapshot()
	if len(resumedState) != len(fullState) {
		t.Fatalf("state keys = %d, want %d", len(resumedState), len(fullState))
	}
	for k, v := range fullState {
		if string(resumedState[k]) != string(v) {
			t.Errorf("key %s: %s != %s", k, resumedState[k], v)
		}
	}
}

func TestResumeMissingCheckpointFails(t *testing.T) {
	cfg := testConfig(t)
	var calls []models.StageName
	p, err := New(cfg, stubRegistry(&calls, nil), WithSleeper(instant()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = p.Resume(context.Background(), models.StageValidation)
	if err == nil {
		t.Fatal("expected error for missing checkpoint")
	}
	var ce *checkpoint.CheckpointError
	if !stdErrors.As(err, &ce) {
		t.Fatalf("error type = %T, want *CheckpointError", err)
	}
	if len(calls) != 0 {
		t.Errorf("stages ran despite failed resume: %v", calls)
	}
}

func TestResumeUnknownStageFails(t *testing.T) {
	cfg := testConfig(t)
	var calls []models.StageName
	p, err := New(cfg, stubRegistry(&calls, nil), WithSleeper(instant()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := p.Resume(context.Background(), "compilation"); err == nil {
		t.Fatal("expected error for unknown stage")
	}
}

func TestWarmStartSkipsCheckpointedStages(t *testing.T) {
	cfg := testConfig(t)

	var seed []models.StageName
	p1, err := New(cfg, stubRegistry(&seed, nil), WithSleeper(instant()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if result := p1.Run(context.Background()); !result.Success {
		t.Fatalf("seed run failed: %v", result.Errors)
	}

	// Drop the later checkpoints so the warm start has work left to do.
	for _, s := range []models.StageName{models.StageTemplateSelection, models.StageValidation, models.StageGeneration} {
		if err := os.Remove(filepath.Join(cfg.Pipeline.CheckpointDir, string(s)+".json")); err != nil {
			t.Fatal(err)
		}
	}

	cfg.Pipeline.WarmStart = true
	var calls []models.StageName
	p2, err := New(cfg, stubRegistry(&calls, nil), WithSleeper(instant()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result := p2.Run(context.Background())
	if !result.Success {
		t.Fatalf("warm run failed: %v", result.Errors)
	}

	want := []models.StageName{models.StageTemplateSelection, models.StageValidation, models.StageGeneration}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	if !p2.State().Has(models.KeyDocument) {
		t.Error("warm start should have merged earlier stage state")
	}
}

func TestWarmStartIgnoresCheckpointsAfterGap(t *testing.T) {
	cfg := testConfig(t)

	var seed []models.StageName
	p1, err := New(cfg, stubRegistry(&seed, nil), WithSleeper(instant()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if result := p1.Run(context.Background()); !result.Success {
		t.Fatalf("seed run failed: %v", result.Errors)
	}

	// A gap at transformation leaves later checkpoints stale: their state may
	// depend on the stages that get re-run.
	if err := os.Remove(filepath.Join(cfg.Pipeline.CheckpointDir, string(models.StageTransformation)+".json")); err != nil {
		t.Fatal(err)
	}

	cfg.Pipeline.WarmStart = true
	var calls []models.StageName
	p2, err := New(cfg, stubRegistry(&calls, nil), WithSleeper(instant()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result := p2.Run(context.Background())
	if !result.Success {
		t.Fatalf("warm run failed: %v", result.Errors)
	}

	want := []models.StageName{
		models.StageTransformation,
		models.StageTemplateSelection,
		models.StageValidation,
		models.StageGeneration,
	}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i, s := range want {
		if calls[i] != s {
			t.Errorf("calls[%d] = %s, want %s", i, calls[i], s)
		}
	}
}

func TestWarmStartFullyCoveredRunsNothing(t *testing.T) {
	cfg := testConfig(t)

	var seed []models.StageName
	p1, err := New(cfg, stubRegistry(&seed, nil), WithSleeper(instant()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if result := p1.Run(context.Background()); !result.Success {
		t.Fatalf("seed run failed: %v", result.Errors)
	}

	cfg.Pipeline.WarmStart = true
	var calls []models.StageName
	p2, err := New(cfg, stubRegistry(&calls, nil), WithSleeper(instant()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result := p2.Run(context.Background())
	if !result.Success {
		t.Fatalf("warm run failed: %v", result.Errors)
	}
	if len(calls) != 0 {
		t.Errorf("no stages should run, got %v", calls)
	}
	if len(result.StagesCompleted) != len(models.Stages) {
		t.Errorf("completed = %v", result.StagesCompleted)
	}
}

func TestRunNeverReturnsError(t *testing.T) {
	cfg := testConfig(t)
	var calls []models.StageName

	panicFree := func(ctx context.Context, st *models.RunState) (*models.StageResult, error) {
		return nil, stdErrors.New("every stage is broken")
	}
	p, err := New(cfg, stubRegistry(&calls, map[models.StageName]models.Stage{
		models.StageIngestion: panicFree,
	}), WithSleeper(instant()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result := p.Run(context.Background())
	if result == nil {
		t.Fatal("Run must always return a result")
	}
	if result.Success {
		t.Fatal("expected failure")
	}
	if len(result.StagesCompleted) != 0 {
		t.Errorf("completed = %v", result.StagesCompleted)
	}
}

func TestRunPublishesLifecycleEvents(t *testing.T) {
	cfg := testConfig(t)
	var calls []models.StageName

	bus := NewBus()
	var events []string
	for _, name := range []string{EventRunStarted, EventStageStarted, EventStageCompleted, EventCheckpointSaved, EventRunCompleted} {
		n := name
		bus.Subscribe(n, func(e Event) error {
			events = append(events, n)
			return nil
		})
	}

	p, err := New(cfg, stubRegistry(&calls, nil), WithSleeper(instant()), WithBus(bus))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if result := p.Run(context.Background()); !result.Success {
		t.Fatalf("run failed: %v", result.Errors)
	}

	if events[0] != EventRunStarted {
		t.Errorf("first event = %s", events[0])
	}
	if events[len(events)-1] != EventRunCompleted {
		t.Errorf("last event = %s", events[len(events)-1])
	}
	var completed int
	for _, e := range events {
		if e == EventStageCompleted {
			completed++
		}
	}
	if completed != len(models.Stages) {
		t.Errorf("StageCompleted events = %d, want %d", completed, len(models.Stages))
	}
}
