// Package pipeline orchestrates the fixed stage sequence of a generation run:
// ingestion, extraction, transformation, template selection, validation, and
// generation. Each stage runs through the retry runner; failures are routed
// through the failure handler, which either injects a fallback and continues
// or halts the run and triggers the partial-results writer.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/docgen/internal/checkpoint"
	"git.home.luguber.info/inful/docgen/internal/config"
	"git.home.luguber.info/inful/docgen/internal/diagnostics"
	"git.home.luguber.info/inful/docgen/internal/failure"
	"git.home.luguber.info/inful/docgen/internal/manifest"
	"git.home.luguber.info/inful/docgen/internal/metrics"
	"git.home.luguber.info/inful/docgen/internal/models"
	"git.home.luguber.info/inful/docgen/internal/retry"
)

// Pipeline drives one generation run. An instance owns its state exclusively
// and is strictly single-threaded: stage N+1 never begins before stage N's
// retry loop has fully resolved. Run concurrent work on separate instances.
type Pipeline struct {
	cfg      *config.Config
	runID    string
	defs     []models.StageDef
	runner   *retry.Runner
	handler  *failure.Handler
	ckpts    *checkpoint.Manager
	partial  *diagnostics.Writer
	bus      *Bus
	recorder metrics.Recorder

	state     *models.RunState
	results   map[models.StageName]*models.StageResult
	completed []models.StageName
	recovered int
}

// Option configures pipeline behavior.
type Option func(*Pipeline)

// WithBus attaches an event bus; nil buses are ignored.
func WithBus(bus *Bus) Option {
	return func(p *Pipeline) {
		if bus != nil {
			p.bus = bus
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(rec metrics.Recorder) Option {
	return func(p *Pipeline) {
		if rec != nil {
			p.recorder = rec
		}
	}
}

// WithRunID overrides the generated run identifier; used by tests and the
// daemon, which names runs after the work unit that triggered them.
func WithRunID(id string) Option {
	return func(p *Pipeline) {
		if id != "" {
			p.runID = id
		}
	}
}

// WithSleeper replaces the retry backoff sleep; used by tests.
func WithSleeper(s retry.Sleeper) Option {
	return func(p *Pipeline) { p.runner.WithSleeper(s) }
}

// New builds a pipeline from configuration and a validated stage registry.
func New(cfg *config.Config, reg *models.Registry, opts ...Option) (*Pipeline, error) {
	defs, err := reg.Build()
	if err != nil {
		return nil, fmt.Errorf("invalid stage registry: %w", err)
	}

	ckpts, err := checkpoint.NewManager(cfg.Pipeline.CheckpointDir)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:      cfg,
		runID:    uuid.NewString(),
		defs:     defs,
		runner:   retry.NewRunner(retry.FromConfig(cfg)),
		handler:  failure.NewHandler(failure.DefaultPolicy(cfg.Pipeline.Strict)),
		ckpts:    ckpts,
		partial:  diagnostics.NewWriter(cfg.Output.Directory),
		bus:      NewBus(),
		recorder: metrics.NoopRecorder{},
		state:    models.NewRunState(),
		results:  make(map[models.StageName]*models.StageResult),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.handler.ResumeHint = func(models.StageName) string {
		if last := p.lastCompleted(); last != "" {
			return fmt.Sprintf("resume with: docgen resume --from %s", last)
		}
		return ""
	}
	p.runner.OnRetry = func(stage models.StageName, attempt int) {
		p.recorder.IncRetry(string(stage))
		p.publish(EventStageFailed, stage, map[string]string{"attempt": fmt.Sprintf("%d", attempt)})
	}
	p.runner.OnRecovered = func(stage models.StageName, attempts int) {
		p.recovered++
		p.recorder.IncRecovered(string(stage))
	}

	return p, nil
}

// RunID returns the identifier of this run.
func (p *Pipeline) RunID() string { return p.runID }

// State exposes the accumulated run state; tests use it to assert stage
// data flow.
func (p *Pipeline) State() *models.RunState { return p.state }

// Run executes the pipeline from the beginning (or, with warm start enabled,
// from the first stage without a prior checkpoint). It never returns an error:
// fatal termination is reported through the result's Success flag and error
// lists.
func (p *Pipeline) Run(ctx context.Context) *models.PipelineResult {
	start := models.Stages[0]
	if p.cfg.Pipeline.WarmStart {
		start = p.warmStart()
	}
	return p.runFrom(ctx, start)
}

// Resume loads the checkpoint taken after the given stage, restores state,
// results, and the completed list from it, and continues the run at the
// following stage. A missing or corrupt checkpoint is a CheckpointError.
func (p *Pipeline) Resume(ctx context.Context, stage models.StageName) (*models.PipelineResult, error) {
	if models.StageIndex(stage) < 0 {
		return nil, &checkpoint.CheckpointError{Stage: stage, Err: fmt.Errorf("unknown stage")}
	}

	cp, err := p.ckpts.Load(stage)
	if err != nil {
		return nil, err
	}

	p.state.Replace(cp.StateData)
	p.results = make(map[models.StageName]*models.StageResult, len(cp.StageResults))
	for name, res := range cp.StageResults {
		p.results[name] = res
	}
	p.completed = append([]models.StageName(nil), cp.CompletedStages...)

	next := models.StageAfter(stage)
	if next == "" {
		// Resumed past the final stage; nothing left to execute.
		slog.Info("Checkpoint covers the full pipeline; nothing to resume",
			slog.String("run_id", p.runID), slog.String("stage", string(stage)))
	}

	slog.Info("Resuming from checkpoint",
		slog.String("run_id", p.runID),
		slog.String("checkpoint", string(stage)),
		slog.String("next", string(next)))
	return p.runFrom(ctx, next), nil
}

// warmStart merges every contiguous leading checkpoint into live state and
// returns the first stage without one. Checkpoints after a gap are ignored:
// their state may depend on stages that will be re-run. Merging the same
// checkpoint again is idempotent, so stale partial overlap with a later
// explicit resume is safe.
func (p *Pipeline) warmStart() models.StageName {
	persisted := p.ckpts.List()
	start := models.StageName("")
	next := 0
	for _, stage := range models.Stages {
		if next < len(persisted) && persisted[next] == stage {
			next++
			continue
		}
		start = stage
		break
	}

	var cps []*models.Checkpoint
	if start == "" {
		// Every stage has a checkpoint; the last one carries the full
		// cumulative snapshot.
		cp, err := p.ckpts.ForStage(models.Stages[len(models.Stages)-1])
		if err != nil || cp == nil {
			return models.Stages[0]
		}
		cps = []*models.Checkpoint{cp}
	} else {
		loaded, err := p.ckpts.Before(start)
		if err != nil {
			slog.Warn("Warm start disabled, checkpoints unreadable",
				slog.String("run_id", p.runID), slog.String("error", err.Error()))
			return models.Stages[0]
		}
		cps = loaded
	}

	for _, cp := range cps {
		p.state.Merge(cp.StateData)
		for name, res := range cp.StageResults {
			p.results[name] = res
		}
		p.completed = mergeCompleted(p.completed, cp.CompletedStages)
		slog.Debug("Warm start merged checkpoint",
			slog.String("run_id", p.runID), slog.String("stage", string(cp.Stage)))
	}
	return start
}

func (p *Pipeline) runFrom(ctx context.Context, start models.StageName) *models.PipelineResult {
	began := time.Now()
	result := &models.PipelineResult{RunID: p.runID, Success: true}

	p.publish(EventRunStarted, "", nil)

	// An empty start stage means every stage is already covered by
	// checkpoints; there is nothing left to execute.
	skip := true
	for _, def := range p.defs {
		if skip {
			if start == "" || def.Name != start {
				continue
			}
			skip = false
		}
		if !p.runStage(ctx, def, result) {
			break
		}
	}

	result.StagesCompleted = append([]models.StageName(nil), p.completed...)
	result.RecoveredErrors = p.recovered
	result.Duration = time.Since(began)
	result.Manifest = p.buildManifest(began, result)

	p.recorder.ObserveRunDuration(result.Duration)
	if result.Success {
		p.recorder.IncRunOutcome("success")
		p.publish(EventRunCompleted, "", nil)
		slog.Info("Pipeline run completed",
			slog.String("run_id", p.runID),
			slog.Int("stages", len(result.StagesCompleted)),
			slog.Int("recovered", result.RecoveredErrors),
			slog.Duration("duration", result.Duration))
	} else {
		p.recorder.IncRunOutcome("failed")
		p.publish(EventRunFailed, "", nil)
	}
	return result
}

// runStage executes one stage through the retry runner and routes any failure
// through the failure handler. It reports whether the run may proceed.
func (p *Pipeline) runStage(ctx context.Context, def models.StageDef, result *models.PipelineResult) bool {
	p.publish(EventStageStarted, def.Name, nil)
	slog.Info("Stage started", slog.String("run_id", p.runID), slog.String("stage", string(def.Name)))

	began := time.Now()
	res, err := p.runner.Do(ctx, def.Name, def.Fn, p.state)
	elapsed := time.Since(began)
	p.recorder.ObserveStageDuration(string(def.Name), elapsed)

	if err != nil || res == nil || !res.Success {
		if res == nil {
			res = models.FailedStageResult(def.Name, err)
		}
		res.Duration = elapsed
		p.results[def.Name] = res
		return p.handleFailure(def.Name, res, result)
	}

	res.Duration = elapsed
	p.results[def.Name] = res
	p.completed = append(p.completed, def.Name)
	p.recorder.IncStageResult(string(def.Name), metrics.ResultSuccess)
	p.publish(EventStageCompleted, def.Name, nil)

	if _, err := p.ckpts.Save(def.Name, p.state, p.results, p.completed); err != nil {
		// A checkpoint write failure degrades resumability but never
		// aborts a run that is otherwise making progress.
		slog.Warn("Checkpoint save failed",
			slog.String("run_id", p.runID),
			slog.String("stage", string(def.Name)),
			slog.String("error", err.Error()))
		result.Errors = append(result.Errors, fmt.Sprintf("checkpoint after %s failed: %v", def.Name, err))
	} else {
		p.publish(EventCheckpointSaved, def.Name, nil)
	}
	return true
}

func (p *Pipeline) handleFailure(stage models.StageName, res *models.StageResult, result *models.PipelineResult) bool {
	decision := p.handler.Handle(stage, res, result)
	if !decision.Halt {
		if err := p.state.MergeValues(decision.Inject); err != nil {
			// Fallback injections are static values that always serialize;
			// anything else is an internal defect worth halting over.
			decision.Halt = true
			decision.Err = &models.PipelineError{
				Stage:   stage,
				Kind:    models.ErrorKindStage,
				Message: fmt.Sprintf("fallback injection failed: %v", err),
			}
		} else {
			p.recorder.IncStageResult(string(stage), metrics.ResultFallback)
			p.publish(EventFallbackApplied, stage, nil)
			return true
		}
	}

	result.Success = false
	result.RecordError(decision.Err)
	p.recorder.IncStageResult(string(stage), metrics.ResultFatal)
	p.publish(EventStageFailed, stage, map[string]string{"fatal": "true"})

	dir := p.partial.Write(p.state, p.results, diagnostics.RecoveryInfo{
		FailedStage:     stage,
		CompletedStages: append([]models.StageName(nil), p.completed...),
		Timestamp:       time.Now(),
		Suggestions:     decision.Err.Suggestions,
		ResumeCommand:   p.resumeCommand(),
	})
	if dir != "" {
		slog.Info("Diagnostics available", slog.String("run_id", p.runID), slog.String("dir", dir))
	}

	slog.Error("Pipeline halted",
		slog.String("run_id", p.runID),
		slog.String("stage", string(stage)),
		slog.String("error", decision.Err.Message))
	return false
}

func (p *Pipeline) lastCompleted() models.StageName {
	if len(p.completed) == 0 {
		return ""
	}
	return p.completed[len(p.completed)-1]
}

func (p *Pipeline) resumeCommand() string {
	if last := p.lastCompleted(); last != "" {
		return fmt.Sprintf("docgen resume --from %s", last)
	}
	return ""
}

// buildManifest assembles the provenance record from the accumulated state.
// Keys written by skipped or failed stages are simply absent.
func (p *Pipeline) buildManifest(began time.Time, result *models.PipelineResult) *manifest.RunManifest {
	m := &manifest.RunManifest{
		ID:        p.runID,
		Timestamp: began.UTC(),
		Plan: manifest.Plan{
			Template: p.cfg.Pipeline.Template,
			Strict:   p.cfg.Pipeline.Strict,
		},
		Status:   "completed",
		Duration: time.Since(began).Milliseconds(),
	}
	if !result.Success {
		m.Status = "failed"
	}
	for _, s := range p.completed {
		m.StagesCompleted = append(m.StagesCompleted, string(s))
	}

	var doc struct {
		Path        string `json:"path"`
		Format      string `json:"format"`
		Hash        string `json:"hash"`
		Fingerprint string `json:"fingerprint"`
	}
	if err := p.state.Get(models.KeyDocument, &doc); err == nil {
		m.Inputs = manifest.Inputs{
			Path:        doc.Path,
			Format:      doc.Format,
			ContentHash: doc.Hash,
			Fingerprint: doc.Fingerprint,
		}
	} else {
		m.Inputs.Path = p.cfg.Input.Path
	}
	m.Inputs.ConfigHash = p.cfg.Hash()

	var templateID string
	if err := p.state.Get(models.KeyTemplateID, &templateID); err == nil && templateID != "" {
		m.Plan.Template = templateID
	}

	var art struct {
		Path string `json:"path"`
		Hash string `json:"hash"`
	}
	if err := p.state.Get(models.KeyArtifact, &art); err == nil {
		m.Outputs = manifest.Outputs{ArtifactPath: art.Path, ArtifactHash: art.Hash}
	}
	return m
}

func (p *Pipeline) publish(event string, stage models.StageName, detail map[string]string) {
	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(Event{RunID: p.runID, Type: event, Stage: stage, Detail: detail}); err != nil {
		slog.Warn("Event handler failed",
			slog.String("run_id", p.runID),
			slog.String("event", event),
			slog.String("error", err.Error()))
	}
}

func mergeCompleted(have, add []models.StageName) []models.StageName {
	seen := make(map[models.StageName]bool, len(have))
	for _, s := range have {
		seen[s] = true
	}
	for _, s := range add {
		if !seen[s] {
			have = append(have, s)
			seen[s] = true
		}
	}
	return have
}
