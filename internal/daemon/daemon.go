// Package daemon keeps the generator running: it rebuilds on input changes,
// on a schedule, and on demand, with runs executed through a bounded worker
// queue and outcomes exposed over Prometheus metrics and NATS notifications.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/docgen/internal/config"
	"git.home.luguber.info/inful/docgen/internal/eventstore"
	"git.home.luguber.info/inful/docgen/internal/metrics"
	"git.home.luguber.info/inful/docgen/internal/models"
	"git.home.luguber.info/inful/docgen/internal/pipeline"
	"git.home.luguber.info/inful/docgen/internal/queue"
	"git.home.luguber.info/inful/docgen/internal/stages"
)

// Daemon coordinates the long-running generation service.
type Daemon struct {
	cfg       *config.Config
	queue     *queue.Queue
	scheduler *Scheduler
	watcher   *InputWatcher
	notifier  *Notifier
	recorder  *metrics.PrometheusRecorder
	events    eventstore.Store
	metricsrv *http.Server
}

// New wires the daemon from configuration.
func New(cfg *config.Config) (*Daemon, error) {
	d := &Daemon{
		cfg:      cfg,
		recorder: metrics.NewPrometheusRecorder(prom.NewRegistry()),
	}

	if cfg.Events.Path != "" {
		store, err := eventstore.NewSQLiteStore(cfg.Events.Path)
		if err != nil {
			return nil, err
		}
		d.events = store
	}

	if cfg.Daemon.NATSURL != "" {
		notifier, err := NewNotifier(cfg.Daemon.NATSURL, cfg.Daemon.NATSSubject)
		if err != nil {
			// The notifier is an optional integration; a broker outage
			// must not keep the daemon from serving rebuilds.
			slog.Warn("NATS notifier unavailable", "url", cfg.Daemon.NATSURL, "error", err)
		} else {
			d.notifier = notifier
		}
	}

	d.queue = queue.New(0, cfg.Daemon.Workers, queue.RunnerFunc(d.runJob))

	scheduler, err := NewScheduler()
	if err != nil {
		return nil, err
	}
	d.scheduler = scheduler

	return d, nil
}

// Run starts all daemon components and blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	slog.Info("Daemon starting", "workers", d.cfg.Daemon.Workers)

	if addr := d.cfg.Daemon.MetricsAddr; addr != "" {
		d.startMetricsServer(addr)
	}

	d.queue.Start(ctx)

	if interval := d.cfg.Daemon.RebuildInterval(); interval > 0 {
		if _, err := d.scheduler.SchedulePeriodicRebuild(interval, func() { d.trigger("scheduled") }); err != nil {
			return err
		}
		d.scheduler.Start()
	}

	if d.cfg.Daemon.Watch && d.cfg.Input.Path != "" && d.cfg.Input.Repo == "" {
		watcher, err := NewInputWatcher(d.cfg.Input.Path, func() { d.trigger("watch") })
		if err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			return err
		}
		d.watcher = watcher
	}

	// Initial build so the daemon never sits idle with stale output.
	d.trigger("startup")

	<-ctx.Done()
	return d.shutdown()
}

// trigger enqueues one rebuild job. A full queue drops the trigger; the next
// change or tick will enqueue again.
func (d *Daemon) trigger(reason string) {
	job := &queue.Job{
		ID:      fmt.Sprintf("%s-%d", reason, time.Now().UnixNano()),
		Trigger: reason,
	}
	if err := d.queue.Enqueue(job); err != nil {
		slog.Warn("Rebuild trigger dropped", "reason", reason, "error", err)
	}
}

// jobConfig derives a config whose checkpoint directory (and therefore clone
// workspace) is private to one job. Concurrent rebuilds of the same input must
// not interleave per-stage checkpoints or rip out a checkout another run is
// reading; the output directory stays shared and the generator commits the
// artifact atomically.
func (d *Daemon) jobConfig(jobID string) *config.Config {
	cfg := *d.cfg
	cfg.Pipeline.CheckpointDir = filepath.Join(d.cfg.Pipeline.CheckpointDir, "jobs", jobID, "checkpoints")
	return &cfg
}

// runJob executes one full pipeline run for a queued job.
func (d *Daemon) runJob(ctx context.Context, job *queue.Job) *models.PipelineResult {
	cfg := d.jobConfig(job.ID)

	set, err := stages.NewSet(cfg)
	if err != nil {
		slog.Error("Failed to wire stages", "job_id", job.ID, "error", err)
		return &models.PipelineResult{RunID: job.ID, Success: false, Errors: []string{err.Error()}}
	}

	opts := []pipeline.Option{
		pipeline.WithRunID(job.ID),
		pipeline.WithRecorder(d.recorder),
	}
	if d.events != nil {
		opts = append(opts, pipeline.WithBus(pipeline.NewBusWithEventStore(d.events)))
	}

	p, err := pipeline.New(cfg, set.Registry(), opts...)
	if err != nil {
		slog.Error("Failed to build pipeline", "job_id", job.ID, "error", err)
		return &models.PipelineResult{RunID: job.ID, Success: false, Errors: []string{err.Error()}}
	}

	result := p.Run(ctx)
	if result.Success {
		// Job checkpoints exist only for crash postmortems; a clean run's
		// working area would otherwise accumulate forever.
		jobDir := filepath.Join(d.cfg.Pipeline.CheckpointDir, "jobs", job.ID)
		if err := os.RemoveAll(jobDir); err != nil {
			slog.Warn("Failed to clean job working area", "job_id", job.ID, "error", err)
		}
	}
	d.notifier.Publish(job.ID, result)
	return result
}

func (d *Daemon) startMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", d.recorder.Handler())
	d.metricsrv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("Metrics server listening", "addr", addr)
		if err := d.metricsrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Metrics server failed", "error", err)
		}
	}()
}

func (d *Daemon) shutdown() error {
	slog.Info("Daemon shutting down")

	if d.watcher != nil {
		d.watcher.Stop()
	}
	if err := d.scheduler.Stop(); err != nil {
		slog.Warn("Scheduler shutdown failed", "error", err)
	}
	d.queue.Stop()

	if d.metricsrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.metricsrv.Shutdown(ctx); err != nil {
			slog.Warn("Metrics server shutdown failed", "error", err)
		}
	}

	d.notifier.Close()
	if d.events != nil {
		if err := d.events.Close(); err != nil {
			slog.Warn("Event store close failed", "error", err)
		}
	}
	return nil
}
