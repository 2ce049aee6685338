package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/docgen/internal/config"
	"git.home.luguber.info/inful/docgen/internal/daemon"
	"git.home.luguber.info/inful/docgen/internal/errors"
	"git.home.luguber.info/inful/docgen/internal/models"
	"git.home.luguber.info/inful/docgen/internal/pipeline"
	"git.home.luguber.info/inful/docgen/internal/stages"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"docgen.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Generate struct {
		Input    string `short:"i" help:"Input file path (overrides configuration)"`
		Output   string `short:"o" help:"Output directory (overrides configuration)"`
		Template string `short:"t" help:"Template id override"`
		Strict   bool   `help:"Fail the run on validation findings"`
		Warm     bool   `help:"Reuse checkpoints from a previous run"`
	} `cmd:"" help:"Run the generation pipeline over the configured input"`

	Resume struct {
		From string `required:"" help:"Stage whose checkpoint to resume after"`
	} `cmd:"" help:"Resume a halted run from its last checkpoint"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Write a sample configuration file"`

	Daemon struct {
	} `cmd:"" help:"Run continuously, rebuilding on changes and on schedule"`
}

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	adapter := errors.NewCLIErrorAdapter(CLI.Verbose, logger)

	switch ctx.Command() {
	case "generate":
		cfg, err := loadConfig()
		if err != nil {
			adapter.HandleError(err)
		}
		applyGenerateOverrides(cfg)
		result := runPipeline(cfg, "")
		exitForResult(result)
	case "resume":
		cfg, err := loadConfig()
		if err != nil {
			adapter.HandleError(err)
		}
		result := runPipeline(cfg, models.StageName(CLI.Resume.From))
		if result == nil {
			os.Exit(11)
		}
		exitForResult(result)
	case "init":
		if err := runInit(CLI.Config, CLI.Init.Force); err != nil {
			adapter.HandleError(err)
		}
		fmt.Printf("Wrote %s\n", CLI.Config)
	case "daemon":
		cfg, err := loadConfig()
		if err != nil {
			adapter.HandleError(err)
		}
		if err := runDaemon(cfg); err != nil {
			adapter.HandleError(err)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", ctx.Command())
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyGenerateOverrides(cfg *config.Config) {
	if CLI.Generate.Input != "" {
		cfg.Input.Path = CLI.Generate.Input
		cfg.Input.Repo = ""
	}
	if CLI.Generate.Output != "" {
		cfg.Output.Directory = CLI.Generate.Output
	}
	if CLI.Generate.Template != "" {
		cfg.Pipeline.Template = CLI.Generate.Template
	}
	if CLI.Generate.Strict {
		cfg.Pipeline.Strict = true
	}
	if CLI.Generate.Warm {
		cfg.Pipeline.WarmStart = true
	}
}

// runPipeline executes one run, or resumes after the given stage when set.
// It returns nil only when resume could not load its checkpoint.
func runPipeline(cfg *config.Config, resumeAfter models.StageName) *models.PipelineResult {
	set, err := stages.NewSet(cfg)
	if err != nil {
		slog.Error("Failed to wire pipeline stages", "error", err)
		return &models.PipelineResult{Success: false, Errors: []string{err.Error()}}
	}
	p, err := pipeline.New(cfg, set.Registry())
	if err != nil {
		slog.Error("Failed to build pipeline", "error", err)
		return &models.PipelineResult{Success: false, Errors: []string{err.Error()}}
	}

	if resumeAfter != "" {
		result, err := p.Resume(context.Background(), resumeAfter)
		if err != nil {
			slog.Error("Resume failed", "stage", string(resumeAfter), "error", err)
			return nil
		}
		return result
	}
	return p.Run(context.Background())
}

func exitForResult(result *models.PipelineResult) {
	if result.Success {
		return
	}
	for _, pe := range result.PipelineErrors {
		fmt.Fprintf(os.Stderr, "error: %s\n", pe.Error())
		for _, s := range pe.Suggestions {
			fmt.Fprintf(os.Stderr, "  hint: %s\n", s)
		}
	}
	os.Exit(11)
}

func runInit(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return errors.ConfigError(fmt.Sprintf("%s already exists (use --force to overwrite)", path))
	}
	return os.WriteFile(path, []byte(config.Sample()), 0644)
}

func runDaemon(cfg *config.Config) error {
	d, err := daemon.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return d.Run(ctx)
}
