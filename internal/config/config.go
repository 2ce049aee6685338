// Package config loads and validates the docgen run configuration.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/docgen/internal/errors"
)

// RetryBackoffMode selects the backoff growth curve for stage retries.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

// Config represents the application configuration. It is immutable once
// validated; the pipeline never mutates it.
type Config struct {
	Input    InputConfig    `yaml:"input"`
	Output   OutputConfig   `yaml:"output"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Retry    RetryConfig    `yaml:"retry"`
	Storage  StorageConfig  `yaml:"storage"`
	Events   EventsConfig   `yaml:"events"`
	Daemon   DaemonConfig   `yaml:"daemon"`
}

// InputConfig locates the content to generate from. Path is required unless
// Repo is set, in which case the repository is fetched first and Path is
// resolved inside the checkout.
type InputConfig struct {
	Path string `yaml:"path"`
	Repo string `yaml:"repo,omitempty"`
	Ref  string `yaml:"ref,omitempty"`
}

// OutputConfig controls where artifacts are written.
type OutputConfig struct {
	Directory string `yaml:"directory"`
	Clean     bool   `yaml:"clean"`
}

// PipelineConfig holds orchestrator run parameters.
type PipelineConfig struct {
	MaxAttempts   int    `yaml:"max_attempts"`
	Strict        bool   `yaml:"strict"`
	Template      string `yaml:"template,omitempty"`
	ResumeFrom    string `yaml:"resume_from,omitempty"`
	WarmStart     bool   `yaml:"warm_start"`
	CheckpointDir string `yaml:"checkpoint_dir"`
}

// RetryConfig tunes backoff between retry attempts. Durations are expressed in
// Go duration syntax ("1s", "500ms"). An empty or zero Max means the delay
// grows without ceiling.
type RetryConfig struct {
	Backoff RetryBackoffMode `yaml:"backoff,omitempty"`
	Initial string           `yaml:"initial,omitempty"`
	Max     string           `yaml:"max,omitempty"`
}

// InitialDelay returns the parsed initial delay; Validate guarantees it parses.
func (r RetryConfig) InitialDelay() time.Duration {
	d, err := time.ParseDuration(r.Initial)
	if err != nil {
		return time.Second
	}
	return d
}

// MaxDelay returns the parsed delay ceiling, or 0 when uncapped.
func (r RetryConfig) MaxDelay() time.Duration {
	if r.Max == "" {
		return 0
	}
	d, err := time.ParseDuration(r.Max)
	if err != nil {
		return 0
	}
	return d
}

// StorageConfig locates the content-addressable artifact store.
type StorageConfig struct {
	Directory string `yaml:"directory"`
}

// EventsConfig locates the run event log. Empty Path disables event persistence.
type EventsConfig struct {
	Path string `yaml:"path,omitempty"`
}

// DaemonConfig controls continuous-generation mode.
type DaemonConfig struct {
	Watch       bool   `yaml:"watch"`
	Interval    string `yaml:"interval,omitempty"`
	Workers     int    `yaml:"workers,omitempty"`
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
	NATSURL     string `yaml:"nats_url,omitempty"`
	NATSSubject string `yaml:"nats_subject,omitempty"`
}

// RebuildInterval returns the parsed scheduler interval; zero or empty
// disables scheduled rebuilds.
func (d DaemonConfig) RebuildInterval() time.Duration {
	if d.Interval == "" {
		return 0
	}
	dur, err := time.ParseDuration(d.Interval)
	if err != nil || dur < 0 {
		return 0
	}
	return dur
}

// Default returns a configuration with sensible defaults applied.
func Default() *Config {
	return &Config{
		Input:  InputConfig{Ref: "main"},
		Output: OutputConfig{Directory: "./site"},
		Pipeline: PipelineConfig{
			MaxAttempts:   3,
			CheckpointDir: ".docgen/checkpoints",
		},
		Retry: RetryConfig{
			Backoff: RetryBackoffExponential,
			Initial: "1s",
		},
		Storage: StorageConfig{Directory: ".docgen/objects"},
		Events:  EventsConfig{Path: ".docgen/events.db"},
		Daemon: DaemonConfig{
			Watch:       true,
			Interval:    "15m",
			Workers:     2,
			NATSSubject: "docgen.runs",
		},
	}
}

// Load loads configuration from the specified file.
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	if err := loadEnvFile(); err != nil {
		fmt.Fprintf(os.Stderr, "Note: .env file not found or couldn't be loaded: %v\n", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, errors.ConfigError(fmt.Sprintf("configuration file not found: %s", configPath))
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryConfig, errors.SeverityFatal, "failed to read config file")
	}

	// Expand environment variables in the YAML content
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, errors.Wrap(err, errors.CategoryConfig, errors.SeverityFatal, "failed to parse config file")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks invariants. Invalid configuration is rejected before any
// stage executes.
func (c *Config) Validate() error {
	if c.Input.Path == "" && c.Input.Repo == "" {
		return errors.ConfigError("input.path or input.repo is required")
	}
	if c.Output.Directory == "" {
		return errors.ConfigError("output.directory is required")
	}
	if c.Pipeline.MaxAttempts < 1 {
		return errors.ConfigError(fmt.Sprintf("pipeline.max_attempts must be >= 1, got %d", c.Pipeline.MaxAttempts))
	}
	if c.Pipeline.CheckpointDir == "" {
		return errors.ConfigError("pipeline.checkpoint_dir is required")
	}
	switch c.Retry.Backoff {
	case "", RetryBackoffFixed, RetryBackoffLinear, RetryBackoffExponential:
	default:
		return errors.ConfigError(fmt.Sprintf("retry.backoff must be fixed, linear or exponential, got %q", c.Retry.Backoff))
	}
	if c.Retry.Initial != "" {
		initial, err := time.ParseDuration(c.Retry.Initial)
		if err != nil {
			return errors.ConfigError(fmt.Sprintf("invalid retry.initial: %s", c.Retry.Initial))
		}
		if initial <= 0 {
			return errors.ConfigError("retry.initial must be positive")
		}
	}
	if c.Retry.Max != "" {
		if _, err := time.ParseDuration(c.Retry.Max); err != nil {
			return errors.ConfigError(fmt.Sprintf("invalid retry.max: %s", c.Retry.Max))
		}
	}
	if c.Daemon.Interval != "" {
		if _, err := time.ParseDuration(c.Daemon.Interval); err != nil {
			return errors.ConfigError(fmt.Sprintf("invalid daemon.interval: %s", c.Daemon.Interval))
		}
	}
	if c.Daemon.Workers < 0 {
		return errors.ConfigError("daemon.workers must not be negative")
	}
	return nil
}

// Hash returns a deterministic digest of the effective configuration, recorded
// in the run manifest so an artifact can be traced back to the exact settings
// that produced it. YAML marshalling emits struct fields in declaration order,
// which keeps the digest stable across runs.
func (c *Config) Hash() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func loadEnvFile() error {
	if _, err := os.Stat(".env"); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load()
}

// Sample returns a commented example configuration for the init command.
func Sample() string {
	return `# docgen configuration
input:
  path: ./content/index.md
  # repo: https://example.com/org/content.git   # optional: fetch input from git
  # ref: main

output:
  directory: ./site
  clean: false

pipeline:
  max_attempts: 3            # retry budget per stage (>= 1)
  strict: false              # strict mode makes validation failures fatal
  # template: standard       # override template selection
  checkpoint_dir: .docgen/checkpoints
  warm_start: false          # reuse checkpoints from prior runs when present

retry:
  backoff: exponential       # fixed | linear | exponential
  initial: 1s
  # max: 0s                  # 0 = no ceiling

storage:
  directory: .docgen/objects

events:
  path: .docgen/events.db    # empty disables the run event log

daemon:
  watch: true
  interval: 15m
  workers: 2
  metrics_addr: ":9090"
  # nats_url: nats://127.0.0.1:4222
  nats_subject: docgen.runs
`
}
