// Package config loads foreman project files.
//
// A project file is the single YAML manifest the CLI consumes: it selects
// the store backend, tunes engine settings, declares exec-invoked workers,
// points at workflow definition directories, and registers schedules,
// capability limits, filesystem watch roots and the audit trail. Workers
// and inline workflows reuse the worker.Descriptor and workflow.Definition
// YAML shapes, so a descriptor is written the same way in a project file
// and anywhere else.
//
// The format is strict: unknown fields are decode errors.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/xraph/foreman"
	"github.com/xraph/foreman/cron"
	"github.com/xraph/foreman/limit"
	"github.com/xraph/foreman/watch"
	"github.com/xraph/foreman/worker"
	"github.com/xraph/foreman/workflow"
)

// Store backends selectable in a project file.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Project is the root document of a foreman project file.
type Project struct {
	// Store selects and configures the persistence backend. The zero
	// value is the in-memory store.
	Store StoreConfig `yaml:"store,omitempty"`

	// Engine overrides coordinator settings. Zero fields keep the
	// defaults from foreman.DefaultConfig.
	Engine EngineConfig `yaml:"engine,omitempty"`

	// Workers declares the project's capability workers. Project-file
	// workers run as subprocesses, so every descriptor needs a command.
	Workers []worker.Descriptor `yaml:"workers,omitempty"`

	// WorkflowDirs lists directories scanned for *.yaml workflow
	// definitions, resolved against the project file's directory.
	WorkflowDirs []string `yaml:"workflow_dirs,omitempty"`

	// Workflows holds inline workflow definitions.
	Workflows []workflow.Definition `yaml:"workflows,omitempty"`

	// Schedules declares cron entries firing workers or workflows.
	Schedules []Schedule `yaml:"schedules,omitempty"`

	// Limits declares per-capability concurrency and rate lanes.
	Limits []Limit `yaml:"limits,omitempty"`

	// Watch configures the filesystem event source used by watch mode.
	Watch WatchConfig `yaml:"watch,omitempty"`

	// Audit configures the audit trail recorder.
	Audit AuditConfig `yaml:"audit,omitempty"`

	// dir is the directory of the loaded file, for resolving relative
	// paths. Empty for projects decoded from a reader.
	dir string
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Backend is "memory" or "redis". Empty means memory.
	Backend string `yaml:"backend,omitempty"`

	// Redis configures the redis backend. Ignored for memory.
	Redis RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig holds redis connection settings.
type RedisConfig struct {
	// Addr is the host:port of the redis server. Empty dials
	// localhost:6379.
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// EngineConfig mirrors the tunable fields of foreman.Config in YAML.
// Durations are written as strings ("90s", "5m").
type EngineConfig struct {
	Concurrency            int           `yaml:"concurrency,omitempty"`
	PollInterval           time.Duration `yaml:"poll_interval,omitempty"`
	ShutdownTimeout        time.Duration `yaml:"shutdown_timeout,omitempty"`
	WorkerTimeout          time.Duration `yaml:"worker_timeout,omitempty"`
	MaxTriggerDepth        int           `yaml:"max_trigger_depth,omitempty"`
	DefaultMaxIterations   int           `yaml:"default_max_iterations,omitempty"`
	HeartbeatInterval      time.Duration `yaml:"heartbeat_interval,omitempty"`
	StaleInstanceThreshold time.Duration `yaml:"stale_instance_threshold,omitempty"`
}

// Apply overlays the set fields onto base and returns the result.
func (e EngineConfig) Apply(base foreman.Config) foreman.Config {
	if e.Concurrency > 0 {
		base.Concurrency = e.Concurrency
	}
	if e.PollInterval > 0 {
		base.PollInterval = e.PollInterval
	}
	if e.ShutdownTimeout > 0 {
		base.ShutdownTimeout = e.ShutdownTimeout
	}
	if e.WorkerTimeout > 0 {
		base.WorkerTimeout = e.WorkerTimeout
	}
	if e.MaxTriggerDepth > 0 {
		base.MaxTriggerDepth = e.MaxTriggerDepth
	}
	if e.DefaultMaxIterations > 0 {
		base.DefaultMaxIterations = e.DefaultMaxIterations
	}
	if e.HeartbeatInterval > 0 {
		base.HeartbeatInterval = e.HeartbeatInterval
	}
	if e.StaleInstanceThreshold > 0 {
		base.StaleInstanceThreshold = e.StaleInstanceThreshold
	}
	return base
}

// Schedule declares a cron entry in a project file. Exactly one of
// Worker or Workflow names the target.
type Schedule struct {
	Name string `yaml:"name"`

	// Schedule is a cron expression ("0 2 * * *") or descriptor
	// ("@hourly", "@every 30s").
	Schedule string `yaml:"schedule"`

	Worker   string `yaml:"worker,omitempty"`
	Workflow string `yaml:"workflow,omitempty"`

	// Args seeds the triggered run's input phase on every fire.
	Args map[string]any `yaml:"args,omitempty"`
}

// Definition converts the entry to the cron definition the engine
// registers.
func (s Schedule) Definition() *cron.Definition[map[string]any] {
	target := cron.TargetWorker(s.Worker)
	if s.Workflow != "" {
		target = cron.TargetWorkflow(s.Workflow)
	}
	return &cron.Definition[map[string]any]{
		Name:     s.Name,
		Schedule: s.Schedule,
		Target:   target,
		Args:     s.Args,
	}
}

// Limit declares a capability lane in a project file.
type Limit struct {
	Capability     string  `yaml:"capability"`
	MaxConcurrency int     `yaml:"max_concurrency,omitempty"`
	RateLimit      float64 `yaml:"rate_limit,omitempty"`
	RateBurst      int     `yaml:"rate_burst,omitempty"`
}

// Config converts the lane to its limit.Config equivalent.
func (l Limit) Config() limit.Config {
	return limit.Config{
		Capability:     l.Capability,
		MaxConcurrency: l.MaxConcurrency,
		RateLimit:      l.RateLimit,
		RateBurst:      l.RateBurst,
	}
}

// WatchConfig configures the filesystem event source.
type WatchConfig struct {
	// Roots lists the directories watched recursively, resolved against
	// the project file's directory.
	Roots []string `yaml:"roots,omitempty"`

	// Globs restricts emitted events to matching paths ("**/*.go").
	// Empty emits everything.
	Globs []string `yaml:"globs,omitempty"`

	// Exclude names directories skipped entirely (".git", "node_modules"
	// and friends are always skipped).
	Exclude []string `yaml:"exclude,omitempty"`

	// Debounce coalesces rapid changes to the same path.
	Debounce time.Duration `yaml:"debounce,omitempty"`
}

// Options converts the section to watch options. Roots are passed to
// watch.New separately.
func (w WatchConfig) Options() []watch.Option {
	var opts []watch.Option
	if len(w.Globs) > 0 {
		opts = append(opts, watch.WithGlobs(w.Globs...))
	}
	if len(w.Exclude) > 0 {
		opts = append(opts, watch.WithExcludes(w.Exclude...))
	}
	if w.Debounce > 0 {
		opts = append(opts, watch.WithDebounce(w.Debounce))
	}
	return opts
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	// File is the JSONL audit log path, resolved against the project
	// file's directory. Empty disables the audit recorder.
	File string `yaml:"file,omitempty"`
}

// Dir returns the directory of the loaded project file. Empty for
// projects decoded from a reader.
func (p *Project) Dir() string { return p.dir }

// Resolve resolves a project-relative path against the project file's
// directory. Absolute paths pass through; without a loaded file, paths
// resolve against the working directory.
func (p *Project) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || p.dir == "" {
		return path
	}
	return filepath.Join(p.dir, path)
}

// Validate checks the project for static errors. Workflow definitions
// are validated later, when Definitions materializes them.
func (p *Project) Validate() error {
	switch p.Store.Backend {
	case "", BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("store: unknown backend %q", p.Store.Backend)
	}

	workers := make(map[string]struct{}, len(p.Workers))
	for i := range p.Workers {
		w := &p.Workers[i]
		if err := w.Validate(); err != nil {
			return err
		}
		if len(w.Command) == 0 {
			return fmt.Errorf("worker %q: missing command", w.ID)
		}
		if _, dup := workers[w.ID]; dup {
			return fmt.Errorf("duplicate worker %q", w.ID)
		}
		workers[w.ID] = struct{}{}
	}

	schedules := make(map[string]struct{}, len(p.Schedules))
	for _, s := range p.Schedules {
		if s.Name == "" {
			return fmt.Errorf("schedule: name required")
		}
		if _, dup := schedules[s.Name]; dup {
			return fmt.Errorf("duplicate schedule %q", s.Name)
		}
		schedules[s.Name] = struct{}{}
		if (s.Worker == "") == (s.Workflow == "") {
			return fmt.Errorf("schedule %q: exactly one of worker or workflow required", s.Name)
		}
		if _, err := cron.ParseSchedule(s.Schedule); err != nil {
			return fmt.Errorf("schedule %q: %w", s.Name, err)
		}
	}

	lanes := make(map[string]struct{}, len(p.Limits))
	for _, l := range p.Limits {
		if l.Capability == "" {
			return fmt.Errorf("limit: capability required")
		}
		if _, dup := lanes[l.Capability]; dup {
			return fmt.Errorf("duplicate limit for capability %q", l.Capability)
		}
		lanes[l.Capability] = struct{}{}
		if l.MaxConcurrency < 0 {
			return fmt.Errorf("limit %q: max_concurrency must be >= 0", l.Capability)
		}
		if l.RateLimit < 0 {
			return fmt.Errorf("limit %q: rate_limit must be >= 0", l.Capability)
		}
	}

	return nil
}
