package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xraph/foreman"
	"github.com/xraph/foreman/config"
	"github.com/xraph/foreman/event"
)

const projectYAML = `store:
  backend: redis
  redis:
    addr: localhost:6380
    db: 2

engine:
  concurrency: 8
  worker_timeout: 90s
  default_max_iterations: 5

workers:
  - id: go-linter
    description: Lints Go sources.
    capabilities: [lint]
    command: [golangci-lint-worker]
    timeout: 45s
    triggers:
      - kinds: [file_changed]
        path: "**/*.go"
    inputs:
      - target
      - name: depth
        default: 2
    outputs: [findings]
  - id: fixer
    capabilities: [refactor]
    command: [fixer, --apply]

workflow_dirs: [workflows]

workflows:
  - name: quick-check
    phases:
      - name: lint
        workers: [go-linter]
      - name: fix
        workers: [fixer]

schedules:
  - name: nightly
    schedule: "0 2 * * *"
    workflow: quick-check
    args:
      target: ./...

limits:
  - capability: lint
    max_concurrency: 2
    rate_limit: 1.5

watch:
  roots: [src]
  globs: ["**/*.go"]
  exclude: [vendor]
  debounce: 250ms

audit:
  file: foreman-audit.jsonl
`

func writeProject(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeProject(t, t.TempDir(), "foreman.yaml", projectYAML)

	p, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if p.Store.Backend != config.BackendRedis {
		t.Errorf("Store.Backend = %q", p.Store.Backend)
	}
	if p.Store.Redis.Addr != "localhost:6380" || p.Store.Redis.DB != 2 {
		t.Errorf("Store.Redis = %+v", p.Store.Redis)
	}

	if len(p.Workers) != 2 {
		t.Fatalf("workers = %d, want 2", len(p.Workers))
	}
	linter := p.Workers[0]
	if linter.ID != "go-linter" || linter.Timeout != 45*time.Second {
		t.Errorf("linter = %+v", linter)
	}
	if len(linter.Triggers) != 1 || linter.Triggers[0].PathGlob != "**/*.go" {
		t.Errorf("linter.Triggers = %+v", linter.Triggers)
	}
	if got := linter.Triggers[0].Kinds; len(got) != 1 || got[0] != event.KindFileChanged {
		t.Errorf("trigger kinds = %v", got)
	}
	if len(linter.Inputs) != 2 || linter.Inputs[0].Name != "target" {
		t.Fatalf("linter.Inputs = %+v", linter.Inputs)
	}
	if string(linter.Inputs[1].Default) != "2" {
		t.Errorf("depth default = %s", linter.Inputs[1].Default)
	}

	if len(p.Schedules) != 1 || p.Schedules[0].Workflow != "quick-check" {
		t.Errorf("Schedules = %+v", p.Schedules)
	}
	if len(p.Limits) != 1 {
		t.Fatalf("Limits = %+v", p.Limits)
	}
	lane := p.Limits[0].Config()
	if lane.Capability != "lint" || lane.MaxConcurrency != 2 || lane.RateLimit != 1.5 {
		t.Errorf("lane = %+v", lane)
	}

	if p.Watch.Debounce != 250*time.Millisecond {
		t.Errorf("Watch.Debounce = %v", p.Watch.Debounce)
	}
	if p.Audit.File != "foreman-audit.jsonl" {
		t.Errorf("Audit.File = %q", p.Audit.File)
	}
	if p.Dir() == "" {
		t.Error("Dir: empty after Load")
	}
}

func TestEngineConfigApply(t *testing.T) {
	e := config.EngineConfig{
		Concurrency:          8,
		WorkerTimeout:        90 * time.Second,
		DefaultMaxIterations: 5,
	}

	cfg := e.Apply(foreman.DefaultConfig())
	if cfg.Concurrency != 8 {
		t.Errorf("Concurrency = %d, want 8", cfg.Concurrency)
	}
	if cfg.WorkerTimeout != 90*time.Second {
		t.Errorf("WorkerTimeout = %v", cfg.WorkerTimeout)
	}
	if cfg.DefaultMaxIterations != 5 {
		t.Errorf("DefaultMaxIterations = %d", cfg.DefaultMaxIterations)
	}

	// Unset fields keep the defaults.
	def := foreman.DefaultConfig()
	if cfg.PollInterval != def.PollInterval || cfg.MaxTriggerDepth != def.MaxTriggerDepth {
		t.Errorf("defaults not kept: %+v", cfg)
	}
}

func TestDecodeEmpty(t *testing.T) {
	p, err := config.Decode(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if p.Store.Backend != "" || len(p.Workers) != 0 {
		t.Errorf("empty project = %+v", p)
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	path := writeProject(t, t.TempDir(), "foreman.yaml", "storee:\n  backend: memory\n")

	if _, err := config.Load(path); err == nil {
		t.Error("Load: expected unknown-field error")
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad backend", "store:\n  backend: dynamo\n", "unknown backend"},
		{"worker without command", "workers:\n  - id: w\n", "missing command"},
		{"duplicate worker", "workers:\n  - id: w\n    command: [a]\n  - id: w\n    command: [b]\n", "duplicate worker"},
		{"schedule without name", "schedules:\n  - schedule: \"@hourly\"\n    worker: w\n", "name required"},
		{"schedule without target", "schedules:\n  - name: s\n    schedule: \"@hourly\"\n", "exactly one"},
		{"schedule with both targets", "schedules:\n  - name: s\n    schedule: \"@hourly\"\n    worker: w\n    workflow: f\n", "exactly one"},
		{"bad cron expression", "schedules:\n  - name: s\n    schedule: never\n    worker: w\n", `schedule "s"`},
		{"limit without capability", "limits:\n  - max_concurrency: 2\n", "capability required"},
		{"duplicate limit", "limits:\n  - capability: lint\n  - capability: lint\n", "duplicate limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := config.Decode(strings.NewReader(tt.yaml))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			err = p.Validate()
			if err == nil {
				t.Fatal("Validate: expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate = %q, want substring %q", err, tt.want)
			}
		})
	}
}

func TestDefinitions(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "workflows"), 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	writeProject(t, filepath.Join(dir, "workflows"), "audit.yaml",
		"phases:\n  - name: scan\n    workers: [scanner]\n  - name: fix\n    workers: [fixer]\n")
	path := writeProject(t, dir, "foreman.yaml", `workflow_dirs: [workflows]
workflows:
  - name: inline-check
    phases:
      - name: lint
        workers: [go-linter]
`)

	p, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	defs, err := p.Definitions(3)
	if err != nil {
		t.Fatalf("Definitions: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("defs = %d, want 2", len(defs))
	}
	if defs[0].Name != "audit" || defs[1].Name != "inline-check" {
		t.Errorf("order = [%s %s], want [audit inline-check]", defs[0].Name, defs[1].Name)
	}

	// Directory and inline definitions both come back normalized.
	if got := defs[0].Phases[1].DependsOn; len(got) != 1 || got[0] != "scan" {
		t.Errorf("fix.DependsOn = %v, want [scan]", got)
	}
	if defs[1].Phases[0].DependsOn == nil {
		t.Error("inline lint.DependsOn not normalized")
	}
}

func TestDefinitionsInvalidInline(t *testing.T) {
	p, err := config.Decode(strings.NewReader("workflows:\n  - name: broken\n    phases: []\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, err := p.Definitions(3); err == nil {
		t.Error("Definitions: expected validation error")
	}
}

func TestScheduleDefinition(t *testing.T) {
	s := config.Schedule{Name: "nightly", Schedule: "@daily", Worker: "scanner"}
	def := s.Definition()
	if def.Target.Worker() != "scanner" || def.Target.Workflow() != "" {
		t.Errorf("worker target = %+v", def.Target)
	}

	s = config.Schedule{Name: "weekly", Schedule: "@weekly", Workflow: "review"}
	def = s.Definition()
	if def.Target.Workflow() != "review" || def.Target.Worker() != "" {
		t.Errorf("workflow target = %+v", def.Target)
	}
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	if _, err := config.Find(dir); !errors.Is(err, config.ErrNoProject) {
		t.Errorf("Find on empty dir = %v, want ErrNoProject", err)
	}

	writeProject(t, dir, "foreman.yml", "")
	writeProject(t, dir, "foreman.yaml", "")

	path, err := config.Find(dir)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if filepath.Base(path) != "foreman.yaml" {
		t.Errorf("Find = %q, want foreman.yaml first", path)
	}
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	path := writeProject(t, dir, "foreman.yaml", "audit:\n  file: logs/audit.jsonl\n")

	p, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := p.Resolve(p.Audit.File); got != filepath.Join(p.Dir(), "logs/audit.jsonl") {
		t.Errorf("Resolve = %q", got)
	}
	abs := filepath.Join(dir, "elsewhere.jsonl")
	if got := p.Resolve(abs); got != abs {
		t.Errorf("Resolve(abs) = %q", got)
	}
	if got := p.Resolve(""); got != "" {
		t.Errorf("Resolve(empty) = %q", got)
	}
}
