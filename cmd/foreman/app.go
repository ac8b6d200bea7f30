package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/foreman"
	"github.com/xraph/foreman/audit"
	"github.com/xraph/foreman/config"
	"github.com/xraph/foreman/engine"
	"github.com/xraph/foreman/limit"
	"github.com/xraph/foreman/store"
	"github.com/xraph/foreman/store/memory"
	redisstore "github.com/xraph/foreman/store/redis"
	"github.com/xraph/foreman/worker"
)

// rootFlags are the persistent flags shared by every command.
type rootFlags struct {
	configPath string
	logLevel   string
}

// app is one command invocation's wired engine: project file loaded,
// store opened, workers, workflows and schedules registered.
type app struct {
	project *config.Project
	eng     *engine.Engine
	logger  *slog.Logger

	auditFile *audit.FileRecorder
}

// newApp loads the project and builds the engine. Commands that derive
// engine options from the project itself (watch) load the project first
// and call buildApp directly.
func newApp(flags *rootFlags, opts ...engine.Option) (*app, error) {
	project, err := loadProject(flags.configPath)
	if err != nil {
		return nil, err
	}
	return buildApp(flags, project, opts...)
}

func buildApp(flags *rootFlags, project *config.Project, opts ...engine.Option) (*app, error) {
	logger := newLogger(flags.logLevel)

	st, err := openStore(project.Store)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := st.Ping(ctx); err != nil {
		return nil, fmt.Errorf("store unreachable: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	cfg := project.Engine.Apply(foreman.DefaultConfig())
	f, err := foreman.New(
		foreman.WithConfig(cfg),
		foreman.WithStore(st),
		foreman.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	a := &app{project: project, logger: logger}

	engOpts := make([]engine.Option, 0, len(opts)+2)
	if len(project.Limits) > 0 {
		lanes := make([]limit.Config, len(project.Limits))
		for i, l := range project.Limits {
			lanes[i] = l.Config()
		}
		engOpts = append(engOpts, engine.WithLimits(lanes...))
	}
	if project.Audit.File != "" {
		rec, err := audit.NewFileRecorder(project.Resolve(project.Audit.File))
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		a.auditFile = rec
		engOpts = append(engOpts, engine.WithAuditRecorder(rec))
	}
	engOpts = append(engOpts, opts...)

	eng, err := engine.Build(f, engOpts...)
	if err != nil {
		return nil, err
	}
	a.eng = eng

	if err := a.register(ctx, cfg.DefaultMaxIterations); err != nil {
		return nil, err
	}
	return a, nil
}

// register materializes the project's workers, workflows and schedules
// on the engine. Project workers run as subprocesses from the project
// directory.
func (a *app) register(ctx context.Context, defaultMaxIterations int) error {
	for i := range a.project.Workers {
		desc := &a.project.Workers[i]
		invoker := &worker.ExecInvoker{Command: desc.Command, Dir: a.project.Dir()}
		if err := a.eng.RegisterWorker(desc, invoker); err != nil {
			return err
		}
	}

	defs, err := a.project.Definitions(defaultMaxIterations)
	if err != nil {
		return err
	}
	for _, def := range defs {
		if err := a.eng.RegisterWorkflow(def); err != nil {
			return err
		}
	}

	for _, s := range a.project.Schedules {
		if err := engine.RegisterSchedule(ctx, a.eng, s.Definition()); err != nil {
			return fmt.Errorf("register schedule %q: %w", s.Name, err)
		}
	}
	return nil
}

// close shuts the engine down and releases the audit log.
func (a *app) close(ctx context.Context) {
	if err := a.eng.Stop(ctx); err != nil {
		a.logger.Error("shutdown error", "error", err)
	}
	if a.auditFile != nil {
		if err := a.auditFile.Close(); err != nil {
			a.logger.Warn("close audit log", "error", err)
		}
	}
}

// loadProject loads the explicit path, or probes the working directory.
// A missing project file is not an error; the CLI runs with defaults.
func loadProject(path string) (*config.Project, error) {
	if path != "" {
		return config.Load(path)
	}
	found, err := config.Find(".")
	if errors.Is(err, config.ErrNoProject) {
		return &config.Project{}, nil
	}
	if err != nil {
		return nil, err
	}
	return config.Load(found)
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "", config.BackendMemory:
		return memory.New(), nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return redisstore.New(client), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func newLogger(level string) *slog.Logger {
	lvl := slog.LevelWarn
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
