package foreman

import (
	"context"
	"log/slog"
	"time"
)

// Option configures a Foreman coordinator.
type Option func(*Foreman) error

// Storer is the minimal store interface held by the coordinator.
// It covers lifecycle operations only. The full composite interface
// (store.Store) is used in subsystem layers that don't create import
// cycles. Implementations satisfy store.Store which embeds all
// subsystem stores.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// reactorRunner is an internal interface for the trigger reactor lifecycle.
type reactorRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// extensionEmitter is an internal interface for extension lifecycle events.
type extensionEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Foreman is the central coordinator for worker registration, workflow
// runs, trigger evaluation, and scheduled events.
//
// Create one with New() and functional options. The coordinator holds
// references to subsystem components via internal interfaces to avoid
// import cycles. Use the engine package to wire everything together.
type Foreman struct {
	config     Config
	logger     *slog.Logger
	store      Storer
	extensions extensionEmitter
	reactor    reactorRunner

	// started tracks whether Start has been called.
	started bool
}

// New creates a new Foreman coordinator with the given options.
func New(opts ...Option) (*Foreman, error) {
	f := &Foreman{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Logger returns the coordinator's logger.
func (f *Foreman) Logger() *slog.Logger { return f.logger }

// Store returns the coordinator's store.
func (f *Foreman) Store() Storer { return f.store }

// Config returns a copy of the coordinator's configuration.
func (f *Foreman) Config() Config { return f.config }

// SetReactor sets the trigger reactor (called by the engine package).
func (f *Foreman) SetReactor(r reactorRunner) { f.reactor = r }

// SetExtensions sets the extension emitter (called by the engine package).
func (f *Foreman) SetExtensions(e extensionEmitter) { f.extensions = e }

// Start begins event consumption and trigger-driven run execution.
func (f *Foreman) Start(ctx context.Context) error {
	if f.reactor == nil {
		return ErrNoStore
	}
	if err := f.reactor.Start(ctx); err != nil {
		return err
	}
	f.started = true
	return nil
}

// Stop gracefully shuts down the coordinator.
func (f *Foreman) Stop(ctx context.Context) error {
	if f.reactor != nil && f.started {
		if err := f.reactor.Stop(ctx); err != nil {
			f.logger.Error("reactor stop error", "error", err)
		}
	}
	if f.extensions != nil {
		f.extensions.EmitShutdown(ctx)
	}
	if f.store != nil {
		return f.store.Close()
	}
	return nil
}

// WithConfig replaces the whole configuration. Apply it before options
// that set individual fields.
func WithConfig(cfg Config) Option {
	return func(f *Foreman) error {
		f.config = cfg
		return nil
	}
}

// WithConcurrency sets the maximum number of concurrently executed
// triggered runs.
func WithConcurrency(n int) Option {
	return func(f *Foreman) error {
		f.config.Concurrency = n
		return nil
	}
}

// WithLogger sets the structured logger for the coordinator.
func WithLogger(l *slog.Logger) Option {
	return func(f *Foreman) error {
		f.logger = l
		return nil
	}
}

// WithStore sets the persistence backend for the coordinator.
// The store must implement Storer at minimum; typically it will be a
// store.Store which embeds all subsystem store interfaces.
func WithStore(s Storer) Option {
	return func(f *Foreman) error {
		f.store = s
		return nil
	}
}

// WithWorkerTimeout sets the default per-invocation deadline applied to
// workers that declare none.
func WithWorkerTimeout(d time.Duration) Option {
	return func(f *Foreman) error {
		f.config.WorkerTimeout = d
		return nil
	}
}

// WithMaxTriggerDepth bounds WorkerCompleted trigger cascades.
func WithMaxTriggerDepth(n int) Option {
	return func(f *Foreman) error {
		f.config.MaxTriggerDepth = n
		return nil
	}
}
