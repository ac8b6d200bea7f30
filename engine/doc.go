// Package engine wires all Foreman subsystems together and provides
// the primary application-level API for registering capability workers
// and executing workflow runs.
//
// The engine package exists to break a fundamental import cycle: the
// root foreman package defines Entity (imported by workflow, worker,
// cron, etc.) and therefore cannot import those packages back. Engine
// sits above all subsystem packages and below the application layer.
//
// # Building an Engine
//
//	f, err := foreman.New(
//	    foreman.WithStore(memory.New()),
//	    foreman.WithConcurrency(4),
//	)
//
//	eng, err := engine.Build(f,
//	    engine.WithApprover(orchestrator.AutoApprove()),
//	    engine.WithLimits(limit.Config{Capability: "code-review", MaxConcurrency: 2}),
//	    engine.WithWatch([]string{"."}, watch.WithGlobs("**/*.go")),
//	)
//
// # Registering Work
//
//	// Capability workers
//	eng.RegisterWorker(desc, invoker)
//
//	// Workflow definitions
//	eng.RegisterWorkflow(def)
//
//	// Schedules
//	engine.RegisterSchedule(ctx, eng, &cron.Definition[ReportArgs]{
//	    Name:     "nightly-review",
//	    Schedule: "0 2 * * *",
//	    Target:   cron.TargetWorkflow("review"),
//	})
//
// # Running
//
//	run, err := eng.StartRun(ctx, "review", orchestrator.StartOptions{})
//	result, err := eng.Report(ctx, run.ID)
//	os.Exit(result.ExitCode())
//
// Start begins trigger-driven execution: scheduled events fire, watched
// files publish FileChanged events, and the reactor launches runs for
// matching triggers. StartRun works without Start for direct,
// foreground runs.
//
// # Options
//
//   - [WithExtension] registers a lifecycle extension
//   - [WithMiddleware] appends to the invocation middleware chain
//   - [WithApprover] sets the approval gate for interactive runs
//   - [WithLimits] configures per-capability concurrency lanes
//   - [WithWatch] enables the filesystem watcher
//   - [WithAuditRecorder] enables the audit trail
//   - [WithTracerProvider] sets the OpenTelemetry tracer provider
//   - [WithMeterProvider] sets the OpenTelemetry meter provider
package engine
