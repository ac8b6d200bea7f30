// Package middleware provides composable middleware for worker invocation.
//
// Middleware wraps the invoker so cross-cutting concerns — panic recovery,
// structured logging, tracing, metrics, scope restoration, timeouts — run
// around every worker without the invoker knowing about them.
//
// The engine installs a default chain; additional middleware can be added
// with engine options:
//
//	eng, err := engine.Build(f,
//		engine.WithMiddleware(middleware.Logging(logger)),
//	)
//
// Middleware executes in registration order: the first middleware is the
// outermost wrapper.
package middleware
