package foreman

import "context"

// Context is the execution context for Foreman handlers.
// It is a simple alias for context.Context. Run identity is injected via
// the middleware scope on the stdlib context; see middleware.Scope.
type Context = context.Context
