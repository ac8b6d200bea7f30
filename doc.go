// Package foreman provides a composable workflow orchestration engine for
// autonomous capability workers. It sequences registered workers into phased
// workflows, auto-triggers workers from observed events, and passes structured
// context between workers over an append-only context bus.
//
// Foreman is designed as a library, not a service. Import it, configure a
// store, register workers and workflow definitions, and start runs or let the
// trigger reactor start them from events.
//
// # Quick Start
//
//	f, err := foreman.New(
//	    foreman.WithStore(memStore),
//	    foreman.WithConcurrency(4),
//	)
//
// # Architecture
//
// Foreman follows a composable store pattern where each subsystem (workflow,
// bus, event, cron, dlq, cluster) defines its own store interface. A single
// backend implements all of them.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers. Workers and workflow definitions are named
// by humans and carry plain strings instead.
package foreman
