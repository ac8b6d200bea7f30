package store

import (
	"context"

	"github.com/xraph/foreman/bus"
	"github.com/xraph/foreman/cluster"
	"github.com/xraph/foreman/cron"
	"github.com/xraph/foreman/dlq"
	"github.com/xraph/foreman/event"
	"github.com/xraph/foreman/worker"
	"github.com/xraph/foreman/workflow"
)

// Store is the aggregate persistence interface.
// Each subsystem store is a composable interface; a single backend
// (memory, redis) implements all of them.
type Store interface {
	workflow.Store
	worker.Store
	bus.Store
	event.Store
	cron.Store
	dlq.Store
	cluster.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
