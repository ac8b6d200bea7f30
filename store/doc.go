// Package store defines the aggregate persistence interface.
//
// Each subsystem (workflow, worker, bus, event, cron, dlq, cluster)
// defines its own store interface. The composite [Store] composes them
// all. A single backend need only implement Store to satisfy every
// subsystem's persistence contract.
//
// The composite interface:
//
//	type Store interface {
//	    workflow.Store
//	    worker.Store
//	    bus.Store
//	    event.Store
//	    cron.Store
//	    dlq.Store
//	    cluster.Store
//
//	    Migrate(ctx context.Context) error
//	    Ping(ctx context.Context) error
//	    Close() error
//	}
//
// # Available Backends
//
//   - store/memory — in-memory store for development, testing, and
//     single-process runs
//   - store/redis — Redis backend for shared-store deployments
//
// # Usage
//
//	import (
//	    goredis "github.com/redis/go-redis/v9"
//
//	    redisstore "github.com/xraph/foreman/store/redis"
//	)
//
//	s := redisstore.New(goredis.NewClient(&goredis.Options{Addr: "localhost:6379"}))
//	defer s.Close()
//
//	f, err := foreman.New(foreman.WithStore(s))
//
// # Migrations
//
// Call Migrate once at startup; for the built-in backends it is a no-op
// kept for interface symmetry with SQL-backed implementations.
//
//	if err := s.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package store
