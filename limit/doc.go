// Package limit defines capability lanes with per-capability and
// per-worker rate limiting.
//
// Lanes are named after capability tags and group the workers that
// advertise them. The orchestrator consults the lane manager before
// dispatching a worker, so a capability shared by expensive workers can
// be throttled without touching the engine-wide concurrency cap.
//
// # Per-Capability Configuration
//
// Use [Config] to set per-capability rate limits and concurrency caps:
//
//	limit.Config{
//	    Capability:     "analysis",
//	    MaxConcurrency: 2,      // max 2 concurrent analysis workers
//	    RateLimit:      0.5,    // max one dispatch per 2s on this lane
//	    RateBurst:      3,      // allow bursts up to 3
//	}
//
// Pass configs when building the engine:
//
//	engine.Build(f,
//	    engine.WithLimits(
//	        limit.Config{Capability: "analysis", MaxConcurrency: 2},
//	        limit.Config{Capability: "codegen", RateLimit: 1, RateBurst: 5},
//	    ),
//	)
//
// # Manager
//
// [Manager] enforces per-capability and per-worker limits at dispatch
// time. It uses a token-bucket rate limiter (golang.org/x/time/rate)
// and an active-count gate for concurrency limits.
//
//	m := limit.NewManager(configs...)
//	if m.Acquire(capability, workerID) {
//	    defer m.Release(capability, workerID)
//	    // invoke the worker
//	}
//
// Capabilities without a [Config] have no limits beyond the engine-wide
// concurrency.
package limit
