// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Cache operations reported to IncCacheError.
const (
	OpGet    = "get"
	OpSet    = "set"
	OpDelete = "delete"
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Read path
	IncUserCacheHit()
	IncUserCacheMiss()
	ObserveUserLookupDuration(duration time.Duration)

	// Write path
	IncUserCreated()
	IncUserUpdated()
	IncUserDeleted()

	// Accelerator degradation, op is one of OpGet, OpSet, OpDelete.
	IncCacheError(op string)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
