package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	UserCacheHits         uint64
	UserCacheMisses       uint64
	LookupDurationCount   uint64
	LookupDurationTotalNs int64
	UsersCreated          uint64
	UsersUpdated          uint64
	UsersDeleted          uint64
	CacheGetErrors        uint64
	CacheSetErrors        uint64
	CacheDeleteErrors     uint64
}

// InMemoryRecorder stores metrics in memory. It backs the /metrics endpoint.
type InMemoryRecorder struct {
	userCacheHits         atomic.Uint64
	userCacheMisses       atomic.Uint64
	lookupDurationCount   atomic.Uint64
	lookupDurationTotalNs atomic.Int64
	usersCreated          atomic.Uint64
	usersUpdated          atomic.Uint64
	usersDeleted          atomic.Uint64
	cacheGetErrors        atomic.Uint64
	cacheSetErrors        atomic.Uint64
	cacheDeleteErrors     atomic.Uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		UserCacheHits:         m.userCacheHits.Load(),
		UserCacheMisses:       m.userCacheMisses.Load(),
		LookupDurationCount:   m.lookupDurationCount.Load(),
		LookupDurationTotalNs: m.lookupDurationTotalNs.Load(),
		UsersCreated:          m.usersCreated.Load(),
		UsersUpdated:          m.usersUpdated.Load(),
		UsersDeleted:          m.usersDeleted.Load(),
		CacheGetErrors:        m.cacheGetErrors.Load(),
		CacheSetErrors:        m.cacheSetErrors.Load(),
		CacheDeleteErrors:     m.cacheDeleteErrors.Load(),
	}
}

// IncUserCacheHit increments the cache hit counter.
func (m *InMemoryRecorder) IncUserCacheHit() { m.userCacheHits.Add(1) }

// IncUserCacheMiss increments the cache miss counter.
func (m *InMemoryRecorder) IncUserCacheMiss() { m.userCacheMisses.Add(1) }

// ObserveUserLookupDuration records the duration of a by-id lookup.
func (m *InMemoryRecorder) ObserveUserLookupDuration(duration time.Duration) {
	m.lookupDurationCount.Add(1)
	m.lookupDurationTotalNs.Add(duration.Nanoseconds())
}

// IncUserCreated increments the created counter.
func (m *InMemoryRecorder) IncUserCreated() { m.usersCreated.Add(1) }

// IncUserUpdated increments the updated counter.
func (m *InMemoryRecorder) IncUserUpdated() { m.usersUpdated.Add(1) }

// IncUserDeleted increments the deleted counter.
func (m *InMemoryRecorder) IncUserDeleted() { m.usersDeleted.Add(1) }

// IncCacheError counts a failed accelerator call. Unknown ops are ignored.
func (m *InMemoryRecorder) IncCacheError(op string) {
	switch op {
	case OpGet:
		m.cacheGetErrors.Add(1)
	case OpSet:
		m.cacheSetErrors.Add(1)
	case OpDelete:
		m.cacheDeleteErrors.Add(1)
	}
}
