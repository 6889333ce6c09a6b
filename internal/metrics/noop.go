package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncUserCacheHit()                                {}
func (n *NoopRecorder) IncUserCacheMiss()                               {}
func (n *NoopRecorder) ObserveUserLookupDuration(duration time.Duration) {}
func (n *NoopRecorder) IncUserCreated()                                 {}
func (n *NoopRecorder) IncUserUpdated()                                 {}
func (n *NoopRecorder) IncUserDeleted()                                 {}
func (n *NoopRecorder) IncCacheError(op string)                         {}
