// Package metrics records conversion pipeline metrics.
package metrics

import "time"

// Recorder defines the interface for recording pipeline metrics.
type Recorder interface {
	// ObserveConversion records a finished conversion attempt.
	ObserveConversion(pair, outcome string, duration time.Duration)
	// WorkspaceOpened and WorkspaceReleased track live workspaces.
	WorkspaceOpened()
	WorkspaceReleased()
	// IncCleanupFailure counts workspace removals that failed.
	IncCleanupFailure()
	// AddStaleSwept counts leftover workspaces removed by maintenance.
	AddStaleSwept(n int)
	// IncUpdate counts transport updates by event kind.
	IncUpdate(kind string)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return NoopRecorder{}
}

func (NoopRecorder) ObserveConversion(string, string, time.Duration) {}

func (NoopRecorder) WorkspaceOpened() {}

func (NoopRecorder) WorkspaceReleased() {}

func (NoopRecorder) IncCleanupFailure() {}

func (NoopRecorder) AddStaleSwept(int) {}

func (NoopRecorder) IncUpdate(string) {}

// OrNop returns r, or a no-op recorder when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop()
	}
	return r
}
