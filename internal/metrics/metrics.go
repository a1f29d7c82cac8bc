// Package metrics holds the planner's optional metric counters. Per spec
// §5, the core holds no process-wide mutable state beyond configuration
// and these counters, which must be atomic.
package metrics

import "sync/atomic"

// Registry is a set of atomic counters, safe to pass by reference and
// read concurrently. It is wired once at startup and never replaced.
type Registry struct {
	jobsCompleted atomic.Int64
	jobsFailed    atomic.Int64
	jobsTimedOut  atomic.Int64
	archiveFailed atomic.Int64

	jobsByKindCompleted sync64Map
	jobsByKindFailed    sync64Map
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{
		jobsByKindCompleted: newSync64Map(),
		jobsByKindFailed:    newSync64Map(),
	}
}

// IncCompleted records one job reaching status=completed.
func (r *Registry) IncCompleted(kind string) {
	r.jobsCompleted.Add(1)
	r.jobsByKindCompleted.add(kind, 1)
}

// IncFailed records one job reaching status=failed.
func (r *Registry) IncFailed(kind string) {
	r.jobsFailed.Add(1)
	r.jobsByKindFailed.add(kind, 1)
}

// IncTimedOut records one job failing with kind=timeout.
func (r *Registry) IncTimedOut() {
	r.jobsTimedOut.Add(1)
}

// Completed returns the total count of completed jobs.
func (r *Registry) Completed() int64 { return r.jobsCompleted.Load() }

// Failed returns the total count of failed jobs.
func (r *Registry) Failed() int64 { return r.jobsFailed.Load() }

// TimedOut returns the total count of jobs that failed with kind=timeout.
func (r *Registry) TimedOut() int64 { return r.jobsTimedOut.Load() }

// IncArchiveFailed records one best-effort job-archival upload failing.
// Archival never fails the job itself (§4.8); this counter is the only
// record of the failure beyond the log line.
func (r *Registry) IncArchiveFailed() { r.archiveFailed.Add(1) }

// ArchiveFailed returns the total count of failed archival uploads.
func (r *Registry) ArchiveFailed() int64 { return r.archiveFailed.Load() }

// CompletedByKind returns the completed count for one job kind.
func (r *Registry) CompletedByKind(kind string) int64 { return r.jobsByKindCompleted.get(kind) }

// FailedByKind returns the failed count for one job kind.
func (r *Registry) FailedByKind(kind string) int64 { return r.jobsByKindFailed.get(kind) }
