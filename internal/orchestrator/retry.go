package orchestrator

import (
	"context"
	"time"

	"github.com/arcfin/planner/internal/errs"
	"github.com/arcfin/planner/internal/events"
)

// attemptFn is one worker or Classifier invocation, given the attempt
// number (1-indexed) and a context already carrying the per-attempt
// worker_timeout_ms deadline.
type attemptFn func(ctx context.Context, attempt int) (interface{}, error)

// runWithRetry drives attemptFn through the shared backoff policy (spec
// §9: "a single generic policy object ... reused by the Classifier pass
// and the per-worker dispatcher"). transient errors retry up to
// worker_max_attempts; validation errors get at most one extra attempt,
// and none when worker_max_attempts is 1 (§4.3: "limited to one extra
// attempt"); permanent and cancelled never retry.
func (o *Orchestrator) runWithRetry(ctx context.Context, jobID, workerName string, fn attemptFn) (interface{}, error) {
	var lastErr error

	for attempt := 1; attempt <= o.cfg.WorkerMaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, time.Duration(o.cfg.WorkerTimeoutMS)*time.Millisecond)
		o.events.Emit(&events.WorkerAttemptData{JobID: jobID, Worker: workerName, AttemptNo: attempt})

		start := time.Now()
		result, err := fn(attemptCtx, attempt)
		duration := time.Since(start)
		cancel()

		kind := errs.KindOf(err)
		o.events.Emit(&events.WorkerResultData{
			JobID:      jobID,
			Worker:     workerName,
			Outcome:    outcomeFor(err, kind),
			DurationMS: duration.Milliseconds(),
		})

		if err == nil {
			return result, nil
		}
		lastErr = err

		if !o.retryable(kind, attempt) {
			return nil, lastErr
		}

		select {
		case <-time.After(o.policy.Delay(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

// retryable decides whether another attempt should run after attempt
// (the attempt number that just failed). Validation is capped to one
// extra attempt even when worker_max_attempts allows more; the caller's
// loop still stops at worker_max_attempts.
func (o *Orchestrator) retryable(kind errs.Kind, attempt int) bool {
	if !kind.Retryable() {
		return false
	}
	if kind == errs.KindValidation {
		return attempt < 2
	}
	return attempt < o.cfg.WorkerMaxAttempts
}

// outcomeFor maps a classified error (or nil) to the observability
// outcome enum (spec §6).
func outcomeFor(err error, kind errs.Kind) events.WorkerOutcome {
	if err == nil {
		return events.OutcomeOK
	}
	switch kind {
	case errs.KindTransient:
		return events.OutcomeTransient
	case errs.KindValidation:
		return events.OutcomeValidation
	case errs.KindCancelled, errs.KindTimeout:
		return events.OutcomeCancelled
	default:
		return events.OutcomePermanent
	}
}
