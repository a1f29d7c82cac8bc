// Package orchestrator is the planner's core: handle(job_id) drives the
// job state machine through pre-processing and concurrent worker
// dispatch to a terminal state, the way the teacher's internal/work.Processor
// drives one work item through dependency resolution and execution —
// generalized here from "one work item, one registry" to "one job through
// a fixed pre-processing pass plus a fixed fan-out of three workers".
package orchestrator

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/arcfin/planner/internal/config"
	"github.com/arcfin/planner/internal/domain"
	"github.com/arcfin/planner/internal/errs"
	"github.com/arcfin/planner/internal/events"
	"github.com/arcfin/planner/internal/metrics"
	"github.com/arcfin/planner/internal/oracle"
	"github.com/arcfin/planner/internal/retry"
	"github.com/arcfin/planner/internal/store"
	"github.com/arcfin/planner/internal/utils"
	"github.com/arcfin/planner/internal/worker"
)

// Store is the subset of the Store contract (SPEC_FULL.md §4.5) the
// orchestrator depends on. Satisfied by *store.Store; tests substitute a
// fake.
type Store interface {
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	SetJobStatus(ctx context.Context, id string, status domain.JobStatus, t store.StatusTransition) error
	WriteJobPayload(ctx context.Context, id string, field store.PayloadField, value interface{}) error
	GetPortfolio(ctx context.Context, ownerID string) ([]domain.Account, []domain.Position, map[string]domain.Instrument, error)
	UpsertInstruments(ctx context.Context, instruments []domain.Instrument) error
}

// PriceOracle is the Market Oracle surface the orchestrator depends on.
// Satisfied by *oracle.Client.
type PriceOracle interface {
	GetPrices(ctx context.Context, symbols []string) (map[string]oracle.Quote, map[string]error)
}

// Classifier, Narrator, Visualizer, and Projector mirror the Invoke
// signature of the concrete worker.* adapter types, letting tests pass
// in-memory fakes without importing the worker package's Backend
// generics.
type Classifier interface {
	Invoke(ctx context.Context, in worker.ClassifierInput) (worker.ClassifierOutput, error)
}

type Narrator interface {
	Invoke(ctx context.Context, in worker.NarratorInput) (domain.NarrativePayload, error)
}

type Visualizer interface {
	Invoke(ctx context.Context, in worker.VisualizerInput) (domain.ChartsPayload, error)
}

type Projector interface {
	Invoke(ctx context.Context, in worker.ProjectorInput) (domain.ProjectionsPayload, error)
}

// Orchestrator is the core job coordinator. One instance is shared across
// concurrent Handle calls; it holds no per-job mutable state (spec §5).
type Orchestrator struct {
	store      Store
	oracle     PriceOracle
	classifier Classifier
	narrator   Narrator
	visualizer Visualizer
	projector  Projector

	events *events.Bus
	mx     *metrics.Registry
	log    zerolog.Logger

	cfg    config.Config
	policy *retry.Policy
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Store      Store
	Oracle     PriceOracle
	Classifier Classifier
	Narrator   Narrator
	Visualizer Visualizer
	Projector  Projector
	Events     *events.Bus
	Metrics    *metrics.Registry
}

// New builds an Orchestrator. rnd seeds the shared backoff policy; pass
// nil in production (time-seeded) and a fixed source in tests.
func New(cfg config.Config, deps Deps, log zerolog.Logger, rnd *rand.Rand) *Orchestrator {
	policy := retry.New(
		time.Duration(cfg.BackoffBaseMS)*time.Millisecond,
		cfg.BackoffFactor,
		time.Duration(cfg.BackoffCapMS)*time.Millisecond,
		cfg.BackoffJitter,
		cfg.WorkerMaxAttempts,
		rnd,
	)

	return &Orchestrator{
		store:      deps.Store,
		oracle:     deps.Oracle,
		classifier: deps.Classifier,
		narrator:   deps.Narrator,
		visualizer: deps.Visualizer,
		projector:  deps.Projector,
		events:     deps.Events,
		mx:         deps.Metrics,
		log:        log.With().Str("component", "orchestrator").Logger(),
		cfg:        cfg,
		policy:     policy,
	}
}

// Handle is the single entry point per queue message (spec §4.1). attempt
// is the queue's redelivery counter (1 on first delivery); 0 means the
// caller does not track redeliveries and poison detection is skipped.
//
// Handle returns nil when the message should be acknowledged (job reached
// a terminal state, was already terminal, doesn't exist, or was poisoned)
// and a non-nil error only for conditions the caller should redeliver on
// (e.g. the Store itself is unreachable). Callers branch on
// errs.KindOf(err) the same way worker/dispatch callers do.
func (o *Orchestrator) Handle(ctx context.Context, jobID string, attempt int) error {
	timer := utils.NewTimer("orchestrator.handle", o.log)
	defer timer.Stop()

	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		if errs.KindOf(err) == errs.KindNotFound {
			o.log.Warn().Str("job_id", jobID).Msg("handle called for unknown job, acknowledging")
			return nil
		}
		return err
	}

	if job.Status.Terminal() {
		return nil
	}

	if attempt > 0 && o.cfg.PoisonAttemptThreshold > 0 && attempt > o.cfg.PoisonAttemptThreshold {
		return o.finalizeFailed(ctx, job, &domain.JobError{Kind: string(errs.KindPoison), Cause: "redelivery threshold exceeded"})
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(o.cfg.JobTimeoutMS)*time.Millisecond)
	defer cancel()

	firstEntry := job.Status == domain.JobStatusPending
	if err := o.store.SetJobStatus(ctx, job.ID, domain.JobStatusRunning, store.StatusTransition{Started: firstEntry}); err != nil {
		return err
	}
	if firstEntry {
		o.events.Emit(&events.JobStartedData{JobID: job.ID, UserID: job.OwnerID})
	}

	snapshot, preErr := o.preprocess(ctx, job)
	if preErr != nil {
		// Only a context-cancellation (job-level timeout) aborts dispatch
		// entirely; all other pre-processing failures are best-effort per
		// §4.2 and preprocess() itself never returns them.
		return o.finalizeFailed(ctx, job, &domain.JobError{Kind: string(errs.KindTimeout), Cause: "job deadline expired during pre-processing"})
	}

	if err := o.store.WriteJobPayload(ctx, job.ID, store.FieldSummary, domain.SummaryPayload{
		TotalValue: snapshot.TotalValue,
		AsOf:       time.Now(),
	}); err != nil {
		return o.finalizeFailed(ctx, job, &domain.JobError{Kind: string(errs.KindInternal), Cause: "failed to write summary payload: " + err.Error()})
	}

	jobErr := o.dispatchWorkers(ctx, job, snapshot)

	if ctx.Err() != nil {
		jobErr = &domain.JobError{Kind: string(errs.KindTimeout), Cause: "job deadline expired during worker dispatch"}
	}

	if jobErr != nil {
		return o.finalizeFailed(ctx, job, jobErr)
	}
	return o.finalizeCompleted(ctx, job)
}

func (o *Orchestrator) finalizeCompleted(ctx context.Context, job *domain.Job) error {
	if err := o.store.SetJobStatus(ctx, job.ID, domain.JobStatusCompleted, store.StatusTransition{Completed: true}); err != nil {
		return err
	}
	if o.mx != nil {
		o.mx.IncCompleted(string(job.Kind))
	}
	o.events.Emit(&events.JobTerminalData{JobID: job.ID, Status: string(domain.JobStatusCompleted)})
	return nil
}

func (o *Orchestrator) finalizeFailed(ctx context.Context, job *domain.Job, jobErr *domain.JobError) error {
	// finalizeFailed is also reached with an already-expired ctx (job
	// timeout); use context.Background() for the status write itself so
	// the terminal transition still lands.
	writeCtx := ctx
	if ctx.Err() != nil {
		writeCtx = context.Background()
	}

	if err := o.store.SetJobStatus(writeCtx, job.ID, domain.JobStatusFailed, store.StatusTransition{Completed: true, Error: jobErr}); err != nil {
		return err
	}
	if o.mx != nil {
		o.mx.IncFailed(string(job.Kind))
		if jobErr.Kind == string(errs.KindTimeout) {
			o.mx.IncTimedOut()
		}
	}
	o.events.Emit(&events.JobTerminalData{JobID: job.ID, Status: string(domain.JobStatusFailed), ErrorKind: jobErr.Kind})
	return nil
}
