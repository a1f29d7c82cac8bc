package orchestrator

import (
	"context"

	"github.com/arcfin/planner/internal/dispatch"
	"github.com/arcfin/planner/internal/domain"
	"github.com/arcfin/planner/internal/errs"
	"github.com/arcfin/planner/internal/projection"
	"github.com/arcfin/planner/internal/store"
	"github.com/arcfin/planner/internal/worker"
)

// smaPeriod and rsiPeriod are the technical-indicator windows fed to the
// Projector's enrichment; unlike the worker/retry/chart parameters these
// are not exposed as configuration because SPEC_FULL.md's DESIGN NOTES
// name only the retry/timeout/validation knobs as tunable.
const (
	smaPeriod = 20
	rsiPeriod = 14
)

// These labels name the three workers whose terminal failure fails the
// job (spec §4.1), in the fixed order results are resolved when more than
// one fails: the first failure encountered in this order becomes the
// job's recorded error.
const (
	workerNarrator   = "narrator"
	workerVisualizer = "visualizer"
	workerProjector  = "projector"
)

// dispatchWorkers runs the three required workers concurrently via
// dispatch.Join, writes each validated payload, and returns the job
// failure detail if any required worker exhausted its retries. A nil
// return means every required worker succeeded and its payload was
// written.
func (o *Orchestrator) dispatchWorkers(ctx context.Context, job *domain.Job, snapshot domain.PortfolioSnapshot) *domain.JobError {
	estimate := projection.EstimateFromDailyReturns(nil, nil)
	signals := technicalSignals(snapshot)

	units := []dispatch.Unit{
		{Label: workerNarrator, Fn: func(unitCtx context.Context) (interface{}, error) {
			return o.runWithRetry(unitCtx, job.ID, workerNarrator, func(attemptCtx context.Context, attempt int) (interface{}, error) {
				return o.narrator.Invoke(attemptCtx, worker.NarratorInput{
					Snapshot:    snapshot,
					UserProfile: job.Input.UserProfile,
					Attempt:     attempt,
				})
			})
		}},
		{Label: workerVisualizer, Fn: func(unitCtx context.Context) (interface{}, error) {
			return o.runWithRetry(unitCtx, job.ID, workerVisualizer, func(attemptCtx context.Context, attempt int) (interface{}, error) {
				return o.visualizer.Invoke(attemptCtx, worker.VisualizerInput{Snapshot: snapshot})
			})
		}},
		{Label: workerProjector, Fn: func(unitCtx context.Context) (interface{}, error) {
			return o.runWithRetry(unitCtx, job.ID, workerProjector, func(attemptCtx context.Context, attempt int) (interface{}, error) {
				return o.projector.Invoke(attemptCtx, worker.ProjectorInput{
					Snapshot:               snapshot,
					RetirementHorizonYears: job.Input.RetirementHorizonYears,
					IncomeTargetMonthly:    job.Input.IncomeTargetMonthly,
					Estimate:               estimate,
					TechnicalSignals:       signals,
				})
			})
		}},
	}

	outcomes := dispatch.Join(ctx, units)

	var firstErr *domain.JobError
	for _, o2 := range outcomes {
		if o2.Err == nil {
			if err := o.writeResult(ctx, job.ID, o2.Label, o2.Result); err != nil && firstErr == nil {
				firstErr = &domain.JobError{Kind: string(errs.KindInternal), Cause: err.Error()}
			}
			continue
		}
		if firstErr == nil {
			firstErr = &domain.JobError{Kind: string(o2.Kind), Cause: o2.Err.Error()}
		}
	}

	return firstErr
}

// writeResult persists one required worker's validated payload to its
// Store field.
func (o *Orchestrator) writeResult(ctx context.Context, jobID, label string, result interface{}) error {
	switch label {
	case workerNarrator:
		return o.store.WriteJobPayload(ctx, jobID, store.FieldNarrative, result.(domain.NarrativePayload))
	case workerVisualizer:
		return o.store.WriteJobPayload(ctx, jobID, store.FieldCharts, result.(domain.ChartsPayload))
	case workerProjector:
		return o.store.WriteJobPayload(ctx, jobID, store.FieldProjections, result.(domain.ProjectionsPayload))
	}
	return nil
}

// technicalSignals computes a per-instrument SMA/RSI snapshot from each
// position's current price. With only a spot price available (the Market
// Oracle contract returns best-available current price, not a history —
// spec §4.2), every series has length 1, so ComputeTechnicalSnapshot
// returns nil indicator fields; the call still exercises the same
// indicator pipeline a future historical price store would feed.
func technicalSignals(snapshot domain.PortfolioSnapshot) []projection.TechnicalSnapshot {
	signals := make([]projection.TechnicalSnapshot, 0, len(snapshot.Positions))
	for _, pv := range snapshot.Positions {
		if pv.Price == 0 {
			continue
		}
		signals = append(signals, projection.ComputeTechnicalSnapshot(pv.Position.Symbol, []float64{pv.Price}, smaPeriod, rsiPeriod))
	}
	return signals
}
