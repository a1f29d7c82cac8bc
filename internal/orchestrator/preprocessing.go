package orchestrator

import (
	"context"
	"time"

	"github.com/arcfin/planner/internal/domain"
	"github.com/arcfin/planner/internal/events"
	"github.com/arcfin/planner/internal/worker"
)

// preprocess runs the sequential price-refresh then classification-gap-fill
// pass (spec §4.2) and returns the resulting portfolio snapshot. The only
// error it returns is a context cancellation (job-level timeout); every
// other failure in this pass is best-effort and only logged.
func (o *Orchestrator) preprocess(ctx context.Context, job *domain.Job) (domain.PortfolioSnapshot, error) {
	accounts, positions, instruments, err := o.store.GetPortfolio(ctx, job.OwnerID)
	if err != nil {
		if ctx.Err() != nil {
			return domain.PortfolioSnapshot{}, ctx.Err()
		}
		o.log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to read portfolio, proceeding with empty snapshot")
		return domain.BuildSnapshot(job.OwnerID, nil, nil, nil), nil
	}

	if ctx.Err() != nil {
		return domain.PortfolioSnapshot{}, ctx.Err()
	}
	o.refreshPrices(ctx, job.ID, positions, instruments)

	if ctx.Err() != nil {
		return domain.PortfolioSnapshot{}, ctx.Err()
	}
	o.fillClassificationGaps(ctx, job.ID, positions, instruments)

	return domain.BuildSnapshot(job.OwnerID, accounts, positions, instruments), nil
}

// refreshPrices looks up the union of symbols referenced by positions and
// persists any returned prices back to the instrument rows. Per-symbol
// failures leave the existing price untouched (§4.2 Step A).
func (o *Orchestrator) refreshPrices(ctx context.Context, jobID string, positions []domain.Position, instruments map[string]domain.Instrument) {
	start := time.Now()

	symbols := symbolSet(positions)
	if len(symbols) == 0 {
		o.events.Emit(&events.PreprocessDoneData{Stage: "prices", JobID: jobID, Count: 0, DurationMS: 0})
		return
	}

	quotes, failures := o.oracle.GetPrices(ctx, symbols)
	for symbol, err := range failures {
		o.log.Warn().Err(err).Str("job_id", jobID).Str("symbol", symbol).Msg("price refresh failed, leaving existing price untouched")
	}

	updated := make([]domain.Instrument, 0, len(quotes))
	for symbol, quote := range quotes {
		inst, ok := instruments[symbol]
		if !ok {
			inst = domain.Instrument{Symbol: symbol}
		}
		price := quote.Price
		inst.CurrentPrice = &price
		instruments[symbol] = inst
		updated = append(updated, inst)
	}

	if len(updated) > 0 {
		if err := o.store.UpsertInstruments(ctx, updated); err != nil {
			o.log.Warn().Err(err).Str("job_id", jobID).Msg("failed to persist refreshed prices")
		}
	}

	o.events.Emit(&events.PreprocessDoneData{Stage: "prices", JobID: jobID, Count: len(quotes), DurationMS: time.Since(start).Milliseconds()})
}

// fillClassificationGaps invokes the Classifier for every instrument
// referenced by a position whose allocation maps are all empty (§4.2
// Step B). A total failure of the pass does not fail the job.
func (o *Orchestrator) fillClassificationGaps(ctx context.Context, jobID string, positions []domain.Position, instruments map[string]domain.Instrument) {
	start := time.Now()

	var items []worker.ClassifierItem
	for _, sym := range symbolSet(positions) {
		inst, ok := instruments[sym]
		if ok && inst.Classified() {
			continue
		}
		items = append(items, worker.ClassifierItem{Symbol: sym, Name: inst.DisplayName, KindHint: inst.Kind})
	}

	if len(items) == 0 {
		o.events.Emit(&events.PreprocessDoneData{Stage: "classifier", JobID: jobID, Count: 0, DurationMS: 0})
		return
	}

	result, err := o.runWithRetry(ctx, jobID, "classifier", func(attemptCtx context.Context, attempt int) (interface{}, error) {
		return o.classifier.Invoke(attemptCtx, worker.ClassifierInput{Items: items})
	})
	if err != nil {
		o.log.Warn().Err(err).Str("job_id", jobID).Msg("classifier pre-pass failed, proceeding with existing classifications")
		o.events.Emit(&events.PreprocessDoneData{Stage: "classifier", JobID: jobID, Count: 0, DurationMS: time.Since(start).Milliseconds()})
		return
	}

	out := result.(worker.ClassifierOutput)
	updated := make([]domain.Instrument, 0, len(out.Results))
	for _, r := range out.Results {
		inst, ok := instruments[r.Symbol]
		if !ok {
			inst = domain.Instrument{Symbol: r.Symbol}
		}
		inst.AssetClassMap = r.AssetClassMap
		inst.RegionMap = r.RegionMap
		inst.SectorMap = r.SectorMap
		instruments[r.Symbol] = inst
		updated = append(updated, inst)
	}

	if len(updated) > 0 {
		if err := o.store.UpsertInstruments(ctx, updated); err != nil {
			o.log.Warn().Err(err).Str("job_id", jobID).Msg("failed to persist classifications")
		}
	}

	o.events.Emit(&events.PreprocessDoneData{Stage: "classifier", JobID: jobID, Count: len(updated), DurationMS: time.Since(start).Milliseconds()})
}

func symbolSet(positions []domain.Position) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range positions {
		if seen[p.Symbol] {
			continue
		}
		seen[p.Symbol] = true
		out = append(out, p.Symbol)
	}
	return out
}
