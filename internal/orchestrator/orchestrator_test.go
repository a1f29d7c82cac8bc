package orchestrator

import (
	"context"
	"math/rand"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcfin/planner/internal/config"
	"github.com/arcfin/planner/internal/domain"
	"github.com/arcfin/planner/internal/errs"
	"github.com/arcfin/planner/internal/events"
	"github.com/arcfin/planner/internal/metrics"
	"github.com/arcfin/planner/internal/oracle"
	"github.com/arcfin/planner/internal/store"
	"github.com/arcfin/planner/internal/worker"
)

// fakeStore is an in-memory Store fake keyed by job ID.
type fakeStore struct {
	mu              sync.Mutex
	jobs            map[string]*domain.Job
	accounts        []domain.Account
	positions       []domain.Position
	instruments     map[string]domain.Instrument
	getPortfolioErr error
}

func (s *fakeStore) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "job not found")
	}
	cp := *j
	return &cp, nil
}

func (s *fakeStore) SetJobStatus(ctx context.Context, id string, status domain.JobStatus, t store.StatusTransition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return errs.New(errs.KindNotFound, "job not found")
	}
	j.Status = status
	if t.Error != nil {
		j.Error = t.Error
	}
	j.Version++
	return nil
}

func (s *fakeStore) WriteJobPayload(ctx context.Context, id string, field store.PayloadField, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return errs.New(errs.KindNotFound, "job not found")
	}
	switch field {
	case store.FieldNarrative:
		v := value.(domain.NarrativePayload)
		j.Narrative = &v
	case store.FieldCharts:
		v := value.(domain.ChartsPayload)
		j.Charts = &v
	case store.FieldProjections:
		v := value.(domain.ProjectionsPayload)
		j.Projections = &v
	case store.FieldSummary:
		v := value.(domain.SummaryPayload)
		j.Summary = &v
	}
	j.Version++
	return nil
}

func (s *fakeStore) GetPortfolio(ctx context.Context, ownerID string) ([]domain.Account, []domain.Position, map[string]domain.Instrument, error) {
	if s.getPortfolioErr != nil {
		return nil, nil, nil, s.getPortfolioErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	instCopy := make(map[string]domain.Instrument, len(s.instruments))
	for k, v := range s.instruments {
		instCopy[k] = v
	}
	return s.accounts, s.positions, instCopy, nil
}

func (s *fakeStore) UpsertInstruments(ctx context.Context, instruments []domain.Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inst := range instruments {
		s.instruments[inst.Symbol] = inst
	}
	return nil
}

type fakeOracle struct {
	quotes   map[string]oracle.Quote
	failures map[string]error
}

func (o *fakeOracle) GetPrices(ctx context.Context, symbols []string) (map[string]oracle.Quote, map[string]error) {
	quotes := map[string]oracle.Quote{}
	failures := map[string]error{}
	for _, sym := range symbols {
		if err, ok := o.failures[sym]; ok {
			failures[sym] = err
			continue
		}
		if q, ok := o.quotes[sym]; ok {
			quotes[sym] = q
		}
	}
	return quotes, failures
}

type fakeClassifier struct {
	out worker.ClassifierOutput
	err error
}

func (c *fakeClassifier) Invoke(ctx context.Context, in worker.ClassifierInput) (worker.ClassifierOutput, error) {
	return c.out, c.err
}

// sequencedNarrator returns errs[i] on the i-th call (0-indexed), then out
// for every call past the end of errs.
type sequencedNarrator struct {
	mu    sync.Mutex
	calls int
	errs  []error
	out   domain.NarrativePayload
}

func (n *sequencedNarrator) Invoke(ctx context.Context, in worker.NarratorInput) (domain.NarrativePayload, error) {
	n.mu.Lock()
	idx := n.calls
	n.calls++
	n.mu.Unlock()
	if idx < len(n.errs) {
		return domain.NarrativePayload{}, n.errs[idx]
	}
	return n.out, nil
}

type fakeVisualizer struct {
	out domain.ChartsPayload
	err error
}

func (v *fakeVisualizer) Invoke(ctx context.Context, in worker.VisualizerInput) (domain.ChartsPayload, error) {
	return v.out, v.err
}

type fakeProjector struct {
	out domain.ProjectionsPayload
	err error
}

func (p *fakeProjector) Invoke(ctx context.Context, in worker.ProjectorInput) (domain.ProjectionsPayload, error) {
	return p.out, p.err
}

// blockingProjector never returns on its own; it waits for ctx to be
// cancelled and returns ctx.Err(), used to force a job-level timeout.
type blockingProjector struct{}

func (blockingProjector) Invoke(ctx context.Context, in worker.ProjectorInput) (domain.ProjectionsPayload, error) {
	<-ctx.Done()
	return domain.ProjectionsPayload{}, ctx.Err()
}

func testConfig() config.Config {
	return config.Config{
		JobTimeoutMS:           5000,
		WorkerTimeoutMS:        2000,
		WorkerMaxAttempts:      3,
		BackoffBaseMS:          1,
		BackoffFactor:          2,
		BackoffCapMS:           5,
		BackoffJitter:          0,
		PoisonAttemptThreshold: 5,
	}
}

func happyNarrator() *sequencedNarrator {
	return &sequencedNarrator{out: domain.NarrativePayload{Text: "ok", QualityScore: 90}}
}

func happyVisualizer() *fakeVisualizer {
	return &fakeVisualizer{out: domain.ChartsPayload{Charts: []domain.ChartSpec{{Title: "alloc", Type: "pie"}}}}
}

func happyProjector() *fakeProjector {
	return &fakeProjector{out: domain.ProjectionsPayload{SuccessProbability: 0.8, Milestones: []domain.Milestone{{Year: 1}}}}
}

func newTestOrchestrator(cfg config.Config, st Store, oc PriceOracle, cl Classifier, nr Narrator, vz Visualizer, pj Projector) (*Orchestrator, *events.Bus) {
	bus := events.NewBus(zerolog.Nop())
	deps := Deps{Store: st, Oracle: oc, Classifier: cl, Narrator: nr, Visualizer: vz, Projector: pj, Events: bus, Metrics: metrics.New()}
	return New(cfg, deps, zerolog.Nop(), rand.New(rand.NewSource(1))), bus
}

func pendingJob(id string) *domain.Job {
	return &domain.Job{
		ID:      id,
		OwnerID: "owner-1",
		Kind:    domain.KindPortfolioAnalysis,
		Status:  domain.JobStatusPending,
		Input:   domain.InputSnapshot{RetirementHorizonYears: 20, IncomeTargetMonthly: 2000},
	}
}

func TestHandle_HappyPathCompletesJob(t *testing.T) {
	st := &fakeStore{
		jobs:        map[string]*domain.Job{"j1": pendingJob("j1")},
		positions:   []domain.Position{{AccountID: "a1", Symbol: "VTI", Quantity: 10}},
		instruments: map[string]domain.Instrument{"VTI": {Symbol: "VTI", AssetClassMap: map[string]float64{"equity": 100}}},
	}
	oc := &fakeOracle{quotes: map[string]oracle.Quote{"VTI": {Symbol: "VTI", Price: 100}}}
	cl := &fakeClassifier{}
	o, bus := newTestOrchestrator(testConfig(), st, oc, cl, happyNarrator(), happyVisualizer(), happyProjector())

	var terminal *events.JobTerminalData
	bus.Subscribe(events.JobTerminal, func(e *events.Event) { terminal = e.Data.(*events.JobTerminalData) })

	err := o.Handle(context.Background(), "j1", 1)
	require.NoError(t, err)

	job := st.jobs["j1"]
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.True(t, job.Complete())
	require.NotNil(t, terminal)
	assert.Equal(t, string(domain.JobStatusCompleted), terminal.Status)
}

func TestHandle_ClassificationGapIsFilledThenJobCompletes(t *testing.T) {
	st := &fakeStore{
		jobs:        map[string]*domain.Job{"j1": pendingJob("j1")},
		positions:   []domain.Position{{AccountID: "a1", Symbol: "VXUS", Quantity: 5}},
		instruments: map[string]domain.Instrument{"VXUS": {Symbol: "VXUS"}},
	}
	oc := &fakeOracle{quotes: map[string]oracle.Quote{"VXUS": {Symbol: "VXUS", Price: 50}}}
	cl := &fakeClassifier{out: worker.ClassifierOutput{Results: []worker.ClassifierResult{
		{Symbol: "VXUS", AssetClassMap: map[string]float64{"equity": 100}},
	}}}
	o, _ := newTestOrchestrator(testConfig(), st, oc, cl, happyNarrator(), happyVisualizer(), happyProjector())

	err := o.Handle(context.Background(), "j1", 1)
	require.NoError(t, err)

	job := st.jobs["j1"]
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.True(t, st.instruments["VXUS"].Classified())
}

func TestHandle_ClassifierFailureDoesNotFailJob(t *testing.T) {
	st := &fakeStore{
		jobs:        map[string]*domain.Job{"j1": pendingJob("j1")},
		positions:   []domain.Position{{AccountID: "a1", Symbol: "VXUS", Quantity: 5}},
		instruments: map[string]domain.Instrument{"VXUS": {Symbol: "VXUS"}},
	}
	oc := &fakeOracle{}
	cl := &fakeClassifier{err: errs.New(errs.KindPermanent, "classifier down")}
	o, _ := newTestOrchestrator(testConfig(), st, oc, cl, happyNarrator(), happyVisualizer(), happyProjector())

	err := o.Handle(context.Background(), "j1", 1)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, st.jobs["j1"].Status)
}

func TestHandle_NarratorTransientThenSuccessCompletesJob(t *testing.T) {
	st := &fakeStore{jobs: map[string]*domain.Job{"j1": pendingJob("j1")}, instruments: map[string]domain.Instrument{}}
	oc := &fakeOracle{}
	nr := &sequencedNarrator{
		errs: []error{errs.New(errs.KindTransient, "rate limited")},
		out:  domain.NarrativePayload{Text: "ok", QualityScore: 90},
	}
	o, _ := newTestOrchestrator(testConfig(), st, oc, &fakeClassifier{}, nr, happyVisualizer(), happyProjector())

	err := o.Handle(context.Background(), "j1", 1)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, st.jobs["j1"].Status)
	assert.Equal(t, 2, nr.calls)
}

func TestHandle_ProjectorPermanentFailureFailsJob(t *testing.T) {
	st := &fakeStore{jobs: map[string]*domain.Job{"j1": pendingJob("j1")}, instruments: map[string]domain.Instrument{}}
	oc := &fakeOracle{}
	pj := &fakeProjector{err: errs.New(errs.KindPermanent, "projector rejected input")}
	o, bus := newTestOrchestrator(testConfig(), st, oc, &fakeClassifier{}, happyNarrator(), happyVisualizer(), pj)

	var terminal *events.JobTerminalData
	bus.Subscribe(events.JobTerminal, func(e *events.Event) { terminal = e.Data.(*events.JobTerminalData) })

	err := o.Handle(context.Background(), "j1", 1)
	require.NoError(t, err)

	job := st.jobs["j1"]
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, string(errs.KindPermanent), job.Error.Kind)
	require.NotNil(t, terminal)
	assert.Equal(t, string(errs.KindPermanent), terminal.ErrorKind)
}

func TestHandle_PoisonAttemptFailsJobWithoutDispatch(t *testing.T) {
	st := &fakeStore{jobs: map[string]*domain.Job{"j1": pendingJob("j1")}, instruments: map[string]domain.Instrument{}}
	cl := &fakeClassifier{}
	nr := happyNarrator()
	o, _ := newTestOrchestrator(testConfig(), st, &fakeOracle{}, cl, nr, happyVisualizer(), happyProjector())

	err := o.Handle(context.Background(), "j1", 6)
	require.NoError(t, err)

	job := st.jobs["j1"]
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, string(errs.KindPoison), job.Error.Kind)
	assert.Equal(t, 0, nr.calls)
}

func TestHandle_UnknownJobIDAcksWithoutError(t *testing.T) {
	st := &fakeStore{jobs: map[string]*domain.Job{}, instruments: map[string]domain.Instrument{}}
	o, _ := newTestOrchestrator(testConfig(), st, &fakeOracle{}, &fakeClassifier{}, happyNarrator(), happyVisualizer(), happyProjector())

	err := o.Handle(context.Background(), "missing", 1)
	assert.NoError(t, err)
}

func TestHandle_TerminalJobIsNoOp(t *testing.T) {
	job := pendingJob("j1")
	job.Status = domain.JobStatusCompleted
	st := &fakeStore{jobs: map[string]*domain.Job{"j1": job}, instruments: map[string]domain.Instrument{}}
	nr := happyNarrator()
	o, _ := newTestOrchestrator(testConfig(), st, &fakeOracle{}, &fakeClassifier{}, nr, happyVisualizer(), happyProjector())

	err := o.Handle(context.Background(), "j1", 1)
	require.NoError(t, err)
	assert.Equal(t, 0, nr.calls)
	assert.Equal(t, domain.JobStatusCompleted, st.jobs["j1"].Status)
}

func TestHandle_JobLevelTimeoutFailsJobWithTimeoutKind(t *testing.T) {
	cfg := testConfig()
	cfg.JobTimeoutMS = 20
	cfg.WorkerTimeoutMS = 5000
	cfg.WorkerMaxAttempts = 1

	st := &fakeStore{jobs: map[string]*domain.Job{"j1": pendingJob("j1")}, instruments: map[string]domain.Instrument{}}
	o, _ := newTestOrchestrator(cfg, st, &fakeOracle{}, &fakeClassifier{}, happyNarrator(), happyVisualizer(), blockingProjector{})

	err := o.Handle(context.Background(), "j1", 1)
	require.NoError(t, err)

	job := st.jobs["j1"]
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, string(errs.KindTimeout), job.Error.Kind)
}

func TestHandle_PendingJobEmitsJobStartedOnlyOnFirstEntry(t *testing.T) {
	st := &fakeStore{jobs: map[string]*domain.Job{"j1": pendingJob("j1")}, instruments: map[string]domain.Instrument{}}
	o, bus := newTestOrchestrator(testConfig(), st, &fakeOracle{}, &fakeClassifier{}, happyNarrator(), happyVisualizer(), happyProjector())

	startedCount := 0
	bus.Subscribe(events.JobStarted, func(e *events.Event) { startedCount++ })

	require.NoError(t, o.Handle(context.Background(), "j1", 1))
	assert.Equal(t, 1, startedCount)

	// Job is now terminal; a second Handle call for the same id must be a
	// no-op and must not re-emit job.started.
	require.NoError(t, o.Handle(context.Background(), "j1", 1))
	assert.Equal(t, 1, startedCount)
}
