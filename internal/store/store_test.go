package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcfin/planner/internal/domain"
	"github.com/arcfin/planner/internal/errs"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

	schemaPath := filepath.Join("..", "database", "schemas", "planner_schema.sql")
	schema, err := os.ReadFile(schemaPath)
	require.NoError(t, err)

	_, err = db.Exec(string(schema))
	require.NoError(t, err)

	return db
}

func newTestStore(t *testing.T) (*Store, *sql.DB) {
	db := setupTestDB(t)
	return New(db, zerolog.Nop()), db
}

func seedJob(t *testing.T, s *Store, id string) *domain.Job {
	job := &domain.Job{
		ID:      id,
		OwnerID: "owner-1",
		Kind:    domain.KindPortfolioAnalysis,
		Input: domain.InputSnapshot{
			RetirementHorizonYears: 20,
			IncomeTargetMonthly:    4000,
		},
	}
	require.NoError(t, s.CreateJob(context.Background(), job))
	return job
}

func TestCreateJob_ThenGetJob_RoundTrips(t *testing.T) {
	s, db := newTestStore(t)
	defer db.Close()

	seedJob(t, s, "job-1")

	got, err := s.GetJob(context.Background(), "job-1")
	require.NoError(t, err)

	assert.Equal(t, "job-1", got.ID)
	assert.Equal(t, domain.JobStatusPending, got.Status)
	assert.Equal(t, 20, got.Input.RetirementHorizonYears)
	assert.False(t, got.Complete())
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)
}

func TestGetJob_MissingReturnsNotFound(t *testing.T) {
	s, db := newTestStore(t)
	defer db.Close()

	_, err := s.GetJob(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestSetJobStatus_RunningSetsStartedAt(t *testing.T) {
	s, db := newTestStore(t)
	defer db.Close()

	seedJob(t, s, "job-1")
	require.NoError(t, s.SetJobStatus(context.Background(), "job-1", domain.JobStatusRunning, StatusTransition{Started: true}))

	got, err := s.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusRunning, got.Status)
	require.NotNil(t, got.StartedAt)
}

func TestSetJobStatus_CompletedAfterFailedIsNoOp(t *testing.T) {
	s, db := newTestStore(t)
	defer db.Close()

	seedJob(t, s, "job-1")
	ctx := context.Background()

	require.NoError(t, s.SetJobStatus(ctx, "job-1", domain.JobStatusFailed, StatusTransition{
		Completed: true,
		Error:     &domain.JobError{Kind: "timeout", Cause: "worker deadline exceeded"},
	}))

	require.NoError(t, s.SetJobStatus(ctx, "job-1", domain.JobStatusCompleted, StatusTransition{Completed: true}))

	got, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status, "terminal status must not be overwritten")
	require.NotNil(t, got.Error)
	assert.Equal(t, "timeout", got.Error.Kind)
}

func TestSetJobStatus_BumpsVersion(t *testing.T) {
	s, db := newTestStore(t)
	defer db.Close()

	seedJob(t, s, "job-1")
	ctx := context.Background()

	before, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)

	require.NoError(t, s.SetJobStatus(ctx, "job-1", domain.JobStatusRunning, StatusTransition{Started: true}))

	after, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Greater(t, after.Version, before.Version)
}

func TestWriteJobPayload_AllFourFieldsDriveComplete(t *testing.T) {
	s, db := newTestStore(t)
	defer db.Close()

	seedJob(t, s, "job-1")
	ctx := context.Background()

	require.NoError(t, s.WriteJobPayload(ctx, "job-1", FieldNarrative, &domain.NarrativePayload{Text: "hello", QualityScore: 80}))
	mid, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, mid.Complete())
	require.NotNil(t, mid.Narrative)
	assert.Equal(t, "hello", mid.Narrative.Text)

	require.NoError(t, s.WriteJobPayload(ctx, "job-1", FieldCharts, &domain.ChartsPayload{Charts: []domain.ChartSpec{{Title: "Allocation", Type: "pie"}}}))
	require.NoError(t, s.WriteJobPayload(ctx, "job-1", FieldProjections, &domain.ProjectionsPayload{SuccessProbability: 0.8}))
	require.NoError(t, s.WriteJobPayload(ctx, "job-1", FieldSummary, &domain.SummaryPayload{TotalValue: 10000}))

	done, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, done.Complete())
	assert.Equal(t, 10000.0, done.Summary.TotalValue)
}

func TestWriteJobPayload_ResultsAreReplacedNotMerged(t *testing.T) {
	s, db := newTestStore(t)
	defer db.Close()

	seedJob(t, s, "job-1")
	ctx := context.Background()

	require.NoError(t, s.WriteJobPayload(ctx, "job-1", FieldNarrative, &domain.NarrativePayload{Text: "first draft", QualityScore: 40}))
	require.NoError(t, s.WriteJobPayload(ctx, "job-1", FieldNarrative, &domain.NarrativePayload{Text: "regenerated", QualityScore: 90, RegenerationUsed: true}))

	got, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "regenerated", got.Narrative.Text)
	assert.True(t, got.Narrative.RegenerationUsed)
}

func TestUpsertInstruments_IsIdempotent(t *testing.T) {
	s, db := newTestStore(t)
	defer db.Close()
	ctx := context.Background()

	price := 101.5
	inst := domain.Instrument{
		Symbol:        "VTI",
		DisplayName:   "Vanguard Total Stock Market",
		CurrentPrice:  &price,
		AssetClassMap: map[string]float64{"equity": 100},
	}

	require.NoError(t, s.UpsertInstruments(ctx, []domain.Instrument{inst}))
	require.NoError(t, s.UpsertInstruments(ctx, []domain.Instrument{inst}))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM instruments WHERE isin = ?`, "VTI").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestGetPortfolio_ReturnsConsistentSnapshot(t *testing.T) {
	s, db := newTestStore(t)
	defer db.Close()
	ctx := context.Background()

	_, err := db.Exec(`INSERT INTO accounts (id, owner_id, name, currency, free_cash, cash_yield) VALUES (?, ?, ?, ?, ?, ?)`,
		"acc-1", "owner-1", "Brokerage", "USD", 250.0, 0.04)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO positions (account_id, isin, quantity, cost_basis, as_of) VALUES (?, ?, ?, ?, ?)`,
		"acc-1", "VTI", 10.0, 900.0, 1700000000)
	require.NoError(t, err)

	price := 101.5
	require.NoError(t, s.UpsertInstruments(ctx, []domain.Instrument{{
		Symbol:       "VTI",
		DisplayName:  "Vanguard Total Stock Market",
		CurrentPrice: &price,
	}}))

	accounts, positions, instruments, err := s.GetPortfolio(ctx, "owner-1")
	require.NoError(t, err)

	require.Len(t, accounts, 1)
	assert.Equal(t, "acc-1", accounts[0].ID)
	assert.Equal(t, 250.0, accounts[0].CashBalance)
	require.NotNil(t, accounts[0].CashYieldRate)
	assert.Equal(t, 0.04, *accounts[0].CashYieldRate)

	require.Len(t, positions, 1)
	assert.Equal(t, "VTI", positions[0].Symbol)
	assert.NotEmpty(t, positions[0].AsOf)

	require.Contains(t, instruments, "VTI")
	assert.Equal(t, 101.5, *instruments["VTI"].CurrentPrice)
}

func TestGetPortfolio_NoAccountsReturnsEmpty(t *testing.T) {
	s, db := newTestStore(t)
	defer db.Close()

	accounts, positions, instruments, err := s.GetPortfolio(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, accounts)
	assert.Empty(t, positions)
	assert.Empty(t, instruments)
}
