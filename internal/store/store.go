// Package store implements the Store contract the orchestrator core
// depends on (SPEC_FULL.md §4.5) against SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/arcfin/planner/internal/domain"
	"github.com/arcfin/planner/internal/errs"
)

// PayloadField names one of the four payload columns a worker writes.
type PayloadField string

const (
	FieldNarrative   PayloadField = "narrative"
	FieldCharts      PayloadField = "charts"
	FieldProjections PayloadField = "projections"
	FieldSummary     PayloadField = "summary"
)

// Store is the SQLite-backed implementation of the Store contract.
// Constructed with *sql.DB + zerolog.Logger, matching the repository
// shape used throughout the allocation/portfolio repositories it's
// grounded on.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// New creates a Store over an already-migrated database connection.
func New(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{db: db, log: log.With().Str("component", "store").Logger()}
}

// GetJob returns the job by id, or an errs.KindNotFound error if it does
// not exist.
func (s *Store) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, kind, status, input_snapshot, narrative, charts,
		       projections, summary, failure_kind, failure_detail,
		       created_at, started_at, completed_at, updated_at, version
		FROM jobs WHERE id = ?`, id)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, errs.Newf(errs.KindNotFound, "job %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// CreateJob inserts a new pending job. It is not part of the core's
// consumed contract (the core only reads jobs) but is needed to seed jobs
// for the reference binary and tests.
func (s *Store) CreateJob(ctx context.Context, job *domain.Job) error {
	inputJSON, err := json.Marshal(job.Input)
	if err != nil {
		return fmt.Errorf("marshal input snapshot: %w", err)
	}

	now := time.Now().Unix()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, owner_id, kind, status, input_snapshot, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)`,
		job.ID, job.OwnerID, string(job.Kind), string(domain.JobStatusPending), string(inputJSON), now, now,
	)
	if err != nil {
		return fmt.Errorf("create job %s: %w", job.ID, err)
	}
	return nil
}

// StatusTransition carries the optional timestamps/error set on a
// SetJobStatus call.
type StatusTransition struct {
	Started   bool
	Completed bool
	Error     *domain.JobError
}

// SetJobStatus transitions the job's status, conditional on the current
// status so a terminal→anything transition is rejected (terminal states
// are absorbing per spec §4.1).
func (s *Store) SetJobStatus(ctx context.Context, id string, status domain.JobStatus, t StatusTransition) error {
	current, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if current.Status.Terminal() {
		return nil // absorbing: silently no-op, matches idempotent re-invocation semantics
	}

	now := time.Now().Unix()
	args := []interface{}{string(status), now, now}
	setClauses := "status = ?, updated_at = ?, version = version + 1"

	if t.Started {
		setClauses += ", started_at = ?"
		args = append(args, now)
	}
	if t.Completed {
		setClauses += ", completed_at = ?"
		args = append(args, now)
	}
	if t.Error != nil {
		setClauses += ", failure_kind = ?, failure_detail = ?"
		args = append(args, t.Error.Kind, t.Error.Cause)
	}

	query := fmt.Sprintf("UPDATE jobs SET %s WHERE id = ?", setClauses)
	args = append(args, id)

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("set job status %s: %w", id, err)
	}
	return nil
}

// WriteJobPayload writes one of the four result payload fields. Safe under
// concurrent writes to distinct fields because each write is a single
// row-granularity UPDATE of one column.
func (s *Store) WriteJobPayload(ctx context.Context, id string, field PayloadField, value interface{}) error {
	valueJSON, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal payload field %s: %w", field, err)
	}

	query := fmt.Sprintf("UPDATE jobs SET %s = ?, updated_at = ?, version = version + 1 WHERE id = ?", string(field))
	if _, err := s.db.ExecContext(ctx, query, string(valueJSON), time.Now().Unix(), id); err != nil {
		return fmt.Errorf("write job payload %s/%s: %w", id, field, err)
	}
	return nil
}

// GetPortfolio reads the owner's accounts, positions, and the instrument
// universe those positions reference, all within a single transaction so
// the three reads are mutually consistent (§4.1 "Portfolio Snapshot
// Construction").
func (s *Store) GetPortfolio(ctx context.Context, ownerID string) ([]domain.Account, []domain.Position, map[string]domain.Instrument, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("begin portfolio read: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	accounts, err := queryAccounts(ctx, tx, ownerID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("query accounts for %s: %w", ownerID, err)
	}

	accountIDs := make([]string, len(accounts))
	for i, a := range accounts {
		accountIDs[i] = a.ID
	}

	positions, err := queryPositions(ctx, tx, accountIDs)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("query positions for %s: %w", ownerID, err)
	}

	symbols := make(map[string]struct{}, len(positions))
	for _, p := range positions {
		symbols[p.Symbol] = struct{}{}
	}

	instruments, err := queryInstruments(ctx, tx, symbols)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("query instruments for %s: %w", ownerID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, nil, fmt.Errorf("commit portfolio read: %w", err)
	}

	return accounts, positions, instruments, nil
}

func queryAccounts(ctx context.Context, tx *sql.Tx, ownerID string) ([]domain.Account, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, owner_id, name, currency, free_cash, cash_yield FROM accounts WHERE owner_id = ?`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var a domain.Account
		var name, currency string
		var cashYield sql.NullFloat64
		if err := rows.Scan(&a.ID, &a.OwnerID, &name, &currency, &a.CashBalance, &cashYield); err != nil {
			return nil, err
		}
		if cashYield.Valid {
			a.CashYieldRate = &cashYield.Float64
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func queryPositions(ctx context.Context, tx *sql.Tx, accountIDs []string) ([]domain.Position, error) {
	if len(accountIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(accountIDs))
	args := make([]interface{}, len(accountIDs))
	for i, id := range accountIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT account_id, isin, quantity, as_of FROM positions WHERE account_id IN (%s)`,
		joinPlaceholders(placeholders))

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		var asOf int64
		if err := rows.Scan(&p.AccountID, &p.Symbol, &p.Quantity, &asOf); err != nil {
			return nil, err
		}
		if asOf > 0 {
			p.AsOf = time.Unix(asOf, 0).UTC().Format(time.RFC3339)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func queryInstruments(ctx context.Context, tx *sql.Tx, symbols map[string]struct{}) (map[string]domain.Instrument, error) {
	result := make(map[string]domain.Instrument, len(symbols))
	if len(symbols) == 0 {
		return result, nil
	}

	placeholders := make([]string, 0, len(symbols))
	args := make([]interface{}, 0, len(symbols))
	for sym := range symbols {
		placeholders = append(placeholders, "?")
		args = append(args, sym)
	}

	query := fmt.Sprintf(`
		SELECT isin, name, classification, last_price FROM instruments WHERE isin IN (%s)`,
		joinPlaceholders(placeholders))

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			symbol, name   string
			classification sql.NullString
			lastPrice      sql.NullFloat64
		)
		if err := rows.Scan(&symbol, &name, &classification, &lastPrice); err != nil {
			return nil, err
		}

		inst := domain.Instrument{Symbol: symbol, DisplayName: name}
		if lastPrice.Valid {
			price := lastPrice.Float64
			inst.CurrentPrice = &price
		}
		if classification.Valid {
			var c classificationJSON
			if err := json.Unmarshal([]byte(classification.String), &c); err == nil {
				_ = json.Unmarshal(c.AssetClass, &inst.AssetClassMap)
				_ = json.Unmarshal(c.Region, &inst.RegionMap)
				_ = json.Unmarshal(c.Sector, &inst.SectorMap)
			}
		}
		result[symbol] = inst
	}
	return result, rows.Err()
}

func joinPlaceholders(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += ", " + p
	}
	return out
}

// UpsertInstruments replaces the allocation maps and metadata for each
// instrument, idempotent by symbol (§4.5, §8 round-trip property).
func (s *Store) UpsertInstruments(ctx context.Context, instruments []domain.Instrument) error {
	for _, inst := range instruments {
		assetClassJSON, err := json.Marshal(inst.AssetClassMap)
		if err != nil {
			return fmt.Errorf("marshal asset class map for %s: %w", inst.Symbol, err)
		}
		regionJSON, err := json.Marshal(inst.RegionMap)
		if err != nil {
			return fmt.Errorf("marshal region map for %s: %w", inst.Symbol, err)
		}
		sectorJSON, err := json.Marshal(inst.SectorMap)
		if err != nil {
			return fmt.Errorf("marshal sector map for %s: %w", inst.Symbol, err)
		}

		var price interface{}
		if inst.CurrentPrice != nil {
			price = *inst.CurrentPrice
		}

		_, err = s.db.ExecContext(ctx, `
			INSERT INTO instruments (isin, symbol, name, classification, last_price, last_price_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(isin) DO UPDATE SET
				symbol = excluded.symbol,
				name = excluded.name,
				classification = excluded.classification,
				last_price = COALESCE(excluded.last_price, instruments.last_price),
				last_price_at = COALESCE(excluded.last_price_at, instruments.last_price_at)`,
			inst.Symbol, inst.Symbol, inst.DisplayName,
			classificationJSON{AssetClass: assetClassJSON, Region: regionJSON, Sector: sectorJSON}.String(),
			price, nullableNow(price),
		)
		if err != nil {
			return fmt.Errorf("upsert instrument %s: %w", inst.Symbol, err)
		}
	}
	return nil
}

func nullableNow(price interface{}) interface{} {
	if price == nil {
		return nil
	}
	return time.Now().Unix()
}

// classificationJSON bundles the three allocation maps into the single
// `classification` TEXT column.
type classificationJSON struct {
	AssetClass json.RawMessage `json:"asset_class"`
	Region     json.RawMessage `json:"region"`
	Sector     json.RawMessage `json:"sector"`
}

func (c classificationJSON) String() string {
	b, _ := json.Marshal(c)
	return string(b)
}

// scanner abstracts *sql.Row and *sql.Rows for scanJob.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row scanner) (*domain.Job, error) {
	var (
		id, ownerID, kind, status, inputJSON                       string
		narrativeJSON, chartsJSON, projectionsJSON, summaryJSON    sql.NullString
		failureKind, failureDetail                                 sql.NullString
		createdAt, updatedAt                                       int64
		startedAt, completedAt                                     sql.NullInt64
		version                                                    int64
	)

	if err := row.Scan(&id, &ownerID, &kind, &status, &inputJSON,
		&narrativeJSON, &chartsJSON, &projectionsJSON, &summaryJSON,
		&failureKind, &failureDetail,
		&createdAt, &startedAt, &completedAt, &updatedAt, &version); err != nil {
		return nil, err
	}

	job := &domain.Job{
		ID:        id,
		OwnerID:   ownerID,
		Kind:      domain.JobKind(kind),
		Status:    domain.JobStatus(status),
		CreatedAt: time.Unix(createdAt, 0),
		UpdatedAt: time.Unix(updatedAt, 0),
		Version:   version,
	}

	if err := json.Unmarshal([]byte(inputJSON), &job.Input); err != nil {
		return nil, fmt.Errorf("unmarshal input snapshot: %w", err)
	}

	if startedAt.Valid {
		t := time.Unix(startedAt.Int64, 0)
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		job.CompletedAt = &t
	}

	if narrativeJSON.Valid {
		var p domain.NarrativePayload
		if err := json.Unmarshal([]byte(narrativeJSON.String), &p); err != nil {
			return nil, fmt.Errorf("unmarshal narrative payload: %w", err)
		}
		job.Narrative = &p
	}
	if chartsJSON.Valid {
		var p domain.ChartsPayload
		if err := json.Unmarshal([]byte(chartsJSON.String), &p); err != nil {
			return nil, fmt.Errorf("unmarshal charts payload: %w", err)
		}
		job.Charts = &p
	}
	if projectionsJSON.Valid {
		var p domain.ProjectionsPayload
		if err := json.Unmarshal([]byte(projectionsJSON.String), &p); err != nil {
			return nil, fmt.Errorf("unmarshal projections payload: %w", err)
		}
		job.Projections = &p
	}
	if summaryJSON.Valid {
		var p domain.SummaryPayload
		if err := json.Unmarshal([]byte(summaryJSON.String), &p); err != nil {
			return nil, fmt.Errorf("unmarshal summary payload: %w", err)
		}
		job.Summary = &p
	}

	if failureKind.Valid || failureDetail.Valid {
		job.Error = &domain.JobError{Kind: failureKind.String, Cause: failureDetail.String}
	}

	return job, nil
}
