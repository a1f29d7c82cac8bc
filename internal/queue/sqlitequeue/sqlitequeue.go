// Package sqlitequeue is a SQLite-backed queue.Consumer/Producer,
// structured like the teacher's internal/database + repository pattern:
// a constructor over *sql.DB, fmt.Errorf(...: %w) wrapping, zerolog for
// diagnostics.
package sqlitequeue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/arcfin/planner/internal/queue"
)

// Queue implements queue.Consumer and queue.Producer against the
// queue_messages/dead_letters tables in planner_schema.sql.
type Queue struct {
	db        *sql.DB
	log       zerolog.Logger
	pollEvery time.Duration
}

// New creates a Queue over an already-migrated database connection.
// pollEvery controls how often a blocked Receive rechecks for newly
// available messages.
func New(db *sql.DB, log zerolog.Logger, pollEvery time.Duration) *Queue {
	if pollEvery <= 0 {
		pollEvery = 200 * time.Millisecond
	}
	return &Queue{
		db:        db,
		log:       log.With().Str("component", "sqlitequeue").Logger(),
		pollEvery: pollEvery,
	}
}

// Enqueue inserts a new message available immediately, at attempt 1.
func (q *Queue) Enqueue(ctx context.Context, jobID string) error {
	now := time.Now().Unix()
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO queue_messages (job_id, attempt, available_at, created_at)
		VALUES (?, 1, ?, ?)`, jobID, now, now)
	if err != nil {
		return fmt.Errorf("enqueue job %s: %w", jobID, err)
	}
	return nil
}

// Receive polls for the oldest available message, claiming it by deleting
// its row; a DELETE that affects no row means another consumer claimed it
// first, so two consumers never both claim the same row. Blocks until a
// message is available or ctx is done.
func (q *Queue) Receive(ctx context.Context) (*queue.Message, error) {
	ticker := time.NewTicker(q.pollEvery)
	defer ticker.Stop()

	for {
		msg, id, err := q.peekAvailable(ctx)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			if err := q.claim(ctx, id); err != nil {
				// Another consumer won the race; try again next tick.
				q.log.Debug().Err(err).Int64("row_id", id).Msg("lost claim race, retrying")
			} else {
				return msg, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (q *Queue) peekAvailable(ctx context.Context) (*queue.Message, int64, error) {
	var id int64
	var jobID string
	var attempt int

	err := q.db.QueryRowContext(ctx, `
		SELECT id, job_id, attempt FROM queue_messages
		WHERE available_at <= ?
		ORDER BY available_at ASC, id ASC
		LIMIT 1`, time.Now().Unix()).Scan(&id, &jobID, &attempt)
	if err == sql.ErrNoRows {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("peek available message: %w", err)
	}

	return &queue.Message{JobID: jobID, Attempt: attempt}, id, nil
}

func (q *Queue) claim(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM queue_messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("claim message %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim message %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("claim message %d: already claimed", id)
	}
	return nil
}

// Ack is a no-op: Receive already removed the row via claim.
func (q *Queue) Ack(ctx context.Context, msg *queue.Message) error {
	return nil
}

// Nack re-inserts the message with Attempt incremented, available
// immediately for redelivery.
func (q *Queue) Nack(ctx context.Context, msg *queue.Message) error {
	now := time.Now().Unix()
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO queue_messages (job_id, attempt, available_at, created_at)
		VALUES (?, ?, ?, ?)`, msg.JobID, msg.Attempt+1, now, now)
	if err != nil {
		return fmt.Errorf("nack job %s: %w", msg.JobID, err)
	}
	return nil
}

// DeadLetter records the message in the dead_letters table instead of
// requeuing it.
func (q *Queue) DeadLetter(ctx context.Context, msg *queue.Message, reason string) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO dead_letters (job_id, attempt, reason, created_at)
		VALUES (?, ?, ?, ?)`, msg.JobID, msg.Attempt, reason, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("dead-letter job %s: %w", msg.JobID, err)
	}
	return nil
}
