package deadletter

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps entries in the workout_event_dlq table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore initialises a store backed by the provided connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Write records a failed message alongside the supplied reason. It is due for replay immediately.
func (s *PostgresStore) Write(ctx context.Context, entry Entry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO workout_event_dlq (topic, partition, record_offset, message_key, event_type, correlation_id, payload, reason, retryable, retry_count, next_retry_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, NOW())`,
		entry.Topic, entry.Partition, entry.Offset, entry.Key, entry.EventType, entry.CorrelationID, entry.Payload, entry.Reason, entry.Retryable, entry.RetryCount,
	)
	if err != nil {
		return fmt.Errorf("deadletter: write entry (topic=%s, offset=%d): %w", entry.Topic, entry.Offset, err)
	}
	recordWritten(entry)
	return nil
}

// Due implements Store.
func (s *PostgresStore) Due(ctx context.Context, limit int) ([]Entry, error) {
	const query = `SELECT dlq_id, topic, partition, record_offset, message_key, event_type, correlation_id, payload, reason, retryable, retry_count, created_at
          FROM workout_event_dlq
         WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= NOW())
         ORDER BY created_at, dlq_id
         LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("deadletter: query due entries: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("deadletter: scan due entries: %w", err)
	}
	return entries, nil
}

// Reschedule bumps the retry count and pushes the next attempt out by delay.
func (s *PostgresStore) Reschedule(ctx context.Context, id int64, delay time.Duration, reason string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE workout_event_dlq
            SET retry_count = retry_count + 1,
                last_attempt_at = NOW(),
                next_retry_at = NOW() + $1::interval,
                reason = $2
          WHERE dlq_id = $3`,
		delay, reason, id,
	)
	return err
}

// Quarantine parks an entry for manual investigation.
func (s *PostgresStore) Quarantine(ctx context.Context, id int64, reason string) error {
	_, err := s.pool.Exec(ctx, `UPDATE workout_event_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`, reason, id)
	return err
}

// Delete removes a replayed entry.
func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM workout_event_dlq WHERE dlq_id = $1`, id)
	return err
}

// Backlog counts entries that are not quarantined.
func (s *PostgresStore) Backlog(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM workout_event_dlq WHERE quarantined_at IS NULL`).Scan(&count)
	return count, err
}

func scanEntry(row pgx.CollectableRow) (Entry, error) {
	var entry Entry
	err := row.Scan(&entry.ID, &entry.Topic, &entry.Partition, &entry.Offset, &entry.Key, &entry.EventType, &entry.CorrelationID,
		&entry.Payload, &entry.Reason, &entry.Retryable, &entry.RetryCount, &entry.CreatedAt)
	return entry, err
}
