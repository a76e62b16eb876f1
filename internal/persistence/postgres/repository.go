// Package postgres implements workout persistence and reference data lookups on Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/workoutprocessor/internal/domain"
	"example.com/workoutprocessor/internal/observability"
)

const uniqueViolation = "23505"

const workoutColumns = 11

// Repository provides Postgres-backed persistence for workouts and their reference data.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Ping checks connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// FindExistingExternalIDs returns the subset of externalIDs already stored.
func (r *Repository) FindExistingExternalIDs(ctx context.Context, externalIDs []string) ([]string, error) {
	if len(externalIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT external_id FROM usr_workout WHERE external_id = ANY($1)`, externalIDs)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// FindActivePeriods returns active periods whose date range contains any of the query dates,
// ordered by start date then end date.
func (r *Repository) FindActivePeriods(ctx context.Context, query domain.PeriodQuery) ([]domain.Period, error) {
	if len(query.Dates) == 0 {
		return nil, nil
	}
	const stmt = `SELECT id, start_at, end_at
        FROM cfg_period p
        WHERE p.inactivated_at IS NULL
          AND EXISTS (SELECT 1 FROM unnest($1::date[]) AS d(day) WHERE d.day BETWEEN p.start_at AND p.end_at)
        ORDER BY p.start_at, p.end_at, p.id`

	rows, err := r.pool.Query(ctx, stmt, query.Dates)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Period, error) {
		p := domain.Period{Active: true}
		err := row.Scan(&p.ID, &p.StartAt, &p.EndAt)
		return p, err
	})
}

// FindActiveCategories returns active workout types matching any of the names, plus the sentinel.
func (r *Repository) FindActiveCategories(ctx context.Context, query domain.CategoryQuery) ([]domain.Category, error) {
	const stmt = `SELECT id, name
        FROM wrk_workout_type
        WHERE inactivated_at IS NULL AND (name = ANY($1) OR id = $2)
        ORDER BY id`

	names := query.Names
	if names == nil {
		names = []string{}
	}
	rows, err := r.pool.Query(ctx, stmt, names, query.SentinelID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Category, error) {
		c := domain.Category{Active: true}
		err := row.Scan(&c.ID, &c.Name)
		return c, err
	})
}

// FindUserIDByUsername implements domain.UserDirectory.
func (r *Repository) FindUserIDByUsername(ctx context.Context, username string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `SELECT id FROM usr_user WHERE username = $1`, username).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrUserNotFound
	}
	return id, err
}

// InsertWorkouts writes every record with one multi-row insert inside a transaction.
func (r *Repository) InsertWorkouts(ctx context.Context, workouts []domain.NewWorkout) (stored []domain.StoredWorkout, err error) {
	if len(workouts) == 0 {
		return nil, nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	stmt, args, err := buildInsert(workouts)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, stmt, args...)
	if err != nil {
		return nil, translateError(err)
	}
	type generated struct {
		id        int64
		createdAt time.Time
	}
	byExternal := make(map[string]generated, len(workouts))
	for rows.Next() {
		var (
			externalID string
			g          generated
		)
		if err = rows.Scan(&g.id, &externalID, &g.createdAt); err != nil {
			rows.Close()
			return nil, err
		}
		byExternal[externalID] = g
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, translateError(err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, translateError(err)
	}

	stored = make([]domain.StoredWorkout, 0, len(workouts))
	for _, w := range workouts {
		g := byExternal[w.ExternalID]
		stored = append(stored, domain.StoredWorkout{
			ID:           g.id,
			ExternalID:   w.ExternalID,
			UserID:       w.UserID,
			StartedAt:    w.StartedAt,
			EndedAt:      w.EndedAt,
			Duration:     w.Duration,
			Distance:     w.Distance,
			EnergyBurned: w.EnergyBurned,
			CategoryID:   w.CategoryID,
			PeriodID:     w.PeriodID,
			WorkoutName:  w.WorkoutName,
			Metadata:     w.Metadata,
			CreatedAt:    g.createdAt,
		})
	}
	observability.RecordWorkoutsPersisted(time.Now())
	return stored, nil
}

func buildInsert(workouts []domain.NewWorkout) (string, []any, error) {
	var b strings.Builder
	b.WriteString(`INSERT INTO usr_workout (external_id, user_id, started_at, ended_at, duration, distance, energy_burned, workout_type_id, period_id, workout_name, metadata) VALUES `)

	args := make([]any, 0, len(workouts)*workoutColumns)
	for i, w := range workouts {
		metadata, err := json.Marshal(w.Metadata)
		if err != nil {
			return "", nil, fmt.Errorf("encode metadata for %s: %w", w.ExternalID, err)
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := 0; c < workoutColumns; c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", i*workoutColumns+c+1)
		}
		b.WriteByte(')')
		args = append(args,
			w.ExternalID,
			w.UserID,
			w.StartedAt,
			w.EndedAt,
			w.Duration,
			w.Distance,
			w.EnergyBurned,
			w.CategoryID,
			w.PeriodID,
			w.WorkoutName,
			metadata,
		)
	}
	b.WriteString(` RETURNING id, external_id, created_at`)
	return b.String(), args, nil
}

func translateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateWorkout, pgErr.Detail)
	}
	return err
}
