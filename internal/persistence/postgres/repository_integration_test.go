//go:build integration

package postgres

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/workoutprocessor/internal/domain"
)

func TestRepositoryResolvesReferenceDataAndInserts(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := NewRepository(pool)

	seed(t, ctx, pool,
		`INSERT INTO usr_user (id, username) VALUES (42, 'jane')`,
		`INSERT INTO wrk_workout_type (id, name) VALUES (1, 'Other'), (2, 'Running'), (3, 'Cycling')`,
		`INSERT INTO wrk_workout_type (id, name, inactivated_at) VALUES (4, 'Yoga', NOW())`,
		`INSERT INTO cfg_period (id, start_at, end_at) VALUES (10, '2024-01-01', '2024-03-31'), (11, '2024-01-01', '2024-01-31'), (12, '2024-02-01', '2024-02-29')`,
		`INSERT INTO cfg_period (id, start_at, end_at, inactivated_at) VALUES (13, '2024-01-01', '2024-12-31', NOW())`,
	)

	userID, err := repo.FindUserIDByUsername(ctx, "jane")
	require.NoError(t, err)
	require.Equal(t, int64(42), userID)

	_, err = repo.FindUserIDByUsername(ctx, "nobody")
	require.ErrorIs(t, err, domain.ErrUserNotFound)

	periods, err := repo.FindActivePeriods(ctx, domain.PeriodQuery{Dates: []time.Time{
		time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC),
	}})
	require.NoError(t, err)
	require.Len(t, periods, 2)
	require.Equal(t, int64(11), periods[0].ID, "same start, earlier end first")
	require.Equal(t, int64(10), periods[1].ID)
	require.True(t, periods[0].Active)

	categories, err := repo.FindActiveCategories(ctx, domain.CategoryQuery{Names: []string{"Running", "Yoga", "Rowing"}, SentinelID: 1})
	require.NoError(t, err)
	require.Len(t, categories, 2)
	require.Equal(t, "Other", categories[0].Name)
	require.Equal(t, "Running", categories[1].Name)

	distance := 5.25
	name := "Rowing"
	started := time.Date(2024, time.January, 31, 7, 30, 0, 0, time.UTC)
	stored, err := repo.InsertWorkouts(ctx, []domain.NewWorkout{
		{ExternalID: "ext-1", UserID: 42, StartedAt: started, EndedAt: started.Add(time.Hour), Duration: 60, Distance: &distance,
			EnergyBurned: 320.5, CategoryID: 2, PeriodID: 11, Metadata: domain.WorkoutMetadata{CorrelationID: "corr-1"}},
		{ExternalID: "ext-2", UserID: 42, StartedAt: started, EndedAt: started.Add(time.Hour), Duration: 30,
			EnergyBurned: 99.99, CategoryID: 1, PeriodID: 11, WorkoutName: &name},
	})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.Equal(t, "ext-1", stored[0].ExternalID)
	require.NotZero(t, stored[0].ID)
	require.NotEqual(t, stored[0].ID, stored[1].ID)
	require.False(t, stored[0].CreatedAt.IsZero())

	var (
		storedDistance *float64
		workoutName    *string
		correlation    string
	)
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT distance, workout_name, metadata->>'correlationId' FROM usr_workout WHERE external_id = 'ext-1'`,
	).Scan(&storedDistance, &workoutName, &correlation))
	require.NotNil(t, storedDistance)
	require.InDelta(t, 5.25, *storedDistance, 0.0001)
	require.Nil(t, workoutName)
	require.Equal(t, "corr-1", correlation)

	existing, err := repo.FindExistingExternalIDs(ctx, []string{"ext-1", "ext-3"})
	require.NoError(t, err)
	require.Equal(t, []string{"ext-1"}, existing)
}

func TestRepositoryInsertIsAtomicOnDuplicate(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := NewRepository(pool)

	seed(t, ctx, pool,
		`INSERT INTO usr_user (id, username) VALUES (42, 'jane')`,
		`INSERT INTO wrk_workout_type (id, name) VALUES (1, 'Other')`,
		`INSERT INTO cfg_period (id, start_at, end_at) VALUES (10, '2024-01-01', '2024-01-31')`,
	)

	started := time.Date(2024, time.January, 15, 7, 30, 0, 0, time.UTC)
	record := func(id string) domain.NewWorkout {
		return domain.NewWorkout{ExternalID: id, UserID: 42, StartedAt: started, EndedAt: started, Duration: 1, EnergyBurned: 1, CategoryID: 1, PeriodID: 10}
	}

	_, err := repo.InsertWorkouts(ctx, []domain.NewWorkout{record("dup")})
	require.NoError(t, err)

	_, err = repo.InsertWorkouts(ctx, []domain.NewWorkout{record("fresh"), record("dup")})
	require.ErrorIs(t, err, domain.ErrDuplicateWorkout)

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM usr_workout`).Scan(&count))
	require.Equal(t, 1, count, "failed batch must not leave partial rows")
}

func setupPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("workouts"),
		postgrescontainer.WithUsername("platform"),
		postgrescontainer.WithPassword("platform"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	contents, err := os.ReadFile(resolvePath(t, "../../../db/postgres/migrations/0001_init.up.sql"))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(contents))
	require.NoError(t, err)
	return pool
}

func seed(t *testing.T, ctx context.Context, pool *pgxpool.Pool, statements ...string) {
	t.Helper()
	for _, stmt := range statements {
		_, err := pool.Exec(ctx, stmt)
		require.NoError(t, err, stmt)
	}
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
