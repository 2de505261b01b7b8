package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careerforge/ai-gateway/internal/adapter/repo/postgres"
)

func TestUsageRepo_IncrementOrCreate(t *testing.T) {
	t.Parallel()
	pool := &poolStub{}
	repo := postgres.NewUsageRepo(pool)

	err := repo.IncrementOrCreate(context.Background(), "u1", "salary_analysis", "2026-08", 1, 420)
	require.NoError(t, err)
	require.Len(t, pool.execSQL, 1)
	assert.Contains(t, pool.execSQL[0], "ON CONFLICT (user_id, operation, month_key)")
	assert.Contains(t, pool.execSQL[0], "ai_usage.requests + EXCLUDED.requests")
	assert.Equal(t, "u1", pool.execArgs[0][0])
	assert.Equal(t, int64(1), pool.execArgs[0][3])
	assert.Equal(t, int64(420), pool.execArgs[0][4])
}

func TestUsageRepo_IncrementOrCreate_Error(t *testing.T) {
	t.Parallel()
	pool := &poolStub{execErr: errors.New("deadlock detected")}
	repo := postgres.NewUsageRepo(pool)

	err := repo.IncrementOrCreate(context.Background(), "u1", "salary_analysis", "2026-08", 1, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=usage.increment")
}

func TestUsageRepo_Get_Existing(t *testing.T) {
	t.Parallel()
	last := time.Now().UTC()
	pool := &poolStub{row: rowStub{scan: func(dest ...any) error {
		*dest[0].(*string) = "u1"
		*dest[1].(*string) = "salary_analysis"
		*dest[2].(*string) = "2026-08"
		*dest[3].(*int64) = 7
		*dest[4].(*int64) = 9000
		*dest[5].(*time.Time) = last
		return nil
	}}}
	repo := postgres.NewUsageRepo(pool)

	rec, err := repo.Get(context.Background(), "u1", "salary_analysis", "2026-08")
	require.NoError(t, err)
	assert.Equal(t, int64(7), rec.Requests)
	assert.Equal(t, int64(9000), rec.Tokens)
}

func TestUsageRepo_Get_MissingIsZeroRecord(t *testing.T) {
	t.Parallel()
	pool := &poolStub{row: rowStub{scan: func(_ ...any) error { return pgx.ErrNoRows }}}
	repo := postgres.NewUsageRepo(pool)

	rec, err := repo.Get(context.Background(), "u1", "resume_parsing", "2026-08")
	require.NoError(t, err)
	assert.Equal(t, int64(0), rec.Requests)
	assert.Equal(t, "u1", rec.UserID)
	assert.Equal(t, "resume_parsing", rec.Operation)
	assert.Equal(t, "2026-08", rec.MonthKey)
}

func TestUsageRepo_ListForUser(t *testing.T) {
	t.Parallel()
	mk := func(op string, reqs int64) func(dest ...any) error {
		return func(dest ...any) error {
			*dest[0].(*string) = "u1"
			*dest[1].(*string) = op
			*dest[2].(*string) = "2026-08"
			*dest[3].(*int64) = reqs
			*dest[4].(*int64) = reqs * 100
			*dest[5].(*time.Time) = time.Now().UTC()
			return nil
		}
	}
	pool := &poolStub{rows: &rowsStub{rows: []func(dest ...any) error{
		mk("resume_parsing", 3),
		mk("salary_analysis", 5),
	}}}
	repo := postgres.NewUsageRepo(pool)

	recs, err := repo.ListForUser(context.Background(), "u1", "2026-08")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "resume_parsing", recs[0].Operation)
	assert.Equal(t, int64(5), recs[1].Requests)
}

func TestUsageRepo_ListForUser_QueryError(t *testing.T) {
	t.Parallel()
	pool := &poolStub{queryErr: errors.New("relation does not exist")}
	repo := postgres.NewUsageRepo(pool)

	_, err := repo.ListForUser(context.Background(), "u1", "2026-08")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=usage.list")
}
