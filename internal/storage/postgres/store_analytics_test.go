package postgres

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestDailyRiskTrendScansLevelBuckets(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := New(db)

	since := time.Now().UTC().AddDate(0, 0, -7)
	day := time.Now().UTC()
	mock.ExpectQuery(`SELECT date_trunc\('day', ra.updated_at\)`).
		WithArgs("org1", since).
		WillReturnRows(sqlmock.NewRows([]string{"day", "low", "medium", "high", "critical", "average_score"}).
			AddRow(day, 2, 1, 0, 1, 42.5))

	rows, err := store.DailyRiskTrend(context.Background(), "org1", since)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 2, rows[0].Low)
	require.Equal(t, 1, rows[0].Critical)
	require.InDelta(t, 42.5, rows[0].AverageScore, 0.001)
}

func TestTopRiskAutomationsScansOrderedRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := New(db)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT a.id, a.name, c.platform, ra.level, ra.score, a.last_seen_at`).
		WithArgs("org1", 5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "platform", "level", "score", "last_seen_at"}).
			AddRow("a1", "Nightly sync", "slack", "critical", 91, now))

	rows, err := store.TopRiskAutomations(context.Background(), "org1", 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "a1", rows[0].AutomationID)
	require.Equal(t, "critical", rows[0].Level)
}

func TestDistinctAffectedUsersExcludesEmptyOwners(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := New(db)

	mock.ExpectQuery(`SELECT count\(DISTINCT owner_identity\) FROM discovered_automations`).
		WithArgs("org1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := store.DistinctAffectedUsers(context.Background(), "org1")
	require.NoError(t, err)
	require.Equal(t, 3, count)
}
