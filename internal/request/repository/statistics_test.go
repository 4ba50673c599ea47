package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/reqflow/reqflow-backend/internal/request/repository"
	"github.com/reqflow/reqflow-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatisticsRepository_UpsertDaily_FullReplace(t *testing.T) {
	ctx := context.Background()
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	router := testutil.RegionRouter(t, "tashkent", mockDB)
	repo := repository.NewStatisticsRepository(router)

	statDate := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	rating := 4.5
	rate := 0.8

	mockDB.Mock.ExpectExec(`ON CONFLICT \(stat_date\) DO UPDATE SET\s+total_requests = EXCLUDED\.total_requests`).
		WithArgs(testutil.AnyUUID{}, statDate, 10, 8, 1, 1, 420, 5, rating, rate).
		WillReturnResult(testutil.NewResult(0, 1))

	err := repo.UpsertDaily(ctx, "tashkent", &repository.DailyStatistics{
		// Timestamps are truncated to the calendar date before writing.
		StatDate:             statDate.Add(13*time.Hour + 45*time.Minute),
		TotalRequests:        10,
		CompletedRequests:    8,
		CancelledRequests:    1,
		PendingRequests:      1,
		TotalDurationMinutes: 420,
		ActiveEmployees:      5,
		AverageRating:        &rating,
		CompletionRate:       &rate,
	})
	require.NoError(t, err)

	mockDB.ExpectationsWereMet(t)
}

func TestStatisticsRepository_GetDaily_NoneIsNil(t *testing.T) {
	ctx := context.Background()
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	router := testutil.RegionRouter(t, "tashkent", mockDB)
	repo := repository.NewStatisticsRepository(router)

	statDate := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	mockDB.Mock.ExpectQuery(`FROM daily_statistics\s+WHERE stat_date = \$1`).
		WithArgs(statDate).
		WillReturnRows(testutil.MockRows("id"))

	stats, err := repo.GetDaily(ctx, "tashkent", statDate)
	require.NoError(t, err, "no rollup yet is not an error")
	assert.Nil(t, stats)

	mockDB.ExpectationsWereMet(t)
}

func TestStatisticsRepository_UpsertEmployeePerformance_MergeSemantics(t *testing.T) {
	ctx := context.Background()
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	router := testutil.RegionRouter(t, "tashkent", mockDB)
	repo := repository.NewStatisticsRepository(router)

	statDate := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	avg := 52.5

	// Counters are replaced unconditionally; absent role and notes keep
	// their stored values through the COALESCE arms.
	mockDB.Mock.ExpectExec(`role = COALESCE\(EXCLUDED\.role, employee_performance\.role\)`).
		WithArgs(testutil.AnyUUID{}, int64(42), statDate, nil, 8, 7, 420, avg, nil, nil, nil).
		WillReturnResult(testutil.NewResult(0, 1))

	err := repo.UpsertEmployeePerformance(ctx, "tashkent", &repository.EmployeePerformance{
		UserID:                   42,
		StatDate:                 statDate,
		RequestsHandled:          8,
		RequestsCompleted:        7,
		TotalMinutes:             420,
		AverageMinutesPerRequest: &avg,
	})
	require.NoError(t, err)

	mockDB.ExpectationsWereMet(t)
}

func TestStatisticsRepository_GetEmployeePerformance(t *testing.T) {
	ctx := context.Background()
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	router := testutil.RegionRouter(t, "tashkent", mockDB)
	repo := repository.NewStatisticsRepository(router)

	statDate := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()
	rows := testutil.MockRows(
		"id", "user_id", "stat_date", "role", "requests_handled", "requests_completed",
		"total_minutes", "average_minutes_per_request", "efficiency_score",
		"quality_score", "notes", "created_at", "updated_at",
	).AddRow("perf-1", int64(42), statDate, "technician", 8, 7, 420, 52.5, nil, nil, nil, now, now)

	mockDB.Mock.ExpectQuery(`FROM employee_performance\s+WHERE user_id = \$1 AND stat_date = \$2`).
		WithArgs(int64(42), statDate).
		WillReturnRows(rows)

	perf, err := repo.GetEmployeePerformance(ctx, "tashkent", 42, statDate)
	require.NoError(t, err)
	require.NotNil(t, perf)
	assert.Equal(t, 8, perf.RequestsHandled)
	assert.Equal(t, "technician", *perf.Role)

	mockDB.ExpectationsWereMet(t)
}
