package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/reqflow/reqflow-backend/pkg/database"
	"github.com/reqflow/reqflow-backend/pkg/region"
)

// DailyStatistics is one rollup row per calendar date. Upserts replace
// every measure for the date: the caller recomputes totals in full
// rather than sending increments.
type DailyStatistics struct {
	ID                   string    `db:"id" json:"id"`
	StatDate             time.Time `db:"stat_date" json:"stat_date"`
	TotalRequests        int       `db:"total_requests" json:"total_requests"`
	CompletedRequests    int       `db:"completed_requests" json:"completed_requests"`
	CancelledRequests    int       `db:"cancelled_requests" json:"cancelled_requests"`
	PendingRequests      int       `db:"pending_requests" json:"pending_requests"`
	TotalDurationMinutes int       `db:"total_duration_minutes" json:"total_duration_minutes"`
	ActiveEmployees      int       `db:"active_employees" json:"active_employees"`
	AverageRating        *float64  `db:"average_rating" json:"average_rating,omitempty"`
	CompletionRate       *float64  `db:"completion_rate" json:"completion_rate,omitempty"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// EmployeePerformance is one rollup row per (user, date). Numeric
// counters are replaced on every upsert; role and notes keep their
// existing values when the new ones are absent.
type EmployeePerformance struct {
	ID                       string    `db:"id" json:"id"`
	UserID                   int64     `db:"user_id" json:"user_id"`
	StatDate                 time.Time `db:"stat_date" json:"stat_date"`
	Role                     *string   `db:"role" json:"role,omitempty"`
	RequestsHandled          int       `db:"requests_handled" json:"requests_handled"`
	RequestsCompleted        int       `db:"requests_completed" json:"requests_completed"`
	TotalMinutes             int       `db:"total_minutes" json:"total_minutes"`
	AverageMinutesPerRequest *float64  `db:"average_minutes_per_request" json:"average_minutes_per_request,omitempty"`
	EfficiencyScore          *float64  `db:"efficiency_score" json:"efficiency_score,omitempty"`
	QualityScore             *float64  `db:"quality_score" json:"quality_score,omitempty"`
	Notes                    *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt                time.Time `db:"created_at" json:"created_at"`
	UpdatedAt                time.Time `db:"updated_at" json:"updated_at"`
}

// StatisticsRepository handles the daily and per-employee rollups
type StatisticsRepository struct {
	router *region.Router
}

// NewStatisticsRepository creates a new statistics repository
func NewStatisticsRepository(router *region.Router) *StatisticsRepository {
	return &StatisticsRepository{router: router}
}

// GetDaily returns the rollup for a date, or nil when none exists.
func (r *StatisticsRepository) GetDaily(ctx context.Context, regionCode string, date time.Time) (*DailyStatistics, error) {
	db, err := r.router.Pool(ctx, regionCode)
	if err != nil {
		return nil, err
	}

	var stats DailyStatistics
	query := `
		SELECT id, stat_date, total_requests, completed_requests, cancelled_requests,
		       pending_requests, total_duration_minutes, active_employees,
		       average_rating, completion_rate, created_at, updated_at
		FROM daily_statistics
		WHERE stat_date = $1
	`

	err = db.GetContext(ctx, &stats, query, dateOnly(date))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.MapError(err)
	}

	return &stats, nil
}

// UpsertDaily stores the rollup for a date, replacing every measure on
// conflict. Idempotent recompute: not an accumulator.
func (r *StatisticsRepository) UpsertDaily(ctx context.Context, regionCode string, stats *DailyStatistics) error {
	db, err := r.router.Pool(ctx, regionCode)
	if err != nil {
		return err
	}

	if stats.ID == "" {
		stats.ID = uuid.New().String()
	}

	query := `
		INSERT INTO daily_statistics (
			id, stat_date, total_requests, completed_requests, cancelled_requests,
			pending_requests, total_duration_minutes, active_employees,
			average_rating, completion_rate
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (stat_date) DO UPDATE SET
			total_requests = EXCLUDED.total_requests,
			completed_requests = EXCLUDED.completed_requests,
			cancelled_requests = EXCLUDED.cancelled_requests,
			pending_requests = EXCLUDED.pending_requests,
			total_duration_minutes = EXCLUDED.total_duration_minutes,
			active_employees = EXCLUDED.active_employees,
			average_rating = EXCLUDED.average_rating,
			completion_rate = EXCLUDED.completion_rate,
			updated_at = NOW()
	`

	_, err = db.ExecContext(ctx, query,
		stats.ID, dateOnly(stats.StatDate), stats.TotalRequests, stats.CompletedRequests,
		stats.CancelledRequests, stats.PendingRequests, stats.TotalDurationMinutes,
		stats.ActiveEmployees, stats.AverageRating, stats.CompletionRate,
	)
	if err != nil {
		return database.MapError(err)
	}

	return nil
}

// GetEmployeePerformance returns the (user, date) rollup, or nil when
// none exists.
func (r *StatisticsRepository) GetEmployeePerformance(ctx context.Context, regionCode string, userID int64, date time.Time) (*EmployeePerformance, error) {
	db, err := r.router.Pool(ctx, regionCode)
	if err != nil {
		return nil, err
	}

	var perf EmployeePerformance
	query := `
		SELECT id, user_id, stat_date, role, requests_handled, requests_completed,
		       total_minutes, average_minutes_per_request, efficiency_score,
		       quality_score, notes, created_at, updated_at
		FROM employee_performance
		WHERE user_id = $1 AND stat_date = $2
	`

	err = db.GetContext(ctx, &perf, query, userID, dateOnly(date))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.MapError(err)
	}

	return &perf, nil
}

// UpsertEmployeePerformance stores the (user, date) rollup. Numeric
// counters are replaced unconditionally; role and notes keep existing
// values when the new ones are absent, so a partial recompute does not
// blank out previously recorded context.
func (r *StatisticsRepository) UpsertEmployeePerformance(ctx context.Context, regionCode string, perf *EmployeePerformance) error {
	db, err := r.router.Pool(ctx, regionCode)
	if err != nil {
		return err
	}

	if perf.ID == "" {
		perf.ID = uuid.New().String()
	}

	query := `
		INSERT INTO employee_performance (
			id, user_id, stat_date, role, requests_handled, requests_completed,
			total_minutes, average_minutes_per_request, efficiency_score,
			quality_score, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id, stat_date) DO UPDATE SET
			role = COALESCE(EXCLUDED.role, employee_performance.role),
			requests_handled = EXCLUDED.requests_handled,
			requests_completed = EXCLUDED.requests_completed,
			total_minutes = EXCLUDED.total_minutes,
			average_minutes_per_request = EXCLUDED.average_minutes_per_request,
			efficiency_score = EXCLUDED.efficiency_score,
			quality_score = EXCLUDED.quality_score,
			notes = COALESCE(EXCLUDED.notes, employee_performance.notes),
			updated_at = NOW()
	`

	_, err = db.ExecContext(ctx, query,
		perf.ID, perf.UserID, dateOnly(perf.StatDate), perf.Role,
		perf.RequestsHandled, perf.RequestsCompleted, perf.TotalMinutes,
		perf.AverageMinutesPerRequest, perf.EfficiencyScore, perf.QualityScore, perf.Notes,
	)
	if err != nil {
		return database.MapError(err)
	}

	return nil
}

// CollectDaily recomputes the daily measures for a date from the
// request store and the time tracking log. The result is not persisted;
// pass it to UpsertDaily.
func (r *StatisticsRepository) CollectDaily(ctx context.Context, regionCode string, date time.Time) (*DailyStatistics, error) {
	db, err := r.router.Pool(ctx, regionCode)
	if err != nil {
		return nil, err
	}

	day := dateOnly(date)
	next := day.AddDate(0, 0, 1)

	var requests struct {
		Total         int      `db:"total_requests"`
		Completed     int      `db:"completed_requests"`
		Cancelled     int      `db:"cancelled_requests"`
		Pending       int      `db:"pending_requests"`
		AverageRating *float64 `db:"average_rating"`
	}
	requestQuery := `
		SELECT COUNT(*) AS total_requests,
		       COUNT(*) FILTER (WHERE current_status = 'completed') AS completed_requests,
		       COUNT(*) FILTER (WHERE current_status = 'cancelled') AS cancelled_requests,
		       COUNT(*) FILTER (WHERE current_status NOT IN ('completed', 'cancelled')) AS pending_requests,
		       AVG(completion_rating) AS average_rating
		FROM service_requests
		WHERE created_at >= $1 AND created_at < $2
	`
	if err := db.GetContext(ctx, &requests, requestQuery, day, next); err != nil {
		return nil, database.MapError(err)
	}

	var tracking struct {
		TotalMinutes    int `db:"total_minutes"`
		ActiveEmployees int `db:"active_employees"`
	}
	trackingQuery := `
		SELECT COALESCE(SUM(duration_minutes), 0) AS total_minutes,
		       COUNT(DISTINCT user_id) AS active_employees
		FROM time_tracking
		WHERE started_at >= $1 AND started_at < $2
	`
	if err := db.GetContext(ctx, &tracking, trackingQuery, day, next); err != nil {
		return nil, database.MapError(err)
	}

	stats := &DailyStatistics{
		StatDate:             day,
		TotalRequests:        requests.Total,
		CompletedRequests:    requests.Completed,
		CancelledRequests:    requests.Cancelled,
		PendingRequests:      requests.Pending,
		TotalDurationMinutes: tracking.TotalMinutes,
		ActiveEmployees:      tracking.ActiveEmployees,
		AverageRating:        requests.AverageRating,
	}
	if requests.Total > 0 {
		rate := float64(requests.Completed) / float64(requests.Total)
		stats.CompletionRate = &rate
	}

	return stats, nil
}

// CollectEmployeePerformance recomputes one user's measures for a date
// from the time tracking log. Role is taken from the user's most recent
// interval that day, so a missing role never blanks a stored one on
// upsert.
func (r *StatisticsRepository) CollectEmployeePerformance(ctx context.Context, regionCode string, userID int64, date time.Time) (*EmployeePerformance, error) {
	db, err := r.router.Pool(ctx, regionCode)
	if err != nil {
		return nil, err
	}

	day := dateOnly(date)
	next := day.AddDate(0, 0, 1)

	var measures struct {
		Handled      int      `db:"requests_handled"`
		Completed    int      `db:"requests_completed"`
		TotalMinutes int      `db:"total_minutes"`
		Average      *float64 `db:"average_minutes_per_request"`
		Role         *string  `db:"role"`
	}
	query := `
		SELECT COUNT(*) AS requests_handled,
		       COUNT(*) FILTER (WHERE ended_at IS NOT NULL) AS requests_completed,
		       COALESCE(SUM(duration_minutes), 0) AS total_minutes,
		       AVG(duration_minutes) AS average_minutes_per_request,
		       (SELECT role FROM time_tracking
		        WHERE user_id = $1 AND started_at >= $2 AND started_at < $3
		        ORDER BY started_at DESC LIMIT 1) AS role
		FROM time_tracking
		WHERE user_id = $1 AND started_at >= $2 AND started_at < $3
	`
	if err := db.GetContext(ctx, &measures, query, userID, day, next); err != nil {
		return nil, database.MapError(err)
	}

	return &EmployeePerformance{
		UserID:                   userID,
		StatDate:                 day,
		Role:                     measures.Role,
		RequestsHandled:          measures.Handled,
		RequestsCompleted:        measures.Completed,
		TotalMinutes:             measures.TotalMinutes,
		AverageMinutesPerRequest: measures.Average,
	}, nil
}

// dateOnly truncates a timestamp to its calendar date in UTC.
func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
