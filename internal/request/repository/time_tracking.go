package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/reqflow/reqflow-backend/pkg/database"
	"github.com/reqflow/reqflow-backend/pkg/region"
)

// ActionTypeStarted is the default action type for a work interval.
const ActionTypeStarted = "started"

// TimeTrackingEntry is one work interval per (request, user, action
// type). Duration is always derived server-side from the wall-clock
// timestamps, never supplied by the caller.
type TimeTrackingEntry struct {
	ID              string     `db:"id" json:"id"`
	RequestID       string     `db:"request_id" json:"request_id"`
	UserID          int64      `db:"user_id" json:"user_id"`
	ActionType      string     `db:"action_type" json:"action_type"`
	Role            *string    `db:"role" json:"role,omitempty"`
	WorkflowStage   *string    `db:"workflow_stage" json:"workflow_stage,omitempty"`
	StartedAt       time.Time  `db:"started_at" json:"started_at"`
	EndedAt         *time.Time `db:"ended_at" json:"ended_at,omitempty"`
	DurationMinutes *int       `db:"duration_minutes" json:"duration_minutes,omitempty"`
	EfficiencyScore *float64   `db:"efficiency_score" json:"efficiency_score,omitempty"`
	QualityScore    *float64   `db:"quality_score" json:"quality_score,omitempty"`
	Notes           *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// TimeTrackingRepository handles per-request work interval persistence
type TimeTrackingRepository struct {
	router *region.Router
}

// NewTimeTrackingRepository creates a new time tracking repository
func NewTimeTrackingRepository(router *region.Router) *TimeTrackingRepository {
	return &TimeTrackingRepository{router: router}
}

// StartInput holds the parameters for opening a work interval.
type StartInput struct {
	RequestID     string
	UserID        int64
	Role          string
	ActionType    string
	WorkflowStage *string
	Notes         *string
}

// Start opens (or confirms) the work interval for the unique
// (request, user, action type) key. Re-starting never resets the clock:
// the original started_at survives, while workflow_stage and notes are
// refreshed when provided. Returns the interval id.
func (r *TimeTrackingRepository) Start(ctx context.Context, regionCode string, in StartInput) (string, error) {
	db, err := r.router.Pool(ctx, regionCode)
	if err != nil {
		return "", err
	}

	if in.ActionType == "" {
		in.ActionType = ActionTypeStarted
	}

	query := `
		INSERT INTO time_tracking (
			id, request_id, user_id, action_type, role, workflow_stage, notes, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (request_id, user_id, action_type) DO UPDATE SET
			workflow_stage = COALESCE(EXCLUDED.workflow_stage, time_tracking.workflow_stage),
			notes = COALESCE(EXCLUDED.notes, time_tracking.notes),
			updated_at = NOW()
		RETURNING id
	`

	var id string
	err = db.QueryRowxContext(ctx, query,
		uuid.New().String(), in.RequestID, in.UserID, in.ActionType,
		in.Role, in.WorkflowStage, in.Notes,
	).Scan(&id)
	if err != nil {
		return "", database.MapError(err)
	}

	return id, nil
}

// EndInput holds the parameters for closing a work interval.
type EndInput struct {
	RequestID       string
	UserID          int64
	ActionType      string
	EfficiencyScore *float64
	QualityScore    *float64
}

// End closes the interval idempotently: ended_at is set only if not
// already set, and duration_minutes is derived from the wall-clock delta
// only if not already populated. Scores are updated when provided and
// otherwise keep their prior values. Returns true iff the interval
// exists.
func (r *TimeTrackingRepository) End(ctx context.Context, regionCode string, in EndInput) (bool, error) {
	db, err := r.router.Pool(ctx, regionCode)
	if err != nil {
		return false, err
	}

	if in.ActionType == "" {
		in.ActionType = ActionTypeStarted
	}

	// SET expressions see the pre-update row, so the duration expression
	// closes over the same COALESCE(ended_at, NOW()) used for ended_at.
	query := `
		UPDATE time_tracking
		SET ended_at = COALESCE(ended_at, NOW()),
		    duration_minutes = COALESCE(duration_minutes,
		        CAST(EXTRACT(EPOCH FROM (COALESCE(ended_at, NOW()) - started_at)) / 60 AS INTEGER)),
		    efficiency_score = COALESCE($4, efficiency_score),
		    quality_score = COALESCE($5, quality_score),
		    updated_at = NOW()
		WHERE request_id = $1 AND user_id = $2 AND action_type = $3
	`

	result, err := db.ExecContext(ctx, query,
		in.RequestID, in.UserID, in.ActionType, in.EfficiencyScore, in.QualityScore,
	)
	if err != nil {
		return false, database.MapError(err)
	}

	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

const timeTrackingColumns = `id, request_id, user_id, action_type, role, workflow_stage,
	       started_at, ended_at, duration_minutes, efficiency_score, quality_score,
	       notes, created_at, updated_at`

// ListByRequest returns a request's full timeline in chronological order.
func (r *TimeTrackingRepository) ListByRequest(ctx context.Context, regionCode, requestID string) ([]*TimeTrackingEntry, error) {
	db, err := r.router.Pool(ctx, regionCode)
	if err != nil {
		return nil, err
	}

	var entries []*TimeTrackingEntry
	query := `
		SELECT ` + timeTrackingColumns + `
		FROM time_tracking
		WHERE request_id = $1
		ORDER BY started_at ASC, id ASC
	`

	if err := db.SelectContext(ctx, &entries, query, requestID); err != nil {
		return nil, database.MapError(err)
	}

	return entries, nil
}

// ListByUser returns a user's recent activity, newest first.
func (r *TimeTrackingRepository) ListByUser(ctx context.Context, regionCode string, userID int64, limit, offset int) ([]*TimeTrackingEntry, error) {
	db, err := r.router.Pool(ctx, regionCode)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 50
	}

	var entries []*TimeTrackingEntry
	query := `
		SELECT ` + timeTrackingColumns + `
		FROM time_tracking
		WHERE user_id = $1
		ORDER BY started_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	if err := db.SelectContext(ctx, &entries, query, userID, limit, offset); err != nil {
		return nil, database.MapError(err)
	}

	return entries, nil
}
