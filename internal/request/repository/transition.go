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

// StateTransition is one immutable record of a handoff or action applied
// to a service request. Transitions are append-only: they are never
// updated or deleted, and the log does not judge whether a transition is
// legal. Workflow policy belongs to the caller.
type StateTransition struct {
	ID             string    `db:"id" json:"id"`
	RequestID      string    `db:"request_id" json:"request_id"`
	FromRole       *string   `db:"from_role" json:"from_role,omitempty"`
	ToRole         string    `db:"to_role" json:"to_role"`
	Action         string    `db:"action" json:"action"`
	ActorID        *int64    `db:"actor_id" json:"actor_id,omitempty"`
	TransitionData JSONMap   `db:"transition_data" json:"transition_data"`
	Comments       *string   `db:"comments" json:"comments,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// TransitionRepository handles the append-only state transition log
type TransitionRepository struct {
	router *region.Router
}

// NewTransitionRepository creates a new transition log repository
func NewTransitionRepository(router *region.Router) *TransitionRepository {
	return &TransitionRepository{router: router}
}

// Record appends a transition. Pure insert: ordering by insertion time
// and durability are the only guarantees.
func (r *TransitionRepository) Record(ctx context.Context, regionCode string, tr *StateTransition) error {
	db, err := r.router.Pool(ctx, regionCode)
	if err != nil {
		return err
	}

	if tr.ID == "" {
		tr.ID = uuid.New().String()
	}
	if tr.TransitionData == nil {
		tr.TransitionData = JSONMap{}
	}

	query := `
		INSERT INTO state_transitions (
			id, request_id, from_role, to_role, action, actor_id, transition_data, comments
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err = db.QueryRowxContext(ctx, query,
		tr.ID, tr.RequestID, tr.FromRole, tr.ToRole, tr.Action,
		tr.ActorID, tr.TransitionData, tr.Comments,
	).Scan(&tr.CreatedAt)
	if err != nil {
		return database.MapError(err)
	}

	return nil
}

// History returns a request's transitions in ascending creation order
// for replay, with limit/offset pagination.
func (r *TransitionRepository) History(ctx context.Context, regionCode, requestID string, limit, offset int) ([]*StateTransition, error) {
	db, err := r.router.Pool(ctx, regionCode)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 100
	}

	var transitions []*StateTransition
	query := `
		SELECT id, request_id, from_role, to_role, action, actor_id,
		       transition_data, comments, created_at
		FROM state_transitions
		WHERE request_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`

	if err := db.SelectContext(ctx, &transitions, query, requestID, limit, offset); err != nil {
		return nil, database.MapError(err)
	}

	return transitions, nil
}

// Latest returns the most recent transition for a request, or nil when
// the request has none.
func (r *TransitionRepository) Latest(ctx context.Context, regionCode, requestID string) (*StateTransition, error) {
	db, err := r.router.Pool(ctx, regionCode)
	if err != nil {
		return nil, err
	}

	var tr StateTransition
	query := `
		SELECT id, request_id, from_role, to_role, action, actor_id,
		       transition_data, comments, created_at
		FROM state_transitions
		WHERE request_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	err = db.GetContext(ctx, &tr, query, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.MapError(err)
	}

	return &tr, nil
}
