package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/reqflow/reqflow-backend/pkg/database"
	"github.com/reqflow/reqflow-backend/pkg/region"
)

// AuditEntry is one immutable record of a side-effecting action by any
// actor, whether or not it touches a service request. Entries are never
// updated or deleted; they exist to reconstruct who did what, when, and
// with what result.
type AuditEntry struct {
	ID           string  `db:"id" json:"id"`
	ActorID      *int64  `db:"actor_id" json:"actor_id,omitempty"`
	ActorRole    *string `db:"actor_role" json:"actor_role,omitempty"`
	Action       string  `db:"action" json:"action"`
	EntityType   *string `db:"entity_type" json:"entity_type,omitempty"`
	EntityID     *string `db:"entity_id" json:"entity_id,omitempty"`
	Params       JSONMap `db:"params" json:"params"`
	BeforeData   JSONMap `db:"before_data" json:"before_data"`
	AfterData    JSONMap `db:"after_data" json:"after_data"`
	Status       string  `db:"status" json:"status"`
	ErrorMessage *string `db:"error_message" json:"error_message,omitempty"`
	Channel      *string `db:"channel" json:"channel,omitempty"`

	CorrelationID *string `db:"correlation_id" json:"correlation_id,omitempty"`
	SessionID     *string `db:"session_id" json:"session_id,omitempty"`
	MessageID     *string `db:"message_id" json:"message_id,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AuditFilter holds the optional filters for listing audit entries.
type AuditFilter struct {
	ActorID    *int64
	Action     string
	EntityType string
	EntityID   string
}

// AuditRepository handles the append-only audit log
type AuditRepository struct {
	router *region.Router
}

// NewAuditRepository creates a new audit log repository
func NewAuditRepository(router *region.Router) *AuditRepository {
	return &AuditRepository{router: router}
}

// Record appends an audit entry. JSON payloads default to an empty
// object so downstream readers never see null where an object is
// expected.
func (r *AuditRepository) Record(ctx context.Context, regionCode string, entry *AuditEntry) error {
	db, err := r.router.Pool(ctx, regionCode)
	if err != nil {
		return err
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Params == nil {
		entry.Params = JSONMap{}
	}
	if entry.BeforeData == nil {
		entry.BeforeData = JSONMap{}
	}
	if entry.AfterData == nil {
		entry.AfterData = JSONMap{}
	}
	if entry.Status == "" {
		entry.Status = "success"
	}

	query := `
		INSERT INTO audit_log (
			id, actor_id, actor_role, action, entity_type, entity_id,
			params, before_data, after_data, status, error_message, channel,
			correlation_id, session_id, message_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at
	`

	err = db.QueryRowxContext(ctx, query,
		entry.ID, entry.ActorID, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID,
		entry.Params, entry.BeforeData, entry.AfterData, entry.Status, entry.ErrorMessage, entry.Channel,
		entry.CorrelationID, entry.SessionID, entry.MessageID,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return database.MapError(err)
	}

	return nil
}

// List returns audit entries matching the optional filters, newest
// first, with limit/offset pagination.
func (r *AuditRepository) List(ctx context.Context, regionCode string, filter AuditFilter, limit, offset int) ([]*AuditEntry, error) {
	db, err := r.router.Pool(ctx, regionCode)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 100
	}

	builder := sq.Select(
		"id", "actor_id", "actor_role", "action", "entity_type", "entity_id",
		"params", "before_data", "after_data", "status", "error_message", "channel",
		"correlation_id", "session_id", "message_id", "created_at",
	).
		From("audit_log").
		PlaceholderFormat(sq.Dollar).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset))

	if filter.ActorID != nil {
		builder = builder.Where(sq.Eq{"actor_id": *filter.ActorID})
	}
	if filter.Action != "" {
		builder = builder.Where(sq.Eq{"action": filter.Action})
	}
	if filter.EntityType != "" {
		builder = builder.Where(sq.Eq{"entity_type": filter.EntityType})
	}
	if filter.EntityID != "" {
		builder = builder.Where(sq.Eq{"entity_id": filter.EntityID})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	var entries []*AuditEntry
	if err := db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, database.MapError(err)
	}

	return entries, nil
}
