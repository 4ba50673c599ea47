package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/reqflow/reqflow-backend/pkg/database"
	"github.com/reqflow/reqflow-backend/pkg/region"
)

// TransferLogEntry records one cross-role handover of an application.
type TransferLogEntry struct {
	ID              string    `db:"id" json:"id"`
	ApplicationID   string    `db:"application_id" json:"application_id"`
	ApplicationType string    `db:"application_type" json:"application_type"`
	FromRole        *string   `db:"from_role" json:"from_role,omitempty"`
	ToRole          string    `db:"to_role" json:"to_role"`
	TransferredBy   int64     `db:"transferred_by" json:"transferred_by"`
	Reason          *string   `db:"reason" json:"reason,omitempty"`
	Notes           *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// TransferFilter narrows a transfer history listing.
type TransferFilter struct {
	ApplicationID *string
	FromRole      *string
	ToRole        *string
	UserID        *int64
	Limit         int
	Offset        int
}

// TransferRepository journals cross-role handovers per region
type TransferRepository struct {
	router *region.Router
}

// NewTransferRepository creates a new transfer repository
func NewTransferRepository(router *region.Router) *TransferRepository {
	return &TransferRepository{router: router}
}

// Insert appends one transfer record and returns its id.
func (r *TransferRepository) Insert(ctx context.Context, regionCode string, entry *TransferLogEntry) error {
	db, err := r.router.Pool(ctx, regionCode)
	if err != nil {
		return err
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.ApplicationType == "" {
		entry.ApplicationType = ApplicationTypeServiceRequest
	}

	query := `
		INSERT INTO application_transfers (
			id, application_id, application_type, from_role, to_role,
			transferred_by, reason, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err = db.QueryRowxContext(ctx, query,
		entry.ID, entry.ApplicationID, entry.ApplicationType, entry.FromRole,
		entry.ToRole, entry.TransferredBy, entry.Reason, entry.Notes,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return database.MapError(err)
	}

	return nil
}

// List returns transfer history newest first.
func (r *TransferRepository) List(ctx context.Context, regionCode string, filter TransferFilter) ([]TransferLogEntry, error) {
	db, err := r.router.Pool(ctx, regionCode)
	if err != nil {
		return nil, err
	}

	builder := sq.Select(
		"id", "application_id", "application_type", "from_role", "to_role",
		"transferred_by", "reason", "notes", "created_at",
	).
		From("application_transfers").
		PlaceholderFormat(sq.Dollar).
		OrderBy("created_at DESC")

	if filter.ApplicationID != nil {
		builder = builder.Where(sq.Eq{"application_id": *filter.ApplicationID})
	}
	if filter.FromRole != nil {
		builder = builder.Where(sq.Eq{"from_role": *filter.FromRole})
	}
	if filter.ToRole != nil {
		builder = builder.Where(sq.Eq{"to_role": *filter.ToRole})
	}
	if filter.UserID != nil {
		builder = builder.Where(sq.Eq{"transferred_by": *filter.UserID})
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	builder = builder.Limit(uint64(limit)).Offset(uint64(filter.Offset))

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, database.MapError(err)
	}

	entries := []TransferLogEntry{}
	if err := db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, database.MapError(err)
	}

	return entries, nil
}
