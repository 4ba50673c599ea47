package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/reqflow/reqflow-backend/pkg/database"
	"github.com/reqflow/reqflow-backend/pkg/region"
)

// ExportLogEntry records one spreadsheet export: who ran it, what it
// covered, and the resulting file's fingerprint.
type ExportLogEntry struct {
	ID             string     `db:"id" json:"id"`
	UserID         int64      `db:"user_id" json:"user_id"`
	ExportType     string     `db:"export_type" json:"export_type"`
	DateRangeStart *time.Time `db:"date_range_start" json:"date_range_start,omitempty"`
	DateRangeEnd   *time.Time `db:"date_range_end" json:"date_range_end,omitempty"`
	FileName       *string    `db:"file_name" json:"file_name,omitempty"`
	FileSize       *int64     `db:"file_size" json:"file_size,omitempty"`
	FileHash       *string    `db:"file_hash" json:"file_hash,omitempty"`
	FiltersApplied JSONMap    `db:"filters_applied" json:"filters_applied"`
	RecordCount    *int       `db:"record_count" json:"record_count,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// ExportFilter narrows an export history listing.
type ExportFilter struct {
	UserID     *int64
	ExportType *string
	Limit      int
	Offset     int
}

// ExportRepository journals export history per region
type ExportRepository struct {
	router *region.Router
}

// NewExportRepository creates a new export repository
func NewExportRepository(router *region.Router) *ExportRepository {
	return &ExportRepository{router: router}
}

// Insert appends one export record and returns its id.
func (r *ExportRepository) Insert(ctx context.Context, regionCode string, entry *ExportLogEntry) error {
	db, err := r.router.Pool(ctx, regionCode)
	if err != nil {
		return err
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.FiltersApplied == nil {
		entry.FiltersApplied = JSONMap{}
	}

	query := `
		INSERT INTO excel_exports (
			id, user_id, export_type, date_range_start, date_range_end,
			file_name, file_size, file_hash, filters_applied, record_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`

	err = db.QueryRowxContext(ctx, query,
		entry.ID, entry.UserID, entry.ExportType, entry.DateRangeStart, entry.DateRangeEnd,
		entry.FileName, entry.FileSize, entry.FileHash, entry.FiltersApplied, entry.RecordCount,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return database.MapError(err)
	}

	return nil
}

// List returns export history newest first.
func (r *ExportRepository) List(ctx context.Context, regionCode string, filter ExportFilter) ([]ExportLogEntry, error) {
	db, err := r.router.Pool(ctx, regionCode)
	if err != nil {
		return nil, err
	}

	builder := sq.Select(
		"id", "user_id", "export_type", "date_range_start", "date_range_end",
		"file_name", "file_size", "file_hash", "filters_applied", "record_count", "created_at",
	).
		From("excel_exports").
		PlaceholderFormat(sq.Dollar).
		OrderBy("created_at DESC")

	if filter.UserID != nil {
		builder = builder.Where(sq.Eq{"user_id": *filter.UserID})
	}
	if filter.ExportType != nil {
		builder = builder.Where(sq.Eq{"export_type": *filter.ExportType})
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

	entries := []ExportLogEntry{}
	if err := db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, database.MapError(err)
	}

	return entries, nil
}
