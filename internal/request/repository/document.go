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

// GeneratedDocument caches one generated file per (request,
// document type). Upserts merge field by field: an absent value never
// clobbers what a previous generation recorded.
type GeneratedDocument struct {
	ID           string    `db:"id" json:"id"`
	RequestID    string    `db:"request_id" json:"request_id"`
	DocumentType string    `db:"document_type" json:"document_type"`
	FileName     *string   `db:"file_name" json:"file_name,omitempty"`
	FilePath     *string   `db:"file_path" json:"file_path,omitempty"`
	FileHash     *string   `db:"file_hash" json:"file_hash,omitempty"`
	FileSize     *int64    `db:"file_size" json:"file_size,omitempty"`
	GeneratedBy  *int64    `db:"generated_by" json:"generated_by,omitempty"`
	Metadata     JSONMap   `db:"metadata" json:"metadata"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// DocumentRepository caches generated documents per region
type DocumentRepository struct {
	router *region.Router
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(router *region.Router) *DocumentRepository {
	return &DocumentRepository{router: router}
}

// Upsert stores a document record keyed by (request_id, document_type).
// Each file field keeps its existing value when the new one is null.
func (r *DocumentRepository) Upsert(ctx context.Context, regionCode string, doc *GeneratedDocument) error {
	db, err := r.router.Pool(ctx, regionCode)
	if err != nil {
		return err
	}

	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}

	// A nil metadata map goes to the database as NULL, not {}, so the
	// conflict arm can keep the stored value. Readers never see NULL:
	// JSONMap.Scan turns it back into an empty map.
	var metadata any
	if doc.Metadata != nil {
		metadata = doc.Metadata
	}

	query := `
		INSERT INTO word_documents (
			id, request_id, document_type, file_name, file_path,
			file_hash, file_size, generated_by, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (request_id, document_type) DO UPDATE SET
			file_name = COALESCE(EXCLUDED.file_name, word_documents.file_name),
			file_path = COALESCE(EXCLUDED.file_path, word_documents.file_path),
			file_hash = COALESCE(EXCLUDED.file_hash, word_documents.file_hash),
			file_size = COALESCE(EXCLUDED.file_size, word_documents.file_size),
			generated_by = COALESCE(EXCLUDED.generated_by, word_documents.generated_by),
			metadata = COALESCE(EXCLUDED.metadata, word_documents.metadata),
			updated_at = NOW()
		RETURNING id
	`

	err = db.QueryRowxContext(ctx, query,
		doc.ID, doc.RequestID, doc.DocumentType, doc.FileName, doc.FilePath,
		doc.FileHash, doc.FileSize, doc.GeneratedBy, metadata,
	).Scan(&doc.ID)
	if err != nil {
		return database.MapError(err)
	}

	return nil
}

// Get returns the cached document for a (request, type) pair, or nil
// when nothing has been generated yet.
func (r *DocumentRepository) Get(ctx context.Context, regionCode, requestID, documentType string) (*GeneratedDocument, error) {
	db, err := r.router.Pool(ctx, regionCode)
	if err != nil {
		return nil, err
	}

	var doc GeneratedDocument
	query := `
		SELECT id, request_id, document_type, file_name, file_path,
		       file_hash, file_size, generated_by, metadata, created_at, updated_at
		FROM word_documents
		WHERE request_id = $1 AND document_type = $2
	`

	err = db.GetContext(ctx, &doc, query, requestID, documentType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.MapError(err)
	}

	return &doc, nil
}

// ListByRequest returns every cached document for a request, newest first.
func (r *DocumentRepository) ListByRequest(ctx context.Context, regionCode, requestID string) ([]GeneratedDocument, error) {
	db, err := r.router.Pool(ctx, regionCode)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, request_id, document_type, file_name, file_path,
		       file_hash, file_size, generated_by, metadata, created_at, updated_at
		FROM word_documents
		WHERE request_id = $1
		ORDER BY updated_at DESC
	`

	docs := []GeneratedDocument{}
	if err := db.SelectContext(ctx, &docs, query, requestID); err != nil {
		return nil, database.MapError(err)
	}

	return docs, nil
}
