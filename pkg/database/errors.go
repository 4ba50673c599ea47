package database

import (
	"context"
	"database/sql"
	"errors"
	"net"

	"github.com/lib/pq"
	apperrors "github.com/reqflow/reqflow-backend/pkg/errors"
)

// MapError converts low-level driver errors into the application error
// taxonomy. It never remaps sql.ErrNoRows: callers decide whether a miss
// is NotFound or an empty result.
func MapError(err error) error {
	if err == nil || errors.Is(err, sql.ErrNoRows) {
		return err
	}

	if mapped := MapPQError(err); mapped != nil {
		return mapped
	}

	// Context cancellations and deadline hits propagate as retryable
	// storage errors: from the caller's view the region's storage did
	// not answer in time.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.StorageUnavailable(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return apperrors.StorageUnavailable(err)
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, pq.ErrChannelNotOpen) {
		return apperrors.StorageUnavailable(err)
	}

	return err
}

// StorageError wraps a connection-level failure as StorageUnavailable.
// Use for pool construction and ping failures, where the error class is
// known before any statement ran.
func StorageError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.StorageUnavailable(err)
}

// MapPQError converts a PostgreSQL error to an AppError.
// Returns nil if the error is not a pq.Error or has no mapping.
func MapPQError(err error) *apperrors.AppError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	// Unique constraint violation (23505). Upsert paths never hit this;
	// seeing it means a caller bypassed the documented upsert contract.
	case "23505":
		return apperrors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		return apperrors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return apperrors.ValidationRejected(map[string]string{
			col: "must not be empty",
		})

	// Connection exceptions (class 08) are retryable
	case "08000", "08003", "08006", "08001", "08004":
		return apperrors.StorageUnavailable(pqErr)

	default:
		return nil
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	if pqErr.Constraint != "" {
		return "duplicate value for " + pqErr.Constraint
	}
	return "a record with these values already exists"
}
