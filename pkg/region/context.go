package region

import (
	"context"
	"errors"
)

// contextKey is a private type for context keys to prevent collisions
type contextKey string

const regionCodeKey contextKey = "region_code"

// ErrNoRegionInContext is returned when region context is missing
var ErrNoRegionInContext = errors.New("no region in context")

// WithRegion adds the region code to the context. Called by the layer
// that resolves a user/session to its region before invoking the core.
func WithRegion(ctx context.Context, code string) context.Context {
	return context.WithValue(ctx, regionCodeKey, Normalize(code))
}

// FromContext extracts the region code from the context.
// Returns ErrNoRegionInContext if no code was attached.
func FromContext(ctx context.Context) (string, error) {
	code, ok := ctx.Value(regionCodeKey).(string)
	if !ok || code == "" {
		return "", ErrNoRegionInContext
	}
	return code, nil
}

// MustFromContext extracts the region code and panics if missing.
// Use only where a missing region is a programming error.
func MustFromContext(ctx context.Context) string {
	code, err := FromContext(ctx)
	if err != nil {
		panic("region code not found in context")
	}
	return code
}
