// Package region resolves region codes to their own PostgreSQL storage.
//
// Every region is an isolated deployment unit with its own database; no
// data is ever shared or joined across regions. The Registry maps a
// case-insensitive region code to a connection URL, and the Router keeps
// at most one connection pool per configured region.
package region

import (
	"sort"
	"strings"

	"github.com/reqflow/reqflow-backend/pkg/errors"
)

// Registry holds the region code to connection URL mapping.
// Codes are normalized to lowercase; there is no default region and no
// fallback: an unconfigured code always fails with UnknownRegion.
type Registry struct {
	dsns map[string]string
}

// NewRegistry creates a registry from a code→DSN map. Keys are
// normalized to lowercase; empty DSNs are dropped.
func NewRegistry(dsns map[string]string) *Registry {
	normalized := make(map[string]string, len(dsns))
	for code, dsn := range dsns {
		code = Normalize(code)
		if code == "" || dsn == "" {
			continue
		}
		normalized[code] = dsn
	}
	return &Registry{dsns: normalized}
}

// Normalize lowercases and trims a region code.
func Normalize(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// Codes returns all configured region codes in sorted order.
func (r *Registry) Codes() []string {
	codes := make([]string, 0, len(r.dsns))
	for code := range r.dsns {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// DSN resolves a region code to its connection URL. The lookup is
// case-insensitive. Fails with UnknownRegion when the code has no
// configured endpoint.
func (r *Registry) DSN(code string) (string, error) {
	dsn, ok := r.dsns[Normalize(code)]
	if !ok {
		return "", errors.UnknownRegion(code)
	}
	return dsn, nil
}

// Has reports whether a region code is configured.
func (r *Registry) Has(code string) bool {
	_, ok := r.dsns[Normalize(code)]
	return ok
}
