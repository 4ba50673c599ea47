package region

import (
	"context"
	"sync"

	"github.com/reqflow/reqflow-backend/pkg/config"
	"github.com/reqflow/reqflow-backend/pkg/database"
	"github.com/reqflow/reqflow-backend/pkg/logger"
)

// OpenFunc constructs a connection pool for a region DSN.
type OpenFunc func(dsn string) (*database.DB, error)

// Router lazily creates and caches one connection pool per region code.
//
// Pool may be called concurrently for the same or different regions; at
// most one pool is ever constructed per region. The global lock is held
// only for map lookups and inserts, never across connection I/O, so
// first-use of one region does not block traffic to others. A failed
// construction is returned to the caller and never cached: the next call
// retries.
type Router struct {
	registry *Registry
	open     OpenFunc
	logger   *logger.Logger

	mu       sync.RWMutex
	pools    map[string]*database.DB
	creating map[string]*sync.Mutex
}

// NewRouter creates a router over the given registry. Pools are opened
// with the shared database settings from cfg.
func NewRouter(registry *Registry, cfg *config.DatabaseConfig, log *logger.Logger) *Router {
	return &Router{
		registry: registry,
		open: func(dsn string) (*database.DB, error) {
			return database.New(dsn, cfg, log)
		},
		logger:   log,
		pools:    make(map[string]*database.DB),
		creating: make(map[string]*sync.Mutex),
	}
}

// NewRouterWithOpener creates a router with a custom pool opener.
// Used by tests to route regions onto pre-built pools.
func NewRouterWithOpener(registry *Registry, open OpenFunc, log *logger.Logger) *Router {
	return &Router{
		registry: registry,
		open:     open,
		logger:   log,
		pools:    make(map[string]*database.DB),
		creating: make(map[string]*sync.Mutex),
	}
}

// Registry returns the underlying region registry.
func (r *Router) Registry() *Registry {
	return r.registry
}

// Pool returns the pool for a region, constructing it on first use.
// Fails with UnknownRegion before any network I/O when the code has no
// configured endpoint.
func (r *Router) Pool(ctx context.Context, code string) (*database.DB, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	code = Normalize(code)

	r.mu.RLock()
	pool, ok := r.pools[code]
	r.mu.RUnlock()
	if ok {
		return pool, nil
	}

	// Resolve before taking any lock: an unknown region must fail fast
	// without serializing behind another region's construction.
	dsn, err := r.registry.DSN(code)
	if err != nil {
		return nil, err
	}

	// Serialize first-time construction per region, not globally.
	gate := r.constructionGate(code)
	gate.Lock()
	defer gate.Unlock()

	// Re-check: another caller may have finished construction while we
	// waited on the gate.
	r.mu.RLock()
	pool, ok = r.pools[code]
	r.mu.RUnlock()
	if ok {
		return pool, nil
	}

	pool, err = r.open(dsn)
	if err != nil {
		// Not cached: the next call retries construction.
		return nil, err
	}

	r.mu.Lock()
	r.pools[code] = pool
	r.mu.Unlock()

	r.logger.Info().Str("region", code).Msg("region pool created")
	return pool, nil
}

func (r *Router) constructionGate(code string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	gate, ok := r.creating[code]
	if !ok {
		gate = &sync.Mutex{}
		r.creating[code] = gate
	}
	return gate
}

// CloseAll closes and evicts every cached pool. Used at process shutdown.
func (r *Router) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for code, pool := range r.pools {
		if err := pool.Close(); err != nil {
			r.logger.Warn().Err(err).Str("region", code).Msg("failed to close region pool")
		}
		delete(r.pools, code)
	}
}

// Health reports the health of every cached pool keyed by region code.
// Regions whose pool was never requested are not probed.
func (r *Router) Health(ctx context.Context) map[string]map[string]string {
	r.mu.RLock()
	pools := make(map[string]*database.DB, len(r.pools))
	for code, pool := range r.pools {
		pools[code] = pool
	}
	r.mu.RUnlock()

	status := make(map[string]map[string]string, len(pools))
	for code, pool := range pools {
		status[code] = pool.Health(ctx)
	}
	return status
}
