package region_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/reqflow/reqflow-backend/pkg/database"
	"github.com/reqflow/reqflow-backend/pkg/errors"
	"github.com/reqflow/reqflow-backend/pkg/logger"
	"github.com/reqflow/reqflow-backend/pkg/region"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T) *database.DB {
	t.Helper()
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	return database.NewFromSqlx(sqlx.NewDb(db, "postgres"), testLogger())
}

func testLogger() *logger.Logger {
	return logger.New("router-test", "test")
}

func TestRouter_Pool_CachesPerRegion(t *testing.T) {
	reg := region.NewRegistry(map[string]string{
		"tashkent": "postgres://db-tashkent",
		"andijon":  "postgres://db-andijon",
	})

	var opened int32
	router := region.NewRouterWithOpener(reg, func(dsn string) (*database.DB, error) {
		atomic.AddInt32(&opened, 1)
		return newTestPool(t), nil
	}, testLogger())
	defer router.CloseAll()

	ctx := context.Background()

	first, err := router.Pool(ctx, "tashkent")
	require.NoError(t, err)

	second, err := router.Pool(ctx, "TASHKENT")
	require.NoError(t, err)
	assert.Same(t, first, second, "case-insensitive lookups must share one pool")

	other, err := router.Pool(ctx, "andijon")
	require.NoError(t, err)
	assert.NotSame(t, first, other)

	assert.Equal(t, int32(2), atomic.LoadInt32(&opened))
}

func TestRouter_Pool_UnknownRegion(t *testing.T) {
	reg := region.NewRegistry(map[string]string{"tashkent": "postgres://db"})

	router := region.NewRouterWithOpener(reg, func(dsn string) (*database.DB, error) {
		t.Fatal("opener must not run for an unknown region")
		return nil, nil
	}, testLogger())

	pool, err := router.Pool(context.Background(), "samarqand")
	require.Error(t, err)
	assert.Nil(t, pool)
	assert.True(t, errors.Is(err, errors.ErrUnknownRegion))
}

func TestRouter_Pool_ConcurrentStampede(t *testing.T) {
	reg := region.NewRegistry(map[string]string{"tashkent": "postgres://db"})

	var opened int32
	router := region.NewRouterWithOpener(reg, func(dsn string) (*database.DB, error) {
		atomic.AddInt32(&opened, 1)
		return newTestPool(t), nil
	}, testLogger())
	defer router.CloseAll()

	const callers = 32
	pools := make([]*database.DB, callers)

	var start, done sync.WaitGroup
	start.Add(1)
	done.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer done.Done()
			start.Wait()
			pool, err := router.Pool(context.Background(), "tashkent")
			assert.NoError(t, err)
			pools[i] = pool
		}(i)
	}
	start.Done()
	done.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&opened), "exactly one pool constructed under stampede")
	for i := 1; i < callers; i++ {
		assert.Same(t, pools[0], pools[i], "all callers observe the same pool")
	}
}

func TestRouter_Pool_FailedConstructionNotCached(t *testing.T) {
	reg := region.NewRegistry(map[string]string{"tashkent": "postgres://db"})

	var calls int32
	router := region.NewRouterWithOpener(reg, func(dsn string) (*database.DB, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, errors.StorageUnavailable(assert.AnError)
		}
		return newTestPool(t), nil
	}, testLogger())
	defer router.CloseAll()

	ctx := context.Background()

	_, err := router.Pool(ctx, "tashkent")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStorageUnavailable))

	// The failure was not cached: the next call retries and succeeds.
	pool, err := router.Pool(ctx, "tashkent")
	require.NoError(t, err)
	assert.NotNil(t, pool)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRouter_CloseAll_Evicts(t *testing.T) {
	reg := region.NewRegistry(map[string]string{"tashkent": "postgres://db"})

	var opened int32
	router := region.NewRouterWithOpener(reg, func(dsn string) (*database.DB, error) {
		atomic.AddInt32(&opened, 1)
		return newTestPool(t), nil
	}, testLogger())

	ctx := context.Background()

	_, err := router.Pool(ctx, "tashkent")
	require.NoError(t, err)

	router.CloseAll()

	// Evicted: next use constructs a fresh pool.
	_, err = router.Pool(ctx, "tashkent")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&opened))

	router.CloseAll()
}

func TestRouter_Pool_CancelledContext(t *testing.T) {
	reg := region.NewRegistry(map[string]string{"tashkent": "postgres://db"})
	router := region.NewRouterWithOpener(reg, func(dsn string) (*database.DB, error) {
		return newTestPool(t), nil
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := router.Pool(ctx, "tashkent")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegionContext(t *testing.T) {
	ctx := context.Background()

	_, err := region.FromContext(ctx)
	assert.ErrorIs(t, err, region.ErrNoRegionInContext)

	ctx = region.WithRegion(ctx, "Tashkent")
	code, err := region.FromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tashkent", code)
}
