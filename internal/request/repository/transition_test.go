package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/reqflow/reqflow-backend/internal/request/repository"
	"github.com/reqflow/reqflow-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionRepository_Record(t *testing.T) {
	ctx := context.Background()
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	router := testutil.RegionRouter(t, "tashkent", mockDB)
	repo := repository.NewTransitionRepository(router)

	now := time.Now().UTC()
	mockDB.ExpectQuery("INSERT INTO state_transitions").
		WithArgs(testutil.AnyUUID{}, "req-1", "manager", "controller", "forward", int64(42), testutil.AnyJSON{}, nil).
		WillReturnRows(testutil.MockRows("created_at").AddRow(now))

	tr := &repository.StateTransition{
		RequestID: "req-1",
		FromRole:  strPtr("manager"),
		ToRole:    "controller",
		Action:    "forward",
		ActorID:   int64Ptr(42),
	}
	err := repo.Record(ctx, "tashkent", tr)
	require.NoError(t, err)

	assert.NotEmpty(t, tr.ID)
	assert.NotNil(t, tr.TransitionData, "payload defaults to an empty object")
	assert.Equal(t, now, tr.CreatedAt)

	mockDB.ExpectationsWereMet(t)
}

func TestTransitionRepository_History_AscendingOrder(t *testing.T) {
	ctx := context.Background()
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	router := testutil.RegionRouter(t, "tashkent", mockDB)
	repo := repository.NewTransitionRepository(router)

	base := time.Now().UTC().Add(-time.Hour)
	rows := testutil.MockRows(
		"id", "request_id", "from_role", "to_role", "action", "actor_id",
		"transition_data", "comments", "created_at",
	).
		AddRow("tr-1", "req-1", nil, "controller", "create", nil, []byte(`{}`), nil, base).
		AddRow("tr-2", "req-1", "controller", "technician", "forward", int64(42), []byte(`{}`), nil, base.Add(time.Minute))

	mockDB.Mock.ExpectQuery(`FROM state_transitions\s+WHERE request_id = \$1\s+ORDER BY created_at ASC, id ASC`).
		WithArgs("req-1", 100, 0).
		WillReturnRows(rows)

	transitions, err := repo.History(ctx, "tashkent", "req-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, transitions, 2)
	assert.Equal(t, "tr-1", transitions[0].ID, "replay order: oldest first")
	assert.Equal(t, "tr-2", transitions[1].ID)
	assert.Nil(t, transitions[0].FromRole, "initial transition has no from role")

	mockDB.ExpectationsWereMet(t)
}

func TestTransitionRepository_Latest_NoneIsNil(t *testing.T) {
	ctx := context.Background()
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	router := testutil.RegionRouter(t, "tashkent", mockDB)
	repo := repository.NewTransitionRepository(router)

	mockDB.Mock.ExpectQuery(`ORDER BY created_at DESC, id DESC\s+LIMIT 1`).
		WithArgs("req-untouched").
		WillReturnRows(testutil.MockRows("id"))

	tr, err := repo.Latest(ctx, "tashkent", "req-untouched")
	require.NoError(t, err, "empty history is not an error")
	assert.Nil(t, tr)

	mockDB.ExpectationsWereMet(t)
}

func TestAuditRepository_Record_Defaults(t *testing.T) {
	ctx := context.Background()
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	router := testutil.RegionRouter(t, "tashkent", mockDB)
	repo := repository.NewAuditRepository(router)

	now := time.Now().UTC()
	mockDB.ExpectQuery("INSERT INTO audit_log").
		WithArgs(
			testutil.AnyUUID{}, int64(42), "manager", "request.cancel", "service_request", "req-1",
			testutil.AnyJSON{}, testutil.AnyJSON{}, testutil.AnyJSON{}, "success", nil, nil,
			"corr-1", nil, nil,
		).
		WillReturnRows(testutil.MockRows("created_at").AddRow(now))

	entry := &repository.AuditEntry{
		ActorID:       int64Ptr(42),
		ActorRole:     strPtr("manager"),
		Action:        "request.cancel",
		EntityType:    strPtr("service_request"),
		EntityID:      strPtr("req-1"),
		CorrelationID: strPtr("corr-1"),
	}
	err := repo.Record(ctx, "tashkent", entry)
	require.NoError(t, err)

	assert.Equal(t, "success", entry.Status, "status defaults to success")
	assert.NotNil(t, entry.Params)
	assert.NotNil(t, entry.BeforeData)
	assert.NotNil(t, entry.AfterData)

	mockDB.ExpectationsWereMet(t)
}

func TestAuditRepository_List_ByActor(t *testing.T) {
	ctx := context.Background()
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	router := testutil.RegionRouter(t, "tashkent", mockDB)
	repo := repository.NewAuditRepository(router)

	now := time.Now().UTC()
	rows := testutil.MockRows(
		"id", "actor_id", "actor_role", "action", "entity_type", "entity_id",
		"params", "before_data", "after_data", "status", "error_message", "channel",
		"correlation_id", "session_id", "message_id", "created_at",
	).AddRow(
		"audit-1", int64(42), "manager", "request.cancel", "service_request", "req-1",
		[]byte(`{}`), []byte(`{}`), []byte(`{}`), "success", nil, nil,
		nil, nil, nil, now,
	)

	mockDB.Mock.ExpectQuery(`FROM audit_log WHERE actor_id = \$1 ORDER BY created_at DESC, id DESC`).
		WithArgs(int64(42)).
		WillReturnRows(rows)

	entries, err := repo.List(ctx, "tashkent", repository.AuditFilter{ActorID: int64Ptr(42)}, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "request.cancel", entries[0].Action)
	assert.Equal(t, int64(42), *entries[0].ActorID)

	mockDB.ExpectationsWereMet(t)
}
