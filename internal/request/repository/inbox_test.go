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

func TestInboxRepository_CreateOnAssignment_Defaults(t *testing.T) {
	ctx := context.Background()
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	router := testutil.RegionRouter(t, "tashkent", mockDB)
	repo := repository.NewInboxRepository(router)

	now := time.Now().UTC()
	mockDB.ExpectQuery("INSERT INTO inbox_messages").
		WithArgs(
			testutil.AnyUUID{}, "req-1", repository.ApplicationTypeServiceRequest, "controller",
			repository.MessageTypeApplication, "New connection request", nil, repository.PriorityMedium,
			nil, testutil.AnyJSON{}, testutil.AnyJSON{}, "{}",
		).
		WillReturnRows(testutil.MockRows("created_at", "updated_at").AddRow(now, now))

	msg := &repository.InboxMessage{
		ApplicationID: "req-1",
		AssignedRole:  "controller",
		Title:         "New connection request",
	}
	err := repo.CreateOnAssignment(ctx, "tashkent", msg)
	require.NoError(t, err)

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, repository.ApplicationTypeServiceRequest, msg.ApplicationType)
	assert.Equal(t, repository.MessageTypeApplication, msg.MessageType)
	assert.Equal(t, repository.PriorityMedium, msg.Priority)
	assert.False(t, msg.IsRead)
	assert.False(t, msg.Completed)
	assert.Empty(t, msg.SeenByUsers)

	mockDB.ExpectationsWereMet(t)
}

func TestInboxRepository_ListForRole_BroadcastVisibility(t *testing.T) {
	ctx := context.Background()
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	router := testutil.RegionRouter(t, "tashkent", mockDB)
	repo := repository.NewInboxRepository(router)

	now := time.Now().UTC()
	rows := testutil.MockRows(
		"id", "application_id", "application_type", "assigned_role", "message_type",
		"title", "description", "priority", "recipient_id", "reply_markup_data", "metadata",
		"is_read", "inbox_viewed", "reply_button_clicked", "completed", "seen_by_users",
		"created_at", "updated_at",
	).
		AddRow("msg-personal", "req-2", "service_request", "controller", "application",
			"Assigned to you", nil, "high", int64(7), []byte(`{}`), []byte(`{}`),
			false, false, false, false, []byte(`{}`), now, now).
		AddRow("msg-broadcast", "req-1", "service_request", "controller", "application",
			"Unassigned work", nil, "medium", nil, []byte(`{}`), []byte(`{}`),
			true, true, false, false, []byte(`{7}`), now.Add(-time.Minute), now)

	// Personal items for recipient 7 plus role broadcasts; items addressed
	// to anyone else never reach this recipient.
	mockDB.Mock.ExpectQuery(`WHERE assigned_role = \$1 AND \(recipient_id = \$2 OR recipient_id IS NULL\)`).
		WithArgs("controller", int64(7), 50, 0).
		WillReturnRows(rows)

	messages, err := repo.ListForRole(ctx, "tashkent", "controller", int64Ptr(7), 0, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, int64(7), *messages[0].RecipientID)
	assert.Nil(t, messages[1].RecipientID, "broadcast item has no recipient")
	assert.True(t, messages[1].IsRead, "read items stay listed with their flag set")
	assert.Equal(t, []int64{7}, []int64(messages[1].SeenByUsers))

	mockDB.ExpectationsWereMet(t)
}

func TestInboxRepository_ListForRole_NoRecipient(t *testing.T) {
	ctx := context.Background()
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	router := testutil.RegionRouter(t, "tashkent", mockDB)
	repo := repository.NewInboxRepository(router)

	mockDB.Mock.ExpectQuery(`WHERE assigned_role = \$1\s+ORDER BY created_at DESC, id DESC`).
		WithArgs("technician", 50, 0).
		WillReturnRows(testutil.MockRows("id"))

	messages, err := repo.ListForRole(ctx, "tashkent", "technician", nil, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, messages)

	mockDB.ExpectationsWereMet(t)
}

func TestInboxRepository_MarkRead_AppendsRecipientOnce(t *testing.T) {
	ctx := context.Background()
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	router := testutil.RegionRouter(t, "tashkent", mockDB)
	repo := repository.NewInboxRepository(router)

	// The CASE guard keeps seen_by_users a set: re-reading by the same
	// recipient leaves the array unchanged.
	mockDB.Mock.ExpectExec(`ELSE array_append\(seen_by_users, \$2\)`).
		WithArgs("msg-1", int64(7)).
		WillReturnResult(testutil.NewResult(0, 1))

	ok, err := repo.MarkRead(ctx, "tashkent", "msg-1", int64Ptr(7))
	require.NoError(t, err)
	assert.True(t, ok)

	mockDB.ExpectationsWereMet(t)
}

func TestInboxRepository_MarkRead_MissingRow(t *testing.T) {
	ctx := context.Background()
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	router := testutil.RegionRouter(t, "tashkent", mockDB)
	repo := repository.NewInboxRepository(router)

	mockDB.Mock.ExpectExec(`UPDATE inbox_messages`).
		WithArgs("missing").
		WillReturnResult(testutil.NewResult(0, 0))

	ok, err := repo.MarkRead(ctx, "tashkent", "missing", nil)
	require.NoError(t, err)
	assert.False(t, ok)

	mockDB.ExpectationsWereMet(t)
}

func TestInboxRepository_MarkCompleted(t *testing.T) {
	ctx := context.Background()
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	router := testutil.RegionRouter(t, "tashkent", mockDB)
	repo := repository.NewInboxRepository(router)

	mockDB.Mock.ExpectExec(`SET completed = TRUE, updated_at = NOW\(\)`).
		WithArgs("msg-1").
		WillReturnResult(testutil.NewResult(0, 1))

	ok, err := repo.MarkCompleted(ctx, "tashkent", "msg-1")
	require.NoError(t, err)
	assert.True(t, ok)

	mockDB.ExpectationsWereMet(t)
}

func TestInboxRepository_HasOpenItem(t *testing.T) {
	ctx := context.Background()
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	router := testutil.RegionRouter(t, "tashkent", mockDB)
	repo := repository.NewInboxRepository(router)

	mockDB.Mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("req-1", "controller", "application").
		WillReturnRows(testutil.MockRows("exists").AddRow(true))

	exists, err := repo.HasOpenItem(ctx, "tashkent", "req-1", "controller", "application")
	require.NoError(t, err)
	assert.True(t, exists)

	mockDB.Mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("req-1", "technician", "application").
		WillReturnRows(testutil.MockRows("exists").AddRow(false))

	exists, err = repo.HasOpenItem(ctx, "tashkent", "req-1", "technician", "application")
	require.NoError(t, err)
	assert.False(t, exists)

	mockDB.ExpectationsWereMet(t)
}
