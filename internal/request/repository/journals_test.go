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

func TestExportRepository_Insert(t *testing.T) {
	ctx := context.Background()
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	router := testutil.RegionRouter(t, "tashkent", mockDB)
	repo := repository.NewExportRepository(router)

	now := time.Now().UTC()
	mockDB.ExpectQuery("INSERT INTO excel_exports").
		WithArgs(
			testutil.AnyUUID{}, int64(42), "monthly_report", nil, nil,
			"report-2025-03.xlsx", int64(20480), "abc123", testutil.AnyJSON{}, 150,
		).
		WillReturnRows(testutil.MockRows("created_at").AddRow(now))

	entry := &repository.ExportLogEntry{
		UserID:      42,
		ExportType:  "monthly_report",
		FileName:    strPtr("report-2025-03.xlsx"),
		FileSize:    int64Ptr(20480),
		FileHash:    strPtr("abc123"),
		RecordCount: intPtr(150),
	}
	err := repo.Insert(ctx, "tashkent", entry)
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.NotNil(t, entry.FiltersApplied, "filters default to an empty object")

	mockDB.ExpectationsWereMet(t)
}

func TestExportRepository_List_ByUser(t *testing.T) {
	ctx := context.Background()
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	router := testutil.RegionRouter(t, "tashkent", mockDB)
	repo := repository.NewExportRepository(router)

	now := time.Now().UTC()
	rows := testutil.MockRows(
		"id", "user_id", "export_type", "date_range_start", "date_range_end",
		"file_name", "file_size", "file_hash", "filters_applied", "record_count", "created_at",
	).AddRow("exp-1", int64(42), "monthly_report", nil, nil, nil, nil, nil, []byte(`{}`), nil, now)

	mockDB.Mock.ExpectQuery(`FROM excel_exports WHERE user_id = \$1 ORDER BY created_at DESC`).
		WithArgs(int64(42)).
		WillReturnRows(rows)

	entries, err := repo.List(ctx, "tashkent", repository.ExportFilter{UserID: int64Ptr(42)})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "monthly_report", entries[0].ExportType)

	mockDB.ExpectationsWereMet(t)
}

func TestTransferRepository_Insert_DefaultApplicationType(t *testing.T) {
	ctx := context.Background()
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	router := testutil.RegionRouter(t, "tashkent", mockDB)
	repo := repository.NewTransferRepository(router)

	now := time.Now().UTC()
	mockDB.ExpectQuery("INSERT INTO application_transfers").
		WithArgs(
			testutil.AnyUUID{}, "req-1", repository.ApplicationTypeServiceRequest,
			"controller", "technician", int64(42), "escalation", nil,
		).
		WillReturnRows(testutil.MockRows("created_at").AddRow(now))

	entry := &repository.TransferLogEntry{
		ApplicationID: "req-1",
		FromRole:      strPtr("controller"),
		ToRole:        "technician",
		TransferredBy: 42,
		Reason:        strPtr("escalation"),
	}
	err := repo.Insert(ctx, "tashkent", entry)
	require.NoError(t, err)
	assert.Equal(t, repository.ApplicationTypeServiceRequest, entry.ApplicationType)

	mockDB.ExpectationsWereMet(t)
}

func TestTransferRepository_List_ByApplication(t *testing.T) {
	ctx := context.Background()
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	router := testutil.RegionRouter(t, "tashkent", mockDB)
	repo := repository.NewTransferRepository(router)

	now := time.Now().UTC()
	rows := testutil.MockRows(
		"id", "application_id", "application_type", "from_role", "to_role",
		"transferred_by", "reason", "notes", "created_at",
	).AddRow("tf-1", "req-1", "service_request", "controller", "technician", int64(42), nil, nil, now)

	mockDB.Mock.ExpectQuery(`FROM application_transfers WHERE application_id = \$1`).
		WithArgs("req-1").
		WillReturnRows(rows)

	entries, err := repo.List(ctx, "tashkent", repository.TransferFilter{ApplicationID: strPtr("req-1")})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "technician", entries[0].ToRole)

	mockDB.ExpectationsWereMet(t)
}

func TestDocumentRepository_Upsert_MergeKeepsExisting(t *testing.T) {
	ctx := context.Background()
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	router := testutil.RegionRouter(t, "tashkent", mockDB)
	repo := repository.NewDocumentRepository(router)

	// Null file fields fall through to the stored values; only the
	// provided ones overwrite.
	mockDB.Mock.ExpectQuery(`file_name = COALESCE\(EXCLUDED\.file_name, word_documents\.file_name\)`).
		WithArgs(
			testutil.AnyUUID{}, "req-1", "completion_act", nil, "/files/act-req-1.docx",
			nil, nil, int64(42), testutil.AnyJSON{},
		).
		WillReturnRows(testutil.MockRows("id").AddRow("doc-1"))

	doc := &repository.GeneratedDocument{
		RequestID:    "req-1",
		DocumentType: "completion_act",
		FilePath:     strPtr("/files/act-req-1.docx"),
		GeneratedBy:  int64Ptr(42),
		Metadata:     repository.JSONMap{"template": "act_v2"},
	}
	err := repo.Upsert(ctx, "tashkent", doc)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", doc.ID, "id resolves to the stored row on conflict")

	mockDB.ExpectationsWereMet(t)
}

func TestDocumentRepository_Upsert_NilMetadataKeepsStored(t *testing.T) {
	ctx := context.Background()
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	router := testutil.RegionRouter(t, "tashkent", mockDB)
	repo := repository.NewDocumentRepository(router)

	// An upsert without metadata sends NULL and merges like every other
	// field, so a regeneration that only refreshes the file path cannot
	// wipe metadata recorded earlier.
	mockDB.Mock.ExpectQuery(`metadata = COALESCE\(EXCLUDED\.metadata, word_documents\.metadata\)`).
		WithArgs(
			testutil.AnyUUID{}, "req-1", "completion_act", nil, "/files/act-req-1-v2.docx",
			nil, nil, nil, nil,
		).
		WillReturnRows(testutil.MockRows("id").AddRow("doc-1"))

	doc := &repository.GeneratedDocument{
		RequestID:    "req-1",
		DocumentType: "completion_act",
		FilePath:     strPtr("/files/act-req-1-v2.docx"),
	}
	err := repo.Upsert(ctx, "tashkent", doc)
	require.NoError(t, err)

	mockDB.ExpectationsWereMet(t)
}

func TestDocumentRepository_Get_NoneIsNil(t *testing.T) {
	ctx := context.Background()
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	router := testutil.RegionRouter(t, "tashkent", mockDB)
	repo := repository.NewDocumentRepository(router)

	mockDB.Mock.ExpectQuery(`FROM word_documents\s+WHERE request_id = \$1 AND document_type = \$2`).
		WithArgs("req-1", "warranty").
		WillReturnRows(testutil.MockRows("id"))

	doc, err := repo.Get(ctx, "tashkent", "req-1", "warranty")
	require.NoError(t, err, "cache miss is not an error")
	assert.Nil(t, doc)

	mockDB.ExpectationsWereMet(t)
}

// helper: create an int pointer
func intPtr(v int) *int {
	return &v
}
