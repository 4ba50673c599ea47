package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/reqflow/reqflow-backend/pkg/database"
	apperrors "github.com/reqflow/reqflow-backend/pkg/errors"
	"github.com/reqflow/reqflow-backend/pkg/region"
)

// ServiceRequest is the workflow entity driven across roles.
type ServiceRequest struct {
	// Identity and classification
	ID            string `db:"id" json:"id"`
	WorkflowType  string `db:"workflow_type" json:"workflow_type"`
	CurrentStatus string `db:"current_status" json:"current_status"`
	Priority      string `db:"priority" json:"priority"`

	// Workflow ownership
	RoleCurrent         *string `db:"role_current" json:"role_current,omitempty"`
	CurrentAssigneeID   *int64  `db:"current_assignee_id" json:"current_assignee_id,omitempty"`
	CurrentAssigneeRole *string `db:"current_assignee_role" json:"current_assignee_role,omitempty"`

	// Client linkage
	ClientID        *int64  `db:"client_id" json:"client_id,omitempty"`
	ContactPhone    *string `db:"contact_phone" json:"contact_phone,omitempty"`
	ContactFullName *string `db:"contact_full_name" json:"contact_full_name,omitempty"`
	Address         *string `db:"address" json:"address,omitempty"`
	Description     *string `db:"description" json:"description,omitempty"`

	// Staff origination
	CreatedByStaff   bool    `db:"created_by_staff" json:"created_by_staff"`
	StaffCreatorID   *int64  `db:"staff_creator_id" json:"staff_creator_id,omitempty"`
	StaffCreatorRole *string `db:"staff_creator_role" json:"staff_creator_role,omitempty"`
	CreationSource   *string `db:"creation_source" json:"creation_source,omitempty"`

	// Free-form workflow payload; shape varies per workflow type
	StateData JSONMap `db:"state_data" json:"state_data"`

	// Completion metadata
	CompletionRating   *int     `db:"completion_rating" json:"completion_rating,omitempty"`
	FeedbackComments   *string  `db:"feedback_comments" json:"feedback_comments,omitempty"`
	Diagnosis          *string  `db:"diagnosis" json:"diagnosis,omitempty"`
	EquipmentInstalled *string  `db:"equipment_installed" json:"equipment_installed,omitempty"`
	InstallationNotes  *string  `db:"installation_notes" json:"installation_notes,omitempty"`
	Approvals          JSONList `db:"approvals" json:"approvals"`

	// Timestamps
	ClientNotifiedAt *time.Time `db:"client_notified_at" json:"client_notified_at,omitempty"`
	RatedAt          *time.Time `db:"rated_at" json:"rated_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// updatableRequestFields is the allow-list for partial updates: input key
// to column. Any key outside this set is silently dropped, so identity
// and lifecycle columns (id, created_at, staff origination) can never be
// overwritten through Update.
var updatableRequestFields = map[string]string{
	"current_status":        "current_status",
	"priority":              "priority",
	"role_current":          "role_current",
	"current_assignee_id":   "current_assignee_id",
	"current_assignee_role": "current_assignee_role",
	"client_id":             "client_id",
	"contact_phone":         "contact_phone",
	"contact_full_name":     "contact_full_name",
	"address":               "address",
	"description":           "description",
	"state_data":            "state_data",
	"completion_rating":     "completion_rating",
	"feedback_comments":     "feedback_comments",
	"diagnosis":             "diagnosis",
	"equipment_installed":   "equipment_installed",
	"installation_notes":    "installation_notes",
	"approvals":             "approvals",
	"client_notified_at":    "client_notified_at",
	"rated_at":              "rated_at",
}

// UpdatableField reports whether key is in the partial-update
// allow-list. Callers use it to tell a net-empty update apart from a
// missing row.
func UpdatableField(key string) bool {
	_, ok := updatableRequestFields[key]
	return ok
}

// RequestFilter holds the optional AND-combined search filters.
type RequestFilter struct {
	RoleCurrent string
	Status      string
	Priority    string
	AssigneeID  *int64
	ClientID    *int64
}

// RequestRepository handles service request persistence, one database
// per region behind the router.
type RequestRepository struct {
	router *region.Router
}

// NewRequestRepository creates a new service request repository
func NewRequestRepository(router *region.Router) *RequestRepository {
	return &RequestRepository{router: router}
}

const requestColumns = `id, workflow_type, current_status, priority,
	       role_current, current_assignee_id, current_assignee_role,
	       client_id, contact_phone, contact_full_name, address, description,
	       created_by_staff, staff_creator_id, staff_creator_role, creation_source,
	       state_data, completion_rating, feedback_comments, diagnosis,
	       equipment_installed, installation_notes, approvals,
	       client_notified_at, rated_at, created_at, updated_at`

// Create inserts a new service request into the region's storage,
// assigning an id and defaults for any omitted optional field.
func (r *RequestRepository) Create(ctx context.Context, regionCode string, req *ServiceRequest) error {
	db, err := r.router.Pool(ctx, regionCode)
	if err != nil {
		return err
	}

	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.WorkflowType == "" {
		req.WorkflowType = WorkflowConnectionRequest
	}
	if req.CurrentStatus == "" {
		req.CurrentStatus = StatusCreated
	}
	if req.Priority == "" {
		req.Priority = PriorityMedium
	}
	if req.StateData == nil {
		req.StateData = JSONMap{}
	}
	if req.Approvals == nil {
		req.Approvals = JSONList{}
	}

	query := `
		INSERT INTO service_requests (
			id, workflow_type, current_status, priority,
			role_current, current_assignee_id, current_assignee_role,
			client_id, contact_phone, contact_full_name, address, description,
			created_by_staff, staff_creator_id, staff_creator_role, creation_source,
			state_data, approvals, client_notified_at, rated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20
		) RETURNING created_at, updated_at
	`

	err = db.QueryRowxContext(ctx, query,
		req.ID, req.WorkflowType, req.CurrentStatus, req.Priority,
		req.RoleCurrent, req.CurrentAssigneeID, req.CurrentAssigneeRole,
		req.ClientID, req.ContactPhone, req.ContactFullName, req.Address, req.Description,
		req.CreatedByStaff, req.StaffCreatorID, req.StaffCreatorRole, req.CreationSource,
		req.StateData, req.Approvals, req.ClientNotifiedAt, req.RatedAt,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return database.MapError(err)
	}

	return nil
}

// Update applies a whitelisted partial update. Keys outside the
// allow-list are dropped without error; a net-empty update returns
// (false, nil) with zero writes. Returns true iff a row was matched.
func (r *RequestRepository) Update(ctx context.Context, regionCode, id string, fields map[string]any) (bool, error) {
	db, err := r.router.Pool(ctx, regionCode)
	if err != nil {
		return false, err
	}

	builder := sq.Update("service_requests").PlaceholderFormat(sq.Dollar)

	allowed := 0
	for key, value := range fields {
		column, ok := updatableRequestFields[key]
		if !ok {
			continue
		}
		builder = builder.Set(column, normalizeFieldValue(key, value))
		allowed++
	}

	if allowed == 0 {
		return false, nil
	}

	query, args, err := builder.
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return false, err
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, database.MapError(err)
	}

	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// normalizeFieldValue coerces raw JSON-ish payload values into the types
// the driver can store.
func normalizeFieldValue(key string, value any) any {
	switch key {
	case "state_data":
		if m, ok := value.(map[string]any); ok {
			return JSONMap(m)
		}
	case "approvals":
		if l, ok := value.([]any); ok {
			return JSONList(l)
		}
	}
	return value
}

// Get retrieves a service request by id
func (r *RequestRepository) Get(ctx context.Context, regionCode, id string) (*ServiceRequest, error) {
	db, err := r.router.Pool(ctx, regionCode)
	if err != nil {
		return nil, err
	}

	var req ServiceRequest
	query := `
		SELECT ` + requestColumns + `
		FROM service_requests
		WHERE id = $1
	`

	err = db.GetContext(ctx, &req, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("service request")
	}
	if err != nil {
		return nil, database.MapError(err)
	}

	return &req, nil
}

// Search lists requests matching the optional AND-combined filters,
// newest first, with limit/offset pagination.
func (r *RequestRepository) Search(ctx context.Context, regionCode string, filter RequestFilter, limit, offset int) ([]*ServiceRequest, error) {
	db, err := r.router.Pool(ctx, regionCode)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 50
	}

	builder := sq.Select(requestColumns).
		From("service_requests").
		PlaceholderFormat(sq.Dollar).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset))

	if filter.RoleCurrent != "" {
		builder = builder.Where(sq.Eq{"role_current": filter.RoleCurrent})
	}
	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"current_status": filter.Status})
	}
	if filter.Priority != "" {
		builder = builder.Where(sq.Eq{"priority": filter.Priority})
	}
	if filter.AssigneeID != nil {
		builder = builder.Where(sq.Eq{"current_assignee_id": *filter.AssigneeID})
	}
	if filter.ClientID != nil {
		builder = builder.Where(sq.Eq{"client_id": *filter.ClientID})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	var requests []*ServiceRequest
	if err := db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, database.MapError(err)
	}

	return requests, nil
}
