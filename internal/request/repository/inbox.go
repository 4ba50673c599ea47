package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/reqflow/reqflow-backend/pkg/database"
	"github.com/reqflow/reqflow-backend/pkg/region"
)

// Inbox defaults
const (
	ApplicationTypeServiceRequest = "service_request"
	MessageTypeApplication        = "application"
)

// InboxMessage is a work item queued for a role. A nil RecipientID means
// the item is broadcast to the whole role; a set RecipientID makes it
// visible to that recipient only.
type InboxMessage struct {
	ID              string  `db:"id" json:"id"`
	ApplicationID   string  `db:"application_id" json:"application_id"`
	ApplicationType string  `db:"application_type" json:"application_type"`
	AssignedRole    string  `db:"assigned_role" json:"assigned_role"`
	MessageType     string  `db:"message_type" json:"message_type"`
	Title           string  `db:"title" json:"title"`
	Description     *string `db:"description" json:"description,omitempty"`
	Priority        string  `db:"priority" json:"priority"`
	RecipientID     *int64  `db:"recipient_id" json:"recipient_id,omitempty"`
	ReplyMarkupData JSONMap `db:"reply_markup_data" json:"reply_markup_data"`
	Metadata        JSONMap `db:"metadata" json:"metadata"`

	IsRead             bool          `db:"is_read" json:"is_read"`
	InboxViewed        bool          `db:"inbox_viewed" json:"inbox_viewed"`
	ReplyButtonClicked bool          `db:"reply_button_clicked" json:"reply_button_clicked"`
	Completed          bool          `db:"completed" json:"completed"`
	SeenByUsers        pq.Int64Array `db:"seen_by_users" json:"seen_by_users"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// InboxRepository handles per-role work item fan-out.
//
// Delivery is at-least-once: CreateOnAssignment inserts unconditionally,
// and callers that need exactly-once visible work items dedupe upstream
// (see HasOpenItem). No uniqueness constraint is enforced here.
type InboxRepository struct {
	router *region.Router
}

// NewInboxRepository creates a new inbox repository
func NewInboxRepository(router *region.Router) *InboxRepository {
	return &InboxRepository{router: router}
}

// CreateOnAssignment inserts a new inbox row for a role. All flags start
// false and seen_by_users starts empty.
func (r *InboxRepository) CreateOnAssignment(ctx context.Context, regionCode string, msg *InboxMessage) error {
	db, err := r.router.Pool(ctx, regionCode)
	if err != nil {
		return err
	}

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.ApplicationType == "" {
		msg.ApplicationType = ApplicationTypeServiceRequest
	}
	if msg.MessageType == "" {
		msg.MessageType = MessageTypeApplication
	}
	if msg.Priority == "" {
		msg.Priority = PriorityMedium
	}
	if msg.ReplyMarkupData == nil {
		msg.ReplyMarkupData = JSONMap{}
	}
	if msg.Metadata == nil {
		msg.Metadata = JSONMap{}
	}
	if msg.SeenByUsers == nil {
		msg.SeenByUsers = pq.Int64Array{}
	}

	query := `
		INSERT INTO inbox_messages (
			id, application_id, application_type, assigned_role, message_type,
			title, description, priority, recipient_id, reply_markup_data, metadata,
			seen_by_users
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`

	err = db.QueryRowxContext(ctx, query,
		msg.ID, msg.ApplicationID, msg.ApplicationType, msg.AssignedRole, msg.MessageType,
		msg.Title, msg.Description, msg.Priority, msg.RecipientID, msg.ReplyMarkupData, msg.Metadata,
		msg.SeenByUsers,
	).Scan(&msg.CreatedAt, &msg.UpdatedAt)
	if err != nil {
		return database.MapError(err)
	}

	return nil
}

const inboxColumns = `id, application_id, application_type, assigned_role, message_type,
	       title, description, priority, recipient_id, reply_markup_data, metadata,
	       is_read, inbox_viewed, reply_button_clicked, completed, seen_by_users,
	       created_at, updated_at`

// ListForRole returns a role's inbox, newest first. When recipientID is
// given, personal items for that recipient plus role broadcasts are
// returned; items addressed to someone else are excluded.
func (r *InboxRepository) ListForRole(ctx context.Context, regionCode, role string, recipientID *int64, limit, offset int) ([]*InboxMessage, error) {
	db, err := r.router.Pool(ctx, regionCode)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 50
	}

	var messages []*InboxMessage

	if recipientID != nil {
		query := `
			SELECT ` + inboxColumns + `
			FROM inbox_messages
			WHERE assigned_role = $1 AND (recipient_id = $2 OR recipient_id IS NULL)
			ORDER BY created_at DESC, id DESC
			LIMIT $3 OFFSET $4
		`
		err = db.SelectContext(ctx, &messages, query, role, *recipientID, limit, offset)
	} else {
		query := `
			SELECT ` + inboxColumns + `
			FROM inbox_messages
			WHERE assigned_role = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2 OFFSET $3
		`
		err = db.SelectContext(ctx, &messages, query, role, limit, offset)
	}
	if err != nil {
		return nil, database.MapError(err)
	}

	return messages, nil
}

// MarkRead sets is_read and inbox_viewed. When a recipientID is given it
// is appended to seen_by_users with set semantics: an id already present
// is not appended again.
func (r *InboxRepository) MarkRead(ctx context.Context, regionCode, inboxID string, recipientID *int64) (bool, error) {
	db, err := r.router.Pool(ctx, regionCode)
	if err != nil {
		return false, err
	}

	var query string
	var args []any
	if recipientID != nil {
		query = `
			UPDATE inbox_messages
			SET is_read = TRUE,
			    inbox_viewed = TRUE,
			    seen_by_users = CASE
			        WHEN $2 = ANY(seen_by_users) THEN seen_by_users
			        ELSE array_append(seen_by_users, $2)
			    END,
			    updated_at = NOW()
			WHERE id = $1
		`
		args = []any{inboxID, *recipientID}
	} else {
		query = `
			UPDATE inbox_messages
			SET is_read = TRUE, inbox_viewed = TRUE, updated_at = NOW()
			WHERE id = $1
		`
		args = []any{inboxID}
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, database.MapError(err)
	}

	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// MarkCompleted sets the completed flag. Completing does not imply the
// item was read.
func (r *InboxRepository) MarkCompleted(ctx context.Context, regionCode, inboxID string) (bool, error) {
	db, err := r.router.Pool(ctx, regionCode)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE inbox_messages
		SET completed = TRUE, updated_at = NOW()
		WHERE id = $1
	`

	result, err := db.ExecContext(ctx, query, inboxID)
	if err != nil {
		return false, database.MapError(err)
	}

	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// HasOpenItem reports whether an uncompleted item already exists for the
// (application, role, message type) triple. Callers use this for the
// check-then-create dedup the at-least-once contract expects of them.
func (r *InboxRepository) HasOpenItem(ctx context.Context, regionCode, applicationID, role, messageType string) (bool, error) {
	db, err := r.router.Pool(ctx, regionCode)
	if err != nil {
		return false, err
	}

	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM inbox_messages
			WHERE application_id = $1 AND assigned_role = $2 AND message_type = $3
			  AND completed = FALSE
		)
	`

	if err := db.GetContext(ctx, &exists, query, applicationID, role, messageType); err != nil {
		return false, database.MapError(err)
	}

	return exists, nil
}
