package service

import (
	"context"
	"time"

	"github.com/reqflow/reqflow-backend/internal/request/events"
	"github.com/reqflow/reqflow-backend/internal/request/repository"
	apperrors "github.com/reqflow/reqflow-backend/pkg/errors"
	"github.com/reqflow/reqflow-backend/pkg/logger"
	"github.com/reqflow/reqflow-backend/pkg/validation"
)

// WorkflowService orchestrates the multi-role service request workflow:
// store writes, transition/audit logging, inbox fan-out and event
// publishing.
//
// Multi-write operations are not transactional across tables. Each step
// commits independently; when a later step fails the earlier writes
// stand and the error is a StepError naming the failed step, so callers
// can retry or compensate without losing the committed work.
type WorkflowService struct {
	requests    *repository.RequestRepository
	transitions *repository.TransitionRepository
	audit       *repository.AuditRepository
	inbox       *repository.InboxRepository
	tracking    *repository.TimeTrackingRepository
	stats       *repository.StatisticsRepository
	publisher   *events.RequestEventPublisher
	logger      *logger.Logger
}

// NewWorkflowService creates a new workflow service. The publisher may
// be nil when no broker is configured; events are then skipped.
func NewWorkflowService(
	requests *repository.RequestRepository,
	transitions *repository.TransitionRepository,
	audit *repository.AuditRepository,
	inbox *repository.InboxRepository,
	tracking *repository.TimeTrackingRepository,
	stats *repository.StatisticsRepository,
	publisher *events.RequestEventPublisher,
	log *logger.Logger,
) *WorkflowService {
	return &WorkflowService{
		requests:    requests,
		transitions: transitions,
		audit:       audit,
		inbox:       inbox,
		tracking:    tracking,
		stats:       stats,
		publisher:   publisher,
		logger:      log,
	}
}

// CreateRequestInput holds the parameters for opening a service request.
type CreateRequestInput struct {
	WorkflowType     string  `validate:"omitempty,oneof=connection_request technical_service staff_created"`
	Priority         string  `validate:"omitempty,oneof=low medium high urgent"`
	RoleCurrent      *string `validate:"omitempty,min=1"`
	ClientID         *int64
	ContactPhone     *string `validate:"omitempty,min=5"`
	ContactFullName  *string
	Address          *string
	Description      *string
	CreatedByStaff   bool
	StaffCreatorID   *int64
	StaffCreatorRole *string
	CreationSource   *string
	StateData        map[string]any
	ActorID          *int64
	ActorRole        *string
	InboxTitle       string
}

// CreateRequest creates a service request, records the audit entry,
// fans the work item out to the owning role when one is set, and
// publishes the created event. A failure after the create returns the
// created request alongside a StepError: the id is durable and must not
// be thrown away.
func (s *WorkflowService) CreateRequest(ctx context.Context, region string, in CreateRequestInput) (*repository.ServiceRequest, error) {
	if err := validation.Validate(in); err != nil {
		return nil, err
	}

	req := &repository.ServiceRequest{
		WorkflowType:     in.WorkflowType,
		Priority:         in.Priority,
		RoleCurrent:      in.RoleCurrent,
		ClientID:         in.ClientID,
		ContactPhone:     in.ContactPhone,
		ContactFullName:  in.ContactFullName,
		Address:          in.Address,
		Description:      in.Description,
		CreatedByStaff:   in.CreatedByStaff,
		StaffCreatorID:   in.StaffCreatorID,
		StaffCreatorRole: in.StaffCreatorRole,
		CreationSource:   in.CreationSource,
		StateData:        repository.JSONMap(in.StateData),
	}

	if err := s.requests.Create(ctx, region, req); err != nil {
		return nil, err
	}

	auditEntry := &repository.AuditEntry{
		ActorID:    in.ActorID,
		ActorRole:  in.ActorRole,
		Action:     "request_created",
		EntityType: strPtr("service_request"),
		EntityID:   &req.ID,
		AfterData:  repository.JSONMap{"workflow_type": req.WorkflowType, "priority": req.Priority},
	}
	if err := s.audit.Record(ctx, region, auditEntry); err != nil {
		return req, apperrors.Step("audit", err)
	}

	if in.RoleCurrent != nil {
		msg := &repository.InboxMessage{
			ApplicationID: req.ID,
			AssignedRole:  *in.RoleCurrent,
			Title:         in.InboxTitle,
			Priority:      req.Priority,
		}
		if msg.Title == "" {
			msg.Title = "New " + req.WorkflowType
		}
		if err := s.inbox.CreateOnAssignment(ctx, region, msg); err != nil {
			return req, apperrors.Step("inbox", err)
		}
		if s.publisher != nil {
			s.publisher.PublishInboxItemCreated(ctx, region, msg)
		}
	}

	if s.publisher != nil {
		s.publisher.PublishRequestCreated(ctx, region, req)
	}

	s.logger.Info().
		Str("region", region).
		Str("request_id", req.ID).
		Str("workflow_type", req.WorkflowType).
		Msg("service request created")

	return req, nil
}

// HandOffInput holds the parameters for moving a request between roles.
type HandOffInput struct {
	RequestID      string `validate:"required,uuid"`
	FromRole       *string
	ToRole         string `validate:"required,min=1"`
	Action         string
	NewStatus      string
	AssigneeID     *int64
	ActorID        *int64
	Comments       *string
	TransitionData map[string]any
	InboxTitle     string
	RecipientID    *int64
}

// HandOff moves a request to the receiving role: whitelisted update of
// the ownership columns, an appended transition, a deduplicated inbox
// fan-out and the handoff event. The inbox check-then-create keeps the
// at-least-once delivery from piling up open duplicates for the same
// role.
func (s *WorkflowService) HandOff(ctx context.Context, region string, in HandOffInput) error {
	if err := validation.Validate(in); err != nil {
		return err
	}
	if in.Action == "" {
		in.Action = "forward"
	}

	fields := map[string]any{
		"role_current": in.ToRole,
	}
	if in.NewStatus != "" {
		fields["current_status"] = in.NewStatus
	}
	if in.AssigneeID != nil {
		fields["current_assignee_id"] = *in.AssigneeID
		fields["current_assignee_role"] = in.ToRole
	}

	ok, err := s.requests.Update(ctx, region, in.RequestID, fields)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NotFound("service request")
	}

	tr := &repository.StateTransition{
		RequestID:      in.RequestID,
		FromRole:       in.FromRole,
		ToRole:         in.ToRole,
		Action:         in.Action,
		ActorID:        in.ActorID,
		TransitionData: repository.JSONMap(in.TransitionData),
		Comments:       in.Comments,
	}
	if err := s.transitions.Record(ctx, region, tr); err != nil {
		return apperrors.Step("transition", err)
	}

	auditEntry := &repository.AuditEntry{
		ActorID:    in.ActorID,
		ActorRole:  in.FromRole,
		Action:     "request_handed_off",
		EntityType: strPtr("service_request"),
		EntityID:   &in.RequestID,
		Params:     repository.JSONMap{"to_role": in.ToRole, "action": in.Action},
	}
	if err := s.audit.Record(ctx, region, auditEntry); err != nil {
		return apperrors.Step("audit", err)
	}

	open, err := s.inbox.HasOpenItem(ctx, region, in.RequestID, in.ToRole, repository.MessageTypeApplication)
	if err != nil {
		return apperrors.Step("inbox", err)
	}
	if !open {
		msg := &repository.InboxMessage{
			ApplicationID: in.RequestID,
			AssignedRole:  in.ToRole,
			Title:         in.InboxTitle,
			RecipientID:   in.RecipientID,
		}
		if msg.Title == "" {
			msg.Title = "Request handed off to " + in.ToRole
		}
		if err := s.inbox.CreateOnAssignment(ctx, region, msg); err != nil {
			return apperrors.Step("inbox", err)
		}
		if s.publisher != nil {
			s.publisher.PublishInboxItemCreated(ctx, region, msg)
		}
	}

	if s.publisher != nil {
		s.publisher.PublishRequestHandedOff(ctx, region, tr)
	}

	return nil
}

// CompleteInput holds the parameters for closing a request.
type CompleteInput struct {
	RequestID          string `validate:"required,uuid"`
	ActorID            *int64
	ActorRole          *string
	Diagnosis          *string
	EquipmentInstalled *string
	InstallationNotes  *string
	Comments           *string
}

// Complete moves a request to its terminal completed status, records the
// closing transition and closes the actor's open work interval.
func (s *WorkflowService) Complete(ctx context.Context, region string, in CompleteInput) error {
	if err := validation.Validate(in); err != nil {
		return err
	}

	fields := map[string]any{
		"current_status": repository.StatusCompleted,
	}
	if in.Diagnosis != nil {
		fields["diagnosis"] = *in.Diagnosis
	}
	if in.EquipmentInstalled != nil {
		fields["equipment_installed"] = *in.EquipmentInstalled
	}
	if in.InstallationNotes != nil {
		fields["installation_notes"] = *in.InstallationNotes
	}

	ok, err := s.requests.Update(ctx, region, in.RequestID, fields)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NotFound("service request")
	}

	toRole := repository.RoleManager
	if in.ActorRole != nil {
		toRole = *in.ActorRole
	}
	tr := &repository.StateTransition{
		RequestID: in.RequestID,
		FromRole:  in.ActorRole,
		ToRole:    toRole,
		Action:    "complete",
		ActorID:   in.ActorID,
		Comments:  in.Comments,
	}
	if err := s.transitions.Record(ctx, region, tr); err != nil {
		return apperrors.Step("transition", err)
	}

	if in.ActorID != nil {
		if _, err := s.tracking.End(ctx, region, repository.EndInput{
			RequestID: in.RequestID,
			UserID:    *in.ActorID,
		}); err != nil {
			return apperrors.Step("time_tracking", err)
		}
	}

	if s.publisher != nil {
		s.publisher.PublishRequestCompleted(ctx, region, in.RequestID, in.ActorID)
	}

	return nil
}

// Cancel moves a request to its terminal cancelled status and records
// the cancelling transition.
func (s *WorkflowService) Cancel(ctx context.Context, region, requestID string, actorID *int64, actorRole *string, reason *string) error {
	ok, err := s.requests.Update(ctx, region, requestID, map[string]any{
		"current_status": repository.StatusCancelled,
	})
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NotFound("service request")
	}

	toRole := repository.RoleManager
	if actorRole != nil {
		toRole = *actorRole
	}
	tr := &repository.StateTransition{
		RequestID: requestID,
		FromRole:  actorRole,
		ToRole:    toRole,
		Action:    "cancel",
		ActorID:   actorID,
		Comments:  reason,
	}
	if err := s.transitions.Record(ctx, region, tr); err != nil {
		return apperrors.Step("transition", err)
	}

	if s.publisher != nil {
		s.publisher.PublishRequestCancelled(ctx, region, requestID, actorID)
	}

	return nil
}

// RateRequest records a client's rating on a completed request.
func (s *WorkflowService) RateRequest(ctx context.Context, region, requestID string, rating int, comments *string) error {
	if rating < 1 || rating > 5 {
		return apperrors.ValidationRejected(map[string]string{"rating": "must be between 1 and 5"})
	}

	fields := map[string]any{
		"completion_rating": rating,
		"rated_at":          time.Now().UTC(),
	}
	if comments != nil {
		fields["feedback_comments"] = *comments
	}

	ok, err := s.requests.Update(ctx, region, requestID, fields)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NotFound("service request")
	}

	if s.publisher != nil {
		s.publisher.PublishRequestRated(ctx, region, requestID, rating)
	}

	return nil
}

// UpdateRequest exposes the whitelisted partial update. A request whose
// every key falls outside the allow-list is rejected rather than
// silently succeeding as a no-op.
func (s *WorkflowService) UpdateRequest(ctx context.Context, region, requestID string, fields map[string]any) error {
	allowed := 0
	for key := range fields {
		if repository.UpdatableField(key) {
			allowed++
		}
	}
	if allowed == 0 {
		return apperrors.ValidationRejected(map[string]string{"fields": "no updatable field provided"})
	}

	ok, err := s.requests.Update(ctx, region, requestID, fields)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NotFound("service request")
	}
	return nil
}

// GetRequest retrieves a service request by id
func (s *WorkflowService) GetRequest(ctx context.Context, region, requestID string) (*repository.ServiceRequest, error) {
	return s.requests.Get(ctx, region, requestID)
}

// SearchRequests lists requests matching the filter, newest first
func (s *WorkflowService) SearchRequests(ctx context.Context, region string, filter repository.RequestFilter, limit, offset int) ([]*repository.ServiceRequest, error) {
	return s.requests.Search(ctx, region, filter, limit, offset)
}

// History returns a request's transition log in replay order
func (s *WorkflowService) History(ctx context.Context, region, requestID string, limit, offset int) ([]*repository.StateTransition, error) {
	return s.transitions.History(ctx, region, requestID, limit, offset)
}

// RecomputeDailyStatistics rebuilds the rollup for a date from the
// request store and the time tracking log. Safe to run repeatedly.
func (s *WorkflowService) RecomputeDailyStatistics(ctx context.Context, region string, date time.Time) (*repository.DailyStatistics, error) {
	stats, err := s.stats.CollectDaily(ctx, region, date)
	if err != nil {
		return nil, err
	}
	if err := s.stats.UpsertDaily(ctx, region, stats); err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("region", region).
		Time("stat_date", stats.StatDate).
		Int("total_requests", stats.TotalRequests).
		Msg("daily statistics recomputed")

	return stats, nil
}

// RecomputeEmployeePerformance rebuilds one user's rollup for a date.
func (s *WorkflowService) RecomputeEmployeePerformance(ctx context.Context, region string, userID int64, date time.Time) (*repository.EmployeePerformance, error) {
	perf, err := s.stats.CollectEmployeePerformance(ctx, region, userID, date)
	if err != nil {
		return nil, err
	}
	if err := s.stats.UpsertEmployeePerformance(ctx, region, perf); err != nil {
		return nil, err
	}
	return perf, nil
}

// helper: create a string pointer
func strPtr(s string) *string {
	return &s
}
