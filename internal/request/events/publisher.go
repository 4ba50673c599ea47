package events

import (
	"context"

	"github.com/reqflow/reqflow-backend/internal/request/repository"
	"github.com/reqflow/reqflow-backend/pkg/logger"
	"github.com/reqflow/reqflow-backend/pkg/messaging"
)

// RequestEventPublisher publishes service request lifecycle events.
//
// Publishing is best-effort: a failed publish is logged and swallowed so
// the storage write it follows is never rolled back or retried because
// of a broker hiccup.
type RequestEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewRequestEventPublisher creates a new request event publisher
func NewRequestEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*RequestEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeRequestEvents, "request-core", log)
	if err != nil {
		return nil, err
	}

	return &RequestEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishRequestCreated publishes a request created event
func (p *RequestEventPublisher) PublishRequestCreated(ctx context.Context, region string, req *repository.ServiceRequest) {
	data := messaging.RequestCreatedEvent{
		RequestID:    req.ID,
		WorkflowType: req.WorkflowType,
		Priority:     req.Priority,
		ClientID:     req.ClientID,
	}
	if req.RoleCurrent != nil {
		data.RoleCurrent = *req.RoleCurrent
	}

	if err := p.publisher.Publish(ctx, messaging.EventRequestCreated, region, data); err != nil {
		p.logger.Error().Err(err).Str("request_id", req.ID).Msg("failed to publish request created event")
	}
}

// PublishRequestHandedOff publishes a handoff event
func (p *RequestEventPublisher) PublishRequestHandedOff(ctx context.Context, region string, tr *repository.StateTransition) {
	data := messaging.RequestHandedOffEvent{
		RequestID: tr.RequestID,
		ToRole:    tr.ToRole,
		Action:    tr.Action,
		ActorID:   tr.ActorID,
	}
	if tr.FromRole != nil {
		data.FromRole = *tr.FromRole
	}

	if err := p.publisher.Publish(ctx, messaging.EventRequestHandedOff, region, data); err != nil {
		p.logger.Error().Err(err).Str("request_id", tr.RequestID).Msg("failed to publish handoff event")
	}
}

// PublishRequestCompleted publishes a completion event
func (p *RequestEventPublisher) PublishRequestCompleted(ctx context.Context, region, requestID string, actorID *int64) {
	data := messaging.RequestCompletedEvent{
		RequestID: requestID,
		Status:    repository.StatusCompleted,
		ActorID:   actorID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventRequestCompleted, region, data); err != nil {
		p.logger.Error().Err(err).Str("request_id", requestID).Msg("failed to publish completion event")
	}
}

// PublishRequestCancelled publishes a cancellation event
func (p *RequestEventPublisher) PublishRequestCancelled(ctx context.Context, region, requestID string, actorID *int64) {
	data := messaging.RequestCompletedEvent{
		RequestID: requestID,
		Status:    repository.StatusCancelled,
		ActorID:   actorID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventRequestCancelled, region, data); err != nil {
		p.logger.Error().Err(err).Str("request_id", requestID).Msg("failed to publish cancellation event")
	}
}

// PublishRequestRated publishes a rating event
func (p *RequestEventPublisher) PublishRequestRated(ctx context.Context, region, requestID string, rating int) {
	data := messaging.RequestRatedEvent{
		RequestID: requestID,
		Rating:    rating,
	}

	if err := p.publisher.Publish(ctx, messaging.EventRequestRated, region, data); err != nil {
		p.logger.Error().Err(err).Str("request_id", requestID).Msg("failed to publish rating event")
	}
}

// PublishInboxItemCreated publishes an inbox fan-out event
func (p *RequestEventPublisher) PublishInboxItemCreated(ctx context.Context, region string, msg *repository.InboxMessage) {
	data := messaging.InboxItemCreatedEvent{
		InboxID:       msg.ID,
		ApplicationID: msg.ApplicationID,
		AssignedRole:  msg.AssignedRole,
		RecipientID:   msg.RecipientID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventInboxItemCreated, region, data); err != nil {
		p.logger.Error().Err(err).Str("inbox_id", msg.ID).Msg("failed to publish inbox item event")
	}
}
