package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Service request lifecycle events
	EventRequestCreated   = "request.created"
	EventRequestHandedOff = "request.handed_off"
	EventRequestCompleted = "request.completed"
	EventRequestCancelled = "request.cancelled"
	EventRequestRated     = "request.rated"

	// Inbox events
	EventInboxItemCreated = "inbox.item.created"
)

// Exchange names
const (
	ExchangeRequestEvents = "request.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Region        string          `json:"region"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, region, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Region:        region,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// RequestCreatedEvent is published when a service request is created
type RequestCreatedEvent struct {
	RequestID    string `json:"request_id"`
	WorkflowType string `json:"workflow_type"`
	Priority     string `json:"priority"`
	RoleCurrent  string `json:"role_current,omitempty"`
	ClientID     *int64 `json:"client_id,omitempty"`
}

// RequestHandedOffEvent is published when a request moves between roles
type RequestHandedOffEvent struct {
	RequestID string `json:"request_id"`
	FromRole  string `json:"from_role"`
	ToRole    string `json:"to_role"`
	Action    string `json:"action"`
	ActorID   *int64 `json:"actor_id,omitempty"`
}

// RequestCompletedEvent is published when a request reaches a terminal status
type RequestCompletedEvent struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	ActorID   *int64 `json:"actor_id,omitempty"`
}

// RequestRatedEvent is published when a client rates a completed request
type RequestRatedEvent struct {
	RequestID string `json:"request_id"`
	Rating    int    `json:"rating"`
}

// InboxItemCreatedEvent is published when a work item is fanned out to a role
type InboxItemCreatedEvent struct {
	InboxID       string `json:"inbox_id"`
	ApplicationID string `json:"application_id"`
	AssignedRole  string `json:"assigned_role"`
	RecipientID   *int64 `json:"recipient_id,omitempty"`
}
