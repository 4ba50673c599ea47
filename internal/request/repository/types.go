package repository

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Workflow types
const (
	WorkflowConnectionRequest = "connection_request"
	WorkflowTechnicalService  = "technical_service"
	WorkflowStaffCreated      = "staff_created"
)

// Priorities
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Well-known status tokens. Statuses are free-form strings; these are the
// tokens the standard workflows use, not a closed set.
const (
	StatusCreated    = "created"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Roles that participate in the workflow
const (
	RoleClient     = "client"
	RoleCallCenter = "call_center"
	RoleController = "controller"
	RoleTechnician = "technician"
	RoleManager    = "manager"
)

// JSONMap is a schema-less structured payload stored as JSONB.
// Its shape legitimately varies per workflow type (tariff, connection
// type, call notes, ...), so known keys are a convention, not a
// compile-time contract.
type JSONMap map[string]any

// Value implements driver.Valuer. A nil map is stored as an empty object
// so readers never see NULL where an object is expected.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner
func (m *JSONMap) Scan(src any) error {
	if src == nil {
		*m = JSONMap{}
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", src)
	}

	if len(data) == 0 {
		*m = JSONMap{}
		return nil
	}
	return json.Unmarshal(data, m)
}

// JSONList is a schema-less structured list stored as JSONB (e.g. the
// approvers recorded on a completed request).
type JSONList []any

// Value implements driver.Valuer; nil is stored as an empty array.
func (l JSONList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner
func (l *JSONList) Scan(src any) error {
	if src == nil {
		*l = JSONList{}
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONList", src)
	}

	if len(data) == 0 {
		*l = JSONList{}
		return nil
	}
	return json.Unmarshal(data, l)
}
