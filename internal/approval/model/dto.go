package model

import (
	"github.com/google/uuid"

	"github.com/OpenOA/formflow/internal/directory"
)

// NodeInput describes one node in a flow create/update payload.
// A nil ID means "create"; a set ID means "update in place". Nodes present in
// the database but absent from the payload are deleted on update.
type NodeInput struct {
	ID             *uuid.UUID             `json:"id"`
	Name           string                 `json:"name" validate:"required,max=50"`
	Kind           NodeKind               `json:"kind" validate:"required,oneof=approval notify"`
	ApproverType   directory.ApproverType `json:"approverType" validate:"required,oneof=user role department"`
	ApproverTarget string                 `json:"approverId" validate:"required,max=64"`
	Conditions     Conditions             `json:"conditions" validate:"omitempty,dive"`
	SortOrder      int                    `json:"order"`
	Enabled        *bool                  `json:"enabled"`
}

// CreateFlowDTO is the payload for defining a new flow.
type CreateFlowDTO struct {
	Name        string      `json:"name" validate:"required,max=100"`
	Description string      `json:"description" validate:"max=500"`
	FormID      uuid.UUID   `json:"formId" validate:"required"`
	Enabled     *bool       `json:"enabled"`
	Nodes       []NodeInput `json:"nodes" validate:"required,min=1,dive"`
}

// UpdateFlowDTO is the payload for updating a flow. Nil fields are untouched;
// a non-nil Nodes slice triggers the reconcile-by-identity node replace.
type UpdateFlowDTO struct {
	Name        *string      `json:"name" validate:"omitempty,max=100"`
	Description *string      `json:"description" validate:"omitempty,max=500"`
	Enabled     *bool        `json:"enabled"`
	Nodes       *[]NodeInput `json:"nodes" validate:"omitempty,dive"`
}

// SubmitDTO is the payload for submitting form data into a flow.
// SubmittedBy identifies the submitter; authentication is handled upstream.
type SubmitDTO struct {
	Data        map[string]any `json:"data" validate:"required"`
	SubmittedBy uuid.UUID      `json:"submittedBy" validate:"required"`
}

// DecideDTO is the payload for deciding a pending record.
type DecideDTO struct {
	Action  DecisionAction `json:"action" validate:"required,oneof=approve reject"`
	Comment string         `json:"comment" validate:"max=2000"`
}
