package model

import (
	"time"

	"github.com/google/uuid"
)

// RecordStatus is the decision state of an approval record.
type RecordStatus string

const (
	RecordStatusPending  RecordStatus = "pending"
	RecordStatusApproved RecordStatus = "approved"
	RecordStatusRejected RecordStatus = "rejected"
)

// Terminal reports whether the status is a final decision.
func (s RecordStatus) Terminal() bool {
	return s == RecordStatusApproved || s == RecordStatusRejected
}

// Record is the per-submission, per-node instance of a decision in progress
// or resolved. At most one record per submission is pending at any time.
type Record struct {
	BaseModel
	FlowID       uuid.UUID    `gorm:"type:uuid;column:flow_id;not null;index" json:"flowId"`
	NodeID       uuid.UUID    `gorm:"type:uuid;column:node_id;not null;index" json:"nodeId"`
	SubmissionID uuid.UUID    `gorm:"type:uuid;column:submission_id;not null;index" json:"submissionId"`
	ApproverID   uuid.UUID    `gorm:"type:uuid;column:approver_id;not null;index" json:"approverId"`
	Status       RecordStatus `gorm:"type:varchar(20);column:status;not null;index" json:"status"`
	Comment      *string      `gorm:"type:text;column:comment" json:"comment,omitempty"`
	SpNo         *string      `gorm:"type:varchar(64);column:sp_no;index" json:"spNo,omitempty"` // External approval reference (WeCom sp_no)
	DecidedAt    *time.Time   `gorm:"type:timestamptz;column:decided_at" json:"decidedAt,omitempty"`
}

func (r *Record) TableName() string {
	return "approval_records"
}

// IsPending reports whether the record still awaits a decision.
func (r *Record) IsPending() bool {
	return r.Status == RecordStatusPending
}

// CycleHours returns the hours between the submission's submitted-at time and
// this record's decision time; nil when the record is undecided.
func (r *Record) CycleHours(submittedAt time.Time) *float64 {
	if r.DecidedAt == nil {
		return nil
	}
	hours := r.DecidedAt.Sub(submittedAt).Hours()
	return &hours
}

// DecisionAction is a caller-requested decision on a pending record.
type DecisionAction string

const (
	DecisionApprove DecisionAction = "approve"
	DecisionReject  DecisionAction = "reject"
)

// Status returns the record status an action transitions to.
func (a DecisionAction) Status() RecordStatus {
	if a == DecisionReject {
		return RecordStatusRejected
	}
	return RecordStatusApproved
}

// Valid reports whether the action is one of the known variants.
func (a DecisionAction) Valid() bool {
	return a == DecisionApprove || a == DecisionReject
}

// StatisticsSummary aggregates counts and mean cycle time over a record set.
type StatisticsSummary struct {
	Total             int     `json:"total"`
	Pending           int     `json:"pending"`
	Approved          int     `json:"approved"`
	Rejected          int     `json:"rejected"`
	AverageCycleHours float64 `json:"averageCycleHours"`
}
