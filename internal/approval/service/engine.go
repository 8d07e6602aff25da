package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/OpenOA/formflow/internal/approval/model"
	"github.com/OpenOA/formflow/internal/directory"
	"github.com/OpenOA/formflow/internal/form"
	formmodel "github.com/OpenOA/formflow/internal/form/model"
)

// ApproverResolver resolves an approver reference to a concrete user ID.
// uuid.Nil means no approver is available, which is not an error.
type ApproverResolver interface {
	Resolve(ctx context.Context, approverType directory.ApproverType, target string, submitterID uuid.UUID) (uuid.UUID, error)
}

// Notifier delivers best-effort approval notifications. Failures are logged
// by the engine and never affect the routing decision.
type Notifier interface {
	NotifyApprover(ctx context.Context, approverID uuid.UUID, flowName string, submission *formmodel.Submission) error
}

// SubmitResult is the outcome of routing a new submission.
// Record is nil when the flow has no eligible node (pass-through) or when the
// first approver could not be resolved; ApproverUnresolved distinguishes the
// two.
type SubmitResult struct {
	Submission         *formmodel.Submission `json:"submission"`
	Record             *model.Record         `json:"record"`
	ApproverUnresolved bool                  `json:"approverUnresolved,omitempty"`
}

// DecisionResult is the outcome of deciding a pending record.
// Stranded is set when the chain could not advance because the next node's
// approver was unresolvable: the decided record stays committed, no next
// record exists, and the submission keeps its previous status.
type DecisionResult struct {
	Record           *model.Record              `json:"record"`
	NextRecord       *model.Record              `json:"nextRecord,omitempty"`
	SubmissionStatus formmodel.SubmissionStatus `json:"submissionStatus"`
	Stranded         bool                       `json:"stranded,omitempty"`
}

// Engine is the routing state machine. It walks a submission through its
// flow's eligible nodes, one pending record at a time, until a rejection or
// the end of the chain terminates the workflow.
type Engine struct {
	db          *gorm.DB
	flows       *FlowService
	records     *RecordService
	submissions *form.SubmissionService
	resolver    ApproverResolver
	notifier    Notifier
	validate    *validator.Validate
}

func NewEngine(db *gorm.DB, flows *FlowService, records *RecordService, submissions *form.SubmissionService, resolver ApproverResolver, notifier Notifier) *Engine {
	return &Engine{
		db:          db,
		flows:       flows,
		records:     records,
		submissions: submissions,
		resolver:    resolver,
		notifier:    notifier,
		validate:    validator.New(),
	}
}

// Submit stores the submitted form data and opens the first pending record.
// When no enabled node is eligible for the submitted values, or the first
// eligible node's approver cannot be resolved, the submission is persisted
// with no record and the workflow never starts.
func (e *Engine) Submit(ctx context.Context, flowID uuid.UUID, req *model.SubmitDTO) (*SubmitResult, error) {
	if req == nil {
		return nil, fmt.Errorf("submit request cannot be nil")
	}
	if err := e.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid submission: %w", err)
	}

	result := &SubmitResult{}
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		flow, err := e.flows.getFlowInTx(ctx, tx, flowID)
		if err != nil {
			return err
		}

		submission := &formmodel.Submission{
			FormID:      flow.FormID,
			Data:        formmodel.Values(req.Data),
			SubmittedBy: req.SubmittedBy,
		}
		if err := e.submissions.CreateSubmissionInTx(ctx, tx, submission); err != nil {
			return err
		}
		result.Submission = submission

		first := firstEligibleNode(flow.Nodes, req.Data)
		if first == nil {
			// No eligible node: the submission passes through untouched.
			return nil
		}

		approverID, err := e.resolver.Resolve(ctx, first.ApproverType, first.ApproverTarget, req.SubmittedBy)
		if err != nil {
			return fmt.Errorf("failed to resolve approver for node %s: %w", first.ID, err)
		}
		if approverID == uuid.Nil {
			result.ApproverUnresolved = true
			slog.WarnContext(ctx, "approver unresolvable at submit, no record created",
				"flow_id", flow.ID,
				"node_id", first.ID,
				"submission_id", submission.ID,
			)
			return nil
		}

		record := &model.Record{
			FlowID:       flow.ID,
			NodeID:       first.ID,
			SubmissionID: submission.ID,
			ApproverID:   approverID,
		}
		if err := e.records.CreatePendingInTx(ctx, tx, record); err != nil {
			return err
		}
		result.Record = record
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Record != nil {
		e.notify(ctx, flowID, result.Record.ApproverID, result.Submission)
	}
	return result, nil
}

// Decide applies an approve/reject decision to a pending record and advances
// or terminates the workflow. Exactly one concurrent caller wins the
// transition; the rest observe ErrAlreadyDecided.
func (e *Engine) Decide(ctx context.Context, recordID uuid.UUID, action model.DecisionAction, comment string) (*DecisionResult, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("invalid decision action %q", action)
	}

	result := &DecisionResult{}
	var submission *formmodel.Submission
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := e.records.GetRecordInTx(ctx, tx, recordID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		var commentPtr *string
		if comment != "" {
			commentPtr = &comment
		}
		if err := e.records.TransitionInTx(ctx, tx, record.ID, action.Status(), commentPtr, now); err != nil {
			return err
		}
		record.Status = action.Status()
		record.Comment = commentPtr
		record.DecidedAt = &now
		result.Record = record

		submission, err = e.submissions.GetSubmissionInTx(ctx, tx, record.SubmissionID)
		if err != nil {
			return err
		}

		if action == model.DecisionReject {
			// A rejection terminates the chain for good.
			if err := e.submissions.UpdateStatusInTx(ctx, tx, submission.ID, formmodel.SubmissionStatusRejected); err != nil {
				return err
			}
			result.SubmissionStatus = formmodel.SubmissionStatusRejected
			return nil
		}

		return e.advance(ctx, tx, record, submission, result)
	})
	if err != nil {
		return nil, err
	}

	if result.NextRecord != nil {
		e.notify(ctx, result.Record.FlowID, result.NextRecord.ApproverID, submission)
	}
	return result, nil
}

// advance finds the next eligible node after an approval and either opens the
// next pending record or completes the submission.
func (e *Engine) advance(ctx context.Context, tx *gorm.DB, record *model.Record, submission *formmodel.Submission, result *DecisionResult) error {
	flow, err := e.flows.getFlowInTx(ctx, tx, record.FlowID)
	if err != nil {
		return err
	}

	var current *model.Node
	for i := range flow.Nodes {
		if flow.Nodes[i].ID == record.NodeID {
			current = &flow.Nodes[i]
			break
		}
	}
	if current == nil {
		return fmt.Errorf("node %s: %w", record.NodeID, ErrNodeNotFound)
	}

	next := nextEligibleNode(flow.Nodes, current, submission.Data)
	if next == nil {
		if err := e.submissions.UpdateStatusInTx(ctx, tx, submission.ID, formmodel.SubmissionStatusCompleted); err != nil {
			return err
		}
		result.SubmissionStatus = formmodel.SubmissionStatusCompleted
		return nil
	}

	approverID, err := e.resolver.Resolve(ctx, next.ApproverType, next.ApproverTarget, submission.SubmittedBy)
	if err != nil {
		return fmt.Errorf("failed to resolve approver for node %s: %w", next.ID, err)
	}
	if approverID == uuid.Nil {
		// Inconsistent advancement: the approval above stays committed but the
		// chain cannot continue, leaving the submission without a pending
		// record and without a terminal status.
		result.Stranded = true
		result.SubmissionStatus = submission.Status
		slog.WarnContext(ctx, "workflow stranded: next approver unresolvable",
			"flow_id", flow.ID,
			"node_id", next.ID,
			"submission_id", submission.ID,
		)
		return nil
	}

	nextRecord := &model.Record{
		FlowID:       flow.ID,
		NodeID:       next.ID,
		SubmissionID: submission.ID,
		ApproverID:   approverID,
	}
	if err := e.records.CreatePendingInTx(ctx, tx, nextRecord); err != nil {
		return err
	}
	result.NextRecord = nextRecord
	result.SubmissionStatus = submission.Status
	return nil
}

// DecideByExternalRef maps an inbound third-party status change onto the
// decide contract, keyed by the record's external reference. Non-terminal
// statuses are acknowledged without any transition.
func (e *Engine) DecideByExternalRef(ctx context.Context, spNo string, status model.RecordStatus, comment string) (*DecisionResult, error) {
	if !status.Terminal() {
		return nil, nil
	}

	record, err := e.records.GetByExternalRef(ctx, spNo)
	if err != nil {
		return nil, err
	}

	action := model.DecisionApprove
	if status == model.RecordStatusRejected {
		action = model.DecisionReject
	}
	return e.Decide(ctx, record.ID, action, comment)
}

// notify dispatches a best-effort approver notification after the routing
// transaction has committed. Failures are logged and never propagated.
func (e *Engine) notify(ctx context.Context, flowID uuid.UUID, approverID uuid.UUID, submission *formmodel.Submission) {
	if e.notifier == nil {
		return
	}

	flowName := ""
	if flow, err := e.flows.GetFlow(ctx, flowID); err == nil {
		flowName = flow.Name
	}

	if err := e.notifier.NotifyApprover(ctx, approverID, flowName, submission); err != nil {
		slog.WarnContext(ctx, "approver notification failed",
			"flow_id", flowID,
			"approver_id", approverID,
			"error", err,
		)
	}
}
