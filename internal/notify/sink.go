package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	formmodel "github.com/OpenOA/formflow/internal/form/model"
)

// Sink delivers approval notifications to pending approvers.
type Sink interface {
	NotifyApprover(ctx context.Context, approverID uuid.UUID, flowName string, submission *formmodel.Submission) error
}

// LogSink writes notifications to the structured log instead of an external
// channel. It is the default sink when no messaging integration is enabled.
type LogSink struct{}

func NewLogSink() *LogSink {
	return &LogSink{}
}

func (s *LogSink) NotifyApprover(ctx context.Context, approverID uuid.UUID, flowName string, submission *formmodel.Submission) error {
	attrs := []any{
		"approver_id", approverID,
		"flow_name", flowName,
	}
	if submission != nil {
		attrs = append(attrs, "submission_id", submission.ID)
	}
	slog.InfoContext(ctx, "approval pending", attrs...)
	return nil
}
