package wecom

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/OpenOA/formflow/internal/directory"
	formmodel "github.com/OpenOA/formflow/internal/form/model"
)

// UserDirectory looks up the directory user behind an approver ID.
type UserDirectory interface {
	GetUser(ctx context.Context, userID uuid.UUID) (*directory.User, error)
}

// Sink delivers approval notifications as WeCom textcard messages. Approvers
// without a linked WeCom account are skipped.
type Sink struct {
	client *Client
	users  UserDirectory
}

func NewSink(client *Client, users UserDirectory) *Sink {
	return &Sink{client: client, users: users}
}

func (s *Sink) NotifyApprover(ctx context.Context, approverID uuid.UUID, flowName string, submission *formmodel.Submission) error {
	user, err := s.users.GetUser(ctx, approverID)
	if err != nil {
		return fmt.Errorf("failed to look up approver %s: %w", approverID, err)
	}
	if user.WeComUserID == "" {
		slog.InfoContext(ctx, "approver has no wecom account, skipping notification",
			"approver_id", approverID,
		)
		return nil
	}

	card := TextCard{
		Title:       "Approval pending",
		Description: fmt.Sprintf("A submission on %q is waiting for your approval.", flowName),
		URL:         "",
		BtnTxt:      "Review",
	}
	if submission != nil {
		card.Description = fmt.Sprintf("Submission %s on %q is waiting for your approval.", submission.ID, flowName)
	}
	return s.client.SendTextCard(ctx, user.WeComUserID, card)
}
