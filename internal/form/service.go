package form

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/OpenOA/formflow/internal/form/model"
)

// ErrSubmissionNotFound is returned when a submission lookup misses.
var ErrSubmissionNotFound = errors.New("submission not found")

// ErrFormNotFound is returned when a form lookup misses.
var ErrFormNotFound = errors.New("form not found")

// SubmissionService provides persistence operations for forms and their submissions.
type SubmissionService struct {
	db *gorm.DB
}

func NewSubmissionService(db *gorm.DB) *SubmissionService {
	return &SubmissionService{db: db}
}

// GetForm retrieves a form with its field definitions.
func (s *SubmissionService) GetForm(ctx context.Context, formID uuid.UUID) (*model.Form, error) {
	if formID == uuid.Nil {
		return nil, fmt.Errorf("form ID cannot be nil")
	}

	var f model.Form
	result := s.db.WithContext(ctx).Preload("Fields").First(&f, "id = ?", formID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, fmt.Errorf("failed to retrieve form: %w", result.Error)
	}
	return &f, nil
}

// CreateSubmissionInTx persists a new submission within an existing transaction.
// The submitted_at timestamp and the initial "submitted" status are stamped by
// the model's BeforeCreate hook.
func (s *SubmissionService) CreateSubmissionInTx(ctx context.Context, tx *gorm.DB, submission *model.Submission) error {
	if submission == nil {
		return fmt.Errorf("submission cannot be nil")
	}
	if submission.FormID == uuid.Nil {
		return fmt.Errorf("submission form ID cannot be nil")
	}
	if submission.SubmittedBy == uuid.Nil {
		return fmt.Errorf("submission submitter cannot be nil")
	}

	if err := tx.WithContext(ctx).Create(submission).Error; err != nil {
		return fmt.Errorf("failed to create submission: %w", err)
	}
	return nil
}

// GetSubmission retrieves a submission by its ID.
func (s *SubmissionService) GetSubmission(ctx context.Context, submissionID uuid.UUID) (*model.Submission, error) {
	return s.GetSubmissionInTx(ctx, s.db, submissionID)
}

// GetSubmissionInTx retrieves a submission by its ID within an existing transaction.
func (s *SubmissionService) GetSubmissionInTx(ctx context.Context, tx *gorm.DB, submissionID uuid.UUID) (*model.Submission, error) {
	if submissionID == uuid.Nil {
		return nil, fmt.Errorf("submission ID cannot be nil")
	}

	var sub model.Submission
	result := tx.WithContext(ctx).First(&sub, "id = ?", submissionID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to retrieve submission: %w", result.Error)
	}
	return &sub, nil
}

// UpdateStatusInTx sets a submission's workflow status within an existing transaction.
func (s *SubmissionService) UpdateStatusInTx(ctx context.Context, tx *gorm.DB, submissionID uuid.UUID, status model.SubmissionStatus) error {
	if submissionID == uuid.Nil {
		return fmt.Errorf("submission ID cannot be nil")
	}
	if status == "" {
		return fmt.Errorf("submission status cannot be empty")
	}

	result := tx.WithContext(ctx).Model(&model.Submission{}).
		Where("id = ?", submissionID).
		Update("status", status)

	if result.Error != nil {
		return fmt.Errorf("failed to update submission status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSubmissionNotFound
	}
	return nil
}
