package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/OpenOA/formflow/internal/approval/model"
)

// RecordService is the ledger of approval records. All status mutations go
// through TransitionInTx, which is a single conditional update, so a record
// leaves the pending state exactly once.
type RecordService struct {
	db *gorm.DB
}

func NewRecordService(db *gorm.DB) *RecordService {
	return &RecordService{db: db}
}

// CreatePendingInTx appends a new pending record for a submission. It fails
// fast when the submission already has a pending record; the at-most-one
// in-flight invariant is never supposed to be violated by a correct caller.
func (s *RecordService) CreatePendingInTx(ctx context.Context, tx *gorm.DB, record *model.Record) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if record.SubmissionID == uuid.Nil {
		return fmt.Errorf("record submission ID cannot be nil")
	}
	record.Status = model.RecordStatusPending

	var pending int64
	err := tx.WithContext(ctx).Model(&model.Record{}).
		Where("submission_id = ? AND status = ?", record.SubmissionID, model.RecordStatusPending).
		Count(&pending).Error
	if err != nil {
		return fmt.Errorf("failed to check for pending records: %w", err)
	}
	if pending > 0 {
		return ErrPendingRecordExists
	}

	if err := tx.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create approval record: %w", err)
	}
	return nil
}

// TransitionInTx moves a pending record to a terminal status. The guard is a
// conditional update on (id, status = pending): when another decision already
// won, zero rows are affected and ErrAlreadyDecided is returned.
func (s *RecordService) TransitionInTx(ctx context.Context, tx *gorm.DB, recordID uuid.UUID, status model.RecordStatus, comment *string, decidedAt time.Time) error {
	if recordID == uuid.Nil {
		return fmt.Errorf("record ID cannot be nil")
	}
	if !status.Terminal() {
		return fmt.Errorf("cannot transition record %s to non-terminal status %s", recordID, status)
	}

	result := tx.WithContext(ctx).Model(&model.Record{}).
		Where("id = ? AND status = ?", recordID, model.RecordStatusPending).
		Updates(map[string]any{
			"status":     status,
			"comment":    comment,
			"decided_at": decidedAt,
			"updated_at": decidedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to transition record %s: %w", recordID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyDecided
	}
	return nil
}

// GetRecord retrieves a record by its ID.
func (s *RecordService) GetRecord(ctx context.Context, recordID uuid.UUID) (*model.Record, error) {
	return s.GetRecordInTx(ctx, s.db, recordID)
}

// GetRecordInTx retrieves a record by its ID within an existing transaction.
func (s *RecordService) GetRecordInTx(ctx context.Context, tx *gorm.DB, recordID uuid.UUID) (*model.Record, error) {
	if recordID == uuid.Nil {
		return nil, fmt.Errorf("record ID cannot be nil")
	}

	var record model.Record
	result := tx.WithContext(ctx).First(&record, "id = ?", recordID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to retrieve record: %w", result.Error)
	}
	return &record, nil
}

// GetByExternalRef retrieves a record by its external approval reference.
func (s *RecordService) GetByExternalRef(ctx context.Context, spNo string) (*model.Record, error) {
	if spNo == "" {
		return nil, fmt.Errorf("external reference cannot be empty")
	}

	var record model.Record
	result := s.db.WithContext(ctx).First(&record, "sp_no = ?", spNo)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to retrieve record by external reference: %w", result.Error)
	}
	return &record, nil
}

// AttachExternalRef stores the external approval reference on a record.
func (s *RecordService) AttachExternalRef(ctx context.Context, recordID uuid.UUID, spNo string) error {
	if recordID == uuid.Nil {
		return fmt.Errorf("record ID cannot be nil")
	}
	if spNo == "" {
		return fmt.Errorf("external reference cannot be empty")
	}

	result := s.db.WithContext(ctx).Model(&model.Record{}).
		Where("id = ?", recordID).
		Update("sp_no", spNo)
	if result.Error != nil {
		return fmt.Errorf("failed to attach external reference: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// CurrentPending returns the submission's pending record, or nil when the
// submission has none in flight.
func (s *RecordService) CurrentPending(ctx context.Context, submissionID uuid.UUID) (*model.Record, error) {
	if submissionID == uuid.Nil {
		return nil, fmt.Errorf("submission ID cannot be nil")
	}

	var record model.Record
	result := s.db.WithContext(ctx).
		Where("submission_id = ? AND status = ?", submissionID, model.RecordStatusPending).
		First(&record)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to retrieve pending record: %w", result.Error)
	}
	return &record, nil
}

// History returns all records for a submission in creation order.
func (s *RecordService) History(ctx context.Context, submissionID uuid.UUID) ([]model.Record, error) {
	if submissionID == uuid.Nil {
		return nil, fmt.Errorf("submission ID cannot be nil")
	}

	var records []model.Record
	result := s.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to retrieve record history: %w", result.Error)
	}

	sortRecords(records)
	return records, nil
}

// PendingForApprover lists all records awaiting a decision from one approver.
func (s *RecordService) PendingForApprover(ctx context.Context, approverID uuid.UUID) ([]model.Record, error) {
	if approverID == uuid.Nil {
		return nil, fmt.Errorf("approver ID cannot be nil")
	}

	var records []model.Record
	result := s.db.WithContext(ctx).
		Where("approver_id = ? AND status = ?", approverID, model.RecordStatusPending).
		Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to retrieve pending records: %w", result.Error)
	}

	sortRecords(records)
	return records, nil
}

// RecordsForFlow returns all records belonging to a flow.
func (s *RecordService) RecordsForFlow(ctx context.Context, flowID uuid.UUID) ([]model.Record, error) {
	if flowID == uuid.Nil {
		return nil, fmt.Errorf("flow ID cannot be nil")
	}

	var records []model.Record
	result := s.db.WithContext(ctx).Where("flow_id = ?", flowID).Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to retrieve flow records: %w", result.Error)
	}
	return records, nil
}

// RecordsForNode returns all records belonging to a node.
func (s *RecordService) RecordsForNode(ctx context.Context, nodeID uuid.UUID) ([]model.Record, error) {
	if nodeID == uuid.Nil {
		return nil, fmt.Errorf("node ID cannot be nil")
	}

	var records []model.Record
	result := s.db.WithContext(ctx).Where("node_id = ?", nodeID).Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to retrieve node records: %w", result.Error)
	}
	return records, nil
}

// sortRecords orders records by creation time, with ties broken by ID bytes.
func sortRecords(records []model.Record) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return bytes.Compare(records[i].ID[:], records[j].ID[:]) < 0
	})
}
