package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/OpenOA/formflow/internal/approval/model"
	formmodel "github.com/OpenOA/formflow/internal/form/model"
)

// StatisticsService aggregates record counts and cycle times over a flow or
// over a single node.
type StatisticsService struct {
	db      *gorm.DB
	records *RecordService
}

func NewStatisticsService(db *gorm.DB, records *RecordService) *StatisticsService {
	return &StatisticsService{db: db, records: records}
}

// FlowStatistics summarizes every record belonging to the flow.
func (s *StatisticsService) FlowStatistics(ctx context.Context, flowID uuid.UUID) (*model.StatisticsSummary, error) {
	records, err := s.records.RecordsForFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}
	return s.summarizeRecords(ctx, records)
}

// NodeStatistics summarizes every record belonging to one node of a flow.
func (s *StatisticsService) NodeStatistics(ctx context.Context, nodeID uuid.UUID) (*model.StatisticsSummary, error) {
	records, err := s.records.RecordsForNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	return s.summarizeRecords(ctx, records)
}

func (s *StatisticsService) summarizeRecords(ctx context.Context, records []model.Record) (*model.StatisticsSummary, error) {
	submittedAt, err := s.submissionTimes(ctx, records)
	if err != nil {
		return nil, err
	}
	summary := Summarize(records, submittedAt)
	return &summary, nil
}

// submissionTimes loads the submission timestamps the cycle-time calculation
// needs, one lookup for the whole record set.
func (s *StatisticsService) submissionTimes(ctx context.Context, records []model.Record) (map[uuid.UUID]time.Time, error) {
	ids := make([]uuid.UUID, 0, len(records))
	seen := make(map[uuid.UUID]bool, len(records))
	for _, r := range records {
		if !seen[r.SubmissionID] {
			seen[r.SubmissionID] = true
			ids = append(ids, r.SubmissionID)
		}
	}
	if len(ids) == 0 {
		return map[uuid.UUID]time.Time{}, nil
	}

	var submissions []formmodel.Submission
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&submissions).Error; err != nil {
		return nil, fmt.Errorf("failed to load submissions for statistics: %w", err)
	}

	times := make(map[uuid.UUID]time.Time, len(submissions))
	for _, sub := range submissions {
		times[sub.ID] = sub.SubmittedAt
	}
	return times, nil
}

// Summarize counts records by status and averages the hours between
// submission and decision across every decided record. The average is
// rounded to two decimal places and is zero when nothing has been decided
// yet.
func Summarize(records []model.Record, submittedAt map[uuid.UUID]time.Time) model.StatisticsSummary {
	summary := model.StatisticsSummary{Total: len(records)}

	var totalHours float64
	var decided int
	for _, r := range records {
		switch r.Status {
		case model.RecordStatusPending:
			summary.Pending++
		case model.RecordStatusApproved:
			summary.Approved++
		case model.RecordStatusRejected:
			summary.Rejected++
		}

		started, ok := submittedAt[r.SubmissionID]
		if !ok {
			continue
		}
		if hours := r.CycleHours(started); hours != nil {
			totalHours += *hours
			decided++
		}
	}

	if decided > 0 {
		summary.AverageCycleHours = math.Round(totalHours/float64(decided)*100) / 100
	}
	return summary
}
