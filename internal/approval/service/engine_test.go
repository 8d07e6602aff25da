package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/OpenOA/formflow/internal/approval/model"
	"github.com/OpenOA/formflow/internal/directory"
	"github.com/OpenOA/formflow/internal/form"
	formmodel "github.com/OpenOA/formflow/internal/form/model"
)

type engineFixture struct {
	db       *gorm.DB
	flows    *FlowService
	records  *RecordService
	engine   *Engine
	notifier *recordingNotifier
	form     *formmodel.Form
	actor    uuid.UUID
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	db := newTestDB(t)
	flows := NewFlowService(db)
	records := NewRecordService(db)
	notifier := &recordingNotifier{}
	engine := NewEngine(db, flows, records, form.NewSubmissionService(db), directory.NewResolver(db), notifier)
	return &engineFixture{
		db:       db,
		flows:    flows,
		records:  records,
		engine:   engine,
		notifier: notifier,
		form:     createTestForm(t, db),
		actor:    uuid.New(),
	}
}

func (f *engineFixture) createFlow(t *testing.T, nodes ...model.NodeInput) *model.Flow {
	t.Helper()
	flow, err := f.flows.CreateFlow(context.Background(), &model.CreateFlowDTO{
		Name:   "Expense Approval",
		FormID: f.form.ID,
		Nodes:  nodes,
	}, f.actor)
	require.NoError(t, err)
	return flow
}

func TestEngineSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("Opens First Pending Record", func(t *testing.T) {
		f := newEngineFixture(t)
		manager := createTestUser(t, f.db, "manager")
		flow := f.createFlow(t, userNodeInput("Manager", 1, manager.ID))

		result, err := f.engine.Submit(ctx, flow.ID, &model.SubmitDTO{
			Data:        map[string]any{"amount": 500},
			SubmittedBy: uuid.New(),
		})
		require.NoError(t, err)
		require.NotNil(t, result.Submission)
		assert.Equal(t, formmodel.SubmissionStatusSubmitted, result.Submission.Status)
		require.NotNil(t, result.Record)
		assert.Equal(t, model.RecordStatusPending, result.Record.Status)
		assert.Equal(t, manager.ID, result.Record.ApproverID)
		assert.Equal(t, []uuid.UUID{manager.ID}, f.notifier.notified())
	})

	t.Run("Skips Nodes With Failing Conditions", func(t *testing.T) {
		f := newEngineFixture(t)
		finance := createTestUser(t, f.db, "finance")
		director := createTestUser(t, f.db, "director")
		flow := f.createFlow(t,
			userNodeInput("Finance", 1, finance.ID,
				model.Condition{Field: "amount", Operator: model.OperatorGT, Value: "1000"}),
			userNodeInput("Director", 2, director.ID),
		)

		result, err := f.engine.Submit(ctx, flow.ID, &model.SubmitDTO{
			Data:        map[string]any{"amount": 200},
			SubmittedBy: uuid.New(),
		})
		require.NoError(t, err)
		require.NotNil(t, result.Record)
		assert.Equal(t, director.ID, result.Record.ApproverID)
	})

	t.Run("No Eligible Node Passes Through", func(t *testing.T) {
		f := newEngineFixture(t)
		finance := createTestUser(t, f.db, "finance")
		flow := f.createFlow(t,
			userNodeInput("Finance", 1, finance.ID,
				model.Condition{Field: "amount", Operator: model.OperatorGT, Value: "1000"}),
		)

		result, err := f.engine.Submit(ctx, flow.ID, &model.SubmitDTO{
			Data:        map[string]any{"amount": 5},
			SubmittedBy: uuid.New(),
		})
		require.NoError(t, err)
		require.NotNil(t, result.Submission)
		assert.Nil(t, result.Record)
		assert.False(t, result.ApproverUnresolved)
		assert.Empty(t, f.notifier.notified())
	})

	t.Run("Unresolvable Approver Keeps Submission Without Record", func(t *testing.T) {
		f := newEngineFixture(t)
		emptyRole := &directory.Role{Name: "Auditors", Code: "auditors"}
		require.NoError(t, f.db.Create(emptyRole).Error)

		node := userNodeInput("Audit", 1, uuid.New())
		node.ApproverType = directory.ApproverTypeRole
		node.ApproverTarget = emptyRole.ID.String()
		flow := f.createFlow(t, node)

		result, err := f.engine.Submit(ctx, flow.ID, &model.SubmitDTO{
			Data:        map[string]any{"amount": 5},
			SubmittedBy: uuid.New(),
		})
		require.NoError(t, err)
		assert.Nil(t, result.Record)
		assert.True(t, result.ApproverUnresolved)

		var count int64
		require.NoError(t, f.db.Model(&formmodel.Submission{}).Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})

	t.Run("Unknown Flow", func(t *testing.T) {
		f := newEngineFixture(t)
		_, err := f.engine.Submit(ctx, uuid.New(), &model.SubmitDTO{
			Data:        map[string]any{"amount": 5},
			SubmittedBy: uuid.New(),
		})
		assert.ErrorIs(t, err, ErrFlowNotFound)
	})
}

func TestEngineDecide(t *testing.T) {
	ctx := context.Background()

	submit := func(t *testing.T, f *engineFixture, flow *model.Flow, data map[string]any) *SubmitResult {
		t.Helper()
		result, err := f.engine.Submit(ctx, flow.ID, &model.SubmitDTO{
			Data:        data,
			SubmittedBy: uuid.New(),
		})
		require.NoError(t, err)
		require.NotNil(t, result.Record)
		return result
	}

	t.Run("Approval Advances To Next Node", func(t *testing.T) {
		f := newEngineFixture(t)
		manager := createTestUser(t, f.db, "manager")
		finance := createTestUser(t, f.db, "finance")
		flow := f.createFlow(t,
			userNodeInput("Manager", 1, manager.ID),
			userNodeInput("Finance", 2, finance.ID),
		)
		submitted := submit(t, f, flow, map[string]any{"amount": 500})

		result, err := f.engine.Decide(ctx, submitted.Record.ID, model.DecisionApprove, "looks fine")
		require.NoError(t, err)
		assert.Equal(t, model.RecordStatusApproved, result.Record.Status)
		require.NotNil(t, result.Record.Comment)
		assert.Equal(t, "looks fine", *result.Record.Comment)
		require.NotNil(t, result.NextRecord)
		assert.Equal(t, finance.ID, result.NextRecord.ApproverID)
		assert.Equal(t, formmodel.SubmissionStatusSubmitted, result.SubmissionStatus)
		assert.False(t, result.Stranded)
		assert.Equal(t, []uuid.UUID{manager.ID, finance.ID}, f.notifier.notified())
	})

	t.Run("Approving Last Node Completes Submission", func(t *testing.T) {
		f := newEngineFixture(t)
		manager := createTestUser(t, f.db, "manager")
		flow := f.createFlow(t, userNodeInput("Manager", 1, manager.ID))
		submitted := submit(t, f, flow, map[string]any{"amount": 500})

		result, err := f.engine.Decide(ctx, submitted.Record.ID, model.DecisionApprove, "")
		require.NoError(t, err)
		assert.Nil(t, result.NextRecord)
		assert.Equal(t, formmodel.SubmissionStatusCompleted, result.SubmissionStatus)

		var sub formmodel.Submission
		require.NoError(t, f.db.First(&sub, "id = ?", submitted.Submission.ID).Error)
		assert.Equal(t, formmodel.SubmissionStatusCompleted, sub.Status)
	})

	t.Run("Rejection Terminates The Chain", func(t *testing.T) {
		f := newEngineFixture(t)
		manager := createTestUser(t, f.db, "manager")
		finance := createTestUser(t, f.db, "finance")
		flow := f.createFlow(t,
			userNodeInput("Manager", 1, manager.ID),
			userNodeInput("Finance", 2, finance.ID),
		)
		submitted := submit(t, f, flow, map[string]any{"amount": 500})

		result, err := f.engine.Decide(ctx, submitted.Record.ID, model.DecisionReject, "missing receipts")
		require.NoError(t, err)
		assert.Equal(t, model.RecordStatusRejected, result.Record.Status)
		assert.Nil(t, result.NextRecord)
		assert.Equal(t, formmodel.SubmissionStatusRejected, result.SubmissionStatus)

		pending, err := f.records.CurrentPending(ctx, submitted.Submission.ID)
		require.NoError(t, err)
		assert.Nil(t, pending)
	})

	t.Run("Second Decision Conflicts", func(t *testing.T) {
		f := newEngineFixture(t)
		manager := createTestUser(t, f.db, "manager")
		flow := f.createFlow(t, userNodeInput("Manager", 1, manager.ID))
		submitted := submit(t, f, flow, map[string]any{"amount": 500})

		_, err := f.engine.Decide(ctx, submitted.Record.ID, model.DecisionApprove, "")
		require.NoError(t, err)

		_, err = f.engine.Decide(ctx, submitted.Record.ID, model.DecisionReject, "")
		assert.ErrorIs(t, err, ErrAlreadyDecided)

		record, err := f.records.GetRecord(ctx, submitted.Record.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RecordStatusApproved, record.Status)
	})

	t.Run("Stranded When Next Approver Unresolvable", func(t *testing.T) {
		f := newEngineFixture(t)
		manager := createTestUser(t, f.db, "manager")
		emptyRole := &directory.Role{Name: "Auditors", Code: "auditors"}
		require.NoError(t, f.db.Create(emptyRole).Error)

		audit := userNodeInput("Audit", 2, uuid.New())
		audit.ApproverType = directory.ApproverTypeRole
		audit.ApproverTarget = emptyRole.ID.String()
		flow := f.createFlow(t, userNodeInput("Manager", 1, manager.ID), audit)
		submitted := submit(t, f, flow, map[string]any{"amount": 500})

		result, err := f.engine.Decide(ctx, submitted.Record.ID, model.DecisionApprove, "")
		require.NoError(t, err)
		assert.True(t, result.Stranded)
		assert.Nil(t, result.NextRecord)
		assert.Equal(t, formmodel.SubmissionStatusSubmitted, result.SubmissionStatus)

		// The approval stays committed and no record is in flight.
		record, err := f.records.GetRecord(ctx, submitted.Record.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RecordStatusApproved, record.Status)
		pending, err := f.records.CurrentPending(ctx, submitted.Submission.ID)
		require.NoError(t, err)
		assert.Nil(t, pending)
	})

	t.Run("Unknown Record", func(t *testing.T) {
		f := newEngineFixture(t)
		_, err := f.engine.Decide(ctx, uuid.New(), model.DecisionApprove, "")
		assert.ErrorIs(t, err, ErrRecordNotFound)
	})

	t.Run("Invalid Action", func(t *testing.T) {
		f := newEngineFixture(t)
		_, err := f.engine.Decide(ctx, uuid.New(), model.DecisionAction("defer"), "")
		assert.Error(t, err)
	})
}

func TestEngineApproverResolution(t *testing.T) {
	ctx := context.Background()

	t.Run("Role Target Picks A Member", func(t *testing.T) {
		f := newEngineFixture(t)
		role := &directory.Role{Name: "Finance", Code: "finance"}
		require.NoError(t, f.db.Create(role).Error)
		alice := createTestUser(t, f.db, "alice")
		bob := createTestUser(t, f.db, "bob")
		require.NoError(t, f.db.Create(&directory.UserRole{UserID: alice.ID, RoleID: role.ID}).Error)
		require.NoError(t, f.db.Create(&directory.UserRole{UserID: bob.ID, RoleID: role.ID}).Error)

		node := userNodeInput("Finance", 1, uuid.New())
		node.ApproverType = directory.ApproverTypeRole
		node.ApproverTarget = role.ID.String()
		flow := f.createFlow(t, node)

		result, err := f.engine.Submit(ctx, flow.ID, &model.SubmitDTO{
			Data:        map[string]any{"amount": 1},
			SubmittedBy: uuid.New(),
		})
		require.NoError(t, err)
		require.NotNil(t, result.Record)
		assert.Contains(t, []uuid.UUID{alice.ID, bob.ID}, result.Record.ApproverID)
	})

	t.Run("Department Target Picks The Leader", func(t *testing.T) {
		f := newEngineFixture(t)
		leader := createTestUser(t, f.db, "lead")
		leader.Department = "D100"
		leader.IsLeader = true
		require.NoError(t, f.db.Save(leader).Error)
		member := createTestUser(t, f.db, "member")
		member.Department = "D100"
		require.NoError(t, f.db.Save(member).Error)

		node := userNodeInput("Dept Head", 1, uuid.New())
		node.ApproverType = directory.ApproverTypeDepartment
		node.ApproverTarget = "D100"
		flow := f.createFlow(t, node)

		result, err := f.engine.Submit(ctx, flow.ID, &model.SubmitDTO{
			Data:        map[string]any{"amount": 1},
			SubmittedBy: uuid.New(),
		})
		require.NoError(t, err)
		require.NotNil(t, result.Record)
		assert.Equal(t, leader.ID, result.Record.ApproverID)
	})
}

func TestEngineDecideByExternalRef(t *testing.T) {
	ctx := context.Background()

	t.Run("Applies External Approval", func(t *testing.T) {
		f := newEngineFixture(t)
		manager := createTestUser(t, f.db, "manager")
		flow := f.createFlow(t, userNodeInput("Manager", 1, manager.ID))

		submitted, err := f.engine.Submit(ctx, flow.ID, &model.SubmitDTO{
			Data:        map[string]any{"amount": 10},
			SubmittedBy: uuid.New(),
		})
		require.NoError(t, err)
		require.NoError(t, f.records.AttachExternalRef(ctx, submitted.Record.ID, "SP-2024-001"))

		result, err := f.engine.DecideByExternalRef(ctx, "SP-2024-001", model.RecordStatusApproved, "ok")
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, model.RecordStatusApproved, result.Record.Status)
		assert.Equal(t, formmodel.SubmissionStatusCompleted, result.SubmissionStatus)
	})

	t.Run("Unknown Reference", func(t *testing.T) {
		f := newEngineFixture(t)
		_, err := f.engine.DecideByExternalRef(ctx, "SP-MISSING", model.RecordStatusRejected, "")
		assert.ErrorIs(t, err, ErrRecordNotFound)
	})

	t.Run("Non Terminal Status Is Ignored", func(t *testing.T) {
		f := newEngineFixture(t)
		result, err := f.engine.DecideByExternalRef(ctx, "SP-ANY", model.RecordStatusPending, "")
		require.NoError(t, err)
		assert.Nil(t, result)
	})
}
