package service

import (
	"context"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/OpenOA/formflow/internal/approval/model"
	"github.com/OpenOA/formflow/internal/directory"
	formmodel "github.com/OpenOA/formflow/internal/form/model"
)

// newTestDB opens an isolated in-memory database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&formmodel.Form{},
		&formmodel.FormField{},
		&formmodel.Submission{},
		&directory.User{},
		&directory.Role{},
		&directory.UserRole{},
		&model.Flow{},
		&model.Node{},
		&model.Record{},
	))
	return db
}

func createTestForm(t *testing.T, db *gorm.DB) *formmodel.Form {
	t.Helper()
	form := &formmodel.Form{
		Title:   "Expense Claim",
		Type:    "approval",
		Enabled: true,
	}
	require.NoError(t, db.Create(form).Error)
	return form
}

func createTestUser(t *testing.T, db *gorm.DB, username string) *directory.User {
	t.Helper()
	user := &directory.User{
		Username: username,
		Name:     username,
		Enabled:  true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func userNodeInput(name string, order int, approverID uuid.UUID, conditions ...model.Condition) model.NodeInput {
	return model.NodeInput{
		Name:           name,
		Kind:           model.NodeKindApproval,
		ApproverType:   directory.ApproverTypeUser,
		ApproverTarget: approverID.String(),
		Conditions:     model.Conditions(conditions),
		SortOrder:      order,
	}
}

// recordingNotifier captures notification calls for assertions.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []uuid.UUID
}

func (n *recordingNotifier) NotifyApprover(ctx context.Context, approverID uuid.UUID, flowName string, submission *formmodel.Submission) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, approverID)
	return nil
}

func (n *recordingNotifier) notified() []uuid.UUID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]uuid.UUID(nil), n.calls...)
}
