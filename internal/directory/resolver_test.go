package directory

import (
	"bytes"
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&User{}, &Role{}, &UserRole{}))
	return db
}

func createUser(t *testing.T, db *gorm.DB, username string, mutate func(*User)) *User {
	t.Helper()
	user := &User{Username: username, Name: username, Enabled: true}
	if mutate != nil {
		mutate(user)
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestResolveUser(t *testing.T) {
	db := newTestDB(t)
	r := NewResolver(db)
	ctx := context.Background()

	t.Run("Returns Target Verbatim", func(t *testing.T) {
		target := uuid.New()
		got, err := r.Resolve(ctx, ApproverTypeUser, target.String(), uuid.New())
		require.NoError(t, err)
		assert.Equal(t, target, got)
	})

	t.Run("Rejects Malformed Target", func(t *testing.T) {
		_, err := r.Resolve(ctx, ApproverTypeUser, "not-a-uuid", uuid.New())
		assert.Error(t, err)
	})
}

func TestResolveRole(t *testing.T) {
	db := newTestDB(t)
	r := NewResolver(db)
	ctx := context.Background()

	role := &Role{Name: "Finance", Code: "finance"}
	require.NoError(t, db.Create(role).Error)

	t.Run("Empty Role Resolves To Nil", func(t *testing.T) {
		got, err := r.Resolve(ctx, ApproverTypeRole, role.ID.String(), uuid.New())
		require.NoError(t, err)
		assert.Equal(t, uuid.Nil, got)
	})

	t.Run("Picks Lowest Member ID", func(t *testing.T) {
		a := createUser(t, db, "alice", nil)
		b := createUser(t, db, "bob", nil)
		require.NoError(t, db.Create(&UserRole{UserID: a.ID, RoleID: role.ID}).Error)
		require.NoError(t, db.Create(&UserRole{UserID: b.ID, RoleID: role.ID}).Error)

		want := a.ID
		if bytes.Compare(b.ID[:], a.ID[:]) < 0 {
			want = b.ID
		}
		got, err := r.Resolve(ctx, ApproverTypeRole, role.ID.String(), uuid.New())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("Ignores Disabled Members", func(t *testing.T) {
		other := &Role{Name: "Audit", Code: "audit"}
		require.NoError(t, db.Create(other).Error)
		disabled := createUser(t, db, "ghost", func(u *User) { u.Enabled = false })
		require.NoError(t, db.Create(&UserRole{UserID: disabled.ID, RoleID: other.ID}).Error)

		got, err := r.MemberOfRole(ctx, other.ID)
		require.NoError(t, err)
		assert.Equal(t, uuid.Nil, got)
	})
}

func TestResolveDepartment(t *testing.T) {
	db := newTestDB(t)
	r := NewResolver(db)
	ctx := context.Background()

	leader := createUser(t, db, "lead", func(u *User) {
		u.Department = "D100"
		u.IsLeader = true
	})
	createUser(t, db, "member", func(u *User) { u.Department = "D100" })

	t.Run("Picks The Department Leader", func(t *testing.T) {
		got, err := r.Resolve(ctx, ApproverTypeDepartment, "D100", uuid.New())
		require.NoError(t, err)
		assert.Equal(t, leader.ID, got)
	})

	t.Run("No Leader Resolves To Nil", func(t *testing.T) {
		got, err := r.Resolve(ctx, ApproverTypeDepartment, "D200", uuid.New())
		require.NoError(t, err)
		assert.Equal(t, uuid.Nil, got)
	})
}

func TestResolveFallback(t *testing.T) {
	db := newTestDB(t)
	r := NewResolver(db)
	submitter := uuid.New()

	got, err := r.Resolve(context.Background(), ApproverType("committee"), "whatever", submitter)
	require.NoError(t, err)
	assert.Equal(t, submitter, got)
}

func TestApproverTypeValid(t *testing.T) {
	assert.True(t, ApproverTypeUser.Valid())
	assert.True(t, ApproverTypeRole.Valid())
	assert.True(t, ApproverTypeDepartment.Valid())
	assert.False(t, ApproverType("committee").Valid())
}
