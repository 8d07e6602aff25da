package directory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ApproverType selects how an approval node addresses its approver.
type ApproverType string

const (
	ApproverTypeUser       ApproverType = "user"       // Target is a user ID
	ApproverTypeRole       ApproverType = "role"       // Target is a role; any member may approve
	ApproverTypeDepartment ApproverType = "department" // Target is a department; its leader approves
)

// Valid reports whether the approver type is one of the known variants.
func (t ApproverType) Valid() bool {
	switch t {
	case ApproverTypeUser, ApproverTypeRole, ApproverTypeDepartment:
		return true
	}
	return false
}

// Resolver resolves abstract approver references against the user directory.
// Resolution returning uuid.Nil means "no approver available" and is not an
// error; callers decide whether the workflow can advance.
type Resolver struct {
	db *gorm.DB
}

func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{db: db}
}

// Resolve maps an (approver type, target) reference to a concrete user ID.
//   - user: the target already is a user ID and is returned verbatim.
//   - role: some member of the role (lowest user ID, for determinism).
//   - department: the member flagged as the department leader.
//   - anything else: the submitter approves their own request. The API layer
//     rejects unknown types, so this branch is only reachable for rows written
//     outside of it; the fallback matches the behavior the system always had.
func (r *Resolver) Resolve(ctx context.Context, approverType ApproverType, target string, submitterID uuid.UUID) (uuid.UUID, error) {
	switch approverType {
	case ApproverTypeUser:
		userID, err := uuid.Parse(target)
		if err != nil {
			return uuid.Nil, fmt.Errorf("approver target %q is not a user ID: %w", target, err)
		}
		return userID, nil
	case ApproverTypeRole:
		roleID, err := uuid.Parse(target)
		if err != nil {
			return uuid.Nil, fmt.Errorf("approver target %q is not a role ID: %w", target, err)
		}
		return r.MemberOfRole(ctx, roleID)
	case ApproverTypeDepartment:
		return r.LeaderOfDepartment(ctx, target)
	default:
		return submitterID, nil
	}
}

// MemberOfRole returns the ID of one enabled member of the role, or uuid.Nil
// when the role has no members. The member with the lowest ID (byte order) is
// chosen so repeated lookups are deterministic.
func (r *Resolver) MemberOfRole(ctx context.Context, roleID uuid.UUID) (uuid.UUID, error) {
	if roleID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("role ID cannot be nil")
	}

	var memberIDs []uuid.UUID
	result := r.db.WithContext(ctx).Model(&User{}).
		Joins("JOIN user_roles ON user_roles.user_id = users.id").
		Where("user_roles.role_id = ? AND users.enabled = ?", roleID, true).
		Pluck("users.id", &memberIDs)
	if result.Error != nil {
		return uuid.Nil, fmt.Errorf("failed to look up role members: %w", result.Error)
	}
	if len(memberIDs) == 0 {
		return uuid.Nil, nil
	}

	sort.Slice(memberIDs, func(i, j int) bool {
		return bytes.Compare(memberIDs[i][:], memberIDs[j][:]) < 0
	})
	return memberIDs[0], nil
}

// LeaderOfDepartment returns the ID of the user flagged as the department
// leader, or uuid.Nil when no leader is set.
func (r *Resolver) LeaderOfDepartment(ctx context.Context, department string) (uuid.UUID, error) {
	if department == "" {
		return uuid.Nil, fmt.Errorf("department cannot be empty")
	}

	var leader User
	result := r.db.WithContext(ctx).
		Where("department = ? AND is_leader = ? AND enabled = ?", department, true, true).
		First(&leader)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return uuid.Nil, nil
		}
		return uuid.Nil, fmt.Errorf("failed to look up department leader: %w", result.Error)
	}
	return leader.ID, nil
}

// GetUser retrieves a directory user by ID.
func (r *Resolver) GetUser(ctx context.Context, userID uuid.UUID) (*User, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("user ID cannot be nil")
	}

	var u User
	result := r.db.WithContext(ctx).First(&u, "id = ?", userID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s not found", userID)
		}
		return nil, fmt.Errorf("failed to retrieve user: %w", result.Error)
	}
	return &u, nil
}
