package directory

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a directory entry synced from the company address book.
// Department holds the external department identifier; IsLeader marks the
// department head used for department-addressed approvals.
type User struct {
	ID          uuid.UUID `gorm:"type:uuid;column:id;not null;primaryKey" json:"id"`
	Username    string    `gorm:"type:varchar(50);column:username;not null;uniqueIndex" json:"username"`
	Name        string    `gorm:"type:varchar(50);column:name;not null" json:"name"`
	Email       string    `gorm:"type:varchar(100);column:email" json:"email"`
	Phone       string    `gorm:"type:varchar(20);column:phone" json:"phone"`
	Department  string    `gorm:"type:varchar(50);column:department;index" json:"department"`
	Position    string    `gorm:"type:varchar(50);column:position" json:"position"`
	IsLeader    bool      `gorm:"type:boolean;column:is_leader;not null;default:false" json:"isLeader"`
	Enabled     bool      `gorm:"type:boolean;column:enabled;not null;default:true" json:"enabled"`
	WeComUserID string    `gorm:"type:varchar(64);column:wecom_userid;index" json:"wecomUserid"`
	CreatedAt   time.Time `gorm:"type:timestamptz;column:created_at;not null" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"type:timestamptz;column:updated_at;not null" json:"updatedAt"`
}

func (u *User) TableName() string {
	return "users"
}

// BeforeCreate assigns a random ID when none is set.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == uuid.Nil {
		u.ID, err = uuid.NewRandom()
	}
	return
}

// Role is a named group of users.
type Role struct {
	ID          uuid.UUID `gorm:"type:uuid;column:id;not null;primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(50);column:name;not null" json:"name"`
	Code        string    `gorm:"type:varchar(50);column:code;not null;uniqueIndex" json:"code"`
	Description string    `gorm:"type:varchar(200);column:description" json:"description"`
	Enabled     bool      `gorm:"type:boolean;column:enabled;not null;default:true" json:"enabled"`
	CreatedAt   time.Time `gorm:"type:timestamptz;column:created_at;not null" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"type:timestamptz;column:updated_at;not null" json:"updatedAt"`
}

func (r *Role) TableName() string {
	return "roles"
}

// BeforeCreate assigns a random ID when none is set.
func (r *Role) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == uuid.Nil {
		r.ID, err = uuid.NewRandom()
	}
	return
}

// UserRole links users to roles.
type UserRole struct {
	UserID    uuid.UUID `gorm:"type:uuid;column:user_id;not null;primaryKey" json:"userId"`
	RoleID    uuid.UUID `gorm:"type:uuid;column:role_id;not null;primaryKey;index" json:"roleId"`
	CreatedAt time.Time `gorm:"type:timestamptz;column:created_at;not null" json:"createdAt"`
}

func (ur *UserRole) TableName() string {
	return "user_roles"
}
