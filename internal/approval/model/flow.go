package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel defines the base model structure with common fields for the approval package.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;column:id;not null;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"type:timestamptz;column:created_at;not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"type:timestamptz;column:updated_at;not null" json:"updatedAt"`
}

// BeforeCreate is a GORM hook that is triggered before a new record is created.
func (base *BaseModel) BeforeCreate(tx *gorm.DB) (err error) {
	if base.ID == uuid.Nil {
		base.ID, err = uuid.NewRandom()
		if err != nil {
			return
		}
	}
	base.CreatedAt = time.Now().UTC()
	base.UpdatedAt = time.Now().UTC()
	return
}

// BeforeUpdate is a GORM hook that is triggered before an existing record is updated.
func (base *BaseModel) BeforeUpdate(tx *gorm.DB) (err error) {
	base.UpdatedAt = time.Now().UTC()
	return
}

// Flow is a named, ordered chain of approval nodes bound to one form.
// At most one enabled flow should exist per form; the flow service enforces
// this when flows are created or enabled.
type Flow struct {
	BaseModel
	Name        string    `gorm:"type:varchar(100);column:name;not null" json:"name"`
	Description string    `gorm:"type:varchar(500);column:description" json:"description"`
	FormID      uuid.UUID `gorm:"type:uuid;column:form_id;not null;index" json:"formId"`
	Enabled     bool      `gorm:"type:boolean;column:enabled;not null;default:true" json:"enabled"`
	CreatedBy   uuid.UUID `gorm:"type:uuid;column:created_by" json:"createdBy"`
	UpdatedBy   uuid.UUID `gorm:"type:uuid;column:updated_by" json:"updatedBy"`

	Nodes []Node `gorm:"foreignKey:FlowID;references:ID" json:"nodes,omitempty"`
}

func (f *Flow) TableName() string {
	return "approval_flows"
}
