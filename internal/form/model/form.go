package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel defines the base model structure with common fields for the form package.
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

// Form represents a form definition that submissions are made against.
type Form struct {
	BaseModel
	Title       string `gorm:"type:varchar(100);column:title;not null" json:"title"`            // Human-readable form title
	Description string `gorm:"type:varchar(500);column:description" json:"description"`         // Optional description
	Type        string `gorm:"type:varchar(20);column:type;not null" json:"type"`               // "approval" or "collect"
	Enabled     bool   `gorm:"type:boolean;column:enabled;not null;default:true" json:"enabled"` // Whether this form accepts submissions

	Fields []FormField `gorm:"foreignKey:FormID;references:ID" json:"fields,omitempty"` // Ordered field definitions
}

func (f *Form) TableName() string {
	return "forms"
}

// IsApprovalForm reports whether submissions to this form enter an approval flow.
func (f *Form) IsApprovalForm() bool {
	return f.Type == "approval"
}

// FormField represents a single field definition within a form.
type FormField struct {
	BaseModel
	FormID    uuid.UUID `gorm:"type:uuid;column:form_id;not null;index" json:"formId"`             // Owning form
	Name      string    `gorm:"type:varchar(50);column:name;not null" json:"name"`                 // Field name used as the key in submission values
	Label     string    `gorm:"type:varchar(100);column:label;not null" json:"label"`              // Display label
	Type      string    `gorm:"type:varchar(20);column:type;not null" json:"type"`                 // text, textarea, radio, checkbox, select, date, file
	Required  bool      `gorm:"type:boolean;column:required;not null;default:false" json:"required"`
	SortOrder int       `gorm:"type:integer;column:sort_order;not null;default:0" json:"order"`    // Display order
	Enabled   bool      `gorm:"type:boolean;column:enabled;not null;default:true" json:"enabled"`
}

func (ff *FormField) TableName() string {
	return "form_fields"
}

// SubmissionStatus is the workflow-facing status of a submission.
type SubmissionStatus string

const (
	SubmissionStatusSubmitted SubmissionStatus = "submitted" // Received, no terminal decision yet
	SubmissionStatusCompleted SubmissionStatus = "completed" // Every approval node approved
	SubmissionStatusRejected  SubmissionStatus = "rejected"  // An approver rejected
)

// Values stores a submission's field-name to value map as a JSON column.
type Values map[string]any

// Submission represents one submitted instance of a form's data.
type Submission struct {
	BaseModel
	FormID      uuid.UUID        `gorm:"type:uuid;column:form_id;not null;index" json:"formId"`                     // Owning form
	Data        Values           `gorm:"type:jsonb;column:data;not null;serializer:json" json:"data"`               // Field name -> value
	Status      SubmissionStatus `gorm:"type:varchar(20);column:status;not null;default:'submitted'" json:"status"` // Workflow-facing status
	SubmittedBy uuid.UUID        `gorm:"type:uuid;column:submitted_by;not null" json:"submittedBy"`                 // Submitter user ID
	SubmittedAt time.Time        `gorm:"type:timestamptz;column:submitted_at;not null" json:"submittedAt"`          // Stamped at creation
}

func (s *Submission) TableName() string {
	return "submissions"
}

// BeforeCreate stamps the submission time in addition to the base hook.
func (s *Submission) BeforeCreate(tx *gorm.DB) error {
	if err := s.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if s.SubmittedAt.IsZero() {
		s.SubmittedAt = time.Now().UTC()
	}
	if s.Status == "" {
		s.Status = SubmissionStatusSubmitted
	}
	return nil
}

// FieldValue returns the raw value for a field name, or nil if absent.
func (s *Submission) FieldValue(name string) any {
	if s.Data == nil {
		return nil
	}
	return s.Data[name]
}
