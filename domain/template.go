package domain

import "time"

// QuestionnaireTemplate groups the sections an assignment is answered against.
type QuestionnaireTemplate struct {
	ID          string            `gorm:"type:char(36);primaryKey" json:"id"`
	Key         string            `gorm:"size:100;uniqueIndex;not null" json:"key"`
	Name        string            `gorm:"size:255;not null" json:"name"`
	Description string            `gorm:"type:text" json:"description"`
	Sections    []QuestionSection `gorm:"foreignKey:TemplateID" json:"sections"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// QuestionSection belongs either to a template or, when IsInstanceSpecific, to
// a single assignment.
type QuestionSection struct {
	ID                 string         `gorm:"type:char(36);primaryKey" json:"id"`
	TemplateID         *string        `gorm:"type:char(36);index" json:"template_id,omitempty"`
	AssignmentID       *string        `gorm:"type:char(36);index" json:"assignment_id,omitempty"`
	Title              string         `gorm:"size:255;not null" json:"title"`
	Description        string         `gorm:"type:text" json:"description,omitempty"`
	Order              int            `gorm:"column:sort_order" json:"order"`
	CompletionRole     CompletionRole `gorm:"type:varchar(20);not null" json:"completion_role"`
	IsInstanceSpecific bool           `gorm:"not null;default:false" json:"is_instance_specific"`
	CreatedAt          time.Time      `json:"created_at"`
}
