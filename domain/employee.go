package domain

import "time"

// Employee is a node of the org hierarchy. ManagerID points at the direct
// manager.
type Employee struct {
	ID        string          `gorm:"type:char(36);primaryKey" json:"id"`
	Name      string          `gorm:"size:255;not null" json:"name"`
	Email     string          `gorm:"size:255;uniqueIndex" json:"email"`
	Role      ApplicationRole `gorm:"type:varchar(20);not null" json:"role"`
	ManagerID *string         `gorm:"type:char(36);index" json:"manager_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
