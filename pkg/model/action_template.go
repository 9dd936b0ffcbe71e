package model

import (
	"time"

	"github.com/google/uuid"
)

// ActionTemplate holds an organization's default configuration for one
// action type. Templates are managed elsewhere; the scheduler only reads them.
type ActionTemplate struct {
	ID             uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	OrganizationID uuid.UUID  `gorm:"type:uuid;not null;index" json:"organization_id"`
	Name           string     `gorm:"not null" json:"name"`
	ActionType     ActionType `gorm:"type:varchar(32);not null" json:"action_type"`
	Defaults       JSONB      `gorm:"type:jsonb" json:"defaults"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (ActionTemplate) TableName() string {
	return "action_templates"
}
