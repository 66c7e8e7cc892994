package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/shiplinehq/shipline/pkg/enums"
)

// ClassificationRule maps a 3-character item-name prefix to a destination
// center. Prefixes not present in the table fall through to the frozen
// default center.
type ClassificationRule struct {
	ID        uuid.UUID    `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Prefix    string       `gorm:"column:prefix;size:3;not null;uniqueIndex"`
	Center    enums.Center `gorm:"column:center;not null"`
	CreatedAt time.Time    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time    `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the rule table.
func (ClassificationRule) TableName() string { return "classification_rules" }
