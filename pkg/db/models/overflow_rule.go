package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/shiplinehq/shipline/pkg/enums"
)

// OverflowRule reroutes high-quantity lines of one classification into a
// separate overflow run for the owning center. CompanionKey names the
// accessory classification that must not strand when its primary moves.
type OverflowRule struct {
	ID           uuid.UUID    `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Center       enums.Center `gorm:"column:center;not null;uniqueIndex"`
	SourceKey    string       `gorm:"column:source_key;size:3;not null"`
	ThresholdQty int          `gorm:"column:threshold_qty;not null"`
	TargetKey    string       `gorm:"column:target_key;size:3;not null"`
	NamePrefix   string       `gorm:"column:name_prefix;not null"`
	CompanionKey string       `gorm:"column:companion_key;size:3"`
	CreatedAt    time.Time    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time    `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the rule table.
func (OverflowRule) TableName() string { return "overflow_rules" }
