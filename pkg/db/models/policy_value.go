package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/shiplinehq/shipline/pkg/enums"
)

// PolicyValue stores one center policy setting keyed by a generic code
// (default shipping cost, box-size label, default print count).
type PolicyValue struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Center    enums.Center     `gorm:"column:center;not null;index:idx_policy_center_code,unique,priority:1"`
	Code      enums.PolicyCode `gorm:"column:code;not null;index:idx_policy_center_code,unique,priority:2"`
	Value     string           `gorm:"column:value;not null"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the policy table.
func (PolicyValue) TableName() string { return "policy_values" }
