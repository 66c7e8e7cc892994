package models

import (
	"time"

	"github.com/google/uuid"
)

// SubstitutionRule is one alternate of a virtual item code. A source code
// owns between 1 and 4 alternates ordered by Position; position 1 is the
// primary and keeps the money fields when the rule is applied. ParcelUnits
// is the alternate's own per-item density and replaces the source line's
// value on expansion.
type SubstitutionRule struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SourceCode  string    `gorm:"column:source_code;not null;index:idx_substitution_source_position,unique,priority:1"`
	Position    int       `gorm:"column:position;not null;index:idx_substitution_source_position,unique,priority:2"`
	AltCode     string    `gorm:"column:alt_code;not null"`
	AltName     string    `gorm:"column:alt_name;not null"`
	UnitFactor  int       `gorm:"column:unit_factor;not null;default:1"`
	ParcelUnits int       `gorm:"column:parcel_units;not null;default:1"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the rule table.
func (SubstitutionRule) TableName() string { return "substitution_rules" }
