package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/shiplinehq/shipline/pkg/enums"
)

// PreboxedShipment is a center-specific bulk shipment already packed
// upstream; aggregation unions these rows into the center result as-is.
type PreboxedShipment struct {
	ID            uuid.UUID    `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Center        enums.Center `gorm:"column:center;not null;index"`
	OrderNo       string       `gorm:"column:order_no;not null"`
	RecipientName string       `gorm:"column:recipient_name;not null"`
	PostalCode    string       `gorm:"column:postal_code"`
	Address       string       `gorm:"column:address;not null"`
	ItemCode      string       `gorm:"column:item_code;not null"`
	ItemName      string       `gorm:"column:item_name;not null"`
	Qty           int          `gorm:"column:qty;not null"`
	PriorityFlag  *string      `gorm:"column:priority_flag"`
	CreatedAt     time.Time    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time    `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the pre-boxed table.
func (PreboxedShipment) TableName() string { return "preboxed_shipments" }
