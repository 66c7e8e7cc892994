package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/shiplinehq/shipline/pkg/enums"
)

// CenterResult is one finished, sorted label row in a per-center result
// table. Rows are immutable once published; downstream label printing and
// export tooling read only these tables.
type CenterResult struct {
	ID       uuid.UUID    `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RunID    uuid.UUID    `gorm:"column:run_id;type:uuid;not null;index"`
	Center   enums.Center `gorm:"column:center;not null;index"`
	Position int          `gorm:"column:position;not null"`

	OrderNo       string          `gorm:"column:order_no;not null"`
	MarketOrderNo string          `gorm:"column:market_order_no"`
	RecipientName string          `gorm:"column:recipient_name;not null"`
	PostalCode    string          `gorm:"column:postal_code"`
	Address       string          `gorm:"column:address;not null"`
	ItemCode      string          `gorm:"column:item_code;not null"`
	ItemName      string          `gorm:"column:item_name;not null"`
	Qty           int             `gorm:"column:qty;not null"`
	UnitPrice     decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null;default:0"`
	OrderTotal    decimal.Decimal `gorm:"column:order_total;type:numeric(12,2);not null;default:0"`
	PaymentMethod string          `gorm:"column:payment_method"`
	DeliveryNote  *string         `gorm:"column:delivery_note"`
	Msg1          *string         `gorm:"column:msg1"`
	Msg2          *string         `gorm:"column:msg2"`
	Msg3          *string         `gorm:"column:msg3"`
	Msg4          *string         `gorm:"column:msg4"`
	Msg5          *string         `gorm:"column:msg5"`
	Msg6          *string         `gorm:"column:msg6"`

	ConsolidationClass enums.ConsolidationClass `gorm:"column:consolidation_class;not null"`
	ParcelCount        int                      `gorm:"column:parcel_count;not null;default:0"`
	Priority           bool                     `gorm:"column:priority;not null;default:false"`
	ShippingCost       string                   `gorm:"column:shipping_cost"`
	BoxSize            string                   `gorm:"column:box_size"`
	PrintCount         int                      `gorm:"column:print_count;not null;default:1"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName pins the result table.
func (CenterResult) TableName() string { return "center_results" }

// BeforeCreate fills the id client-side so bulk inserts work on drivers
// without a uuid default.
func (r *CenterResult) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
