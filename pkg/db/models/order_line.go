package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/shiplinehq/shipline/pkg/enums"
)

// OrderLine is one purchased item inside one order, staged for a pipeline
// run. The raw fields come from the ingestion snapshot; the derived fields
// are written by the stages. IngestSeq fixes the stable ordering every
// deterministic decision (representative pick, sequence numbering) relies on.
type OrderLine struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RunID     uuid.UUID `gorm:"column:run_id;type:uuid;not null;index"`
	IngestSeq int64     `gorm:"column:ingest_seq;not null;index"`

	OrderNo       string          `gorm:"column:order_no;not null"`
	MarketOrderNo string          `gorm:"column:market_order_no"`
	RecipientName string          `gorm:"column:recipient_name;not null"`
	Phone1        *string         `gorm:"column:phone1"`
	Phone2        *string         `gorm:"column:phone2"`
	PostalCode    string          `gorm:"column:postal_code"`
	Address       string          `gorm:"column:address;not null"`
	ItemCode      string          `gorm:"column:item_code;not null"`
	ItemName      string          `gorm:"column:item_name;not null"`
	Qty           int             `gorm:"column:qty;not null"`
	UnitPrice     decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null;default:0"`
	OrderTotal    decimal.Decimal `gorm:"column:order_total;type:numeric(12,2);not null;default:0"`
	PaymentMethod string          `gorm:"column:payment_method"`
	TaxCategory   string          `gorm:"column:tax_category"`
	OrderStatus   string          `gorm:"column:order_status"`
	CollectedAt   *time.Time      `gorm:"column:collected_at"`
	DeliveryNote  *string         `gorm:"column:delivery_note"`
	Msg1          *string         `gorm:"column:msg1"`
	Msg2          *string         `gorm:"column:msg2"`
	Msg3          *string         `gorm:"column:msg3"`
	Msg4          *string         `gorm:"column:msg4"`
	Msg5          *string         `gorm:"column:msg5"`
	Msg6          *string         `gorm:"column:msg6"`

	ClassificationKey  string                   `gorm:"column:classification_key;size:3"`
	OverflowRun        bool                     `gorm:"column:overflow_run;not null;default:false"`
	Center             enums.Center             `gorm:"column:center"`
	ConsolidationClass enums.ConsolidationClass `gorm:"column:consolidation_class"`
	ParcelUnits        int                      `gorm:"column:parcel_units;not null;default:1"`
	ParcelCount        int                      `gorm:"column:parcel_count;not null;default:0"`
	SortKey            string                   `gorm:"column:sort_key"`
	PriorityFlag1      *string                  `gorm:"column:priority_flag1"`
	PriorityFlag2      *string                  `gorm:"column:priority_flag2"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the staging table.
func (OrderLine) TableName() string { return "order_lines" }

// BeforeCreate fills the id client-side so bulk inserts work on drivers
// without a uuid default.
func (l *OrderLine) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// HasPriority reports whether either priority flag marker is set.
func (l OrderLine) HasPriority() bool {
	return (l.PriorityFlag1 != nil && *l.PriorityFlag1 != "") ||
		(l.PriorityFlag2 != nil && *l.PriorityFlag2 != "")
}
