package ingest

import (
	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/shiplinehq/shipline/pkg/errors"
)

// ColumnMapping enumerates, field by field, which source column feeds each
// staged value. The table is explicit configuration validated at load
// time; nothing is resolved by reflection against the snapshot.
type ColumnMapping struct {
	OrderNo       string `validate:"required"`
	MarketOrderNo string
	RecipientName string `validate:"required"`
	Phone1        string
	Phone2        string
	PostalCode    string
	Address       string `validate:"required"`
	ItemCode      string `validate:"required"`
	ItemName      string `validate:"required"`
	Qty           string `validate:"required"`
	UnitPrice     string
	OrderTotal    string
	PaymentMethod string
	TaxCategory   string
	OrderStatus   string
	CollectedAt   string
	DeliveryNote  string
	Msg1          string
	Msg2          string
	Msg3          string
	Msg4          string
	Msg5          string
	Msg6          string
	ParcelUnits   string
	PriorityFlag1 string
	PriorityFlag2 string
}

// DefaultColumnMapping matches the standard export header of the upstream
// order snapshot.
func DefaultColumnMapping() ColumnMapping {
	return ColumnMapping{
		OrderNo:       "order_no",
		MarketOrderNo: "market_order_no",
		RecipientName: "recipient_name",
		Phone1:        "phone1",
		Phone2:        "phone2",
		PostalCode:    "postal_code",
		Address:       "address",
		ItemCode:      "item_code",
		ItemName:      "item_name",
		Qty:           "qty",
		UnitPrice:     "unit_price",
		OrderTotal:    "order_total",
		PaymentMethod: "payment_method",
		TaxCategory:   "tax_category",
		OrderStatus:   "order_status",
		CollectedAt:   "collected_at",
		DeliveryNote:  "delivery_note",
		Msg1:          "msg1",
		Msg2:          "msg2",
		Msg3:          "msg3",
		Msg4:          "msg4",
		Msg5:          "msg5",
		Msg6:          "msg6",
		ParcelUnits:   "parcel_units",
		PriorityFlag1: "priority_flag1",
		PriorityFlag2: "priority_flag2",
	}
}

// Validate rejects a mapping missing any column the stages depend on.
func (m ColumnMapping) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(m); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeConfig, err, "column mapping incomplete")
	}
	return nil
}
