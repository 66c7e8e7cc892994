package consolidate

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/shiplinehq/shipline/pkg/db/models"
	"github.com/shiplinehq/shipline/pkg/enums"
	"github.com/shiplinehq/shipline/pkg/logger"
)

func newTestStage(t *testing.T) *Stage {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
	stage, err := New(logg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return stage
}

func TestApplyExtraGroupProducesPlaceholders(t *testing.T) {
	stage := newTestStage(t)

	// Two lines, one parcel each: group total 2, count 2, class extra.
	out, stats := stage.Apply(context.Background(), []models.OrderLine{
		{IngestSeq: 1, Address: "Kobe 3-1", RecipientName: "Mori", ItemCode: "A", ItemName: "A item", OrderNo: "N-1", Qty: 1, ParcelUnits: 1, UnitPrice: decimal.NewFromInt(500), OrderTotal: decimal.NewFromInt(500)},
		{IngestSeq: 2, Address: "Kobe 3-1", RecipientName: "Mori", ItemCode: "B", ItemName: "B item", OrderNo: "N-2", Qty: 1, ParcelUnits: 1},
	})

	if stats.Groups != 1 || stats.ByClass["extra"] != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 placeholder rows, got %d", len(out))
	}
	for i, row := range out {
		if row.ItemCode != ParcelSentinel || row.ItemName != ParcelSentinel || row.OrderNo != ParcelSentinel {
			t.Fatalf("row %d must carry the sentinel, got %+v", i, row)
		}
		if row.Qty != 1 || row.ParcelCount != 2 || row.ConsolidationClass != enums.ConsolidationClassExtra {
			t.Fatalf("row %d malformed: %+v", i, row)
		}
		want := fmt.Sprintf("Kobe 3-1[%d]", i+1)
		if row.Address != want {
			t.Fatalf("row %d address = %q, want %q", i, row.Address, want)
		}
	}
	if out[0].IngestSeq != 1 {
		t.Fatal("representative must be the first line by ingestion order")
	}
	if !out[1].UnitPrice.IsZero() || !out[1].OrderTotal.IsZero() {
		t.Fatal("duplicated placeholders must not carry money")
	}
}

func TestApplyExtraSequenceUniqueAndContiguous(t *testing.T) {
	stage := newTestStage(t)

	// 7 units at 2 per parcel: total 3.5, count 4.
	out, _ := stage.Apply(context.Background(), []models.OrderLine{
		{IngestSeq: 5, Address: "Hakata 9", RecipientName: "Ito", ItemCode: "C", ItemName: "C item", Qty: 7, ParcelUnits: 2},
	})
	if len(out) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(out))
	}
	seen := make(map[string]bool)
	for i, row := range out {
		want := fmt.Sprintf("Hakata 9[%d]", i+1)
		if row.Address != want {
			t.Fatalf("row %d address = %q, want %q", i, row.Address, want)
		}
		if seen[row.Address] {
			t.Fatalf("duplicate address %q", row.Address)
		}
		seen[row.Address] = true
	}
}

func TestApplySingleAndOneParcel(t *testing.T) {
	stage := newTestStage(t)

	out, stats := stage.Apply(context.Background(), []models.OrderLine{
		{IngestSeq: 1, Address: "Ueda 1", RecipientName: "Kato", ItemCode: "A", ItemName: "A item", Qty: 1, ParcelUnits: 4},
		{IngestSeq: 2, Address: "Ueda 2", RecipientName: "Oda", ItemCode: "A", ItemName: "A item", Qty: 1, ParcelUnits: 4},
		{IngestSeq: 3, Address: "Ueda 2", RecipientName: "Oda", ItemCode: "A", ItemName: "A item", Qty: 2, ParcelUnits: 4},
		{IngestSeq: 4, Address: "Ueda 2", RecipientName: "Oda", ItemCode: "B", ItemName: "B item", Qty: 1, ParcelUnits: 4},
	})

	if stats.ByClass["single"] != 1 || stats.ByClass["one_parcel"] != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if out[0].ConsolidationClass != enums.ConsolidationClassSingle || out[0].ParcelCount != 1 {
		t.Fatalf("unique single line must classify single: %+v", out[0])
	}

	// Duplicate item rows in the one-parcel group merge with summed qty.
	group := out[1:]
	if len(group) != 2 {
		t.Fatalf("expected 2 merged rows, got %d", len(group))
	}
	if group[0].ItemCode != "A" || group[0].Qty != 3 {
		t.Fatalf("expected merged qty 3 for item A, got %+v", group[0])
	}
	if group[1].ItemCode != "B" || group[1].Qty != 1 {
		t.Fatalf("unexpected second row: %+v", group[1])
	}
	for _, row := range group {
		if row.ConsolidationClass != enums.ConsolidationClassOneParcel {
			t.Fatalf("expected one_parcel, got %s", row.ConsolidationClass)
		}
	}
}

func TestApplyDefaultsZeroParcelUnits(t *testing.T) {
	stage := newTestStage(t)

	out, stats := stage.Apply(context.Background(), []models.OrderLine{
		{IngestSeq: 1, Address: "Gifu 4", RecipientName: "Endo", ItemCode: "A", ItemName: "A item", Qty: 1, ParcelUnits: 0},
	})
	if stats.Defaulted != 1 {
		t.Fatalf("expected 1 defaulted, got %d", stats.Defaulted)
	}
	if out[0].ParcelCount != 1 || out[0].ConsolidationClass != enums.ConsolidationClassSingle {
		t.Fatalf("zero units must fall back to one parcel per unit: %+v", out[0])
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	stage := newTestStage(t)

	input := []models.OrderLine{
		{IngestSeq: 1, Address: "Kobe 3-1", RecipientName: "Mori", ItemCode: "A", ItemName: "A item", Qty: 1, ParcelUnits: 1},
		{IngestSeq: 2, Address: "Kobe 3-1", RecipientName: "Mori", ItemCode: "B", ItemName: "B item", Qty: 1, ParcelUnits: 1},
	}
	first, _ := stage.Apply(context.Background(), input)
	second, stats := stage.Apply(context.Background(), first)

	if stats.Groups != 0 {
		t.Fatalf("terminal rows must pass through, got %d groups", stats.Groups)
	}
	if len(second) != len(first) {
		t.Fatalf("expected %d rows, got %d", len(first), len(second))
	}
	for i := range first {
		if second[i].Address != first[i].Address || second[i].ParcelCount != first[i].ParcelCount {
			t.Fatalf("row %d changed on re-run: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestParcelFactorFloorsAtThreeDecimals(t *testing.T) {
	// 1/3 floors to 0.333: 3 units fit one parcel with margin, 4 do not.
	count, defaulted := parcelCount([]models.OrderLine{{Qty: 3, ParcelUnits: 3}})
	if count != 1 || defaulted != 0 {
		t.Fatalf("3 units at 3/parcel must be 1 parcel, got %d", count)
	}
	count, _ = parcelCount([]models.OrderLine{{Qty: 4, ParcelUnits: 3}})
	if count != 2 {
		t.Fatalf("4 units at 3/parcel must be 2 parcels, got %d", count)
	}
	count, _ = parcelCount([]models.OrderLine{{Qty: 1000, ParcelUnits: 7}})
	// 1000 × 0.142 = 142 exactly.
	if count != 142 {
		t.Fatalf("expected 142 parcels, got %d", count)
	}
}
