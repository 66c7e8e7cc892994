package normalize

import (
	"context"
	"io"
	"testing"

	"github.com/rs/zerolog"

	"github.com/shiplinehq/shipline/pkg/db/models"
	"github.com/shiplinehq/shipline/pkg/logger"
)

func newTestStage(t *testing.T) *Stage {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
	stage, err := New(logg, Options{NoteMarkerOpen: "[[", NoteMarkerClose: "]]"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return stage
}

func TestApplyDefaultsMissingItemFields(t *testing.T) {
	stage := newTestStage(t)

	lines, stats := stage.Apply(context.Background(), []models.OrderLine{
		{OrderNo: "A-1", RecipientName: "Tanaka", Address: "Osaka", Qty: 2},
		{OrderNo: "A-2", RecipientName: "Tanaka", Address: "Osaka", ItemCode: "CHL001", Qty: 1},
	})
	if stats.Processed != 2 || stats.Defaulted != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if lines[0].ItemCode != SentinelItemCode || lines[0].ItemName != SentinelItemName {
		t.Fatalf("blank code must take both sentinels, got %q %q", lines[0].ItemCode, lines[0].ItemName)
	}
	if lines[1].ItemName != "CHL001" {
		t.Fatalf("blank name must fall back to the code, got %q", lines[1].ItemName)
	}
}

func TestApplyRecipientAndAddressDefaults(t *testing.T) {
	stage := newTestStage(t)

	lines, _ := stage.Apply(context.Background(), []models.OrderLine{
		{ItemCode: "X", ItemName: "X", RecipientName: "林", Address: "Kyoto", Qty: 1},
		{ItemCode: "X", ItemName: "X", RecipientName: "", PostalCode: "530-0001", Qty: 1},
		{ItemCode: "X", ItemName: "X", RecipientName: "Sato", Address: "", PostalCode: "", Qty: 0},
	})
	if lines[0].RecipientName != "林林" {
		t.Fatalf("single-rune name must be doubled, got %q", lines[0].RecipientName)
	}
	if lines[1].RecipientName != "UNKNOWN" {
		t.Fatalf("blank name must take the fallback, got %q", lines[1].RecipientName)
	}
	if lines[1].Address != "530-0001" {
		t.Fatalf("blank address must fall back to postal code, got %q", lines[1].Address)
	}
	if lines[2].Address != "ADDRESS UNKNOWN" {
		t.Fatalf("blank address and postal code must take the fallback, got %q", lines[2].Address)
	}
	if lines[2].Qty != 1 {
		t.Fatalf("non-positive qty must default to 1, got %d", lines[2].Qty)
	}
}

func TestApplyStripsNoteMarkers(t *testing.T) {
	stage := newTestStage(t)

	note := "leave at door [[TPL:fragile]] ring bell"
	dangling := "call first [[TPL:cold"
	plain := "no markers here"
	lines, _ := stage.Apply(context.Background(), []models.OrderLine{
		{ItemCode: "X", ItemName: "X", RecipientName: "Abe", Address: "Nara", Qty: 1, DeliveryNote: &note},
		{ItemCode: "X", ItemName: "X", RecipientName: "Abe", Address: "Nara", Qty: 1, DeliveryNote: &dangling},
		{ItemCode: "X", ItemName: "X", RecipientName: "Abe", Address: "Nara", Qty: 1, DeliveryNote: &plain},
	})
	if got := *lines[0].DeliveryNote; got != "leave at door  ring bell" {
		t.Fatalf("marked span must be removed, got %q", got)
	}
	if got := *lines[1].DeliveryNote; got != "call first" {
		t.Fatalf("dangling marker must drop the tail, got %q", got)
	}
	if got := *lines[2].DeliveryNote; got != plain {
		t.Fatalf("note without markers must be untouched, got %q", got)
	}
}

func TestNewRequiresLogger(t *testing.T) {
	if _, err := New(nil, Options{}); err == nil {
		t.Fatal("expected error for nil logger")
	}
}
