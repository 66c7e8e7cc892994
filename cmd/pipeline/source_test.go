package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestCSVSourceReadsHeaderedSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.csv")
	content := "order_no,recipient_name,address,item_code,item_name,qty\n" +
		"A-1,Sato,Akita 1,X,X item,2\n" +
		"A-2,Kato,Akita 2,Y,Y item,1\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	source := newCSVSource(path)
	records, err := source.Records(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0]["order_no"] != "A-1" || records[0]["qty"] != "2" {
		t.Fatalf("unexpected first record: %v", records[0])
	}
	if records[1]["recipient_name"] != "Kato" {
		t.Fatalf("unexpected second record: %v", records[1])
	}
}

func TestCSVSourceToleratesShortRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.csv")
	content := "order_no,recipient_name,address\nA-1,Sato\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	source := newCSVSource(path)
	records, err := source.Records(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if _, present := records[0]["address"]; present {
		t.Fatal("missing trailing column must stay absent")
	}
}

func TestCSVSourceMissingFile(t *testing.T) {
	source := newCSVSource("/does/not/exist.csv")
	if _, err := source.Records(context.Background()); err == nil {
		t.Fatal("expected error for missing file")
	}
}
