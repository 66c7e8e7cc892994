package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"

	"github.com/shiplinehq/shipline/internal/ingest"
)

// csvSource reads the order snapshot export. The first row is the header;
// column order is free because the ingest mapping resolves names, not
// positions.
type csvSource struct {
	path string
}

func newCSVSource(path string) *csvSource {
	return &csvSource{path: path}
}

func (s *csvSource) Records(ctx context.Context) ([]ingest.RawRecord, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := rows[0]
	records := make([]ingest.RawRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record := make(ingest.RawRecord, len(header))
		for i, column := range header {
			if i < len(row) {
				record[column] = row[i]
			}
		}
		records = append(records, record)
	}
	return records, nil
}
