package ingest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shiplinehq/shipline/internal/batch"
	"github.com/shiplinehq/shipline/pkg/db"
	"github.com/shiplinehq/shipline/pkg/db/models"
	"github.com/shiplinehq/shipline/pkg/enums"
	pkgerrors "github.com/shiplinehq/shipline/pkg/errors"
	"github.com/shiplinehq/shipline/pkg/logger"
)

// RawRecord is one snapshot row keyed by source column name.
type RawRecord map[string]string

// Source supplies the ordered ingestion snapshot. Implementations wrap a
// spreadsheet export or an upstream extract; the engine only sees records.
type Source interface {
	Records(ctx context.Context) ([]RawRecord, error)
}

var collectedAtLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02 15:04",
	"2006/01/02",
}

// Ingestor stages the raw snapshot into the order_lines table through the
// batch loader. Staging tables belong to the current run, so the previous
// run's rows are truncated first.
type Ingestor struct {
	logg    *logger.Logger
	db      *db.Client
	loader  *batch.Loader
	mapping ColumnMapping
}

// NewIngestor validates the mapping and builds an ingestor.
func NewIngestor(logg *logger.Logger, client *db.Client, loader *batch.Loader, mapping ColumnMapping) (*Ingestor, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if loader == nil {
		return nil, fmt.Errorf("batch loader required")
	}
	if err := mapping.Validate(); err != nil {
		return nil, err
	}
	return &Ingestor{logg: logg, db: client, loader: loader, mapping: mapping}, nil
}

// Stage reads the snapshot, converts it and bulk-inserts the staging rows.
// The converted lines come back in memory so the first stage does not need
// to re-read them.
func (i *Ingestor) Stage(ctx context.Context, runID uuid.UUID, source Source) ([]models.OrderLine, batch.Result, error) {
	records, err := source.Records(ctx)
	if err != nil {
		return nil, batch.Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read ingestion snapshot")
	}

	lines := BuildLines(runID, i.mapping, records)

	if err := i.db.Exec(ctx, "DELETE FROM order_lines").Error; err != nil {
		return nil, batch.Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "truncate staging table")
	}

	result, err := i.loader.Run(ctx, enums.RunStageIngest, len(lines), func(ctx context.Context, start, end int) error {
		rows := lines[start:end]
		return i.db.DB().WithContext(ctx).Create(&rows).Error
	})
	if err != nil {
		return lines, result, err
	}

	logCtx := i.logg.WithFields(ctx, map[string]any{
		"rows":   len(lines),
		"chunks": result.Chunks,
	})
	i.logg.Info(logCtx, "snapshot staged")
	return lines, result, nil
}

// BuildLines converts raw records into staging rows, assigning the stable
// ingestion sequence the downstream ordering guarantees rely on. Field
// conversion is defensive: a bad number becomes the zero value and is
// repaired by normalization, never an error.
func BuildLines(runID uuid.UUID, mapping ColumnMapping, records []RawRecord) []models.OrderLine {
	lines := make([]models.OrderLine, 0, len(records))
	for idx, record := range records {
		line := models.OrderLine{
			RunID:         runID,
			IngestSeq:     int64(idx + 1),
			OrderNo:       record[mapping.OrderNo],
			MarketOrderNo: record[mapping.MarketOrderNo],
			RecipientName: record[mapping.RecipientName],
			Phone1:        optional(record, mapping.Phone1),
			Phone2:        optional(record, mapping.Phone2),
			PostalCode:    record[mapping.PostalCode],
			Address:       record[mapping.Address],
			ItemCode:      record[mapping.ItemCode],
			ItemName:      record[mapping.ItemName],
			Qty:           parseInt(record[mapping.Qty]),
			UnitPrice:     parseDecimal(record[mapping.UnitPrice]),
			OrderTotal:    parseDecimal(record[mapping.OrderTotal]),
			PaymentMethod: record[mapping.PaymentMethod],
			TaxCategory:   record[mapping.TaxCategory],
			OrderStatus:   record[mapping.OrderStatus],
			CollectedAt:   parseTime(record[mapping.CollectedAt]),
			DeliveryNote:  optional(record, mapping.DeliveryNote),
			Msg1:          optional(record, mapping.Msg1),
			Msg2:          optional(record, mapping.Msg2),
			Msg3:          optional(record, mapping.Msg3),
			Msg4:          optional(record, mapping.Msg4),
			Msg5:          optional(record, mapping.Msg5),
			Msg6:          optional(record, mapping.Msg6),
			ParcelUnits:   parseInt(record[mapping.ParcelUnits]),
			PriorityFlag1: optional(record, mapping.PriorityFlag1),
			PriorityFlag2: optional(record, mapping.PriorityFlag2),
		}
		lines = append(lines, line)
	}
	return lines
}

func optional(record RawRecord, column string) *string {
	if column == "" {
		return nil
	}
	value, ok := record[column]
	if !ok || value == "" {
		return nil
	}
	return &value
}

func parseInt(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return n
}

func parseDecimal(value string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseTime(value string) *time.Time {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	for _, layout := range collectedAtLayouts {
		if ts, err := time.Parse(layout, trimmed); err == nil {
			return &ts
		}
	}
	return nil
}
