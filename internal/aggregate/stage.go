package aggregate

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shiplinehq/shipline/internal/rules"
	"github.com/shiplinehq/shipline/pkg/db"
	"github.com/shiplinehq/shipline/pkg/db/models"
	"github.com/shiplinehq/shipline/pkg/enums"
	pkgerrors "github.com/shiplinehq/shipline/pkg/errors"
	"github.com/shiplinehq/shipline/pkg/logger"
)

const insertBatchSize = 500

// Stats summarizes one application of the stage.
type Stats struct {
	Processed int
	Published int
	Preboxed  int
	ByCenter  map[string]int
}

// Stage unions the terminal lines of both tracks with each center's
// pre-boxed shipments, sorts them into label order and replaces the
// result table inside one transaction. Concurrent readers never see a
// half-written result set.
type Stage struct {
	logg *logger.Logger
	db   *db.Client
	set  *rules.Set
}

// New builds the aggregation stage.
func New(logg *logger.Logger, client *db.Client, set *rules.Set) (*Stage, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if set == nil {
		return nil, fmt.Errorf("rule set required")
	}
	return &Stage{logg: logg, db: client, set: set}, nil
}

// Apply publishes the run's result set. Any integrity violation aborts
// before the transaction commits, so the previous result set survives.
func (s *Stage) Apply(ctx context.Context, runID uuid.UUID, lines []models.OrderLine) (Stats, error) {
	stats := Stats{Processed: len(lines), ByCenter: make(map[string]int)}

	if err := checkCenterExclusivity(lines); err != nil {
		return stats, err
	}

	byCenter := make(map[enums.Center][]models.CenterResult)
	for _, line := range lines {
		byCenter[line.Center] = append(byCenter[line.Center], resultFromLine(runID, line))
	}

	preboxed, err := s.loadPreboxed(ctx, runID)
	if err != nil {
		return stats, err
	}
	for center, rows := range preboxed {
		byCenter[center] = append(byCenter[center], rows...)
		stats.Preboxed += len(rows)
	}

	all := make([]models.CenterResult, 0, stats.Processed+stats.Preboxed)
	for center, rows := range byCenter {
		if err := s.applyPolicies(center, rows); err != nil {
			return stats, err
		}
		sortResults(rows)
		for i := range rows {
			rows[i].Position = i + 1
		}
		stats.ByCenter[string(center)] = len(rows)
		all = append(all, rows...)
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM center_results").Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "truncate center results")
		}
		if len(all) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(all, insertBatchSize).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert center results")
		}
		return nil
	})
	if err != nil {
		return stats, err
	}
	stats.Published = len(all)

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"processed": stats.Processed,
		"published": stats.Published,
		"preboxed":  stats.Preboxed,
		"by_center": stats.ByCenter,
	})
	s.logg.Info(logCtx, "aggregation complete")
	return stats, nil
}

// checkCenterExclusivity verifies no source line ended up routed to two
// centers. Label printing assumes exclusivity, so a violation is fatal.
func checkCenterExclusivity(lines []models.OrderLine) error {
	seen := make(map[int64]enums.Center, len(lines))
	for _, line := range lines {
		if prior, ok := seen[line.IngestSeq]; ok && prior != line.Center {
			return pkgerrors.New(pkgerrors.CodeIntegrity,
				fmt.Sprintf("line %d routed to both %s and %s", line.IngestSeq, prior, line.Center))
		}
		seen[line.IngestSeq] = line.Center
	}
	return nil
}

func (s *Stage) loadPreboxed(ctx context.Context, runID uuid.UUID) (map[enums.Center][]models.CenterResult, error) {
	var rows []models.PreboxedShipment
	if err := s.db.DB().WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load preboxed shipments")
	}
	out := make(map[enums.Center][]models.CenterResult)
	for _, row := range rows {
		out[row.Center] = append(out[row.Center], resultFromPreboxed(runID, row))
	}
	return out, nil
}

func (s *Stage) applyPolicies(center enums.Center, rows []models.CenterResult) error {
	shippingCost, err := s.set.Policy(center, enums.PolicyCodeShippingCost)
	if err != nil {
		return err
	}
	boxSize, err := s.set.Policy(center, enums.PolicyCodeBoxSize)
	if err != nil {
		return err
	}
	printRaw, err := s.set.Policy(center, enums.PolicyCodePrintCount)
	if err != nil {
		return err
	}
	printCount, err := strconv.Atoi(printRaw)
	if err != nil || printCount < 1 {
		return pkgerrors.New(pkgerrors.CodeConfig,
			fmt.Sprintf("policy %s for center %s is not a positive integer: %q", enums.PolicyCodePrintCount, center, printRaw))
	}
	for i := range rows {
		rows[i].ShippingCost = shippingCost
		rows[i].BoxSize = boxSize
		rows[i].PrintCount = printCount
	}
	return nil
}

// sortResults orders label rows: priority first, then address, then item
// name. The sort is stable so re-runs over the same snapshot reproduce
// positions exactly.
func sortResults(rows []models.CenterResult) {
	sort.SliceStable(rows, func(i, j int) bool {
		pi, pj := priorityRank(rows[i]), priorityRank(rows[j])
		if pi != pj {
			return pi < pj
		}
		if rows[i].Address != rows[j].Address {
			return rows[i].Address < rows[j].Address
		}
		return rows[i].ItemName < rows[j].ItemName
	})
}

func priorityRank(row models.CenterResult) int {
	if row.Priority {
		return 0
	}
	return 1
}

func resultFromLine(runID uuid.UUID, line models.OrderLine) models.CenterResult {
	return models.CenterResult{
		RunID:              runID,
		Center:             line.Center,
		OrderNo:            line.OrderNo,
		MarketOrderNo:      line.MarketOrderNo,
		RecipientName:      line.RecipientName,
		PostalCode:         line.PostalCode,
		Address:            line.Address,
		ItemCode:           line.ItemCode,
		ItemName:           line.ItemName,
		Qty:                line.Qty,
		UnitPrice:          line.UnitPrice,
		OrderTotal:         line.OrderTotal,
		PaymentMethod:      line.PaymentMethod,
		DeliveryNote:       line.DeliveryNote,
		Msg1:               line.Msg1,
		Msg2:               line.Msg2,
		Msg3:               line.Msg3,
		Msg4:               line.Msg4,
		Msg5:               line.Msg5,
		Msg6:               line.Msg6,
		ConsolidationClass: line.ConsolidationClass,
		ParcelCount:        line.ParcelCount,
		Priority:           line.HasPriority(),
	}
}

func resultFromPreboxed(runID uuid.UUID, row models.PreboxedShipment) models.CenterResult {
	return models.CenterResult{
		RunID:              runID,
		Center:             row.Center,
		OrderNo:            row.OrderNo,
		RecipientName:      row.RecipientName,
		PostalCode:         row.PostalCode,
		Address:            row.Address,
		ItemCode:           row.ItemCode,
		ItemName:           row.ItemName,
		Qty:                row.Qty,
		ConsolidationClass: enums.ConsolidationClassOneParcel,
		ParcelCount:        1,
		Priority:           row.PriorityFlag != nil && *row.PriorityFlag != "",
	}
}
