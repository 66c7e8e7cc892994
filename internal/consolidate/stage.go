package consolidate

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shiplinehq/shipline/pkg/db/models"
	"github.com/shiplinehq/shipline/pkg/enums"
	"github.com/shiplinehq/shipline/pkg/logger"
)

// Sentinel written onto extra-parcel placeholder rows so they can never be
// mistaken for bookable inventory.
const ParcelSentinel = "+++"

// defaultParcelUnits guards the parcel math against zero or negative
// units-per-parcel configuration.
const defaultParcelUnits = 1

// Stats summarizes one application of the stage.
type Stats struct {
	Processed int
	Emitted   int
	Groups    int
	Defaulted int
	ByClass   map[string]int
}

// Stage groups lines by (address, recipient), computes the physical parcel
// count per group and rewrites each group into its label rows.
type Stage struct {
	logg *logger.Logger
}

// New builds the consolidation stage.
func New(logg *logger.Logger) (*Stage, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Stage{logg: logg}, nil
}

type groupKey struct {
	address   string
	recipient string
}

// Apply consolidates one track (combined or overflow) as a whole record
// set. Lines already in a terminal class pass through untouched, which
// keeps a re-run over the same snapshot idempotent.
func (s *Stage) Apply(ctx context.Context, lines []models.OrderLine) ([]models.OrderLine, Stats) {
	stats := Stats{Processed: len(lines), ByClass: make(map[string]int)}

	groups := make(map[groupKey][]models.OrderLine)
	order := make([]groupKey, 0)
	out := make([]models.OrderLine, 0, len(lines))
	for _, line := range lines {
		if line.ConsolidationClass.IsTerminal() {
			out = append(out, line)
			continue
		}
		key := groupKey{address: line.Address, recipient: line.RecipientName}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], line)
	}

	for _, key := range order {
		members := groups[key]
		sort.Slice(members, func(i, j int) bool { return members[i].IngestSeq < members[j].IngestSeq })

		count, defaulted := parcelCount(members)
		stats.Defaulted += defaulted
		stats.Groups++

		var rows []models.OrderLine
		switch {
		case count > 1:
			rows = placeholderRows(members[0], count)
			stats.ByClass[string(enums.ConsolidationClassExtra)]++
		case len(members) == 1:
			rows = classify(members, enums.ConsolidationClassSingle, count)
			stats.ByClass[string(enums.ConsolidationClassSingle)]++
		default:
			rows = classify(mergeByItem(members), enums.ConsolidationClassOneParcel, count)
			stats.ByClass[string(enums.ConsolidationClassOneParcel)]++
		}
		out = append(out, rows...)
	}
	stats.Emitted = len(out)

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"processed": stats.Processed,
		"emitted":   stats.Emitted,
		"groups":    stats.Groups,
		"defaulted": stats.Defaulted,
		"by_class":  stats.ByClass,
	})
	s.logg.Info(logCtx, "consolidation complete")
	return out, stats
}

// parcelCount sums quantity × parcel factor over the group and rounds up.
// The factor is the exact three-decimal floor of 1/unitsPerParcel, so
// fractional parcels are never over-counted.
func parcelCount(members []models.OrderLine) (int, int) {
	defaulted := 0
	total := decimal.Zero
	for _, member := range members {
		units := member.ParcelUnits
		if units < 1 {
			units = defaultParcelUnits
			defaulted++
		}
		factor := decimal.New(int64(1000/units), -3)
		total = total.Add(factor.Mul(decimal.NewFromInt(int64(member.Qty))))
	}
	count := int(total.Ceil().IntPart())
	if count < 1 {
		count = 1
	}
	return count, defaulted
}

// placeholderRows replaces an extra group with one sentinel row per
// physical parcel. The representative is the first member by ingestion
// order; sequence numbers are assigned by a plain fold over 1..count so
// the bracketed address suffixes come out unique and contiguous.
func placeholderRows(representative models.OrderLine, count int) []models.OrderLine {
	base := representative
	base.Qty = 1
	base.ItemCode = ParcelSentinel
	base.ItemName = ParcelSentinel
	base.OrderNo = ParcelSentinel
	base.ConsolidationClass = enums.ConsolidationClassExtra
	base.ParcelCount = count

	rows := make([]models.OrderLine, 0, count)
	for seq := 1; seq <= count; seq++ {
		row := base
		row.Address = fmt.Sprintf("%s[%d]", representative.Address, seq)
		if seq > 1 {
			row.ID = uuid.Nil
			row.UnitPrice = decimal.Zero
			row.OrderTotal = decimal.Zero
		}
		rows = append(rows, row)
	}
	return rows
}

func classify(members []models.OrderLine, class enums.ConsolidationClass, count int) []models.OrderLine {
	for i := range members {
		members[i].ConsolidationClass = class
		members[i].ParcelCount = count
	}
	return members
}

// mergeByItem collapses a one-parcel group's duplicate item rows into one
// row per item code with summed quantity and money, so the merged label
// prints one quantity per item.
func mergeByItem(members []models.OrderLine) []models.OrderLine {
	byCode := make(map[string]int)
	merged := make([]models.OrderLine, 0, len(members))
	for _, member := range members {
		idx, seen := byCode[member.ItemCode]
		if !seen {
			byCode[member.ItemCode] = len(merged)
			merged = append(merged, member)
			continue
		}
		merged[idx].Qty += member.Qty
		merged[idx].UnitPrice = merged[idx].UnitPrice.Add(member.UnitPrice)
		merged[idx].OrderTotal = merged[idx].OrderTotal.Add(member.OrderTotal)
	}
	return merged
}
