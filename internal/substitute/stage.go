package substitute

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shiplinehq/shipline/internal/rules"
	"github.com/shiplinehq/shipline/pkg/db/models"
	"github.com/shiplinehq/shipline/pkg/logger"
)

// Stats summarizes one application of the stage.
type Stats struct {
	Processed int
	Expanded  int
	Emitted   int
	Dropped   int
}

// Stage explodes virtual item codes into their physically shipped units.
// The original line is discarded; only the primary alternate keeps the
// money fields so revenue is never double counted.
type Stage struct {
	logg *logger.Logger
	set  *rules.Set
}

// New builds the substitution stage over a loaded rule set.
func New(logg *logger.Logger, set *rules.Set) (*Stage, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if set == nil {
		return nil, fmt.Errorf("rule set required")
	}
	return &Stage{logg: logg, set: set}, nil
}

// Apply returns a new slice: unmatched lines pass through unchanged,
// matched lines are replaced by one line per alternate.
func (s *Stage) Apply(ctx context.Context, lines []models.OrderLine) ([]models.OrderLine, Stats) {
	stats := Stats{Processed: len(lines)}
	out := make([]models.OrderLine, 0, len(lines))
	for _, line := range lines {
		sub, ok := s.set.SubstitutionFor(line.ItemCode)
		if !ok {
			out = append(out, line)
			stats.Emitted++
			continue
		}
		stats.Expanded++
		for idx, alt := range sub.Alternates {
			if strings.TrimSpace(alt.Name) == "" {
				stats.Dropped++
				continue
			}
			out = append(out, expandLine(line, alt, idx == 0))
			stats.Emitted++
		}
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"processed": stats.Processed,
		"expanded":  stats.Expanded,
		"emitted":   stats.Emitted,
		"dropped":   stats.Dropped,
	})
	s.logg.Info(logCtx, "substitution complete")
	return out, stats
}

func expandLine(source models.OrderLine, alt rules.Alternate, primary bool) models.OrderLine {
	line := source
	line.ID = uuid.Nil
	line.ItemCode = alt.Code
	line.ItemName = alt.Name
	line.Qty = source.Qty * alt.UnitFactor
	// Parcel density follows the shipped item, not the virtual bundle.
	line.ParcelUnits = alt.ParcelUnits
	if line.ParcelUnits < 1 {
		line.ParcelUnits = 1
	}
	if !primary {
		line.UnitPrice = decimal.Zero
		line.OrderTotal = decimal.Zero
	}
	return line
}
