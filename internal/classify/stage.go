package classify

import (
	"context"
	"fmt"

	"github.com/shiplinehq/shipline/internal/rules"
	"github.com/shiplinehq/shipline/pkg/db/models"
	"github.com/shiplinehq/shipline/pkg/logger"
)

// Stats summarizes one application of the stage.
type Stats struct {
	Processed int
	Defaulted int
	ByCenter  map[string]int
}

// Stage assigns every line a classification key and a destination center.
// The routing table is total, so classification never drops a line.
type Stage struct {
	logg  *logger.Logger
	table *rules.Table
}

// New builds the classification stage over a loaded routing table.
func New(logg *logger.Logger, table *rules.Table) (*Stage, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if table == nil {
		return nil, fmt.Errorf("routing table required")
	}
	return &Stage{logg: logg, table: table}, nil
}

// Apply stamps ClassificationKey and Center on every line. Defaulted counts
// lines whose key missed the table and fell through to the default center.
func (s *Stage) Apply(ctx context.Context, lines []models.OrderLine) ([]models.OrderLine, Stats) {
	stats := Stats{Processed: len(lines), ByCenter: make(map[string]int)}
	for i := range lines {
		key := rules.Key(lines[i].ItemName)
		center, mapped := s.table.LookupMapped(key)
		lines[i].ClassificationKey = key
		lines[i].Center = center
		if !mapped {
			stats.Defaulted++
		}
		stats.ByCenter[string(center)]++
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"processed": stats.Processed,
		"defaulted": stats.Defaulted,
		"by_center": stats.ByCenter,
	})
	s.logg.Info(logCtx, "classification complete")
	return lines, stats
}
