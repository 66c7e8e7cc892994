package overflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/shiplinehq/shipline/internal/rules"
	"github.com/shiplinehq/shipline/pkg/db/models"
	"github.com/shiplinehq/shipline/pkg/enums"
	"github.com/shiplinehq/shipline/pkg/logger"
)

// Stats summarizes one application of the stage.
type Stats struct {
	Processed  int
	Rerouted   int
	Companions int
}

// Stage reroutes high-quantity lines of a configured classification into
// the owning center's overflow run. Everything below threshold stays on
// the combined track and re-merges at aggregation.
type Stage struct {
	logg *logger.Logger
	set  *rules.Set
}

// New builds the overflow split stage over a loaded rule set.
func New(logg *logger.Logger, set *rules.Set) (*Stage, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if set == nil {
		return nil, fmt.Errorf("rule set required")
	}
	return &Stage{logg: logg, set: set}, nil
}

type addressKey struct {
	center    enums.Center
	address   string
	recipient string
}

// Apply marks rerouted lines in place. Rerouted lines carry the target
// classification key, the prefixed display name and OverflowRun=true;
// consolidation later treats the two tracks as separate record sets.
func (s *Stage) Apply(ctx context.Context, lines []models.OrderLine) ([]models.OrderLine, Stats) {
	stats := Stats{Processed: len(lines)}

	reroutedAt := make(map[addressKey]int)
	remainingAt := make(map[addressKey][]int)
	for i := range lines {
		line := &lines[i]
		rule, ok := s.set.OverflowFor(line.Center)
		if !ok {
			continue
		}
		key := addressKey{center: line.Center, address: line.Address, recipient: line.RecipientName}
		if line.ClassificationKey == rule.SourceKey && line.Qty >= rule.ThresholdQty {
			s.reroute(line, rule)
			stats.Rerouted++
			reroutedAt[key]++
			continue
		}
		remainingAt[key] = append(remainingAt[key], i)
	}

	// Anti-stranding: an address whose single overflow item moved must not
	// ship its lone companion item by itself.
	for key, count := range reroutedAt {
		if count != 1 {
			continue
		}
		remaining := remainingAt[key]
		if len(remaining) != 1 {
			continue
		}
		line := &lines[remaining[0]]
		rule, ok := s.set.OverflowFor(line.Center)
		if !ok || rule.CompanionKey == "" || line.ClassificationKey != rule.CompanionKey {
			continue
		}
		line.OverflowRun = true
		stats.Companions++
	}

	// Everything left behind is the combined track; consolidation
	// reclassifies it into its terminal class.
	for i := range lines {
		if !lines[i].OverflowRun && !lines[i].ConsolidationClass.IsTerminal() {
			lines[i].ConsolidationClass = enums.ConsolidationClassCombined
		}
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"processed":  stats.Processed,
		"rerouted":   stats.Rerouted,
		"companions": stats.Companions,
	})
	s.logg.Info(logCtx, "overflow split complete")
	return lines, stats
}

func (s *Stage) reroute(line *models.OrderLine, rule rules.Overflow) {
	line.OverflowRun = true
	line.ClassificationKey = rule.TargetKey
	line.ItemName = applyPrefix(rule.NamePrefix, line.ItemName)
}

// applyPrefix prepends the overflow naming prefix exactly once.
func applyPrefix(prefix, name string) string {
	if strings.HasPrefix(name, prefix) {
		return name
	}
	return prefix + name
}
