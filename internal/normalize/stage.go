package normalize

import (
	"context"
	"fmt"
	"strings"

	"github.com/shiplinehq/shipline/pkg/db/models"
	"github.com/shiplinehq/shipline/pkg/logger"
)

// Sentinel values written when the snapshot omits the item fields; label
// printing needs something in every column.
const (
	SentinelItemCode = "NOCODE"
	SentinelItemName = "UNREGISTERED ITEM"

	fallbackRecipient = "UNKNOWN"
	fallbackAddress   = "ADDRESS UNKNOWN"
)

// Options configures the note markers reserved for label templates.
type Options struct {
	NoteMarkerOpen  string
	NoteMarkerClose string
}

// Stats summarizes one application of the stage.
type Stats struct {
	Processed int
	Defaulted int
}

// Stage cleans raw fields into canonical forms. It never fails: every
// missing field has a defensive default.
type Stage struct {
	logg        *logger.Logger
	markerOpen  string
	markerClose string
}

// New builds the normalization stage.
func New(logg *logger.Logger, opts Options) (*Stage, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	markerOpen := opts.NoteMarkerOpen
	if markerOpen == "" {
		markerOpen = "[["
	}
	markerClose := opts.NoteMarkerClose
	if markerClose == "" {
		markerClose = "]]"
	}
	return &Stage{logg: logg, markerOpen: markerOpen, markerClose: markerClose}, nil
}

// Apply mutates every line in place and reports how many needed defaults.
func (s *Stage) Apply(ctx context.Context, lines []models.OrderLine) ([]models.OrderLine, Stats) {
	stats := Stats{Processed: len(lines)}
	for i := range lines {
		if s.normalizeLine(&lines[i]) {
			stats.Defaulted++
		}
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"processed": stats.Processed,
		"defaulted": stats.Defaulted,
	})
	s.logg.Info(logCtx, "normalization complete")
	return lines, stats
}

func (s *Stage) normalizeLine(line *models.OrderLine) bool {
	defaulted := false

	line.ItemCode = strings.TrimSpace(line.ItemCode)
	line.ItemName = strings.TrimSpace(line.ItemName)
	if line.ItemCode == "" {
		line.ItemCode = SentinelItemCode
		line.ItemName = SentinelItemName
		defaulted = true
	} else if line.ItemName == "" {
		line.ItemName = line.ItemCode
		defaulted = true
	}

	line.RecipientName = strings.TrimSpace(line.RecipientName)
	switch {
	case line.RecipientName == "":
		line.RecipientName = fallbackRecipient
		defaulted = true
	case len([]rune(line.RecipientName)) == 1:
		// single-character names break downstream label fields
		line.RecipientName = line.RecipientName + line.RecipientName
		defaulted = true
	}

	line.Address = strings.TrimSpace(line.Address)
	if line.Address == "" {
		if postal := strings.TrimSpace(line.PostalCode); postal != "" {
			line.Address = postal
		} else {
			line.Address = fallbackAddress
		}
		defaulted = true
	}

	if line.Qty < 1 {
		line.Qty = 1
		defaulted = true
	}
	if line.ParcelUnits < 1 {
		line.ParcelUnits = 1
	}

	line.PaymentMethod = strings.TrimSpace(line.PaymentMethod)

	if line.DeliveryNote != nil {
		cleaned := s.stripMarkedSegments(*line.DeliveryNote)
		if cleaned != *line.DeliveryNote {
			line.DeliveryNote = &cleaned
		}
	}

	return defaulted
}

// stripMarkedSegments removes template-reserved spans from the note,
// including the markers themselves. A dangling open marker is dropped
// together with the rest of the note to keep reserved text off labels.
func (s *Stage) stripMarkedSegments(note string) string {
	var b strings.Builder
	rest := note
	for {
		start := strings.Index(rest, s.markerOpen)
		if start < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:start])
		tail := rest[start+len(s.markerOpen):]
		end := strings.Index(tail, s.markerClose)
		if end < 0 {
			break
		}
		rest = tail[end+len(s.markerClose):]
	}
	return strings.TrimSpace(b.String())
}
