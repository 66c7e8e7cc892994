package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shiplinehq/shipline/internal/aggregate"
	"github.com/shiplinehq/shipline/internal/batch"
	"github.com/shiplinehq/shipline/internal/classify"
	"github.com/shiplinehq/shipline/internal/consolidate"
	"github.com/shiplinehq/shipline/internal/ingest"
	"github.com/shiplinehq/shipline/internal/normalize"
	"github.com/shiplinehq/shipline/internal/overflow"
	"github.com/shiplinehq/shipline/internal/rules"
	"github.com/shiplinehq/shipline/internal/substitute"
	"github.com/shiplinehq/shipline/pkg/config"
	"github.com/shiplinehq/shipline/pkg/db"
	"github.com/shiplinehq/shipline/pkg/db/models"
	"github.com/shiplinehq/shipline/pkg/enums"
	pkgerrors "github.com/shiplinehq/shipline/pkg/errors"
	"github.com/shiplinehq/shipline/pkg/logger"
	"github.com/shiplinehq/shipline/pkg/metrics"
)

// StageReport is the per-stage slice of the run summary the operator sees.
type StageReport struct {
	Stage         enums.RunStage
	RowsProcessed int
	RowsDefaulted int
	ChunksFailed  int
	Duration      time.Duration
}

// RunReport summarizes one pipeline run end to end.
type RunReport struct {
	RunID     uuid.UUID
	Stages    []StageReport
	Published int
	StartedAt time.Time
	EndedAt   time.Time
}

// Service orchestrates a full pipeline run: rules first, then the stages
// in order with a strict barrier between them. Only the batch loader
// parallelizes, and only within a stage.
type Service struct {
	logg     *logger.Logger
	db       *db.Client
	lock     *RunLock
	rules    *rules.Loader
	ingestor *ingest.Ingestor
	loader   *batch.Loader
	met      *metrics.PipelineMetrics
	cfg      config.PipelineConfig
}

// New wires the orchestrator. The lock and metrics may be nil; everything
// else is required.
func New(
	logg *logger.Logger,
	client *db.Client,
	lock *RunLock,
	rulesLoader *rules.Loader,
	ingestor *ingest.Ingestor,
	loader *batch.Loader,
	met *metrics.PipelineMetrics,
	cfg config.PipelineConfig,
) (*Service, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if rulesLoader == nil {
		return nil, fmt.Errorf("rules loader required")
	}
	if ingestor == nil {
		return nil, fmt.Errorf("ingestor required")
	}
	if loader == nil {
		return nil, fmt.Errorf("batch loader required")
	}
	return &Service{
		logg:     logg,
		db:       client,
		lock:     lock,
		rules:    rulesLoader,
		ingestor: ingestor,
		loader:   loader,
		met:      met,
		cfg:      cfg,
	}, nil
}

// Run executes one full pipeline run over the snapshot. A fatal error
// aborts before anything is published; transient chunk failures are
// reported in the summary and left to the operator.
func (s *Service) Run(ctx context.Context, source ingest.Source) (*RunReport, error) {
	report := &RunReport{RunID: uuid.New(), StartedAt: time.Now()}
	ctx = s.logg.WithRunID(ctx, report.RunID.String())

	if s.lock != nil {
		if err := s.lock.Acquire(ctx); err != nil {
			s.met.IncRunFailure()
			return report, err
		}
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
				s.logg.Error(ctx, "releasing run lock", err)
			}
		}()
	}

	err := s.run(ctx, source, report)
	report.EndedAt = time.Now()
	if err != nil {
		s.met.IncRunFailure()
		s.logg.Error(ctx, "run aborted", err)
		return report, err
	}
	s.met.IncRunSuccess()
	s.logSummary(ctx, report)
	return report, nil
}

func (s *Service) run(ctx context.Context, source ingest.Source, report *RunReport) error {
	// Rules load before any data mutation; a bad rule set must never cost
	// us the previous staging contents.
	ruleSet, err := s.rules.Load(ctx)
	if err != nil {
		return err
	}

	normalizeStage, err := normalize.New(s.logg, normalize.Options{
		NoteMarkerOpen:  s.cfg.NoteMarkerOpen,
		NoteMarkerClose: s.cfg.NoteMarkerClose,
	})
	if err != nil {
		return err
	}
	classifyStage, err := classify.New(s.logg, ruleSet.Classification)
	if err != nil {
		return err
	}
	substituteStage, err := substitute.New(s.logg, ruleSet)
	if err != nil {
		return err
	}
	overflowStage, err := overflow.New(s.logg, ruleSet)
	if err != nil {
		return err
	}
	consolidateStage, err := consolidate.New(s.logg)
	if err != nil {
		return err
	}
	aggregateStage, err := aggregate.New(s.logg, s.db, ruleSet)
	if err != nil {
		return err
	}

	lines, err := s.runIngest(ctx, source, report)
	if err != nil {
		return err
	}

	lines = s.runStage(ctx, enums.RunStageNormalize, report, func(stageCtx context.Context) ([]models.OrderLine, int) {
		out, stats := normalizeStage.Apply(stageCtx, lines)
		return out, stats.Defaulted
	})
	lines = s.runStage(ctx, enums.RunStageClassify, report, func(stageCtx context.Context) ([]models.OrderLine, int) {
		out, stats := classifyStage.Apply(stageCtx, lines)
		return out, stats.Defaulted
	})
	lines = s.runStage(ctx, enums.RunStageSubstitute, report, func(stageCtx context.Context) ([]models.OrderLine, int) {
		out, stats := substituteStage.Apply(stageCtx, lines)
		return out, stats.Dropped
	})
	lines = s.runStage(ctx, enums.RunStageOverflow, report, func(stageCtx context.Context) ([]models.OrderLine, int) {
		out, stats := overflowStage.Apply(stageCtx, lines)
		return out, stats.Companions
	})

	// The two tracks consolidate as separate record sets: an overflow
	// parcel must never merge with a combined-track parcel at the same
	// address.
	combined, overflowLines := splitTracks(lines)
	start := time.Now()
	combinedOut, combinedStats := consolidateStage.Apply(ctx, combined)
	overflowOut, overflowStats := consolidateStage.Apply(ctx, overflowLines)
	lines = append(combinedOut, overflowOut...)
	s.record(report, StageReport{
		Stage:         enums.RunStageConsolidate,
		RowsProcessed: combinedStats.Processed + overflowStats.Processed,
		RowsDefaulted: combinedStats.Defaulted + overflowStats.Defaulted,
		Duration:      time.Since(start),
	})

	if err := s.persistStaging(ctx, lines, report); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	start = time.Now()
	aggStats, err := aggregateStage.Apply(ctx, report.RunID, lines)
	s.record(report, StageReport{
		Stage:         enums.RunStageAggregate,
		RowsProcessed: aggStats.Processed,
		Duration:      time.Since(start),
	})
	if err != nil {
		return err
	}
	report.Published = aggStats.Published
	return nil
}

func (s *Service) runIngest(ctx context.Context, source ingest.Source, report *RunReport) ([]models.OrderLine, error) {
	start := time.Now()
	lines, result, err := s.ingestor.Stage(ctx, report.RunID, source)
	stage := StageReport{
		Stage:         enums.RunStageIngest,
		RowsProcessed: len(lines),
		ChunksFailed:  result.ChunksFailed,
		Duration:      time.Since(start),
	}
	s.record(report, stage)
	if err != nil && pkgerrors.IsFatal(err) {
		return nil, err
	}
	if err != nil {
		// Partial staging failures are reported, not fatal: the staged
		// subset is still a consistent snapshot for this run.
		s.logg.Warn(ctx, "ingest finished with failed chunks")
	}
	return lines, nil
}

// runStage times one in-memory stage and folds its stats into the report.
// Stages between ingest and aggregation cannot fail; their defects are
// absorbed as defensive defaults.
func (s *Service) runStage(ctx context.Context, stage enums.RunStage, report *RunReport, fn func(context.Context) ([]models.OrderLine, int)) []models.OrderLine {
	stageCtx := s.logg.WithStage(ctx, string(stage))
	start := time.Now()
	out, defaulted := fn(stageCtx)
	s.record(report, StageReport{
		Stage:         stage,
		RowsProcessed: len(out),
		RowsDefaulted: defaulted,
		Duration:      time.Since(start),
	})
	return out
}

// persistStaging replaces the staging table with the consolidated record
// set before aggregation publishes, keeping the strict barrier inspectable
// after the fact.
func (s *Service) persistStaging(ctx context.Context, lines []models.OrderLine, report *RunReport) error {
	if err := s.db.Exec(ctx, "DELETE FROM order_lines").Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "truncate staging table")
	}
	for i := range lines {
		lines[i].ID = uuid.Nil
	}
	result, err := s.loader.Run(ctx, enums.RunStageConsolidate, len(lines), func(chunkCtx context.Context, startIdx, endIdx int) error {
		rows := lines[startIdx:endIdx]
		return s.db.DB().WithContext(chunkCtx).Create(&rows).Error
	})
	if result.ChunksFailed > 0 {
		for i := range report.Stages {
			if report.Stages[i].Stage == enums.RunStageConsolidate {
				report.Stages[i].ChunksFailed += result.ChunksFailed
			}
		}
	}
	if err != nil && pkgerrors.IsFatal(err) {
		return err
	}
	return nil
}

func (s *Service) record(report *RunReport, stage StageReport) {
	report.Stages = append(report.Stages, stage)
	s.met.ObserveStageDuration(string(stage.Stage), stage.Duration)
	s.met.AddRowsProcessed(string(stage.Stage), stage.RowsProcessed)
	s.met.AddRowsDefaulted(string(stage.Stage), stage.RowsDefaulted)
}

func (s *Service) logSummary(ctx context.Context, report *RunReport) {
	for _, stage := range report.Stages {
		stageCtx := s.logg.WithFields(ctx, map[string]any{
			"stage":         string(stage.Stage),
			"rows":          stage.RowsProcessed,
			"defaulted":     stage.RowsDefaulted,
			"chunks_failed": stage.ChunksFailed,
			"duration_ms":   stage.Duration.Milliseconds(),
		})
		s.logg.Info(stageCtx, "stage summary")
	}
	doneCtx := s.logg.WithFields(ctx, map[string]any{
		"published":   report.Published,
		"duration_ms": report.EndedAt.Sub(report.StartedAt).Milliseconds(),
	})
	s.logg.Info(doneCtx, "run complete")
}

// splitTracks partitions lines into the combined track and the overflow
// run, preserving relative order in both.
func splitTracks(lines []models.OrderLine) ([]models.OrderLine, []models.OrderLine) {
	combined := make([]models.OrderLine, 0, len(lines))
	rerouted := make([]models.OrderLine, 0)
	for _, line := range lines {
		if line.OverflowRun {
			rerouted = append(rerouted, line)
		} else {
			combined = append(combined, line)
		}
	}
	return combined, rerouted
}
