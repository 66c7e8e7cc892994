package batch

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"

	"github.com/shiplinehq/shipline/pkg/config"
	"github.com/shiplinehq/shipline/pkg/enums"
	pkgerrors "github.com/shiplinehq/shipline/pkg/errors"
	"github.com/shiplinehq/shipline/pkg/logger"
	"github.com/shiplinehq/shipline/pkg/metrics"
)

// MemoryGauge estimates readily available process memory in bytes. The
// loader halves its chunk size whenever the estimate drops below the
// configured threshold.
type MemoryGauge func() uint64

// WriteFunc persists the half-open record range [start, end). Callers
// close over their own typed slice, so the loader never needs to know the
// record type.
type WriteFunc func(ctx context.Context, start, end int) error

// Options tunes one loader instance. Zero values fall back to the
// configured defaults. MaxAttempts counts the first try plus its retries;
// the default of 4 gives a failing chunk three retries.
type Options struct {
	InitialChunkSize     int
	MinChunkSize         int
	MaxChunkSize         int
	MemoryThresholdBytes uint64
	MaxAttempts          int
	BackoffBase          time.Duration
	Workers              int
	ReclaimEvery         int
	Gauge                MemoryGauge
}

// OptionsFromConfig maps the batch configuration onto loader options.
func OptionsFromConfig(cfg config.BatchConfig) Options {
	return Options{
		InitialChunkSize:     cfg.InitialChunkSize,
		MinChunkSize:         cfg.MinChunkSize,
		MaxChunkSize:         cfg.MaxChunkSize,
		MemoryThresholdBytes: cfg.MemoryThresholdB,
		MaxAttempts:          cfg.MaxAttempts,
		BackoffBase:          cfg.BackoffBase,
		Workers:              cfg.Workers,
		ReclaimEvery:         cfg.ReclaimEvery,
	}
}

// Result reports one bulk move. Failed counts rows inside chunks that
// exhausted their retries; the caller decides whether that is acceptable
// for its stage.
type Result struct {
	Succeeded    int
	Failed       int
	Chunks       int
	ChunksFailed int
}

type chunk struct {
	index int
	start int
	end   int
}

// Loader moves record sets into the store in adaptively sized chunks with
// retry and partial-failure bookkeeping.
type Loader struct {
	logg *logger.Logger
	met  *metrics.PipelineMetrics
	opts Options
}

// New builds a loader. Metrics may be nil.
func New(logg *logger.Logger, met *metrics.PipelineMetrics, opts Options) (*Loader, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if opts.InitialChunkSize <= 0 {
		opts.InitialChunkSize = 500
	}
	if opts.MinChunkSize <= 0 {
		opts.MinChunkSize = 50
	}
	if opts.MaxChunkSize < opts.MinChunkSize {
		opts.MaxChunkSize = 2000
	}
	if opts.InitialChunkSize < opts.MinChunkSize {
		opts.InitialChunkSize = opts.MinChunkSize
	}
	if opts.InitialChunkSize > opts.MaxChunkSize {
		opts.InitialChunkSize = opts.MaxChunkSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 4
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 200 * time.Millisecond
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.ReclaimEvery <= 0 {
		opts.ReclaimEvery = 10
	}
	if opts.Gauge == nil {
		opts.Gauge = defaultGauge
	}
	return &Loader{logg: logg, met: met, opts: opts}, nil
}

// Run moves total records through write. Chunks that permanently fail are
// recorded and the remaining chunks still run; the combined chunk errors
// come back alongside the result so the caller can judge the damage.
func (l *Loader) Run(ctx context.Context, stage enums.RunStage, total int, write WriteFunc) (Result, error) {
	result := Result{}
	if total <= 0 {
		return result, nil
	}

	chunks := l.plan(total)
	result.Chunks = len(chunks)

	var err error
	if l.opts.Workers > 1 && len(chunks) > 1 {
		err = l.runConcurrent(ctx, stage, chunks, write, &result)
	} else {
		err = l.runSequential(ctx, stage, chunks, write, &result)
	}

	l.met.AddChunks(string(stage), result.Chunks, result.ChunksFailed)

	logCtx := l.logg.WithFields(ctx, map[string]any{
		"stage":         string(stage),
		"rows":          total,
		"chunks":        result.Chunks,
		"chunks_failed": result.ChunksFailed,
	})
	if result.ChunksFailed > 0 {
		l.logg.Warn(logCtx, "bulk move finished with failed chunks")
	} else {
		l.logg.Info(logCtx, "bulk move complete")
	}
	return result, err
}

// plan walks the record range once, sampling the memory gauge before each
// chunk boundary. A sample under the threshold halves the next chunk,
// never below the floor.
func (l *Loader) plan(total int) []chunk {
	size := l.opts.InitialChunkSize
	chunks := make([]chunk, 0, total/size+1)
	for start := 0; start < total; {
		if l.opts.MemoryThresholdBytes > 0 && l.opts.Gauge() < l.opts.MemoryThresholdBytes {
			size = size / 2
			if size < l.opts.MinChunkSize {
				size = l.opts.MinChunkSize
			}
		}
		end := start + size
		if end > total {
			end = total
		}
		chunks = append(chunks, chunk{index: len(chunks), start: start, end: end})
		start = end
	}
	return chunks
}

func (l *Loader) runSequential(ctx context.Context, stage enums.RunStage, chunks []chunk, write WriteFunc, result *Result) error {
	var errs error
	for done, c := range chunks {
		// Cancellation takes effect between chunks; an in-flight chunk
		// always completes or fails on its own.
		if ctx.Err() != nil {
			return multierr.Append(errs, ctx.Err())
		}
		if err := l.writeChunk(ctx, stage, c, write); err != nil {
			result.ChunksFailed++
			result.Failed += c.end - c.start
			errs = multierr.Append(errs, err)
		} else {
			result.Succeeded += c.end - c.start
		}
		if (done+1)%l.opts.ReclaimEvery == 0 {
			debug.FreeOSMemory()
		}
	}
	return errs
}

func (l *Loader) runConcurrent(ctx context.Context, stage enums.RunStage, chunks []chunk, write WriteFunc, result *Result) error {
	workers := l.opts.Workers
	if workers > len(chunks) {
		workers = len(chunks)
	}

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		errs      error
		completed int
	)
	feed := make(chan chunk)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range feed {
				err := l.writeChunk(ctx, stage, c, write)
				mu.Lock()
				if err != nil {
					result.ChunksFailed++
					result.Failed += c.end - c.start
					errs = multierr.Append(errs, err)
				} else {
					result.Succeeded += c.end - c.start
				}
				completed++
				reclaim := completed%l.opts.ReclaimEvery == 0
				mu.Unlock()
				if reclaim {
					debug.FreeOSMemory()
				}
			}
		}()
	}

dispatch:
	for _, c := range chunks {
		select {
		case <-ctx.Done():
			break dispatch
		case feed <- c:
		}
	}
	close(feed)
	wg.Wait()

	if ctx.Err() != nil {
		errs = multierr.Append(errs, ctx.Err())
	}
	return errs
}

func (l *Loader) writeChunk(ctx context.Context, stage enums.RunStage, c chunk, write WriteFunc) error {
	backoff := retry.WithMaxRetries(uint64(l.opts.MaxAttempts-1), retry.NewExponential(l.opts.BackoffBase))
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := write(ctx, c.start, c.end); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err == nil {
		return nil
	}
	logCtx := l.logg.WithFields(ctx, map[string]any{
		"stage":    string(stage),
		"chunk":    c.index,
		"attempts": attempt,
	})
	l.logg.Error(logCtx, "chunk exhausted retries", err)
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err,
		fmt.Sprintf("chunk %d [%d,%d) failed after %d attempts", c.index, c.start, c.end, attempt))
}
