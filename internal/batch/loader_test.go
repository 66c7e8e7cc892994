package batch

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/shiplinehq/shipline/pkg/enums"
	"github.com/shiplinehq/shipline/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
}

func newTestLoader(t *testing.T, opts Options) *Loader {
	t.Helper()
	loader, err := New(testLogger(), nil, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return loader
}

func TestNewDefaultsRetryBudget(t *testing.T) {
	loader := newTestLoader(t, Options{})
	if loader.opts.MaxAttempts != 4 {
		t.Fatalf("default budget is the first try plus three retries, got %d attempts", loader.opts.MaxAttempts)
	}
}

func TestRunHalvesChunkSizeOnLowMemory(t *testing.T) {
	samples := 0
	loader := newTestLoader(t, Options{
		InitialChunkSize:     500,
		MinChunkSize:         50,
		MaxChunkSize:         2000,
		MemoryThresholdBytes: 1 << 20,
		MaxAttempts:          1,
		BackoffBase:          time.Millisecond,
		Workers:              1,
		Gauge: func() uint64 {
			samples++
			if samples == 3 {
				return 0
			}
			return 1 << 30
		},
	})

	var ranges [][2]int
	result, err := loader.Run(context.Background(), enums.RunStageIngest, 2500, func(ctx context.Context, start, end int) error {
		ranges = append(ranges, [2]int{start, end})
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 500, 500, then 250 from the low sample on chunk 3 onward.
	want := [][2]int{{0, 500}, {500, 1000}, {1000, 1250}, {1250, 1500}, {1500, 1750}, {1750, 2000}, {2000, 2250}, {2250, 2500}}
	if len(ranges) != len(want) {
		t.Fatalf("expected %d chunks, got %d: %v", len(want), len(ranges), ranges)
	}
	for i, r := range ranges {
		if r != want[i] {
			t.Fatalf("chunk %d = %v, want %v", i, r, want[i])
		}
	}
	if result.Chunks != 8 || result.Succeeded != 2500 || result.Failed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRunNeverShrinksBelowFloor(t *testing.T) {
	loader := newTestLoader(t, Options{
		InitialChunkSize:     100,
		MinChunkSize:         50,
		MaxChunkSize:         2000,
		MemoryThresholdBytes: 1 << 20,
		MaxAttempts:          1,
		Workers:              1,
		Gauge:                func() uint64 { return 0 },
	})

	var sizes []int
	_, err := loader.Run(context.Background(), enums.RunStageIngest, 200, func(ctx context.Context, start, end int) error {
		sizes = append(sizes, end-start)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, size := range sizes {
		if size < 50 {
			t.Fatalf("chunk %d size %d is below the floor", i, size)
		}
	}
}

func TestRunContainsPartialFailure(t *testing.T) {
	loader := newTestLoader(t, Options{
		InitialChunkSize: 500,
		MinChunkSize:     50,
		MaxChunkSize:     2000,
		MaxAttempts:      4,
		BackoffBase:      time.Millisecond,
		Workers:          1,
		Gauge:            func() uint64 { return 1 << 30 },
	})

	attemptsOnBad := 0
	var starts []int
	result, err := loader.Run(context.Background(), enums.RunStageConsolidate, 2500, func(ctx context.Context, start, end int) error {
		if start == 500 {
			attemptsOnBad++
			return errors.New("connection reset")
		}
		starts = append(starts, start)
		return nil
	})

	if err == nil {
		t.Fatal("expected combined chunk error")
	}
	if attemptsOnBad != 4 {
		t.Fatalf("failing chunk gets three retries after the first failure, got %d attempts", attemptsOnBad)
	}
	if result.ChunksFailed != 1 || result.Failed != 500 {
		t.Fatalf("unexpected failure bookkeeping: %+v", result)
	}
	if result.Succeeded != 2000 {
		t.Fatalf("remaining chunks must still run, got %d succeeded", result.Succeeded)
	}
	// Chunks after the failed one were attempted.
	found := false
	for _, start := range starts {
		if start > 500 {
			found = true
		}
	}
	if !found {
		t.Fatal("chunks after the failure were never attempted")
	}
}

func TestRunConcurrentCountsEveryChunk(t *testing.T) {
	loader := newTestLoader(t, Options{
		InitialChunkSize: 100,
		MinChunkSize:     50,
		MaxChunkSize:     2000,
		MaxAttempts:      1,
		Workers:          4,
		Gauge:            func() uint64 { return 1 << 30 },
	})

	var mu sync.Mutex
	seen := make(map[int]bool)
	result, err := loader.Run(context.Background(), enums.RunStageIngest, 2000, func(ctx context.Context, start, end int) error {
		mu.Lock()
		seen[start] = true
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Chunks != 20 || result.Succeeded != 2000 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(seen) != 20 {
		t.Fatalf("expected 20 distinct chunks, got %d", len(seen))
	}
}

func TestRunStopsDispatchOnCancel(t *testing.T) {
	loader := newTestLoader(t, Options{
		InitialChunkSize: 100,
		MinChunkSize:     50,
		MaxChunkSize:     2000,
		MaxAttempts:      1,
		Workers:          1,
		Gauge:            func() uint64 { return 1 << 30 },
	})

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	result, err := loader.Run(ctx, enums.RunStageIngest, 1000, func(ctx context.Context, start, end int) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return nil
	})
	if err == nil || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("in-flight chunk must complete, then dispatch stops; got %d calls", calls)
	}
	if result.Succeeded != 200 {
		t.Fatalf("completed chunks must still count: %+v", result)
	}
}

func TestRunZeroTotalIsNoop(t *testing.T) {
	loader := newTestLoader(t, Options{Workers: 1})
	result, err := loader.Run(context.Background(), enums.RunStageIngest, 0, func(ctx context.Context, start, end int) error {
		t.Fatal("write must not be called")
		return nil
	})
	if err != nil || result.Chunks != 0 {
		t.Fatalf("unexpected result: %+v err=%v", result, err)
	}
}
