package pipeline

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/shiplinehq/shipline/pkg/db/models"
	pkgerrors "github.com/shiplinehq/shipline/pkg/errors"
	"github.com/shiplinehq/shipline/pkg/logger"
)

type fakeLocker struct {
	values map[string]string
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{values: make(map[string]string)}
}

func (f *fakeLocker) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, held := f.values[key]; held {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

func (f *fakeLocker) Get(_ context.Context, key string) (string, error) {
	return f.values[key], nil
}

func (f *fakeLocker) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func (f *fakeLocker) RunLockKey(env string) string {
	return "shipline:run_lock:" + env
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
}

func TestRunLockAcquireRelease(t *testing.T) {
	locker := newFakeLocker()
	lock, err := NewRunLock(testLogger(), locker, "dev", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	if err := lock.Acquire(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, held := locker.values["shipline:run_lock:dev"]; !held {
		t.Fatal("lock key must be set")
	}
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, held := locker.values["shipline:run_lock:dev"]; held {
		t.Fatal("lock key must be removed")
	}
}

func TestRunLockRejectsSecondHolder(t *testing.T) {
	locker := newFakeLocker()
	first, _ := NewRunLock(testLogger(), locker, "dev", time.Hour)
	second, _ := NewRunLock(testLogger(), locker, "dev", time.Hour)

	ctx := context.Background()
	if err := first.Acquire(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := second.Acquire(ctx)
	if err == nil {
		t.Fatal("expected error while the lock is held")
	}
	if !pkgerrors.IsFatal(err) {
		t.Fatal("a held staging lock must abort the run")
	}
}

func TestRunLockReleaseLeavesForeignLock(t *testing.T) {
	locker := newFakeLocker()
	lock, _ := NewRunLock(testLogger(), locker, "dev", time.Hour)
	locker.values["shipline:run_lock:dev"] = "someone-else"

	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if locker.values["shipline:run_lock:dev"] != "someone-else" {
		t.Fatal("a lock owned by another process must survive release")
	}
}

func TestSplitTracks(t *testing.T) {
	lines := []models.OrderLine{
		{IngestSeq: 1},
		{IngestSeq: 2, OverflowRun: true},
		{IngestSeq: 3},
		{IngestSeq: 4, OverflowRun: true},
	}
	combined, rerouted := splitTracks(lines)
	if len(combined) != 2 || len(rerouted) != 2 {
		t.Fatalf("unexpected split: %d/%d", len(combined), len(rerouted))
	}
	if combined[0].IngestSeq != 1 || combined[1].IngestSeq != 3 {
		t.Fatal("combined track must preserve relative order")
	}
	if rerouted[0].IngestSeq != 2 || rerouted[1].IngestSeq != 4 {
		t.Fatal("overflow run must preserve relative order")
	}
}
