package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type countingPruner struct {
	calls   int32
	removed int64
	err     error
}

func (p *countingPruner) Prune(ctx context.Context) (int64, error) {
	atomic.AddInt32(&p.calls, 1)
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("missing deadline")
	}
	return p.removed, p.err
}

func TestRunOnceAccumulates(t *testing.T) {
	p := &countingPruner{removed: 3}
	s, err := New(p, "@every 1h", time.Second, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.RunOnce()
	s.RunOnce()

	last, removed := s.Stats()
	if removed != 6 {
		t.Fatalf("removed = %d, want 6", removed)
	}
	if last.IsZero() {
		t.Fatal("last run not recorded")
	}
}

func TestRunOnceLogsFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	p := &countingPruner{err: errors.New("redis down")}
	s, err := New(p, "@every 1h", time.Second, zap.New(core))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.RunOnce()

	if logs.FilterMessage("sweep failed").Len() != 1 {
		t.Fatalf("expected one failure log, got %d", logs.Len())
	}
	if last, removed := s.Stats(); !last.IsZero() || removed != 0 {
		t.Fatal("failed sweep must not update stats")
	}
}

func TestScheduleRuns(t *testing.T) {
	p := &countingPruner{}
	s, err := New(p, "@every 1s", time.Second, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start()

	deadline := time.Now().Add(5 * time.Second)
	for atomic.LoadInt32(&p.calls) == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)

	if atomic.LoadInt32(&p.calls) == 0 {
		t.Fatal("scheduled sweep never ran")
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	if _, err := New(nil, "@every 1m", 0, nil); err == nil {
		t.Fatal("expected error for nil pruner")
	}
	if _, err := New(&countingPruner{}, "not a schedule", 0, nil); err == nil {
		t.Fatal("expected error for bad schedule")
	}
}
