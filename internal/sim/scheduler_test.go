package sim

import (
	"context"
	"errors"
	"testing"
	"time"
)

type traceEntry struct {
	t  int64
	id int
}

func tracingProcess(id int, delay int64, trace *[]traceEntry) Process {
	return ProcessFunc(func(_ context.Context, now int64) (int64, error) {
		*trace = append(*trace, traceEntry{t: now, id: id})
		return delay, nil
	})
}

func TestSchedulerOrdersByDueThenInsertion(t *testing.T) {
	s := NewScheduler(0)
	var trace []traceEntry
	for id := 0; id < 3; id++ {
		if err := s.Schedule(tracingProcess(id, 1, &trace), 1); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Schedule(tracingProcess(9, 2, &trace), 2); err != nil {
		t.Fatal(err)
	}
	if err := s.Run(context.Background(), 4); err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []traceEntry{
		{1, 0}, {1, 1}, {1, 2},
		{2, 0}, {2, 1}, {2, 2}, {2, 9},
		{3, 0}, {3, 1}, {3, 2},
	}
	if len(trace) != len(want) {
		t.Fatalf("expected %d resumptions, got %d: %v", len(want), len(trace), trace)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Errorf("resumption %d: want %v got %v", i, want[i], trace[i])
		}
	}
	if s.Now() != 4 {
		t.Errorf("clock should end at horizon, got %d", s.Now())
	}
	if s.Instants() != 3 {
		t.Errorf("expected 3 instants, got %d", s.Instants())
	}
}

func TestSchedulerHorizonExclusive(t *testing.T) {
	s := NewScheduler(0)
	var trace []traceEntry
	_ = s.Schedule(tracingProcess(0, 1, &trace), 1)
	if err := s.Run(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if len(trace) != 0 {
		t.Errorf("nothing is due before t=1, got %v", trace)
	}
	if s.Pending() != 1 {
		t.Errorf("process should still be scheduled")
	}
}

func TestSchedulerFatalOnNonAdvancingDelay(t *testing.T) {
	s := NewScheduler(0)
	_ = s.Schedule(ProcessFunc(func(context.Context, int64) (int64, error) { return 0, nil }), 1)
	err := s.Run(context.Background(), 10)
	if !errors.Is(err, ErrSchedulerFatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	var fe *FatalError
	if !errors.As(err, &fe) || fe.Now != 1 {
		t.Errorf("expected fatal error at t=1, got %v", err)
	}
}

func TestSchedulerFatalOnProcessError(t *testing.T) {
	boom := errors.New("clock corrupted")
	s := NewScheduler(0)
	_ = s.Schedule(ProcessFunc(func(context.Context, int64) (int64, error) { return 1, boom }), 1)
	err := s.Run(context.Background(), 10)
	if !errors.Is(err, ErrSchedulerFatal) || !errors.Is(err, boom) {
		t.Fatalf("expected fatal error wrapping cause, got %v", err)
	}
}

func TestSchedulerRejectsNegativeDelay(t *testing.T) {
	s := NewScheduler(0)
	if err := s.Schedule(ProcessFunc(func(context.Context, int64) (int64, error) { return 1, nil }), -1); err == nil {
		t.Fatal("expected error for negative delay")
	}
}

func TestSchedulerCancelBetweenInstants(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewScheduler(0)
	var trace []traceEntry
	for id := 0; id < 2; id++ {
		id := id
		_ = s.Schedule(ProcessFunc(func(_ context.Context, now int64) (int64, error) {
			trace = append(trace, traceEntry{t: now, id: id})
			if now == 2 && id == 0 {
				cancel()
			}
			return 1, nil
		}), 1)
	}
	err := s.Run(ctx, 100)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(trace) != 4 {
		t.Errorf("instant t=2 should complete before stopping, got %v", trace)
	}
	if s.Now() != 2 {
		t.Errorf("clock should stop at t=2, got %d", s.Now())
	}
}

func TestSchedulerPacing(t *testing.T) {
	s := NewScheduler(5 * time.Millisecond)
	var trace []traceEntry
	_ = s.Schedule(tracingProcess(0, 1, &trace), 1)
	start := time.Now()
	if err := s.Run(context.Background(), 5); err != nil {
		t.Fatal(err)
	}
	if len(trace) != 4 {
		t.Fatalf("expected 4 ticks, got %d", len(trace))
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("paced run finished too quickly: %s", elapsed)
	}
}

func TestSeparateSchedulersDoNotShareClock(t *testing.T) {
	a, b := NewScheduler(0), NewScheduler(0)
	var trace []traceEntry
	_ = a.Schedule(tracingProcess(0, 1, &trace), 1)
	_ = b.Schedule(tracingProcess(1, 1, &trace), 1)
	if err := a.Run(context.Background(), 10); err != nil {
		t.Fatal(err)
	}
	if b.Now() != 0 {
		t.Errorf("second scheduler clock moved to %d", b.Now())
	}
}
