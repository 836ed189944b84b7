// Discrete-event scheduler owning the virtual clock
package sim

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrSchedulerFatal marks errors that abort a run.
var ErrSchedulerFatal = errors.New("scheduler fatal")

// FatalError reports the virtual time at which the run was aborted.
type FatalError struct {
	Now int64
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("scheduler fatal at t=%d: %v", e.Now, e.Err)
}

// Unwrap exposes both ErrSchedulerFatal and the cause.
func (e *FatalError) Unwrap() []error { return []error{ErrSchedulerFatal, e.Err} }

// Process is a simulated actor. Resume runs one step at virtual time now and
// returns the delay until the process is due again. An error aborts the run.
type Process interface {
	Resume(ctx context.Context, now int64) (delay int64, err error)
}

// ProcessFunc adapts a function to Process.
type ProcessFunc func(ctx context.Context, now int64) (int64, error)

func (f ProcessFunc) Resume(ctx context.Context, now int64) (int64, error) { return f(ctx, now) }

type entry struct {
	due  int64
	seq  uint64
	proc Process
}

type entryHeap []entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].seq < h[j].seq
}
func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)   { *h = append(*h, x.(entry)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Scheduler advances a virtual clock and resumes processes when they are due.
// Processes due at the same instant run in the order they were first
// scheduled, which a process keeps across resumptions, and
// every process due at an instant runs before the clock moves on. A Scheduler
// is not safe for concurrent use; separate runs use separate Schedulers.
type Scheduler struct {
	now      int64
	seq      uint64
	queue    entryHeap
	instants uint64
	// tickInterval paces virtual instants against the wall clock when > 0.
	tickInterval time.Duration
}

// NewScheduler creates a scheduler at virtual time 0.
func NewScheduler(tickInterval time.Duration) *Scheduler {
	return &Scheduler{tickInterval: tickInterval}
}

// Now returns the current virtual time.
func (s *Scheduler) Now() int64 { return s.now }

// Instants returns how many distinct virtual instants have been processed.
func (s *Scheduler) Instants() uint64 { return s.instants }

// Pending returns the number of scheduled processes.
func (s *Scheduler) Pending() int { return s.queue.Len() }

// Schedule makes p due delay units after the current time.
func (s *Scheduler) Schedule(p Process, delay int64) error {
	if delay < 0 {
		return fmt.Errorf("negative delay %d", delay)
	}
	heap.Push(&s.queue, entry{due: s.now + delay, seq: s.seq, proc: p})
	s.seq++
	return nil
}

// Run processes every entry due before horizon. The clock ends at horizon on
// normal completion. Cancellation is checked between instants, so an instant
// that has started always completes; Run then returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context, horizon int64) error {
	var tick <-chan time.Time
	if s.tickInterval > 0 {
		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for s.queue.Len() > 0 {
		next := s.queue[0]
		if next.due >= horizon {
			break
		}
		if next.due < s.now {
			return &FatalError{Now: s.now, Err: fmt.Errorf("entry due at t=%d is in the past", next.due)}
		}
		if next.due > s.now || s.instants == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			if tick != nil {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-tick:
				}
			}
			s.now = next.due
			s.instants++
		}

		heap.Pop(&s.queue)
		delay, err := next.proc.Resume(ctx, s.now)
		if err != nil {
			return &FatalError{Now: s.now, Err: err}
		}
		if delay < 1 {
			return &FatalError{Now: s.now, Err: fmt.Errorf("process returned non-advancing delay %d", delay)}
		}
		heap.Push(&s.queue, entry{due: s.now + delay, seq: next.seq, proc: next.proc})
	}

	if s.now < horizon {
		s.now = horizon
	}
	return nil
}
