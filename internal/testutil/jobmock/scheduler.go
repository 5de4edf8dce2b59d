package jobmock

import (
	"context"
	"sync"
	"time"

	"loan-submission-queue/internal/domain/job"
)

type Call struct {
	Op        string
	Tag       string
	Kind      job.Kind
	Payload   string
	Delay     time.Duration
	Immediate bool
}

// Scheduler records every request. Err, when set, is returned by all methods.
// NextRunFn, when set, answers NextRun; otherwise nothing is queued.
type Scheduler struct {
	Err       error
	NextRunFn func(tag string) (time.Time, bool)

	mu    sync.Mutex
	calls []Call
}

var _ job.Scheduler = (*Scheduler)(nil)

func (s *Scheduler) record(c Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
	return s.Err
}

func (s *Scheduler) Schedule(ctx context.Context, tag string, kind job.Kind, payload string, delay time.Duration) error {
	return s.record(Call{Op: "schedule", Tag: tag, Kind: kind, Payload: payload, Delay: delay})
}

func (s *Scheduler) ScheduleImmediate(ctx context.Context, tag string, kind job.Kind, payload string) error {
	return s.record(Call{Op: "schedule", Tag: tag, Kind: kind, Payload: payload, Immediate: true})
}

func (s *Scheduler) CancelAllWorkByTag(ctx context.Context, tag string) error {
	return s.record(Call{Op: "cancel", Tag: tag})
}

func (s *Scheduler) NextRun(ctx context.Context, tag string) (time.Time, bool, error) {
	if s.Err != nil || s.NextRunFn == nil {
		return time.Time{}, false, s.Err
	}
	at, ok := s.NextRunFn(tag)
	return at, ok, nil
}

func (s *Scheduler) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Count returns how many op calls targeted tag.
func (s *Scheduler) Count(op, tag string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Op == op && c.Tag == tag {
			n++
		}
	}
	return n
}

func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}
