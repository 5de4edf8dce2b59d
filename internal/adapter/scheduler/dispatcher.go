package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Run polls for due jobs until ctx is done, then waits for in-flight runs.
func (q *RedisQueue) Run(ctx context.Context) error {
	sem := make(chan struct{}, q.opts.Concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	t := time.NewTicker(q.opts.Interval)
	defer t.Stop()
	for {
		free := cap(sem) - len(sem)
		if free > 0 {
			jobs, err := q.claimDue(ctx, free)
			if err != nil && ctx.Err() == nil {
				q.log.Warn("claim due jobs failed", zap.Error(err))
			}
			for _, c := range jobs {
				sem <- struct{}{}
				wg.Add(1)
				go func(c claimed) {
					defer wg.Done()
					defer func() { <-sem }()
					q.execute(ctx, c)
				}(c)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// RunDue runs every currently due job and waits for them. Returns the number run.
func (q *RedisQueue) RunDue(ctx context.Context) (int, error) {
	jobs, err := q.claimDue(ctx, 1000)
	var wg sync.WaitGroup
	for _, c := range jobs {
		wg.Add(1)
		go func(c claimed) {
			defer wg.Done()
			q.execute(ctx, c)
		}(c)
	}
	wg.Wait()
	return len(jobs), err
}
