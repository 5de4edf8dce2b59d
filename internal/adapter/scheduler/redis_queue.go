package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"loan-submission-queue/internal/domain/job"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	dueKey      = "jobs:due"
	defPrefix   = "jobs:def:"
	lockPrefix  = "jobs:lock:"
	rerunPrefix = "jobs:rerun:"
)

type Options struct {
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// Lease bounds a single run. An unfinished run becomes due again once it expires.
	Lease       time.Duration
	Interval    time.Duration
	Concurrency int
}

func (o Options) withDefaults() Options {
	if o.BackoffBase <= 0 {
		o.BackoffBase = 30 * time.Second
	}
	if o.BackoffMax < o.BackoffBase {
		o.BackoffMax = time.Hour
	}
	if o.Lease <= 0 {
		o.Lease = 10 * time.Minute
	}
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	return o
}

// Backoff is exponential: base, 2*base, 4*base... capped at max.
func (o Options) Backoff(attempt int) time.Duration {
	d := o.BackoffBase
	for i := 1; i < attempt && d < o.BackoffMax; i++ {
		d *= 2
	}
	if d > o.BackoffMax {
		d = o.BackoffMax
	}
	return d
}

// RedisQueue is a durable keyed work queue. At most one job exists per tag;
// a run holds a per-tag lease so the same tag never runs twice concurrently.
type RedisQueue struct {
	rdb  *redis.Client
	opts Options
	log  *zap.Logger
	now  func() time.Time

	mu       sync.RWMutex
	handlers map[job.Kind]job.Handler
}

var _ job.Scheduler = (*RedisQueue)(nil)

func NewRedisQueue(rdb *redis.Client, opts Options, log *zap.Logger) *RedisQueue {
	return &RedisQueue{
		rdb:      rdb,
		opts:     opts.withDefaults(),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
		handlers: map[job.Kind]job.Handler{},
	}
}

func (q *RedisQueue) Register(kind job.Kind, h job.Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[kind] = h
}

func (q *RedisQueue) handler(kind job.Kind) (job.Handler, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	h, ok := q.handlers[kind]
	return h, ok
}

func (q *RedisQueue) Schedule(ctx context.Context, tag string, kind job.Kind, payload string, delay time.Duration) error {
	return q.enqueue(ctx, tag, kind, payload, q.now().Add(delay), false)
}

func (q *RedisQueue) ScheduleImmediate(ctx context.Context, tag string, kind job.Kind, payload string) error {
	return q.enqueue(ctx, tag, kind, payload, q.now(), true)
}

func (q *RedisQueue) enqueue(ctx context.Context, tag string, kind job.Kind, payload string, runAt time.Time, resetAttempts bool) error {
	def := defPrefix + tag
	_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, def, "kind", string(kind), "payload", payload)
		if resetAttempts {
			p.HSet(ctx, def, "attempt", 0)
		} else {
			p.HSetNX(ctx, def, "attempt", 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", tag, err)
	}

	running, err := q.rdb.Exists(ctx, lockPrefix+tag).Result()
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", tag, err)
	}
	if running == 1 {
		// coalesce into the running instance; it re-queues itself on completion
		return q.rdb.Set(ctx, rerunPrefix+tag, runAt.UnixMilli(), 0).Err()
	}

	cur, err := q.rdb.ZScore(ctx, dueKey, tag).Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return fmt.Errorf("enqueue %s: %w", tag, err)
	case int64(cur) <= runAt.UnixMilli():
		return nil
	}
	return q.rdb.ZAdd(ctx, dueKey, redis.Z{Score: float64(runAt.UnixMilli()), Member: tag}).Err()
}

func (q *RedisQueue) CancelAllWorkByTag(ctx context.Context, tag string) error {
	_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, dueKey, tag)
		p.Del(ctx, defPrefix+tag, rerunPrefix+tag)
		return nil
	})
	if err != nil {
		return fmt.Errorf("cancel %s: %w", tag, err)
	}
	q.log.Info("job cancelled", zap.String("tag", tag))
	return nil
}

// NextRun reports when tag is due, if it is queued.
func (q *RedisQueue) NextRun(ctx context.Context, tag string) (time.Time, bool, error) {
	score, err := q.rdb.ZScore(ctx, dueKey, tag).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(int64(score)).UTC(), true, nil
}

type claimed struct {
	tag     string
	token   string
	kind    job.Kind
	payload string
}

// claimDue leases up to limit due jobs.
func (q *RedisQueue) claimDue(ctx context.Context, limit int) ([]claimed, error) {
	now := q.now()
	tags, err := q.rdb.ZRangeByScore(ctx, dueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}

	var out []claimed
	for _, tag := range tags {
		token := uuid.NewString()
		ok, err := q.rdb.SetNX(ctx, lockPrefix+tag, token, q.opts.Lease).Result()
		if err != nil {
			return out, err
		}
		if !ok {
			continue
		}
		def, err := q.rdb.HGetAll(ctx, defPrefix+tag).Result()
		if err != nil {
			q.release(ctx, tag, token)
			return out, err
		}
		if len(def) == 0 {
			q.rdb.ZRem(ctx, dueKey, tag)
			q.release(ctx, tag, token)
			continue
		}
		// push the due time past the lease so a crashed run is picked up again
		leaseEnd := now.Add(q.opts.Lease).UnixMilli()
		if err := q.rdb.ZAdd(ctx, dueKey, redis.Z{Score: float64(leaseEnd), Member: tag}).Err(); err != nil {
			q.release(ctx, tag, token)
			return out, err
		}
		out = append(out, claimed{tag: tag, token: token, kind: job.Kind(def["kind"]), payload: def["payload"]})
	}
	return out, nil
}

func (q *RedisQueue) release(ctx context.Context, tag, token string) {
	cur, err := q.rdb.Get(ctx, lockPrefix+tag).Result()
	if err == nil && cur == token {
		q.rdb.Del(ctx, lockPrefix+tag)
	}
}

func (q *RedisQueue) execute(ctx context.Context, c claimed) {
	log := q.log.With(zap.String("tag", c.tag), zap.String("kind", string(c.kind)))
	h, ok := q.handler(c.kind)
	var res job.Result
	if !ok {
		log.Error("no handler registered for job kind")
		res = job.Failure
	} else {
		res = runSafely(ctx, h, c.payload, log)
	}
	// bookkeeping must survive shutdown of the run context
	q.complete(context.WithoutCancel(ctx), c, res, log)
}

func runSafely(ctx context.Context, h job.Handler, payload string, log *zap.Logger) (res job.Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", zap.Any("panic", r))
			res = job.Retry
		}
	}()
	return h.Run(ctx, payload)
}

func (q *RedisQueue) complete(ctx context.Context, c claimed, res job.Result, log *zap.Logger) {
	defer q.release(ctx, c.tag, c.token)

	rerunAt, rerunErr := q.rdb.Get(ctx, rerunPrefix+c.tag).Int64()
	rerun := rerunErr == nil
	q.rdb.Del(ctx, rerunPrefix+c.tag)

	exists, err := q.rdb.Exists(ctx, defPrefix+c.tag).Result()
	if err != nil {
		log.Error("job completion bookkeeping failed", zap.Error(err))
		return
	}
	if exists == 0 {
		q.rdb.ZRem(ctx, dueKey, c.tag)
		log.Info("job finished after cancellation", zap.Stringer("result", res))
		return
	}

	switch {
	case rerun:
		q.rdb.HSet(ctx, defPrefix+c.tag, "attempt", 0)
		q.rdb.ZAdd(ctx, dueKey, redis.Z{Score: float64(rerunAt), Member: c.tag})
		log.Info("job re-requested during run", zap.Stringer("result", res))
	case res == job.Retry:
		attempt, err := q.rdb.HIncrBy(ctx, defPrefix+c.tag, "attempt", 1).Result()
		if err != nil {
			log.Error("job retry bookkeeping failed", zap.Error(err))
			return
		}
		delay := q.opts.Backoff(int(attempt))
		q.rdb.ZAdd(ctx, dueKey, redis.Z{Score: float64(q.now().Add(delay).UnixMilli()), Member: c.tag})
		log.Warn("job will retry", zap.Int64("attempt", attempt), zap.Duration("backoff", delay))
	default:
		q.rdb.ZRem(ctx, dueKey, c.tag)
		q.rdb.Del(ctx, defPrefix+c.tag)
		log.Info("job done", zap.Stringer("result", res))
	}
}
