package poll

import (
	"context"
	"reflect"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is used when Changes is given a non-positive interval.
const DefaultInterval = time.Second

// Changes calls fetch immediately and then every interval, sending a value
// only when it differs from the last one sent. Fetch errors are logged and
// skipped. The channel closes when ctx is done.
func Changes[T any](ctx context.Context, interval time.Duration, log *zap.Logger, fetch func(context.Context) (T, error)) <-chan T {
	if interval <= 0 {
		interval = DefaultInterval
	}
	out := make(chan T, 1)
	go func() {
		defer close(out)
		t := time.NewTicker(interval)
		defer t.Stop()

		var last T
		sent := false
		for {
			v, err := fetch(ctx)
			switch {
			case ctx.Err() != nil:
				return
			case err != nil:
				log.Warn("poll fetch failed", zap.Error(err))
			case !sent || !reflect.DeepEqual(v, last):
				select {
				case out <- v:
					last, sent = v, true
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-t.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
