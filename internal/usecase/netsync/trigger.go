package netsync

import (
	"context"

	"loan-submission-queue/internal/domain/notify"

	"go.uber.org/zap"
)

// Sweeper is the part of the submission manager run on reconnect.
type Sweeper interface {
	TriggerPendingSubmissions(ctx context.Context) (int, error)
}

// Trigger sweeps pending submissions and resyncs notifications once per
// offline to online transition.
type Trigger struct {
	sweeper  Sweeper
	resyncer notify.Resyncer
	log      *zap.Logger

	known  bool
	online bool
}

func NewTrigger(s Sweeper, r notify.Resyncer, log *zap.Logger) *Trigger {
	return &Trigger{sweeper: s, resyncer: r, log: log}
}

// Observe records one connectivity sample and reports whether it fired.
// The first sample only sets the baseline.
func (t *Trigger) Observe(ctx context.Context, online bool) bool {
	restored := t.known && !t.online && online
	if t.known && t.online != online {
		t.log.Info("connectivity changed", zap.Bool("online", online))
	}
	t.known, t.online = true, online
	if !restored {
		return false
	}
	t.fire(ctx)
	return true
}

func (t *Trigger) fire(ctx context.Context) {
	n, err := t.sweeper.TriggerPendingSubmissions(ctx)
	if err != nil {
		t.log.Warn("reconnect sweep incomplete", zap.Int("scheduled", n), zap.Error(err))
	} else {
		t.log.Info("reconnect sweep", zap.Int("scheduled", n))
	}
	if err := t.resyncer.ResyncNotifications(ctx); err != nil {
		t.log.Warn("notification resync failed", zap.Error(err))
	}
}

// Run consumes observations until the channel closes or ctx is done.
func (t *Trigger) Run(ctx context.Context, observations <-chan bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case online, ok := <-observations:
			if !ok {
				return
			}
			t.Observe(ctx, online)
		}
	}
}
