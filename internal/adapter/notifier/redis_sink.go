package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"loan-submission-queue/internal/domain/notify"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	listPrefix = "notifications:local:"
	// keep each list bounded; the UI only renders recent entries
	maxEntries = 200
)

// ListKey is the feed of one user.
func ListKey(userID string) string { return listPrefix + userID }

type Kind string

const (
	KindSubmissionSuccess Kind = "loan_submission_success"
	KindSubmissionFailure Kind = "loan_submission_failure"
)

// Notification is one entry of the local notification feed.
type Notification struct {
	Kind      Kind      `json:"kind"`
	LoanID    string    `json:"loan_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// RedisSink pushes local notifications to a capped per-user redis list read by the UI.
type RedisSink struct {
	rdb *redis.Client
	log *zap.Logger
	now func() time.Time
}

var _ notify.Sink = (*RedisSink)(nil)

func NewRedisSink(rdb *redis.Client, log *zap.Logger) *RedisSink {
	return &RedisSink{rdb: rdb, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func (s *RedisSink) ShowSuccessNotification(ctx context.Context, userID, loanID string) error {
	return s.push(ctx, userID, Notification{
		Kind:   KindSubmissionSuccess,
		LoanID: loanID,
		Title:  "Loan application submitted",
		Body:   "Your loan application has been submitted successfully.",
	})
}

func (s *RedisSink) ShowFailureNotification(ctx context.Context, userID, loanID, reason string) error {
	if reason == "" {
		reason = notify.DefaultFailureReason
	}
	return s.push(ctx, userID, Notification{
		Kind:   KindSubmissionFailure,
		LoanID: loanID,
		Title:  "Loan application failed",
		Body:   "Your loan application could not be submitted: " + reason,
	})
}

func (s *RedisSink) push(ctx context.Context, userID string, n Notification) error {
	n.CreatedAt = s.now()
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	key := ListKey(userID)
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, key, payload)
		p.LTrim(ctx, key, 0, maxEntries-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("push notification: %w", err)
	}
	s.log.Info("local notification shown", zap.String("kind", string(n.Kind)),
		zap.String("user_id", userID), zap.String("loan_id", n.LoanID))
	return nil
}

// Recent returns up to limit notifications of userID, newest first.
func (s *RedisSink) Recent(ctx context.Context, userID string, limit int64) ([]Notification, error) {
	raw, err := s.rdb.LRange(ctx, ListKey(userID), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Notification, 0, len(raw))
	for _, r := range raw {
		var n Notification
		if err := json.Unmarshal([]byte(r), &n); err != nil {
			s.log.Warn("skipping malformed notification", zap.Error(err))
			continue
		}
		out = append(out, n)
	}
	return out, nil
}
