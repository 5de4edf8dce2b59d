package notifymock

import (
	"context"
	"sync"

	"loan-submission-queue/internal/domain/notify"
)

type Notification struct {
	UserID  string
	LoanID  string
	Success bool
	Reason  string
}

// Sink records notifications.
type Sink struct {
	mu   sync.Mutex
	sent []Notification
}

var _ notify.Sink = (*Sink)(nil)

func (s *Sink) ShowSuccessNotification(ctx context.Context, userID, loanID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, Notification{UserID: userID, LoanID: loanID, Success: true})
	return nil
}

func (s *Sink) ShowFailureNotification(ctx context.Context, userID, loanID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, Notification{UserID: userID, LoanID: loanID, Reason: reason})
	return nil
}

func (s *Sink) Sent() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.sent...)
}

// Resyncer counts resync calls.
type Resyncer struct {
	Err error

	mu    sync.Mutex
	calls int
}

var _ notify.Resyncer = (*Resyncer)(nil)

func (r *Resyncer) ResyncNotifications(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.Err
}

func (r *Resyncer) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}
