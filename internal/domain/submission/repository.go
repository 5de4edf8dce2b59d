package submission

import (
	"context"
	"time"
)

type Repository interface {
	// Save inserts or replaces the row keyed by LoanID.
	Save(ctx context.Context, p *PendingLoanSubmission) error
	GetByLoanID(ctx context.Context, loanID string) (*PendingLoanSubmission, error)

	ListByStatus(ctx context.Context, statuses ...Status) ([]PendingLoanSubmission, error)
	// ListByUser returns the user's rows newest first.
	ListByUser(ctx context.Context, userID string, statuses ...Status) ([]PendingLoanSubmission, error)
	// ListRetryable returns PENDING rows never retried or last retried before now-minInterval.
	ListRetryable(ctx context.Context, now time.Time, minInterval time.Duration) ([]PendingLoanSubmission, error)

	// TransitionStatus applies u only when the current status is one of from.
	TransitionStatus(ctx context.Context, loanID string, from []Status, u StatusUpdate) (bool, error)
	SetServerLoanID(ctx context.Context, loanID, serverLoanID string) error

	Delete(ctx context.Context, loanID string) error
	DeleteByUser(ctx context.Context, userID string) error
}
