package notify

import "context"

// DefaultFailureReason is shown when a submission failed without a recorded reason.
const DefaultFailureReason = "No internet connection"

// Sink delivers local notifications to the user who queued the loan.
type Sink interface {
	ShowSuccessNotification(ctx context.Context, userID, loanID string) error
	ShowFailureNotification(ctx context.Context, userID, loanID, reason string) error
}

// Resyncer refreshes the server-side notification feed.
type Resyncer interface {
	ResyncNotifications(ctx context.Context) error
}
