package upload

import (
	"context"
	"time"
)

type Repository interface {
	// Save inserts or replaces the row keyed by ID.
	Save(ctx context.Context, u *PendingDocumentUpload) error
	GetByID(ctx context.Context, id string) (*PendingDocumentUpload, error)
	GetByDraftAndType(ctx context.Context, draftID, documentType string) (*PendingDocumentUpload, error)

	ListByDraft(ctx context.Context, draftID string, statuses ...Status) ([]PendingDocumentUpload, error)
	ListByStatus(ctx context.Context, statuses ...Status) ([]PendingDocumentUpload, error)
	ListRetryable(ctx context.Context, now time.Time, minInterval time.Duration) ([]PendingDocumentUpload, error)
	// ListCompletedBefore returns COMPLETED rows last touched before t.
	ListCompletedBefore(ctx context.Context, t time.Time) ([]PendingDocumentUpload, error)

	// MarkUploading claims a Claimable row; false when the row is in any other status.
	MarkUploading(ctx context.Context, id string, at time.Time) (bool, error)
	// MarkCompleted and MarkFailed close an UPLOADING run of filePath. They
	// report false when the row was re-queued or cancelled meanwhile.
	MarkCompleted(ctx context.Context, id, filePath, documentID, objectKey string, at time.Time) (bool, error)
	// MarkFailed increments retry_count and records reason.
	MarkFailed(ctx context.Context, id, filePath, reason string, at time.Time) (bool, error)
	TransitionStatus(ctx context.Context, id string, from []Status, to Status, at time.Time) (bool, error)
	// SaveCompression applies only while the row still points at filePath.
	SaveCompression(ctx context.Context, id, filePath string, c Compression) (bool, error)
	MarkCleanupScheduled(ctx context.Context, id string) error
	// AttachLoan sets loan_id on every row of the draft.
	AttachLoan(ctx context.Context, draftID, loanID string) error

	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) error
}
