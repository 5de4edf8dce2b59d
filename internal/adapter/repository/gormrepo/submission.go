package gormrepo

import (
	"context"
	"errors"
	"time"

	"loan-submission-queue/internal/domain/submission"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SubmissionRepository struct{ db *gorm.DB }

func NewSubmissionRepository(db *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

func (r *SubmissionRepository) Save(ctx context.Context, p *submission.PendingLoanSubmission) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(p).Error
}

func (r *SubmissionRepository) GetByLoanID(ctx context.Context, loanID string) (*submission.PendingLoanSubmission, error) {
	var out submission.PendingLoanSubmission
	err := r.db.WithContext(ctx).Where("loan_id = ?", loanID).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, submission.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *SubmissionRepository) ListByStatus(ctx context.Context, statuses ...submission.Status) ([]submission.PendingLoanSubmission, error) {
	var out []submission.PendingLoanSubmission
	err := r.db.WithContext(ctx).
		Where("pending_status IN ?", statuses).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (r *SubmissionRepository) ListByUser(ctx context.Context, userID string, statuses ...submission.Status) ([]submission.PendingLoanSubmission, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if len(statuses) > 0 {
		q = q.Where("pending_status IN ?", statuses)
	}
	var out []submission.PendingLoanSubmission
	err := q.Order("created_at DESC, loan_id DESC").Find(&out).Error
	return out, err
}

func (r *SubmissionRepository) ListRetryable(ctx context.Context, now time.Time, minInterval time.Duration) ([]submission.PendingLoanSubmission, error) {
	var out []submission.PendingLoanSubmission
	err := r.db.WithContext(ctx).
		Where("pending_status = ?", submission.StatusPending).
		Where("last_retry_time IS NULL OR last_retry_time < ?", now.Add(-minInterval)).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func statusColumns(u submission.StatusUpdate) map[string]any {
	cols := map[string]any{
		"pending_status":  u.Status,
		"last_retry_time": u.At,
	}
	if u.RetryCount != nil {
		cols["retry_count"] = *u.RetryCount
	}
	if u.Reason != nil {
		cols["failure_reason"] = *u.Reason
	}
	return cols
}

func (r *SubmissionRepository) TransitionStatus(ctx context.Context, loanID string, from []submission.Status, u submission.StatusUpdate) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&submission.PendingLoanSubmission{}).
		Where("loan_id = ? AND pending_status IN ?", loanID, from).
		Updates(statusColumns(u))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *SubmissionRepository) SetServerLoanID(ctx context.Context, loanID, serverLoanID string) error {
	return r.db.WithContext(ctx).
		Model(&submission.PendingLoanSubmission{}).
		Where("loan_id = ?", loanID).
		Update("server_loan_id", serverLoanID).Error
}

func (r *SubmissionRepository) Delete(ctx context.Context, loanID string) error {
	return r.db.WithContext(ctx).
		Where("loan_id = ?", loanID).
		Delete(&submission.PendingLoanSubmission{}).Error
}

func (r *SubmissionRepository) DeleteByUser(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&submission.PendingLoanSubmission{}).Error
}
