package gormrepo

import (
	"context"
	"errors"
	"time"

	"loan-submission-queue/internal/domain/upload"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UploadRepository struct{ db *gorm.DB }

func NewUploadRepository(db *gorm.DB) *UploadRepository { return &UploadRepository{db: db} }

func (r *UploadRepository) Save(ctx context.Context, u *upload.PendingDocumentUpload) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(u).Error
}

func (r *UploadRepository) first(ctx context.Context, query string, args ...any) (*upload.PendingDocumentUpload, error) {
	var out upload.PendingDocumentUpload
	err := r.db.WithContext(ctx).Where(query, args...).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, upload.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *UploadRepository) GetByID(ctx context.Context, id string) (*upload.PendingDocumentUpload, error) {
	return r.first(ctx, "id = ?", id)
}

// GetByDraftAndType ignores cancelled rows.
func (r *UploadRepository) GetByDraftAndType(ctx context.Context, draftID, documentType string) (*upload.PendingDocumentUpload, error) {
	return r.first(ctx, "loan_draft_id = ? AND document_type = ? AND status <> ?",
		draftID, documentType, upload.StatusCancelled)
}

func (r *UploadRepository) ListByDraft(ctx context.Context, draftID string, statuses ...upload.Status) ([]upload.PendingDocumentUpload, error) {
	q := r.db.WithContext(ctx).Where("loan_draft_id = ?", draftID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var out []upload.PendingDocumentUpload
	err := q.Order("created_at ASC, id ASC").Find(&out).Error
	return out, err
}

func (r *UploadRepository) ListByStatus(ctx context.Context, statuses ...upload.Status) ([]upload.PendingDocumentUpload, error) {
	var out []upload.PendingDocumentUpload
	err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (r *UploadRepository) ListRetryable(ctx context.Context, now time.Time, minInterval time.Duration) ([]upload.PendingDocumentUpload, error) {
	var out []upload.PendingDocumentUpload
	err := r.db.WithContext(ctx).
		Where("status IN ?", []upload.Status{upload.StatusPending, upload.StatusFailed}).
		Where("last_retry_time IS NULL OR last_retry_time < ?", now.Add(-minInterval)).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (r *UploadRepository) ListCompletedBefore(ctx context.Context, t time.Time) ([]upload.PendingDocumentUpload, error) {
	var out []upload.PendingDocumentUpload
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", upload.StatusCompleted, t).
		Find(&out).Error
	return out, err
}

func (r *UploadRepository) update(ctx context.Context, id string, cols map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&upload.PendingDocumentUpload{}).
		Where("id = ?", id).
		Updates(cols).Error
}

func (r *UploadRepository) MarkUploading(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.TransitionStatus(ctx, id, upload.Claimable, upload.StatusUploading, at)
}

// finishUploading writes cols only while the row is still the UPLOADING run of filePath.
func (r *UploadRepository) finishUploading(ctx context.Context, id, filePath string, cols map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&upload.PendingDocumentUpload{}).
		Where("id = ? AND status = ? AND local_file_path = ?", id, upload.StatusUploading, filePath).
		Updates(cols)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *UploadRepository) MarkCompleted(ctx context.Context, id, filePath, documentID, objectKey string, at time.Time) (bool, error) {
	return r.finishUploading(ctx, id, filePath, map[string]any{
		"status":         upload.StatusCompleted,
		"document_id":    documentID,
		"object_key":     objectKey,
		"failure_reason": "",
		"updated_at":     at,
	})
}

func (r *UploadRepository) MarkFailed(ctx context.Context, id, filePath, reason string, at time.Time) (bool, error) {
	return r.finishUploading(ctx, id, filePath, map[string]any{
		"status":          upload.StatusFailed,
		"retry_count":     gorm.Expr("retry_count + 1"),
		"failure_reason":  reason,
		"last_retry_time": at,
		"updated_at":      at,
	})
}

func (r *UploadRepository) TransitionStatus(ctx context.Context, id string, from []upload.Status, to upload.Status, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&upload.PendingDocumentUpload{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *UploadRepository) SaveCompression(ctx context.Context, id, filePath string, c upload.Compression) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&upload.PendingDocumentUpload{}).
		Where("id = ? AND local_file_path = ?", id, filePath).
		Updates(map[string]any{
			"compressed_file_path": c.CompressedFilePath,
			"original_size":        c.OriginalSize,
			"compressed_size":      c.CompressedSize,
			"is_compressed":        c.IsCompressed,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *UploadRepository) MarkCleanupScheduled(ctx context.Context, id string) error {
	return r.update(ctx, id, map[string]any{"cleanup_scheduled": true})
}

func (r *UploadRepository) AttachLoan(ctx context.Context, draftID, loanID string) error {
	return r.db.WithContext(ctx).
		Model(&upload.PendingDocumentUpload{}).
		Where("loan_draft_id = ?", draftID).
		Update("loan_id", loanID).Error
}

func (r *UploadRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&upload.PendingDocumentUpload{}).Error
}

func (r *UploadRepository) DeleteByUser(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&upload.PendingDocumentUpload{}).Error
}
