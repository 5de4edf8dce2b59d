package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"loan-submission-queue/internal/domain/document"
	"loan-submission-queue/internal/domain/job"
	"loan-submission-queue/internal/domain/session"
	domain "loan-submission-queue/internal/domain/upload"
	"loan-submission-queue/internal/domain/uow"
	"loan-submission-queue/internal/usecase/poll"
	"loan-submission-queue/pkg/id"

	"go.uber.org/zap"
)

type Orchestrator struct {
	repo    domain.Repository
	tx      uow.UnitOfWork
	docs    document.Service
	sched   job.Scheduler
	session session.Provider
	opts    Options
	log     *zap.Logger

	now   func() time.Time
	newID func() string
}

func NewOrchestrator(repo domain.Repository, tx uow.UnitOfWork, docs document.Service, sched job.Scheduler,
	sess session.Provider, opts Options, log *zap.Logger) *Orchestrator {
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.CompressTargetBytes <= 0 {
		opts.CompressTargetBytes = 1 << 20
	}
	return &Orchestrator{
		repo:    repo,
		tx:      tx,
		docs:    docs,
		sched:   sched,
		session: sess,
		opts:    opts,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   id.New,
	}
}

// QueueDocumentUpload records the document for the current user and schedules
// the draft's upload job.
func (o *Orchestrator) QueueDocumentUpload(ctx context.Context, in QueueInput) (string, error) {
	userID, ok := o.session.UserID(ctx)
	if !ok {
		return "", session.ErrUnauthenticated
	}
	uploadID, err := o.Enqueue(ctx, userID, in)
	if err != nil {
		return "", err
	}
	if err := o.ScheduleUploads(ctx, in.LoanDraftID); err != nil {
		return uploadID, err
	}
	return uploadID, nil
}

// Enqueue persists a PENDING row for (draft, type), replacing the row already
// held for that type. Re-queuing the same file keeps an in-flight or completed row.
func (o *Orchestrator) Enqueue(ctx context.Context, userID string, in QueueInput) (string, error) {
	if in.LoanDraftID == "" || in.FilePath == "" || in.DocumentType == "" {
		return "", &domain.ValidationError{Reason: "loan draft id, file path and document type are required"}
	}
	var (
		uploadID  string
		staleCopy string
		now       = o.now()
	)
	err := o.tx.WithinTx(ctx, func(r uow.Repos) error {
		row := &domain.PendingDocumentUpload{
			ID:             o.newID(),
			UserID:         userID,
			LoanDraftID:    in.LoanDraftID,
			DocumentType:   in.DocumentType,
			LocalFilePath:  in.FilePath,
			FileName:       filepath.Base(in.FilePath),
			ContentType:    contentTypeOf(in.FilePath),
			Status:         domain.StatusPending,
			ShouldCompress: in.ShouldCompress,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		existing, err := r.Uploads.GetByDraftAndType(ctx, in.LoanDraftID, in.DocumentType)
		switch {
		case err == nil:
			if existing.LocalFilePath == in.FilePath && existing.Status != domain.StatusFailed {
				uploadID = existing.ID
				return nil
			}
			row.ID = existing.ID
			row.LoanID = existing.LoanID
			row.CreatedAt = existing.CreatedAt
			staleCopy = existing.CompressedFilePath
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}
		uploadID = row.ID
		return r.Uploads.Save(ctx, row)
	})
	if err != nil {
		return "", fmt.Errorf("queue %s for draft %s: %w", in.DocumentType, in.LoanDraftID, err)
	}
	o.removeCopy(staleCopy)
	o.log.Info("document queued",
		zap.String("draft_id", in.LoanDraftID),
		zap.String("upload_id", uploadID),
		zap.String("document_type", in.DocumentType))
	return uploadID, nil
}

// EnsureQueued enqueues every entry of paths whose document type has no row yet.
func (o *Orchestrator) EnsureQueued(ctx context.Context, userID, draftID string, paths map[string]string) error {
	types := make([]string, 0, len(paths))
	for t := range paths {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		_, err := o.repo.GetByDraftAndType(ctx, draftID, t)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		in := QueueInput{LoanDraftID: draftID, FilePath: paths[t], DocumentType: t, ShouldCompress: true}
		if _, err := o.Enqueue(ctx, userID, in); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) AttachLoan(ctx context.Context, draftID, loanID string) error {
	return o.repo.AttachLoan(ctx, draftID, loanID)
}

func (o *Orchestrator) ScheduleUploads(ctx context.Context, draftID string) error {
	if err := o.sched.ScheduleImmediate(ctx, job.UploadTag(draftID), job.KindUploadDocuments, draftID); err != nil {
		return fmt.Errorf("schedule uploads for draft %s: %w", draftID, err)
	}
	return nil
}

func (o *Orchestrator) GetPendingUploads(ctx context.Context, draftID string) ([]domain.PendingDocumentUpload, error) {
	return o.repo.ListByDraft(ctx, draftID)
}

func (o *Orchestrator) WatchPendingUploads(ctx context.Context, draftID string) <-chan []domain.PendingDocumentUpload {
	return poll.Changes(ctx, o.opts.PollInterval, o.log, func(ctx context.Context) ([]domain.PendingDocumentUpload, error) {
		return o.GetPendingUploads(ctx, draftID)
	})
}

// AreAllDocumentsUploaded is true when every non-cancelled row of the draft is COMPLETED.
func (o *Orchestrator) AreAllDocumentsUploaded(ctx context.Context, draftID string) (bool, error) {
	rows, err := o.repo.ListByDraft(ctx, draftID)
	if err != nil {
		return false, err
	}
	for _, r := range rows {
		if r.Status != domain.StatusCompleted && r.Status != domain.StatusCancelled {
			return false, nil
		}
	}
	return true, nil
}

// UploadDocument validates, optionally compresses, and stores one file under loanID.
func (o *Orchestrator) UploadDocument(ctx context.Context, loanID, filePath, documentType string) (*Uploaded, error) {
	out, _, err := o.send(ctx, loanID, filePath, documentType, true, "")
	return out, err
}

// send is the single-document path shared by UploadDocument and the worker.
// prevCopy is a compressed file left by an earlier attempt; it is reused when present.
func (o *Orchestrator) send(ctx context.Context, loanID, path, documentType string, compress bool, prevCopy string) (*Uploaded, domain.Compression, error) {
	var comp domain.Compression
	info, err := validateFile(path)
	if err != nil {
		return nil, comp, err
	}
	comp.OriginalSize = info.Size()

	fileName := filepath.Base(path)
	contentType := contentTypeOf(path)
	var body []byte

	if compress && isImage(path) && info.Size() > o.opts.CompressTargetBytes {
		body, comp = o.compressed(path, info.Size(), prevCopy)
		if comp.IsCompressed {
			fileName = jpgName(fileName)
			contentType = "image/jpeg"
		}
	}
	if body == nil {
		if body, err = os.ReadFile(path); err != nil {
			return nil, comp, fmt.Errorf("read %s: %w", path, err)
		}
	}

	pre, err := o.docs.RequestPresignUpload(ctx, document.PresignRequest{
		LoanID:       loanID,
		FileName:     fileName,
		DocumentType: documentType,
		ContentType:  contentType,
	})
	if err != nil {
		return nil, comp, err
	}
	if err := o.docs.Put(ctx, pre.UploadURL, contentType, body); err != nil {
		return nil, comp, err
	}
	return &Uploaded{DocumentID: pre.DocumentID, ObjectKey: pre.ObjectKey}, comp, nil
}

// compressed returns the bytes of a compressed copy or nil when compression
// did not help. Failures fall back to the original file.
func (o *Orchestrator) compressed(path string, size int64, prevCopy string) ([]byte, domain.Compression) {
	comp := domain.Compression{OriginalSize: size}
	if prevCopy != "" {
		if b, err := os.ReadFile(prevCopy); err == nil {
			comp.CompressedFilePath = prevCopy
			comp.CompressedSize = int64(len(b))
			comp.IsCompressed = true
			return b, comp
		}
	}
	b, q, err := compressImage(path, o.opts.CompressTargetBytes)
	if err != nil {
		o.log.Warn("compression failed, sending original", zap.String("path", path), zap.Error(err))
		return nil, comp
	}
	if int64(len(b)) >= size {
		return nil, comp
	}
	dst := filepath.Join(o.opts.TempDir, "compressed_"+o.newID()+".jpg")
	if err := os.WriteFile(dst, b, 0o600); err != nil {
		o.log.Warn("cannot persist compressed copy", zap.String("path", dst), zap.Error(err))
	} else {
		comp.CompressedFilePath = dst
	}
	comp.CompressedSize = int64(len(b))
	comp.IsCompressed = true
	o.log.Debug("image compressed",
		zap.String("path", path),
		zap.Int("quality", q),
		zap.Int64("original_size", size),
		zap.Int64("compressed_size", comp.CompressedSize))
	return b, comp
}

// CancelUpload drops a PENDING or FAILED upload and its compressed copy.
func (o *Orchestrator) CancelUpload(ctx context.Context, uploadID string) error {
	row, err := o.repo.GetByID(ctx, uploadID)
	if err != nil {
		return err
	}
	ok, err := o.repo.TransitionStatus(ctx, uploadID,
		[]domain.Status{domain.StatusPending, domain.StatusFailed}, domain.StatusCancelled, o.now())
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotCancelable
	}
	if err := o.repo.Delete(ctx, uploadID); err != nil {
		return err
	}
	o.removeCopy(row.CompressedFilePath)
	o.log.Info("upload cancelled", zap.String("upload_id", uploadID), zap.String("draft_id", row.LoanDraftID))
	return nil
}

// CleanupCompleted works in two passes over COMPLETED rows untouched for
// olderThan: the first removes the compressed copy and flags the row, a later
// one deletes flagged rows. It returns how many rows were flagged or deleted.
func (o *Orchestrator) CleanupCompleted(ctx context.Context, olderThan time.Duration) (int, error) {
	rows, err := o.repo.ListCompletedBefore(ctx, o.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range rows {
		if r.CleanupScheduled {
			if err := o.repo.Delete(ctx, r.ID); err != nil {
				return n, err
			}
			n++
			continue
		}
		o.removeCopy(r.CompressedFilePath)
		if err := o.repo.MarkCleanupScheduled(ctx, r.ID); err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		o.log.Info("upload cleanup", zap.Int("rows", n))
	}
	return n, nil
}

// RetryStale reschedules drafts holding PENDING or FAILED uploads not tried
// within minInterval. Rows without a loan id wait for the submission job and
// drafts with a queued job keep their backoff.
func (o *Orchestrator) RetryStale(ctx context.Context, minInterval time.Duration) (int, error) {
	rows, err := o.repo.ListRetryable(ctx, o.now(), minInterval)
	if err != nil {
		return 0, err
	}
	seen := map[string]bool{}
	n := 0
	for _, r := range rows {
		if r.LoanID == nil || seen[r.LoanDraftID] {
			continue
		}
		seen[r.LoanDraftID] = true
		_, queued, err := o.sched.NextRun(ctx, job.UploadTag(r.LoanDraftID))
		if err != nil {
			return n, fmt.Errorf("lookup uploads job for draft %s: %w", r.LoanDraftID, err)
		}
		if queued {
			continue
		}
		if err := o.sched.Schedule(ctx, job.UploadTag(r.LoanDraftID), job.KindUploadDocuments, r.LoanDraftID, 0); err != nil {
			return n, fmt.Errorf("schedule uploads for draft %s: %w", r.LoanDraftID, err)
		}
		n++
	}
	return n, nil
}

func (o *Orchestrator) removeCopy(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		o.log.Warn("cannot remove compressed copy", zap.String("path", path), zap.Error(err))
	}
}
