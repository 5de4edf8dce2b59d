package upload

import (
	"context"

	"loan-submission-queue/internal/domain/job"
	domain "loan-submission-queue/internal/domain/upload"

	"go.uber.org/zap"
)

// Worker uploads every outstanding document of one draft. The job payload is the draft id.
type Worker struct {
	o   *Orchestrator
	log *zap.Logger
}

func NewWorker(o *Orchestrator, log *zap.Logger) *Worker {
	return &Worker{o: o, log: log}
}

var _ job.Handler = (*Worker)(nil)

// Run reports Success even when some documents failed; the submission job
// re-checks completeness on its own schedule. Only store errors ask for a retry.
func (w *Worker) Run(ctx context.Context, draftID string) job.Result {
	log := w.log.With(zap.String("draft_id", draftID))
	rows, err := w.o.repo.ListByDraft(ctx, draftID, domain.Claimable...)
	if err != nil {
		log.Warn("list uploads failed", zap.Error(err))
		return job.Retry
	}
	if len(rows) == 0 {
		return job.Success
	}

	var done, failed, waiting int
	for i := range rows {
		if ctx.Err() != nil {
			return job.Retry
		}
		row := &rows[i]
		if row.LoanID == nil {
			waiting++
			continue
		}
		switch err := w.uploadOne(ctx, row); {
		case err == nil:
			done++
		case errStore(err):
			log.Warn("upload bookkeeping failed", zap.String("upload_id", row.ID), zap.Error(err))
			return job.Retry
		default:
			failed++
		}
	}
	log.Info("upload run finished",
		zap.Int("completed", done),
		zap.Int("failed", failed),
		zap.Int("waiting_for_loan", waiting))
	return job.Success
}

type storeError struct{ err error }

func (e storeError) Error() string { return e.err.Error() }
func (e storeError) Unwrap() error { return e.err }

func errStore(err error) bool {
	_, ok := err.(storeError)
	return ok
}

// uploadOne returns a storeError when the row could not be updated, or the
// upload failure after recording it on the row.
func (w *Worker) uploadOne(ctx context.Context, row *domain.PendingDocumentUpload) error {
	o := w.o
	claimed, err := o.repo.MarkUploading(ctx, row.ID, o.now())
	if err != nil {
		return storeError{err}
	}
	if !claimed {
		return nil
	}

	res, comp, sendErr := o.send(ctx, *row.LoanID, row.LocalFilePath, row.DocumentType, row.ShouldCompress, row.CompressedFilePath)
	superseded := func() error {
		// the copy belongs to the replaced file
		if comp.CompressedFilePath != row.CompressedFilePath {
			o.removeCopy(comp.CompressedFilePath)
		}
		w.log.Info("upload superseded while in flight",
			zap.String("upload_id", row.ID),
			zap.String("document_type", row.DocumentType))
		return nil
	}
	if comp.OriginalSize > 0 {
		applied, err := o.repo.SaveCompression(context.WithoutCancel(ctx), row.ID, row.LocalFilePath, comp)
		if err != nil {
			return storeError{err}
		}
		if !applied {
			return superseded()
		}
	}
	if sendErr != nil {
		w.log.Warn("document upload failed",
			zap.String("upload_id", row.ID),
			zap.String("document_type", row.DocumentType),
			zap.Error(sendErr))
		applied, err := o.repo.MarkFailed(context.WithoutCancel(ctx), row.ID, row.LocalFilePath, sendErr.Error(), o.now())
		if err != nil {
			return storeError{err}
		}
		if !applied {
			return superseded()
		}
		return sendErr
	}
	applied, err := o.repo.MarkCompleted(context.WithoutCancel(ctx), row.ID, row.LocalFilePath, res.DocumentID, res.ObjectKey, o.now())
	if err != nil {
		return storeError{err}
	}
	if !applied {
		return superseded()
	}
	w.log.Info("document uploaded",
		zap.String("upload_id", row.ID),
		zap.String("document_type", row.DocumentType),
		zap.String("object_key", res.ObjectKey))
	return nil
}
