package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"loan-submission-queue/internal/domain/job"
	"loan-submission-queue/internal/domain/loan"
	"loan-submission-queue/internal/domain/notify"
	"loan-submission-queue/internal/domain/remoteerr"
	domain "loan-submission-queue/internal/domain/submission"

	"go.uber.org/zap"
)

// Documents is the slice of the upload orchestrator the worker drives.
type Documents interface {
	EnsureQueued(ctx context.Context, userID, draftID string, paths map[string]string) error
	AttachLoan(ctx context.Context, draftID, loanID string) error
	AreAllDocumentsUploaded(ctx context.Context, draftID string) (bool, error)
	ScheduleUploads(ctx context.Context, draftID string) error
}

// Worker drives one submission through create, documents, submit and notify.
// The job payload is the local loan id.
type Worker struct {
	repo       domain.Repository
	loans      loan.Service
	docs       Documents
	sink       notify.Sink
	maxRetries int
	log        *zap.Logger
	now        func() time.Time
}

func NewWorker(repo domain.Repository, loans loan.Service, docs Documents, sink notify.Sink, maxRetries int, log *zap.Logger) *Worker {
	return &Worker{
		repo:       repo,
		loans:      loans,
		docs:       docs,
		sink:       sink,
		maxRetries: maxRetries,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

var _ job.Handler = (*Worker)(nil)

var claimable = []domain.Status{domain.StatusPending, domain.StatusSubmitting}

// owned is the only status the worker writes from after claiming, so rows
// cancelled or reset elsewhere are never overwritten.
var owned = []domain.Status{domain.StatusSubmitting}

func (w *Worker) Run(ctx context.Context, loanID string) (res job.Result) {
	log := w.log.With(zap.String("loan_id", loanID))
	defer func() {
		if r := recover(); r != nil {
			log.Error("submission run panicked", zap.Any("panic", r))
			w.release(ctx, loanID, fmt.Sprintf("internal error: %v", r))
			res = job.Retry
		}
	}()

	p, err := w.repo.GetByLoanID(ctx, loanID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Warn("no pending submission for job")
		return job.Failure
	}
	if err != nil {
		log.Warn("load submission failed", zap.Error(err))
		return job.Retry
	}
	if p.PendingStatus.Terminal() {
		log.Info("submission already settled", zap.String("status", string(p.PendingStatus)))
		return job.Success
	}
	claimed, err := w.repo.TransitionStatus(ctx, loanID, claimable,
		domain.StatusUpdate{Status: domain.StatusSubmitting, At: w.now()})
	if err != nil {
		log.Warn("claim submission failed", zap.Error(err))
		return job.Retry
	}
	if !claimed {
		return job.Success
	}

	// ensure remote loan
	serverID := ""
	if p.ServerLoanID != nil && *p.ServerLoanID != "" {
		serverID = *p.ServerLoanID
	} else {
		l, err := w.loans.CreateLoan(ctx, createRequest(p))
		if err != nil {
			return w.fail(ctx, p, "create loan", err)
		}
		serverID = l.ID
		if err := w.repo.SetServerLoanID(context.WithoutCancel(ctx), loanID, serverID); err != nil {
			log.Error("remote loan created but id not stored", zap.String("server_loan_id", serverID), zap.Error(err))
			return w.release(ctx, loanID, "store server loan id: "+err.Error())
		}
		log.Info("remote loan created", zap.String("server_loan_id", serverID))
	}

	// ensure documents uploaded
	draftID := p.DraftID()
	if err := w.docs.EnsureQueued(ctx, p.UserID, draftID, p.DocumentPaths); err != nil {
		return w.release(ctx, loanID, "queue documents: "+err.Error())
	}
	if err := w.docs.AttachLoan(ctx, draftID, serverID); err != nil {
		return w.release(ctx, loanID, "attach documents: "+err.Error())
	}
	done, err := w.docs.AreAllDocumentsUploaded(ctx, draftID)
	if err != nil {
		return w.release(ctx, loanID, "check documents: "+err.Error())
	}
	if !done {
		if err := w.docs.ScheduleUploads(ctx, draftID); err != nil {
			log.Warn("schedule uploads failed", zap.Error(err))
		}
		log.Info("waiting for document uploads", zap.String("draft_id", draftID))
		return w.release(ctx, loanID, ReasonWaitingDocuments)
	}

	// submit remote loan
	if cur, err := w.repo.GetByLoanID(ctx, loanID); err == nil && cur.PendingStatus != domain.StatusSubmitting {
		log.Info("submission changed during run", zap.String("status", string(cur.PendingStatus)))
		return job.Success
	}
	detail, err := w.loans.GetLoanDetail(ctx, serverID)
	if err != nil {
		return w.fail(ctx, p, "get loan detail", err)
	}
	if detail.Submitted() {
		log.Info("remote loan already submitted", zap.String("remote_status", detail.LoanStatus))
	} else if _, err := w.loans.SubmitLoan(ctx, serverID); err != nil && !errors.Is(err, remoteerr.ErrConflict) {
		return w.fail(ctx, p, "submit loan", err)
	}

	return w.succeed(ctx, p)
}

// release hands the row back to PENDING without spending retry budget.
func (w *Worker) release(ctx context.Context, loanID, reason string) job.Result {
	_, err := w.repo.TransitionStatus(context.WithoutCancel(ctx), loanID, owned,
		domain.StatusUpdate{Status: domain.StatusPending, At: w.now(), Reason: &reason})
	if err != nil {
		w.log.Warn("release submission failed", zap.String("loan_id", loanID), zap.Error(err))
	}
	return job.Retry
}

// fail spends one retry, or settles the row as FAILED when the error is
// permanent or the budget is exhausted.
func (w *Worker) fail(ctx context.Context, p *domain.PendingLoanSubmission, step string, cause error) job.Result {
	ctx = context.WithoutCancel(ctx)
	reason := fmt.Sprintf("%s: %v", step, cause)
	log := w.log.With(zap.String("loan_id", p.LoanID), zap.String("step", step))

	if !remoteerr.IsPermanent(cause) && p.RetryCount < w.maxRetries {
		next := p.RetryCount + 1
		_, err := w.repo.TransitionStatus(ctx, p.LoanID, owned, domain.StatusUpdate{
			Status:     domain.StatusPending,
			RetryCount: &next,
			At:         w.now(),
			Reason:     &reason,
		})
		if err != nil {
			log.Warn("record retry failed", zap.Error(err))
		}
		log.Warn("submission attempt failed, will retry",
			zap.Int("retry_count", next),
			zap.Int("max_retries", w.maxRetries),
			zap.Error(cause))
		return job.Retry
	}

	ok, err := w.repo.TransitionStatus(ctx, p.LoanID, owned,
		domain.StatusUpdate{Status: domain.StatusFailed, At: w.now(), Reason: &reason})
	if err != nil {
		log.Warn("record failure failed", zap.Error(err))
		return job.Retry
	}
	log.Error("submission failed", zap.Int("retry_count", p.RetryCount), zap.Error(cause))
	if ok {
		if err := w.sink.ShowFailureNotification(ctx, p.UserID, p.LoanID, notificationReason(cause, reason)); err != nil {
			log.Warn("failure notification not shown", zap.Error(err))
		}
	}
	return job.Failure
}

// notificationReason hides transport errors behind the default offline message.
func notificationReason(cause error, reason string) string {
	var re *remoteerr.Error
	if errors.As(cause, &re) && re.Kind == remoteerr.KindTransient && re.StatusCode == 0 {
		return notify.DefaultFailureReason
	}
	return reason
}

func (w *Worker) succeed(ctx context.Context, p *domain.PendingLoanSubmission) job.Result {
	ctx = context.WithoutCancel(ctx)
	empty := ""
	ok, err := w.repo.TransitionStatus(ctx, p.LoanID, owned,
		domain.StatusUpdate{Status: domain.StatusSuccess, At: w.now(), Reason: &empty})
	if err != nil {
		// the next run sees the remote loan submitted and settles the row
		w.log.Warn("record success failed", zap.String("loan_id", p.LoanID), zap.Error(err))
		return job.Retry
	}
	if !ok {
		return job.Success
	}
	w.log.Info("loan submitted", zap.String("loan_id", p.LoanID))
	if err := w.sink.ShowSuccessNotification(ctx, p.UserID, p.LoanID); err != nil {
		w.log.Warn("success notification not shown", zap.String("loan_id", p.LoanID), zap.Error(err))
	}
	return job.Success
}
