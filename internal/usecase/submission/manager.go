package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"loan-submission-queue/internal/domain/job"
	"loan-submission-queue/internal/domain/session"
	domain "loan-submission-queue/internal/domain/submission"
	"loan-submission-queue/internal/domain/uow"
	"loan-submission-queue/internal/usecase/poll"
	"loan-submission-queue/pkg/id"

	"go.uber.org/zap"
)

// Manager is the front door for offline loan submissions.
type Manager struct {
	repo    domain.Repository
	tx      uow.UnitOfWork
	sched   job.Scheduler
	session session.Provider
	log     *zap.Logger

	pollInterval time.Duration
	now          func() time.Time
	newID        func() string
}

func NewManager(repo domain.Repository, tx uow.UnitOfWork, sched job.Scheduler, sess session.Provider,
	pollInterval time.Duration, log *zap.Logger) *Manager {
	return &Manager{
		repo:         repo,
		tx:           tx,
		sched:        sched,
		session:      sess,
		log:          log,
		pollInterval: pollInterval,
		now:          func() time.Time { return time.Now().UTC() },
		newID:        id.New,
	}
}

func (m *Manager) schedule(ctx context.Context, loanID string) error {
	return m.sched.ScheduleImmediate(ctx, job.SubmitTag(loanID), job.KindSubmitLoan, loanID)
}

// SubmitLoanOffline stores the snapshot as a PENDING submission and schedules
// its job. A scheduling failure is logged only: the row is durable and the
// stale sweep picks it up.
func (m *Manager) SubmitLoanOffline(ctx context.Context, in SubmitInput) (string, error) {
	userID, ok := m.session.UserID(ctx)
	if !ok {
		return "", domain.ErrUnauthenticated
	}
	loanID := m.newID()
	p := &domain.PendingLoanSubmission{
		LoanID:        loanID,
		UserID:        userID,
		LoanDraftID:   in.LoanDraftID,
		CustomerName:  in.CustomerName,
		ProductCode:   in.ProductCode,
		ProductName:   in.ProductName,
		InterestRate:  in.InterestRate,
		LoanAmount:    in.LoanAmount,
		Tenor:         in.Tenor,
		Purpose:       in.Purpose,
		DownPayment:   in.DownPayment,
		Latitude:      in.Latitude,
		Longitude:     in.Longitude,
		DocumentPaths: in.DocumentPaths,
		PendingStatus: domain.StatusPending,
		CreatedAt:     m.now(),
	}
	if p.DocumentPaths == nil {
		p.DocumentPaths = map[string]string{}
	}
	if err := m.repo.Save(ctx, p); err != nil {
		return "", fmt.Errorf("save pending submission: %w", err)
	}
	if err := m.schedule(ctx, loanID); err != nil {
		m.log.Warn("schedule submission failed", zap.String("loan_id", loanID), zap.Error(err))
	}
	m.log.Info("loan queued for submission",
		zap.String("loan_id", loanID),
		zap.String("user_id", userID),
		zap.Int("documents", len(p.DocumentPaths)))
	return loanID, nil
}

// GetPendingSubmissions lists the current user's PENDING, SUBMITTING and
// FAILED rows newest first. It is empty when nobody is logged in.
func (m *Manager) GetPendingSubmissions(ctx context.Context) ([]domain.PendingLoanSubmission, error) {
	userID, ok := m.session.UserID(ctx)
	if !ok {
		return []domain.PendingLoanSubmission{}, nil
	}
	rows, err := m.repo.ListByUser(ctx, userID, domain.ActiveStatuses...)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []domain.PendingLoanSubmission{}
	}
	return rows, nil
}

func (m *Manager) WatchPendingSubmissions(ctx context.Context) <-chan []domain.PendingLoanSubmission {
	return poll.Changes(ctx, m.pollInterval, m.log, m.GetPendingSubmissions)
}

// RetrySubmission moves a PENDING or FAILED row back to PENDING with a fresh
// retry budget and reschedules it. Missing rows are not an error; rows that are
// running, succeeded or cancelled return ErrNotRetryable.
func (m *Manager) RetrySubmission(ctx context.Context, loanID string) error {
	zero, reason := 0, ReasonManualRetry
	ok, err := m.repo.TransitionStatus(ctx, loanID,
		[]domain.Status{domain.StatusPending, domain.StatusFailed},
		domain.StatusUpdate{Status: domain.StatusPending, RetryCount: &zero, At: m.now(), Reason: &reason})
	if err != nil {
		return fmt.Errorf("reset submission %s: %w", loanID, err)
	}
	if !ok {
		p, err := m.repo.GetByLoanID(ctx, loanID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s is %s", domain.ErrNotRetryable, loanID, p.PendingStatus)
	}
	if err := m.schedule(ctx, loanID); err != nil {
		return fmt.Errorf("reschedule submission %s: %w", loanID, err)
	}
	m.log.Info("manual retry", zap.String("loan_id", loanID))
	return nil
}

// CancelSubmission cancels a PENDING or FAILED row and drops its job.
func (m *Manager) CancelSubmission(ctx context.Context, loanID string) error {
	reason := ReasonCancelled
	ok, err := m.repo.TransitionStatus(ctx, loanID,
		[]domain.Status{domain.StatusPending, domain.StatusFailed},
		domain.StatusUpdate{Status: domain.StatusCancelled, At: m.now(), Reason: &reason})
	if err != nil {
		return err
	}
	if !ok {
		if _, err := m.repo.GetByLoanID(ctx, loanID); err != nil {
			return err
		}
		return domain.ErrNotCancellable
	}
	if err := m.sched.CancelAllWorkByTag(ctx, job.SubmitTag(loanID)); err != nil {
		return fmt.Errorf("cancel job for %s: %w", loanID, err)
	}
	m.log.Info("submission cancelled", zap.String("loan_id", loanID))
	return nil
}

// TriggerPendingSubmissions moves FAILED rows back to PENDING and runs every
// PENDING or FAILED row now, ignoring backoff. It returns how many were scheduled.
func (m *Manager) TriggerPendingSubmissions(ctx context.Context) (int, error) {
	rows, err := m.repo.ListByStatus(ctx, domain.StatusPending, domain.StatusFailed)
	if err != nil {
		return 0, err
	}
	reason := ReasonNetworkTrigger
	var errs []error
	n := 0
	for _, p := range rows {
		if p.PendingStatus == domain.StatusFailed {
			_, err := m.repo.TransitionStatus(ctx, p.LoanID,
				[]domain.Status{domain.StatusFailed},
				domain.StatusUpdate{Status: domain.StatusPending, At: m.now(), Reason: &reason})
			if err != nil {
				errs = append(errs, fmt.Errorf("reset %s: %w", p.LoanID, err))
				continue
			}
		}
		if err := m.schedule(ctx, p.LoanID); err != nil {
			errs = append(errs, fmt.Errorf("schedule %s: %w", p.LoanID, err))
			continue
		}
		n++
	}
	m.log.Info("pending submissions triggered", zap.Int("scheduled", n), zap.Int("errors", len(errs)))
	return n, errors.Join(errs...)
}

// RetryStale schedules PENDING rows untouched for minInterval. It covers jobs
// lost between a row write and its schedule call, so rows that still have a
// queued job keep their backoff.
func (m *Manager) RetryStale(ctx context.Context, minInterval time.Duration) (int, error) {
	rows, err := m.repo.ListRetryable(ctx, m.now(), minInterval)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range rows {
		tag := job.SubmitTag(p.LoanID)
		_, queued, err := m.sched.NextRun(ctx, tag)
		if err != nil {
			return n, fmt.Errorf("lookup job %s: %w", p.LoanID, err)
		}
		if queued {
			continue
		}
		if err := m.sched.Schedule(ctx, tag, job.KindSubmitLoan, p.LoanID, 0); err != nil {
			return n, fmt.Errorf("schedule %s: %w", p.LoanID, err)
		}
		n++
	}
	return n, nil
}

// ClearUser removes every queued submission and upload of userID, as on logout
// or account removal, and drops their jobs.
func (m *Manager) ClearUser(ctx context.Context, userID string) error {
	rows, err := m.repo.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	err = m.tx.WithinTx(ctx, func(r uow.Repos) error {
		if err := r.Uploads.DeleteByUser(ctx, userID); err != nil {
			return err
		}
		return r.Submissions.DeleteByUser(ctx, userID)
	})
	if err != nil {
		return fmt.Errorf("clear user %s: %w", userID, err)
	}
	for _, p := range rows {
		if err := m.sched.CancelAllWorkByTag(ctx, job.SubmitTag(p.LoanID)); err != nil {
			m.log.Warn("cancel job failed", zap.String("loan_id", p.LoanID), zap.Error(err))
		}
		if err := m.sched.CancelAllWorkByTag(ctx, job.UploadTag(p.DraftID())); err != nil {
			m.log.Warn("cancel job failed", zap.String("draft_id", p.DraftID()), zap.Error(err))
		}
	}
	m.log.Info("user queue cleared", zap.String("user_id", userID), zap.Int("submissions", len(rows)))
	return nil
}
